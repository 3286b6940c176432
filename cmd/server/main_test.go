package main

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/heartrisk/internal/config"
	"github.com/Skufu/heartrisk/internal/session"
	"github.com/Skufu/heartrisk/internal/users"
)

func TestSessionSecretUsesConfigured(t *testing.T) {
	secret, generated, err := sessionSecret("from-env")
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, []byte("from-env"), secret)
}

func TestSessionSecretGeneratesRandom(t *testing.T) {
	a, generated, err := sessionSecret("")
	require.NoError(t, err)
	assert.True(t, generated)
	assert.Len(t, a, 32)

	b, _, err := sessionSecret("")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpenUserStoreDefaultsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	store, closeFn, err := openUserStore(context.Background(), &config.Config{UsersFile: path})
	require.NoError(t, err)
	defer closeFn()

	fs, ok := store.(*users.FileStore)
	require.True(t, ok, "got %T", store)
	assert.Equal(t, path, fs.Path())
}

func TestOpenUserStoreRejectsBadURL(t *testing.T) {
	cfg := &config.Config{EnableDB: true, DatabaseURL: "://not-a-url"}
	_, _, err := openUserStore(context.Background(), cfg)
	assert.ErrorContains(t, err, "parse DATABASE_URL")
}

func TestOpenSessionStoreMemory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeFn, err := openSessionStore(ctx, &config.Config{SessionStore: config.SessionStoreMemory})
	require.NoError(t, err)
	defer closeFn()

	assert.IsType(t, &session.MemoryStore{}, store)
	require.NoError(t, store.Put(ctx, "abc", time.Minute))
	ok, err := store.Exists(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpenSessionStoreRedisUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cfg := &config.Config{SessionStore: config.SessionStoreRedis, RedisAddr: "127.0.0.1:1"}
	_, _, err := openSessionStore(ctx, cfg)
	assert.ErrorContains(t, err, "ping redis")
}

func TestPingWithinBoundsContext(t *testing.T) {
	err := pingWithin(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestServeStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	server := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- serve(ctx, server, zerolog.Nop()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownGrace + time.Second):
		t.Fatal("serve did not return after cancellation")
	}
}

func TestServeReportsListenError(t *testing.T) {
	server := &http.Server{Addr: "127.0.0.1:-1", Handler: http.NotFoundHandler()}
	assert.Error(t, serve(context.Background(), server, zerolog.Nop()))
}
