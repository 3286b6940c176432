package model

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stump splits on feature 0 at 0.5: left leaf favours class 0, right class 1.
const stump = `{
  "kind": "random_forest", "n_features": 2, "classes": [0, 1],
  "trees": [
    {"nodes": [
      {"feature": 0, "threshold": 0.5, "left": 1, "right": 2},
      {"feature": -1, "left": -1, "right": -1, "value": [3, 1]},
      {"feature": -1, "left": -1, "right": -1, "value": [1, 3]}
    ]},
    {"nodes": [
      {"feature": -1, "left": -1, "right": -1, "value": [1, 1]}
    ]}
  ]
}`

func TestForestProbaAveragesTrees(t *testing.T) {
	m, err := Parse([]byte(stump))
	require.NoError(t, err)

	proba, err := m.PredictProba([]float64{0, 0})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.625, 0.375}, proba, 1e-9)

	label, err := m.Predict([]float64{0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0, label)

	proba, err = m.PredictProba([]float64{1, 0})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.375, 0.625}, proba, 1e-9)

	label, err = m.Predict([]float64{1, 0})
	require.NoError(t, err)
	assert.Equal(t, 1, label)
}

func TestPredictMapsClassLabels(t *testing.T) {
	m, err := Parse([]byte(strings.Replace(stump, `"classes": [0, 1]`, `"classes": [7, 9]`, 1)))
	require.NoError(t, err)

	label, err := m.Predict([]float64{1, 0})
	require.NoError(t, err)
	assert.Equal(t, 9, label)
}

func TestLogisticRegression(t *testing.T) {
	m, err := Parse([]byte(`{"kind":"logistic_regression","n_features":2,"classes":[0,1],"coef":[1,-1],"intercept":0}`))
	require.NoError(t, err)

	proba, err := m.PredictProba([]float64{0, 0})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, proba, 1e-12)

	proba, err = m.PredictProba([]float64{5, 0})
	require.NoError(t, err)
	assert.Greater(t, proba[1], 0.99)
	assert.InDelta(t, 1.0, proba[0]+proba[1], 1e-12)

	label, err := m.Predict([]float64{0, 5})
	require.NoError(t, err)
	assert.Equal(t, 0, label)
}

func TestPredictRejectsWrongWidth(t *testing.T) {
	m, err := Parse([]byte(stump))
	require.NoError(t, err)

	_, err = m.PredictProba([]float64{1})
	assert.Error(t, err)
	_, err = m.Predict([]float64{1, 2, 3})
	assert.Error(t, err)
}

func TestParseRejectsIncompatibleArtifacts(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `pickle`},
		{"unknown kind", `{"kind":"svm","n_features":2,"classes":[0,1]}`},
		{"no features", `{"kind":"logistic_regression","n_features":0,"classes":[0,1],"coef":[]}`},
		{"three classes", `{"kind":"logistic_regression","n_features":1,"classes":[0,1,2],"coef":[1]}`},
		{"coef mismatch", `{"kind":"logistic_regression","n_features":2,"classes":[0,1],"coef":[1]}`},
		{"no trees", `{"kind":"random_forest","n_features":2,"classes":[0,1],"trees":[]}`},
		{"empty tree", `{"kind":"random_forest","n_features":2,"classes":[0,1],"trees":[{"nodes":[]}]}`},
		{"feature out of range", `{"kind":"random_forest","n_features":2,"classes":[0,1],"trees":[{"nodes":[
			{"feature":5,"threshold":0,"left":1,"right":2},
			{"feature":-1,"left":-1,"right":-1,"value":[1,0]},
			{"feature":-1,"left":-1,"right":-1,"value":[0,1]}]}]}`},
		{"child out of range", `{"kind":"random_forest","n_features":2,"classes":[0,1],"trees":[{"nodes":[
			{"feature":0,"threshold":0,"left":1,"right":9},
			{"feature":-1,"left":-1,"right":-1,"value":[1,0]}]}]}`},
		{"cycle", `{"kind":"random_forest","n_features":2,"classes":[0,1],"trees":[{"nodes":[
			{"feature":0,"threshold":0,"left":0,"right":1},
			{"feature":-1,"left":-1,"right":-1,"value":[1,0]}]}]}`},
		{"leaf width", `{"kind":"random_forest","n_features":2,"classes":[0,1],"trees":[{"nodes":[
			{"feature":-1,"left":-1,"right":-1,"value":[1]}]}]}`},
		{"zero leaf", `{"kind":"random_forest","n_features":2,"classes":[0,1],"trees":[{"nodes":[
			{"feature":-1,"left":-1,"right":-1,"value":[0,0]}]}]}`},
		{"negative leaf", `{"kind":"random_forest","n_features":2,"classes":[0,1],"trees":[{"nodes":[
			{"feature":-1,"left":-1,"right":-1,"value":[2,-1]}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			assert.ErrorIs(t, err, ErrIncompatible)
		})
	}
}

func TestRequireFeatures(t *testing.T) {
	m, err := Parse([]byte(stump))
	require.NoError(t, err)

	assert.NoError(t, m.RequireFeatures(2))
	assert.ErrorIs(t, m.RequireFeatures(13), ErrIncompatible)
}

func TestLoadBundledArtifact(t *testing.T) {
	m, err := Load(context.Background(), filepath.Join("..", "..", "models", "heart_disease_rf.json"), S3Options{})
	require.NoError(t, err)
	require.NoError(t, m.RequireFeatures(13))
	assert.Equal(t, KindRandomForest, m.Kind())
	assert.Equal(t, []int{0, 1}, m.Classes())

	high := []float64{63, 1, 3, 145, 233, 1, 0, 150, 0, 2.3, 0, 0, 1}
	proba, err := m.PredictProba(high)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, proba[0]+proba[1], 1e-9)
	label, err := m.Predict(high)
	require.NoError(t, err)
	assert.Equal(t, 1, label)

	low := []float64{60, 1, 0, 130, 250, 0, 1, 120, 1, 3.0, 1, 2, 3}
	label, err = m.Predict(low)
	require.NoError(t, err)
	assert.Equal(t, 0, label)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.json"), S3Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

type fakeGetter struct {
	body   string
	err    error
	bucket string
	key    string
}

func (f *fakeGetter) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.bucket, f.key = *in.Bucket, *in.Key
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func withS3(t *testing.T, g *fakeGetter) {
	t.Helper()
	orig := newS3Client
	newS3Client = func(context.Context, S3Options) (objectGetter, error) { return g, nil }
	t.Cleanup(func() { newS3Client = orig })
}

func TestLoadFromS3(t *testing.T) {
	g := &fakeGetter{body: stump}
	withS3(t, g)

	m, err := Load(context.Background(), "s3://models/heart/rf.json", S3Options{Region: "us-east-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, m.NFeatures())
	assert.Equal(t, "models", g.bucket)
	assert.Equal(t, "heart/rf.json", g.key)
}

func TestLoadFromS3Error(t *testing.T) {
	withS3(t, &fakeGetter{err: errors.New("access denied")})

	_, err := Load(context.Background(), "s3://models/rf.json", S3Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestParseS3URL(t *testing.T) {
	bucket, key, err := parseS3URL("s3://b/k/v.json")
	require.NoError(t, err)
	assert.Equal(t, "b", bucket)
	assert.Equal(t, "k/v.json", key)

	for _, bad := range []string{"s3://", "s3://bucket", "s3://bucket/"} {
		_, _, err := parseS3URL(bad)
		assert.Error(t, err, bad)
	}
}
