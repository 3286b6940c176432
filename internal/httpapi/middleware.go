package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Skufu/heartrisk/internal/session"
)

const identityKey = "identity"

var errNoSession = errors.New("no session cookie")

func limitBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		evt := logger.Info()
		if status >= http.StatusInternalServerError {
			evt = logger.Error()
		}
		evt.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

// requireSession resolves the session cookie and stores the identity on the
// context. Requests without a valid session go to onMissing, requests whose
// session cannot be checked go to onUnavailable. Both abort the chain.
func (r *Router) requireSession(onMissing, onUnavailable gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		c.Header("Pragma", "no-cache")
		c.Header("Expires", "0")

		id, err := r.currentIdentity(c)
		switch {
		case err == nil:
			c.Set(identityKey, id)
			c.Next()
		case unauthenticated(err):
			onMissing(c)
			c.Abort()
		default:
			onUnavailable(c)
			c.Abort()
		}
	}
}

// currentIdentity resolves the session cookie. A rejected token clears the
// cookie; a store failure leaves it alone since the session may still be
// valid.
func (r *Router) currentIdentity(c *gin.Context) (session.Identity, error) {
	token, err := c.Cookie(SessionCookieName)
	if err != nil || token == "" {
		return session.Identity{}, errNoSession
	}
	id, err := r.sessions.Resolve(c.Request.Context(), token)
	if unauthenticated(err) {
		r.logger.Debug().Err(err).Msg("session rejected")
		r.clearSessionCookie(c)
		return session.Identity{}, err
	}
	if err != nil {
		r.logger.Error().Err(err).Msg("session lookup failed")
		return session.Identity{}, err
	}
	return id, nil
}

func unauthenticated(err error) bool {
	return errors.Is(err, errNoSession) ||
		errors.Is(err, session.ErrInvalidToken) ||
		errors.Is(err, session.ErrRevoked)
}

func identityFrom(c *gin.Context) session.Identity {
	v, _ := c.Get(identityKey)
	id, _ := v.(session.Identity)
	return id
}

func redirectToLogin(c *gin.Context) {
	c.Redirect(http.StatusFound, "/")
}

func rejectUnauthenticated(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
}

func sessionStoreUnavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
}

func sessionStoreUnavailablePage(c *gin.Context) {
	c.HTML(http.StatusServiceUnavailable, "error.html", gin.H{
		"Title":   "Service unavailable",
		"Message": "Sessions cannot be checked right now. Please try again shortly.",
	})
}

func (r *Router) setSessionCookie(c *gin.Context, tok session.Token) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, tok.Value, int(r.sessions.TTL().Seconds()), "/", "", r.cookieSecure, true)
}

func (r *Router) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, "", -1, "/", "", r.cookieSecure, true)
}
