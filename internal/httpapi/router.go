// Package httpapi exposes the login pages, the session endpoints and the
// prediction API over HTTP.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Skufu/heartrisk/internal/auth"
	"github.com/Skufu/heartrisk/internal/predict"
	"github.com/Skufu/heartrisk/internal/session"
)

const (
	SessionCookieName = "heartrisk_session"
	maxBodyBytes      = 1 << 20
	dateLayout        = "2006-01-02 15:04:05"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Logger       zerolog.Logger
	Auth         *auth.Service
	Sessions     *session.Manager
	Predictor    *predict.Service
	Health       HealthChecker
	CookieSecure bool
	CORSOrigins  []string
}

type Router struct {
	logger       zerolog.Logger
	auth         *auth.Service
	sessions     *session.Manager
	predictor    *predict.Service
	health       HealthChecker
	cookieSecure bool
	metrics      *metrics
	now          func() time.Time
}

func NewRouter(d Deps) (*gin.Engine, error) {
	r := &Router{
		logger:       d.Logger,
		auth:         d.Auth,
		sessions:     d.Sessions,
		predictor:    d.Predictor,
		health:       d.Health,
		cookieSecure: d.CookieSecure,
		metrics:      newMetrics(),
		now:          time.Now,
	}
	return r.engine(d.CORSOrigins)
}

func (r *Router) engine(origins []string) (*gin.Engine, error) {
	tmpl, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	static, err := staticFS()
	if err != nil {
		return nil, fmt.Errorf("load static assets: %w", err)
	}

	router := gin.New()
	router.SetHTMLTemplate(tmpl)
	router.Use(
		gin.Recovery(),
		requestLogger(r.logger),
		r.metrics.middleware(),
		limitBodySize(maxBodyBytes),
		cors.New(corsConfig(origins)),
	)

	router.StaticFS("/static", static)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", r.readyz)
	router.GET("/metrics", gin.WrapH(r.metrics.handler()))

	router.GET("/", r.loginPage)
	router.POST("/login", r.login)
	router.POST("/signup", r.signup)
	router.GET("/logout", r.logout)

	router.GET("/home", r.requireSession(redirectToLogin, sessionStoreUnavailablePage), r.home)

	api := router.Group("/api")
	api.POST("/predict", r.requireSession(rejectUnauthenticated, sessionStoreUnavailable), r.predict)

	return router, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func (r *Router) readyz(c *gin.Context) {
	if r.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "store": "unchecked"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := r.health.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"store":  fmt.Sprintf("unhealthy: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"store":  "ok",
	})
}
