package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Skufu/heartrisk/internal/auth"
	"github.com/Skufu/heartrisk/internal/predict"
	"github.com/Skufu/heartrisk/internal/session"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type predictResponse struct {
	RiskLevel   string              `json:"risk_level"`
	Probability predict.Probability `json:"probability"`
	Message     string              `json:"message"`
	InputData   map[string]any      `json:"input_data"`
	UserName    string              `json:"user_name"`
	UserEmail   string              `json:"user_email"`
	Date        string              `json:"date"`
}

func (r *Router) loginPage(c *gin.Context) {
	_, err := r.currentIdentity(c)
	switch {
	case err == nil:
		c.Redirect(http.StatusFound, "/home")
	case unauthenticated(err):
		c.HTML(http.StatusOK, "login.html", gin.H{"Title": "Sign in"})
	default:
		sessionStoreUnavailablePage(c)
	}
}

func (r *Router) home(c *gin.Context) {
	id := identityFrom(c)
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Title": "Heart disease risk",
		"Name":  id.Name,
		"Email": id.Email,
	})
}

func (r *Router) login(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil || !json.Valid(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid JSON payload"})
		return
	}
	// Fields of the wrong type stay empty and fail as bad credentials.
	var req loginRequest
	_ = json.Unmarshal(raw, &req)

	id, err := r.auth.Login(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Invalid email or password"})
		return
	}
	if err != nil {
		r.logger.Error().Err(err).Msg("login failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal error"})
		return
	}

	r.startSession(c, id)
}

func (r *Router) signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid JSON payload"})
		return
	}

	id, err := r.auth.Signup(c.Request.Context(), req.Email, req.Password, req.Name)
	switch {
	case errors.Is(err, auth.ErrEmailExists):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Email already exists"})
		return
	case errors.Is(err, auth.ErrMissingCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Email and password are required"})
		return
	case errors.Is(err, auth.ErrPasswordTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Password must be at most 72 bytes"})
		return
	case err != nil:
		r.logger.Error().Err(err).Msg("signup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal error"})
		return
	}

	r.startSession(c, id)
}

func (r *Router) startSession(c *gin.Context, id session.Identity) {
	tok, err := r.sessions.Issue(c.Request.Context(), id)
	if err != nil {
		r.logger.Error().Err(err).Msg("issue session")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal error"})
		return
	}
	r.setSessionCookie(c, tok)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (r *Router) logout(c *gin.Context) {
	if token, err := c.Cookie(SessionCookieName); err == nil && token != "" {
		if err := r.sessions.Revoke(c.Request.Context(), token); err != nil {
			r.logger.Warn().Err(err).Msg("revoke session")
		}
	}
	r.clearSessionCookie(c)
	c.Redirect(http.StatusFound, "/")
}

func (r *Router) predict(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil || payload == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
		return
	}

	vec, err := predict.ParseFeatures(payload)
	if err != nil {
		var fe *predict.FieldError
		if errors.As(err, &fe) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fe.Error(), "field": fe.Field})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}

	out, err := r.predictor.Predict(c.Request.Context(), vec)
	if err != nil {
		r.logger.Error().Err(err).Msg("prediction failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "prediction failed"})
		return
	}
	r.metrics.observePrediction(out.RiskLevel)

	id := identityFrom(c)
	c.JSON(http.StatusOK, predictResponse{
		RiskLevel:   out.RiskLevel,
		Probability: out.Probability,
		Message:     out.Message,
		InputData:   payload,
		UserName:    orNA(id.Name),
		UserEmail:   orNA(id.Email),
		Date:        r.now().Format(dateLayout),
	})
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
