package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pofara/identity-service/internal/core/domain"
	"github.com/pofara/identity-service/internal/infra/security"
	"github.com/pofara/identity-service/internal/usecase"
)

const loginFailedMessage = "unable to log in with provided credentials"

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth         *usecase.AuthService
	registration *usecase.RegistrationService
}

// AuthHandlerOption configures optional AuthHandler dependencies.
type AuthHandlerOption func(*AuthHandler)

// WithRegistrationService injects the registration service dependency.
func WithRegistrationService(registration *usecase.RegistrationService) AuthHandlerOption {
	return func(h *AuthHandler) {
		h.registration = registration
	}
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, opts ...AuthHandlerOption) *AuthHandler {
	handler := &AuthHandler{auth: auth}

	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}

	return handler
}

// RegisterRoutes binds authentication routes, applying optional middleware ahead of handlers.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, loginMiddlewares ...gin.HandlerFunc) {
	r.POST("/register", h.register)

	if len(loginMiddlewares) > 0 {
		chain := append([]gin.HandlerFunc{}, loginMiddlewares...)
		chain = append(chain, h.login)
		r.POST("/login", chain...)
	} else {
		r.POST("/login", h.login)
	}

	r.POST("/refresh", h.refresh)
	r.POST("/logout", h.logout)
}

// Login godoc
// @Summary Authenticate an account with credentials
// @Description Validates the provided email and password, returning access and refresh tokens on success.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} LoginResponse "Successfully authenticated"
// @Failure 400 {object} ErrorResponse "Invalid payload or rejected credentials"
// @Failure 429 {object} middleware.ProblemDetails "Rate limit exceeded"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Failure 503 {object} ErrorResponse "Service temporarily unavailable"
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	input := usecase.LoginInput{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
	}
	if ip := strings.TrimSpace(c.ClientIP()); ip != "" {
		input.IP = &ip
	}
	if ua := strings.TrimSpace(c.Request.UserAgent()); ua != "" {
		input.UserAgent = &ua
	}

	result, err := h.auth.Login(c.Request.Context(), input)
	if err != nil {
		respondLoginError(c, err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    tokenExpiresIn(result.Tokens),
		Account:      newAccountSummary(result.Account),
	})
}

// Register godoc
// @Summary Register a new account
// @Description Creates an active account with the supplied credentials and issues the first token pair.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RegistrationRequest true "Registration request payload"
// @Success 201 {object} RegistrationResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) register(c *gin.Context) {
	if h.registration == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "registration service unavailable"))
		return
	}

	var req RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	input := usecase.RegisterInput{
		Email:         strings.TrimSpace(req.Email),
		Password:      req.Password,
		FirstName:     strings.TrimSpace(req.FirstName),
		LastName:      strings.TrimSpace(req.LastName),
		Phone:         strings.TrimSpace(req.Phone),
		TermsAccepted: req.TermsAccepted,
	}
	if ip := strings.TrimSpace(c.ClientIP()); ip != "" {
		input.IP = &ip
	}
	if ua := strings.TrimSpace(c.Request.UserAgent()); ua != "" {
		input.UserAgent = &ua
	}

	result, err := h.registration.Register(c.Request.Context(), input)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			c.JSON(http.StatusConflict, NewErrorResponse(c, "email already registered"))
			return
		}
		switch {
		case errors.Is(err, usecase.ErrTermsNotAccepted):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "terms of service must be accepted"))
		case errors.Is(err, usecase.ErrPasswordPolicyViolation):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "password does not meet requirements"))
		case errors.Is(err, usecase.ErrTokenIssuerUnavailable):
			c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "token issuance unavailable"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to register account"))
		}
		return
	}

	c.JSON(http.StatusCreated, RegistrationResponse{
		Account:      newAccountSummary(result.Account),
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    tokenExpiresIn(result.Tokens),
	})
}

// Refresh godoc
// @Summary Refresh an access token
// @Description Issues a new access token and refresh token pair using a valid refresh token.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body TokenRefreshRequest true "Refresh request"
// @Success 200 {object} TokenRefreshResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) refresh(c *gin.Context) {
	var req TokenRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "refresh_token is required"))
		return
	}

	var ip, ua *string
	if v := strings.TrimSpace(c.ClientIP()); v != "" {
		ip = &v
	}
	if v := strings.TrimSpace(c.Request.UserAgent()); v != "" {
		ua = &v
	}

	pair, err := h.auth.RefreshTokens(c.Request.Context(), req.RefreshToken, ip, ua)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: security.ErrInvalidRefreshToken, Status: http.StatusUnauthorized, Message: "invalid refresh token"},
			{Err: security.ErrExpiredRefreshToken, Status: http.StatusUnauthorized, Message: "refresh token expired"},
			{Err: security.ErrAccountNotEligible, Status: http.StatusForbidden, Message: "account cannot authenticate"},
		}, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	c.JSON(http.StatusOK, TokenRefreshResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    tokenExpiresIn(pair),
	})
}

// Logout godoc
// @Summary Log out of the current session
// @Description Revokes the presented refresh token. The access token remains valid until it expires.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LogoutRequest true "Logout request"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) logout(c *gin.Context) {
	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "refresh_token is required"))
		return
	}

	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: security.ErrInvalidRefreshToken, Status: http.StatusBadRequest, Message: "invalid refresh token"},
		}, http.StatusInternalServerError, "failed to log out")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "successfully logged out"})
}

// respondLoginError collapses business rejections into one generic 400
// so responses do not reveal whether the email exists or is locked.
func respondLoginError(c *gin.Context, err error) {
	var authErr *usecase.AuthError
	if errors.As(err, &authErr) {
		switch authErr.Kind {
		case usecase.KindInvalidCredentials, usecase.KindAccountLocked, usecase.KindAccountNotEligible:
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, loginFailedMessage))
		case usecase.KindStoreUnavailable:
			c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "authentication temporarily unavailable"))
		case usecase.KindTokenIssuerUnavailable:
			c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "token issuance unavailable"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "authentication failed"))
		}
		return
	}

	c.JSON(http.StatusBadRequest, NewErrorResponse(c, loginFailedMessage))
}

func tokenExpiresIn(pair *domain.TokenPair) int {
	if pair == nil || pair.AccessExpiresAt.IsZero() {
		return 0
	}

	remaining := time.Until(pair.AccessExpiresAt)
	if remaining <= 0 {
		return 0
	}

	return int(remaining.Seconds())
}
