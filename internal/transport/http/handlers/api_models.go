package handlers

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pofara/identity-service/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// AccountSummary describes a minimal view of an account returned by the API.
type AccountSummary struct {
	ID            string               `json:"id"`
	Email         string               `json:"email"`
	FirstName     string               `json:"first_name"`
	LastName      string               `json:"last_name"`
	Phone         *string              `json:"phone,omitempty"`
	Role          domain.AccountRole   `json:"role"`
	Status        domain.AccountStatus `json:"status"`
	EmailVerified bool                 `json:"email_verified"`
	PhoneVerified bool                 `json:"phone_verified"`
	CreatedAt     time.Time            `json:"created_at"`
}

// AccountDetail extends the summary with protection state for admin views.
type AccountDetail struct {
	AccountSummary
	IsActive            bool       `json:"is_active"`
	TermsAccepted       bool       `json:"terms_accepted"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	AccountLockedUntil  *time.Time `json:"account_locked_until,omitempty"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
	LastLoginIP         *string    `json:"last_login_ip,omitempty"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse describes the response returned for a successful login.
type LoginResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	TokenType    string         `json:"token_type"`
	ExpiresIn    int            `json:"expires_in"`
	Account      AccountSummary `json:"account"`
}

// TokenRefreshRequest represents the payload to refresh an access token.
type TokenRefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// TokenRefreshResponse contains tokens issued by the refresh endpoint.
type TokenRefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
}

// LogoutRequest carries the refresh token to revoke on logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RegistrationRequest defines the account registration payload.
type RegistrationRequest struct {
	Email         string `json:"email" binding:"required,email"`
	Password      string `json:"password" binding:"required,min=8"`
	FirstName     string `json:"first_name" binding:"required"`
	LastName      string `json:"last_name" binding:"required"`
	Phone         string `json:"phone" binding:"omitempty"`
	TermsAccepted bool   `json:"terms_accepted"`
}

// RegistrationResponse contains the created account and its first token pair.
type RegistrationResponse struct {
	Account      AccountSummary `json:"account"`
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	TokenType    string         `json:"token_type"`
	ExpiresIn    int            `json:"expires_in"`
}

// PasswordChangeRequest captures a password change request body.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// AccountStatusUpdateRequest captures an admin status transition.
type AccountStatusUpdateRequest struct {
	Status string `json:"status" binding:"required"`
}

// LoginAttemptPayload describes a ledger entry in API responses.
type LoginAttemptPayload struct {
	ID            string    `json:"id"`
	AccountID     *string   `json:"account_id,omitempty"`
	Email         string    `json:"email"`
	IP            *string   `json:"ip,omitempty"`
	UserAgent     *string   `json:"user_agent,omitempty"`
	Outcome       string    `json:"outcome"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// LoginAttemptListResponse wraps a page of ledger entries.
type LoginAttemptListResponse struct {
	Attempts []LoginAttemptPayload `json:"attempts"`
	Total    int                   `json:"total"`
	Limit    int                   `json:"limit"`
	Offset   int                   `json:"offset"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// JWKSKey describes an individual JSON Web Key in the JWKS response.
type JWKSKey struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSResponse represents the JSON Web Key Set payload.
type JWKSResponse struct {
	Keys []JWKSKey `json:"keys"`
}

// newAccountSummary converts a domain account to a summary suitable for API responses.
func newAccountSummary(account domain.Account) AccountSummary {
	summary := AccountSummary{
		ID:            account.ID,
		Email:         account.Email,
		FirstName:     account.FirstName,
		LastName:      account.LastName,
		Role:          account.Role,
		Status:        account.Status,
		EmailVerified: account.EmailVerified,
		PhoneVerified: account.PhoneVerified,
		CreatedAt:     account.CreatedAt,
	}

	if account.Phone != nil {
		phone := strings.TrimSpace(*account.Phone)
		if phone != "" {
			summary.Phone = &phone
		}
	}

	return summary
}

// newAccountDetail converts a domain account to the admin detail view.
func newAccountDetail(account domain.Account) AccountDetail {
	return AccountDetail{
		AccountSummary:      newAccountSummary(account),
		IsActive:            account.IsActive,
		TermsAccepted:       account.TermsAccepted,
		FailedLoginAttempts: account.FailedLoginAttempts,
		AccountLockedUntil:  account.AccountLockedUntil,
		LastLogin:           account.LastLogin,
		LastLoginIP:         account.LastLoginIP,
	}
}

// newLoginAttemptPayload converts a ledger entry to an API payload.
func newLoginAttemptPayload(attempt domain.LoginAttempt) LoginAttemptPayload {
	return LoginAttemptPayload{
		ID:            attempt.ID,
		AccountID:     attempt.AccountID,
		Email:         attempt.Email,
		IP:            attempt.IP,
		UserAgent:     attempt.UserAgent,
		Outcome:       string(attempt.Outcome),
		FailureReason: attempt.FailureReason,
		CreatedAt:     attempt.CreatedAt,
	}
}
