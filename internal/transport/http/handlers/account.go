package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pofara/identity-service/internal/core/domain"
	"github.com/pofara/identity-service/internal/transport/http/middleware"
	"github.com/pofara/identity-service/internal/usecase"
)

// AccountHandler exposes account administration and self-service endpoints.
type AccountHandler struct {
	accounts *usecase.AccountService
}

// NewAccountHandler constructs AccountHandler.
func NewAccountHandler(accounts *usecase.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// RegisterAdminRoutes binds the admin endpoints onto an already-guarded group.
func (h *AccountHandler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/accounts/:id", h.getAccount)
	r.POST("/accounts/:id/unlock", h.unlock)
	r.PUT("/accounts/:id/status", h.updateStatus)
	r.GET("/login-attempts", h.listAttempts)
}

// GetAccount godoc
// @Summary Fetch account details
// @Description Returns the account profile together with its protection state.
// @Tags Admin
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} AccountDetail
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/accounts/{id} [get]
func (h *AccountHandler) getAccount(c *gin.Context) {
	account, err := h.accounts.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
		}, http.StatusInternalServerError, "failed to fetch account")
		return
	}

	c.JSON(http.StatusOK, newAccountDetail(*account))
}

// Unlock godoc
// @Summary Unlock an account
// @Description Clears the lock timestamp and resets the failed attempt counter. Idempotent.
// @Tags Admin
// @Produce json
// @Param id path string true "Account ID"
// @Success 204 {string} string ""
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/accounts/{id}/unlock [post]
func (h *AccountHandler) unlock(c *gin.Context) {
	unlockedBy, _ := middleware.GetAuthenticatedUserID(c)

	if err := h.accounts.Unlock(c.Request.Context(), c.Param("id"), unlockedBy); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
		}, http.StatusInternalServerError, "failed to unlock account")
		return
	}

	c.Status(http.StatusNoContent)
}

// UpdateStatus godoc
// @Summary Update account status
// @Description Transitions the account to a new status. Leaving active revokes outstanding refresh tokens.
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Account ID"
// @Param request body AccountStatusUpdateRequest true "Status update payload"
// @Success 204 {string} string ""
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/accounts/{id}/status [put]
func (h *AccountHandler) updateStatus(c *gin.Context) {
	var req AccountStatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "status is required"))
		return
	}

	status := domain.AccountStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	switch status {
	case domain.AccountStatusActive, domain.AccountStatusPending,
		domain.AccountStatusSuspended, domain.AccountStatusDeactivated:
	default:
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "status must be one of active, pending, suspended, deactivated"))
		return
	}

	if err := h.accounts.SetStatus(c.Request.Context(), c.Param("id"), status); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
		}, http.StatusInternalServerError, "failed to update account status")
		return
	}

	c.Status(http.StatusNoContent)
}

// ListAttempts godoc
// @Summary List login attempts
// @Description Returns ledger entries newest first, filtered by account, email, outcome, or time range.
// @Tags Admin
// @Produce json
// @Param account_id query string false "Filter by account ID"
// @Param email query string false "Filter by email"
// @Param outcome query string false "Filter by outcome (success, failed, blocked)"
// @Param from query string false "RFC 3339 lower bound (inclusive)"
// @Param to query string false "RFC 3339 upper bound (exclusive)"
// @Param limit query int false "Page size (default 50, max 200)"
// @Param offset query int false "Page offset"
// @Success 200 {object} LoginAttemptListResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/login-attempts [get]
func (h *AccountHandler) listAttempts(c *gin.Context) {
	filter, err := parseAttemptFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, err.Error()))
		return
	}

	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}

	page, err := h.accounts.ListAttempts(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list login attempts"))
		return
	}

	attempts := make([]LoginAttemptPayload, 0, len(page.Attempts))
	for _, attempt := range page.Attempts {
		attempts = append(attempts, newLoginAttemptPayload(attempt))
	}

	c.JSON(http.StatusOK, LoginAttemptListResponse{
		Attempts: attempts,
		Total:    page.Total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	})
}

// Me godoc
// @Summary Fetch the caller's own account
// @Description Returns the authenticated account's profile and protection state.
// @Tags Account
// @Produce json
// @Success 200 {object} AccountDetail
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/account/me [get]
func (h *AccountHandler) Me(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	account, err := h.accounts.GetAccount(c.Request.Context(), accountID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
		}, http.StatusInternalServerError, "failed to fetch account")
		return
	}

	c.JSON(http.StatusOK, newAccountDetail(*account))
}

// ChangePassword godoc
// @Summary Change the caller's password
// @Description Verifies the current password, applies policy to the new one, and revokes outstanding refresh tokens.
// @Tags Account
// @Accept json
// @Produce json
// @Param request body PasswordChangeRequest true "Password change payload"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/password/change [post]
func (h *AccountHandler) ChangePassword(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req PasswordChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "current_password and new_password are required"))
		return
	}

	err := h.accounts.ChangePassword(c.Request.Context(), accountID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrCurrentPasswordMismatch):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "current password is incorrect"))
		case errors.Is(err, usecase.ErrPasswordPolicyViolation):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "password does not meet requirements"))
		case errors.Is(err, usecase.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "account not found"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to change password"))
		}
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password changed"})
}

func parseAttemptFilter(c *gin.Context) (domain.AttemptFilter, error) {
	var filter domain.AttemptFilter

	if v := strings.TrimSpace(c.Query("account_id")); v != "" {
		filter.AccountID = &v
	}
	if v := strings.TrimSpace(c.Query("email")); v != "" {
		filter.Email = &v
	}
	if v := strings.TrimSpace(c.Query("outcome")); v != "" {
		outcome := domain.AttemptOutcome(v)
		switch outcome {
		case domain.AttemptSuccess, domain.AttemptFailed, domain.AttemptBlocked:
			filter.Outcome = &outcome
		default:
			return filter, errors.New("outcome must be one of success, failed, blocked")
		}
	}
	if v := strings.TrimSpace(c.Query("from")); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("from must be an RFC 3339 timestamp")
		}
		filter.From = &from
	}
	if v := strings.TrimSpace(c.Query("to")); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("to must be an RFC 3339 timestamp")
		}
		filter.To = &to
	}
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return filter, errors.New("limit must be a non-negative integer")
		}
		filter.Limit = limit
	}
	if v := strings.TrimSpace(c.Query("offset")); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return filter, errors.New("offset must be a non-negative integer")
		}
		filter.Offset = offset
	}

	return filter, nil
}
