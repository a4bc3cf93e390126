package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/storehub/server/internal/auth"
	"github.com/storehub/server/internal/mail"
	"github.com/storehub/server/internal/model"
)

// userResponse is the user object in API responses. The password hash never
// leaves the handler layer.
type userResponse struct {
	UserID     string `json:"user_id"`
	BranchID   string `json:"branch_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	IsAdmin    bool   `json:"is_admin"`
	IsActive   bool   `json:"is_active"`
	IsVerified bool   `json:"is_verified"`
	CreatedAt  string `json:"created_at"`
}

func toUserResponse(u model.User) userResponse {
	return userResponse{
		UserID:     u.UserID,
		BranchID:   u.BranchID,
		Name:       u.Name,
		Email:      u.Email,
		IsAdmin:    u.IsAdmin,
		IsActive:   u.IsActive,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// writeJSON sends a JSON response with the given status
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// respondServiceError maps the auth error taxonomy onto HTTP statuses.
// Unexpected faults are logged with full detail and surfaced opaquely.
func respondServiceError(w http.ResponseWriter, err error) {
	var validation *auth.ValidationError
	if errors.As(err, &validation) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": validation.Message,
			"field": validation.Field,
		})
		return
	}

	var limited *auth.RateLimitedError
	if errors.As(err, &limited) {
		seconds := int(limited.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":               "rate limit exceeded",
			"retry_after_seconds": seconds,
		})
		return
	}

	switch {
	case errors.Is(err, auth.ErrEmailTaken),
		errors.Is(err, auth.ErrInviteInvalid),
		errors.Is(err, auth.ErrInviteExpired),
		errors.Is(err, auth.ErrResetInvalid):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrUnauthenticated):
		respondWithError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		respondWithError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrUserNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	default:
		log.Printf("internal error: %v", err)
		respondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

// maskEmail re-exported for handler logging.
func maskEmail(email string) string {
	return mail.MaskEmail(email)
}
