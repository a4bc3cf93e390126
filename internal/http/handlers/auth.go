package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/storehub/server/internal/auth"
	"github.com/storehub/server/internal/middleware"
	"github.com/storehub/server/internal/model"
	"github.com/storehub/server/internal/store"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	service *auth.Service
	store   store.RecordStore

	// Limiters for the unauthenticated OTP endpoints. IP keys throttle a
	// single client hammering the API; email keys stop a distributed caller
	// from flooding one inbox. The attempt lockout lives in the OTP engine.
	otpLimiter    *middleware.RateLimiter
	emailLimiter  *middleware.RateLimiter
	verifyLimiter *middleware.RateLimiter
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(service *auth.Service, st store.RecordStore) *AuthHandler {
	return &AuthHandler{
		service:       service,
		store:         st,
		otpLimiter:    middleware.NewRateLimiter(10*time.Minute, 10),
		emailLimiter:  middleware.NewRateLimiter(10*time.Minute, 5),
		verifyLimiter: middleware.NewRateLimiter(10*time.Minute, 20),
	}
}

// tokenResponse is the JSON shape for session-establishing endpoints
type tokenResponse struct {
	AccessToken          string       `json:"access_token"`
	RefreshToken         string       `json:"refresh_token"`
	TokenType            string       `json:"token_type"`
	User                 userResponse `json:"user"`
	RequiresVerification bool         `json:"requires_verification,omitempty"`
}

func toTokenResponse(res auth.AuthResult) tokenResponse {
	return tokenResponse{
		AccessToken:          res.AccessToken,
		RefreshToken:         res.RefreshToken,
		TokenType:            "bearer",
		User:                 toUserResponse(res.User),
		RequiresVerification: res.RequiresVerification,
	}
}

type firstSignupRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	StoreName       string `json:"store_name"`
	StoreAddress    string `json:"store_address"`
	City            string `json:"city"`
}

// HandleFirstSignup handles POST /auth/first-signup
func (h *AuthHandler) HandleFirstSignup(w http.ResponseWriter, r *http.Request) {
	var req firstSignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Password != req.ConfirmPassword {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "passwords do not match",
			"field": "confirm_password",
		})
		return
	}

	res, err := h.service.FirstSignup(r.Context(), auth.FirstSignupParams{
		Name:         req.Name,
		Email:        req.Email,
		Password:     req.Password,
		StoreName:    req.StoreName,
		StoreAddress: req.StoreAddress,
		City:         req.City,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTokenResponse(res))
}

type inviteSignupRequest struct {
	Token           string `json:"token"`
	Name            string `json:"name"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// HandleInviteSignup handles POST /auth/invite-signup
func (h *AuthHandler) HandleInviteSignup(w http.ResponseWriter, r *http.Request) {
	var req inviteSignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Password != req.ConfirmPassword {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "passwords do not match",
			"field": "confirm_password",
		})
		return
	}

	res, err := h.service.InviteSignup(r.Context(), auth.InviteSignupParams{
		Token:    strings.TrimSpace(req.Token),
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTokenResponse(res))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin handles POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	res, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrVerificationRequired) {
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error":                 "verification required",
				"requires_verification": true,
				"email":                 auth.NormalizeEmail(req.Email),
			})
			return
		}
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(res))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// HandleRefresh handles POST /auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondWithError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	res, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(res))
}

type sendInviteRequest struct {
	Email string `json:"email"`
}

// HandleSendInvite handles POST /auth/send-invite (admin only)
func (h *AuthHandler) HandleSendInvite(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.GetIdentity(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	var req sendInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	inviteURL, err := h.service.SendInvite(r.Context(), ident, req.Email)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "invitation link generated",
		"invite_url": inviteURL,
	})
}

// HandleValidateInvite handles GET /auth/validate-invite?token=...
// Lets the signup page confirm an invite before the user fills the form.
func (h *AuthHandler) HandleValidateInvite(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		respondWithError(w, http.StatusBadRequest, "token is required")
		return
	}

	rec, err := h.store.SelectOne(r.Context(), model.TableInvites, store.Filters{
		"token":   token,
		"is_used": false,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false})
		return
	}
	invite, err := model.InviteFromRecord(rec)
	if err != nil || time.Now().After(invite.ExpiresAt) {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"email": invite.Email,
	})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// HandleForgotPassword handles POST /auth/forgot-password. The response shape
// is identical whether or not the email exists.
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		respondWithError(w, http.StatusBadRequest, "email is required")
		return
	}

	if !h.emailLimiter.Allow(middleware.GetEmailKey(req.Email)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "If this email is registered, a reset code has been sent.",
	})
}

type resetPasswordRequest struct {
	ResetToken  string `json:"reset_token"`
	NewPassword string `json:"new_password"`
}

// HandleResetPassword handles POST /auth/reset-password
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.ResetPassword(r.Context(), strings.TrimSpace(req.ResetToken), req.NewPassword); err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Password updated successfully",
	})
}

type sendOTPRequest struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
}

// HandleSendOTP handles POST /auth/send-otp
func (h *AuthHandler) HandleSendOTP(w http.ResponseWriter, r *http.Request) {
	var req sendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Purpose == "" {
		req.Purpose = model.PurposeVerification
	}

	if !h.otpLimiter.Allow(middleware.GetIPKey(r)) || !h.emailLimiter.Allow(middleware.GetEmailKey(req.Email)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	if err := h.service.SendOTP(r.Context(), req.Email, req.Purpose); err != nil {
		log.Printf("send-otp for %s failed: %v", maskEmail(req.Email), err)
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "OTP sent successfully",
	})
}

type verifyOTPRequest struct {
	Email   string `json:"email"`
	OTP     string `json:"otp"`
	Purpose string `json:"purpose"`
}

// verifyOTPResponse mirrors the typed result of the OTP engine plus the
// purpose side effects.
type verifyOTPResponse struct {
	Success           bool          `json:"success"`
	Message           string        `json:"message"`
	AttemptsRemaining *int          `json:"attempts_remaining,omitempty"`
	CooldownUntil     *string       `json:"cooldown_until,omitempty"`
	User              *userResponse `json:"user,omitempty"`
	ResetToken        string        `json:"reset_token,omitempty"`
}

// HandleVerifyOTP handles POST /auth/verify-otp
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Purpose == "" {
		req.Purpose = model.PurposeVerification
	}
	req.OTP = strings.TrimSpace(req.OTP)
	if req.Email == "" || req.OTP == "" {
		respondWithError(w, http.StatusBadRequest, "email and otp are required")
		return
	}

	if !h.verifyLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	outcome, err := h.service.VerifyOTP(r.Context(), req.Email, req.OTP, req.Purpose)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	resp := verifyOTPResponse{
		Success:    outcome.Result.Success,
		Message:    outcome.Result.Message,
		ResetToken: outcome.ResetToken,
	}
	resp.AttemptsRemaining = outcome.Result.AttemptsRemaining
	if outcome.Result.CooldownUntil != nil {
		until := outcome.Result.CooldownUntil.UTC().Format(time.RFC3339)
		resp.CooldownUntil = &until
	}
	if outcome.User != nil {
		user := toUserResponse(*outcome.User)
		resp.User = &user
	}
	writeJSON(w, http.StatusOK, resp)
}
