package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/storehub/server/internal/middleware"
	"github.com/storehub/server/internal/model"
	"github.com/storehub/server/internal/store"
)

// UserHandler serves profile and staff-management endpoints.
type UserHandler struct {
	store store.RecordStore
}

// NewUserHandler creates a new user handler
func NewUserHandler(st store.RecordStore) *UserHandler {
	return &UserHandler{store: st}
}

// HandleMe handles GET /users/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.GetIdentity(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	rec, err := h.store.SelectOne(r.Context(), model.TableUsers, store.Filters{"user_id": ident.UserID})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if rec == nil {
		respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	u, err := model.UserFromRecord(rec)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// HandleUpdateProfile handles PUT /users/profile
func (h *UserHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.GetIdentity(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	var req struct {
		Name *string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == nil || *req.Name == "" {
		respondWithError(w, http.StatusBadRequest, "name is required")
		return
	}

	rec, err := h.store.Update(r.Context(), model.TableUsers,
		store.Filters{"user_id": ident.UserID},
		store.Record{"name": *req.Name},
	)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if rec == nil {
		respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	u, err := model.UserFromRecord(rec)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// HandleToggleActive handles PUT /users/{userID}/toggle-active (admin only).
// Admins cannot deactivate themselves.
func (h *UserHandler) HandleToggleActive(w http.ResponseWriter, r *http.Request) {
	ident, target, ok := h.branchUser(w, r)
	if !ok {
		return
	}
	if target.UserID == ident.UserID {
		respondWithError(w, http.StatusBadRequest, "cannot change your own active status")
		return
	}

	rec, err := h.store.Update(r.Context(), model.TableUsers,
		store.Filters{"user_id": target.UserID},
		store.Record{"is_active": !target.IsActive},
	)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if rec == nil {
		respondWithError(w, http.StatusNotFound, "user not found")
		return
	}
	u, err := model.UserFromRecord(rec)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// HandleMakeAdmin handles PUT /users/{userID}/make-admin (admin only)
func (h *UserHandler) HandleMakeAdmin(w http.ResponseWriter, r *http.Request) {
	_, target, ok := h.branchUser(w, r)
	if !ok {
		return
	}

	rec, err := h.store.Update(r.Context(), model.TableUsers,
		store.Filters{"user_id": target.UserID},
		store.Record{"is_admin": true},
	)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if rec == nil {
		respondWithError(w, http.StatusNotFound, "user not found")
		return
	}
	u, err := model.UserFromRecord(rec)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// branchUser loads the user in the URL, scoped to the caller's branch.
func (h *UserHandler) branchUser(w http.ResponseWriter, r *http.Request) (model.Identity, model.User, bool) {
	ident, ok := middleware.GetIdentity(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
		return model.Identity{}, model.User{}, false
	}

	userID := chi.URLParam(r, "userID")
	rec, err := h.store.SelectOne(r.Context(), model.TableUsers, store.Filters{
		"user_id":   userID,
		"branch_id": ident.BranchID,
	})
	if err != nil {
		respondServiceError(w, err)
		return model.Identity{}, model.User{}, false
	}
	if rec == nil {
		respondWithError(w, http.StatusNotFound, "user not found")
		return model.Identity{}, model.User{}, false
	}
	u, err := model.UserFromRecord(rec)
	if err != nil {
		respondServiceError(w, err)
		return model.Identity{}, model.User{}, false
	}
	return ident, u, true
}
