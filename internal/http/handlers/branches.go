package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/storehub/server/internal/middleware"
	"github.com/storehub/server/internal/model"
	"github.com/storehub/server/internal/store"
)

// BranchHandler serves branch settings and the staff roster.
type BranchHandler struct {
	store store.RecordStore
}

// NewBranchHandler creates a new branch handler
func NewBranchHandler(st store.RecordStore) *BranchHandler {
	return &BranchHandler{store: st}
}

type branchResponse struct {
	BranchID   string `json:"branch_id"`
	BranchName string `json:"branch_name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	CreatedAt  string `json:"created_at"`
}

func toBranchResponse(b model.Branch) branchResponse {
	return branchResponse{
		BranchID:   b.BranchID,
		BranchName: b.BranchName,
		Address:    b.Address,
		City:       b.City,
		CreatedAt:  b.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// HandleGetSettings handles GET /branches/settings (admin only)
func (h *BranchHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	b, ok := h.ownBranch(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toBranchResponse(b))
}

// HandleUpdateSettings handles PUT /branches/settings (admin only)
func (h *BranchHandler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	b, ok := h.ownBranch(w, r)
	if !ok {
		return
	}

	var req struct {
		BranchName *string `json:"branch_name"`
		Address    *string `json:"address"`
		City       *string `json:"city"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	patch := store.Record{}
	if req.BranchName != nil {
		if *req.BranchName == "" {
			respondWithError(w, http.StatusBadRequest, "branch_name must not be empty")
			return
		}
		patch["branch_name"] = *req.BranchName
	}
	if req.Address != nil {
		patch["address"] = *req.Address
	}
	if req.City != nil {
		patch["city"] = *req.City
	}
	if len(patch) == 0 {
		writeJSON(w, http.StatusOK, toBranchResponse(b))
		return
	}

	rec, err := h.store.Update(r.Context(), model.TableBranches,
		store.Filters{"branch_id": b.BranchID}, patch)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if rec == nil {
		respondWithError(w, http.StatusNotFound, "branch not found")
		return
	}
	updated, err := model.BranchFromRecord(rec)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBranchResponse(updated))
}

// HandleListStaff handles GET /branches/users (admin only)
func (h *BranchHandler) HandleListStaff(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.GetIdentity(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	recs, err := h.store.SelectAll(r.Context(), model.TableUsers, store.Filters{
		"branch_id": ident.BranchID,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	out := make([]userResponse, 0, len(recs))
	for _, rec := range recs {
		u, err := model.UserFromRecord(rec)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		out = append(out, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *BranchHandler) ownBranch(w http.ResponseWriter, r *http.Request) (model.Branch, bool) {
	ident, ok := middleware.GetIdentity(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
		return model.Branch{}, false
	}

	rec, err := h.store.SelectOne(r.Context(), model.TableBranches, store.Filters{
		"branch_id": ident.BranchID,
	})
	if err != nil {
		respondServiceError(w, err)
		return model.Branch{}, false
	}
	if rec == nil {
		respondWithError(w, http.StatusNotFound, "branch not found")
		return model.Branch{}, false
	}
	b, err := model.BranchFromRecord(rec)
	if err != nil {
		respondServiceError(w, err)
		return model.Branch{}, false
	}
	return b, true
}
