package handlers

import (
	"net/http"

	"github.com/storehub/server/internal/middleware"
	"github.com/storehub/server/internal/model"
	"github.com/storehub/server/internal/store"
)

// DashboardHandler serves the branch summary view.
type DashboardHandler struct {
	store store.RecordStore
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(st store.RecordStore) *DashboardHandler {
	return &DashboardHandler{store: st}
}

// HandleSummary handles GET /dashboard/summary
func (h *DashboardHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.GetIdentity(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	branchRec, err := h.store.SelectOne(r.Context(), model.TableBranches, store.Filters{
		"branch_id": ident.BranchID,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if branchRec == nil {
		respondWithError(w, http.StatusNotFound, "branch not found")
		return
	}
	branch, err := model.BranchFromRecord(branchRec)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	users, err := h.store.SelectAll(r.Context(), model.TableUsers, store.Filters{
		"branch_id": ident.BranchID,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	products, err := h.store.SelectAll(r.Context(), model.TableProducts, store.Filters{
		"branch_id": ident.BranchID,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	pendingInvites, err := h.store.SelectAll(r.Context(), model.TableInvites, store.Filters{
		"branch_id": ident.BranchID,
		"is_used":   false,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	activeProducts := 0
	for _, rec := range products {
		if rec.Bool("is_active") {
			activeProducts++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"branch":           toBranchResponse(branch),
		"total_users":      len(users),
		"total_products":   len(products),
		"active_products":  activeProducts,
		"pending_invites":  len(pendingInvites),
		"can_manage_users": ident.IsAdmin,
	})
}
