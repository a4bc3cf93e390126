package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/storehub/server/internal/middleware"
	"github.com/storehub/server/internal/model"
	"github.com/storehub/server/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// identityInjector stamps a fixed identity on every request, standing in for
// the session resolver in handler-level tests.
func identityInjector(ident model.Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithIdentity(r.Context(), ident)))
		})
	}
}

func seedUser(t *testing.T, st store.RecordStore, branchID string, isAdmin bool) model.Identity {
	t.Helper()
	userID := uuid.NewString()
	_, err := st.Insert(context.Background(), model.TableUsers, store.Record{
		"user_id":       userID,
		"branch_id":     branchID,
		"name":          "Staff Member",
		"email":         userID + "@example.com",
		"password_hash": "x",
		"is_admin":      isAdmin,
		"is_active":     true,
		"is_verified":   true,
		"created_at":    time.Now(),
	})
	require.NoError(t, err)
	return model.Identity{UserID: userID, BranchID: branchID, IsAdmin: isAdmin}
}

func TestHandleUpdateProfile_updatesName(t *testing.T) {
	st := store.NewMemory()
	ident := seedUser(t, st, uuid.NewString(), false)
	h := NewUserHandler(st)

	r := chi.NewRouter()
	r.Use(identityInjector(ident))
	r.Put("/users/profile", h.HandleUpdateProfile)

	req := httptest.NewRequest(http.MethodPut, "/users/profile", strings.NewReader(`{"name":"Renamed"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Renamed"`)
}

func TestHandleUpdateProfile_accountRowGone(t *testing.T) {
	st := store.NewMemory()
	// Identity references a user that no longer exists in the store.
	ident := model.Identity{UserID: uuid.NewString(), BranchID: uuid.NewString()}
	h := NewUserHandler(st)

	r := chi.NewRouter()
	r.Use(identityInjector(ident))
	r.Put("/users/profile", h.HandleUpdateProfile)

	req := httptest.NewRequest(http.MethodPut, "/users/profile", strings.NewReader(`{"name":"Ghost"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid or expired token")
}

// missAfterReadStore lets reads through but reports every update as matching
// nothing, the shape a concurrent delete between the read and the write takes.
type missAfterReadStore struct {
	store.RecordStore
}

func (s *missAfterReadStore) Update(ctx context.Context, table string, filters store.Filters, patch store.Record) (store.Record, error) {
	return nil, nil
}

func TestHandleToggleActive_targetDeletedConcurrently(t *testing.T) {
	mem := store.NewMemory()
	branchID := uuid.NewString()
	admin := seedUser(t, mem, branchID, true)
	target := seedUser(t, mem, branchID, false)

	h := NewUserHandler(&missAfterReadStore{RecordStore: mem})
	r := chi.NewRouter()
	r.Use(identityInjector(admin))
	r.Put("/users/{userID}/toggle-active", h.HandleToggleActive)

	req := httptest.NewRequest(http.MethodPut, "/users/"+target.UserID+"/toggle-active", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "user not found")
}

func TestHandleMakeAdmin_targetDeletedConcurrently(t *testing.T) {
	mem := store.NewMemory()
	branchID := uuid.NewString()
	admin := seedUser(t, mem, branchID, true)
	target := seedUser(t, mem, branchID, false)

	h := NewUserHandler(&missAfterReadStore{RecordStore: mem})
	r := chi.NewRouter()
	r.Use(identityInjector(admin))
	r.Put("/users/{userID}/make-admin", h.HandleMakeAdmin)

	req := httptest.NewRequest(http.MethodPut, "/users/"+target.UserID+"/make-admin", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "user not found")
}
