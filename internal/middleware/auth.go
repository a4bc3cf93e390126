package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/storehub/server/internal/auth"
	"github.com/storehub/server/internal/model"
	"github.com/storehub/server/internal/store"
)

type contextKey string

const identityKey contextKey = "identity"

// SessionResolver turns a bearer access token into a normalized Identity.
// The user row is re-fetched on every request filtered by is_active=true, so
// a deactivated account loses access immediately even with an unexpired token.
// Missing, invalid, expired, and deactivated all produce the same response.
func SessionResolver(tokens *auth.TokenService, st store.RecordStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			claims, err := tokens.Verify(tokenString, auth.TokenTypeAccess)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			userRec, err := st.SelectOne(r.Context(), model.TableUsers, store.Filters{
				"user_id":   claims.UserID,
				"is_active": true,
			})
			if err != nil || userRec == nil {
				respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			user, err := model.UserFromRecord(userRec)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			// The store is authoritative for the role: a promotion or demotion
			// since token issuance takes effect on the next request.
			identity := model.Identity{
				UserID:   user.UserID,
				BranchID: user.BranchID,
				Email:    user.Email,
				IsAdmin:  user.IsAdmin,
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireAdmin gates a route group to admin identities. Must run inside
// SessionResolver.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, ok := GetIdentity(r.Context())
		if !ok {
			respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		if !ident.IsAdmin {
			respondWithError(w, http.StatusForbidden, "administrative privileges are required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithIdentity attaches a resolved identity to the context. SessionResolver
// uses it on every request; handler tests use it to run without the resolver.
func WithIdentity(ctx context.Context, ident model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

// GetIdentity returns the identity attached by SessionResolver.
func GetIdentity(ctx context.Context) (model.Identity, bool) {
	ident, ok := ctx.Value(identityKey).(model.Identity)
	return ident, ok
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]string{"error": message}
	_ = json.NewEncoder(w).Encode(response)
}
