package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/storehub/server/internal/auth"
	httprouter "github.com/storehub/server/internal/http"
	"github.com/storehub/server/internal/http/handlers"
	"github.com/storehub/server/internal/mail"
	"github.com/storehub/server/internal/model"
	"github.com/storehub/server/internal/store"
	"github.com/stretchr/testify/require"
)

// TestServer is the fully wired application over the in-memory record store.
// Codes that would normally arrive by email are read straight from the store.
type TestServer struct {
	Server *httptest.Server
	Store  *store.Memory
	Tokens *auth.TokenService
}

func newTestServer(t *testing.T) *TestServer {
	t.Helper()

	st := store.NewMemory()
	tokens := auth.NewTokenService("e2e-test-secret", 30*time.Minute, 7*24*time.Hour, 2*time.Hour)
	engine := auth.NewOtpEngine(st, auth.OtpConfig{
		Length:      6,
		TTL:         10 * time.Minute,
		MaxAttempts: 3,
		Cooldown:    5 * time.Minute,
	})
	service := auth.NewService(st, engine, tokens, mail.LogMailer{}, "http://localhost:3000", 7*24*time.Hour, 10*time.Minute)

	h := httprouter.Handlers{
		Auth:      handlers.NewAuthHandler(service, st),
		Users:     handlers.NewUserHandler(st),
		Branches:  handlers.NewBranchHandler(st),
		Products:  handlers.NewProductHandler(st),
		Dashboard: handlers.NewDashboardHandler(st),
	}
	router := httprouter.NewRouter(h, tokens, st)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &TestServer{Server: srv, Store: st, Tokens: tokens}
}

func (ts *TestServer) BaseURL() string {
	return ts.Server.URL
}

// LiveOTP returns the code a user would have received for the pair.
func (ts *TestServer) LiveOTP(t *testing.T, email, purpose string) string {
	t.Helper()
	rec, err := ts.Store.SelectOne(context.Background(), model.TableOTP, store.Filters{
		"email": email, "purpose": purpose, "is_used": false, "is_expired": false,
	})
	require.NoError(t, err)
	require.NotNil(t, rec, "expected a live code for %s/%s", email, purpose)
	return rec.String("otp")
}

// postJSON sends a JSON body, optionally with a bearer token, and returns the
// response with its drained body.
func (ts *TestServer) postJSON(t *testing.T, path, token string, body any) (*http.Response, string) {
	t.Helper()
	return ts.doJSON(t, http.MethodPost, path, token, body)
}

func (ts *TestServer) doJSON(t *testing.T, method, path, token string, body any) (*http.Response, string) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.BaseURL()+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(raw)
}

func (ts *TestServer) getJSON(t *testing.T, path, token string) (*http.Response, string) {
	t.Helper()
	return ts.doJSON(t, http.MethodGet, path, token, nil)
}

func decodeInto(t *testing.T, raw string, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(raw), v), "body: %s", raw)
}
