package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/storehub/server/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService() (*TokenService, *time.Time) {
	svc := NewTokenService("test-secret", 30*time.Minute, 7*24*time.Hour, 2*time.Hour)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return svc, &now
}

func testUser() model.User {
	return model.User{
		UserID:   "user-1",
		BranchID: "branch-1",
		Email:    "admin@example.com",
		IsAdmin:  true,
	}
}

func TestAccessToken_roundTrip(t *testing.T) {
	svc, _ := newTestTokenService()

	token, err := svc.IssueAccess(testUser())
	require.NoError(t, err)

	claims, err := svc.Verify(token, TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "branch-1", claims.BranchID)
	assert.Equal(t, "admin@example.com", claims.Email)
	assert.True(t, claims.IsAdmin)
	assert.Equal(t, "store-management-system", claims.Issuer)
}

func TestRefreshToken_roundTrip(t *testing.T) {
	svc, _ := newTestTokenService()

	token, err := svc.IssueRefresh("user-1")
	require.NoError(t, err)

	claims, err := svc.Verify(token, TokenTypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Empty(t, claims.Email)
}

func TestResetToken_roundTrip(t *testing.T) {
	svc, _ := newTestTokenService()

	token, err := svc.IssueReset("admin@example.com")
	require.NoError(t, err)

	claims, err := svc.Verify(token, TokenTypeReset)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", claims.Email)
}

func TestVerify_rejectsWrongType(t *testing.T) {
	svc, _ := newTestTokenService()

	refresh, err := svc.IssueRefresh("user-1")
	require.NoError(t, err)
	reset, err := svc.IssueReset("admin@example.com")
	require.NoError(t, err)

	// A refresh token is not an access token, and a reset token is neither.
	_, err = svc.Verify(refresh, TokenTypeAccess)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = svc.Verify(reset, TokenTypeAccess)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = svc.Verify(reset, TokenTypeRefresh)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestVerify_rejectsExpired(t *testing.T) {
	svc, now := newTestTokenService()

	token, err := svc.IssueAccess(testUser())
	require.NoError(t, err)

	*now = now.Add(31 * time.Minute)
	_, err = svc.Verify(token, TokenTypeAccess)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestVerify_rejectsTampering(t *testing.T) {
	svc, _ := newTestTokenService()

	token, err := svc.IssueAccess(testUser())
	require.NoError(t, err)

	// Signed by a different secret.
	other := NewTokenService("other-secret", 30*time.Minute, 7*24*time.Hour, 2*time.Hour)
	_, err = other.Verify(token, TokenTypeAccess)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// Altered payload with the original signature.
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	mangled := parts[0] + "." + parts[1] + "AA." + parts[2]
	_, err = svc.Verify(mangled, TokenTypeAccess)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Verify("not-a-jwt", TokenTypeAccess)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestNewInviteToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		token, err := NewInviteToken()
		require.NoError(t, err)
		assert.Len(t, token, 32)
		for _, c := range token {
			assert.True(t, strings.ContainsRune(inviteAlphabet, c), "unexpected character %q", c)
		}
		assert.False(t, seen[token], "invite tokens must not repeat")
		seen[token] = true
	}
}
