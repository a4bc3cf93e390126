package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/storehub/server/internal/model"
)

// Issuer tag embedded in every signed token.
const tokenIssuer = "store-management-system"

// Token type discriminators. Verify rejects a token whose type does not match
// the expected one, so a reset token can never be replayed as an access token.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
	TokenTypeReset   = "password_reset"
)

const inviteTokenLength = 32

const inviteAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Claims is the signed claims bundle for all three JWT kinds. IDs are always
// canonical strings regardless of the store's native representation.
type Claims struct {
	UserID    string `json:"user_id,omitempty"`
	Email     string `json:"email,omitempty"`
	BranchID  string `json:"branch_id,omitempty"`
	IsAdmin   bool   `json:"is_admin,omitempty"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// TokenService signs and validates access, refresh, and password-reset tokens
// with a symmetric secret, and mints opaque invite tokens.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
	now        func() time.Time
}

// NewTokenService creates a token service signing with the given secret.
func NewTokenService(secret string, accessTTL, refreshTTL, resetTTL time.Duration) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		resetTTL:   resetTTL,
		now:        time.Now,
	}
}

// IssueAccess creates a short-lived access token carrying the full session identity.
func (s *TokenService) IssueAccess(user model.User) (string, error) {
	now := s.now()
	claims := &Claims{
		UserID:    user.UserID,
		Email:     user.Email,
		BranchID:  user.BranchID,
		IsAdmin:   user.IsAdmin,
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	return s.sign(claims)
}

// IssueRefresh creates a long-lived refresh token carrying only the user ID.
func (s *TokenService) IssueRefresh(userID string) (string, error) {
	now := s.now()
	claims := &Claims{
		UserID:    userID,
		TokenType: TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
		},
	}
	return s.sign(claims)
}

// IssueReset creates a password-reset token scoped to the verified email.
// Its lifetime exceeds the OTP TTL since the OTP second factor is already spent.
func (s *TokenService) IssueReset(email string) (string, error) {
	now := s.now()
	claims := &Claims{
		Email:     email,
		TokenType: TokenTypeReset,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.resetTTL)),
		},
	}
	return s.sign(claims)
}

func (s *TokenService) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify validates signature, expiry, and the type discriminator. Expired,
// malformed, wrong-type, and bad-signature tokens are indistinguishable to the
// caller: all return ErrUnauthenticated.
func (s *TokenService) Verify(tokenString, expectedType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return nil, ErrUnauthenticated
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrUnauthenticated
	}
	if claims.TokenType != expectedType {
		return nil, ErrUnauthenticated
	}

	switch expectedType {
	case TokenTypeAccess:
		if claims.UserID == "" || claims.Email == "" || claims.BranchID == "" {
			return nil, ErrUnauthenticated
		}
	case TokenTypeRefresh:
		if claims.UserID == "" {
			return nil, ErrUnauthenticated
		}
	case TokenTypeReset:
		if claims.Email == "" {
			return nil, ErrUnauthenticated
		}
	}

	return claims, nil
}

// NewInviteToken returns a 32-character high-entropy alphanumeric string.
// It is not self-validating; redemption correctness lives entirely in the
// persisted invite record and its is_used flag.
func NewInviteToken() (string, error) {
	out := make([]byte, inviteTokenLength)
	max := big.NewInt(int64(len(inviteAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate invite token: %w", err)
		}
		out[i] = inviteAlphabet[n.Int64()]
	}
	return string(out), nil
}
