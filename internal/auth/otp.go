package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/storehub/server/internal/model"
	"github.com/storehub/server/internal/store"
)

// reuseThreshold is the remaining lifetime below which an existing code is
// superseded instead of reused. Rapid repeated requests (a double-clicked
// "resend") inside this window get the identical code back.
const reuseThreshold = 2 * time.Minute

// OtpConfig carries the engine's policy knobs.
type OtpConfig struct {
	Length      int
	TTL         time.Duration
	MaxAttempts int
	Cooldown    time.Duration
}

// OtpEngine issues and validates short numeric codes bound to an
// (email, purpose) pair. All state lives in the record store; every call
// re-reads persisted state so multiple instances stay correct.
type OtpEngine struct {
	store store.RecordStore
	cfg   OtpConfig
	now   func() time.Time
}

// NewOtpEngine creates an OTP engine over the given record store.
func NewOtpEngine(st store.RecordStore, cfg OtpConfig) *OtpEngine {
	return &OtpEngine{store: st, cfg: cfg, now: time.Now}
}

// VerifyResult is the typed outcome of a Verify call. Expected failures
// (wrong code, expired, locked) land here, not in the error return.
type VerifyResult struct {
	Success bool
	Message string
	// AttemptsRemaining is set only on a wrong-code failure; zero means the
	// next wrong attempt locks the record.
	AttemptsRemaining *int
	// CooldownUntil is set when the record is locked out.
	CooldownUntil *time.Time
}

// NormalizeEmail lowercases and trims an email address to its logical-key form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Generate returns a live code for (email, purpose), minting a new one unless
// a reusable record exists. The caller delivers the code out of band.
//
// Concurrent calls for the same pair are serialized through the store lock;
// without it two racing read-then-insert sequences could leave two live rows.
func (e *OtpEngine) Generate(ctx context.Context, email, purpose string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return "", invalidField("email", "must not be empty")
	}
	if !model.ValidPurpose(purpose) {
		return "", invalidField("purpose", fmt.Sprintf("unknown purpose %q", purpose))
	}

	var code string
	err := e.store.WithLock(ctx, "otp:"+email+":"+purpose, func(ctx context.Context, st store.RecordStore) error {
		now := e.now()

		live, err := e.liveRecord(ctx, st, email, purpose)
		if err != nil {
			return err
		}
		if live != nil && !live.IsLocked {
			if live.ExpiresAt.Sub(now) > reuseThreshold {
				code = live.Code
				return nil
			}
			// Near expiry: tombstone it and fall through to mint a fresh one.
			if _, err := st.Update(ctx, model.TableOTP,
				store.Filters{"otp_id": live.OtpID},
				store.Record{"is_expired": true},
			); err != nil {
				return fmt.Errorf("expire stale code: %w", err)
			}
		}

		if err := e.checkCooldown(ctx, st, email, now); err != nil {
			return err
		}

		// Single-live-record policy, scoped per (email, purpose): supersede
		// any other unused, unexpired codes for this pair before inserting.
		if _, err := st.Update(ctx, model.TableOTP,
			store.Filters{"email": email, "purpose": purpose, "is_used": false, "is_expired": false},
			store.Record{"is_expired": true},
		); err != nil {
			return fmt.Errorf("supersede old codes: %w", err)
		}

		fresh, err := e.newCode()
		if err != nil {
			return err
		}

		rec := store.Record{
			"otp_id":       uuid.NewString(),
			"email":        email,
			"otp":          fresh,
			"purpose":      purpose,
			"attempts":     0,
			"is_used":      false,
			"is_expired":   false,
			"is_locked":    false,
			"used_at":      nil,
			"locked_until": nil,
			"expires_at":   now.Add(e.cfg.TTL),
			"created_at":   now,
		}
		if _, err := st.Insert(ctx, model.TableOTP, rec); err != nil {
			return fmt.Errorf("persist code: %w", err)
		}
		code = fresh
		return nil
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// Verify checks a submitted code against the live record for (email, purpose).
// The attempt increment is persisted before the comparison, so a crash mid-check
// still counts the attempt. The error return is reserved for store faults.
func (e *OtpEngine) Verify(ctx context.Context, email, code, purpose string) (VerifyResult, error) {
	email = NormalizeEmail(email)
	now := e.now()

	rec, err := e.liveRecord(ctx, e.store, email, purpose)
	if err != nil {
		return VerifyResult{}, err
	}
	if rec == nil {
		return VerifyResult{Success: false, Message: "No valid verification code found."}, nil
	}

	if rec.IsLocked {
		return VerifyResult{
			Success:       false,
			Message:       "Too many failed attempts. Try again later.",
			CooldownUntil: rec.LockedUntil,
		}, nil
	}

	// Expiry short-circuits before an attempt is consumed.
	if now.After(rec.ExpiresAt) {
		if _, err := e.store.Update(ctx, model.TableOTP,
			store.Filters{"otp_id": rec.OtpID},
			store.Record{"is_expired": true},
		); err != nil {
			return VerifyResult{}, fmt.Errorf("expire code: %w", err)
		}
		return VerifyResult{Success: false, Message: "Verification code has expired."}, nil
	}

	attempts := rec.Attempts + 1
	if _, err := e.store.Update(ctx, model.TableOTP,
		store.Filters{"otp_id": rec.OtpID},
		store.Record{"attempts": attempts},
	); err != nil {
		return VerifyResult{}, fmt.Errorf("record attempt: %w", err)
	}

	if attempts > e.cfg.MaxAttempts {
		lockedUntil := now.Add(e.cfg.Cooldown)
		if _, err := e.store.Update(ctx, model.TableOTP,
			store.Filters{"otp_id": rec.OtpID},
			store.Record{"is_locked": true, "locked_until": lockedUntil},
		); err != nil {
			return VerifyResult{}, fmt.Errorf("lock code: %w", err)
		}
		return VerifyResult{
			Success:       false,
			Message:       "Too many failed attempts. Try again later.",
			CooldownUntil: &lockedUntil,
		}, nil
	}

	if rec.Code != code {
		remaining := e.cfg.MaxAttempts - attempts
		return VerifyResult{
			Success:           false,
			Message:           fmt.Sprintf("Invalid code. %d attempts left.", remaining),
			AttemptsRemaining: &remaining,
		}, nil
	}

	if _, err := e.store.Update(ctx, model.TableOTP,
		store.Filters{"otp_id": rec.OtpID},
		store.Record{"is_used": true, "used_at": now},
	); err != nil {
		return VerifyResult{}, fmt.Errorf("consume code: %w", err)
	}
	return VerifyResult{Success: true, Message: "Verification successful."}, nil
}

// liveRecord returns the current live (unused, unexpired) record for the pair,
// newest first. The store contract has no ordering, so concurrent leftovers
// are disambiguated client-side by created_at.
func (e *OtpEngine) liveRecord(ctx context.Context, st store.RecordStore, email, purpose string) (*model.OtpRecord, error) {
	recs, err := st.SelectAll(ctx, model.TableOTP, store.Filters{
		"email":      email,
		"purpose":    purpose,
		"is_used":    false,
		"is_expired": false,
	})
	if err != nil {
		return nil, fmt.Errorf("lookup live code: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}

	parsed := make([]model.OtpRecord, 0, len(recs))
	for _, r := range recs {
		rec, err := model.OtpFromRecord(r)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, rec)
	}
	sort.Slice(parsed, func(i, j int) bool {
		return parsed[i].CreatedAt.After(parsed[j].CreatedAt)
	})
	return &parsed[0], nil
}

// checkCooldown fails with RateLimitedError while a lockout for this email is
// still in force. The scan is email-wide: a lockout earned on one purpose
// blocks fresh codes for every purpose until it elapses.
func (e *OtpEngine) checkCooldown(ctx context.Context, st store.RecordStore, email string, now time.Time) error {
	recs, err := st.SelectAll(ctx, model.TableOTP, store.Filters{
		"email":     email,
		"is_locked": true,
	})
	if err != nil {
		return fmt.Errorf("cooldown check: %w", err)
	}
	for _, r := range recs {
		rec, err := model.OtpFromRecord(r)
		if err != nil {
			return err
		}
		if rec.LockedUntil != nil && now.Before(*rec.LockedUntil) {
			return &RateLimitedError{RetryAfter: rec.LockedUntil.Sub(now)}
		}
	}
	return nil
}

// newCode mints a fixed-length numeric code from a cryptographically secure
// random source.
func (e *OtpEngine) newCode() (string, error) {
	digits := make([]byte, e.cfg.Length)
	ten := big.NewInt(10)
	for i := range digits {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
