package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/storehub/server/internal/model"
	"github.com/storehub/server/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEmail = "otp@example.com"

// newTestEngine returns an engine over a fresh memory store with a controllable
// clock. Advance the clock by reassigning *now.
func newTestEngine(t *testing.T) (*OtpEngine, *store.Memory, *time.Time) {
	t.Helper()
	st := store.NewMemory()
	engine := NewOtpEngine(st, OtpConfig{
		Length:      6,
		TTL:         10 * time.Minute,
		MaxAttempts: 3,
		Cooldown:    5 * time.Minute,
	})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }
	return engine, st, &now
}

func TestGenerate_mintsCode(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	ctx := context.Background()

	code, err := engine.Generate(ctx, testEmail, model.PurposeVerification)
	require.NoError(t, err)
	assert.Len(t, code, 6)
	for _, c := range code {
		assert.True(t, c >= '0' && c <= '9', "code must be numeric, got %q", code)
	}

	rec, err := st.SelectOne(ctx, model.TableOTP, store.Filters{"email": testEmail})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, code, rec.String("otp"))
	assert.Equal(t, 0, rec.Int("attempts"))
	assert.False(t, rec.Bool("is_used"))
}

func TestGenerate_normalizesEmail(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	code1, err := engine.Generate(ctx, "  User@Example.COM ", model.PurposeVerification)
	require.NoError(t, err)
	code2, err := engine.Generate(ctx, "user@example.com", model.PurposeVerification)
	require.NoError(t, err)
	assert.Equal(t, code1, code2, "casing variants must address the same record")
}

func TestGenerate_reusesFreshCode(t *testing.T) {
	engine, _, now := newTestEngine(t)
	ctx := context.Background()

	code1, err := engine.Generate(ctx, testEmail, model.PurposeVerification)
	require.NoError(t, err)

	// Well inside the TTL the same code comes back.
	*now = now.Add(3 * time.Minute)
	code2, err := engine.Generate(ctx, testEmail, model.PurposeVerification)
	require.NoError(t, err)
	assert.Equal(t, code1, code2)
}

func TestGenerate_supersedesNearExpiry(t *testing.T) {
	engine, st, now := newTestEngine(t)
	ctx := context.Background()

	code1, err := engine.Generate(ctx, testEmail, model.PurposeVerification)
	require.NoError(t, err)

	// Less than the reuse threshold of lifetime left: a new code is minted.
	*now = now.Add(9 * time.Minute)
	code2, err := engine.Generate(ctx, testEmail, model.PurposeVerification)
	require.NoError(t, err)
	assert.NotEqual(t, code1, code2)

	// The old record is tombstoned, not deleted.
	recs, err := st.SelectAll(ctx, model.TableOTP, store.Filters{"email": testEmail})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	live, err := st.SelectAll(ctx, model.TableOTP, store.Filters{
		"email": testEmail, "is_expired": false,
	})
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, code2, live[0].String("otp"))
}

func TestGenerate_rejectsBadInput(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Generate(ctx, "", model.PurposeVerification)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "email", verr.Field)

	_, err = engine.Generate(ctx, testEmail, "something_else")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "purpose", verr.Field)
}

func TestVerify_consumesCodeOnce(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	ctx := context.Background()

	code, err := engine.Generate(ctx, testEmail, model.PurposeVerification)
	require.NoError(t, err)

	res, err := engine.Verify(ctx, testEmail, code, model.PurposeVerification)
	require.NoError(t, err)
	assert.True(t, res.Success)

	rec, err := st.SelectOne(ctx, model.TableOTP, store.Filters{"email": testEmail})
	require.NoError(t, err)
	assert.True(t, rec.Bool("is_used"))
	_, hasUsedAt := rec.Time("used_at")
	assert.True(t, hasUsedAt, "used_at must be stamped on consumption")

	// Replay of the same code fails.
	res, err = engine.Verify(ctx, testEmail, code, model.PurposeVerification)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "No valid verification code found.", res.Message)
}

func TestVerify_wrongCodeCountsDown(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	code, err := engine.Generate(ctx, testEmail, model.PurposeVerification)
	require.NoError(t, err)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for i, want := range []int{2, 1, 0} {
		res, err := engine.Verify(ctx, testEmail, wrong, model.PurposeVerification)
		require.NoError(t, err)
		assert.False(t, res.Success, "attempt %d", i+1)
		require.NotNil(t, res.AttemptsRemaining, "attempt %d", i+1)
		assert.Equal(t, want, *res.AttemptsRemaining, "attempt %d", i+1)
	}

	// The attempt beyond the limit locks the record.
	res, err := engine.Verify(ctx, testEmail, wrong, model.PurposeVerification)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Nil(t, res.AttemptsRemaining)
	require.NotNil(t, res.CooldownUntil)

	// The right code no longer works while locked.
	res, err = engine.Verify(ctx, testEmail, code, model.PurposeVerification)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.NotNil(t, res.CooldownUntil)
}

func TestGenerate_blockedDuringCooldown(t *testing.T) {
	engine, _, now := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Generate(ctx, testEmail, model.PurposeVerification)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := engine.Verify(ctx, testEmail, "badbad", model.PurposeVerification)
		require.NoError(t, err)
	}

	// A locked record is never reused, so generation hits the cooldown scan.
	_, err = engine.Generate(ctx, testEmail, model.PurposeVerification)
	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.True(t, rl.RetryAfter > 0)

	// Once the cooldown elapses, a fresh code can be issued again.
	*now = now.Add(6 * time.Minute)
	code, err := engine.Generate(ctx, testEmail, model.PurposeVerification)
	require.NoError(t, err)
	assert.NotEmpty(t, code)
}

func TestVerify_expiryDoesNotConsumeAttempt(t *testing.T) {
	engine, st, now := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Generate(ctx, testEmail, model.PurposeVerification)
	require.NoError(t, err)

	*now = now.Add(11 * time.Minute)
	res, err := engine.Verify(ctx, testEmail, "123456", model.PurposeVerification)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Verification code has expired.", res.Message)

	rec, err := st.SelectOne(ctx, model.TableOTP, store.Filters{"email": testEmail})
	require.NoError(t, err)
	assert.True(t, rec.Bool("is_expired"))
	assert.Equal(t, 0, rec.Int("attempts"), "expiry must not burn an attempt")
}

func TestVerify_purposesAreIsolated(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	verifyCode, err := engine.Generate(ctx, testEmail, model.PurposeVerification)
	require.NoError(t, err)
	resetCode, err := engine.Generate(ctx, testEmail, model.PurposePasswordReset)
	require.NoError(t, err)

	// A reset code is useless against the verification purpose.
	res, err := engine.Verify(ctx, testEmail, resetCode, model.PurposeVerification)
	require.NoError(t, err)
	if verifyCode != resetCode {
		assert.False(t, res.Success)
	}

	res, err = engine.Verify(ctx, testEmail, resetCode, model.PurposePasswordReset)
	require.NoError(t, err)
	assert.True(t, res.Success)

	// Consuming the reset code leaves the verification code live.
	res, err = engine.Verify(ctx, testEmail, verifyCode, model.PurposeVerification)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestVerify_missingRecord(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	res, err := engine.Verify(context.Background(), "nobody@example.com", "123456", model.PurposeVerification)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "No valid verification code found.", res.Message)
}

func TestGenerate_singleLiveRecordUnderConcurrency(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	ctx := context.Background()

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := engine.Generate(ctx, testEmail, model.PurposeVerification)
			done <- err
		}()
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-done)
	}

	live, err := st.SelectAll(ctx, model.TableOTP, store.Filters{
		"email": testEmail, "is_used": false, "is_expired": false,
	})
	require.NoError(t, err)
	assert.Len(t, live, 1, "concurrent generation must leave a single live record")
}

// lockBoundStore fails every direct store call but hands the real store to
// WithLock callbacks. Postgres binds the critical section to the lock's own
// transaction; code that reaches around the lock-scoped handle would exhaust
// the pool there, so any such call must fail here too.
type lockBoundStore struct {
	inner *store.Memory
}

func (s *lockBoundStore) Insert(ctx context.Context, table string, fields store.Record) (store.Record, error) {
	return nil, errors.New("store call outside lock scope")
}

func (s *lockBoundStore) SelectOne(ctx context.Context, table string, filters store.Filters) (store.Record, error) {
	return nil, errors.New("store call outside lock scope")
}

func (s *lockBoundStore) SelectAll(ctx context.Context, table string, filters store.Filters) ([]store.Record, error) {
	return nil, errors.New("store call outside lock scope")
}

func (s *lockBoundStore) Update(ctx context.Context, table string, filters store.Filters, patch store.Record) (store.Record, error) {
	return nil, errors.New("store call outside lock scope")
}

func (s *lockBoundStore) Delete(ctx context.Context, table string, filters store.Filters) (bool, error) {
	return false, errors.New("store call outside lock scope")
}

func (s *lockBoundStore) WithLock(ctx context.Context, key string, fn func(ctx context.Context, st store.RecordStore) error) error {
	return s.inner.WithLock(ctx, key, fn)
}

func TestGenerate_runsOnLockScopedStore(t *testing.T) {
	mem := store.NewMemory()
	engine := NewOtpEngine(&lockBoundStore{inner: mem}, OtpConfig{
		Length:      6,
		TTL:         10 * time.Minute,
		MaxAttempts: 3,
		Cooldown:    5 * time.Minute,
	})
	ctx := context.Background()

	code, err := engine.Generate(ctx, testEmail, model.PurposeVerification)
	require.NoError(t, err, "every guarded store call must flow through the lock-provided handle")
	require.Len(t, code, 6)

	rec, err := mem.SelectOne(ctx, model.TableOTP, store.Filters{"email": testEmail})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, code, rec.String("otp"))
}
