package auth

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/storehub/server/internal/mail"
	"github.com/storehub/server/internal/model"
	"github.com/storehub/server/internal/store"
)

// Service orchestrates signup, login, invitations, password recovery, and the
// OTP endpoints. All collaborators are injected; the service holds no mutable
// state of its own.
type Service struct {
	store       store.RecordStore
	otp         *OtpEngine
	tokens      *TokenService
	mailer      mail.Mailer
	frontendURL string
	inviteTTL   time.Duration
	otpTTL      time.Duration
	now         func() time.Time
}

// NewService creates the auth flow orchestrator.
func NewService(
	st store.RecordStore,
	otp *OtpEngine,
	tokens *TokenService,
	mailer mail.Mailer,
	frontendURL string,
	inviteTTL time.Duration,
	otpTTL time.Duration,
) *Service {
	return &Service{
		store:       st,
		otp:         otp,
		tokens:      tokens,
		mailer:      mailer,
		frontendURL: frontendURL,
		inviteTTL:   inviteTTL,
		otpTTL:      otpTTL,
		now:         time.Now,
	}
}

// AuthResult bundles the outcome of an operation that may establish a session.
type AuthResult struct {
	AccessToken          string
	RefreshToken         string
	User                 model.User
	RequiresVerification bool
}

// FirstSignupParams is the input for the initial admin signup.
type FirstSignupParams struct {
	Name         string
	Email        string
	Password     string
	StoreName    string
	StoreAddress string
	City         string
}

// FirstSignup creates a branch and its first admin user. The account starts
// unverified; a verification OTP is dispatched and no tokens are issued until
// the OTP is confirmed.
func (s *Service) FirstSignup(ctx context.Context, p FirstSignupParams) (AuthResult, error) {
	p.Email = NormalizeEmail(p.Email)
	if err := validateSignupFields(p.Name, p.Email, p.Password); err != nil {
		return AuthResult{}, err
	}
	if p.StoreName == "" {
		return AuthResult{}, invalidField("store_name", "must not be empty")
	}

	existing, err := s.store.SelectOne(ctx, model.TableUsers, store.Filters{"email": p.Email})
	if err != nil {
		return AuthResult{}, fmt.Errorf("lookup email: %w", err)
	}
	if existing != nil {
		return AuthResult{}, ErrEmailTaken
	}

	hash, err := HashPassword(p.Password)
	if err != nil {
		return AuthResult{}, err
	}

	now := s.now()
	branchRec, err := s.store.Insert(ctx, model.TableBranches, store.Record{
		"branch_id":   uuid.NewString(),
		"branch_name": p.StoreName,
		"address":     p.StoreAddress,
		"city":        p.City,
		"created_at":  now,
	})
	if err != nil {
		return AuthResult{}, fmt.Errorf("create branch: %w", err)
	}
	branch, err := model.BranchFromRecord(branchRec)
	if err != nil {
		return AuthResult{}, err
	}

	// First user of a branch is always its admin.
	userRec, err := s.store.Insert(ctx, model.TableUsers, store.Record{
		"user_id":       uuid.NewString(),
		"branch_id":     branch.BranchID,
		"name":          p.Name,
		"email":         p.Email,
		"password_hash": hash,
		"is_admin":      true,
		"is_active":     true,
		"is_verified":   false,
		"created_at":    now,
	})
	if err != nil {
		return AuthResult{}, fmt.Errorf("create admin user: %w", err)
	}
	user, err := model.UserFromRecord(userRec)
	if err != nil {
		return AuthResult{}, err
	}

	code, err := s.otp.Generate(ctx, p.Email, model.PurposeVerification)
	if err != nil {
		return AuthResult{}, err
	}
	s.deliverOTP(p.Email, code, model.PurposeVerification)

	return AuthResult{User: user, RequiresVerification: true}, nil
}

// InviteSignupParams is the input for an invited staff signup.
type InviteSignupParams struct {
	Token    string
	Name     string
	Password string
}

// InviteSignup redeems an invite and creates the invited user in one flow.
// Redemption is a conditional update on is_used=false, so two concurrent
// signups against the same invite succeed exactly once.
func (s *Service) InviteSignup(ctx context.Context, p InviteSignupParams) (AuthResult, error) {
	if p.Token == "" {
		return AuthResult{}, invalidField("token", "must not be empty")
	}

	inviteRec, err := s.store.SelectOne(ctx, model.TableInvites, store.Filters{
		"token":   p.Token,
		"is_used": false,
	})
	if err != nil {
		return AuthResult{}, fmt.Errorf("lookup invite: %w", err)
	}
	if inviteRec == nil {
		return AuthResult{}, ErrInviteInvalid
	}
	invite, err := model.InviteFromRecord(inviteRec)
	if err != nil {
		return AuthResult{}, err
	}
	if s.now().After(invite.ExpiresAt) {
		return AuthResult{}, ErrInviteExpired
	}
	if err := validateSignupFields(p.Name, invite.Email, p.Password); err != nil {
		return AuthResult{}, err
	}

	existing, err := s.store.SelectOne(ctx, model.TableUsers, store.Filters{"email": invite.Email})
	if err != nil {
		return AuthResult{}, fmt.Errorf("lookup email: %w", err)
	}
	if existing != nil {
		return AuthResult{}, ErrEmailTaken
	}

	// Claim the invite before creating the user; a nil result means a
	// concurrent signup already consumed it.
	claimed, err := s.store.Update(ctx, model.TableInvites,
		store.Filters{"invite_id": invite.InviteID, "is_used": false},
		store.Record{"is_used": true},
	)
	if err != nil {
		return AuthResult{}, fmt.Errorf("redeem invite: %w", err)
	}
	if claimed == nil {
		return AuthResult{}, ErrInviteInvalid
	}

	hash, err := HashPassword(p.Password)
	if err != nil {
		return AuthResult{}, err
	}

	// Invited users are verified by construction: the invite proved email control.
	userRec, err := s.store.Insert(ctx, model.TableUsers, store.Record{
		"user_id":       uuid.NewString(),
		"branch_id":     invite.BranchID,
		"name":          p.Name,
		"email":         invite.Email,
		"password_hash": hash,
		"is_admin":      false,
		"is_active":     true,
		"is_verified":   true,
		"created_at":    s.now(),
	})
	if err != nil {
		return AuthResult{}, fmt.Errorf("create invited user: %w", err)
	}
	user, err := model.UserFromRecord(userRec)
	if err != nil {
		return AuthResult{}, err
	}

	return s.sessionFor(user)
}

// Login authenticates by email and password. Unknown email and wrong password
// are indistinguishable; unverified accounts are rejected with a distinct
// condition so the client can route to the OTP flow.
func (s *Service) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email = NormalizeEmail(email)

	userRec, err := s.store.SelectOne(ctx, model.TableUsers, store.Filters{
		"email":     email,
		"is_active": true,
	})
	if err != nil {
		return AuthResult{}, fmt.Errorf("lookup user: %w", err)
	}
	if userRec == nil {
		return AuthResult{}, ErrInvalidCredentials
	}
	user, err := model.UserFromRecord(userRec)
	if err != nil {
		return AuthResult{}, err
	}
	if !VerifyPassword(password, user.PasswordHash) {
		return AuthResult{}, ErrInvalidCredentials
	}
	if !user.IsVerified {
		return AuthResult{}, ErrVerificationRequired
	}

	return s.sessionFor(user)
}

// Refresh exchanges a valid refresh token for a fresh token pair. The user is
// re-read from the store so a deactivated account cannot renew its session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	claims, err := s.tokens.Verify(refreshToken, TokenTypeRefresh)
	if err != nil {
		return AuthResult{}, ErrUnauthenticated
	}

	userRec, err := s.store.SelectOne(ctx, model.TableUsers, store.Filters{
		"user_id":   claims.UserID,
		"is_active": true,
	})
	if err != nil {
		return AuthResult{}, fmt.Errorf("lookup user: %w", err)
	}
	if userRec == nil {
		return AuthResult{}, ErrUnauthenticated
	}
	user, err := model.UserFromRecord(userRec)
	if err != nil {
		return AuthResult{}, err
	}

	return s.sessionFor(user)
}

// SendInvite creates a single-use invite bound to the admin's branch and
// dispatches the invitation link. Returns the link for the API response.
func (s *Service) SendInvite(ctx context.Context, ident model.Identity, email string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return "", invalidField("email", "must not be empty")
	}

	token, err := NewInviteToken()
	if err != nil {
		return "", err
	}

	now := s.now()
	_, err = s.store.Insert(ctx, model.TableInvites, store.Record{
		"invite_id":  uuid.NewString(),
		"email":      email,
		"token":      token,
		"branch_id":  ident.BranchID,
		"invited_by": ident.UserID,
		"expires_at": now.Add(s.inviteTTL),
		"is_used":    false,
		"created_at": now,
	})
	if err != nil {
		return "", fmt.Errorf("create invite: %w", err)
	}

	inviteURL := fmt.Sprintf("%s/signup-invite?token=%s", s.frontendURL, token)
	go func() {
		if !s.mailer.Send(email, mail.SubjectInvite, mail.InviteBody(inviteURL)) {
			log.Printf("auth: invite mail to %s not delivered", mail.MaskEmail(email))
		}
	}()
	return inviteURL, nil
}

// ForgotPassword starts the reset flow. The response is identical whether or
// not the email is registered, so the endpoint cannot be used for discovery.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = NormalizeEmail(email)

	userRec, err := s.store.SelectOne(ctx, model.TableUsers, store.Filters{
		"email":     email,
		"is_active": true,
	})
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if userRec == nil {
		log.Printf("auth: password reset requested for unknown email %s", mail.MaskEmail(email))
		return nil
	}

	code, err := s.otp.Generate(ctx, email, model.PurposePasswordReset)
	if err != nil {
		return err
	}
	s.deliverOTP(email, code, model.PurposePasswordReset)
	return nil
}

// ResetPassword rehashes the password for the email proven by the reset token.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	claims, err := s.tokens.Verify(resetToken, TokenTypeReset)
	if err != nil {
		return ErrResetInvalid
	}
	if len(newPassword) < 8 {
		return invalidField("new_password", "must be at least 8 characters")
	}

	userRec, err := s.store.SelectOne(ctx, model.TableUsers, store.Filters{"email": claims.Email})
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if userRec == nil {
		return ErrUserNotFound
	}
	user, err := model.UserFromRecord(userRec)
	if err != nil {
		return err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if _, err := s.store.Update(ctx, model.TableUsers,
		store.Filters{"user_id": user.UserID},
		store.Record{"password_hash": hash},
	); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// SendOTP generates (or reuses) a code for the pair and dispatches it.
func (s *Service) SendOTP(ctx context.Context, email, purpose string) error {
	code, err := s.otp.Generate(ctx, email, purpose)
	if err != nil {
		return err
	}
	s.deliverOTP(NormalizeEmail(email), code, purpose)
	return nil
}

// VerifyOTPOutcome is the result of a VerifyOTP call. User is set after a
// successful account verification; ResetToken after a successful
// password-reset verification.
type VerifyOTPOutcome struct {
	Result     VerifyResult
	User       *model.User
	ResetToken string
}

// VerifyOTP validates the code and applies the purpose's side effect:
// verification flips the account to verified, password_reset mints the
// reset token that gates the actual password change.
func (s *Service) VerifyOTP(ctx context.Context, email, code, purpose string) (VerifyOTPOutcome, error) {
	if !model.ValidPurpose(purpose) {
		return VerifyOTPOutcome{}, invalidField("purpose", fmt.Sprintf("unknown purpose %q", purpose))
	}
	email = NormalizeEmail(email)

	result, err := s.otp.Verify(ctx, email, code, purpose)
	if err != nil {
		return VerifyOTPOutcome{}, err
	}
	outcome := VerifyOTPOutcome{Result: result}
	if !result.Success {
		return outcome, nil
	}

	switch purpose {
	case model.PurposeVerification:
		updated, err := s.store.Update(ctx, model.TableUsers,
			store.Filters{"email": email},
			store.Record{"is_verified": true},
		)
		if err != nil {
			return VerifyOTPOutcome{}, fmt.Errorf("mark verified: %w", err)
		}
		if updated != nil {
			user, err := model.UserFromRecord(updated)
			if err != nil {
				return VerifyOTPOutcome{}, err
			}
			outcome.User = &user
		}
		outcome.Result.Message = "Account verified successfully."
	case model.PurposePasswordReset:
		token, err := s.tokens.IssueReset(email)
		if err != nil {
			return VerifyOTPOutcome{}, err
		}
		outcome.ResetToken = token
		outcome.Result.Message = "Code verified. Set your new password."
	}
	return outcome, nil
}

func (s *Service) sessionFor(user model.User) (AuthResult, error) {
	access, err := s.tokens.IssueAccess(user)
	if err != nil {
		return AuthResult{}, err
	}
	refresh, err := s.tokens.IssueRefresh(user.UserID)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{AccessToken: access, RefreshToken: refresh, User: user}, nil
}

// deliverOTP dispatches the code asynchronously; delivery failure never fails
// the triggering request.
func (s *Service) deliverOTP(email, code, purpose string) {
	subject := mail.SubjectVerification
	if purpose == model.PurposePasswordReset {
		subject = mail.SubjectPasswordReset
	}
	body := mail.OTPBody(code, purpose, s.otpTTL)
	go func() {
		if !s.mailer.Send(email, subject, body) {
			log.Printf("auth: otp mail to %s not delivered", mail.MaskEmail(email))
		}
	}()
}

func validateSignupFields(name, email, password string) error {
	if name == "" {
		return invalidField("name", "must not be empty")
	}
	if email == "" {
		return invalidField("email", "must not be empty")
	}
	if len(password) < 8 {
		return invalidField("password", "must be at least 8 characters")
	}
	return nil
}
