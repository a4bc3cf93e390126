package mail

import (
	"fmt"
	"time"
)

// Subjects per OTP purpose.
const (
	SubjectVerification  = "Account Verification"
	SubjectPasswordReset = "Password Reset Code"
	SubjectInvite        = "Staff Invitation - Action Required"
)

// OTPBody renders the HTML body carrying a one-time code.
func OTPBody(code string, purpose string, ttl time.Duration) string {
	header := "Verify Your Account"
	if purpose == "password_reset" {
		header = "Reset Your Password"
	}
	return fmt.Sprintf(`<html>
<body style="font-family: 'Segoe UI', sans-serif; background-color: #f3f4f6; padding: 20px;">
  <div style="max-width: 450px; margin: auto; background: white; padding: 40px; border-radius: 12px; border: 1px solid #e5e7eb;">
    <h2 style="color: #4F46E5; text-align: center; margin-bottom: 24px;">%s</h2>
    <p style="color: #374151; font-size: 16px; text-align: center;">
      Use this code to complete your request. Expires in <strong>%dm</strong>.
    </p>
    <div style="background-color: #f9fafb; border-radius: 8px; padding: 20px; text-align: center; margin: 30px 0; border: 1px dashed #4F46E5;">
      <span style="font-size: 32px; font-weight: bold; letter-spacing: 10px; color: #111827;">%s</span>
    </div>
  </div>
</body>
</html>`, header, int(ttl.Minutes()), code)
}

// InviteBody renders the HTML body carrying a staff invitation link.
func InviteBody(inviteURL string) string {
	return fmt.Sprintf(`<html>
<body style="font-family: 'Segoe UI', Arial, sans-serif; background-color: #f9fafb; padding: 20px;">
  <div style="max-width: 550px; margin: auto; background: white; padding: 40px; border-radius: 16px; border: 1px solid #e5e7eb;">
    <h2 style="color: #111827; text-align: center; margin-bottom: 10px;">You're Invited!</h2>
    <p style="color: #4b5563; font-size: 16px; text-align: center; line-height: 1.6;">
      An administrator has invited you to join their branch as a staff member.
      Please click the button below to set up your account and join the team.
    </p>
    <div style="text-align: center; margin: 35px 0;">
      <a href="%s" style="background-color: #4F46E5; color: white; padding: 14px 30px; text-decoration: none; border-radius: 10px; font-weight: bold; font-size: 16px; display: inline-block;">
        Accept Invitation
      </a>
    </div>
    <p style="color: #9ca3af; font-size: 13px; text-align: center;">
      This invitation link is unique to you and will expire in <strong>7 days</strong>.
    </p>
    <p style="color: #d1d5db; font-size: 11px; text-align: center;">
      If you weren't expecting this invitation, you can safely ignore this email.
    </p>
  </div>
</body>
</html>`, inviteURL)
}
