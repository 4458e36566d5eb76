package notify

import (
	"context"
	"fmt"

	"github.com/hobbystash/account-service/internal/config"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// EmailNotifier sends account emails over SMTP.
type EmailNotifier struct {
	cfg     config.SMTPConfig
	baseURL string
	logger  *zap.Logger
}

// NewEmailNotifier creates a new SMTP notifier. baseURL is the public
// frontend origin the emailed links point at.
func NewEmailNotifier(cfg config.SMTPConfig, baseURL string, logger *zap.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:     cfg,
		baseURL: baseURL,
		logger:  logger,
	}
}

// SendVerification sends the email verification link
func (n *EmailNotifier) SendVerification(ctx context.Context, email, token string) error {
	link := fmt.Sprintf("%s/verify-email?token=%s", n.baseURL, token)
	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Welcome to Hobbystash</h2>
    <p>Confirm your email address to finish setting up your account:</p>
    <p><a href="%s" style="display:inline-block; padding:12px 20px; background:#22c55e; color:#fff; text-decoration:none; border-radius:8px; font-weight:bold;">Verify email</a></p>
    <p style="font-size:12px; color:#6b7280;">The link is valid for 24 hours. If you did not create an account, ignore this email.</p>
  </div>
</body>
</html>`, link)

	return n.send(email, "Verify your Hobbystash email", body)
}

// SendReset sends the password reset link
func (n *EmailNotifier) SendReset(ctx context.Context, email, token string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", n.baseURL, token)
	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Reset your Hobbystash password</h2>
    <p>Someone requested a password reset for this address. If that was you, set a new password here:</p>
    <p><a href="%s" style="display:inline-block; padding:12px 20px; background:#0f172a; color:#fff; text-decoration:none; border-radius:8px; font-weight:bold;">Reset password</a></p>
    <p style="font-size:12px; color:#6b7280;">The link is valid for 1 hour. If you did not request this, your password is unchanged.</p>
  </div>
</body>
</html>`, link)

	return n.send(email, "Reset your Hobbystash password", body)
}

func (n *EmailNotifier) send(to, subject, htmlBody string) error {
	if n.cfg.Host == "" || n.cfg.From == "" {
		n.logger.Warn("smtp config missing, skip email", zap.String("subject", subject))
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	d := gomail.NewDialer(n.cfg.Host, n.cfg.Port, n.cfg.User, n.cfg.Password)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("email sent", zap.String("subject", subject))
	return nil
}
