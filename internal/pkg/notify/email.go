package notify

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fatxioken06/Culinary-Canvas/internal/config"

	"gopkg.in/gomail.v2"
)

// EmailNotifier 通过 SMTP 发送平台邮件。
type EmailNotifier struct {
	cfg     *config.EmailConfig
	codeTTL time.Duration
	logger  *slog.Logger
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, codeTTL time.Duration, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:     cfg,
		codeTTL: codeTTL,
		logger:  logger,
	}
}

// SendVerificationCode 发送邮箱验证码。
func (n *EmailNotifier) SendVerificationCode(toEmail string, fullName string, code string) error {
	if err := n.checkConfig(toEmail); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", "[Culinary Canvas] Confirm your email address")

	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Culinary Canvas</h2>
    <p>Hello %s,</p>
    <p>Please use the following verification code to confirm your email address:</p>
    <div style="font-size: 28px; font-weight: bold; letter-spacing: 3px;">%s</div>
    <p>This code will expire in %s.</p>
  </div>
</body>
</html>`, fullName, code, formatTTL(n.codeTTL))
	m.SetBody("text/html", body)

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("verification email sent", slog.String("to", toEmail))
	return nil
}

// SendWelcome 发送欢迎邮件。
func (n *EmailNotifier) SendWelcome(toEmail string, fullName string) error {
	if err := n.checkConfig(toEmail); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", "Welcome to Culinary Canvas!")

	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Welcome to Culinary Canvas!</h2>
    <p>Dear %s,</p>
    <p>Your email has been confirmed successfully. You can now:</p>
    <ul>
      <li>Create and share your favorite recipes</li>
      <li>Rate and comment on other recipes</li>
      <li>Build your culinary profile</li>
    </ul>
    <p>Happy cooking!</p>
  </div>
</body>
</html>`, fullName)
	m.SetBody("text/html", body)

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("welcome email sent", slog.String("to", toEmail))
	return nil
}

func (n *EmailNotifier) checkConfig(toEmail string) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		return fmt.Errorf("email config missing")
	}
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("empty recipient")
	}
	return nil
}

func formatTTL(ttl time.Duration) string {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if ttl < time.Hour {
		return fmt.Sprintf("%d minutes", int(ttl.Minutes()))
	}
	return ttl.String()
}
