package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/alexcool68/ST-backend/internal/config"
)

// EmailNotifier 通过 SMTP 发送事务性邮件。
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
	}
}

// SendActivation 发送账户激活邮件。
func (n *EmailNotifier) SendActivation(ctx context.Context, toEmail string, token string) error {
	body := fmt.Sprintf(`<p>Go to this link to activate your account: <a href='%s/confirm-email/%s'>here</a>.</p>
<br/>
<p>Your token: %s</p>`, n.cfg.FrontendURL, token, token)

	return n.send(toEmail, "Confirm your email !", body)
}

// SendPasswordReset 发送找回密码邮件。
func (n *EmailNotifier) SendPasswordReset(ctx context.Context, toEmail string, token string, ttl time.Duration) error {
	body := fmt.Sprintf(`<p>Go to this link to reset your password: <a href='%s/reset-password/%s'>here</a>.</p>
<br/>
<p>Your token: %s</p>
<br/>
<p>This token is available only for %d minutes</p>`, n.cfg.FrontendURL, token, token, int(ttl.Minutes()))

	return n.send(toEmail, "Reset your password !", body)
}

// SendNewPassword 发送重置后的新密码。
func (n *EmailNotifier) SendNewPassword(ctx context.Context, toEmail string, newPassword string) error {
	body := fmt.Sprintf(`<p>Your new password: %s</p>`, newPassword)

	return n.send(toEmail, "Your new password !", body)
}

// send 执行实际 SMTP 发送。
//
// enabled 为 false 或 SMTP 配置不完整时跳过发送并记录日志，
// 不视为错误（本地开发环境的常态）。
func (n *EmailNotifier) send(toEmail string, subject string, htmlBody string) error {
	if strings.TrimSpace(toEmail) == "" {
		n.logger.Warn("email recipient empty, skip notification")
		return nil
	}
	if !n.cfg.Enabled {
		n.logger.Info("mail sending disabled, skip notification",
			slog.String("to", toEmail), slog.String("subject", subject))
		return nil
	}
	if n.cfg.SMTPHost == "" || n.cfg.FromEmail == "" {
		n.logger.Warn("email config missing, skip notification")
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("email sent", slog.String("to", toEmail), slog.String("subject", subject))
	return nil
}
