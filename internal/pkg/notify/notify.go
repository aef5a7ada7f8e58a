package notify

import (
	"context"
	"time"
)

// Notifier 定义事务性邮件通知接口。
//
// 所有发送都是"尽力而为"：调用方不应让发送失败影响请求结果，
// 失败只记录日志。
type Notifier interface {
	// SendActivation 发送账户激活邮件，token 为一次性明文令牌。
	SendActivation(ctx context.Context, toEmail string, token string) error

	// SendPasswordReset 发送找回密码邮件，ttl 为令牌剩余有效期。
	SendPasswordReset(ctx context.Context, toEmail string, token string, ttl time.Duration) error

	// SendNewPassword 发送重置后的新密码。
	SendNewPassword(ctx context.Context, toEmail string, newPassword string) error
}
