package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alexcool68/ST-backend/internal/model"
	"github.com/alexcool68/ST-backend/internal/pkg/token"
	"github.com/alexcool68/ST-backend/internal/store"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// 重置流程生成的新密码长度。
const generatedPasswordLength = 12

// UserStore 是 Service 对用户存储的依赖。
type UserStore interface {
	FindByEmail(ctx context.Context, email string, withPassword bool) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
	Create(ctx context.Context, u *model.User) error
	UpdatePassword(ctx context.Context, id bson.ObjectID, passwordHash string) error
	SetActivated(ctx context.Context, id bson.ObjectID) error
}

// TokenStore 是 Service 对操作令牌账本的依赖。
type TokenStore interface {
	Create(ctx context.Context, userID bson.ObjectID, typ model.TokenType, ttl time.Duration) (string, error)
	FindByValueAndType(ctx context.Context, plain string, typ model.TokenType) (*model.ActionToken, error)
	Consume(ctx context.Context, plain string, typ model.TokenType) (*model.ActionToken, error)
	DeleteByID(ctx context.Context, id bson.ObjectID) error
}

// SessionIssuer 签发会话令牌。
type SessionIssuer interface {
	IssueSession(userID string) (string, error)
}

// Service 实现注册、登录与密码找回的业务流程。
//
// 它只操作存储和令牌，不发送邮件；邮件由 HTTP 层异步派发。
type Service struct {
	users     UserStore
	tokens    TokenStore
	sessions  SessionIssuer
	forgotTTL time.Duration
	logger    *slog.Logger
}

// NewService 创建业务流程服务。forgotTTL 是找回密码令牌的有效期。
func NewService(users UserStore, tokens TokenStore, sessions SessionIssuer, forgotTTL time.Duration, logger *slog.Logger) *Service {
	return &Service{
		users:     users,
		tokens:    tokens,
		sessions:  sessions,
		forgotTTL: forgotTTL,
		logger:    logger,
	}
}

// trimEmail 只去掉首尾空白，大小写按用户提交的原样保存和比对。
func trimEmail(email string) string {
	return strings.TrimSpace(email)
}

// Register 创建未激活用户并签发 confirm-email 令牌。
//
// 返回创建的用户（不含密码散列）和激活令牌的明文。
func (s *Service) Register(ctx context.Context, email, password, confirm, firstName, lastName string) (*model.User, string, error) {
	if password != confirm {
		return nil, "", ErrPasswordMismatch
	}
	email = trimEmail(email)

	user := &model.User{
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Roles:     []string{model.RoleUser},
	}
	if err := user.SetPassword(password); err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, "", ErrDuplicateEmail
		}
		return nil, "", fmt.Errorf("create user: %w", err)
	}

	// 激活令牌不设 TTL，用户可以晚些再确认
	plain, err := s.tokens.Create(ctx, user.ID, model.TokenConfirmEmail, 0)
	if err != nil {
		return nil, "", fmt.Errorf("create activation token: %w", err)
	}

	s.logger.Info("user registered", slog.String("email", email))
	return user.Sanitize(), plain, nil
}

// Login 校验凭证并签发会话令牌。
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	email = trimEmail(email)

	user, err := s.users.FindByEmail(ctx, email, true)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", ErrUserNotFound
		}
		return nil, "", fmt.Errorf("find user: %w", err)
	}
	if !user.IsActivated {
		return nil, "", ErrNotActivated
	}
	if !user.ValidPassword(password) {
		return nil, "", ErrInvalidCredentials
	}

	session, err := s.sessions.IssueSession(user.ID.Hex())
	if err != nil {
		return nil, "", fmt.Errorf("issue session: %w", err)
	}

	s.logger.Info("user logged in", slog.String("email", email))
	return user.Sanitize(), session, nil
}

// ConfirmEmail 用激活令牌把账户置为已激活。
//
// 已激活账户返回 ErrAlreadyActivated 且不消费令牌；
// 激活成功后删除令牌，删除失败只记录日志。
func (s *Service) ConfirmEmail(ctx context.Context, rawToken string) (*model.User, error) {
	tok, err := s.tokens.FindByValueAndType(ctx, rawToken, model.TokenConfirmEmail)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("find token: %w", err)
	}

	user, err := s.users.FindByID(ctx, tok.UserID.Hex())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user.IsActivated {
		return nil, ErrAlreadyActivated
	}

	if err := s.users.SetActivated(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("activate user: %w", err)
	}
	user.IsActivated = true

	if err := s.tokens.DeleteByID(ctx, tok.ID); err != nil {
		s.logger.Warn("delete activation token failed",
			slog.String("user_id", user.ID.Hex()),
			slog.String("error", err.Error()))
	}

	s.logger.Info("email confirmed", slog.String("email", user.Email))
	return user.Sanitize(), nil
}

// ForgotPassword 为用户签发限时的 forgot-password 令牌。
//
// 返回令牌明文和对应用户，邮件发送由调用方负责。
func (s *Service) ForgotPassword(ctx context.Context, email string) (*model.User, string, error) {
	email = trimEmail(email)

	user, err := s.users.FindByEmail(ctx, email, false)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", ErrUserNotFound
		}
		return nil, "", fmt.Errorf("find user: %w", err)
	}

	plain, err := s.tokens.Create(ctx, user.ID, model.TokenForgotPassword, s.forgotTTL)
	if err != nil {
		return nil, "", fmt.Errorf("create reset token: %w", err)
	}

	s.logger.Info("password reset requested", slog.String("email", email))
	return user, plain, nil
}

// ResetPassword 原子消费令牌并生成新密码覆盖旧散列。
//
// 令牌消费和密码生成在同一次调用里完成，同一令牌第二次
// 提交会命中 ErrTokenNotFound。返回新密码明文和用户。
func (s *Service) ResetPassword(ctx context.Context, rawToken string) (*model.User, string, error) {
	tok, err := s.tokens.Consume(ctx, rawToken, model.TokenForgotPassword)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", ErrTokenNotFound
		}
		return nil, "", fmt.Errorf("consume token: %w", err)
	}

	user, err := s.users.FindByID(ctx, tok.UserID.Hex())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", ErrUserNotFound
		}
		return nil, "", fmt.Errorf("find user: %w", err)
	}

	newPassword := token.RandomPassword(generatedPasswordLength)
	if err := user.SetPassword(newPassword); err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, user.Password); err != nil {
		return nil, "", fmt.Errorf("update password: %w", err)
	}

	s.logger.Info("password reset", slog.String("email", user.Email))
	return user.Sanitize(), newPassword, nil
}

// UpdatePassword 按邮箱覆盖用户密码。
func (s *Service) UpdatePassword(ctx context.Context, email, password, confirm string) error {
	if password != confirm {
		return ErrPasswordMismatch
	}
	email = trimEmail(email)

	user, err := s.users.FindByEmail(ctx, email, false)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("find user: %w", err)
	}

	if err := user.SetPassword(password); err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, user.Password); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.logger.Info("password updated", slog.String("email", email))
	return nil
}
