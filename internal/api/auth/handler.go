package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexcool68/ST-backend/internal/api/middleware"
	"github.com/alexcool68/ST-backend/internal/pkg/metrics"
	"github.com/alexcool68/ST-backend/internal/pkg/notify"
	"github.com/alexcool68/ST-backend/internal/pkg/queue"

	"github.com/gin-gonic/gin"
)

// 明文令牌为 32 字节的十六进制编码。
const tokenParamLength = 64

// Handler 提供认证相关的 HTTP 接口。
//
// 邮件通过 queue 异步派发，发送失败不影响响应。
type Handler struct {
	svc       *Service
	mailQueue *queue.Queue
	mailer    notify.Notifier
	forgotTTL time.Duration
	logger    *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(svc *Service, mailQueue *queue.Queue, mailer notify.Notifier, forgotTTL time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		svc:       svc,
		mailQueue: mailQueue,
		mailer:    mailer,
		forgotTTL: forgotTTL,
		logger:    logger,
	}
}

type registerRequest struct {
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required,min=6"`
	PasswordConfirm string `json:"passwordConfirm" binding:"required,eqfield=Password"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type updatePasswordRequest struct {
	Password        string `json:"password" binding:"required,min=6"`
	PasswordConfirm string `json:"passwordConfirm" binding:"required,eqfield=Password"`
}

// dispatchMail 把邮件任务放入队列，队列满时丢弃并记录。
func (h *Handler) dispatchMail(send func(ctx context.Context) error) {
	job := func(ctx context.Context) error {
		if err := send(ctx); err != nil {
			metrics.MailDispatchTotal.WithLabelValues("error").Inc()
			return err
		}
		metrics.MailDispatchTotal.WithLabelValues("ok").Inc()
		return nil
	}
	if !h.mailQueue.Enqueue(job) {
		metrics.MailDispatchTotal.WithLabelValues("dropped").Inc()
		h.logger.Warn("mail queue full, notification dropped")
	}
}

// Register 创建新用户并异步发送激活邮件。
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	user, activation, err := h.svc.Register(c.Request.Context(), req.Email, req.Password, req.PasswordConfirm, req.FirstName, req.LastName)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateEmail), errors.Is(err, ErrPasswordMismatch):
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		default:
			h.logger.Error("register failed", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "registration failed"})
		}
		return
	}

	email := user.Email
	h.dispatchMail(func(ctx context.Context) error {
		return h.mailer.SendActivation(ctx, email, activation)
	})

	c.JSON(http.StatusCreated, gin.H{
		"status":          "success",
		"user":            user,
		"activationToken": activation,
	})
}

// Login 校验凭证并返回会话令牌。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	user, session, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound),
			errors.Is(err, ErrNotActivated),
			errors.Is(err, ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "error": err.Error()})
		default:
			h.logger.Error("login failed", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "login failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"user":   user,
		"token":  session,
	})
}

// ForgotPassword 签发重置令牌并异步发送邮件。
func (h *Handler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	user, plain, err := h.svc.ForgotPassword(c.Request.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		default:
			h.logger.Error("forgot password failed", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "request failed"})
		}
		return
	}

	email := user.Email
	ttl := h.forgotTTL
	h.dispatchMail(func(ctx context.Context) error {
		return h.mailer.SendPasswordReset(ctx, email, plain, ttl)
	})

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "reset email sent"})
}

// ConfirmEmail 用路径中的令牌激活账户。
func (h *Handler) ConfirmEmail(c *gin.Context) {
	raw := c.Param("token")
	if len(raw) != tokenParamLength {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid token"})
		return
	}

	user, err := h.svc.ConfirmEmail(c.Request.Context(), raw)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenNotFound),
			errors.Is(err, ErrUserNotFound),
			errors.Is(err, ErrAlreadyActivated):
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		default:
			h.logger.Error("confirm email failed", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "confirmation failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "user": user})
}

// ResetPassword 消费令牌、生成新密码并异步发送给用户。
func (h *Handler) ResetPassword(c *gin.Context) {
	raw := c.Param("token")
	if len(raw) != tokenParamLength {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid token"})
		return
	}

	user, newPassword, err := h.svc.ResetPassword(c.Request.Context(), raw)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenNotFound), errors.Is(err, ErrUserNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		default:
			h.logger.Error("reset password failed", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "reset failed"})
		}
		return
	}

	email := user.Email
	h.dispatchMail(func(ctx context.Context) error {
		return h.mailer.SendNewPassword(ctx, email, newPassword)
	})

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "new password sent by email"})
}

// UpdatePassword 覆盖当前会话用户自己的密码。
//
// 目标账户只取自 Authenticated 写入的会话用户，请求体
// 不携带任何身份字段。
func (h *Handler) UpdatePassword(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "unauthorized"})
		return
	}

	var req updatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	if err := h.svc.UpdatePassword(c.Request.Context(), user.Email, req.Password, req.PasswordConfirm); err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrPasswordMismatch):
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		default:
			h.logger.Error("update password failed", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "update failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "password updated"})
}
