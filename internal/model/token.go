package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// TokenType 动作令牌的用途类型。
type TokenType string

const (
	TokenConfirmEmail   TokenType = "confirm-email"   // 邮箱确认
	TokenForgotPassword TokenType = "forgot-password" // 找回密码
)

// Valid 判断是否为已知的令牌类型。
func (t TokenType) Valid() bool {
	return t == TokenConfirmEmail || t == TokenForgotPassword
}

// ActionToken 表示一次性动作令牌。
//
// Token 字段保存的是 SHA-256 摘要而不是下发给用户的明文，
// 数据库泄露时不会暴露可用的令牌。ExpireAfter 为空表示永不过期
// （confirm-email），forgot-password 令牌由 Mongo 的 TTL 索引自动清除。
type ActionToken struct {
	ID          bson.ObjectID `bson:"_id,omitempty"`
	UserID      bson.ObjectID `bson:"userId"`
	Token       string        `bson:"token"` // 明文令牌的 SHA-256 摘要
	Type        TokenType     `bson:"type"`
	CreatedAt   time.Time     `bson:"createdAt"`
	ExpireAfter *time.Time    `bson:"expireAfter,omitempty"`
}

// Expired 判断令牌在给定时刻是否已过期。
func (t *ActionToken) Expired(now time.Time) bool {
	return t.ExpireAfter != nil && now.After(*t.ExpireAfter)
}
