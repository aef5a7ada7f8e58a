package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// secretBytes 动作令牌的随机熵长度（hex 编码后 64 个字符）。
const secretBytes = 32

var (
	// ErrSessionInvalid 会话令牌签名无效、格式错误或主体缺失。
	ErrSessionInvalid = errors.New("session token invalid")
	// ErrSessionExpired 会话令牌已过期。
	ErrSessionExpired = errors.New("session token expired")
)

// GenerateSecret 生成一个高熵随机令牌。
//
// 返回下发给用户的明文（hex 编码）和用于持久化的 SHA-256 摘要，
// 数据库中只应保存摘要。
func GenerateSecret() (plain string, digest string, err error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate secret: %w", err)
	}
	plain = hex.EncodeToString(buf)
	return plain, HashSecret(plain), nil
}

// HashSecret 计算明文令牌的存储摘要，用于按值查找。
func HashSecret(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// RandomPassword 生成一个随机明文密码（重置密码流程服务端下发）。
//
// 采用拒绝采样：把落在 256 对字符表长度取余的尾部区间的随机字节
// 丢弃重采，每个字符等概率出现。
func RandomPassword(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	if n <= 0 {
		n = 16
	}
	limit := byte(256 - 256%len(letters))

	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			// crypto/rand 失败意味着系统随机源不可用，此时不发放密码
			panic(fmt.Sprintf("random source unavailable: %v", err))
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, letters[int(b)%len(letters)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out)
}

// Claims 会话令牌的声明内容，主体为用户 ID。
type Claims = jwt.RegisteredClaims

// Codec 负责签发与校验无状态会话令牌。
type Codec struct {
	secret []byte
	ttl    time.Duration
}

// NewCodec 创建会话令牌编解码器。
//
// 参数:
//
//	secret: HMAC 签名密钥
//	ttl: 会话有效期
func NewCodec(secret string, ttl time.Duration) *Codec {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Codec{secret: []byte(secret), ttl: ttl}
}

// IssueSession 为指定用户签发 HS256 会话令牌。
func (c *Codec) IssueSession(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// VerifySession 校验会话令牌并返回声明。
//
// 过期返回 ErrSessionExpired，签名无效、格式错误或主体缺失
// 返回 ErrSessionInvalid；任何输入都不会引发 panic。
func (c *Codec) VerifySession(signed string) (*Claims, error) {
	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(signed, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, ErrSessionInvalid
	}
	if !tok.Valid || claims.Subject == "" {
		return nil, ErrSessionInvalid
	}
	return claims, nil
}
