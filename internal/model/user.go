package model

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/crypto/bcrypt"
)

// bcryptCost 密码哈希的固定工作因子。
const bcryptCost = 10

// 系统内置角色。
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User 表示系统用户。
//
// Password 永远只保存 bcrypt 哈希，默认的读取路径不会返回该字段
// （见 store.Users 的投影），JSON 序列化时也始终排除。
type User struct {
	ID          bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Email       string        `bson:"email" json:"email"`             // 邮箱（唯一索引）
	Password    string        `bson:"password,omitempty" json:"-"`    // bcrypt 哈希
	Roles       []string      `bson:"roles" json:"roles"`             // 角色集合，创建后至少包含一个
	IsActivated bool          `bson:"isActivated" json:"isActivated"` // 邮箱是否已确认
	FirstName   string        `bson:"firstName,omitempty" json:"firstName,omitempty"`
	LastName    string        `bson:"lastName,omitempty" json:"lastName,omitempty"`
	CreatedAt   time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time     `bson:"updatedAt" json:"updatedAt"`
}

// SetPassword 计算明文密码的 bcrypt 哈希并写入 Password 字段。
func (u *User) SetPassword(plain string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)
	if err != nil {
		return err
	}
	u.Password = string(hash)
	return nil
}

// ValidPassword 判断候选密码是否与存储的哈希匹配。
//
// 通过重新计算比对实现，永远不会还原明文。
func (u *User) ValidPassword(candidate string) bool {
	if u.Password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(candidate)) == nil
}

// HasAnyRole 判断用户角色集合与给定集合是否有交集。
func (u *User) HasAnyRole(roles ...string) bool {
	for _, want := range roles {
		for _, have := range u.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// FullName 拼接用户全名，两个字段都为空时返回空字符串。
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Sanitize 返回去除密码哈希后的副本，用于写入响应或请求上下文。
func (u *User) Sanitize() *User {
	clone := *u
	clone.Password = ""
	return &clone
}
