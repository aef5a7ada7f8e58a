package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alexcool68/ST-backend/internal/model"
	"github.com/alexcool68/ST-backend/internal/pkg/token"
	"github.com/alexcool68/ST-backend/internal/store"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// fakeUsers 是 UserStore 的内存实现。
type fakeUsers struct {
	byID map[string]*model.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[string]*model.User)}
}

func (f *fakeUsers) find(email string) *model.User {
	for _, u := range f.byID {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func copyUser(u *model.User, withPassword bool) *model.User {
	cp := *u
	if !withPassword {
		cp.Password = ""
	}
	return &cp
}

func (f *fakeUsers) FindByEmail(ctx context.Context, email string, withPassword bool) (*model.User, error) {
	if u := f.find(email); u != nil {
		return copyUser(u, withPassword), nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeUsers) FindByID(ctx context.Context, id string) (*model.User, error) {
	if u, ok := f.byID[id]; ok {
		return copyUser(u, false), nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeUsers) Create(ctx context.Context, u *model.User) error {
	if f.find(u.Email) != nil {
		return store.ErrDuplicateEmail
	}
	u.ID = bson.NewObjectID()
	cp := *u
	f.byID[u.ID.Hex()] = &cp
	return nil
}

func (f *fakeUsers) UpdatePassword(ctx context.Context, id bson.ObjectID, passwordHash string) error {
	u, ok := f.byID[id.Hex()]
	if !ok {
		return store.ErrNotFound
	}
	u.Password = passwordHash
	return nil
}

func (f *fakeUsers) SetActivated(ctx context.Context, id bson.ObjectID) error {
	u, ok := f.byID[id.Hex()]
	if !ok {
		return store.ErrNotFound
	}
	u.IsActivated = true
	return nil
}

// fakeTokens 是 TokenStore 的内存实现，按摘要存储。
type fakeTokens struct {
	byDigest map[string]*model.ActionToken
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{byDigest: make(map[string]*model.ActionToken)}
}

func (f *fakeTokens) Create(ctx context.Context, userID bson.ObjectID, typ model.TokenType, ttl time.Duration) (string, error) {
	plain, digest, err := token.GenerateSecret()
	if err != nil {
		return "", err
	}
	tok := &model.ActionToken{
		ID:        bson.NewObjectID(),
		UserID:    userID,
		Token:     digest,
		Type:      typ,
		CreatedAt: time.Now(),
	}
	if ttl > 0 {
		exp := time.Now().Add(ttl)
		tok.ExpireAfter = &exp
	}
	f.byDigest[digest] = tok
	return plain, nil
}

func (f *fakeTokens) lookup(plain string, typ model.TokenType) *model.ActionToken {
	tok, ok := f.byDigest[token.HashSecret(plain)]
	if !ok || tok.Type != typ || tok.Expired(time.Now()) {
		return nil
	}
	return tok
}

func (f *fakeTokens) FindByValueAndType(ctx context.Context, plain string, typ model.TokenType) (*model.ActionToken, error) {
	if tok := f.lookup(plain, typ); tok != nil {
		return tok, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeTokens) Consume(ctx context.Context, plain string, typ model.TokenType) (*model.ActionToken, error) {
	tok := f.lookup(plain, typ)
	if tok == nil {
		return nil, store.ErrNotFound
	}
	delete(f.byDigest, tok.Token)
	return tok, nil
}

func (f *fakeTokens) DeleteByID(ctx context.Context, id bson.ObjectID) error {
	for digest, tok := range f.byDigest {
		if tok.ID == id {
			delete(f.byDigest, digest)
			return nil
		}
	}
	return store.ErrNotFound
}

type fakeSessions struct{ calls int }

func (f *fakeSessions) IssueSession(userID string) (string, error) {
	f.calls++
	return "session-" + userID, nil
}

func newTestService() (*Service, *fakeUsers, *fakeTokens, *fakeSessions) {
	users := newFakeUsers()
	tokens := newFakeTokens()
	sessions := &fakeSessions{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(users, tokens, sessions, 15*time.Minute, logger)
	return svc, users, tokens, sessions
}

func TestRegister(t *testing.T) {
	svc, users, _, _ := newTestService()
	ctx := context.Background()

	user, activation, err := svc.Register(ctx, "  Alice@Example.COM  ", "secret123", "secret123", "Alice", "Doe")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	// 邮箱只去首尾空白，大小写按提交原样保存
	if user.Email != "Alice@Example.COM" {
		t.Fatalf("email must be stored as submitted after trimming, got %q", user.Email)
	}
	if user.IsActivated {
		t.Fatalf("new user must not be activated")
	}
	if len(user.Roles) != 1 || user.Roles[0] != model.RoleUser {
		t.Fatalf("unexpected roles: %v", user.Roles)
	}
	if user.Password != "" {
		t.Fatalf("returned user must not carry the password hash")
	}
	if len(activation) != 64 {
		t.Fatalf("activation token must be 64 hex chars, got %d", len(activation))
	}

	stored := users.find("Alice@Example.COM")
	if stored == nil || stored.Password == "" || stored.Password == "secret123" {
		t.Fatalf("stored password must be a hash")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "a@b.com", "secret123", "secret123", "", ""); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	_, _, err := svc.Register(ctx, "a@b.com", "other456", "other456", "", "")
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestRegister_EmailCaseSensitive(t *testing.T) {
	svc, users, _, _ := newTestService()
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "a@b.com", "secret123", "secret123", "", ""); err != nil {
		t.Fatalf("register lower failed: %v", err)
	}
	// 大小写不同视为另一个地址
	if _, _, err := svc.Register(ctx, "A@B.com", "other456", "other456", "", ""); err != nil {
		t.Fatalf("register with different case must succeed: %v", err)
	}
	if users.find("a@b.com") == nil || users.find("A@B.com") == nil {
		t.Fatalf("both case variants must exist as distinct accounts")
	}
	if _, _, err := svc.Login(ctx, "A@B.COM", "secret123"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("lookup with mismatched case must fail, got %v", err)
	}
}

func TestRegister_PasswordMismatch(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, _, err := svc.Register(context.Background(), "a@b.com", "secret123", "different", "", "")
	if !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, activation, err := svc.Register(ctx, "a@b.com", "secret123", "secret123", "", "")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	// 未激活账户拒绝登录
	if _, _, err := svc.Login(ctx, "a@b.com", "secret123"); !errors.Is(err, ErrNotActivated) {
		t.Fatalf("expected ErrNotActivated, got %v", err)
	}

	if _, err := svc.ConfirmEmail(ctx, activation); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	user, session, err := svc.Login(ctx, "a@b.com", "secret123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if user.Password != "" {
		t.Fatalf("login must strip the password hash")
	}
	if session == "" {
		t.Fatalf("expected a session token")
	}

	if _, _, err := svc.Login(ctx, "a@b.com", "wrongpass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@b.com", "secret123"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestConfirmEmail(t *testing.T) {
	svc, users, tokens, _ := newTestService()
	ctx := context.Background()

	reg, activation, err := svc.Register(ctx, "a@b.com", "secret123", "secret123", "", "")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	user, err := svc.ConfirmEmail(ctx, activation)
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if !user.IsActivated {
		t.Fatalf("user must be activated")
	}
	if stored := users.byID[reg.ID.Hex()]; !stored.IsActivated {
		t.Fatalf("activation must be persisted")
	}

	// 成功激活后令牌被删除，重复提交视为未知令牌
	if _, err := svc.ConfirmEmail(ctx, activation); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}

	// 已激活账户持有的其它激活令牌不被消费
	extra, err := tokens.Create(ctx, reg.ID, model.TokenConfirmEmail, 0)
	if err != nil {
		t.Fatalf("create token failed: %v", err)
	}
	if _, err := svc.ConfirmEmail(ctx, extra); !errors.Is(err, ErrAlreadyActivated) {
		t.Fatalf("expected ErrAlreadyActivated, got %v", err)
	}
	if _, err := tokens.FindByValueAndType(ctx, extra, model.TokenConfirmEmail); err != nil {
		t.Fatalf("token must survive the AlreadyActivated branch: %v", err)
	}
}

func TestConfirmEmail_UnknownToken(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.ConfirmEmail(context.Background(), "deadbeef")
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestForgotPassword(t *testing.T) {
	svc, _, tokens, _ := newTestService()
	ctx := context.Background()

	if _, _, err := svc.ForgotPassword(ctx, "nobody@b.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	reg, _, err := svc.Register(ctx, "a@b.com", "secret123", "secret123", "", "")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	user, plain, err := svc.ForgotPassword(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("forgot password failed: %v", err)
	}
	if user.ID != reg.ID {
		t.Fatalf("wrong user returned")
	}
	tok, err := tokens.FindByValueAndType(ctx, plain, model.TokenForgotPassword)
	if err != nil {
		t.Fatalf("token not stored: %v", err)
	}
	if tok.ExpireAfter == nil {
		t.Fatalf("forgot-password token must carry a TTL")
	}
}

func TestResetPassword(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, activation, err := svc.Register(ctx, "a@b.com", "secret123", "secret123", "", "")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := svc.ConfirmEmail(ctx, activation); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	_, plain, err := svc.ForgotPassword(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("forgot password failed: %v", err)
	}

	user, newPassword, err := svc.ResetPassword(ctx, plain)
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if newPassword == "" || newPassword == "secret123" {
		t.Fatalf("expected a fresh server-generated password")
	}
	if user.Password != "" {
		t.Fatalf("reset must strip the password hash")
	}

	// 旧密码失效，新密码可登录
	if _, _, err := svc.Login(ctx, "a@b.com", "secret123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must be invalid, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "a@b.com", newPassword); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}

	// 令牌单次有效
	if _, _, err := svc.ResetPassword(ctx, plain); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound on reuse, got %v", err)
	}
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	svc, _, tokens, _ := newTestService()
	ctx := context.Background()

	reg, _, err := svc.Register(ctx, "a@b.com", "secret123", "secret123", "", "")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	plain, err := tokens.Create(ctx, reg.ID, model.TokenForgotPassword, time.Minute)
	if err != nil {
		t.Fatalf("create token failed: %v", err)
	}
	// 把有效期改到过去
	past := time.Now().Add(-time.Minute)
	tokens.byDigest[token.HashSecret(plain)].ExpireAfter = &past

	if _, _, err := svc.ResetPassword(ctx, plain); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound for expired token, got %v", err)
	}
}

func TestUpdatePassword(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, activation, err := svc.Register(ctx, "a@b.com", "secret123", "secret123", "", "")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := svc.ConfirmEmail(ctx, activation); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	if err := svc.UpdatePassword(ctx, "a@b.com", "newpass789", "different"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
	if err := svc.UpdatePassword(ctx, "nobody@b.com", "newpass789", "newpass789"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	if err := svc.UpdatePassword(ctx, "a@b.com", "newpass789", "newpass789"); err != nil {
		t.Fatalf("update password failed: %v", err)
	}
	if _, _, err := svc.Login(ctx, "a@b.com", "newpass789"); err != nil {
		t.Fatalf("login with updated password failed: %v", err)
	}
}
