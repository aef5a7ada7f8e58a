package model

import (
	"testing"
	"time"
)

func TestUser_SetPassword_NeverStoresPlaintext(t *testing.T) {
	u := &User{Email: "a@b.c"}
	if err := u.SetPassword("secret-password"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	if u.Password == "secret-password" {
		t.Fatalf("password stored in plaintext")
	}
	if u.Password == "" {
		t.Fatalf("password hash not set")
	}
}

func TestUser_ValidPassword(t *testing.T) {
	u := &User{}
	if err := u.SetPassword("hunter22"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	if !u.ValidPassword("hunter22") {
		t.Errorf("expected matching password to validate")
	}
	if u.ValidPassword("hunter23") {
		t.Errorf("expected wrong password to fail")
	}

	empty := &User{}
	if empty.ValidPassword("anything") {
		t.Errorf("expected empty hash to never validate")
	}
}

func TestUser_HasAnyRole(t *testing.T) {
	u := &User{Roles: []string{RoleUser}}
	if u.HasAnyRole(RoleAdmin) {
		t.Errorf("user should not have admin role")
	}
	if !u.HasAnyRole(RoleAdmin, RoleUser) {
		t.Errorf("expected intersection on user role")
	}
}

func TestUser_Sanitize(t *testing.T) {
	u := &User{Email: "a@b.c", Password: "hash"}
	clean := u.Sanitize()
	if clean.Password != "" {
		t.Errorf("expected password stripped")
	}
	if u.Password != "hash" {
		t.Errorf("original must not be mutated")
	}
}

func TestActionToken_Expired(t *testing.T) {
	now := time.Now()

	confirm := &ActionToken{Type: TokenConfirmEmail}
	if confirm.Expired(now.Add(24 * 365 * time.Hour)) {
		t.Errorf("token without expiry must never expire")
	}

	past := now.Add(-time.Second)
	forgot := &ActionToken{Type: TokenForgotPassword, ExpireAfter: &past}
	if !forgot.Expired(now) {
		t.Errorf("expected token past its TTL to be expired")
	}
	future := now.Add(time.Minute)
	forgot.ExpireAfter = &future
	if forgot.Expired(now) {
		t.Errorf("token before its TTL must not be expired")
	}
}
