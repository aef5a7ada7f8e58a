package auth

import "errors"

// 领域错误，HTTP 层通过 errors.Is 映射为状态码。
var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrTokenNotFound      = errors.New("token not found or expired")
	ErrAlreadyActivated   = errors.New("account already activated")
	ErrNotActivated       = errors.New("account not activated")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPasswordMismatch   = errors.New("passwords do not match")
)
