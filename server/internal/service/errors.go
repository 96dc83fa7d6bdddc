package service

import (
	"errors"
	"net/http"
)

/*
ValidationError 请求参数不合法（缺失 ID、未知角色、字段校验失败等）
handler 统一映射为 400
*/
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

/* NewValidationError 构造参数错误 */
func NewValidationError(msg string) error {
	return &ValidationError{Message: msg}
}

/* IsValidationError 判断错误链中是否包含 ValidationError */
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

/*
AuthError 认证/授权失败
Status 为 401（未认证）或 403（角色不足）
*/
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")

	/* ErrInvalidCredentials 不区分邮箱不存在和密码错误 */
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrLastOwner          = &ValidationError{Message: "cannot remove the last owner"}
)

func newUnauthenticated() *AuthError {
	return &AuthError{Status: http.StatusUnauthorized, Message: "authentication required"}
}

func newForbidden(requiredRole string) *AuthError {
	return &AuthError{Status: http.StatusForbidden, Message: "access denied, required role: " + requiredRole}
}
