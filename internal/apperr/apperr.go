package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误分类，决定对外的 HTTP 状态码。
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindInvalidState
)

// Error 携带分类与简短原因的业务错误，
// Reason 面向调用方，内部细节通过 Err 包装、只进日志。
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// Validation 构造 400 输入错误。
func Validation(reason string) *Error {
	return &Error{Kind: KindValidation, Reason: reason}
}

// Unauthorized 构造 401 认证错误。
func Unauthorized(reason string) *Error {
	return &Error{Kind: KindUnauthorized, Reason: reason}
}

// Forbidden 构造 403 权限错误。
func Forbidden(reason string) *Error {
	return &Error{Kind: KindForbidden, Reason: reason}
}

// NotFound 构造 404 实体缺失错误。
func NotFound(reason string) *Error {
	return &Error{Kind: KindNotFound, Reason: reason}
}

// Conflict 构造 409 重复冲突错误。
func Conflict(reason string) *Error {
	return &Error{Kind: KindConflict, Reason: reason}
}

// InvalidState 构造 400 生命周期状态错误。
func InvalidState(reason string) *Error {
	return &Error{Kind: KindInvalidState, Reason: reason}
}

// Internal 包装意外错误，对外只暴露通用消息。
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Reason: "internal server error", Err: err}
}

// KindOf 提取错误分类，未分类一律视为内部错误。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Reason 提取对外原因字符串。
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return "internal server error"
}

// Status 将错误映射为 HTTP 状态码。
func Status(err error) int {
	switch KindOf(err) {
	case KindValidation, KindInvalidState:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
