package errors

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
)

type Error struct {
	Kind     Kind   `json:"-"`       // 错误类别
	Code     int    `json:"code"`    // 业务错误码
	Message  string `json:"message"` // 错误信息
	HttpCode int    `json:"-"`       // http状态码
	Err      error  `json:"-"`       // 原始错误
	origin   string // 创建点（函数 文件:行号）
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap 实现 errors.Unwrap 接口
func (e *Error) Unwrap() error {
	return e.Err
}

// Origin 返回错误创建点，用于日志定位
func (e *Error) Origin() string {
	return e.origin
}

// New 创建新的错误并记录创建点
// kind 错误类别
// message 错误信息
func New(kind Kind, message string) *Error {
	return newError(kind, message, nil)
}

// Newf 创建新的格式化错误并记录创建点
func Newf(kind Kind, format string, args ...any) *Error {
	return newError(kind, fmt.Sprintf(format, args...), nil)
}

// Wrap 包装原始错误并记录创建点
// err 为 nil 时返回 nil
func Wrap(kind Kind, err error, message string) *Error {
	if err == nil {
		return nil
	}
	return newError(kind, message, err)
}

// Internal 创建内部错误
func Internal(message string) *Error { return newError(KindInternal, message, nil) }

// Internalf 创建格式化内部错误
func Internalf(format string, args ...any) *Error {
	return newError(KindInternal, fmt.Sprintf(format, args...), nil)
}

// Configuration 创建配置错误（注册期使用，不会到达线上请求）
func Configuration(message string) *Error { return newError(KindConfiguration, message, nil) }

// Configurationf 创建格式化配置错误
func Configurationf(format string, args ...any) *Error {
	return newError(KindConfiguration, fmt.Sprintf(format, args...), nil)
}

// Authentication 创建认证错误，映射 401
func Authentication(message string) *Error { return newError(KindAuthentication, message, nil) }

// Authorization 创建鉴权错误，映射 403
func Authorization(message string) *Error { return newError(KindAuthorization, message, nil) }

// Decode 创建解码错误，映射 400
func Decode(message string) *Error { return newError(KindDecode, message, nil) }

// Decodef 创建格式化解码错误
func Decodef(format string, args ...any) *Error {
	return newError(KindDecode, fmt.Sprintf(format, args...), nil)
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{
		Kind:     kind,
		Code:     kind.code(),
		Message:  message,
		HttpCode: kind.httpCode(),
		Err:      err,
		origin:   callerOrigin(4),
	}
}

// callerOrigin 取调用栈上第 skip 层的函数与位置
func callerOrigin(skip int) string {
	var pcs [1]uintptr
	if runtime.Callers(skip, pcs[:]) == 0 {
		return ""
	}
	frame, _ := runtime.CallersFrames(pcs[:]).Next()
	if frame.Function == "" {
		return ""
	}
	return fmt.Sprintf("%s (%s:%d)", frame.Function, filepath.Base(frame.File), frame.Line)
}

// Clone 克隆错误（避免修改共享的预定义错误）
func (e *Error) Clone() *Error {
	return &Error{
		Kind:     e.Kind,
		Code:     e.Code,
		HttpCode: e.HttpCode,
		Message:  e.Message,
		Err:      e.Err,
		origin:   e.origin,
	}
}

// WithError 添加原始错误（返回新实例，不修改原错误）
func (e *Error) WithError(err error) *Error {
	c := e.Clone()
	c.Err = err
	return c
}

// WithMessage 添加错误信息（返回新实例，不修改原错误）
func (e *Error) WithMessage(message string) *Error {
	c := e.Clone()
	c.Message = message
	return c
}

// WithStatus 覆盖 HTTP 状态码（返回新实例，不修改原错误）
func (e *Error) WithStatus(httpCode int) *Error {
	c := e.Clone()
	c.HttpCode = httpCode
	return c
}

// As 转换为指定类型的错误
// target 目标错误类型指针
func (e *Error) As(target any) bool {
	return errors.As(e.Err, target)
}

// Is 检查错误是否为指定类型
// 当 target 也是 *Error 时，比较 Kind 是否相同
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if ok {
		return e.Kind == t.Kind
	}
	return errors.Is(e.Err, target)
}

// IsKind 检查错误链上是否存在指定类别的 *Error
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// Origin 返回错误链上最近一个 *Error 的创建点
// 非 *Error 时返回错误的动态类型名
func Origin(err error) string {
	var e *Error
	if errors.As(err, &e) && e.origin != "" {
		return e.origin
	}
	return fmt.Sprintf("%T", err)
}

// As 转换为指定类型的错误
// err 待转换错误
// target 目标错误类型指针（必须是指针类型）
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is 检查错误是否为指定类型
// err 待检查错误
// target 目标错误类型
func Is(err error, target error) bool {
	return errors.Is(err, target)
}
