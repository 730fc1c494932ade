package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"slices"
)

// XError 是仓库统一的结构化错误。
// Details 是审计输出的载体（指纹、身份、算法等），调用方不应解析 Message。
type XError struct {
	Code    Code           `json:"code" yaml:"code"`
	Message string         `json:"message" yaml:"message"`
	Details map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
	cause   error
}

func (e *XError) Error() string {
	if e == nil {
		return ""
	}
	if e.cause == nil {
		return string(e.Code) + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
}

func (e *XError) Unwrap() error { return e.cause }

// ExitCode 返回该错误对应的进程退出码。
func (e *XError) ExitCode() ExitCode {
	if e == nil {
		return ExitOK
	}
	return ExitCodeFor(e.Code)
}

// WithDetail 返回追加了一个 detail 的副本，原错误不变。
func (e *XError) WithDetail(key string, value any) *XError {
	out := *e
	out.Details = maps.Clone(e.Details)
	if out.Details == nil {
		out.Details = make(map[string]any, 1)
	}
	out.Details[key] = value
	return &out
}

func New(code Code, message string, details map[string]any) *XError {
	return &XError{Code: code, Message: message, Details: details}
}

// Wrap 保留 cause 供 errors.Is / errors.As 使用（例如 *hostkey.RejectionError）。
func Wrap(code Code, message string, details map[string]any, cause error) *XError {
	return &XError{Code: code, Message: message, Details: details, cause: cause}
}

func As(err error) (*XError, bool) {
	var xe *XError
	if stderrors.As(err, &xe) {
		return xe, true
	}
	return nil, false
}

// AsOrWrap 将任意 error 归一为 XError；非 XError 视为内部错误。
func AsOrWrap(err error) *XError {
	if xe, ok := As(err); ok {
		return xe
	}
	return Wrap(CodeInternal, err.Error(), nil, err)
}

// HasCode 报告 err 链上的 XError 是否带有任一给定 code。
func HasCode(err error, codes ...Code) bool {
	xe, ok := As(err)
	return ok && slices.Contains(codes, xe.Code)
}

// IsHostKeyRejection 报告 err 是否是 host key 被拒绝（未知主机或不匹配）。
func IsHostKeyRejection(err error) bool {
	return HasCode(err, CodeHostKeyUnknown, CodeHostKeyMismatch)
}
