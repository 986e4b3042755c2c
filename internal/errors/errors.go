package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"sync"
)

// Code 表示系统内的统一错误码。
type Code string

// Severity 描述错误的严重程度，用于告警和审计。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Attributes 为错误码提供默认行为。
type Attributes struct {
	Message    string
	Severity   Severity
	Retryable  bool
	Alert      bool
	HTTPStatus int
}

const (
	CodeUnknown         Code = "UNKNOWN"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeConflict        Code = "CONFLICT"
	CodeInternal        Code = "INTERNAL"
	CodeTimeout         Code = "TIMEOUT"
	CodeUnavailable     Code = "UNAVAILABLE"
)

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown: {
			Message:    "unknown error",
			Severity:   SeverityCritical,
			Alert:      true,
			HTTPStatus: http.StatusInternalServerError,
		},
		CodeInvalidArgument: {
			Message:    "invalid argument",
			Severity:   SeverityInfo,
			HTTPStatus: http.StatusBadRequest,
		},
		CodeNotFound: {
			Message:    "resource not found",
			Severity:   SeverityInfo,
			HTTPStatus: http.StatusNotFound,
		},
		CodeInvalidState: {
			Message:    "resource is not in the required state",
			Severity:   SeverityInfo,
			HTTPStatus: http.StatusBadRequest,
		},
		CodeConflict: {
			Message:    "resource conflict",
			Severity:   SeverityWarning,
			HTTPStatus: http.StatusConflict,
		},
		CodeInternal: {
			Message:    "internal error",
			Severity:   SeverityCritical,
			Alert:      true,
			HTTPStatus: http.StatusInternalServerError,
		},
		CodeTimeout: {
			Message:    "operation timed out",
			Severity:   SeverityWarning,
			Retryable:  true,
			Alert:      true,
			HTTPStatus: http.StatusInternalServerError,
		},
		CodeUnavailable: {
			Message:    "service not initialized",
			Severity:   SeverityWarning,
			Retryable:  true,
			Alert:      true,
			HTTPStatus: http.StatusServiceUnavailable,
		},
	}
)

// Register 允许业务模块在初始化阶段注册新的错误码描述。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if attr.HTTPStatus == 0 {
		attr.HTTPStatus = http.StatusInternalServerError
	}
	registry[code] = attr
}

// AttributesOf 返回错误码对应的属性。若未注册则返回 UNKNOWN 的属性。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error 是系统内统一的错误类型。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
	severity *Severity
}

// Option 定义可选配置。
type Option func(*Error)

// WithMetadata 附加额外信息。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithSeverity 覆盖默认严重程度。
func WithSeverity(sev Severity) Option {
	return func(e *Error) {
		e.severity = &sev
	}
}

// New 创建一个新的错误实例。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 在已有错误外包裹统一错误类型。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

// Error 实现 error 接口。
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Unwrap 实现 errors.Unwrap。
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 允许通过 errors.Is 判断是否相同错误码。
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回不含底层原因的错误信息。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加信息。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// Severity 返回错误严重程度。
func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	if e.severity != nil {
		return *e.severity
	}
	return AttributesOf(e.code).Severity
}

// From 尝试从 error 中解析统一错误类型。
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误对应的错误码。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// HTTPStatus 返回错误应当映射的 HTTP 状态码。
func HTTPStatus(err error) int {
	return AttributesOf(CodeOf(err)).HTTPStatus
}

// RetryableError 判断任意 error 是否可重试。
func RetryableError(err error) bool {
	return AttributesOf(CodeOf(err)).Retryable
}

// ShouldAlert 判断是否需要触发告警。
func ShouldAlert(err error) bool {
	return AttributesOf(CodeOf(err)).Alert
}

// SeverityOf 返回错误严重程度。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}

// Exposed 判断错误信息能否原样返回给调用方。内部错误只暴露注册的通用信息。
func Exposed(err error) string {
	e, ok := From(err)
	if !ok {
		return AttributesOf(CodeInternal).Message
	}
	if AttributesOf(e.code).HTTPStatus >= http.StatusInternalServerError {
		return AttributesOf(e.code).Message
	}
	return e.message
}
