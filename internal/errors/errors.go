package errors

import (
	stdErrors "errors"
	"fmt"
	"log/slog"
	"maps"
)

// Code 表示系统内的统一错误码。
type Code string

// Severity 描述错误的严重程度，决定告警级别。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeConflict              Code = "CONFLICT"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodePublishFailure        Code = "PUBLISH_FAILURE"
	CodeUpstreamUnavailable   Code = "UPSTREAM_UNAVAILABLE"
	CodeUpstreamRejected      Code = "UPSTREAM_REJECTED"
	CodeIntentInvalid         Code = "INTENT_INVALID"
	CodeFlowActive            Code = "FLOW_ACTIVE"
	CodeTimeout               Code = "TIMEOUT"
)

// profile 是错误码的默认描述与告警策略。
type profile struct {
	message  string
	severity Severity
	alert    bool
}

// profiles 覆盖钱包助手的全部错误场景：钱包 API 与模型服务归为上游，
// 会话、流程与历史存储归为存储。
var profiles = map[Code]profile{
	CodeUnknown:               {"unknown error", SeverityCritical, true},
	CodeInvalidArgument:       {"invalid argument", SeverityInfo, false},
	CodeNotFound:              {"resource not found", SeverityInfo, false},
	CodeConflict:              {"resource conflict", SeverityWarning, false},
	CodeInitializationFailure: {"service not initialized", SeverityWarning, true},
	CodeStorageFailure:        {"storage failure", SeverityCritical, true},
	CodePublishFailure:        {"event publish failure", SeverityWarning, false},
	CodeUpstreamUnavailable:   {"upstream service unavailable", SeverityCritical, true},
	CodeUpstreamRejected:      {"upstream service rejected the request", SeverityWarning, false},
	CodeIntentInvalid:         {"intent could not be resolved", SeverityInfo, false},
	CodeFlowActive:            {"another flow is already active", SeverityInfo, false},
	CodeTimeout:               {"operation timed out", SeverityWarning, true},
}

func profileOf(code Code) profile {
	if p, ok := profiles[code]; ok {
		return p
	}
	return profiles[CodeUnknown]
}

// Error 是系统内统一的错误类型。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
	alert    bool
	severity Severity
}

// Option 定义可选配置。
type Option func(*Error)

// WithMetadata 附加额外信息，例如上游服务名或 HTTP 状态码。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithAlert 覆盖错误码默认的告警策略。
func WithAlert(alert bool) Option {
	return func(e *Error) { e.alert = alert }
}

// New 创建一个新的错误实例，message 为空时使用错误码的默认描述。
func New(code Code, message string, opts ...Option) *Error {
	p := profileOf(code)
	if message == "" {
		message = p.message
	}
	e := &Error{code: code, message: message, alert: p.alert, severity: p.severity}
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

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 按错误码比较，使 errors.Is 可以匹配包级哨兵错误。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

// LogValue 让 slog 以结构化字段输出错误。
func (e *Error) LogValue() slog.Value {
	if e == nil {
		return slog.StringValue("")
	}
	attrs := []slog.Attr{
		slog.String("code", string(e.code)),
		slog.String("message", e.message),
	}
	if e.cause != nil {
		attrs = append(attrs, slog.String("cause", e.cause.Error()))
	}
	for k, v := range e.metadata {
		attrs = append(attrs, slog.String(k, v))
	}
	return slog.GroupValue(attrs...)
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加信息的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	return maps.Clone(e.metadata)
}

func (e *Error) MetadataValue(key string) string {
	if e == nil {
		return ""
	}
	return e.metadata[key]
}

func (e *Error) ShouldAlert() bool { return e != nil && e.alert }

func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	return e.severity
}

// From 从错误链中取出第一个统一错误。
func From(err error) (*Error, bool) {
	var target *Error
	if err == nil || !stdErrors.As(err, &target) {
		return nil, false
	}
	return target, true
}

// CodeOf 返回错误对应的错误码，非统一错误视为 UNKNOWN。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// HasCode 判断错误链中是否包含指定错误码。
func HasCode(err error, code Code) bool {
	return stdErrors.Is(err, &Error{code: code})
}

// ShouldAlert 判断是否需要触发告警。
func ShouldAlert(err error) bool {
	e, ok := From(err)
	return ok && e.ShouldAlert()
}

// SeverityOf 返回错误严重程度，非统一错误按 UNKNOWN 处理。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return profileOf(CodeUnknown).severity
}
