// Package agenterrs provides the error handling framework for the agentwire
// engine. It defines error categories, codes, and typed constructors so that
// callers can distinguish recoverable per-request failures from fatal
// transport failures.
package agenterrs

// ErrorCategory represents different categories of errors that can occur
// while driving an agent session.
type ErrorCategory string

const (
	// CategoryProtocol represents wire-level errors: malformed lines and
	// frames that cannot be decoded.
	CategoryProtocol ErrorCategory = "protocol"
	// CategoryControl represents control-channel errors: request timeouts
	// and remote-reported request failures.
	CategoryControl ErrorCategory = "control"
	// CategoryCallback represents errors raised while servicing inbound
	// callback requests (hooks, permission checks, tool calls).
	CategoryCallback ErrorCategory = "callback"
	// CategoryTransport represents fatal transport-level errors.
	CategoryTransport ErrorCategory = "transport"
	// CategoryConfig represents invalid session configuration.
	CategoryConfig ErrorCategory = "config"
)

// ErrorCode represents specific error codes within each category.
type ErrorCode string

// Protocol error codes.
const (
	ErrCodeDecodeFailed ErrorCode = "decode_failed"
	ErrCodeMissingField ErrorCode = "missing_field"
)

// Control error codes.
const (
	ErrCodeRequestTimeout ErrorCode = "request_timeout"
	ErrCodeRequestFailed  ErrorCode = "request_failed"
	ErrCodeSessionClosed  ErrorCode = "session_closed"
)

// Callback error codes.
const (
	ErrCodeToolFailed      ErrorCode = "tool_failed"
	ErrCodeUnknownTool     ErrorCode = "unknown_tool"
	ErrCodeUnknownServer   ErrorCode = "unknown_server"
	ErrCodeUnknownSubtype  ErrorCode = "unknown_subtype"
	ErrCodeHookFailed      ErrorCode = "hook_failed"
	ErrCodeCallbackFailed  ErrorCode = "callback_failed"
	ErrCodeUnknownCallback ErrorCode = "unknown_callback"
)

// Transport error codes.
const (
	ErrCodeTransportFailed ErrorCode = "transport_failed"
	ErrCodeWriteFailed     ErrorCode = "write_failed"
	ErrCodeReadFailed      ErrorCode = "read_failed"
	ErrCodeConnectFailed   ErrorCode = "connect_failed"
)

// Config error codes.
const (
	ErrCodeInvalidConfig ErrorCode = "invalid_config"
)

// EngineError represents the base interface for all engine errors.
type EngineError interface {
	error
	// Code returns the error code.
	Code() ErrorCode
	// Category returns the error category.
	Category() ErrorCategory
	// Unwrap returns the underlying error.
	Unwrap() error
	// Metadata returns additional error metadata.
	Metadata() map[string]any
}
