package agenterrs

import "fmt"

// ToolError represents a tool invocation that failed. It is reported to the
// remote as a successful response carrying an error flag, never as a
// protocol-level error, and surfaced locally for observability.
type ToolError struct {
	*BaseError
	tool string
}

// NewToolError creates a new tool execution error.
func NewToolError(tool string, cause error) *ToolError {
	err := &ToolError{
		BaseError: NewBaseError(
			CategoryCallback,
			ErrCodeToolFailed,
			fmt.Sprintf("tool %q failed", tool),
			cause,
		),
		tool: tool,
	}
	err.WithMetadata("tool", tool)

	return err
}

// Tool returns the name of the tool that failed.
func (e *ToolError) Tool() string {
	return e.tool
}

// CallbackError represents a failure while servicing an inbound callback
// request other than a tool invocation.
type CallbackError struct {
	*BaseError
	subtype string
}

// NewCallbackError creates a new callback error for the given subtype.
func NewCallbackError(code ErrorCode, subtype, message string, cause error) *CallbackError {
	err := &CallbackError{
		BaseError: NewBaseError(CategoryCallback, code, message, cause),
		subtype:   subtype,
	}
	err.WithMetadata("subtype", subtype)

	return err
}

// Subtype returns the callback subtype that failed.
func (e *CallbackError) Subtype() string {
	return e.subtype
}
