package agenterrs

import "errors"

// AsEngineError extracts an EngineError from the error chain.
func AsEngineError(err error) (EngineError, bool) {
	var engErr EngineError
	if errors.As(err, &engErr) {
		return engErr, true
	}

	return nil, false
}

// IsDecodeError checks if the error is a recoverable decode error.
func IsDecodeError(err error) bool {
	if engErr, ok := AsEngineError(err); ok {
		return engErr.Code() == ErrCodeDecodeFailed
	}

	return false
}

// IsTimeout checks if the error is a control request timeout.
func IsTimeout(err error) bool {
	if engErr, ok := AsEngineError(err); ok {
		return engErr.Code() == ErrCodeRequestTimeout
	}

	return false
}

// IsProtocolError checks if the error is a remote-reported request failure.
func IsProtocolError(err error) bool {
	if engErr, ok := AsEngineError(err); ok {
		return engErr.Code() == ErrCodeRequestFailed
	}

	return false
}

// IsToolError checks if the error is a tool execution failure.
func IsToolError(err error) bool {
	if engErr, ok := AsEngineError(err); ok {
		return engErr.Code() == ErrCodeToolFailed
	}

	return false
}

// IsTransportError checks if the error is a fatal transport failure.
func IsTransportError(err error) bool {
	if engErr, ok := AsEngineError(err); ok {
		return engErr.Category() == CategoryTransport
	}

	return false
}

// IsSessionClosed checks if the error reports an explicitly closed session.
func IsSessionClosed(err error) bool {
	if engErr, ok := AsEngineError(err); ok {
		return engErr.Code() == ErrCodeSessionClosed
	}

	return false
}

// IsConfigError checks if the error is a configuration error.
func IsConfigError(err error) bool {
	if engErr, ok := AsEngineError(err); ok {
		return engErr.Category() == CategoryConfig
	}

	return false
}
