package agenterrs

// TransportError represents a fatal transport-level failure. It cascades:
// every outstanding request and every queued or active turn is failed with
// it, and the session transitions to its closed state.
type TransportError struct {
	*BaseError
}

// NewTransportError creates a new fatal transport error.
func NewTransportError(code ErrorCode, message string, cause error) *TransportError {
	return &TransportError{
		BaseError: NewBaseError(CategoryTransport, code, message, cause),
	}
}

// NewTransportFailure creates the generic fatal transport error used for
// the session close cascade.
func NewTransportFailure(message string, cause error) *TransportError {
	return NewTransportError(ErrCodeTransportFailed, message, cause)
}

// NewSessionClosed creates the error delivered to callers that were
// suspended when the session was explicitly closed.
func NewSessionClosed() *BaseError {
	return NewBaseError(CategoryControl, ErrCodeSessionClosed, "session closed", nil)
}

// ConfigError represents invalid session configuration.
type ConfigError struct {
	*BaseError
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string) *ConfigError {
	return &ConfigError{
		BaseError: NewBaseError(CategoryConfig, ErrCodeInvalidConfig, message, nil),
	}
}
