package agenterrs

import (
	"fmt"
	"time"
)

// TimeoutError represents a control request that exceeded its deadline.
// The session continues; only the one request fails.
type TimeoutError struct {
	*BaseError
	requestID string
	timeout   time.Duration
}

// NewTimeoutError creates a new correlation timeout error.
func NewTimeoutError(requestID, subtype string, timeout time.Duration) *TimeoutError {
	err := &TimeoutError{
		BaseError: NewBaseError(
			CategoryControl,
			ErrCodeRequestTimeout,
			fmt.Sprintf("control request %q timed out after %s", subtype, timeout),
			nil,
		),
		requestID: requestID,
		timeout:   timeout,
	}
	err.WithMetadata("request_id", requestID)
	err.WithMetadata("subtype", subtype)
	err.WithMetadata("timeout", timeout.String())

	return err
}

// RequestID returns the ID of the request that timed out.
func (e *TimeoutError) RequestID() string {
	return e.requestID
}

// Timeout returns the deadline that was exceeded.
func (e *TimeoutError) Timeout() time.Duration {
	return e.timeout
}

// ProtocolError represents an error outcome reported by the remote in a
// control response. The session continues; only the one request fails.
type ProtocolError struct {
	*BaseError
	requestID string
}

// NewProtocolError creates a new remote-reported protocol error.
func NewProtocolError(requestID, message string) *ProtocolError {
	err := &ProtocolError{
		BaseError: NewBaseError(CategoryControl, ErrCodeRequestFailed, message, nil),
		requestID: requestID,
	}
	err.WithMetadata("request_id", requestID)

	return err
}

// RequestID returns the ID of the failed request.
func (e *ProtocolError) RequestID() string {
	return e.requestID
}
