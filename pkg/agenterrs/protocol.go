package agenterrs

// DecodeError represents a single undecodable protocol line. It is
// recoverable: the session reports it and keeps draining the transport.
type DecodeError struct {
	*BaseError
	line string
}

// maxLineExcerpt bounds how much of a bad line is retained in metadata.
const maxLineExcerpt = 256

// NewDecodeError creates a new decode error for one malformed line.
func NewDecodeError(message string, line []byte, cause error) *DecodeError {
	excerpt := string(line)
	if len(excerpt) > maxLineExcerpt {
		excerpt = excerpt[:maxLineExcerpt]
	}

	err := &DecodeError{
		BaseError: NewBaseError(CategoryProtocol, ErrCodeDecodeFailed, message, cause),
		line:      excerpt,
	}
	err.WithMetadata("line", excerpt)

	return err
}

// Line returns an excerpt of the line that failed to decode.
func (e *DecodeError) Line() string {
	return e.line
}
