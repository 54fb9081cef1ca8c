package agentstream

import (
	"errors"
	"fmt"
)

// ErrCanceled is returned by Handle.Wait when the stream was canceled by its
// caller. It is never a failure.
var ErrCanceled = errors.New("agent stream canceled")

// TransportError is a connection failure or a non-success response status.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("agent responded %d: %s", e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("agent responded %d", e.StatusCode)
	case e.Err != nil:
		return "agent transport: " + e.Err.Error()
	default:
		return "agent transport failed"
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError is a single malformed record. The stream continues past it.
type DecodeError struct {
	Record []byte
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed record (%d bytes): %v", len(e.Record), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsCanceled reports whether err is a caller cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}
