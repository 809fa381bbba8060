package comm

import (
	"errors"
	"fmt"

	"github.com/robotalks/fxlink/pkg/msgs"
)

var (
	// ErrTimeout indicates no reply arrived in time. The transaction is abandoned.
	ErrTimeout = errors.New("comm: reply timeout")
	// ErrBusy indicates another transaction is still in flight.
	ErrBusy = errors.New("comm: transaction in progress")
	// ErrClosed indicates the Conn is closed.
	ErrClosed = errors.New("comm: closed")
)

// TransportError wraps failures of the underlying byte stream.
type TransportError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("comm: transport %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a reply of the wrong kind for the pending transaction.
type ProtocolError struct {
	Expected msgs.Kind
	Got      msgs.Message
	Reason   string
}

// Error implements error.
func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("comm: expect %s, got %v", e.Expected, e.Got)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// NakCode returns the diagnostic code if the peer replied NakWithError.
func (e *ProtocolError) NakCode() (byte, bool) {
	if nak, ok := e.Got.(msgs.NakWithError); ok {
		return nak.ErrorCode, true
	}
	return 0, false
}
