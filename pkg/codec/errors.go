package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrLineTooLong indicates no terminator within the maximum line length.
	// The decoder skips the rest of the line and recovers on the next one.
	ErrLineTooLong = errors.New("codec: line length limit exceeded")
	// ErrInvalidMessage indicates a message can't be encoded.
	ErrInvalidMessage = errors.New("codec: invalid message")

	// ErrEmptyFrame indicates a line without a marker.
	ErrEmptyFrame = errors.New("empty frame")
	// ErrUnknownMarker indicates an unrecognized marker byte.
	ErrUnknownMarker = errors.New("unknown marker")
	// ErrUnknownCommand indicates an unrecognized command code.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrFieldWidth indicates a field is truncated or a frame has the wrong length.
	ErrFieldWidth = errors.New("wrong field width")
	// ErrInvalidHex indicates non-hex characters in a hex field.
	ErrInvalidHex = errors.New("invalid hex")
	// ErrNotText indicates non-printable bytes in a text field.
	ErrNotText = errors.New("not text")
	// ErrDataLength indicates data length doesn't match the number of points.
	ErrDataLength = errors.New("data length mismatch")
	// ErrMissingETX indicates ETX is not found at the expected position.
	ErrMissingETX = errors.New("ETX not found")
	// ErrChecksumMismatch indicates the checksum doesn't match the frame.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrTrailingData indicates unexpected bytes after the last field.
	ErrTrailingData = errors.New("trailing data")
)

// DecodeError describes a malformed frame. The frame has been consumed; the
// decoder continues with the next line.
type DecodeError struct {
	Marker byte
	Field  string
	Err    error
}

// Error implements error.
func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("codec: decode %s frame: %v", markerName(e.Marker), e.Err)
	}
	return fmt.Sprintf("codec: decode %s frame: %s: %v", markerName(e.Marker), e.Field, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

func markerName(m byte) string {
	switch m {
	case STX:
		return "STX"
	case ACK:
		return "ACK"
	case NAK:
		return "NAK"
	case ENQ:
		return "ENQ"
	}
	return fmt.Sprintf("0x%02x", m)
}
