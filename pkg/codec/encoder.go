package codec

import (
	"fmt"
	"io"

	"github.com/robotalks/fxlink/pkg/msgs"
)

// Encode returns the frame of msg including the terminator.
func Encode(msg msgs.Message) ([]byte, error) {
	return AppendEncode(nil, msg)
}

// AppendEncode appends the frame of msg to dst.
// Invalid messages are rejected rather than truncated or padded.
func AppendEncode(dst []byte, msg msgs.Message) ([]byte, error) {
	if msg == nil {
		return dst, fmt.Errorf("%w: nil", ErrInvalidMessage)
	}
	if err := msg.Validate(); err != nil {
		return dst, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	switch m := msg.(type) {
	case msgs.Response:
		dst = append(dst, STX)
		start := len(dst)
		dst = appendAddress(dst, m.Address)
		dst = append(dst, m.Data...)
		dst = append(dst, ETX)
		dst = appendHex(dst, Checksum(dst[start:]))
	case msgs.Ack:
		dst = appendAddress(append(dst, ACK), m.Address)
	case msgs.Nak:
		dst = appendAddress(append(dst, NAK), m.Address)
	case msgs.NakWithError:
		dst = appendAddress(append(dst, NAK), m.Address)
		dst = appendHex(dst, m.ErrorCode)
	case msgs.Request:
		var data string
		switch c := m.Command.(type) {
		case msgs.WriteWords:
			data = c.Data
		case msgs.ReadWords:
		default:
			return dst, fmt.Errorf("%w: command type %T", ErrInvalidMessage, m.Command)
		}
		dst = append(dst, ENQ)
		start := len(dst)
		dst = appendAddress(dst, m.Address)
		dst = append(dst, m.Command.Code()...)
		dst = append(dst, hexDigits[m.WaitTime&0x0f])
		dst = append(dst, m.Command.Device()...)
		dst = appendHex(dst, m.Command.Points())
		dst = append(dst, data...)
		dst = appendHex(dst, Checksum(dst[start:]))
	default:
		return dst, fmt.Errorf("%w: unsupported type %T", ErrInvalidMessage, msg)
	}
	return append(dst, LF), nil
}

// Encoder writes frames to an io.Writer.
type Encoder struct {
	w   io.Writer
	buf []byte
}

// NewEncoder creates an Encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes one complete frame.
func (e *Encoder) Encode(msg msgs.Message) error {
	frame, err := AppendEncode(e.buf[:0], msg)
	if err != nil {
		return err
	}
	e.buf = frame
	for len(frame) > 0 {
		n, err := e.w.Write(frame)
		if err != nil {
			return err
		}
		frame = frame[n:]
	}
	return nil
}

func appendAddress(dst []byte, addr msgs.Address) []byte {
	return appendHex(appendHex(dst, addr.Station), addr.PLC)
}
