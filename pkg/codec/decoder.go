package codec

import (
	"bytes"
	"fmt"

	"github.com/robotalks/fxlink/pkg/msgs"
)

// MaxFrameLength is the length of the longest legal line, a WW request of
// 255 words followed by CR, excluding LF.
const MaxFrameLength = 1 + 4 + 2 + 1 + msgs.DeviceNameLen + 2 + 0xff*msgs.HexPerWord + 2 + 1

// DefaultMaxLineLength is the default limit of a single line, excluding the
// terminator.
const DefaultMaxLineLength = MaxFrameLength

// Decoder decodes frames from bytes fed by Write.
// It is not safe for concurrent use.
type Decoder struct {
	// MaxLineLength limits a line. Zero or negative uses DefaultMaxLineLength.
	MaxLineLength int

	buf        bytes.Buffer
	nextIndex  int
	discarding bool
}

// NewDecoder creates a Decoder with the default line limit.
func NewDecoder() *Decoder {
	return &Decoder{MaxLineLength: DefaultMaxLineLength}
}

// Write appends received bytes. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	return d.buf.Write(p)
}

// Buffered returns the number of bytes not yet consumed.
func (d *Decoder) Buffered() int {
	return d.buf.Len()
}

// Discarding reports whether the decoder is skipping an over-long line.
func (d *Decoder) Discarding() bool {
	return d.discarding
}

// Reset drops all buffered bytes and the scan state.
func (d *Decoder) Reset() {
	d.buf.Reset()
	d.nextIndex = 0
	d.discarding = false
}

func (d *Decoder) maxLen() int {
	if d.MaxLineLength <= 0 {
		return DefaultMaxLineLength
	}
	return d.MaxLineLength
}

// Decode returns the next message.
// It returns (nil, nil) when more bytes are needed. On error the offending
// line is already consumed and the next call continues with the next line.
func (d *Decoder) Decode() (msgs.Message, error) {
	for {
		buffered := d.buf.Bytes()
		readTo := len(buffered)
		if limit := d.maxLen() + 1; limit < readTo {
			readTo = limit
		}
		if d.nextIndex > readTo {
			d.nextIndex = readTo
		}
		offset := bytes.IndexByte(buffered[d.nextIndex:readTo], LF)

		if d.discarding {
			if offset >= 0 {
				d.buf.Next(d.nextIndex + offset + 1)
				d.discarding = false
			} else {
				d.buf.Next(readTo)
			}
			d.nextIndex = 0
			if d.discarding && d.buf.Len() == 0 {
				return nil, nil
			}
			continue
		}

		if offset >= 0 {
			lineEnd := d.nextIndex + offset
			d.nextIndex = 0
			line := d.buf.Next(lineEnd + 1)
			return decodeLine(line[:lineEnd])
		}
		if d.buf.Len() > d.maxLen() {
			d.discarding = true
			return nil, ErrLineTooLong
		}
		d.nextIndex = readTo
		return nil, nil
	}
}

// DecodeFrame decodes a single line, with or without its terminator.
func DecodeFrame(line []byte) (msgs.Message, error) {
	if n := len(line); n > 0 && line[n-1] == LF {
		line = line[:n-1]
	}
	return decodeLine(line)
}

func decodeLine(line []byte) (msgs.Message, error) {
	if n := len(line); n > 0 && line[n-1] == CR {
		line = line[:n-1]
	}
	if len(line) == 0 {
		return nil, &DecodeError{Err: ErrEmptyFrame}
	}
	marker, body := line[0], line[1:]
	switch marker {
	case STX:
		return decodeResponse(body)
	case ACK:
		return decodeAck(body)
	case NAK:
		return decodeNak(body)
	case ENQ:
		return decodeRequest(body)
	}
	return nil, &DecodeError{Marker: marker, Err: ErrUnknownMarker}
}

func decodeResponse(body []byte) (msgs.Message, error) {
	payload, err := verifyChecksum(STX, body)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 || payload[len(payload)-1] != ETX {
		return nil, &DecodeError{Marker: STX, Field: "etx", Err: ErrMissingETX}
	}
	r := newFieldReader(STX, payload[:len(payload)-1])
	addr, err := r.address()
	if err != nil {
		return nil, err
	}
	data, err := r.hexString("data", r.rest())
	if err != nil {
		return nil, err
	}
	return msgs.Response{Address: addr, Data: data}, nil
}

func decodeAck(body []byte) (msgs.Message, error) {
	if len(body) != 4 {
		return nil, &DecodeError{Marker: ACK, Err: fmt.Errorf("%w: frame length %d", ErrFieldWidth, len(body))}
	}
	addr, err := newFieldReader(ACK, body).address()
	if err != nil {
		return nil, err
	}
	return msgs.Ack{Address: addr}, nil
}

func decodeNak(body []byte) (msgs.Message, error) {
	r := newFieldReader(NAK, body)
	switch len(body) {
	case 4:
		addr, err := r.address()
		if err != nil {
			return nil, err
		}
		return msgs.Nak{Address: addr}, nil
	case 6:
		addr, err := r.address()
		if err != nil {
			return nil, err
		}
		code, err := r.hexByte("error code")
		if err != nil {
			return nil, err
		}
		return msgs.NakWithError{Address: addr, ErrorCode: code}, nil
	}
	return nil, &DecodeError{Marker: NAK, Err: fmt.Errorf("%w: frame length %d", ErrFieldWidth, len(body))}
}

func decodeRequest(body []byte) (msgs.Message, error) {
	payload, err := verifyChecksum(ENQ, body)
	if err != nil {
		return nil, err
	}
	r := newFieldReader(ENQ, payload)
	var req msgs.Request
	if req.Address, err = r.address(); err != nil {
		return nil, err
	}
	code, err := r.text("command", 2)
	if err != nil {
		return nil, err
	}
	if code != msgs.CodeReadWords && code != msgs.CodeWriteWords {
		return nil, r.fail("command", fmt.Errorf("%w %q", ErrUnknownCommand, code))
	}
	if req.WaitTime, err = r.hexNibble("wait time"); err != nil {
		return nil, err
	}
	device, err := r.text("head device", msgs.DeviceNameLen)
	if err != nil {
		return nil, err
	}
	count, err := r.hexByte("points")
	if err != nil {
		return nil, err
	}
	switch code {
	case msgs.CodeWriteWords:
		raw := r.rest()
		if expected := int(count) * msgs.HexPerWord; len(raw) != expected {
			return nil, r.fail("data", fmt.Errorf("%w: %d, expect %d", ErrDataLength, len(raw), expected))
		}
		data, err := r.hexString("data", raw)
		if err != nil {
			return nil, err
		}
		req.Command = msgs.WriteWords{HeadDevice: device, Count: count, Data: data}
	default:
		if err := r.end(); err != nil {
			return nil, err
		}
		req.Command = msgs.ReadWords{HeadDevice: device, Count: count}
	}
	return req, nil
}
