package codec

import (
	"fmt"

	"github.com/robotalks/fxlink/pkg/msgs"
)

// fieldReader reads fixed width fields from a frame body. Every accessor
// checks the remaining length before slicing.
type fieldReader struct {
	marker byte
	body   []byte
	pos    int
}

func newFieldReader(marker byte, body []byte) *fieldReader {
	return &fieldReader{marker: marker, body: body}
}

func (r *fieldReader) fail(field string, err error) error {
	return &DecodeError{Marker: r.marker, Field: field, Err: err}
}

func (r *fieldReader) remaining() int {
	return len(r.body) - r.pos
}

func (r *fieldReader) take(field string, n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, r.fail(field, fmt.Errorf("%w: need %d bytes, have %d", ErrFieldWidth, n, r.remaining()))
	}
	b := r.body[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *fieldReader) rest() []byte {
	b := r.body[r.pos:]
	r.pos = len(r.body)
	return b
}

// hexByte reads two hex characters.
func (r *fieldReader) hexByte(field string) (byte, error) {
	b, err := r.take(field, 2)
	if err != nil {
		return 0, err
	}
	hi, ok1 := unhex(b[0])
	lo, ok2 := unhex(b[1])
	if !ok1 || !ok2 {
		return 0, r.fail(field, fmt.Errorf("%w: %q", ErrInvalidHex, b))
	}
	return hi<<4 | lo, nil
}

// hexNibble reads a single hex character.
func (r *fieldReader) hexNibble(field string) (byte, error) {
	b, err := r.take(field, 1)
	if err != nil {
		return 0, err
	}
	v, ok := unhex(b[0])
	if !ok {
		return 0, r.fail(field, fmt.Errorf("%w: %q", ErrInvalidHex, b))
	}
	return v, nil
}

// text reads n printable ASCII characters.
func (r *fieldReader) text(field string, n int) (string, error) {
	b, err := r.take(field, n)
	if err != nil {
		return "", err
	}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return "", r.fail(field, fmt.Errorf("%w: %q", ErrNotText, b))
		}
	}
	return string(b), nil
}

func (r *fieldReader) address() (addr msgs.Address, err error) {
	if addr.Station, err = r.hexByte("station"); err != nil {
		return
	}
	addr.PLC, err = r.hexByte("plc")
	return
}

func (r *fieldReader) hexString(field string, b []byte) (string, error) {
	for _, c := range b {
		if _, ok := unhex(c); !ok {
			return "", r.fail(field, fmt.Errorf("%w: %q", ErrInvalidHex, b))
		}
	}
	return string(b), nil
}

func (r *fieldReader) end() error {
	if n := r.remaining(); n > 0 {
		return r.fail("", fmt.Errorf("%w: %d bytes", ErrTrailingData, n))
	}
	return nil
}

// verifyChecksum splits the trailing checksum from a STX/ENQ body and checks
// it against the sum of the preceding bytes. It returns the checked payload.
func verifyChecksum(marker byte, body []byte) ([]byte, error) {
	if len(body) < 2 {
		return nil, &DecodeError{Marker: marker, Field: "checksum", Err: fmt.Errorf("%w: frame length %d", ErrFieldWidth, len(body))}
	}
	payload := body[:len(body)-2]
	sum, err := newFieldReader(marker, body[len(body)-2:]).hexByte("checksum")
	if err != nil {
		return nil, err
	}
	if computed := Checksum(payload); computed != sum {
		return nil, &DecodeError{
			Marker: marker,
			Field:  "checksum",
			Err:    fmt.Errorf("%w: got %02X, computed %02X", ErrChecksumMismatch, sum, computed),
		}
	}
	return payload, nil
}
