package msgs

import (
	"errors"
	"fmt"
)

const (
	// DeviceNameLen is the fixed length of a head device name.
	DeviceNameLen = 5
	// MaxWaitTime is the largest wait time code.
	MaxWaitTime = 0x0f
	// HexPerWord is the number of hex characters encoding one word.
	HexPerWord = 4
)

var (
	// ErrNoCommand indicates a Request without a command.
	ErrNoCommand = errors.New("msgs: request has no command")
	// ErrWaitTime indicates a wait time outside 0-15.
	ErrWaitTime = errors.New("msgs: wait time out of range")
	// ErrCommandType indicates a command other than a ReadWords or
	// WriteWords value.
	ErrCommandType = errors.New("msgs: unsupported command type")
)

// FieldError reports an invalid field value.
type FieldError struct {
	Field  string
	Value  string
	Reason string
}

// Error implements error.
func (e *FieldError) Error() string {
	return fmt.Sprintf("msgs: invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// ValidDeviceName reports whether name has exactly DeviceNameLen printable
// ASCII characters.
func ValidDeviceName(name string) bool {
	if len(name) != DeviceNameLen {
		return false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < 0x20 || name[i] > 0x7e {
			return false
		}
	}
	return true
}

// IsHex reports whether s consists of hex digits only.
func IsHex(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isHexDigit(s[i]) {
			return false
		}
	}
	return true
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}

func validateDevice(name string) error {
	if !ValidDeviceName(name) {
		return &FieldError{Field: "head device", Value: name, Reason: "must be 5 printable ASCII characters"}
	}
	return nil
}

// Validate checks the command fields.
func (c ReadWords) Validate() error {
	return validateDevice(c.HeadDevice)
}

// Validate checks the command fields, including len(Data) == Count*4.
func (c WriteWords) Validate() error {
	if err := validateDevice(c.HeadDevice); err != nil {
		return err
	}
	if len(c.Data) != int(c.Count)*HexPerWord {
		return &FieldError{
			Field:  "data",
			Value:  c.Data,
			Reason: fmt.Sprintf("length %d, expect %d for %d points", len(c.Data), int(c.Count)*HexPerWord, c.Count),
		}
	}
	if !IsHex(c.Data) {
		return &FieldError{Field: "data", Value: c.Data, Reason: "not hex"}
	}
	return nil
}

// Validate checks the request and its command.
func (m Request) Validate() error {
	if m.WaitTime > MaxWaitTime {
		return ErrWaitTime
	}
	switch c := m.Command.(type) {
	case nil:
		return ErrNoCommand
	case ReadWords:
		return c.Validate()
	case WriteWords:
		return c.Validate()
	}
	return fmt.Errorf("%w: %T", ErrCommandType, m.Command)
}

// Validate checks the response payload is hex.
func (m Response) Validate() error {
	if !IsHex(m.Data) {
		return &FieldError{Field: "data", Value: m.Data, Reason: "not hex"}
	}
	return nil
}

// Validate implements Message.
func (Ack) Validate() error { return nil }

// Validate implements Message.
func (Nak) Validate() error { return nil }

// Validate implements Message.
func (NakWithError) Validate() error { return nil }
