package msgs

import "fmt"

// Address identifies the responding device on the link.
type Address struct {
	Station byte
	PLC     byte
}

// NewAddress creates an Address.
func NewAddress(station, plc byte) Address {
	return Address{Station: station, PLC: plc}
}

// String implements fmt.Stringer.
func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X", a.Station, a.PLC)
}

// Kind selects the message variant.
type Kind int

// Message kinds.
const (
	KindRequest Kind = iota
	KindAck
	KindNak
	KindNakWithError
	KindResponse
)

var kindNames = [...]string{"Request", "Ack", "Nak", "NakWithError", "Response"}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Message is the closed set of protocol messages.
type Message interface {
	Kind() Kind
	Addr() Address
	Validate() error

	message()
}

// Command is the closed set of request commands.
type Command interface {
	// Code returns the two character command code on the wire.
	Code() string
	// Device returns the head device name.
	Device() string
	// Points returns the number of device points (words).
	Points() byte
	Validate() error

	command()
}

// Command codes.
const (
	CodeReadWords  = "WR"
	CodeWriteWords = "WW"
)

// ReadWords reads Count words starting at HeadDevice.
type ReadWords struct {
	HeadDevice string
	Count      byte
}

// WriteWords writes Count words starting at HeadDevice.
// Data holds Count*4 hex characters.
type WriteWords struct {
	HeadDevice string
	Count      byte
	Data       string
}

// Request is sent by the master.
type Request struct {
	Address  Address
	Command  Command
	WaitTime byte
}

// Response carries the data of a read.
type Response struct {
	Address Address
	Data    string
}

// Ack is a positive acknowledgement.
type Ack struct {
	Address Address
}

// Nak is a negative acknowledgement.
type Nak struct {
	Address Address
}

// NakWithError is a negative acknowledgement with a diagnostic code.
type NakWithError struct {
	Address   Address
	ErrorCode byte
}

// NewReadRequest creates a ReadWords request.
func NewReadRequest(addr Address, waitTime byte, device string, count byte) Request {
	return Request{
		Address:  addr,
		WaitTime: waitTime,
		Command:  ReadWords{HeadDevice: device, Count: count},
	}
}

// NewWriteRequest creates a WriteWords request.
func NewWriteRequest(addr Address, waitTime byte, device string, count byte, data string) Request {
	return Request{
		Address:  addr,
		WaitTime: waitTime,
		Command:  WriteWords{HeadDevice: device, Count: count, Data: data},
	}
}

func (ReadWords) command()  {}
func (WriteWords) command() {}

// Code implements Command.
func (ReadWords) Code() string { return CodeReadWords }

// Device implements Command.
func (c ReadWords) Device() string { return c.HeadDevice }

// Points implements Command.
func (c ReadWords) Points() byte { return c.Count }

// Code implements Command.
func (WriteWords) Code() string { return CodeWriteWords }

// Device implements Command.
func (c WriteWords) Device() string { return c.HeadDevice }

// Points implements Command.
func (c WriteWords) Points() byte { return c.Count }

func (Request) message()      {}
func (Response) message()     {}
func (Ack) message()          {}
func (Nak) message()          {}
func (NakWithError) message() {}

// Kind implements Message.
func (Request) Kind() Kind { return KindRequest }

// Kind implements Message.
func (Response) Kind() Kind { return KindResponse }

// Kind implements Message.
func (Ack) Kind() Kind { return KindAck }

// Kind implements Message.
func (Nak) Kind() Kind { return KindNak }

// Kind implements Message.
func (NakWithError) Kind() Kind { return KindNakWithError }

// Addr implements Message.
func (m Request) Addr() Address { return m.Address }

// Addr implements Message.
func (m Response) Addr() Address { return m.Address }

// Addr implements Message.
func (m Ack) Addr() Address { return m.Address }

// Addr implements Message.
func (m Nak) Addr() Address { return m.Address }

// Addr implements Message.
func (m NakWithError) Addr() Address { return m.Address }

func (m Request) String() string {
	switch c := m.Command.(type) {
	case WriteWords:
		return fmt.Sprintf("Request{%s wait=%X WW %s x%d %s}", m.Address, m.WaitTime, c.HeadDevice, c.Count, c.Data)
	case ReadWords:
		return fmt.Sprintf("Request{%s wait=%X WR %s x%d}", m.Address, m.WaitTime, c.HeadDevice, c.Count)
	}
	return fmt.Sprintf("Request{%s wait=%X %T}", m.Address, m.WaitTime, m.Command)
}

func (m Response) String() string {
	return fmt.Sprintf("Response{%s %s}", m.Address, m.Data)
}

func (m Ack) String() string { return fmt.Sprintf("Ack{%s}", m.Address) }

func (m Nak) String() string { return fmt.Sprintf("Nak{%s}", m.Address) }

func (m NakWithError) String() string {
	return fmt.Sprintf("NakWithError{%s code=%02X}", m.Address, m.ErrorCode)
}
