package registers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/fxlink/pkg/cli/sh"
	"github.com/robotalks/fxlink/pkg/msgs"
)

// Result is printed by the register commands.
type Result struct {
	Device string `json:"device"`
	Bits   int    `json:"bits"`
	Value  int64  `json:"value"`
	Hex    string `json:"hex"`
}

func (r Result) String() string {
	return fmt.Sprintf("%s = %d (0x%s)", r.Device, r.Value, r.Hex)
}

// NewResult formats value read or written as a bits wide word.
func NewResult(device string, bits int, value int64) Result {
	r := Result{Device: device, Bits: bits, Value: value}
	if bits == 16 {
		r.Hex = fmt.Sprintf("%04X", uint16(value))
	} else {
		r.Hex = fmt.Sprintf("%08X", uint32(value))
	}
	return r
}

// ParseDevice validates a head device name.
func ParseDevice(arg string) (string, error) {
	if !msgs.ValidDeviceName(arg) {
		return "", fmt.Errorf("invalid DEVICE %q: %d printable characters expected", arg, msgs.DeviceNameLen)
	}
	return arg, nil
}

// ParseValue parses a signed value, decimal or 0x-prefixed hex.
// Hex values may use the full unsigned range, e.g. 0xFFFF for -1.
func ParseValue(arg string, bits int) (int64, error) {
	if v, err := strconv.ParseInt(arg, 0, bits); err == nil {
		return v, nil
	}
	if !strings.HasPrefix(arg, "0x") && !strings.HasPrefix(arg, "0X") {
		return 0, fmt.Errorf("invalid VALUE %q: out of %d-bit signed range", arg, bits)
	}
	u, err := strconv.ParseUint(arg, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid VALUE %q: %v", arg, err)
	}
	if bits == 16 {
		return int64(int16(uint16(u))), nil
	}
	return int64(int32(uint32(u))), nil
}

func readCmd(bits int) func(c *ishell.Context) {
	return sh.MustBeConnected(func(c *ishell.Context) {
		if len(c.Args) < 1 {
			c.Err(fmt.Errorf("DEVICE required"))
			return
		}
		device, err := ParseDevice(c.Args[0])
		if err != nil {
			c.Err(err)
			return
		}
		client := sh.ShellFrom(c).Client
		var value int64
		if bits == 16 {
			var v int16
			v, err = client.ReadInt16(context.Background(), device)
			value = int64(v)
		} else {
			var v int32
			v, err = client.ReadInt32(context.Background(), device)
			value = int64(v)
		}
		if err != nil {
			c.Err(err)
			return
		}
		sh.Print(c, NewResult(device, bits, value))
	})
}

func writeCmd(bits int) func(c *ishell.Context) {
	return sh.MustBeConnected(func(c *ishell.Context) {
		if len(c.Args) < 2 {
			c.Err(fmt.Errorf("DEVICE and VALUE required"))
			return
		}
		device, err := ParseDevice(c.Args[0])
		if err != nil {
			c.Err(err)
			return
		}
		value, err := ParseValue(c.Args[1], bits)
		if err != nil {
			c.Err(err)
			return
		}
		client := sh.ShellFrom(c).Client
		if bits == 16 {
			err = client.WriteInt16(context.Background(), device, int16(value))
		} else {
			err = client.WriteInt32(context.Background(), device, int32(value))
		}
		if err != nil {
			c.Err(err)
			return
		}
		sh.Print(c, NewResult(device, bits, value))
	})
}

var (
	// Read16Cmd reads a 16-bit value.
	Read16Cmd = ishell.Cmd{
		Name:    "read16",
		Aliases: []string{"r16", "r"},
		Help:    "DEVICE",
		Func:    readCmd(16),
	}

	// Read32Cmd reads a 32-bit value from two words.
	Read32Cmd = ishell.Cmd{
		Name:    "read32",
		Aliases: []string{"r32"},
		Help:    "DEVICE",
		Func:    readCmd(32),
	}

	// Write16Cmd writes a 16-bit value.
	Write16Cmd = ishell.Cmd{
		Name:    "write16",
		Aliases: []string{"w16", "w"},
		Help:    "DEVICE VALUE",
		Func:    writeCmd(16),
	}

	// Write32Cmd writes a 32-bit value to two words.
	Write32Cmd = ishell.Cmd{
		Name:    "write32",
		Aliases: []string{"w32"},
		Help:    "DEVICE VALUE",
		Func:    writeCmd(32),
	}
)

func init() {
	sh.AddCmds(
		&Read16Cmd,
		&Read32Cmd,
		&Write16Cmd,
		&Write32Cmd,
	)
}
