package comm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/fxlink/pkg/msgs"
)

// DefaultTimeout is the default reply timeout.
const DefaultTimeout = time.Second

// TxState is the state of the master transaction engine.
type TxState int32

// Transaction states.
const (
	StateIdle TxState = iota
	StateAwaitingReply
	StateAwaitingResponse
	StateAwaitingClose
)

func (s TxState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingReply:
		return "AwaitingReply"
	case StateAwaitingResponse:
		return "AwaitingResponse"
	case StateAwaitingClose:
		return "AwaitingClose"
	}
	return fmt.Sprintf("TxState(%d)", int32(s))
}

// Client is the master side of the link.
// It runs one transaction at a time; a call made while another one is in
// flight fails with ErrBusy.
type Client struct {
	Address  msgs.Address
	WaitTime byte
	// Timeout bounds the wait for each reply. Zero leaves it to the caller's
	// context.
	Timeout time.Duration

	conn  *Conn
	state int32
}

// NewClient creates a Client talking to addr over conn.
func NewClient(conn *Conn, addr msgs.Address) *Client {
	return &Client{Address: addr, Timeout: DefaultTimeout, conn: conn}
}

// Conn returns the underlying Conn.
func (c *Client) Conn() *Conn {
	return c.conn
}

// State returns the current transaction state.
func (c *Client) State() TxState {
	return TxState(atomic.LoadInt32(&c.state))
}

// WriteInt16 writes a signed 16-bit value to one word at device.
func (c *Client) WriteInt16(ctx context.Context, device string, value int16) error {
	return c.Write(ctx, device, 1, fmt.Sprintf("%04X", uint16(value)))
}

// WriteInt32 writes a signed 32-bit value to two words starting at device.
func (c *Client) WriteInt32(ctx context.Context, device string, value int32) error {
	return c.Write(ctx, device, 2, fmt.Sprintf("%08X", uint32(value)))
}

// ReadInt16 reads a signed 16-bit value from one word at device.
func (c *Client) ReadInt16(ctx context.Context, device string) (int16, error) {
	v, err := c.readUint(ctx, device, 1)
	return int16(uint16(v)), err
}

// ReadInt32 reads a signed 32-bit value from two words starting at device.
func (c *Client) ReadInt32(ctx context.Context, device string) (int32, error) {
	v, err := c.readUint(ctx, device, 2)
	return int32(uint32(v)), err
}

func (c *Client) readUint(ctx context.Context, device string, count byte) (uint64, error) {
	data, err := c.Read(ctx, device, count)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(data, 16, int(count)*16)
	if err != nil {
		return 0, fmt.Errorf("comm: parse %q: %w", data, err)
	}
	return v, nil
}

// Write sends a WW request and waits for the Ack.
// data must hold count*4 hex characters.
func (c *Client) Write(ctx context.Context, device string, count byte, data string) error {
	if err := c.begin(StateAwaitingReply); err != nil {
		return err
	}
	defer c.end()

	if err := c.conn.WriteMessage(msgs.NewWriteRequest(c.Address, c.WaitTime, device, count, data)); err != nil {
		return err
	}
	reply, err := c.awaitReply(ctx)
	if err != nil {
		return err
	}
	if _, ok := reply.(msgs.Ack); ok {
		return nil
	}
	return &ProtocolError{Expected: msgs.KindAck, Got: reply}
}

// Read sends a WR request, waits for the Response and closes the transaction
// with Ack. It returns the payload of count*4 hex characters.
// An unexpected reply is closed with Nak and reported as *ProtocolError.
func (c *Client) Read(ctx context.Context, device string, count byte) (string, error) {
	if err := c.begin(StateAwaitingResponse); err != nil {
		return "", err
	}
	defer c.end()

	if err := c.conn.WriteMessage(msgs.NewReadRequest(c.Address, c.WaitTime, device, count)); err != nil {
		return "", err
	}
	reply, err := c.awaitReply(ctx)
	if err != nil {
		return "", err
	}
	resp, ok := reply.(msgs.Response)
	if !ok {
		return "", c.reject(&ProtocolError{Expected: msgs.KindResponse, Got: reply})
	}
	if expected := int(count) * msgs.HexPerWord; len(resp.Data) != expected {
		return "", c.reject(&ProtocolError{
			Expected: msgs.KindResponse,
			Got:      reply,
			Reason:   fmt.Sprintf("%d hex characters, expect %d", len(resp.Data), expected),
		})
	}
	c.setState(StateAwaitingClose)
	if err := c.conn.WriteMessage(msgs.Ack{Address: c.Address}); err != nil {
		return "", err
	}
	return resp.Data, nil
}

func (c *Client) reject(cause *ProtocolError) error {
	c.setState(StateAwaitingClose)
	glog.Warningf("%s: %v", c.Address, cause)
	if err := c.conn.WriteMessage(msgs.Nak{Address: c.Address}); err != nil {
		return err
	}
	return cause
}

func (c *Client) begin(state TxState) error {
	if !atomic.CompareAndSwapInt32(&c.state, int32(StateIdle), int32(state)) {
		return ErrBusy
	}
	// late replies of abandoned transactions
	c.conn.Discard()
	return nil
}

func (c *Client) setState(state TxState) {
	atomic.StoreInt32(&c.state, int32(state))
}

func (c *Client) end() {
	c.setState(StateIdle)
}

func (c *Client) awaitReply(ctx context.Context) (msgs.Message, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	msg, err := c.conn.ReadMessage(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		glog.Warningf("%s: no reply in %v", c.Address, c.Timeout)
		return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return msg, err
}
