package comm

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/fxlink/pkg/msgs"
)

type serverTestEnv struct {
	client  *Client
	rec     *recorder
	server  *Server
	changes chan RegisterChange
	doneCh  chan error
	cancel  context.CancelFunc
}

func newServerTestEnv(t *testing.T) *serverTestEnv {
	conn, rec, peer := newConnPair(t)
	env := &serverTestEnv{
		client:  NewClient(conn, testAddr),
		rec:     rec,
		server:  NewServer(peer),
		changes: make(chan RegisterChange, 16),
		doneCh:  make(chan error, 1),
	}
	env.server.Notifier = RegisterChangedFunc(func(ctx context.Context, change RegisterChange) {
		env.changes <- change
	})
	var ctx context.Context
	ctx, env.cancel = context.WithCancel(context.Background())
	go func() { env.doneCh <- env.server.Run(ctx) }()
	t.Cleanup(env.cancel)
	return env
}

func (e *serverTestEnv) stop(t *testing.T) error {
	e.cancel()
	select {
	case err := <-e.doneCh:
		return err
	case <-time.After(time.Second):
		t.Fatal("server not stopped")
	}
	return nil
}

func TestServerWriteThenRead(t *testing.T) {
	env := newServerTestEnv(t)
	ctx := testContext(t)

	require.NoError(t, env.client.WriteInt16(ctx, "D0106", 101))
	value, ok := env.server.Registers.Lookup("D0106")
	require.True(t, ok)
	require.Equal(t, "0065", value)

	change := <-env.changes
	require.Equal(t, "D0106", change.Device)
	require.Equal(t, "0065", change.New)
	require.False(t, change.Existed)
	require.Equal(t, testAddr, change.Address)

	env.rec.take()
	v, err := env.client.ReadInt16(ctx, "D0106")
	require.NoError(t, err)
	require.Equal(t, int16(101), v)
	require.Equal(t, "\x0505FFWR0D01060136\n\x0605FF\n", env.rec.take())

	require.NoError(t, env.client.WriteInt16(ctx, "D0106", -101))
	change = <-env.changes
	require.True(t, change.Existed)
	require.Equal(t, "0065", change.Old)
	require.Equal(t, "FF9B", change.New)
}

func TestServerMaxCount(t *testing.T) {
	env := newServerTestEnv(t)
	ctx := testContext(t)
	data := strings.Repeat("0123", 0xff)
	require.NoError(t, env.client.Write(ctx, "D0000", 0xff, data))
	<-env.changes
	read, err := env.client.Read(ctx, "D0000", 0xff)
	require.NoError(t, err)
	require.Equal(t, data, read)
}

func TestServerReadUnwritten(t *testing.T) {
	env := newServerTestEnv(t)
	ctx := testContext(t)
	v, err := env.client.ReadInt16(ctx, "D0999")
	require.NoError(t, err)
	require.Zero(t, v)
	v32, err := env.client.ReadInt32(ctx, "D0998")
	require.NoError(t, err)
	require.Zero(t, v32)
	require.Zero(t, env.server.Registers.Len())
}

func TestServerRoundTripValues(t *testing.T) {
	env := newServerTestEnv(t)
	ctx := testContext(t)
	for _, value := range []int16{0, 1, -1, -101, math.MaxInt16, math.MinInt16} {
		require.NoError(t, env.client.WriteInt16(ctx, "D0010", value))
		v, err := env.client.ReadInt16(ctx, "D0010")
		require.NoError(t, err)
		require.Equal(t, value, v)
	}
	for _, value := range []int32{0, -2, 0x2347AB96, -123456789, math.MaxInt32, math.MinInt32} {
		require.NoError(t, env.client.WriteInt32(ctx, "D0020", value))
		v, err := env.client.ReadInt32(ctx, "D0020")
		require.NoError(t, err)
		require.Equal(t, value, v)
	}
	value, _ := env.server.Registers.Lookup("D0020")
	require.Equal(t, "80000000", value)
}

func TestServerWidthMismatch(t *testing.T) {
	env := newServerTestEnv(t)
	ctx := testContext(t)
	require.NoError(t, env.client.WriteInt32(ctx, "D0030", -2))
	env.rec.take()

	_, err := env.client.ReadInt16(ctx, "D0030")
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, msgs.Response{Address: testAddr, Data: "FFFFFFFE"}, pe.Got)
	require.Equal(t, mustEncode(t,
		msgs.NewReadRequest(testAddr, 0, "D0030", 1),
		msgs.Nak{Address: testAddr},
	), env.rec.take())

	// still serving
	v, err := env.client.ReadInt32(ctx, "D0030")
	require.NoError(t, err)
	require.Equal(t, int32(-2), v)
}

func TestServerIgnoresUnexpected(t *testing.T) {
	env := newServerTestEnv(t)
	ctx := testContext(t)
	conn := env.client.Conn()
	require.NoError(t, conn.WriteMessage(msgs.Ack{Address: testAddr}))
	require.NoError(t, conn.WriteMessage(msgs.Response{Address: testAddr, Data: "0001"}))
	_, err := conn.ReadWriter.Write([]byte("\x0505FFWR0D0106013F\n"))
	require.NoError(t, err)
	_, err = conn.ReadWriter.Write([]byte("garbage\n"))
	require.NoError(t, err)

	require.NoError(t, env.client.WriteInt16(ctx, "D0106", 7))
	value, _ := env.server.Registers.Lookup("D0106")
	require.Equal(t, "0007", value)
}

func TestServerEchoesAddress(t *testing.T) {
	env := newServerTestEnv(t)
	ctx := testContext(t)
	env.client.Address = msgs.NewAddress(0x1f, 0x0e)
	conn := env.client.Conn()
	require.NoError(t, conn.WriteMessage(msgs.NewWriteRequest(env.client.Address, 0, "D0001", 1, "0001")))
	msg, err := conn.ReadMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, msgs.Ack{Address: env.client.Address}, msg)
}

func TestServerCloseTimeout(t *testing.T) {
	env := newServerTestEnv(t)
	env.server.CloseTimeout = 10 * time.Millisecond
	ctx := testContext(t)
	conn := env.client.Conn()
	require.NoError(t, conn.WriteMessage(msgs.NewReadRequest(testAddr, 0, "D0001", 1)))
	msg, err := conn.ReadMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, msgs.Response{Address: testAddr, Data: "0000"}, msg)

	// never closed, the server gives up and serves the next request
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, env.client.WriteInt16(ctx, "D0001", 1))
}

func TestServerStop(t *testing.T) {
	t.Run("cancel", func(t *testing.T) {
		env := newServerTestEnv(t)
		require.ErrorIs(t, env.stop(t), context.Canceled)
	})
	t.Run("transport", func(t *testing.T) {
		env := newServerTestEnv(t)
		require.NoError(t, env.client.Conn().Close())
		select {
		case err := <-env.doneCh:
			var te *TransportError
			require.ErrorAs(t, err, &te)
		case <-time.After(time.Second):
			t.Fatal("server not stopped")
		}
	})
}

func TestRegisters(t *testing.T) {
	r := NewRegisters()
	require.Equal(t, "0000", r.Get("D0000", 1))
	require.Equal(t, "00000000", r.Get("D0000", 2))
	require.Equal(t, "", r.Get("D0000", 0))
	_, ok := r.Lookup("D0000")
	require.False(t, ok)

	old, existed := r.Set("D0000", "ABCD")
	require.False(t, existed)
	require.Empty(t, old)
	old, existed = r.Set("D0000", "1234")
	require.True(t, existed)
	require.Equal(t, "ABCD", old)
	// stored verbatim regardless of the requested width
	require.Equal(t, "1234", r.Get("D0000", 2))

	snapshot := r.Snapshot()
	require.Equal(t, map[string]string{"D0000": "1234"}, snapshot)
	snapshot["D0001"] = "0000"
	require.Equal(t, 1, r.Len())
}
