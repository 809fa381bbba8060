package comm

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/fxlink/pkg/codec"
	"github.com/robotalks/fxlink/pkg/msgs"
)

var testAddr = msgs.NewAddress(0x05, 0xff)

func mustEncode(t *testing.T, msgList ...msgs.Message) string {
	var out []byte
	for _, msg := range msgList {
		var err error
		out, err = codec.AppendEncode(out, msg)
		require.NoError(t, err)
	}
	return string(out)
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// recorder keeps a copy of everything written.
type recorder struct {
	net.Conn
	lock sync.Mutex
	out  bytes.Buffer
}

func (r *recorder) Write(p []byte) (int, error) {
	r.lock.Lock()
	r.out.Write(p)
	r.lock.Unlock()
	return r.Conn.Write(p)
}

func (r *recorder) take() string {
	r.lock.Lock()
	defer r.lock.Unlock()
	s := r.out.String()
	r.out.Reset()
	return s
}

func newConnPair(t *testing.T) (*Conn, *recorder, *Conn) {
	local, remote := net.Pipe()
	rec := &recorder{Conn: local}
	conn, peer := NewConn(rec), NewConn(remote)
	t.Cleanup(func() {
		conn.Close()
		peer.Close()
	})
	return conn, rec, peer
}

type scriptedReader struct {
	results []readResult
}

type readResult struct {
	data string
	err  error
}

func (r *scriptedReader) Read(p []byte) (int, error) {
	if len(r.results) == 0 {
		return 0, io.EOF
	}
	res := r.results[0]
	r.results = r.results[1:]
	return copy(p, res.data), res.err
}

func (r *scriptedReader) Write(p []byte) (int, error) {
	return len(p), nil
}

type flushBuffer struct {
	bytes.Buffer
	flushes int
}

func (b *flushBuffer) Flush() error {
	b.flushes++
	return nil
}

type netTimeout struct{}

func (netTimeout) Error() string   { return "i/o timeout" }
func (netTimeout) Timeout() bool   { return true }
func (netTimeout) Temporary() bool { return true }

func TestConnReadPartialFrames(t *testing.T) {
	conn, _, peer := newConnPair(t)
	frames := mustEncode(t,
		msgs.NewWriteRequest(testAddr, 0, "D0106", 1, "0065"),
		msgs.Ack{Address: testAddr},
	)
	go func() {
		for i := 0; i < len(frames); i++ {
			if _, err := peer.ReadWriter.Write([]byte{frames[i]}); err != nil {
				return
			}
		}
	}()
	ctx := testContext(t)
	msg, err := conn.ReadMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, msgs.NewWriteRequest(testAddr, 0, "D0106", 1, "0065"), msg)
	msg, err = conn.ReadMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, msgs.Ack{Address: testAddr}, msg)
}

func TestConnWriteMessage(t *testing.T) {
	conn, _, peer := newConnPair(t)
	go conn.WriteMessage(msgs.Response{Address: testAddr, Data: "0065"})
	msg, err := peer.ReadMessage(testContext(t))
	require.NoError(t, err)
	require.Equal(t, msgs.Response{Address: testAddr, Data: "0065"}, msg)
}

func TestConnWriteInvalid(t *testing.T) {
	conn, rec, _ := newConnPair(t)
	err := conn.WriteMessage(msgs.Response{Address: testAddr, Data: "xyz"})
	require.ErrorIs(t, err, codec.ErrInvalidMessage)
	var te *TransportError
	require.False(t, errors.As(err, &te))
	require.Empty(t, rec.take())
}

func TestConnFlush(t *testing.T) {
	buf := &flushBuffer{}
	conn := NewConn(buf)
	require.NoError(t, conn.WriteMessage(msgs.Ack{Address: testAddr}))
	require.Equal(t, "\x0605FF\n", buf.String())
	require.Equal(t, 1, buf.flushes)
}

func TestConnDecodeErrorKeepsConn(t *testing.T) {
	conn := NewConn(&scriptedReader{results: []readResult{
		{data: "garbage\n\x0605F"},
		{data: "F\n"},
	}})
	ctx := testContext(t)
	_, err := conn.ReadMessage(ctx)
	var de *codec.DecodeError
	require.ErrorAs(t, err, &de)
	require.True(t, isFrameError(err))
	msg, err := conn.ReadMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, msgs.Ack{Address: testAddr}, msg)
	_, err = conn.ReadMessage(ctx)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, "read", te.Op)
	// the error sticks
	_, err = conn.ReadMessage(ctx)
	require.ErrorIs(t, err, io.EOF)
}

func TestConnLineTooLong(t *testing.T) {
	conn := NewConn(&scriptedReader{results: []readResult{
		{data: "\x05" + string(bytes.Repeat([]byte{'0'}, 40))},
		{data: "00\n\x1505FF\n"},
	}}).WithMaxLineLength(16)
	ctx := testContext(t)
	_, err := conn.ReadMessage(ctx)
	require.ErrorIs(t, err, codec.ErrLineTooLong)
	msg, err := conn.ReadMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, msgs.Nak{Address: testAddr}, msg)
}

func TestConnIgnoresReadTimeout(t *testing.T) {
	conn := NewConn(&scriptedReader{results: []readResult{
		{err: netTimeout{}},
		{data: "\x0605FF", err: netTimeout{}},
		{data: "\n"},
	}})
	msg, err := conn.ReadMessage(testContext(t))
	require.NoError(t, err)
	require.Equal(t, msgs.Ack{Address: testAddr}, msg)
}

func TestConnReadContext(t *testing.T) {
	conn, _, _ := newConnPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := conn.ReadMessage(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConnClose(t *testing.T) {
	conn, _, _ := newConnPair(t)
	done := make(chan error, 1)
	go func() {
		_, err := conn.ReadMessage(context.Background())
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, conn.Close())
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("ReadMessage not unblocked by Close")
	}
	require.ErrorIs(t, conn.WriteMessage(msgs.Ack{Address: testAddr}), ErrClosed)
	require.NoError(t, conn.Close())
}

func TestConnDiscard(t *testing.T) {
	conn, _, peer := newConnPair(t)
	ctx := testContext(t)
	go peer.WriteMessage(msgs.Ack{Address: testAddr})
	_, err := conn.ReadMessage(ctx)
	require.NoError(t, err)

	// a late reply arrives while nobody is reading
	require.NoError(t, peer.WriteMessage(msgs.Response{Address: testAddr, Data: "0065"}))
	require.Eventually(t, func() bool { return conn.Discard() > 0 }, time.Second, time.Millisecond)

	go peer.WriteMessage(msgs.Nak{Address: testAddr})
	msg, err := conn.ReadMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, msgs.Nak{Address: testAddr}, msg)
}
