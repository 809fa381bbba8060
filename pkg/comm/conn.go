package comm

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/fxlink/pkg/codec"
	"github.com/robotalks/fxlink/pkg/msgs"
)

// Flusher is implemented by transports buffering written bytes.
type Flusher interface {
	Flush() error
}

const readChunkSize = 256

// Conn frames messages over a duplex byte stream.
// Reads and writes may happen from different goroutines, but only one reader
// and one writer at a time.
type Conn struct {
	ReadWriter io.ReadWriter

	decoder codec.Decoder
	encoder *codec.Encoder
	readErr error

	chunkCh chan []byte
	errCh   chan error
	doneCh  chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
	readLock  sync.Mutex
	writeLock sync.Mutex
}

// NewConn creates a Conn over rw.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{
		ReadWriter: rw,
		decoder:    codec.Decoder{MaxLineLength: codec.DefaultMaxLineLength},
		encoder:    codec.NewEncoder(rw),
		chunkCh:    make(chan []byte),
		errCh:      make(chan error, 1),
		doneCh:     make(chan struct{}),
	}
}

// WithMaxLineLength sets the decoder line limit.
func (c *Conn) WithMaxLineLength(n int) *Conn {
	c.decoder.MaxLineLength = n
	return c
}

// ReadMessage returns the next decoded message.
// Besides the context error, it fails with *codec.DecodeError or
// codec.ErrLineTooLong for a bad frame (the Conn stays usable), or with
// *TransportError once the stream fails.
func (c *Conn) ReadMessage(ctx context.Context) (msgs.Message, error) {
	c.readLock.Lock()
	defer c.readLock.Unlock()
	for {
		msg, err := c.decoder.Decode()
		if err != nil {
			glog.V(2).Infof("RCV bad frame: %v", err)
			return nil, err
		}
		if msg != nil {
			glog.V(2).Infof("RCV %v", msg)
			return msg, nil
		}
		if c.readErr != nil {
			return nil, c.readErr
		}
		c.startOnce.Do(func() { go c.readLoop() })
		select {
		case chunk := <-c.chunkCh:
			c.decoder.Write(chunk)
		case err := <-c.errCh:
			c.readErr = &TransportError{Op: "read", Err: err}
		case <-c.doneCh:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// WriteMessage encodes msg, writes it out and flushes the transport.
func (c *Conn) WriteMessage(msg msgs.Message) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	select {
	case <-c.doneCh:
		return ErrClosed
	default:
	}
	if err := c.encoder.Encode(msg); err != nil {
		if errors.Is(err, codec.ErrInvalidMessage) {
			return err
		}
		return &TransportError{Op: "write", Err: err}
	}
	if f, ok := c.ReadWriter.(Flusher); ok {
		if err := f.Flush(); err != nil {
			return &TransportError{Op: "flush", Err: err}
		}
	}
	glog.V(2).Infof("SND %v", msg)
	return nil
}

// Discard drops all received but unconsumed input and returns the number of
// bytes dropped.
func (c *Conn) Discard() int {
	c.readLock.Lock()
	defer c.readLock.Unlock()
	n := c.decoder.Buffered()
	c.decoder.Reset()
	for {
		select {
		case chunk := <-c.chunkCh:
			n += len(chunk)
		default:
			if n > 0 {
				glog.V(2).Infof("discarded %d bytes", n)
			}
			return n
		}
	}
}

// Close stops reading and closes the transport if it's an io.Closer.
func (c *Conn) Close() (err error) {
	c.closeOnce.Do(func() {
		close(c.doneCh)
		if closer, ok := c.ReadWriter.(io.Closer); ok {
			err = closer.Close()
		}
	})
	return
}

type timeoutError interface {
	Timeout() bool
}

func (c *Conn) readLoop() {
	for {
		buf := make([]byte, readChunkSize)
		n, err := c.ReadWriter.Read(buf)
		if n > 0 {
			select {
			case c.chunkCh <- buf[:n]:
			case <-c.doneCh:
				return
			}
		}
		if err != nil {
			var te timeoutError
			if errors.As(err, &te) && te.Timeout() {
				continue
			}
			select {
			case c.errCh <- err:
			case <-c.doneCh:
			}
			return
		}
	}
}
