package comm

import (
	"context"
	"errors"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/fxlink/pkg/codec"
	"github.com/robotalks/fxlink/pkg/msgs"
)

// DefaultCloseTimeout is the default wait for the master to close a read.
const DefaultCloseTimeout = time.Second

// Server is the slave side of the link, serving reads and writes from
// Registers.
type Server struct {
	Registers *Registers
	Notifier  RegisterNotifier
	// CloseTimeout bounds the wait for the master's Ack/Nak after a Response.
	CloseTimeout time.Duration

	conn *Conn
}

// NewServer creates a Server over conn with empty Registers.
func NewServer(conn *Conn) *Server {
	return &Server{
		Registers:    NewRegisters(),
		CloseTimeout: DefaultCloseTimeout,
		conn:         conn,
	}
}

// Conn returns the underlying Conn.
func (s *Server) Conn() *Conn {
	return s.conn
}

// Name implements framework.Named.
func (s *Server) Name() string {
	return "fx-peer"
}

// Run serves requests until ctx is done or the transport fails.
func (s *Server) Run(ctx context.Context) error {
	for {
		msg, err := s.conn.ReadMessage(ctx)
		if err != nil {
			if isFrameError(err) {
				glog.Warningf("peer: %v", err)
				continue
			}
			return err
		}
		req, ok := msg.(msgs.Request)
		if !ok {
			glog.Warningf("peer: unexpected %v", msg)
			continue
		}
		if err := s.serve(ctx, req); err != nil {
			return err
		}
	}
}

func (s *Server) serve(ctx context.Context, req msgs.Request) error {
	switch cmd := req.Command.(type) {
	case msgs.WriteWords:
		old, existed := s.Registers.Set(cmd.HeadDevice, cmd.Data)
		glog.V(1).Infof("peer: %s %s: %s -> %s", req.Address, cmd.HeadDevice, old, cmd.Data)
		if s.Notifier != nil {
			s.Notifier.RegisterChanged(ctx, RegisterChange{
				Address: req.Address,
				Device:  cmd.HeadDevice,
				Old:     old,
				New:     cmd.Data,
				Existed: existed,
				Time:    time.Now(),
			})
		}
		return s.conn.WriteMessage(msgs.Ack{Address: req.Address})
	case msgs.ReadWords:
		value := s.Registers.Get(cmd.HeadDevice, cmd.Count)
		glog.V(1).Infof("peer: %s %s x%d = %s", req.Address, cmd.HeadDevice, cmd.Count, value)
		if err := s.conn.WriteMessage(msgs.Response{Address: req.Address, Data: value}); err != nil {
			return err
		}
		return s.awaitClose(ctx)
	}
	glog.Warningf("peer: unsupported %v", req)
	return nil
}

func (s *Server) awaitClose(ctx context.Context) error {
	readCtx := ctx
	if s.CloseTimeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(ctx, s.CloseTimeout)
		defer cancel()
	}
	msg, err := s.conn.ReadMessage(readCtx)
	switch {
	case err == nil:
	case isFrameError(err):
		glog.Warningf("peer: awaiting close: %v", err)
		return nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		glog.Warningf("peer: read not closed in %v", s.CloseTimeout)
		return nil
	default:
		return err
	}
	switch msg.(type) {
	case msgs.Ack:
		glog.V(2).Infof("peer: read closed")
	case msgs.Nak, msgs.NakWithError:
		glog.Warningf("peer: master rejected response: %v", msg)
	default:
		glog.Warningf("peer: unexpected %v awaiting close", msg)
	}
	return nil
}

func isFrameError(err error) bool {
	var de *codec.DecodeError
	return errors.As(err, &de) || errors.Is(err, codec.ErrLineTooLong)
}
