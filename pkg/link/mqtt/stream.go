package mqtt

import (
	"fmt"
	"io"
	"sync"

	"github.com/golang/glog"
)

// Role decides the direction of a Stream.
type Role string

// Roles.
const (
	RoleMaster Role = "master"
	RoleSlave  Role = "slave"
)

// Link topics, relative to the Queue prefix.
const (
	TopicMasterToSlave = "link/m2s"
	TopicSlaveToMaster = "link/s2m"
)

// ParseRole parses a role name, empty for master.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "", RoleMaster:
		return RoleMaster, nil
	case RoleSlave:
		return RoleSlave, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Topics returns the topics the role subscribes and publishes.
func (r Role) Topics() (sub, pub string) {
	if r == RoleSlave {
		return TopicMasterToSlave, TopicSlaveToMaster
	}
	return TopicSlaveToMaster, TopicMasterToSlave
}

// Stream carries link bytes over a pair of topics.
// Each Write is published as a single message; Read returns the payloads
// in the order received.
type Stream struct {
	Queue *Queue
	QoS   byte

	pubTopic string
	sub      *Subscription
	dataCh   chan []byte
	closeCh  chan struct{}
	pending  []byte

	closeOnce sync.Once
}

const streamBacklog = 16

// NewStream subscribes the topic of role on q.
func NewStream(q *Queue, role Role) *Stream {
	subTopic, pubTopic := role.Topics()
	s := &Stream{
		Queue:    q,
		QoS:      1,
		pubTopic: pubTopic,
		dataCh:   make(chan []byte, streamBacklog),
		closeCh:  make(chan struct{}),
	}
	s.sub = q.Sub(subTopic, s.handle)
	return s
}

func (s *Stream) handle(_ string, payload []byte) {
	if len(payload) == 0 {
		return
	}
	data := append([]byte(nil), payload...)
	select {
	case s.dataCh <- data:
	case <-s.closeCh:
	}
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		select {
		case data := <-s.dataCh:
			s.pending = data
		case <-s.closeCh:
			return 0, io.EOF
		}
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Write implements io.Writer.
func (s *Stream) Write(p []byte) (int, error) {
	select {
	case <-s.closeCh:
		return 0, io.ErrClosedPipe
	default:
	}
	token := s.Queue.PubWith(s.pubTopic, append([]byte(nil), p...), s.QoS, false)
	token.Wait()
	if err := token.Error(); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close unsubscribes and disconnects the Queue.
func (s *Stream) Close() (err error) {
	s.closeOnce.Do(func() {
		close(s.closeCh)
		if err = s.sub.Close(); err != nil {
			glog.Warningf("mqtt stream unsubscribe: %v", err)
		}
		s.Queue.Close()
	})
	return
}
