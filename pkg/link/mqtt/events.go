package mqtt

import (
	"context"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"

	"github.com/robotalks/fxlink/pkg/comm"
	"github.com/robotalks/fxlink/pkg/msgs"
)

// Event topics, relative to the Queue prefix.
const (
	TopicRegisters   = "registers/"
	TopicPeerStatus  = "peer/status"
	PeerStatusOnline = "online"
)

// RegisterTopic returns the topic of register events of device.
func RegisterTopic(device string) string {
	return TopicRegisters + device
}

// DeviceOfTopic extracts the device name from a register topic.
func DeviceOfTopic(topic string) (string, bool) {
	if !strings.HasPrefix(topic, TopicRegisters) {
		return "", false
	}
	device := topic[len(TopicRegisters):]
	return device, msgs.ValidDeviceName(device)
}

// RegisterEvent is published when the peer applies a write.
type RegisterEvent struct {
	Station  uint32 `protobuf:"varint,1,opt,name=station,proto3" json:"station,omitempty"`
	Plc      uint32 `protobuf:"varint,2,opt,name=plc,proto3" json:"plc,omitempty"`
	Device   string `protobuf:"bytes,3,opt,name=device,proto3" json:"device,omitempty"`
	Old      string `protobuf:"bytes,4,opt,name=old,proto3" json:"old,omitempty"`
	Value    string `protobuf:"bytes,5,opt,name=value,proto3" json:"value,omitempty"`
	Existed  bool   `protobuf:"varint,6,opt,name=existed,proto3" json:"existed,omitempty"`
	UnixNano int64  `protobuf:"varint,7,opt,name=unix_nano,proto3" json:"unix_nano,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *RegisterEvent) ProtoMessage() {}

// Reset implements proto.Message.
func (m *RegisterEvent) Reset() { *m = RegisterEvent{} }

// String implements proto.Message.
func (m *RegisterEvent) String() string { return proto.CompactTextString(m) }

// NewRegisterEvent converts a change.
func NewRegisterEvent(change comm.RegisterChange) *RegisterEvent {
	return &RegisterEvent{
		Station:  uint32(change.Address.Station),
		Plc:      uint32(change.Address.PLC),
		Device:   change.Device,
		Old:      change.Old,
		Value:    change.New,
		Existed:  change.Existed,
		UnixNano: change.Time.UnixNano(),
	}
}

// Change converts the event back.
func (m *RegisterEvent) Change() comm.RegisterChange {
	change := comm.RegisterChange{
		Address: msgs.NewAddress(byte(m.Station), byte(m.Plc)),
		Device:  m.Device,
		Old:     m.Old,
		New:     m.Value,
		Existed: m.Existed,
	}
	if m.UnixNano != 0 {
		change.Time = time.Unix(0, m.UnixNano)
	}
	return change
}

// EncodeRegisterEvent encodes the change as a protobuf message.
func EncodeRegisterEvent(change comm.RegisterChange) ([]byte, error) {
	return proto.Marshal(NewRegisterEvent(change))
}

// DecodeRegisterEvent decodes a payload published by Publisher.
func DecodeRegisterEvent(payload []byte) (*RegisterEvent, error) {
	var event RegisterEvent
	if err := proto.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// Publisher publishes register changes as retained messages, so a monitor
// joining late still sees the latest values.
type Publisher struct {
	Queue *Queue
	QoS   byte
	// Registers is republished on every (re)connect if not nil.
	Registers *comm.Registers
	Address   msgs.Address
}

// NewPublisher creates a Publisher from a broker URL.
// The retained peer status is cleared by the broker when the peer drops.
func NewPublisher(brokerURL, clientID string) (*Publisher, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	if opts.ClientID == "" {
		opts.SetClientID(clientID)
	}
	opts.SetBinaryWill(topicPrefix+TopicPeerStatus, nil, 1, true)
	p := &Publisher{Queue: NewQueue(opts, topicPrefix)}
	p.Queue.OnConnect = func(*Queue) { p.onConnected() }
	return p, nil
}

// Name implements framework.Named.
func (p *Publisher) Name() string {
	return "mqtt-publisher"
}

// RegisterChanged implements comm.RegisterNotifier.
// It doesn't wait for delivery.
func (p *Publisher) RegisterChanged(ctx context.Context, change comm.RegisterChange) {
	payload, err := EncodeRegisterEvent(change)
	if err != nil {
		glog.Errorf("encode register event %s: %v", change.Device, err)
		return
	}
	p.Queue.PubWith(RegisterTopic(change.Device), payload, p.QoS, true)
}

// Run implements framework.Runnable.
func (p *Publisher) Run(ctx context.Context) error {
	if err := p.Queue.Connect(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	p.Queue.PubWith(TopicPeerStatus, nil, 1, true).WaitTimeout(time.Second)
	return p.Queue.Close()
}

func (p *Publisher) onConnected() {
	p.Queue.PubWith(TopicPeerStatus, []byte(PeerStatusOnline), 1, true)
	if p.Registers == nil {
		return
	}
	now := time.Now()
	for device, value := range p.Registers.Snapshot() {
		p.RegisterChanged(context.Background(), comm.RegisterChange{
			Address: p.Address,
			Device:  device,
			Old:     value,
			New:     value,
			Existed: true,
			Time:    now,
		})
	}
}

// SubscribeRegisters calls fn with every register event received.
// Malformed payloads are logged and skipped.
func SubscribeRegisters(q *Queue, fn func(*RegisterEvent)) *Subscription {
	return q.Sub(TopicRegisters+"+", func(topic string, payload []byte) {
		if len(payload) == 0 {
			return
		}
		event, err := DecodeRegisterEvent(payload)
		if err != nil {
			glog.Warningf("%s: bad register event: %v", topic, err)
			return
		}
		fn(event)
	})
}
