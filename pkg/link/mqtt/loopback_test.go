package mqtt

import (
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type fakeMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return m.qos }
func (m *fakeMessage) Retained() bool    { return m.retained }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// loopback is an in-memory broker shared by all clients of a test.
type loopback struct {
	lock      sync.Mutex
	subs      map[*loopbackClient]map[string]paho.MessageHandler
	retained  map[string][]byte
	published []*fakeMessage
}

func newLoopback() *loopback {
	return &loopback{
		subs:     make(map[*loopbackClient]map[string]paho.MessageHandler),
		retained: make(map[string][]byte),
	}
}

func (b *loopback) newQueue(prefix string) *Queue {
	return &Queue{
		Client:      &loopbackClient{broker: b},
		TopicPrefix: prefix,
		subs:        make(map[string][]*Subscription),
	}
}

func (b *loopback) retainedPayload(topic string) ([]byte, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	payload, ok := b.retained[topic]
	return payload, ok
}

type loopbackClient struct {
	broker *loopback
}

func (c *loopbackClient) IsConnected() bool      { return true }
func (c *loopbackClient) IsConnectionOpen() bool { return true }
func (c *loopbackClient) Connect() paho.Token    { return &paho.DummyToken{} }
func (c *loopbackClient) Disconnect(uint)        {}

func (c *loopbackClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	msg := &fakeMessage{topic: topic, payload: payload.([]byte), qos: qos, retained: retained}
	b := c.broker
	b.lock.Lock()
	b.published = append(b.published, msg)
	if retained {
		if len(msg.payload) == 0 {
			delete(b.retained, topic)
		} else {
			b.retained[topic] = msg.payload
		}
	}
	// one delivery per client even with overlapping subscriptions
	var handlers []paho.MessageHandler
	var clients []*loopbackClient
	for client, filters := range b.subs {
		for filter, h := range filters {
			if MatchTopic(topic, filter) {
				handlers = append(handlers, h)
				clients = append(clients, client)
				break
			}
		}
	}
	b.lock.Unlock()
	for i, h := range handlers {
		h(clients[i], msg)
	}
	return &paho.DummyToken{}
}

func (c *loopbackClient) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	b := c.broker
	b.lock.Lock()
	if b.subs[c] == nil {
		b.subs[c] = make(map[string]paho.MessageHandler)
	}
	b.subs[c][topic] = callback
	var msgList []*fakeMessage
	for t, payload := range b.retained {
		if MatchTopic(t, topic) {
			msgList = append(msgList, &fakeMessage{topic: t, payload: payload, retained: true})
		}
	}
	b.lock.Unlock()
	for _, msg := range msgList {
		callback(c, msg)
	}
	return &paho.DummyToken{}
}

func (c *loopbackClient) SubscribeMultiple(filters map[string]byte, callback paho.MessageHandler) paho.Token {
	for topic, qos := range filters {
		c.Subscribe(topic, qos, callback)
	}
	return &paho.DummyToken{}
}

func (c *loopbackClient) Unsubscribe(topics ...string) paho.Token {
	b := c.broker
	b.lock.Lock()
	for _, topic := range topics {
		delete(b.subs[c], topic)
	}
	b.lock.Unlock()
	return &paho.DummyToken{}
}

func (c *loopbackClient) AddRoute(string, paho.MessageHandler) {}

func (c *loopbackClient) OptionsReader() paho.ClientOptionsReader {
	return paho.ClientOptionsReader{}
}
