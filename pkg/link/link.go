// Package link opens the byte streams fx links run over.
package link

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/goburrow/serial"
	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/fxlink/pkg/link/mqtt"
)

// Serial defaults, the usual setting of the controller family.
const (
	DefaultBaudRate    = 9600
	DefaultDataBits    = 7
	DefaultParity      = "E"
	DefaultStopBits    = 1
	DefaultReadTimeout = 100 * time.Millisecond
)

// Open opens a stream by URL:
//
//	serial:///dev/ttyUSB0?baud=9600&databits=7&parity=E&stopbits=1
//	tcp://host:port
//	ws://host:port/path
//	mqtt://host:port/prefix/?role=master&client-id=id
func Open(ctx context.Context, rawURL string) (io.ReadWriteCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid link URL: %w", err)
	}
	glog.V(1).Infof("open link %s", u.Redacted())
	switch u.Scheme {
	case "serial":
		return openSerial(u)
	case "tcp":
		var dialer net.Dialer
		return dialer.DialContext(ctx, "tcp", u.Host)
	case "ws", "wss":
		return openWebSocket(ctx, u)
	case "mqtt", "mqtts":
		return openMQTT(ctx, u)
	}
	return nil, fmt.Errorf("unknown link URL scheme: %q", u.Scheme)
}

// SerialConfig builds the port configuration from a serial URL.
func SerialConfig(u *url.URL) (*serial.Config, error) {
	config := &serial.Config{
		Address:  u.Host + u.Path,
		BaudRate: DefaultBaudRate,
		DataBits: DefaultDataBits,
		Parity:   DefaultParity,
		StopBits: DefaultStopBits,
		Timeout:  DefaultReadTimeout,
	}
	if config.Address == "" {
		return nil, fmt.Errorf("serial device not specified")
	}
	query := u.Query()
	for key, dst := range map[string]*int{
		"baud":     &config.BaudRate,
		"databits": &config.DataBits,
		"stopbits": &config.StopBits,
	} {
		val := query.Get(key)
		if val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid %s: %q", key, val)
		}
		*dst = n
	}
	if val := query.Get("parity"); val != "" {
		switch p := strings.ToUpper(val); p {
		case "N", "E", "O":
			config.Parity = p
		default:
			return nil, fmt.Errorf("invalid parity: %q", val)
		}
	}
	if val := query.Get("timeout"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout: %w", err)
		}
		config.Timeout = d
	}
	return config, nil
}

type serialPort struct {
	serial.Port
}

type readTimeout struct{}

func (readTimeout) Error() string { return serial.ErrTimeout.Error() }
func (readTimeout) Timeout() bool { return true }

// Read reports the port timeout as a net style timeout so readers keep going.
func (p *serialPort) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	if err == serial.ErrTimeout {
		err = readTimeout{}
	}
	return n, err
}

func openSerial(u *url.URL) (io.ReadWriteCloser, error) {
	config, err := SerialConfig(u)
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(config)
	if err != nil {
		return nil, err
	}
	return &serialPort{Port: port}, nil
}

func openWebSocket(ctx context.Context, u *url.URL) (io.ReadWriteCloser, error) {
	origin := "http://" + u.Host
	if u.Scheme == "wss" {
		origin = "https://" + u.Host
	}
	config, err := websocket.NewConfig(u.String(), origin)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		config.Dialer = &net.Dialer{Deadline: deadline}
	}
	conn, err := websocket.DialConfig(config)
	if err != nil {
		return nil, err
	}
	conn.PayloadType = websocket.BinaryFrame
	return conn, nil
}

// ClientID derives a stable MQTT client id for role on this machine.
func ClientID(role mqtt.Role) string {
	id, err := machineid.ProtectedID("fxlink")
	if err != nil {
		glog.Warningf("machine id: %v", err)
		id = strconv.Itoa(os.Getpid())
	} else if len(id) > 12 {
		id = id[:12]
	}
	return "fxlink-" + string(role) + "-" + id
}

func openMQTT(ctx context.Context, u *url.URL) (io.ReadWriteCloser, error) {
	query := u.Query()
	role, err := mqtt.ParseRole(query.Get("role"))
	if err != nil {
		return nil, err
	}
	opts, topicPrefix, err := mqtt.ClientOptionsFromURL(u.String())
	if err != nil {
		return nil, err
	}
	if opts.ClientID == "" {
		opts.SetClientID(ClientID(role))
	}
	q := mqtt.NewQueue(opts, topicPrefix)
	if err := q.Connect(ctx); err != nil {
		q.Close()
		return nil, err
	}
	return mqtt.NewStream(q, role), nil
}
