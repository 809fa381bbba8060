// Package env sets up fx links from environment variables, a config file
// and command line flags.
package env

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/robotalks/fxlink/pkg/codec"
	"github.com/robotalks/fxlink/pkg/comm"
	"github.com/robotalks/fxlink/pkg/link"
	"github.com/robotalks/fxlink/pkg/msgs"
)

// Config provides common options to open a link.
type Config struct {
	// LinkURL is the stream to talk over, see link.Open.
	LinkURL string `toml:"link"`
	// Station and PLC address the peer.
	Station uint `toml:"station"`
	PLC     uint `toml:"plc"`
	// WaitTime is the message wait time code sent in requests.
	WaitTime uint `toml:"wait_time"`
	// Timeout bounds the wait for replies.
	Timeout time.Duration `toml:"timeout"`
	// CloseTimeout bounds the peer's wait for the master to close a read.
	CloseTimeout  time.Duration `toml:"close_timeout"`
	MaxLineLength int           `toml:"max_line_length"`
	// MQTTURL is the broker register events are published to, empty to disable.
	// e.g. mqtt://host:port/topic-prefix/
	MQTTURL string `toml:"mqtt"`
	// RedisURL keeps the peer's registers across restarts, empty to disable.
	RedisURL string `toml:"redis"`
}

var (
	defaultConfig = Config{
		LinkURL:       "serial:///dev/ttyUSB0",
		PLC:           0xff,
		Timeout:       comm.DefaultTimeout,
		CloseTimeout:  comm.DefaultCloseTimeout,
		MaxLineLength: codec.DefaultMaxLineLength,
	}
	configFile string
)

func init() {
	if err := defaultConfig.applyEnv(os.Getenv); err != nil {
		log.Fatalln(err)
	}
	configFile = os.Getenv("FX_CONFIG")
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if val := getenv("FX_LINK_URL"); val != "" {
		c.LinkURL = val
	}
	if val := getenv("FX_MQTT_URL"); val != "" {
		c.MQTTURL = val
	}
	if val := getenv("FX_REDIS_URL"); val != "" {
		c.RedisURL = val
	}
	for name, dst := range map[string]*uint{
		"FX_STATION":   &c.Station,
		"FX_PLC":       &c.PLC,
		"FX_WAIT_TIME": &c.WaitTime,
	} {
		val := getenv(name)
		if val == "" {
			continue
		}
		n, err := strconv.ParseUint(val, 0, 8)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		*dst = uint(n)
	}
	if val := getenv("FX_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid FX_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	return nil
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	defaultConfig.SetupFlagSet(flag.CommandLine)
	flag.StringVar(&configFile, "config", configFile, "Config file (TOML).")
}

// SetupFlagSet registers the options of c in fs.
func (c *Config) SetupFlagSet(fs *flag.FlagSet) {
	fs.StringVar(&c.LinkURL, "link", c.LinkURL, "Link URL: serial://, tcp://, ws:// or mqtt://.")
	fs.UintVar(&c.Station, "station", c.Station, "Station number.")
	fs.UintVar(&c.PLC, "plc", c.PLC, "PLC number.")
	fs.UintVar(&c.WaitTime, "wait", c.WaitTime, "Message wait time (0-15).")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "Reply timeout.")
	fs.DurationVar(&c.CloseTimeout, "close-timeout", c.CloseTimeout, "Peer wait for the master to close a read.")
	fs.IntVar(&c.MaxLineLength, "max-line", c.MaxLineLength, "Max length of a frame.")
	fs.StringVar(&c.MQTTURL, "mqtt", c.MQTTURL, "MQTT broker URL for register events.")
	fs.StringVar(&c.RedisURL, "redis", c.RedisURL, "Redis URL to persist registers.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// LoadConfigFile applies the file given by -config or FX_CONFIG to the
// default config, call after flag.Parse. Flags explicitly set still win.
func LoadConfigFile() error {
	if configFile == "" {
		return nil
	}
	return defaultConfig.LoadFile(configFile, flag.CommandLine)
}

// LoadFile decodes a TOML file into c. Flags set explicitly in fs are
// re-applied afterwards. fs may be nil.
func (c *Config) LoadFile(path string, fs *flag.FlagSet) error {
	explicit := make(map[string]string)
	if fs != nil {
		fs.Visit(func(f *flag.Flag) {
			explicit[f.Name] = f.Value.String()
		})
	}
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for n, key := range undecoded {
			keys[n] = key.String()
		}
		return fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	for name, val := range explicit {
		if err := fs.Set(name, val); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the config.
func (c *Config) Validate() error {
	switch {
	case c.LinkURL == "":
		return fmt.Errorf("link URL not specified")
	case c.Station > 0xff:
		return fmt.Errorf("station out of range: %d", c.Station)
	case c.PLC > 0xff:
		return fmt.Errorf("plc out of range: %d", c.PLC)
	case c.WaitTime > msgs.MaxWaitTime:
		return fmt.Errorf("wait time out of range: %d", c.WaitTime)
	case c.Timeout < 0 || c.CloseTimeout < 0:
		return fmt.Errorf("negative timeout")
	}
	return nil
}

// Address returns the peer address.
func (c *Config) Address() msgs.Address {
	return msgs.NewAddress(byte(c.Station), byte(c.PLC))
}

// OpenConn opens the link and wraps it with a comm.Conn.
func (c *Config) OpenConn(ctx context.Context) (*comm.Conn, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	stream, err := link.Open(ctx, c.LinkURL)
	if err != nil {
		return nil, err
	}
	return comm.NewConn(stream).WithMaxLineLength(c.MaxLineLength), nil
}

// NewClient opens the link and creates a master Client on it.
func (c *Config) NewClient(ctx context.Context) (*comm.Client, error) {
	conn, err := c.OpenConn(ctx)
	if err != nil {
		return nil, err
	}
	client := comm.NewClient(conn, c.Address())
	client.WaitTime = byte(c.WaitTime)
	client.Timeout = c.Timeout
	return client, nil
}

// NewServer opens the link and creates a peer Server on it.
func (c *Config) NewServer(ctx context.Context) (*comm.Server, error) {
	conn, err := c.OpenConn(ctx)
	if err != nil {
		return nil, err
	}
	server := comm.NewServer(conn)
	server.CloseTimeout = c.CloseTimeout
	return server, nil
}

// MustNewClient creates a Client and fails on error.
func (c *Config) MustNewClient(ctx context.Context) *comm.Client {
	client, err := c.NewClient(ctx)
	if err != nil {
		log.Fatalln(err)
	}
	return client
}

// MustNewServer creates a Server and fails on error.
func (c *Config) MustNewServer(ctx context.Context) *comm.Server {
	server, err := c.NewServer(ctx)
	if err != nil {
		log.Fatalln(err)
	}
	return server
}
