package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/fxlink/pkg/comm"
	"github.com/robotalks/fxlink/pkg/env"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool

	Shell  *ishell.Shell
	Config *env.Config
	Client *comm.Client
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&ConnectCmd,
		&DisconnectCmd,
		&StateCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Client == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// Print prints a result, as JSON if requested.
func Print(c *ishell.Context, result interface{}) {
	if ShellFrom(c).OutputJSON {
		out, err := json.Marshal(result)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	if s, ok := result.(fmt.Stringer); ok {
		c.Println(s.String())
		return
	}
	c.Println(result)
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Connect opens the link of current config, replacing the current one.
func (s *Shell) Connect(ctx context.Context) error {
	client, err := s.Config.NewClient(ctx)
	if err != nil {
		return err
	}
	s.Disconnect()
	s.Client = client
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", client.Address))
	return nil
}

// Disconnect closes the current link.
func (s *Shell) Disconnect() {
	if s.Client != nil {
		s.Client.Conn().Close()
		s.Client = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.LinkURL)
		}
		if err := s.Connect(context.Background()); err != nil {
			log.Fatalf("connect %q failed: %v", s.Config.LinkURL, err)
		}
	}
	defer s.Disconnect()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

type stateResult struct {
	Link    string `json:"link"`
	Address string `json:"address,omitempty"`
	State   string `json:"state"`
}

func (r stateResult) String() string {
	if r.Address == "" {
		return fmt.Sprintf("%s: %s", r.Link, r.State)
	}
	return fmt.Sprintf("%s %s: %s", r.Link, r.Address, r.State)
}

var (
	// ConnectCmd opens the link.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[URL]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) > 0 {
				conf := *s.Config
				conf.LinkURL = c.Args[0]
				s.Config = &conf
			}
			if err := s.Connect(context.Background()); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd closes the link.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// StateCmd shows the link and transaction state.
	StateCmd = ishell.Cmd{
		Name: "state",
		Help: "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			result := stateResult{Link: s.Config.LinkURL, State: "disconnected"}
			if s.Client != nil {
				result.Address = s.Client.Address.String()
				result.State = s.Client.State().String()
			}
			Print(c, result)
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	if err := env.LoadConfigFile(); err != nil {
		log.Fatalln(err)
	}
	New(env.Default()).WithAutoConnect(true).Run(flag.Args()...)
}
