// Package sh provides the interactive console of a link.
package sh

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/robotalks/servolink/pkg/endpoint"
	"github.com/robotalks/servolink/pkg/env"
	fx "github.com/robotalks/servolink/pkg/framework"
	"github.com/robotalks/servolink/pkg/link"
	"github.com/robotalks/servolink/pkg/link/notation"
	"github.com/robotalks/servolink/pkg/transport"
)

// ErrNotConnected is reported by commands requiring a link.
var ErrNotConnected = errors.New("not connected")

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool
	// OnEvent receives unsolicited commands from the link, in addition
	// to printing them in interactive mode.
	OnEvent func(link.Command)

	Shell  *ishell.Shell
	Config *env.Config

	connLock sync.Mutex
	conn     *Conn
}

// Conn is an open link.
type Conn struct {
	Addr   string
	Ctx    context.Context
	Cancel func()
	Client *endpoint.Client

	stream io.Closer
	doneCh chan struct{}
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
		&PortsCmd,
		&ConnectCmd,
		&DisconnectCmd,
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
		if ShellFrom(c).Conn() == nil {
			c.Err(ErrNotConnected)
			return
		}
		fn(c)
	}
}

// Conn returns the current link, nil if not connected.
func (s *Shell) Conn() *Conn {
	s.connLock.Lock()
	defer s.connLock.Unlock()
	return s.conn
}

// Exec sends a command on the current link and waits for the reply.
// It makes Shell an executor of the MQTT bridge.
func (s *Shell) Exec(ctx context.Context, cmd link.Command) (link.Command, error) {
	conn := s.Conn()
	if conn == nil {
		return nil, ErrNotConnected
	}
	return conn.Client.Exec(ctx, cmd)
}

// Print prints a command in text or JSON.
func (s *Shell) Print(p interface{ Println(...interface{}) }, cmd link.Command) error {
	if !s.OutputJSON {
		p.Println(notation.Format(cmd))
		return nil
	}
	out, err := json.Marshal(notation.Fields(cmd))
	if err != nil {
		return err
	}
	p.Println(string(out))
	return nil
}

// DoCommand runs a command and waits for result.
func DoCommand(c *ishell.Context, cmd link.Command) error {
	s := ShellFrom(c)
	ctx, cancel := context.WithTimeout(context.Background(), 2*s.Config.Timeout)
	defer cancel()
	reply, err := s.Exec(ctx, cmd)
	if err != nil {
		c.Err(err)
		return err
	}
	if err := s.Print(c, reply); err != nil {
		c.Err(err)
		return err
	}
	return nil
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Connect opens a link and starts a session.
func (s *Shell) Connect(addr string) error {
	stream, err := transport.Open(addr, s.Config.TransportOptions())
	if err != nil {
		return err
	}
	conn := &Conn{
		Addr:   addr,
		Client: endpoint.NewClientWith(stream),
		stream: stream,
		doneCh: make(chan struct{}),
	}
	conn.Client.Timeout = s.Config.Timeout
	conn.Ctx, conn.Cancel = context.WithCancel(context.Background())
	go s.runConn(conn)
	go s.printEvents(conn)

	s.Disconnect()
	s.connLock.Lock()
	s.conn = conn
	s.connLock.Unlock()
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", addr))

	ctx, cancel := context.WithTimeout(conn.Ctx, 2*s.Config.Timeout)
	defer cancel()
	if err := conn.Client.Handshake(ctx); err != nil {
		glog.Warningf("%s: %v", addr, err)
		return nil
	}
	if s.Interactive {
		s.Shell.Printf("Connected %s\n", addr)
	}
	return nil
}

func (s *Shell) runConn(conn *Conn) {
	defer close(conn.doneCh)
	err := fx.RunWithContextCloser(conn.Ctx, conn.stream, func() error {
		return conn.Client.Run(conn.Ctx)
	})
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	glog.Errorf("%s: %v", conn.Addr, err)
	s.connLock.Lock()
	if s.conn == conn {
		s.conn = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
	s.connLock.Unlock()
}

func (s *Shell) printEvents(conn *Conn) {
	for {
		select {
		case <-conn.doneCh:
			return
		case cmd := <-conn.Client.EventChan():
			if s.OnEvent != nil {
				s.OnEvent(cmd)
			}
			if s.Interactive {
				s.Print(s.Shell, cmd)
			}
		}
	}
}

// Disconnect disconnects current link.
func (s *Shell) Disconnect() {
	s.connLock.Lock()
	conn := s.conn
	s.conn = nil
	s.connLock.Unlock()
	if conn != nil {
		conn.Cancel()
		<-conn.doneCh
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect && s.Config.Port != "" {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.Port)
		}
		if err := s.Connect(s.Config.Port); err != nil {
			log.Fatalf("connect %q failed: %v", s.Config.Port, err)
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

var (
	// PortsCmd lists serial ports.
	PortsCmd = ishell.Cmd{
		Name:    "ports",
		Aliases: []string{"list", "l"},
		Help:    "list serial ports",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			ports, err := transport.SerialPorts()
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				if ports == nil {
					ports = []string{}
				}
				out, err := json.Marshal(ports)
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(string(out))
				return
			}
			if len(ports) == 0 {
				c.Println("No serial ports found")
				return
			}
			for _, port := range ports {
				c.Println(port)
			}
		},
	}

	// ConnectCmd connects a link.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[ADDR]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			addr := s.Config.Port
			if len(c.Args) > 0 {
				addr = c.Args[0]
			}
			if addr == "" {
				c.Err(fmt.Errorf("ADDR required"))
				return
			}
			if err := s.Connect(addr); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects current link.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(env.NewConfig()).WithAutoConnect(true).Run(flag.Args()...)
}
