// Package transport opens the byte streams carrying the link protocol:
// serial ports, TCP connections and websockets.
package transport

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Defaults.
const (
	DefaultBaudRate    = 115200
	DefaultDialTimeout = 5 * time.Second
)

// URL schemes.
const (
	SchemeSerial    = "serial"
	SchemeTCP       = "tcp"
	SchemeWebSocket = "ws"
	SchemeWSS       = "wss"
)

// Options tunes how a stream is opened.
type Options struct {
	// BaudRate of serial ports, overridden by the baud query parameter.
	BaudRate    int
	DialTimeout time.Duration
	// Origin of websocket connections.
	Origin string
}

// Address is a parsed stream address.
//
//	/dev/ttyUSB0, serial:///dev/ttyUSB0?baud=57600, COM3
//	tcp://host:port
//	ws://host:port/path, wss://host/path
type Address struct {
	Scheme string
	// Target is the device path for serial ports, host:port for tcp,
	// and the full URL for websockets.
	Target   string
	BaudRate int
}

// ParseAddress parses a stream address.
func ParseAddress(addr string) (*Address, error) {
	if addr == "" {
		return nil, fmt.Errorf("empty address")
	}
	if !strings.Contains(addr, "://") {
		return &Address{Scheme: SchemeSerial, Target: addr}, nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	a := &Address{Scheme: u.Scheme}
	switch u.Scheme {
	case SchemeSerial:
		a.Target = u.Path
		if val := u.Query().Get("baud"); val != "" {
			if a.BaudRate, err = strconv.Atoi(val); err != nil || a.BaudRate <= 0 {
				return nil, fmt.Errorf("invalid baud rate %q", val)
			}
		}
	case SchemeTCP:
		a.Target = u.Host
	case SchemeWebSocket, SchemeWSS:
		a.Target = u.String()
	default:
		return nil, fmt.Errorf("unknown transport scheme: %q", u.Scheme)
	}
	if a.Target == "" {
		return nil, fmt.Errorf("missing target in %q", addr)
	}
	return a, nil
}

// String implements fmt.Stringer.
func (a *Address) String() string {
	switch a.Scheme {
	case SchemeSerial:
		return a.Target
	case SchemeTCP:
		return "tcp://" + a.Target
	}
	return a.Target
}

// Open opens a byte stream.
func Open(addr string, opts Options) (io.ReadWriteCloser, error) {
	a, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	switch a.Scheme {
	case SchemeSerial:
		baud := a.BaudRate
		if baud == 0 {
			baud = opts.BaudRate
		}
		return OpenSerial(a.Target, baud)
	case SchemeTCP:
		return DialTCP(a.Target, opts.DialTimeout)
	default:
		conn, err := DialWebSocket(a.Target, opts.Origin)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}
