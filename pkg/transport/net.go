package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"
)

// DefaultOrigin is the origin of websocket connections.
const DefaultOrigin = "http://localhost/"

// DialTCP connects to a TCP address.
func DialTCP(hostport string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", hostport, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", hostport, err)
	}
	return conn, nil
}

// DialWebSocket connects to a websocket endpoint carrying binary frames.
func DialWebSocket(wsURL, origin string) (*websocket.Conn, error) {
	if origin == "" {
		origin = DefaultOrigin
	}
	conn, err := websocket.Dial(wsURL, "", origin)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	conn.PayloadType = websocket.BinaryFrame
	return conn, nil
}

// ConnHandler serves an accepted stream. The stream is closed when
// ServeConn returns.
type ConnHandler interface {
	ServeConn(context.Context, io.ReadWriteCloser)
}

// ServeConnFunc is func type of ConnHandler.
type ServeConnFunc func(context.Context, io.ReadWriteCloser)

// ServeConn implements ConnHandler.
func (f ServeConnFunc) ServeConn(ctx context.Context, conn io.ReadWriteCloser) {
	f(ctx, conn)
}

// Listener accepts streams on tcp:// or ws:// addresses.
type Listener struct {
	scheme string
	path   string
	ln     net.Listener
}

// Listen creates a Listener.
func Listen(addr string) (*Listener, error) {
	a, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	l := &Listener{scheme: a.Scheme}
	hostport := a.Target
	switch a.Scheme {
	case SchemeTCP:
	case SchemeWebSocket:
		u, _ := url.Parse(a.Target)
		hostport, l.path = u.Host, u.Path
		if l.path == "" {
			l.path = "/"
		}
	default:
		return nil, fmt.Errorf("can't listen on %s", a)
	}
	if l.ln, err = net.Listen("tcp", hostport); err != nil {
		return nil, fmt.Errorf("listen %s: %w", a, err)
	}
	return l, nil
}

// URL returns the address peers can open.
func (l *Listener) URL() string {
	return l.scheme + "://" + l.ln.Addr().String() + l.path
}

// Close stops accepting streams.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Serve accepts streams until ctx is done, each one is served in its
// own goroutine.
func (l *Listener) Serve(ctx context.Context, h ConnHandler) error {
	doneCh := make(chan struct{})
	defer close(doneCh)
	go func() {
		select {
		case <-ctx.Done():
			l.ln.Close()
		case <-doneCh:
		}
	}()
	var err error
	if l.scheme == SchemeWebSocket {
		err = l.serveWebSocket(ctx, h)
	} else {
		err = l.serveTCP(ctx, h)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (l *Listener) serveTCP(ctx context.Context, h ConnHandler) error {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return err
		}
		glog.Infof("accepted %s", conn.RemoteAddr())
		go func() {
			defer conn.Close()
			h.ServeConn(ctx, conn)
		}()
	}
}

func (l *Listener) serveWebSocket(ctx context.Context, h ConnHandler) error {
	mux := http.NewServeMux()
	mux.Handle(l.path, websocket.Server{
		Handler: func(conn *websocket.Conn) {
			glog.Infof("accepted websocket %s", conn.Request().RemoteAddr)
			conn.PayloadType = websocket.BinaryFrame
			h.ServeConn(ctx, conn)
		},
	})
	return (&http.Server{Handler: mux}).Serve(l.ln)
}
