// Package endpoint runs the link protocol over a byte stream.
package endpoint

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/servolink/pkg/link"
)

// Defaults.
const (
	DefaultPartialFrameTimeout = 100 * time.Millisecond
	DefaultTickInterval        = 10 * time.Millisecond
	readChunkSize              = 256
)

// FrameHandler is called when a frame is received.
type FrameHandler interface {
	HandleFrame(context.Context, *link.Frame)
}

// HandleFrameFunc is func type of FrameHandler.
type HandleFrameFunc func(context.Context, *link.Frame)

// HandleFrame implements FrameHandler.
func (f HandleFrameFunc) HandleFrame(ctx context.Context, frame *link.Frame) {
	f(ctx, frame)
}

// LinkNotifier is called on link failures: a *link.DecodeError when
// corrupt bytes were discarded, a *link.TransportError when the stream
// failed and Run is about to return.
type LinkNotifier interface {
	LinkError(context.Context, error)
}

// LinkErrorFunc is func type of LinkNotifier.
type LinkErrorFunc func(context.Context, error)

// LinkError implements LinkNotifier.
func (f LinkErrorFunc) LinkError(ctx context.Context, err error) {
	f(ctx, err)
}

// Ticker is called periodically from the Run loop.
type Ticker interface {
	Tick(context.Context, time.Time)
}

// TickFunc is func type of Ticker.
type TickFunc func(context.Context, time.Time)

// Tick implements Ticker.
func (f TickFunc) Tick(ctx context.Context, now time.Time) {
	f(ctx, now)
}

// Port sends and receives frames over a byte stream.
// Handler, Notifier and Ticker are all called from the Run goroutine.
type Port struct {
	ReadWriter   io.ReadWriter
	Reader       *link.Reader
	Handler      FrameHandler
	Notifier     LinkNotifier
	Ticker       Ticker
	TickInterval time.Duration
	// Timeout abandons a partial frame if no more bytes arrive.
	Timeout time.Duration

	lock sync.Mutex
}

// NewPort creates a Port.
func NewPort(rw io.ReadWriter) *Port {
	return &Port{
		ReadWriter:   rw,
		Reader:       link.NewReader(nil),
		TickInterval: DefaultTickInterval,
		Timeout:      DefaultPartialFrameTimeout,
	}
}

// Send writes a frame. Concurrent sends never interleave.
func (p *Port) Send(f *link.Frame) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.send(f)
}

// SendAll writes frames back to back.
func (p *Port) SendAll(frames ...*link.Frame) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	for _, f := range frames {
		if err := p.send(f); err != nil {
			return err
		}
	}
	return nil
}

func (p *Port) send(f *link.Frame) error {
	b, err := link.Encode(f.Opcode, f.Payload)
	if err != nil {
		return fmt.Errorf("send %s: %w", f.Opcode, err)
	}
	if _, err := p.ReadWriter.Write(b); err != nil {
		return &link.TransportError{Err: err}
	}
	glog.V(2).Infof("sent %s", f)
	return nil
}

// Run processes received bytes until the stream fails or ctx is done.
func (p *Port) Run(ctx context.Context) error {
	chunkCh, errCh := make(chan []byte), make(chan error, 1)
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go p.readLoop(subCtx, chunkCh, errCh)

	var tickCh <-chan time.Time
	if p.Ticker != nil && p.TickInterval > 0 {
		ticker := time.NewTicker(p.TickInterval)
		defer ticker.Stop()
		tickCh = ticker.C
	}
	var partialTimer <-chan time.Time
	for {
		select {
		case chunk := <-chunkCh:
			if err := p.Reader.Feed(chunk); err != nil {
				p.notify(ctx, err)
			}
			p.drain(ctx)
			partialTimer = p.restartTimer()
		case <-partialTimer:
			if err := p.Reader.Timeout(); err != nil {
				p.notify(ctx, err)
			}
			p.drain(ctx)
			partialTimer = p.restartTimer()
		case now := <-tickCh:
			p.Ticker.Tick(ctx, now)
		case err := <-errCh:
			terr := &link.TransportError{Err: err}
			p.notify(ctx, terr)
			return terr
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Port) readLoop(ctx context.Context, chunkCh chan []byte, errCh chan error) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := p.ReadWriter.Read(buf)
		if n > 0 {
			select {
			case chunkCh <- append([]byte(nil), buf[:n]...):
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			errCh <- err
			return
		}
	}
}

func (p *Port) drain(ctx context.Context) {
	for _, f := range p.Reader.Frames(func(err error) { p.notify(ctx, err) }) {
		glog.V(2).Infof("received %s", f)
		if h := p.Handler; h != nil {
			h.HandleFrame(ctx, f)
		}
	}
}

func (p *Port) restartTimer() <-chan time.Time {
	if p.Reader.Buffered() == 0 {
		return nil
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultPartialFrameTimeout
	}
	return time.After(timeout)
}

func (p *Port) notify(ctx context.Context, err error) {
	glog.Warningf("link: %v", err)
	if n := p.Notifier; n != nil {
		n.LinkError(ctx, err)
	}
}
