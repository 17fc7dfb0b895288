package endpoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/servolink/pkg/link"
)

// DefaultCallTimeout is the default time to wait for a reply.
const DefaultCallTimeout = time.Second

// Result is the result of a command using Do.
type Result struct {
	Err   error
	Reply link.Command
}

// Call represents a pending command waiting for reply.
type Call struct {
	request  link.Command
	sentAt   time.Time
	resultCh chan Result
	next     *Call
}

// Request returns the command sent.
func (c *Call) Request() link.Command {
	return c.request
}

// ResultChan returns the chan to retrieve result.
func (c *Call) ResultChan() <-chan Result {
	return c.resultCh
}

// Wait waits for the result.
func (c *Call) Wait(ctx context.Context) (link.Command, error) {
	select {
	case r := <-c.resultCh:
		return r.Reply, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Call) matches(cmd link.Command) bool {
	if nack, ok := cmd.(*link.Nack); ok {
		return nack.Rejected == c.request.Opcode()
	}
	return cmd.Opcode() == c.request.Opcode()
}

// Client provides host side operations over a Port.
// Peers answer commands in order, so a reply completes the earliest
// pending call of the same opcode.
type Client struct {
	// Timeout expires pending calls, DefaultCallTimeout if zero.
	Timeout time.Duration
	// Now is the clock, time.Now by default.
	Now func() time.Time

	port      *Port
	eventCh   chan link.Command
	callsHead *Call
	callsTail *Call
	callsLock sync.Mutex
}

// NewClient creates client and wraps the Port.
func NewClient(port *Port) *Client {
	c := &Client{
		Timeout: DefaultCallTimeout,
		Now:     time.Now,
		port:    port,
		eventCh: make(chan link.Command, 64),
	}
	port.Handler = c
	port.Ticker = c
	port.Notifier = c
	return c
}

// NewClientWith creates a Client over a byte stream.
func NewClientWith(rw io.ReadWriter) *Client {
	return NewClient(NewPort(rw))
}

// Port gets wrapped Port.
func (c *Client) Port() *Port {
	return c.port
}

// EventChan retrieves unsolicited commands: telemetry data, LOG
// messages, peer handshakes and reboot notices.
func (c *Client) EventChan() <-chan link.Command {
	return c.eventCh
}

// DoWith sends a command and expects a result in the provided chan.
func (c *Client) DoWith(cmd link.Command, ch chan Result) *Call {
	call := &Call{request: cmd, resultCh: ch}

	c.callsLock.Lock()
	defer c.callsLock.Unlock()
	call.sentAt = c.Now()
	if err := c.port.Send(link.FrameOf(cmd)); err != nil {
		call.resultCh <- Result{Err: err}
		return call
	}
	if c.callsHead == nil {
		c.callsHead = call
	} else {
		c.callsTail.next = call
	}
	c.callsTail = call
	return call
}

// Do sends a command and returns a Call for result.
func (c *Client) Do(cmd link.Command) *Call {
	return c.DoWith(cmd, make(chan Result, 1))
}

// Exec sends a command and waits for the reply.
func (c *Client) Exec(ctx context.Context, cmd link.Command) (link.Command, error) {
	return c.Do(cmd).Wait(ctx)
}

// Handshake starts a session.
func (c *Client) Handshake(ctx context.Context) error {
	reply, err := c.Exec(ctx, &link.Request{Kind: link.RequestInit})
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	if req, ok := reply.(*link.Request); !ok || req.Kind != link.RequestInit {
		return fmt.Errorf("handshake: %w: %v", ErrUnexpectedReply, reply)
	}
	return nil
}

// HandleFrame implements FrameHandler.
func (c *Client) HandleFrame(ctx context.Context, f *link.Frame) {
	cmd, err := c.port.Reader.Registry.Parse(f)
	if err != nil {
		glog.Warningf("drop %s: %v", f, err)
		return
	}
	switch msg := cmd.(type) {
	case *link.LogMessage, *link.TelemetryData:
		c.emit(cmd)
		return
	case *link.Reboot:
		if msg.Phase == link.RebootDone {
			c.emit(cmd)
			return
		}
	case *link.Request:
		if !c.pending(link.OpRequest) {
			// handshake initiated by peer.
			if err := c.port.Send(link.FrameOf(msg)); err != nil {
				glog.Errorf("answer handshake: %v", err)
			}
			c.emit(cmd)
			return
		}
	}
	if !c.complete(cmd) {
		glog.Warningf("unsolicited %s", f)
	}
}

// Tick implements Ticker.
func (c *Client) Tick(ctx context.Context, now time.Time) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	deadline := c.Now().Add(-timeout)
	var expired *Call
	c.callsLock.Lock()
	for c.callsHead != nil && !c.callsHead.sentAt.After(deadline) {
		call := c.callsHead
		c.callsHead, call.next = call.next, expired
		expired = call
	}
	if c.callsHead == nil {
		c.callsTail = nil
	}
	c.callsLock.Unlock()
	for ; expired != nil; expired = expired.next {
		expired.resultCh <- Result{Err: ErrTimeout}
	}
}

// LinkError implements LinkNotifier.
func (c *Client) LinkError(ctx context.Context, err error) {
	var terr *link.TransportError
	if !errors.As(err, &terr) {
		return
	}
	c.callsLock.Lock()
	head := c.callsHead
	c.callsHead, c.callsTail = nil, nil
	c.callsLock.Unlock()
	for ; head != nil; head = head.next {
		head.resultCh <- Result{Err: err}
	}
}

// Run implements Runnable.
func (c *Client) Run(ctx context.Context) error {
	return c.port.Run(ctx)
}

func (c *Client) pending(op link.Opcode) bool {
	c.callsLock.Lock()
	defer c.callsLock.Unlock()
	for curr := c.callsHead; curr != nil; curr = curr.next {
		if curr.request.Opcode() == op {
			return true
		}
	}
	return false
}

func (c *Client) complete(cmd link.Command) bool {
	c.callsLock.Lock()
	head := c.callsHead
	curr := c.callsHead
	for ; curr != nil; curr = curr.next {
		if curr.matches(cmd) {
			if c.callsHead = curr.next; c.callsHead == nil {
				c.callsTail = nil
			}
			break
		}
	}
	c.callsLock.Unlock()
	if curr == nil {
		return false
	}
	for ; head != curr; head = head.next {
		head.resultCh <- Result{Err: ErrNoReply}
	}
	curr.next = nil
	if nack, ok := cmd.(*link.Nack); ok {
		curr.resultCh <- Result{Err: nack.Err()}
	} else {
		curr.resultCh <- Result{Reply: cmd}
	}
	return true
}

func (c *Client) emit(cmd link.Command) {
	select {
	case c.eventCh <- cmd:
	default:
		glog.Warningf("event dropped: %s", link.FrameOf(cmd))
	}
}
