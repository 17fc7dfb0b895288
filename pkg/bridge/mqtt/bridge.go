package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/servolink/pkg/link"
	"github.com/robotalks/servolink/pkg/link/notation"
)

// Topic suffixes under <id>/.
const (
	TopicMeta      = "meta"
	TopicState     = "state"
	TopicLog       = "log"
	TopicTelemetry = "telemetry"
	TopicCmd       = "cmd"
	TopicResult    = "result"
)

// Link states published on <id>/state.
const (
	StateOnline    = "online"
	StateHandshake = "handshake"
	StateRebooted  = "rebooted"
	StateOffline   = "offline"
)

// Executor sends commands over the link.
type Executor interface {
	Exec(context.Context, link.Command) (link.Command, error)
}

// Publisher publishes messages, implemented by Queue.
type Publisher interface {
	PubWith(topic string, payload []byte, qos byte, retain bool) paho.Token
}

// Meta describes the bridged link, published retained on <id>/meta.
type Meta struct {
	ID       string   `json:"id"`
	Port     string   `json:"port,omitempty"`
	Protocol int      `json:"protocol"`
	Fields   []string `json:"fields"`
	Commands []string `json:"commands"`
}

// Result is published on <id>/result for each command on <id>/cmd.
type Result struct {
	Command string                 `json:"command"`
	Reply   string                 `json:"reply,omitempty"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Bridge publishes link events to MQTT and executes text commands
// received from MQTT.
type Bridge struct {
	ID      string
	Meta    Meta
	Timeout time.Duration
	Exec    Executor
	// Events are unsolicited commands from the link, e.g. Client.EventChan().
	Events <-chan link.Command

	queue *Queue
	pub   Publisher
}

// NewBridge creates a Bridge connecting to the broker.
func NewBridge(brokerURL, id string, exec Executor, events <-chan link.Command) (*Bridge, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid MQTT URL: %w", err)
	}
	opts.SetBinaryWill(topicPrefix+id+"/"+TopicMeta, nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("servolink:" + id)
	}
	q := NewQueue(opts, topicPrefix)
	b := newBridge(id, q, exec, events)
	b.queue = q
	q.OnConnect = func(*Queue) { b.publishMeta() }
	q.Sub(b.Topic(TopicCmd), b.handleCommand)
	return b, nil
}

func newBridge(id string, pub Publisher, exec Executor, events <-chan link.Command) *Bridge {
	fields := make([]string, link.NumFields)
	for n := range fields {
		fields[n] = link.Field(n).String()
	}
	return &Bridge{
		ID:      id,
		Meta:    Meta{ID: id, Protocol: 1, Fields: fields, Commands: notation.Verbs},
		Timeout: time.Second,
		Exec:    exec,
		Events:  events,
		pub:     pub,
	}
}

// Topic returns the topic of the link under suffix.
func (b *Bridge) Topic(suffix ...string) string {
	return b.ID + "/" + strings.Join(suffix, "/")
}

// Run implements Runnable.
func (b *Bridge) Run(ctx context.Context) error {
	if b.queue != nil {
		token := b.queue.Connect()
		token.Wait()
		if err := token.Error(); err != nil {
			return fmt.Errorf("MQTT connect: %w", err)
		}
		defer b.queue.Close()
	}
	b.PublishState(StateOnline)
	for {
		select {
		case cmd, ok := <-b.Events:
			if !ok {
				b.Events = nil
				continue
			}
			b.PublishEvent(cmd)
		case <-ctx.Done():
			b.PublishState(StateOffline)
			b.pub.PubWith(b.Topic(TopicMeta), nil, 1, true)
			return nil
		}
	}
}

// PublishEvent publishes an unsolicited command from the link.
func (b *Bridge) PublishEvent(cmd link.Command) {
	switch c := cmd.(type) {
	case *link.TelemetryData:
		payload, err := EncodeSample(b.ID, c.Sample)
		if err != nil {
			glog.Errorf("encode sample: %v", err)
			return
		}
		b.pub.PubWith(b.Topic(TopicTelemetry, c.Field.String()), payload, 0, false)
	case *link.LogMessage:
		b.pub.PubWith(b.Topic(TopicLog), []byte(notation.Format(c)), 0, false)
	case *link.Request:
		b.PublishState(StateHandshake)
	case *link.Reboot:
		b.PublishState(StateRebooted)
	default:
		glog.V(2).Infof("event %s not bridged", notation.Format(cmd))
	}
}

// PublishState publishes the link state, retained.
func (b *Bridge) PublishState(state string) {
	b.pub.PubWith(b.Topic(TopicState), []byte(state), 1, true)
}

func (b *Bridge) publishMeta() {
	meta, err := json.Marshal(&b.Meta)
	if err != nil {
		panic(err)
	}
	b.pub.PubWith(b.Topic(TopicMeta), meta, 1, true)
}

func (b *Bridge) handleCommand(topic string, payload []byte) {
	// paho handlers must not block on the link.
	go b.publishResult(b.Execute(string(payload)))
}

// Execute runs a text command on the link.
func (b *Bridge) Execute(line string) *Result {
	res := &Result{Command: strings.TrimSpace(line)}
	cmd, err := notation.Parse(line)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.Timeout)
	defer cancel()
	reply, err := b.Exec.Exec(ctx, cmd)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Reply, res.Fields = notation.Format(reply), notation.Fields(reply)
	return res
}

func (b *Bridge) publishResult(res *Result) {
	out, err := json.Marshal(res)
	if err != nil {
		glog.Errorf("encode result: %v", err)
		return
	}
	b.pub.PubWith(b.Topic(TopicResult), out, 1, false)
}
