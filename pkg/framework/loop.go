package framework

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultLoopInterval is the iteration interval when Interval is not set.
const DefaultLoopInterval = 20 * time.Millisecond

// Loop runs controllers periodically in order of priority levels.
type Loop struct {
	Interval time.Duration
	// Now is the clock, time.Now by default.
	Now func() time.Time

	controllers [PriorityLevels][]Controller
	hooks       [PriorityLevels][]Controller
	runners     []Runnable
	last        time.Time

	lock     sync.Mutex
	messages []Message
	wakeUpCh chan struct{}
}

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

type loopIteration struct {
	*Loop
	ctx           context.Context
	time          time.Time
	elapsed       time.Duration
	priorityLevel int
	messages      []Message
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{
		Interval: DefaultLoopInterval,
		Now:      time.Now,
		wakeUpCh: make(chan struct{}, 1),
	}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers at a priority level. Controllers
// which are also Runnable are run along with the Loop.
func (l *Loop) AddController(priorityLevel int, ctls ...Controller) *Loop {
	l.controllers[priorityLevel] = append(l.controllers[priorityLevel], ctls...)
	for _, ctl := range ctls {
		if runner, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	runner := NewRunnerWith(ctx)
	runner.Go(l.runners...)
	defer runner.Wait()
	defer runner.Stop()

	interval := l.Interval
	if interval <= 0 {
		interval = DefaultLoopInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Step(ctx)
		case <-l.wakeUpCh:
			l.Step(ctx)
		}
	}
}

// PostMessage implements LoopControl.
func (l *Loop) PostMessage(msg Message) {
	l.lock.Lock()
	l.messages = append(l.messages, msg)
	l.lock.Unlock()
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

// Step runs a single iteration. Run calls it on each tick, it's
// exported for driving the Loop with a fake clock.
func (l *Loop) Step(ctx context.Context) {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	iter := &loopIteration{Loop: l, ctx: ctx, time: now}
	if !l.last.IsZero() && now.After(l.last) {
		iter.elapsed = now.Sub(l.last)
	}
	l.last = now
	l.lock.Lock()
	iter.messages, l.messages = l.messages, nil
	l.lock.Unlock()
	for i := 0; i < PriorityLevels; i++ {
		iter.priorityLevel = i
		iter.run(l.controllers[i])
		hooks := l.hooks[i]
		l.hooks[i] = nil
		iter.run(hooks)
	}
	// unconsumed messages are dropped.
	if len(iter.messages) > 0 {
		glog.V(2).Infof("loop: %d messages not consumed", len(iter.messages))
	}
}

func (t *loopIteration) run(ctls []Controller) {
	for _, ctl := range ctls {
		if err := ctl.Control(t); err != nil {
			glog.Errorf("controller error: %v", err)
		}
	}
}

func (t *loopIteration) Context() context.Context { return t.ctx }
func (t *loopIteration) Time() time.Time          { return t.time }
func (t *loopIteration) Elapsed() time.Duration   { return t.elapsed }
func (t *loopIteration) PriorityLevel() int       { return t.priorityLevel }
func (t *loopIteration) Messages() []Message      { return t.messages }

func (t *loopIteration) Take(msg Message) {
	for n, m := range t.messages {
		if m == msg {
			t.messages = append(t.messages[:n:n], t.messages[n+1:]...)
			return
		}
	}
}

func (t *loopIteration) PostRun(hooks ...Controller) {
	t.hooks[t.priorityLevel] = append(t.hooks[t.priorityLevel], hooks...)
}
