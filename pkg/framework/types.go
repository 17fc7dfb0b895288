// Package framework runs the long-lived pieces of a link process together:
// ports, bridges and periodic control loops.
package framework

import (
	"context"
	"time"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// RunFunc is the func form of Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Message is anything posted to a Loop. Messages are delivered to the
// controllers of the next iteration.
type Message interface{}

// Controller is invoked once per Loop iteration.
type Controller interface {
	Control(ControlContext) error
}

// ControlFunc defines the func form of Controller.
type ControlFunc func(ControlContext) error

// Control implements Controller.
func (f ControlFunc) Control(ctx ControlContext) error {
	return f(ctx)
}

// ControlContext provides the context of the current iteration.
type ControlContext interface {
	// Context retrieves context.Context.
	Context() context.Context
	// Time is the time the iteration started.
	Time() time.Time
	// Elapsed is the time since the previous iteration, zero on the first.
	Elapsed() time.Duration
	// PriorityLevel gets the current priority level.
	PriorityLevel() int
	// Messages are the messages posted before this iteration started.
	// A controller marks a message consumed with Take, later controllers
	// no longer see it.
	Messages() []Message
	Take(Message)
	// PostRun injects one-shot hooks run after the controllers of the
	// current priority level.
	PostRun(hooks ...Controller)

	LoopControl
}

// LoopControl exposes access to the controlling loop.
type LoopControl interface {
	// PostMessage enqueues a message for the next iteration.
	PostMessage(Message)
	// TriggerNext schedules the next iteration immediately.
	TriggerNext()
}

// PriorityLevels is the total levels of priorities.
const PriorityLevels int = 8

// Predefined priority levels.
const (
	PrLvTop    int = 0
	PrLvHigh   int = 2
	PrLvNormal int = 4
	PrLvLow    int = 6
	PrLvIdle   int = PriorityLevels - 1

	// PrLvSense is for reading inputs.
	PrLvSense = PrLvHigh
	// PrLvControl is for controllers.
	PrLvControl = PrLvNormal
	// PrLvActuate is for applying outputs.
	PrLvActuate = PrLvLow
)
