// Package telemetry schedules periodic and one-shot telemetry emission.
package telemetry

import (
	"time"

	"github.com/robotalks/servolink/pkg/link"
)

// ValueSource provides current telemetry values.
type ValueSource interface {
	Value(link.Field) (int32, error)
}

// ValueFunc is the func form of ValueSource.
type ValueFunc func(link.Field) (int32, error)

// Value implements ValueSource.
func (f ValueFunc) Value(field link.Field) (int32, error) {
	return f(field)
}

// MaxCatchUp bounds the samples emitted per field in one Tick when
// ticks were late. Further missed slots are skipped, keeping the phase.
const MaxCatchUp = 8

// Stats counts scheduler activity.
type Stats struct {
	Emitted uint64
	Skipped uint64
	Failed  uint64
}

// Scheduler emits TMD frames for subscribed fields.
// Due times advance by whole intervals from the subscription time,
// so late ticks never accumulate drift.
// Scheduler is not safe for concurrent use.
type Scheduler struct {
	Source ValueSource
	// Epoch is the zero of sample timestamps.
	Epoch time.Time

	pending link.FieldSet
	cadence link.Cadence
	due     [link.NumFields]time.Time
	stats   Stats
}

// NewScheduler creates a Scheduler.
func NewScheduler(src ValueSource, epoch time.Time) *Scheduler {
	return &Scheduler{Source: src, Epoch: epoch}
}

// Active indicates a subscription exists.
func (s *Scheduler) Active() bool {
	return s.pending != 0
}

// Fields returns the subscribed fields.
func (s *Scheduler) Fields() link.FieldSet {
	return s.pending
}

// Cadence returns the cadence of the subscription.
func (s *Scheduler) Cadence() link.Cadence {
	return s.cadence
}

// Stats returns the counters.
func (s *Scheduler) Stats() Stats {
	return s.stats
}

// Subscribe replaces the subscription. An empty field set unsubscribes.
func (s *Scheduler) Subscribe(fields link.FieldSet, cadence link.Cadence, now time.Time) {
	s.pending, s.cadence = fields, cadence
	first := now
	if !cadence.IsOneShot() {
		first = now.Add(cadence.Interval())
	}
	for f := range s.due {
		s.due[f] = first
	}
}

// Unsubscribe cancels the subscription.
func (s *Scheduler) Unsubscribe() {
	s.pending = 0
}

// Reset unsubscribes and restarts timestamps from epoch.
func (s *Scheduler) Reset(epoch time.Time) {
	s.Unsubscribe()
	s.Epoch = epoch
}

// NextDue returns the earliest due time.
func (s *Scheduler) NextDue() (due time.Time, ok bool) {
	for _, f := range s.pending.Fields() {
		if !ok || s.due[f].Before(due) {
			due, ok = s.due[f], true
		}
	}
	return
}

// Tick emits the samples due at now, ordered by due time.
// A one-shot subscription ends after each field was emitted once.
func (s *Scheduler) Tick(now time.Time) []*link.Frame {
	var frames []*link.Frame
	var emitted [link.NumFields]int
	for {
		field, ok := s.nextDue(now, &emitted)
		if !ok {
			break
		}
		due := s.due[field]
		emitted[field]++
		if frame := s.sample(field, due); frame != nil {
			frames = append(frames, frame)
		}
		if s.cadence.IsOneShot() {
			s.pending &^= 1 << field
			continue
		}
		s.due[field] = due.Add(s.cadence.Interval())
	}
	if s.cadence.IsOneShot() || s.pending == 0 {
		return frames
	}
	interval := s.cadence.Interval()
	for _, f := range s.pending.Fields() {
		if late := now.Sub(s.due[f]); late >= 0 {
			missed := late/interval + 1
			s.due[f] = s.due[f].Add(missed * interval)
			s.stats.Skipped += uint64(missed)
		}
	}
	return frames
}

func (s *Scheduler) nextDue(now time.Time, emitted *[link.NumFields]int) (field link.Field, ok bool) {
	var earliest time.Time
	for _, f := range s.pending.Fields() {
		if emitted[f] >= MaxCatchUp || s.due[f].After(now) {
			continue
		}
		if !ok || s.due[f].Before(earliest) {
			field, earliest, ok = f, s.due[f], true
		}
	}
	return
}

func (s *Scheduler) sample(field link.Field, due time.Time) *link.Frame {
	if s.Source == nil {
		s.stats.Failed++
		return nil
	}
	val, err := s.Source.Value(field)
	if err != nil {
		s.stats.Failed++
		return nil
	}
	s.stats.Emitted++
	var ts uint32
	if d := due.Sub(s.Epoch); d > 0 {
		ts = uint32(d / time.Millisecond)
	}
	return link.FrameOf(&link.TelemetryData{Sample: link.Sample{Field: field, Value: val, Timestamp: ts}})
}
