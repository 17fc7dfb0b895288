package sim

import (
	"time"

	"github.com/robotalks/servolink/pkg/link"
)

// Surface deflection in per-mille of full travel.
const (
	DeflectionMin     int32 = -1000
	DeflectionNeutral int32 = 0
	DeflectionMax     int32 = 1000
)

// DefaultSlewRate moves a surface across its full travel in one second.
const DefaultSlewRate int32 = DeflectionMax - DeflectionMin

// Deflection maps a setpoint to the target deflection.
func Deflection(p link.Position) int32 {
	switch p {
	case link.PositionMin:
		return DeflectionMin
	case link.PositionMax:
		return DeflectionMax
	}
	return DeflectionNeutral
}

// Servo is a rate limited actuator.
type Servo struct {
	Position int32
	Target   int32
}

// Moving tells whether the servo hasn't reached the target.
func (s *Servo) Moving() bool {
	return s.Position != s.Target
}

// Slew moves the servo towards the target at rate per second.
func (s *Servo) Slew(rate int32, elapsed time.Duration) {
	step := int32(int64(rate) * int64(elapsed) / int64(time.Second))
	switch diff := s.Target - s.Position; {
	case diff > step:
		s.Position += step
	case -diff > step:
		s.Position -= step
	default:
		s.Position = s.Target
	}
}
