package gesture

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// State of the slide-to-bid control
type State int

const (
	Idle State = iota
	Dragging
	Committing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Committing:
		return "committing"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config holds the gesture tunables. Distances are in track units (pixels
// on touch screens, cells in the terminal), velocities in units per millisecond.
type Config struct {
	ThumbSize      float64
	TrackPadding   float64
	CommitRatio    float64
	FlickVelocity  float64
	FlickMinOffset float64
	CommitAnimate  time.Duration
	SettleDelay    time.Duration
}

// DefaultConfig returns the standard gesture tunables
func DefaultConfig() Config {
	return Config{
		ThumbSize:      38,
		TrackPadding:   4,
		CommitRatio:    0.9,
		FlickVelocity:  0.9,
		FlickMinOffset: 24,
		CommitAnimate:  120 * time.Millisecond,
		SettleDelay:    260 * time.Millisecond,
	}
}

// Slider turns a one dimensional drag into at most one commit per gesture.
// After a commit it stays in Committing until the settle timer fires and
// Settle is called, refusing new drags in between.
type Slider struct {
	config Config
	clock  clockwork.Clock

	state    State
	bound    float64
	position float64
	disabled bool
	timer    clockwork.Timer
}

// NewSlider creates an unmeasured slider
func NewSlider(config Config, clock clockwork.Clock) *Slider {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Slider{config: config, clock: clock}
}

// Measure sets the travel bound from the track width
func (s *Slider) Measure(width float64) {
	bound := width - s.config.ThumbSize - 2*s.config.TrackPadding
	if bound < 0 {
		bound = 0
	}
	s.bound = bound
	if s.position > bound {
		s.position = bound
	}
}

// SetDisabled blocks new gestures, e.g. while bidding is not allowed
func (s *Slider) SetDisabled(disabled bool) {
	s.disabled = disabled
	if disabled && s.state == Dragging {
		s.Terminate()
	}
}

// Begin starts a drag. It is refused while disabled, unmeasured or committing.
func (s *Slider) Begin() bool {
	if s.disabled || s.bound <= 0 || s.state != Idle {
		return false
	}
	s.state = Dragging
	s.position = 0
	return true
}

// Move tracks the drag displacement from the start
func (s *Slider) Move(dx float64) {
	if s.state != Dragging {
		return
	}
	s.position = clamp(dx, 0, s.bound)
}

// Release ends the drag and reports whether it committed
func (s *Slider) Release(dx, vx float64) bool {
	if s.state != Dragging {
		return false
	}
	dx = clamp(dx, 0, s.bound)

	full := dx >= s.bound*s.config.CommitRatio
	flick := vx > s.config.FlickVelocity && dx > s.config.FlickMinOffset
	if !full && !flick {
		s.state = Idle
		s.position = 0
		return false
	}

	s.state = Committing
	s.position = s.bound
	s.timer = s.clock.NewTimer(s.config.CommitAnimate + s.config.SettleDelay)

	log.Debug().
		Float64("dx", dx).
		Float64("vx", vx).
		Bool("flick", flick && !full).
		Msg("bid gesture committed")
	return true
}

// Terminate abandons a drag without committing
func (s *Slider) Terminate() {
	if s.state == Dragging {
		s.state = Idle
		s.position = 0
	}
}

// C fires when a commit has settled
func (s *Slider) C() <-chan time.Time {
	if s.timer == nil {
		return nil
	}
	return s.timer.Chan()
}

// Settle returns the thumb to the start and accepts new gestures
func (s *Slider) Settle() {
	if s.timer != nil {
		if !s.timer.Stop() {
			select {
			case <-s.timer.Chan():
			default:
			}
		}
		s.timer = nil
	}
	s.state = Idle
	s.position = 0
}

// State returns the current gesture state
func (s *Slider) State() State { return s.state }

// Position is the thumb offset from the start of the track
func (s *Slider) Position() float64 { return s.position }

// Progress is the thumb position as a fraction of the travel bound
func (s *Slider) Progress() float64 {
	if s.bound <= 0 {
		return 0
	}
	return s.position / s.bound
}

// Bound is the measured travel distance
func (s *Slider) Bound() float64 { return s.bound }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
