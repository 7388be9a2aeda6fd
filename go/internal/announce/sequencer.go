package announce

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveauction/go/internal/auction"
)

const (
	// DefaultDuration is how long an announcement stays on screen
	DefaultDuration = 5 * time.Second
	// FadeIn is the entrance animation length
	FadeIn = 350 * time.Millisecond
)

// Announcement is the local, short-lived "item resolved" banner
type Announcement struct {
	ItemID       string
	ItemName     string
	WinnerID     *string
	FinalPrice   int64
	Sold         bool
	ShownAt      time.Time
	VisibleUntil time.Time
}

// Opacity is the entrance animation progress at now
func (a *Announcement) Opacity(now time.Time) float64 {
	elapsed := now.Sub(a.ShownAt)
	if elapsed >= FadeIn {
		return 1
	}
	if elapsed <= 0 {
		return 0
	}
	return float64(elapsed) / float64(FadeIn)
}

// Sequencer turns item resolved events into one timed announcement at a time.
// It is owned by the session loop.
type Sequencer struct {
	clock    clockwork.Clock
	duration time.Duration

	current *Announcement
	timer   clockwork.Timer
}

// NewSequencer creates a sequencer with the given display duration
func NewSequencer(clock clockwork.Clock, duration time.Duration) *Sequencer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Sequencer{clock: clock, duration: duration}
}

// Resolve replaces the current announcement and restarts the dismissal timer
func (s *Sequencer) Resolve(ev auction.ItemResolved, snap *auction.Snapshot) *Announcement {
	name := "Item"
	if item := snap.ItemByID(ev.ItemID); item != nil && item.Name != "" {
		name = item.Name
	}

	now := s.clock.Now()
	s.current = &Announcement{
		ItemID:       ev.ItemID,
		ItemName:     name,
		WinnerID:     ev.WinnerID,
		FinalPrice:   ev.FinalPrice,
		Sold:         ev.IsSold(),
		ShownAt:      now,
		VisibleUntil: now.Add(s.duration),
	}

	s.replaceTimer(s.clock.NewTimer(s.duration))

	log.Debug().
		Str("item_id", ev.ItemID).
		Bool("sold", s.current.Sold).
		Msg("item resolved announcement shown")

	return s.current
}

// Current returns the visible announcement, or nil
func (s *Sequencer) Current() *Announcement {
	if s.current == nil || !s.clock.Now().Before(s.current.VisibleUntil) {
		return nil
	}
	a := *s.current
	return &a
}

// C fires when the current announcement should be dismissed
func (s *Sequencer) C() <-chan time.Time {
	if s.timer == nil {
		return nil
	}
	return s.timer.Chan()
}

// Dismiss clears an expired announcement. A fire from a replaced timer that
// raced with Resolve leaves the newer announcement in place.
func (s *Sequencer) Dismiss() bool {
	if s.current == nil || s.clock.Now().Before(s.current.VisibleUntil) {
		return false
	}
	s.current = nil
	s.timer = nil
	return true
}

// Reset drops the announcement and cancels the timer
func (s *Sequencer) Reset() {
	if s.timer != nil {
		stopAndDrainTimer(s.timer)
		s.timer = nil
	}
	s.current = nil
}

func (s *Sequencer) replaceTimer(t clockwork.Timer) {
	if s.timer != nil {
		stopAndDrainTimer(s.timer)
	}
	s.timer = t
}

// stopAndDrainTimer stops a timer and drains a pending fire
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
