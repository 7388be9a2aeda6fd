package countdown

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Remaining is the whole seconds left until end, rounded up and never negative
func Remaining(end, now time.Time) int {
	d := end.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// Countdown derives a locally ticking remaining-seconds value from the
// server's absolute end time. The value is advisory; the server decides
// when an item actually closes.
type Countdown struct {
	clock    clockwork.Clock
	interval time.Duration

	end    *time.Time
	value  *int
	ticker clockwork.Ticker
}

// New creates an inactive countdown ticking at interval
func New(clock clockwork.Clock, interval time.Duration) *Countdown {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Countdown{clock: clock, interval: interval}
}

// Resync adopts a new end time and recomputes immediately. A nil end stops
// the ticker and clears the value.
func (c *Countdown) Resync(end *time.Time) {
	if end == nil {
		c.Stop()
		return
	}

	e := *end
	c.end = &e
	c.Tick()

	if c.ticker == nil {
		c.ticker = c.clock.NewTicker(c.interval)
	}
}

// Tick recomputes the value from the clock
func (c *Countdown) Tick() {
	if c.end == nil {
		c.value = nil
		return
	}
	v := Remaining(*c.end, c.clock.Now())
	c.value = &v
}

// Value is the remaining seconds, or nil when no item is counting down
func (c *Countdown) Value() *int {
	if c.value == nil {
		return nil
	}
	v := *c.value
	return &v
}

// C delivers ticks while active. It is nil when inactive so a select on it blocks.
func (c *Countdown) C() <-chan time.Time {
	if c.ticker == nil {
		return nil
	}
	return c.ticker.Chan()
}

// Stop halts ticking and clears the value
func (c *Countdown) Stop() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	c.end = nil
	c.value = nil
}
