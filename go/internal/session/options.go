package session

import (
	"time"

	"github.com/mcdev12/liveauction/go/internal/announce"
	"github.com/mcdev12/liveauction/go/internal/chat"
	"github.com/mcdev12/liveauction/go/internal/gesture"
)

// Options carry the tunables of the session and its components
type Options struct {
	BidStep        int64
	ExtendBonus    time.Duration
	CountdownTick  time.Duration
	ChatTick       time.Duration
	WinnerDuration time.Duration
	RequestTimeout time.Duration
	Chat           chat.Config
	Gesture        gesture.Config
}

// DefaultOptions returns the standard tunables
func DefaultOptions() Options {
	return Options{
		BidStep:        10,
		ExtendBonus:    15 * time.Second,
		CountdownTick:  time.Second,
		ChatTick:       100 * time.Millisecond,
		WinnerDuration: announce.DefaultDuration,
		RequestTimeout: 15 * time.Second,
		Chat:           chat.DefaultConfig(),
		Gesture:        gesture.DefaultConfig(),
	}
}
