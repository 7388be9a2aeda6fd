package chat

import (
	"errors"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/liveauction/go/internal/auction"
)

var (
	ErrEmpty      = errors.New("comment is empty")
	ErrTooLong    = errors.New("comment is too long")
	ErrTooFast    = errors.New("you are sending messages too quickly")
	ErrChatClosed = errors.New("chat is closed for this auction")
)

// Config holds the chat tunables
type Config struct {
	MaxLength   int
	MinInterval time.Duration
	Visible     time.Duration
	Fade        time.Duration
	LogCap      int
	VisibleMax  int
}

// DefaultConfig returns the standard chat tunables
func DefaultConfig() Config {
	return Config{
		MaxLength:   180,
		MinInterval: 800 * time.Millisecond,
		Visible:     2500 * time.Millisecond,
		Fade:        150 * time.Millisecond,
		LogCap:      80,
		VisibleMax:  6,
	}
}

// VisibleComment is a comment currently on screen with its derived opacity
type VisibleComment struct {
	auction.ChatComment
	Opacity float64
}

// Stream holds the recent comment log of one room and the local send gate.
// It is not safe for concurrent use; the session loop owns it.
type Stream struct {
	config Config
	clock  clockwork.Clock

	log      []auction.ChatComment
	lastSend time.Time
}

// NewStream creates an empty stream
func NewStream(config Config, clock clockwork.Clock) *Stream {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Stream{config: config, clock: clock}
}

// Replace swaps the log for a backlog received on join
func (s *Stream) Replace(comments []auction.ChatComment) {
	s.log = nil
	for _, c := range comments {
		s.Append(c)
	}
}

// Append adds a comment, dropping the oldest beyond the cap
func (s *Stream) Append(c auction.ChatComment) {
	s.log = append(s.log, c)
	if s.config.LogCap > 0 && len(s.log) > s.config.LogCap {
		trimmed := make([]auction.ChatComment, s.config.LogCap)
		copy(trimmed, s.log[len(s.log)-s.config.LogCap:])
		s.log = trimmed
	}
}

// Comments returns a copy of the retained log, oldest first
func (s *Stream) Comments() []auction.ChatComment {
	out := make([]auction.ChatComment, len(s.log))
	copy(out, s.log)
	return out
}

// Reset drops the log and the send gate, used when leaving a room
func (s *Stream) Reset() {
	s.log = nil
	s.lastSend = time.Time{}
}

// Visible derives the on-screen subset at now: comments younger than
// Visible+Fade, the most recent VisibleMax of them, oldest first.
func (s *Stream) Visible(now time.Time) []VisibleComment {
	window := s.config.Visible + s.config.Fade
	var out []VisibleComment
	for _, c := range s.log {
		age := now.Sub(time.UnixMilli(c.CreatedAt))
		if age >= window {
			continue
		}
		out = append(out, VisibleComment{ChatComment: c, Opacity: Opacity(age, s.config.Visible, s.config.Fade)})
	}
	if s.config.VisibleMax > 0 && len(out) > s.config.VisibleMax {
		out = out[len(out)-s.config.VisibleMax:]
	}
	return out
}

// Opacity is 1 until visible, then falls linearly to 0 over fade
func Opacity(age, visible, fade time.Duration) float64 {
	if age <= visible {
		return 1
	}
	if fade <= 0 || age >= visible+fade {
		return 0
	}
	return 1 - float64(age-visible)/float64(fade)
}

// Validate checks a trimmed comment against the local rules before any network call
func (s *Stream) Validate(text string, phase auction.Phase) error {
	if phase == auction.PhaseEnded {
		return ErrChatClosed
	}
	if text == "" {
		return ErrEmpty
	}
	if s.config.MaxLength > 0 && utf8.RuneCountInString(text) > s.config.MaxLength {
		return ErrTooLong
	}
	if !s.lastSend.IsZero() && s.clock.Since(s.lastSend) < s.config.MinInterval {
		return ErrTooFast
	}
	return nil
}

// Accept records a send that passed validation
func (s *Stream) Accept() {
	s.lastSend = s.clock.Now()
}
