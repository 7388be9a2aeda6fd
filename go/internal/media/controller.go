package media

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveauction/go/internal/auction"
)

// State of the media session
type State int

const (
	StateIdle State = iota
	StateJoining
	StateJoined
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SessionState is the read-only view of the media session
type SessionState struct {
	State    State   `json:"state"`
	Role     Role    `json:"role"`
	Joined   bool    `json:"joined"`
	Channel  string  `json:"channel,omitempty"`
	LocalID  uint32  `json:"localId"`
	RemoteID *uint32 `json:"remoteId,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// Options configure a Controller
type Options struct {
	AppID   string
	LocalID uint32
	Timeout time.Duration
	// Run executes engine and token calls off the owner loop, in order
	Run func(func())
	// Post delivers the result of a Run back onto the owner loop
	Post func(func())
}

// Controller binds role and auction phase to media join and leave.
// All methods must be called from the owner loop; engine and token calls
// happen through Run and report back through Post.
type Controller struct {
	engine  Engine
	tokens  TokenSource
	appID   string
	localID uint32
	timeout time.Duration
	run     func(func())
	post    func(func())

	// gen invalidates results of superseded joins
	gen uint64

	mounted   bool
	auctionID string
	role      Role
	phase     auction.Phase

	state    State
	channel  string
	remoteID *uint32
	lastErr  string
}

// NewController creates an idle controller
func NewController(engine Engine, tokens TokenSource, opts Options) *Controller {
	if engine == nil {
		engine = Unavailable{}
	}
	if opts.LocalID == 0 {
		opts.LocalID = NewLocalID()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Run == nil {
		opts.Run = NewSerialExecutor(32).Run
	}
	if opts.Post == nil {
		opts.Post = func(f func()) { f() }
	}
	return &Controller{
		engine:  engine,
		tokens:  tokens,
		appID:   opts.AppID,
		localID: opts.LocalID,
		timeout: opts.Timeout,
		run:     opts.Run,
		post:    opts.Post,
		role:    RoleViewer,
	}
}

// Mount attaches the controller to an auction screen
func (c *Controller) Mount(auctionID string) {
	if c.mounted && c.auctionID == auctionID {
		return
	}
	if c.mounted && c.auctionID != auctionID && c.active() {
		c.leave("auction switched")
	}
	c.mounted = true
	c.auctionID = auctionID
	c.reconcile()
}

// Unmount leaves and tears the engine down
func (c *Controller) Unmount() {
	if !c.mounted {
		return
	}
	c.mounted = false
	if c.active() {
		c.leave("unmounted")
	}
	c.state = StateIdle
	c.lastErr = ""
	engine := c.engine
	c.run(func() {
		if err := engine.Release(); err != nil {
			log.Warn().Err(err).Msg("failed to release media engine")
		}
	})
}

// SetRole changes role; an active session is left before rejoining in the new role
func (c *Controller) SetRole(role Role) {
	if role == c.role {
		return
	}
	if c.active() {
		c.leave("role changed")
	}
	c.role = role
	c.reconcile()
}

// ApplyPhase feeds an auction phase transition
func (c *Controller) ApplyPhase(phase auction.Phase) {
	if phase == c.phase {
		return
	}
	c.phase = phase
	c.reconcile()
}

// Join is the explicit user retry. It clears a terminal error.
func (c *Controller) Join() {
	if c.state == StateError {
		c.state = StateIdle
		c.lastErr = ""
	}
	c.reconcile()
}

// Leave disconnects from the channel but keeps the engine
func (c *Controller) Leave() {
	if c.active() {
		c.leave("left")
	}
}

// SwitchCamera flips the broadcaster's camera
func (c *Controller) SwitchCamera() error {
	if c.state != StateJoined {
		return ErrNotJoined
	}
	if c.role != RoleBroadcaster {
		return nil
	}
	return c.engine.SwitchCamera()
}

// State returns a copy of the media session state
func (c *Controller) State() SessionState {
	st := SessionState{
		State:   c.state,
		Role:    c.role,
		Joined:  c.state == StateJoined,
		Channel: c.channel,
		LocalID: c.localID,
		Error:   c.lastErr,
	}
	if c.remoteID != nil {
		id := *c.remoteID
		st.RemoteID = &id
	}
	return st
}

// Events exposes the engine callbacks for the owner loop
func (c *Controller) Events() <-chan EngineEvent {
	return c.engine.Events()
}

// HandleEngineEvent applies a membership or error callback
func (c *Controller) HandleEngineEvent(ev EngineEvent) {
	switch ev.Kind {
	case EventJoinSuccess:
		if c.state != StateJoining || c.stale(ev) {
			return
		}
		c.state = StateJoined
		log.Info().Str("channel", c.channel).Str("role", string(c.role)).Msg("media channel joined")

	case EventUserJoined:
		if c.role != RoleViewer || !c.active() {
			return
		}
		id := ev.RemoteID
		c.remoteID = &id
		log.Debug().Uint32("remote_id", id).Msg("broadcaster present")

	case EventUserOffline:
		if c.remoteID != nil && *c.remoteID == ev.RemoteID {
			c.remoteID = nil
			log.Debug().Uint32("remote_id", ev.RemoteID).Msg("broadcaster left")
		}

	case EventError:
		if !c.active() || c.stale(ev) {
			return
		}
		c.fail(ev.Err)
	}
}

// stale reports whether ev belongs to a superseded join attempt
func (c *Controller) stale(ev EngineEvent) bool {
	if ev.Channel != "" && ev.Channel != c.channel {
		return true
	}
	return ev.Attempt != 0 && ev.Attempt != c.gen
}

// wants decides whether the session should be in the channel
func (c *Controller) wants() bool {
	if !c.mounted || c.auctionID == "" {
		return false
	}
	if c.role == RoleBroadcaster {
		return c.phase == auction.PhaseLive
	}
	return c.phase != auction.PhaseEnded
}

func (c *Controller) active() bool {
	return c.state == StateJoining || c.state == StateJoined
}

func (c *Controller) reconcile() {
	want := c.wants()
	switch {
	case want && c.state == StateIdle:
		c.join()
	case !want && c.active():
		c.leave("phase " + string(c.phase))
	}
}

func (c *Controller) join() {
	c.gen++
	gen := c.gen
	c.state = StateJoining
	c.channel = ChannelFor(c.auctionID)
	c.remoteID = nil
	c.lastErr = ""

	params := JoinParams{
		Channel: c.channel,
		LocalID: c.localID,
		Role:    c.role,
		AppID:   c.appID,
		Attempt: gen,
	}
	engine, tokens, timeout := c.engine, c.tokens, c.timeout

	log.Info().
		Str("channel", params.Channel).
		Str("role", string(params.Role)).
		Uint32("local_id", params.LocalID).
		Msg("joining media channel")

	c.run(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := joinEngine(ctx, engine, tokens, params)
		c.post(func() {
			if gen != c.gen {
				return
			}
			if err != nil {
				c.fail(err)
			}
		})
	})
}

// joinEngine runs the blocking part of a join: capability and credential
// checks, permissions, a fresh token, then the engine join
func joinEngine(ctx context.Context, engine Engine, tokens TokenSource, params JoinParams) error {
	if !engine.Available() {
		return ErrUnavailable
	}
	if params.AppID == "" {
		return ErrMissingAppID
	}
	if params.Role == RoleBroadcaster {
		if err := engine.RequestPermissions(ctx); err != nil {
			return err
		}
	}
	if tokens == nil {
		return fmt.Errorf("fetch media token: no token source")
	}
	token, err := tokens.Token(ctx, params.Channel, params.LocalID, string(params.Role))
	if err != nil {
		return err
	}
	params.Token = token
	if err := engine.Join(ctx, params); err != nil {
		return fmt.Errorf("join media channel: %w", err)
	}
	return nil
}

func (c *Controller) leave(reason string) {
	c.gen++
	channel := c.channel
	c.state = StateIdle
	c.channel = ""
	c.remoteID = nil

	log.Info().Str("channel", channel).Str("reason", reason).Msg("leaving media channel")

	engine, timeout := c.engine, c.timeout
	c.run(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := engine.Leave(ctx); err != nil {
			log.Warn().Err(err).Str("channel", channel).Msg("media leave failed")
		}
	})
}

func (c *Controller) fail(err error) {
	c.gen++
	c.state = StateError
	c.lastErr = Message(err)
	c.remoteID = nil
	log.Error().Err(err).Str("channel", c.channel).Msg("media session failed")

	engine, timeout := c.engine, c.timeout
	c.run(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := engine.Leave(ctx); err != nil {
			log.Debug().Err(err).Msg("media leave after failure")
		}
	})
}
