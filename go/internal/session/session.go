package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveauction/go/clients"
	"github.com/mcdev12/liveauction/go/internal/announce"
	"github.com/mcdev12/liveauction/go/internal/auction"
	"github.com/mcdev12/liveauction/go/internal/chat"
	"github.com/mcdev12/liveauction/go/internal/countdown"
	"github.com/mcdev12/liveauction/go/internal/gesture"
	"github.com/mcdev12/liveauction/go/internal/identity"
	"github.com/mcdev12/liveauction/go/internal/media"
	"github.com/mcdev12/liveauction/go/internal/realtime"
	"github.com/mcdev12/liveauction/go/internal/room"
)

// Connection is the realtime surface the session drives
type Connection interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Emit(env auction.Envelope) error
	Status() realtime.Status
	Events() <-chan realtime.Event
}

// AuctionActions are the request/response seller actions
type AuctionActions interface {
	Start(ctx context.Context, auctionID string) error
	Extend(ctx context.Context, auctionID, requesterID string) error
}

// Deps wires a Session
type Deps struct {
	Conn        Connection
	Actions     AuctionActions
	MediaEngine media.Engine
	MediaTokens media.TokenSource
	MediaAppID  string
	User        identity.User
	Clock       clockwork.Clock
	Options     Options

	// MediaRun overrides where media engine calls execute
	MediaRun func(func())
}

// Session owns every piece of per-process auction state. All state is
// mutated on the Run loop; public methods post work onto it.
type Session struct {
	conn    Connection
	api     AuctionActions
	clock   clockwork.Clock
	opts    Options
	user    identity.User
	inbox   chan func()
	done    chan struct{}
	doneOne sync.Once

	room      *room.Session
	chat      *chat.Stream
	countdown *countdown.Countdown
	winners   *announce.Sequencer
	slider    *gesture.Slider
	media     *media.Controller

	mediaMounted bool
	bidErr       string
	actionErr    string
	starting     bool
	extending    bool

	mu        sync.RWMutex
	view      View
	listeners []*listener
}

// New creates a session; nothing connects until Run
func New(deps Deps) *Session {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	opts := deps.Options
	if opts.BidStep == 0 {
		opts = DefaultOptions()
	}

	s := &Session{
		conn:  deps.Conn,
		api:   deps.Actions,
		clock: clock,
		opts:  opts,
		user:  deps.User,
		inbox: make(chan func(), 64),
		done:  make(chan struct{}),
	}

	s.chat = chat.NewStream(opts.Chat, clock)
	s.room = room.NewSession(deps.Conn, s.chat, participant(deps.User))
	s.countdown = countdown.New(clock, opts.CountdownTick)
	s.winners = announce.NewSequencer(clock, opts.WinnerDuration)
	s.slider = gesture.NewSlider(opts.Gesture, clock)
	s.slider.SetDisabled(true)
	s.media = media.NewController(deps.MediaEngine, deps.MediaTokens, media.Options{
		AppID:   deps.MediaAppID,
		Timeout: opts.RequestTimeout,
		Run:     deps.MediaRun,
		Post:    s.do,
	})

	s.view = s.buildView()
	return s
}

func participant(u identity.User) room.Participant {
	return room.Participant{ID: u.ID, DisplayName: u.DisplayName}
}

// Run connects and processes events until ctx ends
func (s *Session) Run(ctx context.Context) error {
	defer s.doneOne.Do(func() { close(s.done) })

	if err := s.conn.Connect(ctx); err != nil {
		return err
	}

	chatTicker := s.clock.NewTicker(s.opts.ChatTick)
	defer chatTicker.Stop()

	log.Info().Str("user_id", s.user.ID).Msg("session started")
	s.publish()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			log.Info().Msg("session stopped")
			return nil

		case fn := <-s.inbox:
			fn()

		case ev := <-s.conn.Events():
			s.handleConnEvent(ev)

		case ev := <-s.media.Events():
			s.media.HandleEngineEvent(ev)

		case <-s.countdown.C():
			s.countdown.Tick()

		case <-s.winners.C():
			s.winners.Dismiss()

		case <-s.slider.C():
			s.slider.Settle()

		case <-chatTicker.Chan():
			if !s.animating() {
				continue
			}
		}
		s.publish()
	}
}

// do runs fn on the loop
func (s *Session) do(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.done:
	}
}

// Open joins an auction room, leaving the current one
func (s *Session) Open(auctionID string) { s.do(func() { s.open(auctionID) }) }

// Close leaves the current room
func (s *Session) Close() { s.do(s.closeRoom) }

// SetUser replaces the local identity, e.g. after sign in
func (s *Session) SetUser(u identity.User) {
	s.do(func() {
		s.user = u
		s.room.SetParticipant(participant(u))
		s.applySnapshot()
	})
}

// PlaceBid bids amount on the current item
func (s *Session) PlaceBid(amount int64) { s.do(func() { s.placeBid(amount) }) }

// SendComment validates and sends a chat message
func (s *Session) SendComment(text string) {
	s.do(func() {
		if err := s.room.SendComment(text); err != nil {
			log.Debug().Err(err).Msg("comment not sent")
		}
	})
}

// MeasureSlider sets the bid control width
func (s *Session) MeasureSlider(width float64) { s.do(func() { s.slider.Measure(width) }) }

// BeginGesture starts a bid drag
func (s *Session) BeginGesture() { s.do(func() { s.slider.Begin() }) }

// MoveGesture tracks the drag displacement
func (s *Session) MoveGesture(dx float64) { s.do(func() { s.slider.Move(dx) }) }

// CommitGesture releases the drag; a committed gesture bids the next amount
func (s *Session) CommitGesture(dx, vx float64) { s.do(func() { s.commitGesture(dx, vx) }) }

// CancelGesture abandons the drag
func (s *Session) CancelGesture() { s.do(s.slider.Terminate) }

// Start starts the auction (seller, CREATED)
func (s *Session) Start() { s.do(s.start) }

// Extend adds the one-time bonus to the current item (seller, LIVE)
func (s *Session) Extend() { s.do(s.extend) }

// SwitchCamera flips the broadcaster camera
func (s *Session) SwitchCamera() {
	s.do(func() {
		if err := s.media.SwitchCamera(); err != nil {
			log.Warn().Err(err).Msg("switch camera failed")
		}
	})
}

// RetryMedia is the explicit join after a media error
func (s *Session) RetryMedia() { s.do(s.media.Join) }

// View returns the latest published view
func (s *Session) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// OnChange registers a listener for published views. Listeners run on
// their own goroutine and only see the latest view; a slow listener
// skips intermediate views and never holds up the loop.
func (s *Session) OnChange(fn func(View)) {
	l := &listener{fn: fn, pending: make(chan View, 1)}
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
	go l.forward(s.done)
}

func (s *Session) open(auctionID string) {
	if auctionID == s.room.AuctionID() {
		return
	}
	s.closeRoom()
	if err := s.room.Join(auctionID); err != nil {
		// not connected yet; the join goes out on connect
		log.Warn().Err(err).Str("auction_id", auctionID).Msg("join deferred")
	}
}

func (s *Session) closeRoom() {
	if id := s.room.AuctionID(); id != "" {
		if err := s.room.Leave(id); err != nil {
			log.Warn().Err(err).Str("auction_id", id).Msg("leave failed")
		}
	}
	if s.mediaMounted {
		s.media.Unmount()
		s.mediaMounted = false
	}
	s.countdown.Stop()
	s.winners.Reset()
	s.slider.Settle()
	s.slider.SetDisabled(true)
	s.bidErr = ""
	s.actionErr = ""
}

func (s *Session) handleConnEvent(ev realtime.Event) {
	switch ev.Kind {
	case realtime.EventConnected:
		if err := s.room.Rejoin(); err != nil {
			log.Warn().Err(err).Msg("rejoin after connect failed")
		}
	case realtime.EventMessage:
		s.handleEnvelope(ev.Envelope)
	}
}

func (s *Session) handleEnvelope(env auction.Envelope) {
	changed, err := s.room.Handle(env)
	if err != nil {
		log.Warn().Err(err).Str("event_type", string(env.Type)).Msg("dropping malformed event")
		return
	}
	if !changed {
		return
	}

	switch env.Type {
	case auction.EventAuctionState:
		s.applySnapshot()
	case auction.EventItemSold:
		if r := s.room.TakeItemResolved(); r != nil {
			s.winners.Resolve(*r, s.room.Snapshot())
		}
	}
}

// applySnapshot derives countdown, media and gesture state from the latest snapshot
func (s *Session) applySnapshot() {
	snap := s.room.Snapshot()
	if snap == nil {
		s.countdown.Stop()
		s.slider.SetDisabled(true)
		return
	}

	if end, ok := snap.EndTime(); ok && snap.Status == auction.PhaseLive {
		s.countdown.Resync(&end)
	} else {
		s.countdown.Resync(nil)
	}

	// role and phase before mount, so the first join is already the right one
	s.media.SetRole(media.RoleFor(snap, s.user.ID))
	s.media.ApplyPhase(snap.Status)
	if !s.mediaMounted {
		s.media.Mount(snap.ID)
		s.mediaMounted = true
	}

	s.slider.SetDisabled(!s.canBid(snap))
}

func (s *Session) canBid(snap *auction.Snapshot) bool {
	if snap == nil || snap.Status != auction.PhaseLive || s.user.ID == "" || snap.SellerID == s.user.ID {
		return false
	}
	item := snap.CurrentItem()
	return item != nil && item.Status == auction.ItemLive
}

func (s *Session) placeBid(amount int64) {
	if !s.canBid(s.room.Snapshot()) {
		s.bidErr = "Bidding is not available"
		return
	}
	if err := s.room.PlaceBid(amount); err != nil {
		log.Warn().Err(err).Int64("amount", amount).Msg("bid not sent")
		if errors.Is(err, realtime.ErrNotConnected) {
			s.bidErr = "Not connected. Bid not sent."
		} else {
			s.bidErr = "Bid not sent"
		}
		return
	}
	s.bidErr = ""
	log.Info().Str("auction_id", s.room.AuctionID()).Int64("amount", amount).Msg("bid placed")
}

func (s *Session) commitGesture(dx, vx float64) {
	if !s.slider.Release(dx, vx) {
		return
	}
	s.placeBid(auction.NextBid(s.room.Snapshot().CurrentItem(), s.opts.BidStep))
}

func (s *Session) canStart(snap *auction.Snapshot) bool {
	return snap != nil && snap.Status == auction.PhaseCreated && snap.SellerID == s.user.ID && s.user.ID != ""
}

func (s *Session) canExtend(snap *auction.Snapshot) bool {
	if snap == nil || snap.Status != auction.PhaseLive || snap.SellerID != s.user.ID || s.user.ID == "" {
		return false
	}
	item := snap.CurrentItem()
	return item != nil && item.Status == auction.ItemLive && !item.Extended
}

func (s *Session) start() {
	snap := s.room.Snapshot()
	if s.starting || s.api == nil || !s.canStart(snap) {
		return
	}
	s.starting = true
	s.actionErr = ""
	auctionID := snap.ID

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
		defer cancel()
		err := s.api.Start(ctx, auctionID)
		s.do(func() {
			s.starting = false
			s.applyActionResult(auctionID, "start", err)
		})
	}()
}

func (s *Session) extend() {
	snap := s.room.Snapshot()
	if s.extending || s.api == nil || !s.canExtend(snap) {
		return
	}
	s.extending = true
	s.actionErr = ""
	auctionID, requester := snap.ID, s.user.ID

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
		defer cancel()
		err := s.api.Extend(ctx, auctionID, requester)
		s.do(func() {
			s.extending = false
			s.applyActionResult(auctionID, "extend", err)
		})
	}()
}

// applyActionResult drops results for an auction the user already left
func (s *Session) applyActionResult(auctionID, action string, err error) {
	if s.room.AuctionID() != auctionID {
		log.Debug().Str("auction_id", auctionID).Str("action", action).Msg("dropping result for stale auction")
		return
	}
	if err != nil {
		s.actionErr = clients.UserMessage(err)
		log.Warn().Err(err).Str("auction_id", auctionID).Str("action", action).Msg("auction action failed")
		return
	}
	log.Info().Str("auction_id", auctionID).Str("action", action).Msg("auction action accepted")
}

// animating reports whether a fast tick changes what is on screen
func (s *Session) animating() bool {
	now := s.clock.Now()
	if len(s.view.Comments) > 0 || len(s.chat.Visible(now)) > 0 {
		return true
	}
	if a := s.winners.Current(); a != nil && a.Opacity(now) < 1 {
		return true
	}
	return false
}

func (s *Session) buildView() View {
	now := s.clock.Now()
	snap := s.room.Snapshot()

	v := View{
		AuctionID:   s.room.AuctionID(),
		User:        s.user,
		Connection:  s.conn.Status(),
		Snapshot:    snap,
		Remaining:   s.countdown.Value(),
		BidResult:   s.room.BidResult(),
		BidError:    s.bidErr,
		Comments:    s.chat.Visible(now),
		CommentErr:  s.room.CommentError(),
		Media:       s.media.State(),
		Starting:    s.starting,
		Extending:   s.extending,
		ActionError: s.actionErr,
		UpdatedAt:   now,
	}

	if snap != nil {
		v.Item = snap.CurrentItem()
		v.IsSeller = s.user.ID != "" && snap.SellerID == s.user.ID
		v.NextBid = auction.NextBid(v.Item, s.opts.BidStep)
		v.CanBid = s.canBid(snap)
		v.ChatOpen = snap.Status != auction.PhaseEnded
		v.CanStart = s.canStart(snap) && !s.starting
		v.CanExtend = s.canExtend(snap) && !s.extending
		if snap.Status == auction.PhaseEnded {
			v.Results = auction.FinalResults(snap, s.room.Ended())
		}
	} else {
		v.ChatOpen = v.AuctionID != ""
	}

	if a := s.winners.Current(); a != nil {
		v.Announcement = a
		v.AnnouncementOpacity = a.Opacity(now)
	}

	v.Slider = SliderView{
		State:    s.slider.State(),
		Progress: s.slider.Progress(),
		Disabled: !v.CanBid,
	}
	return v
}

// publish stores a fresh view and notifies listeners
func (s *Session) publish() {
	v := s.buildView()

	s.mu.Lock()
	s.view = v
	listeners := make([]*listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l.offer(v)
	}
}

type listener struct {
	fn      func(View)
	pending chan View
}

// offer replaces any undelivered view with v. Only the loop offers.
func (l *listener) offer(v View) {
	select {
	case <-l.pending:
	default:
	}
	l.pending <- v
}

func (l *listener) forward(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case v := <-l.pending:
			l.fn(v)
		}
	}
}

func (s *Session) shutdown() {
	s.closeRoom()
	if err := s.conn.Disconnect(); err != nil {
		log.Warn().Err(err).Msg("disconnect failed")
	}
}

// Now exposes the session clock for renderers
func (s *Session) Now() time.Time { return s.clock.Now() }
