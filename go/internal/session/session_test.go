package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/liveauction/go/clients"
	"github.com/mcdev12/liveauction/go/internal/auction"
	"github.com/mcdev12/liveauction/go/internal/identity"
	"github.com/mcdev12/liveauction/go/internal/media"
	"github.com/mcdev12/liveauction/go/internal/realtime"
)

type fakeConn struct {
	mu           sync.Mutex
	sent         []auction.Envelope
	connected    bool
	disconnected bool
	events       chan realtime.Event
}

func newFakeConn() *fakeConn {
	return &fakeConn{connected: true, events: make(chan realtime.Event, 16)}
}

func (f *fakeConn) Connect(ctx context.Context) error { return nil }

func (f *fakeConn) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
	return nil
}

func (f *fakeConn) Emit(env auction.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return realtime.ErrNotConnected
	}
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeConn) Status() realtime.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return realtime.Status{Connected: f.connected}
}

func (f *fakeConn) Events() <-chan realtime.Event { return f.events }

func (f *fakeConn) sentOf(t auction.EventType) []auction.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []auction.Envelope
	for _, env := range f.sent {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

type fakeActions struct {
	mu      sync.Mutex
	starts  []string
	extends []string
	release chan error
}

func (f *fakeActions) Start(ctx context.Context, auctionID string) error {
	f.mu.Lock()
	f.starts = append(f.starts, auctionID)
	f.mu.Unlock()
	return <-f.release
}

func (f *fakeActions) Extend(ctx context.Context, auctionID, requesterID string) error {
	f.mu.Lock()
	f.extends = append(f.extends, auctionID+"/"+requesterID)
	f.mu.Unlock()
	return <-f.release
}

type fakeEngine struct {
	joins  int
	leaves int
	events chan media.EngineEvent
}

func (f *fakeEngine) Available() bool { return true }
func (f *fakeEngine) RequestPermissions(ctx context.Context) error { return nil }
func (f *fakeEngine) Join(ctx context.Context, params media.JoinParams) error { f.joins++; return nil }
func (f *fakeEngine) Leave(ctx context.Context) error { f.leaves++; return nil }
func (f *fakeEngine) SwitchCamera() error { return nil }
func (f *fakeEngine) Release() error { return nil }
func (f *fakeEngine) Events() <-chan media.EngineEvent { return f.events }

type staticTokens struct{}

func (staticTokens) Token(ctx context.Context, channel string, uid uint32, role string) (string, error) {
	return "media-token", nil
}

type harness struct {
	s      *Session
	conn   *fakeConn
	api    *fakeActions
	engine *fakeEngine
	clock  *clockwork.FakeClock
}

func newHarness(t *testing.T, user identity.User) *harness {
	t.Helper()
	h := &harness{
		conn:   newFakeConn(),
		api:    &fakeActions{release: make(chan error, 1)},
		engine: &fakeEngine{events: make(chan media.EngineEvent, 4)},
		clock:  clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000)),
	}
	h.s = New(Deps{
		Conn:        h.conn,
		Actions:     h.api,
		MediaEngine: h.engine,
		MediaTokens: staticTokens{},
		MediaAppID:  "app",
		User:        user,
		Clock:       h.clock,
		Options:     DefaultOptions(),
		MediaRun:    func(f func()) { f() },
	})
	return h
}

// drain runs work posted to the loop without starting Run
func (h *harness) drain() {
	for {
		select {
		case fn := <-h.s.inbox:
			fn()
		default:
			h.s.publish()
			return
		}
	}
}

func (h *harness) deliver(t *testing.T, typ auction.EventType, payload interface{}) {
	t.Helper()
	env, err := auction.NewEnvelope(typ, payload)
	require.NoError(t, err)
	h.s.handleConnEvent(realtime.Event{Kind: realtime.EventMessage, Envelope: env})
	h.drain()
}

func snapshot(status auction.Phase, highest int64) auction.Snapshot {
	snap := auction.Snapshot{
		ID:       "a1",
		SellerID: "seller",
		Status:   status,
		Items: []auction.Item{
			{ID: "i1", Name: "Vase", StartingPrice: 10, Status: auction.ItemPending, HighestBid: highest},
			{ID: "i2", Name: "Lamp", StartingPrice: 5, Status: auction.ItemPending},
		},
	}
	if status == auction.PhaseLive {
		end := int64(1_700_000_030_000)
		snap.ItemEndTime = &end
		snap.Items[0].Status = auction.ItemLive
	}
	return snap
}

func TestSession_BidFlow(t *testing.T) {
	h := newHarness(t, identity.User{ID: "u1", DisplayName: "Ada"})
	h.s.open("a1")
	h.deliver(t, auction.EventAuctionState, snapshot(auction.PhaseLive, 50))

	v := h.s.View()
	require.NotNil(t, v.Item)
	assert.True(t, v.CanBid)
	assert.Equal(t, int64(60), v.NextBid)
	require.NotNil(t, v.Remaining)
	assert.Equal(t, 30, *v.Remaining)

	h.s.placeBid(v.NextBid)
	bids := h.conn.sentOf(auction.CommandPlaceBid)
	require.Len(t, bids, 1)
	var payload auction.PlaceBidPayload
	require.NoError(t, json.Unmarshal(bids[0].Data, &payload))
	assert.Equal(t, int64(60), payload.Amount)
	assert.Equal(t, "u1", payload.UserID)

	h.deliver(t, auction.EventBidResult, auction.BidResult{Accepted: true, ClientSeq: payload.ClientSeq})
	require.NotNil(t, h.s.View().BidResult)
	assert.True(t, h.s.View().BidResult.Accepted)

	h.s.placeBid(70)
	h.drain()
	assert.Nil(t, h.s.View().BidResult)
}

func TestSession_SellerCannotBid(t *testing.T) {
	h := newHarness(t, identity.User{ID: "seller"})
	h.s.open("a1")
	h.deliver(t, auction.EventAuctionState, snapshot(auction.PhaseLive, 0))

	v := h.s.View()
	assert.True(t, v.IsSeller)
	assert.False(t, v.CanBid)
	assert.True(t, v.Slider.Disabled)

	h.s.placeBid(20)
	h.drain()
	assert.Empty(t, h.conn.sentOf(auction.CommandPlaceBid))
	assert.NotEmpty(t, h.s.View().BidError)
}

func TestSession_BidWhileDisconnected(t *testing.T) {
	h := newHarness(t, identity.User{ID: "u1"})
	h.s.open("a1")
	h.deliver(t, auction.EventAuctionState, snapshot(auction.PhaseLive, 0))

	h.conn.mu.Lock()
	h.conn.connected = false
	h.conn.mu.Unlock()

	h.s.placeBid(10)
	h.drain()
	assert.Equal(t, "Not connected. Bid not sent.", h.s.View().BidError)
}

func TestSession_EndedClosesChat(t *testing.T) {
	h := newHarness(t, identity.User{ID: "u1", DisplayName: "Ada"})
	h.s.open("a1")
	h.deliver(t, auction.EventAuctionState, snapshot(auction.PhaseLive, 0))
	assert.True(t, h.s.View().ChatOpen)

	h.deliver(t, auction.EventAuctionState, snapshot(auction.PhaseEnded, 40))
	v := h.s.View()
	assert.False(t, v.ChatOpen)
	assert.Nil(t, v.Remaining)
	assert.Len(t, v.Results, 2)

	h.s.SendComment("still here?")
	h.drain()
	assert.Empty(t, h.conn.sentOf(auction.CommandSendComment))
	assert.Equal(t, "Chat is closed", h.s.View().CommentErr)
}

func TestSession_CommentRateLimit(t *testing.T) {
	h := newHarness(t, identity.User{ID: "u1", DisplayName: "Ada"})
	h.s.open("a1")
	h.deliver(t, auction.EventAuctionState, snapshot(auction.PhaseLive, 0))

	h.s.SendComment("first")
	h.s.SendComment("second")
	h.drain()
	assert.Len(t, h.conn.sentOf(auction.CommandSendComment), 1)
	assert.NotEmpty(t, h.s.View().CommentErr)

	h.clock.Advance(time.Second)
	h.s.SendComment("third")
	h.drain()
	assert.Len(t, h.conn.sentOf(auction.CommandSendComment), 2)
	assert.Empty(t, h.s.View().CommentErr)
}

func TestSession_BroadcasterMediaFollowsPhase(t *testing.T) {
	h := newHarness(t, identity.User{ID: "seller"})
	h.s.open("a1")

	h.deliver(t, auction.EventAuctionState, snapshot(auction.PhaseCreated, 0))
	assert.Equal(t, 0, h.engine.joins)
	assert.Equal(t, media.RoleBroadcaster, h.s.View().Media.Role)

	h.deliver(t, auction.EventAuctionState, snapshot(auction.PhaseLive, 0))
	assert.Equal(t, 1, h.engine.joins)

	// a repeated snapshot does not rejoin
	h.deliver(t, auction.EventAuctionState, snapshot(auction.PhaseLive, 20))
	assert.Equal(t, 1, h.engine.joins)

	h.deliver(t, auction.EventAuctionState, snapshot(auction.PhaseEnded, 20))
	assert.Equal(t, 1, h.engine.joins)
	assert.Equal(t, 1, h.engine.leaves)
}

func TestSession_ViewerJoinsBeforeLive(t *testing.T) {
	h := newHarness(t, identity.User{ID: "u1"})
	h.s.open("a1")

	h.deliver(t, auction.EventAuctionState, snapshot(auction.PhaseCreated, 0))
	assert.Equal(t, 1, h.engine.joins)
	assert.Equal(t, media.RoleViewer, h.s.View().Media.Role)
}

func TestSession_WinnerAnnouncementReplaces(t *testing.T) {
	h := newHarness(t, identity.User{ID: "u1"})
	h.s.open("a1")
	h.deliver(t, auction.EventAuctionState, snapshot(auction.PhaseLive, 0))

	winner := "u2"
	h.deliver(t, auction.EventItemSold, auction.ItemResolved{AuctionID: "a1", ItemID: "i1", WinnerID: &winner, FinalPrice: 80})
	require.NotNil(t, h.s.View().Announcement)
	assert.Equal(t, "Vase", h.s.View().Announcement.ItemName)
	assert.True(t, h.s.View().Announcement.Sold)

	h.clock.Advance(2 * time.Second)
	h.deliver(t, auction.EventItemSold, auction.ItemResolved{AuctionID: "a1", ItemID: "i2"})
	a := h.s.View().Announcement
	require.NotNil(t, a)
	assert.Equal(t, "Lamp", a.ItemName)
	assert.False(t, a.Sold)
}

func TestSession_GestureCommitBidsNextAmount(t *testing.T) {
	h := newHarness(t, identity.User{ID: "u1"})
	h.s.open("a1")
	h.deliver(t, auction.EventAuctionState, snapshot(auction.PhaseLive, 50))

	h.s.MeasureSlider(300)
	h.s.BeginGesture()
	h.s.MoveGesture(400)
	h.s.CommitGesture(400, 0)
	h.drain()

	bids := h.conn.sentOf(auction.CommandPlaceBid)
	require.Len(t, bids, 1)
	var payload auction.PlaceBidPayload
	require.NoError(t, json.Unmarshal(bids[0].Data, &payload))
	assert.Equal(t, int64(60), payload.Amount)

	// the control is locked until it settles
	h.s.BeginGesture()
	h.s.CommitGesture(400, 0)
	h.drain()
	assert.Len(t, h.conn.sentOf(auction.CommandPlaceBid), 1)
}

func TestSession_StartReportsError(t *testing.T) {
	h := newHarness(t, identity.User{ID: "seller"})
	h.s.open("a1")
	h.deliver(t, auction.EventAuctionState, snapshot(auction.PhaseCreated, 0))
	assert.True(t, h.s.View().CanStart)

	h.s.start()
	h.drain()
	assert.True(t, h.s.View().Starting)
	assert.False(t, h.s.View().CanStart)

	// a second press while in flight is ignored
	h.s.start()

	h.api.release <- &clients.HTTPError{StatusCode: 409, Message: "Auction already started"}
	require.Eventually(t, func() bool {
		h.drain()
		return !h.s.View().Starting
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "Auction already started", h.s.View().ActionError)
	h.api.mu.Lock()
	assert.Equal(t, []string{"a1"}, h.api.starts)
	h.api.mu.Unlock()
}

func TestSession_ExtendResultForLeftAuctionIsDropped(t *testing.T) {
	h := newHarness(t, identity.User{ID: "seller"})
	h.s.open("a1")
	h.deliver(t, auction.EventAuctionState, snapshot(auction.PhaseLive, 0))
	require.True(t, h.s.View().CanExtend)

	h.s.extend()
	h.s.closeRoom()
	h.api.release <- errors.New("boom")

	require.Eventually(t, func() bool {
		h.drain()
		return !h.s.View().Extending
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, h.s.View().ActionError)
	assert.Equal(t, []string{"a1/seller"}, h.api.extends)
}

func TestSession_RunLoop(t *testing.T) {
	h := newHarness(t, identity.User{ID: "u1", DisplayName: "Ada"})

	var mu sync.Mutex
	var views int
	h.s.OnChange(func(View) {
		mu.Lock()
		views++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.s.Run(ctx) }()

	h.s.Open("a1")
	require.Eventually(t, func() bool {
		return len(h.conn.sentOf(auction.CommandJoinAuction)) == 1
	}, time.Second, 5*time.Millisecond)
	h.conn.events <- realtime.Event{Kind: realtime.EventConnected}
	require.Eventually(t, func() bool {
		return len(h.conn.sentOf(auction.CommandJoinAuction)) == 2
	}, time.Second, 5*time.Millisecond)

	env, err := auction.NewEnvelope(auction.EventAuctionState, snapshot(auction.PhaseLive, 0))
	require.NoError(t, err)
	h.conn.events <- realtime.Event{Kind: realtime.EventMessage, Envelope: env}

	require.Eventually(t, func() bool {
		return h.s.View().Snapshot != nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}

	assert.Len(t, h.conn.sentOf(auction.CommandLeaveAuction), 1)
	h.conn.mu.Lock()
	assert.True(t, h.conn.disconnected)
	h.conn.mu.Unlock()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return views > 0
	}, time.Second, 5*time.Millisecond)
}

func TestSession_SlowListenerDoesNotStallLoop(t *testing.T) {
	h := newHarness(t, identity.User{ID: "u1", DisplayName: "Ada"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	views := make(chan View)
	h.s.OnChange(func(v View) {
		select {
		case views <- v:
		case <-ctx.Done():
		}
	})

	done := make(chan error, 1)
	go func() { done <- h.s.Run(ctx) }()
	h.s.Open("a1")

	// nobody reads views while the input burst is posted
	posted := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			h.s.BeginGesture()
			h.s.MoveGesture(1)
			h.s.CommitGesture(1, 0)
		}
		close(posted)
	}()
	select {
	case <-posted:
	case <-time.After(2 * time.Second):
		t.Fatalf("input stalled behind listener, inbox len=%d", len(h.s.inbox))
	}

	env, err := auction.NewEnvelope(auction.EventAuctionState, snapshot(auction.PhaseLive, 0))
	require.NoError(t, err)
	select {
	case h.conn.events <- realtime.Event{Kind: realtime.EventMessage, Envelope: env}:
	case <-time.After(time.Second):
		t.Fatal("loop stopped reading transport events")
	}
	require.Eventually(t, func() bool {
		return h.s.View().Snapshot != nil
	}, time.Second, 5*time.Millisecond)

	// the listener catches up to the latest view
	require.Eventually(t, func() bool {
		select {
		case v := <-views:
			return v.Snapshot != nil
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
