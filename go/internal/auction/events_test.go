package auction

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventPayload_Snapshot(t *testing.T) {
	env := Envelope{
		Type: EventAuctionState,
		Data: json.RawMessage(`{"id":"a1","sellerId":"s1","status":"LIVE","currentItemIndex":0,
			"items":[{"id":"i1","name":"Lamp","startingPrice":10,"highestBid":50,"highestBidderId":"u2","status":"LIVE"}],
			"itemEndTime":1700000000000}`),
	}

	payload, err := ParseEventPayload(env)
	require.NoError(t, err)

	snap, ok := payload.(Snapshot)
	require.True(t, ok, "expected Snapshot, got %T", payload)
	assert.Equal(t, PhaseLive, snap.Status)
	require.NotNil(t, snap.CurrentItem())
	assert.Equal(t, int64(50), snap.CurrentItem().HighestBid)

	end, ok := snap.EndTime()
	require.True(t, ok)
	assert.Equal(t, int64(1700000000000), end.UnixMilli())
}

func TestParseEventPayload_StateError(t *testing.T) {
	env := Envelope{Type: EventAuctionState, Data: json.RawMessage(`{"error":"Auction not found"}`)}

	payload, err := ParseEventPayload(env)
	require.NoError(t, err)
	assert.Equal(t, StateError{Error: "Auction not found"}, payload)
}

func TestParseEventPayload_CommentsSnapshotMalformed(t *testing.T) {
	env := Envelope{Type: EventCommentsSnapshot, Data: json.RawMessage(`{"not":"a list"}`)}

	payload, err := ParseEventPayload(env)
	require.NoError(t, err)
	assert.Equal(t, []ChatComment{}, payload)
}

func TestParseEventPayload_Unknown(t *testing.T) {
	payload, err := ParseEventPayload(Envelope{Type: "something_else", Data: json.RawMessage(`{}`)})
	assert.NoError(t, err)
	assert.Nil(t, payload)
}

func TestItemResolved_IsSold(t *testing.T) {
	winner := "u1"
	no := false

	assert.True(t, ItemResolved{WinnerID: &winner}.IsSold())
	assert.False(t, ItemResolved{}.IsSold())
	assert.False(t, ItemResolved{WinnerID: &winner, Sold: &no}.IsSold())
}

func TestCurrentItem_OutOfRange(t *testing.T) {
	var nilSnap *Snapshot
	assert.Nil(t, nilSnap.CurrentItem())
	assert.Nil(t, (&Snapshot{CurrentItemIndex: 3, Items: []Item{{ID: "i1"}}}).CurrentItem())
}

func TestParticipantLabel(t *testing.T) {
	tests := []struct {
		name        string
		participant string
		want        string
	}{
		{"self with name", "me", "Alice"},
		{"other long id", "0123456789abcdef", "01234567"},
		{"other short id", "bob", "bob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParticipantLabel(tt.participant, "me", "Alice"))
		})
	}
	assert.Equal(t, "You", ParticipantLabel("me", "me", ""))
}

func TestCommentAge(t *testing.T) {
	now := time.UnixMilli(10_000_000)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{0, "now"},
		{9 * time.Second, "now"},
		{42 * time.Second, "42s"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
		{-time.Minute, "now"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CommentAge(now.Add(-tt.ago).UnixMilli(), now), "ago=%s", tt.ago)
	}
}

func TestFinalResults_PrefersEndedPayload(t *testing.T) {
	bidder := "u2"
	winner := "u3"
	snap := &Snapshot{
		ID: "a1",
		Items: []Item{
			{ID: "i1", Name: "Lamp", HighestBid: 50, HighestBidderID: &bidder},
			{ID: "i2", Name: "Vase", HighestBid: 20},
		},
	}
	ended := &AuctionEnded{
		AuctionID: "a1",
		Results:   []ItemResult{{ItemID: "i1", WinnerID: &winner, FinalPrice: 70}},
	}

	results := FinalResults(snap, ended)
	require.Len(t, results, 2)
	assert.Equal(t, "u3", *results[0].WinnerID)
	assert.Equal(t, int64(70), results[0].FinalPrice)
	assert.Nil(t, results[1].WinnerID)
	assert.Equal(t, int64(20), results[1].FinalPrice)

	// a payload for another auction is ignored
	other := FinalResults(snap, &AuctionEnded{AuctionID: "zz", Results: ended.Results})
	assert.Equal(t, "u2", *other[0].WinnerID)
}

func TestNextBid(t *testing.T) {
	assert.Equal(t, int64(60), NextBid(&Item{HighestBid: 50}, 10))
	assert.Equal(t, int64(0), NextBid(nil, 10))
}
