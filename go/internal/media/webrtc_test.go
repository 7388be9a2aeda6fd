package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signalServer confirms the join, announces a broadcaster and forwards the offer it received
func signalServer(t *testing.T, offers chan<- signalMessage, headers chan<- http.Header) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		for {
			var msg signalMessage
			if err := ws.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type != "offer" {
				continue
			}
			offers <- msg
			_ = ws.WriteJSON(signalMessage{Type: "joined", Channel: msg.Channel})
			_ = ws.WriteJSON(signalMessage{Type: "user_joined", UID: 7})
			_ = ws.WriteJSON(signalMessage{Type: "user_offline", UID: 7})
		}
	}))
}

func nextEngineEvent(t *testing.T, e *WebRTCEngine) EngineEvent {
	t.Helper()
	select {
	case ev := <-e.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no media event")
		return EngineEvent{}
	}
}

func TestWebRTCEngine_ViewerSignaling(t *testing.T) {
	offers := make(chan signalMessage, 1)
	headers := make(chan http.Header, 1)
	srv := signalServer(t, offers, headers)
	defer srv.Close()

	engine := NewWebRTCEngine(WebRTCConfig{SignalURL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	defer engine.Release()

	err := engine.Join(context.Background(), JoinParams{
		Channel: "auction-a1",
		LocalID: 42,
		Role:    RoleViewer,
		Token:   "media-tok",
		AppID:   "app",
		Attempt: 3,
	})
	require.NoError(t, err)

	h := <-headers
	assert.Equal(t, "Bearer media-tok", h.Get("Authorization"))
	assert.Equal(t, "app", h.Get("X-App-ID"))

	offer := <-offers
	assert.Equal(t, "auction-a1", offer.Channel)
	assert.Equal(t, uint32(42), offer.UID)
	require.NotNil(t, offer.SDP)
	assert.Equal(t, webrtc.SDPTypeOffer, offer.SDP.Type)
	assert.Contains(t, offer.SDP.SDP, "a=recvonly")

	assert.Equal(t, EngineEvent{Kind: EventJoinSuccess, Channel: "auction-a1", Attempt: 3}, nextEngineEvent(t, engine))
	assert.Equal(t, EngineEvent{Kind: EventUserJoined, Channel: "auction-a1", RemoteID: 7, Attempt: 3}, nextEngineEvent(t, engine))
	assert.Equal(t, EngineEvent{Kind: EventUserOffline, Channel: "auction-a1", RemoteID: 7, Attempt: 3}, nextEngineEvent(t, engine))

	require.NoError(t, engine.Leave(context.Background()))
	assert.ErrorIs(t, engine.send(signalMessage{Type: "ping"}), ErrNotJoined)
}

func TestWebRTCEngine_BroadcasterNeedsCamera(t *testing.T) {
	engine := NewWebRTCEngine(WebRTCConfig{SignalURL: "ws://127.0.0.1:1"})
	assert.ErrorIs(t, engine.RequestPermissions(context.Background()), ErrPermissionDenied)
	assert.ErrorIs(t, engine.SwitchCamera(), ErrUnavailable)
}

func TestProbe(t *testing.T) {
	assert.IsType(t, Unavailable{}, Probe(ProbeConfig{}))
	assert.IsType(t, &WebRTCEngine{}, Probe(ProbeConfig{SignalURL: "ws://signal"}))
}
