package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	pionmedia "github.com/pion/webrtc/v3/pkg/media"
	"github.com/rs/zerolog/log"
)

// Camera is a local capture source for the broadcaster
type Camera interface {
	// Open asks for device access; a refusal should wrap ErrPermissionDenied
	Open(ctx context.Context) error
	// NextSample blocks until the next encoded video frame
	NextSample(ctx context.Context) (pionmedia.Sample, error)
	Switch() error
	Close() error
}

// WebRTCConfig configures the WebRTC media capability
type WebRTCConfig struct {
	SignalURL string
	STUNURLs  []string
	Camera    Camera
}

// signalMessage is the JSON frame exchanged with the signaling service
type signalMessage struct {
	Type      string                     `json:"type"`
	Channel   string                     `json:"channel,omitempty"`
	UID       uint32                     `json:"uid,omitempty"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Message   string                     `json:"message,omitempty"`
}

// WebRTCEngine publishes or subscribes through a pion PeerConnection,
// negotiated over a WebSocket signaling channel
type WebRTCEngine struct {
	config WebRTCConfig
	dialer *websocket.Dialer
	events chan EngineEvent

	mu      sync.Mutex
	writeMu sync.Mutex
	pc      *webrtc.PeerConnection
	ws      *websocket.Conn
	channel string
	cancel  context.CancelFunc
}

// NewWebRTCEngine creates an engine; nothing connects until Join
func NewWebRTCEngine(config WebRTCConfig) *WebRTCEngine {
	return &WebRTCEngine{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		events: make(chan EngineEvent, 32),
	}
}

func (e *WebRTCEngine) Available() bool { return true }

// RequestPermissions opens the capture device
func (e *WebRTCEngine) RequestPermissions(ctx context.Context) error {
	if e.config.Camera == nil {
		return fmt.Errorf("%w: no capture device", ErrPermissionDenied)
	}
	if err := e.config.Camera.Open(ctx); err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return nil
}

// Join dials signaling, negotiates a PeerConnection and returns once the
// offer is sent. Join success arrives later as an event.
func (e *WebRTCEngine) Join(ctx context.Context, params JoinParams) error {
	// a join to another channel is a switch
	if err := e.Leave(ctx); err != nil {
		return err
	}

	ws, err := e.dialSignal(ctx, params)
	if err != nil {
		return err
	}

	pc, err := e.newPeerConnection(params)
	if err != nil {
		ws.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.ws = ws
	e.pc = pc
	e.channel = params.Channel
	e.cancel = cancel
	e.mu.Unlock()

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		if err := e.send(signalMessage{Type: "candidate", Candidate: &init}); err != nil {
			log.Debug().Err(err).Msg("failed to send ICE candidate")
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Debug().Str("state", s.String()).Str("channel", params.Channel).Msg("peer connection state")
		if s == webrtc.PeerConnectionStateFailed {
			e.emit(EngineEvent{Kind: EventError, Channel: params.Channel, Attempt: params.Attempt, Err: errors.New("media connection failed")})
		}
	})

	if params.Role == RoleBroadcaster {
		if err := e.publish(runCtx, pc); err != nil {
			e.Leave(ctx)
			return err
		}
	} else {
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
			if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				e.Leave(ctx)
				return fmt.Errorf("add %s transceiver: %w", kind, err)
			}
		}
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		e.Leave(ctx)
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		e.Leave(ctx)
		return fmt.Errorf("set local description: %w", err)
	}
	if err := e.send(signalMessage{Type: "offer", Channel: params.Channel, UID: params.LocalID, SDP: &offer}); err != nil {
		e.Leave(ctx)
		return fmt.Errorf("send offer: %w", err)
	}

	go e.readSignal(runCtx, ws, pc, params.Channel, params.Attempt)
	return nil
}

func (e *WebRTCEngine) dialSignal(ctx context.Context, params JoinParams) (*websocket.Conn, error) {
	u, err := url.Parse(e.config.SignalURL)
	if err != nil {
		return nil, fmt.Errorf("parse signal url: %w", err)
	}
	q := u.Query()
	q.Set("channel", params.Channel)
	q.Set("uid", strconv.FormatUint(uint64(params.LocalID), 10))
	q.Set("role", string(params.Role))
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+params.Token)
	header.Set("X-App-ID", params.AppID)

	ws, _, err := e.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial signaling: %w", err)
	}
	return ws, nil
}

func (e *WebRTCEngine) newPeerConnection(params JoinParams) (*webrtc.PeerConnection, error) {
	cfg := webrtc.Configuration{}
	if len(e.config.STUNURLs) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: e.config.STUNURLs}}
	}
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	return pc, nil
}

// publish adds the local video track and pumps camera samples into it
func (e *WebRTCEngine) publish(ctx context.Context, pc *webrtc.PeerConnection) error {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "auction")
	if err != nil {
		return fmt.Errorf("create video track: %w", err)
	}
	sender, err := pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("add video track: %w", err)
	}

	// RTCP must be read for interceptors to work
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	camera := e.config.Camera
	if camera == nil {
		return nil
	}
	go func() {
		for {
			sample, err := camera.NextSample(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn().Err(err).Msg("camera stopped")
				}
				return
			}
			if err := track.WriteSample(sample); err != nil {
				log.Debug().Err(err).Msg("failed to write video sample")
			}
		}
	}()
	return nil
}

func (e *WebRTCEngine) readSignal(ctx context.Context, ws *websocket.Conn, pc *webrtc.PeerConnection, channel string, attempt uint64) {
	for {
		var msg signalMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				e.emit(EngineEvent{Kind: EventError, Channel: channel, Attempt: attempt, Err: fmt.Errorf("signaling closed: %w", err)})
			}
			return
		}

		switch msg.Type {
		case "answer":
			if msg.SDP == nil {
				continue
			}
			if err := pc.SetRemoteDescription(*msg.SDP); err != nil {
				e.emit(EngineEvent{Kind: EventError, Channel: channel, Attempt: attempt, Err: fmt.Errorf("set remote description: %w", err)})
			}
		case "candidate":
			if msg.Candidate == nil {
				continue
			}
			if err := pc.AddICECandidate(*msg.Candidate); err != nil {
				log.Debug().Err(err).Msg("failed to add ICE candidate")
			}
		case "joined":
			e.emit(EngineEvent{Kind: EventJoinSuccess, Channel: channel, Attempt: attempt})
		case "user_joined":
			e.emit(EngineEvent{Kind: EventUserJoined, Channel: channel, Attempt: attempt, RemoteID: msg.UID})
		case "user_offline":
			e.emit(EngineEvent{Kind: EventUserOffline, Channel: channel, Attempt: attempt, RemoteID: msg.UID})
		case "error":
			e.emit(EngineEvent{Kind: EventError, Channel: channel, Attempt: attempt, Err: errors.New(msg.Message)})
		default:
			log.Debug().Str("type", msg.Type).Msg("ignoring signaling message")
		}
	}
}

// Leave closes the PeerConnection and signaling; the engine can join again
func (e *WebRTCEngine) Leave(ctx context.Context) error {
	e.mu.Lock()
	ws, pc, cancel, channel := e.ws, e.pc, e.cancel, e.channel
	e.ws, e.pc, e.cancel, e.channel = nil, nil, nil, ""
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ws != nil {
		e.writeMu.Lock()
		ws.WriteJSON(signalMessage{Type: "leave", Channel: channel})
		e.writeMu.Unlock()
		ws.Close()
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			return fmt.Errorf("close peer connection: %w", err)
		}
	}
	return nil
}

// SwitchCamera flips the capture device
func (e *WebRTCEngine) SwitchCamera() error {
	if e.config.Camera == nil {
		return fmt.Errorf("switch camera: %w", ErrUnavailable)
	}
	return e.config.Camera.Switch()
}

// Release leaves and closes the camera. A later Join reopens it.
func (e *WebRTCEngine) Release() error {
	err := e.Leave(context.Background())
	if e.config.Camera != nil {
		if cerr := e.config.Camera.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (e *WebRTCEngine) Events() <-chan EngineEvent { return e.events }

func (e *WebRTCEngine) send(msg signalMessage) error {
	e.mu.Lock()
	ws := e.ws
	e.mu.Unlock()
	if ws == nil {
		return ErrNotJoined
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return ws.WriteJSON(msg)
}

func (e *WebRTCEngine) emit(ev EngineEvent) {
	select {
	case e.events <- ev:
	default:
		log.Warn().Int("kind", int(ev.Kind)).Msg("media event buffer full, dropping event")
	}
}
