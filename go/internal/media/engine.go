package media

import (
	"context"
	"errors"
	"math/rand"

	"github.com/mcdev12/liveauction/go/internal/auction"
)

var (
	ErrUnavailable      = errors.New("video is not available in this build")
	ErrPermissionDenied = errors.New("camera and microphone permission denied")
	ErrMissingAppID     = errors.New("media app id is not configured")
	ErrNotJoined        = errors.New("media channel not joined")
)

// Role decides whether the local participant publishes or subscribes.
// The values are what the token service expects.
type Role string

const (
	RoleBroadcaster Role = "seller"
	RoleViewer      Role = "buyer"
)

// RoleFor returns the broadcaster role for the auction's seller, viewer otherwise
func RoleFor(snap *auction.Snapshot, userID string) Role {
	if snap != nil && userID != "" && snap.SellerID == userID {
		return RoleBroadcaster
	}
	return RoleViewer
}

// ChannelFor derives the media channel of an auction
func ChannelFor(auctionID string) string {
	return "auction-" + auctionID
}

// NewLocalID picks the numeric media id used for the process lifetime
func NewLocalID() uint32 {
	return uint32(rand.Intn(100000)) + 1
}

// JoinParams are the inputs of one join attempt
type JoinParams struct {
	Channel string
	LocalID uint32
	Role    Role
	Token   string
	AppID   string
	// Attempt identifies this join; engines echo it on the events it causes
	Attempt uint64
}

// EngineEventKind classifies membership and error callbacks
type EngineEventKind int

const (
	EventJoinSuccess EngineEventKind = iota
	EventUserJoined
	EventUserOffline
	EventError
)

// EngineEvent is a callback from the media capability
type EngineEvent struct {
	Kind     EngineEventKind
	Channel  string
	RemoteID uint32
	Err      error
	// Attempt is the JoinParams.Attempt the event belongs to, zero if unknown
	Attempt uint64
}

// Engine is the media capability. Leave ends the current channel;
// Release also frees devices until the next join.
type Engine interface {
	Available() bool
	RequestPermissions(ctx context.Context) error
	Join(ctx context.Context, params JoinParams) error
	Leave(ctx context.Context) error
	SwitchCamera() error
	Release() error
	Events() <-chan EngineEvent
}

// TokenSource fetches a join token scoped to channel, local id and role
type TokenSource interface {
	Token(ctx context.Context, channel string, uid uint32, role string) (string, error)
}

// Message renders a media error for display
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Camera/microphone permission denied"
	case errors.Is(err, ErrMissingAppID):
		return "Video is not configured (missing app id)"
	case errors.Is(err, ErrUnavailable):
		return "Video is not available on this device"
	default:
		return err.Error()
	}
}
