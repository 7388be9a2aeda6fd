package media

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Unavailable is the capability of a build or platform without video
type Unavailable struct{}

func (Unavailable) Available() bool { return false }
func (Unavailable) RequestPermissions(ctx context.Context) error { return ErrUnavailable }
func (Unavailable) Join(ctx context.Context, params JoinParams) error { return ErrUnavailable }
func (Unavailable) Leave(ctx context.Context) error { return nil }
func (Unavailable) SwitchCamera() error { return ErrUnavailable }
func (Unavailable) Release() error { return nil }
func (Unavailable) Events() <-chan EngineEvent { return nil }

// ProbeConfig selects the media capability at startup
type ProbeConfig struct {
	SignalURL string
	STUNURLs  []string
	Camera    Camera
}

// Probe resolves the media capability once. Without a signaling endpoint
// video is unavailable.
func Probe(cfg ProbeConfig) Engine {
	if cfg.SignalURL == "" {
		log.Info().Msg("media signaling not configured, video unavailable")
		return Unavailable{}
	}
	return NewWebRTCEngine(WebRTCConfig{
		SignalURL: cfg.SignalURL,
		STUNURLs:  cfg.STUNURLs,
		Camera:    cfg.Camera,
	})
}
