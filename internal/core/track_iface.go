package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// LocalTrack is one owned capture track (camera, microphone or screen).
type LocalTrack interface {
	Kind() webrtc.RTPCodecType
	// TrackLocal is what gets attached to peer links.
	TrackLocal() webrtc.TrackLocal
	// SetEnabled gates the track in place without releasing hardware.
	// Used for audio mute; video off releases the device instead.
	SetEnabled(bool)
	Enabled() bool
	// Close releases the underlying device. Idempotent.
	Close() error
	// OnEnded fires when the source stops on its own, e.g. the native
	// "stop sharing" control of a screen capture.
	OnEnded(func())
}

// VideoProfile carries the ideal capture constraints.
type VideoProfile struct {
	Width  int
	Height int
	Facing string // "user" or "environment"
}

// AudioProfile mirrors the processing constraints requested on capture.
type AudioProfile struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

type DeviceInfo struct {
	ID    string `json:"deviceId"`
	Label string `json:"label"`
	Kind  string `json:"kind"`
}

// TrackSource acquires capture tracks. Implemented by the mediadevices
// adapter for real hardware and by the synthetic source for headless runs.
type TrackSource interface {
	OpenCamera(ctx context.Context, p VideoProfile) (LocalTrack, error)
	OpenMicrophone(ctx context.Context, p AudioProfile) (LocalTrack, error)
	OpenScreen(ctx context.Context) (LocalTrack, error)
	Devices() []DeviceInfo
}
