package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// LinkState is the lifecycle of one peer transport.
type LinkState int

const (
	LinkNew LinkState = iota
	LinkNegotiating
	LinkConnected
	LinkFailed
	LinkDisconnected
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkNew:
		return "new"
	case LinkNegotiating:
		return "negotiating"
	case LinkConnected:
		return "connected"
	case LinkFailed:
		return "failed"
	case LinkDisconnected:
		return "disconnected"
	case LinkClosed:
		return "closed"
	}
	return "unknown"
}

// MediaLink is one direct media transport toward a single remote session.
type MediaLink interface {
	// Start configures internal callbacks and binds the link lifetime to ctx.
	Start(ctx context.Context) error
	// Close stops all underlying media resources. Idempotent.
	Close()
	IsClosed() bool

	// CreateAndSetOffer builds the local offer (initiator path).
	CreateAndSetOffer() (*webrtc.SessionDescription, error)
	// ApplyOfferAndCreateAnswer handles the responder path in one step.
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	// ApplyAnswer completes the initiator path.
	ApplyAnswer(webrtc.SessionDescription) error

	// AddICECandidate applies a remote candidate; candidates arriving
	// before the remote description are buffered internally.
	AddICECandidate(webrtc.ICECandidateInit) error

	// AddLocalTrack attaches a local track; the returned sender is used
	// for later ReplaceTrack calls.
	AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)

	// OnICECandidate sets a callback for newly gathered local candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback invoked when a remote track arrives.
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	// OnStateChange reports LinkState transitions.
	OnStateChange(func(LinkState))
}

// RemoteMedia aggregates the inbound tracks of one link. Nil is a valid
// value everywhere it is read.
type RemoteMedia struct {
	StreamID string
	Video    *webrtc.TrackRemote
	Audio    *webrtc.TrackRemote
}

func (m *RemoteMedia) HasLiveVideo() bool {
	return m != nil && m.Video != nil
}

func (m *RemoteMedia) HasLiveAudio() bool {
	return m != nil && m.Audio != nil
}
