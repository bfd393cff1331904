// Package rtc adapts pion PeerConnections to the core.MediaLink
// contract used by the peer orchestrator.
package rtc

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

type Link struct {
	pc     *webrtc.PeerConnection
	sid    domain.SessionID
	cancel context.CancelFunc

	mu      sync.Mutex
	pending []webrtc.ICECandidateInit
	closed  bool

	onICE   func(webrtc.ICECandidateInit)
	onTrack func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	onState func(core.LinkState)
}

var _ core.MediaLink = (*Link)(nil)

func DefaultConfig(stunServers []string) webrtc.Configuration {
	if len(stunServers) == 0 {
		stunServers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunServers},
		},
	}
}

func NewLink(cfg webrtc.Configuration, sid domain.SessionID) (*Link, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &Link{pc: pc, sid: sid}, nil
}

func (l *Link) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	l.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("sid", string(l.sid)).Str("ice_state", s.String()).Msg("ICE state")
	})

	l.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("sid", string(l.sid)).Str("peer_state", s.String()).Msg("peer state")
		if l.onState == nil {
			return
		}
		switch s {
		case webrtc.PeerConnectionStateConnecting:
			l.onState(core.LinkNegotiating)
		case webrtc.PeerConnectionStateConnected:
			l.onState(core.LinkConnected)
		case webrtc.PeerConnectionStateFailed:
			l.onState(core.LinkFailed)
		case webrtc.PeerConnectionStateDisconnected:
			l.onState(core.LinkDisconnected)
		case webrtc.PeerConnectionStateClosed:
			l.onState(core.LinkClosed)
		}
	})

	l.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && l.onICE != nil {
			l.onICE(cand.ToJSON())
		}
	})

	l.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("sid", string(l.sid)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("remote track")
		if l.onTrack != nil {
			l.onTrack(ctx, track, receiver)
		}
	})

	return nil
}

func (l *Link) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	return l.pc.LocalDescription(), nil
}

func (l *Link) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	l.flushPending()

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	return l.pc.LocalDescription(), nil
}

func (l *Link) ApplyAnswer(answer webrtc.SessionDescription) error {
	if err := l.pc.SetRemoteDescription(answer); err != nil {
		return err
	}
	l.flushPending()
	return nil
}

// AddICECandidate buffers candidates that race ahead of the remote
// description and applies them once it lands.
func (l *Link) AddICECandidate(ci webrtc.ICECandidateInit) error {
	l.mu.Lock()
	if l.pc.RemoteDescription() == nil {
		l.pending = append(l.pending, ci)
		l.mu.Unlock()
		log.Debug().Str("module", "rtc").Str("sid", string(l.sid)).Msg("candidate buffered before remote description")
		return nil
	}
	l.mu.Unlock()
	return l.pc.AddICECandidate(ci)
}

func (l *Link) flushPending() {
	l.mu.Lock()
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, ci := range pending {
		if err := l.pc.AddICECandidate(ci); err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("sid", string(l.sid)).Msg("apply buffered candidate")
		}
	}
}

func (l *Link) AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	return l.pc.AddTrack(track)
}

func (l *Link) OnICECandidate(fn func(webrtc.ICECandidateInit)) { l.onICE = fn }

func (l *Link) OnTrack(fn func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	l.onTrack = fn
}

func (l *Link) OnStateChange(fn func(core.LinkState)) { l.onState = fn }

func (l *Link) IsClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Link) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	if l.cancel != nil {
		l.cancel()
	}
	if err := l.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("sid", string(l.sid)).Msg("close error")
	} else {
		log.Info().Str("module", "rtc").Str("sid", string(l.sid)).Msg("closed")
	}
}
