package peers

import (
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// handleLinkState runs the per-transport machine. Failed and
// Disconnected get a grace period to ride out transient ICE trouble;
// only after it elapses with no recovery is the transport removed.
// The matching roster entry stays: a present-but-reconnecting
// participant legitimately shows a tile with no video.
func (o *Orchestrator) handleLinkState(sid domain.SessionID, s core.LinkState) {
	entry, ok := o.links[sid]
	if !ok {
		return
	}
	entry.State = s
	log.Info().Str("module", "peers").Str("sid", string(sid)).Str("state", s.String()).Msg("link state")

	switch s {
	case core.LinkConnected:
		if entry.graceTimer != nil {
			entry.graceTimer.Stop()
			entry.graceTimer = nil
		}
	case core.LinkFailed, core.LinkDisconnected:
		if entry.graceTimer != nil {
			break
		}
		entry.graceTimer = time.AfterFunc(o.grace, func() {
			o.post(func() { o.reapIfStillDown(sid) })
		})
	case core.LinkClosed:
		// Close initiated elsewhere; drop table state if still present.
		o.removeLink(sid)
	}
	o.changed()
}

func (o *Orchestrator) reapIfStillDown(sid domain.SessionID) {
	entry, ok := o.links[sid]
	if !ok {
		return
	}
	if entry.State != core.LinkFailed && entry.State != core.LinkDisconnected {
		return
	}
	log.Info().Str("module", "peers").Str("sid", string(sid)).Msg("grace period elapsed, reaping link")
	o.removeLink(sid)
}

// HandleParticipantGone tears down the transport for an explicit
// removal event. This is the only path where roster drives transport.
func (o *Orchestrator) HandleParticipantGone(sid domain.SessionID) {
	o.removeLink(sid)
}

func (o *Orchestrator) removeLink(sid domain.SessionID) {
	entry, ok := o.links[sid]
	if !ok {
		return
	}
	delete(o.links, sid)
	if entry.graceTimer != nil {
		entry.graceTimer.Stop()
		entry.graceTimer = nil
	}
	entry.Link.Close()
	log.Info().Str("module", "peers").Str("sid", string(sid)).Msg("link removed")
	o.changed()
}

// ReplaceVideoTrack fans the new outgoing video track out to every
// link (nil stops sending). Used for camera toggle and screen share.
func (o *Orchestrator) ReplaceVideoTrack(track webrtc.TrackLocal) {
	for sid, entry := range o.links {
		if entry.videoSender == nil {
			if track == nil {
				continue
			}
			sender, err := entry.Link.AddLocalTrack(track)
			if err != nil {
				log.Error().Err(err).Str("module", "peers").Str("sid", string(sid)).Msg("add video track")
				continue
			}
			entry.videoSender = sender
			continue
		}
		if err := entry.videoSender.ReplaceTrack(track); err != nil {
			log.Error().Err(err).Str("module", "peers").Str("sid", string(sid)).Msg("replace video track")
		}
	}
}

// CloseAll is the unconditional teardown used on every exit path.
func (o *Orchestrator) CloseAll() {
	for sid, entry := range o.links {
		if entry.graceTimer != nil {
			entry.graceTimer.Stop()
		}
		entry.Link.Close()
		delete(o.links, sid)
	}
	log.Info().Str("module", "peers").Msg("all links closed")
	o.changed()
}

// Remote returns the inbound media for one session key, nil when the
// transport is absent or has produced nothing yet.
func (o *Orchestrator) Remote(sid domain.SessionID) *core.RemoteMedia {
	if entry, ok := o.links[sid]; ok {
		return entry.Remote
	}
	return nil
}

func (o *Orchestrator) State(sid domain.SessionID) (core.LinkState, bool) {
	if entry, ok := o.links[sid]; ok {
		return entry.State, true
	}
	return core.LinkClosed, false
}

func (o *Orchestrator) Count() int { return len(o.links) }

// Sessions lists the session keys with live transports.
func (o *Orchestrator) Sessions() []domain.SessionID {
	out := make([]domain.SessionID, 0, len(o.links))
	for sid := range o.links {
		out = append(out, sid)
	}
	return out
}
