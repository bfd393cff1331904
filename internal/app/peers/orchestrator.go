// Package peers owns exactly one media transport per remote roster
// member and drives offer/answer/candidate exchange through the
// signaling channel. All methods run on the session's serialized loop;
// transport callbacks are re-posted onto it.
package peers

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// LinkFactory builds a transport toward one remote session.
type LinkFactory func(sid domain.SessionID) (core.MediaLink, error)

// Entry is one peer transport with its roster identity and inbound
// media. The roster entry it mirrors is owned elsewhere; transport
// failure never removes roster state.
type Entry struct {
	SessionID domain.SessionID
	UserID    domain.UserID
	Name      string

	Link   core.MediaLink
	State  core.LinkState
	Remote *core.RemoteMedia

	audioSender *webrtc.RTPSender
	videoSender *webrtc.RTPSender
	graceTimer  *time.Timer
}

type Orchestrator struct {
	channel core.SignalChannel
	newLink LinkFactory

	// localTracks supplies what to attach to a fresh link.
	localTracks func() []webrtc.TrackLocal
	meetingID   func() domain.MeetingID
	// post serializes transport callbacks onto the session loop.
	post func(func())

	grace time.Duration
	ctx   context.Context

	links    map[domain.SessionID]*Entry
	onChange func()
}

type Options struct {
	Channel     core.SignalChannel
	NewLink     LinkFactory
	LocalTracks func() []webrtc.TrackLocal
	MeetingID   func() domain.MeetingID
	Post        func(func())
	Grace       time.Duration
}

func NewOrchestrator(ctx context.Context, opts Options) *Orchestrator {
	grace := opts.Grace
	if grace <= 0 {
		grace = 3 * time.Second
	}
	return &Orchestrator{
		channel:     opts.Channel,
		newLink:     opts.NewLink,
		localTracks: opts.LocalTracks,
		meetingID:   opts.MeetingID,
		post:        opts.Post,
		grace:       grace,
		ctx:         ctx,
		links:       make(map[domain.SessionID]*Entry),
	}
}

func (o *Orchestrator) OnChange(fn func()) { o.onChange = fn }

func (o *Orchestrator) changed() {
	if o.onChange != nil {
		o.onChange()
	}
}

// AnnounceReady broadcasts that local media is up. Every already-ready
// client then offers toward us; we never offer first as the newcomer,
// which is what keeps a pair glare-free.
func (o *Orchestrator) AnnounceReady() error {
	return o.channel.Emit(core.EvtWebRTCReady, core.ReadyPayload{MeetingID: o.meetingID()})
}

// HandlePeerReady creates the initiator-side transport. A session key
// that already has a transport is refused: the first link wins.
func (o *Orchestrator) HandlePeerReady(p core.PeerReadyPayload) {
	if _, ok := o.links[p.SessionID]; ok {
		log.Debug().Str("module", "peers").Str("sid", string(p.SessionID)).Msg("peer-ready for existing link ignored")
		return
	}

	entry, err := o.createEntry(p.SessionID, p.UserID, p.UserName)
	if err != nil {
		log.Error().Err(err).Str("module", "peers").Str("sid", string(p.SessionID)).Msg("create link")
		return
	}

	offer, err := entry.Link.CreateAndSetOffer()
	if err != nil {
		log.Error().Err(err).Str("module", "peers").Str("sid", string(p.SessionID)).Msg("create offer")
		o.removeLink(p.SessionID)
		return
	}

	if err := o.channel.Emit(core.EvtWebRTCOffer, core.OfferPayload{
		MeetingID:       o.meetingID(),
		TargetSessionID: p.SessionID,
		Offer:           *offer,
	}); err != nil {
		log.Error().Err(err).Str("module", "peers").Str("sid", string(p.SessionID)).Msg("emit offer")
		o.removeLink(p.SessionID)
	}
}

// HandleOffer is the responder path: reuse the transport if one exists
// for the sender, otherwise create it.
func (o *Orchestrator) HandleOffer(p core.OfferPayload) {
	entry, ok := o.links[p.From]
	if !ok {
		var err error
		entry, err = o.createEntry(p.From, p.FromUserID, p.FromUserName)
		if err != nil {
			log.Error().Err(err).Str("module", "peers").Str("sid", string(p.From)).Msg("create link for offer")
			return
		}
	}

	answer, err := entry.Link.ApplyOfferAndCreateAnswer(p.Offer)
	if err != nil {
		log.Error().Err(err).Str("module", "peers").Str("sid", string(p.From)).Msg("apply offer")
		o.removeLink(p.From)
		return
	}

	if err := o.channel.Emit(core.EvtWebRTCAnswer, core.AnswerPayload{
		MeetingID:       o.meetingID(),
		TargetSessionID: p.From,
		Answer:          *answer,
	}); err != nil {
		log.Error().Err(err).Str("module", "peers").Str("sid", string(p.From)).Msg("emit answer")
		o.removeLink(p.From)
	}
}

// HandleAnswer for a since-removed transport is a no-op, not an error;
// a participant-left may interleave between offer and answer.
func (o *Orchestrator) HandleAnswer(p core.AnswerPayload) {
	entry, ok := o.links[p.From]
	if !ok {
		log.Debug().Str("module", "peers").Str("sid", string(p.From)).Msg("answer for unknown link dropped")
		return
	}
	if err := entry.Link.ApplyAnswer(p.Answer); err != nil {
		log.Error().Err(err).Str("module", "peers").Str("sid", string(p.From)).Msg("apply answer")
		o.removeLink(p.From)
	}
}

// HandleCandidate forwards to the link, which buffers anything that
// arrives ahead of the remote description.
func (o *Orchestrator) HandleCandidate(p core.CandidatePayload) {
	entry, ok := o.links[p.From]
	if !ok {
		log.Debug().Str("module", "peers").Str("sid", string(p.From)).Msg("candidate for unknown link dropped")
		return
	}
	if err := entry.Link.AddICECandidate(p.Candidate); err != nil {
		log.Error().Err(err).Str("module", "peers").Str("sid", string(p.From)).Msg("add candidate")
	}
}

func (o *Orchestrator) createEntry(sid domain.SessionID, uid domain.UserID, name string) (*Entry, error) {
	link, err := o.newLink(sid)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		SessionID: sid,
		UserID:    uid,
		Name:      name,
		Link:      link,
		State:     core.LinkNew,
	}

	for _, track := range o.localTracks() {
		sender, err := link.AddLocalTrack(track)
		if err != nil {
			link.Close()
			return nil, err
		}
		switch track.Kind() {
		case webrtc.RTPCodecTypeAudio:
			entry.audioSender = sender
		case webrtc.RTPCodecTypeVideo:
			entry.videoSender = sender
		}
	}

	link.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		o.post(func() { o.sendCandidate(sid, ci) })
	})
	link.OnTrack(func(_ context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		o.post(func() { o.bindRemoteTrack(sid, track) })
	})
	link.OnStateChange(func(s core.LinkState) {
		o.post(func() { o.handleLinkState(sid, s) })
	})

	if err := link.Start(o.ctx); err != nil {
		link.Close()
		return nil, err
	}

	entry.State = core.LinkNegotiating
	o.links[sid] = entry
	log.Info().Str("module", "peers").Str("sid", string(sid)).Str("name", name).Msg("link created")
	return entry, nil
}

func (o *Orchestrator) sendCandidate(sid domain.SessionID, ci webrtc.ICECandidateInit) {
	if _, ok := o.links[sid]; !ok {
		return
	}
	if err := o.channel.Emit(core.EvtWebRTCCandidate, core.CandidatePayload{
		MeetingID:       o.meetingID(),
		TargetSessionID: sid,
		Candidate:       ci,
	}); err != nil {
		log.Warn().Err(err).Str("module", "peers").Str("sid", string(sid)).Msg("emit candidate")
	}
}

func (o *Orchestrator) bindRemoteTrack(sid domain.SessionID, track *webrtc.TrackRemote) {
	entry, ok := o.links[sid]
	if !ok {
		return
	}
	if entry.Remote == nil {
		entry.Remote = &core.RemoteMedia{StreamID: track.StreamID()}
	}
	switch track.Kind() {
	case webrtc.RTPCodecTypeVideo:
		entry.Remote.Video = track
	case webrtc.RTPCodecTypeAudio:
		entry.Remote.Audio = track
	}
	o.changed()
}
