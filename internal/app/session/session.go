// Package session owns one meeting attempt end to end: the signaling
// channel, local media, the roster, the peer transports and the view.
// Every input, whether a signal event, a transport callback or a
// control command, is funneled through one serialized queue, so
// ordering is deterministic inside the client even though arrival is
// concurrent.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/app/peers"
	"github.com/dkeye/Meet/internal/app/roster"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/media"
)

const subKey = "session"

var ErrStopped = errors.New("session stopped")

const maxNotices = 16

type Session struct {
	channel core.SignalChannel
	media   *media.Manager
	roster  *roster.Coordinator
	peers   *peers.Orchestrator
	self    domain.Identity

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan func()
	done   chan struct{}

	wantVideo bool
	wantAudio bool
	announced bool
	connected bool
	notices   []string
}

type Options struct {
	Channel  core.SignalChannel
	Media    *media.Manager
	Identity domain.Identity
	NewLink  peers.LinkFactory
	Grace    time.Duration
}

func New(ctx context.Context, opts Options) *Session {
	ctx, cancel := context.WithCancel(ctx)

	s := &Session{
		channel: opts.Channel,
		media:   opts.Media,
		self:    opts.Identity,
		ctx:     ctx,
		cancel:  cancel,
		queue:   make(chan func(), 256),
		done:    make(chan struct{}),
	}

	s.roster = roster.NewCoordinator(opts.Channel, opts.Identity)
	s.peers = peers.NewOrchestrator(ctx, peers.Options{
		Channel:     opts.Channel,
		NewLink:     opts.NewLink,
		LocalTracks: s.media.Tracks,
		MeetingID:   s.roster.MeetingID,
		Post:        s.post,
		Grace:       opts.Grace,
	})

	s.roster.OnEnded(s.handleMeetingEnded)
	s.roster.OnNotice(s.addNotice)
	s.media.OnUpdate(func(c media.Change) {
		s.post(func() { s.handleMediaChange(c) })
	})
	s.channel.OnStatus(subKey, func(up bool) {
		s.post(func() { s.handleStatus(up) })
	})

	s.subscribeAll()
	go s.run()
	return s
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case fn := <-s.queue:
			fn()
		}
	}
}

// post enqueues work onto the serialized loop; drops after shutdown.
func (s *Session) post(fn func()) {
	select {
	case s.queue <- fn:
	case <-s.ctx.Done():
	}
}

// call runs fn on the loop and waits, for synchronous reads from the
// control API.
func (s *Session) call(fn func()) error {
	doneCh := make(chan struct{})
	s.post(func() {
		fn()
		close(doneCh)
	})
	select {
	case <-doneCh:
		return nil
	case <-s.ctx.Done():
		return ErrStopped
	}
}

// subscribeAll wires every catalogue event into the queue. Keys make
// re-subscription idempotent, so running this again is harmless.
func (s *Session) subscribeAll() {
	on := func(event string, fn func(json.RawMessage)) {
		s.channel.Subscribe(event, subKey, func(data json.RawMessage) {
			s.post(func() { fn(data) })
		})
	}

	on(core.EvtJoinedMeeting, decodeInto(s.roster.HandleJoined, s.maybeAnnounce))
	on(core.EvtCurrentParticipants, decodeInto(s.roster.HandleSnapshot, nil))
	on(core.EvtParticipantJoined, decodeInto(s.roster.HandleParticipantJoined, nil))
	on(core.EvtParticipantLeft, decodeInto(s.handleParticipantGone, nil))
	on(core.EvtParticipantDisconnected, decodeInto(s.handleParticipantGone, nil))
	on(core.EvtStatusUpdated, decodeInto(s.roster.HandleStatusUpdated, nil))
	on(core.EvtNewMessage, decodeInto(s.roster.HandleNewMessage, nil))
	on(core.EvtMeetingEnded, decodeInto(s.roster.HandleMeetingEnded, nil))
	on(core.EvtMeetingError, decodeInto(s.roster.HandleNotice, nil))
	on(core.EvtChatError, decodeInto(s.roster.HandleNotice, nil))
	on(core.EvtPeerReady, decodeInto(s.handlePeerReady, nil))
	on(core.EvtWebRTCOffer, decodeInto(s.handleOffer, nil))
	on(core.EvtWebRTCAnswer, decodeInto(s.handleAnswer, nil))
	on(core.EvtWebRTCCandidate, decodeInto(s.handleCandidate, nil))
}

// decodeInto unmarshals the envelope data and hands it to the typed
// handler; after runs afterwards when provided.
func decodeInto[T any](handle func(T), after func()) func(json.RawMessage) {
	return func(data json.RawMessage) {
		var payload T
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Error().Err(err).Str("module", "session").Msg("bad event payload")
			return
		}
		handle(payload)
		if after != nil {
			after()
		}
	}
}

// Peer events pass through the session so they are ignored once the
// meeting is over; no further signaling is processed after Left.
func (s *Session) inMeeting() bool {
	st := s.roster.State()
	return st == roster.Joining || st == roster.Joined
}

func (s *Session) handlePeerReady(p core.PeerReadyPayload) {
	if !s.inMeeting() {
		return
	}
	s.peers.HandlePeerReady(p)
}

func (s *Session) handleOffer(p core.OfferPayload) {
	if !s.inMeeting() {
		return
	}
	s.peers.HandleOffer(p)
}

func (s *Session) handleAnswer(p core.AnswerPayload) {
	if !s.inMeeting() {
		return
	}
	s.peers.HandleAnswer(p)
}

func (s *Session) handleCandidate(p core.CandidatePayload) {
	if !s.inMeeting() {
		return
	}
	s.peers.HandleCandidate(p)
}

func (s *Session) handleParticipantGone(p core.ParticipantGonePayload) {
	s.roster.HandleParticipantGone(p)
	s.peers.HandleParticipantGone(p.SessionID)
}

func (s *Session) handleStatus(up bool) {
	s.connected = up
	if up {
		// Fresh snapshot comes back with the rejoin ack.
		s.announced = false
		if err := s.roster.Rejoin(); err != nil {
			log.Warn().Err(err).Str("module", "session").Msg("rejoin emit")
		}
		return
	}
	if t, ok := s.channel.(interface{ Terminal() bool }); ok && t.Terminal() {
		s.addNotice("signaling connection lost; reconnect required")
	}
}

// maybeAnnounce broadcasts readiness exactly once per joined epoch,
// and only when both the join ack and local media are in.
func (s *Session) maybeAnnounce() {
	if s.announced || s.roster.State() != roster.Joined || !s.media.Started() {
		return
	}
	if err := s.peers.AnnounceReady(); err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("announce ready")
		return
	}
	s.announced = true
	s.publishStatus()
}

func (s *Session) publishStatus() {
	camera := s.media.VideoEnabled()
	mic := s.media.AudioEnabled()
	if err := s.roster.PublishStatus(domain.StatusPatch{Camera: &camera, Microphone: &mic}); err != nil {
		log.Debug().Err(err).Str("module", "session").Msg("publish status")
	}
}

func (s *Session) handleMediaChange(c media.Change) {
	switch c {
	case media.ChangeStarted:
		s.maybeAnnounce()
	case media.ChangeVideo, media.ChangeScreen:
		s.peers.ReplaceVideoTrack(s.media.VideoTrack())
		s.publishStatus()
	case media.ChangeAudio:
		s.publishStatus()
	case media.ChangeStopped:
	}
}

func (s *Session) handleMeetingEnded(p core.MeetingEndedPayload) {
	reason := p.Reason
	if reason == "" {
		reason = "ended by " + p.EndedByName
	}
	s.addNotice("meeting ended: " + reason)
	s.teardown()
}

// teardown is shared by every exit path and is unconditional.
func (s *Session) teardown() {
	s.peers.CloseAll()
	s.media.Stop()
	s.announced = false
}

func (s *Session) addNotice(msg string) {
	s.notices = append(s.notices, msg)
	if len(s.notices) > maxNotices {
		s.notices = s.notices[len(s.notices)-maxNotices:]
	}
}
