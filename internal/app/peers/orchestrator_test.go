package peers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

type emitted struct {
	event   string
	payload any
}

type fakeChannel struct {
	emits   []emitted
	emitErr error
}

func (f *fakeChannel) Open(ctx context.Context) error { return nil }
func (f *fakeChannel) Close()                         {}
func (f *fakeChannel) Connected() bool                { return true }

func (f *fakeChannel) Emit(event string, payload any) error {
	if f.emitErr != nil {
		return f.emitErr
	}
	f.emits = append(f.emits, emitted{event: event, payload: payload})
	return nil
}

func (f *fakeChannel) Subscribe(event, key string, h core.Handler) {}
func (f *fakeChannel) Unsubscribe(event, key string)               {}
func (f *fakeChannel) OnStatus(key string, fn func(bool))          {}

var _ core.SignalChannel = (*fakeChannel)(nil)

// fakeLink records the negotiation calls made against it.
type fakeLink struct {
	started    bool
	closed     bool
	offers     int
	answers    int
	applied    int
	candidates []webrtc.ICECandidateInit
	added      []webrtc.TrackLocal

	offerErr  error
	answerErr error
	applyErr  error

	onCandidate func(webrtc.ICECandidateInit)
	onState     func(core.LinkState)
}

func (l *fakeLink) Start(ctx context.Context) error { l.started = true; return nil }
func (l *fakeLink) Close()                          { l.closed = true }
func (l *fakeLink) IsClosed() bool                  { return l.closed }

func (l *fakeLink) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	if l.offerErr != nil {
		return nil, l.offerErr
	}
	l.offers++
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}, nil
}

func (l *fakeLink) ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if l.answerErr != nil {
		return nil, l.answerErr
	}
	l.answers++
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}, nil
}

func (l *fakeLink) ApplyAnswer(webrtc.SessionDescription) error {
	if l.applyErr != nil {
		return l.applyErr
	}
	l.applied++
	return nil
}

func (l *fakeLink) AddICECandidate(ci webrtc.ICECandidateInit) error {
	l.candidates = append(l.candidates, ci)
	return nil
}

func (l *fakeLink) AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	l.added = append(l.added, track)
	return nil, nil
}

func (l *fakeLink) OnICECandidate(fn func(webrtc.ICECandidateInit)) { l.onCandidate = fn }
func (l *fakeLink) OnTrack(func(context.Context, *webrtc.TrackRemote, *webrtc.RTPReceiver)) {
}
func (l *fakeLink) OnStateChange(fn func(core.LinkState)) { l.onState = fn }

var _ core.MediaLink = (*fakeLink)(nil)

type harness struct {
	orch  *Orchestrator
	ch    *fakeChannel
	links map[domain.SessionID]*fakeLink
	queue chan func()
}

// drain runs everything re-posted onto the loop, including work posted
// by the work it runs.
func (h *harness) drain() {
	for {
		select {
		case fn := <-h.queue:
			fn()
		default:
			return
		}
	}
}

func newHarness(t *testing.T, grace time.Duration) *harness {
	t.Helper()
	h := &harness{
		ch:    &fakeChannel{},
		links: make(map[domain.SessionID]*fakeLink),
		queue: make(chan func(), 64),
	}
	h.orch = NewOrchestrator(context.Background(), Options{
		Channel: h.ch,
		NewLink: func(sid domain.SessionID) (core.MediaLink, error) {
			l := &fakeLink{}
			h.links[sid] = l
			return l, nil
		},
		LocalTracks: func() []webrtc.TrackLocal { return nil },
		MeetingID:   func() domain.MeetingID { return "m1" },
		Post:        func(fn func()) { h.queue <- fn },
		Grace:       grace,
	})
	return h
}

func TestAnnounceReady(t *testing.T) {
	h := newHarness(t, 0)
	require.NoError(t, h.orch.AnnounceReady())
	require.Len(t, h.ch.emits, 1)
	assert.Equal(t, core.EvtWebRTCReady, h.ch.emits[0].event)
	assert.Equal(t, core.ReadyPayload{MeetingID: "m1"}, h.ch.emits[0].payload)
}

func TestPeerReadyFirstLinkWins(t *testing.T) {
	h := newHarness(t, 0)

	h.orch.HandlePeerReady(core.PeerReadyPayload{SessionID: "s1", UserID: "u1", UserName: "Bob"})
	require.Equal(t, 1, h.orch.Count())
	require.Len(t, h.ch.emits, 1)
	assert.Equal(t, core.EvtWebRTCOffer, h.ch.emits[0].event)

	offer := h.ch.emits[0].payload.(core.OfferPayload)
	assert.Equal(t, domain.SessionID("s1"), offer.TargetSessionID)
	assert.Equal(t, domain.MeetingID("m1"), offer.MeetingID)

	// A duplicate ready for the same session never renegotiates.
	h.orch.HandlePeerReady(core.PeerReadyPayload{SessionID: "s1"})
	assert.Equal(t, 1, h.orch.Count())
	assert.Len(t, h.ch.emits, 1)
	assert.Equal(t, 1, h.links["s1"].offers)
}

func TestPeerReadyOfferFailureRollsBack(t *testing.T) {
	h := newHarness(t, 0)
	boom := errors.New("no codecs")
	h.orch = NewOrchestrator(context.Background(), Options{
		Channel: h.ch,
		NewLink: func(sid domain.SessionID) (core.MediaLink, error) {
			l := &fakeLink{offerErr: boom}
			h.links[sid] = l
			return l, nil
		},
		LocalTracks: func() []webrtc.TrackLocal { return nil },
		MeetingID:   func() domain.MeetingID { return "m1" },
		Post:        func(fn func()) { h.queue <- fn },
	})

	h.orch.HandlePeerReady(core.PeerReadyPayload{SessionID: "s1"})
	assert.Equal(t, 0, h.orch.Count())
	assert.True(t, h.links["s1"].closed)
	assert.Empty(t, h.ch.emits)
}

func TestOfferCreatesResponderLink(t *testing.T) {
	h := newHarness(t, 0)

	h.orch.HandleOffer(core.OfferPayload{
		MeetingID:    "m1",
		From:         "s1",
		FromUserID:   "u1",
		FromUserName: "Bob",
		Offer:        webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
	})

	require.Equal(t, 1, h.orch.Count())
	require.True(t, h.links["s1"].started)
	assert.Equal(t, 1, h.links["s1"].answers)

	require.Len(t, h.ch.emits, 1)
	assert.Equal(t, core.EvtWebRTCAnswer, h.ch.emits[0].event)
	answer := h.ch.emits[0].payload.(core.AnswerPayload)
	assert.Equal(t, domain.SessionID("s1"), answer.TargetSessionID)
}

func TestAnswerForUnknownLinkIsNoOp(t *testing.T) {
	h := newHarness(t, 0)
	h.orch.HandleAnswer(core.AnswerPayload{From: "ghost"})
	assert.Equal(t, 0, h.orch.Count())
	assert.Empty(t, h.ch.emits)
}

func TestAnswerCompletesInitiatorLink(t *testing.T) {
	h := newHarness(t, 0)
	h.orch.HandlePeerReady(core.PeerReadyPayload{SessionID: "s1"})

	h.orch.HandleAnswer(core.AnswerPayload{
		From:   "s1",
		Answer: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"},
	})
	assert.Equal(t, 1, h.links["s1"].applied)
	assert.Equal(t, 1, h.orch.Count())
}

func TestCandidateForUnknownLinkDropped(t *testing.T) {
	h := newHarness(t, 0)
	h.orch.HandleCandidate(core.CandidatePayload{From: "ghost"})
	assert.Empty(t, h.links)
}

func TestCandidateForwardedToLink(t *testing.T) {
	h := newHarness(t, 0)
	h.orch.HandlePeerReady(core.PeerReadyPayload{SessionID: "s1"})

	cand := "candidate:1 1 udp 2122260223 192.0.2.1 54400 typ host"
	h.orch.HandleCandidate(core.CandidatePayload{
		From:      "s1",
		Candidate: webrtc.ICECandidateInit{Candidate: cand},
	})
	require.Len(t, h.links["s1"].candidates, 1)
	assert.Equal(t, cand, h.links["s1"].candidates[0].Candidate)
}

func TestLocalCandidateGoesOutTargeted(t *testing.T) {
	h := newHarness(t, 0)
	h.orch.HandlePeerReady(core.PeerReadyPayload{SessionID: "s1"})
	h.ch.emits = nil

	h.links["s1"].onCandidate(webrtc.ICECandidateInit{Candidate: "candidate:host"})
	h.drain()

	require.Len(t, h.ch.emits, 1)
	assert.Equal(t, core.EvtWebRTCCandidate, h.ch.emits[0].event)
	out := h.ch.emits[0].payload.(core.CandidatePayload)
	assert.Equal(t, domain.SessionID("s1"), out.TargetSessionID)
}

func TestParticipantGoneRemovesLink(t *testing.T) {
	h := newHarness(t, 0)
	h.orch.HandlePeerReady(core.PeerReadyPayload{SessionID: "s1"})

	h.orch.HandleParticipantGone("s1")
	assert.Equal(t, 0, h.orch.Count())
	assert.True(t, h.links["s1"].closed)

	// Gone for a session with no transport is a no-op.
	h.orch.HandleParticipantGone("s1")
}
