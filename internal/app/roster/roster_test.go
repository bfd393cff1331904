package roster

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

type emitted struct {
	event   string
	payload any
}

// fakeChannel records emits and lets tests flip connectivity.
type fakeChannel struct {
	connected bool
	emits     []emitted
	emitErr   error
}

func newFakeChannel() *fakeChannel { return &fakeChannel{connected: true} }

func (f *fakeChannel) Open(ctx context.Context) error { return nil }
func (f *fakeChannel) Close()                         {}
func (f *fakeChannel) Connected() bool                { return f.connected }

func (f *fakeChannel) Emit(event string, payload any) error {
	if f.emitErr != nil {
		return f.emitErr
	}
	if !f.connected {
		return errors.New("not connected")
	}
	f.emits = append(f.emits, emitted{event: event, payload: payload})
	return nil
}

func (f *fakeChannel) Subscribe(event, key string, h core.Handler) {}
func (f *fakeChannel) Unsubscribe(event, key string)               {}
func (f *fakeChannel) OnStatus(key string, fn func(bool))          {}

var _ core.SignalChannel = (*fakeChannel)(nil)

func testIdentity() domain.Identity {
	return domain.Identity{UserID: "u-self", Name: "Alice", Token: "t"}
}

func joinedCoordinator(t *testing.T, ch *fakeChannel) *Coordinator {
	t.Helper()
	c := NewCoordinator(ch, testIdentity())
	require.NoError(t, c.Join("m1"))
	c.HandleJoined(core.JoinedMeetingPayload{MeetingID: "m1", Success: true})
	require.Equal(t, Joined, c.State())
	return c
}

func boolPtr(v bool) *bool { return &v }

func TestJoinStateMachine(t *testing.T) {
	ch := newFakeChannel()
	c := NewCoordinator(ch, testIdentity())

	require.Equal(t, NotJoined, c.State())
	require.NoError(t, c.Join("m1"))
	assert.Equal(t, Joining, c.State())
	assert.Len(t, ch.emits, 1)

	// Retrying the same join before the ack does not emit again.
	require.NoError(t, c.Join("m1"))
	assert.Len(t, ch.emits, 1)

	// An ack for a different meeting is ignored.
	c.HandleJoined(core.JoinedMeetingPayload{MeetingID: "other", Success: true})
	assert.Equal(t, Joining, c.State())

	// A failed ack is ignored too.
	c.HandleJoined(core.JoinedMeetingPayload{MeetingID: "m1", Success: false})
	assert.Equal(t, Joining, c.State())

	c.HandleJoined(core.JoinedMeetingPayload{MeetingID: "m1", Success: true})
	assert.Equal(t, Joined, c.State())

	// A late duplicate ack after Joined changes nothing.
	c.HandleJoined(core.JoinedMeetingPayload{MeetingID: "m1", Success: true})
	assert.Equal(t, Joined, c.State())
}

func TestSnapshotReplacesWholesale(t *testing.T) {
	ch := newFakeChannel()
	c := joinedCoordinator(t, ch)

	c.HandleParticipantJoined(domain.Participant{SessionID: "s-old", Name: "Old"})
	require.Equal(t, 1, c.Count())

	c.HandleSnapshot(core.CurrentParticipantsPayload{Participants: []domain.Participant{
		{SessionID: "s1", Name: "Bob"},
		{SessionID: "s2", Name: "Carol"},
	}})

	got := c.Participants()
	require.Len(t, got, 2)
	assert.Equal(t, domain.SessionID("s1"), got[0].SessionID)
	assert.Equal(t, domain.SessionID("s2"), got[1].SessionID)
	_, ok := c.Lookup("s-old")
	assert.False(t, ok, "snapshot must drop entries it does not contain")
}

func TestParticipantJoinedIsIdempotent(t *testing.T) {
	ch := newFakeChannel()
	c := joinedCoordinator(t, ch)

	p := domain.Participant{SessionID: "s1", Name: "Bob", Camera: boolPtr(true)}
	c.HandleParticipantJoined(p)
	c.HandleParticipantJoined(domain.Participant{SessionID: "s1", Name: "Bob-dup"})

	require.Equal(t, 1, c.Count())
	got, ok := c.Lookup("s1")
	require.True(t, ok)
	assert.Equal(t, "Bob", got.Name, "duplicate add must not overwrite the first entry")
}

func TestParticipantGoneIsIdempotent(t *testing.T) {
	ch := newFakeChannel()
	c := joinedCoordinator(t, ch)

	c.HandleParticipantJoined(domain.Participant{SessionID: "s1", Name: "Bob"})
	c.HandleParticipantGone(core.ParticipantGonePayload{SessionID: "s1"})
	assert.Equal(t, 0, c.Count())

	// Second removal for the same key is a no-op.
	c.HandleParticipantGone(core.ParticipantGonePayload{SessionID: "s1"})
	assert.Equal(t, 0, c.Count())

	// Removal of an unknown key is a no-op too.
	c.HandleParticipantGone(core.ParticipantGonePayload{SessionID: "ghost"})
	assert.Equal(t, 0, c.Count())
}

func TestStatusPatchPreservesAbsentFields(t *testing.T) {
	ch := newFakeChannel()
	c := joinedCoordinator(t, ch)

	c.HandleParticipantJoined(domain.Participant{
		SessionID:  "s1",
		Name:       "Bob",
		Camera:     boolPtr(true),
		Microphone: boolPtr(true),
	})

	// The wire event carries only the camera flag.
	var patch domain.StatusPatch
	require.NoError(t, json.Unmarshal([]byte(`{"camera":false}`), &patch))
	c.HandleStatusUpdated(core.StatusUpdatedPayload{SessionID: "s1", Status: patch})

	got, ok := c.Lookup("s1")
	require.True(t, ok)
	require.NotNil(t, got.Camera)
	assert.False(t, *got.Camera)
	require.NotNil(t, got.Microphone)
	assert.True(t, *got.Microphone, "absent microphone field must stay unchanged")

	// Patch for an unknown session is dropped.
	c.HandleStatusUpdated(core.StatusUpdatedPayload{SessionID: "ghost", Status: patch})
}

func TestLeaveMeetingIsOptimistic(t *testing.T) {
	ch := newFakeChannel()
	c := joinedCoordinator(t, ch)

	ch.emitErr = errors.New("pipe broken")
	c.LeaveMeeting()
	assert.Equal(t, Left, c.State(), "local state flips even when the emit fails")

	// Leaving again from Left is a no-op.
	c.LeaveMeeting()
	assert.Equal(t, Left, c.State())
}

func TestMeetingEndedForcesLeft(t *testing.T) {
	ch := newFakeChannel()
	c := joinedCoordinator(t, ch)

	var ended core.MeetingEndedPayload
	c.OnEnded(func(p core.MeetingEndedPayload) { ended = p })

	// Ended event for another meeting is ignored.
	c.HandleMeetingEnded(core.MeetingEndedPayload{MeetingID: "other"})
	assert.Equal(t, Joined, c.State())

	c.HandleMeetingEnded(core.MeetingEndedPayload{MeetingID: "m1", EndedByName: "Host"})
	assert.Equal(t, Left, c.State())
	assert.Equal(t, "Host", ended.EndedByName)
}

func TestRejoinAfterReconnect(t *testing.T) {
	ch := newFakeChannel()
	c := joinedCoordinator(t, ch)
	ch.emits = nil

	require.NoError(t, c.Rejoin())
	assert.Equal(t, Joining, c.State())
	require.Len(t, ch.emits, 1)
	assert.Equal(t, core.EvtJoinMeeting, ch.emits[0].event)

	// Rejoin with nothing to rejoin is a no-op.
	fresh := NewCoordinator(newFakeChannel(), testIdentity())
	require.NoError(t, fresh.Rejoin())
	assert.Equal(t, NotJoined, fresh.State())
}

func TestPublishStatusRequiresJoined(t *testing.T) {
	ch := newFakeChannel()
	c := NewCoordinator(ch, testIdentity())

	err := c.PublishStatus(domain.StatusPatch{Camera: boolPtr(true)})
	assert.ErrorIs(t, err, ErrNotJoined)

	c = joinedCoordinator(t, ch)
	ch.emits = nil
	require.NoError(t, c.PublishStatus(domain.StatusPatch{Camera: boolPtr(false)}))
	require.Len(t, ch.emits, 1)
	assert.Equal(t, core.EvtStatusChanged, ch.emits[0].event)
}

func TestNoticeLeavesStateUntouched(t *testing.T) {
	ch := newFakeChannel()
	c := joinedCoordinator(t, ch)
	c.HandleParticipantJoined(domain.Participant{SessionID: "s1", Name: "Bob"})

	var notice string
	c.OnNotice(func(msg string) { notice = msg })
	c.HandleNotice(core.ErrorNoticePayload{Message: "Failed to send message"})

	assert.Equal(t, "Failed to send message", notice)
	assert.Equal(t, Joined, c.State())
	assert.Equal(t, 1, c.Count())
}

func TestParticipantsKeepInsertionOrder(t *testing.T) {
	ch := newFakeChannel()
	c := joinedCoordinator(t, ch)

	c.HandleParticipantJoined(domain.Participant{SessionID: "s1", Name: "Bob"})
	c.HandleParticipantJoined(domain.Participant{SessionID: "s2", Name: "Carol"})
	c.HandleParticipantJoined(domain.Participant{SessionID: "s3", Name: "Dave"})
	c.HandleParticipantGone(core.ParticipantGonePayload{SessionID: "s2"})
	c.HandleParticipantJoined(domain.Participant{SessionID: "s4", Name: "Erin"})

	var names []string
	for _, p := range c.Participants() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Bob", "Dave", "Erin"}, names)
}
