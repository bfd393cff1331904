// Package roster maintains the authoritative local view of who is in
// the meeting, their media flags, and the chat history. All methods
// are invoked from the session's serialized loop.
package roster

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

type State int

const (
	NotJoined State = iota
	Joining
	Joined
	Left
)

func (s State) String() string {
	switch s {
	case NotJoined:
		return "not-joined"
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	case Left:
		return "left"
	}
	return "unknown"
}

var ErrNotJoined = errors.New("not in a meeting")

type Coordinator struct {
	channel core.SignalChannel
	self    domain.Identity

	state     State
	meetingID domain.MeetingID

	entries map[domain.SessionID]*domain.Participant
	order   []domain.SessionID

	chat        []domain.ChatMessage
	pendingEcho map[string]struct{}

	onChange func()
	onEnded  func(core.MeetingEndedPayload)
	onNotice func(string)
}

func NewCoordinator(channel core.SignalChannel, self domain.Identity) *Coordinator {
	return &Coordinator{
		channel:     channel,
		self:        self,
		entries:     make(map[domain.SessionID]*domain.Participant),
		pendingEcho: make(map[string]struct{}),
	}
}

// OnChange fires after any roster or chat mutation so the view can
// recompute.
func (c *Coordinator) OnChange(fn func())                        { c.onChange = fn }
func (c *Coordinator) OnEnded(fn func(core.MeetingEndedPayload)) { c.onEnded = fn }
func (c *Coordinator) OnNotice(fn func(msg string))              { c.onNotice = fn }

func (c *Coordinator) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}

// Join emits the join request. Calling it again for the same meeting
// before the ack is a no-op, so UI retries cannot double-join.
func (c *Coordinator) Join(meetingID domain.MeetingID) error {
	if c.state == Joining && c.meetingID == meetingID {
		return nil
	}
	if c.state == Joined && c.meetingID == meetingID {
		return nil
	}
	c.meetingID = meetingID
	c.state = Joining
	log.Info().Str("module", "roster").Str("meeting", string(meetingID)).Msg("joining")
	return c.channel.Emit(core.EvtJoinMeeting, meetingID)
}

// Rejoin is the reconnect path: the server will answer with a fresh
// snapshot which replaces whatever we accumulated before the drop.
func (c *Coordinator) Rejoin() error {
	if c.meetingID == "" || c.state == Left || c.state == NotJoined {
		return nil
	}
	c.state = Joining
	log.Info().Str("module", "roster").Str("meeting", string(c.meetingID)).Msg("rejoining after reconnect")
	return c.channel.Emit(core.EvtJoinMeeting, c.meetingID)
}

// HandleJoined processes the server ack. Only success=true for the
// current meeting moves the machine to Joined.
func (c *Coordinator) HandleJoined(p core.JoinedMeetingPayload) {
	if !p.Success || p.MeetingID != c.meetingID || c.state != Joining {
		return
	}
	c.state = Joined
	log.Info().Str("module", "roster").Str("meeting", string(c.meetingID)).Msg("joined")
	c.changed()
}

// HandleSnapshot replaces the roster wholesale; the snapshot is the
// authoritative baseline, never merged.
func (c *Coordinator) HandleSnapshot(p core.CurrentParticipantsPayload) {
	c.entries = make(map[domain.SessionID]*domain.Participant, len(p.Participants))
	c.order = c.order[:0]
	for i := range p.Participants {
		participant := p.Participants[i]
		if _, ok := c.entries[participant.SessionID]; ok {
			continue
		}
		c.entries[participant.SessionID] = &participant
		c.order = append(c.order, participant.SessionID)
	}
	log.Info().Str("module", "roster").Int("count", len(c.entries)).Msg("roster snapshot applied")
	c.changed()
}

// HandleParticipantJoined appends; a duplicate session key is ignored.
func (c *Coordinator) HandleParticipantJoined(p domain.Participant) {
	if _, ok := c.entries[p.SessionID]; ok {
		return
	}
	c.entries[p.SessionID] = &p
	c.order = append(c.order, p.SessionID)
	log.Info().Str("module", "roster").Str("sid", string(p.SessionID)).Str("name", p.Name).Msg("participant joined")
	c.changed()
}

// HandleParticipantGone removes by session key. Shared by the left and
// disconnected events; removal is idempotent.
func (c *Coordinator) HandleParticipantGone(p core.ParticipantGonePayload) {
	if _, ok := c.entries[p.SessionID]; !ok {
		return
	}
	delete(c.entries, p.SessionID)
	for i, sid := range c.order {
		if sid == p.SessionID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	log.Info().Str("module", "roster").Str("sid", string(p.SessionID)).Str("name", p.Name).Msg("participant gone")
	c.changed()
}

// HandleStatusUpdated patches only the fields present in the event;
// an absent field means unchanged, not false.
func (c *Coordinator) HandleStatusUpdated(p core.StatusUpdatedPayload) {
	entry, ok := c.entries[p.SessionID]
	if !ok {
		return
	}
	p.Status.Apply(entry)
	c.changed()
}

// LeaveMeeting is optimistic: local state flips to Left immediately,
// the emit is best effort.
func (c *Coordinator) LeaveMeeting() {
	if c.state != Joining && c.state != Joined {
		return
	}
	meetingID := c.meetingID
	c.state = Left
	if err := c.channel.Emit(core.EvtLeaveMeeting, meetingID); err != nil {
		log.Warn().Err(err).Str("module", "roster").Msg("leave emit failed")
	}
	log.Info().Str("module", "roster").Str("meeting", string(meetingID)).Msg("left")
	c.changed()
}

// HandleMeetingEnded is authoritative: forced transition to Left, then
// the session tears down media and transports via the callback.
func (c *Coordinator) HandleMeetingEnded(p core.MeetingEndedPayload) {
	if p.MeetingID != c.meetingID {
		return
	}
	c.state = Left
	log.Info().
		Str("module", "roster").
		Str("meeting", string(p.MeetingID)).
		Str("ended_by", p.EndedByName).
		Str("reason", p.Reason).
		Msg("meeting ended")
	if c.onEnded != nil {
		c.onEnded(p)
	}
	c.changed()
}

// HandleNotice surfaces meeting-error/chat-error transiently; roster
// and transport state are untouched.
func (c *Coordinator) HandleNotice(p core.ErrorNoticePayload) {
	log.Warn().Str("module", "roster").Str("message", p.Message).Str("detail", p.Error).Msg("server error notice")
	if c.onNotice != nil {
		c.onNotice(p.Message)
	}
}

// PublishStatus broadcasts our own camera/microphone flags.
func (c *Coordinator) PublishStatus(patch domain.StatusPatch) error {
	if c.state != Joined {
		return ErrNotJoined
	}
	return c.channel.Emit(core.EvtStatusChanged, core.StatusChangedPayload{
		MeetingID: c.meetingID,
		Status:    patch,
	})
}

func (c *Coordinator) Typing(start bool) {
	if c.state != Joined {
		return
	}
	evt := core.EvtTypingStop
	if start {
		evt = core.EvtTypingStart
	}
	_ = c.channel.Emit(evt, core.TypingPayload{MeetingID: c.meetingID})
}

func (c *Coordinator) State() State                { return c.state }
func (c *Coordinator) MeetingID() domain.MeetingID { return c.meetingID }

// Participants returns entries in insertion order. The order carries
// no protocol meaning; it just keeps the view stable.
func (c *Coordinator) Participants() []domain.Participant {
	out := make([]domain.Participant, 0, len(c.order))
	for _, sid := range c.order {
		if entry, ok := c.entries[sid]; ok {
			out = append(out, *entry)
		}
	}
	return out
}

func (c *Coordinator) Lookup(sid domain.SessionID) (domain.Participant, bool) {
	if entry, ok := c.entries[sid]; ok {
		return *entry, true
	}
	return domain.Participant{}, false
}

func (c *Coordinator) Count() int { return len(c.entries) }
