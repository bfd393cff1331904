package core

import (
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Meet/internal/domain"
)

// Signaling event catalogue. Names are the wire contract with the
// meeting server and must not drift.
const (
	EvtJoinMeeting             = "join-meeting"
	EvtJoinedMeeting           = "joined-meeting"
	EvtCurrentParticipants     = "current-participants"
	EvtParticipantJoined       = "participant-joined"
	EvtLeaveMeeting            = "leave-meeting"
	EvtParticipantLeft         = "participant-left"
	EvtParticipantDisconnected = "participant-disconnected"
	EvtStatusChanged           = "participant-status-changed"
	EvtStatusUpdated           = "participant-status-updated"
	EvtSendMessage             = "send-message"
	EvtNewMessage              = "new-message"
	EvtTypingStart             = "typing-start"
	EvtTypingStop              = "typing-stop"
	EvtMeetingEnded            = "meeting-ended"
	EvtWebRTCReady             = "webrtc-ready"
	EvtPeerReady               = "peer-ready"
	EvtWebRTCOffer             = "webrtc-offer"
	EvtWebRTCAnswer            = "webrtc-answer"
	EvtWebRTCCandidate         = "webrtc-ice-candidate"
	EvtMeetingError            = "meeting-error"
	EvtChatError               = "chat-error"
)

type JoinedMeetingPayload struct {
	MeetingID domain.MeetingID `json:"meetingId"`
	Success   bool             `json:"success"`
}

type CurrentParticipantsPayload struct {
	Participants []domain.Participant `json:"participants"`
	Count        int                  `json:"count"`
}

// ParticipantGonePayload is shared by participant-left and
// participant-disconnected; a disconnect is an ungraceful leave.
type ParticipantGonePayload struct {
	UserID    domain.UserID    `json:"userId"`
	Name      string           `json:"name"`
	SessionID domain.SessionID `json:"socketId"`
}

type StatusChangedPayload struct {
	MeetingID domain.MeetingID   `json:"meetingId"`
	Status    domain.StatusPatch `json:"status"`
}

type StatusUpdatedPayload struct {
	UserID    domain.UserID      `json:"userId"`
	Name      string             `json:"name"`
	SessionID domain.SessionID   `json:"socketId"`
	Status    domain.StatusPatch `json:"status"`
}

type SendMessagePayload struct {
	MeetingID domain.MeetingID `json:"meetingId"`
	ID        string           `json:"id"`
	Message   string           `json:"message"`
}

type TypingPayload struct {
	MeetingID domain.MeetingID `json:"meetingId"`
}

type MeetingEndedPayload struct {
	MeetingID   domain.MeetingID `json:"meetingId"`
	EndedBy     domain.UserID    `json:"endedBy"`
	EndedByName string           `json:"endedByName"`
	Reason      string           `json:"reason,omitempty"`
}

type ReadyPayload struct {
	MeetingID domain.MeetingID `json:"meetingId"`
}

type PeerReadyPayload struct {
	SessionID domain.SessionID `json:"socketId"`
	UserID    domain.UserID    `json:"userId"`
	UserName  string           `json:"userName"`
}

type OfferPayload struct {
	MeetingID       domain.MeetingID          `json:"meetingId"`
	TargetSessionID domain.SessionID          `json:"targetSocketId,omitempty"`
	From            domain.SessionID          `json:"from,omitempty"`
	FromUserID      domain.UserID             `json:"fromUserId,omitempty"`
	FromUserName    string                    `json:"fromUserName,omitempty"`
	Offer           webrtc.SessionDescription `json:"offer"`
}

type AnswerPayload struct {
	MeetingID       domain.MeetingID          `json:"meetingId"`
	TargetSessionID domain.SessionID          `json:"targetSocketId,omitempty"`
	From            domain.SessionID          `json:"from,omitempty"`
	Answer          webrtc.SessionDescription `json:"answer"`
}

type CandidatePayload struct {
	MeetingID       domain.MeetingID        `json:"meetingId"`
	TargetSessionID domain.SessionID        `json:"targetSocketId,omitempty"`
	From            domain.SessionID        `json:"from,omitempty"`
	Candidate       webrtc.ICECandidateInit `json:"candidate"`
}

// ErrorNoticePayload covers meeting-error and chat-error; both are
// surfaced transiently and never touch roster or transport state.
type ErrorNoticePayload struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
