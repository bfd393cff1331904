package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is append-only once received; ordering is arrival order
// at this client, never SentAt (clocks skew).
type ChatMessage struct {
	ID        string    `json:"id"`
	MeetingID MeetingID `json:"meetingId"`
	UserID    UserID    `json:"userId"`
	UserName  string    `json:"userName"`
	Message   string    `json:"message"`
	SentAt    time.Time `json:"timestamp"`
	IsGuest   bool      `json:"isGuest"`
}

// NewChatMessage tags an outbound message with a client-generated id so
// the server echo can be deduplicated.
func NewChatMessage(meetingID MeetingID, from Identity, body string) (ChatMessage, error) {
	if body == "" {
		return ChatMessage{}, ErrMessageEmpty
	}
	if len(body) > MaxMessageLen {
		return ChatMessage{}, ErrMessageTooLong
	}
	return ChatMessage{
		ID:        uuid.NewString(),
		MeetingID: meetingID,
		UserID:    from.UserID,
		UserName:  from.Name,
		Message:   body,
		SentAt:    time.Now(),
		IsGuest:   from.IsGuest,
	}, nil
}
