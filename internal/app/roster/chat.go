package roster

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// SendMessage appends optimistically and remembers the client id so
// the server echo renders exactly once. While the channel is down it
// fails fast and appends nothing.
func (c *Coordinator) SendMessage(body string) (domain.ChatMessage, error) {
	if c.state != Joined {
		return domain.ChatMessage{}, ErrNotJoined
	}

	msg, err := domain.NewChatMessage(c.meetingID, c.self, body)
	if err != nil {
		return domain.ChatMessage{}, err
	}

	if err := c.channel.Emit(core.EvtSendMessage, core.SendMessagePayload{
		MeetingID: c.meetingID,
		ID:        msg.ID,
		Message:   msg.Message,
	}); err != nil {
		return domain.ChatMessage{}, err
	}

	c.chat = append(c.chat, msg)
	c.pendingEcho[msg.ID] = struct{}{}
	c.changed()
	return msg, nil
}

// HandleNewMessage appends inbound messages in arrival order. Our own
// echo, recognized by the client-generated id, is dropped because the
// optimistic copy is already in the log.
func (c *Coordinator) HandleNewMessage(msg domain.ChatMessage) {
	if _, ok := c.pendingEcho[msg.ID]; ok {
		delete(c.pendingEcho, msg.ID)
		log.Debug().Str("module", "roster").Str("id", msg.ID).Msg("own echo deduplicated")
		return
	}
	c.chat = append(c.chat, msg)
	c.changed()
}

func (c *Coordinator) Messages() []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(c.chat))
	copy(out, c.chat)
	return out
}
