package session

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/app/roster"
	"github.com/dkeye/Meet/internal/app/view"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/media"
)

// Status is the control-surface snapshot of the whole session.
type Status struct {
	State        string               `json:"state"`
	MeetingID    domain.MeetingID     `json:"meetingId,omitempty"`
	Connected    bool                 `json:"connected"`
	Participants []domain.Participant `json:"participants"`
	PeerCount    int                  `json:"peerCount"`
	VideoOn      bool                 `json:"videoOn"`
	AudioOn      bool                 `json:"audioOn"`
	Sharing      bool                 `json:"sharing"`
	Notices      []string             `json:"notices,omitempty"`
}

// Join starts the meeting attempt: the join request goes out
// immediately, media acquisition runs off-loop so a slow permission
// grant never blocks event delivery.
func (s *Session) Join(meetingID domain.MeetingID, video, audio bool) error {
	var emitErr error
	if err := s.call(func() {
		s.wantVideo = video
		s.wantAudio = audio
		emitErr = s.roster.Join(meetingID)
	}); err != nil {
		return err
	}
	if emitErr != nil {
		return emitErr
	}

	go func() {
		if err := s.media.Start(s.ctx, video, audio); err != nil {
			log.Error().Err(err).Str("module", "session").Msg("media start")
			s.post(func() { s.addNotice(media.UserMessage(err)) })
		}
	}()
	return nil
}

// Leave exits optimistically and always tears down local resources.
func (s *Session) Leave() error {
	return s.call(func() {
		s.roster.LeaveMeeting()
		s.teardown()
	})
}

func (s *Session) SendChat(body string) error {
	var err error
	callErr := s.call(func() {
		_, err = s.roster.SendMessage(body)
	})
	if callErr != nil {
		return callErr
	}
	return err
}

func (s *Session) Typing(start bool) {
	s.post(func() { s.roster.Typing(start) })
}

func (s *Session) ToggleCamera() error {
	var err error
	callErr := s.call(func() {
		_, err = s.media.ToggleVideo(s.ctx)
	})
	if callErr != nil {
		return callErr
	}
	return err
}

func (s *Session) ToggleMicrophone() error {
	var err error
	callErr := s.call(func() {
		_, err = s.media.ToggleAudio()
	})
	if callErr != nil {
		return callErr
	}
	return err
}

func (s *Session) StartScreenShare() error {
	var err error
	callErr := s.call(func() {
		err = s.media.StartScreenShare(s.ctx)
	})
	if callErr != nil {
		return callErr
	}
	return err
}

func (s *Session) StopScreenShare() error {
	var err error
	callErr := s.call(func() {
		err = s.media.StopScreenShare(s.ctx)
	})
	if callErr != nil {
		return callErr
	}
	return err
}

func (s *Session) SwitchCamera() error {
	var err error
	callErr := s.call(func() {
		err = s.media.SwitchCamera(s.ctx)
	})
	if callErr != nil {
		return callErr
	}
	return err
}

// Reconnect re-opens a channel that went terminal after exhausting its
// retry budget. The reopened channel adopts the session lifetime, not
// the caller's: a control request ends the moment its handler returns,
// and the channel has to outlive it.
func (s *Session) Reconnect() error {
	return s.channel.Open(s.ctx)
}

func (s *Session) Status() Status {
	var st Status
	_ = s.call(func() {
		st = Status{
			State:        s.roster.State().String(),
			MeetingID:    s.roster.MeetingID(),
			Connected:    s.connected,
			Participants: s.roster.Participants(),
			PeerCount:    s.peers.Count(),
			VideoOn:      s.media.VideoEnabled(),
			AudioOn:      s.media.AudioEnabled(),
			Sharing:      s.media.ScreenSharing(),
			Notices:      append([]string(nil), s.notices...),
		}
	})
	return st
}

// Tiles recomputes the view synchronously from current state.
func (s *Session) Tiles() ([]view.Tile, int) {
	var tiles []view.Tile
	_ = s.call(func() {
		local := view.LocalView{
			Name:    s.self.Name,
			IsGuest: s.self.IsGuest,
			Started: s.media.Started(),
			VideoOn: s.media.VideoEnabled(),
			AudioOn: s.media.AudioEnabled(),
		}
		tiles = view.Compose(local, s.roster.Participants(), s.peers.Remote)
	})
	return tiles, view.GridShape(len(tiles))
}

func (s *Session) Messages() []domain.ChatMessage {
	var msgs []domain.ChatMessage
	_ = s.call(func() {
		msgs = s.roster.Messages()
	})
	return msgs
}

func (s *Session) Devices() []core.DeviceInfo {
	return s.media.Devices()
}

// Close leaves the meeting if needed and releases everything. Safe to
// call more than once.
func (s *Session) Close() {
	_ = s.call(func() {
		if s.roster.State() == roster.Joining || s.roster.State() == roster.Joined {
			s.roster.LeaveMeeting()
		}
		s.teardown()
	})
	s.channel.Close()
	s.cancel()
	<-s.done
}
