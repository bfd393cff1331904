package ctrl

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/adapters/rest"
)

type joinRequest struct {
	Code  string `json:"code"`
	Video *bool  `json:"video"`
	Audio *bool  `json:"audio"`
}

type createRequest struct {
	Title string `json:"title"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type typingRequest struct {
	Active bool `json:"active"`
}

type toggleRequest struct {
	Target string `json:"target"` // camera | microphone | screen | facing
}

func (ctl *Controller) handleCreate(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad payload"})
		return
	}
	meeting, err := ctl.Meetings.Create(c.Request.Context(), rest.CreateMeetingRequest{Title: req.Title})
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meetingId": meeting.ID, "code": meeting.Code})
}

func (ctl *Controller) handleJoin(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid code"})
		return
	}

	meeting, err := ctl.Meetings.JoinByCode(c.Request.Context(), rest.JoinMeetingRequest{MeetingCode: req.Code})
	if err != nil {
		serviceError(c, err)
		return
	}

	video := req.Video == nil || *req.Video
	audio := req.Audio == nil || *req.Audio
	if err := ctl.Session.Join(meeting.ID, video, audio); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	log.Info().Str("module", "adapters.ctrl").Str("operator", c.GetString("operator_token")).Str("meeting", string(meeting.ID)).Msg("join requested")
	c.JSON(http.StatusOK, gin.H{"meetingId": meeting.ID, "code": meeting.Code})
}

func (ctl *Controller) handleLeave(c *gin.Context) {
	st := ctl.Session.Status()
	if err := ctl.Session.Leave(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if st.MeetingID != "" {
		// Best effort; the signaling leave already took us out.
		if err := ctl.Meetings.Leave(c.Request.Context(), st.MeetingID); err != nil {
			log.Warn().Err(err).Str("module", "adapters.ctrl").Msg("rest leave")
		}
	}
	c.JSON(http.StatusOK, gin.H{"state": "left"})
}

func (ctl *Controller) handleEnd(c *gin.Context) {
	st := ctl.Session.Status()
	if st.MeetingID == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "not in a meeting"})
		return
	}
	if err := ctl.Meetings.End(c.Request.Context(), st.MeetingID); err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": "ended"})
}

func (ctl *Controller) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, ctl.Session.Status())
}

func (ctl *Controller) handleTiles(c *gin.Context) {
	tiles, columns := ctl.Session.Tiles()
	c.JSON(http.StatusOK, gin.H{"tiles": tiles, "columns": columns})
}

func (ctl *Controller) handleChatLog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"messages": ctl.Session.Messages()})
}

func (ctl *Controller) handleChatSend(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid message"})
		return
	}
	ctl.Session.Typing(false)
	if err := ctl.Session.SendChat(req.Message); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

func (ctl *Controller) handleTyping(c *gin.Context) {
	var req typingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad payload"})
		return
	}
	ctl.Session.Typing(req.Active)
	c.JSON(http.StatusOK, gin.H{"typing": req.Active})
}

func (ctl *Controller) handleToggle(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad payload"})
		return
	}

	var err error
	switch req.Target {
	case "camera":
		err = ctl.Session.ToggleCamera()
	case "microphone":
		err = ctl.Session.ToggleMicrophone()
	case "screen":
		st := ctl.Session.Status()
		if st.Sharing {
			err = ctl.Session.StopScreenShare()
		} else {
			err = ctl.Session.StartScreenShare()
		}
	case "facing":
		err = ctl.Session.SwitchCamera()
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown toggle target"})
		return
	}
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ctl.Session.Status())
}

func (ctl *Controller) handleReconnect(c *gin.Context) {
	if err := ctl.Session.Reconnect(); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reconnecting": true})
}

func (ctl *Controller) handleDevices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"devices": ctl.Session.Devices()})
}

func serviceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, rest.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
	case errors.Is(err, rest.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
