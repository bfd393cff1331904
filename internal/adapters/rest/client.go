// Package rest talks to the meeting service. The service is sloppy
// about envelope nesting (flat fields vs data.meeting), so everything
// is normalized to domain.Meeting right here and nowhere else.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/domain"
)

var (
	ErrNotFound     = errors.New("meeting not found")
	ErrUnauthorized = errors.New("unauthorized")
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type CreateMeetingRequest struct {
	Title    string                  `json:"title,omitempty"`
	Settings *domain.MeetingSettings `json:"settings,omitempty"`
}

type JoinMeetingRequest struct {
	MeetingCode string `json:"meetingCode"`
	Name        string `json:"name,omitempty"`
}

// wireMeeting is the service shape of a meeting record.
type wireMeeting struct {
	ID   string `json:"_id"`
	Title string `json:"title"`
	Code  string `json:"meetingCode"`
	Host  struct {
		ID   string `json:"_id"`
		Name string `json:"name"`
	} `json:"host"`
	Status   string `json:"status"`
	Settings struct {
		WaitingRoom   bool `json:"waitingRoom"`
		Chat          bool `json:"chat"`
		ScreenSharing bool `json:"screenSharing"`
		Recording     bool `json:"recording"`
	} `json:"settings"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
}

// wireResponse covers both envelope styles the service emits.
type wireResponse struct {
	Success     *bool        `json:"success"`
	Message     string       `json:"message"`
	MeetingID   string       `json:"meetingId"`
	MeetingCode string       `json:"meetingCode"`
	Meeting     *wireMeeting `json:"meeting"`
	Data        *struct {
		Meeting *wireMeeting `json:"meeting"`
	} `json:"data"`
}

// normalize flattens whichever nesting arrived. Flat fields win when
// both shapes are present.
func (r wireResponse) normalize() domain.Meeting {
	wm := r.Meeting
	if wm == nil && r.Data != nil {
		wm = r.Data.Meeting
	}

	var m domain.Meeting
	if wm != nil {
		m = domain.Meeting{
			ID:       domain.MeetingID(wm.ID),
			Title:    wm.Title,
			Code:     wm.Code,
			HostID:   domain.UserID(wm.Host.ID),
			HostName: wm.Host.Name,
			Status:   domain.MeetingStatus(wm.Status),
			Settings: domain.MeetingSettings{
				WaitingRoom:   wm.Settings.WaitingRoom,
				Chat:          wm.Settings.Chat,
				ScreenSharing: wm.Settings.ScreenSharing,
				Recording:     wm.Settings.Recording,
			},
			StartedAt: wm.StartedAt,
			EndedAt:   wm.EndedAt,
		}
	}
	if r.MeetingID != "" {
		m.ID = domain.MeetingID(r.MeetingID)
	}
	if r.MeetingCode != "" {
		m.Code = r.MeetingCode
	}
	return m
}

func (c *Client) Create(ctx context.Context, req CreateMeetingRequest) (domain.Meeting, error) {
	return c.meetingCall(ctx, http.MethodPost, "/meetings", req)
}

func (c *Client) JoinByCode(ctx context.Context, req JoinMeetingRequest) (domain.Meeting, error) {
	return c.meetingCall(ctx, http.MethodPost, "/meetings/join", req)
}

func (c *Client) Details(ctx context.Context, idOrCode string) (domain.Meeting, error) {
	return c.meetingCall(ctx, http.MethodGet, "/meetings/"+idOrCode, nil)
}

func (c *Client) Start(ctx context.Context, id domain.MeetingID) (domain.Meeting, error) {
	return c.meetingCall(ctx, http.MethodPost, fmt.Sprintf("/meetings/%s/start", id), nil)
}

func (c *Client) Leave(ctx context.Context, id domain.MeetingID) error {
	_, err := c.meetingCall(ctx, http.MethodPost, fmt.Sprintf("/meetings/%s/leave", id), nil)
	return err
}

func (c *Client) End(ctx context.Context, id domain.MeetingID) error {
	_, err := c.meetingCall(ctx, http.MethodPost, fmt.Sprintf("/meetings/%s/end", id), nil)
	return err
}

func (c *Client) meetingCall(ctx context.Context, method, path string, body any) (domain.Meeting, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return domain.Meeting{}, err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return domain.Meeting{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Meeting{}, fmt.Errorf("meeting service: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.Meeting{}, ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.Meeting{}, ErrUnauthorized
	case resp.StatusCode >= 400:
		return domain.Meeting{}, decodeError(resp)
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return domain.Meeting{}, fmt.Errorf("decode meeting response: %w", err)
	}
	if wire.Success != nil && !*wire.Success {
		return domain.Meeting{}, fmt.Errorf("meeting service: %s", wire.Message)
	}
	return wire.normalize(), nil
}

func decodeError(resp *http.Response) error {
	var wire struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil || wire.Message == "" {
		log.Debug().Int("status", resp.StatusCode).Str("module", "rest").Msg("opaque service error")
		return fmt.Errorf("meeting service: status %d", resp.StatusCode)
	}
	return fmt.Errorf("meeting service: %s", wire.Message)
}
