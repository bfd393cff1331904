// Package view is a pure projection from session state to a renderable
// tile grid. It holds no state of its own and must never panic on
// missing media.
package view

import (
	"strings"
	"unicode/utf8"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

type Tile struct {
	Key         string `json:"key"`
	StreamID    string `json:"streamId,omitempty"`
	DisplayName string `json:"displayName"`
	Initial     string `json:"initial"`
	IsLocal     bool   `json:"isLocal"`
	Muted       bool   `json:"muted"`
	VideoOff    bool   `json:"videoOff"`
	IsGuest     bool   `json:"isGuest"`
}

type LocalView struct {
	Name    string
	IsGuest bool
	Started bool
	VideoOn bool
	AudioOn bool
}

// RemoteLookup resolves the inbound media for a session key; nil is a
// valid answer everywhere.
type RemoteLookup func(domain.SessionID) *core.RemoteMedia

// Compose builds the ordered tile list: local first, remotes in roster
// order. A remote with a transport but no live video still gets a tile
// with the placeholder initial.
func Compose(local LocalView, participants []domain.Participant, remote RemoteLookup) []Tile {
	tiles := make([]Tile, 0, len(participants)+1)

	tiles = append(tiles, Tile{
		Key:         "local",
		DisplayName: local.Name,
		Initial:     initial(local.Name),
		IsLocal:     true,
		Muted:       local.Started && !local.AudioOn,
		VideoOff:    !local.Started || !local.VideoOn,
		IsGuest:     local.IsGuest,
	})

	for _, p := range participants {
		media := remote(p.SessionID)

		cameraOn := p.Camera == nil || *p.Camera
		micOn := p.Microphone == nil || *p.Microphone

		tiles = append(tiles, Tile{
			Key:         string(p.SessionID),
			StreamID:    streamID(media),
			DisplayName: p.Name,
			Initial:     initial(p.Name),
			Muted:       !micOn,
			VideoOff:    !cameraOn || !media.HasLiveVideo(),
			IsGuest:     p.IsGuest,
		})
	}
	return tiles
}

func streamID(m *core.RemoteMedia) string {
	if m == nil {
		return ""
	}
	return m.StreamID
}

func initial(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "?"
	}
	r, _ := utf8.DecodeRuneInString(name)
	return strings.ToUpper(string(r))
}

// GridShape maps total participant count to a column count:
// 1 tile fills the view, 2 sit side by side, up to 4 make a 2x2,
// up to 6 take three columns, anything bigger four.
func GridShape(count int) int {
	switch {
	case count <= 1:
		return 1
	case count <= 4:
		return 2
	case count <= 6:
		return 3
	default:
		return 4
	}
}
