// Package domain contains entities without logic, just meta-data.
package domain

import "errors"

const (
	MaxDisplayNameLen = 36
	MaxMessageLen     = 2000
)

var (
	ErrNameEmpty      = errors.New("display name empty")
	ErrNameTooLong    = errors.New("display name too long")
	ErrMessageEmpty   = errors.New("message empty")
	ErrMessageTooLong = errors.New("message too long")
)

type (
	// UserID identifies an account (or a generated guest identity).
	UserID string
	// SessionID identifies one physical signaling connection. A user
	// holding two tabs holds two SessionIDs.
	SessionID string
	// MeetingID identifies a meeting record on the service.
	MeetingID string
)

// Participant is one roster entry, keyed by SessionID.
// Camera/Microphone are pointers: nil means "not reported yet",
// not "off".
type Participant struct {
	UserID     UserID    `json:"userId"`
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	IsGuest    bool      `json:"isGuest"`
	SessionID  SessionID `json:"socketId"`
	Camera     *bool     `json:"camera,omitempty"`
	Microphone *bool     `json:"microphone,omitempty"`
}

// StatusPatch carries only the flags present in a status-updated event.
// Absent fields leave the target entry untouched.
type StatusPatch struct {
	Camera     *bool `json:"camera"`
	Microphone *bool `json:"microphone"`
}

// Apply patches only the fields that are set.
func (p StatusPatch) Apply(target *Participant) {
	if p.Camera != nil {
		v := *p.Camera
		target.Camera = &v
	}
	if p.Microphone != nil {
		v := *p.Microphone
		target.Microphone = &v
	}
}

// Identity is what the client authenticates the signaling channel with.
type Identity struct {
	UserID  UserID
	Token   string
	Name    string
	Email   string
	IsGuest bool
}

func (i Identity) Validate() error {
	if i.Name == "" {
		return ErrNameEmpty
	}
	if len(i.Name) > MaxDisplayNameLen {
		return ErrNameTooLong
	}
	return nil
}
