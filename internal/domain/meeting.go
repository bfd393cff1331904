package domain

import "time"

type MeetingStatus string

const (
	MeetingScheduled MeetingStatus = "scheduled"
	MeetingActive    MeetingStatus = "active"
	MeetingEnded     MeetingStatus = "ended"
)

// Meeting is the normalized view of a meeting record as returned by the
// REST collaborator. The adapter flattens whatever envelope the service
// used; core code only ever sees this shape.
type Meeting struct {
	ID        MeetingID
	Title     string
	Code      string
	HostID    UserID
	HostName  string
	Status    MeetingStatus
	Settings  MeetingSettings
	StartedAt time.Time
	EndedAt   time.Time
}

type MeetingSettings struct {
	WaitingRoom   bool
	Chat          bool
	ScreenSharing bool
	Recording     bool
}
