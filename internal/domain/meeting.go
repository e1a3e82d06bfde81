package domain

import "time"

// Meeting is one occurrence of a calendar event inside the lookahead window.
// All-day, declined and cancelled events never reach this type; the calendar
// client filters them before handing meetings to the core.
type Meeting struct {
	ID        string // calendar-provided UID, stable across fetches
	Title     string
	StartTime time.Time
	EndTime   time.Time
}

// Overlaps reports whether the meeting intersects the [from, to) window.
func (m Meeting) Overlaps(from, to time.Time) bool {
	return m.StartTime.Before(to) && m.EndTime.After(from)
}

// Phase is the reminder lifecycle of a tracked meeting.
type Phase string

const (
	PhasePending      Phase = "pending"
	PhaseActive       Phase = "active"
	PhaseAcknowledged Phase = "acknowledged"
	PhaseExpired      Phase = "expired"
)

// ReminderState is the per-meeting ping bookkeeping. There is at most one
// per (user, meeting ID) pair; a re-fetch updates the existing state in
// place so ping counts and acknowledgment survive across polls.
type ReminderState struct {
	Meeting    Meeting
	Phase      Phase
	LastPingAt *time.Time // UTC, nil until the first ping
	PingCount  int
}
