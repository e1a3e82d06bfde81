// Package digest decides when a daily meeting digest is due and remembers
// which calendar days have already been served, guaranteeing at-most-once
// delivery per day per kind via the scheduled path. On-demand digests
// bypass this package entirely and never consume a scheduled slot.
package digest

import (
	"time"

	"github.com/m-luck/meeting-pinger/internal/domain"
)

// Kind selects which day a digest covers.
type Kind string

const (
	KindToday    Kind = "today"
	KindTomorrow Kind = "tomorrow"
)

const dayLayout = "2006-01-02"

type slot struct {
	chatID int64
	kind   Kind
}

// Schedule tracks, per user and kind, the last civil date a digest was
// sent. In-memory only; a restart re-sends the digest for the current day,
// an accepted limitation. Not safe for concurrent use; the scheduler loop
// is the only mutator.
type Schedule struct {
	sent map[slot]string
}

func NewSchedule() *Schedule {
	return &Schedule{sent: make(map[slot]string)}
}

// Due reports whether a scheduled digest should fire. localNow must already
// be in the user's zone: due-ness means the configured wall-clock time has
// been reached on the current civil day and that day has not been served
// yet. The caller marks the schedule only after a successful send, so a
// failed delivery retries on the next tick within the same day.
func (s *Schedule) Due(chatID int64, kind Kind, at domain.TimeOfDay, localNow time.Time) bool {
	if !at.ReachedBy(localNow) {
		return false
	}
	return s.sent[slot{chatID, kind}] != localNow.Format(dayLayout)
}

// MarkSent records that the digest for localNow's civil day went out.
func (s *Schedule) MarkSent(chatID int64, kind Kind, localNow time.Time) {
	s.sent[slot{chatID, kind}] = localNow.Format(dayLayout)
}

// LastSent returns the last served civil date for status reporting.
func (s *Schedule) LastSent(chatID int64, kind Kind) (string, bool) {
	d, ok := s.sent[slot{chatID, kind}]
	return d, ok
}
