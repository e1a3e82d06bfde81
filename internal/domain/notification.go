package domain

import "time"

// NotificationKind distinguishes history rows.
type NotificationKind string

const (
	NotificationPing   NotificationKind = "ping"
	NotificationDigest NotificationKind = "digest"
)

// Notification is one delivered message, persisted for the /history command.
// The audit trail never feeds back into scheduling decisions.
type Notification struct {
	ID      string
	ChatID  int64
	Kind    NotificationKind
	Subject string // meeting title for pings, digest kind for digests
	SentAt  time.Time
}
