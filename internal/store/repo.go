package store

import (
	"context"

	"github.com/m-luck/meeting-pinger/internal/domain"
)

// Repo is the notification history store. Writes are best-effort from the
// scheduler's perspective; a failed insert is logged and never blocks a
// reminder.
type Repo interface {
	RecordNotification(ctx context.Context, n *domain.Notification) error
	RecentByChat(ctx context.Context, chatID int64, limit int) ([]domain.Notification, error)
	Close() error
}
