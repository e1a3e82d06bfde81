package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/m-luck/meeting-pinger/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

// Open opens (or creates) the SQLite database at the given path, applies
// recommended PRAGMAs, runs SQL migrations, and returns a repository.
func Open(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Single-writer engine; keep the pool at one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// RecordNotification appends one delivered notification to the history.
// An empty ID is filled in with a fresh UUID.
func (r *SQLiteRepo) RecordNotification(ctx context.Context, n *domain.Notification) error {
	if n == nil {
		return errors.New("nil notification")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	sentAt := n.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, chat_id, kind, subject, sent_at)
		VALUES (?, ?, ?, ?, ?)`,
		n.ID, n.ChatID, string(n.Kind), n.Subject, sentAt.UTC().Unix(),
	)
	return err
}

// RecentByChat returns up to `limit` notifications for a chat, newest first.
func (r *SQLiteRepo) RecentByChat(ctx context.Context, chatID int64, limit int) ([]domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chat_id, kind, subject, sent_at
		FROM notifications
		WHERE chat_id = ?
		ORDER BY sent_at DESC, id DESC
		LIMIT ?`,
		chatID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Notification
	for rows.Next() {
		var (
			n      domain.Notification
			kind   string
			sentAt int64
		)
		if err := rows.Scan(&n.ID, &n.ChatID, &kind, &n.Subject, &sentAt); err != nil {
			return nil, err
		}
		n.Kind = domain.NotificationKind(kind)
		n.SentAt = time.Unix(sentAt, 0).UTC()
		res = append(res, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}
