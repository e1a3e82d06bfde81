package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/m-luck/meeting-pinger/internal/domain"
)

const historyLimit = 20

func (r *Router) handleStart(user domain.UserConfig) {
	r.sendText(user.ChatID, startText(user))
}

func (r *Router) handleHistory(ctx context.Context, user domain.UserConfig) {
	if r.repo == nil {
		r.sendText(user.ChatID, "History is not enabled.")
		return
	}
	records, err := r.repo.RecentByChat(ctx, user.ChatID, historyLimit)
	if err != nil {
		r.log.Error("history query failed",
			zap.Int64("chat", user.ChatID), zap.Error(err))
		r.sendText(user.ChatID, "Could not read your history. Please try again later.")
		return
	}
	r.sendText(user.ChatID, historyText(records, user.Location()))
}

func startText(user domain.UserConfig) string {
	return fmt.Sprintf(
		"I watch your calendar and ping you before meetings until you confirm.\n\n"+
			"Reply \"%s for <meeting name>\" to stop pings for a meeting.\n"+
			"Send \"today\" or \"tomorrow\" for a digest, /status for tracked meetings, "+
			"/history for recent notifications.",
		user.ConfirmationPhrase,
	)
}

func historyText(records []domain.Notification, loc *time.Location) string {
	if len(records) == 0 {
		return "No notifications sent yet."
	}
	var b strings.Builder
	b.WriteString("Recent notifications:")
	for _, n := range records {
		fmt.Fprintf(&b, "\n  %s  [%s] %s",
			n.SentAt.In(loc).Format("Jan 2 15:04"), n.Kind, n.Subject)
	}
	return b.String()
}
