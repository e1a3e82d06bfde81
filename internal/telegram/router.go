// Package telegram is the chat transport boundary: it delivers outbound
// notifications and forwards inbound user text to the scheduler. It makes
// no reminder decisions of its own.
package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/m-luck/meeting-pinger/internal/domain"
	"github.com/m-luck/meeting-pinger/internal/scheduler"
	"github.com/m-luck/meeting-pinger/internal/store"
)

// Router wires Telegram updates to the scheduler and the history store.
// Only configured chat IDs are honored; everything else is ignored.
type Router struct {
	bot     *tgbotapi.BotAPI
	log     *zap.Logger
	repo    store.Repo
	users   map[int64]domain.UserConfig
	inbound chan<- scheduler.Inbound
}

func NewRouter(bot *tgbotapi.BotAPI, log *zap.Logger, repo store.Repo, users []domain.UserConfig, inbound chan<- scheduler.Inbound) *Router {
	byChat := make(map[int64]domain.UserConfig, len(users))
	for _, u := range users {
		byChat[u.ChatID] = u
	}
	return &Router{
		bot:     bot,
		log:     log,
		repo:    repo,
		users:   byChat,
		inbound: inbound,
	}
}

// HandleUpdate routes a single Telegram update.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	chatID := upd.Message.Chat.ID
	user, ok := r.users[chatID]
	if !ok {
		r.log.Debug("message from unconfigured chat", zap.Int64("chat", chatID))
		return
	}
	text := strings.TrimSpace(upd.Message.Text)

	switch {
	case strings.HasPrefix(text, "/start"):
		r.handleStart(user)
	case strings.HasPrefix(text, "/history"):
		r.handleHistory(ctx, user)
	default:
		// Free text, digest keywords and /status all go through the
		// scheduler loop so tracker access stays single-threaded.
		select {
		case r.inbound <- scheduler.Inbound{ChatID: chatID, Text: text}:
		default:
			r.log.Warn("inbound queue full, dropping message",
				zap.Int64("chat", chatID))
		}
	}
}

// SendMessage sends a plain text message to the given chat. This makes
// Router satisfy scheduler.Sender.
func (r *Router) SendMessage(chatID int64, text string) error {
	_, err := r.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (r *Router) sendText(chatID int64, text string) {
	if err := r.SendMessage(chatID, text); err != nil {
		r.log.Error("send failed", zap.Int64("chat", chatID), zap.Error(err))
	}
}
