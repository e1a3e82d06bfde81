// Package scheduler drives the reminder engine: a single goroutine
// multiplexes the poll ticker and the inbound-message channel, so tracker
// and digest state are only ever touched from one logical thread of
// control and an acknowledgment is visible to the very next due-check.
package scheduler

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/m-luck/meeting-pinger/internal/digest"
	"github.com/m-luck/meeting-pinger/internal/domain"
	"github.com/m-luck/meeting-pinger/internal/store"
	"github.com/m-luck/meeting-pinger/internal/tracker"
)

// Sender delivers a notification to the chat transport. Fire-and-forget;
// the scheduler logs failures and relies on the next due-check to retry.
type Sender interface {
	SendMessage(chatID int64, text string) error
}

// Fetcher returns calendar snapshots. Implementations must already have
// filtered cancelled, declined and all-day events.
type Fetcher interface {
	Upcoming(ctx context.Context, user domain.UserConfig, from, to time.Time) ([]domain.Meeting, error)
	ForDay(ctx context.Context, user domain.UserConfig, day time.Time) ([]domain.Meeting, error)
}

// Inbound is one chat message received from a user.
type Inbound struct {
	ChatID int64
	Text   string
}

type userState struct {
	cfg          domain.UserConfig
	tracker      *tracker.Tracker
	lastPolledAt time.Time
}

// Scheduler owns all per-user reminder state and the digest schedule.
type Scheduler struct {
	log          *zap.Logger
	fetcher      Fetcher
	sender       Sender
	repo         store.Repo
	digests      *digest.Schedule
	users        []*userState
	byChat       map[int64]*userState
	inbound      chan Inbound
	tickInterval time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
}

// Params collects the scheduler's collaborators.
type Params struct {
	Users        []domain.UserConfig
	Fetcher      Fetcher
	Sender       Sender
	Repo         store.Repo // optional; nil disables history
	Log          *zap.Logger
	TickInterval time.Duration
	FetchTimeout time.Duration
}

func New(p Params) *Scheduler {
	s := &Scheduler{
		log:          p.Log,
		fetcher:      p.Fetcher,
		sender:       p.Sender,
		repo:         p.Repo,
		digests:      digest.NewSchedule(),
		byChat:       make(map[int64]*userState),
		inbound:      make(chan Inbound, 64),
		tickInterval: p.TickInterval,
		fetchTimeout: p.FetchTimeout,
		now:          time.Now,
	}
	for _, cfg := range p.Users {
		us := &userState{cfg: cfg, tracker: tracker.New(cfg, p.Log)}
		s.users = append(s.users, us)
		s.byChat[cfg.ChatID] = us
	}
	return s
}

// SetSender installs the outbound transport. The transport needs the
// scheduler's inbound channel to be built, so it is wired in after
// construction. Must be called before Run.
func (s *Scheduler) SetSender(sender Sender) {
	s.sender = sender
}

// Inbound returns the channel the transport feeds user messages into. The
// channel is buffered; the transport should drop rather than block when it
// fills.
func (s *Scheduler) Inbound() chan<- Inbound {
	return s.inbound
}

// Run executes ticks and drains inbound messages until ctx is canceled.
// Any in-flight send completes before Run returns.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	s.log.Info("scheduler started",
		zap.Int("users", len(s.users)),
		zap.Duration("tick", s.tickInterval),
	)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping")
			return
		case msg := <-s.inbound:
			s.handleInbound(ctx, msg)
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one scheduling cycle. Users are independent: a fetch or send
// failure for one user never aborts the others.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	for _, us := range s.users {
		if !us.lastPolledAt.IsZero() && now.Sub(us.lastPolledAt) < us.cfg.PollInterval() {
			continue
		}
		us.lastPolledAt = now
		s.pollUser(ctx, us, now)
		s.checkDigests(ctx, us, now)
	}
}

// pollUser refreshes one user's tracked meetings and sends due pings.
func (s *Scheduler) pollUser(ctx context.Context, us *userState, now time.Time) {
	fctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	meetings, err := s.fetcher.Upcoming(fctx, us.cfg, now, now.Add(us.cfg.Lookahead()))
	cancel()
	if err != nil {
		// Stale state is retained; the next successful fetch reconciles.
		s.log.Warn("calendar fetch failed, skipping tick for user",
			zap.String("user", us.cfg.Label()),
			zap.Error(err),
		)
		return
	}

	us.tracker.Reconcile(meetings, now)
	us.tracker.Expire(now)

	for _, st := range us.tracker.DueReminders(now) {
		text := pingText(st, us.cfg, now)
		if err := s.sender.SendMessage(us.cfg.ChatID, text); err != nil {
			s.log.Error("ping delivery failed",
				zap.String("user", us.cfg.Label()),
				zap.String("title", st.Meeting.Title),
				zap.Error(err),
			)
			continue
		}
		s.log.Info("ping sent",
			zap.String("user", us.cfg.Label()),
			zap.String("title", st.Meeting.Title),
			zap.Int("ping", st.PingCount),
		)
		s.record(ctx, us.cfg.ChatID, domain.NotificationPing, st.Meeting.Title, now)
	}
}

// checkDigests sends any scheduled digest that has come due. The schedule
// is marked only after a successful send, so failures retry next tick
// within the same day.
func (s *Scheduler) checkDigests(ctx context.Context, us *userState, now time.Time) {
	localNow := now.In(us.cfg.Location())
	kinds := []struct {
		kind digest.Kind
		at   domain.TimeOfDay
	}{
		{digest.KindToday, us.cfg.DigestTimes.Today},
		{digest.KindTomorrow, us.cfg.DigestTimes.Tomorrow},
	}
	for _, k := range kinds {
		if !s.digests.Due(us.cfg.ChatID, k.kind, k.at, localNow) {
			continue
		}
		if err := s.sendDigest(ctx, us, k.kind, now); err != nil {
			s.log.Warn("scheduled digest failed",
				zap.String("user", us.cfg.Label()),
				zap.String("kind", string(k.kind)),
				zap.Error(err),
			)
			continue
		}
		s.digests.MarkSent(us.cfg.ChatID, k.kind, localNow)
	}
}

// sendDigest fetches the target day and delivers one digest message. Used
// by both the scheduled path and on-demand requests; only the scheduled
// caller updates the digest schedule.
func (s *Scheduler) sendDigest(ctx context.Context, us *userState, kind digest.Kind, now time.Time) error {
	loc := us.cfg.Location()
	day := now.In(loc)
	if kind == digest.KindTomorrow {
		day = day.AddDate(0, 0, 1)
	}

	fctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	meetings, err := s.fetcher.ForDay(fctx, us.cfg, day)
	cancel()
	if err != nil {
		return err
	}

	if err := s.sender.SendMessage(us.cfg.ChatID, digestText(kind, day, meetings, loc)); err != nil {
		return err
	}
	s.log.Info("digest sent",
		zap.String("user", us.cfg.Label()),
		zap.String("kind", string(kind)),
		zap.Int("meetings", len(meetings)),
	)
	s.record(ctx, us.cfg.ChatID, domain.NotificationDigest, string(kind), now)
	return nil
}

// handleInbound routes one user message: digest keywords trigger an
// immediate fetch-and-send, a status request reports tracked state, and
// everything else is offered to the acknowledgment matcher.
func (s *Scheduler) handleInbound(ctx context.Context, msg Inbound) {
	us, ok := s.byChat[msg.ChatID]
	if !ok {
		return
	}
	now := s.now()
	text := strings.ToLower(strings.TrimSpace(msg.Text))

	switch text {
	case "today":
		// On-demand digests bypass the schedule and never consume the
		// scheduled slot for the day.
		if err := s.sendDigest(ctx, us, digest.KindToday, now); err != nil {
			s.log.Warn("on-demand digest failed",
				zap.String("user", us.cfg.Label()), zap.Error(err))
		}
		return
	case "tomorrow":
		if err := s.sendDigest(ctx, us, digest.KindTomorrow, now); err != nil {
			s.log.Warn("on-demand digest failed",
				zap.String("user", us.cfg.Label()), zap.Error(err))
		}
		return
	case "/status":
		s.send(us.cfg.ChatID, statusText(us, s.digests))
		return
	}

	title, ok := us.tracker.Acknowledge(msg.Text, now)
	if ok {
		s.send(us.cfg.ChatID, ackConfirmedText(title))
		return
	}
	// Only answer messages that look like a confirmation attempt; staying
	// silent on other chatter keeps the DM usable as a normal channel.
	if strings.Contains(text, strings.ToLower(us.cfg.ConfirmationPhrase)) {
		s.send(us.cfg.ChatID, ackNoMatchText(us.cfg.ConfirmationPhrase))
	}
}

func (s *Scheduler) send(chatID int64, text string) {
	if err := s.sender.SendMessage(chatID, text); err != nil {
		s.log.Error("send failed", zap.Int64("chat", chatID), zap.Error(err))
	}
}

// record appends to the notification history; best-effort.
func (s *Scheduler) record(ctx context.Context, chatID int64, kind domain.NotificationKind, subject string, now time.Time) {
	if s.repo == nil {
		return
	}
	n := &domain.Notification{ChatID: chatID, Kind: kind, Subject: subject, SentAt: now}
	if err := s.repo.RecordNotification(ctx, n); err != nil {
		s.log.Warn("record notification failed", zap.Error(err))
	}
}
