package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/m-luck/meeting-pinger/internal/digest"
	"github.com/m-luck/meeting-pinger/internal/domain"
)

type fakeFetcher struct {
	upcoming map[int64][]domain.Meeting
	forDay   map[int64][]domain.Meeting
	fail     map[int64]bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		upcoming: make(map[int64][]domain.Meeting),
		forDay:   make(map[int64][]domain.Meeting),
		fail:     make(map[int64]bool),
	}
}

func (f *fakeFetcher) Upcoming(_ context.Context, user domain.UserConfig, _, _ time.Time) ([]domain.Meeting, error) {
	if f.fail[user.ChatID] {
		return nil, errors.New("calendar unreachable")
	}
	return f.upcoming[user.ChatID], nil
}

func (f *fakeFetcher) ForDay(_ context.Context, user domain.UserConfig, _ time.Time) ([]domain.Meeting, error) {
	if f.fail[user.ChatID] {
		return nil, errors.New("calendar unreachable")
	}
	return f.forDay[user.ChatID], nil
}

type sentMsg struct {
	chatID int64
	text   string
}

type fakeSender struct {
	sent []sentMsg
	fail bool
}

func (s *fakeSender) SendMessage(chatID int64, text string) error {
	if s.fail {
		return errors.New("transport down")
	}
	s.sent = append(s.sent, sentMsg{chatID, text})
	return nil
}

func (s *fakeSender) texts(chatID int64) []string {
	var out []string
	for _, m := range s.sent {
		if m.chatID == chatID {
			out = append(out, m.text)
		}
	}
	return out
}

func schedUser(chatID int64) domain.UserConfig {
	return domain.UserConfig{
		ChatID:              chatID,
		CalendarURL:         "https://calendar.example/feed.ics",
		ConfirmationPhrase:  "ok",
		LeadTimeMinutes:     5,
		PingIntervalSeconds: 60,
		PollIntervalSeconds: 30,
		LookaheadMinutes:    15,
		Timezone:            "UTC",
		// Late enough to stay out of the way; digest tests override.
		DigestTimes: domain.DigestTimes{
			Today:    domain.TimeOfDay{Hour: 23, Minute: 58},
			Tomorrow: domain.TimeOfDay{Hour: 23, Minute: 59},
		},
	}
}

func withDigestTimes(u domain.UserConfig) domain.UserConfig {
	u.DigestTimes = domain.DigestTimes{
		Today:    domain.TimeOfDay{Hour: 8},
		Tomorrow: domain.TimeOfDay{Hour: 22},
	}
	return u
}

func newTestScheduler(users []domain.UserConfig, f Fetcher, snd Sender) *Scheduler {
	return New(Params{
		Users:        users,
		Fetcher:      f,
		Sender:       snd,
		Log:          zap.NewNop(),
		TickInterval: 30 * time.Second,
		FetchTimeout: time.Second,
	})
}

func utc(hh, mm, ss int) time.Time {
	return time.Date(2026, time.January, 9, hh, mm, ss, 0, time.UTC)
}

func TestScheduler_PingLifecycle(t *testing.T) {
	f := newFakeFetcher()
	snd := &fakeSender{}
	s := newTestScheduler([]domain.UserConfig{schedUser(1)}, f, snd)
	ctx := context.Background()

	f.upcoming[1] = []domain.Meeting{{
		ID:        "evt-standup",
		Title:     "Team Standup",
		StartTime: utc(10, 0, 0),
		EndTime:   utc(10, 30, 0),
	}}

	// 09:54: tracked but not yet due.
	s.now = func() time.Time { return utc(9, 54, 0) }
	s.tick(ctx)
	assert.Empty(t, snd.sent)

	// 09:55: first ping.
	s.now = func() time.Time { return utc(9, 55, 0) }
	s.tick(ctx)
	require.Len(t, snd.sent, 1)
	assert.Contains(t, snd.sent[0].text, "Team Standup")
	assert.Contains(t, snd.sent[0].text, "ping #1")
	assert.Contains(t, snd.sent[0].text, "starts in 5 minutes")

	// 30 seconds later, still inside the 60s ping interval; nothing new.
	s.now = func() time.Time { return utc(9, 55, 30) }
	s.tick(ctx)
	assert.Len(t, snd.sent, 1)

	// 09:56: acknowledgment stops the pings.
	s.now = func() time.Time { return utc(9, 56, 0) }
	s.handleInbound(ctx, Inbound{ChatID: 1, Text: "ok for standup"})
	require.Len(t, snd.sent, 2)
	assert.Contains(t, snd.sent[1].text, "Got it")

	// 09:57 and beyond: silence.
	s.now = func() time.Time { return utc(9, 57, 0) }
	s.tick(ctx)
	s.now = func() time.Time { return utc(9, 58, 0) }
	s.tick(ctx)
	assert.Len(t, snd.sent, 2)
}

func TestScheduler_RepeatPingsUntilEnd(t *testing.T) {
	f := newFakeFetcher()
	snd := &fakeSender{}
	s := newTestScheduler([]domain.UserConfig{schedUser(1)}, f, snd)
	ctx := context.Background()

	f.upcoming[1] = []domain.Meeting{{
		ID:        "evt-standup",
		Title:     "Team Standup",
		StartTime: utc(10, 0, 0),
		EndTime:   utc(10, 2, 0),
	}}

	s.now = func() time.Time { return utc(9, 55, 0) }
	s.tick(ctx)
	s.now = func() time.Time { return utc(9, 56, 0) }
	s.tick(ctx)
	require.Len(t, snd.sent, 2)
	assert.Contains(t, snd.sent[1].text, "ping #2")

	// Past the end: expired, no more pings ever.
	s.now = func() time.Time { return utc(10, 3, 0) }
	s.tick(ctx)
	s.now = func() time.Time { return utc(10, 4, 0) }
	s.tick(ctx)
	assert.Len(t, snd.sent, 2)
}

func TestScheduler_FetchFailureIsolatedPerUser(t *testing.T) {
	f := newFakeFetcher()
	snd := &fakeSender{}
	users := []domain.UserConfig{schedUser(1), schedUser(2)}
	s := newTestScheduler(users, f, snd)
	ctx := context.Background()

	meeting := domain.Meeting{
		ID:        "evt-sync",
		Title:     "Design Sync",
		StartTime: utc(10, 0, 0),
		EndTime:   utc(10, 30, 0),
	}
	f.upcoming[1] = []domain.Meeting{meeting}
	f.upcoming[2] = []domain.Meeting{meeting}
	f.fail[1] = true

	s.now = func() time.Time { return utc(9, 56, 0) }
	s.tick(ctx)

	assert.Empty(t, snd.texts(1))
	require.Len(t, snd.texts(2), 1)

	// User 1 recovers on the next successful fetch.
	f.fail[1] = false
	s.now = func() time.Time { return utc(9, 57, 0) }
	s.tick(ctx)
	assert.Len(t, snd.texts(1), 1)
}

func TestScheduler_ScheduledDigestOncePerDay(t *testing.T) {
	f := newFakeFetcher()
	snd := &fakeSender{}
	s := newTestScheduler([]domain.UserConfig{withDigestTimes(schedUser(1))}, f, snd)
	ctx := context.Background()

	f.forDay[1] = []domain.Meeting{{
		ID:        "evt-standup",
		Title:     "Team Standup",
		StartTime: utc(10, 0, 0),
		EndTime:   utc(10, 30, 0),
	}}

	s.now = func() time.Time { return utc(8, 0, 15) }
	s.tick(ctx)
	require.Len(t, snd.sent, 1)
	assert.Contains(t, snd.sent[0].text, "Today's meetings")
	assert.Contains(t, snd.sent[0].text, "Team Standup")

	// Same day, later ticks: no repeat.
	s.now = func() time.Time { return utc(9, 0, 0) }
	s.tick(ctx)
	assert.Len(t, snd.sent, 1)

	// The evening digest is its own slot.
	s.now = func() time.Time { return utc(22, 0, 5) }
	s.tick(ctx)
	require.Len(t, snd.sent, 2)
	assert.Contains(t, snd.sent[1].text, "Tomorrow's meetings")
}

func TestScheduler_FailedDigestRetriesSameDay(t *testing.T) {
	f := newFakeFetcher()
	snd := &fakeSender{}
	s := newTestScheduler([]domain.UserConfig{withDigestTimes(schedUser(1))}, f, snd)
	ctx := context.Background()

	snd.fail = true
	s.now = func() time.Time { return utc(8, 0, 15) }
	s.tick(ctx)
	assert.Empty(t, snd.sent)

	// Delivery failure must not consume the daily slot.
	snd.fail = false
	s.now = func() time.Time { return utc(8, 1, 0) }
	s.tick(ctx)
	require.Len(t, snd.sent, 1)
	assert.Contains(t, snd.sent[0].text, "No meetings scheduled")
}

func TestScheduler_OnDemandDigestKeepsScheduledSlot(t *testing.T) {
	f := newFakeFetcher()
	snd := &fakeSender{}
	s := newTestScheduler([]domain.UserConfig{withDigestTimes(schedUser(1))}, f, snd)
	ctx := context.Background()

	// 06:30, before the scheduled time: "today" answers immediately.
	s.now = func() time.Time { return utc(6, 30, 0) }
	s.handleInbound(ctx, Inbound{ChatID: 1, Text: "today"})
	require.Len(t, snd.sent, 1)
	assert.Contains(t, snd.sent[0].text, "Today's meetings")

	// Unlimited on-demand requests.
	s.handleInbound(ctx, Inbound{ChatID: 1, Text: "TOMORROW"})
	require.Len(t, snd.sent, 2)
	assert.Contains(t, snd.sent[1].text, "Tomorrow's meetings")

	// The scheduled 08:00 digest still fires.
	s.now = func() time.Time { return utc(8, 0, 10) }
	s.tick(ctx)
	assert.Len(t, snd.sent, 3)
}

func TestScheduler_PerUserPollInterval(t *testing.T) {
	f := newFakeFetcher()
	snd := &fakeSender{}
	slow := schedUser(1)
	slow.PollIntervalSeconds = 120
	s := newTestScheduler([]domain.UserConfig{slow}, f, snd)
	ctx := context.Background()

	f.upcoming[1] = []domain.Meeting{{
		ID:        "evt-standup",
		Title:     "Team Standup",
		StartTime: utc(10, 0, 0),
		EndTime:   utc(10, 30, 0),
	}}

	s.now = func() time.Time { return utc(9, 55, 0) }
	s.tick(ctx)
	require.Len(t, snd.sent, 1)

	// 60s later the process ticks, but this user's 120s interval gates it.
	s.now = func() time.Time { return utc(9, 56, 0) }
	s.tick(ctx)
	assert.Len(t, snd.sent, 1)

	s.now = func() time.Time { return utc(9, 57, 0) }
	s.tick(ctx)
	assert.Len(t, snd.sent, 2)
}

func TestScheduler_InboundNoMatchReply(t *testing.T) {
	f := newFakeFetcher()
	snd := &fakeSender{}
	s := newTestScheduler([]domain.UserConfig{schedUser(1)}, f, snd)
	ctx := context.Background()

	s.now = func() time.Time { return utc(9, 56, 0) }

	// Looks like a confirmation attempt: gets a hint back.
	s.handleInbound(ctx, Inbound{ChatID: 1, Text: "ok for nothing scheduled"})
	require.Len(t, snd.sent, 1)
	assert.Contains(t, snd.sent[0].text, "No active meeting matched")

	// Plain chatter is ignored.
	s.handleInbound(ctx, Inbound{ChatID: 1, Text: "see you at lunch"})
	assert.Len(t, snd.sent, 1)

	// Unconfigured chats are ignored entirely.
	s.handleInbound(ctx, Inbound{ChatID: 99, Text: "ok for anything"})
	assert.Len(t, snd.sent, 1)
}

func TestScheduler_StatusReport(t *testing.T) {
	f := newFakeFetcher()
	snd := &fakeSender{}
	s := newTestScheduler([]domain.UserConfig{schedUser(1)}, f, snd)
	ctx := context.Background()

	f.upcoming[1] = []domain.Meeting{{
		ID:        "evt-standup",
		Title:     "Team Standup",
		StartTime: utc(10, 0, 0),
		EndTime:   utc(10, 30, 0),
	}}
	s.now = func() time.Time { return utc(9, 56, 0) }
	s.tick(ctx)
	require.Len(t, snd.sent, 1)

	s.handleInbound(ctx, Inbound{ChatID: 1, Text: "/status"})
	require.Len(t, snd.sent, 2)
	status := snd.sent[1].text
	assert.Contains(t, status, "Team Standup")
	assert.Contains(t, status, string(domain.PhaseActive))
	assert.Contains(t, status, string(digest.KindToday))
}

func TestScheduler_RunStopsOnContextCancel(t *testing.T) {
	f := newFakeFetcher()
	snd := &fakeSender{}
	s := newTestScheduler([]domain.UserConfig{schedUser(1)}, f, snd)
	s.tickInterval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestPingText_TimePhrasing(t *testing.T) {
	cfg := schedUser(1)
	st := &domain.ReminderState{
		Meeting: domain.Meeting{
			Title:     "Team Standup",
			StartTime: utc(10, 0, 0),
			EndTime:   utc(10, 30, 0),
		},
		PingCount: 3,
	}

	assert.Contains(t, pingText(st, cfg, utc(9, 55, 0)), "starts in 5 minutes")
	assert.Contains(t, pingText(st, cfg, utc(9, 59, 0)), "starts in 1 minute")
	assert.Contains(t, pingText(st, cfg, utc(10, 0, 0)), "is starting NOW")
	assert.Contains(t, pingText(st, cfg, utc(10, 1, 0)), "started 1 minute ago")
	assert.Contains(t, pingText(st, cfg, utc(10, 7, 0)), "started 7 minutes ago")
	assert.Contains(t, pingText(st, cfg, utc(9, 55, 0)), `"ok for Team Standup"`)
}

func TestDigestText_Format(t *testing.T) {
	day := utc(10, 0, 0)
	meetings := []domain.Meeting{
		{Title: "Team Standup", StartTime: utc(10, 0, 0), EndTime: utc(10, 30, 0)},
		{Title: "Design Sync", StartTime: utc(15, 0, 0), EndTime: utc(15, 30, 0)},
	}

	text := digestText(digest.KindToday, day, meetings, time.UTC)
	lines := strings.Split(text, "\n")
	assert.Equal(t, "Your first meeting is at 10:00 AM", lines[0])
	assert.Contains(t, text, "Today's meetings (Friday, Jan 9)")
	assert.Contains(t, text, "10:00 AM - 10:30 AM  Team Standup")
	assert.Contains(t, text, "3:00 PM - 3:30 PM  Design Sync")

	empty := digestText(digest.KindTomorrow, day, nil, time.UTC)
	assert.Contains(t, empty, "Tomorrow's meetings")
	assert.Contains(t, empty, "No meetings scheduled.")
}
