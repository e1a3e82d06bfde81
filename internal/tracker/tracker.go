// Package tracker owns the set of meetings currently eligible for reminding
// for a single user, their ping state, and the transition rules between
// lifecycle phases. It is not safe for concurrent use; the scheduler loop
// is its only caller and serializes every call.
package tracker

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/m-luck/meeting-pinger/internal/domain"
)

// Tracker holds the reminder state for one user's meetings, keyed by the
// calendar-provided meeting ID.
type Tracker struct {
	user    domain.UserConfig
	log     *zap.Logger
	tracked map[string]*domain.ReminderState
}

func New(user domain.UserConfig, log *zap.Logger) *Tracker {
	return &Tracker{
		user:    user,
		log:     log.With(zap.String("user", user.Label())),
		tracked: make(map[string]*domain.ReminderState),
	}
}

// Reconcile merges a freshly fetched meeting set into the tracked state.
// Unseen meetings start as pending, or directly as active when their
// lead-time threshold has already passed at first observation (a meeting
// starting in 2 minutes with a 5-minute lead must not be missed because it
// was just discovered). Already-tracked meetings are updated in place so
// ping counts and acknowledgment are preserved. Meetings absent from the
// fetch stay tracked until they expire by end time; a transient fetch gap
// must not lose an in-flight reminder.
//
// Ended acknowledged states and expired states are garbage collected at the
// end of reconciliation. An acknowledged meeting is retained until it ends:
// it is still inside the fetch window, and dropping it early would let the
// next fetch resurrect it as a fresh pending state and ping again.
func (t *Tracker) Reconcile(fetched []domain.Meeting, now time.Time) {
	for _, m := range fetched {
		if st, ok := t.tracked[m.ID]; ok {
			st.Meeting = m
			continue
		}
		phase := domain.PhasePending
		if !now.Before(m.StartTime.Add(-t.user.LeadTime())) {
			phase = domain.PhaseActive
		}
		t.tracked[m.ID] = &domain.ReminderState{Meeting: m, Phase: phase}
		t.log.Info("tracking meeting",
			zap.String("title", m.Title),
			zap.Time("start", m.StartTime),
			zap.String("phase", string(phase)),
		)
	}

	for id, st := range t.tracked {
		switch st.Phase {
		case domain.PhaseExpired:
			delete(t.tracked, id)
		case domain.PhaseAcknowledged:
			if now.After(st.Meeting.EndTime) {
				delete(t.tracked, id)
			}
		}
	}
}

// Expire transitions pending and active meetings whose end time has passed
// to expired, independent of acknowledgment. Runs before DueReminders on
// every tick so an ended meeting is never pinged again.
func (t *Tracker) Expire(now time.Time) {
	for _, st := range t.tracked {
		if st.Phase != domain.PhasePending && st.Phase != domain.PhaseActive {
			continue
		}
		if now.After(st.Meeting.EndTime) {
			st.Phase = domain.PhaseExpired
			t.log.Info("meeting expired", zap.String("title", st.Meeting.Title))
		}
	}
}

// DueReminders promotes pending meetings past their lead-time threshold to
// active and returns the active states whose ping interval has elapsed (or
// that have never been pinged), ordered by start time. LastPingAt and
// PingCount are updated for each returned state, so the caller must invoke
// this at most once per tick and send a ping for every returned state.
func (t *Tracker) DueReminders(now time.Time) []*domain.ReminderState {
	lead := t.user.LeadTime()
	interval := t.user.PingInterval()

	var due []*domain.ReminderState
	for _, st := range t.tracked {
		if st.Phase == domain.PhasePending && !now.Before(st.Meeting.StartTime.Add(-lead)) {
			st.Phase = domain.PhaseActive
		}
		if st.Phase != domain.PhaseActive {
			continue
		}
		// Expire owns the terminal transition, but never ping past the end
		// even when called out of order.
		if now.After(st.Meeting.EndTime) {
			continue
		}
		// A meeting rescheduled to a later slot drops back out of its ping
		// window even though it is already active.
		if now.Before(st.Meeting.StartTime.Add(-lead)) {
			continue
		}
		if st.LastPingAt != nil && now.Sub(*st.LastPingAt) < interval {
			continue
		}
		at := now
		st.LastPingAt = &at
		st.PingCount++
		due = append(due, st)
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].Meeting.StartTime.Before(due[j].Meeting.StartTime)
	})
	return due
}

// Acknowledge matches an inbound message against the active meetings and,
// on a match, retires that meeting from pinging. At most one meeting is
// acknowledged per message even when the text could match several; the
// matcher's tie-break picks the winner. Returns the matched title. A false
// result is a normal outcome, not an error.
func (t *Tracker) Acknowledge(text string, now time.Time) (string, bool) {
	var active []*domain.ReminderState
	for _, st := range t.tracked {
		if st.Phase == domain.PhaseActive {
			active = append(active, st)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].Meeting.StartTime.Before(active[j].Meeting.StartTime)
	})

	meetings := make([]domain.Meeting, len(active))
	for i, st := range active {
		meetings[i] = st.Meeting
	}

	idx := domain.MatchMeeting(text, t.user.ConfirmationPhrase, meetings)
	if idx < 0 {
		return "", false
	}
	st := active[idx]
	st.Phase = domain.PhaseAcknowledged
	t.log.Info("meeting acknowledged", zap.String("title", st.Meeting.Title))
	return st.Meeting.Title, true
}

// States returns a copy of the tracked states ordered by start time, for
// status reporting.
func (t *Tracker) States() []domain.ReminderState {
	out := make([]domain.ReminderState, 0, len(t.tracked))
	for _, st := range t.tracked {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Meeting.StartTime.Before(out[j].Meeting.StartTime)
	})
	return out
}
