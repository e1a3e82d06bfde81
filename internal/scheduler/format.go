package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/m-luck/meeting-pinger/internal/digest"
	"github.com/m-luck/meeting-pinger/internal/domain"
)

func pingText(st *domain.ReminderState, cfg domain.UserConfig, now time.Time) string {
	minutes := int(st.Meeting.StartTime.Sub(now).Minutes())

	var when string
	switch {
	case minutes > 0:
		when = fmt.Sprintf("starts in %d %s", minutes, plural("minute", minutes))
	case minutes == 0:
		when = "is starting NOW"
	default:
		when = fmt.Sprintf("started %d %s ago", -minutes, plural("minute", -minutes))
	}

	return fmt.Sprintf(
		"Meeting reminder (ping #%d)\n%s %s.\nReply \"%s for %s\" to stop pinging.",
		st.PingCount, st.Meeting.Title, when,
		cfg.ConfirmationPhrase, st.Meeting.Title,
	)
}

func digestText(kind digest.Kind, day time.Time, meetings []domain.Meeting, loc *time.Location) string {
	var header string
	switch kind {
	case digest.KindTomorrow:
		header = fmt.Sprintf("Tomorrow's meetings (%s)", day.Format("Monday, Jan 2"))
	default:
		header = fmt.Sprintf("Today's meetings (%s)", day.Format("Monday, Jan 2"))
	}

	if len(meetings) == 0 {
		return header + "\nNo meetings scheduled."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your first meeting is at %s\n\n", meetings[0].StartTime.In(loc).Format("3:04 PM"))
	b.WriteString(header)
	for _, m := range meetings {
		fmt.Fprintf(&b, "\n  %s - %s  %s",
			m.StartTime.In(loc).Format("3:04 PM"),
			m.EndTime.In(loc).Format("3:04 PM"),
			m.Title,
		)
	}
	return b.String()
}

func ackConfirmedText(title string) string {
	return fmt.Sprintf("Got it. Stopping pings for %q.", title)
}

func ackNoMatchText(phrase string) string {
	return fmt.Sprintf("No active meeting matched. Try \"%s for <part of the meeting name>\".", phrase)
}

func statusText(us *userState, digests *digest.Schedule) string {
	loc := us.cfg.Location()
	states := us.tracker.States()

	var b strings.Builder
	b.WriteString("Tracked meetings:")
	if len(states) == 0 {
		b.WriteString(" none")
	}
	for _, st := range states {
		fmt.Fprintf(&b, "\n  %s  %s [%s, %d pings]",
			st.Meeting.StartTime.In(loc).Format("3:04 PM"),
			st.Meeting.Title, st.Phase, st.PingCount,
		)
	}

	b.WriteString("\nDigests sent:")
	for _, kind := range []digest.Kind{digest.KindToday, digest.KindTomorrow} {
		last, ok := digests.LastSent(us.cfg.ChatID, kind)
		if !ok {
			last = "never"
		}
		fmt.Fprintf(&b, "\n  %s: %s", kind, last)
	}
	return b.String()
}

func plural(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
