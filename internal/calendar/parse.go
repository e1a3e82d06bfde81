package calendar

import (
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/m-luck/meeting-pinger/internal/domain"
)

// parseEvent converts a VEVENT into a Meeting, reporting false for events
// the reminder core must never see: cancelled, all-day, declined by the
// feed owner, or missing usable times.
func parseEvent(comp *ical.Component, user domain.UserConfig) (domain.Meeting, bool) {
	if status := comp.Props.Get(ical.PropStatus); status != nil &&
		strings.EqualFold(status.Value, "CANCELLED") {
		return domain.Meeting{}, false
	}

	startProp := comp.Props.Get(ical.PropDateTimeStart)
	endProp := comp.Props.Get(ical.PropDateTimeEnd)
	if startProp == nil || endProp == nil {
		return domain.Meeting{}, false
	}
	// All-day events carry DATE values rather than DATE-TIME.
	if startProp.ValueType() == ical.ValueDate {
		return domain.Meeting{}, false
	}
	if user.Email != "" && isDeclinedBy(comp, user.Email) {
		return domain.Meeting{}, false
	}

	start, err := parseDateTime(startProp)
	if err != nil {
		return domain.Meeting{}, false
	}
	end, err := parseDateTime(endProp)
	if err != nil {
		return domain.Meeting{}, false
	}

	m := domain.Meeting{
		Title:     "(No title)",
		StartTime: start,
		EndTime:   end,
	}
	if uid := comp.Props.Get(ical.PropUID); uid != nil {
		m.ID = uid.Value
	}
	if summary := comp.Props.Get(ical.PropSummary); summary != nil && summary.Value != "" {
		m.Title = summary.Value
	}
	return m, true
}

// isDeclinedBy reports whether the attendee matching email has
// PARTSTAT=DECLINED.
func isDeclinedBy(comp *ical.Component, email string) bool {
	for _, att := range comp.Props.Values(ical.PropAttendee) {
		addr := strings.TrimPrefix(strings.ToLower(att.Value), "mailto:")
		if addr != strings.ToLower(email) {
			continue
		}
		if strings.EqualFold(att.Params.Get(ical.ParamParticipationStatus), "DECLINED") {
			return true
		}
	}
	return false
}

// parseDateTime resolves a DATE-TIME property, trying the library's TZID
// handling first and falling back to the raw formats feeds use in the wild.
func parseDateTime(prop *ical.Prop) (time.Time, error) {
	if t, err := prop.DateTime(time.UTC); err == nil {
		return t, nil
	}

	formats := []string{
		"20060102T150405Z",
		"20060102T150405",
		time.RFC3339,
		"2006-01-02T15:04:05",
	}
	var lastErr error
	for _, layout := range formats {
		t, err := time.ParseInLocation(layout, prop.Value, time.UTC)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
