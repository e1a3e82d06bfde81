package calendar

import (
	"time"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"github.com/m-luck/meeting-pinger/internal/domain"
)

// expandOccurrences resolves the occurrences of an event overlapping the
// [from, to) window. A non-recurring event yields itself when it overlaps;
// a recurring one is expanded through its RRULE with EXDATE occurrences
// removed. Each expanded occurrence gets the base UID suffixed with its
// start instant, so every occurrence is tracked and acknowledged on its own.
func expandOccurrences(comp *ical.Component, base domain.Meeting, from, to time.Time) ([]domain.Meeting, error) {
	roption, err := comp.Props.RecurrenceRule()
	if err != nil {
		return nil, err
	}
	if roption == nil {
		if base.Overlaps(from, to) {
			return []domain.Meeting{base}, nil
		}
		return nil, nil
	}

	duration := base.EndTime.Sub(base.StartTime)
	roption.Dtstart = base.StartTime
	rule, err := rrule.NewRRule(*roption)
	if err != nil {
		return nil, err
	}

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range comp.Props.Values(ical.PropExceptionDates) {
		t, err := parseDateTime(&ex)
		if err != nil {
			continue
		}
		set.ExDate(t)
	}

	// An occurrence that started before the window can still be running.
	var out []domain.Meeting
	for _, start := range set.Between(from.Add(-duration), to, true) {
		occ := base
		occ.StartTime = start
		occ.EndTime = start.Add(duration)
		if !occ.Overlaps(from, to) {
			continue
		}
		if base.ID != "" {
			occ.ID = base.ID + "-" + start.UTC().Format(time.RFC3339)
		}
		out = append(out, occ)
	}
	return out, nil
}
