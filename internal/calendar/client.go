// Package calendar fetches a user's meetings from their iCal feed. It is
// the event snapshot boundary: cancelled, declined and all-day events are
// filtered here so the reminder core only ever sees meetings it may ping.
package calendar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"go.uber.org/zap"

	"github.com/m-luck/meeting-pinger/internal/domain"
)

// Client fetches and decodes iCal feeds over HTTP. Safe for use from a
// single goroutine per call; the http.Client is shared.
type Client struct {
	httpc *http.Client
	log   *zap.Logger
}

func NewClient(log *zap.Logger) *Client {
	return &Client{
		httpc: &http.Client{},
		log:   log,
	}
}

// Upcoming returns the user's meetings overlapping [from, to), recurring
// events expanded into their occurrences, ordered by start time. The context
// bounds the whole fetch; a timeout is reported as an ordinary fetch error
// and the caller retries next tick.
func (c *Client) Upcoming(ctx context.Context, user domain.UserConfig, from, to time.Time) ([]domain.Meeting, error) {
	meetings, err := c.fetch(ctx, user, from, to)
	if err != nil {
		return nil, err
	}
	// Feeds carry no ordering guarantee; the tracker and the digest both
	// expect chronological order.
	sort.Slice(meetings, func(i, j int) bool {
		return meetings[i].StartTime.Before(meetings[j].StartTime)
	})
	c.log.Debug("fetched upcoming meetings",
		zap.String("user", user.Label()),
		zap.Int("in_window", len(meetings)),
	)
	return meetings, nil
}

// ForDay returns the user's meetings for the civil day containing day,
// evaluated in the user's zone.
func (c *Client) ForDay(ctx context.Context, user domain.UserConfig, day time.Time) ([]domain.Meeting, error) {
	loc := user.Location()
	local := day.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return c.Upcoming(ctx, user, start, start.AddDate(0, 0, 1))
}

func (c *Client) fetch(ctx context.Context, user domain.UserConfig, from, to time.Time) ([]domain.Meeting, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, user.CalendarURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch calendar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch calendar: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read calendar body: %w", err)
	}
	if err := validateFeed(string(body)); err != nil {
		return nil, err
	}
	return decodeMeetings(strings.NewReader(string(body)), user, from, to)
}

// validateFeed rejects responses that are clearly not iCalendar data, most
// commonly an HTML login page from a feed URL that requires auth.
func validateFeed(body string) error {
	trimmed := strings.TrimSpace(body)
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "<!DOCTYPE") || strings.HasPrefix(upper, "<HTML") {
		return fmt.Errorf("feed returned HTML instead of iCalendar data; check whether the URL requires authentication")
	}
	if !strings.HasPrefix(trimmed, "BEGIN:VCALENDAR") {
		preview := trimmed
		if len(preview) > 80 {
			preview = preview[:80]
		}
		return fmt.Errorf("invalid iCalendar feed, expected BEGIN:VCALENDAR, got: %s", preview)
	}
	return nil
}

func decodeMeetings(r io.Reader, user domain.UserConfig, from, to time.Time) ([]domain.Meeting, error) {
	dec := ical.NewDecoder(r)
	var meetings []domain.Meeting
	seen := make(map[string]bool)

	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode calendar: %w", err)
		}
		for _, comp := range cal.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			base, ok := parseEvent(comp, user)
			if !ok {
				continue
			}
			occurrences, err := expandOccurrences(comp, base, from, to)
			if err != nil {
				// A malformed RRULE spoils one event, not the feed.
				continue
			}
			for _, m := range occurrences {
				if m.ID == "" {
					// Stable fallback when the feed omits UID; per occurrence,
					// so recurring events without UID still get distinct IDs.
					m.ID = m.StartTime.UTC().Format(time.RFC3339) + "-" + m.Title
				}
				if seen[m.ID] {
					continue
				}
				seen[m.ID] = true
				meetings = append(meetings, m)
			}
		}
	}
	return meetings, nil
}
