package domain

import (
	"strconv"
	"time"
)

// DigestTimes holds the wall-clock triggers for the two daily digests.
type DigestTimes struct {
	Today    TimeOfDay `json:"today"`
	Tomorrow TimeOfDay `json:"tomorrow"`
}

// UserConfig describes one watched user. Loaded once at startup, immutable
// for the life of the process. Zero-valued options are resolved against
// process-wide defaults by config.Load.
type UserConfig struct {
	ChatID      int64  `json:"chat_id"`
	CalendarURL string `json:"calendar_url"`
	Name        string `json:"name"`
	// Email identifies the user in ATTENDEE lines of their own feed; used
	// to detect declined events. Decline filtering is skipped when empty.
	Email string `json:"email,omitempty"`

	ConfirmationPhrase  string      `json:"confirmation_phrase"`
	LeadTimeMinutes     int         `json:"lead_time_minutes"`
	PingIntervalSeconds int         `json:"ping_interval_seconds"`
	PollIntervalSeconds int         `json:"poll_interval_seconds"`
	LookaheadMinutes    int         `json:"lookahead_minutes"`
	Timezone            string      `json:"timezone"`
	DigestTimes         DigestTimes `json:"digest_times"`
}

// Label returns the name for log lines, falling back to the chat ID.
func (u UserConfig) Label() string {
	if u.Name != "" {
		return u.Name
	}
	return strconv.FormatInt(u.ChatID, 10)
}

func (u UserConfig) LeadTime() time.Duration {
	return time.Duration(u.LeadTimeMinutes) * time.Minute
}

func (u UserConfig) PingInterval() time.Duration {
	return time.Duration(u.PingIntervalSeconds) * time.Second
}

func (u UserConfig) PollInterval() time.Duration {
	return time.Duration(u.PollIntervalSeconds) * time.Second
}

func (u UserConfig) Lookahead() time.Duration {
	return time.Duration(u.LookaheadMinutes) * time.Minute
}

// Location resolves the user's IANA zone, falling back to UTC. The zone is
// validated at config load, so the fallback only matters for hand-built
// test fixtures.
func (u UserConfig) Location() *time.Location {
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
