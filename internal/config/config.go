package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/m-luck/meeting-pinger/internal/domain"
)

// Config holds process-wide settings loaded from environment variables
// (prefix MEETING_PINGER_). Per-user records come from UsersJSON or
// UsersFile; their zero-valued options fall back to the defaults here.
type Config struct {
	BotToken string `envconfig:"BOT_TOKEN" required:"true"`
	DBPath   string `envconfig:"DB_PATH" default:"./data/meeting-pinger.db"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"` // healthz
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`  // debug|info|warn|error

	UsersJSON string `envconfig:"USERS_JSON"` // inline JSON user array
	UsersFile string `envconfig:"USERS_FILE" default:"users.json"`

	LeadTimeMinutes     int    `envconfig:"PING_LEAD_TIME_MINUTES" default:"5"`
	PingIntervalSeconds int    `envconfig:"PING_INTERVAL_SECONDS" default:"60"`
	PollIntervalSeconds int    `envconfig:"POLL_INTERVAL_SECONDS" default:"30"`
	LookaheadMinutes    int    `envconfig:"LOOKAHEAD_MINUTES" default:"15"`
	ConfirmationPhrase  string `envconfig:"CONFIRMATION_PHRASE" default:"ok"`
	Timezone            string `envconfig:"TIMEZONE" default:"America/New_York"`
	FetchTimeoutSeconds int    `envconfig:"FETCH_TIMEOUT_SECONDS" default:"15"`

	DigestTodayTime    domain.TimeOfDay `envconfig:"DIGEST_TODAY_TIME" default:"08:00"`
	DigestTomorrowTime domain.TimeOfDay `envconfig:"DIGEST_TOMORROW_TIME" default:"22:00"`
}

// Load reads environment variables into Config.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("meeting_pinger", &cfg); err != nil {
		return cfg, err
	}
	if cfg.PollIntervalSeconds < 1 {
		return cfg, fmt.Errorf("poll interval %ds too small", cfg.PollIntervalSeconds)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return cfg, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}
	return cfg, nil
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// LoadUsers reads the per-user records, preferring inline JSON over the
// file, and resolves their defaults. Missing or empty user configuration
// is a fatal startup error.
func (c Config) LoadUsers() ([]domain.UserConfig, error) {
	raw, err := c.rawUsers()
	if err != nil {
		return nil, err
	}

	var users []domain.UserConfig
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("parse users: %w", err)
	}
	if len(users) == 0 {
		return nil, errors.New("no users configured; set MEETING_PINGER_USERS_JSON or create a users file")
	}

	for i := range users {
		if err := c.resolveUser(&users[i]); err != nil {
			return nil, fmt.Errorf("user %d: %w", i, err)
		}
	}
	return users, nil
}

func (c Config) rawUsers() ([]byte, error) {
	if c.UsersJSON != "" {
		return []byte(c.UsersJSON), nil
	}
	raw, err := os.ReadFile(c.UsersFile)
	if err != nil {
		return nil, fmt.Errorf("read users file %s: %w", c.UsersFile, err)
	}
	return raw, nil
}

func (c Config) resolveUser(u *domain.UserConfig) error {
	if u.ChatID == 0 {
		return errors.New("chat_id is required")
	}
	if u.CalendarURL == "" {
		return errors.New("calendar_url is required")
	}

	if u.ConfirmationPhrase == "" {
		u.ConfirmationPhrase = c.ConfirmationPhrase
	}
	if u.LeadTimeMinutes == 0 {
		u.LeadTimeMinutes = c.LeadTimeMinutes
	}
	if u.PingIntervalSeconds == 0 {
		u.PingIntervalSeconds = c.PingIntervalSeconds
	}
	if u.PollIntervalSeconds == 0 {
		u.PollIntervalSeconds = c.PollIntervalSeconds
	}
	if u.LookaheadMinutes == 0 {
		u.LookaheadMinutes = c.LookaheadMinutes
	}
	if u.Timezone == "" {
		u.Timezone = c.Timezone
	}
	if _, err := time.LoadLocation(u.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", u.Timezone, err)
	}
	if u.DigestTimes.Today.IsZero() {
		u.DigestTimes.Today = c.DigestTodayTime
	}
	if u.DigestTimes.Tomorrow.IsZero() {
		u.DigestTimes.Tomorrow = c.DigestTomorrowTime
	}
	return nil
}
