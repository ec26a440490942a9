package config

import (
	"errors"
	"fmt"
	"time"

	"rallybot/internal/schedule"
)

// Defaults applied when the corresponding config field is omitted.
const (
	DefaultTimezone       = "Europe/Belgrade"
	DefaultAnnounce       = "-1d"
	DefaultCancelDeadline = "-1d 12:00"
	DefaultReminder       = "-2h"
	DefaultScanInterval   = time.Minute
	DefaultCourts         = 1
	DefaultPollTimeout    = 10 * time.Second
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Games    GamesConfig    `json:"games"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// ChatID is the group where games are announced.
	ChatID       int64   `json:"chat_id"`
	AdminUserIDs []int64 `json:"admin_user_ids"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// GamesConfig holds the scheduling knobs. Deadline fields use offset
// notation relative to game start: "-<n>d" or "-<n>h", optionally followed
// by a local time of day ("-1d 12:00").
type GamesConfig struct {
	Timezone       string `json:"timezone,omitempty"`
	Announce       string `json:"announce,omitempty"`
	CancelDeadline string `json:"cancel_deadline,omitempty"`
	Reminder       string `json:"reminder,omitempty"`
	// ScanInterval is a Go duration string controlling the periodic scan.
	ScanInterval  string `json:"scan_interval,omitempty"`
	DefaultCourts int    `json:"default_courts,omitempty"`
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Deadlines resolves the configured (or default) deadline set.
func (g GamesConfig) Deadlines() (schedule.Deadlines, error) {
	return schedule.ParseDeadlines(
		orDefault(g.Timezone, DefaultTimezone),
		orDefault(g.Announce, DefaultAnnounce),
		orDefault(g.CancelDeadline, DefaultCancelDeadline),
		orDefault(g.Reminder, DefaultReminder),
	)
}

func (g GamesConfig) ScanIntervalValue() (time.Duration, error) {
	return ParseDurationOrDefault("games.scan_interval", g.ScanInterval, DefaultScanInterval)
}

func (g GamesConfig) DefaultCourtsValue() int {
	if g.DefaultCourts <= 0 {
		return DefaultCourts
	}
	return g.DefaultCourts
}

func (t TelegramConfig) PollTimeoutValue() (time.Duration, error) {
	return ParseDurationOrDefault("telegram.poll_timeout", t.PollTimeout, DefaultPollTimeout)
}

// Validate checks everything that can be checked without network access.
// It runs both at startup and before committing a hot reload.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Telegram.Token == "" {
		return errors.New("telegram.token is required")
	}
	if cfg.Telegram.ChatID == 0 {
		return errors.New("telegram.chat_id is required")
	}
	if cfg.Storage.Path == "" {
		return errors.New("storage.path is required")
	}
	if _, err := cfg.Telegram.PollTimeoutValue(); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := cfg.Games.Deadlines(); err != nil {
		return fmt.Errorf("games: %w", err)
	}
	if _, err := cfg.Games.ScanIntervalValue(); err != nil {
		return err
	}
	return nil
}
