// Package config loads and watches the snusd YAML configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
)

type Config struct {
	Log         LogConfig         `yaml:"log"`
	Prefs       PrefsConfig       `yaml:"prefs"`
	Journal     JournalConfig     `yaml:"journal"`
	Sink        SinkConfig        `yaml:"sink"`
	Reminder    ReminderConfig    `yaml:"reminder"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

type LogConfig struct {
	Level   string  `yaml:"level"`   // TRACE..ERROR, default INFO
	Console *bool   `yaml:"console"` // default true
	File    FileLog `yaml:"file"`
}

type FileLog struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type PrefsConfig struct {
	Driver      string `yaml:"driver"` // "file" or "sqlite"
	Path        string `yaml:"path"`
	BusyTimeout string `yaml:"busy_timeout"` // Go duration string (sqlite)
}

type JournalConfig struct {
	Path        string `yaml:"path"`
	PhotoDir    string `yaml:"photo_dir"`
	BusyTimeout string `yaml:"busy_timeout"`
}

// SinkConfig selects how reminders reach the user.
type SinkConfig struct {
	Kind     string       `yaml:"kind"` // "console" or "telegram"
	Telegram TelegramSink `yaml:"telegram"`
}

// TelegramSink configures the Telegram delivery channel.
//
// Token may be left empty; it then falls back to the TELEGRAM_TOKEN
// environment variable (do not commit tokens to the config file).
type TelegramSink struct {
	Token       string `yaml:"token"`
	ChatID      int64  `yaml:"chat_id"`
	PollTimeout string `yaml:"poll_timeout"` // Go duration string
	RatePerSec  int    `yaml:"rate_per_sec"`
}

// ReminderConfig carries the static notification payload.
type ReminderConfig struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
	Icon  string `yaml:"icon"`
}

// MaintenanceConfig controls the background housekeeping jobs.
//
// Both specs are standard 5-field cron expressions.
type MaintenanceConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ReprimeCron string `yaml:"reprime_cron"` // default "15 0 * * *"
	SweepCron   string `yaml:"sweep_cron"`   // default "0 * * * *"
}

// Normalize fills defaults in place.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = "INFO"
	}
	if c.Log.Console == nil {
		v := true
		c.Log.Console = &v
	}
	if strings.TrimSpace(c.Prefs.Driver) == "" {
		c.Prefs.Driver = "sqlite"
	}
	if strings.TrimSpace(c.Prefs.Path) == "" {
		c.Prefs.Path = "./data/snusd.db"
	}
	if strings.TrimSpace(c.Journal.Path) == "" {
		c.Journal.Path = "./data/journal.db"
	}
	if strings.TrimSpace(c.Sink.Kind) == "" {
		c.Sink.Kind = "console"
	}
	if c.Sink.Telegram.RatePerSec <= 0 {
		c.Sink.Telegram.RatePerSec = 3
	}
	if strings.TrimSpace(c.Maintenance.ReprimeCron) == "" {
		c.Maintenance.ReprimeCron = "15 0 * * *"
	}
	if strings.TrimSpace(c.Maintenance.SweepCron) == "" {
		c.Maintenance.SweepCron = "0 * * * *"
	}
}

// Validate rejects configs that cannot be wired.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Prefs.Driver)) {
	case "", "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("prefs.driver: unknown driver %q", c.Prefs.Driver)
	}
	switch strings.ToLower(strings.TrimSpace(c.Sink.Kind)) {
	case "", "console":
	case "telegram":
		if c.Sink.Telegram.ChatID == 0 {
			return errors.New("sink.telegram.chat_id is required for the telegram sink")
		}
	default:
		return fmt.Errorf("sink.kind: unknown sink %q", c.Sink.Kind)
	}
	for _, f := range []struct{ path, raw string }{
		{"prefs.busy_timeout", c.Prefs.BusyTimeout},
		{"journal.busy_timeout", c.Journal.BusyTimeout},
		{"sink.telegram.poll_timeout", c.Sink.Telegram.PollTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	return nil
}
