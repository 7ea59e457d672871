// Package prefs provides the durable key/value preference store.
//
// It mirrors a mobile preference plugin: string keys, string values,
// async get/set. Two backends are supported:
//   - "file": dependency-free snapshot + append journal
//   - "sqlite": SQLite database file (shared with the journal store)
package prefs

import (
	"context"
	"errors"
	"strings"
	"time"

	"snusstats/pkg/logx"
)

var ErrClosed = errors.New("prefs store closed")

// Well-known preference keys.
const (
	KeyEnabled       = "notificationsEnabled"
	KeyMode          = "notificationMode"
	KeySingleTime    = "scheduledNotificationTime"
	KeyIntervalHours = "notificationIntervalHours"
)

// Config configures the preference store.
//
// Driver values:
//   - "file": snapshot + journal files next to Path
//   - "sqlite", "sqlite3": SQLite database at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the minimal persistence API consumed by the reminder scheduler.
//
// Get reports ok=false when the key has never been set; that is not an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown prefs driver: " + cfg.Driver)
	}
}
