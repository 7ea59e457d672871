// Package reminder owns the reminder configuration and keeps the
// dispatcher's pending set in sync with it.
//
// Every mutating operation follows the same fixed order:
// cancel pending, schedule the new set, persist, then commit to memory.
// The dispatcher is therefore never left holding both the old and the
// new schedule, and a failed persistence write never leaves memory
// disagreeing with durable state. Cancel failures are tolerated
// (best-effort); schedule and persist failures fail the operation.
package reminder

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"snusstats/internal/eventbus"
	"snusstats/internal/notify"
	"snusstats/internal/prefs"
	"snusstats/pkg/logx"
)

// Config carries the static notification payload.
type Config struct {
	Title string
	Body  string
	Icon  string
}

func (c Config) withDefaults() Config {
	if c.Title == "" {
		c.Title = "Snus Reminder"
	}
	if c.Body == "" {
		c.Body = "Time for your snus!"
	}
	if c.Icon == "" {
		c.Icon = "ic_stat_notify"
	}
	return c
}

type Scheduler struct {
	cfg   Config
	store prefs.Store
	disp  notify.Dispatcher
	bus   eventbus.Bus
	log   logx.Logger
	now   func() time.Time

	mu       sync.Mutex
	settings Settings
	singleAt time.Time // resolved fire time of the armed single reminder
}

func New(cfg Config, store prefs.Store, disp notify.Dispatcher, bus eventbus.Bus, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		cfg:   cfg.withDefaults(),
		store: store,
		disp:  disp,
		bus:   bus,
		log:   log,
		now:   time.Now,
		settings: Settings{
			Mode:          ModeSingle,
			IntervalHours: defaultIntervalHours,
		},
	}
}

// Load reads the persisted configuration and, when reminders are
// enabled, re-issues the pending set for the active mode. The dispatcher
// loses its timers across a restart, so startup always re-derives them.
// Load never requests permission.
func (s *Scheduler) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok, err := s.store.Get(ctx, prefs.KeyEnabled); err != nil {
		return fmt.Errorf("load enabled flag: %w", err)
	} else if ok {
		s.settings.Enabled = v == "true"
	}

	if v, ok, err := s.store.Get(ctx, prefs.KeyMode); err != nil {
		return fmt.Errorf("load mode: %w", err)
	} else if ok {
		if m, valid := ParseMode(v); valid {
			s.settings.Mode = m
		}
	}

	if v, ok, err := s.store.Get(ctx, prefs.KeyIntervalHours); err != nil {
		return fmt.Errorf("load interval hours: %w", err)
	} else if ok {
		if h, err := strconv.Atoi(v); err == nil && h >= 1 && h <= MaxIntervalHours {
			s.settings.IntervalHours = h
		}
	}

	if v, ok, err := s.store.Get(ctx, prefs.KeySingleTime); err != nil {
		return fmt.Errorf("load single time: %w", err)
	} else if ok {
		if at, err := time.Parse(time.RFC3339, v); err == nil {
			at = at.In(s.now().Location())
			s.settings.SingleHour = at.Hour()
			s.settings.SingleMinute = at.Minute()
			s.settings.HaveSingle = true
		}
	}

	if !s.settings.Enabled {
		return nil
	}
	return s.rescheduleLocked(ctx)
}

// Reprime re-derives the pending set from current settings. It is the
// same cancel-and-reschedule step Load performs; the maintenance job
// calls it daily to restore the rolling interval window after quiet
// periods (e.g. the host slept through every delivery).
func (s *Scheduler) Reprime(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.settings.Enabled {
		return nil
	}
	return s.rescheduleLocked(ctx)
}

// SetEnabled toggles the master switch. Enabling requests permission
// first and fails with ErrPermissionDenied when the sink is unreachable.
// Disabling always leaves zero pending notifications.
func (s *Scheduler) SetEnabled(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if enabled == s.settings.Enabled {
		// Idempotent: re-persist the current value, nothing else.
		return s.persistEnabledLocked(ctx, enabled)
	}

	if enabled {
		granted, err := s.disp.RequestPermission(ctx)
		if err != nil {
			return fmt.Errorf("request permission: %w", err)
		}
		if !granted {
			return ErrPermissionDenied
		}
		if err := s.persistEnabledLocked(ctx, true); err != nil {
			return err
		}
		s.settings.Enabled = true
		s.publishLocked()
		return s.rescheduleLocked(ctx)
	}

	s.cancelAllLocked(ctx)
	if err := s.persistEnabledLocked(ctx, false); err != nil {
		return err
	}
	s.settings.Enabled = false
	s.publishLocked()
	return nil
}

// SetMode switches the active strategy. The pending set is cleared
// unconditionally; if reminders are enabled and the new mode already has
// stored parameters, they are re-issued, otherwise zero notifications
// remain until the user supplies them.
func (s *Scheduler) SetMode(ctx context.Context, mode Mode) error {
	if _, ok := ParseMode(string(mode)); !ok {
		return fmt.Errorf("unknown mode %q", mode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelAllLocked(ctx)
	if err := s.store.Set(ctx, prefs.KeyMode, string(mode)); err != nil {
		return fmt.Errorf("persist mode: %w", err)
	}
	s.settings.Mode = mode
	s.publishLocked()

	if !s.settings.Enabled {
		return nil
	}
	return s.rescheduleLocked(ctx)
}

// SetSingleTime arms the one-shot reminder for the given wall-clock time
// of day and returns the resolved fire timestamp. A time already passed
// today rolls over to tomorrow.
func (s *Scheduler) SetSingleTime(ctx context.Context, hour, minute int) (time.Time, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, ErrInvalidTime
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	fireAt := nextOccurrence(s.now(), hour, minute)

	s.cancelAllLocked(ctx)
	if err := s.disp.Schedule(ctx, []notify.Notification{s.singleNotification(fireAt)}); err != nil {
		return time.Time{}, fmt.Errorf("schedule single reminder: %w", err)
	}
	if err := s.store.Set(ctx, prefs.KeySingleTime, fireAt.Format(time.RFC3339)); err != nil {
		return time.Time{}, fmt.Errorf("persist single time: %w", err)
	}

	s.settings.SingleHour = hour
	s.settings.SingleMinute = minute
	s.settings.HaveSingle = true
	s.singleAt = fireAt
	s.publishLocked()
	return fireAt, nil
}

// SetIntervalHours arms the recurring schedule: floor(24/h) notifications
// spaced h hours apart starting at now+h. Out-of-range hours are rejected
// and the prior schedule stays intact.
func (s *Scheduler) SetIntervalHours(ctx context.Context, hours int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setIntervalLocked(ctx, hours)
}

func (s *Scheduler) setIntervalLocked(ctx context.Context, hours int) error {
	if hours < 1 || hours > MaxIntervalHours {
		return ErrInvalidInterval
	}

	s.cancelAllLocked(ctx)
	if err := s.disp.Schedule(ctx, s.intervalBatch(hours)); err != nil {
		return fmt.Errorf("schedule interval reminders: %w", err)
	}
	if err := s.store.Set(ctx, prefs.KeyIntervalHours, strconv.Itoa(hours)); err != nil {
		return fmt.Errorf("persist interval hours: %w", err)
	}

	s.settings.IntervalHours = hours
	s.publishLocked()
	return nil
}

// HandleFired is invoked for every delivered or actioned notification.
// In interval mode it refills the batch relative to the new "now" so the
// pending queue never runs dry. A single reminder is one-shot: no re-arm.
func (s *Scheduler) HandleFired(ctx context.Context, id int) error {
	_ = id // the refill is not tied to the specific id that fired
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settings.Mode != ModeInterval || !s.settings.Enabled {
		return nil
	}
	return s.setIntervalLocked(ctx, s.settings.IntervalHours)
}

// Snapshot returns the current configuration and the armed single fire
// time, for display.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Settings: s.settings, NextSingle: s.singleAt}
}

// ---- internals (must be called with mu held) ----

func (s *Scheduler) persistEnabledLocked(ctx context.Context, enabled bool) error {
	if err := s.store.Set(ctx, prefs.KeyEnabled, strconv.FormatBool(enabled)); err != nil {
		return fmt.Errorf("persist enabled flag: %w", err)
	}
	return nil
}

// cancelAllLocked empties the dispatcher's pending set. Failures are
// logged and swallowed: a double-cancel or a cancel against an already
// empty set must never fail the surrounding operation.
func (s *Scheduler) cancelAllLocked(ctx context.Context) {
	pending, err := s.disp.Pending(ctx)
	if err != nil {
		s.log.Warn("query pending failed", logx.Err(err))
		return
	}
	if len(pending) == 0 {
		return
	}
	ids := make([]int, len(pending))
	for i, n := range pending {
		ids[i] = n.ID
	}
	if err := s.disp.Cancel(ctx, ids); err != nil {
		s.log.Warn("cancel pending failed", logx.Int("count", len(ids)), logx.Err(err))
	}
}

func (s *Scheduler) rescheduleLocked(ctx context.Context) error {
	s.cancelAllLocked(ctx)
	switch s.settings.Mode {
	case ModeInterval:
		if s.settings.IntervalHours < 1 {
			return nil
		}
		if err := s.disp.Schedule(ctx, s.intervalBatch(s.settings.IntervalHours)); err != nil {
			return fmt.Errorf("schedule interval reminders: %w", err)
		}
	default:
		if !s.settings.HaveSingle {
			return nil
		}
		fireAt := nextOccurrence(s.now(), s.settings.SingleHour, s.settings.SingleMinute)
		if err := s.disp.Schedule(ctx, []notify.Notification{s.singleNotification(fireAt)}); err != nil {
			return fmt.Errorf("schedule single reminder: %w", err)
		}
		s.singleAt = fireAt
	}
	return nil
}

func (s *Scheduler) singleNotification(fireAt time.Time) notify.Notification {
	return notify.Notification{
		ID:     singleID,
		Title:  s.cfg.Title,
		Body:   s.cfg.Body,
		Icon:   s.cfg.Icon,
		FireAt: fireAt,
	}
}

func (s *Scheduler) intervalBatch(hours int) []notify.Notification {
	count := 24 / hours
	if count > maxBatch {
		count = maxBatch
	}
	now := s.now()
	batch := make([]notify.Notification, 0, count)
	for k := 1; k <= count; k++ {
		batch = append(batch, notify.Notification{
			ID:     intervalID(k),
			Title:  s.cfg.Title,
			Body:   s.cfg.Body,
			Icon:   s.cfg.Icon,
			FireAt: now.Add(time.Duration(k*hours) * time.Hour),
		})
	}
	return batch
}

func (s *Scheduler) publishLocked() {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeReminderChanged,
		Data: Snapshot{Settings: s.settings, NextSingle: s.singleAt},
	})
}

// nextOccurrence resolves a wall-clock time of day against now: today if
// that moment is still in the future, otherwise tomorrow (rollover rule).
func nextOccurrence(now time.Time, hour, minute int) time.Time {
	at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if at.After(now) {
		return at
	}
	return time.Date(now.Year(), now.Month(), now.Day()+1, hour, minute, 0, 0, now.Location())
}
