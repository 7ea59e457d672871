// Package app wires the snusd components together and owns their
// lifecycle: config, logging, stores, delivery sink, dispatcher,
// reminder scheduler and the maintenance jobs.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"snusstats/internal/config"
	"snusstats/internal/eventbus"
	"snusstats/internal/journal"
	"snusstats/internal/notify"
	"snusstats/internal/prefs"
	"snusstats/internal/reminder"
	"snusstats/internal/transport"
	"snusstats/internal/transport/telegram"
	"snusstats/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	bus     eventbus.Bus
	prefs   prefs.Store
	journal *journal.Store
	sink    transport.Sink
	disp    *notify.Timers
	sched   *reminder.Scheduler
	maint   *maintenance

	runMu     sync.Mutex
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(logCfg(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	st, err := prefs.Open(prefsCfg(cfg), log.With(logx.String("comp", "prefs")))
	if err != nil {
		logs.Close()
		return nil, fmt.Errorf("open prefs store: %w", err)
	}

	jst, err := journal.Open(journalCfg(cfg), log.With(logx.String("comp", "journal")))
	if err != nil {
		_ = st.Close()
		logs.Close()
		return nil, fmt.Errorf("open journal store: %w", err)
	}

	sink, err := buildSink(cfg, log)
	if err != nil {
		_ = jst.Close()
		_ = st.Close()
		logs.Close()
		return nil, err
	}

	bus := eventbus.New()
	disp := notify.NewTimers(sink, bus, log.With(logx.String("comp", "notify")))
	sched := reminder.New(reminder.Config{
		Title: cfg.Reminder.Title,
		Body:  cfg.Reminder.Body,
		Icon:  cfg.Reminder.Icon,
	}, st, disp, bus, log.With(logx.String("comp", "reminder")))

	a := &App{
		cfgm:    cfgm,
		logs:    logs,
		log:     log,
		bus:     bus,
		prefs:   st,
		journal: jst,
		sink:    sink,
		disp:    disp,
		sched:   sched,
	}
	if cfg.Maintenance.Enabled {
		a.maint = newMaintenance(cfg.Maintenance, sched, jst, cfg.Journal.PhotoDir, log.With(logx.String("comp", "maintenance")))
	}
	return a, nil
}

// Scheduler exposes the reminder scheduler to command surfaces.
func (a *App) Scheduler() *reminder.Scheduler { return a.sched }

// Journal exposes the entry store to command surfaces.
func (a *App) Journal() *journal.Store { return a.journal }

// Prefs exposes the raw preference store (status display).
func (a *App) Prefs() prefs.Store { return a.prefs }

// Dispatcher exposes the pending set (status display).
func (a *App) Dispatcher() notify.Dispatcher { return a.disp }

func (a *App) Logger() logx.Logger { return a.log }

// Start brings the daemon up: sink polling, persisted schedule restore,
// the fired-event loop, config watching and maintenance jobs.
func (a *App) Start(ctx context.Context) error {
	a.runMu.Lock()
	if a.runCancel != nil {
		a.runMu.Unlock()
		return nil
	}
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runMu.Unlock()

	if err := a.sink.Start(rctx); err != nil {
		return fmt.Errorf("start sink: %w", err)
	}

	if err := a.sched.Load(rctx); err != nil {
		a.log.Error("restore reminder schedule failed", logx.Err(err))
	}

	// Delivered/actioned notifications feed back into the scheduler so
	// interval mode keeps a rolling window of upcoming reminders.
	events, unsub := a.bus.Subscribe(32)
	a.runWG.Add(1)
	go func() {
		defer a.runWG.Done()
		defer unsub()
		a.firedLoop(rctx, events)
	}()

	a.runWG.Add(1)
	go func() {
		defer a.runWG.Done()
		a.watchConfig(rctx)
	}()

	if a.maint != nil {
		a.maint.start()
	}

	a.log.Info("snusd started")
	return nil
}

func (a *App) firedLoop(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if e.Type != eventbus.TypeNotifyDelivered && e.Type != eventbus.TypeNotifyActioned {
				continue
			}
			fe, ok := e.Data.(notify.FiredEvent)
			if !ok {
				continue
			}
			hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := a.sched.HandleFired(hctx, fe.ID); err != nil {
				a.log.Error("refill after firing failed", logx.Int("id", fe.ID), logx.Err(err))
			}
			cancel()
		}
	}
}

func (a *App) watchConfig(ctx context.Context) {
	updates := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(updates)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.cfgm.Watch(ctx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			<-done
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			// Only logging is hot-reloadable; stores and sinks need a
			// restart to change.
			a.logs.Apply(logCfg(cfg))
			a.log.Info("log config applied")
		}
	}
}

// Stop shuts the daemon down. Safe to call once after Start.
func (a *App) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	a.runMu.Unlock()
	if cancel != nil {
		cancel()
	}

	if a.maint != nil {
		a.maint.stop(ctx)
	}
	a.disp.Close()
	_ = a.sink.Stop(ctx)

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	a.Close()
	a.log.Info("snusd stopped")
	return nil
}

// Close releases stores and the log service. For command surfaces that
// never called Start.
func (a *App) Close() {
	if a.journal != nil {
		_ = a.journal.Close()
		a.journal = nil
	}
	if a.prefs != nil {
		_ = a.prefs.Close()
		a.prefs = nil
	}
}

// ---- config mapping ----

func logCfg(cfg *config.Config) logx.Config {
	console := true
	if cfg.Log.Console != nil {
		console = *cfg.Log.Console
	}
	return logx.Config{
		Level:   cfg.Log.Level,
		Console: console,
		File:    logx.FileConfig{Enabled: cfg.Log.File.Enabled, Path: cfg.Log.File.Path},
	}
}

func prefsCfg(cfg *config.Config) prefs.Config {
	busy, _ := config.ParseDurationOrDefault("prefs.busy_timeout", cfg.Prefs.BusyTimeout, 5*time.Second)
	return prefs.Config{Driver: cfg.Prefs.Driver, Path: cfg.Prefs.Path, BusyTimeout: busy}
}

func journalCfg(cfg *config.Config) journal.Config {
	busy, _ := config.ParseDurationOrDefault("journal.busy_timeout", cfg.Journal.BusyTimeout, 5*time.Second)
	return journal.Config{Path: cfg.Journal.Path, BusyTimeout: busy}
}

func buildSink(cfg *config.Config, log logx.Logger) (transport.Sink, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Sink.Kind)) {
	case "", "console":
		return transport.NewConsoleSink(log.With(logx.String("comp", "sink"))), nil
	case "telegram":
		token := cfg.Sink.Telegram.Token
		if strings.TrimSpace(token) == "" {
			token = os.Getenv("TELEGRAM_TOKEN")
		}
		poll, _ := config.ParseDurationOrDefault("sink.telegram.poll_timeout", cfg.Sink.Telegram.PollTimeout, 10*time.Second)
		s, err := telegram.New(telegram.Config{
			Token:       token,
			ChatID:      cfg.Sink.Telegram.ChatID,
			PollTimeout: poll,
			RatePerSec:  cfg.Sink.Telegram.RatePerSec,
		}, log.With(logx.String("comp", "sink")))
		if err != nil {
			return nil, fmt.Errorf("build telegram sink: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown sink kind %q", cfg.Sink.Kind)
	}
}
