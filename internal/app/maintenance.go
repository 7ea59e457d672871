package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"snusstats/internal/config"
	"snusstats/internal/journal"
	"snusstats/internal/reminder"
	"snusstats/pkg/logx"
)

// Photos younger than this are never swept, so an entry that is mid-save
// can't lose its file.
const sweepMinAge = 24 * time.Hour

// maintenance runs the background housekeeping jobs:
//   - a daily re-prime of the reminder schedule shortly after midnight,
//     restoring the rolling interval window after quiet periods
//   - an hourly sweep of photo files no journal entry references
type maintenance struct {
	cfg      config.MaintenanceConfig
	sched    *reminder.Scheduler
	store    *journal.Store
	photoDir string
	log      logx.Logger

	c *cron.Cron
}

func newMaintenance(cfg config.MaintenanceConfig, sched *reminder.Scheduler, store *journal.Store, photoDir string, log logx.Logger) *maintenance {
	return &maintenance{
		cfg:      cfg,
		sched:    sched,
		store:    store,
		photoDir: photoDir,
		log:      log,
		c:        cron.New(),
	}
}

func (m *maintenance) start() {
	if _, err := m.c.AddFunc(m.cfg.ReprimeCron, m.reprime); err != nil {
		m.log.Error("invalid reprime cron spec", logx.String("spec", m.cfg.ReprimeCron), logx.Err(err))
	}
	if strings.TrimSpace(m.photoDir) != "" {
		if _, err := m.c.AddFunc(m.cfg.SweepCron, m.sweepPhotos); err != nil {
			m.log.Error("invalid sweep cron spec", logx.String("spec", m.cfg.SweepCron), logx.Err(err))
		}
	}
	m.c.Start()
	m.log.Debug("maintenance started",
		logx.String("reprime", m.cfg.ReprimeCron),
		logx.String("sweep", m.cfg.SweepCron),
	)
}

func (m *maintenance) stop(ctx context.Context) {
	done := m.c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (m *maintenance) reprime() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.sched.Reprime(ctx); err != nil {
		m.log.Error("daily reprime failed", logx.Err(err))
		return
	}
	m.log.Debug("reminder schedule reprimed")
}

func (m *maintenance) sweepPhotos() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	referenced, err := m.store.PhotoPaths(ctx)
	if err != nil {
		m.log.Error("photo sweep: list referenced paths failed", logx.Err(err))
		return
	}

	cutoff := time.Now().Add(-sweepMinAge)
	removed := 0
	entries, err := os.ReadDir(m.photoDir)
	if err != nil {
		m.log.Warn("photo sweep: read dir failed", logx.String("dir", m.photoDir), logx.Err(err))
		return
	}
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		path := filepath.Join(m.photoDir, de.Name())
		if _, ok := referenced[path]; ok {
			continue
		}
		info, err := de.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			m.log.Warn("photo sweep: remove failed", logx.String("path", path), logx.Err(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		m.log.Info("photo sweep removed orphans", logx.Int("count", removed))
	}
}
