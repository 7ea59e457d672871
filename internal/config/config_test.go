package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snusd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
log:
  level: DEBUG
  console: false
  file:
    enabled: true
    path: ./logs/snusd.log
prefs:
  driver: file
  path: ./data/prefs.json
journal:
  path: ./data/journal.db
  photo_dir: ./data/photos
sink:
  kind: telegram
  telegram:
    chat_id: 12345
    poll_timeout: 10s
    rate_per_sec: 1
reminder:
  title: Snus
  body: Go time
maintenance:
  enabled: true
  reprime_cron: "30 1 * * *"
`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "DEBUG" || *cfg.Log.Console || !cfg.Log.File.Enabled {
		t.Fatalf("log config = %+v", cfg.Log)
	}
	if cfg.Prefs.Driver != "file" || cfg.Sink.Kind != "telegram" || cfg.Sink.Telegram.ChatID != 12345 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Maintenance.ReprimeCron != "30 1 * * *" {
		t.Fatalf("reprime_cron = %q", cfg.Maintenance.ReprimeCron)
	}
	// Defaults still fill the untouched fields.
	if cfg.Maintenance.SweepCron != "0 * * * *" {
		t.Fatalf("sweep_cron default = %q", cfg.Maintenance.SweepCron)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "{}\n")

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "INFO" || cfg.Log.Console == nil || !*cfg.Log.Console {
		t.Fatalf("log defaults = %+v", cfg.Log)
	}
	if cfg.Prefs.Driver != "sqlite" || cfg.Prefs.Path != "./data/snusd.db" {
		t.Fatalf("prefs defaults = %+v", cfg.Prefs)
	}
	if cfg.Journal.Path != "./data/journal.db" {
		t.Fatalf("journal default = %+v", cfg.Journal)
	}
	if cfg.Sink.Kind != "console" || cfg.Sink.Telegram.RatePerSec != 3 {
		t.Fatalf("sink defaults = %+v", cfg.Sink)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "logg:\n  level: INFO\n")
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("unknown top-level key accepted")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "unknown prefs driver",
			body: "prefs:\n  driver: redis\n",
			want: "prefs.driver",
		},
		{
			name: "unknown sink",
			body: "sink:\n  kind: smtp\n",
			want: "sink.kind",
		},
		{
			name: "telegram without chat id",
			body: "sink:\n  kind: telegram\n",
			want: "chat_id",
		},
		{
			name: "bad duration",
			body: "prefs:\n  busy_timeout: fast\n",
			want: "busy_timeout",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeConfig(t, tt.body)
			_, err := NewManager(path).Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty = %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", "1500ms"); err != nil || d != 1500*time.Millisecond {
		t.Fatalf("1500ms = %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "soon"); err == nil {
		t.Fatal("invalid duration accepted")
	}
	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("ParseDurationOrDefault empty = %v, %v, want fallback", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "2s", time.Minute); err != nil || d != 2*time.Second {
		t.Fatalf("ParseDurationOrDefault 2s = %v, %v", d, err)
	}
}

func TestSubscribePublish(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	a := &Config{}
	b := &Config{}
	m.publish(a)
	m.publish(b) // buffer full: oldest is replaced

	select {
	case got := <-ch:
		if got != b {
			t.Fatal("subscriber got a stale config, want newest")
		}
	case <-time.After(time.Second):
		t.Fatal("no config delivered")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel open after Unsubscribe")
	}
	m.Unsubscribe(ch) // double unsubscribe is a no-op
}
