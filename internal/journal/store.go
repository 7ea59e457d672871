// Package journal persists consumption entries: what was logged, where,
// with whom. It backs the history list, the map view, and the per-day
// stats rollup.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"snusstats/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

var ErrNotFound = errors.New("entry not found")

type Config struct {
	Path        string
	BusyTimeout time.Duration
}

type Store struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("journal.path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &Store{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Insert stores a new entry. A missing id is generated, a missing
// consumed-at defaults to now.
func (s *Store) Insert(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now()
	if e.ConsumedAt.IsZero() {
		e.ConsumedAt = now
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	companions, err := encodeCompanions(e.Companions)
	if err != nil {
		return Entry{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entries(id, product, note, photo_path, lat, lon, companions, consumed_at, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Product, nullStr(e.Note), nullStr(e.PhotoPath), e.Latitude, e.Longitude,
		companions, e.ConsumedAt.Format(time.RFC3339Nano), e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (s *Store) Update(ctx context.Context, e Entry) error {
	companions, err := encodeCompanions(e.Companions)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE entries SET product=?, note=?, photo_path=?, lat=?, lon=?, companions=?, consumed_at=?
		 WHERE id=?`,
		e.Product, nullStr(e.Note), nullStr(e.PhotoPath), e.Latitude, e.Longitude,
		companions, e.ConsumedAt.Format(time.RFC3339Nano), e.ID,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, selectCols+` WHERE id=?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// Recent lists entries newest-first (the history page).
func (s *Store) Recent(ctx context.Context, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		selectCols+` ORDER BY consumed_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Between lists entries in [from, to), oldest-first.
func (s *Store) Between(ctx context.Context, from, to time.Time) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		selectCols+` WHERE consumed_at >= ? AND consumed_at < ? ORDER BY consumed_at ASC`,
		from.Format(time.RFC3339Nano), to.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// InBounds lists geotagged entries inside the bounding box (the map page).
func (s *Store) InBounds(ctx context.Context, b Bounds) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		selectCols+` WHERE lat IS NOT NULL AND lon IS NOT NULL
		 AND lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?
		 ORDER BY consumed_at DESC`,
		b.MinLat, b.MaxLat, b.MinLon, b.MaxLon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// CountByDay rolls entries up per local calendar day over the last n days.
func (s *Store) CountByDay(ctx context.Context, days int) ([]DayCount, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().AddDate(0, 0, -days)
	rows, err := s.db.QueryContext(ctx,
		`SELECT date(consumed_at, 'localtime') AS day, COUNT(*)
		 FROM entries WHERE consumed_at >= ?
		 GROUP BY day ORDER BY day ASC`,
		since.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DayCount
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

// PhotoPaths returns every referenced photo path; the maintenance sweep
// uses this to detect orphaned files.
func (s *Store) PhotoPaths(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT photo_path FROM entries WHERE photo_path IS NOT NULL AND photo_path != ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]struct{}{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out[p] = struct{}{}
	}
	return out, rows.Err()
}

// ---- row mapping ----

const selectCols = `SELECT id, product, note, photo_path, lat, lon, companions, consumed_at, created_at FROM entries`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (Entry, error) {
	var (
		e          Entry
		note       sql.NullString
		photo      sql.NullString
		companions sql.NullString
		consumed   string
		created    string
	)
	if err := r.Scan(&e.ID, &e.Product, &note, &photo, &e.Latitude, &e.Longitude, &companions, &consumed, &created); err != nil {
		return Entry{}, err
	}
	e.Note = note.String
	e.PhotoPath = photo.String
	if companions.Valid && companions.String != "" {
		if err := json.Unmarshal([]byte(companions.String), &e.Companions); err != nil {
			return Entry{}, fmt.Errorf("decode companions for %s: %w", e.ID, err)
		}
	}
	var err error
	if e.ConsumedAt, err = time.Parse(time.RFC3339Nano, consumed); err != nil {
		return Entry{}, fmt.Errorf("decode consumed_at for %s: %w", e.ID, err)
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Entry{}, fmt.Errorf("decode created_at for %s: %w", e.ID, err)
	}
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func encodeCompanions(names []string) (any, error) {
	if len(names) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(names)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
