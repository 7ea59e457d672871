package prefs

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"snusstats/pkg/logx"
)

func openTestStore(t *testing.T, driver string) Store {
	t.Helper()
	ext := ".json"
	if driver == "sqlite" {
		ext = ".db"
	}
	st, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), "prefs"+ext)}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			st := openTestStore(t, driver)
			ctx := context.Background()

			if _, ok, err := st.Get(ctx, KeyMode); err != nil || ok {
				t.Fatalf("Get on empty store = ok=%v err=%v", ok, err)
			}

			if err := st.Set(ctx, KeyMode, "interval"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := st.Set(ctx, KeyMode, "single"); err != nil {
				t.Fatalf("overwrite Set: %v", err)
			}
			v, ok, err := st.Get(ctx, KeyMode)
			if err != nil || !ok || v != "single" {
				t.Fatalf("Get = %q ok=%v err=%v, want single", v, ok, err)
			}

			if err := st.Delete(ctx, KeyMode); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, ok, _ := st.Get(ctx, KeyMode); ok {
				t.Fatal("key survived Delete")
			}
			// Deleting a missing key is a no-op.
			if err := st.Delete(ctx, KeyMode); err != nil {
				t.Fatalf("second Delete: %v", err)
			}
		})
	}
}

func TestStoreReopenPersists(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "prefs.db")
			ctx := context.Background()

			st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if err := st.Set(ctx, KeyEnabled, "true"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := st.Set(ctx, KeyIntervalHours, "4"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := st.Delete(ctx, KeyEnabled); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := st.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			st2, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer st2.Close()

			if v, ok, _ := st2.Get(ctx, KeyIntervalHours); !ok || v != "4" {
				t.Fatalf("after reopen Get = %q ok=%v, want 4", v, ok)
			}
			if _, ok, _ := st2.Get(ctx, KeyEnabled); ok {
				t.Fatal("deleted key came back after reopen")
			}
		})
	}
}

func TestFileStoreCompaction(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "prefs.json")
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	// Enough writes to trigger at least one journal compaction.
	for i := 0; i < compactEvery+10; i++ {
		if err := st.Set(ctx, "k", strconv.Itoa(i)); err != nil {
			t.Fatalf("Set %d: %v", i, err)
		}
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	if v, ok, _ := st2.Get(ctx, "k"); !ok || v != strconv.Itoa(compactEvery+9) {
		t.Fatalf("after compaction Get = %q ok=%v, want %d", v, ok, compactEvery+9)
	}
}

func TestClosedStoreErrors(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, "file")
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := st.Set(context.Background(), "k", "v"); err != ErrClosed {
		t.Fatalf("Set after close = %v, want ErrClosed", err)
	}
	if _, _, err := st.Get(context.Background(), "k"); err != ErrClosed {
		t.Fatalf("Get after close = %v, want ErrClosed", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "redis", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
