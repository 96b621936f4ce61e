// Package backup takes point-in-time copies of the SQLite store so an
// operator can snapshot profiles and history before a bulk re-ingest.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	filePrefix = "questionmatch-"
	fileSuffix = ".db"
	stampFmt   = "20060102T150405.000000000Z"
)

// Info describes one backup file.
type Info struct {
	Path    string    `json:"path"`
	Created time.Time `json:"created"`
	Size    int64     `json:"size"`
}

// Result reports a completed backup.
type Result struct {
	Info
	Duration time.Duration `json:"duration"`
	Verified bool          `json:"verified"`
}

// Create copies the database at dbPath into dir with VACUUM INTO, which
// yields a consistent copy even while the source runs in WAL mode, then runs
// an integrity check on the copy.
func Create(ctx context.Context, dbPath, dir string, now time.Time) (*Result, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("backup source: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	created := now.UTC()
	dest := filepath.Join(dir, filePrefix+created.Format(stampFmt)+fileSuffix)

	start := time.Now()
	db, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return nil, fmt.Errorf("vacuum into %s: %w", dest, err)
	}

	if err := Verify(ctx, dest); err != nil {
		_ = os.Remove(dest)
		return nil, err
	}
	st, err := os.Stat(dest)
	if err != nil {
		return nil, err
	}
	return &Result{
		Info:     Info{Path: dest, Created: created, Size: st.Size()},
		Duration: time.Since(start),
		Verified: true,
	}, nil
}

// Verify runs SQLite's integrity check against a backup file.
func Verify(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open backup: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// List returns the backups in dir, newest first. Files not written by
// Create are ignored.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}
	var out []Info
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		created, err := time.Parse(stampFmt, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
		if err != nil {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Info{Path: filepath.Join(dir, name), Created: created, Size: fi.Size()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	return out, nil
}

// Prune deletes all but the newest keep backups and reports how many it
// removed. Removal continues past individual failures; the last one is returned.
func Prune(dir string, keep int) (int, error) {
	if keep < 1 {
		return 0, fmt.Errorf("keep must be >= 1, got %d", keep)
	}
	backups, err := List(dir)
	if err != nil {
		return 0, err
	}
	if len(backups) <= keep {
		return 0, nil
	}
	removed := 0
	var lastErr error
	for _, b := range backups[keep:] {
		if err := os.Remove(b.Path); err != nil {
			lastErr = err
			continue
		}
		removed++
	}
	if lastErr != nil {
		return removed, fmt.Errorf("failed to delete some backups: %w", lastErr)
	}
	return removed, nil
}
