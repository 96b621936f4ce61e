package sqlite

import (
	"errors"
	"log"
	"net/url"
	"os"
	"os/exec"
	"strings"
)

// dbPathFromDSN extracts the file path from a bare path or file: URI.
// In-memory and unparseable DSNs yield "".
func dbPathFromDSN(dsn string) string {
	if dsn == "" || dsn == ":memory:" {
		return ""
	}
	if !strings.HasPrefix(dsn, "file:") {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return ""
	}
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	if path == ":memory:" {
		return ""
	}
	return path
}

// isRecoverableWALError matches the errors a stale -shm/-wal pair produces.
func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") || strings.Contains(msg, "database is locked")
}

// isWALStale reports whether WAL side files exist and no process has them
// open. Without lsof nothing is considered stale.
func isWALStale(dbPath string) bool {
	shm, wal := dbPath+"-shm", dbPath+"-wal"
	if !fileExists(shm) && !fileExists(wal) {
		return false
	}
	lsof, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}
	out, err := exec.Command(lsof, "-t", dbPath, shm, wal).Output()
	if err != nil {
		// lsof exits 1 when nothing holds the files.
		return true
	}
	return strings.TrimSpace(string(out)) == ""
}

func removeStaleWAL(dbPath string) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("sqlite: failed to remove stale %s: %v", path, err)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
