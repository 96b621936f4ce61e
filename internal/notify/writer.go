// Package notify carries change events between questionmatch processes
// through files in a shared directory. The operator CLI writes an event when
// it ingests questions or updates a profile; the web server watches the
// directory, refreshes its corpus snapshot and forwards the event to its
// websocket clients.
package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Event types.
const (
	// EventCorpusChanged means questions were added or replaced; Subject is a
	// question id or a batch label.
	EventCorpusChanged = "corpus_changed"

	// EventProfileUpdated means a profile vector moved to a new version;
	// Subject is the candidate id.
	EventProfileUpdated = "profile_updated"

	// EventResponseRecorded means an answer was appended to the history log;
	// Subject is the candidate id.
	EventResponseRecorded = "response_recorded"
)

// Event is the payload written to an event file.
type Event struct {
	Type    string `json:"type"`
	Subject string `json:"subject"`
	Time    int64  `json:"time"`
}

// EventWriter writes notification event files to a shared directory.
type EventWriter struct {
	dir string
}

// NewEventWriter creates a writer that emits events to {dataPath}/events/.
func NewEventWriter(dataPath string) *EventWriter {
	return &EventWriter{dir: filepath.Join(dataPath, "events")}
}

// Notify writes an event file. Safe to call concurrently.
func (w *EventWriter) Notify(eventType, subject string) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("notify: mkdir %s: %w", w.dir, err)
	}
	evt := Event{
		Type:    eventType,
		Subject: subject,
		Time:    time.Now().UnixNano(),
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}
	// Write under a temp name and rename so the watcher never reads a partial file.
	name := fmt.Sprintf("%d-%s-%s", evt.Time, eventType, sanitizeID(subject))
	tmp := filepath.Join(w.dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("notify: write %s: %w", tmp, err)
	}
	return os.Rename(tmp, filepath.Join(w.dir, name+".event"))
}

// sanitizeID replaces characters unsafe for filenames.
func sanitizeID(id string) string {
	out := make([]byte, len(id))
	for i := 0; i < len(id); i++ {
		switch id[i] {
		case '/', ':', '\\', '.':
			out[i] = '_'
		default:
			out[i] = id[i]
		}
	}
	return string(out)
}
