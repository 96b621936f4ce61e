package notify

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Handler receives one decoded event.
type Handler func(evt Event)

// EventWatcher watches the events directory and dispatches each event file
// to a handler exactly once, removing the file after reading it.
type EventWatcher struct {
	dir     string
	handler Handler
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewEventWatcher creates a watcher for {dataPath}/events/.
func NewEventWatcher(dataPath string, handler Handler) *EventWatcher {
	return &EventWatcher{
		dir:     filepath.Join(dataPath, "events"),
		handler: handler,
		done:    make(chan struct{}),
	}
}

// Start drains any event files already present, then watches for new ones.
// Call Stop to clean up.
func (ew *EventWatcher) Start() error {
	if err := os.MkdirAll(ew.dir, 0o700); err != nil {
		return err
	}

	ew.drainExisting()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(ew.dir); err != nil {
		_ = w.Close()
		return err
	}
	ew.watcher = w

	go ew.loop()
	log.Printf("notify: watching %s for change events", ew.dir)
	return nil
}

// Stop shuts down the watcher.
func (ew *EventWatcher) Stop() {
	if ew.watcher == nil {
		return
	}
	_ = ew.watcher.Close()
	<-ew.done
}

func (ew *EventWatcher) loop() {
	defer close(ew.done)
	for {
		select {
		case evt, ok := <-ew.watcher.Events:
			if !ok {
				return
			}
			// Writers rename into place, which fsnotify reports as Create.
			if evt.Op&(fsnotify.Create|fsnotify.Rename) != 0 && isEventFile(evt.Name) {
				ew.processFile(evt.Name)
			}
		case err, ok := <-ew.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("notify: watcher error: %v", err)
		}
	}
}

func (ew *EventWatcher) drainExisting() {
	entries, err := os.ReadDir(ew.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && isEventFile(entry.Name()) {
			ew.processFile(filepath.Join(ew.dir, entry.Name()))
		}
	}
}

func (ew *EventWatcher) processFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // consumed by another process, or the rename source
	}
	_ = os.Remove(path)

	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		log.Printf("notify: invalid event file %s: %v", filepath.Base(path), err)
		return
	}
	if event.Type != "" && ew.handler != nil {
		ew.handler(event)
	}
}

func isEventFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, ".event") && !strings.HasPrefix(base, ".")
}
