// Package historylog appends single-line entries to a shared
// history.jsonl file guarded by an advisory file lock, so multiple
// concurrent processes attached to the same workspace never interleave
// partial lines.
package historylog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Entry is one line appended to history.jsonl.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	ThreadID  string    `json:"thread_id"`
	Text      string    `json:"text"`
}

// Log appends entries to a single history.jsonl file.
type Log struct {
	path string
	lock *flock.Flock
}

// Open returns a Log writing to <dir>/history.jsonl, creating dir if
// necessary.
func Open(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("historylog: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, "history.jsonl")
	return &Log{path: path, lock: flock.New(path + ".lock")}, nil
}

// Append writes one entry as a single JSON line, retrying acquisition of
// the advisory lock up to 10 times, 100ms apart, before giving up.
func (l *Log) Append(entry Entry) error {
	const maxRetries = 10
	const retryDelay = 100 * time.Millisecond

	var locked bool
	var lockErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		locked, lockErr = l.lock.TryLock()
		if lockErr != nil {
			return fmt.Errorf("historylog: lock %s: %w", l.path, lockErr)
		}
		if locked {
			break
		}
		time.Sleep(retryDelay)
	}
	if !locked {
		return fmt.Errorf("historylog: could not acquire lock on %s after %d attempts", l.path, maxRetries)
	}
	defer l.lock.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("historylog: open %s: %w", l.path, err)
	}
	defer f.Close()

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("historylog: marshal entry: %w", err)
	}
	if _, err := f.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("historylog: write %s: %w", l.path, err)
	}
	return nil
}

// Path returns the underlying history.jsonl file path.
func (l *Log) Path() string { return l.path }
