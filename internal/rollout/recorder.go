package rollout

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/corerun/agentcore/internal/protocol"
)

// Recorder is the single writer for one thread's rollout file. It is not
// safe to share across goroutines concurrently writing independent
// threads, but a single Recorder instance serializes its own writes via
// mu, matching the "single writer per file" invariant.
type Recorder struct {
	mu       sync.Mutex
	file     *os.File
	threadID protocol.ThreadID
	path     string
}

// Create starts a brand-new rollout file for threadID and writes the
// session-meta header line.
func Create(root string, threadID protocol.ThreadID, cwd, model string, createdAt time.Time) (*Recorder, error) {
	path := FilePath(root, threadID, createdAt)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("rollout: mkdir for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rollout: create %s: %w", path, err)
	}
	r := &Recorder{file: f, threadID: threadID, path: path}
	if err := r.write(protocol.NewSessionMetaRollout(threadID, cwd, model, createdAt)); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// OpenForAppend reopens an existing rollout file so a resumed thread keeps
// appending to the same file rather than starting a new one.
func OpenForAppend(path string, threadID protocol.ThreadID) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rollout: open %s for append: %w", path, err)
	}
	return &Recorder{file: f, threadID: threadID, path: path}, nil
}

// Path reports the file this recorder is writing to.
func (r *Recorder) Path() string { return r.path }

// RecordItem appends a ResponseItem line.
func (r *Recorder) RecordItem(item protocol.ResponseItem, at time.Time) error {
	return r.write(protocol.NewResponseItemRollout(item, at))
}

// RecordTurnContext appends a turn-context line (written once per turn,
// even if the policy is unchanged, so replay can reconstruct the exact
// context each turn ran under).
func (r *Recorder) RecordTurnContext(tc protocol.TurnContext, at time.Time) error {
	return r.write(protocol.NewTurnContextRollout(tc, at))
}

// RecordCompacted appends a compaction marker line.
func (r *Recorder) RecordCompacted(summary string, remote bool, at time.Time) error {
	return r.write(protocol.NewCompactedRollout(summary, remote, at))
}

// RecordEvent appends a free-form audit event line.
func (r *Recorder) RecordEvent(message string, at time.Time) error {
	return r.write(protocol.RolloutItem{
		Timestamp: at,
		Type:      protocol.RolloutEventMsg,
		EventMsg:  &protocol.EventMsgLine{Message: message},
	})
}

func (r *Recorder) write(item protocol.RolloutItem) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("rollout: marshal line: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.file.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("rollout: write %s: %w", r.path, err)
	}
	return r.file.Sync()
}

// Close releases the underlying file handle.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}
