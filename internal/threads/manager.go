// Package threads is the Thread Manager (spec.md §4.2): it owns the map
// from ThreadID to a loaded *session.Session, and the start/resume/fork/
// remove operations the app-server front end drives in response to
// thread/start, thread/resume, and thread/unsubscribe requests.
package threads

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/corerun/agentcore/internal/contextmgr"
	"github.com/corerun/agentcore/internal/protocol"
	"github.com/corerun/agentcore/internal/rollout"
	"github.com/corerun/agentcore/internal/session"
	"github.com/corerun/agentcore/internal/toolorch"
	"github.com/corerun/agentcore/internal/wireclient"
)

// ErrSessionConfiguredNotFirstEvent is returned by ResumeThread when the
// first line replayed from a thread's rollout file is not the
// session-configured marker expected at position zero, per spec.md §4.2.
var ErrSessionConfiguredNotFirstEvent = fmt.Errorf("threads: first rollout line was not session_meta")

// ErrThreadNotFound is returned by operations given an unknown ThreadID.
var ErrThreadNotFound = fmt.Errorf("threads: thread not found")

// Deps bundles the process-wide collaborators every session in a thread
// needs; Manager passes these straight through to session.New for each
// thread it loads, grounded on the teacher's session_manager.go wiring of
// one shared Controller across many per-user Sessions.
type Deps struct {
	RolloutRoot      string
	Orchestrator     *toolorch.Orchestrator
	Provider         wireclient.Provider
	Notifier         session.Notifier
	AutoCompactLimit int
	WindowPercent    float64
	RemoteCompaction bool
}

// Manager is the process-wide registry of loaded threads. Safe for
// concurrent use.
type Manager struct {
	deps    Deps
	mu      sync.Mutex
	entries map[protocol.ThreadID]*session.Session
}

// NewManager builds a Manager with no threads loaded.
func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps, entries: make(map[protocol.ThreadID]*session.Session)}
}

// Get returns the loaded session for threadID, if any.
func (m *Manager) Get(threadID protocol.ThreadID) (*session.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.entries[threadID]
	return s, ok
}

// StartThread creates a brand-new thread: a fresh rollout file, an empty
// transcript, and a Session in the Idle state, implicitly subscribed
// (spec.md §4.1 — thread/start subscribes the caller).
func (m *Manager) StartThread(ctx context.Context, cwd, model string) (*session.Session, error) {
	threadID := protocol.NewThreadID()
	createdAt := time.Now()

	rec, err := rollout.Create(m.deps.RolloutRoot, threadID, cwd, model, createdAt)
	if err != nil {
		return nil, fmt.Errorf("threads: start %s: %w", threadID, err)
	}

	s := session.New(session.Config{
		ThreadID:         threadID,
		Context:          contextmgr.NewManager(m.deps.AutoCompactLimit, m.deps.WindowPercent),
		Recorder:         rec,
		Orchestrator:     m.deps.Orchestrator,
		Provider:         m.deps.Provider,
		Notifier:         m.deps.Notifier,
		RemoteCompaction: m.deps.RemoteCompaction,
	})
	m.mu.Lock()
	m.entries[threadID] = s
	m.mu.Unlock()
	return s, nil
}

// ResumeThread reloads an existing thread's rollout file, replays its
// transcript into a fresh context manager, and reopens the file for
// append. If the thread is already loaded, it is returned unchanged.
func (m *Manager) ResumeThread(ctx context.Context, threadID protocol.ThreadID) (*session.Session, error) {
	if s, ok := m.Get(threadID); ok {
		return s, nil
	}

	metas, err := rollout.ListThreads(m.deps.RolloutRoot)
	if err != nil {
		return nil, fmt.Errorf("threads: resume %s: %w", threadID, err)
	}
	var path string
	for _, meta := range metas {
		if meta.ThreadID == threadID {
			path = meta.Path
			break
		}
	}
	if path == "" {
		return nil, ErrThreadNotFound
	}

	result, err := rollout.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("threads: read %s: %w", path, err)
	}
	if len(result.Items) == 0 || result.Items[0].Type != protocol.RolloutSessionMeta {
		return nil, ErrSessionConfiguredNotFirstEvent
	}

	items := replayItems(result.Items)
	ctxMgr := contextmgr.NewManager(m.deps.AutoCompactLimit, m.deps.WindowPercent)
	ctxMgr.RecordItems(items...)

	rec, err := rollout.OpenForAppend(path, threadID)
	if err != nil {
		return nil, fmt.Errorf("threads: reopen %s: %w", path, err)
	}

	s := session.New(session.Config{
		ThreadID:         threadID,
		Context:          ctxMgr,
		Recorder:         rec,
		Orchestrator:     m.deps.Orchestrator,
		Provider:         m.deps.Provider,
		Notifier:         m.deps.Notifier,
		RemoteCompaction: m.deps.RemoteCompaction,
	})
	m.mu.Lock()
	m.entries[threadID] = s
	m.mu.Unlock()
	return s, nil
}

// ForkThread creates a new thread whose transcript is the parent's,
// truncated to drop its last dropLastNUserTurns genuine user turns
// (spec.md §4.2's fork rollback semantics, built on
// contextmgr.DropLastNUserTurns/UserTurnBoundaries). The parent thread is
// left untouched.
func (m *Manager) ForkThread(ctx context.Context, parentID protocol.ThreadID, dropLastNUserTurns int, cwd, model string) (*session.Session, error) {
	parent, ok := m.Get(parentID)
	if !ok {
		var err error
		parent, err = m.ResumeThread(ctx, parentID)
		if err != nil {
			return nil, err
		}
	}

	items := contextmgr.DropLastNUserTurns(parent.ItemsSnapshot(), dropLastNUserTurns)

	threadID := protocol.NewThreadID()
	createdAt := time.Now()
	rec, err := rollout.Create(m.deps.RolloutRoot, threadID, cwd, model, createdAt)
	if err != nil {
		return nil, fmt.Errorf("threads: fork %s: %w", parentID, err)
	}
	for _, item := range items {
		if err := rec.RecordItem(item, createdAt); err != nil {
			return nil, fmt.Errorf("threads: fork %s: seed transcript: %w", parentID, err)
		}
	}

	ctxMgr := contextmgr.NewManager(m.deps.AutoCompactLimit, m.deps.WindowPercent)
	ctxMgr.RecordItems(items...)

	s := session.New(session.Config{
		ThreadID:         threadID,
		Context:          ctxMgr,
		Recorder:         rec,
		Orchestrator:     m.deps.Orchestrator,
		Provider:         m.deps.Provider,
		Notifier:         m.deps.Notifier,
		RemoteCompaction: m.deps.RemoteCompaction,
	})
	m.mu.Lock()
	m.entries[threadID] = s
	m.mu.Unlock()
	return s, nil
}

// Remove closes and unloads threadID, interrupting any turn in flight
// first (thread/unsubscribe's teardown sequence).
func (m *Manager) Remove(threadID protocol.ThreadID) error {
	m.mu.Lock()
	s, ok := m.entries[threadID]
	if ok {
		delete(m.entries, threadID)
	}
	m.mu.Unlock()
	if !ok {
		return ErrThreadNotFound
	}
	s.Close()
	return nil
}

// Loaded returns the ThreadIDs currently loaded in memory (thread/loaded/list).
func (m *Manager) Loaded() []protocol.ThreadID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]protocol.ThreadID, 0, len(m.entries))
	for id := range m.entries {
		out = append(out, id)
	}
	return out
}

// maxListLimit is the clamp spec.md §4.1 specifies for thread/list's limit
// parameter.
const maxListLimit = 100

// ThreadSummary is one entry of a thread/list page.
type ThreadSummary struct {
	ThreadID protocol.ThreadID
	Cwd      string
}

// ListThreads returns up to limit thread summaries in reverse-chronological
// order, resuming after cursor (a ThreadID returned as the previous page's
// next-cursor, or "" for the first page). The returned cursor is "" once
// there are no further pages.
func (m *Manager) ListThreads(limit int, cursor string) ([]ThreadSummary, string, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	metas, err := rollout.ListThreads(m.deps.RolloutRoot)
	if err != nil {
		return nil, "", fmt.Errorf("threads: list: %w", err)
	}

	start := 0
	if cursor != "" {
		for i, meta := range metas {
			if string(meta.ThreadID) == cursor {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(metas) {
		end = len(metas)
	}

	page := metas[start:end]
	summaries := make([]ThreadSummary, len(page))
	for i, meta := range page {
		summaries[i] = ThreadSummary{ThreadID: meta.ThreadID, Cwd: meta.Cwd}
	}

	next := ""
	if end < len(metas) {
		next = string(page[len(page)-1].ThreadID)
	}
	return summaries, next, nil
}

// replayItems extracts the ResponseItem sequence from a rollout read,
// skipping session-meta, turn-context, and event-marker lines.
func replayItems(lines []protocol.RolloutItem) []protocol.ResponseItem {
	var items []protocol.ResponseItem
	for _, line := range lines {
		if line.Type == protocol.RolloutResponseItem && line.ResponseItem != nil {
			items = append(items, *line.ResponseItem)
		}
	}
	return items
}
