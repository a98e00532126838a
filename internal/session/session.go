package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/corerun/agentcore/internal/contextmgr"
	"github.com/corerun/agentcore/internal/protocol"
	"github.com/corerun/agentcore/internal/rollout"
	"github.com/corerun/agentcore/internal/sandbox"
	"github.com/corerun/agentcore/internal/toolorch"
	"github.com/corerun/agentcore/internal/wireclient"
)

// Config bundles everything a Session needs that is fixed for its whole
// lifetime, grounded on the teacher's Controller/NewController wiring in
// core/internal/agent/controller.go.
type Config struct {
	ThreadID     protocol.ThreadID
	Context      *contextmgr.Manager
	Recorder     *rollout.Recorder
	Orchestrator *toolorch.Orchestrator
	Provider     wireclient.Provider
	Notifier     Notifier
	// RemoteCompaction, when true, compacts via Provider.Compact instead of
	// driving a local synthetic summarization turn (spec.md §4.4's two
	// compaction variants).
	RemoteCompaction bool
}

// Session drives one thread: it owns the thread's status, its current
// TurnContext, and the cancellation token for whichever turn (if any) is
// currently running. One Session exists per loaded thread; the Thread
// Manager (internal/threads) owns the map from ThreadID to *Session.
type Session struct {
	threadID protocol.ThreadID
	ctx      *contextmgr.Manager
	recorder *rollout.Recorder
	orch     *toolorch.Orchestrator
	provider wireclient.Provider
	notifier Notifier
	remote   bool

	mu     sync.Mutex
	status protocol.ThreadStatus
	turnID protocol.TurnID
	// cancel stops the turn currently in flight, if any; nil when Idle.
	// Mirrors the teacher's abortMu/abortCancel pattern in Controller,
	// scoped per-thread instead of process-wide.
	cancel context.CancelFunc
}

// New builds a Session in the Idle state. Callers that are resuming a
// thread should RecordItems onto cfg.Context before calling New so the
// transcript is already populated.
func New(cfg Config) *Session {
	return &Session{
		threadID: cfg.ThreadID,
		ctx:      cfg.Context,
		recorder: cfg.Recorder,
		orch:     cfg.Orchestrator,
		provider: cfg.Provider,
		notifier: cfg.Notifier,
		remote:   cfg.RemoteCompaction,
		status:   protocol.StatusIdle,
	}
}

// ThreadID reports the thread this Session drives.
func (s *Session) ThreadID() protocol.ThreadID { return s.threadID }

// ItemsSnapshot returns a copy of the thread's recorded transcript, used by
// the Thread Manager's fork operation to seed a new thread.
func (s *Session) ItemsSnapshot() []protocol.ResponseItem { return s.ctx.Items() }

// Status reports the session's current state-machine state.
func (s *Session) Status() protocol.ThreadStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// setStatus transitions the state machine and emits thread/status/changed
// exactly once, per spec.md §4.3's transition table. A no-op transition
// (new == old) still emits: callers only call setStatus at real
// transition points, never speculatively.
func (s *Session) setStatus(status protocol.ThreadStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	s.notifier.Notify(Event{Type: EventStatusChanged, ThreadID: s.threadID, Status: status})
}

// Interrupt cancels the turn currently in flight, if any. It is a no-op
// when the session is Idle. Used by Op::Interrupt and by
// thread/unsubscribe (spec.md §4.1), which interrupts before tearing the
// thread down.
func (s *Session) Interrupt() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close transitions to NotLoaded, interrupting any in-flight turn first.
// Called by threads.Manager.Remove on thread/unsubscribe.
func (s *Session) Close() {
	s.Interrupt()
	s.setStatus(protocol.StatusNotLoaded)
}

// errBusy is returned by RunTurn when the session is not Idle.
func errBusy(status protocol.ThreadStatus) error {
	return fmt.Errorf("session is %s, not idle", status)
}

// emitError records a system error both as a session transition and as an
// "error" notification, matching spec.md §4.3's SystemError transition.
func (s *Session) emitError(turnID protocol.TurnID, msg string) {
	s.notifier.Notify(Event{Type: EventError, ThreadID: s.threadID, TurnID: turnID, Message: msg})
	s.setStatus(protocol.StatusSystemError)
}

func (s *Session) recordAndNotifyItem(item protocol.ThreadItem, turnID protocol.TurnID) {
	s.notifier.Notify(Event{Type: EventItemStarted, ThreadID: s.threadID, TurnID: turnID, Item: &item})
}

func (s *Session) completeItem(item protocol.ThreadItem, turnID protocol.TurnID) {
	s.notifier.Notify(Event{Type: EventItemCompleted, ThreadID: s.threadID, TurnID: turnID, Item: &item})
}

// discardSink discards output; the turn driver doesn't stream live
// command output to the model, only the final aggregated result, so it
// never needs to observe bytes as they arrive. Concrete command handlers
// may still stream to a ThreadItem update through their own means.
type discardSink struct{}

func (discardSink) Write(p []byte) (int, error) { return len(p), nil }

var _ sandbox.OutputSink = discardSink{}

// now is the timestamp source for every rollout line this package records;
// it is time.Now, kept as a package variable so it can be swapped.
var now = time.Now
