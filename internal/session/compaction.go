package session

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/corerun/agentcore/internal/contextmgr"
	"github.com/corerun/agentcore/internal/protocol"
	"github.com/corerun/agentcore/internal/wireclient"
)

// maybeCompact checks the context manager's auto-compaction trigger and, if
// it fires and no compaction is already in flight for this thread, runs
// one: remotely via the provider's Compact endpoint when the session is
// configured for it, otherwise locally by driving a synthetic
// summarization turn and replacing the transcript in place (spec.md
// §4.4). It never returns an error itself — a failed compaction attempt is
// logged as an audit event and the turn simply continues uncompacted,
// since skipping a compaction is always safer than losing the turn to it.
func (s *Session) maybeCompact(ctx context.Context, turnID protocol.TurnID, turnCtx protocol.TurnContext) {
	if !s.ctx.ShouldCompact() {
		return
	}
	s.runCompaction(ctx, turnID, turnCtx)
}

// RunCompaction runs a manual compaction (thread/compact/start) outside of
// a turn, regardless of whether the auto-compaction threshold has been
// reached. It is rejected, like RunTurn, when the session is not Idle.
func (s *Session) RunCompaction(ctx context.Context, turnCtx protocol.TurnContext) error {
	s.mu.Lock()
	if s.status != protocol.StatusIdle {
		status := s.status
		s.mu.Unlock()
		return errBusy(status)
	}
	s.mu.Unlock()

	s.setStatus(protocol.StatusRunning)
	defer s.setStatus(protocol.StatusIdle)

	s.runCompaction(ctx, protocol.TurnID(""), turnCtx)
	return nil
}

// runCompaction performs one compaction attempt, guarded against running
// concurrently with another compaction on this thread. It never returns an
// error itself: a failed attempt is logged as an audit event and the
// caller simply continues uncompacted, since skipping a compaction is
// always safer than losing a turn to it.
func (s *Session) runCompaction(ctx context.Context, turnID protocol.TurnID, turnCtx protocol.TurnContext) {
	if !s.ctx.BeginCompaction() {
		return
	}
	defer s.ctx.EndCompaction()

	itemID := uuid.NewString()
	startItem := protocol.ThreadItem{ID: itemID, Kind: protocol.ItemContextCompaction, ContextCompaction: &protocol.ContextCompactionPayload{}}
	s.recordAndNotifyItem(startItem, turnID)

	var compaction protocol.CompactionItem
	var err error
	if s.remote {
		compaction, err = s.compactRemote(ctx, turnCtx)
	} else {
		compaction, err = s.compactLocal(ctx, turnCtx)
	}
	if err != nil {
		_ = s.recorder.RecordEvent("compaction failed: "+err.Error(), now())
		return
	}

	_ = s.recorder.RecordCompacted(compaction.Summary, compaction.RemoteCompact, now())

	doneItem := startItem
	doneItem.ContextCompaction = &protocol.ContextCompactionPayload{Summary: compaction.Summary, RemoteCompact: compaction.RemoteCompact}
	s.completeItem(doneItem, turnID)
}

func (s *Session) compactRemote(ctx context.Context, turnCtx protocol.TurnContext) (protocol.CompactionItem, error) {
	resp, err := s.provider.Compact(ctx, wireclient.CompactRequest{Model: turnCtx.Model, Items: s.ctx.Items()})
	if err != nil {
		return protocol.CompactionItem{}, err
	}
	replacement := []protocol.ResponseItem{protocol.NewAssistantMessage(resp.Summary)}
	compaction := s.ctx.ApplyRemoteCompaction(resp.Summary, replacement)
	s.ctx.UpdateUsage(resp.Usage)
	return compaction, nil
}

func (s *Session) compactLocal(ctx context.Context, turnCtx protocol.TurnContext) (protocol.CompactionItem, error) {
	prompt := append(s.ctx.ForPrompt(), protocol.NewScaffoldingUserMessage(contextmgr.CompactionPrompt()))
	chunks, err := s.provider.ChatStream(ctx, wireclient.ChatRequest{Model: turnCtx.Model, Items: prompt})
	if err != nil {
		return protocol.CompactionItem{}, err
	}

	var summary strings.Builder
	for chunk := range chunks {
		switch chunk.Type {
		case wireclient.ChunkTextDelta:
			summary.WriteString(chunk.Text)
		case wireclient.ChunkUsage:
			if chunk.Usage != nil {
				s.ctx.UpdateUsage(*chunk.Usage)
			}
		case wireclient.ChunkError:
			return protocol.CompactionItem{}, chunk.Err
		}
	}

	return s.ctx.ApplyLocalCompaction(summary.String()), nil
}
