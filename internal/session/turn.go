package session

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/corerun/agentcore/internal/contextmgr"
	"github.com/corerun/agentcore/internal/protocol"
	"github.com/corerun/agentcore/internal/toolorch"
	"github.com/corerun/agentcore/internal/wireclient"
)

// RunTurn drives one full turn: it appends userInputs, streams the model's
// response, dispatches any tool calls the model makes back through it for
// as many rounds as the model keeps calling tools, checks for
// auto-compaction between rounds, and emits turn/completed when the model
// stops producing output. Grounded on the teacher's Controller.Chat loop
// in core/internal/agent/controller.go, generalized from its UI-callback
// shape into spec.md §4.1's notification surface.
func (s *Session) RunTurn(parent context.Context, turnCtx protocol.TurnContext, userInputs []protocol.ResponseItem) error {
	s.mu.Lock()
	if s.status != protocol.StatusIdle {
		status := s.status
		s.mu.Unlock()
		return errBusy(status)
	}
	s.mu.Unlock()
	s.setStatus(protocol.StatusRunning)

	turnID := protocol.NewTurnID()
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	s.cancel = cancel
	s.turnID = turnID
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
	}()

	for _, item := range userInputs {
		s.ctx.RecordItems(item)
		_ = s.recorder.RecordItem(item, now())
	}
	_ = s.recorder.RecordTurnContext(turnCtx, now())
	s.notifier.Notify(Event{Type: EventTurnStarted, ThreadID: s.threadID, TurnID: turnID, TurnContext: &turnCtx})

	var lastAssistantMessage string
	anyItemCompleted := false
	cancelled := false

	for {
		if cancelled {
			break
		}

		chunks, err := s.provider.ChatStream(ctx, wireclient.ChatRequest{
			Model: turnCtx.Model,
			Items: s.ctx.ForPrompt(),
		})
		if err != nil {
			s.emitError(turnID, err.Error())
			return err
		}

		var textBuf, reasoningBuf strings.Builder
		var pendingCalls []protocol.FunctionCallItem
		streamErr := error(nil)

	consumeLoop:
		for {
			select {
			case <-ctx.Done():
				cancelled = true
				break consumeLoop
			case chunk, ok := <-chunks:
				if !ok {
					break consumeLoop
				}
				switch chunk.Type {
				case wireclient.ChunkTextDelta:
					textBuf.WriteString(chunk.Text)
				case wireclient.ChunkReasoning:
					reasoningBuf.WriteString(chunk.Text)
				case wireclient.ChunkToolCall:
					if chunk.ToolCall != nil {
						s.flushText(&textBuf, turnID, &lastAssistantMessage, &anyItemCompleted)
						s.flushReasoning(&reasoningBuf, turnID, &anyItemCompleted)
						pendingCalls = append(pendingCalls, *chunk.ToolCall)
					}
				case wireclient.ChunkUsage:
					if chunk.Usage != nil {
						s.ctx.UpdateUsage(*chunk.Usage)
					}
				case wireclient.ChunkDone:
					break consumeLoop
				case wireclient.ChunkError:
					streamErr = chunk.Err
					break consumeLoop
				}
			}
		}

		s.flushText(&textBuf, turnID, &lastAssistantMessage, &anyItemCompleted)
		s.flushReasoning(&reasoningBuf, turnID, &anyItemCompleted)

		if streamErr != nil {
			s.emitError(turnID, streamErr.Error())
			return streamErr
		}
		if cancelled {
			break
		}

		if len(pendingCalls) == 0 {
			break
		}

		completed, fatal := s.dispatchToolCalls(ctx, turnID, turnCtx, pendingCalls)
		if completed {
			anyItemCompleted = true
		}
		if fatal != nil {
			s.emitError(turnID, fatal.Error())
			return fatal
		}
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		s.maybeCompact(ctx, turnID, turnCtx)
	}

	s.maybeCompact(ctx, turnID, turnCtx)

	s.notifier.Notify(Event{
		Type:                       EventTurnCompleted,
		ThreadID:                   s.threadID,
		TurnID:                     turnID,
		LastAssistantMessage:       lastAssistantMessage,
		LastAssistantMessageTokens: contextmgr.EstimateAuxTokens(lastAssistantMessage),
		Cancelled:                  cancelled,
	})
	s.setStatus(protocol.StatusIdle)
	return nil
}

func (s *Session) flushText(buf *strings.Builder, turnID protocol.TurnID, lastAssistantMessage *string, anyItemCompleted *bool) {
	if buf.Len() == 0 {
		return
	}
	text := buf.String()
	buf.Reset()

	respItem := protocol.NewAssistantMessage(text)
	s.ctx.RecordItems(respItem)
	_ = s.recorder.RecordItem(respItem, now())

	item := protocol.NewAgentMessageItem(uuid.NewString(), text)
	s.recordAndNotifyItem(item, turnID)
	s.completeItem(item, turnID)

	*lastAssistantMessage = text
	*anyItemCompleted = true
}

func (s *Session) flushReasoning(buf *strings.Builder, turnID protocol.TurnID, anyItemCompleted *bool) {
	if buf.Len() == 0 {
		return
	}
	text := buf.String()
	buf.Reset()

	respItem := protocol.ResponseItem{
		Type:      protocol.ResponseItemReasoning,
		Reasoning: &protocol.ReasoningItem{Summary: []protocol.ContentItem{{Type: protocol.ContentOutputText, Text: text}}},
	}
	s.ctx.RecordItems(respItem)
	_ = s.recorder.RecordItem(respItem, now())

	item := protocol.ThreadItem{ID: uuid.NewString(), Kind: protocol.ItemReasoning, Reasoning: &protocol.ReasoningPayload{Text: text}}
	s.recordAndNotifyItem(item, turnID)
	s.completeItem(item, turnID)

	*anyItemCompleted = true
}

// dispatchToolCalls runs every call collected from one model round through
// the tool orchestrator, concurrently when turnCtx.ParallelToolCalls is
// set and there is more than one call to run, serially in received order
// otherwise (spec.md §4.3's parallel-tool-call gating).
func (s *Session) dispatchToolCalls(ctx context.Context, turnID protocol.TurnID, turnCtx protocol.TurnContext, calls []protocol.FunctionCallItem) (anyCompleted bool, fatal *toolorch.CallError) {
	var mu sync.Mutex

	run := func(call protocol.FunctionCallItem) *toolorch.CallError {
		category := toolorch.GetCategory(call.Name)

		callItem := protocol.NewFunctionCall(call.CallID, call.Name, call.Arguments)
		s.ctx.RecordItems(callItem)
		_ = s.recorder.RecordItem(callItem, now())

		item := deriveToolItem(category, call.Name, call.Arguments, turnCtx.Cwd)
		if item != nil {
			s.recordAndNotifyItem(*item, turnID)
		}

		inv := toolorch.Invocation{
			ThreadID: s.threadID,
			CallID:   call.CallID,
			Name:     call.Name,
			Args:     call.Arguments,
			Turn:     turnCtx,
		}
		output, callErr := s.orch.Call(ctx, inv, discardSink{})

		content, isErr := output.Content, output.IsError
		if callErr != nil {
			if callErr.Kind == toolorch.ErrFatal {
				return callErr
			}
			content, isErr = callErr.Message, true
		}

		if item != nil {
			completeToolItem(item, content, isErr)
			mu.Lock()
			s.completeItem(*item, turnID)
			anyCompleted = true
			mu.Unlock()
		}

		outItem := protocol.NewFunctionCallOutput(call.CallID, content, isErr)
		s.ctx.RecordItems(outItem)
		_ = s.recorder.RecordItem(outItem, now())
		return nil
	}

	if turnCtx.ParallelToolCalls && len(calls) > 1 {
		var wg sync.WaitGroup
		for _, call := range calls {
			wg.Add(1)
			go func(call protocol.FunctionCallItem) {
				defer wg.Done()
				if err := run(call); err != nil {
					mu.Lock()
					if fatal == nil {
						fatal = err
					}
					mu.Unlock()
				}
			}(call)
		}
		wg.Wait()
		return anyCompleted, fatal
	}

	for _, call := range calls {
		if err := run(call); err != nil {
			return anyCompleted, err
		}
	}
	return anyCompleted, nil
}
