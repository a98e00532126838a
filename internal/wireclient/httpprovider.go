package wireclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/corerun/agentcore/internal/protocol"
)

// HTTPProvider is a hand-rolled HTTP+SSE client against a JSON
// request/response API shaped like the Responses API: POST /responses to
// start a turn (streamed as text/event-stream), POST /responses/compact to
// run a remote compaction. It carries no provider-specific vendoring; any
// backend exposing this shape can sit behind it.
type HTTPProvider struct {
	BaseURL    string
	APIKey     string
	httpClient *http.Client
}

// NewHTTPProvider builds a provider pointed at baseURL (e.g.
// "https://api.example.com/v1").
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 0, // streaming responses: rely on ctx for cancellation
		},
	}
}

type wireRequest struct {
	Model           string        `json:"model"`
	System          string        `json:"system,omitempty"`
	Input           []wireItem    `json:"input"`
	MaxOutputTokens int           `json:"max_output_tokens,omitempty"`
	Stream          bool          `json:"stream"`
}

type wireItem struct {
	Type     string `json:"type"`
	Role     string `json:"role,omitempty"`
	Content  string `json:"content,omitempty"`
	CallID   string `json:"call_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output   string `json:"output,omitempty"`
}

func toWireItems(items []protocol.ResponseItem) []wireItem {
	out := make([]wireItem, 0, len(items))
	for _, item := range items {
		switch item.Type {
		case protocol.ResponseItemMessage:
			var text strings.Builder
			for _, c := range item.Message.Content {
				text.WriteString(c.Text)
			}
			out = append(out, wireItem{Type: "message", Role: string(item.Message.Role), Content: text.String()})
		case protocol.ResponseItemFunctionCall:
			out = append(out, wireItem{
				Type: "function_call", CallID: string(item.FunctionCall.CallID),
				Name: item.FunctionCall.Name, Arguments: item.FunctionCall.Arguments,
			})
		case protocol.ResponseItemFunctionCallOutput:
			out = append(out, wireItem{
				Type: "function_call_output", CallID: string(item.FunctionCallOutput.CallID),
				Output: item.FunctionCallOutput.Output,
			})
		}
	}
	return out
}

// sseEvent is one "event: ...\ndata: ...\n\n" block.
type sseEvent struct {
	Event string
	Data  string
}

func (p *HTTPProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	body, err := json.Marshal(wireRequest{
		Model:           req.Model,
		System:          req.System,
		Input:           toWireItems(req.Items),
		MaxOutputTokens: req.MaxOutputTokens,
		Stream:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("wireclient: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("wireclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if p.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("wireclient: do request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("wireclient: unexpected status %d", resp.StatusCode)
	}

	out := make(chan StreamChunk, 16)
	go p.processStream(resp.Body, out)
	return out, nil
}

func (p *HTTPProvider) processStream(body io.ReadCloser, out chan<- StreamChunk) {
	defer body.Close()
	defer close(out)

	var toolCallName, toolCallID string
	var toolArgs strings.Builder

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var event sseEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			event.Data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if event.Event == "" {
				continue
			}
			p.handleEvent(event, out, &toolCallName, &toolCallID, &toolArgs)
			event = sseEvent{}
		}
	}
	if err := scanner.Err(); err != nil {
		out <- StreamChunk{Type: ChunkError, Err: fmt.Errorf("wireclient: stream read: %w", err)}
	}
}

func (p *HTTPProvider) handleEvent(event sseEvent, out chan<- StreamChunk, toolCallName, toolCallID *string, toolArgs *strings.Builder) {
	switch event.Event {
	case "response.output_text.delta":
		var payload struct {
			Delta string `json:"delta"`
		}
		if err := json.Unmarshal([]byte(event.Data), &payload); err == nil {
			out <- StreamChunk{Type: ChunkTextDelta, Text: payload.Delta}
		}
	case "response.function_call.start":
		var payload struct {
			CallID string `json:"call_id"`
			Name   string `json:"name"`
		}
		if err := json.Unmarshal([]byte(event.Data), &payload); err == nil {
			*toolCallID = payload.CallID
			*toolCallName = payload.Name
			toolArgs.Reset()
		}
	case "response.function_call.arguments.delta":
		var payload struct {
			Delta string `json:"delta"`
		}
		if err := json.Unmarshal([]byte(event.Data), &payload); err == nil {
			toolArgs.WriteString(payload.Delta)
		}
	case "response.function_call.done":
		out <- StreamChunk{
			Type: ChunkToolCall,
			ToolCall: &protocol.FunctionCallItem{
				CallID:    protocol.CallID(*toolCallID),
				Name:      *toolCallName,
				Arguments: toolArgs.String(),
			},
		}
	case "response.completed":
		var payload struct {
			Usage struct {
				InputTokens     int `json:"input_tokens"`
				OutputTokens    int `json:"output_tokens"`
				ReasoningTokens int `json:"reasoning_tokens"`
			} `json:"usage"`
		}
		if err := json.Unmarshal([]byte(event.Data), &payload); err == nil {
			out <- StreamChunk{Type: ChunkUsage, Usage: &protocol.TokenUsageInfo{
				InputTokens:     payload.Usage.InputTokens,
				OutputTokens:    payload.Usage.OutputTokens,
				ReasoningTokens: payload.Usage.ReasoningTokens,
				TotalTokens:     payload.Usage.InputTokens + payload.Usage.OutputTokens,
			}}
		}
		out <- StreamChunk{Type: ChunkDone}
	case "error":
		out <- StreamChunk{Type: ChunkError, Err: fmt.Errorf("wireclient: provider error: %s", event.Data)}
	}
}

func (p *HTTPProvider) Compact(ctx context.Context, req CompactRequest) (*CompactResponse, error) {
	body, err := json.Marshal(wireRequest{
		Model: req.Model,
		Input: toWireItems(req.Items),
	})
	if err != nil {
		return nil, fmt.Errorf("wireclient: marshal compact request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/responses/compact", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("wireclient: build compact request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	client := p.httpClient
	if client.Timeout == 0 {
		client = &http.Client{Timeout: 90 * time.Second}
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("wireclient: do compact request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wireclient: unexpected compact status %d", resp.StatusCode)
	}

	var payload struct {
		Summary string `json:"summary"`
		Usage   struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("wireclient: decode compact response: %w", err)
	}

	return &CompactResponse{
		Summary: payload.Summary,
		Usage: protocol.TokenUsageInfo{
			InputTokens:  payload.Usage.InputTokens,
			OutputTokens: payload.Usage.OutputTokens,
			TotalTokens:  payload.Usage.InputTokens + payload.Usage.OutputTokens,
		},
	}, nil
}
