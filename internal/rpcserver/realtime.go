package rpcserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/corerun/agentcore/internal/protocol"
)

// Dialer opens one upstream realtime-voice connection, e.g. a
// gorilla/websocket.DefaultDialer.Dial against an upstream URL. The
// cmd/agentcore entry point configures no upstream and passes a nil
// *RealtimeFeature, so there the surface stays off. Grounded on the teacher's
// bridge.WebSocketRWC, which wraps the same *websocket.Conn for a
// yamux-multiplexed transport -- this is the analogous single-purpose
// wrapper for one realtime voice stream.
type Dialer func(ctx context.Context) (*websocket.Conn, error)

// RealtimeFeature gates thread/realtime/* on: when nil, the Server reports
// every thread/realtime/* request as the -32600 "feature not enabled"
// class spec.md §4.1 calls for.
type RealtimeFeature struct {
	dial Dialer

	mu       sync.Mutex
	sessions map[protocol.ThreadID]*realtimeSession
}

// NewRealtimeFeature builds a realtime feature gate backed by dial, which
// opens one upstream connection per thread/realtime/start call.
func NewRealtimeFeature(dial Dialer) *RealtimeFeature {
	return &RealtimeFeature{dial: dial, sessions: make(map[protocol.ThreadID]*realtimeSession)}
}

type realtimeSession struct {
	id       string
	threadID protocol.ThreadID
	conn     *websocket.Conn
	writeMu  sync.Mutex
	cancel   context.CancelFunc
}

func (rs *realtimeSession) send(v interface{}) error {
	rs.writeMu.Lock()
	defer rs.writeMu.Unlock()
	return rs.conn.WriteJSON(v)
}

// upstreamEvent is the minimal envelope every message the upstream voice
// service sends carries: a discriminant "type" plus whatever fields that
// type needs, read generically and re-emitted as the matching
// thread/realtime/* notification.
type upstreamEvent struct {
	Type               string          `json:"type"`
	Delta              string          `json:"delta"`
	SamplesPerChannel  int             `json:"samples_per_channel"`
	Item               json.RawMessage `json:"item"`
	Message            string          `json:"message"`
}

type realtimeStartParams struct {
	ThreadID  string `json:"thread_id"`
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleRealtimeStart(ctx context.Context, req protocol.RPCRequest) protocol.RPCResponse {
	if s.realtime == nil {
		return protocol.NewRPCError(req.ID, protocol.ErrInvalidRequest, "realtime is not enabled")
	}
	var params realtimeStartParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return protocol.NewRPCError(req.ID, protocol.ErrInvalidParams, err.Error())
	}
	threadID := protocol.ThreadID(params.ThreadID)
	if _, ok := s.threads.Get(threadID); !ok {
		return protocol.NewRPCError(req.ID, protocol.ErrInvalidRequest, fmt.Sprintf("thread %s is not loaded", params.ThreadID))
	}

	conn, err := s.realtime.dial(ctx)
	if err != nil {
		return protocol.NewRPCError(req.ID, protocol.ErrInternal, fmt.Sprintf("dial realtime upstream: %v", err))
	}

	sessionID := params.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	sessCtx, cancel := context.WithCancel(ctx)
	rs := &realtimeSession{id: sessionID, threadID: threadID, conn: conn, cancel: cancel}

	s.realtime.mu.Lock()
	s.realtime.sessions[threadID] = rs
	s.realtime.mu.Unlock()

	if err := rs.send(map[string]string{"type": "session.create", "prompt": params.Prompt}); err != nil {
		conn.Close()
		s.realtime.mu.Lock()
		delete(s.realtime.sessions, threadID)
		s.realtime.mu.Unlock()
		return protocol.NewRPCError(req.ID, protocol.ErrInternal, fmt.Sprintf("session.create: %v", err))
	}

	go s.pumpRealtimeUpstream(sessCtx, rs)

	s.sendNotification("thread/realtime/started", map[string]string{"thread_id": params.ThreadID, "session_id": sessionID})
	return result(req.ID, map[string]string{}, nil)
}

// pumpRealtimeUpstream reads upstream frames until the connection closes or
// ctx is cancelled (by thread/realtime/stop), translating each into its
// thread/realtime/* notification.
func (s *Server) pumpRealtimeUpstream(ctx context.Context, rs *realtimeSession) {
	defer s.closeRealtimeSession(rs.threadID, "transport_closed")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var evt upstreamEvent
		if err := rs.conn.ReadJSON(&evt); err != nil {
			return
		}

		switch evt.Type {
		case "response.output_audio.delta":
			s.sendNotification("thread/realtime/outputAudio/delta", map[string]interface{}{
				"thread_id":           string(rs.threadID),
				"session_id":          rs.id,
				"delta":               evt.Delta,
				"samples_per_channel": evt.SamplesPerChannel,
			})
		case "conversation.item.added":
			s.sendNotification("thread/realtime/itemAdded", map[string]interface{}{
				"thread_id":  string(rs.threadID),
				"session_id": rs.id,
				"item":       evt.Item,
			})
		case "error":
			s.sendNotification("thread/realtime/error", map[string]string{
				"thread_id":  string(rs.threadID),
				"session_id": rs.id,
				"message":    evt.Message,
			})
		default:
			log.Printf("rpcserver: realtime: unrecognized upstream event %q", evt.Type)
		}
	}
}

// closeRealtimeSession tears a thread's realtime session down, idempotent
// so both an explicit thread/realtime/stop and an upstream transport
// closure can call it without racing each other.
func (s *Server) closeRealtimeSession(threadID protocol.ThreadID, reason string) {
	s.realtime.mu.Lock()
	rs, ok := s.realtime.sessions[threadID]
	if ok {
		delete(s.realtime.sessions, threadID)
	}
	s.realtime.mu.Unlock()
	if !ok {
		return
	}
	rs.cancel()
	rs.conn.Close()
	s.sendNotification("thread/realtime/closed", map[string]string{
		"thread_id": string(threadID), "session_id": rs.id, "reason": reason,
	})
}

type realtimeThreadParams struct {
	ThreadID string `json:"thread_id"`
}

func (s *Server) handleRealtimeStop(req protocol.RPCRequest) protocol.RPCResponse {
	if s.realtime == nil {
		return protocol.NewRPCError(req.ID, protocol.ErrInvalidRequest, "realtime is not enabled")
	}
	var params realtimeThreadParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return protocol.NewRPCError(req.ID, protocol.ErrInvalidParams, err.Error())
	}
	s.closeRealtimeSession(protocol.ThreadID(params.ThreadID), "client_requested")
	return result(req.ID, map[string]string{}, nil)
}

type realtimeAppendTextParams struct {
	ThreadID string `json:"thread_id"`
	Text     string `json:"text"`
}

func (s *Server) handleRealtimeAppendText(req protocol.RPCRequest) protocol.RPCResponse {
	if s.realtime == nil {
		return protocol.NewRPCError(req.ID, protocol.ErrInvalidRequest, "realtime is not enabled")
	}
	var params realtimeAppendTextParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return protocol.NewRPCError(req.ID, protocol.ErrInvalidParams, err.Error())
	}
	rs, ok := s.realtimeSessionFor(protocol.ThreadID(params.ThreadID))
	if !ok {
		return protocol.NewRPCError(req.ID, protocol.ErrInvalidRequest, "no realtime session for this thread")
	}
	if err := rs.send(map[string]interface{}{
		"type": "conversation.item.create",
		"item": map[string]string{"type": "text", "text": params.Text},
	}); err != nil {
		return protocol.NewRPCError(req.ID, protocol.ErrInternal, err.Error())
	}
	return result(req.ID, map[string]string{}, nil)
}

type realtimeAudioParams struct {
	ThreadID string `json:"thread_id"`
	Audio    struct {
		Data              string `json:"data"`
		SampleRate        int    `json:"sample_rate"`
		NumChannels       int    `json:"num_channels"`
		SamplesPerChannel int    `json:"samples_per_channel,omitempty"`
	} `json:"audio"`
}

func (s *Server) handleRealtimeAppendAudio(req protocol.RPCRequest) protocol.RPCResponse {
	if s.realtime == nil {
		return protocol.NewRPCError(req.ID, protocol.ErrInvalidRequest, "realtime is not enabled")
	}
	var params realtimeAudioParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return protocol.NewRPCError(req.ID, protocol.ErrInvalidParams, err.Error())
	}
	rs, ok := s.realtimeSessionFor(protocol.ThreadID(params.ThreadID))
	if !ok {
		return protocol.NewRPCError(req.ID, protocol.ErrInvalidRequest, "no realtime session for this thread")
	}
	if err := rs.send(map[string]interface{}{
		"type":                 "response.input_audio.delta",
		"delta":                params.Audio.Data,
		"sample_rate":          params.Audio.SampleRate,
		"num_channels":         params.Audio.NumChannels,
		"samples_per_channel":  params.Audio.SamplesPerChannel,
	}); err != nil {
		return protocol.NewRPCError(req.ID, protocol.ErrInternal, err.Error())
	}
	return result(req.ID, map[string]string{}, nil)
}

func (s *Server) realtimeSessionFor(threadID protocol.ThreadID) (*realtimeSession, bool) {
	s.realtime.mu.Lock()
	defer s.realtime.mu.Unlock()
	rs, ok := s.realtime.sessions[threadID]
	return rs, ok
}
