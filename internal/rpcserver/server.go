// Package rpcserver is the App-Server Front End (spec.md §4.1): it frames a
// JSON-RPC 2.0 interaction over stdio, dispatches requests to the Thread
// Manager, and fans session notifications and approval prompts back out to
// the connected client. Grounded on the teacher's cmd/ricochet/main.go
// stdio loop (bufio.Scanner over os.Stdin, one goroutine per inbound
// message) and its server/handler.go dispatch-by-type switch, generalized
// from the teacher's ad hoc {type,id,payload} envelope to the
// protocol.RPCRequest/RPCNotification/RPCResponse JSON-RPC 2.0 shape.
package rpcserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/corerun/agentcore/internal/protocol"
	"github.com/corerun/agentcore/internal/session"
	"github.com/corerun/agentcore/internal/threads"
)

// Transport sends one outbound JSON-RPC frame (a response or a
// notification) to the connected client, shaped after the teacher's
// StdioWriter/WsWriter/BroadcastWriter trio in cmd/ricochet/main.go. The
// stdio transport below is the only implementation in this package.
type Transport interface {
	Send(v interface{}) error
}

// stdioTransport writes newline-delimited JSON to an io.Writer, guarded by
// a mutex since turn notifications can arrive concurrently from multiple
// threads while a client request is being answered.
type stdioTransport struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdioTransport builds a Transport that writes newline-delimited JSON
// to w. Exported so a caller that must build its Server before it has a
// reader to attach (e.g. because the Server also serves as the Tool
// Orchestrator's Prompter, constructed before the Thread Manager that owns
// the Orchestrator) can still pass a real stdio Transport to New up front.
func NewStdioTransport(w io.Writer) Transport {
	return &stdioTransport{w: w}
}

func (t *stdioTransport) Send(v interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = t.w.Write(data)
	return err
}

// Server owns one client connection's worth of state: the thread manager
// it dispatches against, the transport it replies on, whether the
// mandatory initialize handshake has completed, and the in-flight
// approval-prompt correlation table the Prompter bridge uses.
type Server struct {
	threads   *threads.Manager
	transport Transport
	realtime  *RealtimeFeature

	mu          sync.Mutex
	initialized bool

	prompts *pendingPrompts
}

// New builds a Server. realtime may be nil to feature-gate the
// thread/realtime/* surface off entirely (spec.md §4.1's "feature-gated
// endpoints ... return -32600"). mgr may be nil when the Server itself
// must be built first to serve as the Thread Manager's toolorch.Prompter
// (the Server and the Manager's Orchestrator are mutually referential at
// construction time) -- call SetManager once the Manager exists.
func New(mgr *threads.Manager, transport Transport, realtime *RealtimeFeature) *Server {
	return &Server{
		threads:   mgr,
		transport: transport,
		realtime:  realtime,
		prompts:   newPendingPrompts(),
	}
}

// SetManager attaches the Thread Manager a Server dispatches requests
// against. Used when constructing the pair that need each other: a
// toolorch.Orchestrator needs its Prompter (the Server) before the
// threads.Manager that owns it can exist, so cmd/agentcore builds an empty
// Server first, then the Manager with that Server as Prompter and
// Notifier, then calls SetManager to close the loop.
func (s *Server) SetManager(mgr *threads.Manager) {
	s.mu.Lock()
	s.threads = mgr
	s.mu.Unlock()
}

// Notify implements session.Notifier, translating a Session's internal
// Event stream into the server->client notification surface spec.md §4.1
// names (turn/started, turn/completed, item/started, item/completed,
// thread/status/changed, error). It is passed as threads.Deps.Notifier so
// every loaded thread's Session reports through this one Server.
func (s *Server) Notify(e session.Event) {
	method, params, ok := translateEvent(e)
	if !ok {
		return
	}
	s.sendNotification(method, params)
}

// sendNotification marshals and sends one server->client notification
// frame directly, used both by Notify (Session-originated events) and by
// handlers that emit a notification the Session itself has no concept of,
// like thread/closed.
func (s *Server) sendNotification(method string, params interface{}) {
	note, err := protocol.NewNotification(method, params)
	if err != nil {
		log.Printf("rpcserver: marshal notification %s: %v", method, err)
		return
	}
	if err := s.transport.Send(note); err != nil {
		log.Printf("rpcserver: send notification %s: %v", method, err)
	}
}

// ServeStdio builds a fresh Server wired to a stdio Transport and starts
// reading r. Use this when no collaborator needs a handle to the Server
// before the read loop starts. When the Tool Orchestrator's Prompter (this
// same Server, per spec.md §4.5) must be constructed before the Thread
// Manager it will be attached to exists, build the Server with New first,
// call SetManager once the Manager exists, then start reading with
// AttachStdio instead of this function.
func ServeStdio(ctx context.Context, r io.Reader, w io.Writer, mgr *threads.Manager, realtime *RealtimeFeature) *Server {
	srv := New(mgr, &stdioTransport{w: w}, realtime)
	srv.AttachStdio(ctx, r)
	return srv
}

// AttachStdio points an already-constructed Server at a stdio transport and
// starts its read loop, returning as soon as the loop has been started
// (the loop itself runs in the background until r hits EOF or ctx is
// cancelled). Grounded on runStdioMode's scanner loop in the teacher's
// main.go, including its 1MiB line buffer for oversized frames (e.g. large
// tool outputs echoed back as approval context).
func (s *Server) AttachStdio(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	go func() {
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}
			line := append([]byte(nil), scanner.Bytes()...)
			go s.handleFrame(ctx, line)
		}
		if err := scanner.Err(); err != nil {
			log.Printf("rpcserver: stdin scanner: %v", err)
		}
	}()
}

// handleFrame decides whether an inbound line is a request, a
// notification, or a response to one of our own server->client requests
// (an approval answer), and routes it accordingly.
func (s *Server) handleFrame(ctx context.Context, line []byte) {
	var probe struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		log.Printf("rpcserver: malformed frame: %v", err)
		return
	}

	if probe.Method == "" && probe.ID != nil {
		var resp protocol.RPCResponse
		if err := json.Unmarshal(line, &resp); err == nil {
			s.prompts.resolve(resp)
			return
		}
	}

	var req protocol.RPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		log.Printf("rpcserver: malformed request: %v", err)
		return
	}
	s.handleRequest(ctx, req)
}

func (s *Server) handleRequest(ctx context.Context, req protocol.RPCRequest) {
	if req.Method != "initialize" {
		s.mu.Lock()
		ready := s.initialized
		s.mu.Unlock()
		if !ready {
			s.reply(protocol.NewRPCError(req.ID, protocol.ErrInvalidRequest, "initialize must be the first request"))
			return
		}
	}

	resp := s.dispatch(ctx, req)
	s.reply(resp)
}

func (s *Server) reply(resp protocol.RPCResponse) {
	if err := s.transport.Send(resp); err != nil {
		log.Printf("rpcserver: send response: %v", err)
	}
}

// dispatch is the method table spec.md §4.1 names. Every handler returns a
// complete protocol.RPCResponse so dispatch itself never needs to know
// which methods can fail.
func (s *Server) dispatch(ctx context.Context, req protocol.RPCRequest) protocol.RPCResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "thread/start":
		return s.handleThreadStart(ctx, req)
	case "thread/resume":
		return s.handleThreadResume(ctx, req)
	case "thread/list":
		return s.handleThreadList(req)
	case "thread/read":
		return s.handleThreadRead(req)
	case "thread/loaded/list":
		return s.handleThreadLoadedList(req)
	case "thread/unsubscribe":
		return s.handleThreadUnsubscribe(req)
	case "turn/start":
		return s.handleTurnStart(ctx, req)
	case "thread/compact/start":
		return s.handleCompactStart(ctx, req)
	case "thread/realtime/start":
		return s.handleRealtimeStart(ctx, req)
	case "thread/realtime/stop":
		return s.handleRealtimeStop(req)
	case "thread/realtime/appendAudio":
		return s.handleRealtimeAppendAudio(req)
	case "thread/realtime/appendText":
		return s.handleRealtimeAppendText(req)
	default:
		return protocol.NewRPCError(req.ID, protocol.ErrMethodNotFound, fmt.Sprintf("unknown method %q", req.Method))
	}
}

func (s *Server) handleInitialize(req protocol.RPCRequest) protocol.RPCResponse {
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	resp, err := protocol.NewRPCResult(req.ID, map[string]string{"server": "agentcore", "protocol": "2.0"})
	if err != nil {
		return protocol.NewRPCError(req.ID, protocol.ErrInternal, err.Error())
	}
	return resp
}

// result is a tiny helper so per-method handlers can return (value, err)
// and let one line turn that into the right RPCResponse.
func result(id json.RawMessage, v interface{}, err error) protocol.RPCResponse {
	if err != nil {
		return protocol.NewRPCError(id, protocol.ErrInvalidRequest, err.Error())
	}
	resp, merr := protocol.NewRPCResult(id, v)
	if merr != nil {
		return protocol.NewRPCError(id, protocol.ErrInternal, merr.Error())
	}
	return resp
}
