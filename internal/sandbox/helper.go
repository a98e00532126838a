package sandbox

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"

	"github.com/hashicorp/yamux"
)

// HelperRequest is one line sent on the helper's control stream.
type HelperRequest struct {
	Command        []string `json:"command"`
	Kind           Kind     `json:"kind"`
	Cwd            string   `json:"cwd"`
	Env            []string `json:"env,omitempty"`
	WritableRoots  []string `json:"writable_roots,omitempty"`
	NetworkAllowed bool     `json:"network_allowed"`
}

// HelperResponse is one line read back on the helper's control stream.
type HelperResponse struct {
	ExitCode              int                    `json:"exit_code"`
	Output                string                 `json:"output"`
	Denied                bool                   `json:"denied"`
	NetworkPolicyDecision *NetworkPolicyDecision `json:"network_policy_decision,omitempty"`
	Error                 string                 `json:"error,omitempty"`
}

// cmdPipe adapts a child process's stdin/stdout into the single
// io.ReadWriteCloser yamux.Client multiplexes streams over, mirroring the
// teacher's WebSocketRWC adapter in internal/bridge/websocket_rwc.go —
// re-targeted here from a websocket onto a local subprocess pipe, since no
// generated stubs for the teacher's original cloud-bridge protocol
// survived the pack's retrieval.
type cmdPipe struct {
	r io.ReadCloser
	w io.WriteCloser
}

func (p *cmdPipe) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *cmdPipe) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *cmdPipe) Close() error {
	werr := p.w.Close()
	rerr := p.r.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// HelperClient manages one external sandbox-helper child process, speaking
// a small JSON-per-line control protocol over one yamux stream and
// receiving live stdout/stderr passthrough on a second, so a
// CommandExecution ThreadItem can be aggregated as output streams in.
type HelperClient struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	session *yamux.Session
	control *bufio.ReadWriter
	controlConn io.Closer
}

// StartHelper launches the configured sandbox-helper binary and opens the
// control stream over a yamux session multiplexed on its stdin/stdout
// pipe. Each Run opens its own output stream on the same session.
func StartHelper(binary string, args ...string) (*HelperClient, error) {
	cmd := exec.Command(binary, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("sandbox: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("sandbox: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("sandbox: start helper %s: %w", binary, err)
	}

	session, err := yamux.Client(&cmdPipe{r: stdout, w: stdin}, nil)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("sandbox: yamux client: %w", err)
	}

	controlConn, err := session.Open()
	if err != nil {
		_ = session.Close()
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("sandbox: open control stream: %w", err)
	}

	return &HelperClient{
		cmd:         cmd,
		session:     session,
		control:     bufio.NewReadWriter(bufio.NewReader(controlConn), bufio.NewWriter(controlConn)),
		controlConn: controlConn,
	}, nil
}

// Run sends req on the control stream and blocks for the matching
// response line, streaming a second, output-only stream to out as it
// arrives.
func (h *HelperClient) Run(req HelperRequest, out OutputSink) (HelperResponse, error) {
	outputConn, err := h.session.Open()
	if err != nil {
		return HelperResponse{}, fmt.Errorf("sandbox: open output stream: %w", err)
	}
	defer outputConn.Close()

	if out != nil {
		go func() {
			if _, err := io.Copy(out, outputConn); err != nil {
				log.Printf("[sandbox] output stream copy ended: %v", err)
			}
		}()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	raw, err := json.Marshal(req)
	if err != nil {
		return HelperResponse{}, fmt.Errorf("sandbox: marshal request: %w", err)
	}
	if _, err := h.control.Write(append(raw, '\n')); err != nil {
		return HelperResponse{}, fmt.Errorf("sandbox: write control request: %w", err)
	}
	if err := h.control.Flush(); err != nil {
		return HelperResponse{}, fmt.Errorf("sandbox: flush control request: %w", err)
	}

	line, err := h.control.ReadString('\n')
	if err != nil {
		return HelperResponse{}, fmt.Errorf("sandbox: read control response: %w", err)
	}
	var resp HelperResponse
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return HelperResponse{}, fmt.Errorf("sandbox: parse control response: %w", err)
	}
	return resp, nil
}

// Close tears down the helper session and waits for the child process.
func (h *HelperClient) Close() error {
	_ = h.controlConn.Close()
	_ = h.session.Close()
	return h.cmd.Wait()
}

// HelperExecutor adapts a HelperClient to the Executor interface used by
// the tool orchestrator, for every Kind other than KindNone.
type HelperExecutor struct {
	Client *HelperClient
}

func (e HelperExecutor) Run(ctx context.Context, req RunRequest, out OutputSink) (RunResult, error) {
	done := make(chan struct{})
	var resp HelperResponse
	var runErr error
	go func() {
		defer close(done)
		resp, runErr = e.Client.Run(HelperRequest{
			Command:        req.Command,
			Kind:           req.Kind,
			Cwd:            req.Cwd,
			Env:            req.Env,
			WritableRoots:  req.WritableRoots,
			NetworkAllowed: req.NetworkAllowed,
		}, out)
	}()

	select {
	case <-ctx.Done():
		return RunResult{}, ctx.Err()
	case <-done:
	}
	if runErr != nil {
		return RunResult{}, runErr
	}
	if resp.Error != "" {
		return RunResult{}, fmt.Errorf("sandbox: helper error: %s", resp.Error)
	}
	return RunResult{
		ExitCode:              resp.ExitCode,
		Output:                resp.Output,
		Denied:                resp.Denied,
		NetworkPolicyDecision: resp.NetworkPolicyDecision,
	}, nil
}
