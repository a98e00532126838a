package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

// outputCap bounds the buffered copy of a command's combined output kept
// for the final CommandExecution aggregated_output, mirroring the
// teacher's SimpleBuffer truncation in host/pty_manager.go.
const outputCap = 1 << 20 // 1MiB

// ptyBuffer is a thread-safe, size-capped byte buffer.
type ptyBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *ptyBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	if b.buf.Len() > outputCap {
		trimmed := b.buf.Bytes()[b.buf.Len()-outputCap:]
		b.buf.Reset()
		b.buf.Write(trimmed)
	}
	return len(p), nil
}

func (b *ptyBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// NoneExecutor runs a command directly under a PTY with no sandbox
// mediation at all — used both for the None strategy proper and as the
// escalation target after a sandboxed run is denied and approval to retry
// without sandbox is granted.
type NoneExecutor struct{}

// Run starts command under a PTY, streams its output to out (if non-nil)
// as it arrives, and waits for exit or ctx cancellation. Cancellation
// kills the child process itself, matching spec.md §5's cooperative
// cancellation: the tool executor receives a child token and propagates it
// to the child process. Processes the child has spawned are not signalled.
func (NoneExecutor) Run(ctx context.Context, req RunRequest, out OutputSink) (RunResult, error) {
	if len(req.Command) == 0 {
		return RunResult{}, fmt.Errorf("sandbox: empty command")
	}

	cmd := exec.Command(req.Command[0], req.Command[1:]...)
	cmd.Dir = req.Cwd
	if len(req.Env) > 0 {
		cmd.Env = append(os.Environ(), req.Env...)
	}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return RunResult{}, fmt.Errorf("sandbox: start pty: %w", err)
	}
	defer ptmx.Close()

	buf := &ptyBuffer{}
	var writers []io.Writer
	writers = append(writers, buf)
	if out != nil {
		writers = append(writers, out)
	}
	copyDone := make(chan struct{})
	go func() {
		defer close(copyDone)
		_, _ = io.Copy(io.MultiWriter(writers...), ptmx)
	}()

	killed := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
		case <-killed:
		}
	}()

	waitErr := cmd.Wait()
	close(killed)
	<-copyDone

	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	return RunResult{ExitCode: exitCode, Output: buf.String()}, nil
}
