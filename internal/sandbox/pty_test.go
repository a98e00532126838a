package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestNoneExecutorRunsCommand(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := NoneExecutor{}.Run(ctx, RunRequest{Command: []string{"echo", "hello-sandbox"}, Cwd: "."}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("exit code = %d, want 0", result.ExitCode)
	}
	if !strings.Contains(result.Output, "hello-sandbox") {
		t.Fatalf("output = %q, want it to contain hello-sandbox", result.Output)
	}
}

func TestNoneExecutorNonZeroExit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := NoneExecutor{}.Run(ctx, RunRequest{Command: []string{"sh", "-c", "exit 3"}, Cwd: "."}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", result.ExitCode)
	}
}
