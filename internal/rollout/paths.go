// Package rollout implements the append-only JSONL recorder that persists
// every ResponseItem and session event for a thread, and the reader used
// to replay a thread's history on resume.
package rollout

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/corerun/agentcore/internal/protocol"
)

// RootDir returns the base directory under which rollout files are laid
// out, honoring $AGENTCORE_HOME the way the teacher's tree honors
// $RICOCHET_HOME-style overrides, and falling back to
// ~/.agentcore/sessions.
func RootDir() (string, error) {
	if home := os.Getenv("AGENTCORE_HOME"); home != "" {
		return filepath.Join(home, "sessions"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("rollout: resolve home dir: %w", err)
	}
	return filepath.Join(homeDir, ".agentcore", "sessions"), nil
}

// FilePath returns the path a new rollout file for threadID, created at
// createdAt, should be written to:
// <root>/<yyyy>/<mm>/<dd>/rollout-<timestamp>-<uuid>.jsonl
func FilePath(root string, threadID protocol.ThreadID, createdAt time.Time) string {
	dir := filepath.Join(root,
		fmt.Sprintf("%04d", createdAt.Year()),
		fmt.Sprintf("%02d", int(createdAt.Month())),
		fmt.Sprintf("%02d", createdAt.Day()),
	)
	name := fmt.Sprintf("rollout-%s-%s.jsonl", createdAt.UTC().Format("20060102T150405Z"), threadID)
	return filepath.Join(dir, name)
}
