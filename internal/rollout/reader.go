package rollout

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/corerun/agentcore/internal/protocol"
)

// ReadResult is the outcome of reading one rollout file: the successfully
// parsed lines in order, plus a count of lines that failed to parse (a
// crash mid-write leaves at most one trailing partial line; it is counted
// here, not treated as fatal).
type ReadResult struct {
	Items       []protocol.RolloutItem
	ParseErrors int
}

// ReadFile parses every line of a rollout file. A line that fails to
// unmarshal (typically the last line of a file truncated by a crash) is
// skipped and counted rather than aborting the read.
func ReadFile(path string) (ReadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ReadResult{}, fmt.Errorf("rollout: open %s: %w", path, err)
	}
	defer f.Close()

	var result ReadResult
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var item protocol.RolloutItem
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			result.ParseErrors++
			continue
		}
		result.Items = append(result.Items, item)
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("rollout: scan %s: %w", path, err)
	}
	return result, nil
}

// ThreadMeta summarizes a rollout file for thread/list without reading the
// whole thing.
type ThreadMeta struct {
	ThreadID protocol.ThreadID
	Path     string
	Cwd      string
}

// ListThreads walks root and returns the session-meta header of every
// rollout file found, most recently modified first, for thread/list
// pagination.
func ListThreads(root string) ([]ThreadMeta, error) {
	var metas []ThreadMeta
	type dated struct {
		meta    ThreadMeta
		modTime int64
	}
	var found []dated

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".jsonl") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		if !scanner.Scan() {
			return nil
		}
		var item protocol.RolloutItem
		if err := json.Unmarshal(scanner.Bytes(), &item); err != nil || item.SessionMeta == nil {
			return nil
		}
		found = append(found, dated{
			meta: ThreadMeta{
				ThreadID: item.SessionMeta.ThreadID,
				Path:     path,
				Cwd:      item.SessionMeta.Cwd,
			},
			modTime: info.ModTime().UnixNano(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rollout: walk %s: %w", root, err)
	}

	sort.Slice(found, func(i, j int) bool { return found[i].modTime > found[j].modTime })
	for _, d := range found {
		metas = append(metas, d.meta)
	}
	return metas, nil
}
