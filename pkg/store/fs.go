package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore persists runs under {base}/runs/{run_id}/{key}.json.
type FileStore struct {
	base
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates a filesystem-backed store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "runs"), 0o755); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}
	s := &FileStore{dir: dir}
	s.base.b = s
	return s, nil
}

func (s *FileStore) path(runID, key string) string {
	return filepath.Join(s.dir, "runs", runID, filepath.FromSlash(key)+".json")
}

func (s *FileStore) put(_ context.Context, runID, key string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(runID, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure dir for %s: %w", key, err)
	}
	// Write to temp, then rename, so readers never see a torn file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) get(_ context.Context, runID, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(runID, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrArtifactNotFound, runID, key)
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (s *FileStore) exists(_ context.Context, runID, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.path(runID, key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", key, err)
}

func (s *FileStore) del(_ context.Context, runID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(runID, key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) list(_ context.Context, runID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	root := filepath.Join(s.dir, "runs", runID)
	var keys []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		keys = append(keys, strings.TrimSuffix(filepath.ToSlash(rel), ".json"))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list run %s: %w", runID, err)
	}
	return keys, nil
}

func (s *FileStore) saveRun(ctx context.Context, md RunMetadata) error {
	data, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshal run metadata: %w", err)
	}
	return s.put(ctx, md.RunID, MetadataKey, data)
}

func (s *FileStore) listRuns(ctx context.Context) ([]RunMetadata, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, "runs"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list runs: %w", err)
	}
	var out []RunMetadata
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := s.get(ctx, e.Name(), MetadataKey)
		if err != nil {
			// Directory without metadata: partially initialised run.
			continue
		}
		var md RunMetadata
		if err := json.Unmarshal(data, &md); err != nil {
			continue
		}
		out = append(out, md)
	}
	return out, nil
}
