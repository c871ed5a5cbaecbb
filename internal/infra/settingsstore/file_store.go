package settingsstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/yanqian/smart-notes/internal/domain/settings"
)

const configKey = "config"

// FileStore persists settings in the addon's meta.json. Only the "config"
// object is owned by the store; other top level keys written by the host and
// config keys this version does not know about survive a save.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: filepath.Clean(path)}
}

// Path returns the meta.json location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads meta.json and overlays its config on the defaults. A missing
// file yields the defaults.
func (s *FileStore) Load(ctx context.Context) (settings.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if err != nil {
		return settings.Settings{}, err
	}
	out := settings.Defaults()
	if raw, ok := doc[configKey]; ok && len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &out); err != nil {
			return settings.Settings{}, fmt.Errorf("parse %s config: %w", s.path, err)
		}
	}
	if out.PromptsMap.NoteTypes == nil {
		out.PromptsMap.NoteTypes = settings.Defaults().PromptsMap.NoteTypes
	}
	return out, nil
}

// Save writes the settings back atomically.
func (s *FileStore) Save(ctx context.Context, v settings.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if err != nil {
		return err
	}

	config := map[string]json.RawMessage{}
	if raw, ok := doc[configKey]; ok && len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &config); err != nil {
			return fmt.Errorf("parse %s config: %w", s.path, err)
		}
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	known := map[string]json.RawMessage{}
	if err := json.Unmarshal(encoded, &known); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	for k, raw := range known {
		config[k] = raw
	}
	mergedConfig, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	doc[configKey] = mergedConfig

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.path, err)
	}
	return writeAtomic(s.path, append(out, '\n'))
}

func (s *FileStore) readDocument() (map[string]json.RawMessage, error) {
	doc := map[string]json.RawMessage{}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return doc, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".meta-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

var _ settings.Store = (*FileStore)(nil)
