package jsonbin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Registry remembers which bin holds which collection. With a path it is
// persisted as a small JSON object so restarts reuse the same bins.
type Registry struct {
	mu   sync.RWMutex
	path string
	ids  map[string]string
}

// NewRegistry loads path if it exists. An empty path keeps ids in memory only.
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: path, ids: make(map[string]string)}
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read bin registry: %w", err)
	}
	if len(data) == 0 {
		return r, nil
	}
	if err := json.Unmarshal(data, &r.ids); err != nil {
		return nil, fmt.Errorf("parse bin registry %s: %w", path, err)
	}
	return r, nil
}

func (r *Registry) Get(kind string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.ids[kind]
	return id, ok && id != ""
}

// Set records the bin id for kind and persists the registry.
func (r *Registry) Set(kind, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[kind] = id
	return r.saveLocked()
}

// Seed sets ids without overriding ones that are already registered.
func (r *Registry) Seed(ids map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := false
	for kind, id := range ids {
		if id == "" {
			continue
		}
		if cur, ok := r.ids[kind]; !ok || cur == "" {
			r.ids[kind] = id
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return r.saveLocked()
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.ids))
	for k := range r.ids {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func (r *Registry) saveLocked() error {
	if r.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(r.ids, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write bin registry: %w", err)
	}
	return os.Rename(tmp, r.path)
}
