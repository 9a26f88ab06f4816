package schema

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed defs/*.json
var bundled embed.FS

// ErrNotRegistered is returned when a schema identity has no
// registered definition.
var ErrNotRegistered = errors.New("schema not registered")

// Registry holds JSON Schema definitions keyed by schema identity.
// Definitions are compiled lazily on first validation and the compiled
// form is cached. Registering a different definition under an existing
// identity is a registry error.
type Registry struct {
	mu       sync.RWMutex
	sources  map[string][]byte
	compiled map[string]*jsonschema.Schema
}

// NewRegistry returns a registry preloaded with the bundled schema
// definitions (defs/<name>@<version>.json).
func NewRegistry() (*Registry, error) {
	r := &Registry{
		sources:  make(map[string][]byte),
		compiled: make(map[string]*jsonschema.Schema),
	}
	entries, err := fs.ReadDir(bundled, "defs")
	if err != nil {
		return nil, fmt.Errorf("read bundled schemas: %w", err)
	}
	for _, e := range entries {
		name, version, ok := parseDefName(e.Name())
		if !ok {
			continue
		}
		data, err := bundled.ReadFile(path.Join("defs", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read bundled schema %s: %w", e.Name(), err)
		}
		if err := r.Register(New(name, version), data); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// parseDefName splits "standard_input@1.0.0.json" into name and version.
func parseDefName(file string) (name, version string, ok bool) {
	base := strings.TrimSuffix(file, ".json")
	if base == file {
		return "", "", false
	}
	at := strings.LastIndex(base, "@")
	if at <= 0 || at == len(base)-1 {
		return "", "", false
	}
	return base[:at], base[at+1:], true
}

// Register adds a JSON Schema definition for the given identity.
// Re-registering the identical definition is a no-op; a conflicting
// definition under the same identity fails.
func (r *Registry) Register(s Schema, definition []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sources[s.Key()]; ok {
		if bytes.Equal(existing, definition) {
			return nil
		}
		return fmt.Errorf("schema %s: conflicting definition for registered identity", s)
	}
	r.sources[s.Key()] = definition
	return nil
}

// Has reports whether a definition is registered for s.
func (r *Registry) Has(s Schema) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sources[s.Key()]
	return ok
}

// Compile resolves and compiles the definition for s, caching the
// result.
func (r *Registry) Compile(s Schema) (*jsonschema.Schema, error) {
	r.mu.RLock()
	if c, ok := r.compiled[s.Key()]; ok {
		r.mu.RUnlock()
		return c, nil
	}
	src, ok := r.sources[s.Key()]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("schema %s: %w", s, ErrNotRegistered)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://schemas.waivern.local/%s/%s.schema.json", s.Name, s.Version)
	if err := c.AddResource(url, bytes.NewReader(src)); err != nil {
		return nil, fmt.Errorf("schema %s: load failed: %w", s, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema %s: compile failed: %w", s, err)
	}

	r.mu.Lock()
	r.compiled[s.Key()] = compiled
	r.mu.Unlock()
	return compiled, nil
}

// Definition returns the raw JSON Schema source for s.
func (r *Registry) Definition(s Schema) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[s.Key()]
	if !ok {
		return nil, fmt.Errorf("schema %s: %w", s, ErrNotRegistered)
	}
	return src, nil
}

// Names returns the registered identities. Order is not guaranteed;
// callers sort as needed.
func (r *Registry) Names() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Schema, 0, len(r.sources))
	for key := range r.sources {
		if i := strings.LastIndex(key, "/"); i > 0 {
			out = append(out, New(key[:i], key[i+1:]))
		}
	}
	return out
}

// Snapshot captures the current registrations for later Restore.
// Used by tests to isolate registry mutations.
func (r *Registry) Snapshot() map[string][]byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := make(map[string][]byte, len(r.sources))
	for k, v := range r.sources {
		snap[k] = v
	}
	return snap
}

// Restore resets the registry to a previously captured snapshot and
// drops the compile cache.
func (r *Registry) Restore(snap map[string][]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = make(map[string][]byte, len(snap))
	for k, v := range snap {
		r.sources[k] = v
	}
	r.compiled = make(map[string]*jsonschema.Schema)
}
