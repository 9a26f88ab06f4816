// Package component resolves component type names to factories that
// instantiate connectors and processors with typed configuration and
// injected services.
package component

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/waivern/wct/pkg/message"
	"github.com/waivern/wct/pkg/schema"
)

var (
	// ErrUnknownType is returned when a component type is not
	// registered.
	ErrUnknownType = errors.New("unknown component type")
	// ErrConfig marks an invalid component configuration.
	ErrConfig = errors.New("invalid component configuration")
	// ErrServiceNotFound is returned when a required service is not
	// available in the container.
	ErrServiceNotFound = errors.New("service not found")
)

// Connector extracts data from an external source and produces a
// message.
type Connector interface {
	Extract(ctx context.Context, runID string) (*message.Message, error)
}

// Processor transforms an input message into an output message.
// Analysers and classifiers both satisfy it.
type Processor interface {
	Process(ctx context.Context, runID string, input *message.Message) (*message.Message, error)
}

// Factory creates components of one type. Factories declare their
// schema contract so the planner can resolve artifact schemas without
// instantiating components.
type Factory interface {
	// Name is the component type string used in runbooks.
	Name() string
	// InputSchemas lists the schemas this component accepts. Empty for
	// connectors.
	InputSchemas() []schema.Schema
	// OutputSchemas lists the schemas this component can produce; the
	// first entry is the default.
	OutputSchemas() []schema.Schema
	// ServiceDependencies names the container services the component
	// needs at creation time.
	ServiceDependencies() []string
	// CanCreate validates the configuration without side effects.
	CanCreate(properties map[string]any) error
	// Create instantiates the component. The returned value must be a
	// Connector or a Processor.
	Create(properties map[string]any, services *Container) (any, error)
}

// Registry maps component type names to factories. Built once at
// startup, read-only afterwards.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory. Registering a duplicate name fails.
func (r *Registry) Register(f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[f.Name()]; ok {
		return fmt.Errorf("component type %q already registered", f.Name())
	}
	r.factories[f.Name()] = f
	return nil
}

// Lookup resolves a type name to its factory.
func (r *Registry) Lookup(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return f, nil
}

// Names returns the registered type names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DecodeConfig maps a properties map onto a typed configuration
// struct. Unknown keys are rejected.
func DecodeConfig(properties map[string]any, out any) error {
	raw, err := json.Marshal(properties)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return nil
}
