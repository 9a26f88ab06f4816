// Package runbook models the declarative YAML input describing a run:
// named artifacts, how each is produced, and how they depend on each
// other.
package runbook

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the runbook config omits them.
const (
	DefaultTimeoutSeconds = 300
	DefaultMaxConcurrency = 10
	DefaultMaxChildDepth  = 3
)

// MergeConcatenate is the only supported fan-in merge policy.
const MergeConcatenate = "concatenate"

var (
	// ErrMalformed marks a runbook that fails structural validation.
	ErrMalformed = errors.New("malformed runbook")
)

// Runbook is a parsed, structurally valid runbook document.
type Runbook struct {
	Name        string                `yaml:"name"`
	Description string                `yaml:"description"`
	Framework   string                `yaml:"framework,omitempty"`
	Config      Config                `yaml:"config,omitempty"`
	Inputs      map[string]InputDecl  `yaml:"inputs,omitempty"`
	Outputs     map[string]OutputDecl `yaml:"outputs,omitempty"`
	Artifacts   map[string]*Artifact  `yaml:"artifacts"`
}

// Config carries run-level tunables.
type Config struct {
	TimeoutSeconds int `yaml:"timeout,omitempty"`
	MaxConcurrency int `yaml:"max_concurrency,omitempty"`
	MaxChildDepth  int `yaml:"max_child_depth,omitempty"`
}

// InputDecl declares a named input a child runbook expects from its
// parent.
type InputDecl struct {
	InputSchema string `yaml:"input_schema"`
	Optional    bool   `yaml:"optional,omitempty"`
	Default     any    `yaml:"default,omitempty"`
	Sensitive   bool   `yaml:"sensitive,omitempty"`
}

// OutputDecl declares a named output a child runbook exposes.
type OutputDecl struct {
	Artifact string `yaml:"artifact"`
}

// Component is a connector or processor configuration.
type Component struct {
	Type       string         `yaml:"type"`
	Properties map[string]any `yaml:"properties,omitempty"`
}

// ChildRunbook composes another runbook as a single artifact.
type ChildRunbook struct {
	Path          string            `yaml:"path"`
	InputMapping  map[string]string `yaml:"input_mapping,omitempty"`
	Output        string            `yaml:"output,omitempty"`
	OutputMapping map[string]string `yaml:"output_mapping,omitempty"`
}

// Artifact describes how one artifact is produced. Exactly one of
// Source, Inputs+Process, or ChildRunbook must be set.
type Artifact struct {
	Source       *Component    `yaml:"source,omitempty"`
	Inputs       StringList    `yaml:"inputs,omitempty"`
	Process      *Component    `yaml:"process,omitempty"`
	ChildRunbook *ChildRunbook `yaml:"child_runbook,omitempty"`
	Merge        string        `yaml:"merge,omitempty"`
	OutputSchema string        `yaml:"output_schema,omitempty"`
	Output       bool          `yaml:"output,omitempty"`
	Optional     bool          `yaml:"optional,omitempty"`
}

// StringList accepts a YAML scalar or sequence of strings.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	case yaml.SequenceNode:
		var ss []string
		if err := node.Decode(&ss); err != nil {
			return err
		}
		*l = StringList(ss)
		return nil
	default:
		return fmt.Errorf("inputs must be a string or list of strings")
	}
}

// Load reads and parses a runbook file.
func Load(path string) (*Runbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read runbook %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and structurally validates a runbook document.
func Parse(data []byte) (*Runbook, error) {
	var rb Runbook
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := rb.Validate(); err != nil {
		return nil, err
	}
	return &rb, nil
}

// Validate checks structural invariants that do not need the component
// registry: required fields, the exactly-one-of production rule, input
// references, merge policy, and output declarations.
func (rb *Runbook) Validate() error {
	if rb.Name == "" {
		return fmt.Errorf("%w: name is required", ErrMalformed)
	}
	if rb.Description == "" {
		return fmt.Errorf("%w: description is required", ErrMalformed)
	}
	switch rb.Framework {
	case "", "GDPR", "UK_GDPR", "CCPA":
	default:
		return fmt.Errorf("%w: unknown framework %q", ErrMalformed, rb.Framework)
	}
	if rb.Config.TimeoutSeconds < 0 || rb.Config.MaxConcurrency < 0 || rb.Config.MaxChildDepth < 0 {
		return fmt.Errorf("%w: config values must be non-negative", ErrMalformed)
	}

	for id, art := range rb.Artifacts {
		if art == nil {
			return fmt.Errorf("%w: artifact %q is empty", ErrMalformed, id)
		}
		if err := rb.validateArtifact(id, art); err != nil {
			return err
		}
	}
	for name, out := range rb.Outputs {
		if out.Artifact == "" {
			return fmt.Errorf("%w: output %q missing artifact reference", ErrMalformed, name)
		}
		if _, ok := rb.Artifacts[out.Artifact]; !ok {
			return fmt.Errorf("%w: output %q references unknown artifact %q", ErrMalformed, name, out.Artifact)
		}
	}
	return nil
}

func (rb *Runbook) validateArtifact(id string, art *Artifact) error {
	modes := 0
	if art.Source != nil {
		modes++
	}
	if len(art.Inputs) > 0 {
		modes++
	}
	if art.ChildRunbook != nil {
		modes++
	}
	if modes != 1 {
		return fmt.Errorf("%w: artifact %q must set exactly one of source, inputs, child_runbook", ErrMalformed, id)
	}

	switch {
	case art.Source != nil:
		if art.Source.Type == "" {
			return fmt.Errorf("%w: artifact %q source missing type", ErrMalformed, id)
		}
		if art.Process != nil {
			return fmt.Errorf("%w: artifact %q combines source and process", ErrMalformed, id)
		}
	case len(art.Inputs) > 0:
		if art.Process == nil || art.Process.Type == "" {
			return fmt.Errorf("%w: artifact %q has inputs but no process type", ErrMalformed, id)
		}
		for _, in := range art.Inputs {
			if _, ok := rb.Artifacts[in]; !ok {
				if _, declared := rb.Inputs[in]; !declared {
					return fmt.Errorf("%w: artifact %q references unknown input %q", ErrMalformed, id, in)
				}
			}
		}
	case art.ChildRunbook != nil:
		c := art.ChildRunbook
		if c.Path == "" {
			return fmt.Errorf("%w: artifact %q child_runbook missing path", ErrMalformed, id)
		}
		if c.Output == "" && len(c.OutputMapping) == 0 {
			return fmt.Errorf("%w: artifact %q child_runbook needs output or output_mapping", ErrMalformed, id)
		}
		for _, parentArtifact := range c.InputMapping {
			if _, ok := rb.Artifacts[parentArtifact]; !ok {
				return fmt.Errorf("%w: artifact %q input_mapping references unknown artifact %q", ErrMalformed, id, parentArtifact)
			}
		}
	}

	if art.Merge != "" && art.Merge != MergeConcatenate {
		return fmt.Errorf("%w: artifact %q has unsupported merge policy %q", ErrMalformed, id, art.Merge)
	}
	if art.Merge == MergeConcatenate && len(art.Inputs) < 2 {
		return fmt.Errorf("%w: artifact %q merge=concatenate requires multiple inputs", ErrMalformed, id)
	}
	return nil
}

// Timeout returns the configured run timeout in seconds.
func (c Config) Timeout() int {
	if c.TimeoutSeconds == 0 {
		return DefaultTimeoutSeconds
	}
	return c.TimeoutSeconds
}

// Concurrency returns the configured concurrency budget.
func (c Config) Concurrency() int {
	if c.MaxConcurrency == 0 {
		return DefaultMaxConcurrency
	}
	return c.MaxConcurrency
}

// ChildDepth returns the configured child-runbook recursion bound.
func (c Config) ChildDepth() int {
	if c.MaxChildDepth == 0 {
		return DefaultMaxChildDepth
	}
	return c.MaxChildDepth
}

// ArtifactIDs returns the artifact ids in deterministic order.
func (rb *Runbook) ArtifactIDs() []string {
	ids := make([]string, 0, len(rb.Artifacts))
	for id := range rb.Artifacts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SensitiveInputs returns the names of inputs declared sensitive.
func (rb *Runbook) SensitiveInputs() []string {
	var names []string
	for name, in := range rb.Inputs {
		if in.Sensitive {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
