// Package ruleset resolves versioned ruleset URIs to immutable
// collections of typed pattern rules.
package ruleset

import (
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

//go:embed data/*/*.yaml
var bundled embed.FS

var (
	// ErrUnsupportedProvider is returned for ruleset URIs whose
	// provider is not "local".
	ErrUnsupportedProvider = errors.New("unsupported ruleset provider")
	// ErrNotFound is returned when no bundled ruleset matches the URI.
	ErrNotFound = errors.New("ruleset not found")
)

// RiskLevel grades a rule's findings.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Rule is the common shape of every pattern rule. Text patterns match
// case-insensitively on word boundaries; value patterns are regular
// expressions.
type Rule struct {
	Name          string    `yaml:"name"`
	Description   string    `yaml:"description"`
	RiskLevel     RiskLevel `yaml:"risk_level"`
	Patterns      []string  `yaml:"patterns,omitempty"`
	ValuePatterns []string  `yaml:"value_patterns,omitempty"`
}

// PersonalDataRule classifies personal-data categories.
type PersonalDataRule struct {
	Rule            `yaml:",inline"`
	Category        string `yaml:"category"`
	SpecialCategory bool   `yaml:"special_category,omitempty"`
}

// DataSubjectRule classifies data-subject categories.
type DataSubjectRule struct {
	Rule     `yaml:",inline"`
	Category string `yaml:"category"`
}

// ProcessingPurposeRule classifies processing purposes.
type ProcessingPurposeRule struct {
	Rule    `yaml:",inline"`
	Purpose string `yaml:"purpose"`
}

// URI identifies a ruleset as provider/name/version.
type URI struct {
	Provider string
	Name     string
	Version  *semver.Version
}

func (u URI) String() string {
	return fmt.Sprintf("%s/%s/%s", u.Provider, u.Name, u.Version)
}

// ParseURI parses "provider/name/version" with a semantic version.
func ParseURI(s string) (URI, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return URI{}, fmt.Errorf("invalid ruleset URI %q: want provider/name/version", s)
	}
	v, err := semver.StrictNewVersion(parts[2])
	if err != nil {
		return URI{}, fmt.Errorf("invalid ruleset version in %q: %w", s, err)
	}
	return URI{Provider: parts[0], Name: parts[1], Version: v}, nil
}

type rulesetFile[R any] struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Rules   []R    `yaml:"rules"`
}

// Registry caches loaded rulesets per (name, version). Rulesets are
// process-wide immutable once loaded.
type Registry struct {
	mu    sync.RWMutex
	cache map[string]any
}

// NewRegistry returns an empty ruleset cache.
func NewRegistry() *Registry {
	return &Registry{cache: make(map[string]any)}
}

// Names lists the bundled ruleset names with their versions.
func Names() ([]string, error) {
	entries, err := bundled.ReadDir("data")
	if err != nil {
		return nil, fmt.Errorf("read bundled rulesets: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		versions, err := bundled.ReadDir("data/" + e.Name())
		if err != nil {
			continue
		}
		for _, v := range versions {
			out = append(out, fmt.Sprintf("local/%s/%s", e.Name(), strings.TrimSuffix(v.Name(), ".yaml")))
		}
	}
	return out, nil
}

// Load resolves a ruleset URI to an immutable slice of typed rules.
// Only the local provider is supported. Results are cached per
// (name, version); a rule-type mismatch against a cached entry is an
// error.
func Load[R any](reg *Registry, uri string) ([]R, error) {
	u, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if u.Provider != "local" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, u.Provider)
	}

	cacheKey := u.Name + "/" + u.Version.String()
	reg.mu.RLock()
	cached, ok := reg.cache[cacheKey]
	reg.mu.RUnlock()
	if ok {
		typed, isType := cached.([]R)
		if !isType {
			return nil, fmt.Errorf("ruleset %s: loaded with a different rule type", uri)
		}
		return typed, nil
	}

	path := fmt.Sprintf("data/%s/%s.yaml", u.Name, u.Version)
	data, err := bundled.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	var file rulesetFile[R]
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("ruleset %s: %w", uri, err)
	}
	if err := validateNames(uri, file.Rules); err != nil {
		return nil, err
	}

	reg.mu.Lock()
	reg.cache[cacheKey] = file.Rules
	reg.mu.Unlock()
	return file.Rules, nil
}

// validateNames requires unique rule names within a ruleset.
func validateNames[R any](uri string, rules []R) error {
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		name := baseRule(r).Name
		if name == "" {
			return fmt.Errorf("ruleset %s: rule with empty name", uri)
		}
		if seen[name] {
			return fmt.Errorf("ruleset %s: duplicate rule name %q", uri, name)
		}
		seen[name] = true
	}
	return nil
}

// baseRule extracts the embedded Rule from any typed rule.
func baseRule(r any) Rule {
	switch t := r.(type) {
	case Rule:
		return t
	case PersonalDataRule:
		return t.Rule
	case DataSubjectRule:
		return t.Rule
	case ProcessingPurposeRule:
		return t.Rule
	default:
		return Rule{}
	}
}
