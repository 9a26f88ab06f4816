package patterns

import (
	"sort"
	"time"

	"github.com/waivern/wct/pkg/ruleset"
)

// Config tunes matching and evidence extraction.
type Config struct {
	ContextSize        ContextSize `json:"evidence_context_size,omitempty"`
	MaxEvidence        int         `json:"max_evidence,omitempty"`
	ProximityThreshold int         `json:"proximity_threshold,omitempty"`
	MaxRepresentatives int         `json:"max_representatives,omitempty"`
}

// DefaultConfig returns the standard matcher tuning.
func DefaultConfig() Config {
	return Config{
		ContextSize:        ContextMedium,
		MaxEvidence:        3,
		ProximityThreshold: DefaultProximityThreshold,
		MaxRepresentatives: 5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ContextSize == "" {
		c.ContextSize = d.ContextSize
	}
	if c.MaxEvidence == 0 {
		c.MaxEvidence = d.MaxEvidence
	}
	if c.ProximityThreshold == 0 {
		c.ProximityThreshold = d.ProximityThreshold
	}
	if c.MaxRepresentatives == 0 {
		c.MaxRepresentatives = d.MaxRepresentatives
	}
	return c
}

// Matcher applies rules to content and produces findings.
type Matcher struct {
	cfg Config
	now func() time.Time
}

// NewMatcher builds a matcher; zero config fields fall back to
// defaults.
func NewMatcher(cfg Config) *Matcher {
	return &Matcher{cfg: cfg.withDefaults(), now: time.Now}
}

// MatchRule applies one rule's text and value patterns to content and
// emits at most one finding with aggregated pattern counts and
// proximity-grouped evidence. Returns nil when nothing matched.
func (m *Matcher) MatchRule(rule ruleset.Rule, content string, meta FindingMetadata) (*Finding, error) {
	var all []Match
	counts := make(map[string]int)

	for _, p := range rule.Patterns {
		ms := FindTextMatches(content, p)
		if len(ms) > 0 {
			counts[p] += len(ms)
			all = append(all, ms...)
		}
	}
	for _, vp := range rule.ValuePatterns {
		ms, err := FindValueMatches(content, vp)
		if err != nil {
			return nil, err
		}
		if len(ms) > 0 {
			counts[vp] += len(ms)
			all = append(all, ms...)
		}
	}
	if len(all) == 0 {
		return nil, nil
	}

	reps := GroupByProximity(all, m.cfg.ProximityThreshold, m.cfg.MaxRepresentatives)
	snippets := ExtractEvidence(content, reps, m.cfg.ContextSize, m.cfg.MaxEvidence)

	ts := timestamp(m.now())
	evidence := make([]Evidence, 0, len(snippets))
	for _, s := range snippets {
		evidence = append(evidence, Evidence{Content: s, CollectionTimestamp: ts})
	}

	matched := make([]PatternMatch, 0, len(counts))
	for p, n := range counts {
		matched = append(matched, PatternMatch{Pattern: p, MatchCount: n})
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Pattern < matched[j].Pattern })

	return &Finding{
		ID:              newFindingID(),
		RiskLevel:       rule.RiskLevel,
		MatchedPatterns: matched,
		Evidence:        evidence,
		Metadata:        meta,
	}, nil
}
