package analyser

import (
	"context"
	"fmt"

	"github.com/waivern/wct/pkg/component"
	"github.com/waivern/wct/pkg/connector"
	"github.com/waivern/wct/pkg/message"
	"github.com/waivern/wct/pkg/patterns"
	"github.com/waivern/wct/pkg/ruleset"
	"github.com/waivern/wct/pkg/schema"
)

// DefaultProcessingPurposeRuleset is the bundled processing-purpose
// ruleset URI.
const DefaultProcessingPurposeRuleset = "local/processing_purposes/1.0.0"

// ProcessingPurposeConfig configures the processing purpose analyser.
type ProcessingPurposeConfig struct {
	Ruleset     string               `json:"ruleset,omitempty"`
	ContextSize patterns.ContextSize `json:"evidence_context_size,omitempty"`
	MaxEvidence int                  `json:"max_evidence,omitempty"`
}

func (c *ProcessingPurposeConfig) validate() error {
	if c.Ruleset == "" {
		c.Ruleset = DefaultProcessingPurposeRuleset
	}
	if _, err := ruleset.ParseURI(c.Ruleset); err != nil {
		return fmt.Errorf("%w: %v", component.ErrConfig, err)
	}
	return nil
}

// ProcessingPurposeAnalyser detects why data is processed (marketing,
// analytics, billing and so on).
type ProcessingPurposeAnalyser struct {
	cfg     ProcessingPurposeConfig
	rules   []ruleset.ProcessingPurposeRule
	matcher *patterns.Matcher
}

// Process matches every purpose rule against every content item.
func (a *ProcessingPurposeAnalyser) Process(ctx context.Context, runID string, input *message.Message) (*message.Message, error) {
	var in standardInput
	if err := decodeContent(input, &in); err != nil {
		return nil, err
	}

	var findings []patterns.Finding
	for _, item := range in.Data {
		for _, rule := range a.rules {
			f, err := a.matcher.MatchRule(rule.Rule, item.Content, patterns.FindingMetadata{
				Source: item.Metadata.Source,
			})
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w", rule.Name, err)
			}
			if f == nil {
				continue
			}
			f.Purpose = rule.Purpose
			findings = append(findings, *f)
		}
	}
	return newFindingMessage(runID, "processing_purpose_analyser", findings, false)
}

// ProcessingPurposeFactory registers the processing_purpose_analyser
// type.
type ProcessingPurposeFactory struct{}

func (ProcessingPurposeFactory) Name() string { return "processing_purpose_analyser" }

func (ProcessingPurposeFactory) InputSchemas() []schema.Schema {
	return []schema.Schema{connector.StandardInputSchema}
}

func (ProcessingPurposeFactory) OutputSchemas() []schema.Schema {
	return []schema.Schema{FindingSetSchema}
}

func (ProcessingPurposeFactory) ServiceDependencies() []string { return nil }

func (ProcessingPurposeFactory) CanCreate(properties map[string]any) error {
	var cfg ProcessingPurposeConfig
	if err := component.DecodeConfig(properties, &cfg); err != nil {
		return err
	}
	return cfg.validate()
}

func (ProcessingPurposeFactory) Create(properties map[string]any, _ *component.Container) (any, error) {
	var cfg ProcessingPurposeConfig
	if err := component.DecodeConfig(properties, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	rules, err := ruleset.Load[ruleset.ProcessingPurposeRule](sharedRulesets, cfg.Ruleset)
	if err != nil {
		return nil, err
	}
	return &ProcessingPurposeAnalyser{
		cfg:   cfg,
		rules: rules,
		matcher: patterns.NewMatcher(patterns.Config{
			ContextSize: cfg.ContextSize,
			MaxEvidence: cfg.MaxEvidence,
		}),
	}, nil
}
