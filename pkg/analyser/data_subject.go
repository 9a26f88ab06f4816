package analyser

import (
	"context"
	"fmt"
	"strings"

	"github.com/waivern/wct/pkg/component"
	"github.com/waivern/wct/pkg/connector"
	"github.com/waivern/wct/pkg/message"
	"github.com/waivern/wct/pkg/patterns"
	"github.com/waivern/wct/pkg/ruleset"
	"github.com/waivern/wct/pkg/schema"
)

// DefaultDataSubjectRuleset is the bundled data-subject ruleset URI.
const DefaultDataSubjectRuleset = "local/data_subjects/1.0.0"

// DataSubjectConfig configures the data subject classifier.
type DataSubjectConfig struct {
	Ruleset     string               `json:"ruleset,omitempty"`
	ContextSize patterns.ContextSize `json:"evidence_context_size,omitempty"`
	MaxEvidence int                  `json:"max_evidence,omitempty"`
}

func (c *DataSubjectConfig) validate() error {
	if c.Ruleset == "" {
		c.Ruleset = DefaultDataSubjectRuleset
	}
	if _, err := ruleset.ParseURI(c.Ruleset); err != nil {
		return fmt.Errorf("%w: %v", component.ErrConfig, err)
	}
	return nil
}

// DataSubjectClassifier identifies whose data is present. It accepts
// raw extracted content or an upstream analyser's findings, in which
// case it classifies over the findings' evidence.
type DataSubjectClassifier struct {
	cfg     DataSubjectConfig
	rules   []ruleset.DataSubjectRule
	matcher *patterns.Matcher
}

// Process emits one finding per rule that matches the input, carrying
// the data-subject category.
func (a *DataSubjectClassifier) Process(ctx context.Context, runID string, input *message.Message) (*message.Message, error) {
	units, err := a.classificationUnits(input)
	if err != nil {
		return nil, err
	}

	var findings []patterns.Finding
	for _, u := range units {
		for _, rule := range a.rules {
			f, err := a.matcher.MatchRule(rule.Rule, u.content, patterns.FindingMetadata{Source: u.source})
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w", rule.Name, err)
			}
			if f == nil {
				continue
			}
			f.Category = rule.Category
			findings = append(findings, *f)
		}
	}
	return newFindingMessage(runID, "data_subject_classifier", findings, false)
}

type classificationUnit struct {
	content string
	source  string
}

// classificationUnits flattens either input shape into (content,
// source) pairs.
func (a *DataSubjectClassifier) classificationUnits(input *message.Message) ([]classificationUnit, error) {
	if input.Schema.Name == FindingSetSchema.Name {
		set, err := decodeFindingSet(input)
		if err != nil {
			return nil, err
		}
		units := make([]classificationUnit, 0, len(set.Findings))
		for _, f := range set.Findings {
			var texts []string
			for _, ev := range f.Evidence {
				texts = append(texts, ev.Content)
			}
			units = append(units, classificationUnit{
				content: strings.Join(texts, "\n"),
				source:  f.Metadata.Source,
			})
		}
		return units, nil
	}

	var in standardInput
	if err := decodeContent(input, &in); err != nil {
		return nil, err
	}
	units := make([]classificationUnit, 0, len(in.Data))
	for _, item := range in.Data {
		units = append(units, classificationUnit{content: item.Content, source: item.Metadata.Source})
	}
	return units, nil
}

// DataSubjectFactory registers the data_subject_classifier type.
type DataSubjectFactory struct{}

func (DataSubjectFactory) Name() string { return "data_subject_classifier" }

func (DataSubjectFactory) InputSchemas() []schema.Schema {
	return []schema.Schema{FindingSetSchema, connector.StandardInputSchema}
}

func (DataSubjectFactory) OutputSchemas() []schema.Schema {
	return []schema.Schema{FindingSetSchema}
}

func (DataSubjectFactory) ServiceDependencies() []string { return nil }

func (DataSubjectFactory) CanCreate(properties map[string]any) error {
	var cfg DataSubjectConfig
	if err := component.DecodeConfig(properties, &cfg); err != nil {
		return err
	}
	return cfg.validate()
}

func (DataSubjectFactory) Create(properties map[string]any, _ *component.Container) (any, error) {
	var cfg DataSubjectConfig
	if err := component.DecodeConfig(properties, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	rules, err := ruleset.Load[ruleset.DataSubjectRule](sharedRulesets, cfg.Ruleset)
	if err != nil {
		return nil, err
	}
	return &DataSubjectClassifier{
		cfg:   cfg,
		rules: rules,
		matcher: patterns.NewMatcher(patterns.Config{
			ContextSize: cfg.ContextSize,
			MaxEvidence: cfg.MaxEvidence,
		}),
	}, nil
}
