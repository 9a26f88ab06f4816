package analyser

import (
	"context"
	"fmt"

	"github.com/waivern/wct/pkg/component"
	"github.com/waivern/wct/pkg/connector"
	"github.com/waivern/wct/pkg/llm"
	"github.com/waivern/wct/pkg/message"
	"github.com/waivern/wct/pkg/patterns"
	"github.com/waivern/wct/pkg/ruleset"
	"github.com/waivern/wct/pkg/schema"
)

// DefaultPersonalDataRuleset is the bundled personal-data ruleset URI.
const DefaultPersonalDataRuleset = "local/personal_data/1.0.0"

// PersonalDataConfig configures the personal data analyser.
type PersonalDataConfig struct {
	Ruleset             string               `json:"ruleset,omitempty"`
	ContextSize         patterns.ContextSize `json:"evidence_context_size,omitempty"`
	MaxEvidence         int                  `json:"max_evidence,omitempty"`
	EnableLLMValidation bool                 `json:"enable_llm_validation,omitempty"`
	LLMBatchingMode     llm.BatchingMode     `json:"llm_batching_mode,omitempty"`
}

func (c *PersonalDataConfig) validate() error {
	if c.Ruleset == "" {
		c.Ruleset = DefaultPersonalDataRuleset
	}
	if _, err := ruleset.ParseURI(c.Ruleset); err != nil {
		return fmt.Errorf("%w: %v", component.ErrConfig, err)
	}
	switch c.LLMBatchingMode {
	case "", llm.CountBased, llm.ExtendedContext:
	default:
		return fmt.Errorf("%w: unknown llm_batching_mode %q", component.ErrConfig, c.LLMBatchingMode)
	}
	if c.LLMBatchingMode == "" {
		c.LLMBatchingMode = llm.CountBased
	}
	return nil
}

// PersonalDataAnalyser detects personal-data categories in extracted
// content and optionally validates findings with an LLM.
type PersonalDataAnalyser struct {
	cfg     PersonalDataConfig
	rules   []ruleset.PersonalDataRule
	matcher *patterns.Matcher
	llm     *llm.Service
}

// Process matches every rule against every content item. When LLM
// validation is enabled and the provider is batch-capable, the
// returned error may be a *llm.PendingBatch.
func (a *PersonalDataAnalyser) Process(ctx context.Context, runID string, input *message.Message) (*message.Message, error) {
	var in standardInput
	if err := decodeContent(input, &in); err != nil {
		return nil, err
	}

	var findings []patterns.Finding
	contentBySource := make(map[string]string)
	for _, item := range in.Data {
		if _, ok := contentBySource[item.Metadata.Source]; !ok {
			contentBySource[item.Metadata.Source] = item.Content
		}
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
			f.Category = rule.Category
			f.SpecialCategory = rule.SpecialCategory
			findings = append(findings, *f)
		}
	}

	validated := false
	if a.cfg.EnableLLMValidation && a.llm != nil && len(findings) > 0 {
		kept, err := validateFindings(ctx, a.llm, runID, findings, contentBySource, a.cfg.LLMBatchingMode)
		if err != nil {
			return nil, err
		}
		findings = kept
		validated = true
	}

	return newFindingMessage(runID, "personal_data_analyser", findings, validated)
}

// PersonalDataFactory registers the personal_data_analyser type.
type PersonalDataFactory struct{}

func (PersonalDataFactory) Name() string { return "personal_data_analyser" }

func (PersonalDataFactory) InputSchemas() []schema.Schema {
	return []schema.Schema{connector.StandardInputSchema}
}

func (PersonalDataFactory) OutputSchemas() []schema.Schema {
	return []schema.Schema{FindingSetSchema}
}

func (PersonalDataFactory) ServiceDependencies() []string { return []string{ServiceLLM} }

func (PersonalDataFactory) CanCreate(properties map[string]any) error {
	var cfg PersonalDataConfig
	if err := component.DecodeConfig(properties, &cfg); err != nil {
		return err
	}
	return cfg.validate()
}

func (f PersonalDataFactory) Create(properties map[string]any, services *component.Container) (any, error) {
	var cfg PersonalDataConfig
	if err := component.DecodeConfig(properties, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	rules, err := ruleset.Load[ruleset.PersonalDataRule](sharedRulesets, cfg.Ruleset)
	if err != nil {
		return nil, err
	}

	a := &PersonalDataAnalyser{
		cfg:   cfg,
		rules: rules,
		matcher: patterns.NewMatcher(patterns.Config{
			ContextSize: cfg.ContextSize,
			MaxEvidence: cfg.MaxEvidence,
		}),
	}
	// LLM validation degrades gracefully when no provider is wired.
	if services != nil {
		if svc, ok := services.ResolveOptional(ServiceLLM).(*llm.Service); ok {
			a.llm = svc
		}
	}
	return a, nil
}

// sharedRulesets caches bundled rulesets across factories.
var sharedRulesets = ruleset.NewRegistry()
