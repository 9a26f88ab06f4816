package export

import (
	"sort"

	"github.com/waivern/wct/pkg/patterns"
)

// GDPRExporter renders findings under GDPR vocabulary. The UK variant
// differs only in naming; the obligations reported are the same.
type GDPRExporter struct {
	UK bool
}

func (e GDPRExporter) Framework() string {
	if e.UK {
		return "UK_GDPR"
	}
	return "GDPR"
}

func (e GDPRExporter) Export(in Input) ([]byte, error) {
	sets, err := collectFindingSets(in)
	if err != nil {
		return nil, err
	}

	var personal []patterns.Finding
	purposes := map[string]int{}
	subjects := map[string]int{}
	for _, set := range sets {
		switch set.Analyser {
		case "data_subject_classifier":
			for _, f := range set.Findings {
				subjects[f.Category]++
			}
		case "processing_purpose_analyser":
			for _, f := range set.Findings {
				purposes[f.Purpose]++
			}
		default:
			personal = append(personal, set.Findings...)
		}
	}

	// Article 9 special categories get their own section so they are
	// impossible to overlook in the report.
	special := []patterns.Finding{}
	for _, f := range personal {
		if f.SpecialCategory {
			special = append(special, f)
		}
	}

	specialSection := map[string]any{
		"article":  "Article 9",
		"count":    len(special),
		"findings": special,
	}
	report := runSummary(in)
	report["framework"] = e.Framework()
	report["personal_data"] = map[string]any{
		"total_findings":     len(personal),
		"by_category":        groupByCategory(personal),
		"special_categories": specialSection,
	}
	report["processing_purposes"] = purposes
	report["data_subjects"] = subjects
	return render(in, report)
}

// categoryGroup is one report section per finding category.
type categoryGroup struct {
	Category  string             `json:"category"`
	Count     int                `json:"count"`
	RiskLevel string             `json:"highest_risk_level"`
	Findings  []patterns.Finding `json:"findings"`
}

var riskRank = map[string]int{"low": 0, "medium": 1, "high": 2}

func groupByCategory(findings []patterns.Finding) []categoryGroup {
	byName := map[string][]patterns.Finding{}
	for _, f := range findings {
		key := f.Category
		if key == "" {
			key = "uncategorised"
		}
		byName[key] = append(byName[key], f)
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := make([]categoryGroup, 0, len(names))
	for _, name := range names {
		fs := byName[name]
		highest := "low"
		for _, f := range fs {
			if riskRank[string(f.RiskLevel)] > riskRank[highest] {
				highest = string(f.RiskLevel)
			}
		}
		groups = append(groups, categoryGroup{
			Category:  name,
			Count:     len(fs),
			RiskLevel: highest,
			Findings:  fs,
		})
	}
	return groups
}
