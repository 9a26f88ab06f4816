package export

import "github.com/waivern/wct/pkg/patterns"

// CCPAExporter renders findings under the CCPA's personal-information
// categories (Cal. Civ. Code §1798.140).
type CCPAExporter struct{}

func (CCPAExporter) Framework() string { return "CCPA" }

// ccpaCategories maps ruleset categories to CCPA statutory categories.
// Unmapped categories fall back to "other personal information".
var ccpaCategories = map[string]string{
	"contact":             "identifiers",
	"identity":            "identifiers",
	"national_identifier": "identifiers",
	"location":            "geolocation data",
	"financial":           "commercial information",
	"health":              "sensitive personal information",
	"biometric":           "biometric information",
	"online_activity":     "internet or network activity",
	"employment":          "professional or employment-related information",
}

const ccpaFallbackCategory = "other personal information"

func (e CCPAExporter) Export(in Input) ([]byte, error) {
	sets, err := collectFindingSets(in)
	if err != nil {
		return nil, err
	}

	byStatutory := map[string][]patterns.Finding{}
	sensitiveCount := 0
	total := 0
	subjects := map[string]int{}
	for _, set := range sets {
		if set.Analyser == "data_subject_classifier" {
			for _, f := range set.Findings {
				subjects[f.Category]++
			}
			continue
		}
		for _, f := range set.Findings {
			cat, ok := ccpaCategories[f.Category]
			if !ok {
				cat = ccpaFallbackCategory
			}
			byStatutory[cat] = append(byStatutory[cat], f)
			if f.SpecialCategory {
				sensitiveCount++
			}
			total++
		}
	}

	report := runSummary(in)
	report["framework"] = e.Framework()
	report["personal_information"] = map[string]any{
		"total_findings":        total,
		"by_statutory_category": byStatutory,
		"sensitive_pi_findings": sensitiveCount,
	}
	report["consumers"] = subjects
	return render(in, report)
}
