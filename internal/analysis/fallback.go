package analysis

import (
	"fmt"
	"strings"
)

// Fallback scores documents without a model:
// min(85, 50 + 8*documents + 5*distinctCategories).
func Fallback(docs []DocumentInput) Result {
	categories := distinctCategories(docs)
	score := 50 + 8*len(docs) + 5*len(categories)
	if score > 85 {
		score = 85
	}
	risks := []string{}
	if len(docs) < 2 {
		risks = append(risks, "Limited documentation provided")
	}
	return Sanitize(Result{
		TrustScore: score,
		SummaryBullets: []string{
			fmt.Sprintf("%d financial documents reviewed", len(docs)),
			fmt.Sprintf("%d document categories: %s", len(categories), strings.Join(categories, ", ")),
			"Standard risk assessment completed",
		},
		RiskFactors:     risks,
		Recommendations: []string{"Consider additional documentation for enhanced assessment"},
	})
}

// distinctCategories keeps first-seen order.
func distinctCategories(docs []DocumentInput) []string {
	seen := make(map[string]struct{}, len(docs))
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		if _, ok := seen[d.Category]; ok {
			continue
		}
		seen[d.Category] = struct{}{}
		out = append(out, d.Category)
	}
	return out
}
