// Package analysis produces trust scores from document summaries and loan
// parameters. Analyze never fails: every upstream problem degrades to a
// deterministic fallback result.
package analysis

// Output limits applied on every path.
const (
	MaxSummaryBullets  = 5
	MaxRiskFactors     = 3
	MaxRecommendations = 2
	MinTrustScore      = 0
	MaxTrustScore      = 100
)

// DocumentInput summarizes one borrower document. RawOutput is accepted for
// completeness but never sent to the model.
type DocumentInput struct {
	Filename     string   `json:"filename"`
	Category     string   `json:"category"`
	DocumentType string   `json:"documentType"`
	KeyDetails   []string `json:"keyDetails"`
	Summary      string   `json:"summary"`
	RawOutput    string   `json:"rawOutput"`
}

// Input is the analysis request.
type Input struct {
	Documents    []DocumentInput `json:"documentsData"`
	LoanAmount   float64         `json:"loanAmount"`
	LoanDuration int             `json:"loanDuration"`
	LoanPurpose  string          `json:"loanPurpose"`
}

// Result is the scored assessment.
type Result struct {
	TrustScore      int      `json:"trustScore"`
	SummaryBullets  []string `json:"summaryBullets"`
	RiskFactors     []string `json:"riskFactors"`
	Recommendations []string `json:"recommendations"`
}

// Source tells where a result came from.
type Source string

const (
	SourceModel    Source = "ai"
	SourceFallback Source = "fallback"
)

// Outcome is a result plus the absorbed error that forced a fallback, if any.
type Outcome struct {
	Result Result
	Source Source
	Err    error
}

// Sanitize clamps the score and truncates every list to its limit. Nil lists
// become empty so callers never persist null.
func Sanitize(r Result) Result {
	if r.TrustScore < MinTrustScore {
		r.TrustScore = MinTrustScore
	}
	if r.TrustScore > MaxTrustScore {
		r.TrustScore = MaxTrustScore
	}
	r.SummaryBullets = truncate(r.SummaryBullets, MaxSummaryBullets)
	r.RiskFactors = truncate(r.RiskFactors, MaxRiskFactors)
	r.Recommendations = truncate(r.Recommendations, MaxRecommendations)
	return r
}

func truncate(items []string, limit int) []string {
	if items == nil {
		return []string{}
	}
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]string, len(items))
	copy(out, items)
	return out
}
