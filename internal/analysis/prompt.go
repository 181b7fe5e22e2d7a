package analysis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// promptDocument is the per-document context embedded in the prompt.
type promptDocument struct {
	Filename            string   `json:"filename"`
	Category            string   `json:"category"`
	Type                string   `json:"type"`
	KeyFinancialDetails []string `json:"keyFinancialDetails"`
	AISummary           string   `json:"aiSummary"`
}

// BuildPrompt renders the scoring instruction for the given input.
func BuildPrompt(in Input) string {
	docs := make([]promptDocument, 0, len(in.Documents))
	for _, d := range in.Documents {
		details := d.KeyDetails
		if details == nil {
			details = []string{}
		}
		docs = append(docs, promptDocument{
			Filename:            d.Filename,
			Category:            d.Category,
			Type:                d.DocumentType,
			KeyFinancialDetails: details,
			AISummary:           d.Summary,
		})
	}
	docsJSON, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		docsJSON = []byte("[]")
	}

	var b strings.Builder
	b.WriteString("You assess the credit risk of a loan applicant from summaries of their financial documents.\n\n")
	b.WriteString("LOAN APPLICATION\n")
	fmt.Fprintf(&b, "- Amount: $%s\n", strconv.FormatFloat(in.LoanAmount, 'f', -1, 64))
	fmt.Fprintf(&b, "- Duration: %d months\n", in.LoanDuration)
	fmt.Fprintf(&b, "- Purpose: %s\n\n", in.LoanPurpose)
	b.WriteString("DOCUMENTS\n")
	b.Write(docsJSON)
	b.WriteString("\n\nTASK\n")
	b.WriteString("1. Give a trust score from 0 to 100 weighing income stability, spending discipline, debt obligations, cash flow consistency and document completeness.\n")
	b.WriteString("2. Give 3 to 5 short summary points about the applicant's financial health.\n")
	b.WriteString("3. Give 2 to 3 main risk factors.\n")
	b.WriteString("4. Give 1 to 2 recommendations for the lender.\n\n")
	b.WriteString("Reply with a single JSON object and nothing else, using exactly these keys:\n")
	b.WriteString(`{"trustScore": 0, "summaryBullets": [], "riskFactors": [], "recommendations": []}`)
	b.WriteString("\n")
	return b.String()
}
