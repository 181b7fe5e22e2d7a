// Package vision extracts structured financial details from document images
// and normalizes whatever the model returns into a stable shape.
package vision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Defaults applied when the model omits a field.
const (
	DefaultDocumentType = "Financial Document"
	DefaultConfidence   = 0.7
	HeuristicConfidence = 0.7
	CategoryOther       = "Other"
)

// Categories the extraction prompt allows.
var Categories = []string{"Bank Statement", "Mobile Money", "Utilities", "Income Proof", "Receipt", "Invoice", CategoryOther}

// Analysis is the normalized vision result. RawOutput always carries the
// verbatim model text.
type Analysis struct {
	Category     string   `json:"category"`
	DocumentType string   `json:"documentType"`
	KeyDetails   []string `json:"keyDetails"`
	Summary      string   `json:"summary"`
	Confidence   float64  `json:"confidence"`
	RawOutput    string   `json:"rawOutput"`
	Heuristic    bool     `json:"-"`
}

// ErrorFallback is returned alongside an error when the model call fails.
func ErrorFallback() Analysis {
	return Analysis{
		Category:     CategoryOther,
		DocumentType: DefaultDocumentType,
		KeyDetails:   []string{"Document uploaded successfully", "Manual review recommended"},
		Summary:      "Document uploaded but automatic analysis failed",
		Confidence:   0.5,
	}
}

var (
	jsonFenceStart  = regexp.MustCompile("^```json\\s*")
	plainFenceStart = regexp.MustCompile("^```\\s*")
	fenceEnd        = regexp.MustCompile("\\s*```$")
	numericComma    = regexp.MustCompile(`(-?\d+),(\d{3})(\D|$)`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
	amountPattern   = regexp.MustCompile(`\$?\d[\d,]*(?:\.\d+)?`)
	datePattern     = regexp.MustCompile(`\d{1,2}[-/]\d{1,2}[-/]\d{2,4}`)
)

// Normalize turns raw model text into an Analysis. It never fails: text that
// does not parse is handled by keyword heuristics.
func Normalize(raw, filename string) Analysis {
	fields, ok := parseObject(raw)
	var out Analysis
	if ok {
		out = fromFields(fields)
	} else {
		out = heuristic(raw, filename)
	}
	out = applyDefaults(out, filename)
	out.RawOutput = raw
	return out
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(text, "```json"):
		text = fenceEnd.ReplaceAllString(jsonFenceStart.ReplaceAllString(text, ""), "")
	case strings.HasPrefix(text, "```"):
		text = fenceEnd.ReplaceAllString(plainFenceStart.ReplaceAllString(text, ""), "")
	}
	return text
}

// repairNumericCommas joins thousands groups: a comma followed by exactly
// three digits and a non-digit. It repeats until nothing changes so that
// 1,234,567 collapses fully.
func repairNumericCommas(text string) string {
	for {
		next := numericComma.ReplaceAllString(text, "$1$2$3")
		if next == text {
			return text
		}
		text = next
	}
}

func collapseWhitespace(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}

func parseObject(raw string) (map[string]any, bool) {
	cleaned := collapseWhitespace(repairNumericCommas(stripFences(raw)))
	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	return fields, true
}

func fromFields(fields map[string]any) Analysis {
	out := Analysis{
		Category:     stringField(fields["category"]),
		DocumentType: stringField(fields["documentType"]),
		Summary:      stringField(fields["summary"]),
		Confidence:   -1,
	}
	switch details := fields["keyDetails"].(type) {
	case []any:
		out.KeyDetails = stringifyAll(details)
	case map[string]any:
		out.KeyDetails = flattenKeyDetails(details)
	}
	if n, ok := fields["confidence"].(json.Number); ok {
		if f, err := n.Float64(); err == nil {
			out.Confidence = clampUnit(f)
		}
	}
	return out
}

type detailSeries struct {
	key   string
	label string
}

var detailOrder = []detailSeries{
	{"amounts", "Amount"},
	{"dates", "Date"},
	{"accountNumbers", "Account"},
	{"transactionDescriptions", "Transaction"},
	{"merchantNames", "Merchant"},
	{"referenceNumbers", "Reference"},
}

var trailingOrder = []detailSeries{
	{"bankNames", "Bank"},
	{"availableBalances", "Available Balance"},
	{"feesAndCharges", "Fee/Charge"},
}

// flattenKeyDetails renders the nested keyDetails object as labelled lines in
// a fixed key order. Unrecognized keys are dropped.
func flattenKeyDetails(nested map[string]any) []string {
	lines := make([]string, 0)
	appendSeries := func(series []detailSeries) {
		for _, s := range series {
			items, ok := nested[s.key].([]any)
			if !ok {
				continue
			}
			for i, item := range items {
				lines = append(lines, fmt.Sprintf("%s %d: %s", s.label, i+1, stringify(item)))
			}
		}
	}
	appendSeries(detailOrder)
	if holder, ok := nested["accountHolderInformation"].(map[string]any); ok {
		if name := stringify(holder["name"]); name != "" {
			lines = append(lines, "Account Holder: "+name)
		}
		if addr := stringify(holder["address"]); addr != "" {
			lines = append(lines, "Address: "+addr)
		}
	}
	appendSeries(trailingOrder)
	return lines
}

func heuristic(raw, filename string) Analysis {
	category := categoryFromText(raw, filename)
	details := make([]string, 0, 2)
	if amount := amountPattern.FindString(raw); amount != "" {
		details = append(details, "Amount found: "+amount)
	}
	if date := datePattern.FindString(raw); date != "" {
		details = append(details, "Date: "+date)
	}
	if len(details) == 0 {
		details = append(details, "Financial document processed")
	}
	return Analysis{
		Category:     category,
		DocumentType: category + " Document",
		KeyDetails:   details,
		Confidence:   HeuristicConfidence,
		Heuristic:    true,
	}
}

func categoryFromText(text, filename string) string {
	lowerText := strings.ToLower(text)
	lowerName := strings.ToLower(filename)
	switch {
	case containsAny(lowerText, "bank", "statement") || strings.Contains(lowerName, "bank"):
		return "Bank Statement"
	case containsAny(lowerText, "mobile money", "m-pesa") || strings.Contains(lowerName, "mpesa"):
		return "Mobile Money"
	case containsAny(lowerText, "utility", "electric", "water"):
		return "Utilities"
	case containsAny(lowerText, "pay", "salary", "income"):
		return "Income Proof"
	default:
		return CategoryOther
	}
}

// CategoryFromFilename guesses a category from the file name alone.
func CategoryFromFilename(filename string) string {
	lower := strings.ToLower(filename)
	switch {
	case containsAny(lower, "bank", "statement"):
		return "Bank Statement"
	case containsAny(lower, "mpesa", "mobile"):
		return "Mobile Money"
	case containsAny(lower, "bill", "utility"):
		return "Utilities"
	case containsAny(lower, "pay", "salary"):
		return "Income Proof"
	default:
		return CategoryOther
	}
}

func applyDefaults(a Analysis, filename string) Analysis {
	if strings.TrimSpace(a.Category) == "" {
		a.Category = CategoryFromFilename(filename)
	}
	if strings.TrimSpace(a.DocumentType) == "" {
		a.DocumentType = DefaultDocumentType
	}
	if len(a.KeyDetails) == 0 {
		a.KeyDetails = []string{"Document uploaded successfully"}
	}
	if strings.TrimSpace(a.Summary) == "" {
		a.Summary = "Analysis of " + filename
	}
	if a.Confidence < 0 {
		a.Confidence = DefaultConfidence
	}
	a.Confidence = clampUnit(a.Confidence)
	return a
}

// ClampConfidence bounds a confidence value to [0,1]. NaN becomes 0.
func ClampConfidence(v float64) float64 {
	return clampUnit(v)
}

func clampUnit(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func stringField(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func stringifyAll(items []any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := stringify(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		encoded, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(encoded)
	}
}
