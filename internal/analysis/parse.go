package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/trustlend/trustlend/internal/apperr"
)

// ExtractJSONObject returns the span from the first '{' to the last '}'.
// Models often wrap the object in prose or code fences.
func ExtractJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

type modelAnswer struct {
	TrustScore      json.RawMessage `json:"trustScore"`
	SummaryBullets  []any           `json:"summaryBullets"`
	RiskFactors     []any           `json:"riskFactors"`
	Recommendations []any           `json:"recommendations"`
}

// ParseResponse turns model text into a sanitized result. It fails with
// apperr.ErrUpstreamParse when no usable object or score is present.
func ParseResponse(text string) (Result, error) {
	span, ok := ExtractJSONObject(text)
	if !ok {
		return Result{}, fmt.Errorf("%w: no json object in response", apperr.ErrUpstreamParse)
	}
	var answer modelAnswer
	if errUnmarshal := json.Unmarshal([]byte(span), &answer); errUnmarshal != nil {
		return Result{}, fmt.Errorf("%w: %v", apperr.ErrUpstreamParse, errUnmarshal)
	}
	score, errScore := parseScore(answer.TrustScore)
	if errScore != nil {
		return Result{}, errScore
	}
	return Sanitize(Result{
		TrustScore:      score,
		SummaryBullets:  stringList(answer.SummaryBullets),
		RiskFactors:     stringList(answer.RiskFactors),
		Recommendations: stringList(answer.Recommendations),
	}), nil
}

// parseScore accepts a JSON number or numeric string and floors it.
func parseScore(raw json.RawMessage) (int, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return 0, fmt.Errorf("%w: missing trustScore", apperr.ErrUpstreamParse)
	}
	var value float64
	if errNumber := json.Unmarshal(raw, &value); errNumber != nil {
		var asString string
		if errString := json.Unmarshal(raw, &asString); errString != nil {
			return 0, fmt.Errorf("%w: trustScore is not numeric", apperr.ErrUpstreamParse)
		}
		parsed, errParse := strconv.ParseFloat(strings.TrimSpace(asString), 64)
		if errParse != nil {
			return 0, fmt.Errorf("%w: trustScore is not numeric", apperr.ErrUpstreamParse)
		}
		value = parsed
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: trustScore is not finite", apperr.ErrUpstreamParse)
	}
	floored := math.Floor(value)
	if floored < MinTrustScore {
		return MinTrustScore, nil
	}
	if floored > MaxTrustScore {
		return MaxTrustScore, nil
	}
	return int(floored), nil
}

func stringList(items []any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case nil:
			continue
		case string:
			if s := strings.TrimSpace(v); s != "" {
				out = append(out, s)
			}
		default:
			encoded, err := json.Marshal(v)
			if err == nil {
				out = append(out, string(encoded))
			}
		}
	}
	return out
}
