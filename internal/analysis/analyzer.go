package analysis

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/trustlend/trustlend/internal/apperr"
	"github.com/trustlend/trustlend/internal/llm"
)

// Analyzer scores borrowers through a chat-completion model.
type Analyzer struct {
	completer   llm.Completer
	temperature float32
	maxTokens   int
}

// NewAnalyzer constructs an Analyzer. A nil completer always falls back.
func NewAnalyzer(completer llm.Completer, temperature float32, maxTokens int) *Analyzer {
	return &Analyzer{completer: completer, temperature: temperature, maxTokens: maxTokens}
}

// Analyze returns a sanitized result. Upstream and parse failures are
// absorbed into Fallback and reported in Outcome.Err.
func (a *Analyzer) Analyze(ctx context.Context, in Input) Outcome {
	if a == nil || a.completer == nil {
		return fallbackOutcome(in, fmt.Errorf("%w: analysis model not configured", apperr.ErrUpstreamAnalysis))
	}
	if ctx == nil {
		ctx = context.Background()
	}

	text, errComplete := a.completer.Complete(ctx, llm.UserPrompt(BuildPrompt(in), a.temperature, a.maxTokens))
	if errComplete != nil {
		return fallbackOutcome(in, fmt.Errorf("%w: %v", apperr.ErrUpstreamAnalysis, errComplete))
	}
	result, errParse := ParseResponse(text)
	if errParse != nil {
		return fallbackOutcome(in, errParse)
	}
	return Outcome{Result: result, Source: SourceModel}
}

func fallbackOutcome(in Input, err error) Outcome {
	log.WithError(err).WithField("documents", len(in.Documents)).Warn("analysis: using fallback score")
	return Outcome{Result: Fallback(in.Documents), Source: SourceFallback, Err: err}
}
