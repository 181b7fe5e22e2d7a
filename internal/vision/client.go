package vision

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/trustlend/trustlend/internal/apperr"
	"github.com/trustlend/trustlend/internal/llm"
)

// Client sends document images to a vision-capable model.
type Client struct {
	completer llm.Completer
	maxTokens int
}

// NewClient constructs a Client. A nil completer makes Analyze return
// apperr.ErrNotConfigured.
func NewClient(completer llm.Completer, maxTokens int) *Client {
	return &Client{completer: completer, maxTokens: maxTokens}
}

// Prompt returns the extraction instruction for a file.
func Prompt(filename string) string {
	var b strings.Builder
	b.WriteString("Extract every financial detail you can find in this document image and answer with one JSON object containing:\n")
	fmt.Fprintf(&b, "- category: one of %q\n", Categories)
	b.WriteString("- documentType: the specific kind of document, for example \"Monthly Bank Statement\", \"Electricity Bill\" or \"Pay Stub\"\n")
	b.WriteString("- keyDetails: an array with every detail visible, covering amounts, balances, fees, dates, transaction descriptions, merchant names, reference numbers, account holder name and address, bank or institution names, interest rates and credit limits\n")
	b.WriteString("- summary: a short description of the document\n")
	b.WriteString("- confidence: a number between 0 and 1\n\n")
	b.WriteString("Privacy: never write out a full account number. Show only its first 4 digits.\n\n")
	fmt.Fprintf(&b, "Filename: %s\n", filename)
	return b.String()
}

// Analyze extracts details from a base64 image. Upstream failures are
// returned as errors wrapping apperr.ErrUpstreamAnalysis; ErrorFallback
// describes what the caller should show instead.
func (c *Client) Analyze(ctx context.Context, imageBase64, filename string) (Analysis, error) {
	imageBase64 = strings.TrimSpace(imageBase64)
	if imageBase64 == "" {
		return Analysis{}, apperr.New(apperr.ErrInvalidInput, "No image provided")
	}
	if c == nil || c.completer == nil {
		return Analysis{}, apperr.New(apperr.ErrNotConfigured, "document vision is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	req := llm.Request{
		Messages: []llm.Message{{
			Role:        "user",
			Text:        Prompt(filename),
			ImageBase64: imageBase64,
			ImageMIME:   imageMIMEFor(filename),
		}},
		MaxTokens: c.maxTokens,
	}
	text, err := c.completer.Complete(ctx, req)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return Analysis{}, err
		}
		return Analysis{}, fmt.Errorf("%w: vision request failed: %v", apperr.ErrUpstreamAnalysis, err)
	}
	if strings.TrimSpace(text) == "" {
		return Analysis{}, fmt.Errorf("%w: no analysis received", apperr.ErrUpstreamAnalysis)
	}

	out := Normalize(text, filename)
	log.WithFields(log.Fields{
		"filename":    filename,
		"category":    out.Category,
		"key_details": len(out.KeyDetails),
		"heuristic":   out.Heuristic,
	}).Debug("vision: document analyzed")
	return out, nil
}

func imageMIMEFor(filename string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); strings.HasPrefix(t, "image/") {
		return t
	}
	return "image/jpeg"
}
