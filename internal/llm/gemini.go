package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/trustlend/trustlend/internal/apperr"
	"github.com/trustlend/trustlend/internal/config"
	"google.golang.org/api/option"
)

// GeminiCompleter runs completions against Google Gemini.
type GeminiCompleter struct {
	client *genai.Client
	model  string
}

// NewGeminiCompleter dials the Gemini API with the role's key.
func NewGeminiCompleter(ctx context.Context, cfg config.LLMConfig) (*GeminiCompleter, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("llm: create gemini client: %w", err)
	}
	return &GeminiCompleter{client: client, model: cfg.Model}, nil
}

// Close releases the underlying client.
func (g *GeminiCompleter) Close() error {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client.Close()
}

// Complete flattens the request into parts and returns the joined text of
// the first candidate.
func (g *GeminiCompleter) Complete(ctx context.Context, req Request) (string, error) {
	if g == nil || g.client == nil {
		return "", apperr.ErrNotConfigured
	}
	model := g.client.GenerativeModel(g.model)
	genCfg := genai.GenerationConfig{}
	if req.Temperature > 0 {
		temperature := req.Temperature
		genCfg.Temperature = &temperature
	}
	if req.MaxTokens > 0 {
		maxTokens := int32(req.MaxTokens)
		genCfg.MaxOutputTokens = &maxTokens
	}
	model.GenerationConfig = genCfg

	parts, errParts := geminiParts(req.Messages)
	if errParts != nil {
		return "", errParts
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("%w: gemini request failed: %v", apperr.ErrUpstreamAnalysis, err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrUpstreamAnalysis, ErrEmptyCompletion)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", fmt.Errorf("%w: %v", apperr.ErrUpstreamAnalysis, ErrEmptyCompletion)
	}
	return text.String(), nil
}

func geminiParts(messages []Message) ([]genai.Part, error) {
	parts := make([]genai.Part, 0, len(messages)*2)
	for _, m := range messages {
		if m.Text != "" {
			parts = append(parts, genai.Text(m.Text))
		}
		if m.ImageBase64 == "" {
			continue
		}
		data, errDecode := base64.StdEncoding.DecodeString(m.ImageBase64)
		if errDecode != nil {
			return nil, apperr.New(apperr.ErrInvalidInput, "image is not valid base64")
		}
		format := strings.TrimPrefix(imageMIME(m), "image/")
		parts = append(parts, genai.ImageData(format, data))
	}
	return parts, nil
}
