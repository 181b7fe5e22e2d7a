package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/trustlend/trustlend/internal/apperr"
	"github.com/trustlend/trustlend/internal/config"
)

const defaultRequestTimeout = 60 * time.Second

// ChatClient calls an OpenAI-compatible /chat/completions endpoint.
type ChatClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewChatClient constructs a ChatClient from role settings.
func NewChatClient(cfg config.LLMConfig) *ChatClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &ChatClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
	}
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// Complete sends the request and returns choices[0].message.content.
func (c *ChatClient) Complete(ctx context.Context, req Request) (string, error) {
	if c == nil {
		return "", apperr.ErrNotConfigured
	}
	if ctx == nil {
		ctx = context.Background()
	}

	body := chatRequest{Model: c.model, MaxTokens: req.MaxTokens}
	if req.Temperature > 0 {
		temperature := req.Temperature
		body.Temperature = &temperature
	}
	for _, m := range req.Messages {
		role := m.Role
		if role == "" {
			role = "user"
		}
		if m.ImageBase64 == "" {
			body.Messages = append(body.Messages, chatMessage{Role: role, Content: m.Text})
			continue
		}
		body.Messages = append(body.Messages, chatMessage{
			Role: role,
			Content: []chatContentPart{
				{Type: "text", Text: m.Text},
				{Type: "image_url", ImageURL: &chatImageURL{URL: "data:" + imageMIME(m) + ";base64," + m.ImageBase64}},
			},
		})
	}

	payload, errMarshal := json.Marshal(body)
	if errMarshal != nil {
		return "", fmt.Errorf("llm: marshal request: %w", errMarshal)
	}

	httpReq, errReq := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if errReq != nil {
		return "", fmt.Errorf("llm: build request: %w", errReq)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, errDo := c.client.Do(httpReq)
	if errDo != nil {
		return "", fmt.Errorf("%w: request failed: %v", apperr.ErrUpstreamAnalysis, errDo)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Warn("llm: close response body failed")
		}
	}()

	raw, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return "", fmt.Errorf("%w: read response: %v", apperr.ErrUpstreamAnalysis, errRead)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("%w: unexpected status %d", apperr.ErrUpstreamAnalysis, resp.StatusCode)
	}

	text := extractContent(raw)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %v", apperr.ErrUpstreamAnalysis, ErrEmptyCompletion)
	}
	if finish := gjson.GetBytes(raw, "choices.0.finish_reason").String(); finish != "" && finish != "stop" {
		log.WithField("finish_reason", finish).Debug("llm: completion did not stop cleanly")
	}
	return text, nil
}

// extractContent reads the first choice's content, which some gateways
// return as an array of typed parts.
func extractContent(raw []byte) string {
	content := gjson.GetBytes(raw, "choices.0.message.content")
	if !content.IsArray() {
		return content.String()
	}
	var b strings.Builder
	for _, part := range content.Array() {
		if part.Get("type").String() == "text" || part.Get("text").Exists() {
			b.WriteString(part.Get("text").String())
		}
	}
	return b.String()
}
