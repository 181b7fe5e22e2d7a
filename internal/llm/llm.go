// Package llm talks to hosted chat-completion models.
package llm

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/trustlend/trustlend/internal/apperr"
	"github.com/trustlend/trustlend/internal/config"
)

// Message is one chat turn. ImageBase64 attaches an image to a user turn.
type Message struct {
	Role        string
	Text        string
	ImageBase64 string
	ImageMIME   string
}

// Request describes one completion call.
type Request struct {
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// Completer returns the text of the first completion choice.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// UserPrompt builds a single-turn text request.
func UserPrompt(prompt string, temperature float32, maxTokens int) Request {
	return Request{
		Messages:    []Message{{Role: "user", Text: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}

// ErrEmptyCompletion is returned when the model produced no text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// New builds the completer configured for one role. It returns
// apperr.ErrNotConfigured when the role has no credentials.
func New(ctx context.Context, cfg config.LLMConfig) (Completer, error) {
	if !cfg.Enabled() {
		return nil, apperr.ErrNotConfigured
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "gemini":
		return NewGeminiCompleter(ctx, cfg)
	case "", "openai":
		return NewChatClient(cfg), nil
	default:
		return nil, apperr.New(apperr.ErrInvalidInput, "llm: unsupported provider "+cfg.Provider)
	}
}

// Close releases a completer's resources when it holds any.
func Close(c Completer) error {
	if closer, ok := c.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func imageMIME(m Message) string {
	if mime := strings.TrimSpace(m.ImageMIME); mime != "" {
		return mime
	}
	return "image/jpeg"
}
