package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/trustlend/trustlend/internal/apperr"
	"github.com/trustlend/trustlend/internal/config"
)

func TestChatClient_Complete(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key-1" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		if errDecode := json.NewDecoder(r.Body).Decode(&got); errDecode != nil {
			t.Errorf("decode body: %v", errDecode)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"trustScore\":80}"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client := NewChatClient(config.LLMConfig{BaseURL: server.URL + "/v1/", APIKey: "key-1", Model: "m", Timeout: time.Second})
	text, err := client.Complete(context.Background(), UserPrompt("hello", 0.3, 1000))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != `{"trustScore":80}` {
		t.Fatalf("unexpected text %q", text)
	}
	if got["model"] != "m" || got["max_tokens"] != float64(1000) {
		t.Fatalf("unexpected request body: %v", got)
	}
	if temp, ok := got["temperature"].(float64); !ok || temp < 0.29 || temp > 0.31 {
		t.Fatalf("expected temperature 0.3, got %v", got["temperature"])
	}
}

func TestChatClient_ImagePart(t *testing.T) {
	var got struct {
		Messages []struct {
			Content []map[string]any `json:"content"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":[{"type":"text","text":"part-a"},{"type":"text","text":"part-b"}]}}]}`))
	}))
	defer server.Close()

	client := NewChatClient(config.LLMConfig{BaseURL: server.URL, APIKey: "k", Model: "vision"})
	text, err := client.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Text: "extract", ImageBase64: "aGVsbG8="}},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "part-apart-b" {
		t.Fatalf("expected joined parts, got %q", text)
	}
	if len(got.Messages) != 1 || len(got.Messages[0].Content) != 2 {
		t.Fatalf("expected one message with two parts, got %+v", got.Messages)
	}
	imagePart := got.Messages[0].Content[1]
	url, _ := imagePart["image_url"].(map[string]any)["url"].(string)
	if url != "data:image/jpeg;base64,aGVsbG8=" {
		t.Fatalf("unexpected image url %q", url)
	}
}

func TestChatClient_UpstreamErrors(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":""}}]}`))
	}))
	defer empty.Close()

	for _, url := range []string{failing.URL, empty.URL} {
		client := NewChatClient(config.LLMConfig{BaseURL: url, APIKey: "k"})
		if _, err := client.Complete(context.Background(), UserPrompt("x", 0, 0)); !errors.Is(err, apperr.ErrUpstreamAnalysis) {
			t.Fatalf("expected upstream analysis error from %s, got %v", url, err)
		}
	}
}

func TestNew_NotConfigured(t *testing.T) {
	if _, err := New(context.Background(), config.LLMConfig{}); !errors.Is(err, apperr.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	c, err := New(context.Background(), config.LLMConfig{APIKey: "k", Provider: "OpenAI"})
	if err != nil {
		t.Fatalf("expected openai completer, got %v", err)
	}
	if _, ok := c.(*ChatClient); !ok {
		t.Fatalf("expected *ChatClient, got %T", c)
	}
	if _, err := New(context.Background(), config.LLMConfig{APIKey: "k", Provider: "unknown"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid provider error, got %v", err)
	}
}
