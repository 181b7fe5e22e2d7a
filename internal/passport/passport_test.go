package passport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/trustlend/trustlend/internal/apperr"
	"github.com/trustlend/trustlend/internal/config"
)

func TestClient_Score(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/registry/score/42/0xabc" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-API-Key"); got != "key" {
			t.Errorf("unexpected api key %q", got)
		}
		_, _ = w.Write([]byte(`{"address":"0xabc","score":"21.750","status":"DONE"}`))
	}))
	defer srv.Close()

	client := NewClient(config.PassportConfig{BaseURL: srv.URL + "/", APIKey: "key", ScorerID: "42"})
	got, err := client.Score(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if !got.Verified || got.Score != "21.750" || !got.IsPassing || got.Value != 21.75 {
		t.Fatalf("unexpected score: %+v", got)
	}
	if string(got.RawData) == "" {
		t.Fatalf("expected raw data")
	}
}

func TestClient_ScoreNumericAndMissing(t *testing.T) {
	body := `{"score":0.5}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	client := NewClient(config.PassportConfig{BaseURL: srv.URL, APIKey: "key", ScorerID: "1"})
	got, err := client.Score(context.Background(), "0xdef")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got.Score != "0.5" || got.IsPassing {
		t.Fatalf("unexpected score: %+v", got)
	}

	body = `{"status":"PROCESSING"}`
	got, err = client.Score(context.Background(), "0xdef")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got.Score != "0" || got.IsPassing {
		t.Fatalf("expected zero score, got %+v", got)
	}
}

func TestClient_ScoreErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"bad key"}`))
	}))
	defer srv.Close()

	client := NewClient(config.PassportConfig{BaseURL: srv.URL, APIKey: "key", ScorerID: "1"})
	_, err := client.Score(context.Background(), "0xdef")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected status error, got %v", err)
	}
	if !errors.Is(err, apperr.ErrUpstreamAnalysis) {
		t.Fatalf("expected upstream kind, got %v", err)
	}

	if _, errCfg := NewClient(config.PassportConfig{BaseURL: srv.URL}).Score(context.Background(), "0x1"); !errors.Is(errCfg, apperr.ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", errCfg)
	}
	if _, errAddr := client.Score(context.Background(), ""); !errors.Is(errAddr, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", errAddr)
	}
}
