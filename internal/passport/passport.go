// Package passport fetches humanity scores from the Gitcoin Passport scorer.
package passport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/trustlend/trustlend/internal/apperr"
	"github.com/trustlend/trustlend/internal/config"
)

const defaultTimeout = 15 * time.Second

// PassingScore is the minimum score treated as human.
const PassingScore = 1.0

// Score is the verification result for one address.
type Score struct {
	Verified  bool            `json:"verified"`
	Score     string          `json:"score"`
	Value     float64         `json:"-"`
	IsPassing bool            `json:"isPassing"`
	RawData   json.RawMessage `json:"rawData"`
}

// StatusError reports a non-2xx scorer response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("passport: scorer returned status %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error { return apperr.ErrUpstreamAnalysis }

// Client calls the scorer API.
type Client struct {
	baseURL    string
	apiKey     string
	scorerID   string
	httpClient *http.Client
}

// NewClient constructs a Client from configuration.
func NewClient(cfg config.PassportConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		scorerID:   strings.TrimSpace(cfg.ScorerID),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether credentials are configured.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != "" && c.scorerID != "" && c.baseURL != ""
}

// Score fetches the score of address.
func (c *Client) Score(ctx context.Context, address string) (*Score, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, apperr.New(apperr.ErrInvalidInput, "Address is required")
	}
	if !c.Enabled() {
		return nil, apperr.New(apperr.ErrNotConfigured, "Passport API not configured")
	}

	endpoint := fmt.Sprintf("%s/registry/score/%s/%s", c.baseURL, url.PathEscape(c.scorerID), url.PathEscape(address))
	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if errReq != nil {
		return nil, fmt.Errorf("passport: build request: %w", errReq)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("%w: passport request: %v", apperr.ErrUpstreamAnalysis, errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	body, errRead := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if errRead != nil {
		return nil, fmt.Errorf("%w: passport read: %v", apperr.ErrUpstreamAnalysis, errRead)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: passport returned invalid json", apperr.ErrUpstreamParse)
	}

	score := gjson.GetBytes(body, "score")
	out := &Score{Verified: true, Score: "0", RawData: json.RawMessage(body)}
	if score.Exists() && score.Type != gjson.Null {
		out.Value = score.Float()
		if text := strings.TrimSpace(score.String()); text != "" {
			out.Score = text
		}
	}
	out.IsPassing = out.Value >= PassingScore
	return out, nil
}
