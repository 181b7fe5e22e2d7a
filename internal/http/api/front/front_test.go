package front

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/trustlend/trustlend/internal/analysis"
	"github.com/trustlend/trustlend/internal/assessment"
	"github.com/trustlend/trustlend/internal/chain"
	"github.com/trustlend/trustlend/internal/config"
	"github.com/trustlend/trustlend/internal/db"
	"github.com/trustlend/trustlend/internal/document"
	"github.com/trustlend/trustlend/internal/llm"
	"github.com/trustlend/trustlend/internal/loanrequest"
	"github.com/trustlend/trustlend/internal/passport"
	"github.com/trustlend/trustlend/internal/profile"
	"github.com/trustlend/trustlend/internal/ratelimit"
	"github.com/trustlend/trustlend/internal/security"
	"github.com/trustlend/trustlend/internal/vault"
	"github.com/trustlend/trustlend/internal/vision"
	"github.com/trustlend/trustlend/internal/wallet"
)

const testSecret = "test-secret"

type failingCompleter struct{}

func (failingCompleter) Complete(context.Context, llm.Request) (string, error) {
	return "", errors.New("upstream down")
}

type testServer struct {
	engine *gin.Engine
}

func newTestServer(t *testing.T, visionCompleter llm.Completer, limit int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conn, errOpen := db.Open("file:" + t.TempDir() + "/front.db")
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}

	passportClient := passport.NewClient(config.PassportConfig{})
	requests := loanrequest.NewService(conn)
	analyzer := analysis.NewAnalyzer(nil, 0.3, 1000)
	svc := Services{
		Profiles:     profile.NewService(conn),
		Wallets:      wallet.NewService(conn, passportClient),
		Passport:     passportClient,
		LoanRequests: requests,
		Documents:    document.NewService(conn),
		Assessments:  assessment.NewService(conn, analyzer),
		Analyzer:     analyzer,
		Vision:       vision.NewClient(visionCompleter, 1000),
		Vault:        vault.NewService(conn, vault.NewMemoryStore(), ""),
		Publisher:    chain.NewPublisher(nil, requests),
		Limiter:      ratelimit.NewManager(config.RateLimitConfig{PerWindow: limit, Window: time.Minute}, nil, nil),
	}
	engine := gin.New()
	RegisterFrontRoutes(engine, conn, config.JWTConfig{Secret: testSecret, Expiry: time.Hour}, svc)
	return &testServer{engine: engine}
}

func token(t *testing.T, subject, email string) string {
	t.Helper()
	tok, errIssue := security.IssueIdentityToken(testSecret, subject, email, "", time.Hour)
	if errIssue != nil {
		t.Fatalf("issue token: %v", errIssue)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path, tok string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Body.Len() > 0 {
		if errDecode := json.Unmarshal(rec.Body.Bytes(), &out); errDecode != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), errDecode)
		}
	}
	return rec.Code, out
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, nil, 0)
	if code, _ := s.do(t, http.MethodGet, "/healthz", "", nil); code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/v1/me", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/v1/me", "not-a-jwt", nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", code)
	}
	code, me := s.do(t, http.MethodGet, "/v1/me", token(t, "user_a", "ada@example.com"), nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d %v", code, me)
	}
	if me["displayName"] != "ada" || me["credits"] != float64(10) || me["email"] != "ada@example.com" {
		t.Fatalf("unexpected profile %v", me)
	}
}

func TestAssessmentFlow(t *testing.T) {
	s := newTestServer(t, nil, 0)
	borrower := token(t, "borrower", "bo@example.com")
	lender := token(t, "lender", "le@example.com")

	_, borrowerMe := s.do(t, http.MethodGet, "/v1/me", borrower, nil)
	borrowerID := borrowerMe["userId"]

	code, created := s.do(t, http.MethodPost, "/v1/loan-requests", borrower, map[string]any{
		"amount": 4100, "duration": 6, "purpose": "Inventory",
	})
	if code != http.StatusCreated {
		t.Fatalf("create loan request: %d %v", code, created)
	}
	if created["amountEth"] != float64(1) {
		t.Fatalf("expected amountEth 1, got %v", created["amountEth"])
	}
	if created["amountWei"] != "1000000000000000000" {
		t.Fatalf("expected amountWei 1e18, got %v", created["amountWei"])
	}
	loanRequestID := created["id"]

	for _, doc := range []map[string]any{
		{"filename": "statement.png", "category": "Bank Statement", "loanRequestId": loanRequestID},
		{"filename": "payslip.png", "category": "Income Proof"},
	} {
		if code, out := s.do(t, http.MethodPost, "/v1/documents", borrower, doc); code != http.StatusCreated {
			t.Fatalf("upload document: %d %v", code, out)
		}
	}
	code, history := s.do(t, http.MethodGet, "/v1/documents/history", borrower, nil)
	if code != http.StatusOK || len(history["history"].([]any)) != 2 {
		t.Fatalf("unexpected history %d %v", code, history)
	}

	code, a := s.do(t, http.MethodPost, "/v1/assessments", lender, map[string]any{
		"borrowerId": borrowerID, "loanRequestId": loanRequestID,
	})
	if code != http.StatusCreated || a["status"] != "pending" {
		t.Fatalf("create assessment: %d %v", code, a)
	}
	id := uint64(a["id"].(float64))
	path := func(action string) string { return "/v1/assessments/" + jsonNumber(id) + "/" + action }

	if code, out := s.do(t, http.MethodPost, path("approve"), lender, nil); code != http.StatusNotFound {
		t.Fatalf("lender approve: expected 404, got %d %v", code, out)
	}
	if code, out := s.do(t, http.MethodPost, path("approve"), borrower, nil); code != http.StatusOK || out["status"] != "processing" {
		t.Fatalf("approve: %d %v", code, out)
	}
	if code, out := s.do(t, http.MethodPost, path("decline"), borrower, nil); code != http.StatusConflict {
		t.Fatalf("decline after approve: expected 409, got %d %v", code, out)
	}
	code, processed := s.do(t, http.MethodPost, path("process"), lender, nil)
	if code != http.StatusOK {
		t.Fatalf("process: %d %v", code, processed)
	}
	if processed["trustScore"] != float64(76) || processed["source"] != "fallback" || processed["status"] != "completed" {
		t.Fatalf("unexpected processed assessment %v", processed)
	}

	_, credits := s.do(t, http.MethodGet, "/v1/me/credits", lender, nil)
	if credits["credits"] != 9.5 {
		t.Fatalf("expected 9.5 credits, got %v", credits)
	}
	_, lenderList := s.do(t, http.MethodGet, "/v1/assessments/lender", lender, nil)
	rows := lenderList["assessments"].([]any)
	if len(rows) != 1 || rows[0].(map[string]any)["borrowerName"] != "bo" {
		t.Fatalf("unexpected lender list %v", lenderList)
	}
}

func TestInsufficientCredits(t *testing.T) {
	s := newTestServer(t, nil, 0)
	borrower := token(t, "borrower", "bo@example.com")
	lender := token(t, "lender", "le@example.com")
	_, borrowerMe := s.do(t, http.MethodGet, "/v1/me", borrower, nil)

	for i := 0; i < 20; i++ {
		if code, out := s.do(t, http.MethodPost, "/v1/assessments", lender, map[string]any{"borrowerId": borrowerMe["userId"]}); code != http.StatusCreated {
			t.Fatalf("assessment %d: %d %v", i, code, out)
		}
	}
	code, out := s.do(t, http.MethodPost, "/v1/assessments", lender, map[string]any{"borrowerId": borrowerMe["userId"]})
	if code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d %v", code, out)
	}
}

func TestDocumentAnalyze(t *testing.T) {
	tok := token(t, "user_a", "ada@example.com")

	s := newTestServer(t, nil, 0)
	if code, _ := s.do(t, http.MethodPost, "/v1/documents/analyze", tok, map[string]any{"filename": "a.png"}); code != http.StatusBadRequest {
		t.Fatalf("expected 400 without image, got %d", code)
	}
	if code, _ := s.do(t, http.MethodPost, "/v1/documents/analyze", tok, map[string]any{"image": "aGk=", "filename": "a.png"}); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when vision is not configured, got %d", code)
	}

	s = newTestServer(t, failingCompleter{}, 0)
	code, out := s.do(t, http.MethodPost, "/v1/documents/analyze", tok, map[string]any{"image": "aGk=", "filename": "a.png"})
	if code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d %v", code, out)
	}
	fallback, ok := out["fallback"].(map[string]any)
	if !ok || fallback["category"] != "Other" || fallback["confidence"] != 0.5 {
		t.Fatalf("unexpected fallback %v", out)
	}
}

func TestVaultAndKeypair(t *testing.T) {
	s := newTestServer(t, nil, 0)
	tok := token(t, "user_a", "ada@example.com")

	code, out := s.do(t, http.MethodPost, "/v1/vault", tok, map[string]any{"action": "store", "documentId": "d1", "rawOutput": "{}"})
	if code != http.StatusNotFound || out["error"] != "Keypair not found. Generate keypair first." {
		t.Fatalf("expected keypair not found, got %d %v", code, out)
	}

	code, out = s.do(t, http.MethodPost, "/v1/keypair", tok, nil)
	if code != http.StatusCreated || out["message"] != "Keypair generated successfully" {
		t.Fatalf("generate keypair: %d %v", code, out)
	}
	kp := out["keypair"].(map[string]any)
	if _, leaked := kp["privateKey"]; leaked {
		t.Fatalf("private key must not be returned")
	}
	if code, out = s.do(t, http.MethodPost, "/v1/keypair", tok, nil); code != http.StatusOK || out["message"] != "Keypair already exists" {
		t.Fatalf("second generate: %d %v", code, out)
	}

	if code, out = s.do(t, http.MethodPost, "/v1/vault", tok, map[string]any{"action": "store", "documentId": "d1", "rawOutput": "{\"a\":1}"}); code != http.StatusOK {
		t.Fatalf("store: %d %v", code, out)
	}
	code, out = s.do(t, http.MethodPost, "/v1/vault", tok, map[string]any{"action": "retrieve", "documentId": "d1"})
	if code != http.StatusOK || out["data"].(map[string]any)["rawOutput"] != "{\"a\":1}" {
		t.Fatalf("retrieve: %d %v", code, out)
	}
	if code, _ = s.do(t, http.MethodPost, "/v1/vault", tok, map[string]any{"action": "wipe"}); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid action, got %d", code)
	}
}

func TestRateLimitedRoute(t *testing.T) {
	s := newTestServer(t, nil, 1)
	tok := token(t, "user_a", "ada@example.com")
	body := map[string]any{"documentsData": []any{}, "loanAmount": 1000, "loanDuration": 6, "loanPurpose": "Rent"}

	code, out := s.do(t, http.MethodPost, "/v1/ai/trust-score", tok, body)
	if code != http.StatusOK || out["trustScore"] != float64(50) || out["source"] != "fallback" {
		t.Fatalf("first trust score: %d %v", code, out)
	}
	if code, _ = s.do(t, http.MethodPost, "/v1/ai/trust-score", tok, body); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
}

func TestPublishWithoutChain(t *testing.T) {
	s := newTestServer(t, nil, 0)
	tok := token(t, "user_a", "ada@example.com")
	_, created := s.do(t, http.MethodPost, "/v1/loan-requests", tok, map[string]any{"amount": 100, "duration": 1, "purpose": "Rent"})
	code, _ := s.do(t, http.MethodPost, "/v1/loan-requests/"+created["shortId"].(string)+"/publish", tok, map[string]any{"txHash": "0x00"})
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without chain rpc, got %d", code)
	}
}

func jsonNumber(v uint64) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}
