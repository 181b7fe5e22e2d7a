package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/trustlend/trustlend/internal/apperr"
	"github.com/trustlend/trustlend/internal/config"
	"github.com/trustlend/trustlend/internal/db"
	"github.com/trustlend/trustlend/internal/loanrequest"
	"github.com/trustlend/trustlend/internal/models"
)

const testTx = "0x8f3c4c2d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b1c2d3e4f5a6b7c8d9e0f1a2b"

type fakeBackend struct {
	mu       sync.Mutex
	receipt  *types.Receipt
	heads    []uint64
	calls    int
	receipts int
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, _ common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts++
	if f.receipt == nil {
		return nil, ethereum.NotFound
	}
	return f.receipt, nil
}

func (f *fakeBackend) BlockNumber(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	if idx >= len(f.heads) {
		idx = len(f.heads) - 1
	}
	f.calls++
	return f.heads[idx], nil
}

func testConfig() config.ChainConfig {
	return config.ChainConfig{PollInterval: time.Millisecond, Timeout: 500 * time.Millisecond}
}

func TestWaitForConfirmations_WaitsForDepth(t *testing.T) {
	backend := &fakeBackend{
		receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(100)},
		heads:   []uint64{100, 100, 101},
	}
	c := NewConfirmer(backend, testConfig())

	receipt, err := c.WaitForConfirmations(context.Background(), testTx, 0)
	if err != nil {
		t.Fatalf("WaitForConfirmations: %v", err)
	}
	if receipt.BlockNumber.Uint64() != 100 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if backend.calls != 3 {
		t.Fatalf("expected 3 head lookups, got %d", backend.calls)
	}
}

func TestWaitForConfirmations_FailedReceipt(t *testing.T) {
	backend := &fakeBackend{
		receipt: &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(5)},
		heads:   []uint64{10},
	}
	_, err := NewConfirmer(backend, testConfig()).WaitForConfirmations(context.Background(), testTx, 2)
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected failed transaction error, got %v", err)
	}
}

func TestWaitForConfirmations_Timeout(t *testing.T) {
	backend := &fakeBackend{heads: []uint64{1}}
	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond
	_, err := NewConfirmer(backend, cfg).WaitForConfirmations(context.Background(), testTx, 2)
	if !errors.Is(err, apperr.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if backend.receipts < 2 {
		t.Fatalf("expected repeated polling, got %d", backend.receipts)
	}
}

func TestParseTxHash(t *testing.T) {
	if _, err := ParseTxHash(testTx); err != nil {
		t.Fatalf("ParseTxHash: %v", err)
	}
	for _, raw := range []string{"", "0x1234", "8f3c4c2d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b1c2d3e4f5a6b7c8d9e0f1a2b"} {
		if _, err := ParseTxHash(raw); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Fatalf("ParseTxHash(%q): expected invalid input, got %v", raw, err)
		}
	}
}

func TestUSDToETH(t *testing.T) {
	cases := map[float64]string{
		4100:   "1",
		1000:   "0.243902",
		5000.5: "1.219634",
	}
	for usd, want := range cases {
		if got := USDToETH(usd); !got.Equal(decimal.RequireFromString(want)) {
			t.Fatalf("USDToETH(%v) = %s, want %s", usd, got, want)
		}
	}
	if wei := ToWei(decimal.RequireFromString("0.243902")); wei.String() != "243902000000000000" {
		t.Fatalf("unexpected wei %s", wei)
	}
}

type stubWaiter struct {
	err   error
	calls int
}

func (s *stubWaiter) WaitForConfirmations(_ context.Context, _ string, _ uint64) (*types.Receipt, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(1)}, nil
}

func TestPublishAndFund(t *testing.T) {
	ctx := context.Background()
	conn, errOpen := db.Open("file:" + t.TempDir() + "/chain.db")
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	requests := loanrequest.NewService(conn)
	row, errCreate := requests.Create(ctx, 1, loanrequest.CreateInput{Amount: 4100, Duration: 6, Purpose: "Equipment", AllowAssessments: true})
	if errCreate != nil {
		t.Fatalf("Create: %v", errCreate)
	}

	waiter := &stubWaiter{}
	pub := NewPublisher(waiter, requests)

	if _, err := pub.Publish(ctx, 2, row.ShortID, testTx); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for non-owner publish, got %v", err)
	}
	if _, err := pub.Fund(ctx, 2, row.ShortID, testTx, "0xabc"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected draft request to be unfundable, got %v", err)
	}

	published, errPublish := pub.Publish(ctx, 1, row.ShortID, testTx)
	if errPublish != nil {
		t.Fatalf("Publish: %v", errPublish)
	}
	if !published.IsOnChain || !published.IsPublished || published.Status != models.LoanRequestStatusActive || published.BlockchainTxHash != testTx {
		t.Fatalf("unexpected published row %+v", published)
	}

	if _, err := pub.Fund(ctx, 1, row.ShortID, testTx, "0xabc"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected owner fund to fail, got %v", err)
	}
	funded, errFund := pub.Fund(ctx, 2, row.ShortID, testTx, "0xabc")
	if errFund != nil {
		t.Fatalf("Fund: %v", errFund)
	}
	if !funded.IsFunded || funded.FundedBy != "0xabc" || funded.Status != models.LoanRequestStatusFunded {
		t.Fatalf("unexpected funded row %+v", funded)
	}
	if _, err := pub.Fund(ctx, 3, row.ShortID, testTx, "0xdef"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected funded request to be unlisted, got %v", err)
	}
	if waiter.calls != 2 {
		t.Fatalf("expected 2 confirmation waits, got %d", waiter.calls)
	}
}

func TestPublish_WaitFailureLeavesRow(t *testing.T) {
	ctx := context.Background()
	conn, errOpen := db.Open("file:" + t.TempDir() + "/chain.db")
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	requests := loanrequest.NewService(conn)
	row, errCreate := requests.Create(ctx, 1, loanrequest.CreateInput{Amount: 100, Duration: 1, Purpose: "Rent"})
	if errCreate != nil {
		t.Fatalf("Create: %v", errCreate)
	}
	pub := NewPublisher(&stubWaiter{err: errTxWait}, requests)
	if _, err := pub.Publish(ctx, 1, row.ShortID, testTx); !errors.Is(err, apperr.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	fresh, _ := requests.FindByShortID(ctx, row.ShortID)
	if fresh.IsOnChain || fresh.Status != models.LoanRequestStatusDraft {
		t.Fatalf("row changed after failed wait: %+v", fresh)
	}

	if _, err := NewPublisher(nil, requests).Publish(ctx, 1, row.ShortID, testTx); !errors.Is(err, apperr.ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
}
