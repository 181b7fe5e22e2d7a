package chain

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/core/types"
	log "github.com/sirupsen/logrus"
	"github.com/trustlend/trustlend/internal/apperr"
	"github.com/trustlend/trustlend/internal/loanrequest"
	"github.com/trustlend/trustlend/internal/models"
)

// Waiter confirms a transaction hash.
type Waiter interface {
	WaitForConfirmations(ctx context.Context, txHash string, n uint64) (*types.Receipt, error)
}

// Publisher records confirmed publish and fund transactions on loan requests.
type Publisher struct {
	waiter   Waiter
	requests *loanrequest.Service
}

// NewPublisher constructs a Publisher. A nil waiter disables chain actions.
func NewPublisher(waiter Waiter, requests *loanrequest.Service) *Publisher {
	return &Publisher{waiter: waiter, requests: requests}
}

// Publish waits for the owner's proposal transaction, then lists the request.
func (p *Publisher) Publish(ctx context.Context, userID uint64, shortID, txHash string) (*models.LoanRequest, error) {
	if p == nil || p.waiter == nil {
		return nil, apperr.New(apperr.ErrNotConfigured, "Chain RPC is not configured")
	}
	if _, errFind := p.requests.FindOwned(ctx, userID, shortID); errFind != nil {
		return nil, errFind
	}
	if _, errHash := ParseTxHash(txHash); errHash != nil {
		return nil, errHash
	}
	if _, errWait := p.waiter.WaitForConfirmations(ctx, txHash, 0); errWait != nil {
		return nil, errWait
	}

	hash := strings.TrimSpace(txHash)
	onChain := true
	published := true
	status := models.LoanRequestStatusActive
	row, errUpdate := p.requests.Update(ctx, userID, shortID, loanrequest.Patch{
		BlockchainTxHash: &hash,
		IsOnChain:        &onChain,
		IsPublished:      &published,
		Status:           &status,
	})
	if errUpdate != nil {
		return nil, errUpdate
	}
	log.WithFields(log.Fields{"short_id": row.ShortID, "tx": hash}).Info("chain: loan request published")
	return row, nil
}

// Fund waits for a lender's funding transaction, then marks the request
// funded.
func (p *Publisher) Fund(ctx context.Context, userID uint64, shortID, txHash, fundedBy string) (*models.LoanRequest, error) {
	if p == nil || p.waiter == nil {
		return nil, apperr.New(apperr.ErrNotConfigured, "Chain RPC is not configured")
	}
	row, errFind := p.requests.FindByShortID(ctx, shortID)
	if errFind != nil {
		return nil, errFind
	}
	if !row.Listed() || row.UserID == userID {
		return nil, apperr.New(apperr.ErrNotFound, "Loan request not found")
	}
	if row.IsFunded {
		return nil, apperr.New(apperr.ErrConflict, "Loan request is no longer open for funding")
	}
	if strings.TrimSpace(fundedBy) == "" {
		return nil, apperr.New(apperr.ErrInvalidInput, "fundedBy is required")
	}
	if _, errHash := ParseTxHash(txHash); errHash != nil {
		return nil, errHash
	}
	if _, errWait := p.waiter.WaitForConfirmations(ctx, txHash, 0); errWait != nil {
		return nil, errWait
	}
	funded, errMark := p.requests.MarkFunded(ctx, userID, shortID, fundedBy, txHash)
	if errMark != nil {
		return nil, errMark
	}
	log.WithFields(log.Fields{"short_id": funded.ShortID, "tx": strings.TrimSpace(txHash)}).Info("chain: loan request funded")
	return funded, nil
}
