// Package chain waits for on-chain confirmation of publish and fund
// transactions before loan requests are updated.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	log "github.com/sirupsen/logrus"
	"github.com/trustlend/trustlend/internal/apperr"
	"github.com/trustlend/trustlend/internal/config"
	"github.com/trustlend/trustlend/internal/settings"
)

const (
	defaultPollInterval = 4 * time.Second
	defaultTimeout      = 10 * time.Minute
)

var (
	errTxFailed = apperr.New(apperr.ErrInvalidInput, "Transaction failed on chain")
	errTxWait   = apperr.New(apperr.ErrTimeout, "Timed out waiting for transaction confirmations")
)

// Backend is the subset of an Ethereum RPC client used for confirmations.
type Backend interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Confirmer polls a Backend until a transaction is buried deep enough.
type Confirmer struct {
	backend       Backend
	confirmations uint64
	poll          time.Duration
	timeout       time.Duration
}

// NewConfirmer wraps backend with the configured polling policy.
func NewConfirmer(backend Backend, cfg config.ChainConfig) *Confirmer {
	c := &Confirmer{
		backend:       backend,
		confirmations: cfg.Confirmations,
		poll:          cfg.PollInterval,
		timeout:       cfg.Timeout,
	}
	if c.confirmations == 0 {
		c.confirmations = settings.RequiredConfirmations
	}
	if c.poll <= 0 {
		c.poll = defaultPollInterval
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	return c
}

// Dial connects to the configured RPC endpoint. The returned close func
// releases the connection.
func Dial(ctx context.Context, cfg config.ChainConfig) (*Confirmer, func(), error) {
	url := strings.TrimSpace(cfg.RPCURL)
	if url == "" {
		return nil, func() {}, apperr.New(apperr.ErrNotConfigured, "Chain RPC is not configured")
	}
	client, errDial := ethclient.DialContext(ctx, url)
	if errDial != nil {
		return nil, func() {}, fmt.Errorf("chain: dial: %w", errDial)
	}
	return NewConfirmer(client, cfg), client.Close, nil
}

// ParseTxHash validates a 0x-prefixed 32 byte transaction hash.
func ParseTxHash(raw string) (common.Hash, error) {
	b, err := hexutil.Decode(strings.TrimSpace(raw))
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, apperr.New(apperr.ErrInvalidInput, "invalid transaction hash")
	}
	return common.BytesToHash(b), nil
}

// WaitForConfirmations blocks until txHash has at least n confirmations,
// counting the inclusion block. n of zero uses the configured depth.
func (c *Confirmer) WaitForConfirmations(ctx context.Context, txHash string, n uint64) (*types.Receipt, error) {
	hash, errHash := ParseTxHash(txHash)
	if errHash != nil {
		return nil, errHash
	}
	if n == 0 {
		n = c.confirmations
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		receipt, done, errCheck := c.check(ctx, hash, n)
		if errCheck != nil {
			return nil, errCheck
		}
		if done {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, errTxWait
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Confirmer) check(ctx context.Context, hash common.Hash, n uint64) (*types.Receipt, bool, error) {
	receipt, errReceipt := c.backend.TransactionReceipt(ctx, hash)
	if errReceipt != nil {
		if errors.Is(errReceipt, ethereum.NotFound) || ctx.Err() != nil {
			return nil, false, nil
		}
		log.WithError(errReceipt).WithField("tx", hash.Hex()).Debug("chain: receipt lookup failed")
		return nil, false, nil
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, false, errTxFailed
	}
	if receipt.BlockNumber == nil {
		return nil, false, nil
	}
	head, errHead := c.backend.BlockNumber(ctx)
	if errHead != nil {
		if ctx.Err() == nil {
			log.WithError(errHead).Debug("chain: block number lookup failed")
		}
		return nil, false, nil
	}
	included := receipt.BlockNumber.Uint64()
	if head >= included && head-included+1 >= n {
		return receipt, true, nil
	}
	return nil, false, nil
}
