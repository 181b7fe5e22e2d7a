// Package wallet manages the EVM addresses connected by users.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"github.com/trustlend/trustlend/internal/apperr"
	"github.com/trustlend/trustlend/internal/models"
	"github.com/trustlend/trustlend/internal/passport"
	"gorm.io/gorm"
)

// Scorer returns the humanity score for an address.
type Scorer interface {
	Score(ctx context.Context, address string) (*passport.Score, error)
}

// Service manages wallets.
type Service struct {
	db     *gorm.DB
	scorer Scorer
}

// NewService constructs a wallet Service. scorer may be nil.
func NewService(db *gorm.DB, scorer Scorer) *Service {
	return &Service{db: db, scorer: scorer}
}

// NormalizeAddress validates a hex address and returns its checksum form.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return "", apperr.New(apperr.ErrInvalidInput, "invalid wallet address")
	}
	return common.HexToAddress(address).Hex(), nil
}

// List returns the user's wallets, primary first and then newest first.
func (s *Service) List(ctx context.Context, userID uint64) ([]models.Wallet, error) {
	var rows []models.Wallet
	if errFind := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("wallet: list: %w", errFind)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].IsPrimary != rows[j].IsPrimary {
			return rows[i].IsPrimary
		}
		return rows[i].ConnectedAt.After(rows[j].ConnectedAt)
	})
	return rows, nil
}

// Add connects a wallet. The first wallet of a user becomes primary.
func (s *Service) Add(ctx context.Context, userID uint64, address, nickname string) (*models.Wallet, error) {
	normalized, errAddr := NormalizeAddress(address)
	if errAddr != nil {
		return nil, errAddr
	}
	wallet := models.Wallet{
		UserID:      userID,
		Address:     normalized,
		Nickname:    strings.TrimSpace(nickname),
		ConnectedAt: time.Now().UTC(),
	}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if errCount := tx.Model(&models.Wallet{}).
			Where("user_id = ? AND address = ?", userID, normalized).
			Count(&existing).Error; errCount != nil {
			return errCount
		}
		if existing > 0 {
			return apperr.New(apperr.ErrConflict, "Wallet already connected")
		}
		var total int64
		if errCount := tx.Model(&models.Wallet{}).Where("user_id = ?", userID).Count(&total).Error; errCount != nil {
			return errCount
		}
		wallet.IsPrimary = total == 0
		return tx.Create(&wallet).Error
	})
	if errTx != nil {
		if errors.Is(errTx, apperr.ErrConflict) {
			return nil, errTx
		}
		return nil, fmt.Errorf("wallet: add: %w", errTx)
	}
	return &wallet, nil
}

// Get returns one wallet owned by the user.
func (s *Service) Get(ctx context.Context, userID, walletID uint64) (*models.Wallet, error) {
	return s.get(s.db.WithContext(ctx), userID, walletID)
}

func (s *Service) get(conn *gorm.DB, userID, walletID uint64) (*models.Wallet, error) {
	var wallet models.Wallet
	if errFind := conn.Where("id = ? AND user_id = ?", walletID, userID).First(&wallet).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.ErrNotFound, "Wallet not found")
		}
		return nil, fmt.Errorf("wallet: get: %w", errFind)
	}
	return &wallet, nil
}

// GetByAddress returns the user's wallet with the given address.
func (s *Service) GetByAddress(ctx context.Context, userID uint64, address string) (*models.Wallet, error) {
	normalized, errAddr := NormalizeAddress(address)
	if errAddr != nil {
		return nil, errAddr
	}
	var wallet models.Wallet
	if errFind := s.db.WithContext(ctx).
		Where("user_id = ? AND address = ?", userID, normalized).
		First(&wallet).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.ErrNotFound, "Wallet not found")
		}
		return nil, fmt.Errorf("wallet: get by address: %w", errFind)
	}
	return &wallet, nil
}

// Primary returns the primary wallet of a user, or nil when none is set.
func Primary(ctx context.Context, conn *gorm.DB, userID uint64) (*models.Wallet, error) {
	var wallet models.Wallet
	errFind := conn.WithContext(ctx).Where("user_id = ? AND is_primary = ?", userID, true).First(&wallet).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("wallet: primary: %w", errFind)
	}
	return &wallet, nil
}

// SetPrimary marks one wallet as primary and clears the flag on the rest.
func (s *Service) SetPrimary(ctx context.Context, userID, walletID uint64) (*models.Wallet, error) {
	var out *models.Wallet
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallet, errGet := s.get(tx, userID, walletID)
		if errGet != nil {
			return errGet
		}
		if errClear := tx.Model(&models.Wallet{}).
			Where("user_id = ? AND id <> ?", userID, walletID).
			Update("is_primary", false).Error; errClear != nil {
			return errClear
		}
		if errSet := tx.Model(&models.Wallet{}).
			Where("id = ?", walletID).
			Update("is_primary", true).Error; errSet != nil {
			return errSet
		}
		wallet.IsPrimary = true
		out = wallet
		return nil
	})
	if errTx != nil {
		if errors.Is(errTx, apperr.ErrNotFound) {
			return nil, errTx
		}
		return nil, fmt.Errorf("wallet: set primary: %w", errTx)
	}
	return out, nil
}

// Remove disconnects a wallet. Removing the primary promotes the oldest
// remaining wallet.
func (s *Service) Remove(ctx context.Context, userID, walletID uint64) error {
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallet, errGet := s.get(tx, userID, walletID)
		if errGet != nil {
			return errGet
		}
		var others []models.Wallet
		if errFind := tx.Where("user_id = ? AND id <> ?", userID, walletID).
			Order("connected_at ASC, id ASC").
			Find(&others).Error; errFind != nil {
			return errFind
		}
		if wallet.IsPrimary && len(others) == 0 {
			return apperr.New(apperr.ErrInvalidInput, "Cannot remove the only primary wallet")
		}
		if errClear := tx.Model(&models.LoanRequest{}).
			Where("payout_wallet_id = ?", walletID).
			Update("payout_wallet_id", nil).Error; errClear != nil {
			return errClear
		}
		if errDelete := tx.Delete(&models.Wallet{}, walletID).Error; errDelete != nil {
			return errDelete
		}
		if wallet.IsPrimary {
			return tx.Model(&models.Wallet{}).Where("id = ?", others[0].ID).Update("is_primary", true).Error
		}
		return nil
	})
	if errTx != nil {
		if errors.Is(errTx, apperr.ErrNotFound) || errors.Is(errTx, apperr.ErrInvalidInput) {
			return errTx
		}
		return fmt.Errorf("wallet: remove: %w", errTx)
	}
	return nil
}

// UpdateHumanityScore stores a fetched score on a wallet.
func (s *Service) UpdateHumanityScore(ctx context.Context, userID, walletID uint64, score float64, verified bool, at time.Time) (*models.Wallet, error) {
	wallet, errGet := s.Get(ctx, userID, walletID)
	if errGet != nil {
		return nil, errGet
	}
	at = at.UTC()
	if errUpdate := s.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ?", wallet.ID).
		Updates(map[string]any{
			"humanity_score":       score,
			"last_score_update":    at,
			"is_humanity_verified": verified,
		}).Error; errUpdate != nil {
		return nil, fmt.Errorf("wallet: update humanity score: %w", errUpdate)
	}
	wallet.HumanityScore = &score
	wallet.LastScoreUpdate = &at
	wallet.IsHumanityVerified = &verified
	return wallet, nil
}

// RefreshHumanityScore fetches the score for a wallet and persists it.
func (s *Service) RefreshHumanityScore(ctx context.Context, userID, walletID uint64) (*models.Wallet, *passport.Score, error) {
	if s.scorer == nil {
		return nil, nil, apperr.New(apperr.ErrNotConfigured, "Passport API not configured")
	}
	wallet, errGet := s.Get(ctx, userID, walletID)
	if errGet != nil {
		return nil, nil, errGet
	}
	score, errScore := s.scorer.Score(ctx, wallet.Address)
	if errScore != nil {
		log.WithError(errScore).WithField("wallet_id", walletID).Warn("wallet: humanity score lookup failed")
		return nil, nil, errScore
	}
	updated, errUpdate := s.UpdateHumanityScore(ctx, userID, walletID, score.Value, score.IsPassing, time.Now())
	if errUpdate != nil {
		return nil, nil, errUpdate
	}
	return updated, score, nil
}
