// Package loanrequest is the registry of borrower loan requests and the
// lender-facing marketplace built on it.
package loanrequest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/trustlend/trustlend/internal/apperr"
	"github.com/trustlend/trustlend/internal/db"
	"github.com/trustlend/trustlend/internal/models"
	"github.com/trustlend/trustlend/internal/profile"
	"gorm.io/gorm"
)

const maxShortIDAttempts = 10

// Service manages loan requests.
type Service struct {
	db *gorm.DB
}

// NewService constructs a loan request Service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// CreateInput holds the fields of a new loan request.
type CreateInput struct {
	Amount           float64
	Duration         int
	Purpose          string
	Note             string
	AllowAssessments bool
	PayoutWalletID   *uint64
}

// Patch holds optional loan request updates. Nil fields are left unchanged.
// A PayoutWalletID of zero clears the payout wallet.
type Patch struct {
	Amount           *float64
	Duration         *int
	Purpose          *string
	Note             *string
	AllowAssessments *bool
	PayoutWalletID   *uint64
	Status           *models.LoanRequestStatus
	IsPublished      *bool
	BlockchainTxHash *string
	IsOnChain        *bool
	IsFunded         *bool
	FundedBy         *string
	FundingTxHash    *string
}

// Owned is a loan request as its owner sees it.
type Owned struct {
	Request              models.LoanRequest
	AssessmentCount      int64
	CompletedAssessments int64
	PendingAssessments   int64
	PayoutWalletAddress  string
}

// Detail is a loan request looked up by short id.
type Detail struct {
	Request             models.LoanRequest
	BorrowerName        string
	PayoutWalletAddress string
	AssessmentCount     int64
}

// Borrower summarizes the author of a listed request for a viewing lender.
type Borrower struct {
	DisplayName              string
	WalletsCount             int64
	HumanityScore            *float64
	HumanityVerified         *bool
	HasExistingAssessment    bool
	ExistingAssessmentStatus models.AssessmentStatus
	CompletedAssessments     int64
}

// Listing is one marketplace row.
type Listing struct {
	Request  models.LoanRequest
	Borrower Borrower
}

// Public is a single listed request as a lender sees it.
type Public struct {
	Request              models.LoanRequest
	Borrower             Borrower
	ExistingAssessment   *models.AssessmentRequest
	CanRequestAssessment bool
}

// Create registers a draft loan request with a fresh short id.
func (s *Service) Create(ctx context.Context, userID uint64, in CreateInput) (*models.LoanRequest, error) {
	in.Purpose = strings.TrimSpace(in.Purpose)
	if in.Amount <= 0 {
		return nil, apperr.New(apperr.ErrInvalidInput, "amount must be greater than zero")
	}
	if in.Duration <= 0 {
		return nil, apperr.New(apperr.ErrInvalidInput, "duration must be greater than zero")
	}
	if in.Purpose == "" {
		return nil, apperr.New(apperr.ErrInvalidInput, "purpose is required")
	}

	row := models.LoanRequest{
		UserID:           userID,
		Amount:           in.Amount,
		Duration:         in.Duration,
		Purpose:          in.Purpose,
		Note:             strings.TrimSpace(in.Note),
		AllowAssessments: in.AllowAssessments,
		Status:           models.LoanRequestStatusDraft,
		IsPublished:      false,
		CreatedAt:        time.Now().UTC(),
	}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.PayoutWalletID != nil && *in.PayoutWalletID != 0 {
			if errOwn := requireWalletOwner(tx, userID, *in.PayoutWalletID); errOwn != nil {
				return errOwn
			}
			row.PayoutWalletID = in.PayoutWalletID
		}
		shortID, errID := uniqueShortID(tx)
		if errID != nil {
			return errID
		}
		row.ShortID = shortID
		return tx.Create(&row).Error
	})
	if errTx != nil {
		if errors.Is(errTx, apperr.ErrNotFound) {
			return nil, errTx
		}
		return nil, fmt.Errorf("loanrequest: create: %w", errTx)
	}
	return &row, nil
}

func uniqueShortID(tx *gorm.DB) (string, error) {
	for attempt := 0; attempt < maxShortIDAttempts; attempt++ {
		candidate, errGen := NewShortID()
		if errGen != nil {
			return "", errGen
		}
		var count int64
		if errCount := tx.Model(&models.LoanRequest{}).Where("short_id = ?", candidate).Count(&count).Error; errCount != nil {
			return "", errCount
		}
		if count == 0 {
			return candidate, nil
		}
	}
	return "", errors.New("loanrequest: could not allocate a unique short id")
}

// FindByShortID returns the raw row for a short id.
func (s *Service) FindByShortID(ctx context.Context, shortID string) (*models.LoanRequest, error) {
	return findByShortID(s.db.WithContext(ctx), shortID)
}

func findByShortID(conn *gorm.DB, shortID string) (*models.LoanRequest, error) {
	var row models.LoanRequest
	if errFind := conn.Where("short_id = ?", strings.TrimSpace(shortID)).First(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.ErrNotFound, "Loan request not found")
		}
		return nil, fmt.Errorf("loanrequest: find: %w", errFind)
	}
	return &row, nil
}

// FindOwned returns a request only when userID owns it.
func (s *Service) FindOwned(ctx context.Context, userID uint64, shortID string) (*models.LoanRequest, error) {
	row, errFind := s.FindByShortID(ctx, shortID)
	if errFind != nil {
		return nil, errFind
	}
	if row.UserID != userID {
		return nil, apperr.New(apperr.ErrNotFound, "Loan request not found or access denied")
	}
	return row, nil
}

// Update applies a patch to a request owned by userID.
func (s *Service) Update(ctx context.Context, userID uint64, shortID string, patch Patch) (*models.LoanRequest, error) {
	updates, errBuild := patchUpdates(patch)
	if errBuild != nil {
		return nil, errBuild
	}
	var out *models.LoanRequest
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, errFind := findByShortID(tx, shortID)
		if errFind != nil {
			return errFind
		}
		if row.UserID != userID {
			return apperr.New(apperr.ErrNotFound, "Loan request not found or access denied")
		}
		if patch.PayoutWalletID != nil {
			if *patch.PayoutWalletID == 0 {
				updates["payout_wallet_id"] = nil
			} else {
				if errOwn := requireWalletOwner(tx, userID, *patch.PayoutWalletID); errOwn != nil {
					return errOwn
				}
				updates["payout_wallet_id"] = *patch.PayoutWalletID
			}
		}
		if errUpdate := tx.Model(&models.LoanRequest{}).Where("id = ?", row.ID).Updates(updates).Error; errUpdate != nil {
			return errUpdate
		}
		var fresh models.LoanRequest
		if errReload := tx.First(&fresh, row.ID).Error; errReload != nil {
			return errReload
		}
		out = &fresh
		return nil
	})
	if errTx != nil {
		if errors.Is(errTx, apperr.ErrNotFound) {
			return nil, errTx
		}
		return nil, fmt.Errorf("loanrequest: update: %w", errTx)
	}
	return out, nil
}

// MarkFunded records a lender's funding transaction on a listed request.
// The caller must not own the request, and a request can be funded once.
func (s *Service) MarkFunded(ctx context.Context, funderID uint64, shortID, fundedBy, txHash string) (*models.LoanRequest, error) {
	row, errFind := s.FindByShortID(ctx, shortID)
	if errFind != nil {
		return nil, errFind
	}
	if !row.Listed() || row.UserID == funderID {
		return nil, apperr.New(apperr.ErrNotFound, "Loan request not found")
	}
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.LoanRequest{}).
		Where("id = ? AND status = ? AND is_published = ? AND is_funded = ?", row.ID, models.LoanRequestStatusActive, true, false).
		Updates(map[string]any{
			"is_funded":       true,
			"funded_by":       strings.TrimSpace(fundedBy),
			"funding_tx_hash": strings.TrimSpace(txHash),
			"status":          models.LoanRequestStatusFunded,
			"updated_at":      now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("loanrequest: mark funded: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.New(apperr.ErrConflict, "Loan request is no longer open for funding")
	}
	return s.FindByShortID(ctx, shortID)
}

func patchUpdates(p Patch) (map[string]any, error) {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if p.Amount != nil {
		if *p.Amount <= 0 {
			return nil, apperr.New(apperr.ErrInvalidInput, "amount must be greater than zero")
		}
		updates["amount"] = *p.Amount
	}
	if p.Duration != nil {
		if *p.Duration <= 0 {
			return nil, apperr.New(apperr.ErrInvalidInput, "duration must be greater than zero")
		}
		updates["duration"] = *p.Duration
	}
	if p.Purpose != nil {
		purpose := strings.TrimSpace(*p.Purpose)
		if purpose == "" {
			return nil, apperr.New(apperr.ErrInvalidInput, "purpose is required")
		}
		updates["purpose"] = purpose
	}
	if p.Note != nil {
		updates["note"] = strings.TrimSpace(*p.Note)
	}
	if p.AllowAssessments != nil {
		updates["allow_assessments"] = *p.AllowAssessments
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return nil, apperr.New(apperr.ErrInvalidInput, "invalid status")
		}
		updates["status"] = *p.Status
	}
	if p.IsPublished != nil {
		updates["is_published"] = *p.IsPublished
	}
	if p.BlockchainTxHash != nil {
		updates["blockchain_tx_hash"] = strings.TrimSpace(*p.BlockchainTxHash)
	}
	if p.IsOnChain != nil {
		updates["is_on_chain"] = *p.IsOnChain
	}
	if p.IsFunded != nil {
		updates["is_funded"] = *p.IsFunded
	}
	if p.FundedBy != nil {
		updates["funded_by"] = strings.TrimSpace(*p.FundedBy)
	}
	if p.FundingTxHash != nil {
		updates["funding_tx_hash"] = strings.TrimSpace(*p.FundingTxHash)
	}
	return updates, nil
}

// ListMine returns the caller's requests, newest first, with assessment
// counters and the payout wallet address.
func (s *Service) ListMine(ctx context.Context, userID uint64) ([]Owned, error) {
	var rows []models.LoanRequest
	if errFind := s.db.WithContext(ctx).
		Preload("PayoutWallet").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("loanrequest: list mine: %w", errFind)
	}
	if len(rows) == 0 {
		return []Owned{}, nil
	}

	ids := make([]uint64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	var assessments []models.AssessmentRequest
	if errFind := s.db.WithContext(ctx).
		Select("id", "loan_request_id", "status").
		Where("borrower_id = ? AND loan_request_id IN ?", userID, ids).
		Find(&assessments).Error; errFind != nil {
		return nil, fmt.Errorf("loanrequest: list assessments: %w", errFind)
	}

	out := make([]Owned, 0, len(rows))
	index := make(map[uint64]int, len(rows))
	for i, row := range rows {
		item := Owned{Request: row}
		if row.PayoutWallet != nil {
			item.PayoutWalletAddress = row.PayoutWallet.Address
		}
		index[row.ID] = i
		out = append(out, item)
	}
	for _, a := range assessments {
		if a.LoanRequestID == nil {
			continue
		}
		i, ok := index[*a.LoanRequestID]
		if !ok {
			continue
		}
		out[i].AssessmentCount++
		switch a.Status {
		case models.AssessmentStatusCompleted:
			out[i].CompletedAssessments++
		case models.AssessmentStatusPending:
			out[i].PendingAssessments++
		}
	}
	return out, nil
}

// GetByShortID returns a request with its borrower name, payout address and
// the number of assessments linked to it.
func (s *Service) GetByShortID(ctx context.Context, shortID string) (*Detail, error) {
	var row models.LoanRequest
	if errFind := s.db.WithContext(ctx).
		Preload("PayoutWallet").
		Where("short_id = ?", strings.TrimSpace(shortID)).
		First(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.ErrNotFound, "Loan request not found")
		}
		return nil, fmt.Errorf("loanrequest: get: %w", errFind)
	}
	names, errNames := profile.DisplayNames(ctx, s.db, []uint64{row.UserID})
	if errNames != nil {
		return nil, errNames
	}
	detail := &Detail{Request: row, BorrowerName: profile.NameOr(names, row.UserID)}
	if row.PayoutWallet != nil {
		detail.PayoutWalletAddress = row.PayoutWallet.Address
	}
	if errCount := s.db.WithContext(ctx).Model(&models.AssessmentRequest{}).
		Where("borrower_id = ? AND loan_request_id = ?", row.UserID, row.ID).
		Count(&detail.AssessmentCount).Error; errCount != nil {
		return nil, fmt.Errorf("loanrequest: count assessments: %w", errCount)
	}
	return detail, nil
}

// Marketplace lists active published requests of other users, newest first.
// A non-empty search narrows by purpose.
func (s *Service) Marketplace(ctx context.Context, viewerID uint64, search string) ([]Listing, error) {
	conn := s.db.WithContext(ctx)
	q := conn.Where("status = ? AND is_published = ? AND user_id <> ?", models.LoanRequestStatusActive, true, viewerID)
	if search = strings.TrimSpace(search); search != "" {
		pattern := db.NormalizeLikePattern(s.db, "%"+search+"%")
		q = q.Where(db.CaseInsensitiveLikeExpr(s.db, "purpose"), pattern)
	}
	var rows []models.LoanRequest
	if errFind := q.Order("created_at DESC, id DESC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("loanrequest: marketplace: %w", errFind)
	}
	if len(rows) == 0 {
		return []Listing{}, nil
	}

	borrowerIDs := make([]uint64, 0, len(rows))
	seen := make(map[uint64]struct{}, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.UserID]; ok {
			continue
		}
		seen[row.UserID] = struct{}{}
		borrowerIDs = append(borrowerIDs, row.UserID)
	}
	borrowers, errBorrowers := s.borrowers(ctx, viewerID, borrowerIDs)
	if errBorrowers != nil {
		return nil, errBorrowers
	}

	out := make([]Listing, 0, len(rows))
	for _, row := range rows {
		out = append(out, Listing{Request: row, Borrower: borrowers[row.UserID].Borrower})
	}
	return out, nil
}

// GetPublic returns one listed request for a lender. Unlisted requests and
// the viewer's own requests are reported as not found.
func (s *Service) GetPublic(ctx context.Context, viewerID uint64, shortID string) (*Public, error) {
	row, errFind := s.FindByShortID(ctx, shortID)
	if errFind != nil {
		return nil, errFind
	}
	if !row.Listed() || row.UserID == viewerID {
		return nil, apperr.New(apperr.ErrNotFound, "Loan request not found")
	}
	borrowers, errBorrowers := s.borrowers(ctx, viewerID, []uint64{row.UserID})
	if errBorrowers != nil {
		return nil, errBorrowers
	}
	info := borrowers[row.UserID]
	return &Public{
		Request:              *row,
		Borrower:             info.Borrower,
		ExistingAssessment:   info.existing,
		CanRequestAssessment: row.AllowAssessments && info.existing == nil,
	}, nil
}

type borrowerInfo struct {
	Borrower
	existing *models.AssessmentRequest
}

// borrowers gathers display names, wallets and assessment state for a set of
// borrowers as seen by viewerID.
func (s *Service) borrowers(ctx context.Context, viewerID uint64, borrowerIDs []uint64) (map[uint64]borrowerInfo, error) {
	conn := s.db.WithContext(ctx)
	names, errNames := profile.DisplayNames(ctx, s.db, borrowerIDs)
	if errNames != nil {
		return nil, errNames
	}
	var wallets []models.Wallet
	if errFind := conn.Where("user_id IN ?", borrowerIDs).Find(&wallets).Error; errFind != nil {
		return nil, fmt.Errorf("loanrequest: borrower wallets: %w", errFind)
	}
	var assessments []models.AssessmentRequest
	if errFind := conn.Where("borrower_id IN ?", borrowerIDs).
		Order("requested_at ASC, id ASC").
		Find(&assessments).Error; errFind != nil {
		return nil, fmt.Errorf("loanrequest: borrower assessments: %w", errFind)
	}

	out := make(map[uint64]borrowerInfo, len(borrowerIDs))
	for _, id := range borrowerIDs {
		out[id] = borrowerInfo{Borrower: Borrower{DisplayName: profile.NameOr(names, id)}}
	}
	for _, w := range wallets {
		info := out[w.UserID]
		info.WalletsCount++
		if w.IsPrimary {
			info.HumanityScore = w.HumanityScore
			info.HumanityVerified = w.IsHumanityVerified
		}
		out[w.UserID] = info
	}
	for i := range assessments {
		a := assessments[i]
		info := out[a.BorrowerID]
		if a.Status == models.AssessmentStatusCompleted {
			info.CompletedAssessments++
		}
		if a.LenderID == viewerID && info.existing == nil {
			info.existing = &a
			info.HasExistingAssessment = true
			info.ExistingAssessmentStatus = a.Status
		}
		out[a.BorrowerID] = info
	}
	return out, nil
}

func requireWalletOwner(conn *gorm.DB, userID, walletID uint64) error {
	var count int64
	if errCount := conn.Model(&models.Wallet{}).Where("id = ? AND user_id = ?", walletID, userID).Count(&count).Error; errCount != nil {
		return fmt.Errorf("loanrequest: check wallet: %w", errCount)
	}
	if count == 0 {
		return apperr.New(apperr.ErrNotFound, "Payout wallet not found")
	}
	return nil
}
