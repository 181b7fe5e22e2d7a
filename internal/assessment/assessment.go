// Package assessment runs the lender-requested, borrower-approved trust
// assessment workflow: pending -> processing -> completed, or pending ->
// declined.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/trustlend/trustlend/internal/analysis"
	"github.com/trustlend/trustlend/internal/apperr"
	"github.com/trustlend/trustlend/internal/db"
	"github.com/trustlend/trustlend/internal/document"
	"github.com/trustlend/trustlend/internal/models"
	"github.com/trustlend/trustlend/internal/profile"
	"github.com/trustlend/trustlend/internal/settings"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Fee is the credit cost of one assessment request.
var Fee = decimal.RequireFromString(settings.AssessmentFee)

// Analyzer scores a borrower. Implementations never fail.
type Analyzer interface {
	Analyze(ctx context.Context, in analysis.Input) analysis.Outcome
}

// Service orchestrates assessments.
type Service struct {
	db       *gorm.DB
	analyzer Analyzer
	now      func() time.Time
}

// NewService constructs an assessment Service.
func NewService(db *gorm.DB, analyzer Analyzer) *Service {
	return &Service{db: db, analyzer: analyzer, now: time.Now}
}

// BorrowerRow is an assessment as the borrower sees it.
type BorrowerRow struct {
	Assessment models.AssessmentRequest
	LenderName string
}

// LenderRow is an assessment as the lender sees it.
type LenderRow struct {
	Assessment   models.AssessmentRequest
	BorrowerName string
	Amount       *float64
	Duration     *int
}

var (
	errInsufficient = apperr.New(apperr.ErrInsufficientCredits, "Insufficient credits")
	errDisallowed   = apperr.New(apperr.ErrAssessmentsDisallowed, "Borrower does not allow assessments")
	errAlready      = apperr.New(apperr.ErrAlreadyProcessed, "Assessment already processed")
	errMissing      = apperr.New(apperr.ErrNotFound, "Assessment not found")
)

// Create charges the lender the fee and opens a pending assessment. The debit
// and the insert commit together or not at all.
func (s *Service) Create(ctx context.Context, lenderID, borrowerID uint64, loanRequestID *uint64) (*models.AssessmentRequest, error) {
	if borrowerID == 0 {
		return nil, apperr.New(apperr.ErrInvalidInput, "borrowerId is required")
	}
	var created models.AssessmentRequest
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lender models.Profile
		if errFind := db.ForUpdate(tx).Where("user_id = ?", lenderID).First(&lender).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.ErrNotFound, "Profile not found")
			}
			return errFind
		}
		if lender.Credits.LessThan(Fee) {
			return errInsufficient
		}

		var borrower models.Profile
		if errFind := tx.Where("user_id = ?", borrowerID).First(&borrower).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return errDisallowed
			}
			return errFind
		}
		if !borrower.AllowAssessments {
			return errDisallowed
		}

		if loanRequestID != nil {
			var count int64
			if errCount := tx.Model(&models.LoanRequest{}).
				Where("id = ? AND user_id = ?", *loanRequestID, borrowerID).
				Count(&count).Error; errCount != nil {
				return errCount
			}
			if count == 0 {
				return apperr.New(apperr.ErrNotFound, "Loan request not found")
			}
		}

		debit := tx.Model(&models.Profile{}).
			Where("id = ? AND credits >= ?", lender.ID, Fee).
			Updates(map[string]any{
				"credits":    gorm.Expr("credits - ?", Fee),
				"updated_at": s.now().UTC(),
			})
		if debit.Error != nil {
			return debit.Error
		}
		if debit.RowsAffected == 0 {
			return errInsufficient
		}

		created = models.AssessmentRequest{
			LenderID:      lenderID,
			BorrowerID:    borrowerID,
			LoanRequestID: loanRequestID,
			Status:        models.AssessmentStatusPending,
			Fee:           Fee,
			RequestedAt:   s.now().UTC(),
		}
		return tx.Create(&created).Error
	})
	if errTx != nil {
		if isTaxonomy(errTx) {
			return nil, errTx
		}
		return nil, fmt.Errorf("assessment: create: %w", errTx)
	}
	log.WithFields(log.Fields{
		"assessment_id": created.ID,
		"lender_id":     lenderID,
		"borrower_id":   borrowerID,
	}).Info("assessment: requested")
	return &created, nil
}

// Approve moves a pending assessment to processing.
func (s *Service) Approve(ctx context.Context, borrowerID, id uint64) (*models.AssessmentRequest, error) {
	return s.decide(ctx, borrowerID, id, models.AssessmentStatusProcessing)
}

// Decline moves a pending assessment to declined. The fee is not refunded.
func (s *Service) Decline(ctx context.Context, borrowerID, id uint64) (*models.AssessmentRequest, error) {
	return s.decide(ctx, borrowerID, id, models.AssessmentStatusDeclined)
}

func (s *Service) decide(ctx context.Context, borrowerID, id uint64, next models.AssessmentStatus) (*models.AssessmentRequest, error) {
	var out models.AssessmentRequest
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.First(&out, id).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return errMissing
			}
			return errFind
		}
		if out.BorrowerID != borrowerID {
			return errMissing
		}
		if out.Status != models.AssessmentStatusPending {
			return errAlready
		}
		now := s.now().UTC()
		updates := map[string]any{"status": next, "updated_at": now}
		if next == models.AssessmentStatusDeclined {
			updates["declined_at"] = now
		}
		res := tx.Model(&models.AssessmentRequest{}).
			Where("id = ? AND status = ?", id, models.AssessmentStatusPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errAlready
		}
		return tx.First(&out, id).Error
	})
	if errTx != nil {
		if isTaxonomy(errTx) {
			return nil, errTx
		}
		return nil, fmt.Errorf("assessment: %s: %w", next, errTx)
	}
	return &out, nil
}

// ProcessAs processes an assessment on behalf of one of its parties.
func (s *Service) ProcessAs(ctx context.Context, userID, id uint64) (*models.AssessmentRequest, analysis.Source, error) {
	row, errFind := s.find(ctx, id)
	if errFind != nil {
		return nil, "", errFind
	}
	if row.BorrowerID != userID && row.LenderID != userID {
		return nil, "", errMissing
	}
	return s.Process(ctx, id)
}

// Process scores a processing assessment and completes it. Analysis failures
// degrade to the fallback score, so the only errors are state and storage
// errors.
func (s *Service) Process(ctx context.Context, id uint64) (*models.AssessmentRequest, analysis.Source, error) {
	row, errFind := s.find(ctx, id)
	if errFind != nil {
		return nil, "", errFind
	}
	if row.Status != models.AssessmentStatusProcessing {
		return nil, "", errAlready
	}

	docs, errDocs := document.ForAssessment(ctx, s.db, row.BorrowerID)
	if errDocs != nil {
		return nil, "", errDocs
	}
	input := analysis.Input{
		Documents:    docs,
		LoanAmount:   settings.DefaultLoanAmount,
		LoanDuration: settings.DefaultLoanDuration,
		LoanPurpose:  settings.DefaultLoanPurpose,
	}
	if row.LoanRequestID != nil {
		var lr models.LoanRequest
		errLoan := s.db.WithContext(ctx).First(&lr, *row.LoanRequestID).Error
		switch {
		case errLoan == nil:
			input.LoanAmount = lr.Amount
			input.LoanDuration = lr.Duration
			input.LoanPurpose = lr.Purpose
		case !errors.Is(errLoan, gorm.ErrRecordNotFound):
			return nil, "", fmt.Errorf("assessment: load loan request: %w", errLoan)
		}
	}

	var outcome analysis.Outcome
	if s.analyzer != nil {
		outcome = s.analyzer.Analyze(ctx, input)
	} else {
		outcome = analysis.Outcome{Result: analysis.Fallback(docs), Source: analysis.SourceFallback}
	}
	result := analysis.Sanitize(outcome.Result)

	now := s.now().UTC()
	res := s.db.WithContext(ctx).Model(&models.AssessmentRequest{}).
		Where("id = ? AND status = ?", id, models.AssessmentStatusProcessing).
		Updates(map[string]any{
			"status":          models.AssessmentStatusCompleted,
			"trust_score":     result.TrustScore,
			"summary_bullets": datatypes.JSONSlice[string](result.SummaryBullets),
			"risk_factors":    datatypes.JSONSlice[string](result.RiskFactors),
			"recommendations": datatypes.JSONSlice[string](result.Recommendations),
			"completed_at":    now,
			"updated_at":      now,
		})
	if res.Error != nil {
		return nil, "", fmt.Errorf("assessment: complete: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, "", errAlready
	}

	completed, errReload := s.find(ctx, id)
	if errReload != nil {
		return nil, "", errReload
	}
	log.WithFields(log.Fields{
		"assessment_id": id,
		"trust_score":   result.TrustScore,
		"source":        outcome.Source,
		"documents":     len(docs),
	}).Info("assessment: completed")
	return completed, outcome.Source, nil
}

func (s *Service) find(ctx context.Context, id uint64) (*models.AssessmentRequest, error) {
	var row models.AssessmentRequest
	if errFind := s.db.WithContext(ctx).First(&row, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, errMissing
		}
		return nil, fmt.Errorf("assessment: find: %w", errFind)
	}
	return &row, nil
}

// ListForBorrower returns assessments of the borrower, newest first.
func (s *Service) ListForBorrower(ctx context.Context, borrowerID uint64) ([]BorrowerRow, error) {
	var rows []models.AssessmentRequest
	if errFind := s.db.WithContext(ctx).
		Where("borrower_id = ?", borrowerID).
		Order("requested_at DESC, id DESC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("assessment: list for borrower: %w", errFind)
	}
	ids := make([]uint64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.LenderID)
	}
	names, errNames := profile.DisplayNames(ctx, s.db, ids)
	if errNames != nil {
		return nil, errNames
	}
	out := make([]BorrowerRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, BorrowerRow{Assessment: row, LenderName: profile.NameOr(names, row.LenderID)})
	}
	return out, nil
}

// ListForLender returns assessments the lender requested, newest first, with
// the linked loan amount and duration.
func (s *Service) ListForLender(ctx context.Context, lenderID uint64) ([]LenderRow, error) {
	var rows []models.AssessmentRequest
	if errFind := s.db.WithContext(ctx).
		Where("lender_id = ?", lenderID).
		Order("requested_at DESC, id DESC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("assessment: list for lender: %w", errFind)
	}
	borrowerIDs := make([]uint64, 0, len(rows))
	loanIDs := make([]uint64, 0, len(rows))
	for _, row := range rows {
		borrowerIDs = append(borrowerIDs, row.BorrowerID)
		if row.LoanRequestID != nil {
			loanIDs = append(loanIDs, *row.LoanRequestID)
		}
	}
	names, errNames := profile.DisplayNames(ctx, s.db, borrowerIDs)
	if errNames != nil {
		return nil, errNames
	}
	loans := make(map[uint64]models.LoanRequest, len(loanIDs))
	if len(loanIDs) > 0 {
		var found []models.LoanRequest
		if errFind := s.db.WithContext(ctx).
			Select("id", "amount", "duration").
			Where("id IN ?", loanIDs).
			Find(&found).Error; errFind != nil {
			return nil, fmt.Errorf("assessment: list loan requests: %w", errFind)
		}
		for _, lr := range found {
			loans[lr.ID] = lr
		}
	}

	out := make([]LenderRow, 0, len(rows))
	for _, row := range rows {
		item := LenderRow{Assessment: row, BorrowerName: profile.NameOr(names, row.BorrowerID)}
		if row.LoanRequestID != nil {
			if lr, ok := loans[*row.LoanRequestID]; ok {
				amount, duration := lr.Amount, lr.Duration
				item.Amount = &amount
				item.Duration = &duration
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// staleProcessing returns ids of assessments stuck in processing since before
// cutoff.
func (s *Service) staleProcessing(ctx context.Context, cutoff time.Time) ([]uint64, error) {
	var ids []uint64
	if errFind := s.db.WithContext(ctx).Model(&models.AssessmentRequest{}).
		Where("status = ? AND updated_at <= ?", models.AssessmentStatusProcessing, cutoff).
		Order("updated_at ASC").
		Pluck("id", &ids).Error; errFind != nil {
		return nil, fmt.Errorf("assessment: stale processing: %w", errFind)
	}
	return ids, nil
}

func isTaxonomy(err error) bool {
	var appErr *apperr.Error
	return errors.As(err, &appErr)
}
