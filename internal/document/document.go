// Package document stores metadata for uploaded financial documents and keeps
// the per-user upload history.
package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/trustlend/trustlend/internal/analysis"
	"github.com/trustlend/trustlend/internal/apperr"
	"github.com/trustlend/trustlend/internal/models"
	"github.com/trustlend/trustlend/internal/settings"
	"github.com/trustlend/trustlend/internal/vision"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service manages documents.
type Service struct {
	db *gorm.DB
}

// NewService constructs a document Service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// UploadInput describes an analyzed document to record.
type UploadInput struct {
	LoanRequestID *uint64
	VaultRef      string
	Filename      string
	Category      string
	DocumentType  string
	KeyDetails    []string
	Summary       string
	Confidence    *float64
	RawOutput     string
}

// Upload records a document and appends an upload history line.
func (s *Service) Upload(ctx context.Context, userID uint64, in UploadInput) (*models.Document, error) {
	in.Filename = strings.TrimSpace(in.Filename)
	in.Category = strings.TrimSpace(in.Category)
	if in.Filename == "" {
		return nil, apperr.New(apperr.ErrInvalidInput, "filename is required")
	}
	if in.Category == "" {
		return nil, apperr.New(apperr.ErrInvalidInput, "category is required")
	}

	if in.Confidence != nil {
		clamped := vision.ClampConfidence(*in.Confidence)
		in.Confidence = &clamped
	}

	now := time.Now().UTC()
	doc := models.Document{
		UserID:        userID,
		LoanRequestID: in.LoanRequestID,
		VaultRef:      strings.TrimSpace(in.VaultRef),
		Filename:      in.Filename,
		Category:      in.Category,
		DocumentType:  strings.TrimSpace(in.DocumentType),
		KeyDetails:    datatypes.JSONSlice[string](in.KeyDetails),
		Summary:       in.Summary,
		Confidence:    in.Confidence,
		RawOutput:     in.RawOutput,
		UploadedAt:    now,
	}
	action := "Uploaded " + in.Filename
	if in.LoanRequestID != nil {
		action += " to loan request"
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.LoanRequestID != nil {
			if errOwn := requireLoanRequestOwner(tx, userID, *in.LoanRequestID); errOwn != nil {
				return errOwn
			}
		}
		if errCreate := tx.Create(&doc).Error; errCreate != nil {
			return errCreate
		}
		return tx.Create(&models.UploadHistory{UserID: userID, Action: action, Timestamp: now}).Error
	})
	if errTx != nil {
		if errors.Is(errTx, apperr.ErrNotFound) {
			return nil, errTx
		}
		return nil, fmt.Errorf("document: upload: %w", errTx)
	}
	return &doc, nil
}

// List returns the user's live documents, newest first, optionally narrowed
// to one loan request.
func (s *Service) List(ctx context.Context, userID uint64, loanRequestID *uint64) ([]models.Document, error) {
	q := s.db.WithContext(ctx).Where("user_id = ? AND is_deleted = ?", userID, false)
	if loanRequestID != nil {
		q = q.Where("loan_request_id = ?", *loanRequestID)
	}
	var rows []models.Document
	if errFind := q.Order("uploaded_at DESC, id DESC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("document: list: %w", errFind)
	}
	return rows, nil
}

// ListForLoanRequest returns live documents attached to a loan request the
// user owns.
func (s *Service) ListForLoanRequest(ctx context.Context, userID, loanRequestID uint64) ([]models.Document, error) {
	if errOwn := requireLoanRequestOwner(s.db.WithContext(ctx), userID, loanRequestID); errOwn != nil {
		return nil, errOwn
	}
	var rows []models.Document
	if errFind := s.db.WithContext(ctx).
		Where("loan_request_id = ? AND is_deleted = ?", loanRequestID, false).
		Order("uploaded_at DESC, id DESC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("document: list for loan request: %w", errFind)
	}
	return rows, nil
}

// Delete soft-deletes a document. The row is kept.
func (s *Service) Delete(ctx context.Context, userID, documentID uint64) error {
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc models.Document
		if errFind := tx.Where("id = ? AND user_id = ?", documentID, userID).First(&doc).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.ErrNotFound, "Document not found or access denied")
			}
			return errFind
		}
		if errUpdate := tx.Model(&models.Document{}).
			Where("id = ?", doc.ID).
			Update("is_deleted", true).Error; errUpdate != nil {
			return errUpdate
		}
		return tx.Create(&models.UploadHistory{
			UserID:    userID,
			Action:    "Deleted " + doc.Filename,
			Timestamp: time.Now().UTC(),
		}).Error
	})
	if errTx != nil {
		if errors.Is(errTx, apperr.ErrNotFound) {
			return errTx
		}
		return fmt.Errorf("document: delete: %w", errTx)
	}
	return nil
}

// History returns the most recent upload history lines.
func (s *Service) History(ctx context.Context, userID uint64) ([]models.UploadHistory, error) {
	var rows []models.UploadHistory
	if errFind := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC, id DESC").
		Limit(settings.UploadHistoryLimit).
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("document: history: %w", errFind)
	}
	return rows, nil
}

// ForAssessment maps a borrower's live documents to analysis input.
func (s *Service) ForAssessment(ctx context.Context, borrowerID uint64) ([]analysis.DocumentInput, error) {
	return ForAssessment(ctx, s.db, borrowerID)
}

// ForAssessment is the connection-level form used inside other services.
func ForAssessment(ctx context.Context, conn *gorm.DB, borrowerID uint64) ([]analysis.DocumentInput, error) {
	var rows []models.Document
	if errFind := conn.WithContext(ctx).
		Where("user_id = ? AND is_deleted = ?", borrowerID, false).
		Order("uploaded_at ASC, id ASC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("document: documents for assessment: %w", errFind)
	}
	out := make([]analysis.DocumentInput, 0, len(rows))
	for _, row := range rows {
		out = append(out, AnalysisInput(row))
	}
	return out, nil
}

// AnalysisInput converts a stored document, filling the defaults the
// analysis prompt expects.
func AnalysisInput(doc models.Document) analysis.DocumentInput {
	in := analysis.DocumentInput{
		Filename:     doc.Filename,
		Category:     doc.Category,
		DocumentType: doc.DocumentType,
		KeyDetails:   []string(doc.KeyDetails),
		Summary:      doc.Summary,
		RawOutput:    doc.RawOutput,
	}
	if strings.TrimSpace(in.DocumentType) == "" {
		in.DocumentType = doc.Category
	}
	if in.KeyDetails == nil {
		in.KeyDetails = []string{}
	}
	if strings.TrimSpace(in.Summary) == "" {
		in.Summary = doc.Category + " document"
	}
	if strings.TrimSpace(in.RawOutput) == "" {
		in.RawOutput = "{}"
	}
	return in
}

func requireLoanRequestOwner(conn *gorm.DB, userID, loanRequestID uint64) error {
	var count int64
	if errCount := conn.Model(&models.LoanRequest{}).
		Where("id = ? AND user_id = ?", loanRequestID, userID).
		Count(&count).Error; errCount != nil {
		return fmt.Errorf("document: check loan request: %w", errCount)
	}
	if count == 0 {
		return apperr.New(apperr.ErrNotFound, "Loan request not found or access denied")
	}
	return nil
}
