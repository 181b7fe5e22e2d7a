package models

import "time"

// LoanRequestStatus is the lifecycle state of a loan request.
type LoanRequestStatus string

// LoanRequestStatus constants define the loan request lifecycle.
const (
	LoanRequestStatusDraft     LoanRequestStatus = "draft"
	LoanRequestStatusActive    LoanRequestStatus = "active"
	LoanRequestStatusPaused    LoanRequestStatus = "paused"
	LoanRequestStatusCompleted LoanRequestStatus = "completed"
	LoanRequestStatusCancelled LoanRequestStatus = "cancelled"
	LoanRequestStatusFunded    LoanRequestStatus = "funded"
)

// Valid reports whether the status is a known lifecycle state.
func (s LoanRequestStatus) Valid() bool {
	switch s {
	case LoanRequestStatusDraft, LoanRequestStatusActive, LoanRequestStatusPaused,
		LoanRequestStatusCompleted, LoanRequestStatusCancelled, LoanRequestStatusFunded:
		return true
	default:
		return false
	}
}

// LoanRequest is a borrower-authored funding request.
type LoanRequest struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID  uint64 `gorm:"not null;index"`                       // Borrower user ID.
	ShortID string `gorm:"type:varchar(16);not null;uniqueIndex"` // Public 8 character handle.

	Amount           float64 `gorm:"type:decimal(20,2);not null"` // Requested amount in USD.
	Duration         int     `gorm:"not null"`                    // Duration in months.
	Purpose          string  `gorm:"type:text;not null"`          // Purpose of the loan.
	Note             string  `gorm:"type:text"`                   // Optional borrower note.
	AllowAssessments bool    `gorm:"not null"`                    // Consent to assessments for this request.

	Status      LoanRequestStatus `gorm:"type:varchar(16);not null;default:'draft';index"` // Lifecycle state.
	IsPublished bool              `gorm:"not null;default:false;index"`                    // Visible to lenders when active.

	PayoutWalletID *uint64 `gorm:"index"`                     // Optional payout wallet.
	PayoutWallet   *Wallet `gorm:"foreignKey:PayoutWalletID"` // Payout wallet record.

	BlockchainTxHash string `gorm:"type:varchar(80)"`       // Publish transaction hash.
	IsOnChain        bool   `gorm:"not null;default:false"` // Whether the proposal is on chain.
	IsFunded         bool   `gorm:"not null;default:false"` // Whether a lender funded it.
	FundedBy         string `gorm:"type:varchar(64)"`       // Funding wallet address.
	FundingTxHash    string `gorm:"type:varchar(80)"`       // Funding transaction hash.

	CreatedAt time.Time  `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt *time.Time // Last owner update.
}

// Listed reports whether lenders can see the request.
func (l LoanRequest) Listed() bool {
	return l.Status == LoanRequestStatusActive && l.IsPublished
}
