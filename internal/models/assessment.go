package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// AssessmentStatus is the state of an assessment request.
type AssessmentStatus string

// AssessmentStatus constants define the assessment state machine.
const (
	// AssessmentStatusPending awaits the borrower's decision.
	AssessmentStatusPending AssessmentStatus = "pending"
	// AssessmentStatusProcessing was approved and awaits scoring.
	AssessmentStatusProcessing AssessmentStatus = "processing"
	// AssessmentStatusCompleted holds a trust score.
	AssessmentStatusCompleted AssessmentStatus = "completed"
	// AssessmentStatusDeclined was refused by the borrower.
	AssessmentStatusDeclined AssessmentStatus = "declined"
)

// AssessmentRequest is a lender-initiated, borrower-consented scoring request.
type AssessmentRequest struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	LenderID      uint64  `gorm:"not null;index"` // Requesting lender.
	BorrowerID    uint64  `gorm:"not null;index"` // Assessed borrower.
	LoanRequestID *uint64 `gorm:"index"`          // Optional loan request context.

	Status AssessmentStatus `gorm:"type:varchar(16);not null;default:'pending';index"` // State machine position.
	Fee    decimal.Decimal  `gorm:"type:decimal(20,4);not null"`                        // Credits charged at creation.

	TrustScore      *int                        // Score in [0,100] once completed.
	SummaryBullets  datatypes.JSONSlice[string] // At most five bullets.
	RiskFactors     datatypes.JSONSlice[string] // At most three risk factors.
	Recommendations datatypes.JSONSlice[string] // At most two recommendations.

	RequestedAt time.Time  `gorm:"not null;index"` // Creation time.
	CompletedAt *time.Time // Completion time.
	DeclinedAt  *time.Time // Decline time.
	UpdatedAt   time.Time  `gorm:"not null;autoUpdateTime"` // Last transition time.
}
