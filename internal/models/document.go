package models

import (
	"time"

	"gorm.io/datatypes"
)

// Document is metadata for an uploaded financial document.
type Document struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID        uint64  `gorm:"not null;index"` // Owning user ID.
	LoanRequestID *uint64 `gorm:"index"`          // Optional linked loan request.

	VaultRef string `gorm:"type:text"`                  // Vault key of the sealed payload.
	Filename string `gorm:"type:text;not null"`         // Original filename.
	Category string `gorm:"type:varchar(64);not null"` // Document category.

	DocumentType string                      `gorm:"type:varchar(255)"` // Extracted document type.
	KeyDetails   datatypes.JSONSlice[string] // Extracted detail lines.
	Summary      string                      `gorm:"type:text"` // Extracted summary.
	Confidence   *float64                    // Extraction confidence in [0,1].
	RawOutput    string                      `gorm:"type:text"` // Verbatim model output.

	IsDeleted  bool      `gorm:"not null;default:false;index"` // Soft delete flag.
	UploadedAt time.Time `gorm:"not null"`                     // Upload timestamp.
}

// UploadHistory is an audit line of document actions.
type UploadHistory struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID    uint64    `gorm:"not null;index"`     // Acting user ID.
	Action    string    `gorm:"type:text;not null"` // Human readable action.
	Timestamp time.Time `gorm:"not null;index"`     // Action time.
}
