package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProfileRole describes which side of the marketplace a user acts on.
type ProfileRole string

// ProfileRole constants define the supported roles.
const (
	// ProfileRoleBorrower can publish loan requests.
	ProfileRoleBorrower ProfileRole = "borrower"
	// ProfileRoleLender can fund requests and buy assessments.
	ProfileRoleLender ProfileRole = "lender"
	// ProfileRoleBoth is assigned at provisioning.
	ProfileRoleBoth ProfileRole = "both"
)

// Valid reports whether the role is one of the known roles.
func (r ProfileRole) Valid() bool {
	switch r {
	case ProfileRoleBorrower, ProfileRoleLender, ProfileRoleBoth:
		return true
	default:
		return false
	}
}

// User represents an identity-provider subject known to the service.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Subject string `gorm:"type:varchar(255);not null;uniqueIndex"` // Identity provider subject id.
	Email   string `gorm:"type:varchar(255);index"`                // Email address from the identity token.

	Profile *Profile `gorm:"foreignKey:UserID"` // Owned profile.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// Profile holds marketplace settings and the credit balance of a user.
type Profile struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex"` // Owning user ID.

	DisplayName      string          `gorm:"type:varchar(255);not null"`               // Public display name.
	AvatarURL        string          `gorm:"type:text"`                                // Optional avatar URL.
	Role             ProfileRole     `gorm:"type:varchar(16);not null;default:'both'"` // Marketplace role.
	AllowAssessments bool            `gorm:"not null;default:true"`                    // Whether lenders may request assessments.
	Credits          decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0"`    // Credit balance.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// IsBorrower reports whether the profile may act as a borrower.
func (p Profile) IsBorrower() bool {
	return p.Role == ProfileRoleBorrower || p.Role == ProfileRoleBoth
}

// IsLender reports whether the profile may act as a lender.
func (p Profile) IsLender() bool {
	return p.Role == ProfileRoleLender || p.Role == ProfileRoleBoth
}
