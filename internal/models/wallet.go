package models

import "time"

// Wallet is an EVM address connected by a user.
type Wallet struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index;uniqueIndex:idx_wallets_user_address"` // Owning user ID.

	Address   string `gorm:"type:varchar(64);not null;index;uniqueIndex:idx_wallets_user_address"` // Checksummed address.
	Nickname  string `gorm:"type:varchar(255)"`                                                      // User supplied label.
	IsPrimary bool   `gorm:"not null;default:false"`                                                 // Primary wallet flag.

	HumanityScore      *float64   // Last humanity score, if fetched.
	LastScoreUpdate    *time.Time // When the humanity score was fetched.
	IsHumanityVerified *bool      // Whether the last score was passing.

	ConnectedAt time.Time `gorm:"not null"` // When the wallet was connected.
}
