package models

import "time"

// Keypair is the per-user vault identity.
type Keypair struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID     uint64 `gorm:"not null;uniqueIndex"`      // Owning user ID.
	PublicKey  string `gorm:"type:varchar(130);not null"` // Compressed secp256k1 public key, hex.
	PrivateKey string `gorm:"type:varchar(128);not null"` // Private key, hex.
	DID        string `gorm:"type:varchar(160);not null"` // did:nil identifier.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
