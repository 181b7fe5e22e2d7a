package vault

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"
	"github.com/trustlend/trustlend/internal/apperr"
	"github.com/trustlend/trustlend/internal/models"
	"gorm.io/gorm"
)

// DIDPrefix prefixes the compressed public key to form a user DID.
const DIDPrefix = "did:nil:"

// GenerateKeypair creates a secp256k1 keypair for userID. The row is not
// persisted.
func GenerateKeypair(userID uint64) (*models.Keypair, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("vault: generate key: %w", err)
	}
	pub := hex.EncodeToString(crypto.CompressPubkey(&priv.PublicKey))
	return &models.Keypair{
		UserID:     userID,
		PublicKey:  pub,
		PrivateKey: hex.EncodeToString(crypto.FromECDSA(priv)),
		DID:        DIDPrefix + pub,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// GetKeypair returns the keypair of a user.
func (s *Service) GetKeypair(ctx context.Context, userID uint64) (*models.Keypair, error) {
	var kp models.Keypair
	if errFind := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&kp).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.ErrNotFound, "Keypair not found. Generate keypair first.")
		}
		return nil, fmt.Errorf("vault: get keypair: %w", errFind)
	}
	return &kp, nil
}

// GetOrCreateKeypair returns the existing keypair or creates one. created
// reports whether a new keypair was generated.
func (s *Service) GetOrCreateKeypair(ctx context.Context, userID uint64) (*models.Keypair, bool, error) {
	existing, errGet := s.GetKeypair(ctx, userID)
	if errGet == nil {
		return existing, false, nil
	}
	if !errors.Is(errGet, apperr.ErrNotFound) {
		return nil, false, errGet
	}

	kp, errGen := GenerateKeypair(userID)
	if errGen != nil {
		return nil, false, errGen
	}
	if errCreate := s.db.WithContext(ctx).Create(kp).Error; errCreate != nil {
		// Lost a race with a concurrent request for the same user.
		if winner, errWinner := s.GetKeypair(ctx, userID); errWinner == nil {
			return winner, false, nil
		}
		return nil, false, fmt.Errorf("vault: store keypair: %w", errCreate)
	}
	log.WithFields(log.Fields{"user_id": userID, "did": kp.DID}).Info("vault: keypair generated")
	return kp, true, nil
}
