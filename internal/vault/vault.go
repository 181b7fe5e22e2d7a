// Package vault seals document payloads per user and keeps them in an object
// store. Each user owns a secp256k1 keypair whose private key seeds the
// sealing keys.
package vault

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/trustlend/trustlend/internal/apperr"
	"github.com/trustlend/trustlend/internal/config"
	"github.com/trustlend/trustlend/internal/models"
	"gorm.io/gorm"
)

// Service stores and retrieves sealed documents.
type Service struct {
	db     *gorm.DB
	store  Store
	prefix string
}

// NewService constructs a vault Service. A nil store keeps payloads in memory.
func NewService(db *gorm.DB, store Store, prefix string) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = config.DefaultVaultPrefix
	}
	return &Service{db: db, store: store, prefix: prefix}
}

// Envelope is the plaintext kept in the vault for one document.
type Envelope struct {
	DocumentID  string    `json:"documentId"`
	RawOutput   string    `json:"rawOutput"`
	Base64Image string    `json:"base64Image,omitempty"`
	StoredAt    time.Time `json:"storedAt"`
}

// StoreResult identifies a stored payload.
type StoreResult struct {
	DocumentID string `json:"documentId"`
	Key        string `json:"key"`
}

// StoreDocument seals a document for userID and writes it to the store. An
// empty documentID is replaced by a random UUID.
func (s *Service) StoreDocument(ctx context.Context, userID uint64, documentID, rawOutput, base64Image string) (*StoreResult, error) {
	kp, errKey := s.GetKeypair(ctx, userID)
	if errKey != nil {
		return nil, errKey
	}
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		documentID = uuid.NewString()
	}
	if errID := validateDocumentID(documentID); errID != nil {
		return nil, errID
	}
	secret, errSecret := secretOf(kp)
	if errSecret != nil {
		return nil, errSecret
	}

	plaintext, errMarshal := json.Marshal(Envelope{
		DocumentID:  documentID,
		RawOutput:   rawOutput,
		Base64Image: base64Image,
		StoredAt:    time.Now().UTC(),
	})
	if errMarshal != nil {
		return nil, fmt.Errorf("vault: encode envelope: %w", errMarshal)
	}
	sealed, errSeal := Seal(secret, documentID, plaintext)
	if errSeal != nil {
		return nil, errSeal
	}
	key := s.objectKey(kp, documentID)
	if errPut := s.store.Put(ctx, key, sealed); errPut != nil {
		return nil, errPut
	}
	return &StoreResult{DocumentID: documentID, Key: key}, nil
}

// RetrieveDocument reads and opens a document stored by StoreDocument.
func (s *Service) RetrieveDocument(ctx context.Context, userID uint64, documentID string) (*Envelope, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, apperr.New(apperr.ErrInvalidInput, "documentId is required")
	}
	if errID := validateDocumentID(documentID); errID != nil {
		return nil, errID
	}
	kp, errKey := s.GetKeypair(ctx, userID)
	if errKey != nil {
		return nil, errKey
	}
	secret, errSecret := secretOf(kp)
	if errSecret != nil {
		return nil, errSecret
	}
	sealed, errGet := s.store.Get(ctx, s.objectKey(kp, documentID))
	if errGet != nil {
		if errors.Is(errGet, ErrObjectNotFound) {
			return nil, apperr.New(apperr.ErrNotFound, "Document not found in vault")
		}
		return nil, errGet
	}
	plaintext, errOpen := Open(secret, documentID, sealed)
	if errOpen != nil {
		return nil, errOpen
	}
	var env Envelope
	if errUnmarshal := json.Unmarshal(plaintext, &env); errUnmarshal != nil {
		return nil, fmt.Errorf("vault: decode envelope: %w", errUnmarshal)
	}
	return &env, nil
}

// documentIDPattern keeps ids to a single path segment under the owner's DID.
var documentIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

func validateDocumentID(documentID string) error {
	if !documentIDPattern.MatchString(documentID) || strings.Contains(documentID, "..") {
		return apperr.New(apperr.ErrInvalidInput, "Invalid documentId")
	}
	return nil
}

func (s *Service) objectKey(kp *models.Keypair, documentID string) string {
	return path.Join(s.prefix, kp.DID, documentID)
}

func secretOf(kp *models.Keypair) ([]byte, error) {
	secret, err := hex.DecodeString(kp.PrivateKey)
	if err != nil || len(secret) == 0 {
		return nil, fmt.Errorf("vault: invalid stored private key")
	}
	return secret, nil
}
