package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const sealInfoPrefix = "trustlend-vault:"

// ErrSealedPayload is returned when a payload cannot be opened.
var ErrSealedPayload = errors.New("vault: sealed payload is corrupt or was sealed with another key")

// deriveKey expands secret into a per-document XChaCha20-Poly1305 key.
func deriveKey(secret []byte, documentID string) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	reader := hkdf.New(sha256.New, secret, nil, []byte(sealInfoPrefix+documentID))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("vault: derive key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext for documentID. The output is nonce || ciphertext.
func Seal(secret []byte, documentID string, plaintext []byte) ([]byte, error) {
	key, err := deriveKey(secret, documentID)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("vault: cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("vault: nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, []byte(documentID)), nil
}

// Open reverses Seal.
func Open(secret []byte, documentID string, sealed []byte) ([]byte, error) {
	key, err := deriveKey(secret, documentID)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("vault: cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrSealedPayload
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(documentID))
	if err != nil {
		return nil, ErrSealedPayload
	}
	return plaintext, nil
}
