package loanrequest

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/trustlend/trustlend/internal/settings"
)

const shortIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewShortID returns a random lowercase alphanumeric handle.
func NewShortID() (string, error) {
	max := big.NewInt(int64(len(shortIDAlphabet)))
	buf := make([]byte, settings.ShortIDLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("loanrequest: short id: %w", err)
		}
		buf[i] = shortIDAlphabet[n.Int64()]
	}
	return string(buf), nil
}
