package pgp

import (
	"errors"
	"fmt"
	"log/slog"
)

// maxSubstitutions bounds one DecryptAll pass. Plaintext should never
// re-match the armor grammar, but a bound keeps a pathological input
// from looping forever.
const maxSubstitutions = 16

// ErrTooManyBlocks is returned when a single text exceeds the
// substitution bound.
var ErrTooManyBlocks = errors.New("too many armored blocks in one text")

// Gateway detects armored ciphertext blocks inside arbitrary text and
// replaces them with their plaintext.
type Gateway struct {
	keys   *KeyStore
	logger *slog.Logger
}

func NewGateway(log *slog.Logger, keys *KeyStore) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		keys:   keys,
		logger: log.With(slog.String("service", "pgp")),
	}
}

// DecryptAll substitutes every armored block in text with its
// decrypted plaintext, preserving the surrounding text. The first
// decryption failure aborts the call; later blocks are left untouched
// and no partial result is returned.
func (g *Gateway) DecryptAll(text string) (string, error) {
	for i := 0; i < maxSubstitutions; i++ {
		match, ok := FindArmorBlock(text)
		if !ok {
			return text, nil
		}
		plain, err := g.keys.Decrypt(match.Block)
		if err != nil {
			return "", fmt.Errorf("decrypt armored block: %w", err)
		}
		text = text[:match.Start] + plain + text[match.End:]
	}
	return "", ErrTooManyBlocks
}

// PublicKey exposes the armored primary public key for client-side
// encryption.
func (g *Gateway) PublicKey() (string, error) {
	return g.keys.PublicKey()
}
