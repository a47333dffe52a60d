// Package pgp owns the bot's long-lived OpenPGP identity and the
// decryption of armored blocks embedded in chat text.
package pgp

import (
	"bytes"
	"crypto"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

// ErrDecrypt wraps every decryption failure (wrong key, corrupt
// message, bad passphrase) surfaced by Decrypt.
var ErrDecrypt = errors.New("pgp decrypt failed")

// KeyStore persists one primary key (sign/auth) with an encrypt-only
// subkey to a single armored file. The identity is generated on first
// use; later loads repair a missing encryption subkey in place.
type KeyStore struct {
	path       string
	passphrase []byte
	name       string
	comment    string
	email      string
	logger     *slog.Logger

	mu        sync.Mutex
	entity    *openpgp.Entity
	unlocked  bool
	publicKey string
}

// NewKeyStore creates a key store over the armored identity file at
// path. Ensure must be called before any other method.
func NewKeyStore(log *slog.Logger, path, passphrase, name, comment, email string) *KeyStore {
	if log == nil {
		log = slog.Default()
	}
	return &KeyStore{
		path:       path,
		passphrase: []byte(passphrase),
		name:       name,
		comment:    comment,
		email:      email,
		logger:     log.With(slog.String("service", "pgp")),
	}
}

func generationConfig() *packet.Config {
	return &packet.Config{
		Algorithm:              packet.PubKeyAlgoEdDSA,
		Curve:                  packet.Curve25519,
		DefaultHash:            crypto.SHA256,
		DefaultCipher:          packet.CipherAES256,
		DefaultCompressionAlgo: packet.CompressionZLIB,
	}
}

// Ensure loads the identity, generating it when the file does not
// exist. Loaded identities are repaired: a missing user id or a
// missing usable encryption subkey is added and the file rewritten.
func (k *KeyStore) Ensure() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.entity != nil {
		return nil
	}

	info, err := os.Stat(k.path)
	switch {
	case os.IsNotExist(err):
		return k.generate()
	case err != nil:
		return fmt.Errorf("stat identity file: %w", err)
	case !info.Mode().IsRegular():
		return fmt.Errorf("identity path %s is not a regular file", k.path)
	}
	return k.load()
}

func (k *KeyStore) generate() error {
	entity, err := openpgp.NewEntity(k.name, k.comment, k.email, generationConfig())
	if err != nil {
		return fmt.Errorf("generate identity: %w", err)
	}
	k.entity = entity
	k.unlocked = true
	if err := k.persist(); err != nil {
		return err
	}
	k.logger.Info("generated identity", slog.String("path", k.path))
	return nil
}

func (k *KeyStore) load() error {
	f, err := os.Open(k.path)
	if err != nil {
		return fmt.Errorf("open identity file: %w", err)
	}
	defer f.Close()

	entities, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		return fmt.Errorf("parse identity file %s: %w", k.path, err)
	}
	if len(entities) == 0 || entities[0].PrivateKey == nil {
		return fmt.Errorf("identity file %s holds no private key", k.path)
	}
	k.entity = entities[0]

	dirty := false
	if len(k.entity.Identities) == 0 {
		if err := k.unlock(); err != nil {
			return err
		}
		if err := k.entity.AddUserId(k.name, k.comment, k.email, generationConfig()); err != nil {
			return fmt.Errorf("add user id: %w", err)
		}
		dirty = true
	}
	if !k.hasEncryptionSubkey() {
		if err := k.unlock(); err != nil {
			return err
		}
		if err := k.entity.AddEncryptionSubkey(generationConfig()); err != nil {
			return fmt.Errorf("add encryption subkey: %w", err)
		}
		k.logger.Warn("identity had no usable encryption subkey, generated one")
		dirty = true
	}
	if dirty {
		return k.persist()
	}
	return nil
}

// hasEncryptionSubkey reports whether any subkey can encrypt and
// carries private material (public-only subkeys do not count).
func (k *KeyStore) hasEncryptionSubkey() bool {
	for _, sk := range k.entity.Subkeys {
		if sk.PublicKey.PubKeyAlgo.CanEncrypt() && sk.PrivateKey != nil {
			return true
		}
	}
	return false
}

// unlock decrypts the private keys in memory with the configured
// passphrase. The on-disk copy stays protected. Caller holds k.mu.
func (k *KeyStore) unlock() error {
	if k.unlocked {
		return nil
	}
	if k.entity.PrivateKey.Encrypted {
		if err := k.entity.PrivateKey.Decrypt(k.passphrase); err != nil {
			return fmt.Errorf("%w: unlock primary key: %v", ErrDecrypt, err)
		}
	}
	for i := range k.entity.Subkeys {
		sk := &k.entity.Subkeys[i]
		if sk.PrivateKey != nil && sk.PrivateKey.Encrypted {
			if err := sk.PrivateKey.Decrypt(k.passphrase); err != nil {
				return fmt.Errorf("%w: unlock subkey: %v", ErrDecrypt, err)
			}
		}
	}
	k.unlocked = true
	return nil
}

// persist protects the private material with the passphrase and
// rewrites the identity file wholesale. Caller holds k.mu.
func (k *KeyStore) persist() error {
	if len(k.passphrase) > 0 {
		if !k.entity.PrivateKey.Encrypted {
			if err := k.entity.PrivateKey.Encrypt(k.passphrase); err != nil {
				return fmt.Errorf("protect primary key: %w", err)
			}
		}
		for i := range k.entity.Subkeys {
			sk := &k.entity.Subkeys[i]
			if sk.PrivateKey != nil && !sk.PrivateKey.Encrypted {
				if err := sk.PrivateKey.Encrypt(k.passphrase); err != nil {
					return fmt.Errorf("protect subkey: %w", err)
				}
			}
		}
		k.unlocked = false
	}

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
	if err != nil {
		return fmt.Errorf("armor identity: %w", err)
	}
	if err := k.entity.SerializePrivateWithoutSigning(w, nil); err != nil {
		return fmt.Errorf("serialize identity: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("armor identity: %w", err)
	}
	buf.WriteString("\n")

	if dir := filepath.Dir(k.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create key dir: %w", err)
		}
	}
	if err := os.WriteFile(k.path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write identity file: %w", err)
	}
	return nil
}

// Decrypt unlocks the encryption subkey and decrypts a single armored
// PGP message, returning the plaintext. Failures are reported as
// ErrDecrypt without any fallback.
func (k *KeyStore) Decrypt(ciphertext string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.entity == nil {
		return "", fmt.Errorf("%w: identity not initialized", ErrDecrypt)
	}
	if err := k.unlock(); err != nil {
		return "", err
	}

	block, err := armor.Decode(strings.NewReader(ciphertext))
	if err != nil {
		return "", fmt.Errorf("%w: malformed armor: %v", ErrDecrypt, err)
	}
	md, err := openpgp.ReadMessage(block.Body, openpgp.EntityList{k.entity}, nil, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	plain, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return "", fmt.Errorf("%w: read plaintext: %v", ErrDecrypt, err)
	}
	return string(plain), nil
}

// PublicKey returns the armored primary public key (subkey embedded),
// computed once and cached.
func (k *KeyStore) PublicKey() (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.entity == nil {
		return "", errors.New("identity not initialized")
	}
	if k.publicKey != "" {
		return k.publicKey, nil
	}

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return "", fmt.Errorf("armor public key: %w", err)
	}
	if err := k.entity.Serialize(w); err != nil {
		return "", fmt.Errorf("serialize public key: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("armor public key: %w", err)
	}
	k.publicKey = buf.String()
	return k.publicKey, nil
}
