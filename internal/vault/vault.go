// Package vault encrypts custodial wallet secrets at rest.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var (
	// ErrInvalidMasterKey is returned for master keys shorter than 32 bytes.
	ErrInvalidMasterKey = errors.New("vault master key must be at least 32 bytes")
	// ErrDecrypt is returned when a ciphertext fails authentication.
	ErrDecrypt = errors.New("vault: decryption failed")
)

var hkdfSalt = []byte("aqua-launchpad-wallet-vault")

// Vault seals secrets with AES-256-GCM under a per-wallet key derived from
// the master key by HKDF-SHA256 with the wallet id as info. The wallet id is
// also bound as additional data, so a ciphertext cannot be moved between wallets.
type Vault struct {
	masterKey []byte
}

// New creates a vault from a raw master key.
func New(masterKey []byte) (*Vault, error) {
	if len(masterKey) < 32 {
		return nil, ErrInvalidMasterKey
	}
	return &Vault{masterKey: append([]byte(nil), masterKey...)}, nil
}

// NewFromBase64 creates a vault from a base64 master key.
func NewFromBase64(encoded string) (*Vault, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	return New(key)
}

// Encrypt seals plaintext for walletID. Output is base64(nonce || sealed).
func (v *Vault) Encrypt(walletID string, plaintext []byte) (string, error) {
	aead, err := v.aead(walletID)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, []byte(walletID))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt for the same walletID.
func (v *Vault) Decrypt(walletID, ciphertext string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	aead, err := v.aead(walletID)
	if err != nil {
		return nil, err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, []byte(walletID))
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

func (v *Vault) aead(walletID string) (cipher.AEAD, error) {
	if walletID == "" {
		return nil, errors.New("vault: wallet id is required")
	}

	reader := hkdf.New(sha256.New, v.masterKey, hkdfSalt, []byte("wallet:"+walletID))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
