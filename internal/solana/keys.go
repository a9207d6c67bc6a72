package solana

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Well-known program addresses.
const (
	SystemProgramID          = "11111111111111111111111111111111"
	TokenProgramID           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID       = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	AssociatedTokenProgramID = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
)

// ErrInvalidAddress is returned for strings that are not a base58 32-byte key.
var ErrInvalidAddress = errors.New("invalid address")

// PublicKey is a 32-byte account address.
type PublicKey [32]byte

// String returns the base58 encoding.
func (p PublicKey) String() string {
	return base58.Encode(p[:])
}

// IsZero reports whether all bytes are zero.
func (p PublicKey) IsZero() bool {
	return p == PublicKey{}
}

// ParsePublicKey decodes a base58 address.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := base58.Decode(strings.TrimSpace(s))
	if err != nil {
		return pk, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != 32 {
		return pk, fmt.Errorf("%w: decoded length %d", ErrInvalidAddress, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// MustPublicKey parses a constant address and panics on failure.
func MustPublicKey(s string) PublicKey {
	pk, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// ValidateAddress checks that s decodes to a 32-byte key.
// Program-derived addresses are valid even though they are off the curve.
func ValidateAddress(s string) error {
	_, err := ParsePublicKey(s)
	return err
}

// ValidateWalletAddress checks that s is a 32-byte key on the ed25519 curve,
// i.e. an address that a keypair can sign for.
func ValidateWalletAddress(s string) error {
	pk, err := ParsePublicKey(s)
	if err != nil {
		return err
	}
	if !IsOnCurve(pk[:]) {
		return fmt.Errorf("%w: not on ed25519 curve", ErrInvalidAddress)
	}
	return nil
}

// IsOnCurve reports whether b is a valid compressed ed25519 point.
func IsOnCurve(b []byte) bool {
	if len(b) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// CreateProgramAddress hashes seeds with the program id.
// Returns an error if the result lands on the curve.
func CreateProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, error) {
	var pk PublicKey
	if len(seeds) > 16 {
		return pk, errors.New("too many seeds")
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > 32 {
			return pk, errors.New("seed longer than 32 bytes")
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte("ProgramDerivedAddress"))
	copy(pk[:], h.Sum(nil))

	if IsOnCurve(pk[:]) {
		return PublicKey{}, errors.New("derived address is on curve")
	}
	return pk, nil
}

// FindProgramAddress searches bump seeds from 255 down to 0 for the first off-curve address.
func FindProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		withBump := append(append([][]byte{}, seeds...), []byte{byte(bump)})
		pk, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return pk, uint8(bump), nil
		}
	}
	return PublicKey{}, 0, errors.New("no viable bump seed")
}

// AssociatedTokenAddress derives the associated token account of owner for mint.
func AssociatedTokenAddress(owner, mint, tokenProgram PublicKey) (PublicKey, error) {
	pk, _, err := FindProgramAddress(
		[][]byte{owner[:], tokenProgram[:], mint[:]},
		MustPublicKey(AssociatedTokenProgramID),
	)
	return pk, err
}

// Keypair is an ed25519 signing key.
type Keypair struct {
	priv ed25519.PrivateKey
}

// NewKeypair generates a random keypair.
func NewKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// KeypairFromSecret accepts a 64-byte secret key (seed || public key) or a 32-byte seed.
func KeypairFromSecret(secret []byte) (*Keypair, error) {
	switch len(secret) {
	case ed25519.SeedSize:
		return &Keypair{priv: ed25519.NewKeyFromSeed(secret)}, nil
	case ed25519.PrivateKeySize:
		priv := ed25519.NewKeyFromSeed(secret[:ed25519.SeedSize])
		if !priv.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(secret[ed25519.SeedSize:])) {
			return nil, errors.New("secret key does not match embedded public key")
		}
		return &Keypair{priv: priv}, nil
	default:
		return nil, fmt.Errorf("secret key must be 32 or 64 bytes, got %d", len(secret))
	}
}

// ParseKeypair decodes a secret key in base58 or as a JSON byte array
// (the format written by solana-keygen).
func ParseKeypair(s string) (*Keypair, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var raw []byte
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return nil, fmt.Errorf("decode secret array: %w", err)
		}
		for _, v := range ints {
			if v < 0 || v > 255 {
				return nil, errors.New("secret array value out of range")
			}
			raw = append(raw, byte(v))
		}
		return KeypairFromSecret(raw)
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}
	return KeypairFromSecret(raw)
}

// PublicKey returns the public half.
func (k *Keypair) PublicKey() PublicKey {
	var pk PublicKey
	copy(pk[:], k.priv[ed25519.SeedSize:])
	return pk
}

// Address returns the base58 public key.
func (k *Keypair) Address() string {
	return k.PublicKey().String()
}

// Secret returns a copy of the 64-byte secret key.
func (k *Keypair) Secret() []byte {
	out := make([]byte, len(k.priv))
	copy(out, k.priv)
	return out
}

// SecretBase58 returns the 64-byte secret key in base58.
func (k *Keypair) SecretBase58() string {
	return base58.Encode(k.priv)
}

// Sign signs msg.
func (k *Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

// Bytes returns a copy of the key bytes.
func (p PublicKey) Bytes() []byte {
	return append([]byte(nil), p[:]...)
}
