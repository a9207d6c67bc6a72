package domain

// Wallet is a custodial keypair owned by a user.
// The secret key is only ever stored encrypted.
type Wallet struct {
	ID              string // uuid
	UserID          string // owner
	PublicKey       string // base58 address
	EncryptedSecret string // base64(nonce || ciphertext) of the 64-byte secret key
	Label           string
	IsPrimary       bool
	Imported        bool  // true when the secret was supplied by the user
	CreatedAt       int64 // ms
}
