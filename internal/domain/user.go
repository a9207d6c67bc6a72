package domain

// User is a wallet-linked identity.
// Corresponds to users table in PostgreSQL.
type User struct {
	ID            string  // auth subject (uuid)
	WalletAddress *string // primary wallet public key (nullable until a wallet exists)
	ReferralCode  string  // own code, unique
	ReferredBy    *string // referrer user id (nullable)
	CreatedAt     int64   // record creation timestamp (ms)
}
