package domain

// Referral holds a user's referral code and accrued commission.
// Amounts are lamports.
type Referral struct {
	UserID        string
	Code          string
	ReferredCount int
	Pending       uint64 // claimable balance
	TotalEarned   uint64
	TotalClaimed  uint64
	LastClaimAt   *int64 // ms, nullable
	UpdatedAt     int64  // ms
}

// ClaimStatus is the lifecycle state of a payout attempt.
type ClaimStatus string

const (
	ClaimPending   ClaimStatus = "pending"   // recorded, balance not yet reserved
	ClaimSubmitted ClaimStatus = "submitted" // transfer sent, awaiting confirmation
	ClaimCompleted ClaimStatus = "completed"
	ClaimFailed    ClaimStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s ClaimStatus) IsTerminal() bool {
	return s == ClaimCompleted || s == ClaimFailed
}

// ReferralClaim records a payout attempt.
type ReferralClaim struct {
	ID          string
	UserID      string
	Amount      uint64 // lamports
	Destination string
	Status      ClaimStatus
	Signature   *string
	Error       *string // failure log
	CreatedAt   int64   // ms
	UpdatedAt   int64   // ms
}
