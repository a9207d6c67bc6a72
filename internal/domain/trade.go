package domain

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// IsValid checks if the side is buy or sell.
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// Trade is an executed buy or sell.
type Trade struct {
	ID          string
	UserID      string
	Wallet      string // trader public key
	Mint        string
	Side        Side
	SOLAmount   uint64  // lamports on the SOL leg
	TokenAmount uint64  // raw token units
	PriceSOL    float64 // SOL per whole token
	FeeLamports uint64  // platform fee charged
	Signature   string
	CreatedAt   int64 // ms
}
