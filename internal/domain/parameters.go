package domain

// FeeDistribution splits creator rewards. Percentages must sum to 100.
type FeeDistribution struct {
	Holders   int `json:"holders"`
	Liquidity int `json:"liquidity"`
	Buyback   int `json:"buyback"`
	Creator   int `json:"creator"`
}

// Sum returns the total of all buckets.
func (d FeeDistribution) Sum() int {
	return d.Holders + d.Liquidity + d.Buyback + d.Creator
}

// TokenParameters are creator-configured knobs for a launched token.
type TokenParameters struct {
	Mint               string
	CreatorFeeBps      int // creator fee on trades, basis points
	Distribution       FeeDistribution
	InitialBuyLamports uint64 // dev buy bundled with creation
	SlippageBps        int
	UpdatedAt          int64 // ms
}
