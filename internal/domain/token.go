package domain

// Platform identifies the launch platform a token was created on.
type Platform string

const (
	PlatformPump Platform = "pump"
	PlatformBonk Platform = "bonk"
)

// IsValid checks if the platform is supported.
func (p Platform) IsValid() bool {
	return p == PlatformPump || p == PlatformBonk
}

// Stage is the bonding-curve lifecycle stage of a token.
type Stage string

const (
	StageBonding  Stage = "bonding"
	StageMigrated Stage = "migrated"
)

// CanTransition reports whether the stage may move to next.
// Stages only move forward: bonding -> migrated.
func (s Stage) CanTransition(next Stage) bool {
	if s == next {
		return true
	}
	return s == StageBonding && next == StageMigrated
}

// Token is a mint launched through the platform.
type Token struct {
	Mint        string
	Creator     string // user id
	CreatorKey  string // creator wallet public key
	Name        string
	Symbol      string
	Description string
	MetadataURI string
	ImageURI    string
	Decimals    int
	Platform    Platform
	Stage       Stage
	Signature   string // creation transaction

	// Pricing snapshot, refreshed by the price job.
	PriceSOL       *float64
	PriceUSD       *float64
	MarketCapUSD   *float64
	PriceSource    *string
	PriceUpdatedAt *int64 // ms

	CreatedAt int64 // ms
}

// TotalSupplyUnits is the fixed supply minted by the launch platforms (whole tokens).
const TotalSupplyUnits = 1_000_000_000
