package domain

// WrappedSOLMint is the native SOL mint address.
const WrappedSOLMint = "So11111111111111111111111111111111111111112"

// USDCMint is the USDC mint used as the quote currency.
const USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

// PriceQuote is a resolved price for a mint.
type PriceQuote struct {
	Mint      string
	PriceUSD  float64
	PriceSOL  *float64 // nullable, not every source reports it
	Source    string   // name of the source that answered
	FetchedAt int64    // ms
}
