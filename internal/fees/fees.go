// Package fees holds lamport arithmetic and fee rules.
package fees

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"aqua-launchpad/internal/domain"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// Bounds for creator-configured parameters.
const (
	MaxBps           = 10_000
	MaxCreatorFeeBps = 1_000
	MinSlippageBps   = 1
	MaxSlippageBps   = 5_000
)

var (
	// ErrInvalidDistribution is returned when fee buckets are out of range or do not sum to 100.
	ErrInvalidDistribution = errors.New("fee distribution must be 0..100 per bucket and sum to 100")
	// ErrInvalidParameters is returned for out-of-range token parameters.
	ErrInvalidParameters = errors.New("invalid token parameters")
	// ErrInvalidAmount is returned for negative, fractional-lamport or overflowing SOL amounts.
	ErrInvalidAmount = errors.New("invalid amount")
)

var lamportsPerSOL = decimal.NewFromInt(LamportsPerSOL)

// LamportsToSOL converts lamports to SOL.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Div(lamportsPerSOL)
}

// SOLToLamports converts SOL to lamports, rejecting negative values and sub-lamport precision.
func SOLToLamports(sol decimal.Decimal) (uint64, error) {
	if sol.IsNegative() {
		return 0, fmt.Errorf("%w: negative", ErrInvalidAmount)
	}
	l := sol.Mul(lamportsPerSOL)
	if !l.Equal(l.Truncate(0)) {
		return 0, fmt.Errorf("%w: more than 9 decimals", ErrInvalidAmount)
	}
	if l.GreaterThan(decimal.NewFromUint64(math.MaxUint64)) {
		return 0, fmt.Errorf("%w: overflow", ErrInvalidAmount)
	}
	return l.BigInt().Uint64(), nil
}

// ParseSOL parses a decimal SOL string into lamports.
func ParseSOL(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return SOLToLamports(d)
}

// ApplyBps returns floor(amount * bps / 10000).
func ApplyBps(amount uint64, bps int) uint64 {
	if bps <= 0 || amount == 0 {
		return 0
	}
	if bps > MaxBps {
		bps = MaxBps
	}
	v := decimal.NewFromUint64(amount).
		Mul(decimal.NewFromInt(int64(bps))).
		Div(decimal.NewFromInt(MaxBps)).
		Truncate(0)
	return v.BigInt().Uint64()
}

// PlatformFee is the fee charged on the SOL leg of a trade.
func PlatformFee(amount uint64, bps int) uint64 {
	return ApplyBps(amount, bps)
}

// ReferralShare is the referrer's cut of a platform fee.
func ReferralShare(fee uint64, shareBps int) uint64 {
	return ApplyBps(fee, shareBps)
}

// ValidateDistribution checks every bucket is within 0..100 and the sum is exactly 100.
func ValidateDistribution(d domain.FeeDistribution) error {
	for _, v := range []int{d.Holders, d.Liquidity, d.Buyback, d.Creator} {
		if v < 0 || v > 100 {
			return ErrInvalidDistribution
		}
	}
	if d.Sum() != 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidDistribution, d.Sum())
	}
	return nil
}

// ValidateParameters checks creator-configured token parameters.
func ValidateParameters(p *domain.TokenParameters) error {
	if p == nil {
		return ErrInvalidParameters
	}
	if err := ValidateDistribution(p.Distribution); err != nil {
		return err
	}
	if p.CreatorFeeBps < 0 || p.CreatorFeeBps > MaxCreatorFeeBps {
		return fmt.Errorf("%w: creator fee must be 0..%d bps", ErrInvalidParameters, MaxCreatorFeeBps)
	}
	if p.SlippageBps < MinSlippageBps || p.SlippageBps > MaxSlippageBps {
		return fmt.Errorf("%w: slippage must be %d..%d bps", ErrInvalidParameters, MinSlippageBps, MaxSlippageBps)
	}
	return nil
}

// DefaultDistribution is applied when a creator does not choose one.
func DefaultDistribution() domain.FeeDistribution {
	return domain.FeeDistribution{Holders: 40, Liquidity: 30, Buyback: 20, Creator: 10}
}

// Allocation is a lamport amount split across distribution buckets.
type Allocation struct {
	Holders   uint64 `json:"holders"`
	Liquidity uint64 `json:"liquidity"`
	Buyback   uint64 `json:"buyback"`
	Creator   uint64 `json:"creator"`
}

// Distribute splits total across the buckets. Rounding dust goes to holders,
// so the parts always add up to total.
func Distribute(total uint64, d domain.FeeDistribution) (Allocation, error) {
	if err := ValidateDistribution(d); err != nil {
		return Allocation{}, err
	}
	a := Allocation{
		Liquidity: ApplyBps(total, d.Liquidity*100),
		Buyback:   ApplyBps(total, d.Buyback*100),
		Creator:   ApplyBps(total, d.Creator*100),
	}
	a.Holders = total - a.Liquidity - a.Buyback - a.Creator
	return a, nil
}
