package price

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"aqua-launchpad/internal/domain"
)

// Default upstream endpoints.
const (
	DefaultJupiterQuoteURL = "https://quote-api.jup.ag/v6/quote"
	DefaultJupiterPriceURL = "https://api.jup.ag/price/v2"
	DefaultLegacyPriceURL  = "https://price.jup.ag/v4/price"
)

// Launchpad mints use 6 decimals; wrapped SOL uses 9.
const (
	defaultDecimals = 6
	usdcDecimals    = 6
)

// QuoteSource prices a mint by quoting one whole token into USDC.
type QuoteSource struct {
	baseURL  string
	client   *http.Client
	decimals func(mint string) int
}

// NewQuoteSource creates a Jupiter quote source. decimals may be nil.
func NewQuoteSource(baseURL string, timeout time.Duration, decimals func(mint string) int) *QuoteSource {
	if baseURL == "" {
		baseURL = DefaultJupiterQuoteURL
	}
	return &QuoteSource{baseURL: baseURL, client: newHTTPClient(timeout), decimals: decimals}
}

func (s *QuoteSource) Name() string { return SourceJupiterQuote }

// Price requests a quote for 10^decimals raw units and reads outAmount.
func (s *QuoteSource) Price(ctx context.Context, mint string) (domain.PriceQuote, error) {
	if mint == domain.USDCMint {
		return domain.PriceQuote{Mint: mint, PriceUSD: 1, Source: s.Name(), FetchedAt: time.Now().UnixMilli()}, nil
	}
	dec := s.mintDecimals(mint)

	q := url.Values{}
	q.Set("inputMint", mint)
	q.Set("outputMint", domain.USDCMint)
	q.Set("amount", strconv.FormatUint(uint64(math.Pow10(dec)), 10))
	q.Set("slippageBps", "50")

	res, err := getJSON(ctx, s.client, s.Name(), s.baseURL+"?"+q.Encode())
	if err != nil {
		return domain.PriceQuote{}, err
	}
	if msg := res.Get("error"); msg.Exists() {
		return domain.PriceQuote{}, fmt.Errorf("%s: %s", s.Name(), msg.String())
	}
	out, ok := positive(res.Get("outAmount"))
	if !ok {
		return domain.PriceQuote{}, fmt.Errorf("%s: %w", s.Name(), ErrNoPrice)
	}
	return domain.PriceQuote{
		Mint:      mint,
		PriceUSD:  out / math.Pow10(usdcDecimals),
		Source:    s.Name(),
		FetchedAt: time.Now().UnixMilli(),
	}, nil
}

func (s *QuoteSource) mintDecimals(mint string) int {
	if s.decimals != nil {
		if d := s.decimals(mint); d > 0 {
			return d
		}
	}
	if mint == domain.WrappedSOLMint {
		return 9
	}
	return defaultDecimals
}

// PriceAPISource reads data.<mint>.price from a Jupiter price API.
// The current and legacy APIs share that shape and differ only in name and URL.
type PriceAPISource struct {
	name    string
	baseURL string
	client  *http.Client
}

// NewJupiterPriceSource creates the price API v2 source.
func NewJupiterPriceSource(baseURL string, timeout time.Duration) *PriceAPISource {
	if baseURL == "" {
		baseURL = DefaultJupiterPriceURL
	}
	return &PriceAPISource{name: SourceJupiterPrice, baseURL: baseURL, client: newHTTPClient(timeout)}
}

// NewLegacyPriceSource creates the older price API source.
func NewLegacyPriceSource(baseURL string, timeout time.Duration) *PriceAPISource {
	if baseURL == "" {
		baseURL = DefaultLegacyPriceURL
	}
	return &PriceAPISource{name: SourceLegacyPrice, baseURL: baseURL, client: newHTTPClient(timeout)}
}

func (s *PriceAPISource) Name() string { return s.name }

func (s *PriceAPISource) Price(ctx context.Context, mint string) (domain.PriceQuote, error) {
	res, err := getJSON(ctx, s.client, s.name, s.baseURL+"?ids="+url.QueryEscape(mint))
	if err != nil {
		return domain.PriceQuote{}, err
	}
	// Mint addresses contain no dots, but escape anyway for the gjson path.
	p, ok := positive(res.Get("data." + escapePath(mint) + ".price"))
	if !ok {
		return domain.PriceQuote{}, fmt.Errorf("%s: %w", s.name, ErrNoPrice)
	}
	return domain.PriceQuote{
		Mint:      mint,
		PriceUSD:  p,
		Source:    s.name,
		FetchedAt: time.Now().UnixMilli(),
	}, nil
}
