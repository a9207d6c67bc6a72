package price

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"aqua-launchpad/internal/domain"
)

// DefaultDexScreenerURL is the token pairs endpoint.
const DefaultDexScreenerURL = "https://api.dexscreener.com/latest/dex/tokens"

// DexScreenerSource reads the first pair reported for a mint.
type DexScreenerSource struct {
	baseURL string
	client  *http.Client
}

// NewDexScreenerSource creates a DexScreener source.
func NewDexScreenerSource(baseURL string, timeout time.Duration) *DexScreenerSource {
	if baseURL == "" {
		baseURL = DefaultDexScreenerURL
	}
	return &DexScreenerSource{baseURL: strings.TrimRight(baseURL, "/"), client: newHTTPClient(timeout)}
}

func (s *DexScreenerSource) Name() string { return SourceDexScreener }

// Price uses priceUsd of the first pair and priceNative as the SOL price
// when the pair is quoted in SOL.
func (s *DexScreenerSource) Price(ctx context.Context, mint string) (domain.PriceQuote, error) {
	res, err := getJSON(ctx, s.client, s.Name(), s.baseURL+"/"+url.PathEscape(mint))
	if err != nil {
		return domain.PriceQuote{}, err
	}
	pair := res.Get("pairs.0")
	if !pair.Exists() {
		return domain.PriceQuote{}, fmt.Errorf("%s: no pairs: %w", s.Name(), ErrNoPrice)
	}
	usd, ok := positive(pair.Get("priceUsd"))
	if !ok {
		return domain.PriceQuote{}, fmt.Errorf("%s: %w", s.Name(), ErrNoPrice)
	}
	q := domain.PriceQuote{
		Mint:      mint,
		PriceUSD:  usd,
		Source:    s.Name(),
		FetchedAt: time.Now().UnixMilli(),
	}
	if pair.Get("quoteToken.address").String() == domain.WrappedSOLMint {
		if native, ok := positive(pair.Get("priceNative")); ok {
			q.PriceSOL = &native
		}
	}
	return q, nil
}

func escapePath(s string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return r.Replace(s)
}
