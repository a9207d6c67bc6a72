// Package price resolves token prices through an ordered cascade of sources.
package price

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"aqua-launchpad/internal/domain"
)

// DefaultTimeout bounds a single upstream request.
const DefaultTimeout = 10 * time.Second

// Source names, in cascade order.
const (
	SourceJupiterQuote = "jupiter_quote"
	SourceJupiterPrice = "jupiter_price"
	SourceLegacyPrice  = "legacy_price"
	SourceDexScreener  = "dexscreener"
)

// ErrNoPrice is returned by a source that answered but had no usable price.
var ErrNoPrice = errors.New("no price")

// Source is one upstream price provider.
type Source interface {
	Name() string
	Price(ctx context.Context, mint string) (domain.PriceQuote, error)
}

// StatusError is returned when an upstream answers with a non-2xx status.
type StatusError struct {
	Source string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Source, e.Status, e.Body)
}

// getJSON fetches url and returns the body if it is valid JSON.
func getJSON(ctx context.Context, client *http.Client, source, url string) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: create request: %w", source, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: %w", source, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: read body: %w", source, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return gjson.Result{}, &StatusError{Source: source, Status: resp.StatusCode, Body: truncate(string(body), 200)}
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%s: invalid JSON response", source)
	}
	return gjson.ParseBytes(body), nil
}

// positive parses a JSON number or numeric string and rejects non-positive values.
func positive(r gjson.Result) (float64, bool) {
	if !r.Exists() {
		return 0, false
	}
	v := r.Float()
	if v <= 0 {
		return 0, false
	}
	return v, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}
