package trade

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// Default Jupiter swap endpoints.
const (
	DefaultQuoteURL = "https://quote-api.jup.ag/v6/quote"
	DefaultSwapURL  = "https://quote-api.jup.ag/v6/swap"
)

// QuoteRequest asks for an exact-in route.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64 // raw input units
	SlippageBps int
}

// Quote is a routed swap quote. Raw is passed back verbatim to build the swap.
type Quote struct {
	InputMint      string
	OutputMint     string
	InAmount       uint64
	OutAmount      uint64
	MinOutAmount   uint64
	PriceImpactPct float64
	SlippageBps    int
	Raw            json.RawMessage
}

// Swapper quotes swaps and builds unsigned swap transactions.
type Swapper interface {
	Quote(ctx context.Context, r QuoteRequest) (*Quote, error)
	SwapTransaction(ctx context.Context, q *Quote, userPublicKey string) ([]byte, error)
}

// Jupiter implements Swapper with the Jupiter v6 API.
type Jupiter struct {
	quoteURL string
	swapURL  string
	client   *http.Client
}

// NewJupiter creates a Jupiter client. Empty URLs use the defaults.
func NewJupiter(quoteURL, swapURL string, timeout time.Duration) *Jupiter {
	if quoteURL == "" {
		quoteURL = DefaultQuoteURL
	}
	if swapURL == "" {
		swapURL = DefaultSwapURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Jupiter{quoteURL: quoteURL, swapURL: swapURL, client: &http.Client{Timeout: timeout}}
}

var _ Swapper = (*Jupiter)(nil)

// Quote requests an exact-in quote.
func (j *Jupiter) Quote(ctx context.Context, r QuoteRequest) (*Quote, error) {
	q := url.Values{}
	q.Set("inputMint", r.InputMint)
	q.Set("outputMint", r.OutputMint)
	q.Set("amount", strconv.FormatUint(r.Amount, 10))
	q.Set("slippageBps", strconv.Itoa(r.SlippageBps))
	q.Set("swapMode", "ExactIn")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.quoteURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	body, err := j.do(req)
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}
	res := gjson.ParseBytes(body)
	if msg := res.Get("error"); msg.Exists() {
		return nil, fmt.Errorf("quote: %s", msg.String())
	}

	out := res.Get("outAmount").Uint()
	if out == 0 {
		return nil, errors.New("quote: no route")
	}
	return &Quote{
		InputMint:      res.Get("inputMint").String(),
		OutputMint:     res.Get("outputMint").String(),
		InAmount:       res.Get("inAmount").Uint(),
		OutAmount:      out,
		MinOutAmount:   res.Get("otherAmountThreshold").Uint(),
		PriceImpactPct: res.Get("priceImpactPct").Float(),
		SlippageBps:    int(res.Get("slippageBps").Int()),
		Raw:            json.RawMessage(body),
	}, nil
}

// SwapTransaction returns the serialized unsigned swap transaction for q.
func (j *Jupiter) SwapTransaction(ctx context.Context, q *Quote, userPublicKey string) ([]byte, error) {
	payload := map[string]interface{}{
		"quoteResponse":             q.Raw,
		"userPublicKey":             userPublicKey,
		"wrapAndUnwrapSol":          true,
		"dynamicComputeUnitLimit":   true,
		"prioritizationFeeLamports": "auto",
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.swapURL, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := j.do(req)
	if err != nil {
		return nil, fmt.Errorf("swap: %w", err)
	}
	encoded := gjson.GetBytes(body, "swapTransaction").String()
	if encoded == "" {
		return nil, errors.New("swap: response has no swapTransaction")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("swap: decode transaction: %w", err)
	}
	return raw, nil
}

// StatusError is a non-2xx response from Jupiter.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jupiter HTTP %d: %s", e.Status, e.Body)
}

func (j *Jupiter) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	resp, err := j.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(body)
		if e := gjson.GetBytes(body, "error"); e.Exists() {
			msg = e.String()
		}
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return nil, &StatusError{Status: resp.StatusCode, Body: msg}
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("invalid JSON response")
	}
	return body, nil
}
