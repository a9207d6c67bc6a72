package token

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/fees"
)

// Default launch endpoints.
const (
	DefaultTradeLocalURL = "https://pumpportal.fun/api/trade-local"
	DefaultIPFSURL       = "https://pump.fun/api/ipfs"
)

// Metadata is uploaded to IPFS before creation.
type Metadata struct {
	Name        string
	Symbol      string
	Description string
	Twitter     string
	Telegram    string
	Website     string
	Image       []byte
	ImageName   string
}

// MetadataResult is where the metadata landed.
type MetadataResult struct {
	URI      string
	ImageURI string
}

// CreateRequest asks the launch platform for an unsigned create transaction.
type CreateRequest struct {
	Creator            string // fee payer public key
	Mint               string // new mint public key
	Name               string
	Symbol             string
	URI                string
	InitialBuyLamports uint64
	SlippageBps        int
	PriorityFeeSOL     float64
	Platform           domain.Platform
}

// Launcher talks to the launch platform.
type Launcher interface {
	UploadMetadata(ctx context.Context, m Metadata) (*MetadataResult, error)
	CreateTransaction(ctx context.Context, r CreateRequest) ([]byte, error)
}

// PumpPortal implements Launcher using the PumpPortal local-transaction API.
type PumpPortal struct {
	tradeURL string
	ipfsURL  string
	client   *http.Client
}

// NewPumpPortal creates a PumpPortal client. Empty URLs use the defaults.
func NewPumpPortal(tradeURL, ipfsURL string, timeout time.Duration) *PumpPortal {
	if tradeURL == "" {
		tradeURL = DefaultTradeLocalURL
	}
	if ipfsURL == "" {
		ipfsURL = DefaultIPFSURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PumpPortal{tradeURL: tradeURL, ipfsURL: ipfsURL, client: &http.Client{Timeout: timeout}}
}

var _ Launcher = (*PumpPortal)(nil)

// UploadMetadata posts the image and fields as multipart form data.
func (p *PumpPortal) UploadMetadata(ctx context.Context, m Metadata) (*MetadataResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if len(m.Image) > 0 {
		name := m.ImageName
		if name == "" {
			name = "image.png"
		}
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(m.Image); err != nil {
			return nil, err
		}
	}
	fields := [][2]string{
		{"name", m.Name},
		{"symbol", m.Symbol},
		{"description", m.Description},
		{"twitter", m.Twitter},
		{"telegram", m.Telegram},
		{"website", m.Website},
		{"showName", "true"},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.ipfsURL, &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	raw, err := p.do(req)
	if err != nil {
		return nil, fmt.Errorf("upload metadata: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("upload metadata: invalid JSON response")
	}
	res := gjson.ParseBytes(raw)
	uri := res.Get("metadataUri").String()
	if uri == "" {
		return nil, errors.New("upload metadata: response has no metadataUri")
	}
	return &MetadataResult{URI: uri, ImageURI: res.Get("metadata.image").String()}, nil
}

// CreateTransaction returns the serialized unsigned create transaction.
func (p *PumpPortal) CreateTransaction(ctx context.Context, r CreateRequest) ([]byte, error) {
	pool := string(r.Platform)
	if pool == "" {
		pool = string(domain.PlatformPump)
	}
	payload := map[string]interface{}{
		"publicKey": r.Creator,
		"action":    "create",
		"tokenMetadata": map[string]string{
			"name":   r.Name,
			"symbol": r.Symbol,
			"uri":    r.URI,
		},
		"mint":             r.Mint,
		"denominatedInSol": "true",
		"amount":           json.Number(fees.LamportsToSOL(r.InitialBuyLamports).String()),
		"slippage":         r.SlippageBps / 100,
		"priorityFee":      r.PriorityFeeSOL,
		"pool":             pool,
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tradeURL, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := p.do(req)
	if err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("create transaction: empty response")
	}
	return raw, nil
}

// UpstreamError is a non-2xx response from the launch platform.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("launch platform HTTP %d: %s", e.Status, e.Body)
}

func (p *PumpPortal) do(req *http.Request) ([]byte, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
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
		return nil, &UpstreamError{Status: resp.StatusCode, Body: msg}
	}
	return body, nil
}
