// Package config loads service configuration from YAML with environment
// overrides.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"aqua-launchpad/internal/fees"
	"aqua-launchpad/internal/solana"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Solana   SolanaConfig   `yaml:"solana"`
	Storage  StorageConfig  `yaml:"storage"`
	Lock     LockConfig     `yaml:"lock"`
	Vault    VaultConfig    `yaml:"vault"`
	Fees     FeesConfig     `yaml:"fees"`
	Referral ReferralConfig `yaml:"referral"`
	Price    PriceConfig    `yaml:"price"`
	Launch   LaunchConfig   `yaml:"launch"`
	Trade    TradeConfig    `yaml:"trade"`
	Jobs     JobsConfig     `yaml:"jobs"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	MetricsAddr       string        `yaml:"metrics_addr"`
	CORSOrigins       []string      `yaml:"cors_origins"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"` // per client IP
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"` // empty accepts any issuer
}

type SolanaConfig struct {
	RPCEndpoint    string        `yaml:"rpc_endpoint"`
	WSEndpoint     string        `yaml:"ws_endpoint"` // empty confirms by polling only
	Commitment     string        `yaml:"commitment"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
}

type StorageConfig struct {
	Driver        string `yaml:"driver"` // memory | postgres
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"` // empty keeps analytics in memory
}

type LockConfig struct {
	Driver        string        `yaml:"driver"` // memory | redis | postgres
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	TTL           time.Duration `yaml:"ttl"`
}

type VaultConfig struct {
	MasterKey string `yaml:"master_key"` // base64, at least 32 bytes
}

type FeesConfig struct {
	PlatformFeeBps   int    `yaml:"platform_fee_bps"`
	ReferralShareBps int    `yaml:"referral_share_bps"`
	Treasury         string `yaml:"treasury"`
}

type ReferralConfig struct {
	ClaimsEnabled    bool          `yaml:"claims_enabled"`
	MinClaimLamports uint64        `yaml:"min_claim_lamports"`
	Cooldown         time.Duration `yaml:"cooldown"`
	RatePerMinute    int           `yaml:"rate_per_minute"`
	DropAfter        time.Duration `yaml:"drop_after"`
	PayoutSecret     string        `yaml:"payout_secret"` // base58 keypair
}

type PriceConfig struct {
	JupiterQuoteURL string        `yaml:"jupiter_quote_url"`
	JupiterPriceURL string        `yaml:"jupiter_price_url"`
	LegacyPriceURL  string        `yaml:"legacy_price_url"`
	DexScreenerURL  string        `yaml:"dexscreener_url"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	Timeout         time.Duration `yaml:"timeout"`
}

type LaunchConfig struct {
	PumpPortalURL  string        `yaml:"pumpportal_url"`
	IPFSURL        string        `yaml:"ipfs_url"`
	PriorityFeeSOL float64       `yaml:"priority_fee_sol"`
	Timeout        time.Duration `yaml:"timeout"`
}

type TradeConfig struct {
	JupiterQuoteURL string        `yaml:"jupiter_quote_url"`
	JupiterSwapURL  string        `yaml:"jupiter_swap_url"`
	Timeout         time.Duration `yaml:"timeout"`
}

// JobsConfig holds cron specs (standard five-field or descriptors like @every 1m).
type JobsConfig struct {
	PriceRefresh   string `yaml:"price_refresh"`
	ClaimReconcile string `yaml:"claim_reconcile"`
	Cleanup        string `yaml:"cleanup"`
}

// Defaults returns a configuration that runs locally against public endpoints
// with in-memory storage.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			MetricsAddr:       ":9090",
			CORSOrigins:       []string{"*"},
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      90 * time.Second,
			ShutdownTimeout:   30 * time.Second,
			RequestsPerMinute: 120,
		},
		Solana: SolanaConfig{
			RPCEndpoint:    "https://api.mainnet-beta.solana.com",
			WSEndpoint:     "wss://api.mainnet-beta.solana.com",
			Commitment:     string(solana.CommitmentConfirmed),
			ConfirmTimeout: 60 * time.Second,
			PollInterval:   2 * time.Second,
		},
		Storage: StorageConfig{Driver: "memory"},
		Lock:    LockConfig{Driver: "memory", TTL: 2 * time.Minute},
		Fees: FeesConfig{
			PlatformFeeBps:   100,
			ReferralShareBps: 5000,
		},
		Referral: ReferralConfig{
			ClaimsEnabled:    true,
			MinClaimLamports: 10_000_000,
			Cooldown:         time.Hour,
			RatePerMinute:    3,
			DropAfter:        5 * time.Minute,
		},
		Price: PriceConfig{
			JupiterQuoteURL: "https://quote-api.jup.ag/v6/quote",
			JupiterPriceURL: "https://api.jup.ag/price/v2",
			LegacyPriceURL:  "https://price.jup.ag/v4/price",
			DexScreenerURL:  "https://api.dexscreener.com/latest/dex/tokens",
			CacheTTL:        30 * time.Second,
			Timeout:         10 * time.Second,
		},
		Launch: LaunchConfig{
			PumpPortalURL:  "https://pumpportal.fun/api/trade-local",
			IPFSURL:        "https://pump.fun/api/ipfs",
			PriorityFeeSOL: 0.0005,
			Timeout:        30 * time.Second,
		},
		Trade: TradeConfig{
			JupiterQuoteURL: "https://quote-api.jup.ag/v6/quote",
			JupiterSwapURL:  "https://quote-api.jup.ag/v6/swap",
			Timeout:         15 * time.Second,
		},
		Jobs: JobsConfig{
			PriceRefresh:   "@every 1m",
			ClaimReconcile: "@every 30s",
			Cleanup:        "@every 10m",
		},
	}
}

// Load reads .env (existing variables win), then path (if non-empty) over
// the defaults, then environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv(getenv func(string) string) error {
	str := map[string]*string{
		"SERVER_ADDR":            &c.Server.Addr,
		"METRICS_ADDR":           &c.Server.MetricsAddr,
		"JWT_SECRET":             &c.Auth.JWTSecret,
		"JWT_ISSUER":             &c.Auth.Issuer,
		"SOLANA_RPC_ENDPOINT":    &c.Solana.RPCEndpoint,
		"SOLANA_WS_ENDPOINT":     &c.Solana.WSEndpoint,
		"SOLANA_COMMITMENT":      &c.Solana.Commitment,
		"STORAGE_DRIVER":         &c.Storage.Driver,
		"POSTGRES_DSN":           &c.Storage.PostgresDSN,
		"CLICKHOUSE_DSN":         &c.Storage.ClickHouseDSN,
		"LOCK_DRIVER":            &c.Lock.Driver,
		"REDIS_ADDR":             &c.Lock.RedisAddr,
		"REDIS_PASSWORD":         &c.Lock.RedisPassword,
		"VAULT_MASTER_KEY":       &c.Vault.MasterKey,
		"TREASURY_ADDRESS":       &c.Fees.Treasury,
		"REFERRAL_PAYOUT_SECRET": &c.Referral.PayoutSecret,
	}
	for name, field := range str {
		if v := getenv(name); v != "" {
			*field = v
		}
	}

	ints := map[string]*int{
		"PLATFORM_FEE_BPS":   &c.Fees.PlatformFeeBps,
		"REFERRAL_SHARE_BPS": &c.Fees.ReferralShareBps,
	}
	for name, field := range ints {
		if v := getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*field = n
		}
	}

	if v := getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	if v := getenv("REFERRAL_CLAIMS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("REFERRAL_CLAIMS_ENABLED: %w", err)
		}
		c.Referral.ClaimsEnabled = b
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects inconsistent configuration.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Addr != "", "server.addr is required")
	check(c.Server.RequestsPerMinute > 0, "server.requests_per_minute must be positive")
	check(len(c.Auth.JWTSecret) >= 16, "auth.jwt_secret must be at least 16 characters")

	check(c.Solana.RPCEndpoint != "", "solana.rpc_endpoint is required")
	check(solana.Commitment(c.Solana.Commitment).IsValid(), "solana.commitment %q is not processed|confirmed|finalized", c.Solana.Commitment)
	check(c.Solana.ConfirmTimeout > 0, "solana.confirm_timeout must be positive")
	check(c.Solana.PollInterval > 0, "solana.poll_interval must be positive")

	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		check(c.Storage.PostgresDSN != "", "storage.postgres_dsn is required for the postgres driver")
	default:
		check(false, "storage.driver %q is not memory|postgres", c.Storage.Driver)
	}

	switch c.Lock.Driver {
	case "memory":
	case "redis":
		check(c.Lock.RedisAddr != "", "lock.redis_addr is required for the redis driver")
	case "postgres":
		check(c.Storage.Driver == "postgres", "lock.driver postgres requires storage.driver postgres")
	default:
		check(false, "lock.driver %q is not memory|redis|postgres", c.Lock.Driver)
	}
	check(c.Lock.TTL > c.Solana.ConfirmTimeout, "lock.ttl must exceed solana.confirm_timeout")

	key, err := base64.StdEncoding.DecodeString(c.Vault.MasterKey)
	check(err == nil && len(key) >= 32, "vault.master_key must be base64 of at least 32 bytes")

	check(c.Fees.PlatformFeeBps >= 0 && c.Fees.PlatformFeeBps <= fees.MaxBps,
		"fees.platform_fee_bps must be 0..%d", fees.MaxBps)
	check(c.Fees.ReferralShareBps >= 0 && c.Fees.ReferralShareBps <= fees.MaxBps,
		"fees.referral_share_bps must be 0..%d", fees.MaxBps)
	if c.Fees.Treasury != "" {
		check(solana.ValidateAddress(c.Fees.Treasury) == nil, "fees.treasury is not a valid address")
	}

	check(c.Referral.RatePerMinute > 0, "referral.rate_per_minute must be positive")
	check(c.Referral.DropAfter >= c.Solana.ConfirmTimeout, "referral.drop_after must be at least solana.confirm_timeout")
	if c.Referral.ClaimsEnabled {
		check(c.Referral.PayoutSecret != "", "referral.payout_secret is required when claims are enabled")
	}

	check(c.Price.CacheTTL > 0, "price.cache_ttl must be positive")

	for name, spec := range map[string]string{
		"jobs.price_refresh":   c.Jobs.PriceRefresh,
		"jobs.claim_reconcile": c.Jobs.ClaimReconcile,
		"jobs.cleanup":         c.Jobs.Cleanup,
	} {
		if spec == "" {
			continue // disabled
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}
