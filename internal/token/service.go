// Package token launches tokens on the bonding-curve platforms and keeps
// their parameters and pricing snapshots.
package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"aqua-launchpad/internal/apierr"
	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/fees"
	"aqua-launchpad/internal/observability"
	"aqua-launchpad/internal/solana"
	"aqua-launchpad/internal/storage"
)

// Launch limits and defaults.
const (
	MaxNameLen         = 32
	MaxSymbolLen       = 10
	MaxDescriptionLen  = 1000
	MaxImageBytes      = 4 << 20
	DefaultDecimals    = 6
	DefaultSlippageBps = 1000
	DefaultCreatorFee  = 100

	// CreationReserveLamports covers rent and fees of the create transaction.
	CreationReserveLamports = 20_000_000
)

var (
	ErrInvalidToken   = apierr.New(http.StatusBadRequest, apierr.CodeInvalidRequest, "invalid token")
	ErrNotCreator     = apierr.New(http.StatusForbidden, apierr.CodeForbidden, "only the creator can change token parameters")
	ErrLowBalance     = apierr.New(http.StatusBadRequest, apierr.CodeInsufficientFunds, "wallet balance too low to launch")
	ErrLaunchFailed   = apierr.New(http.StatusBadGateway, apierr.CodeUpstream, "token launch failed")
	ErrUnexpectedSign = apierr.New(http.StatusBadGateway, apierr.CodeUpstream, "launch transaction requires unexpected signers")
)

// WalletKeys resolves signing keys of custodial wallets.
type WalletKeys interface {
	Keypair(ctx context.Context, userID, walletID string) (*solana.Keypair, *domain.Wallet, error)
	Primary(ctx context.Context, userID string) (*domain.Wallet, error)
}

// Pricer resolves prices.
type Pricer interface {
	ResolveMany(ctx context.Context, mints []string) ([]*domain.PriceQuote, []error)
}

// Confirmer waits for a transaction to confirm.
type Confirmer interface {
	Await(ctx context.Context, signature string, timeout time.Duration) error
	Commitment() solana.Commitment
}

// Deps are the collaborators of Service.
type Deps struct {
	Tokens         storage.TokenStore
	Params         storage.TokenParametersStore
	Wallets        WalletKeys
	Launcher       Launcher
	RPC            solana.RPCClient
	Confirmer      Confirmer
	Pricer         Pricer
	Analytics      storage.TradeAnalyticsStore // optional, enables creator fee figures
	ConfirmTimeout time.Duration
	PriorityFeeSOL float64
	Logger         *zap.Logger
}

// Service implements token launch and queries.
type Service struct {
	tokens         storage.TokenStore
	params         storage.TokenParametersStore
	wallets        WalletKeys
	launcher       Launcher
	rpc            solana.RPCClient
	confirmer      Confirmer
	pricer         Pricer
	analytics      storage.TradeAnalyticsStore
	confirmTimeout time.Duration
	priorityFee    float64
	logger         *zap.Logger
	now            func() time.Time
	newMint        func() (*solana.Keypair, error)
}

// NewService creates a token service.
func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := d.ConfirmTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Service{
		tokens:         d.Tokens,
		params:         d.Params,
		wallets:        d.Wallets,
		launcher:       d.Launcher,
		rpc:            d.RPC,
		confirmer:      d.Confirmer,
		pricer:         d.Pricer,
		analytics:      d.Analytics,
		confirmTimeout: timeout,
		priorityFee:    d.PriorityFeeSOL,
		logger:         logger.Named("token"),
		now:            time.Now,
		newMint:        solana.NewKeypair,
	}
}

// ParametersInput are optional creator parameters; nil fields take defaults.
type ParametersInput struct {
	CreatorFeeBps *int                    `json:"creator_fee_bps,omitempty"`
	Distribution  *domain.FeeDistribution `json:"distribution,omitempty"`
	SlippageBps   *int                    `json:"slippage_bps,omitempty"`
}

// CreateInput describes a token launch.
type CreateInput struct {
	WalletID           string // empty uses the primary wallet
	Name               string
	Symbol             string
	Description        string
	Twitter            string
	Telegram           string
	Website            string
	Image              []byte
	ImageName          string
	Platform           domain.Platform
	InitialBuyLamports uint64
	Parameters         ParametersInput
}

// CreateResult is the outcome of a launch.
type CreateResult struct {
	Token      *domain.Token           `json:"token"`
	Parameters *domain.TokenParameters `json:"parameters"`
	Signature  string                  `json:"signature"`
	Confirmed  bool                    `json:"confirmed"`
}

func (in *CreateInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Symbol = strings.ToUpper(strings.TrimSpace(in.Symbol))
	in.Description = strings.TrimSpace(in.Description)
	switch {
	case in.Name == "" || utf8.RuneCountInString(in.Name) > MaxNameLen:
		return ErrInvalidToken.WithMessage(fmt.Sprintf("name must be 1..%d characters", MaxNameLen))
	case in.Symbol == "" || utf8.RuneCountInString(in.Symbol) > MaxSymbolLen:
		return ErrInvalidToken.WithMessage(fmt.Sprintf("symbol must be 1..%d characters", MaxSymbolLen))
	case utf8.RuneCountInString(in.Description) > MaxDescriptionLen:
		return ErrInvalidToken.WithMessage(fmt.Sprintf("description must be at most %d characters", MaxDescriptionLen))
	case len(in.Image) > MaxImageBytes:
		return ErrInvalidToken.WithMessage("image too large")
	}
	if in.Platform == "" {
		in.Platform = domain.PlatformPump
	}
	if !in.Platform.IsValid() {
		return ErrInvalidToken.WithMessage("platform must be pump or bonk")
	}
	return nil
}

func buildParameters(mint string, in ParametersInput, initialBuy uint64, at int64) *domain.TokenParameters {
	p := &domain.TokenParameters{
		Mint:               mint,
		CreatorFeeBps:      DefaultCreatorFee,
		Distribution:       fees.DefaultDistribution(),
		InitialBuyLamports: initialBuy,
		SlippageBps:        DefaultSlippageBps,
		UpdatedAt:          at,
	}
	applyParameters(p, in)
	return p
}

func applyParameters(p *domain.TokenParameters, in ParametersInput) {
	if in.CreatorFeeBps != nil {
		p.CreatorFeeBps = *in.CreatorFeeBps
	}
	if in.Distribution != nil {
		p.Distribution = *in.Distribution
	}
	if in.SlippageBps != nil {
		p.SlippageBps = *in.SlippageBps
	}
}

// Create launches a token: metadata upload, create transaction from the
// platform, signing with mint and creator keys, send and confirm, then store.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*CreateResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.now().UnixMilli()

	mintKP, err := s.newMint()
	if err != nil {
		return nil, err
	}
	mint := mintKP.Address()
	params := buildParameters(mint, in.Parameters, in.InitialBuyLamports, now)
	if err := fees.ValidateParameters(params); err != nil {
		return nil, ErrInvalidToken.WithMessage(err.Error())
	}

	walletID := in.WalletID
	if walletID == "" {
		w, err := s.wallets.Primary(ctx, userID)
		if err != nil {
			return nil, err
		}
		walletID = w.ID
	}
	creator, wallet, err := s.wallets.Keypair(ctx, userID, walletID)
	if err != nil {
		return nil, err
	}

	balance, err := s.rpc.GetBalance(ctx, wallet.PublicKey)
	if err != nil {
		return nil, apierr.Upstream("balance lookup failed", err)
	}
	if need := in.InitialBuyLamports + CreationReserveLamports; balance < need {
		return nil, ErrLowBalance.WithMessage(fmt.Sprintf("wallet needs at least %s SOL to launch",
			fees.LamportsToSOL(need).String()))
	}

	log := s.logger.With(zap.String("mint", mint), zap.String("user_id", userID), zap.String("platform", string(in.Platform)))

	meta, err := s.launcher.UploadMetadata(ctx, Metadata{
		Name:        in.Name,
		Symbol:      in.Symbol,
		Description: in.Description,
		Twitter:     in.Twitter,
		Telegram:    in.Telegram,
		Website:     in.Website,
		Image:       in.Image,
		ImageName:   in.ImageName,
	})
	if err != nil {
		return nil, ErrLaunchFailed.WithCause(err)
	}

	raw, err := s.launcher.CreateTransaction(ctx, CreateRequest{
		Creator:            wallet.PublicKey,
		Mint:               mint,
		Name:               in.Name,
		Symbol:             in.Symbol,
		URI:                meta.URI,
		InitialBuyLamports: in.InitialBuyLamports,
		SlippageBps:        params.SlippageBps,
		PriorityFeeSOL:     s.priorityFee,
		Platform:           in.Platform,
	})
	if err != nil {
		return nil, ErrLaunchFailed.WithCause(err)
	}

	signed, err := signExpected(raw, mintKP, creator)
	if err != nil {
		return nil, err
	}
	sig, err := solana.TransactionSignature(signed)
	if err != nil {
		return nil, ErrLaunchFailed.WithCause(err)
	}
	if _, err := s.rpc.SendTransaction(ctx, signed, &solana.SendOpts{PreflightCommitment: s.confirmer.Commitment()}); err != nil {
		log.Warn("create transaction rejected", zap.Error(err))
		return nil, ErrLaunchFailed.WithCause(err)
	}
	observability.RecordTransactionSent("token_create")
	log = log.With(zap.String("signature", sig))

	confirmed := true
	err = s.confirmer.Await(ctx, sig, s.confirmTimeout)
	var failed *solana.TxFailedError
	switch {
	case err == nil:
	case errors.As(err, &failed):
		log.Warn("create transaction failed on chain", zap.Any("tx_err", failed.Err))
		return nil, ErrLaunchFailed.WithCause(err)
	default:
		// Stored anyway: the transaction may still land and the price job will pick it up.
		confirmed = false
		log.Warn("create confirmation pending", zap.Error(err))
	}

	t := &domain.Token{
		Mint:        mint,
		Creator:     userID,
		CreatorKey:  wallet.PublicKey,
		Name:        in.Name,
		Symbol:      in.Symbol,
		Description: in.Description,
		MetadataURI: meta.URI,
		ImageURI:    meta.ImageURI,
		Decimals:    DefaultDecimals,
		Platform:    in.Platform,
		Stage:       domain.StageBonding,
		Signature:   sig,
		CreatedAt:   now,
	}
	bg := context.WithoutCancel(ctx)
	if err := s.tokens.Insert(bg, t); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}
	if err := s.params.Upsert(bg, params); err != nil {
		return nil, fmt.Errorf("store token parameters: %w", err)
	}

	observability.RecordTokenLaunch(string(in.Platform))
	log.Info("token launched", zap.Bool("confirmed", confirmed))
	return &CreateResult{Token: t, Parameters: params, Signature: sig, Confirmed: confirmed}, nil
}

// signExpected signs raw with the mint and creator keys, rejecting
// transactions that need any other signer.
func signExpected(raw []byte, mint, creator *solana.Keypair) ([]byte, error) {
	missing, err := solana.MissingSigners(raw)
	if err != nil {
		return nil, ErrLaunchFailed.WithCause(err)
	}
	allowed := map[string]bool{mint.Address(): true, creator.Address(): true}
	for _, k := range missing {
		if !allowed[k] {
			return nil, ErrUnexpectedSign.WithMessage("launch transaction requires unexpected signer " + k)
		}
	}
	signed, err := solana.SignTransaction(raw, mint, creator)
	if err != nil {
		return nil, ErrLaunchFailed.WithCause(err)
	}
	return signed, nil
}

// Details is a token with its parameters.
type Details struct {
	Token       *domain.Token           `json:"token"`
	Parameters  *domain.TokenParameters `json:"parameters,omitempty"`
	CreatorFees *CreatorFees            `json:"creator_fees,omitempty"`
}

// creatorFeeWindow is the trading window CreatorFees covers.
const creatorFeeWindow = 24 * time.Hour

// CreatorFees is the creator fee earned on a token's trades over Window,
// split by the token's fee distribution.
type CreatorFees struct {
	Window time.Duration
	Total  uint64 // lamports
	Split  fees.Allocation
}

// Get returns a token and its parameters.
func (s *Service) Get(ctx context.Context, mint string) (*Details, error) {
	t, err := s.tokens.GetByMint(ctx, mint)
	if err != nil {
		return nil, err
	}
	d := &Details{Token: t}
	p, err := s.params.GetByMint(ctx, mint)
	switch {
	case err == nil:
		d.Parameters = p
		d.CreatorFees = s.creatorFees(ctx, p)
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}
	return d, nil
}

// creatorFees returns nil when analytics are unavailable.
func (s *Service) creatorFees(ctx context.Context, p *domain.TokenParameters) *CreatorFees {
	if s.analytics == nil {
		return nil
	}
	end := s.now()
	stats, err := s.analytics.Volume(ctx, p.Mint, end.Add(-creatorFeeWindow).UnixMilli(), end.UnixMilli())
	if err != nil {
		s.logger.Warn("creator fee volume failed", zap.String("mint", p.Mint), zap.Error(err))
		return nil
	}
	total := fees.ApplyBps(stats.VolumeSOL, p.CreatorFeeBps)
	split, err := fees.Distribute(total, p.Distribution)
	if err != nil {
		s.logger.Warn("stored fee distribution invalid", zap.String("mint", p.Mint), zap.Error(err))
		return nil
	}
	return &CreatorFees{Window: creatorFeeWindow, Total: total, Split: split}
}

// List returns recently launched tokens.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*domain.Token, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.tokens.ListRecent(ctx, limit, offset)
}

// ListByCreator returns tokens launched by userID.
func (s *Service) ListByCreator(ctx context.Context, userID string) ([]*domain.Token, error) {
	return s.tokens.ListByCreator(ctx, userID)
}

// UpdateParameters changes creator parameters. Only the creator may do so.
func (s *Service) UpdateParameters(ctx context.Context, userID, mint string, in ParametersInput) (*domain.TokenParameters, error) {
	t, err := s.tokens.GetByMint(ctx, mint)
	if err != nil {
		return nil, err
	}
	if t.Creator != userID {
		return nil, ErrNotCreator
	}
	p, err := s.params.GetByMint(ctx, mint)
	if errors.Is(err, storage.ErrNotFound) {
		p = buildParameters(mint, ParametersInput{}, 0, 0)
	} else if err != nil {
		return nil, err
	}
	applyParameters(p, in)
	p.UpdatedAt = s.now().UnixMilli()
	if err := fees.ValidateParameters(p); err != nil {
		return nil, ErrInvalidToken.WithMessage(err.Error())
	}
	if err := s.params.Upsert(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("token parameters updated", zap.String("mint", mint), zap.String("user_id", userID))
	return p, nil
}

// RefreshResult counts what one RefreshPrices pass did.
type RefreshResult struct {
	Tokens   int
	Priced   int
	Migrated int
	Failed   int
}

// refreshPage is how many tokens RefreshPrices loads per page.
const refreshPage = 100

// RefreshPrices resolves a price for every token and stores the snapshot.
// Pump tokens whose bonding curve completed are moved to migrated.
func (s *Service) RefreshPrices(ctx context.Context) (RefreshResult, error) {
	var res RefreshResult
	for offset := 0; ; offset += refreshPage {
		page, err := s.tokens.ListRecent(ctx, refreshPage, offset)
		if err != nil {
			return res, fmt.Errorf("list tokens: %w", err)
		}
		mints := make([]string, len(page))
		for i, t := range page {
			mints[i] = t.Mint
		}
		quotes, errs := s.pricer.ResolveMany(ctx, mints)
		for i, t := range page {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Tokens++
			s.refreshOne(ctx, t, quotes[i], errs[i], &res)
		}
		if len(page) < refreshPage {
			break
		}
	}
	s.logger.Info("token prices refreshed",
		zap.Int("tokens", res.Tokens), zap.Int("priced", res.Priced),
		zap.Int("migrated", res.Migrated), zap.Int("failed", res.Failed))
	return res, nil
}

func (s *Service) refreshOne(ctx context.Context, t *domain.Token, q *domain.PriceQuote, err error, res *RefreshResult) {
	if err != nil {
		res.Failed++
		s.logger.Debug("price refresh failed", zap.String("mint", t.Mint), zap.Error(err))
	} else {
		mcap := q.PriceUSD * domain.TotalSupplyUnits
		if err := s.tokens.UpdatePrice(ctx, t.Mint, q, &mcap); err != nil {
			res.Failed++
			s.logger.Warn("store price snapshot failed", zap.String("mint", t.Mint), zap.Error(err))
		} else {
			res.Priced++
		}
	}

	if t.Platform != domain.PlatformPump || t.Stage != domain.StageBonding {
		return
	}
	done, err := CurveComplete(ctx, s.rpc, t.Mint)
	if err != nil {
		s.logger.Debug("bonding curve check failed", zap.String("mint", t.Mint), zap.Error(err))
		return
	}
	if done {
		if err := s.tokens.UpdateStage(ctx, t.Mint, domain.StageMigrated); err != nil {
			s.logger.Warn("mark migrated failed", zap.String("mint", t.Mint), zap.Error(err))
			return
		}
		res.Migrated++
		s.logger.Info("token migrated", zap.String("mint", t.Mint))
	}
}
