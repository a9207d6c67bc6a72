package referral

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/lock"
	"aqua-launchpad/internal/solana"
	"aqua-launchpad/internal/solana/stub"
	"aqua-launchpad/internal/storage"
	"aqua-launchpad/internal/storage/memory"
)

type testEnv struct {
	svc    *Service
	users  *memory.UserStore
	refs   storage.ReferralStore
	claims *memory.ClaimStore
	rpc    *stub.RPCClient
	locker *lock.Memory
	payout *solana.Keypair
	clock  *time.Time
}

func newTestEnv(t *testing.T, mutate ...func(*Config, *Deps)) *testEnv {
	t.Helper()

	payout, err := solana.NewKeypair()
	require.NoError(t, err)

	env := &testEnv{
		users:  memory.NewUserStore(),
		refs:   memory.NewReferralStore(),
		claims: memory.NewClaimStore(),
		rpc:    stub.NewRPCClient(),
		locker: lock.NewMemory(),
		payout: payout,
	}
	cfg := DefaultConfig()
	cfg.ConfirmTimeout = 100 * time.Millisecond
	cfg.LockTTL = time.Minute
	cfg.ClaimsPerMinute = 600
	cfg.ClaimBurst = 100

	deps := Deps{
		Users:     env.users,
		Referrals: env.refs,
		Claims:    env.claims,
		RPC:       env.rpc,
		Confirmer: solana.NewConfirmer(env.rpc, nil, solana.CommitmentConfirmed, 10*time.Millisecond, nil),
		Locker:    env.locker,
		Payout:    payout,
	}
	for _, m := range mutate {
		m(&cfg, &deps)
	}
	env.refs = deps.Referrals

	env.svc = NewService(deps, cfg)
	clock := time.UnixMilli(1_700_000_000_000)
	env.clock = &clock
	env.svc.now = func() time.Time { return *env.clock }

	n := 0
	env.svc.newID = func() string {
		n++
		return fmt.Sprintf("claim-%d", n)
	}
	return env
}

func (e *testEnv) advance(d time.Duration) {
	*e.clock = e.clock.Add(d)
}

// referredPair registers a referrer and a referee bound to it, and credits
// the referrer with pending lamports.
func (e *testEnv) referredPair(t *testing.T, pending uint64) (referrer, referee string) {
	t.Helper()
	ctx := context.Background()

	ref, err := e.svc.EnsureUser(ctx, "referrer")
	require.NoError(t, err)
	_, err = e.svc.EnsureUser(ctx, "referee")
	require.NoError(t, err)
	_, err = e.svc.Attach(ctx, "referee", ref.ReferralCode)
	require.NoError(t, err)

	if pending > 0 {
		// share is 50%, so charge twice the pending amount
		got, err := e.svc.Accrue(ctx, "referee", pending*2)
		require.NoError(t, err)
		require.Equal(t, pending, got)
	}
	return "referrer", "referee"
}

func (e *testEnv) account(t *testing.T, userID string) *domain.Referral {
	t.Helper()
	r, err := e.refs.GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	return r
}

func newDestination(t *testing.T) string {
	t.Helper()
	kp, err := solana.NewKeypair()
	require.NoError(t, err)
	return kp.Address()
}

func TestEnsureUser_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u1, err := env.svc.EnsureUser(ctx, "user-1")
	require.NoError(t, err)
	u2, err := env.svc.EnsureUser(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, u1.ReferralCode, u2.ReferralCode)
	assert.Equal(t, CodeFor("user-1", 0), u1.ReferralCode)
	assert.Equal(t, u1.ReferralCode, env.account(t, "user-1").Code)
}

func TestAttach(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	referrer, err := env.svc.EnsureUser(ctx, "alice")
	require.NoError(t, err)

	u, err := env.svc.Attach(ctx, "bob", referrer.ReferralCode)
	require.NoError(t, err)
	require.NotNil(t, u.ReferredBy)
	assert.Equal(t, "alice", *u.ReferredBy)
	assert.Equal(t, 1, env.account(t, "alice").ReferredCount)

	_, err = env.svc.Attach(ctx, "bob", referrer.ReferralCode)
	assert.ErrorIs(t, err, ErrAlreadyReferred)
}

func TestAttach_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice, err := env.svc.EnsureUser(ctx, "alice")
	require.NoError(t, err)
	bob, err := env.svc.EnsureUser(ctx, "bob")
	require.NoError(t, err)

	_, err = env.svc.Attach(ctx, "alice", alice.ReferralCode)
	assert.ErrorIs(t, err, ErrSelfReferral)

	_, err = env.svc.Attach(ctx, "alice", "zzzzzzzz")
	assert.ErrorIs(t, err, ErrUnknownCode)

	_, err = env.svc.Attach(ctx, "alice", "0OIl") // not base58, wrong length
	assert.ErrorIs(t, err, ErrUnknownCode)

	_, err = env.svc.Attach(ctx, "bob", alice.ReferralCode)
	require.NoError(t, err)
	_, err = env.svc.Attach(ctx, "alice", bob.ReferralCode)
	assert.ErrorIs(t, err, ErrCircularReferral)
}

func TestAccrue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.EnsureUser(ctx, "loner")
	require.NoError(t, err)
	got, err := env.svc.Accrue(ctx, "loner", 1_000_000)
	require.NoError(t, err)
	assert.Zero(t, got, "no referrer, nothing accrued")

	env.referredPair(t, 0)
	got, err = env.svc.Accrue(ctx, "referee", 1_000_001)
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000), got)

	acct := env.account(t, "referrer")
	assert.Equal(t, uint64(500_000), acct.Pending)
	assert.Equal(t, uint64(500_000), acct.TotalEarned)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	env.referredPair(t, 25_000_000)

	st, err := env.svc.Stats(context.Background(), "referrer")
	require.NoError(t, err)
	assert.Equal(t, CodeFor("referrer", 0), st.Code)
	assert.Equal(t, 1, st.ReferredCount)
	assert.Equal(t, uint64(25_000_000), st.PendingLamports)
	assert.Equal(t, "0.025", st.PendingSOL)
	assert.True(t, st.CanClaim)
	assert.Nil(t, st.NextClaimAt)
	assert.Empty(t, st.RecentClaims)
}

func TestClaim_Success(t *testing.T) {
	env := newTestEnv(t)
	referrer, _ := env.referredPair(t, 20_000_000)
	dest := newDestination(t)

	claim, err := env.svc.Claim(context.Background(), referrer, dest)
	require.NoError(t, err)

	assert.Equal(t, domain.ClaimCompleted, claim.Status)
	require.NotNil(t, claim.Signature)
	assert.Equal(t, uint64(20_000_000), claim.Amount)
	assert.Equal(t, 1, env.rpc.SentCount())

	acct := env.account(t, referrer)
	assert.Zero(t, acct.Pending)
	assert.Equal(t, uint64(20_000_000), acct.TotalClaimed)
	require.NotNil(t, acct.LastClaimAt)
	assert.Equal(t, env.clock.UnixMilli(), *acct.LastClaimAt)

	stored, err := env.claims.GetByID(context.Background(), claim.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimCompleted, stored.Status)
	assert.Equal(t, dest, stored.Destination)
}

func TestClaim_InvalidDestination(t *testing.T) {
	env := newTestEnv(t)
	referrer, _ := env.referredPair(t, 20_000_000)

	_, err := env.svc.Claim(context.Background(), referrer, "not-base58-0OIl")
	assert.ErrorIs(t, err, ErrInvalidDestination)

	pda, _, err := solana.FindProgramAddress([][]byte{[]byte("vault")}, solana.MustPublicKey(solana.SystemProgramID))
	require.NoError(t, err)
	_, err = env.svc.Claim(context.Background(), referrer, pda.String())
	assert.ErrorIs(t, err, ErrInvalidDestination, "off-curve addresses cannot receive payouts")

	_, err = env.svc.Claim(context.Background(), referrer, env.payout.Address())
	assert.ErrorIs(t, err, ErrInvalidDestination)

	assert.Zero(t, env.rpc.SentCount())
}

func TestClaim_BelowMinimum(t *testing.T) {
	env := newTestEnv(t)
	referrer, _ := env.referredPair(t, 1_000)

	_, err := env.svc.Claim(context.Background(), referrer, newDestination(t))
	assert.ErrorIs(t, err, ErrBelowMinimum)
	assert.Equal(t, uint64(1_000), env.account(t, referrer).Pending)
}

func TestClaim_Cooldown(t *testing.T) {
	env := newTestEnv(t)
	referrer, referee := env.referredPair(t, 20_000_000)
	ctx := context.Background()

	_, err := env.svc.Claim(ctx, referrer, newDestination(t))
	require.NoError(t, err)

	_, err = env.svc.Accrue(ctx, referee, 40_000_000)
	require.NoError(t, err)

	env.advance(30 * time.Minute)
	_, err = env.svc.Claim(ctx, referrer, newDestination(t))
	assert.ErrorIs(t, err, ErrCooldownActive)

	env.advance(31 * time.Minute)
	claim, err := env.svc.Claim(ctx, referrer, newDestination(t))
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimCompleted, claim.Status)
}

func TestClaim_SendFailureRestoresBalance(t *testing.T) {
	env := newTestEnv(t)
	referrer, _ := env.referredPair(t, 20_000_000)
	env.rpc.SetSendErr(errors.New("blockhash not found"))

	claim, err := env.svc.Claim(context.Background(), referrer, newDestination(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPayoutFailed)

	require.NotNil(t, claim)
	assert.Equal(t, domain.ClaimFailed, claim.Status)
	require.NotNil(t, claim.Error)
	assert.Contains(t, *claim.Error, "blockhash not found")

	acct := env.account(t, referrer)
	assert.Equal(t, uint64(20_000_000), acct.Pending)
	assert.Zero(t, acct.TotalClaimed)
	assert.Nil(t, acct.LastClaimAt)
}

// flakyClaims fails the first pending -> submitted transition.
type flakyClaims struct {
	storage.ClaimStore
	failed bool
}

func (f *flakyClaims) Transition(ctx context.Context, id string, from, to domain.ClaimStatus, sig, errMsg *string, at int64) error {
	if !f.failed && from == domain.ClaimPending && to == domain.ClaimSubmitted {
		f.failed = true
		return errors.New("connection reset")
	}
	return f.ClaimStore.Transition(ctx, id, from, to, sig, errMsg, at)
}

func TestClaim_SubmitRecordFailureSendsNothing(t *testing.T) {
	env := newTestEnv(t, func(_ *Config, d *Deps) {
		d.Claims = &flakyClaims{ClaimStore: d.Claims}
	})
	referrer, _ := env.referredPair(t, 20_000_000)
	ctx := context.Background()

	claim, err := env.svc.Claim(ctx, referrer, newDestination(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Zero(t, env.rpc.SentCount(), "no transfer without a recorded signature")

	stored, err := env.claims.GetByID(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimFailed, stored.Status)
	assert.Equal(t, uint64(20_000_000), env.account(t, referrer).Pending)

	// The next attempt goes through and is not blocked by a cooldown.
	claim, err = env.svc.Claim(ctx, referrer, newDestination(t))
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimCompleted, claim.Status)
	assert.Equal(t, 1, env.rpc.SentCount())
}

func TestClaim_SignatureRecordedBeforeSend(t *testing.T) {
	env := newTestEnv(t)
	referrer, _ := env.referredPair(t, 20_000_000)
	env.rpc.SetSendErr(errors.New("node unavailable"))
	ctx := context.Background()

	claim, err := env.svc.Claim(ctx, referrer, newDestination(t))
	assert.ErrorIs(t, err, ErrPayoutFailed)

	stored, err := env.claims.GetByID(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimFailed, stored.Status)
	require.NotNil(t, stored.Signature)
	assert.Equal(t, *claim.Signature, *stored.Signature)
	assert.Equal(t, uint64(20_000_000), env.account(t, referrer).Pending)
}

func TestClaim_OnChainFailureRestoresBalance(t *testing.T) {
	env := newTestEnv(t)
	referrer, _ := env.referredPair(t, 20_000_000)
	env.rpc.AutoStatus = &solana.SignatureStatus{
		Slot:               5,
		Err:                map[string]interface{}{"InstructionError": []interface{}{0, "InsufficientFunds"}},
		ConfirmationStatus: solana.CommitmentConfirmed,
	}

	claim, err := env.svc.Claim(context.Background(), referrer, newDestination(t))
	assert.ErrorIs(t, err, ErrPayoutFailed)
	assert.Equal(t, domain.ClaimFailed, claim.Status)
	assert.NotNil(t, claim.Signature)
	assert.Equal(t, uint64(20_000_000), env.account(t, referrer).Pending)
}

func TestClaim_TimeoutThenReconcileCompletes(t *testing.T) {
	env := newTestEnv(t)
	referrer, _ := env.referredPair(t, 20_000_000)
	env.rpc.AutoStatus = nil // node never reports the signature in time

	claim, err := env.svc.Claim(context.Background(), referrer, newDestination(t))
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimSubmitted, claim.Status)
	assert.Zero(t, env.account(t, referrer).Pending, "balance stays reserved while submitted")

	// Too early: nothing to reconcile.
	res, err := env.svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Checked)

	env.rpc.SetStatus(*claim.Signature, &solana.SignatureStatus{Slot: 9, ConfirmationStatus: solana.CommitmentFinalized})
	env.advance(time.Second)

	res, err = env.svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Checked: 1, Completed: 1}, res)

	acct := env.account(t, referrer)
	assert.Equal(t, uint64(20_000_000), acct.TotalClaimed)
	stored, err := env.claims.GetByID(context.Background(), claim.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimCompleted, stored.Status)

	// A second pass is a no-op.
	res, err = env.svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Checked)
}

func TestReconcile_CompensatesFailedAndExpired(t *testing.T) {
	env := newTestEnv(t)
	referrer, _ := env.referredPair(t, 20_000_000)
	env.rpc.AutoStatus = nil
	ctx := context.Background()

	failed, err := env.svc.Claim(ctx, referrer, newDestination(t))
	require.NoError(t, err)
	env.rpc.SetStatus(*failed.Signature, &solana.SignatureStatus{
		Slot: 3, Err: "InstructionError", ConfirmationStatus: solana.CommitmentConfirmed,
	})
	env.advance(time.Second)
	res, err := env.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Compensated)
	assert.Equal(t, uint64(20_000_000), env.account(t, referrer).Pending)

	// Second claim is never seen by the node and expires.
	lost, err := env.svc.Claim(ctx, referrer, newDestination(t))
	require.NoError(t, err)
	require.Equal(t, domain.ClaimSubmitted, lost.Status)

	env.advance(time.Second)
	res, err = env.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Checked: 1}, res, "unknown but not yet expired")

	env.advance(DefaultConfig().DropAfter)
	res, err = env.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Compensated)
	assert.Equal(t, uint64(20_000_000), env.account(t, referrer).Pending)

	stored, err := env.claims.GetByID(ctx, lost.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimFailed, stored.Status)
	require.NotNil(t, stored.Error)
}

func TestClaim_InProgress(t *testing.T) {
	env := newTestEnv(t)
	referrer, _ := env.referredPair(t, 20_000_000)

	release, err := env.locker.TryLock(context.Background(), "referral-claim:"+referrer, time.Minute)
	require.NoError(t, err)
	defer release()

	_, err = env.svc.Claim(context.Background(), referrer, newDestination(t))
	assert.ErrorIs(t, err, ErrClaimInProgress)
	assert.Zero(t, env.rpc.SentCount())
}

func TestClaim_RateLimited(t *testing.T) {
	env := newTestEnv(t, func(c *Config, _ *Deps) {
		c.ClaimsPerMinute = 1
		c.ClaimBurst = 1
	})
	referrer, _ := env.referredPair(t, 1_000)

	_, err := env.svc.Claim(context.Background(), referrer, newDestination(t))
	assert.ErrorIs(t, err, ErrBelowMinimum)
	_, err = env.svc.Claim(context.Background(), referrer, newDestination(t))
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestClaim_ConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	referrer, _ := env.referredPair(t, 20_000_000)

	dests := make([]string, 8)
	for i := range dests {
		dests[i] = newDestination(t)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	completed := 0
	for _, dest := range dests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := env.svc.Claim(context.Background(), referrer, dest)
			if err == nil && c.Status == domain.ClaimCompleted {
				mu.Lock()
				completed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, env.rpc.SentCount())
	acct := env.account(t, referrer)
	assert.Zero(t, acct.Pending)
	assert.Equal(t, uint64(20_000_000), acct.TotalClaimed)
}

// racingReferrals credits the account between the read and the reservation.
type racingReferrals struct {
	storage.ReferralStore
	once sync.Once
}

func (r *racingReferrals) GetByUserID(ctx context.Context, userID string) (*domain.Referral, error) {
	ref, err := r.ReferralStore.GetByUserID(ctx, userID)
	if err == nil && ref.Pending > 0 {
		r.once.Do(func() { _ = r.ReferralStore.Accrue(ctx, userID, 1) })
	}
	return ref, err
}

func TestClaim_ConcurrentModification(t *testing.T) {
	racing := &racingReferrals{ReferralStore: memory.NewReferralStore()}
	env := newTestEnv(t, func(_ *Config, d *Deps) { d.Referrals = racing })
	referrer, _ := env.referredPair(t, 20_000_000)

	claim, err := env.svc.Claim(context.Background(), referrer, newDestination(t))
	assert.ErrorIs(t, err, ErrConcurrentChange)
	require.NotNil(t, claim)
	assert.Equal(t, domain.ClaimFailed, claim.Status)
	assert.Zero(t, env.rpc.SentCount())
	assert.Equal(t, uint64(20_000_001), env.account(t, referrer).Pending)
}

func TestClaim_Disabled(t *testing.T) {
	env := newTestEnv(t, func(_ *Config, d *Deps) { d.Payout = nil })
	referrer, _ := env.referredPair(t, 20_000_000)

	_, err := env.svc.Claim(context.Background(), referrer, newDestination(t))
	assert.ErrorIs(t, err, ErrClaimsDisabled)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	c := DefaultConfig()
	c.ShareBps = 10_001
	assert.Error(t, c.Validate())

	c = DefaultConfig()
	c.LockTTL = c.ConfirmTimeout
	assert.Error(t, c.Validate())
}

func TestCodeFor(t *testing.T) {
	c := CodeFor("user-1", 0)
	assert.Len(t, c, CodeLength)
	assert.True(t, ValidCode(c))
	assert.Equal(t, c, CodeFor("user-1", 0))
	assert.NotEqual(t, c, CodeFor("user-1", 1))
	assert.NotEqual(t, c, CodeFor("user-2", 0))
	assert.Equal(t, c, NormalizeCode("  "+c+"\n"))
}
