package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"aqua-launchpad/internal/domain"
	"aqua-launchpad/internal/lock"
	"aqua-launchpad/internal/observability"
	"aqua-launchpad/internal/solana"
	"aqua-launchpad/internal/storage"
)

// Claim pays the pending balance of userID to destination.
//
// The pending balance is zeroed with a conditional update before the single
// transfer attempt and restored if the transfer fails to send or fails on
// chain. A claim whose confirmation does not arrive in time is returned in
// status submitted and finished by Reconcile.
func (s *Service) Claim(ctx context.Context, userID, destination string) (*domain.ReferralClaim, error) {
	if err := solana.ValidateWalletAddress(destination); err != nil {
		return nil, ErrInvalidDestination.WithCause(err)
	}
	if s.payout == nil {
		return nil, ErrClaimsDisabled
	}
	if destination == s.payout.Address() {
		return nil, ErrInvalidDestination.WithMessage("destination is the payout wallet")
	}
	if !s.limiter.Allow(userID) {
		observability.RecordClaim("rate_limited")
		return nil, ErrRateLimited
	}

	release, err := s.locker.TryLock(ctx, "referral-claim:"+userID, s.cfg.LockTTL)
	if errors.Is(err, lock.ErrLocked) {
		observability.RecordClaim("in_progress")
		return nil, ErrClaimInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("acquire claim lock: %w", err)
	}
	defer release()
	observability.ClaimStarted()
	defer observability.ClaimFinished()

	ref, err := s.referrals.GetByUserID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrBelowMinimum
	}
	if err != nil {
		return nil, fmt.Errorf("get referral account: %w", err)
	}

	amount := ref.Pending
	if amount == 0 || amount < s.cfg.MinClaimLamports {
		observability.RecordClaim("below_minimum")
		return nil, ErrBelowMinimum
	}
	now := s.now()
	if ref.LastClaimAt != nil {
		next := time.UnixMilli(*ref.LastClaimAt).Add(s.cfg.Cooldown)
		if now.Before(next) {
			observability.RecordClaim("cooldown")
			wait := next.Sub(now).Round(time.Second)
			return nil, ErrCooldownActive.WithMessage(fmt.Sprintf("claim cooldown is active, retry in %s", wait))
		}
	}

	claim := &domain.ReferralClaim{
		ID:          s.newID(),
		UserID:      userID,
		Amount:      amount,
		Destination: destination,
		Status:      domain.ClaimPending,
		CreatedAt:   now.UnixMilli(),
		UpdatedAt:   now.UnixMilli(),
	}
	if err := s.claims.Insert(ctx, claim); err != nil {
		return nil, fmt.Errorf("record claim: %w", err)
	}
	log := s.logger.With(zap.String("claim_id", claim.ID), zap.String("user_id", userID), zap.Uint64("lamports", amount))

	// From here on every write must land even if the caller goes away.
	bg := context.WithoutCancel(ctx)

	if err := s.referrals.ZeroPendingIf(bg, userID, amount); err != nil {
		s.fail(bg, claim, domain.ClaimPending, nil, "reserve balance: "+err.Error())
		if errors.Is(err, storage.ErrConflict) {
			observability.RecordClaim("conflict")
			log.Warn("pending balance changed during claim")
			return claim, ErrConcurrentChange
		}
		return claim, fmt.Errorf("reserve balance: %w", err)
	}

	raw, sig, err := s.buildPayout(ctx, destination, amount)
	if err != nil {
		log.Error("payout build failed", zap.Error(err))
		s.compensate(bg, claim, domain.ClaimPending, nil, "build: "+err.Error())
		return claim, ErrPayoutFailed.WithCause(err)
	}
	log = log.With(zap.String("signature", sig))

	// A transfer is only sent once its signature is stored as submitted.
	if err := s.claims.Transition(bg, claim.ID, domain.ClaimPending, domain.ClaimSubmitted, &sig, nil, s.now().UnixMilli()); err != nil {
		log.Error("mark claim submitted failed", zap.Error(err))
		s.compensate(bg, claim, domain.ClaimPending, nil, "mark submitted: "+err.Error())
		return claim, fmt.Errorf("mark claim submitted: %w", err)
	}
	claim.Status = domain.ClaimSubmitted
	claim.Signature = &sig

	got, err := s.rpc.SendTransaction(ctx, raw, &solana.SendOpts{PreflightCommitment: s.confirmer.Commitment()})
	if err != nil {
		log.Error("payout send failed", zap.Error(err))
		s.compensate(bg, claim, domain.ClaimSubmitted, &sig, "send: "+err.Error())
		return claim, ErrPayoutFailed.WithCause(err)
	}
	if got != sig {
		log.Warn("node returned unexpected signature", zap.String("got", got))
	}
	observability.RecordTransactionSent("referral_claim")

	err = s.confirmer.Await(ctx, sig, s.cfg.ConfirmTimeout)
	var failed *solana.TxFailedError
	switch {
	case err == nil:
		s.complete(bg, claim)
		log.Info("claim completed")
		return claim, nil
	case errors.As(err, &failed):
		log.Warn("payout failed on chain", zap.Any("tx_err", failed.Err))
		s.compensate(bg, claim, domain.ClaimSubmitted, &sig, err.Error())
		return claim, ErrPayoutFailed.WithCause(err)
	default:
		// Timeout or caller cancellation: the transfer may still land.
		observability.RecordClaim("submitted")
		log.Warn("claim confirmation pending", zap.Error(err))
		return claim, nil
	}
}

// buildPayout builds and signs one SystemProgram transfer and returns it
// with its signature.
func (s *Service) buildPayout(ctx context.Context, destination string, amount uint64) ([]byte, string, error) {
	to, err := solana.ParsePublicKey(destination)
	if err != nil {
		return nil, "", err
	}
	bh, err := s.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("get blockhash: %w", err)
	}
	return solana.BuildTransfer(s.payout, to, amount, bh.Hash)
}

// complete moves a submitted claim to completed and books it. The status
// transition is the exactly-once guard against a concurrent Reconcile.
func (s *Service) complete(ctx context.Context, c *domain.ReferralClaim) bool {
	at := s.now().UnixMilli()
	if err := s.claims.Transition(ctx, c.ID, domain.ClaimSubmitted, domain.ClaimCompleted, nil, nil, at); err != nil {
		if !errors.Is(err, storage.ErrConflict) {
			s.logger.Error("mark claim completed failed", zap.String("claim_id", c.ID), zap.Error(err))
		}
		return false
	}
	c.Status = domain.ClaimCompleted
	c.UpdatedAt = at
	if err := s.referrals.RecordClaimed(ctx, c.UserID, c.Amount, at); err != nil {
		s.logger.Error("record claimed totals failed", zap.String("claim_id", c.ID), zap.Error(err))
	}
	observability.RecordClaim("completed")
	observability.RecordClaimPaid(c.Amount)
	return true
}

// compensate fails the claim and returns its amount to the pending balance.
func (s *Service) compensate(ctx context.Context, c *domain.ReferralClaim, from domain.ClaimStatus, sig *string, reason string) bool {
	if !s.fail(ctx, c, from, sig, reason) {
		return false
	}
	if err := s.referrals.RestorePending(ctx, c.UserID, c.Amount); err != nil {
		s.logger.Error("restore pending balance failed",
			zap.String("claim_id", c.ID), zap.Uint64("lamports", c.Amount), zap.Error(err))
		return false
	}
	observability.RecordClaimRollback()
	return true
}

// fail records the failure log on the claim.
func (s *Service) fail(ctx context.Context, c *domain.ReferralClaim, from domain.ClaimStatus, sig *string, reason string) bool {
	at := s.now().UnixMilli()
	if err := s.claims.Transition(ctx, c.ID, from, domain.ClaimFailed, sig, &reason, at); err != nil {
		if !errors.Is(err, storage.ErrConflict) {
			s.logger.Error("mark claim failed failed", zap.String("claim_id", c.ID), zap.Error(err))
		}
		return false
	}
	c.Status = domain.ClaimFailed
	c.Error = &reason
	c.UpdatedAt = at
	observability.RecordClaim("failed")
	return true
}

// ReconcileResult counts what one Reconcile pass did.
type ReconcileResult struct {
	Checked     int
	Completed   int
	Compensated int
}

// Reconcile settles submitted claims older than the confirm timeout using
// signature statuses.
func (s *Service) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult
	now := s.now()
	cutoff := now.Add(-s.cfg.ConfirmTimeout).UnixMilli()
	claims, err := s.claims.ListByStatusBefore(ctx, domain.ClaimSubmitted, cutoff)
	if err != nil {
		return res, fmt.Errorf("list submitted claims: %w", err)
	}

	for _, c := range claims {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Checked++
		if c.Signature == nil {
			if s.compensate(ctx, c, domain.ClaimSubmitted, nil, "submitted without signature") {
				res.Compensated++
			}
			continue
		}

		status, err := s.confirmer.Status(ctx, *c.Signature)
		if err != nil {
			s.logger.Warn("reconcile status failed", zap.String("claim_id", c.ID), zap.Error(err))
			continue
		}
		switch {
		case status.Failed():
			reason := fmt.Sprintf("transaction failed: %v", status.Err)
			if s.compensate(ctx, c, domain.ClaimSubmitted, c.Signature, reason) {
				res.Compensated++
			}
		case status.Reached(s.confirmer.Commitment()):
			if s.complete(ctx, c) {
				res.Completed++
			}
		case status == nil && now.Sub(time.UnixMilli(c.UpdatedAt)) >= s.cfg.DropAfter:
			// The blockhash has long expired; the transfer can no longer land.
			if s.compensate(ctx, c, domain.ClaimSubmitted, c.Signature, "transaction not found before expiry") {
				res.Compensated++
			}
		}
	}

	if res.Checked > 0 {
		s.logger.Info("claims reconciled",
			zap.Int("checked", res.Checked), zap.Int("completed", res.Completed), zap.Int("compensated", res.Compensated))
	}
	return res, nil
}
