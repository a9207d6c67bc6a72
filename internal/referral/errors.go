package referral

import (
	"net/http"

	"aqua-launchpad/internal/apierr"
)

// Errors returned by the service. Each carries its API code; compare with errors.Is.
var (
	ErrInvalidDestination = apierr.New(http.StatusBadRequest, apierr.CodeInvalidRequest, "invalid destination wallet")
	ErrUnknownCode        = apierr.New(http.StatusNotFound, apierr.CodeNotFound, "referral code not found")
	ErrSelfReferral       = apierr.New(http.StatusBadRequest, apierr.CodeInvalidRequest, "cannot use your own referral code")
	ErrCircularReferral   = apierr.New(http.StatusBadRequest, apierr.CodeInvalidRequest, "referrer was referred by you")
	ErrAlreadyReferred    = apierr.New(http.StatusConflict, apierr.CodeConflict, "referrer already set")
	ErrRateLimited        = apierr.New(http.StatusTooManyRequests, apierr.CodeRateLimited, "too many claim attempts, try again later")
	ErrClaimInProgress    = apierr.New(http.StatusConflict, apierr.CodeClaimInProgress, "a claim is already in progress")
	ErrBelowMinimum       = apierr.New(http.StatusBadRequest, apierr.CodeBelowMinimum, "pending balance is below the minimum claim")
	ErrCooldownActive     = apierr.New(http.StatusTooManyRequests, apierr.CodeCooldownActive, "claim cooldown is active")
	ErrConcurrentChange   = apierr.New(http.StatusConflict, apierr.CodeConcurrentModification, "balance changed during claim, retry")
	ErrPayoutFailed       = apierr.New(http.StatusBadGateway, apierr.CodePayoutFailed, "payout transfer failed, balance restored")
	ErrClaimsDisabled     = apierr.New(http.StatusServiceUnavailable, apierr.CodeInternal, "claims are disabled")
)
