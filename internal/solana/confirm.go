package solana

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"aqua-launchpad/internal/observability"
)

// ErrConfirmTimeout is returned when a signature does not reach the
// requested commitment before the deadline. The transaction may still land.
var ErrConfirmTimeout = errors.New("confirmation timed out")

// TxFailedError reports a transaction that landed with an on-chain error.
type TxFailedError struct {
	Signature string
	Err       interface{}
}

func (e *TxFailedError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Signature, e.Err)
}

// Confirmer waits for signatures to reach a commitment level.
// It listens on the WebSocket subscription when available and always
// polls getSignatureStatuses as a fallback.
type Confirmer struct {
	rpc          RPCClient
	ws           WSClient
	commitment   Commitment
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewConfirmer creates a confirmer. ws may be nil for polling only.
func NewConfirmer(rpc RPCClient, ws WSClient, commitment Commitment, pollInterval time.Duration, logger *zap.Logger) *Confirmer {
	if !commitment.IsValid() {
		commitment = CommitmentConfirmed
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Confirmer{
		rpc:          rpc,
		ws:           ws,
		commitment:   commitment,
		pollInterval: pollInterval,
		logger:       logger.Named("confirmer"),
	}
}

// Await blocks until signature reaches the configured commitment, fails on
// chain, or timeout elapses. Returns nil on success, *TxFailedError on an
// on-chain error, ErrConfirmTimeout on deadline.
func (c *Confirmer) Await(ctx context.Context, signature string, timeout time.Duration) (err error) {
	start := time.Now()
	defer func() {
		result := "confirmed"
		var failed *TxFailedError
		switch {
		case errors.As(err, &failed):
			result = "failed"
		case errors.Is(err, ErrConfirmTimeout):
			result = "timeout"
		case err != nil:
			result = "error"
		}
		observability.RecordConfirmation(result, time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var notify <-chan SignatureResult
	if c.ws != nil {
		ch, unsubscribe, subErr := c.ws.SubscribeSignature(ctx, signature, c.commitment)
		if subErr != nil {
			c.logger.Warn("signature subscription failed, polling only",
				zap.String("signature", signature), zap.Error(subErr))
		} else {
			notify = ch
			defer unsubscribe()
		}
	}

	// Check once up front: the signature may have landed before subscribing.
	if done, err := c.poll(ctx, signature); done {
		return err
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case res, ok := <-notify:
			if !ok {
				notify = nil
				continue
			}
			if res.Err != nil {
				return &TxFailedError{Signature: signature, Err: res.Err}
			}
			return nil
		case <-ticker.C:
			if done, err := c.poll(ctx, signature); done {
				return err
			}
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrConfirmTimeout
			}
			return ctx.Err()
		}
	}
}

// Status returns the current status of a signature, nil if unknown to the node.
func (c *Confirmer) Status(ctx context.Context, signature string) (*SignatureStatus, error) {
	statuses, err := c.rpc.GetSignatureStatuses(ctx, []string{signature})
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return nil, nil
	}
	return statuses[0], nil
}

// Commitment returns the level the confirmer waits for.
func (c *Confirmer) Commitment() Commitment {
	return c.commitment
}

// poll reports done=true with the terminal result once the status is decisive.
// RPC errors are logged and retried on the next tick.
func (c *Confirmer) poll(ctx context.Context, signature string) (bool, error) {
	status, err := c.Status(ctx, signature)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Debug("signature status poll failed",
				zap.String("signature", signature), zap.Error(err))
		}
		return false, nil
	}
	if status.Failed() {
		return true, &TxFailedError{Signature: signature, Err: status.Err}
	}
	if status.Reached(c.commitment) {
		return true, nil
	}
	return false, nil
}
