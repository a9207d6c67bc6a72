package solana

import "context"

// WSClient defines Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeSignature waits for a single signature notification at the given commitment.
	// The returned cancel func drops the subscription; the channel is closed when the client closes.
	SubscribeSignature(ctx context.Context, signature string, commitment Commitment) (<-chan SignatureResult, func(), error)

	// Close closes the WebSocket connection.
	Close() error
}

// SignatureResult is delivered once the signature reaches the subscribed commitment.
type SignatureResult struct {
	Signature string
	Slot      int64
	Err       interface{} // transaction error, nil on success
}
