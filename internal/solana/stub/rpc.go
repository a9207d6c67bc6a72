// Package stub provides in-memory Solana clients for tests.
package stub

import (
	"context"
	"sync"

	"aqua-launchpad/internal/solana"
)

// DefaultBlockhash is a valid base58 32-byte hash returned by GetLatestBlockhash.
const DefaultBlockhash = "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N"

// RPCClient implements solana.RPCClient for testing.
// SendTransaction records the wire bytes and, unless SendErr is set, marks
// the signature with AutoStatus so confirmation can proceed.
type RPCClient struct {
	mu sync.Mutex

	Balances     map[string]uint64
	Accounts     map[string]*solana.AccountInfo
	Transactions map[string]*solana.Transaction
	Signatures   map[string][]solana.SignatureInfo
	Statuses     map[string]*solana.SignatureStatus

	Blockhash  string
	Sent       [][]byte
	SendErr    error
	StatusErr  error
	AutoStatus *solana.SignatureStatus // nil leaves sent signatures unknown
}

// NewRPCClient creates a new stub RPC client that confirms sent transactions.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Balances:     make(map[string]uint64),
		Accounts:     make(map[string]*solana.AccountInfo),
		Transactions: make(map[string]*solana.Transaction),
		Signatures:   make(map[string][]solana.SignatureInfo),
		Statuses:     make(map[string]*solana.SignatureStatus),
		Blockhash:    DefaultBlockhash,
		AutoStatus:   &solana.SignatureStatus{Slot: 1, ConfirmationStatus: solana.CommitmentFinalized},
	}
}

var _ solana.RPCClient = (*RPCClient)(nil)

// GetBalance returns the stored balance (0 if unknown).
func (c *RPCClient) GetBalance(_ context.Context, pubkey string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Balances[pubkey], nil
}

// GetLatestBlockhash returns Blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context) (*solana.Blockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &solana.Blockhash{Hash: c.Blockhash, LastValidBlockHeight: 1000}, nil
}

// SendTransaction records tx and returns its fee payer signature.
func (c *RPCClient) SendTransaction(_ context.Context, tx []byte, _ *solana.SendOpts) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SendErr != nil {
		return "", c.SendErr
	}
	sig, err := solana.TransactionSignature(tx)
	if err != nil {
		return "", err
	}
	c.Sent = append(c.Sent, append([]byte(nil), tx...))
	if c.AutoStatus != nil {
		status := *c.AutoStatus
		c.Statuses[sig] = &status
	}
	return sig, nil
}

// GetSignatureStatuses returns stored statuses; unknown signatures map to nil.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.StatusErr != nil {
		return nil, c.StatusErr
	}
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		if s, ok := c.Statuses[sig]; ok {
			status := *s
			out[i] = &status
		}
	}
	return out, nil
}

// GetSignaturesForAddress retrieves signatures for an address from the stub store.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sigs, ok := c.Signatures[address]
	if !ok {
		return nil, nil
	}

	// Apply limit if specified
	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		return sigs[:opts.Limit], nil
	}

	return sigs, nil
}

// GetTransaction retrieves a transaction by signature, nil if unknown.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Transactions[signature], nil
}

// GetAccountInfo retrieves an account, nil if unknown.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Accounts[pubkey], nil
}

// SetStatus overrides the status of a signature.
func (c *RPCClient) SetStatus(signature string, status *solana.SignatureStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status == nil {
		delete(c.Statuses, signature)
		return
	}
	c.Statuses[signature] = status
}

// SetBalance sets the balance of an account.
func (c *RPCClient) SetBalance(pubkey string, lamports uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Balances[pubkey] = lamports
}

// SetSendErr makes subsequent sends fail with err.
func (c *RPCClient) SetSendErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SendErr = err
}

// SentCount returns the number of accepted transactions.
func (c *RPCClient) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}

// AddSignatures adds signatures for an address to the stub store.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Signatures[address] = sigs
}
