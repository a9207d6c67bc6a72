package token

import (
	"testing"

	"github.com/stretchr/testify/require"

	"aqua-launchpad/internal/solana"
	"aqua-launchpad/internal/solana/stub"
)

func unsignedTx(t *testing.T, signers ...solana.PublicKey) []byte {
	t.Helper()
	tx := stub.UnsignedTransaction(signers...)
	missing, err := solana.MissingSigners(tx)
	require.NoError(t, err)
	require.Len(t, missing, len(signers))
	return tx
}
