package token

import (
	"context"
	"encoding/base64"
	"fmt"

	"aqua-launchpad/internal/solana"
)

// PumpProgramID is the pump.fun bonding curve program.
const PumpProgramID = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

// Bonding curve account layout: 8-byte discriminator, five u64 fields, then
// the complete flag.
const curveCompleteOffset = 8 + 5*8

// BondingCurveAddress derives the curve PDA of a pump mint.
func BondingCurveAddress(mint string) (solana.PublicKey, error) {
	m, err := solana.ParsePublicKey(mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	pda, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("bonding-curve"), m.Bytes()},
		solana.MustPublicKey(PumpProgramID),
	)
	return pda, err
}

// CurveComplete reports whether the bonding curve of mint has completed,
// i.e. the token migrated to an AMM. A missing account reports false.
func CurveComplete(ctx context.Context, rpc solana.RPCClient, mint string) (bool, error) {
	pda, err := BondingCurveAddress(mint)
	if err != nil {
		return false, err
	}
	info, err := rpc.GetAccountInfo(ctx, pda.String())
	if err != nil {
		return false, fmt.Errorf("get bonding curve: %w", err)
	}
	if info == nil {
		return false, nil
	}
	data, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return false, fmt.Errorf("decode bonding curve: %w", err)
	}
	if len(data) <= curveCompleteOffset {
		return false, fmt.Errorf("bonding curve account too short: %d bytes", len(data))
	}
	return data[curveCompleteOffset] == 1, nil
}
