package stub

import "aqua-launchpad/internal/solana"

// UnsignedTransaction builds a legacy transaction with an empty signature
// slot per signer, in order, and a single no-op system instruction. The
// first signer pays fees.
func UnsignedTransaction(signers ...solana.PublicKey) []byte {
	blockhash := solana.MustPublicKey(DefaultBlockhash)
	system := solana.MustPublicKey(solana.SystemProgramID)

	msg := []byte{byte(len(signers)), 0, 1}
	msg = append(msg, solana.EncodeCompactU16(len(signers)+1)...)
	for _, s := range signers {
		msg = append(msg, s.Bytes()...)
	}
	msg = append(msg, system.Bytes()...)
	msg = append(msg, blockhash.Bytes()...)
	msg = append(msg, solana.EncodeCompactU16(1)...)
	msg = append(msg, byte(len(signers)))            // program id index
	msg = append(msg, solana.EncodeCompactU16(0)...) // accounts
	msg = append(msg, solana.EncodeCompactU16(0)...) // data

	tx := solana.EncodeCompactU16(len(signers))
	tx = append(tx, make([]byte, 64*len(signers))...)
	return append(tx, msg...)
}
