package solana

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

const signatureLength = 64

// ErrMalformedTransaction is returned when a serialized transaction cannot be parsed.
var ErrMalformedTransaction = errors.New("malformed transaction")

// EncodeCompactU16 encodes n in the shortvec format used by transaction wire encoding.
func EncodeCompactU16(n int) []byte {
	var out []byte
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

// DecodeCompactU16 decodes a shortvec value and returns it with the number of bytes read.
func DecodeCompactU16(b []byte) (int, int, error) {
	var v, shift int
	for i := 0; i < 3; i++ {
		if i >= len(b) {
			return 0, 0, fmt.Errorf("%w: truncated compact-u16", ErrMalformedTransaction)
		}
		v |= int(b[i]&0x7f) << shift
		if b[i]&0x80 == 0 {
			if v > 0xffff {
				return 0, 0, fmt.Errorf("%w: compact-u16 overflow", ErrMalformedTransaction)
			}
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("%w: compact-u16 too long", ErrMalformedTransaction)
}

// BuildTransfer builds and signs a legacy SystemProgram transfer.
// Returns the wire bytes and the transaction signature.
func BuildTransfer(from *Keypair, to PublicKey, lamports uint64, recentBlockhash string) ([]byte, string, error) {
	if lamports == 0 {
		return nil, "", errors.New("transfer amount must be positive")
	}
	if from.PublicKey() == to {
		return nil, "", errors.New("transfer source and destination are equal")
	}
	blockhash, err := base58.Decode(recentBlockhash)
	if err != nil || len(blockhash) != 32 {
		return nil, "", fmt.Errorf("invalid blockhash %q", recentBlockhash)
	}

	fromKey := from.PublicKey()
	system := MustPublicKey(SystemProgramID)

	// SystemInstruction::Transfer = 2, followed by u64 lamports.
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], 2)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	msg := []byte{1, 0, 1} // one signer, no readonly signers, one readonly unsigned (system program)
	msg = append(msg, EncodeCompactU16(3)...)
	msg = append(msg, fromKey[:]...)
	msg = append(msg, to[:]...)
	msg = append(msg, system[:]...)
	msg = append(msg, blockhash...)
	msg = append(msg, EncodeCompactU16(1)...)
	msg = append(msg, 2) // program id index
	msg = append(msg, EncodeCompactU16(2)...)
	msg = append(msg, 0, 1)
	msg = append(msg, EncodeCompactU16(len(data))...)
	msg = append(msg, data...)

	sig := from.Sign(msg)
	tx := append(EncodeCompactU16(1), sig...)
	tx = append(tx, msg...)
	return tx, base58.Encode(sig), nil
}

// parsedTx locates the signature slots and signer keys of a serialized transaction.
type parsedTx struct {
	sigCount   int
	sigOffset  int
	msgOffset  int
	signerKeys []PublicKey
}

func parseTransaction(raw []byte) (*parsedTx, error) {
	sigCount, n, err := DecodeCompactU16(raw)
	if err != nil {
		return nil, err
	}
	p := &parsedTx{sigCount: sigCount, sigOffset: n}
	p.msgOffset = n + sigCount*signatureLength
	if p.msgOffset >= len(raw) {
		return nil, fmt.Errorf("%w: message missing", ErrMalformedTransaction)
	}

	msg := raw[p.msgOffset:]
	// Versioned messages carry a prefix byte with the high bit set.
	if msg[0]&0x80 != 0 {
		if msg[0]&0x7f != 0 {
			return nil, fmt.Errorf("%w: unsupported message version %d", ErrMalformedTransaction, msg[0]&0x7f)
		}
		msg = msg[1:]
	}
	if len(msg) < 3 {
		return nil, fmt.Errorf("%w: header truncated", ErrMalformedTransaction)
	}
	required := int(msg[0])
	if required != sigCount {
		return nil, fmt.Errorf("%w: header requires %d signatures, %d slots present", ErrMalformedTransaction, required, sigCount)
	}

	keyCount, kn, err := DecodeCompactU16(msg[3:])
	if err != nil {
		return nil, err
	}
	keys := msg[3+kn:]
	if keyCount < required || len(keys) < keyCount*32 {
		return nil, fmt.Errorf("%w: account keys truncated", ErrMalformedTransaction)
	}
	for i := 0; i < required; i++ {
		var pk PublicKey
		copy(pk[:], keys[i*32:(i+1)*32])
		p.signerKeys = append(p.signerKeys, pk)
	}
	return p, nil
}

// SignTransaction signs an externally built legacy or v0 transaction.
// Each signer is placed in the slot matching its position among the
// required signers; other slots are left untouched.
func SignTransaction(raw []byte, signers ...*Keypair) ([]byte, error) {
	p, err := parseTransaction(raw)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(raw))
	copy(out, raw)
	msg := out[p.msgOffset:]

	for _, signer := range signers {
		idx := -1
		for i, key := range p.signerKeys {
			if key == signer.PublicKey() {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%s is not a required signer", signer.Address())
		}
		sig := signer.Sign(msg)
		copy(out[p.sigOffset+idx*signatureLength:], sig)
	}
	return out, nil
}

// TransactionSignature returns the fee payer signature, which identifies the transaction.
func TransactionSignature(raw []byte) (string, error) {
	p, err := parseTransaction(raw)
	if err != nil {
		return "", err
	}
	if p.sigCount == 0 {
		return "", fmt.Errorf("%w: no signatures", ErrMalformedTransaction)
	}
	return base58.Encode(raw[p.sigOffset : p.sigOffset+signatureLength]), nil
}

// MissingSigners lists required signers whose slot is still empty.
func MissingSigners(raw []byte) ([]string, error) {
	p, err := parseTransaction(raw)
	if err != nil {
		return nil, err
	}
	var empty [signatureLength]byte
	var missing []string
	for i, key := range p.signerKeys {
		start := p.sigOffset + i*signatureLength
		if [signatureLength]byte(raw[start:start+signatureLength]) == empty {
			missing = append(missing, key.String())
		}
	}
	return missing, nil
}
