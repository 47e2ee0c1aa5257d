package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the length of an [R || S || V] signature.
const SignatureLength = crypto.SignatureLength

// Signature is a recoverable secp256k1 signature in y-parity form.
type Signature struct {
	R       *big.Int
	S       *big.Int
	YParity bool
}

// SignatureFromBytes parses a 65-byte [R || S || V] signature. V may be 0/1 or
// the legacy 27/28.
func SignatureFromBytes(sig []byte) (Signature, error) {
	if len(sig) != SignatureLength {
		return Signature{}, fmt.Errorf("signature must be %d bytes, got %d", SignatureLength, len(sig))
	}
	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return Signature{}, fmt.Errorf("invalid signature recovery id %d", sig[64])
	}
	return Signature{
		R:       new(big.Int).SetBytes(sig[:32]),
		S:       new(big.Int).SetBytes(sig[32:64]),
		YParity: v == 1,
	}, nil
}

// Bytes returns the signature as [R || S || V] with V in {0, 1}.
func (s Signature) Bytes() []byte {
	out := make([]byte, SignatureLength)
	math.ReadBits(s.r(), out[:32])
	math.ReadBits(s.s(), out[32:64])
	out[64] = s.V()
	return out
}

// V returns the recovery id as 0 or 1.
func (s Signature) V() byte {
	if s.YParity {
		return 1
	}
	return 0
}

func (s Signature) r() *big.Int {
	if s.R == nil {
		return new(big.Int)
	}
	return s.R
}

func (s Signature) s() *big.Int {
	if s.S == nil {
		return new(big.Int)
	}
	return s.S
}

// Validate checks the signature values against the homestead rules.
func (s Signature) Validate() error {
	if !crypto.ValidateSignatureValues(s.V(), s.r(), s.s(), true) {
		return fmt.Errorf("invalid signature values")
	}
	return nil
}

type signatureJSON struct {
	R       *hexutil.Big    `json:"r"`
	S       *hexutil.Big    `json:"s"`
	YParity *hexutil.Uint64 `json:"yParity,omitempty"`
	V       *hexutil.Uint64 `json:"v,omitempty"`
}

func (s Signature) MarshalJSON() ([]byte, error) {
	parity := hexutil.Uint64(s.V())
	return json.Marshal(signatureJSON{
		R:       (*hexutil.Big)(s.r()),
		S:       (*hexutil.Big)(s.s()),
		YParity: &parity,
		V:       &parity,
	})
}

// UnmarshalJSON accepts either the {r, s, yParity|v} object or a 65-byte hex
// string as returned by eth_signTypedData_v4.
func (s *Signature) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var raw hexutil.Bytes
		if err := json.Unmarshal(b, &raw); err != nil {
			return fmt.Errorf("invalid signature: %w", err)
		}
		sig, err := SignatureFromBytes(raw)
		if err != nil {
			return err
		}
		*s = sig
		return nil
	}
	var dec signatureJSON
	if err := json.Unmarshal(b, &dec); err != nil {
		return err
	}
	if dec.R == nil || dec.S == nil {
		return fmt.Errorf("signature missing r or s")
	}
	parity := dec.YParity
	if parity == nil {
		parity = dec.V
	}
	if parity == nil {
		return fmt.Errorf("signature missing yParity")
	}
	v := uint64(*parity)
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return fmt.Errorf("invalid signature parity %d", uint64(*parity))
	}
	*s = Signature{
		R:       new(big.Int).Set(dec.R.ToInt()),
		S:       new(big.Int).Set(dec.S.ToInt()),
		YParity: v == 1,
	}
	return nil
}
