package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func fixtureTx(version uint8) *TxSeismic {
	to := common.HexToAddress("0xd3e8763675e4c425df46cc3b5c0f6cbdac396046")
	var pk EncryptionPublicKey
	copy(pk[:], hexutil.MustDecode("0x028e76821eb4d77fd30223ca971c49738eb5b5b71eabe93f96b348fdce788ae5a0"))
	return &TxSeismic{
		ChainID:          4,
		Nonce:            2,
		GasPrice:         big.NewInt(1_000_000_000),
		Gas:              100_000,
		To:               &to,
		Value:            uint256.NewInt(1_000_000_000_000_000),
		EncryptionPubkey: pk,
		EIP712Version:    version,
		Input:            hexutil.MustDecode("0xa22cb4650000000000000000000000005eee75727d804a2b13038928d36f8b188945a57a0000000000000000000000000000000000000000000000000000000000000000"),
	}
}

func fixtureSig() Signature {
	return Signature{
		R:       hexutil.MustDecodeBig("0x840cfc572845f5786e702984c2a582528cad4b49b2a10b9db1be7fca90058565"),
		S:       hexutil.MustDecodeBig("0x25e7109ceb98168d95b09b18bbf6b685130e0562f233877d492b94eee0c5b6d1"),
		YParity: false,
	}
}

func TestLegacySignedFixture(t *testing.T) {
	stx, err := NewSignedTx(fixtureTx(0), fixtureSig())
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x1ecf0fb8b70b4e94745ac04bd99f07321199fce3a8f58b3bc3f9c9c837e47a73"), stx.Hash)

	sender, err := stx.Sender()
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0xe71a5dd0b0471f425f48ca05376f2251d58af0ea"), sender)
}

func TestEIP712SignedFixture(t *testing.T) {
	tx := fixtureTx(1)

	hash, err := tx.SigningHash()
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x261fbcf5298b1f7583525a9e29d6766dfcd97b379915b0b95e98d4face1d9182"), hash)

	stx, err := NewSignedTx(tx, fixtureSig())
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x539439da42159d6f7220ad3e5590a05c2193a99d8b9ba0316b2c6f622f9cf7c6"), stx.Hash)

	sender, err := stx.Sender()
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0x69e069c42cb8a5332276613dfbd4823c0ed8043d"), sender)
}

func TestSigningModeIsChosenByVersion(t *testing.T) {
	legacy, err := fixtureTx(0).SigningHash()
	require.NoError(t, err)
	typed, err := fixtureTx(1).SigningHash()
	require.NoError(t, err)
	require.NotEqual(t, legacy, typed)

	payload, err := fixtureTx(0).EncodeForSigning()
	require.NoError(t, err)
	require.Equal(t, byte(SeismicTxType), payload[0])
}

func TestCanonicalHashIsDeterministic(t *testing.T) {
	a, err := fixtureTx(0).Hash(fixtureSig())
	require.NoError(t, err)
	b, err := fixtureTx(0).Hash(fixtureSig())
	require.NoError(t, err)
	require.Equal(t, a, b)

	other := fixtureTx(0)
	other.Nonce++
	c, err := other.Hash(fixtureSig())
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}

func TestFieldsRoundTrip(t *testing.T) {
	cases := map[string]*TxSeismic{
		"call":   fixtureTx(0),
		"eip712": fixtureTx(1),
		"create": func() *TxSeismic {
			tx := fixtureTx(0)
			tx.To = nil
			return tx
		}(),
		"zero values": {
			GasPrice: new(big.Int),
			Value:    new(uint256.Int),
		},
		"large input": func() *TxSeismic {
			tx := fixtureTx(0)
			tx.Input = bytes.Repeat([]byte{0xab}, 4096)
			tx.Value = new(uint256.Int).SetAllOne()
			tx.GasPrice = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
			return tx
		}(),
	}
	for name, tx := range cases {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, tx.EncodeFields(&buf))
			require.Equal(t, tx.FieldsEncodedLength(), buf.Len())

			dec, err := DecodeFields(buf.Bytes())
			require.NoError(t, err)
			requireTxEqual(t, tx, dec)

			wire, err := rlp.EncodeToBytes(tx)
			require.NoError(t, err)
			require.Equal(t, tx.WireSize(), len(wire))

			var fromList TxSeismic
			require.NoError(t, rlp.DecodeBytes(wire, &fromList))
			requireTxEqual(t, tx, &fromList)
		})
	}
}

func requireTxEqual(t *testing.T, want, got *TxSeismic) {
	t.Helper()
	require.Equal(t, want.ChainID, got.ChainID)
	require.Equal(t, want.Nonce, got.Nonce)
	require.Zero(t, want.gasPrice().Cmp(got.gasPrice()))
	require.Equal(t, want.Gas, got.Gas)
	require.Equal(t, want.To, got.To)
	require.True(t, want.value().Eq(got.value()))
	require.Equal(t, want.EncryptionPubkey, got.EncryptionPubkey)
	require.Equal(t, want.EIP712Version, got.EIP712Version)
	require.True(t, bytes.Equal(want.Input, got.Input))
}

func TestDecodeFieldsErrors(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, fixtureTx(0).EncodeFields(&buf))
	good := buf.Bytes()

	t.Run("trailing bytes", func(t *testing.T) {
		_, err := DecodeFields(append(common.CopyBytes(good), 0x01))
		var fe *FieldDecodeError
		require.ErrorAs(t, err, &fe)
		require.Equal(t, "trailing", fe.Field)
		require.ErrorIs(t, err, ErrTrailingBytes)
	})

	t.Run("truncated input", func(t *testing.T) {
		_, err := DecodeFields(good[:len(good)-10])
		var fe *FieldDecodeError
		require.ErrorAs(t, err, &fe)
		require.Equal(t, "input", fe.Field)
	})

	t.Run("short encryption key", func(t *testing.T) {
		tx := fixtureTx(0)
		var b bytes.Buffer
		w := rlp.NewEncoderBuffer(&b)
		w.WriteUint64(tx.ChainID)
		w.WriteUint64(tx.Nonce)
		w.WriteBigInt(tx.GasPrice)
		w.WriteUint64(tx.Gas)
		w.WriteBytes(tx.To[:])
		w.WriteBigInt(tx.Value.ToBig())
		w.WriteBytes(tx.EncryptionPubkey[:32])
		w.WriteUint64(0)
		w.WriteBytes(tx.Input)
		require.NoError(t, w.Flush())

		_, err := DecodeFields(b.Bytes())
		var fe *FieldDecodeError
		require.ErrorAs(t, err, &fe)
		require.Equal(t, "encryptionPubkey", fe.Field)
	})

	t.Run("bad address length", func(t *testing.T) {
		var b bytes.Buffer
		w := rlp.NewEncoderBuffer(&b)
		w.WriteUint64(1)
		w.WriteUint64(1)
		w.WriteUint64(1)
		w.WriteUint64(1)
		w.WriteBytes([]byte{1, 2, 3})
		require.NoError(t, w.Flush())

		_, err := DecodeFields(b.Bytes())
		var fe *FieldDecodeError
		require.ErrorAs(t, err, &fe)
		require.Equal(t, "to", fe.Field)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := DecodeFields(nil)
		var fe *FieldDecodeError
		require.ErrorAs(t, err, &fe)
		require.Equal(t, "chainId", fe.Field)
	})
}

func TestGasPriceMustFit128Bits(t *testing.T) {
	tx := fixtureTx(0)
	tx.GasPrice = new(big.Int).Lsh(big.NewInt(1), 128)
	require.Error(t, tx.EncodeFields(&bytes.Buffer{}))
	_, err := tx.SigningHash()
	require.Error(t, err)
}

func TestSignedEnvelopeRoundTrip(t *testing.T) {
	stx, err := NewSignedTx(fixtureTx(1), fixtureSig())
	require.NoError(t, err)

	raw, err := stx.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, byte(SeismicTxType), raw[0])

	var dec SignedTxSeismic
	require.NoError(t, dec.UnmarshalBinary(raw))
	require.Equal(t, stx.Hash, dec.Hash)
	requireTxEqual(t, stx.Tx, dec.Tx)
	require.Equal(t, stx.Sig.Bytes(), dec.Sig.Bytes())

	// rlp_decode_signed has no type byte
	direct, err := DecodeSigned(raw[1:])
	require.NoError(t, err)
	require.Equal(t, stx.Hash, direct.Hash)

	_, err = DecodeSigned(raw)
	require.Error(t, err)
}

func TestUnmarshalBinaryRejectsOtherTypes(t *testing.T) {
	stx, err := NewSignedTx(fixtureTx(0), fixtureSig())
	require.NoError(t, err)
	raw, err := stx.MarshalBinary()
	require.NoError(t, err)

	raw[0] = 0x02
	var dec SignedTxSeismic
	require.ErrorIs(t, dec.UnmarshalBinary(raw), ErrUnexpectedTxType)
	require.ErrorIs(t, dec.UnmarshalBinary(nil), ErrUnexpectedTxType)
}

func TestSizeHeuristic(t *testing.T) {
	tx := fixtureTx(0)
	require.Equal(t, 8+8+16+8+16+20+32+33+1+len(tx.Input), tx.Size())

	tx.To = nil
	require.Equal(t, 8+8+16+8+16+1+32+33+1+len(tx.Input), tx.Size())
}

func TestCopyIsDeep(t *testing.T) {
	tx := fixtureTx(0)
	cpy := tx.Copy()
	cpy.Input[0] ^= 0xff
	cpy.GasPrice.SetInt64(1)
	cpy.Value.SetUint64(1)
	cpy.To[0] ^= 0xff

	orig := fixtureTx(0)
	requireTxEqual(t, orig, tx)
}

func TestTxSeismicJSON(t *testing.T) {
	tx := fixtureTx(1)
	b, err := json.Marshal(tx)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &fields))
	require.JSONEq(t, `"0x4"`, string(fields["chainId"]))
	require.JSONEq(t, `1`, string(fields["eip712Version"]))
	require.Contains(t, fields, "encryptionPubkey")

	var dec TxSeismic
	require.NoError(t, json.Unmarshal(b, &dec))
	requireTxEqual(t, tx, &dec)

	alias := []byte(`{"chainId":"0x1","nonce":"0x0","gasPrice":"0x1","gasLimit":"0x5208","to":null,"value":"0x0",
		"encryptionPubkey":"0x028e76821eb4d77fd30223ca971c49738eb5b5b71eabe93f96b348fdce788ae5a0","eip712Version":0,"input":"0x"}`)
	require.NoError(t, json.Unmarshal(alias, &dec))
	require.Equal(t, uint64(21000), dec.Gas)
	require.True(t, dec.IsCreate())
}

func TestTypedDataRoundTrip(t *testing.T) {
	tx := fixtureTx(1)
	td := NewTypedDataRequest(tx, fixtureSig())

	b, err := json.Marshal(td)
	require.NoError(t, err)

	var dec TypedDataRequest
	require.NoError(t, json.Unmarshal(b, &dec))

	hash, err := dec.SigningHash()
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x261fbcf5298b1f7583525a9e29d6766dfcd97b379915b0b95e98d4face1d9182"), hash)

	sender, err := dec.Sender()
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0x69e069c42cb8a5332276613dfbd4823c0ed8043d"), sender)

	stx, err := dec.ToSigned()
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x539439da42159d6f7220ad3e5590a05c2193a99d8b9ba0316b2c6f622f9cf7c6"), stx.Hash)
}

func TestTxFromTypedDataRejectsOtherPrimaryType(t *testing.T) {
	td := fixtureTx(1).TypedData()
	td.PrimaryType = "Mail"
	_, err := TxFromTypedData(td)
	require.True(t, errors.Is(err, ErrUnexpectedTxType))
}

func TestTxFromTypedDataNumericFields(t *testing.T) {
	td := fixtureTx(1).TypedData()
	td.Message["nonce"] = float64(7)
	tx, err := TxFromTypedData(td)
	require.NoError(t, err)
	require.Equal(t, uint64(7), tx.Nonce)

	// 2^53+1 decodes from JSON as 2^53
	var msg map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"nonce":9007199254740993}`), &msg))
	for _, v := range []any{msg["nonce"], float64(1 << 60), 1.5, float64(-1)} {
		td.Message["nonce"] = v
		_, err = TxFromTypedData(td)
		require.Error(t, err, "nonce %v", v)
	}

	td.Message["nonce"] = "9007199254740993"
	tx, err = TxFromTypedData(td)
	require.NoError(t, err)
	require.Equal(t, uint64(9007199254740993), tx.Nonce)
}
