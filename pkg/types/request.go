package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"
)

// TransactionRequest is a conventional eth_call / eth_sendTransaction request
// object. Fields the struct does not know are preserved in Other and emitted
// again on marshal.
type TransactionRequest struct {
	From             *common.Address `json:"from,omitempty"`
	To               *common.Address `json:"to,omitempty"`
	Gas              *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice         *hexutil.Big    `json:"gasPrice,omitempty"`
	Value            *hexutil.Big    `json:"value,omitempty"`
	Input            *hexutil.Bytes  `json:"input,omitempty"`
	Data             *hexutil.Bytes  `json:"data,omitempty"`
	Nonce            *hexutil.Uint64 `json:"nonce,omitempty"`
	ChainID          *hexutil.Uint64 `json:"chainId,omitempty"`
	Type             *hexutil.Uint64 `json:"type,omitempty"`
	EncryptionPubkey *hexutil.Bytes  `json:"encryptionPubkey,omitempty"`
	EIP712Version    *uint8          `json:"eip712Version,omitempty"`

	Other map[string]json.RawMessage `json:"-"`
}

var transactionRequestFields = []string{
	"from", "to", "gas", "gasPrice", "value", "input", "data", "nonce",
	"chainId", "type", "encryptionPubkey", "eip712Version",
}

type transactionRequestJSON TransactionRequest

func (r *TransactionRequest) UnmarshalJSON(b []byte) error {
	var dec transactionRequestJSON
	if err := json.Unmarshal(b, &dec); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	for _, k := range transactionRequestFields {
		delete(all, k)
	}
	*r = TransactionRequest(dec)
	r.Other = nil
	if len(all) > 0 {
		r.Other = all
	}
	return nil
}

func (r TransactionRequest) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(transactionRequestJSON(r))
	if err != nil || len(r.Other) == 0 {
		return b, err
	}
	merged := make(map[string]json.RawMessage, len(r.Other)+len(transactionRequestFields))
	for k, v := range r.Other {
		merged[k] = v
	}
	var known map[string]json.RawMessage
	if err := json.Unmarshal(b, &known); err != nil {
		return nil, err
	}
	for k, v := range known {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// InputBytes returns the calldata, preferring "input" over "data".
func (r *TransactionRequest) InputBytes() []byte {
	if r.Input != nil {
		return *r.Input
	}
	if r.Data != nil {
		return *r.Data
	}
	return nil
}

// SetInput replaces the calldata. Both spellings are cleared so the request
// cannot carry stale plaintext next to the new input.
func (r *TransactionRequest) SetInput(b []byte) {
	in := hexutil.Bytes(common.CopyBytes(b))
	r.Input = &in
	r.Data = nil
}

func (r *TransactionRequest) SetEncryptionPubkey(pk EncryptionPublicKey) {
	b := hexutil.Bytes(common.CopyBytes(pk[:]))
	r.EncryptionPubkey = &b
}

func (r *TransactionRequest) SetNonce(n uint64) {
	v := hexutil.Uint64(n)
	r.Nonce = &v
}

func (r *TransactionRequest) IsSeismic() bool {
	return r.Type != nil && uint64(*r.Type) == SeismicTxType
}

// Copy returns a deep copy of r.
func (r *TransactionRequest) Copy() *TransactionRequest {
	cpy := *r
	if r.From != nil {
		v := *r.From
		cpy.From = &v
	}
	if r.To != nil {
		v := *r.To
		cpy.To = &v
	}
	cpy.Gas = copyUint64(r.Gas)
	cpy.Nonce = copyUint64(r.Nonce)
	cpy.ChainID = copyUint64(r.ChainID)
	cpy.Type = copyUint64(r.Type)
	cpy.GasPrice = copyBig(r.GasPrice)
	cpy.Value = copyBig(r.Value)
	cpy.Input = copyBytes(r.Input)
	cpy.Data = copyBytes(r.Data)
	cpy.EncryptionPubkey = copyBytes(r.EncryptionPubkey)
	if r.EIP712Version != nil {
		v := *r.EIP712Version
		cpy.EIP712Version = &v
	}
	if r.Other != nil {
		cpy.Other = make(map[string]json.RawMessage, len(r.Other))
		for k, v := range r.Other {
			cpy.Other[k] = append(json.RawMessage(nil), v...)
		}
	}
	return &cpy
}

func copyUint64(v *hexutil.Uint64) *hexutil.Uint64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyBig(v *hexutil.Big) *hexutil.Big {
	if v == nil {
		return nil
	}
	return (*hexutil.Big)(new(big.Int).Set(v.ToInt()))
}

func copyBytes(v *hexutil.Bytes) *hexutil.Bytes {
	if v == nil {
		return nil
	}
	c := hexutil.Bytes(common.CopyBytes(*v))
	return &c
}

// ToTxSeismic builds an unsigned envelope from a fully populated request.
func (r *TransactionRequest) ToTxSeismic() (*TxSeismic, error) {
	switch {
	case r.ChainID == nil:
		return nil, fmt.Errorf("%w: chainId", ErrMissingField)
	case r.Nonce == nil:
		return nil, fmt.Errorf("%w: nonce", ErrMissingField)
	case r.GasPrice == nil:
		return nil, fmt.Errorf("%w: gasPrice", ErrMissingField)
	case r.Gas == nil:
		return nil, fmt.Errorf("%w: gas", ErrMissingField)
	}
	tx := &TxSeismic{
		ChainID:  uint64(*r.ChainID),
		Nonce:    uint64(*r.Nonce),
		GasPrice: new(big.Int).Set(r.GasPrice.ToInt()),
		Gas:      uint64(*r.Gas),
		Value:    new(uint256.Int),
		Input:    common.CopyBytes(r.InputBytes()),
	}
	if r.To != nil {
		to := *r.To
		tx.To = &to
	}
	if r.Value != nil {
		v, overflow := uint256.FromBig(r.Value.ToInt())
		if overflow {
			return nil, fmt.Errorf("value exceeds 256 bits")
		}
		tx.Value = v
	}
	if r.EncryptionPubkey != nil {
		if len(*r.EncryptionPubkey) != EncryptionPublicKeySize {
			return nil, fmt.Errorf("encryptionPubkey must be %d bytes, got %d", EncryptionPublicKeySize, len(*r.EncryptionPubkey))
		}
		copy(tx.EncryptionPubkey[:], *r.EncryptionPubkey)
	}
	if r.EIP712Version != nil {
		tx.EIP712Version = *r.EIP712Version
	}
	if err := tx.validate(); err != nil {
		return nil, err
	}
	return tx, nil
}

// BuildSeismicTx returns a seismic-typed request carrying plaintext calldata.
// The confidential transport encrypts it on the way out.
func BuildSeismicTx(plaintext []byte, to *common.Address, from common.Address) *TransactionRequest {
	txType := hexutil.Uint64(SeismicTxType)
	req := &TransactionRequest{
		From: &from,
		Type: &txType,
	}
	if to != nil {
		t := *to
		req.To = &t
	}
	req.SetInput(plaintext)
	return req
}

// TypedDataRequest is an EIP-712 signed seismic transaction.
type TypedDataRequest struct {
	Data      apitypes.TypedData `json:"data"`
	Signature Signature          `json:"signature"`
}

// NewTypedDataRequest renders tx as typed data and attaches sig.
func NewTypedDataRequest(tx *TxSeismic, sig Signature) *TypedDataRequest {
	return &TypedDataRequest{Data: tx.TypedData(), Signature: sig}
}

// Tx rebuilds the transaction from the typed data message.
func (r *TypedDataRequest) Tx() (*TxSeismic, error) {
	return TxFromTypedData(r.Data)
}

// SigningHash is the EIP-712 digest of the carried typed data.
func (r *TypedDataRequest) SigningHash() (common.Hash, error) {
	return typedDataHash(r.Data)
}

// Sender recovers the signer of the typed data.
func (r *TypedDataRequest) Sender() (common.Address, error) {
	hash, err := r.SigningHash()
	if err != nil {
		return common.Address{}, err
	}
	return RecoverAddress(hash, r.Signature)
}

// ToSigned converts the request to a signed envelope carrying the canonical
// hash.
func (r *TypedDataRequest) ToSigned() (*SignedTxSeismic, error) {
	tx, err := r.Tx()
	if err != nil {
		return nil, err
	}
	return NewSignedTx(tx, r.Signature)
}

// RequestKind identifies the active variant of a request union.
type RequestKind int

const (
	RequestKindNone RequestKind = iota
	RequestKindBytes
	RequestKindTypedData
	RequestKindTransaction
)

func (k RequestKind) String() string {
	switch k {
	case RequestKindBytes:
		return "bytes"
	case RequestKindTypedData:
		return "typed_data"
	case RequestKindTransaction:
		return "transaction_request"
	default:
		return "none"
	}
}

// RawTxRequest is the eth_sendRawTransaction payload: a raw signed envelope
// or an EIP-712 signed request.
type RawTxRequest struct {
	kind      RequestKind
	bytes     hexutil.Bytes
	typedData *TypedDataRequest
}

func NewRawTxRequestFromBytes(b []byte) RawTxRequest {
	return RawTxRequest{kind: RequestKindBytes, bytes: common.CopyBytes(b)}
}

func NewRawTxRequestFromTypedData(td *TypedDataRequest) RawTxRequest {
	return RawTxRequest{kind: RequestKindTypedData, typedData: td}
}

// NewRawTxRequestFromSigned encodes stx as EIP-2718 bytes.
func NewRawTxRequestFromSigned(stx *SignedTxSeismic) (RawTxRequest, error) {
	b, err := stx.MarshalBinary()
	if err != nil {
		return RawTxRequest{}, err
	}
	return NewRawTxRequestFromBytes(b), nil
}

func (r RawTxRequest) Kind() RequestKind { return r.kind }

func (r RawTxRequest) Bytes() (hexutil.Bytes, bool) {
	return r.bytes, r.kind == RequestKindBytes
}

func (r RawTxRequest) TypedData() (*TypedDataRequest, bool) {
	return r.typedData, r.kind == RequestKindTypedData
}

func (r RawTxRequest) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case RequestKindBytes:
		return json.Marshal(r.bytes)
	case RequestKindTypedData:
		return json.Marshal(r.typedData)
	default:
		return nil, fmt.Errorf("%w: empty raw transaction request", ErrUnmatchedRequest)
	}
}

func (r *RawTxRequest) UnmarshalJSON(b []byte) error {
	kind, err := classifyRequest(b, false)
	if err != nil {
		return err
	}
	switch kind {
	case RequestKindBytes:
		var raw hexutil.Bytes
		if err := json.Unmarshal(b, &raw); err != nil {
			return fmt.Errorf("%w: %v", ErrUnmatchedRequest, err)
		}
		*r = NewRawTxRequestFromBytes(raw)
	case RequestKindTypedData:
		td, err := decodeTypedDataRequest(b)
		if err != nil {
			return err
		}
		*r = NewRawTxRequestFromTypedData(td)
	}
	return nil
}

// CallRequest is the eth_call payload: an EIP-712 signed request, a plain
// transaction request, or raw signed envelope bytes.
type CallRequest struct {
	kind      RequestKind
	bytes     hexutil.Bytes
	typedData *TypedDataRequest
	tx        *TransactionRequest
}

func NewCallRequestFromBytes(b []byte) CallRequest {
	return CallRequest{kind: RequestKindBytes, bytes: common.CopyBytes(b)}
}

func NewCallRequestFromTypedData(td *TypedDataRequest) CallRequest {
	return CallRequest{kind: RequestKindTypedData, typedData: td}
}

func NewCallRequestFromTransaction(tx *TransactionRequest) CallRequest {
	return CallRequest{kind: RequestKindTransaction, tx: tx}
}

// NewCallRequestFromSigned encodes stx as EIP-2718 bytes, the signed-read form.
func NewCallRequestFromSigned(stx *SignedTxSeismic) (CallRequest, error) {
	b, err := stx.MarshalBinary()
	if err != nil {
		return CallRequest{}, err
	}
	return NewCallRequestFromBytes(b), nil
}

// CallRequestFromRaw lifts a send payload into the call union.
func CallRequestFromRaw(r RawTxRequest) CallRequest {
	switch r.kind {
	case RequestKindBytes:
		return NewCallRequestFromBytes(r.bytes)
	case RequestKindTypedData:
		return NewCallRequestFromTypedData(r.typedData)
	default:
		return CallRequest{}
	}
}

func (r CallRequest) Kind() RequestKind { return r.kind }

func (r CallRequest) Bytes() (hexutil.Bytes, bool) {
	return r.bytes, r.kind == RequestKindBytes
}

func (r CallRequest) TypedData() (*TypedDataRequest, bool) {
	return r.typedData, r.kind == RequestKindTypedData
}

func (r CallRequest) Transaction() (*TransactionRequest, bool) {
	return r.tx, r.kind == RequestKindTransaction
}

func (r CallRequest) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case RequestKindBytes:
		return json.Marshal(r.bytes)
	case RequestKindTypedData:
		return json.Marshal(r.typedData)
	case RequestKindTransaction:
		return json.Marshal(r.tx)
	default:
		return nil, fmt.Errorf("%w: empty call request", ErrUnmatchedRequest)
	}
}

func (r *CallRequest) UnmarshalJSON(b []byte) error {
	kind, err := classifyRequest(b, true)
	if err != nil {
		return err
	}
	switch kind {
	case RequestKindBytes:
		var raw hexutil.Bytes
		if err := json.Unmarshal(b, &raw); err != nil {
			return fmt.Errorf("%w: %v", ErrUnmatchedRequest, err)
		}
		*r = NewCallRequestFromBytes(raw)
	case RequestKindTypedData:
		td, err := decodeTypedDataRequest(b)
		if err != nil {
			return err
		}
		*r = NewCallRequestFromTypedData(td)
	case RequestKindTransaction:
		tx := new(TransactionRequest)
		if err := json.Unmarshal(b, tx); err != nil {
			return fmt.Errorf("%w: %v", ErrUnmatchedRequest, err)
		}
		*r = NewCallRequestFromTransaction(tx)
	}
	return nil
}

// classifyRequest decides the variant of a union payload by shape alone:
// a JSON string is raw bytes, an object with both "data" and "signature" is
// typed data, and any other object is a transaction request when allowTx is
// set. An object whose "data" is a string could be either a typed data
// request or a transaction request with extra fields, so it is rejected.
func classifyRequest(b []byte, allowTx bool) (RequestKind, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return RequestKindNone, fmt.Errorf("%w: empty payload", ErrUnmatchedRequest)
	}
	switch b[0] {
	case '"':
		return RequestKindBytes, nil
	case '{':
	default:
		return RequestKindNone, fmt.Errorf("%w: expected string or object", ErrUnmatchedRequest)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return RequestKindNone, fmt.Errorf("%w: %v", ErrUnmatchedRequest, err)
	}
	data, hasData := fields["data"]
	_, hasSig := fields["signature"]
	if hasData && hasSig {
		data = bytes.TrimSpace(data)
		switch {
		case len(data) > 0 && data[0] == '{':
			return RequestKindTypedData, nil
		case len(data) > 0 && data[0] == '"':
			return RequestKindNone, ErrAmbiguousRequest
		default:
			return RequestKindNone, fmt.Errorf("%w: typed data must be an object", ErrUnmatchedRequest)
		}
	}
	if !allowTx {
		return RequestKindNone, fmt.Errorf("%w: expected raw bytes or typed data", ErrUnmatchedRequest)
	}
	return RequestKindTransaction, nil
}

func decodeTypedDataRequest(b []byte) (*TypedDataRequest, error) {
	td := new(TypedDataRequest)
	if err := json.Unmarshal(b, td); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnmatchedRequest, err)
	}
	return td, nil
}
