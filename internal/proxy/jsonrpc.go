package proxy

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/Layr-Labs/seismic-proxy/pkg/transport"
	"github.com/ethereum/go-ethereum/rpc"
)

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeInvalidParams  = -32602
	codeInternal       = -32603
	// codeTransport is returned when the confidential layer fails before or
	// after the node saw the request.
	codeTransport = -32000
)

type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification reports whether the message expects no response.
func (m *rpcMessage) isNotification() bool {
	return len(m.ID) == 0
}

// positional returns the params as an array. Named params yield ok=false.
func (m *rpcMessage) positional() ([]json.RawMessage, bool) {
	p := bytes.TrimSpace(m.Params)
	if len(p) == 0 || bytes.Equal(p, []byte("null")) {
		return nil, true
	}
	var out []json.RawMessage
	if err := json.Unmarshal(p, &out); err != nil {
		return nil, false
	}
	return out, true
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func newResult(id json.RawMessage, result any) *rpcResponse {
	return &rpcResponse{JSONRPC: "2.0", ID: normalizeID(id), Result: result}
}

func newError(id json.RawMessage, code int, msg string) *rpcResponse {
	return &rpcResponse{JSONRPC: "2.0", ID: normalizeID(id), Error: &rpcError{Code: code, Message: msg}}
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

// idKey canonicalizes an id so upstream responses can be matched to requests
// regardless of whitespace.
func idKey(id json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, id); err != nil {
		return string(id)
	}
	return buf.String()
}

// errorResponse maps a provider error to a JSON-RPC error. Errors the node
// returned keep their code and data.
func errorResponse(id json.RawMessage, err error) *rpcResponse {
	resp := &rpcResponse{JSONRPC: "2.0", ID: normalizeID(id)}
	var rpcErr rpc.Error
	var terr *transport.TransportError
	switch {
	case errors.As(err, &terr):
		resp.Error = &rpcError{Code: codeTransport, Message: err.Error()}
	case errors.As(err, &rpcErr):
		resp.Error = &rpcError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
		var dataErr rpc.DataError
		if errors.As(err, &dataErr) {
			resp.Error.Data = dataErr.ErrorData()
		}
	default:
		resp.Error = &rpcError{Code: codeInternal, Message: err.Error()}
	}
	return resp
}

// transportErrorKind labels err for metrics, or returns "" when err did not
// come from the confidential layer.
func transportErrorKind(err error) string {
	switch {
	case errors.Is(err, transport.ErrRemoteKeyFetch):
		return "remote_key_fetch"
	case errors.Is(err, transport.ErrKeyDecode):
		return "key_decode"
	case errors.Is(err, transport.ErrKeyGeneration):
		return "key_generation"
	case errors.Is(err, transport.ErrEncryption):
		return "encryption"
	case errors.Is(err, transport.ErrDecryption):
		return "decryption"
	default:
		return ""
	}
}
