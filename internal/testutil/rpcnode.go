// Package testutil provides an in-process JSON-RPC node for tests.
package testutil

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Handler answers one JSON-RPC method. Returning a non-nil *RPCError sends
// an error response instead of the result.
type Handler func(params []json.RawMessage) (any, *RPCError)

type request struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Node is a scripted JSON-RPC server. Unknown methods get -32601.
type Node struct {
	Server *httptest.Server

	mu        sync.Mutex
	handlers  map[string]Handler
	failures  map[string]int
	calls     []Call
	rawBodies [][]byte
	gzip      bool
}

// Call records one request seen by the node.
type Call struct {
	Method string
	Params []json.RawMessage
}

func NewNode(t *testing.T) *Node {
	t.Helper()
	n := &Node{
		handlers: make(map[string]Handler),
		failures: make(map[string]int),
	}
	n.Server = httptest.NewServer(http.HandlerFunc(n.serveHTTP))
	t.Cleanup(n.Server.Close)
	return n
}

func (n *Node) URL() string {
	return n.Server.URL
}

func (n *Node) Handle(method string, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[method] = h
}

// HandleResult answers method with a fixed result.
func (n *Node) HandleResult(method string, result any) {
	n.Handle(method, func([]json.RawMessage) (any, *RPCError) { return result, nil })
}

// CompressResponses gzips replies to requests that accept gzip, as geth
// does.
func (n *Node) CompressResponses() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gzip = true
}

// FailNext makes the next count requests for method return HTTP 503.
func (n *Node) FailNext(method string, count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures[method] = count
}

func (n *Node) Calls() []Call {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Call(nil), n.calls...)
}

// CallsTo returns the recorded requests for method.
func (n *Node) CallsTo(method string) []Call {
	var out []Call
	for _, c := range n.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Bodies returns every raw HTTP body the node received.
func (n *Node) Bodies() [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([][]byte(nil), n.rawBodies...)
}

func (n *Node) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	n.rawBodies = append(n.rawBodies, body)
	n.mu.Unlock()

	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var reqs []request
		if err := json.Unmarshal(body, &reqs); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out := make([]response, 0, len(reqs))
		for _, req := range reqs {
			resp, fail := n.dispatch(req)
			if fail {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			out = append(out, resp)
		}
		n.writeJSON(w, r, out)
		return
	}

	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp, fail := n.dispatch(req)
	if fail {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	n.writeJSON(w, r, resp)
}

func (n *Node) dispatch(req request) (response, bool) {
	n.mu.Lock()
	n.calls = append(n.calls, Call{Method: req.Method, Params: req.Params})
	if n.failures[req.Method] > 0 {
		n.failures[req.Method]--
		n.mu.Unlock()
		return response{}, true
	}
	h, ok := n.handlers[req.Method]
	n.mu.Unlock()

	resp := response{JSONRPC: "2.0", ID: req.ID}
	if !ok {
		resp.Error = &RPCError{Code: -32601, Message: "the method " + req.Method + " does not exist/is not available"}
		return resp, false
	}
	result, rpcErr := h(req.Params)
	if rpcErr != nil {
		resp.Error = rpcErr
		return resp, false
	}
	if result == nil {
		result = json.RawMessage("null")
	}
	resp.Result = result
	return resp, false
}

func (n *Node) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	n.mu.Lock()
	compress := n.gzip && strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
	n.mu.Unlock()
	if !compress {
		_ = json.NewEncoder(w).Encode(v)
		return
	}
	w.Header().Set("Content-Encoding", "gzip")
	zw := gzip.NewWriter(w)
	_ = json.NewEncoder(zw).Encode(v)
	_ = zw.Close()
}
