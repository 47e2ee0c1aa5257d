package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const requestIDHeader = "X-Request-Id"

// newUpstreamRequest builds a request for the upstream node carrying the
// inbound request's end-to-end headers.
func (h *Handler) newUpstreamRequest(ctx context.Context, r *http.Request, body []byte) (*http.Request, error) {
	upReq, err := http.NewRequestWithContext(ctx, r.Method, h.upstreamURL(r).String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}
	copyHeaders(upReq.Header, r.Header)
	upReq.Header.Del("Content-Length")
	upReq.Host = h.cfg.Upstream.Host
	return upReq, nil
}

// forward sends body upstream. The response body is returned as the node
// encoded it.
func (h *Handler) forward(ctx context.Context, r *http.Request, body []byte) (*http.Response, error) {
	upReq, err := h.newUpstreamRequest(ctx, r, body)
	if err != nil {
		return nil, err
	}
	return h.client.Do(upReq)
}

// forwardVerbatim streams the upstream response back unchanged.
func (h *Handler) forwardVerbatim(w http.ResponseWriter, r *http.Request, body []byte) error {
	resp, err := h.forward(r.Context(), r, body)
	if err != nil {
		writeError(w, http.StatusBadGateway, "upstream_unreachable", "failed to reach upstream")
		return err
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
	return nil
}

// forwardBatch posts a batch of raw messages upstream and indexes the
// responses by id.
func (h *Handler) forwardBatch(ctx context.Context, r *http.Request, msgs []json.RawMessage) (map[string]json.RawMessage, error) {
	body, err := json.Marshal(msgs)
	if err != nil {
		return nil, err
	}
	upReq, err := h.newUpstreamRequest(ctx, r, body)
	if err != nil {
		return nil, err
	}
	// The reply is parsed here, so let the transport negotiate and undo
	// compression instead of passing the client's encoding through.
	upReq.Header.Del("Accept-Encoding")
	resp, err := h.client.Do(upReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := readBodyLimited(resp.Body, h.cfg.MaxBodyBytes)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream returned %s", resp.Status)
	}
	var out []json.RawMessage
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("invalid upstream batch response: %w", err)
	}
	byID := make(map[string]json.RawMessage, len(out))
	for _, raw := range out {
		var head struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			continue
		}
		byID[idKey(normalizeID(head.ID))] = raw
	}
	return byID, nil
}

// upstreamURL keeps the node URL as configured for requests to "/", and
// resolves any other inbound path against it.
func (h *Handler) upstreamURL(r *http.Request) *url.URL {
	if r.URL.Path == "" || r.URL.Path == "/" {
		u := *h.cfg.Upstream
		if r.URL.RawQuery != "" {
			u.RawQuery = r.URL.RawQuery
		}
		return &u
	}
	ref := &url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery}
	return h.cfg.Upstream.ResolveReference(ref)
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		if isHopByHopHeader(k) {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func isHopByHopHeader(k string) bool {
	switch strings.ToLower(k) {
	case "connection",
		"proxy-connection",
		"keep-alive",
		"proxy-authenticate",
		"proxy-authorization",
		"te",
		"trailer",
		"transfer-encoding",
		"upgrade":
		return true
	default:
		return false
	}
}

func readBodyLimited(r io.Reader, max int64) ([]byte, error) {
	lr := io.LimitReader(r, max+1)
	b, err := io.ReadAll(lr)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(b)) > max {
		return nil, fmt.Errorf("body too large (max %d bytes)", max)
	}
	return b, nil
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeError is used for transport-level failures that have no JSON-RPC id
// to answer.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	var e apiError
	e.Error.Code = code
	e.Error.Message = msg
	_ = json.NewEncoder(w).Encode(e)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
