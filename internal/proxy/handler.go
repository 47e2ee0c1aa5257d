// Package proxy serves a JSON-RPC endpoint that runs seismic eth_call and
// eth_sendTransaction requests through the confidential transport and
// forwards everything else to the upstream node unchanged.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Layr-Labs/seismic-proxy/internal/config"
	"github.com/Layr-Labs/seismic-proxy/internal/metrics"
	"github.com/Layr-Labs/seismic-proxy/pkg/transport"
	"github.com/Layr-Labs/seismic-proxy/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	methodCall            = "eth_call"
	methodSendTransaction = "eth_sendTransaction"

	healthPath  = "/healthz"
	metricsPath = "/metrics"
)

type Handler struct {
	logger   *zap.Logger
	cfg      *config.Config
	provider transport.Provider
	client   *http.Client
	metrics  *metrics.ProxyMetrics

	// defaultFrom is used for seismic requests that carry no sender.
	defaultFrom *common.Address
}

type Option func(*Handler)

// WithDefaultFrom sets the sender assumed for seismic requests without one,
// normally the local signer's address.
func WithDefaultFrom(addr common.Address) Option {
	return func(h *Handler) {
		h.defaultFrom = &addr
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(h *Handler) {
		h.client = c
	}
}

func WithMetrics(m *metrics.ProxyMetrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

func NewHandler(cfg *config.Config, provider transport.Provider, logger *zap.Logger, opts ...Option) (*Handler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if provider == nil && cfg.Mode != config.ModeOff {
		return nil, fmt.Errorf("provider cannot be nil in mode %s", cfg.Mode)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		logger:   logger,
		cfg:      cfg,
		provider: provider,
		client:   &http.Client{Timeout: cfg.UpstreamTimeout},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = metrics.New(nil)
	}
	return h, nil
}

// Routes returns the proxy mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(healthPath, h.handleHealth)
	if h.cfg.MetricsEnabled {
		mux.Handle(metricsPath, h.metrics.Handler())
	}
	mux.HandleFunc("/", h.handleRPC)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleRPC(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
		r.Header.Set(requestIDHeader, requestID)
	}
	w.Header().Set(requestIDHeader, requestID)
	log := h.logger.Sugar().With("requestId", requestID)

	body, err := readBodyLimited(r.Body, h.cfg.MaxBodyBytes)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "invalid_body", err.Error())
		return
	}

	if r.Method != http.MethodPost || h.cfg.Mode == config.ModeOff {
		h.passthrough(w, r, body, "")
		return
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		h.handleBatch(w, r, trimmed, log)
		return
	}

	var msg rpcMessage
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		h.passthrough(w, r, body, "")
		return
	}
	p := h.plan(&msg)
	if p.passthrough {
		h.passthrough(w, r, body, msg.Method)
		return
	}
	resp := h.execute(r.Context(), &msg, p, log)
	if msg.isNotification() {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, resp)
}

func (h *Handler) passthrough(w http.ResponseWriter, r *http.Request, body []byte, method string) {
	start := time.Now()
	err := h.forwardVerbatim(w, r, body)
	h.metrics.ObserveUpstream(metrics.RoutePassthrough, start)
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeUpstreamErr
		h.logger.Sugar().Warnw("Upstream request failed", "method", method, "error", err)
	}
	if method != "" {
		h.metrics.ObserveRequest(method, metrics.RoutePassthrough, outcome)
	}
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request, body []byte, log *zap.SugaredLogger) {
	var entries []json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil || len(entries) == 0 {
		h.passthrough(w, r, body, "")
		return
	}
	h.metrics.BatchSize.Observe(float64(len(entries)))

	msgs := make([]*rpcMessage, len(entries))
	plans := make([]plan, len(entries))
	local := 0
	for i, raw := range entries {
		var msg rpcMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			plans[i] = plan{passthrough: true}
			continue
		}
		msgs[i] = &msg
		plans[i] = h.plan(&msg)
		if !plans[i].passthrough {
			local++
		}
	}
	if local == 0 {
		h.passthrough(w, r, body, "")
		return
	}

	var forwarded []json.RawMessage
	for i, raw := range entries {
		if plans[i].passthrough {
			forwarded = append(forwarded, raw)
		}
	}
	var upstream map[string]json.RawMessage
	var upstreamErr error
	if len(forwarded) > 0 {
		start := time.Now()
		upstream, upstreamErr = h.forwardBatch(r.Context(), r, forwarded)
		h.metrics.ObserveUpstream(metrics.RoutePassthrough, start)
		if upstreamErr != nil {
			log.Warnw("Upstream batch failed", "size", len(forwarded), "error", upstreamErr)
		}
	}

	out := make([]any, 0, len(entries))
	for i := range entries {
		msg := msgs[i]
		if !plans[i].passthrough {
			resp := h.execute(r.Context(), msg, plans[i], log)
			if !msg.isNotification() {
				out = append(out, resp)
			}
			continue
		}
		if msg == nil {
			out = append(out, newError(nil, codeInvalidRequest, "invalid request"))
			continue
		}
		if msg.isNotification() {
			continue
		}
		if upstreamErr != nil {
			h.metrics.ObserveRequest(msg.Method, metrics.RoutePassthrough, metrics.OutcomeUpstreamErr)
			out = append(out, newError(msg.ID, codeInternal, "failed to reach upstream"))
			continue
		}
		resp, ok := upstream[idKey(msg.ID)]
		if !ok {
			h.metrics.ObserveRequest(msg.Method, metrics.RoutePassthrough, metrics.OutcomeUpstreamErr)
			out = append(out, newError(msg.ID, codeInternal, "missing upstream response"))
			continue
		}
		h.metrics.ObserveRequest(msg.Method, metrics.RoutePassthrough, metrics.OutcomeOK)
		out = append(out, resp)
	}
	if len(out) == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, out)
}

// plan is the routing decision for one JSON-RPC message.
type plan struct {
	passthrough bool
	req         *types.TransactionRequest
	// reject, when set, is answered locally without contacting the node.
	reject *rpcResponse
}

func (h *Handler) plan(msg *rpcMessage) plan {
	if !h.cfg.Encrypts(msg.Method) {
		return plan{passthrough: true}
	}
	params, ok := msg.positional()
	if !ok || len(params) == 0 {
		return plan{passthrough: true}
	}

	var req *types.TransactionRequest
	switch msg.Method {
	case methodCall:
		var creq types.CallRequest
		if err := json.Unmarshal(params[0], &creq); err != nil {
			return plan{reject: newError(msg.ID, codeInvalidParams, err.Error())}
		}
		tx, ok := creq.Transaction()
		if !ok {
			// already signed; the node decrypts it
			return plan{passthrough: true}
		}
		req = tx
		if len(params) > 1 {
			var tag string
			if err := json.Unmarshal(params[1], &tag); err != nil || tag != "latest" {
				if req.IsSeismic() {
					return plan{reject: newError(msg.ID, codeInvalidParams, "confidential calls only support the latest block")}
				}
			}
		}
	case methodSendTransaction:
		req = new(types.TransactionRequest)
		if err := json.Unmarshal(params[0], req); err != nil {
			return plan{reject: newError(msg.ID, codeInvalidParams, err.Error())}
		}
	default:
		return plan{passthrough: true}
	}

	if !req.IsSeismic() {
		return plan{passthrough: true}
	}
	if req.From == nil {
		if h.defaultFrom == nil {
			return plan{reject: newError(msg.ID, codeInvalidParams, "from is required for confidential requests")}
		}
		from := *h.defaultFrom
		req.From = &from
	}
	return plan{req: req}
}

// execute answers a message locally through the confidential transport.
func (h *Handler) execute(ctx context.Context, msg *rpcMessage, p plan, log *zap.SugaredLogger) *rpcResponse {
	if p.reject != nil {
		h.metrics.ObserveRequest(msg.Method, metrics.RouteEncrypted, metrics.OutcomeBadRequest)
		return p.reject
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.UpstreamTimeout)
	defer cancel()

	start := time.Now()
	var (
		result any
		err    error
	)
	switch msg.Method {
	case methodCall:
		result, err = h.provider.Call(ctx, p.req)
	case methodSendTransaction:
		var pending *transport.PendingTransaction
		if pending, err = h.provider.SendTransaction(ctx, p.req); err == nil {
			result = pending.Hash
		}
	}
	h.metrics.ObserveUpstream(metrics.RouteEncrypted, start)

	if err != nil {
		outcome := metrics.OutcomeRPCError
		if kind := transportErrorKind(err); kind != "" {
			h.metrics.ObserveTransportError(kind)
			outcome = metrics.OutcomeUpstreamErr
		}
		h.metrics.ObserveRequest(msg.Method, metrics.RouteEncrypted, outcome)
		log.Warnw("Confidential request failed", "method", msg.Method, "error", err)
		return errorResponse(msg.ID, err)
	}
	h.metrics.ObserveRequest(msg.Method, metrics.RouteEncrypted, metrics.OutcomeOK)
	log.Debugw("Confidential request served", "method", msg.Method, "inputLen", len(p.req.InputBytes()))
	return newResult(msg.ID, result)
}
