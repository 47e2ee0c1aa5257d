package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "seismic_proxy"

// Route labels for ProxyMetrics.Requests.
const (
	RouteEncrypted   = "encrypted"
	RoutePassthrough = "passthrough"
)

// Outcome labels.
const (
	OutcomeOK          = "ok"
	OutcomeRPCError    = "rpc_error"
	OutcomeUpstreamErr = "upstream_error"
	OutcomeBadRequest  = "bad_request"
)

// MethodOther replaces method labels outside knownMethods.
const MethodOther = "other"

// knownMethods bounds the method label. Clients choose the method string, so
// anything else is folded into MethodOther.
var knownMethods = map[string]struct{}{
	"eth_call":                  {},
	"eth_sendTransaction":       {},
	"eth_sendRawTransaction":    {},
	"eth_estimateGas":           {},
	"eth_chainId":               {},
	"eth_blockNumber":           {},
	"eth_gasPrice":              {},
	"eth_getBalance":            {},
	"eth_getCode":               {},
	"eth_getStorageAt":          {},
	"eth_getTransactionCount":   {},
	"eth_getTransactionByHash":  {},
	"eth_getTransactionReceipt": {},
	"eth_getBlockByNumber":      {},
	"eth_getBlockByHash":        {},
	"eth_getLogs":               {},
	"net_version":               {},
	"web3_clientVersion":        {},
	"seismic_getTeePublicKey":   {},
}

// MethodLabel returns method if it is a known JSON-RPC method and
// MethodOther otherwise.
func MethodLabel(method string) string {
	if _, ok := knownMethods[method]; ok {
		return method
	}
	return MethodOther
}

// ProxyMetrics holds the proxy's collectors. The zero value is not usable;
// build it with New.
type ProxyMetrics struct {
	Requests         *prometheus.CounterVec
	TransportErrors  *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	BatchSize        prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New registers the proxy collectors with reg. A nil reg uses a fresh
// registry so tests can build as many instances as they like.
func New(reg *prometheus.Registry) *ProxyMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &ProxyMetrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "JSON-RPC requests handled, by method, route and outcome",
		}, []string{"method", "route", "outcome"}),
		TransportErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Confidential transport failures by kind",
		}, []string{"kind"}),
		UpstreamDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Latency of requests to the upstream node",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of calls per JSON-RPC batch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
		gatherer: reg,
	}
}

func (m *ProxyMetrics) ObserveRequest(method, route, outcome string) {
	m.Requests.WithLabelValues(MethodLabel(method), route, outcome).Inc()
}

func (m *ProxyMetrics) ObserveUpstream(route string, start time.Time) {
	m.UpstreamDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
}

func (m *ProxyMetrics) ObserveTransportError(kind string) {
	m.TransportErrors.WithLabelValues(kind).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *ProxyMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
