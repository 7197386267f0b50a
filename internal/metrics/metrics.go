// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github-proxy-go/internal/allowlist"
)

// Default histogram buckets for request latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	// Proxy-specific collectors.
	RedirectHops       prometheus.Histogram
	RewrittenRedirects prometheus.Counter
	AuthRetries        prometheus.Counter
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "github_proxy_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "target_host"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "github_proxy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "target_host"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "github_proxy_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "github_proxy_upstream_request_duration_seconds",
			Help:    "Upstream call latency in seconds, one sample per hop.",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "github_proxy_upstream_responses_total",
			Help: "Total upstream responses by method and status code.",
		}, []string{"method", "status_code"}),

		RedirectHops: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "github_proxy_redirect_hops",
			Help:    "Number of upstream hops taken to reach the terminal response.",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		}),

		RewrittenRedirects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "github_proxy_rewritten_redirects_total",
			Help: "Redirects whose Location left the allowlist and was rewritten back through the proxy.",
		}),

		AuthRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "github_proxy_auth_retries_total",
			Help: "Requests replayed with the configured credential after an anonymous 401.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.RedirectHops,
		m.RewrittenRedirects,
		m.AuthRetries,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// NormalizeTargetHost returns a bounded target-host label for an inbound
// request path. Allowlisted hosts map to themselves; reserved routes map to
// "none" and anything else to "other". The allowlist is fixed, so label
// cardinality is bounded.
func NormalizeTargetHost(path string) string {
	p := strings.TrimPrefix(path, "/")
	host, _, _ := strings.Cut(p, "/")
	if host == "" {
		return "none"
	}
	if allowlist.Allowed(host) {
		return strings.ToLower(host)
	}
	switch "/" + host {
	case "/healthz", "/metrics":
		return "none"
	}
	if strings.HasPrefix(path, "/proxy/status") {
		return "none"
	}
	return "other"
}
