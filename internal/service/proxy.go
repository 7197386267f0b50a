// Package service implements the core proxy forwarding logic: request
// translation, allowlist-aware redirect following, the single credential
// retry, and response normalization.
package service

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github-proxy-go/internal/allowlist"
	"github-proxy-go/internal/client"
	"github-proxy-go/internal/config"
	"github-proxy-go/internal/metrics"
	"github-proxy-go/internal/model"
)

// strippedRequestHeaders identify the proxy's own edge infrastructure and
// must never reach the upstream origin: they either leak internal topology
// or cause a host mismatch.
var strippedRequestHeaders = []string{
	"Host",
	"X-Forwarded-For",
	"X-Forwarded-Proto",
	"X-Forwarded-Host",
	"X-Real-Ip",
	"X-Request-Id",
}

// userAgent is injected when the client sends none. GitHub serves Git
// protocol responses instead of HTML only when it recognizes a client-like
// User-Agent.
const userAgent = "git/2.39.2"

// bodiedMethods are the methods for which the inbound body is forwarded.
var bodiedMethods = map[string]bool{
	http.MethodPost:  true,
	http.MethodPut:   true,
	http.MethodPatch: true,
}

// ProxyService handles the forwarding logic for proxy requests.
type ProxyService struct {
	client  *client.GitHubClient
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	scheme  string
	allowed func(host string) bool
}

// NewProxyService creates a ProxyService. The metrics parameter is optional;
// pass nil to disable proxy metrics recording.
func NewProxyService(c *client.GitHubClient, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	return &ProxyService{
		client:  c,
		cfg:     cfg,
		logger:  logger.With("component", "proxy_service"),
		metrics: m,
		scheme:  "https",
		allowed: allowlist.Allowed,
	}
}

// NewProxyServiceForTest creates a ProxyService that speaks plain HTTP and
// treats extraHosts as allowlisted in addition to the real allowlist. This
// is intended only for tests that use httptest servers on localhost.
func NewProxyServiceForTest(c *client.GitHubClient, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, extraHosts ...string) *ProxyService {
	extra := make(map[string]bool, len(extraHosts))
	for _, h := range extraHosts {
		extra[h] = true
	}
	return &ProxyService{
		client:  c,
		cfg:     cfg,
		logger:  logger.With("component", "proxy_service"),
		metrics: m,
		scheme:  "http",
		allowed: func(host string) bool {
			return extra[host] || allowlist.Allowed(host)
		},
	}
}

// Forward sends a ProxyRequest to its upstream GitHub host and returns the
// terminal response, normalized for browser clients. The caller is
// responsible for closing the response body.
//
// The first attempt never carries the configured credential. When it
// terminates with 401 and a credential is configured, the whole
// forward-with-redirects sequence is replayed exactly once from the
// original target URL with Basic credentials attached. The retry's result
// is returned as-is; there is no second retry.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	newBody, err := s.bodySource(pr)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"host", pr.Host,
		"path", pr.Path,
	)

	resp, err := s.followRedirects(pr, s.translateHeaders(pr.Header, pr.Host), newBody)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && s.cfg.GitHub.Token != "" {
		_ = resp.Body.Close()

		header := s.translateHeaders(pr.Header, pr.Host)
		header.Set("Authorization", basicCredential(s.cfg.GitHub.Token))

		if s.metrics != nil {
			s.metrics.AuthRetries.Inc()
		}
		s.logger.Debug("retrying with credential",
			"method", pr.Method,
			"host", pr.Host,
			"path", pr.Path,
		)

		resp, err = s.followRedirects(pr, header, newBody)
		if err != nil {
			return nil, err
		}
	}

	normalizeResponseHeaders(resp.Header)
	return resp, nil
}

// bodySource returns a function yielding the outbound body for one attempt.
//
// Bodies of POST/PUT/PATCH requests are buffered so redirect hops and the
// 401-triggered credential retry can replay them; the buffer is bounded
// because the server's body-limit middleware caps inbound bodies.
func (s *ProxyService) bodySource(pr *model.ProxyRequest) (func() io.Reader, error) {
	if !bodiedMethods[pr.Method] || pr.Body == nil {
		return func() io.Reader { return nil }, nil
	}

	data, err := io.ReadAll(pr.Body)
	if err != nil {
		return nil, err
	}
	return func() io.Reader { return bytes.NewReader(data) }, nil
}

// translateHeaders copies every inbound header except the edge-identifying
// ones, forces Host to the target, and injects a Git client User-Agent when
// the client sent none.
func (s *ProxyService) translateHeaders(src http.Header, host string) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		dst[http.CanonicalHeaderKey(key)] = append([]string(nil), vals...)
	}
	for _, key := range strippedRequestHeaders {
		dst.Del(key)
	}

	dst.Set("Host", host)
	if dst.Get("User-Agent") == "" {
		dst.Set("User-Agent", userAgent)
	}
	return dst
}

// normalizeResponseHeaders prepares the terminal response for the client:
// permissive CORS so browser tooling can read it, and no WWW-Authenticate,
// which on a 401 would trigger a native browser credential dialog.
func normalizeResponseHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Expose-Headers", "*")
	h.Del("WWW-Authenticate")
}

// basicCredential builds the Authorization value for the credential retry.
// GitHub accepts any token as the password of the x-access-token user.
func basicCredential(token string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte("x-access-token:"+token))
}
