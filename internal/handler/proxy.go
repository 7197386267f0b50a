package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github-proxy-go/internal/allowlist"
	"github-proxy-go/internal/config"
	"github-proxy-go/internal/model"
	"github-proxy-go/internal/service"
)

// Forwarder sends a translated request upstream and returns the terminal
// response. *service.ProxyService is the production implementation; tests
// substitute fakes so no network is involved.
type Forwarder interface {
	Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error)
}

// ProxyHandler forwards /<host>/<path> requests to the upstream GitHub hosts.
type ProxyHandler struct {
	service Forwarder
	cfg     *config.Config
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc Forwarder, cfg *config.Config, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		cfg:     cfg,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle validates the target, forwards the request and streams the
// terminal response back to the client.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	// EscapedPath keeps percent-encoding intact; the outbound URL must be
	// byte-identical to what the client sent.
	target, err := allowlist.ParseTarget(req.URL.EscapedPath())
	if err != nil {
		return h.mapError(c, err)
	}

	pr := &model.ProxyRequest{
		Ctx:      req.Context(),
		Method:   req.Method,
		Host:     target.Host,
		Path:     target.Path,
		RawQuery: req.URL.RawQuery,
		Header:   req.Header,
		Body:     req.Body,
		Origin:   c.Scheme() + "://" + req.Host,
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Past this point the status line is already on the wire; a copy
	// failure can only truncate the body.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", h.sanitizeError(err),
			"path", req.URL.Path,
		)
	}

	return nil
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("proxy error",
		"err", h.sanitizeError(err),
		"path", c.Request().URL.Path,
	)

	if errors.Is(err, allowlist.ErrMalformedPath) {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "path must be /<github host>/<path>",
		})
	}

	if errors.Is(err, allowlist.ErrHostNotAllowed) {
		return c.JSON(http.StatusForbidden, map[string]string{
			"error": "host is not in the proxy allowlist",
		})
	}

	if errors.Is(err, service.ErrTooManyRedirects) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream redirect chain exceeded the hop limit",
		})
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "upstream request timed out",
		})
	}

	if errors.Is(err, context.Canceled) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "client disconnected",
		})
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream host unreachable",
		})
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream connection failed",
		})
	}

	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "upstream request failed",
	})
}

// sanitizeError redacts the configured credential from error messages
// before they reach the logs.
func (h *ProxyHandler) sanitizeError(err error) string {
	msg := err.Error()
	if token := h.cfg.GitHub.Token; token != "" {
		msg = strings.ReplaceAll(msg, token, "[REDACTED]")
	}
	return msg
}
