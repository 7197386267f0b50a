// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest represents a client request to be forwarded to an upstream
// GitHub host. Path and RawQuery are kept in their escaped wire form so the
// outbound URL is byte-identical to what the client sent.
type ProxyRequest struct {
	Ctx      context.Context
	Method   string
	Host     string // resolved target host, already allowlist-checked
	Path     string // escaped path on the target host, begins with "/"
	RawQuery string // raw query string without "?", may be empty
	Header   http.Header
	Body     io.ReadCloser

	// Origin is the scheme://host of the proxy itself as seen by the
	// client, used to rewrite redirects that leave the allowlist.
	Origin string
}

// ProxyResponse represents the terminal upstream response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
