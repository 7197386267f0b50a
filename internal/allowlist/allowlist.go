// Package allowlist validates proxy targets against the fixed set of
// GitHub hosts the proxy is willing to reach.
package allowlist

import (
	"errors"
	"strings"
)

// ErrMalformedPath is returned when the request path does not contain a
// host segment followed by at least one path segment.
var ErrMalformedPath = errors.New("path must be /<host>/<path>")

// ErrHostNotAllowed is returned when the host segment is not in the allowlist.
var ErrHostNotAllowed = errors.New("host is not in the allowlist")

// hosts is the fixed set of upstream hosts eligible for proxying.
// Immutable for the process lifetime.
var hosts = map[string]bool{
	"github.com":                    true,
	"raw.githubusercontent.com":     true,
	"gist.github.com":               true,
	"gist.githubusercontent.com":    true,
	"objects.githubusercontent.com": true,
	"codeload.github.com":           true,
	"github.githubassets.com":       true,
}

// Allowed reports whether host may be proxied to. Matching is exact and
// case-insensitive; subdomains of allowed hosts are not allowed.
func Allowed(host string) bool {
	return hosts[strings.ToLower(host)]
}

// Len returns the number of allowlisted hosts.
func Len() int {
	return len(hosts)
}

// Target is a parsed proxy destination. Path keeps the escaped form of the
// inbound path so no percent-decoding round trip occurs.
type Target struct {
	Host string
	Path string
}

// ParseTarget splits an escaped request path of the form /<host>/<rest>
// into the target host and the path on that host. It performs no network
// activity. The host must be allowlisted and <rest> must be non-empty.
func ParseTarget(escapedPath string) (Target, error) {
	p := strings.TrimPrefix(escapedPath, "/")

	host, rest, ok := strings.Cut(p, "/")
	if !ok || host == "" || rest == "" {
		return Target{}, ErrMalformedPath
	}

	if !Allowed(host) {
		return Target{}, ErrHostNotAllowed
	}

	return Target{Host: strings.ToLower(host), Path: "/" + rest}, nil
}
