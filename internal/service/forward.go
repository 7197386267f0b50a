package service

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github-proxy-go/internal/model"
)

// maxRedirectHops bounds the number of upstream attempts for one request.
const maxRedirectHops = 10

// ErrTooManyRedirects is returned when the redirect chain exceeds maxRedirectHops.
var ErrTooManyRedirects = errors.New("too many redirects")

// redirectStatuses are the statuses whose Location the forwarder acts on.
var redirectStatuses = map[int]bool{
	http.StatusMovedPermanently:  true,
	http.StatusFound:             true,
	http.StatusSeeOther:          true,
	http.StatusTemporaryRedirect: true,
	http.StatusPermanentRedirect: true,
}

// followRedirects issues the outbound request and follows redirects
// manually, one hop at a time, so the allowlist is enforced before every
// fetch. Method, headers and any attached Authorization survive each hop;
// GitHub's redirect chains (e.g. LFS object retrieval) cross allowlisted
// sub-hosts and authorization must survive the hop.
//
// Terminal outcomes:
//   - non-redirect status: returned as-is with its body stream intact
//   - redirect without Location: returned as-is, nothing to rewrite
//   - redirect to a non-allowlisted host: never fetched; Location is
//     rewritten to route the client's next hop back through the proxy
//   - more than maxRedirectHops followable redirects: ErrTooManyRedirects
func (s *ProxyService) followRedirects(pr *model.ProxyRequest, header http.Header, newBody func() io.Reader) (*model.ProxyResponse, error) {
	u, err := url.Parse(s.scheme + "://" + pr.Host + pr.Path)
	if err != nil {
		return nil, fmt.Errorf("build target URL: %w", err)
	}
	u.RawQuery = pr.RawQuery

	for hop := 1; hop <= maxRedirectHops; hop++ {
		resp, err := s.client.DoStream(pr.Ctx, pr.Method, u.String(), header, newBody())
		if err != nil {
			return nil, err
		}

		if !redirectStatuses[resp.StatusCode] {
			s.observeHops(hop)
			return resp, nil
		}

		location := resp.Header.Get("Location")
		if location == "" {
			// Nothing to follow or rewrite.
			s.observeHops(hop)
			return resp, nil
		}

		next, err := u.Parse(location)
		if err != nil {
			s.logger.Warn("unparseable redirect location",
				"location", location,
				"host", u.Host,
			)
			s.observeHops(hop)
			return resp, nil
		}

		if !s.allowed(next.Hostname()) {
			// Do not fetch off-allowlist targets. Rewrite the Location so
			// the client performs the next hop back through the proxy.
			resp.Header.Set("Location", rewriteLocation(pr.Origin, next))
			if s.metrics != nil {
				s.metrics.RewrittenRedirects.Inc()
			}
			s.logger.Debug("rewrote off-allowlist redirect",
				"host", next.Hostname(),
			)
			s.observeHops(hop)
			return resp, nil
		}

		// Drain before close so the pooled connection can be reused for
		// the next hop.
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		header.Set("Host", next.Host)
		u = next

		s.logger.Debug("following redirect",
			"hop", hop,
			"status", resp.StatusCode,
			"host", u.Host,
		)
	}

	return nil, fmt.Errorf("%w: more than %d hops", ErrTooManyRedirects, maxRedirectHops)
}

// observeHops records how many upstream attempts a request took to reach
// any terminal outcome, rewritten redirects included.
func (s *ProxyService) observeHops(hop int) {
	if s.metrics != nil {
		s.metrics.RedirectHops.Observe(float64(hop))
	}
}

// rewriteLocation maps an off-allowlist redirect target back onto the proxy:
// {origin}/{host}{path}{query}. Path and query keep their escaped form.
func rewriteLocation(origin string, target *url.URL) string {
	loc := origin + "/" + target.Host + target.EscapedPath()
	if target.RawQuery != "" {
		loc += "?" + target.RawQuery
	}
	return loc
}
