package service

import (
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"testing"

	"github-proxy-go/internal/model"
)

func TestTranslateHeaders(t *testing.T) {
	s := &ProxyService{cfg: testServiceConfig("")}
	src := http.Header{
		"Accept":            {"application/x-git-upload-pack-advertisement"},
		"Accept-Encoding":   {"gzip"},
		"Authorization":     {"Bearer client-token"},
		"Host":              {"proxy.example.com"},
		"X-Forwarded-For":   {"1.2.3.4, 5.6.7.8"},
		"X-Forwarded-Proto": {"https"},
		"X-Forwarded-Host":  {"proxy.example.com"},
		"X-Real-Ip":         {"1.2.3.4"},
		"X-Request-Id":      {"abc-123"},
	}

	dst := s.translateHeaders(src, "github.com")

	tests := []struct {
		name    string
		key     string
		wantLen int
	}{
		{"Accept forwarded", "Accept", 1},
		{"Accept-Encoding forwarded", "Accept-Encoding", 1},
		{"client Authorization forwarded", "Authorization", 1},
		{"X-Forwarded-For stripped", "X-Forwarded-For", 0},
		{"X-Forwarded-Proto stripped", "X-Forwarded-Proto", 0},
		{"X-Forwarded-Host stripped", "X-Forwarded-Host", 0},
		{"X-Real-Ip stripped", "X-Real-Ip", 0},
		{"X-Request-Id stripped", "X-Request-Id", 0},
		{"User-Agent injected", "User-Agent", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := len(dst.Values(tt.key))
			if got != tt.wantLen {
				t.Errorf("header %q: got %d values, want %d", tt.key, got, tt.wantLen)
			}
		})
	}

	if host := dst.Get("Host"); host != "github.com" {
		t.Errorf("Host = %q, want %q (forced to target)", host, "github.com")
	}
	if ua := dst.Get("User-Agent"); ua != userAgent {
		t.Errorf("User-Agent = %q, want %q", ua, userAgent)
	}

	// The source header set must not be mutated.
	if len(src.Values("X-Forwarded-For")) != 1 {
		t.Error("translateHeaders mutated the source header set")
	}
}

func TestTranslateHeaders_KeepsClientUserAgent(t *testing.T) {
	s := &ProxyService{cfg: testServiceConfig("")}
	src := http.Header{"User-Agent": {"git/2.43.0"}}

	dst := s.translateHeaders(src, "github.com")

	if ua := dst.Get("User-Agent"); ua != "git/2.43.0" {
		t.Errorf("User-Agent = %q, want client value preserved", ua)
	}
}

func TestNormalizeResponseHeaders(t *testing.T) {
	h := http.Header{
		"Content-Type":     {"application/octet-stream"},
		"Www-Authenticate": {`Basic realm="GitHub"`},
		"Etag":             {`"abc"`},
	}

	normalizeResponseHeaders(h)

	if got := h.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
	if got := h.Get("Access-Control-Expose-Headers"); got != "*" {
		t.Errorf("Access-Control-Expose-Headers = %q, want *", got)
	}
	if got := h.Get("WWW-Authenticate"); got != "" {
		t.Errorf("WWW-Authenticate = %q, want removed", got)
	}
	if got := h.Get("Content-Type"); got != "application/octet-stream" {
		t.Errorf("Content-Type = %q, want preserved", got)
	}
	if got := h.Get("Etag"); got == "" {
		t.Error("Etag should be preserved")
	}
}

func TestBasicCredential(t *testing.T) {
	got := basicCredential("abc123")
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("x-access-token:abc123"))
	if got != want {
		t.Errorf("basicCredential() = %q, want %q", got, want)
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(got, "Basic "))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(decoded) != "x-access-token:abc123" {
		t.Errorf("decoded = %q, want %q", decoded, "x-access-token:abc123")
	}
}

func TestBodySource_BufferedWithCredential(t *testing.T) {
	s := &ProxyService{cfg: testServiceConfig("tok")}
	pr := &model.ProxyRequest{
		Method: http.MethodPost,
		Body:   io.NopCloser(strings.NewReader("0032want deadbeef")),
	}

	newBody, err := s.bodySource(pr)
	if err != nil {
		t.Fatalf("bodySource() error = %v", err)
	}

	// Both attempts must see the full body.
	for i := 0; i < 2; i++ {
		data, err := io.ReadAll(newBody())
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if string(data) != "0032want deadbeef" {
			t.Errorf("attempt %d body = %q, want full body", i, data)
		}
	}
}

func TestBodySource_ReplayableWithoutCredential(t *testing.T) {
	s := &ProxyService{cfg: testServiceConfig("")}
	pr := &model.ProxyRequest{
		Method: http.MethodPost,
		Body:   io.NopCloser(strings.NewReader("payload")),
	}

	newBody, err := s.bodySource(pr)
	if err != nil {
		t.Fatalf("bodySource() error = %v", err)
	}

	// Redirect hops must be able to replay the body even when no
	// credential (and thus no auth retry) is configured.
	for i := 0; i < 2; i++ {
		data, err := io.ReadAll(newBody())
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if string(data) != "payload" {
			t.Errorf("attempt %d body = %q, want full body", i, data)
		}
	}
}

func TestBodySource_NoBodyForGet(t *testing.T) {
	s := &ProxyService{cfg: testServiceConfig("tok")}
	pr := &model.ProxyRequest{
		Method: http.MethodGet,
		Body:   io.NopCloser(strings.NewReader("ignored")),
	}

	newBody, err := s.bodySource(pr)
	if err != nil {
		t.Fatalf("bodySource() error = %v", err)
	}
	if newBody() != nil {
		t.Error("GET requests must not carry a body upstream")
	}
}

func TestRewriteLocation(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		target string
		want   string
	}{
		{
			name:   "host and path",
			origin: "https://proxy.example.com",
			target: "https://cdn.example.net/data/blob.bin",
			want:   "https://proxy.example.com/cdn.example.net/data/blob.bin",
		},
		{
			name:   "query preserved verbatim",
			origin: "https://proxy.example.com",
			target: "https://cdn.example.net/blob?X-Amz-Signature=a%2Bb&Expires=60",
			want:   "https://proxy.example.com/cdn.example.net/blob?X-Amz-Signature=a%2Bb&Expires=60",
		},
		{
			name:   "escaped path segment preserved",
			origin: "http://localhost:8080",
			target: "https://cdn.example.net/a%2Fb/c",
			want:   "http://localhost:8080/cdn.example.net/a%2Fb/c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := mustParse(t, tt.target)
			if got := rewriteLocation(tt.origin, u); got != tt.want {
				t.Errorf("rewriteLocation() = %q, want %q", got, tt.want)
			}
		})
	}
}
