package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github-proxy-go/internal/config"
	"github-proxy-go/internal/model"
)

func TestRegisterRoutes_Wiring(t *testing.T) {
	f := &fakeForwarder{
		resp: &model.ProxyResponse{
			StatusCode: http.StatusOK,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader("ok")),
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{}

	proxy := NewProxyHandler(f, cfg, logger)
	health := NewHealthHandler(cfg, "test")
	landing := NewLandingHandler()

	e := echo.New()
	RegisterRoutes(e, proxy, health, landing)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"GET / serves landing page", http.MethodGet, "/", http.StatusOK},
		{"GET /healthz", http.MethodGet, "/healthz", http.StatusOK},
		{"GET /proxy/status", http.MethodGet, "/proxy/status", http.StatusOK},
		{"GET github path is proxied", http.MethodGet, "/github.com/torvalds/linux/info/refs", http.StatusOK},
		{"POST github path is proxied", http.MethodPost, "/github.com/owner/repo/git-upload-pack", http.StatusOK},
		{"single segment is rejected", http.MethodGet, "/unknown", http.StatusBadRequest},
		{"disallowed host is rejected", http.MethodGet, "/example.com/file", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			if ct := rec.Header().Get("Content-Type"); tt.path == "/" && !strings.HasPrefix(ct, "text/html") {
				t.Errorf("landing Content-Type = %q, want text/html", ct)
			}
		})
	}
}

func TestLandingPage_UsesRequestOrigin(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Host = "gh.example.org"
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := NewLandingHandler().Home(c); err != nil {
		t.Fatalf("Home() error = %v", err)
	}

	if !strings.Contains(rec.Body.String(), "http://gh.example.org/github.com/") {
		t.Errorf("landing page should embed the request origin, got: %s", rec.Body.String())
	}
}
