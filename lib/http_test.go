package lib

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/creditpath/captchad/lib/config"
)

func TestCORS(t *testing.T) {
	for _, tt := range []struct {
		name   string
		cors   config.CORS
		origin string
		want   string
	}{
		{
			name:   "localhost allowed",
			cors:   config.CORS{AllowLocalhost: true},
			origin: "http://localhost:3000",
			want:   "http://localhost:3000",
		},
		{
			name:   "loopback ip allowed",
			cors:   config.CORS{AllowLocalhost: true},
			origin: "http://127.0.0.1:5173",
			want:   "http://127.0.0.1:5173",
		},
		{
			name:   "https localhost is not the dev server",
			cors:   config.CORS{AllowLocalhost: true},
			origin: "https://localhost",
		},
		{
			name:   "localhost disabled",
			cors:   config.CORS{},
			origin: "http://localhost:3000",
		},
		{
			name:   "listed origin",
			cors:   config.CORS{AllowedOrigins: []string{"https://shop.example"}},
			origin: "https://shop.example",
			want:   "https://shop.example",
		},
		{
			name:   "unlisted origin",
			cors:   config.CORS{AllowedOrigins: []string{"https://shop.example"}},
			origin: "https://evil.example",
		},
		{
			name:   "allow all",
			cors:   config.CORS{AllowAll: true},
			origin: "https://anything.example",
			want:   "*",
		},
		{
			name: "no origin",
			cors: config.CORS{AllowAll: true},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			s := spawnServer(t, func(o *Options) { o.CORS = tt.cors })

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}

			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("wanted Access-Control-Allow-Origin %q, got %q", tt.want, got)
			}
		})
	}
}

func TestPreflight(t *testing.T) {
	s := spawnServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/verify", nil)
	req.Header.Set("Origin", "http://localhost:8080")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("wanted 204, got %d", rec.Code)
	}

	if methods := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(methods, http.MethodPost) {
		t.Errorf("POST not allowed in preflight: %q", methods)
	}

	if rec.Body.Len() != 0 {
		t.Errorf("preflight has a body: %q", rec.Body.String())
	}
}

func TestDecodeBodyLimit(t *testing.T) {
	var dst generateRequest
	body := `{"sessionId":"` + strings.Repeat("a", maxBodySize) + `"}`

	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	if err := decodeBody(req, &dst); err == nil {
		t.Error("oversized body decoded")
	}
}
