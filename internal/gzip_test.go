package internal

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGzipMiddleware(t *testing.T) {
	h := GzipMiddleware(1, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "hello, world")
	}))

	t.Run("identity", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if enc := rec.Header().Get("Content-Encoding"); enc != "" {
			t.Errorf("wanted no content encoding, got %q", enc)
		}

		if rec.Body.String() != "hello, world" {
			t.Errorf("wrong body: %q", rec.Body.String())
		}
	})

	t.Run("gzip", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Encoding", "gzip, deflate")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if enc := rec.Header().Get("Content-Encoding"); enc != "gzip" {
			t.Fatalf("wanted gzip content encoding, got %q", enc)
		}

		gr, err := gzip.NewReader(rec.Body)
		if err != nil {
			t.Fatal(err)
		}

		data, err := io.ReadAll(gr)
		if err != nil {
			t.Fatal(err)
		}

		if string(data) != "hello, world" {
			t.Errorf("wrong body: %q", string(data))
		}
	})
}
