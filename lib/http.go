package lib

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"slices"

	"github.com/creditpath/captchad/internal"
	"github.com/creditpath/captchad/lib/challenge"
	"github.com/creditpath/captchad/lib/localization"
)

const maxBodySize = 64 << 10

var errBadBody = errors.New("lib: request body is malformed")

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		internal.GetRequestLogger(r).Error("failed to marshal JSON payload", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success":false,"error":"Failed to marshal JSON response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(response); err != nil {
		internal.GetRequestLogger(r).Debug("failed to write JSON response", "err", err)
	}
}

// respondError writes a localized {success:false, error} body.
func respondError(w http.ResponseWriter, r *http.Request, status int, messageID string) {
	localizer := localization.GetLocalizer(r)
	respondJSON(w, r, status, errorResponse{Error: localizer.T(messageID)})
}

// handleError maps err to a response. *challenge.Error values carry their own
// status and public message; anything else is an internal error.
func handleError(w http.ResponseWriter, r *http.Request, lg *slog.Logger, fallbackID string, err error) {
	var cerr *challenge.Error
	if !errors.As(err, &cerr) {
		cerr = challenge.NewInternalError("handle", fallbackID, err)
	}

	if cerr.StatusCode >= http.StatusInternalServerError {
		lg.Error("request failed", "verb", cerr.Verb, "err", cerr.PrivateReason)
	} else {
		lg.Debug("request rejected", "verb", cerr.Verb, "err", cerr.PrivateReason)
	}

	respondError(w, r, cerr.StatusCode, cerr.PublicReason)
}

// decodeBody fills dst from a JSON body or, for HTML form posts, from the
// form values named by the JSON tags of dst's fields.
func decodeBody(r *http.Request, dst any) error {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch ct {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodySize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return fmt.Errorf("%w: %w", errBadBody, err)
		}

		m := map[string]string{}
		for k := range r.PostForm {
			m[k] = r.PostForm.Get(k)
		}

		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("%w: %w", errBadBody, err)
		}

		return json.Unmarshal(data, dst)
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", errBadBody, err)
	}

	return nil
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, http.StatusNotFound, "not_found")
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
}

func (s *Server) originAllowed(origin string) bool {
	if origin == "" {
		return false
	}

	if s.opts.CORS.AllowAll || slices.Contains(s.opts.CORS.AllowedOrigins, origin) {
		return true
	}

	if !s.opts.CORS.AllowLocalhost {
		return false
	}

	u, err := url.Parse(origin)
	if err != nil || u.Scheme != "http" {
		return false
	}

	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}

	return false
}

// cors answers preflight requests and sets the CORS headers for allowed
// origins.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		w.Header().Add("Vary", "Origin")

		if s.originAllowed(origin) {
			if s.opts.CORS.AllowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
