package lib

import (
	"errors"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/a-h/templ"
	"github.com/creditpath/captchad"
	"github.com/creditpath/captchad/internal"
	"github.com/creditpath/captchad/lib/challenge"
	"github.com/creditpath/captchad/lib/localization"
	"github.com/creditpath/captchad/lib/passtoken"
	"github.com/creditpath/captchad/web"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "captchad_requests",
		Help: "The number of API requests by endpoint and status code",
	}, []string{"endpoint", "code"})

	pendingChallenges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "captchad_pending_challenges",
		Help: "The number of challenges waiting for an answer, as of the last health or stats request",
	})

	tokensRedeemed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "captchad_pass_tokens_redeemed",
		Help: "The number of siteverify calls by result",
	}, []string{"result"})
)

type generateRequest struct {
	SessionID string `json:"sessionId"`
}

type generateResponse struct {
	Success      bool      `json:"success"`
	SessionID    string    `json:"sessionId"`
	Presentation string    `json:"presentation"`
	Format       string    `json:"format"`
	SVGData      string    `json:"svgData,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type verifyRequest struct {
	SessionID      string `json:"sessionId"`
	SubmittedInput string `json:"submittedInput"`
	UserInput      string `json:"userInput"`
}

type verifyResponse struct {
	Success  bool   `json:"success"`
	Verified bool   `json:"verified"`
	Token    string `json:"token,omitempty"`
}

type siteverifyRequest struct {
	Response string `json:"response"`
	Secret   string `json:"secret"`
}

type siteverifyResponse struct {
	Success     bool     `json:"success"`
	ChallengeTS string   `json:"challenge_ts,omitempty"`
	Hostname    string   `json:"hostname,omitempty"`
	ErrorCodes  []string `json:"error-codes,omitempty"`
}

// allowIssue applies the rate limiter, writing the refusal itself.
func (s *Server) allowIssue(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter == nil {
		return true
	}

	addr, err := s.limiter.ClientAddr(r)
	if err != nil {
		internal.GetRequestLogger(r).Debug("can't find client address, not rate limiting", "err", err)
		return true
	}

	if s.limiter.Allow(addr) {
		return true
	}

	w.Header().Set("Retry-After", "10")
	respondError(w, r, http.StatusTooManyRequests, "rate_limited")
	return false
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)

	var req generateRequest
	if err := decodeBody(r, &req); err != nil {
		lg.Debug("can't decode generate request", "err", err)
		requests.WithLabelValues("generate", "400").Inc()
		respondError(w, r, http.StatusBadRequest, "invalid_request")
		return
	}

	if req.SessionID == "" {
		requests.WithLabelValues("generate", "400").Inc()
		respondError(w, r, http.StatusBadRequest, "session_required")
		return
	}

	if !s.allowIssue(w, r) {
		requests.WithLabelValues("generate", "429").Inc()
		return
	}

	rec, err := s.verifier.Issue(r.Context(), req.SessionID)
	if err != nil {
		requests.WithLabelValues("generate", "error").Inc()
		handleError(w, r, lg, "generate_failed", err)
		return
	}

	resp := generateResponse{
		Success:      true,
		SessionID:    rec.SessionID,
		Presentation: rec.Presentation,
		Format:       rec.Format,
		ExpiresAt:    rec.ExpiresAt,
	}

	if rec.Format == challenge.FormatSVG {
		resp.SVGData = rec.Presentation
	}

	requests.WithLabelValues("generate", "200").Inc()
	respondJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)

	var req verifyRequest
	if err := decodeBody(r, &req); err != nil {
		lg.Debug("can't decode verify request", "err", err)
		requests.WithLabelValues("verify", "400").Inc()
		respondError(w, r, http.StatusBadRequest, "invalid_request")
		return
	}

	input := req.SubmittedInput
	if input == "" {
		input = req.UserInput
	}

	result, err := s.verifier.Verify(r.Context(), req.SessionID, input)
	if err != nil {
		requests.WithLabelValues("verify", "error").Inc()
		handleError(w, r, lg, "verify_failed", err)
		return
	}

	resp := verifyResponse{
		Success:  true,
		Verified: result.Verified,
	}

	if result.Verified && s.tokens != nil {
		tok, err := s.tokens.Mint(r.Context(), result.Record, hostname(r))
		if err != nil {
			requests.WithLabelValues("verify", "error").Inc()
			handleError(w, r, lg, "verify_failed", err)
			return
		}
		resp.Token = tok
	}

	requests.WithLabelValues("verify", "200").Inc()
	respondJSON(w, r, http.StatusOK, resp)
}

func hostname(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.Host)
	if err != nil {
		return r.Host
	}

	return host
}

func (s *Server) handleSiteverify(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)

	if s.tokens == nil {
		s.notFound(w, r)
		return
	}

	var req siteverifyRequest
	if err := decodeBody(r, &req); err != nil {
		lg.Debug("can't decode siteverify request", "err", err)
		tokensRedeemed.WithLabelValues("bad-request").Inc()
		respondJSON(w, r, http.StatusBadRequest, siteverifyResponse{ErrorCodes: []string{"bad-request"}})
		return
	}

	if req.Response == "" {
		tokensRedeemed.WithLabelValues("missing-input-response").Inc()
		respondJSON(w, r, http.StatusBadRequest, siteverifyResponse{ErrorCodes: []string{"missing-input-response"}})
		return
	}

	red, err := s.tokens.Redeem(r.Context(), req.Response)
	switch {
	case errors.Is(err, passtoken.ErrInvalid):
		lg.Debug("invalid pass token", "err", err)
		tokensRedeemed.WithLabelValues("invalid-input-response").Inc()
		respondJSON(w, r, http.StatusOK, siteverifyResponse{ErrorCodes: []string{"invalid-input-response"}})
		return
	case errors.Is(err, passtoken.ErrRedeemed):
		tokensRedeemed.WithLabelValues("timeout-or-duplicate").Inc()
		respondJSON(w, r, http.StatusOK, siteverifyResponse{ErrorCodes: []string{"timeout-or-duplicate"}})
		return
	case err != nil:
		lg.Error("can't redeem pass token", "err", err)
		tokensRedeemed.WithLabelValues("internal-error").Inc()
		respondJSON(w, r, http.StatusInternalServerError, siteverifyResponse{ErrorCodes: []string{"internal-error"}})
		return
	}

	tokensRedeemed.WithLabelValues("success").Inc()
	respondJSON(w, r, http.StatusOK, siteverifyResponse{
		Success:     true,
		ChallengeTS: red.SolvedAt.UTC().Format(time.RFC3339),
		Hostname:    red.Hostname,
	})
}

// handleWidget issues a challenge and renders it as an HTML fragment. A
// session ID is minted when the caller did not bring one.
func (s *Server) handleWidget(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		sessionID = uuid.Must(uuid.NewV7()).String()
	}

	if !s.allowIssue(w, r) {
		requests.WithLabelValues("widget", "429").Inc()
		return
	}

	rec, err := s.verifier.Issue(r.Context(), sessionID)
	if err != nil {
		requests.WithLabelValues("widget", "error").Inc()
		handleError(w, r, lg, "generate_failed", err)
		return
	}

	requests.WithLabelValues("widget", "200").Inc()

	localizer := localization.GetLocalizer(r)
	verifyPath := s.opts.BasePrefix + captchad.APIPrefix + "/verify"
	widgetPath := s.opts.BasePrefix + captchad.APIPrefix + "/widget"

	internal.GzipMiddleware(1, templ.Handler(
		web.Widget(rec, verifyPath, widgetPath, localizer),
		templ.WithContentType("text/html; charset=utf-8"),
	)).ServeHTTP(w, r)
}

type healthResponse struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Uptime     float64   `json:"uptime"`
	Challenges int       `json:"challenges"`
}

func (s *Server) uptime() float64 {
	return s.opts.Now().Sub(s.started).Seconds()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st, err := s.verifier.Stats(r.Context())
	if err != nil {
		internal.GetRequestLogger(r).Error("health check can't read store", "err", err)
		respondJSON(w, r, http.StatusServiceUnavailable, healthResponse{
			Status:    "degraded",
			Timestamp: s.opts.Now(),
			Uptime:    s.uptime(),
		})
		return
	}

	pendingChallenges.Set(float64(st.Pending))

	respondJSON(w, r, http.StatusOK, healthResponse{
		Status:     "ok",
		Timestamp:  s.opts.Now(),
		Uptime:     s.uptime(),
		Challenges: st.Pending,
	})
}

type memoryStats struct {
	Alloc      uint64 `json:"alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"numGC"`
	Goroutines int    `json:"goroutines"`
}

type statsResponse struct {
	Server     string      `json:"server"`
	Version    string      `json:"version"`
	Uptime     float64     `json:"uptime"`
	Challenges int         `json:"challenges"`
	Sessions   []string    `json:"sessions,omitempty"`
	Memory     memoryStats `json:"memory"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.verifier.Stats(r.Context())
	if err != nil {
		handleError(w, r, internal.GetRequestLogger(r), "verify_failed", err)
		return
	}

	pendingChallenges.Set(float64(st.Pending))

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	resp := statsResponse{
		Server:     "captchad",
		Version:    captchad.Version,
		Uptime:     s.uptime(),
		Challenges: st.Pending,
		Memory: memoryStats{
			Alloc:      ms.Alloc,
			Sys:        ms.Sys,
			NumGC:      ms.NumGC,
			Goroutines: runtime.NumGoroutine(),
		},
	}

	if s.opts.ExposeSessions {
		resp.Sessions = st.Sessions
	}

	respondJSON(w, r, http.StatusOK, resp)
}
