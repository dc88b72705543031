package lib

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/creditpath/captchad"
	"github.com/creditpath/captchad/internal"
	"github.com/creditpath/captchad/lib/challenge"
	"github.com/creditpath/captchad/lib/config"
	"github.com/creditpath/captchad/lib/passtoken"
	"github.com/creditpath/captchad/lib/ratelimit"
	"github.com/creditpath/captchad/lib/store"
	"github.com/creditpath/captchad/lib/verifier"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

var (
	ErrNoStore     = errors.New("lib: Options.Store is required")
	ErrNoGenerator = errors.New("lib: Options.Generator is required")
)

type Options struct {
	Store         store.Interface
	Generator     challenge.Generator
	GeneratorName string
	TTL           time.Duration
	BasePrefix    string
	CORS          config.CORS

	// PassTokens enables minting tokens on success and the siteverify
	// endpoint when set.
	PassTokens *passtoken.Issuer

	// Limiter rate limits challenge issuance per client when set.
	Limiter *ratelimit.Limiter

	// ExposeSessions lists pending session IDs in /stats.
	ExposeSessions bool

	Now func() time.Time
}

// Server is the captchad HTTP API.
type Server struct {
	mux      http.Handler
	verifier *verifier.Verifier
	tokens   *passtoken.Issuer
	limiter  *ratelimit.Limiter
	opts     Options
	started  time.Time
}

func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, ErrNoStore
	}

	if opts.Generator == nil {
		return nil, ErrNoGenerator
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	if opts.TTL <= 0 {
		opts.TTL = captchad.DefaultTTL
	}

	opts.BasePrefix = strings.TrimSuffix(opts.BasePrefix, "/")

	result := &Server{
		verifier: verifier.New(verifier.Options{
			Store:         opts.Store,
			Generator:     opts.Generator,
			GeneratorName: opts.GeneratorName,
			TTL:           opts.TTL,
			Now:           opts.Now,
		}),
		tokens:  opts.PassTokens,
		limiter: opts.Limiter,
		opts:    opts,
		started: opts.Now(),
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(internal.NoStoreCache)
	mux.Use(result.cors)

	mux.NotFound(result.notFound)
	mux.MethodNotAllowed(result.methodNotAllowed)

	mux.Route(opts.BasePrefix+captchad.APIPrefix, result.routes)
	if opts.BasePrefix == "" {
		result.routes(mux)
	} else {
		mux.Route(opts.BasePrefix, result.routes)
	}

	result.mux = mux

	slog.Debug("captchad server configured",
		"generator", opts.GeneratorName,
		"ttl", opts.TTL,
		"base_prefix", opts.BasePrefix,
		"pass_tokens", opts.PassTokens != nil,
		"rate_limit", opts.Limiter != nil,
	)

	return result, nil
}

func (s *Server) routes(r chi.Router) {
	r.Post("/generate", s.handleGenerate)
	r.Post("/verify", s.handleVerify)
	r.Post("/siteverify", s.handleSiteverify)
	r.Get("/widget", s.handleWidget)
	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Verifier exposes the challenge state machine behind the API.
func (s *Server) Verifier() *verifier.Verifier {
	return s.verifier
}
