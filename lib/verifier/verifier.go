// Package verifier issues session-scoped challenges and checks answers to
// them exactly once.
package verifier

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/creditpath/captchad"
	"github.com/creditpath/captchad/internal"
	"github.com/creditpath/captchad/lib/challenge"
	"github.com/creditpath/captchad/lib/store"
	"github.com/google/uuid"
)

// Rejection reasons. A missing record and an expired one are deliberately
// reported the same way.
const (
	ReasonNotFoundOrExpired = "session-not-found-or-expired"
	ReasonMismatch          = "mismatch"
)

// Result is the outcome of a verification attempt.
type Result struct {
	Verified bool
	Reason   string

	// Record is the consumed challenge, set when Verified is true.
	Record *challenge.Record
}

// Stats describes the pending challenges in the store.
type Stats struct {
	Pending  int
	Sessions []string
}

// Options configures a Verifier. Store and Generator are required.
type Options struct {
	Store         store.Interface
	Generator     challenge.Generator
	GeneratorName string
	TTL           time.Duration
	Now           func() time.Time
	Logger        *slog.Logger
}

type Verifier struct {
	records store.JSON[challenge.Record]
	gen     challenge.Generator
	genName string
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

func New(opts Options) *Verifier {
	if opts.TTL <= 0 {
		opts.TTL = captchad.DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.GeneratorName == "" {
		opts.GeneratorName = "unknown"
	}

	return &Verifier{
		records: store.JSON[challenge.Record]{
			Underlying: opts.Store,
			Prefix:     captchad.ChallengeKeyPrefix,
		},
		gen:     opts.Generator,
		genName: opts.GeneratorName,
		ttl:     opts.TTL,
		now:     opts.Now,
		logger:  opts.Logger.With("generator", opts.GeneratorName),
	}
}

// TTL is how long issued challenges live.
func (v *Verifier) TTL() time.Duration {
	return v.ttl
}

// Issue generates a fresh challenge for sessionID, replacing any pending one.
func (v *Verifier) Issue(ctx context.Context, sessionID string) (*challenge.Record, error) {
	if sessionID == "" {
		return nil, challenge.NewError("issue", "session_required", fmt.Errorf("%w: sessionId", challenge.ErrMissingField))
	}

	lg := v.logger.With("session", internal.SessionHash(sessionID))

	start := time.Now()
	puzzle, err := v.gen.Generate(ctx)
	if err != nil {
		lg.Error("can't generate puzzle", "err", err)
		return nil, challenge.NewInternalError("issue", "generate_failed", fmt.Errorf("%w: %w", challenge.ErrGenerate, err))
	}
	challenge.GenerateTime.WithLabelValues(v.genName).Observe(time.Since(start).Seconds())

	now := v.now()
	rec := &challenge.Record{
		ID:           uuid.Must(uuid.NewV7()).String(),
		SessionID:    sessionID,
		Generator:    v.genName,
		Solution:     challenge.Normalize(puzzle.Solution),
		Presentation: puzzle.Presentation,
		Format:       puzzle.Format,
		CreatedAt:    now,
		ExpiresAt:    now.Add(v.ttl),
	}

	if err := v.records.Set(ctx, sessionID, *rec, v.ttl); err != nil {
		lg.Error("can't store challenge", "err", err)
		return nil, challenge.NewInternalError("issue", "generate_failed", fmt.Errorf("can't store challenge: %w", err))
	}

	challenge.Issued.WithLabelValues(v.genName).Inc()
	lg.Debug("issued challenge", "id", rec.ID, "expires_at", rec.ExpiresAt)

	return rec, nil
}

// Verify consumes the pending challenge for sessionID and compares its
// solution with input. Every call that finds a record destroys it, whatever
// the outcome.
func (v *Verifier) Verify(ctx context.Context, sessionID, input string) (Result, error) {
	switch {
	case sessionID == "":
		return Result{}, challenge.NewError("verify", "session_and_input_required", fmt.Errorf("%w: sessionId", challenge.ErrMissingField))
	case input == "":
		return Result{}, challenge.NewError("verify", "session_and_input_required", fmt.Errorf("%w: submittedInput", challenge.ErrMissingField))
	}

	lg := v.logger.With("session", internal.SessionHash(sessionID))

	rec, err := v.records.GetDel(ctx, sessionID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return v.reject(lg, ReasonNotFoundOrExpired), nil
	case err != nil:
		lg.Error("can't fetch challenge", "err", err)
		return Result{}, challenge.NewInternalError("verify", "verify_failed", fmt.Errorf("can't fetch challenge: %w", err))
	}

	if rec.Expired(v.now()) {
		return v.reject(lg, ReasonNotFoundOrExpired), nil
	}

	got := challenge.Normalize(input)
	if subtle.ConstantTimeCompare([]byte(got), []byte(rec.Solution)) != 1 {
		return v.reject(lg.With("id", rec.ID), ReasonMismatch), nil
	}

	challenge.Validated.WithLabelValues(rec.Generator).Inc()
	lg.Debug("challenge passed", "id", rec.ID)

	return Result{Verified: true, Record: &rec}, nil
}

func (v *Verifier) reject(lg *slog.Logger, reason string) Result {
	challenge.Failed.WithLabelValues(reason).Inc()
	lg.Debug("challenge rejected", "reason", reason)
	return Result{Reason: reason}
}

// Stats reports the pending challenge sessions.
func (v *Verifier) Stats(ctx context.Context) (Stats, error) {
	sessions, err := v.records.Keys(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("can't list challenges: %w", err)
	}

	return Stats{
		Pending:  len(sessions),
		Sessions: sessions,
	}, nil
}
