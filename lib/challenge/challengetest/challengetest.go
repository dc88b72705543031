// Package challengetest has deterministic generators and records for tests.
package challengetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/creditpath/captchad/lib/challenge"
	"github.com/google/uuid"
)

// New returns a pending record for sessionID whose solution is solution.
func New(t *testing.T, sessionID, solution string, ttl time.Duration) *challenge.Record {
	t.Helper()

	now := time.Now()

	return &challenge.Record{
		ID:           uuid.Must(uuid.NewV7()).String(),
		SessionID:    sessionID,
		Generator:    "test",
		Solution:     challenge.Normalize(solution),
		Presentation: solution,
		Format:       challenge.FormatPlain,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
}

// Sequence is a Generator that hands out the given solutions in order,
// wrapping around at the end.
type Sequence struct {
	Solutions []string

	mu sync.Mutex
	i  int
}

func (s *Sequence) Generate(context.Context) (*challenge.Puzzle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sol := s.Solutions[s.i%len(s.Solutions)]
	s.i++

	return &challenge.Puzzle{
		Presentation: "<svg>" + sol + "</svg>",
		Format:       challenge.FormatSVG,
		Solution:     challenge.Normalize(sol),
	}, nil
}

// Failing is a Generator that always returns Err.
type Failing struct {
	Err error
}

func (f Failing) Generate(context.Context) (*challenge.Puzzle, error) {
	return nil, f.Err
}
