package sweeper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/creditpath/captchad/lib/store"
	"github.com/creditpath/captchad/lib/store/memory"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSweepLeavesOnlyLiveRecords(t *testing.T) {
	c := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	st := memory.New(memory.WithClock(c.Now))

	ttls := map[string]time.Duration{
		"challenge:a": time.Minute,
		"challenge:b": 2 * time.Minute,
		"challenge:c": 3 * time.Minute,
		"challenge:d": 10 * time.Minute,
		"challenge:e": 10 * time.Minute,
	}

	for k, ttl := range ttls {
		if err := st.Set(t.Context(), k, []byte(k), ttl); err != nil {
			t.Fatal(err)
		}
	}

	s := New("store", st, time.Hour)

	for _, tt := range []struct {
		advance     time.Duration
		wantRemoved int
		wantLive    int
	}{
		{30 * time.Second, 0, 5},
		{90 * time.Second, 2, 3},
		{time.Minute, 1, 2},
		{time.Hour, 2, 0},
	} {
		c.Advance(tt.advance)

		n, err := s.Sweep(t.Context())
		if err != nil {
			t.Fatal(err)
		}
		if n != tt.wantRemoved {
			t.Errorf("at %v: removed %d, want %d", c.Now(), n, tt.wantRemoved)
		}

		keys, err := st.Keys(t.Context(), "challenge:")
		if err != nil {
			t.Fatal(err)
		}
		if len(keys) != tt.wantLive {
			t.Errorf("at %v: %d live, want %d", c.Now(), len(keys), tt.wantLive)
		}
	}
}

type countingStore struct {
	store.Interface
	calls atomic.Int32
	err   error
}

func (c *countingStore) Cleanup(ctx context.Context) (int, error) {
	c.calls.Add(1)
	return 0, c.err
}

func TestStartStop(t *testing.T) {
	cs := &countingStore{Interface: memory.New()}
	s := New("store", cs, 5*time.Millisecond)

	s.Start(t.Context())
	s.Start(t.Context())

	deadline := time.Now().Add(5 * time.Second)
	for cs.calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper never ran")
		}
		//nosleep:bypass polling a real ticker.
		time.Sleep(time.Millisecond)
	}

	s.Stop()
	after := cs.calls.Load()

	//nosleep:bypass making sure the ticker is gone.
	time.Sleep(30 * time.Millisecond)

	if got := cs.calls.Load(); got != after {
		t.Errorf("sweeper kept running after Stop: %d -> %d", after, got)
	}

	s.Stop()
}

func TestSweepErrorIsNotFatal(t *testing.T) {
	cs := &countingStore{Interface: memory.New(), err: errors.New("disk on fire")}
	s := New("store", cs, 2*time.Millisecond)

	if _, err := s.Sweep(t.Context()); err == nil {
		t.Error("wanted Sweep to return the store error")
	}

	s.Start(t.Context())
	defer s.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for cs.calls.Load() < 4 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper stopped after an error")
		}
		//nosleep:bypass polling a real ticker.
		time.Sleep(time.Millisecond)
	}
}

func TestStopWithoutStart(t *testing.T) {
	New("store", memory.New(), time.Minute).Stop()
}
