package passtoken

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/creditpath/captchad/lib/challenge/challengetest"
	"github.com/creditpath/captchad/lib/store/memory"
)

func TestMintRedeemOnce(t *testing.T) {
	for _, tt := range []struct {
		name string
		opts Options
	}{
		{"ed25519", Options{}},
		{"hs512", Options{HS512Secret: []byte("hunter2hunter2hunter2")}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Store = memory.New()
			iss, err := New(tt.opts)
			if err != nil {
				t.Fatal(err)
			}

			rec := challengetest.New(t, "s1", "abcd", time.Minute)

			tok, err := iss.Mint(t.Context(), rec, "example.com")
			if err != nil {
				t.Fatal(err)
			}

			if strings.Count(tok, ".") != 2 {
				t.Fatalf("not a JWT: %q", tok)
			}

			red, err := iss.Redeem(t.Context(), tok)
			if err != nil {
				t.Fatal(err)
			}

			if red.ChallengeID != rec.ID || red.Hostname != "example.com" {
				t.Errorf("wrong redemption: %+v", red)
			}

			if _, err := iss.Redeem(t.Context(), tok); !errors.Is(err, ErrRedeemed) {
				t.Errorf("second redeem: wanted ErrRedeemed, got: %v", err)
			}
		})
	}
}

func TestRedeemInvalid(t *testing.T) {
	st := memory.New()
	iss, err := New(Options{Store: st})
	if err != nil {
		t.Fatal(err)
	}

	other, err := New(Options{Store: st})
	if err != nil {
		t.Fatal(err)
	}

	foreign, err := other.Mint(t.Context(), challengetest.New(t, "s1", "abcd", time.Minute), "")
	if err != nil {
		t.Fatal(err)
	}

	for _, tt := range []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"empty", ""},
		{"other key", foreign},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := iss.Redeem(t.Context(), tt.token); !errors.Is(err, ErrInvalid) {
				t.Errorf("wanted ErrInvalid, got: %v", err)
			}
		})
	}
}

func TestRedeemExpired(t *testing.T) {
	now := time.Now()
	iss, err := New(Options{
		Store:      memory.New(),
		Expiration: time.Minute,
		Now:        func() time.Time { return now },
	})
	if err != nil {
		t.Fatal(err)
	}

	tok, err := iss.Mint(t.Context(), challengetest.New(t, "s1", "abcd", time.Minute), "")
	if err != nil {
		t.Fatal(err)
	}

	now = now.Add(2 * time.Minute)

	if _, err := iss.Redeem(t.Context(), tok); !errors.Is(err, ErrRedeemed) {
		t.Errorf("wanted ErrRedeemed for expired token, got: %v", err)
	}
}

func TestConcurrentRedeem(t *testing.T) {
	iss, err := New(Options{Store: memory.New()})
	if err != nil {
		t.Fatal(err)
	}

	tok, err := iss.Mint(t.Context(), challengetest.New(t, "s1", "abcd", time.Minute), "")
	if err != nil {
		t.Fatal(err)
	}

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)

	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := iss.Redeem(t.Context(), tok); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if n := wins.Load(); n != 1 {
		t.Errorf("wanted one successful redemption, got %d", n)
	}
}
