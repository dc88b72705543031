package internal

import (
	"strings"
	"testing"
)

func TestSessionHash(t *testing.T) {
	if got := SessionHash(""); got != "" {
		t.Errorf("empty session should hash to empty string, got %q", got)
	}

	a := SessionHash("abc")
	b := SessionHash("abc")
	c := SessionHash("abd")

	if a != b {
		t.Errorf("hash is not stable: %q != %q", a, b)
	}

	if a == c {
		t.Errorf("different sessions collided: %q", a)
	}

	if strings.Contains(a, "abc") {
		t.Errorf("hash leaks the session ID: %q", a)
	}

	if !strings.HasPrefix(a, "s-") {
		t.Errorf("hash is missing its prefix: %q", a)
	}
}

func BenchmarkSessionHash(b *testing.B) {
	ids := []string{
		"abc",
		"0198f3b4-6a0e-7c21-9a55-3f1b2c9d8e70",
		"session_1718035200000_k2j3h4g5f6",
	}

	b.ReportAllocs()
	for i := 0; b.Loop(); i++ {
		_ = SessionHash(ids[i%len(ids)])
	}
}
