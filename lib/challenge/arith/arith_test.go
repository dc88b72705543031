package arith

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/creditpath/captchad/lib/challenge"
)

func TestQuestionRanges(t *testing.T) {
	for range 2000 {
		a, b, ans := Question(OpAdd)
		if a < 1 || a > 20 || b < 1 || b > 20 || ans != a+b {
			t.Fatalf("bad addition %d + %d = %d", a, b, ans)
		}

		a, b, ans = Question(OpSub)
		if a < 10 || a > 29 || b < 1 || b >= a || ans != a-b || ans <= 0 {
			t.Fatalf("bad subtraction %d - %d = %d", a, b, ans)
		}

		a, b, ans = Question(OpMul)
		if a < 1 || a > 10 || b < 1 || b > 10 || ans != a*b {
			t.Fatalf("bad multiplication %d × %d = %d", a, b, ans)
		}
	}
}

func TestGenerate(t *testing.T) {
	g, err := Factory{}.Build(nil)
	if err != nil {
		t.Fatal(err)
	}

	for range 200 {
		p, err := g.Generate(t.Context())
		if err != nil {
			t.Fatal(err)
		}

		var (
			a, b int
			op   string
		)
		if _, err := fmt.Sscanf(p.Presentation, "%d %s %d = ?", &a, &op, &b); err != nil {
			t.Fatalf("can't parse %q: %v", p.Presentation, err)
		}

		var want int
		switch op {
		case OpAdd:
			want = a + b
		case OpSub:
			want = a - b
		case OpMul:
			want = a * b
		default:
			t.Fatalf("unknown operator in %q", p.Presentation)
		}

		if p.Solution != strconv.Itoa(want) {
			t.Errorf("%q: solution %q, want %d", p.Presentation, p.Solution, want)
		}

		if p.Format != challenge.FormatPlain {
			t.Errorf("wrong format %q", p.Format)
		}
	}
}

func TestConfig(t *testing.T) {
	for _, tt := range []struct {
		name string
		in   string
		err  error
	}{
		{"default", `{}`, nil},
		{"ascii multiply", `{"operators":["x","+"]}`, nil},
		{"empty list", `{"operators":[]}`, ErrNoOperators},
		{"division", `{"operators":["/"]}`, ErrUnknownOperator},
		{"bad json", `{`, challenge.ErrBadConfig},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if err := (Factory{}).Valid(json.RawMessage(tt.in)); !errors.Is(err, tt.err) {
				t.Errorf("want: %v, got: %v", tt.err, err)
			}
		})
	}
}

func TestSingleOperator(t *testing.T) {
	g, err := Factory{}.Build(json.RawMessage(`{"operators":["*"]}`))
	if err != nil {
		t.Fatal(err)
	}

	p, err := g.Generate(t.Context())
	if err != nil {
		t.Fatal(err)
	}

	var a, b int
	if _, err := fmt.Sscanf(p.Presentation, "%d × %d = ?", &a, &b); err != nil {
		t.Fatalf("wanted a multiplication, got %q: %v", p.Presentation, err)
	}
}
