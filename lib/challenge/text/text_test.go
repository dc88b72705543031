package text

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/creditpath/captchad/lib/challenge"
)

func TestGenerate(t *testing.T) {
	g, err := Factory{}.Build(json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}

	for range 64 {
		p, err := g.Generate(t.Context())
		if err != nil {
			t.Fatal(err)
		}

		if len(p.Solution) != DefaultLength {
			t.Errorf("wanted solution of length %d, got %q", DefaultLength, p.Solution)
		}

		if p.Solution != strings.ToLower(p.Solution) {
			t.Errorf("solution is not lowercase: %q", p.Solution)
		}

		if strings.ContainsAny(p.Solution, "0o1il") {
			t.Errorf("solution contains an ambiguous character: %q", p.Solution)
		}

		if p.Format != challenge.FormatSVG {
			t.Errorf("wrong format: %q", p.Format)
		}
	}
}

func TestRenderSVG(t *testing.T) {
	svg := RenderSVG("K7M2")

	if !strings.HasPrefix(svg, `<svg width="120" height="40"`) || !strings.HasSuffix(svg, `</svg>`) {
		t.Fatalf("not a 120x40 svg document: %s", svg)
	}

	for _, tt := range []struct {
		name  string
		re    string
		count int
	}{
		{"noise lines", `<line `, noiseLines},
		{"glyphs", `<text `, 4},
		{"noise dots", `<circle `, noiseDots},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(regexp.MustCompile(tt.re).FindAllString(svg, -1)); got != tt.count {
				t.Errorf("wanted %d, got %d", tt.count, got)
			}
		})
	}

	rot := regexp.MustCompile(`rotate\((-?[0-9.]+) `)
	for _, m := range rot.FindAllStringSubmatch(svg, -1) {
		var deg float64
		if err := json.Unmarshal([]byte(m[1]), &deg); err != nil {
			t.Fatal(err)
		}
		if deg < -15 || deg > 15 {
			t.Errorf("glyph rotated %v degrees, outside +-15", deg)
		}
	}
}

func TestRenderSVGWidens(t *testing.T) {
	if svg := RenderSVG(strings.Repeat("A", 8)); !strings.HasPrefix(svg, `<svg width="206"`) {
		t.Errorf("wide solutions should widen the image: %.40s", svg)
	}
}

func TestConfigValid(t *testing.T) {
	for _, tt := range []struct {
		name string
		in   string
		err  error
	}{
		{"defaults", `{}`, nil},
		{"custom", `{"length":6,"alphabet":"ab"}`, nil},
		{"too long", `{"length":17}`, ErrBadLength},
		{"negative", `{"length":-1}`, ErrBadLength},
		{"blank alphabet", `{"alphabet":"   "}`, ErrEmptyAlphabet},
		{"bad json", `[`, challenge.ErrBadConfig},
	} {
		t.Run(tt.name, func(t *testing.T) {
			err := Factory{}.Valid(json.RawMessage(tt.in))
			if !errors.Is(err, tt.err) {
				t.Errorf("want: %v, got: %v", tt.err, err)
			}
		})
	}
}

func TestRandomStringAlphabet(t *testing.T) {
	s, err := RandomString("x", 10)
	if err != nil {
		t.Fatal(err)
	}
	if s != "xxxxxxxxxx" {
		t.Errorf("got %q", s)
	}
}
