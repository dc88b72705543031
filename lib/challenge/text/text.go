// Package text renders random character strings as noisy SVG images.
package text

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"math/big"
	mrand "math/rand/v2"
	"strings"

	"github.com/creditpath/captchad/lib/challenge"
)

// DefaultAlphabet leaves out 0, O, 1, I and L, which are easy to confuse.
const DefaultAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	DefaultLength = 4
	MaxLength     = 16

	height     = 40
	minWidth   = 120
	glyphPitch = 22
	noiseLines = 3
	noiseDots  = 20
)

var (
	ErrBadLength     = errors.New("text: length must be between 1 and 16")
	ErrEmptyAlphabet = errors.New("text: alphabet is empty")
)

var palette = []string{"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4", "#FFEAA7", "#DDA0DD", "#98D8C8"}

func init() {
	challenge.Register("text", Factory{})
}

// Config controls the generated solution.
type Config struct {
	Length   int    `json:"length,omitempty"`
	Alphabet string `json:"alphabet,omitempty"`
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.Length == 0 {
		c.Length = DefaultLength
	}
	if c.Alphabet == "" {
		c.Alphabet = DefaultAlphabet
	}
	return c
}

func (c Config) Valid() error {
	var errs []error

	if c.Length < 1 || c.Length > MaxLength {
		errs = append(errs, fmt.Errorf("%w, got %d", ErrBadLength, c.Length))
	}

	if strings.TrimSpace(c.Alphabet) == "" {
		errs = append(errs, ErrEmptyAlphabet)
	}

	if len(errs) != 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ParseConfig decodes, defaults and validates a generator config.
func ParseConfig(data json.RawMessage) (Config, error) {
	var c Config
	if len(data) != 0 {
		if err := json.Unmarshal(data, &c); err != nil {
			return Config{}, fmt.Errorf("%w: %w", challenge.ErrBadConfig, err)
		}
	}

	c = c.WithDefaults()
	if err := c.Valid(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", challenge.ErrBadConfig, err)
	}

	return c, nil
}

type Factory struct{}

func (Factory) Build(data json.RawMessage) (challenge.Generator, error) {
	c, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}

	return &Generator{Config: c}, nil
}

func (Factory) Valid(data json.RawMessage) error {
	_, err := ParseConfig(data)
	return err
}

// RandomString picks n characters uniformly from alphabet using crypto/rand.
func RandomString(alphabet string, n int) (string, error) {
	chars := []rune(alphabet)
	max := big.NewInt(int64(len(chars)))

	var sb strings.Builder
	for range n {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("%w: %w", challenge.ErrGenerate, err)
		}
		sb.WriteRune(chars[idx.Int64()])
	}

	return sb.String(), nil
}

// Generator produces SVG text puzzles.
type Generator struct {
	Config Config
}

func (g *Generator) Generate(ctx context.Context) (*challenge.Puzzle, error) {
	text, err := RandomString(g.Config.Alphabet, g.Config.Length)
	if err != nil {
		return nil, err
	}

	return &challenge.Puzzle{
		Presentation: RenderSVG(text),
		Format:       challenge.FormatSVG,
		Solution:     challenge.Normalize(text),
	}, nil
}

func color() string {
	return palette[mrand.IntN(len(palette))]
}

// RenderSVG draws text with noise lines, per-glyph rotation and jitter, and
// noise dots.
func RenderSVG(text string) string {
	chars := []rune(text)
	width := max(minWidth, 30+glyphPitch*len(chars))

	var sb strings.Builder
	fmt.Fprintf(&sb, `<svg width="%d" height="%d" xmlns="http://www.w3.org/2000/svg">`, width, height)
	fmt.Fprintf(&sb, `<rect width="%d" height="%d" fill="#F8F9FA" stroke="#E9ECEF" stroke-width="1"/>`, width, height)

	w, h := float64(width), float64(height)

	for range noiseLines {
		fmt.Fprintf(&sb, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s" stroke-width="1" opacity="0.3"/>`,
			mrand.Float64()*w, mrand.Float64()*h, mrand.Float64()*w, mrand.Float64()*h, color())
	}

	for i, ch := range chars {
		x := 15 + i*glyphPitch
		y := 25 + (mrand.Float64()-0.5)*6
		rotation := (mrand.Float64() - 0.5) * 30
		fmt.Fprintf(&sb, `<text x="%d" y="%.1f" font-family="Arial, sans-serif" font-size="18" font-weight="bold" fill="%s" transform="rotate(%.1f %d %.1f)">%s</text>`,
			x, y, color(), rotation, x, y, html.EscapeString(string(ch)))
	}

	for range noiseDots {
		fmt.Fprintf(&sb, `<circle cx="%.1f" cy="%.1f" r="1" fill="%s" opacity="0.4"/>`,
			mrand.Float64()*w, mrand.Float64()*h, color())
	}

	sb.WriteString(`</svg>`)
	return sb.String()
}
