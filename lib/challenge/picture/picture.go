// Package picture renders the solution into a PNG image with the Go font.
package picture

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math/rand/v2"

	"github.com/creditpath/captchad/lib/challenge"
	"github.com/creditpath/captchad/lib/challenge/text"
	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	DefaultWidth    = 200
	DefaultHeight   = 80
	DefaultFontSize = 32

	noiseLines = 8
)

var ErrBadSize = errors.New("picture: width, height and fontSize must be positive")

func init() {
	challenge.Register("picture", Factory{})
}

// Config is the text generator configuration plus image geometry.
type Config struct {
	text.Config
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	FontSize float64 `json:"fontSize,omitempty"`
}

func parse(data json.RawMessage) (Config, error) {
	var c Config
	if len(data) != 0 {
		if err := json.Unmarshal(data, &c); err != nil {
			return Config{}, fmt.Errorf("%w: %w", challenge.ErrBadConfig, err)
		}
	}

	c.Config = c.Config.WithDefaults()
	if c.Width == 0 {
		c.Width = DefaultWidth
	}
	if c.Height == 0 {
		c.Height = DefaultHeight
	}
	if c.FontSize == 0 {
		c.FontSize = DefaultFontSize
	}

	var errs []error
	if err := c.Config.Valid(); err != nil {
		errs = append(errs, err)
	}
	if c.Width < 0 || c.Height < 0 || c.FontSize < 0 {
		errs = append(errs, ErrBadSize)
	}

	if len(errs) != 0 {
		return Config{}, fmt.Errorf("%w: %w", challenge.ErrBadConfig, errors.Join(errs...))
	}

	return c, nil
}

type Factory struct{}

func (Factory) Build(data json.RawMessage) (challenge.Generator, error) {
	c, err := parse(data)
	if err != nil {
		return nil, err
	}

	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("picture: can't parse font: %w", err)
	}

	return &Generator{config: c, font: f}, nil
}

func (Factory) Valid(data json.RawMessage) error {
	_, err := parse(data)
	return err
}

// Generator produces PNG puzzles encoded as data URLs.
type Generator struct {
	config Config
	font   *opentype.Font
}

func (g *Generator) Generate(ctx context.Context) (*challenge.Puzzle, error) {
	solution, err := text.RandomString(g.config.Alphabet, g.config.Length)
	if err != nil {
		return nil, err
	}

	img, err := g.render(solution)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", challenge.ErrGenerate, err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("%w: can't encode png: %w", challenge.ErrGenerate, err)
	}

	return &challenge.Puzzle{
		Presentation: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		Format:       challenge.FormatPNG,
		Solution:     challenge.Normalize(solution),
	}, nil
}

func randomColor() color.Color {
	return color.RGBA{uint8(rand.IntN(160)), uint8(rand.IntN(160)), uint8(rand.IntN(160)), 255}
}

func (g *Generator) render(solution string) (image.Image, error) {
	w, h := g.config.Width, g.config.Height

	// Faces keep glyph caches and are not safe for concurrent use.
	face, err := opentype.NewFace(g.font, &opentype.FaceOptions{
		Size:    g.config.FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("can't create font face: %w", err)
	}
	defer face.Close()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{0xF8, 0xF9, 0xFA, 0xFF}), image.Point{}, draw.Src)

	textWidth := font.MeasureString(face, solution)
	x := (fixed.I(w) - textWidth) / 2
	baseline := h/2 + int(g.config.FontSize)/3

	for _, ch := range solution {
		d := font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(randomColor()),
			Face: face,
			Dot:  fixed.Point26_6{X: x, Y: fixed.I(baseline + rand.IntN(7) - 3)},
		}
		d.DrawString(string(ch))
		x = d.Dot.X
	}

	for range noiseLines {
		drawLine(img, rand.IntN(w), rand.IntN(h), rand.IntN(w), rand.IntN(h), randomColor())
	}

	rotated := imaging.Rotate(img, rand.Float64()*10-5, color.RGBA{0xF8, 0xF9, 0xFA, 0xFF})
	cropped := imaging.CropCenter(rotated, w, h)

	return imaging.Blur(cropped, 0.6), nil
}

// drawLine is Bresenham's line algorithm.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx := abs(x1 - x0)
	dy := abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx - dy

	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
