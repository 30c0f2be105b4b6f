package imaging

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

// PrinterDPI is the resolution of 203 dpi thermal heads
const PrinterDPI = 203

type Orientation int

const (
	Horizontal Orientation = iota
	Vertical
)

// TextOptions configures text rendering
type TextOptions struct {
	FontSize      float64
	Orientation   Orientation
	Invert        bool // white text on black
	WordBreakOnly bool // only break lines on spaces
}

var ErrNoText = errors.New("no text to render")

var regular *truetype.Font

func init() {
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		panic("imaging: parse embedded font: " + err.Error())
	}
	regular = f
}

// RenderText draws text centered on a width x height label
func RenderText(text string, width, height int, opts TextOptions) (image.Image, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoText
	}
	if opts.FontSize <= 0 {
		opts.FontSize = 12
	}

	// vertical labels are drawn landscape then rotated
	renderW, renderH := width, height
	if opts.Orientation == Vertical {
		renderW, renderH = height, width
	}

	var bg, fg color.Color = color.White, color.Black
	if opts.Invert {
		bg, fg = color.Black, color.White
	}

	img := image.NewRGBA(image.Rect(0, 0, renderW, renderH))
	draw.Draw(img, img.Bounds(), &image.Uniform{bg}, image.Point{}, draw.Src)

	c := freetype.NewContext()
	c.SetDPI(PrinterDPI)
	c.SetFont(regular)
	c.SetFontSize(opts.FontSize)
	c.SetClip(img.Bounds())
	c.SetDst(img)
	c.SetSrc(&image.Uniform{fg})
	c.SetHinting(font.HintingFull)

	face := truetype.NewFace(regular, &truetype.Options{Size: opts.FontSize, DPI: PrinterDPI})
	defer face.Close()
	metrics := face.Metrics()
	lineHeight := metrics.Height.Ceil()

	lines := wrapText(text, face, renderW-10, opts.WordBreakOnly)
	y := (renderH-len(lines)*lineHeight)/2 + metrics.Ascent.Ceil()
	for _, line := range lines {
		x := (renderW - measureString(face, line)) / 2
		if _, err := c.DrawString(line, freetype.Pt(x, y)); err != nil {
			return nil, err
		}
		y += lineHeight
	}

	if opts.Orientation == Vertical {
		return rotate90CW(img), nil
	}
	return img, nil
}

// wrapText splits text into lines no wider than maxWidth. With wordsOnly set,
// lines break at spaces and only over-long words are split.
func wrapText(text string, face font.Face, maxWidth int, wordsOnly bool) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		if !wordsOnly {
			lines = append(lines, breakRunes(para, face, maxWidth)...)
			continue
		}
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		current := ""
		for _, word := range words {
			candidate := word
			if current != "" {
				candidate = current + " " + word
			}
			if measureString(face, candidate) <= maxWidth {
				current = candidate
				continue
			}
			if current != "" {
				lines = append(lines, current)
			}
			parts := breakRunes(word, face, maxWidth)
			lines = append(lines, parts[:len(parts)-1]...)
			current = parts[len(parts)-1]
		}
		lines = append(lines, current)
	}
	return lines
}

// breakRunes splits s anywhere to fit maxWidth. It always returns at least
// one element.
func breakRunes(s string, face font.Face, maxWidth int) []string {
	var parts []string
	current := ""
	for _, r := range s {
		candidate := current + string(r)
		if measureString(face, candidate) > maxWidth && current != "" {
			parts = append(parts, current)
			current = string(r)
		} else {
			current = candidate
		}
	}
	return append(parts, current)
}

// measureString returns the width of a string in pixels
func measureString(face font.Face, s string) int {
	var width fixed.Int26_6
	for _, r := range s {
		if adv, ok := face.GlyphAdvance(r); ok {
			width += adv
		}
	}
	return width.Ceil()
}

// rotate90CW rotates an image 90 degrees clockwise
func rotate90CW(src image.Image) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(h-1-y, x, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}
