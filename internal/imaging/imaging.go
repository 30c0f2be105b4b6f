package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// DefaultThreshold is the gray level below which a pixel prints black.
const DefaultThreshold = 128

var ErrEmptyImage = errors.New("image has no pixels")

// LoadImage loads an image from file
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// Decode decodes an encoded image held in memory
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// DecodeBase64 accepts plain base64 or a data URI ("data:image/png;base64,...")
func DecodeBase64(s string) ([]byte, error) {
	if i := strings.Index(s, ","); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return data, nil
}

// EncodePNG encodes an image as PNG
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Raster is a packed 1-bit bitmap, MSB first, one row every WidthBytes bytes
type Raster struct {
	WidthBytes int
	Height     int
	Data       []byte
}

// Pack scales img to the given dot width (rounded up to a whole byte),
// keeping the aspect ratio, and packs it one bit per dot. A set bit marks a
// dark pixel unless invert is true.
func Pack(img image.Image, width int, threshold uint8, invert bool) (Raster, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return Raster{}, ErrEmptyImage
	}
	if width <= 0 {
		width = b.Dx()
	}
	widthBytes := (width + 7) / 8
	height := b.Dy() * width / b.Dx()
	if height < 1 {
		height = 1
	}
	return Raster{
		WidthBytes: widthBytes,
		Height:     height,
		Data:       ToMonochrome(img, widthBytes*8, height, threshold, invert),
	}, nil
}

// ToMonochrome converts an image to 1-bit monochrome bitmap
// Returns raw bytes suitable for TSPL BITMAP command
// Width must be divisible by 8
func ToMonochrome(img image.Image, width, height int, threshold uint8, invert bool) []byte {
	resized := resizeToFit(img, width, height)
	rb := resized.Bounds()

	widthBytes := width / 8
	data := make([]byte, widthBytes*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			gray := uint8(255) // white outside the scaled image
			if x < rb.Dx() && y < rb.Dy() {
				gray = rgbToGray(resized.At(rb.Min.X+x, rb.Min.Y+y))
			}

			var bit uint8
			if gray < threshold {
				bit = 1
			}
			if invert {
				bit = 1 - bit
			}

			data[y*widthBytes+x/8] |= bit << (7 - x%8)
		}
	}

	return data
}

// rgbToGray converts a color to grayscale value, compositing transparent
// pixels onto white paper
func rgbToGray(c color.Color) uint8 {
	r, g, b, a := c.RGBA()
	white := float64(0xffff - a)
	gray := (0.299*(float64(r)+white) + 0.587*(float64(g)+white) + 0.114*(float64(b)+white)) / 256
	if gray > 255 {
		gray = 255
	}
	return uint8(gray)
}

// resizeToFit scales image to fit within bounds while maintaining aspect ratio
func resizeToFit(img image.Image, maxW, maxH int) image.Image {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	scale := float64(maxW) / float64(srcW)
	if s := float64(maxH) / float64(srcH); s < scale {
		scale = s
	}

	newW := int(float64(srcW) * scale)
	newH := int(float64(srcH) * scale)

	// nearest-neighbor is enough for thermal output
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	for y := 0; y < newH; y++ {
		for x := 0; x < newW; x++ {
			srcX := min(int(float64(x)/scale), srcW-1)
			srcY := min(int(float64(y)/scale), srcH-1)
			dst.Set(x, y, img.At(bounds.Min.X+srcX, bounds.Min.Y+srcY))
		}
	}

	return dst
}

// PreviewMonochrome creates a viewable image from monochrome bitmap data
// where a set bit is black
func PreviewMonochrome(r Raster) image.Image {
	width := r.WidthBytes * 8
	img := image.NewGray(image.Rect(0, 0, width, r.Height))

	for y := 0; y < r.Height; y++ {
		for x := 0; x < width; x++ {
			bit := (r.Data[y*r.WidthBytes+x/8] >> (7 - x%8)) & 1
			if bit == 1 {
				img.SetGray(x, y, color.Gray{0})
			} else {
				img.SetGray(x, y, color.Gray{255})
			}
		}
	}

	return img
}
