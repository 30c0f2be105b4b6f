package imaging

import (
	"encoding/base64"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

func checkerboard(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.Set(x, y, color.Black)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}
	return img
}

func TestPackHalfBlack(t *testing.T) {
	r, err := Pack(checkerboard(16, 4), 16, DefaultThreshold, false)
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	if r.WidthBytes != 2 || r.Height != 4 {
		t.Fatalf("Pack() = %dx%d bytes, want 2x4", r.WidthBytes, r.Height)
	}
	for y := 0; y < r.Height; y++ {
		if r.Data[y*2] != 0xFF || r.Data[y*2+1] != 0x00 {
			t.Errorf("row %d = %08b %08b, want 11111111 00000000", y, r.Data[y*2], r.Data[y*2+1])
		}
	}
}

func TestPackInvert(t *testing.T) {
	r, err := Pack(checkerboard(16, 2), 16, DefaultThreshold, true)
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	if r.Data[0] != 0x00 || r.Data[1] != 0xFF {
		t.Errorf("inverted row = %08b %08b, want 00000000 11111111", r.Data[0], r.Data[1])
	}
}

func TestPackScalesKeepingAspect(t *testing.T) {
	r, err := Pack(checkerboard(100, 50), 20, DefaultThreshold, false)
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	if r.WidthBytes != 3 {
		t.Errorf("WidthBytes = %d, want 3 (20 dots rounded up)", r.WidthBytes)
	}
	if r.Height != 10 {
		t.Errorf("Height = %d, want 10", r.Height)
	}
	if len(r.Data) != r.WidthBytes*r.Height {
		t.Errorf("len(Data) = %d, want %d", len(r.Data), r.WidthBytes*r.Height)
	}
}

func TestPackEmpty(t *testing.T) {
	if _, err := Pack(image.NewRGBA(image.Rect(0, 0, 0, 0)), 8, DefaultThreshold, false); err != ErrEmptyImage {
		t.Errorf("Pack(empty) error = %v, want ErrEmptyImage", err)
	}
}

func TestTransparentIsWhite(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 1))
	r, err := Pack(img, 8, DefaultThreshold, false)
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	if r.Data[0] != 0 {
		t.Errorf("transparent row = %08b, want all white", r.Data[0])
	}
}

func TestPNGRoundTripThroughBase64(t *testing.T) {
	data, err := EncodePNG(checkerboard(8, 8))
	if err != nil {
		t.Fatalf("EncodePNG() error = %v", err)
	}
	encoded := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)

	raw, err := DecodeBase64(encoded)
	if err != nil {
		t.Fatalf("DecodeBase64() error = %v", err)
	}
	img, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if img.Bounds().Dx() != 8 {
		t.Errorf("width = %d, want 8", img.Bounds().Dx())
	}
}

func TestDecodeBase64Invalid(t *testing.T) {
	if _, err := DecodeBase64("not base64!!"); err == nil {
		t.Error("DecodeBase64() should fail on invalid input")
	}
}

func TestLoadImage(t *testing.T) {
	data, err := EncodePNG(checkerboard(4, 4))
	if err != nil {
		t.Fatalf("EncodePNG() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "label.png")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := LoadImage(path); err != nil {
		t.Errorf("LoadImage() error = %v", err)
	}
	if _, err := LoadImage(filepath.Join(t.TempDir(), "missing.png")); !os.IsNotExist(err) {
		t.Errorf("LoadImage(missing) error = %v, want not-exist", err)
	}
}

func TestPreviewMonochrome(t *testing.T) {
	img := PreviewMonochrome(Raster{WidthBytes: 1, Height: 1, Data: []byte{0x80}})
	if g := img.At(0, 0).(color.Gray); g.Y != 0 {
		t.Errorf("pixel 0 = %d, want black", g.Y)
	}
	if g := img.At(1, 0).(color.Gray); g.Y != 255 {
		t.Errorf("pixel 1 = %d, want white", g.Y)
	}
}

func TestRenderText(t *testing.T) {
	img, err := RenderText("SKU 1234", 200, 100, TextOptions{FontSize: 10})
	if err != nil {
		t.Fatalf("RenderText() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 100 {
		t.Errorf("bounds = %v, want 200x100", b)
	}

	vert, err := RenderText("SKU", 200, 100, TextOptions{FontSize: 10, Orientation: Vertical})
	if err != nil {
		t.Fatalf("RenderText(vertical) error = %v", err)
	}
	if b := vert.Bounds(); b.Dx() != 200 || b.Dy() != 100 {
		t.Errorf("vertical bounds = %v, want 200x100", b)
	}

	if _, err := RenderText("   ", 200, 100, TextOptions{}); err != ErrNoText {
		t.Errorf("RenderText(blank) error = %v, want ErrNoText", err)
	}
}
