package printer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"

	"xprinter/internal/imaging"
	"xprinter/internal/tspl"
)

// Common errors
var (
	ErrNotConnected       = errors.New("printer not connected")
	ErrRFCOMMFailed       = errors.New("failed to establish RFCOMM connection")
	ErrPrivilegeRequired  = errors.New("root privileges required for RFCOMM")
	ErrConnectionCanceled = errors.New("connection canceled")
	ErrNotSupported       = errors.New("operation not supported on this platform")
	ErrPermission         = errors.New("bluetooth permission revoked")
	ErrInvalidConfig      = errors.New("invalid printer configuration")
)

// Config is the media and print-head setup applied to a connection.
type Config struct {
	Density     int     // 0-15
	Speed       float64 // inches per second
	PaperWidth  float64 // inches
	PaperHeight float64 // inches
}

// DefaultConfig matches the defaults of the configurePrinter request.
func DefaultConfig() Config {
	return Config{Density: 8, Speed: 4.0, PaperWidth: 2.0, PaperHeight: 1.0}
}

// Validate rejects values no printer accepts.
func (c Config) Validate() error {
	if c.Density < 0 || c.Density > 15 {
		return fmt.Errorf("%w: density %d out of range 0-15", ErrInvalidConfig, c.Density)
	}
	if c.Speed <= 0 {
		return fmt.Errorf("%w: speed must be > 0", ErrInvalidConfig)
	}
	if c.PaperWidth <= 0 || c.PaperHeight <= 0 {
		return fmt.Errorf("%w: paper size must be > 0", ErrInvalidConfig)
	}
	return nil
}

// Image is one bitmap placed on the label. Width is in dots; the image is
// scaled to it keeping its aspect ratio.
type Image struct {
	X, Y  int
	Width int
	Image image.Image
}

// Transport opens sessions to a printer by address.
type Transport interface {
	Dial(ctx context.Context, address string) (io.ReadWriteCloser, error)
}

// Driver speaks the printer language over an open session.
type Driver interface {
	Configure(cfg Config) error
	PrintImage(img Image) error
}

// Protocol binds a Driver to an open session.
type Protocol func(rw io.ReadWriter) Driver

// TSPLProtocol binds the TSPL driver.
func TSPLProtocol(rw io.ReadWriter) Driver {
	return NewTSPL(rw)
}

// TSPL drives label printers that understand TSPL2
type TSPL struct {
	w         io.Writer
	Threshold uint8
	Copies    int
}

func NewTSPL(w io.Writer) *TSPL {
	return &TSPL{w: w, Threshold: imaging.DefaultThreshold, Copies: 1}
}

// Configure sends SIZE/GAP/SPEED/DENSITY/DIRECTION
func (p *TSPL) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return p.send(tspl.BuildSetup(cfg.PaperWidth, cfg.PaperHeight, cfg.Density, cfg.Speed))
}

// PrintImage clears the buffer, draws the bitmap and prints one label
func (p *TSPL) PrintImage(img Image) error {
	if img.Image == nil {
		return imaging.ErrEmptyImage
	}
	// TSPL prints cleared bits, so dark pixels are packed as 0
	r, err := imaging.Pack(img.Image, img.Width, p.Threshold, true)
	if err != nil {
		return err
	}
	return p.send(tspl.BuildPrintJob(img.X, img.Y, r.WidthBytes, r.Height, r.Data, p.Copies))
}

func (p *TSPL) send(data []byte) error {
	if p.w == nil {
		return ErrNotConnected
	}
	if _, err := p.w.Write(data); err != nil {
		return fmt.Errorf("write failed: %w", classify(err))
	}
	return nil
}

// classify marks OS permission failures so callers can tell a revoked
// permission from a plain I/O error.
func classify(err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %w", ErrPermission, err)
	}
	return err
}
