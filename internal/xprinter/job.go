package xprinter

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	"xprinter/internal/imaging"
	"xprinter/internal/printer"
)

// Default print widths in dots.
const (
	BitmapWidth = 600
	ImageWidth  = 460
)

// Job is one label to print. Exactly one of Path and Data is set: Path names
// an image file, Data holds an encoded image (PNG, JPEG, GIF, BMP or WebP).
type Job struct {
	Path  string
	Data  []byte
	X, Y  int
	Width int // dots; 0 picks BitmapWidth for files and ImageWidth for data
}

func (j Job) width() int {
	switch {
	case j.Width > 0:
		return j.Width
	case j.Path != "":
		return BitmapWidth
	default:
		return ImageWidth
	}
}

// Print runs the job to completion: permission check, reconnect if needed,
// input validation, then the print itself. Every failure is reported both
// as an Error state event and as the returned error.
func (m *Manager) Print(ctx context.Context, job Job) error {
	if !m.granted() {
		m.setState(Error, "Bluetooth permissions not granted")
		return ErrPermissionDenied
	}

	if err := m.ensureConnected(ctx); err != nil {
		return err
	}

	if err := validate(job); err != nil {
		m.setState(Error, err.Error())
		return err
	}

	m.op.Lock()
	defer m.op.Unlock()

	m.mu.Lock()
	h := m.handle
	m.mu.Unlock()
	if h == nil {
		// closed between the connectivity check and here
		m.setState(Error, "Printer not connected")
		return ErrNotConnected
	}

	m.setState(Printing, "")
	img, err := decode(job)
	if err == nil {
		err = h.driver.PrintImage(printer.Image{X: job.X, Y: job.Y, Width: job.width(), Image: img})
	}
	if err != nil {
		m.log.Warn("[xprinter] print failed", "address", h.address, "error", err)
		m.setState(Error, describe("Printing error: ", err))
		return fmt.Errorf("%w: %w", ErrPrint, err)
	}
	m.setState(Connected, "")
	return nil
}

// Submit runs Print in the background. The channel receives exactly one
// result.
func (m *Manager) Submit(ctx context.Context, job Job) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- m.Print(ctx, job)
	}()
	return done
}

// ensureConnected makes one reconnect attempt to the last target, bounded by
// the reconnect grace.
func (m *Manager) ensureConnected(ctx context.Context) error {
	if m.IsConnected() {
		return nil
	}
	if m.LastTarget() == "" {
		m.setState(Error, "Printer not connected")
		return ErrNotConnected
	}

	rctx, cancel := context.WithTimeout(ctx, m.grace)
	defer cancel()
	m.log.Info("[xprinter] not connected, reconnecting", "address", m.LastTarget(), "grace", m.grace)
	if _, err := m.Reconnect(rctx); err != nil {
		if errors.Is(rctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", err, context.DeadlineExceeded)
		}
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	if !m.IsConnected() {
		m.setState(Error, "Printer not connected")
		return ErrNotConnected
	}
	return nil
}

func validate(job Job) error {
	switch {
	case job.Path != "" && job.Data != nil:
		return fmt.Errorf("%w: both path and data set", ErrInvalidArgument)
	case job.Path != "":
		f, err := os.Open(job.Path)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrFileNotFound, job.Path)
		}
		f.Close()
		return nil
	case len(job.Data) == 0:
		return fmt.Errorf("%w: no image data", ErrInvalidArgument)
	}
	return nil
}

func decode(job Job) (image.Image, error) {
	if job.Path != "" {
		return imaging.LoadImage(job.Path)
	}
	return imaging.Decode(job.Data)
}
