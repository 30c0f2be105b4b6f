package tspl

import (
	"fmt"
	"strings"
)

// BitmapMode selects how BITMAP data is combined with the image buffer.
type BitmapMode int

const (
	Overwrite BitmapMode = 0
	OR        BitmapMode = 1
	XOR       BitmapMode = 2
)

// LabelSize represents a common label stock
type LabelSize struct {
	Name   string
	Width  float64 // inches
	Height float64 // inches
}

// Common label sizes
var (
	Label2x1   = LabelSize{"2 x 1 in", 2.0, 1.0}
	Label2x2   = LabelSize{"2 x 2 in", 2.0, 2.0}
	Label2x3   = LabelSize{"2 x 3 in", 2.0, 3.0}
	Label3x2   = LabelSize{"3 x 2 in", 3.0, 2.0}
	Label4x6   = LabelSize{"4 x 6 in", 4.0, 6.0}
	Label40x30 = LabelSize{"40 x 30 mm", 40.0 / 25.4, 30.0 / 25.4}
)

var AllSizes = []LabelSize{Label2x1, Label2x2, Label2x3, Label3x2, Label4x6, Label40x30}

// Dots converts the size to print-head dots at dpi.
func (s LabelSize) Dots(dpi int) (width, height int) {
	return int(s.Width*float64(dpi) + 0.5), int(s.Height*float64(dpi) + 0.5)
}

// Command builds TSPL2 commands
type Command struct {
	buf strings.Builder
}

func New() *Command {
	return &Command{}
}

// Size sets label dimensions in inches
func (c *Command) Size(width, height float64) *Command {
	fmt.Fprintf(&c.buf, "SIZE %.2f,%.2f\r\n", width, height)
	return c
}

// Gap sets gap between labels in inches
func (c *Command) Gap(gap, offset float64) *Command {
	fmt.Fprintf(&c.buf, "GAP %.2f,%.2f\r\n", gap, offset)
	return c
}

// Speed sets print speed in inches per second
func (c *Command) Speed(ips float64) *Command {
	fmt.Fprintf(&c.buf, "SPEED %.1f\r\n", ips)
	return c
}

// Direction sets print direction (0 or 1)
func (c *Command) Direction(dir, mirror int) *Command {
	fmt.Fprintf(&c.buf, "DIRECTION %d,%d\r\n", dir, mirror)
	return c
}

// Density sets print darkness (0-15)
func (c *Command) Density(level int) *Command {
	fmt.Fprintf(&c.buf, "DENSITY %d\r\n", ClampDensity(level))
	return c
}

// CLS clears the image buffer
func (c *Command) CLS() *Command {
	c.buf.WriteString("CLS\r\n")
	return c
}

// Bitmap adds a bitmap image
// x, y: position in dots
// widthBytes: width in bytes (pixels / 8)
// height: height in dots
// data: raw 1-bit bitmap data
func (c *Command) Bitmap(x, y, widthBytes, height int, mode BitmapMode, data []byte) *Command {
	fmt.Fprintf(&c.buf, "BITMAP %d,%d,%d,%d,%d,", x, y, widthBytes, height, mode)
	c.buf.Write(data)
	c.buf.WriteString("\r\n")
	return c
}

// Print prints n copies
func (c *Command) Print(copies int) *Command {
	if copies < 1 {
		copies = 1
	}
	fmt.Fprintf(&c.buf, "PRINT %d\r\n", copies)
	return c
}

// Bytes returns the raw command bytes to send to printer
func (c *Command) Bytes() []byte {
	return []byte(c.buf.String())
}

// String returns the command as a string (for debugging)
func (c *Command) String() string {
	return c.buf.String()
}

// ClampDensity limits a darkness level to the 0-15 range the printer accepts.
func ClampDensity(level int) int {
	if level < 0 {
		return 0
	}
	if level > 15 {
		return 15
	}
	return level
}

// BuildSetup creates the media setup sequence sent after connecting or
// reconfiguring.
func BuildSetup(width, height float64, density int, speed float64) []byte {
	cmd := New()
	cmd.Size(width, height).
		Gap(0.12, 0).
		Speed(speed).
		Density(density).
		Direction(0, 0)
	return cmd.Bytes()
}

// BuildPrintJob creates a clear, draw and print sequence for one bitmap
func BuildPrintJob(x, y, widthBytes, height int, bitmap []byte, copies int) []byte {
	cmd := New()
	cmd.CLS().
		Bitmap(x, y, widthBytes, height, Overwrite, bitmap).
		Print(copies)
	return cmd.Bytes()
}
