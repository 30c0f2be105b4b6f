package printer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"
)

// RFCOMM reaches classic Bluetooth (SPP) printers through a serial device:
// /dev/rfcommN bound with the rfcomm tool on Linux, an SPP COM port on Windows.
type RFCOMM struct {
	Channel  int
	BaudRate int
	Logger   *slog.Logger

	mu    sync.Mutex
	links map[*serialConn]struct{}
}

func NewRFCOMM(channel, baudRate int, logger *slog.Logger) *RFCOMM {
	if channel <= 0 {
		channel = 1
	}
	if baudRate <= 0 {
		baudRate = 115200
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RFCOMM{
		Channel:  channel,
		BaudRate: baudRate,
		Logger:   logger,
		links:    make(map[*serialConn]struct{}),
	}
}

// Init checks that the platform tooling is present.
func (t *RFCOMM) Init() error {
	return CheckRFCOMMInstalled()
}

// Dial binds an RFCOMM device for address and opens it as a serial port.
func (t *RFCOMM) Dial(ctx context.Context, address string) (io.ReadWriteCloser, error) {
	link, err := EstablishRFCOMM(ctx, address, t.Channel, func(status string) {
		t.Logger.Debug("[printer] rfcomm", "address", address, "status", status)
	})
	if err != nil {
		return nil, classify(err)
	}

	port, err := openPort(link.DevicePath, t.BaudRate)
	if err != nil {
		link.Close()
		return nil, classify(err)
	}

	c := &serialConn{port: port, link: link, owner: t}
	t.mu.Lock()
	t.links[c] = struct{}{}
	t.mu.Unlock()
	return c, nil
}

// Release closes every session this transport still has open.
func (t *RFCOMM) Release() error {
	t.mu.Lock()
	open := make([]*serialConn, 0, len(t.links))
	for c := range t.links {
		open = append(open, c)
	}
	t.mu.Unlock()

	var firstErr error
	for _, c := range open {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *RFCOMM) forget(c *serialConn) {
	t.mu.Lock()
	delete(t.links, c)
	t.mu.Unlock()
}

// openPort opens the serial device backing a link
func openPort(portName string, baudRate int) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(3 * time.Second); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", portName, err)
	}
	return port, nil
}

type serialConn struct {
	port  serial.Port
	link  *RFCOMMConnection
	owner *RFCOMM
	once  sync.Once
	err   error
}

func (c *serialConn) Read(p []byte) (int, error) {
	return c.port.Read(p)
}

func (c *serialConn) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := c.port.Write(p[written:])
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}

// Close drains the port, closes it and releases the RFCOMM binding
func (c *serialConn) Close() error {
	c.once.Do(func() {
		c.port.Drain()
		c.err = c.port.Close()
		if err := c.link.Close(); err != nil && c.err == nil {
			c.err = err
		}
		c.owner.forget(c)
	})
	return c.err
}
