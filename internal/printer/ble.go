package printer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"tinygo.org/x/bluetooth"
)

// Service and write characteristic most BLE TSPL label printers expose.
const (
	DefaultBLEServiceUUID = "000018f0-0000-1000-8000-00805f9b34fb"
	DefaultBLECharUUID    = "00002af1-0000-1000-8000-00805f9b34fb"
	DefaultBLEChunkSize   = 20
)

// BLE reaches printers that only expose a GATT write characteristic.
type BLE struct {
	ServiceUUID string
	CharUUID    string
	ChunkSize   int
	Logger      *slog.Logger

	adapter    *bluetooth.Adapter
	enableOnce sync.Once
	enableErr  error
}

func NewBLE(serviceUUID, charUUID string, chunkSize int, logger *slog.Logger) *BLE {
	if serviceUUID == "" {
		serviceUUID = DefaultBLEServiceUUID
	}
	if charUUID == "" {
		charUUID = DefaultBLECharUUID
	}
	if chunkSize <= 0 {
		chunkSize = DefaultBLEChunkSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BLE{
		ServiceUUID: serviceUUID,
		CharUUID:    charUUID,
		ChunkSize:   chunkSize,
		Logger:      logger,
		adapter:     bluetooth.DefaultAdapter,
	}
}

// Init powers on the adapter. It is safe to call repeatedly.
func (t *BLE) Init() error {
	t.enableOnce.Do(func() {
		t.enableErr = t.adapter.Enable()
	})
	if t.enableErr != nil {
		return fmt.Errorf("ble: enable adapter: %w", t.enableErr)
	}
	return nil
}

// Dial connects to address and discovers the write characteristic.
func (t *BLE) Dial(ctx context.Context, address string) (io.ReadWriteCloser, error) {
	if err := t.Init(); err != nil {
		return nil, err
	}

	svcUUID, err := bluetooth.ParseUUID(t.ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse service UUID: %w", err)
	}
	charUUID, err := bluetooth.ParseUUID(t.CharUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse characteristic UUID: %w", err)
	}

	var addr bluetooth.Address
	addr.Set(address)

	// adapter.Connect blocks with its own timeout; ctx only stops the wait
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := t.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	var device bluetooth.Device
	select {
	case <-ctx.Done():
		go func() {
			// a late connection would otherwise stay up unowned
			if r := <-ch; r.err == nil {
				r.device.Disconnect()
			}
		}()
		return nil, fmt.Errorf("ble: connect to %s: %w", address, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", address, r.err)
		}
		device = r.device
	}

	svcs, err := device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil || len(svcs) == 0 {
		device.Disconnect()
		return nil, fmt.Errorf("ble: service %s not found: %v", t.ServiceUUID, err)
	}
	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil || len(chars) == 0 {
		device.Disconnect()
		return nil, fmt.Errorf("ble: characteristic %s not found: %v", t.CharUUID, err)
	}

	t.Logger.Info("[printer] ble connected", "address", address)
	return &bleConn{device: device, char: chars[0], chunk: t.ChunkSize}, nil
}

type bleConn struct {
	device bluetooth.Device
	char   bluetooth.DeviceCharacteristic
	chunk  int
	once   sync.Once
	err    error
}

// Read is unsupported; the write characteristic has no response channel.
func (c *bleConn) Read(p []byte) (int, error) {
	return 0, io.EOF
}

// Write splits p into MTU-sized chunks
func (c *bleConn) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		end := min(written+c.chunk, len(p))
		if _, err := c.char.WriteWithoutResponse(p[written:end]); err != nil {
			return written, err
		}
		written = end
	}
	return written, nil
}

func (c *bleConn) Close() error {
	c.once.Do(func() {
		c.err = c.device.Disconnect()
	})
	return c.err
}
