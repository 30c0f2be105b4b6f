package plugin

import (
	"log/slog"

	"xprinter/internal/bluez"
	"xprinter/internal/config"
	"xprinter/internal/permission"
	"xprinter/internal/printer"
	"xprinter/internal/xprinter"
)

// Host is the wired printer stack a front end drives.
type Host struct {
	Facade    *Facade
	Manager   *xprinter.Manager
	Gate      *permission.Gate
	Directory *bluez.Directory
	Notifier  *xprinter.Notifier

	bus *bluez.Client
}

// NewHost builds the stack described by cfg. post is the notifier's delivery
// function; nil uses its own dispatcher goroutine. A missing system bus is
// not fatal: the bluez requirement stays unmet and device listing reports
// the directory as unavailable.
func NewHost(cfg *config.Config, post func(func()), logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Host{}

	var src bluez.ObjectSource
	bus, err := bluez.Dial()
	if err != nil {
		logger.Warn("[plugin] system bus unavailable", "error", err)
	} else {
		h.bus = bus
		src = bus
	}

	h.Gate = permission.NewGate(logger, permission.ForTransport(cfg.Transport, h.bus.Running)...)
	h.Directory = bluez.NewDirectory(src, h.Gate, cfg.Adapter, logger)
	h.Notifier = xprinter.NewNotifier(post, logger)

	var transport printer.Transport
	switch cfg.Transport {
	case "ble":
		transport = printer.NewBLE(cfg.BLE.ServiceUUID, cfg.BLE.CharUUID, cfg.BLE.ChunkSize, logger)
	default:
		transport = printer.NewRFCOMM(cfg.RFCOMM.Channel, cfg.RFCOMM.BaudRate, logger)
	}

	h.Manager = xprinter.New(transport, printer.TSPLProtocol,
		xprinter.WithGate(h.Gate),
		xprinter.WithLogger(logger),
		xprinter.WithNotifier(h.Notifier),
		xprinter.WithReconnectGrace(cfg.ReconnectGrace),
		xprinter.WithConfig(cfg.Printer.Driver()),
	)
	h.Facade = New(h.Manager, h.Gate, h.Directory, h.Notifier, logger)
	return h
}

// Close exits the printer session and releases the bus.
func (h *Host) Close() {
	h.Manager.Exit()
	h.Notifier.Stop()
	if h.bus != nil {
		h.bus.Close()
	}
}
