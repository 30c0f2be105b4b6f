// Package plugin maps named requests from a host application onto the
// printer service and translates outcomes into the success, error and
// notImplemented response vocabulary.
package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"xprinter/internal/bluez"
	"xprinter/internal/imaging"
	"xprinter/internal/permission"
	"xprinter/internal/printer"
	"xprinter/internal/xprinter"
)

// Request names.
const (
	MethodInitialize         = "initialize"
	MethodHasPermissions     = "hasBluetoothPermissions"
	MethodRequestPermissions = "requestBluetoothPermissions"
	MethodDevices            = "getBluetoothDevices"
	MethodIsConnected        = "isPrinterConnected"
	MethodConnect            = "connectToPrinter"
	MethodReconnect          = "reconnectLastPrinter"
	MethodPrintBitmap        = "printBitmap"
	MethodPrintImage         = "printImage"
	MethodConfigure          = "configurePrinter"
	MethodClose              = "close"
	MethodExit               = "exitSdk"
)

// EventStateChanged is the name of the pushed state event.
const EventStateChanged = "onPrinterStateChanged"

// Error codes.
const (
	CodeNotInitialized       = "PRINTER_NOT_INITIALIZED"
	CodeInvalidArgument      = "INVALID_ARGUMENT"
	CodeNoActivity           = "NO_ACTIVITY"
	CodeConnection           = "CONNECTION_ERROR"
	CodeReconnection         = "RECONNECTION_ERROR"
	CodeNoPreviousConnection = "NO_PREVIOUS_CONNECTION"
	CodePrint                = "PRINT_ERROR"
	CodeConfig               = "CONFIG_ERROR"
)

type Status string

const (
	StatusSuccess        Status = "success"
	StatusError          Status = "error"
	StatusNotImplemented Status = "notImplemented"
)

// Call is one named request.
type Call struct {
	Method string         `json:"method"`
	Args   map[string]any `json:"args,omitempty"`
}

type Response struct {
	Status  Status `json:"status"`
	Result  any    `json:"result,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Event is a state change pushed to the host.
type Event struct {
	Name    string `json:"event"`
	State   string `json:"state"`
	Message string `json:"message"`
}

// Printer is the connection manager as seen by the facade.
type Printer interface {
	Initialize() error
	IsConnected() bool
	Connect(ctx context.Context, address string) error
	Reconnect(ctx context.Context) (bool, error)
	Print(ctx context.Context, job xprinter.Job) error
	Configure(ctx context.Context, cfg printer.Config) error
	Close()
	Exit()
}

type Permissions interface {
	Granted() bool
	Request(ui permission.UI) (bool, error)
}

type Devices interface {
	PairedDevices() []bluez.Device
}

type Facade struct {
	printer  Printer
	perms    Permissions
	devices  Devices
	notifier *xprinter.Notifier
	log      *slog.Logger

	mu sync.Mutex
	ui permission.UI
}

// New returns a facade. A nil p makes every known request fail with
// PRINTER_NOT_INITIALIZED.
func New(p Printer, perms Permissions, devices Devices, notifier *xprinter.Notifier, logger *slog.Logger) *Facade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{printer: p, perms: perms, devices: devices, notifier: notifier, log: logger}
}

// AttachUI sets the context permission prompts are shown in.
func (f *Facade) AttachUI(ui permission.UI) {
	f.mu.Lock()
	f.ui = ui
	f.mu.Unlock()
}

func (f *Facade) DetachUI() {
	f.AttachUI(nil)
}

// SetEventSink forwards state changes to sink. nil stops forwarding.
func (f *Facade) SetEventSink(sink func(Event)) {
	if f.notifier == nil {
		return
	}
	if sink == nil {
		f.notifier.Observe(nil)
		return
	}
	f.notifier.Observe(func(ev xprinter.Event) {
		sink(Event{Name: EventStateChanged, State: ev.State.String(), Message: ev.Message})
	})
}

type handler func(f *Facade, ctx context.Context, args map[string]any) Response

var handlers = map[string]handler{
	MethodInitialize:         (*Facade).initialize,
	MethodHasPermissions:     (*Facade).hasPermissions,
	MethodRequestPermissions: (*Facade).requestPermissions,
	MethodDevices:            (*Facade).listDevices,
	MethodIsConnected:        (*Facade).isConnected,
	MethodConnect:            (*Facade).connect,
	MethodReconnect:          (*Facade).reconnect,
	MethodPrintBitmap:        (*Facade).printBitmap,
	MethodPrintImage:         (*Facade).printImage,
	MethodConfigure:          (*Facade).configure,
	MethodClose:              (*Facade).close,
	MethodExit:               (*Facade).exit,
}

// Call dispatches one request. It never panics on bad input; every failure
// comes back as an error response.
func (f *Facade) Call(ctx context.Context, c Call) Response {
	h, ok := handlers[c.Method]
	if !ok {
		f.log.Debug("[plugin] unknown method", "method", c.Method)
		return Response{Status: StatusNotImplemented}
	}
	f.log.Debug("[plugin] call", "method", c.Method)
	return h(f, ctx, c.Args)
}

func success(result any) Response {
	return Response{Status: StatusSuccess, Result: result}
}

func failure(code, message string) Response {
	return Response{Status: StatusError, Code: code, Message: message}
}

func notInitialized() Response {
	return failure(CodeNotInitialized, "Printer not initialized")
}

func (f *Facade) initialize(ctx context.Context, args map[string]any) Response {
	if f.printer == nil {
		return notInitialized()
	}
	if err := f.printer.Initialize(); err != nil {
		f.log.Error("[plugin] initialize failed", "error", err)
		return success(false)
	}
	return success(true)
}

func (f *Facade) hasPermissions(ctx context.Context, args map[string]any) Response {
	if f.printer == nil {
		return notInitialized()
	}
	return success(f.perms != nil && f.perms.Granted())
}

func (f *Facade) requestPermissions(ctx context.Context, args map[string]any) Response {
	f.mu.Lock()
	ui := f.ui
	f.mu.Unlock()
	if ui == nil {
		return failure(CodeNoActivity, "UI context is not available")
	}
	if f.printer == nil {
		return notInitialized()
	}
	if f.perms == nil {
		return success(false)
	}
	ok, err := f.perms.Request(ui)
	if errors.Is(err, permission.ErrNoUIContext) {
		return failure(CodeNoActivity, "UI context is not available")
	}
	return success(ok)
}

func (f *Facade) listDevices(ctx context.Context, args map[string]any) Response {
	if f.printer == nil {
		return notInitialized()
	}
	out := []map[string]string{}
	if f.devices == nil {
		return success(out)
	}
	for _, d := range f.devices.PairedDevices() {
		out = append(out, map[string]string{"name": d.Name, "address": d.Address})
	}
	return success(out)
}

func (f *Facade) isConnected(ctx context.Context, args map[string]any) Response {
	if f.printer == nil {
		return notInitialized()
	}
	return success(f.printer.IsConnected())
}

func (f *Facade) connect(ctx context.Context, args map[string]any) Response {
	mac, err := requiredString(args, "macAddress")
	if err != nil {
		return failure(CodeInvalidArgument, "MAC address is required")
	}
	if f.printer == nil {
		return notInitialized()
	}
	if err := f.printer.Connect(ctx, mac); err != nil {
		return failure(CodeConnection, err.Error())
	}
	return success(true)
}

func (f *Facade) reconnect(ctx context.Context, args map[string]any) Response {
	if f.printer == nil {
		return notInitialized()
	}
	ok, err := f.printer.Reconnect(ctx)
	if !ok {
		return failure(CodeNoPreviousConnection, "No previous connection found")
	}
	if err != nil {
		return failure(CodeReconnection, err.Error())
	}
	return success(true)
}

func (f *Facade) printBitmap(ctx context.Context, args map[string]any) Response {
	path, err := requiredString(args, "filePath")
	if err != nil {
		return failure(CodeInvalidArgument, "File path is required")
	}
	if f.printer == nil {
		return notInitialized()
	}
	if err := f.printer.Print(ctx, xprinter.Job{Path: path, Width: xprinter.BitmapWidth}); err != nil {
		return failure(CodePrint, err.Error())
	}
	return success(true)
}

func (f *Facade) printImage(ctx context.Context, args map[string]any) Response {
	encoded, err := requiredString(args, "base64Encoded")
	if err != nil {
		return failure(CodeInvalidArgument, "Base64 encoded string is required")
	}
	width, err := number(args, "width", xprinter.ImageWidth)
	if err != nil {
		return failure(CodeInvalidArgument, err.Error())
	}
	x, err := number(args, "x", 0)
	if err != nil {
		return failure(CodeInvalidArgument, err.Error())
	}
	y, err := number(args, "y", 0)
	if err != nil {
		return failure(CodeInvalidArgument, err.Error())
	}
	if f.printer == nil {
		return notInitialized()
	}

	data, err := imaging.DecodeBase64(encoded)
	if err != nil {
		return failure(CodePrint, err.Error())
	}
	job := xprinter.Job{Data: data, X: int(x), Y: int(y), Width: int(width)}
	if err := f.printer.Print(ctx, job); err != nil {
		return failure(CodePrint, err.Error())
	}
	return success(true)
}

func (f *Facade) configure(ctx context.Context, args map[string]any) Response {
	def := printer.DefaultConfig()
	density, err := number(args, "density", float64(def.Density))
	if err != nil {
		return failure(CodeInvalidArgument, err.Error())
	}
	speed, err := number(args, "speed", def.Speed)
	if err != nil {
		return failure(CodeInvalidArgument, err.Error())
	}
	w, err := number(args, "paperWidth", def.PaperWidth)
	if err != nil {
		return failure(CodeInvalidArgument, err.Error())
	}
	h, err := number(args, "paperHeight", def.PaperHeight)
	if err != nil {
		return failure(CodeInvalidArgument, err.Error())
	}
	if f.printer == nil {
		return notInitialized()
	}

	cfg := printer.Config{Density: int(density), Speed: speed, PaperWidth: w, PaperHeight: h}
	if err := f.printer.Configure(ctx, cfg); err != nil {
		return failure(CodeConfig, err.Error())
	}
	return success(true)
}

func (f *Facade) close(ctx context.Context, args map[string]any) Response {
	if f.printer == nil {
		return notInitialized()
	}
	f.printer.Close()
	return success(nil)
}

func (f *Facade) exit(ctx context.Context, args map[string]any) Response {
	if f.printer == nil {
		return notInitialized()
	}
	f.printer.Exit()
	return success(nil)
}

var errMissing = errors.New("missing argument")

func requiredString(args map[string]any, key string) (string, error) {
	s, ok := args[key].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %s", errMissing, key)
	}
	return s, nil
}

// number reads a numeric argument. Hosts send JSON numbers as float64 but
// in-process callers may pass ints.
func number(args map[string]any, key string, def float64) (float64, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	}
	return 0, fmt.Errorf("%s must be a number, got %T", key, v)
}
