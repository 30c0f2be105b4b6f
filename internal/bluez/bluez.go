// Package bluez enumerates paired Bluetooth devices through the BlueZ daemon
// on the system D-Bus.
package bluez

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	busName       = "org.bluez"
	adapterIface  = "org.bluez.Adapter1"
	deviceIface   = "org.bluez.Device1"
	objectManager = "org.freedesktop.DBus.ObjectManager"

	DefaultAdapter    = "hci0"
	UnknownDeviceName = "Unknown Device"
)

// Device is a paired device as reported by the adapter.
type Device struct {
	Name    string
	Address string
}

// ManagedObjects is the reply of ObjectManager.GetManagedObjects:
// object path -> interface -> property -> value.
type ManagedObjects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// Client wraps a system D-Bus connection for BlueZ queries.
type Client struct {
	conn *dbus.Conn
}

// Dial connects to the system bus. BlueZ itself may still be absent; see Running.
func Dial() (*Client, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Running reports whether org.bluez owns a name on the bus.
func (c *Client) Running() bool {
	if c == nil {
		return false
	}
	var names []string
	if err := c.conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return false
	}
	for _, n := range names {
		if n == busName {
			return true
		}
	}
	return false
}

// ManagedObjects returns every object BlueZ exports.
func (c *Client) ManagedObjects() (ManagedObjects, error) {
	if c == nil {
		return nil, fmt.Errorf("system bus not connected")
	}
	var objs ManagedObjects
	obj := c.conn.Object(busName, "/")
	if err := obj.Call(objectManager+".GetManagedObjects", 0).Store(&objs); err != nil {
		return nil, fmt.Errorf("get managed objects: %w", err)
	}
	return objs, nil
}

// ObjectSource supplies BlueZ's object tree.
type ObjectSource interface {
	ManagedObjects() (ManagedObjects, error)
}

// Gate reports whether Bluetooth use is currently permitted.
type Gate interface {
	Granted() bool
}

// Directory lists paired devices of one adapter.
type Directory struct {
	objects ObjectSource
	gate    Gate
	adapter dbus.ObjectPath
	log     *slog.Logger
}

// NewDirectory builds a directory over src. A nil src yields a directory that
// always reports the radio as unavailable.
func NewDirectory(src ObjectSource, gate Gate, adapter string, logger *slog.Logger) *Directory {
	if adapter == "" {
		adapter = DefaultAdapter
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		objects: src,
		gate:    gate,
		adapter: dbus.ObjectPath("/org/bluez/" + adapter),
		log:     logger,
	}
}

// PairedDevices returns a snapshot of the adapter's paired devices sorted by
// name. It returns nil, not an empty slice, when permissions are missing or
// the radio is absent or powered off.
func (d *Directory) PairedDevices() []Device {
	if d.gate != nil && !d.gate.Granted() {
		d.log.Warn("[bluez] bluetooth permissions not granted")
		return nil
	}
	if d.objects == nil {
		return nil
	}

	objs, err := d.objects.ManagedObjects()
	if err != nil {
		d.log.Warn("[bluez] listing objects failed", "error", err)
		return nil
	}

	adapter, ok := objs[d.adapter][adapterIface]
	if !ok {
		d.log.Warn("[bluez] adapter not found", "adapter", d.adapter)
		return nil
	}
	if powered, _ := adapter["Powered"].Value().(bool); !powered {
		return nil
	}

	prefix := string(d.adapter) + "/dev_"
	devices := []Device{}
	for path, ifaces := range objs {
		props, ok := ifaces[deviceIface]
		if !ok || !strings.HasPrefix(string(path), prefix) {
			continue
		}
		if paired, _ := props["Paired"].Value().(bool); !paired {
			continue
		}
		devices = append(devices, Device{
			Name:    deviceName(props),
			Address: deviceAddress(props, path, prefix),
		})
	}

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Name != devices[j].Name {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].Address < devices[j].Address
	})
	return devices
}

func deviceName(props map[string]dbus.Variant) string {
	for _, key := range []string{"Alias", "Name"} {
		if name, ok := props[key].Value().(string); ok && name != "" {
			return name
		}
	}
	return UnknownDeviceName
}

// deviceAddress falls back to the object path, dev_AA_BB_... -> AA:BB:...
func deviceAddress(props map[string]dbus.Variant, path dbus.ObjectPath, prefix string) string {
	if addr, ok := props["Address"].Value().(string); ok && addr != "" {
		return addr
	}
	return strings.ReplaceAll(strings.TrimPrefix(string(path), prefix), "_", ":")
}
