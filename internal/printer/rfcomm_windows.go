//go:build windows

package printer

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sys/windows/registry"
)

// RFCOMMConnection names the SPP COM port Windows created for a paired device.
// Windows manages the RFCOMM channel itself, so there is nothing to tear down.
type RFCOMMConnection struct {
	DevicePath string
	MAC        string
}

// bluetoothCOMPorts reads the serial port map and returns ports whose driver
// name looks like Bluetooth, keyed by port ("COM5")
func bluetoothCOMPorts() (map[string]bool, error) {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, `HARDWARE\DEVICEMAP\SERIALCOMM`, registry.READ)
	if err != nil {
		return nil, err
	}
	defer key.Close()

	names, err := key.ReadValueNames(-1)
	if err != nil {
		return nil, err
	}

	ports := make(map[string]bool)
	for _, name := range names {
		val, _, err := key.GetStringValue(name)
		if err != nil {
			continue
		}
		lower := strings.ToLower(name)
		if strings.Contains(lower, "bth") || strings.Contains(lower, "bluetooth") {
			ports[strings.ToUpper(val)] = true
		}
	}
	return ports, nil
}

// CheckRFCOMMInstalled verifies the serial port map is readable
func CheckRFCOMMInstalled() error {
	_, err := bluetoothCOMPorts()
	return err
}

// CheckPrivilegeHelper reports "windows"; COM ports need no elevation
func CheckPrivilegeHelper() string {
	return "windows"
}

// EstablishRFCOMM resolves the COM port for address. On Windows the address
// is the port name ("COM3") rather than a MAC.
func EstablishRFCOMM(ctx context.Context, address string, channel int, statusCallback func(string)) (*RFCOMMConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionCanceled, err)
	}
	port := strings.ToUpper(address)
	if !strings.HasPrefix(port, "COM") {
		return nil, fmt.Errorf("%w: invalid COM port: %s", ErrRFCOMMFailed, address)
	}
	if ports, err := bluetoothCOMPorts(); err == nil && len(ports) > 0 && !ports[port] {
		return nil, fmt.Errorf("%w: %s is not a Bluetooth serial port", ErrRFCOMMFailed, port)
	}

	// COM10 and above need the \\.\COM10 form
	path := port
	if len(port) > 4 {
		path = `\\.\` + port
	}

	if statusCallback != nil {
		statusCallback(fmt.Sprintf("Using port %s", port))
	}
	return &RFCOMMConnection{DevicePath: path, MAC: address}, nil
}

func (c *RFCOMMConnection) Close() error {
	return nil
}
