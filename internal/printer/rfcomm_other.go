//go:build !linux && !windows

package printer

import "context"

// RFCOMMConnection is unavailable on this platform; use the BLE transport.
type RFCOMMConnection struct {
	DevicePath string
	MAC        string
}

func CheckRFCOMMInstalled() error {
	return ErrNotSupported
}

func CheckPrivilegeHelper() string {
	return ""
}

func EstablishRFCOMM(ctx context.Context, address string, channel int, statusCallback func(string)) (*RFCOMMConnection, error) {
	return nil, ErrNotSupported
}

func (c *RFCOMMConnection) Close() error {
	return nil
}
