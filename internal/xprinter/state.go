// Package xprinter owns the printer connection: the state machine, the print
// job pipeline and state-change notification.
package xprinter

import (
	"errors"

	"xprinter/internal/printer"
)

// State is the printer connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Printing
	Error
)

var stateNames = [...]string{"DISCONNECTED", "CONNECTING", "CONNECTED", "PRINTING", "ERROR"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Event is one state transition with an optional human-readable message.
type Event struct {
	State   State
	Message string
}

var (
	ErrPermissionDenied = errors.New("bluetooth permissions not granted")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrConnection       = errors.New("connection failed")
	ErrNotConnected     = errors.New("printer not connected")
	ErrFileNotFound     = errors.New("file not found")
	ErrPrint            = errors.New("printing error")
	ErrConfig           = errors.New("configuration error")
	ErrSuperseded       = errors.New("superseded by a newer connect or close")
	ErrNotInitialized   = errors.New("printer not initialized")

	// ErrSecurityViolation marks a permission revoked while an operation
	// was running. It is reported like any other failure.
	ErrSecurityViolation = printer.ErrPermission
)

// describe renders err for state messages, calling out revoked permissions.
func describe(prefix string, err error) string {
	if errors.Is(err, ErrSecurityViolation) {
		return "Permission error: " + err.Error()
	}
	return prefix + err.Error()
}
