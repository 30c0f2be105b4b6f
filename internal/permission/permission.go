// Package permission checks the capabilities Bluetooth printing needs on the
// host and asks a user interface to obtain the missing ones.
package permission

import (
	"errors"
	"log/slog"
	"os/exec"
	"runtime"

	"xprinter/internal/printer"
)

var ErrNoUIContext = errors.New("no UI context available")

// Requirement is one capability the host must grant.
type Requirement struct {
	Name  string
	Check func() bool
}

// UI obtains missing capabilities from the user, e.g. by showing a dialog
// that explains how to enable them. Prompt may block.
type UI interface {
	Prompt(missing []string)
}

// Gate evaluates a fixed set of requirements.
type Gate struct {
	reqs []Requirement
	log  *slog.Logger
}

func NewGate(logger *slog.Logger, reqs ...Requirement) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{reqs: reqs, log: logger}
}

// Granted reports whether every requirement is currently satisfied.
func (g *Gate) Granted() bool {
	return len(g.Missing()) == 0
}

// Missing returns the names of unsatisfied requirements in declaration order.
func (g *Gate) Missing() []string {
	var missing []string
	for _, r := range g.reqs {
		if r.Check == nil || !r.Check() {
			missing = append(missing, r.Name)
		}
	}
	return missing
}

// Request returns true when everything is already granted. Otherwise it
// starts ui.Prompt in the background and returns false at once; the outcome
// is not observed here and callers must check Granted again.
func (g *Gate) Request(ui UI) (bool, error) {
	missing := g.Missing()
	if len(missing) == 0 {
		return true, nil
	}
	if ui == nil {
		return false, ErrNoUIContext
	}
	g.log.Info("[permission] requesting", "missing", missing)
	go ui.Prompt(missing)
	return false, nil
}

// Binary requires an executable on PATH.
func Binary(name string) Requirement {
	return Requirement{
		Name: name,
		Check: func() bool {
			_, err := exec.LookPath(name)
			return err == nil
		},
	}
}

// AnyBinary requires at least one of the executables on PATH.
func AnyBinary(name string, candidates ...string) Requirement {
	return Requirement{
		Name: name,
		Check: func() bool {
			for _, c := range candidates {
				if _, err := exec.LookPath(c); err == nil {
					return true
				}
			}
			return false
		},
	}
}

// ForTransport lists what the named transport needs. bluezRunning reports
// whether the Bluetooth daemon is reachable; it is only consulted on Linux.
func ForTransport(transport string, bluezRunning func() bool) []Requirement {
	if runtime.GOOS != "linux" {
		return nil
	}
	reqs := []Requirement{{Name: "bluez", Check: bluezRunning}}
	if transport == "rfcomm" {
		reqs = append(reqs,
			Requirement{Name: "rfcomm", Check: func() bool { return printer.CheckRFCOMMInstalled() == nil }},
			Requirement{Name: "privilege helper (pkexec or sudo)", Check: func() bool { return printer.CheckPrivilegeHelper() != "" }},
		)
	}
	return reqs
}
