//go:build linux

package printer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// How long EstablishRFCOMM waits for the device node to appear.
var rfcommTimeout = 15 * time.Second

// RFCOMMConnection manages an `rfcomm connect` process (Linux-specific)
type RFCOMMConnection struct {
	DevicePath string
	MAC        string
	cmd        *exec.Cmd
	cancel     context.CancelFunc
	mu         sync.Mutex
	closed     bool
}

// FindAvailableRFCOMMDevice finds an unused /dev/rfcommN device number
func FindAvailableRFCOMMDevice() (string, int, error) {
	for i := 0; i < 10; i++ {
		devPath := fmt.Sprintf("/dev/rfcomm%d", i)
		out, _ := exec.Command("rfcomm", "show", devPath).Output()
		if len(out) == 0 || strings.Contains(string(out), "No such device") {
			return devPath, i, nil
		}
	}
	return "", -1, fmt.Errorf("no available RFCOMM device slots")
}

// CheckRFCOMMInstalled verifies rfcomm binary is available
func CheckRFCOMMInstalled() error {
	if _, err := exec.LookPath("rfcomm"); err != nil {
		return fmt.Errorf("rfcomm not found - install with: sudo apt install bluez")
	}
	return nil
}

// CheckPrivilegeHelper reports which privilege escalation tool is available
func CheckPrivilegeHelper() string {
	// pkexec first, it can prompt through the desktop agent
	if _, err := exec.LookPath("pkexec"); err == nil {
		return "pkexec"
	}
	if _, err := exec.LookPath("sudo"); err == nil {
		return "sudo"
	}
	return ""
}

func privileged(ctx context.Context, helper string, args ...string) *exec.Cmd {
	if helper == "pkexec" {
		return exec.CommandContext(ctx, "pkexec", append([]string{"rfcomm"}, args...)...)
	}
	return exec.CommandContext(ctx, "sudo", append([]string{"-n", "rfcomm"}, args...)...)
}

// EstablishRFCOMM runs `rfcomm connect` for mac in the background and returns
// once the device node exists. Cancelling ctx aborts the wait and kills the
// process; after a successful return the process outlives ctx until Close.
func EstablishRFCOMM(ctx context.Context, mac string, channel int, statusCallback func(string)) (*RFCOMMConnection, error) {
	if err := CheckRFCOMMInstalled(); err != nil {
		return nil, err
	}

	devPath, devNum, err := FindAvailableRFCOMMDevice()
	if err != nil {
		return nil, err
	}

	helper := CheckPrivilegeHelper()
	if helper == "" {
		return nil, ErrPrivilegeRequired
	}

	procCtx, cancel := context.WithCancel(context.Background())
	conn := &RFCOMMConnection{
		DevicePath: devPath,
		MAC:        mac,
		cancel:     cancel,
	}
	conn.cmd = privileged(procCtx, helper, "connect", fmt.Sprintf("/dev/rfcomm%d", devNum), mac, fmt.Sprintf("%d", channel))

	stderr, _ := conn.cmd.StderrPipe()
	stdout, _ := conn.cmd.StdoutPipe()

	if statusCallback != nil {
		statusCallback(fmt.Sprintf("Connecting to %s...", mac))
	}

	if err := conn.cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: start rfcomm: %w", ErrRFCOMMFailed, err)
	}

	for _, r := range []io.Reader{stdout, stderr} {
		go func(r io.Reader) {
			scanner := bufio.NewScanner(r)
			for scanner.Scan() {
				if statusCallback != nil {
					statusCallback(scanner.Text())
				}
			}
		}(r)
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(rfcommTimeout)
	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return nil, fmt.Errorf("%w: %w", ErrConnectionCanceled, ctx.Err())
		case <-deadline:
			conn.Close()
			return nil, fmt.Errorf("%w: timeout waiting for %s to appear", ErrRFCOMMFailed, devPath)
		case <-ticker.C:
		}

		if _, err := os.Stat(devPath); err == nil {
			if statusCallback != nil {
				statusCallback(fmt.Sprintf("Connected: %s", devPath))
			}
			return conn, nil
		}
	}
}

// Close terminates the rfcomm process and releases the device node
func (c *RFCOMMConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if c.cancel != nil {
		c.cancel()
	}

	// release may need privileges; failure leaves a stale node the next
	// FindAvailableRFCOMMDevice skips
	if helper := CheckPrivilegeHelper(); helper != "" && c.DevicePath != "" {
		privileged(context.Background(), helper, "release", c.DevicePath).Run()
	}

	if c.cmd != nil && c.cmd.Process != nil {
		c.cmd.Process.Kill()
		c.cmd.Wait()
	}
	return nil
}
