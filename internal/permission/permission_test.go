package permission

import (
	"runtime"
	"testing"
	"time"
)

type recordingUI struct {
	prompted chan []string
}

func (u *recordingUI) Prompt(missing []string) {
	u.prompted <- missing
}

func fixed(name string, ok bool) Requirement {
	return Requirement{Name: name, Check: func() bool { return ok }}
}

func TestGranted(t *testing.T) {
	g := NewGate(nil, fixed("bluez", true), fixed("rfcomm", true))
	if !g.Granted() {
		t.Error("Granted() = false, want true")
	}
	if m := g.Missing(); len(m) != 0 {
		t.Errorf("Missing() = %v, want none", m)
	}
}

func TestMissingInOrder(t *testing.T) {
	g := NewGate(nil, fixed("bluez", false), fixed("rfcomm", true), fixed("privilege", false), Requirement{Name: "nil-check"})
	got := g.Missing()
	want := []string{"bluez", "privilege", "nil-check"}
	if len(got) != len(want) {
		t.Fatalf("Missing() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Missing()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRequestAlreadyGranted(t *testing.T) {
	ui := &recordingUI{prompted: make(chan []string, 1)}
	ok, err := NewGate(nil, fixed("bluez", true)).Request(ui)
	if !ok || err != nil {
		t.Fatalf("Request() = %v, %v, want true, nil", ok, err)
	}
	select {
	case m := <-ui.prompted:
		t.Errorf("Request() prompted for %v although everything was granted", m)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRequestNoUI(t *testing.T) {
	ok, err := NewGate(nil, fixed("bluez", false)).Request(nil)
	if ok || err != ErrNoUIContext {
		t.Errorf("Request(nil) = %v, %v, want false, ErrNoUIContext", ok, err)
	}
}

func TestRequestPromptsAsync(t *testing.T) {
	ui := &recordingUI{prompted: make(chan []string)}
	ok, err := NewGate(nil, fixed("bluez", false)).Request(ui)
	if ok || err != nil {
		t.Fatalf("Request() = %v, %v, want false, nil", ok, err)
	}
	select {
	case m := <-ui.prompted:
		if len(m) != 1 || m[0] != "bluez" {
			t.Errorf("prompted for %v, want [bluez]", m)
		}
	case <-time.After(time.Second):
		t.Fatal("Request() did not prompt")
	}
}

func TestBinaryRequirement(t *testing.T) {
	if Binary("definitely-not-a-real-binary-xprinter").Check() {
		t.Error("Binary() check should fail for a missing executable")
	}
	if AnyBinary("none", "definitely-not-a-real-binary-xprinter").Check() {
		t.Error("AnyBinary() check should fail when no candidate exists")
	}
}

func TestForTransport(t *testing.T) {
	reqs := ForTransport("ble", func() bool { return true })
	if runtime.GOOS != "linux" {
		if len(reqs) != 0 {
			t.Errorf("ForTransport() = %d requirements off Linux, want none", len(reqs))
		}
		return
	}
	if len(reqs) != 1 || reqs[0].Name != "bluez" || !reqs[0].Check() {
		t.Errorf("ble requirements = %+v", reqs)
	}
	if n := len(ForTransport("rfcomm", func() bool { return false })); n != 3 {
		t.Errorf("rfcomm requirements = %d, want 3", n)
	}
}
