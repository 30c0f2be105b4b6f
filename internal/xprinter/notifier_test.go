package xprinter

import (
	"testing"
	"time"
)

func TestNotifierDispatchesInOrder(t *testing.T) {
	n := NewNotifier(nil, nil)
	defer n.Stop()

	got := make(chan Event, 8)
	n.Observe(func(ev Event) { got <- ev })

	n.Notify(Connecting, "")
	n.Notify(Connected, "")
	n.Notify(Error, "boom")

	want := []Event{{Connecting, ""}, {Connected, ""}, {Error, "boom"}}
	for i, w := range want {
		select {
		case ev := <-got:
			if ev != w {
				t.Errorf("event %d = %+v, want %+v", i, ev, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}
}

func TestNotifierLastObserverWins(t *testing.T) {
	var first, second []Event
	n := NewNotifier(func(f func()) { f() }, nil)
	n.Observe(func(ev Event) { first = append(first, ev) })
	n.Observe(func(ev Event) { second = append(second, ev) })

	n.Notify(Connected, "")
	if len(first) != 0 || len(second) != 1 {
		t.Errorf("first got %d, second got %d; want 0 and 1", len(first), len(second))
	}
}

func TestNotifierDropsWithoutObserver(t *testing.T) {
	posted := 0
	n := NewNotifier(func(f func()) { posted++; f() }, nil)
	n.Notify(Connected, "")

	var got []Event
	n.Observe(func(ev Event) { got = append(got, ev) })
	if posted != 0 || len(got) != 0 {
		t.Errorf("event without observer was delivered later: posted=%d got=%v", posted, got)
	}

	n.Observe(nil)
	n.Notify(Printing, "")
	if posted != 0 {
		t.Errorf("posted %d events after unregistering", posted)
	}
}
