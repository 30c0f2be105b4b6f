package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"xprinter/internal/plugin"
	"xprinter/internal/xprinter"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestHandleConnAnswersEachRequest(t *testing.T) {
	d := newDaemon(plugin.New(nil, nil, nil, nil, nil), quietLogger())
	server, client := net.Pipe()
	defer client.Close()
	go d.handleConn(context.Background(), server)

	enc := json.NewEncoder(client)
	dec := json.NewDecoder(client)
	tests := []struct {
		call plugin.Call
		want plugin.Response
	}{
		{plugin.Call{Method: "isPrinterConnected"}, plugin.Response{Status: plugin.StatusError, Code: plugin.CodeNotInitialized, Message: "Printer not initialized"}},
		{plugin.Call{Method: "connectToPrinter"}, plugin.Response{Status: plugin.StatusError, Code: plugin.CodeInvalidArgument, Message: "MAC address is required"}},
		{plugin.Call{Method: "teleport"}, plugin.Response{Status: plugin.StatusNotImplemented}},
	}
	for _, tt := range tests {
		if err := enc.Encode(tt.call); err != nil {
			t.Fatal(err)
		}
		var got plugin.Response
		if err := dec.Decode(&got); err != nil {
			t.Fatalf("%s: %v", tt.call.Method, err)
		}
		if got != tt.want {
			t.Errorf("%s = %+v, want %+v", tt.call.Method, got, tt.want)
		}
	}
}

func TestHandleConnInvalidJSON(t *testing.T) {
	d := newDaemon(plugin.New(nil, nil, nil, nil, nil), quietLogger())
	server, client := net.Pipe()
	defer client.Close()
	go d.handleConn(context.Background(), server)

	go client.Write([]byte("{not json\n"))
	var got plugin.Response
	if err := json.NewDecoder(client).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Code != plugin.CodeInvalidArgument || !strings.HasPrefix(got.Message, "invalid request") {
		t.Errorf("response = %+v", got)
	}
}

func TestSubscribeStreamsEvents(t *testing.T) {
	n := xprinter.NewNotifier(func(f func()) { f() }, nil)
	d := newDaemon(plugin.New(nil, nil, nil, n, nil), quietLogger())
	server, client := net.Pipe()
	go d.handleConn(context.Background(), server)

	if err := json.NewEncoder(client).Encode(plugin.Call{Method: methodSubscribe}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second)
	for {
		d.mu.Lock()
		subscribed := len(d.subs) == 1
		d.mu.Unlock()
		if subscribed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	go n.Notify(xprinter.Connecting, "")
	var ev plugin.Event
	if err := json.NewDecoder(client).Decode(&ev); err != nil {
		t.Fatal(err)
	}
	want := plugin.Event{Name: plugin.EventStateChanged, State: "CONNECTING"}
	if ev != want {
		t.Errorf("event = %+v, want %+v", ev, want)
	}

	client.Close()
	deadline = time.Now().Add(time.Second)
	for {
		d.mu.Lock()
		left := len(d.subs)
		d.mu.Unlock()
		if left == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscriber not removed after the peer left")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServeAndIPCCall(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "xprinter.sock")
	d := newDaemon(plugin.New(nil, nil, nil, nil, nil), quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, sock, d) }()

	var resp plugin.Response
	var err error
	for i := 0; i < 100; i++ {
		if resp, err = ipcCall(sock, plugin.Call{Method: "close"}); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("ipcCall() error = %v", err)
	}
	if resp.Code != plugin.CodeNotInitialized {
		t.Errorf("response = %+v", resp)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("serve() error = %v", err)
	}
	if _, err := os.Stat(sock); !os.IsNotExist(err) {
		t.Errorf("socket left behind after shutdown")
	}
}
