package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"xprinter/internal/plugin"
)

// methodSubscribe turns a connection into an event stream.
const methodSubscribe = "subscribe"

const subscriberBuffer = 16

func daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Own the printer connection and serve requests on a unix socket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			host := plugin.NewHost(cfg, nil, logger)
			defer host.Close()
			if err := host.Manager.Initialize(); err != nil {
				logger.Warn("[daemon] transport not ready, initialize can be retried", "error", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg.Socket, newDaemon(host.Facade, logger))
		},
	}
}

type daemon struct {
	facade *plugin.Facade
	log    *slog.Logger

	mu   sync.Mutex
	subs map[chan plugin.Event]struct{}
}

func newDaemon(facade *plugin.Facade, logger *slog.Logger) *daemon {
	d := &daemon{facade: facade, log: logger, subs: map[chan plugin.Event]struct{}{}}
	facade.SetEventSink(d.broadcast)
	return d
}

func serve(ctx context.Context, sock string, d *daemon) error {
	os.Remove(sock) // stale socket
	ln, err := net.Listen("unix", sock)
	if err != nil {
		return fmt.Errorf("listen %s: %w", sock, err)
	}
	os.Chmod(sock, 0700)
	defer os.Remove(sock)
	defer ln.Close()

	go func() {
		<-ctx.Done()
		d.log.Info("[daemon] shutting down")
		ln.Close()
	}()

	d.log.Info("[daemon] listening", "socket", sock)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go d.handleConn(ctx, conn)
	}
}

// handleConn answers newline-delimited JSON requests until the peer hangs up
// or subscribes.
func (d *daemon) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var c plugin.Call
		if err := dec.Decode(&c); err != nil {
			if !errors.Is(err, io.EOF) {
				enc.Encode(plugin.Response{
					Status:  plugin.StatusError,
					Code:    plugin.CodeInvalidArgument,
					Message: "invalid request: " + err.Error(),
				})
			}
			return
		}
		if c.Method == methodSubscribe {
			d.stream(ctx, conn, enc)
			return
		}
		if err := enc.Encode(d.facade.Call(ctx, c)); err != nil {
			d.log.Debug("[daemon] write response failed", "error", err)
			return
		}
	}
}

func (d *daemon) stream(ctx context.Context, conn net.Conn, enc *json.Encoder) {
	ch := d.subscribe()
	defer d.unsubscribe(ch)

	// the peer sends nothing after subscribing; a read returning means it left
	gone := make(chan struct{})
	go func() {
		io.Copy(io.Discard, conn)
		close(gone)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-gone:
			return
		case ev := <-ch:
			if err := enc.Encode(ev); err != nil {
				return
			}
		}
	}
}

func (d *daemon) subscribe() chan plugin.Event {
	ch := make(chan plugin.Event, subscriberBuffer)
	d.mu.Lock()
	d.subs[ch] = struct{}{}
	d.mu.Unlock()
	return ch
}

func (d *daemon) unsubscribe(ch chan plugin.Event) {
	d.mu.Lock()
	delete(d.subs, ch)
	d.mu.Unlock()
}

func (d *daemon) broadcast(ev plugin.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for ch := range d.subs {
		select {
		case ch <- ev:
		default:
			d.log.Warn("[daemon] subscriber is not keeping up, dropping event", "state", ev.State)
		}
	}
}
