package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"xprinter/internal/plugin"
)

func callCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call <method> [key=value ...]",
		Short: "Send one request to the daemon",
		Long: `Send one request to the daemon and print the response as JSON.

Values that parse as numbers or booleans are sent as such; key=@path sends
the base64 encoding of the file, e.g.

  xprinterctl call connectToPrinter macAddress=DC:0D:30:12:34:56
  xprinterctl call printImage base64Encoded=@label.png width=400`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			callArgs, err := parseArgs(args[1:])
			if err != nil {
				return err
			}
			resp, err := ipcCall(cfg.Socket, plugin.Call{Method: args[0], Args: callArgs})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return err
			}
			if resp.Status != plugin.StatusSuccess {
				return fmt.Errorf("%s %s", resp.Status, resp.Code)
			}
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print printer state changes as they happen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			conn, err := dial(cfg.Socket)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := json.NewEncoder(conn).Encode(plugin.Call{Method: methodSubscribe}); err != nil {
				return fmt.Errorf("send request: %w", err)
			}
			return copyEvents(conn, cmd.OutOrStdout())
		},
	}
}

func dial(sock string) (net.Conn, error) {
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w (is `xprinterctl daemon` running?)", err)
	}
	return conn, nil
}

func ipcCall(sock string, c plugin.Call) (plugin.Response, error) {
	conn, err := dial(sock)
	if err != nil {
		return plugin.Response{}, err
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(c); err != nil {
		return plugin.Response{}, fmt.Errorf("send request: %w", err)
	}

	var resp plugin.Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return plugin.Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

// copyEvents prints one line per event until the daemon hangs up.
func copyEvents(r io.Reader, w io.Writer) error {
	dec := json.NewDecoder(r)
	for {
		var ev plugin.Event
		if err := dec.Decode(&ev); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		if ev.Message != "" {
			fmt.Fprintf(w, "%s\t%s\n", ev.State, ev.Message)
		} else {
			fmt.Fprintln(w, ev.State)
		}
	}
}

// parseArgs turns key=value pairs into request arguments.
func parseArgs(pairs []string) (map[string]any, error) {
	args := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value", p)
		}
		v, err := parseValue(value)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", key, err)
		}
		args[key] = v
	}
	return args, nil
}

func parseValue(s string) (any, error) {
	if path, ok := strings.CutPrefix(s, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return base64.StdEncoding.EncodeToString(data), nil
	}
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	// MAC addresses and paths stay strings; only plain numbers convert
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	return s, nil
}
