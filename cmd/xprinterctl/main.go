package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"xprinter/internal/config"
)

var rootCmd *cobra.Command

var rootFlags struct {
	config string
	socket string
}

func init() {
	rootCmd = &cobra.Command{
		Use:           "xprinterctl",
		Short:         "Drive a Bluetooth TSPL label printer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(
		&rootFlags.config,
		"config",
		"",
		"config file (default ~/.config/xprinter/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&rootFlags.socket,
		"socket",
		"",
		"daemon socket, overrides the config",
	)
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(callCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(configCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// loadConfig resolves the config and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(rootFlags.config)
	if err != nil {
		return nil, err
	}
	if rootFlags.socket != "" {
		cfg.Socket = rootFlags.socket
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default config unless one exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.WriteDefault()
			if err != nil {
				return err
			}
			if path == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", config.DefaultConfigPath())
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	})
	return cmd
}
