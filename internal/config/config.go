package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"xprinter/internal/printer"
)

// Config holds all application configuration.
type Config struct {
	Transport      string        `yaml:"transport"` // "rfcomm" or "ble"
	Adapter        string        `yaml:"adapter"`
	RFCOMM         RFCOMMConfig  `yaml:"rfcomm"`
	BLE            BLEConfig     `yaml:"ble"`
	ReconnectGrace time.Duration `yaml:"reconnect_grace"`
	Socket         string        `yaml:"socket"`
	Printer        PrinterConfig `yaml:"printer"`
	LogLevel       string        `yaml:"log_level"`
}

// RFCOMMConfig holds classic Bluetooth serial settings.
type RFCOMMConfig struct {
	Channel  int `yaml:"channel"`
	BaudRate int `yaml:"baud_rate"`
}

// BLEConfig holds the GATT service used to stream print data.
type BLEConfig struct {
	ServiceUUID string `yaml:"service_uuid"`
	CharUUID    string `yaml:"char_uuid"`
	ChunkSize   int    `yaml:"chunk_size"`
}

// PrinterConfig is the media setup applied on connect.
type PrinterConfig struct {
	Density     int     `yaml:"density"`
	Speed       float64 `yaml:"speed"`
	PaperWidth  float64 `yaml:"paper_width"`  // inches
	PaperHeight float64 `yaml:"paper_height"` // inches
}

// Driver converts to the driver's configuration value.
func (p PrinterConfig) Driver() printer.Config {
	return printer.Config{
		Density:     p.Density,
		Speed:       p.Speed,
		PaperWidth:  p.PaperWidth,
		PaperHeight: p.PaperHeight,
	}
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "xprinter")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultSocketPath prefers the per-user runtime directory.
func DefaultSocketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "xprinter.sock")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	p := printer.DefaultConfig()
	return &Config{
		Transport: "rfcomm",
		Adapter:   "hci0",
		RFCOMM: RFCOMMConfig{
			Channel:  1,
			BaudRate: 115200,
		},
		BLE: BLEConfig{
			ServiceUUID: printer.DefaultBLEServiceUUID,
			CharUUID:    printer.DefaultBLECharUUID,
			ChunkSize:   printer.DefaultBLEChunkSize,
		},
		// rfcomm polls for its device node every 500ms, so a reconnect
		// rarely lands inside the library default
		ReconnectGrace: 3 * time.Second,
		Socket:         DefaultSocketPath(),
		Printer: PrinterConfig{
			Density:     p.Density,
			Speed:       p.Speed,
			PaperWidth:  p.PaperWidth,
			PaperHeight: p.PaperHeight,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in socket is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Socket = expandTilde(cfg.Socket)

	return cfg, nil
}

// WriteDefault writes the default config to DefaultConfigPath unless a file
// already exists there. It returns the written path, or "" when it left an
// existing file alone.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	content := append([]byte("# xprinter configuration\n"), data...)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// LoadOrDefault loads path when given, else the default path when it exists,
// else returns defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if _, err := os.Stat(DefaultConfigPath()); err == nil {
		return Load(DefaultConfigPath())
	}
	return Default(), nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.Transport {
	case "rfcomm":
		if c.RFCOMM.Channel < 1 || c.RFCOMM.Channel > 30 {
			return fmt.Errorf("rfcomm.channel must be 1-30, got %d", c.RFCOMM.Channel)
		}
		if c.RFCOMM.BaudRate <= 0 {
			return fmt.Errorf("rfcomm.baud_rate must be > 0")
		}
	case "ble":
		if c.BLE.ServiceUUID == "" || c.BLE.CharUUID == "" {
			return fmt.Errorf("ble.service_uuid and ble.char_uuid must not be empty")
		}
		if c.BLE.ChunkSize <= 0 {
			return fmt.Errorf("ble.chunk_size must be > 0")
		}
	default:
		return fmt.Errorf("transport must be \"rfcomm\" or \"ble\", got %q", c.Transport)
	}

	if c.Adapter == "" {
		return fmt.Errorf("adapter must not be empty")
	}

	if c.ReconnectGrace <= 0 {
		return fmt.Errorf("reconnect_grace must be > 0")
	}

	if c.Socket == "" {
		return fmt.Errorf("socket must not be empty")
	}

	if err := c.Printer.Driver().Validate(); err != nil {
		return fmt.Errorf("printer: %w", err)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// Level maps log_level to a slog level. Unknown values mean info.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
