package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"xprinter/internal/printer"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Transport != "rfcomm" {
		t.Errorf("Transport = %q, want %q", cfg.Transport, "rfcomm")
	}
	if cfg.Adapter != "hci0" {
		t.Errorf("Adapter = %q, want %q", cfg.Adapter, "hci0")
	}
	if cfg.RFCOMM.Channel != 1 || cfg.RFCOMM.BaudRate != 115200 {
		t.Errorf("RFCOMM = %+v, want channel 1 at 115200", cfg.RFCOMM)
	}
	if cfg.BLE.CharUUID != printer.DefaultBLECharUUID {
		t.Errorf("BLE.CharUUID = %q, want %q", cfg.BLE.CharUUID, printer.DefaultBLECharUUID)
	}
	if cfg.Printer.Driver() != printer.DefaultConfig() {
		t.Errorf("Printer = %+v, want %+v", cfg.Printer, printer.DefaultConfig())
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
transport: ble
adapter: hci1
ble:
  service_uuid: 0000ff00-0000-1000-8000-00805f9b34fb
  char_uuid: 0000ff02-0000-1000-8000-00805f9b34fb
  chunk_size: 180
reconnect_grace: 750ms
socket: /tmp/test.sock
printer:
  density: 12
  speed: 3
  paper_width: 4
  paper_height: 6
log_level: debug
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Transport != "ble" || cfg.Adapter != "hci1" {
		t.Errorf("Transport/Adapter = %q/%q, want ble/hci1", cfg.Transport, cfg.Adapter)
	}
	if cfg.BLE.ChunkSize != 180 {
		t.Errorf("BLE.ChunkSize = %d, want 180", cfg.BLE.ChunkSize)
	}
	if cfg.ReconnectGrace != 750*time.Millisecond {
		t.Errorf("ReconnectGrace = %v, want 750ms", cfg.ReconnectGrace)
	}
	want := printer.Config{Density: 12, Speed: 3, PaperWidth: 4, PaperHeight: 6}
	if cfg.Printer.Driver() != want {
		t.Errorf("Printer = %+v, want %+v", cfg.Printer.Driver(), want)
	}
	// untouched keys keep their defaults
	if cfg.RFCOMM.Channel != 1 {
		t.Errorf("RFCOMM.Channel = %d, want default 1", cfg.RFCOMM.Channel)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Errorf("Level() = %v, want debug", cfg.Level())
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("socket: ~/run/xprinter.sock\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	expected := filepath.Join(home, "run/xprinter.sock")
	if cfg.Socket != expected {
		t.Errorf("Socket = %q, want %q", cfg.Socket, expected)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestLoadOrDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault(\"\") error = %v", err)
	}
	if cfg.Transport != "rfcomm" {
		t.Errorf("Transport = %q, want the default", cfg.Transport)
	}

	if _, err := LoadOrDefault("/nonexistent/config.yaml"); err == nil {
		t.Error("LoadOrDefault() should fail for an explicit missing path")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "valid ble config",
			modify:  func(c *Config) { c.Transport = "ble" },
			wantErr: false,
		},
		{
			name:    "unknown transport",
			modify:  func(c *Config) { c.Transport = "usb" },
			wantErr: true,
		},
		{
			name:    "rfcomm channel out of range",
			modify:  func(c *Config) { c.RFCOMM.Channel = 31 },
			wantErr: true,
		},
		{
			name:    "zero baud rate",
			modify:  func(c *Config) { c.RFCOMM.BaudRate = 0 },
			wantErr: true,
		},
		{
			name:    "ble without characteristic",
			modify:  func(c *Config) { c.Transport = "ble"; c.BLE.CharUUID = "" },
			wantErr: true,
		},
		{
			name:    "zero ble chunk",
			modify:  func(c *Config) { c.Transport = "ble"; c.BLE.ChunkSize = 0 },
			wantErr: true,
		},
		{
			name:    "empty adapter",
			modify:  func(c *Config) { c.Adapter = "" },
			wantErr: true,
		},
		{
			name:    "zero reconnect grace",
			modify:  func(c *Config) { c.ReconnectGrace = 0 },
			wantErr: true,
		},
		{
			name:    "density out of range",
			modify:  func(c *Config) { c.Printer.Density = 16 },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "invalid" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "xprinter", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# xprinter") {
		t.Error("written config should start with header comment")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.ReconnectGrace != Default().ReconnectGrace {
		t.Errorf("written ReconnectGrace = %v, want %v", cfg.ReconnectGrace, Default().ReconnectGrace)
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "xprinter")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existing := []byte("transport: ble\n")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, existing, 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty string for existing file", path)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(data) != string(existing) {
		t.Error("WriteDefault() should not overwrite existing config file")
	}
}
