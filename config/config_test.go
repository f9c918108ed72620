package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"printerbus/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DBUS_SYSTEM_BUS_ADDRESS", "")

	path := filepath.Join(t.TempDir(), "absent.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent")
	}
	if resolved != path {
		t.Fatalf("resolved = %q, want %q", resolved, path)
	}
	if cfg.Printer.Service != "nl.ultimaker.printer" || cfg.Printer.Path != "/nl/ultimaker/printer" || cfg.Printer.Interface != "nl.ultimaker" {
		t.Fatalf("unexpected printer defaults: %+v", cfg.Printer)
	}
	if cfg.CallTimeout() != 25*time.Second {
		t.Fatalf("call timeout = %v", cfg.CallTimeout())
	}
	if cfg.MetadataTTL() != 500*time.Millisecond {
		t.Fatalf("metadata ttl = %v", cfg.MetadataTTL())
	}
	if cfg.Bus.Address != "" {
		t.Fatalf("expected empty bus address, got %q", cfg.Bus.Address)
	}
}

func TestLoadFileOverridesAndEnvFallback(t *testing.T) {
	t.Setenv("DBUS_SYSTEM_BUS_ADDRESS", "unix:path=/run/dbus/test_socket")
	path := filepath.Join(t.TempDir(), "printerbus.toml")
	data := `
[printer]
service = "com.example.printer"
path = "/com/example/printer"
interface = "com.example"
metadata_cache_ms = 1000

[poll]
interval_ms = 250

[logging]
level = " DEBUG "
format = "json"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if cfg.Printer.Service != "com.example.printer" || cfg.MetadataTTL() != time.Second {
		t.Fatalf("printer section not applied: %+v", cfg.Printer)
	}
	if cfg.PollInterval() != 250*time.Millisecond {
		t.Fatalf("poll interval = %v", cfg.PollInterval())
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("logging not normalized: %+v", cfg.Logging)
	}
	if cfg.Bus.Address != "unix:path=/run/dbus/test_socket" {
		t.Fatalf("env bus address not applied: %q", cfg.Bus.Address)
	}
	if cfg.Bus.CallTimeoutMS != 25000 {
		t.Fatalf("unset key lost its default: %d", cfg.Bus.CallTimeoutMS)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"relative path", "[printer]\npath = \"nl/ultimaker\"\n", "printer.path"},
		{"bad level", "[logging]\nlevel = \"loud\"\n", "logging.level"},
		{"zero poll", "[poll]\ninterval_ms = 0\n", "poll.interval_ms"},
		{"unknown key", "[bus]\nspeed = 3\n", "parse config"},
		{"bad address", "[bus]\naddress = \"socket\"\n", "bus.address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.toml")
			if err := os.WriteFile(path, []byte(tt.body), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, _, _, err := config.Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}
	if decoded != config.Default() {
		t.Fatalf("sample differs from defaults: %+v", decoded)
	}
	if err := config.CreateSample(path); err == nil {
		t.Fatal("expected CreateSample to refuse overwriting")
	}
}
