package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BusName != "org.freedesktop.secrets" {
		t.Errorf("BusName = %s, want org.freedesktop.secrets", cfg.BusName)
	}
	if cfg.DefaultCollectionLabel != "Default" {
		t.Errorf("DefaultCollectionLabel = %s, want Default", cfg.DefaultCollectionLabel)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
	if cfg.Replace {
		t.Error("Replace = true, want false")
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		verify func(t *testing.T, cfg *Config)
	}{
		{
			name: "bus name override",
			env:  map[string]string{"SECRET_SERVICE_BUS_NAME": "org.example.secrets"},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.BusName != "org.example.secrets" {
					t.Errorf("BusName = %s, want org.example.secrets", cfg.BusName)
				}
			},
		},
		{
			name: "default collection label override",
			env:  map[string]string{"SECRET_SERVICE_DEFAULT_COLLECTION_LABEL": "Personal"},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.DefaultCollectionLabel != "Personal" {
					t.Errorf("DefaultCollectionLabel = %s, want Personal", cfg.DefaultCollectionLabel)
				}
			},
		},
		{
			name: "replace true",
			env:  map[string]string{"SECRET_SERVICE_REPLACE": "true"},
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.Replace {
					t.Error("Replace = false, want true")
				}
			},
		},
		{
			name: "replace 1",
			env:  map[string]string{"SECRET_SERVICE_REPLACE": "1"},
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.Replace {
					t.Error("Replace = false, want true")
				}
			},
		},
		{
			name: "log level override",
			env:  map[string]string{"SECRET_SERVICE_LOG_LEVEL": "debug"},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.LogLevel != "debug" {
					t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			cfg := DefaultConfig()
			cfg.applyEnv()
			tc.verify(t, cfg)
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/absolute/path", "/absolute/path"},
		{"~/foo", filepath.Join(home, "foo")},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			if got := expandPath(tc.in); got != tc.want {
				t.Errorf("expandPath(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "bus_name: org.example.test\ndefault_collection_label: Work\nlog_level: warn\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg := DefaultConfig()
	cfg.ConfigPath = path
	if err := cfg.loadFromFile(); err != nil {
		t.Fatalf("loadFromFile() error = %v", err)
	}

	if cfg.BusName != "org.example.test" {
		t.Errorf("BusName = %s, want org.example.test", cfg.BusName)
	}
	if cfg.DefaultCollectionLabel != "Work" {
		t.Errorf("DefaultCollectionLabel = %s, want Work", cfg.DefaultCollectionLabel)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %s, want warn", cfg.LogLevel)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfigPath = filepath.Join(t.TempDir(), "does-not-exist.yaml")

	if err := cfg.loadFromFile(); !os.IsNotExist(err) {
		t.Errorf("loadFromFile() error = %v, want os.IsNotExist", err)
	}
}
