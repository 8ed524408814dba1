package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadAndValidateAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 8080
host = "127.0.0.1"

[storage]
sqlite_path = "test.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Expected default log format console, got %s", cfg.Logging.Format)
	}
	if cfg.Server.StaticFilesDir != "www" {
		t.Errorf("Expected default static dir www, got %s", cfg.Server.StaticFilesDir)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("Expected default sample rate 16000, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.WindowSamples != 4096 {
		t.Errorf("Expected default window size 4096, got %d", cfg.Audio.WindowSamples)
	}
	if cfg.Audio.InputDevice != "default" {
		t.Errorf("Expected default input device, got %s", cfg.Audio.InputDevice)
	}
	if cfg.Audio.FFmpegPath != "ffmpeg" {
		t.Errorf("Expected default ffmpeg path, got %s", cfg.Audio.FFmpegPath)
	}
	if cfg.Live.PendingFrames != 64 {
		t.Errorf("Expected default pending frames 64, got %d", cfg.Live.PendingFrames)
	}
	if cfg.Live.HandshakeSecs != 30 {
		t.Errorf("Expected default handshake timeout 30, got %d", cfg.Live.HandshakeSecs)
	}
	if cfg.Batch.TimeoutSeconds != 120 {
		t.Errorf("Expected default batch timeout 120, got %d", cfg.Batch.TimeoutSeconds)
	}
	if cfg.Batch.MaxUploadMB != 64 {
		t.Errorf("Expected default max upload 64, got %d", cfg.Batch.MaxUploadMB)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"missing sqlite path", func(c *Config) { c.Storage.SQLitePath = "" }},
		{"negative sample rate", func(c *Config) { c.Audio.SampleRate = -1 }},
		{"negative window size", func(c *Config) { c.Audio.WindowSamples = -1 }},
		{"negative pending frames", func(c *Config) { c.Live.PendingFrames = -1 }},
		{"negative batch timeout", func(c *Config) { c.Batch.TimeoutSeconds = -5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Server.Port = 8080
			cfg.Storage.SQLitePath = "test.db"
			tt.mutate(cfg)

			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Expected error for missing config file, got nil")
	}
}

func TestLoadWithFallbackPrefersExplicitPath(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9999

[storage]
sqlite_path = "test.db"
`)

	cfg, err := LoadWithFallback(path)
	if err != nil {
		t.Fatalf("LoadWithFallback failed: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Expected port 9999 from explicit path, got %d", cfg.Server.Port)
	}
}
