package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server  ServerConfig  `toml:"server"`  // HTTP server settings
	Logging LoggingConfig `toml:"logging"` // Application logging settings
	Storage StorageConfig `toml:"storage"` // Data persistence settings
	Audio   AudioConfig   `toml:"audio"`   // Microphone capture settings
	Live    LiveConfig    `toml:"live"`    // Live transcription session settings
	Batch   BatchConfig   `toml:"batch"`   // Media-file subtitle generation settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port             int    `toml:"port"`                  // HTTP port for the server
	Host             string `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	ReadTimeoutSecs  int    `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs int    `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout, recommended for streaming)
	IdleTimeoutSecs  int    `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
	StaticFilesDir   string `toml:"static_files_dir"`      // Directory to serve static files from (e.g., "www")
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path"` // Path to the SQLite database file
}

// AudioConfig contains microphone capture configuration
type AudioConfig struct {
	FFmpegPath    string `toml:"ffmpeg_path"`    // Path to FFmpeg executable used for device capture
	InputFormat   string `toml:"input_format"`   // FFmpeg input device format (e.g., "alsa", "avfoundation", "dshow")
	InputDevice   string `toml:"input_device"`   // Device identifier passed to FFmpeg (e.g., "default")
	SampleRate    int    `toml:"sample_rate"`    // Capture sample rate in Hz (16000 for the live transcription provider)
	WindowSamples int    `toml:"window_samples"` // Samples per capture window (4096 -> ~256 ms windows at 16 kHz)
}

// LiveConfig contains live transcription session configuration
type LiveConfig struct {
	APIKey        string `toml:"api_key"`           // Gemini API key (falls back to GEMINI_API_KEY env var)
	Model         string `toml:"model"`             // Gemini Live model to use for streaming transcription
	PendingFrames int    `toml:"pending_frames"`    // Maximum frames queued while the session handshake is in flight
	HandshakeSecs int    `toml:"handshake_seconds"` // WebSocket handshake timeout in seconds
	SystemPrompt  string `toml:"system_prompt"`     // Optional transcription system instruction override
}

// BatchConfig contains media-file subtitle generation configuration
type BatchConfig struct {
	APIKey         string `toml:"api_key"`         // Gemini API key (falls back to GEMINI_API_KEY env var)
	Model          string `toml:"model"`           // Gemini model to use for batch subtitle generation
	TimeoutSeconds int    `toml:"timeout_seconds"` // Request timeout in seconds
	MaxUploadMB    int    `toml:"max_upload_mb"`   // Maximum accepted media upload size in megabytes
	PromptPath     string `toml:"prompt_path"`     // Optional path to a prompt file overriding the built-in subtitle prompt
	Prompt         string `toml:"-"`               // Loaded from PromptPath
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			// File exists, try to load it
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate validates the configuration and applies defaults
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Set default static files directory if not specified
	if c.Server.StaticFilesDir == "" {
		c.Server.StaticFilesDir = "www"
	}

	// Validate logging config
	switch c.Logging.Level {
	case "":
		c.Logging.Level = "info"
	case "debug", "info", "warn", "error":
		// Valid log level
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "":
		c.Logging.Format = "console"
	case "json", "console":
		// Valid log format
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	// Validate storage config
	if c.Storage.SQLitePath == "" {
		return fmt.Errorf("sqlite_path is required")
	}

	// Validate audio config and apply defaults
	if c.Audio.FFmpegPath == "" {
		c.Audio.FFmpegPath = "ffmpeg"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.SampleRate < 0 {
		return fmt.Errorf("invalid audio sample rate: %d", c.Audio.SampleRate)
	}
	if c.Audio.WindowSamples == 0 {
		c.Audio.WindowSamples = 4096
	}
	if c.Audio.WindowSamples < 0 {
		return fmt.Errorf("invalid audio window size: %d", c.Audio.WindowSamples)
	}
	if c.Audio.InputDevice == "" {
		c.Audio.InputDevice = "default"
	}

	// Validate live config and apply defaults
	if err := c.validateLive(); err != nil {
		return err
	}

	// Validate batch config and apply defaults
	if err := c.validateBatch(); err != nil {
		return err
	}

	return nil
}

func (c *Config) validateLive() error {
	if c.Live.APIKey == "" {
		c.Live.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.Live.APIKey == "" {
		fmt.Printf("WARN: No Gemini API key provided for live transcription - live mode will be disabled\n")
	}
	if c.Live.Model == "" {
		c.Live.Model = "gemini-2.5-flash-native-audio-preview-12-2025"
	}
	if c.Live.PendingFrames == 0 {
		c.Live.PendingFrames = 64
	}
	if c.Live.PendingFrames < 0 {
		return fmt.Errorf("invalid pending_frames value: %d (must be >= 0)", c.Live.PendingFrames)
	}
	if c.Live.HandshakeSecs == 0 {
		c.Live.HandshakeSecs = 30
	}
	if c.Live.HandshakeSecs < 0 {
		return fmt.Errorf("invalid handshake_seconds value: %d (must be >= 0)", c.Live.HandshakeSecs)
	}
	return nil
}

func (c *Config) validateBatch() error {
	if c.Batch.APIKey == "" {
		c.Batch.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.Batch.Model == "" {
		c.Batch.Model = "gemini-3-flash-preview"
	}
	if c.Batch.TimeoutSeconds == 0 {
		c.Batch.TimeoutSeconds = 120
	}
	if c.Batch.TimeoutSeconds < 0 {
		return fmt.Errorf("invalid batch timeout_seconds: %d (must be >= 0)", c.Batch.TimeoutSeconds)
	}
	if c.Batch.MaxUploadMB == 0 {
		c.Batch.MaxUploadMB = 64
	}
	if c.Batch.MaxUploadMB < 0 {
		return fmt.Errorf("invalid max_upload_mb: %d (must be >= 0)", c.Batch.MaxUploadMB)
	}

	// Load the prompt override if configured
	if c.Batch.PromptPath != "" {
		data, err := os.ReadFile(c.Batch.PromptPath)
		if err != nil {
			return fmt.Errorf("failed to read batch prompt file: %w", err)
		}
		c.Batch.Prompt = string(data)
	}
	return nil
}
