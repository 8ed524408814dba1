package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/scribelabs/scribe-live/pkg/logger"
)

// ErrDeviceUnavailable indicates the audio input device could not be opened
// (missing hardware, busy device, or denied permission).
var ErrDeviceUnavailable = errors.New("audio input device unavailable")

// SampleSource produces fixed-size windows of normalized audio samples.
// ReadWindow blocks until a full window is available or the context is done.
type SampleSource interface {
	ReadWindow(ctx context.Context) ([]float32, error)
	Close() error
}

// DeviceConfig contains configuration for the microphone device source
type DeviceConfig struct {
	FFmpegPath    string
	InputFormat   string // FFmpeg input device format (e.g., "alsa", "avfoundation")
	InputDevice   string // Device identifier (e.g., "default")
	SampleRate    int
	WindowSamples int
}

// DeviceSource captures audio from the system input device through an
// ffmpeg child process emitting raw s16le PCM on stdout, and converts it
// to normalized float32 windows.
type DeviceSource struct {
	cfg    DeviceConfig
	cmd    *exec.Cmd
	stdout io.ReadCloser
	logger *logger.Logger
	mu     sync.Mutex
	closed bool
}

// NewDeviceSource opens the input device. Returns ErrDeviceUnavailable if
// the capture process cannot be started.
func NewDeviceSource(ctx context.Context, cfg DeviceConfig, log *logger.Logger) (*DeviceSource, error) {
	args := []string{
		"-loglevel", "error", // Minimal logging
		"-fflags", "nobuffer", // Disable input buffering
		"-flags", "low_delay", // Enable low delay mode
	}
	if cfg.InputFormat != "" {
		args = append(args, "-f", cfg.InputFormat)
	}
	args = append(args,
		"-i", cfg.InputDevice, // Input device
		"-f", "s16le", // Raw PCM output
		"-acodec", "pcm_s16le", // Audio codec
		"-ac", "1", // Mono
		"-ar", fmt.Sprintf("%d", cfg.SampleRate), // Sample rate
		"-flush_packets", "1", // Flush packets immediately
		"pipe:1", // Output to stdout
	)

	cmd := exec.CommandContext(ctx, cfg.FFmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create stdout pipe: %v", ErrDeviceUnavailable, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start capture process: %v", ErrDeviceUnavailable, err)
	}

	log.Info("Opened audio input device",
		logger.String("device", cfg.InputDevice),
		logger.Int("sample_rate", cfg.SampleRate),
		logger.Int("window_samples", cfg.WindowSamples))

	return &DeviceSource{
		cfg:    cfg,
		cmd:    cmd,
		stdout: stdout,
		logger: log.Named("device-source"),
	}, nil
}

// ReadWindow reads one full window of samples from the device
func (d *DeviceSource) ReadWindow(ctx context.Context) ([]float32, error) {
	buf := make([]byte, d.cfg.WindowSamples*2)
	if _, err := io.ReadFull(d.stdout, buf); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to read from capture process: %w", err)
	}

	window := make([]float32, d.cfg.WindowSamples)
	for i := range window {
		v := int16(binary.LittleEndian.Uint16(buf[i*2:]))
		window[i] = float32(v) / 32768
	}
	return window, nil
}

// Close releases the device by terminating the capture process. Idempotent.
func (d *DeviceSource) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	d.logger.Info("Releasing audio input device")

	// Kill errors are expected when the process already exited
	if d.cmd != nil && d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
		_ = d.cmd.Wait()
	}
	_ = d.stdout.Close()

	return nil
}
