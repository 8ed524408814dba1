package live

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/scribelabs/scribe-live/internal/audio"
	"github.com/scribelabs/scribe-live/internal/config"
	"github.com/scribelabs/scribe-live/internal/transcript"
	"github.com/scribelabs/scribe-live/internal/websocket"
	"github.com/scribelabs/scribe-live/pkg/logger"
)

// ErrAlreadyActive indicates a start request while a session is running
var ErrAlreadyActive = errors.New("a live session is already active")

// ErrLiveDisabled indicates live mode has no API key configured
var ErrLiveDisabled = errors.New("live transcription is disabled (no API key configured)")

// sourceFactory opens the audio input for a run
type sourceFactory func(ctx context.Context, cfg audio.DeviceConfig, log *logger.Logger) (audio.SampleSource, error)

// Manager owns the single live transcription run: microphone capture,
// the provider session, and transcript assembly. At most one run is
// active at a time; starting while one is active is rejected.
type Manager struct {
	audioCfg  config.AudioConfig
	liveCfg   config.LiveConfig
	assembler *transcript.Assembler
	wsServer  *websocket.Server
	logger    *logger.Logger

	// Test seams; nil means the production device and provider
	newSource sourceFactory
	dial      DialFunc

	mu          sync.Mutex
	starting    bool
	startCancel context.CancelFunc
	active      *run
}

// run holds the moving parts of one live session
type run struct {
	source  audio.SampleSource
	capture *audio.Capture
	session *Session
	cancel  context.CancelFunc
}

// NewManager creates a live session manager
func NewManager(audioCfg config.AudioConfig, liveCfg config.LiveConfig, assembler *transcript.Assembler, wsServer *websocket.Server, log *logger.Logger) *Manager {
	return &Manager{
		audioCfg:  audioCfg,
		liveCfg:   liveCfg,
		assembler: assembler,
		wsServer:  wsServer,
		logger:    log.Named("live-manager"),
	}
}

// Start opens the microphone, connects to the provider, and begins
// streaming. Returns ErrAlreadyActive if a run is in progress and
// ErrDeviceUnavailable if the microphone cannot be opened. The device
// open and the provider handshake run outside the manager lock, so
// Stop, Active, and State stay responsive during startup.
func (m *Manager) Start(ctx context.Context) error {
	// The run outlives the request that started it, so its context is
	// not derived from the caller's
	runCtx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if m.active != nil || m.starting {
		m.mu.Unlock()
		cancel()
		return ErrAlreadyActive
	}
	if m.liveCfg.APIKey == "" {
		m.mu.Unlock()
		cancel()
		return ErrLiveDisabled
	}
	m.starting = true
	m.startCancel = cancel
	m.mu.Unlock()

	m.logger.Info("Starting live transcription",
		logger.String("model", m.liveCfg.Model),
		logger.String("device", m.audioCfg.InputDevice))

	newSource := m.newSource
	if newSource == nil {
		newSource = func(ctx context.Context, cfg audio.DeviceConfig, log *logger.Logger) (audio.SampleSource, error) {
			return audio.NewDeviceSource(ctx, cfg, log)
		}
	}

	source, err := newSource(runCtx, audio.DeviceConfig{
		FFmpegPath:    m.audioCfg.FFmpegPath,
		InputFormat:   m.audioCfg.InputFormat,
		InputDevice:   m.audioCfg.InputDevice,
		SampleRate:    m.audioCfg.SampleRate,
		WindowSamples: m.audioCfg.WindowSamples,
	}, m.logger)
	if err != nil {
		m.abortStart(cancel)
		return err
	}

	dial := m.dial
	if dial == nil {
		dial = GeminiDialer(
			m.liveCfg.APIKey,
			m.liveCfg.Model,
			m.liveCfg.SystemPrompt,
			time.Duration(m.liveCfg.HandshakeSecs)*time.Second,
			m.logger,
		)
	}
	session := NewSession(dial, &managerSink{m: m}, m.liveCfg.PendingFrames, m.logger)

	encoder := audio.NewEncoder(m.audioCfg.SampleRate)
	capture := audio.NewCapture(runCtx, source, encoder, session.Send, m.logger)

	// Capture starts first so frames queue while the handshake runs
	capture.Start()

	if err := session.Start(runCtx); err != nil {
		capture.Stop()
		source.Close()
		m.abortStart(cancel)
		return err
	}

	m.mu.Lock()
	if !m.starting {
		// Stop aborted the startup after the handshake completed
		m.mu.Unlock()
		capture.Stop()
		session.Close()
		cancel()
		return ErrSessionClosed
	}
	m.starting = false
	m.startCancel = nil
	m.active = &run{
		source:  source,
		capture: capture,
		session: session,
		cancel:  cancel,
	}
	m.mu.Unlock()

	m.broadcastStatus("open")

	return nil
}

// abortStart releases the startup slot after a failed start
func (m *Manager) abortStart(cancel context.CancelFunc) {
	cancel()
	m.mu.Lock()
	m.starting = false
	m.startCancel = nil
	m.mu.Unlock()
}

// Stop ends the active run and commits any pending utterance. A startup
// still in flight is aborted. Calling Stop with no active run is a no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.starting {
		// Cancel the run context; the in-flight Start sees the failed
		// handshake and cleans up its own resources
		m.starting = false
		cancel := m.startCancel
		m.startCancel = nil
		m.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		m.logger.Info("Aborting live transcription startup")
		return
	}
	active := m.active
	m.active = nil
	m.mu.Unlock()

	if active == nil {
		return
	}

	m.logger.Info("Stopping live transcription")

	active.capture.Stop()
	active.session.Close()
	active.cancel()

	// Text from an unterminated final turn is committed on stop
	m.assembler.OnSessionStop()

	m.broadcastStatus("stopped")
}

// Active reports whether a live run is in progress or starting up
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil || m.starting
}

// State returns the session state of the active run, StateConnecting
// during startup, or StateClosed when idle
func (m *Manager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return m.active.session.State()
	}
	if m.starting {
		return StateConnecting
	}
	return StateClosed
}

func (m *Manager) broadcastStatus(status string) {
	if m.wsServer == nil {
		return
	}
	m.wsServer.Broadcast(&websocket.Message{
		Type: websocket.MessageTypeSessionStatus,
		Data: map[string]any{"status": status},
	})
}

// managerSink routes session events into the transcript assembler and out
// to connected clients.
type managerSink struct {
	m *Manager
}

func (s *managerSink) OnPartialText(text string) {
	s.m.assembler.OnPartialText(text)
}

func (s *managerSink) OnTurnComplete() {
	s.m.assembler.OnTurnComplete()
}

func (s *managerSink) OnError(err error) {
	s.m.logger.Error("Live session error", logger.Error(err))
	s.m.assembler.OnSessionError()
	if s.m.wsServer != nil {
		s.m.wsServer.Broadcast(&websocket.Message{
			Type: websocket.MessageTypeError,
			Data: map[string]any{"message": err.Error()},
		})
	}
}

func (s *managerSink) OnClosed() {
	// Tear down capture if the session ended on its own
	go func() {
		s.m.mu.Lock()
		active := s.m.active
		stillActive := active != nil && active.session.State() != StateOpen
		s.m.mu.Unlock()
		if stillActive {
			s.m.Stop()
		}
	}()
}
