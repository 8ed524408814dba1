package live

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/scribelabs/scribe-live/internal/audio"
	"github.com/scribelabs/scribe-live/pkg/logger"
)

// ErrSessionClosed indicates an operation on a session that already ended
var ErrSessionClosed = errors.New("live session closed")

// SessionState describes the lifecycle of a live session
type SessionState int

const (
	StateConnecting SessionState = iota // Handshake in flight, frames are queued
	StateOpen                           // Frames flow to the provider
	StateClosed                         // Ended normally
	StateFailed                         // Ended with a provider or transport error
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EventSink receives session events. All callbacks are invoked from a
// single goroutine in the order events arrive from the provider.
type EventSink interface {
	OnPartialText(text string)
	OnTurnComplete()
	OnError(err error)
	OnClosed()
}

// Session streams audio frames to the transcription provider over a Wire
// and dispatches transcription events to an EventSink. Frames sent while
// the handshake is in flight are queued and flushed in order once the
// session opens; frames sent after the session ends are dropped with a log
// line. Close is idempotent and swallows teardown errors. A failing
// session surfaces its error through OnError exactly once, always followed
// by OnClosed.
type Session struct {
	dial   DialFunc
	sink   EventSink
	logger *logger.Logger

	mu      sync.Mutex
	state   SessionState
	wire    Wire
	pending []audio.Frame
	maxPend int

	// writeMu serializes all wire writes; the websocket transport does
	// not allow concurrent writers
	writeMu sync.Mutex

	closeOnce sync.Once
	errorOnce sync.Once
	done      chan struct{}
}

// NewSession creates a session in the Connecting state. maxPending bounds
// the frame queue held during the handshake.
func NewSession(dial DialFunc, sink EventSink, maxPending int, log *logger.Logger) *Session {
	return &Session{
		dial:    dial,
		sink:    sink,
		logger:  log.Named("live-session"),
		state:   StateConnecting,
		maxPend: maxPending,
		done:    make(chan struct{}),
	}
}

// Start performs the provider handshake and launches the event loop.
// It returns once the session is open or has failed.
func (s *Session) Start(ctx context.Context) error {
	wire, err := s.dial(ctx)
	if err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		// Closed while the handshake was in flight
		s.mu.Unlock()
		wire.Close()
		return ErrSessionClosed
	}
	s.wire = wire
	s.mu.Unlock()

	// Flush queued frames before publishing Open. Concurrent Sends keep
	// queueing while the flush runs, so submission order is preserved.
	s.writeMu.Lock()
	flushed := 0
	for {
		s.mu.Lock()
		if s.state != StateConnecting {
			// Closed during the flush
			s.mu.Unlock()
			s.writeMu.Unlock()
			return ErrSessionClosed
		}
		if len(s.pending) == 0 {
			s.state = StateOpen
			s.mu.Unlock()
			break
		}
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, frame := range batch {
			if err := wire.WriteJSON(frameMessage(frame)); err != nil {
				s.writeMu.Unlock()
				s.fail(err)
				return err
			}
		}
		flushed += len(batch)
	}
	s.writeMu.Unlock()

	s.logger.Info("Live session open", logger.Int("queued_frames", flushed))

	go s.readLoop()

	return nil
}

// Send forwards a frame to the provider. While connecting the frame is
// queued; after the session ends it is dropped.
func (s *Session) Send(frame audio.Frame) {
	s.mu.Lock()
	switch s.state {
	case StateConnecting:
		if len(s.pending) >= s.maxPend {
			s.mu.Unlock()
			s.logger.Warn("Pending frame queue full, dropping frame",
				logger.Int("max_pending", s.maxPend))
			return
		}
		s.pending = append(s.pending, frame)
		s.mu.Unlock()
		return

	case StateClosed, StateFailed:
		s.mu.Unlock()
		s.logger.Debug("Dropping frame sent after session end")
		return
	}
	s.mu.Unlock()

	if err := s.writeFrame(frame); err != nil {
		s.fail(err)
	}
}

// State returns the current session state
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close ends the session. Teardown errors are logged and swallowed.
// Calling Close more than once is a no-op.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		wire := s.wire
		if s.state == StateConnecting || s.state == StateOpen {
			s.state = StateClosed
		}
		s.mu.Unlock()

		s.logger.Info("Closing live session")

		if wire != nil {
			if err := wire.Close(); err != nil {
				s.logger.Debug("Error closing session wire", logger.Error(err))
			}
		}

		close(s.done)
		s.sink.OnClosed()
	})
}

func frameMessage(frame audio.Frame) map[string]any {
	return map[string]any{
		"realtime_input": map[string]any{
			"media_chunks": []map[string]any{
				{
					"mime_type": frame.MIMEType,
					"data":      frame.Payload,
				},
			},
		},
	}
}

func (s *Session) writeFrame(frame audio.Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	wire := s.wire
	s.mu.Unlock()
	if wire == nil {
		return ErrSessionClosed
	}
	return wire.WriteJSON(frameMessage(frame))
}

// fail records a session error. The error reaches the sink at most once,
// and teardown always follows.
func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.state == StateClosed {
		// Errors after an intentional close are part of teardown
		s.mu.Unlock()
		return
	}
	s.state = StateFailed
	s.mu.Unlock()

	s.errorOnce.Do(func() {
		s.logger.Error("Live session failed", logger.Error(err))
		s.sink.OnError(err)
	})

	s.Close()
}

// readLoop reads provider messages and dispatches transcription events
// in arrival order until the wire closes.
func (s *Session) readLoop() {
	for {
		s.mu.Lock()
		wire := s.wire
		s.mu.Unlock()

		msg, err := wire.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				// Intentional close, the read error is expected
			default:
				s.fail(err)
			}
			return
		}

		s.dispatch(msg)
	}
}

// serverMessage mirrors the subset of the BidiGenerateContent response we
// consume. Transcription text arrives either as an input transcription or
// as model turn parts depending on the model.
type serverMessage struct {
	ServerContent *struct {
		InputTranscription *struct {
			Text string `json:"text"`
		} `json:"inputTranscription"`
		ModelTurn *struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"modelTurn"`
		TurnComplete bool `json:"turnComplete"`
	} `json:"serverContent"`
}

func (s *Session) dispatch(raw []byte) {
	var msg serverMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.Debug("Ignoring unparseable provider message", logger.Error(err))
		return
	}

	sc := msg.ServerContent
	if sc == nil {
		return
	}

	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		s.sink.OnPartialText(sc.InputTranscription.Text)
	}

	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part.Text != "" {
				s.sink.OnPartialText(part.Text)
			}
		}
	}

	if sc.TurnComplete {
		s.sink.OnTurnComplete()
	}
}
