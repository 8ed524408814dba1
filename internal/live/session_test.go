package live

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/scribelabs/scribe-live/internal/audio"
	"github.com/scribelabs/scribe-live/pkg/logger"
)

// fakeWire is an in-memory session transport
type fakeWire struct {
	mu        sync.Mutex
	writes    []map[string]any
	inbound   chan []byte
	closeOnce sync.Once
}

func newFakeWire() *fakeWire {
	return &fakeWire{inbound: make(chan []byte, 16)}
}

func (w *fakeWire) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, msg)
	return nil
}

func (w *fakeWire) ReadMessage() ([]byte, error) {
	msg, ok := <-w.inbound
	if !ok {
		return nil, errors.New("wire closed")
	}
	return msg, nil
}

func (w *fakeWire) Close() error {
	w.closeOnce.Do(func() { close(w.inbound) })
	return nil
}

func (w *fakeWire) sentPayloads() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var payloads []string
	for _, msg := range w.writes {
		ri, _ := msg["realtime_input"].(map[string]any)
		chunks, _ := ri["media_chunks"].([]any)
		for _, c := range chunks {
			chunk, _ := c.(map[string]any)
			if data, ok := chunk["data"].(string); ok {
				payloads = append(payloads, data)
			}
		}
	}
	return payloads
}

// recordingSink collects session events on a channel
type recordingSink struct {
	events chan string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(chan string, 32)}
}

func (s *recordingSink) OnPartialText(text string) { s.events <- "partial:" + text }
func (s *recordingSink) OnTurnComplete()           { s.events <- "turn_complete" }
func (s *recordingSink) OnError(err error)         { s.events <- "error:" + err.Error() }
func (s *recordingSink) OnClosed()                 { s.events <- "closed" }

func (s *recordingSink) next(t *testing.T) string {
	t.Helper()
	select {
	case ev := <-s.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for session event")
		return ""
	}
}

func dialerFor(wire Wire) DialFunc {
	return func(ctx context.Context) (Wire, error) {
		return wire, nil
	}
}

// slowWire delays every write, widening the handshake flush window
type slowWire struct {
	*fakeWire
	delay time.Duration
}

func (w *slowWire) WriteJSON(v any) error {
	time.Sleep(w.delay)
	return w.fakeWire.WriteJSON(v)
}

func TestSessionFlushesQueuedFramesInOrder(t *testing.T) {
	wire := newFakeWire()
	sink := newRecordingSink()
	session := NewSession(dialerFor(wire), sink, 64, logger.NewNop())

	// Frames sent before the handshake completes are queued
	session.Send(audio.Frame{Payload: "first", MIMEType: "audio/pcm;rate=16000"})
	session.Send(audio.Frame{Payload: "second", MIMEType: "audio/pcm;rate=16000"})

	if session.State() != StateConnecting {
		t.Fatalf("Expected connecting state before Start, got %s", session.State())
	}

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer session.Close()

	if session.State() != StateOpen {
		t.Fatalf("Expected open state after Start, got %s", session.State())
	}

	session.Send(audio.Frame{Payload: "third", MIMEType: "audio/pcm;rate=16000"})

	payloads := wire.sentPayloads()
	want := []string{"first", "second", "third"}
	if len(payloads) != len(want) {
		t.Fatalf("Expected %d frames on the wire, got %d", len(want), len(payloads))
	}
	for i := range want {
		if payloads[i] != want[i] {
			t.Errorf("Frame %d: expected payload %q, got %q", i, want[i], payloads[i])
		}
	}
}

func TestSessionOpenOnlyAfterFlushCompletes(t *testing.T) {
	wire := &slowWire{fakeWire: newFakeWire(), delay: 50 * time.Millisecond}
	sink := newRecordingSink()
	session := NewSession(dialerFor(wire), sink, 64, logger.NewNop())

	session.Send(audio.Frame{Payload: "q1"})
	session.Send(audio.Frame{Payload: "q2"})
	session.Send(audio.Frame{Payload: "q3"})

	startDone := make(chan error, 1)
	go func() { startDone <- session.Start(context.Background()) }()

	// A frame sent the instant Open becomes observable must land after
	// every queued frame
	deadline := time.Now().Add(2 * time.Second)
	for session.State() != StateOpen {
		if time.Now().After(deadline) {
			t.Fatal("Session never reached open state")
		}
		time.Sleep(time.Millisecond)
	}
	session.Send(audio.Frame{Payload: "live1"})

	if err := <-startDone; err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer session.Close()

	payloads := wire.sentPayloads()
	want := []string{"q1", "q2", "q3", "live1"}
	if len(payloads) != len(want) {
		t.Fatalf("Expected %d frames on the wire, got %d: %v", len(want), len(payloads), payloads)
	}
	for i := range want {
		if payloads[i] != want[i] {
			t.Errorf("Frame %d: expected payload %q, got %q (frames out of submission order)", i, want[i], payloads[i])
		}
	}
}

func TestSessionSendDuringFlushIsQueued(t *testing.T) {
	wire := &slowWire{fakeWire: newFakeWire(), delay: 30 * time.Millisecond}
	sink := newRecordingSink()
	session := NewSession(dialerFor(wire), sink, 64, logger.NewNop())

	session.Send(audio.Frame{Payload: "q1"})
	session.Send(audio.Frame{Payload: "q2"})

	startDone := make(chan error, 1)
	go func() { startDone <- session.Start(context.Background()) }()

	// Mid-flush this frame either joins the queue (still connecting) or
	// waits for the write lock; both orderings keep it behind q1/q2
	time.Sleep(10 * time.Millisecond)
	session.Send(audio.Frame{Payload: "q3"})

	if err := <-startDone; err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer session.Close()

	payloads := wire.sentPayloads()
	want := []string{"q1", "q2", "q3"}
	if len(payloads) != len(want) {
		t.Fatalf("Expected %d frames on the wire, got %d: %v", len(want), len(payloads), payloads)
	}
	for i := range want {
		if payloads[i] != want[i] {
			t.Errorf("Frame %d: expected payload %q, got %q", i, want[i], payloads[i])
		}
	}
}

func TestSessionPendingQueueBounded(t *testing.T) {
	wire := newFakeWire()
	sink := newRecordingSink()
	session := NewSession(dialerFor(wire), sink, 2, logger.NewNop())

	session.Send(audio.Frame{Payload: "a"})
	session.Send(audio.Frame{Payload: "b"})
	session.Send(audio.Frame{Payload: "c"}) // Dropped, queue is full

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer session.Close()

	payloads := wire.sentPayloads()
	if len(payloads) != 2 {
		t.Fatalf("Expected 2 flushed frames, got %d", len(payloads))
	}
	if payloads[0] != "a" || payloads[1] != "b" {
		t.Errorf("Expected oldest frames retained, got %v", payloads)
	}
}

func TestSessionDispatchesEventsInOrder(t *testing.T) {
	wire := newFakeWire()
	sink := newRecordingSink()
	session := NewSession(dialerFor(wire), sink, 64, logger.NewNop())

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	wire.inbound <- []byte(`{"serverContent":{"inputTranscription":{"text":"Hel"}}}`)
	wire.inbound <- []byte(`{"serverContent":{"inputTranscription":{"text":"lo"}}}`)
	wire.inbound <- []byte(`{"serverContent":{"turnComplete":true}}`)

	want := []string{"partial:Hel", "partial:lo", "turn_complete"}
	for i, w := range want {
		if got := sink.next(t); got != w {
			t.Errorf("Event %d: expected %q, got %q", i, w, got)
		}
	}

	session.Close()
	if got := sink.next(t); got != "closed" {
		t.Errorf("Expected closed event after Close, got %q", got)
	}
}

func TestSessionReadsModelTurnText(t *testing.T) {
	wire := newFakeWire()
	sink := newRecordingSink()
	session := NewSession(dialerFor(wire), sink, 64, logger.NewNop())

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer session.Close()

	wire.inbound <- []byte(`{"serverContent":{"modelTurn":{"parts":[{"text":"hello"},{"text":" there"}]},"turnComplete":true}}`)

	want := []string{"partial:hello", "partial: there", "turn_complete"}
	for i, w := range want {
		if got := sink.next(t); got != w {
			t.Errorf("Event %d: expected %q, got %q", i, w, got)
		}
	}
}

func TestSessionSendAfterCloseIsNoop(t *testing.T) {
	wire := newFakeWire()
	sink := newRecordingSink()
	session := NewSession(dialerFor(wire), sink, 64, logger.NewNop())

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	session.Close()
	if got := sink.next(t); got != "closed" {
		t.Fatalf("Expected closed event, got %q", got)
	}

	session.Send(audio.Frame{Payload: "late"})

	if payloads := wire.sentPayloads(); len(payloads) != 0 {
		t.Errorf("Expected no frames written after close, got %v", payloads)
	}
	if session.State() != StateClosed {
		t.Errorf("Expected closed state, got %s", session.State())
	}
}

func TestSessionCloseIdempotent(t *testing.T) {
	wire := newFakeWire()
	sink := newRecordingSink()
	session := NewSession(dialerFor(wire), sink, 64, logger.NewNop())

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	session.Close()
	session.Close()
	session.Close()

	if got := sink.next(t); got != "closed" {
		t.Fatalf("Expected closed event, got %q", got)
	}

	// No second closed event may arrive
	select {
	case ev := <-sink.events:
		t.Errorf("Expected exactly one closed event, also got %q", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSessionWireErrorSurfacedOnce(t *testing.T) {
	wire := newFakeWire()
	sink := newRecordingSink()
	session := NewSession(dialerFor(wire), sink, 64, logger.NewNop())

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Simulate the provider dropping the connection
	wire.Close()

	first := sink.next(t)
	if first != "error:wire closed" {
		t.Errorf("Expected error event first, got %q", first)
	}
	if got := sink.next(t); got != "closed" {
		t.Errorf("Expected closed event after error, got %q", got)
	}

	if session.State() != StateFailed {
		t.Errorf("Expected failed state, got %s", session.State())
	}

	// No further error events may arrive
	select {
	case ev := <-sink.events:
		t.Errorf("Expected no further events, got %q", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSessionDialFailure(t *testing.T) {
	sink := newRecordingSink()
	dialErr := errors.New("handshake rejected")
	dial := func(ctx context.Context) (Wire, error) {
		return nil, dialErr
	}
	session := NewSession(dial, sink, 64, logger.NewNop())

	if err := session.Start(context.Background()); !errors.Is(err, dialErr) {
		t.Fatalf("Expected dial error from Start, got %v", err)
	}

	if got := sink.next(t); got != "error:handshake rejected" {
		t.Errorf("Expected error event, got %q", got)
	}
	if got := sink.next(t); got != "closed" {
		t.Errorf("Expected closed event, got %q", got)
	}
	if session.State() != StateFailed {
		t.Errorf("Expected failed state, got %s", session.State())
	}
}
