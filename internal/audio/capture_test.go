package audio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/scribelabs/scribe-live/pkg/logger"
)

// stubSource replays a fixed set of windows, then blocks until closed
type stubSource struct {
	windows   [][]float32
	idx       int
	closeOnce sync.Once
	closed    chan struct{}
}

func newStubSource(windows ...[]float32) *stubSource {
	return &stubSource{
		windows: windows,
		closed:  make(chan struct{}),
	}
}

func (s *stubSource) ReadWindow(ctx context.Context) ([]float32, error) {
	if s.idx < len(s.windows) {
		w := s.windows[s.idx]
		s.idx++
		return w, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, context.Canceled
	}
}

func (s *stubSource) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func TestCaptureDeliversFramesInOrder(t *testing.T) {
	source := newStubSource(
		[]float32{0},
		[]float32{0.5},
		[]float32{-0.5},
	)

	frames := make(chan Frame, 8)
	capture := NewCapture(context.Background(), source, NewEncoder(16000), func(f Frame) {
		frames <- f
	}, logger.NewNop())

	capture.Start()
	defer capture.Stop()

	var got []Frame
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case f := <-frames:
			got = append(got, f)
		case <-timeout:
			t.Fatalf("Timed out waiting for frames, got %d", len(got))
		}
	}

	// Same inputs encode to the same payloads in the same order
	e := NewEncoder(16000)
	want := []Frame{
		e.Encode([]float32{0}),
		e.Encode([]float32{0.5}),
		e.Encode([]float32{-0.5}),
	}
	for i := range want {
		if got[i].Payload != want[i].Payload {
			t.Errorf("Frame %d: expected payload %q, got %q", i, want[i].Payload, got[i].Payload)
		}
	}
}

func TestCaptureNoDeliveryAfterStop(t *testing.T) {
	source := newStubSource([]float32{0})

	var mu sync.Mutex
	stopped := false
	capture := NewCapture(context.Background(), source, NewEncoder(16000), func(f Frame) {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			t.Error("Frame delivered after Stop returned")
		}
	}, logger.NewNop())

	capture.Start()
	time.Sleep(50 * time.Millisecond)
	capture.Stop()

	mu.Lock()
	stopped = true
	mu.Unlock()

	time.Sleep(50 * time.Millisecond)
}

func TestCaptureStopIdempotent(t *testing.T) {
	source := newStubSource()
	capture := NewCapture(context.Background(), source, NewEncoder(16000), func(Frame) {}, logger.NewNop())

	capture.Start()
	capture.Stop()
	capture.Stop() // Second stop must not panic or block
}

func TestCaptureStartIdempotent(t *testing.T) {
	source := newStubSource()
	capture := NewCapture(context.Background(), source, NewEncoder(16000), func(Frame) {}, logger.NewNop())

	capture.Start()
	capture.Start() // Second start must not spawn extra loops
	capture.Stop()
}
