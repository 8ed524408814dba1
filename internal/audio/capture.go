package audio

import (
	"context"
	"sync"

	"github.com/scribelabs/scribe-live/pkg/logger"
)

// Capture pulls fixed-size sample windows from a SampleSource at the
// device's natural cadence, encodes each window, and hands the frame to a
// dispatch callback. Dispatch is decoupled from the read loop by a bounded
// channel so a slow network path can never stall device reads; frames are
// dropped (and logged) when the channel is full.
type Capture struct {
	source  SampleSource
	encoder *Encoder
	onFrame func(Frame)
	logger  *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	frames chan Frame
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewCapture creates a capture pipeline over the given source. onFrame is
// invoked from a dedicated goroutine, one frame at a time, in capture order.
func NewCapture(ctx context.Context, source SampleSource, encoder *Encoder, onFrame func(Frame), log *logger.Logger) *Capture {
	capCtx, capCancel := context.WithCancel(ctx)
	return &Capture{
		source:  source,
		encoder: encoder,
		onFrame: onFrame,
		logger:  log.Named("capture"),
		ctx:     capCtx,
		cancel:  capCancel,
		frames:  make(chan Frame, 32),
	}
}

// Start begins pulling windows from the source. Calling Start on a running
// capture is a no-op.
func (c *Capture) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return
	}
	c.running = true

	c.logger.Info("Starting audio capture")

	c.wg.Add(2)
	go c.readLoop()
	go c.dispatchLoop()
}

// Stop releases the source and stops both loops. No frame is delivered
// after Stop returns. Idempotent.
func (c *Capture) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	c.logger.Info("Stopping audio capture")

	c.cancel()
	// Closing the source unblocks a pending ReadWindow
	if err := c.source.Close(); err != nil {
		c.logger.Warn("Error closing sample source", logger.Error(err))
	}
	c.wg.Wait()
}

// readLoop pulls windows from the source until the context is canceled
func (c *Capture) readLoop() {
	defer c.wg.Done()
	defer close(c.frames)

	windowCount := 0
	droppedCount := 0

	for {
		window, err := c.source.ReadWindow(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				c.logger.Info("Audio capture stopped",
					logger.Int("windows_read", windowCount),
					logger.Int("frames_dropped", droppedCount))
				return
			}
			c.logger.Error("Error reading audio window", logger.Error(err))
			return
		}

		windowCount++
		frame := c.encoder.Encode(window)

		select {
		case c.frames <- frame:
		default:
			// Dispatch is behind; losing one frame must not stop capture
			droppedCount++
			if droppedCount%10 == 1 {
				c.logger.Warn("Dropping audio frame, dispatch is behind",
					logger.Int("frames_dropped", droppedCount))
			}
		}
	}
}

// dispatchLoop forwards frames to the callback in capture order
func (c *Capture) dispatchLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case frame, ok := <-c.frames:
			if !ok {
				return
			}
			c.onFrame(frame)
		}
	}
}
