package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/scribelabs/scribe-live/internal/storage/sqlite"
	"github.com/scribelabs/scribe-live/internal/websocket"
	"github.com/scribelabs/scribe-live/pkg/logger"
)

// EntryStore persists committed transcript entries
type EntryStore interface {
	StoreTranscript(record *sqlite.TranscriptRecord) error
	ClearTranscripts() error
}

// Broadcaster pushes transcript updates to connected clients
type Broadcaster interface {
	Broadcast(message *websocket.Message)
}

// Assembler accumulates partial transcription text into utterances and
// commits them to the transcript log. It is either idle (no pending text)
// or accumulating; a turn-complete or session stop commits the trimmed
// pending text as a new entry. Whitespace-only utterances commit nothing.
// The committed log is append-only until explicitly cleared.
type Assembler struct {
	store       EntryStore
	broadcaster Broadcaster
	logger      *logger.Logger

	mu      sync.Mutex
	pending strings.Builder
}

// NewAssembler creates a transcript assembler. broadcaster may be nil.
func NewAssembler(store EntryStore, broadcaster Broadcaster, log *logger.Logger) *Assembler {
	return &Assembler{
		store:       store,
		broadcaster: broadcaster,
		logger:      log.Named("transcript"),
	}
}

// OnPartialText appends a text fragment to the pending utterance. Fragments
// are concatenated in arrival order with no separator.
func (a *Assembler) OnPartialText(text string) {
	a.mu.Lock()
	a.pending.WriteString(text)
	pending := a.pending.String()
	a.mu.Unlock()

	a.broadcast(websocket.MessageTypeTranscriptPartial, map[string]any{
		"text": pending,
	})
}

// OnTurnComplete commits the pending utterance and returns to idle
func (a *Assembler) OnTurnComplete() {
	a.commitPending()
}

// OnSessionStop commits any pending utterance when the live session ends,
// so text from an unterminated final turn is not lost.
func (a *Assembler) OnSessionStop() {
	a.commitPending()
}

// OnSessionError drops the pending utterance. Text from a failed turn is
// not trustworthy enough to commit.
func (a *Assembler) OnSessionError() {
	a.mu.Lock()
	dropped := a.pending.Len()
	a.pending.Reset()
	a.mu.Unlock()

	if dropped > 0 {
		a.logger.Warn("Discarding pending utterance after session error",
			logger.Int("dropped_chars", dropped))
	}
}

// OnClear wipes the committed transcript log. Pending text from an
// in-progress utterance is kept.
func (a *Assembler) OnClear() error {
	if err := a.store.ClearTranscripts(); err != nil {
		a.logger.Error("Failed to clear transcript log", logger.Error(err))
		return err
	}

	a.logger.Info("Cleared transcript log")
	return nil
}

// Pending returns the current in-progress utterance text
func (a *Assembler) Pending() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending.String()
}

func (a *Assembler) commitPending() {
	a.mu.Lock()
	text := strings.TrimSpace(a.pending.String())
	a.pending.Reset()
	a.mu.Unlock()

	// Whitespace-only turns produce no entry
	if text == "" {
		return
	}

	entry := Entry{
		ID:        uuid.New().String(),
		Text:      text,
		Timestamp: time.Now().UTC(),
		IsFinal:   true,
	}

	if err := a.store.StoreTranscript(&sqlite.TranscriptRecord{
		ID:        entry.ID,
		CreatedAt: entry.Timestamp,
		Content:   entry.Text,
		IsFinal:   entry.IsFinal,
	}); err != nil {
		a.logger.Error("Failed to store transcript entry", logger.Error(err))
	}

	a.logger.Debug("Committed transcript entry",
		logger.String("id", entry.ID),
		logger.Int("length", len(entry.Text)))

	a.broadcast(websocket.MessageTypeTranscriptEntry, map[string]any{
		"id":        entry.ID,
		"text":      entry.Text,
		"timestamp": entry.Timestamp,
	})
}

func (a *Assembler) broadcast(msgType string, data map[string]any) {
	if a.broadcaster == nil {
		return
	}
	a.broadcaster.Broadcast(&websocket.Message{
		Type: msgType,
		Data: data,
	})
}
