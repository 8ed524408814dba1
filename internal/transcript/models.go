package transcript

import "time"

// Entry is a single committed transcript entry. Only final text is
// committed, partials live in the assembler's pending buffer.
type Entry struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsFinal   bool      `json:"is_final"`
}
