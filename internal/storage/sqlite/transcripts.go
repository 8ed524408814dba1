package sqlite

import (
	"database/sql"
	"fmt"
	"time"
)

// TranscriptRecord represents a committed transcript entry in the database
type TranscriptRecord struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"timestamp"`
	Content   string    `json:"text"`
	IsFinal   bool      `json:"is_final"`
}

// TranscriptStorage handles storage of committed transcript entries
type TranscriptStorage struct {
	db *sql.DB
}

// NewTranscriptStorage creates a new SQLite transcript storage
func NewTranscriptStorage(db *sql.DB) (*TranscriptStorage, error) {
	storage := &TranscriptStorage{db: db}

	// Initialize database
	if err := storage.initDB(); err != nil {
		return nil, fmt.Errorf("failed to initialize transcript storage: %w", err)
	}

	return storage, nil
}

// initDB initializes the database tables
func (s *TranscriptStorage) initDB() error {
	// Create transcripts table
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcripts (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			content TEXT NOT NULL,
			is_final BOOLEAN NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create transcripts table: %w", err)
	}

	// Create indexes
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_transcripts_created_at ON transcripts(created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create created_at index: %w", err)
	}

	return nil
}

// StoreTranscript stores a committed transcript entry
func (s *TranscriptStorage) StoreTranscript(record *TranscriptRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO transcripts (id, created_at, content, is_final) VALUES (?, ?, ?, ?)`,
		record.ID,
		record.CreatedAt.Format(time.RFC3339),
		record.Content,
		record.IsFinal,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transcript: %w", err)
	}

	return nil
}

// GetTranscripts returns transcript entries in chronological order with pagination
func (s *TranscriptStorage) GetTranscripts(limit, offset int) ([]*TranscriptRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, created_at, content, is_final
		FROM transcripts
		ORDER BY created_at ASC
		LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts: %w", err)
	}
	defer rows.Close()

	return scanTranscripts(rows)
}

// GetTranscriptsByTimeRange returns transcript entries within a time range
func (s *TranscriptStorage) GetTranscriptsByTimeRange(startTime, endTime time.Time, limit, offset int) ([]*TranscriptRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, created_at, content, is_final
		FROM transcripts
		WHERE created_at BETWEEN ? AND ?
		ORDER BY created_at ASC
		LIMIT ? OFFSET ?`,
		startTime.Format(time.RFC3339), endTime.Format(time.RFC3339), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts by time range: %w", err)
	}
	defer rows.Close()

	return scanTranscripts(rows)
}

// ClearTranscripts removes every stored transcript entry
func (s *TranscriptStorage) ClearTranscripts() error {
	if _, err := s.db.Exec(`DELETE FROM transcripts`); err != nil {
		return fmt.Errorf("failed to clear transcripts: %w", err)
	}
	return nil
}

func scanTranscripts(rows *sql.Rows) ([]*TranscriptRecord, error) {
	var records []*TranscriptRecord
	for rows.Next() {
		var record TranscriptRecord
		var createdAt string

		if err := rows.Scan(&record.ID, &createdAt, &record.Content, &record.IsFinal); err != nil {
			return nil, fmt.Errorf("failed to scan transcript: %w", err)
		}

		// Parse created_at
		parsed, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		record.CreatedAt = parsed

		records = append(records, &record)
	}

	return records, nil
}
