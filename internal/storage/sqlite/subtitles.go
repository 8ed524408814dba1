package sqlite

import (
	"database/sql"
	"fmt"
)

// SubtitleRecord represents one timed subtitle segment from a batch job
type SubtitleRecord struct {
	JobID    string  `json:"job_id"`
	Seq      int     `json:"seq"`
	StartSec float64 `json:"start"`
	EndSec   float64 `json:"end"`
	Content  string  `json:"text"`
}

// SubtitleStorage handles storage of generated subtitle segments
type SubtitleStorage struct {
	db *sql.DB
}

// NewSubtitleStorage creates a new SQLite subtitle storage
func NewSubtitleStorage(db *sql.DB) (*SubtitleStorage, error) {
	storage := &SubtitleStorage{db: db}

	// Initialize database
	if err := storage.initDB(); err != nil {
		return nil, fmt.Errorf("failed to initialize subtitle storage: %w", err)
	}

	return storage, nil
}

// initDB initializes the database tables
func (s *SubtitleStorage) initDB() error {
	// Create subtitle segments table
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS subtitle_segments (
			job_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			start_sec REAL NOT NULL,
			end_sec REAL NOT NULL,
			content TEXT NOT NULL,
			PRIMARY KEY (job_id, seq)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create subtitle_segments table: %w", err)
	}

	// Create indexes
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_subtitle_job_id ON subtitle_segments(job_id)`)
	if err != nil {
		return fmt.Errorf("failed to create job_id index: %w", err)
	}

	return nil
}

// ReplaceSegments replaces all stored segments with the given job's segments.
// Only the most recent job is retained.
func (s *SubtitleStorage) ReplaceSegments(records []*SubtitleRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM subtitle_segments`); err != nil {
		return fmt.Errorf("failed to clear subtitle segments: %w", err)
	}

	for _, record := range records {
		if _, err := tx.Exec(
			`INSERT INTO subtitle_segments (job_id, seq, start_sec, end_sec, content) VALUES (?, ?, ?, ?, ?)`,
			record.JobID,
			record.Seq,
			record.StartSec,
			record.EndSec,
			record.Content,
		); err != nil {
			return fmt.Errorf("failed to insert subtitle segment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit subtitle segments: %w", err)
	}

	return nil
}

// GetSegments returns the stored subtitle segments in sequence order
func (s *SubtitleStorage) GetSegments() ([]*SubtitleRecord, error) {
	rows, err := s.db.Query(
		`SELECT job_id, seq, start_sec, end_sec, content
		FROM subtitle_segments
		ORDER BY seq ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query subtitle segments: %w", err)
	}
	defer rows.Close()

	var records []*SubtitleRecord
	for rows.Next() {
		var record SubtitleRecord
		if err := rows.Scan(
			&record.JobID,
			&record.Seq,
			&record.StartSec,
			&record.EndSec,
			&record.Content,
		); err != nil {
			return nil, fmt.Errorf("failed to scan subtitle segment: %w", err)
		}
		records = append(records, &record)
	}

	return records, nil
}

// ClearSegments removes every stored subtitle segment
func (s *SubtitleStorage) ClearSegments() error {
	if _, err := s.db.Exec(`DELETE FROM subtitle_segments`); err != nil {
		return fmt.Errorf("failed to clear subtitle segments: %w", err)
	}
	return nil
}
