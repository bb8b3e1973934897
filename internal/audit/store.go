package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Upload outcomes recorded in the log.
const (
	OutcomeRelayed  = "relayed"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Record is one upload attempt. Only declared metadata is stored, never the
// payload: the relay does not persist photos.
type Record struct {
	ID        string
	SessionID string
	MimeType  string
	FileSize  int64
	Outcome   string
	Reason    string
	CreatedAt time.Time
}

// Store is an append-only sqlite log of upload attempts. Writes are
// serialized through a single goroutine; SQLite handles concurrent readers
// but contended writers poorly.
type Store struct {
	db       *sql.DB
	writeCh  chan writeOperation
	shutdown chan struct{}
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

const schema = `
CREATE TABLE IF NOT EXISTS uploads (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	mime_type  TEXT NOT NULL,
	file_size  INTEGER NOT NULL,
	outcome    TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_uploads_session ON uploads(session_id);
CREATE INDEX IF NOT EXISTS idx_uploads_outcome ON uploads(outcome);
`

// Open opens (creating if needed) the upload log at path and bootstraps the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open upload log: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to bootstrap upload log schema: %w", err)
	}

	s := &Store{
		db:       db,
		writeCh:  make(chan writeOperation, 100),
		shutdown: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

// writeLoop applies every write on one goroutine, retrying once on failure.
func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeCh:
			err := op.operation(s.db)
			if err != nil {
				log.Warn().Str("module", "audit").Err(err).Msg("upload log write failed, retrying")
				err = op.operation(s.db)
			}
			op.result <- err

		case <-s.shutdown:
			return
		}
	}
}

func (s *Store) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case s.writeCh <- writeOperation{operation: operation, result: result}:
		select {
		case err := <-result:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-s.shutdown:
		return ErrStoreClosed
	}
}

// RecordUpload appends one upload attempt.
func (s *Store) RecordUpload(ctx context.Context, rec Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	return s.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT INTO uploads (id, session_id, mime_type, file_size, outcome, reason, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.SessionID, rec.MimeType, rec.FileSize, rec.Outcome, rec.Reason, rec.CreatedAt,
		)
		return err
	})
}

// CountRelayed returns how many uploads have been forwarded to a desktop.
func (s *Store) CountRelayed(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM uploads WHERE outcome = ?`, OutcomeRelayed,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count relayed uploads: %w", err)
	}
	return count, nil
}

// SessionUploads returns the logged attempts for one session, newest first.
func (s *Store) SessionUploads(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, mime_type, file_size, outcome, reason, created_at
		 FROM uploads WHERE session_id = ? ORDER BY created_at DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query session uploads: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.MimeType, &rec.FileSize, &rec.Outcome, &rec.Reason, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan upload record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// HealthCheck verifies the database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	return s.db.PingContext(ctx)
}

// Close stops the write loop and closes the database. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()
	return s.db.Close()
}
