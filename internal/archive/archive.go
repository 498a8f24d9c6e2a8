// Package archive buffers a snapshot of every order change in a local SQLite
// outbox so an external analytics or reporting collaborator can drain them
// durably even across a crash between write and drain.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/purefinance/mmb/internal/lifecycle"
	"github.com/purefinance/mmb/internal/logging"
	"github.com/purefinance/mmb/pkg/concurrency"
)

// Sink is the durable boundary the lifecycle manager writes order snapshots
// through. It satisfies lifecycle.StateStore.
type Sink interface {
	SaveOrder(ctx context.Context, o *lifecycle.Order) error
}

// Drainer hands off a batch of outbox rows to the opaque external
// collaborator (e.g. an HTTP ingest endpoint or a message broker). The
// archive package does not know or care what's on the other end.
type Drainer func(ctx context.Context, rows []Row) error

// Row is one outbox entry: an order snapshot at the time it was written,
// still serialized as JSON so the schema evolves without a migration for
// every new Order field.
type Row struct {
	ID        int64
	Payload   []byte
	CreatedAt time.Time
}

// SQLiteSink implements Sink over a local SQLite file and drains rows to a
// Drainer on a worker-pool-backed interval, deleting each row only after its
// Drainer call succeeds.
type SQLiteSink struct {
	db      *sql.DB
	logger  logging.Logger
	drainer Drainer
	pool    *concurrency.Pool
}

// NewSQLiteSink opens (creating if necessary) the outbox database at path.
func NewSQLiteSink(path string, drainer Drainer, pool *concurrency.Pool, logger logging.Logger) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite outbox: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS outbox (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		payload BLOB NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create outbox table: %w", err)
	}
	return &SQLiteSink{db: db, logger: logger, drainer: drainer, pool: pool}, nil
}

// SaveOrder writes o as a new outbox row.
func (s *SQLiteSink) SaveOrder(ctx context.Context, o *lifecycle.Order) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO outbox (payload, created_at) VALUES (?, ?)`, payload, time.Now())
	return err
}

// DrainOnce reads up to limit undelivered rows, hands them to the Drainer,
// and deletes only the rows the Drainer accepted.
func (s *SQLiteSink) DrainOnce(ctx context.Context, limit int) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, payload, created_at FROM outbox ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return 0, err
	}
	var batch []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Payload, &r.CreatedAt); err != nil {
			rows.Close()
			return 0, err
		}
		batch = append(batch, r)
	}
	rows.Close()

	if len(batch) == 0 {
		return 0, nil
	}

	if err := s.drainer(ctx, batch); err != nil {
		s.logger.Warn("archive drain failed, rows retained for retry", "count", len(batch), "error", err)
		return 0, err
	}

	ids := make([]any, len(batch))
	for i, r := range batch {
		ids[i] = r.ID
	}
	query, args := deleteQuery(ids)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return 0, err
	}
	return len(batch), nil
}

func deleteQuery(ids []any) (string, []any) {
	q := "DELETE FROM outbox WHERE id IN ("
	for i := range ids {
		if i > 0 {
			q += ","
		}
		q += "?"
	}
	q += ")"
	return q, ids
}

// Run drains the outbox on a fixed interval until ctx is canceled, each
// drain dispatched onto the shared worker pool so a slow external
// collaborator cannot stall the caller's ticker goroutine.
func (s *SQLiteSink) Run(ctx context.Context, interval time.Duration, batchSize int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.pool.Submit(func() {
				if _, err := s.DrainOnce(ctx, batchSize); err != nil {
					s.logger.Warn("archive drain error", "error", err)
				}
			})
		}
	}
}

// Close releases the underlying database handle.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
