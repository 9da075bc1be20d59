// Package store persists capture snapshots to PostgreSQL. The archive is
// optional; when disabled the rest of the server never touches this package.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-mcp/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store provides a PostgreSQL implementation of the capture archive.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.CaptureArchive = (*Store)(nil)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Migrate creates the archive tables if they do not exist yet. The archive is
// a local tool aimed at single operators, so in-place DDL beats a migration
// framework here.
func (s *Store) Migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS captures (
			id UUID PRIMARY KEY,
			session_id TEXT NOT NULL,
			page_url TEXT NOT NULL,
			page_title TEXT NOT NULL DEFAULT '',
			captured_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS capture_requests (
			capture_id UUID NOT NULL REFERENCES captures(id) ON DELETE CASCADE,
			seq INT NOT NULL,
			url TEXT NOT NULL,
			method TEXT NOT NULL,
			resource_type TEXT NOT NULL,
			requested_at TIMESTAMPTZ NOT NULL,
			headers JSONB NOT NULL DEFAULT '{}',
			body TEXT NOT NULL DEFAULT '',
			status INT,
			content_type TEXT,
			response_headers JSONB,
			response_body TEXT,
			PRIMARY KEY (capture_id, seq)
		);`,
	}
	for _, stmt := range ddl {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply archive schema: %w", err)
		}
	}
	return nil
}

// ArchiveCapture writes one snapshot and its request records in a single
// transaction.
func (s *Store) ArchiveCapture(ctx context.Context, snapshot *schemas.CaptureSnapshot) error {
	if snapshot == nil {
		return fmt.Errorf("nil snapshot")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && rollbackErr != pgx.ErrTxClosed {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	captureID := uuid.New()
	insertCapture := `
        INSERT INTO captures (id, session_id, page_url, page_title, captured_at)
        VALUES ($1, $2, $3, $4, $5);
    `
	if _, err := tx.Exec(ctx, insertCapture,
		captureID, snapshot.SessionID, snapshot.PageURL, snapshot.PageTitle, snapshot.CapturedAt,
	); err != nil {
		return fmt.Errorf("failed to insert capture %s: %w", captureID, err)
	}

	if len(snapshot.Requests) > 0 {
		if err := s.copyRequests(ctx, tx, captureID, snapshot.Requests); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Info("Archived capture snapshot",
		zap.String("capture_id", captureID.String()),
		zap.String("page_url", snapshot.PageURL),
		zap.Int("requests", len(snapshot.Requests)),
	)
	return nil
}

func (s *Store) copyRequests(ctx context.Context, tx pgx.Tx, captureID uuid.UUID, requests []schemas.NetworkRequest) error {
	rows := make([][]interface{}, len(requests))
	for i, r := range requests {
		headers, err := json.Marshal(r.Headers)
		if err != nil {
			return fmt.Errorf("failed to marshal headers for %s: %w", r.URL, err)
		}

		var status, contentType, responseHeaders, responseBody interface{}
		if r.Response != nil {
			status = r.Response.Status
			contentType = r.Response.ContentType
			rh, err := json.Marshal(r.Response.Headers)
			if err != nil {
				return fmt.Errorf("failed to marshal response headers for %s: %w", r.URL, err)
			}
			responseHeaders = rh
			responseBody = r.Response.Content
		}

		rows[i] = []interface{}{
			captureID, i,
			r.URL, r.Method, string(r.ResourceType), r.Timestamp,
			headers, r.Body,
			status, contentType, responseHeaders, responseBody,
		}
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"capture_requests"},
		[]string{"capture_id", "seq", "url", "method", "resource_type", "requested_at", "headers", "body", "status", "content_type", "response_headers", "response_body"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy capture requests: %w", err)
	}
	if int(copyCount) != len(requests) {
		return fmt.Errorf("mismatch in copied request count: expected %d, got %d", len(requests), copyCount)
	}
	return nil
}

// CaptureSummary is one row of the archive listing.
type CaptureSummary struct {
	ID           string
	SessionID    string
	PageURL      string
	PageTitle    string
	CapturedAt   string
	RequestCount int
}

// RecentCaptures lists the newest archived snapshots.
func (s *Store) RecentCaptures(ctx context.Context, limit int) ([]CaptureSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
        SELECT c.id, c.session_id, c.page_url, c.page_title, c.captured_at::text,
               COUNT(r.capture_id) AS request_count
        FROM captures c
        LEFT JOIN capture_requests r ON r.capture_id = c.id
        GROUP BY c.id
        ORDER BY c.captured_at DESC
        LIMIT $1;
    `
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query captures: %w", err)
	}
	defer rows.Close()

	var summaries []CaptureSummary
	for rows.Next() {
		var c CaptureSummary
		if err := rows.Scan(&c.ID, &c.SessionID, &c.PageURL, &c.PageTitle, &c.CapturedAt, &c.RequestCount); err != nil {
			return nil, fmt.Errorf("failed to scan capture row: %w", err)
		}
		summaries = append(summaries, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return summaries, nil
}
