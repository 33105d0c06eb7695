// Package postgres provides the production Store implementation on top of
// PostgreSQL using database/sql and the lib/pq driver.
//
// The schema is a single signed_payloads table; every Save is an
// INSERT ... ON CONFLICT DO UPDATE upsert of the whole record, matching the
// last-write-wins contract of the Store interface. Filters compile to a
// WHERE clause built from the same constraint set the in-memory store
// evaluates, so both implementations are interchangeable under the pipeline.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/concave-dev/anchor/internal/payload"
	"github.com/concave-dev/anchor/internal/store"
	"github.com/lib/pq"
)

// Store is a PostgreSQL-backed payload store.
type Store struct {
	db *sql.DB
}

// New creates a payload store over an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL with the given connection string, verifies the
// connection, and ensures the payload schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := New(db)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the signed_payloads table and supporting indexes if
// they do not already exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	schema := `
        CREATE TABLE IF NOT EXISTS signed_payloads (
            id                   TEXT PRIMARY KEY,
            payload_type         TEXT NOT NULL,
            signer_address       TEXT NOT NULL,
            nonce                BIGINT NOT NULL,
            payload              JSONB,
            payload_hash         TEXT NOT NULL,
            structured_data_hash TEXT NOT NULL DEFAULT '',
            signature            TEXT NOT NULL DEFAULT '',
            expires_at           TIMESTAMPTZ NOT NULL,
            status               TEXT NOT NULL,
            transaction_hash     TEXT NOT NULL DEFAULT '',
            block_number         BIGINT NOT NULL DEFAULT 0,
            submission_attempts  INT NOT NULL DEFAULT 0,
            error_message        TEXT,
            created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
            submitted_at         TIMESTAMPTZ,
            confirmed_at         TIMESTAMPTZ
        );
        CREATE INDEX IF NOT EXISTS idx_signed_payloads_status
            ON signed_payloads (status, created_at);
        CREATE INDEX IF NOT EXISTS idx_signed_payloads_updated
            ON signed_payloads (updated_at);
    `
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure payload schema: %w", err)
	}
	return nil
}

const payloadColumns = `
    id, payload_type, signer_address, nonce, payload, payload_hash,
    structured_data_hash, signature, expires_at, status, transaction_hash,
    block_number, submission_attempts, error_message, created_at, updated_at,
    submitted_at, confirmed_at
`

// buildWhere compiles a store.Filter into a WHERE clause and its arguments.
// Returns an empty string when the filter has no constraints.
func buildWhere(f store.Filter) (string, []any) {
	var conds []string
	var args []any

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, pq.Array(statuses))
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	switch f.Signature {
	case store.SignaturePresent:
		conds = append(conds, "signature <> ''")
	case store.SignatureMissing:
		conds = append(conds, "signature = ''")
	}
	if !f.ExpiresAfter.IsZero() {
		args = append(args, f.ExpiresAfter)
		conds = append(conds, fmt.Sprintf("expires_at > $%d", len(args)))
	}
	if !f.UpdatedSince.IsZero() {
		args = append(args, f.UpdatedSince)
		conds = append(conds, fmt.Sprintf("updated_at >= $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// scanPayload maps one result row onto a SignedPayload record.
func scanPayload(row interface{ Scan(...any) error }) (*payload.SignedPayload, error) {
	var p payload.SignedPayload
	var rawPayload []byte
	var errMsg sql.NullString
	var submittedAt, confirmedAt sql.NullTime

	err := row.Scan(
		&p.ID, &p.PayloadType, &p.SignerAddress, &p.Nonce, &rawPayload,
		&p.PayloadHash, &p.StructuredDataHash, &p.Signature, &p.ExpiresAt,
		&p.Status, &p.TransactionHash, &p.BlockNumber, &p.SubmissionAttempts,
		&errMsg, &p.CreatedAt, &p.UpdatedAt, &submittedAt, &confirmedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Payload = rawPayload
	if errMsg.Valid {
		p.ErrorMessage = &errMsg.String
	}
	if submittedAt.Valid {
		p.SubmittedAt = &submittedAt.Time
	}
	if confirmedAt.Valid {
		p.ConfirmedAt = &confirmedAt.Time
	}
	return &p, nil
}

// FindByID returns the payload with the given id or store.ErrNotFound.
func (s *Store) FindByID(ctx context.Context, id string) (*payload.SignedPayload, error) {
	query := `SELECT ` + payloadColumns + ` FROM signed_payloads WHERE id = $1`

	p, err := scanPayload(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payload %s: %w", id, err)
	}
	return p, nil
}

// List returns payloads matching the filter, oldest first when OrderByAge
// is set, truncated to Limit when positive.
func (s *Store) List(ctx context.Context, f store.Filter) ([]*payload.SignedPayload, error) {
	where, args := buildWhere(f)
	query := `SELECT ` + payloadColumns + ` FROM signed_payloads` + where
	if f.OrderByAge {
		query += " ORDER BY created_at ASC"
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payloads: %w", err)
	}
	defer rows.Close()

	var out []*payload.SignedPayload
	for rows.Next() {
		p, err := scanPayload(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payload row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Count returns the number of payloads matching the filter.
func (s *Store) Count(ctx context.Context, f store.Filter) (int, error) {
	where, args := buildWhere(f)
	query := `SELECT COUNT(*) FROM signed_payloads` + where

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count payloads: %w", err)
	}
	return n, nil
}

// Save upserts a payload record whole, last write wins. CreatedAt is kept
// from the first insert; UpdatedAt is stamped on every write.
func (s *Store) Save(ctx context.Context, p *payload.SignedPayload) error {
	query := `
        INSERT INTO signed_payloads (
            id, payload_type, signer_address, nonce, payload, payload_hash,
            structured_data_hash, signature, expires_at, status,
            transaction_hash, block_number, submission_attempts,
            error_message, created_at, updated_at, submitted_at, confirmed_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
                $15, now(), $16, $17)
        ON CONFLICT (id) DO UPDATE SET
            payload_type         = EXCLUDED.payload_type,
            signer_address       = EXCLUDED.signer_address,
            nonce                = EXCLUDED.nonce,
            payload              = EXCLUDED.payload,
            payload_hash         = EXCLUDED.payload_hash,
            structured_data_hash = EXCLUDED.structured_data_hash,
            signature            = EXCLUDED.signature,
            expires_at           = EXCLUDED.expires_at,
            status               = EXCLUDED.status,
            transaction_hash     = EXCLUDED.transaction_hash,
            block_number         = EXCLUDED.block_number,
            submission_attempts  = EXCLUDED.submission_attempts,
            error_message        = EXCLUDED.error_message,
            updated_at           = now(),
            submitted_at         = EXCLUDED.submitted_at,
            confirmed_at         = EXCLUDED.confirmed_at
        RETURNING created_at, updated_at
    `

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	var errMsg any
	if p.ErrorMessage != nil {
		errMsg = *p.ErrorMessage
	}
	var submittedAt, confirmedAt any
	if p.SubmittedAt != nil {
		submittedAt = *p.SubmittedAt
	}
	if p.ConfirmedAt != nil {
		confirmedAt = *p.ConfirmedAt
	}

	err := s.db.QueryRowContext(ctx, query,
		p.ID, p.PayloadType, p.SignerAddress, p.Nonce, []byte(p.Payload),
		p.PayloadHash, p.StructuredDataHash, p.Signature, p.ExpiresAt,
		p.Status, p.TransactionHash, p.BlockNumber, p.SubmissionAttempts,
		errMsg, createdAt, submittedAt, confirmedAt,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save payload %s: %w", p.ID, err)
	}
	return nil
}

// AttemptStats aggregates submission attempts over payloads matching the
// filter using a single SQL aggregate query.
func (s *Store) AttemptStats(ctx context.Context, f store.Filter) (*store.AttemptStats, error) {
	where, args := buildWhere(f)
	query := `
        SELECT COALESCE(SUM(submission_attempts), 0),
               COALESCE(AVG(submission_attempts), 0),
               COUNT(*)
        FROM signed_payloads` + where

	stats := &store.AttemptStats{}
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&stats.Total, &stats.Average, &stats.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate attempt stats: %w", err)
	}
	return stats, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
