// Package store holds the persistence of the service: the Postgres table
// requests for payment are fetched from, and the SQLite dispatch journal.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rfpdesk/internal/model"
)

var ErrDateRangeNotSpecified = errors.New("store: start and end dates must both be specified")

const fetchQuery = `
	SELECT id, debtor, COALESCE(debtor_email, ''), amount::text, currency,
	       to_char(due_date, 'YYYY-MM-DD'), COALESCE(reference, '')
	FROM requests_for_payment
	WHERE due_date BETWEEN $1 AND $2
	ORDER BY due_date, id`

// PgSource reads requests for payment from Postgres.
type PgSource struct {
	pool *pgxpool.Pool
}

func NewPgSource(pool *pgxpool.Pool) *PgSource {
	return &PgSource{pool: pool}
}

// OpenPgSource connects to databaseURL and checks the connection.
func OpenPgSource(ctx context.Context, databaseURL string) (*PgSource, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect record source: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping record source: %w", err)
	}
	return &PgSource{pool: pool}, nil
}

func (s *PgSource) Close() {
	s.pool.Close()
}

func (s *PgSource) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Fetch returns the requests whose due date falls within [from, to], ordered
// by due date then id. Every returned record is selected.
func (s *PgSource) Fetch(ctx context.Context, from, to time.Time) ([]model.RequestRecord, error) {
	if from.IsZero() || to.IsZero() {
		return nil, ErrDateRangeNotSpecified
	}
	rows, err := s.pool.Query(ctx, fetchQuery, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// rowScanner is the subset of pgx.Rows used to build records.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

var _ rowScanner = (pgx.Rows)(nil)

func scanRecords(rows rowScanner) ([]model.RequestRecord, error) {
	var recs []model.RequestRecord
	for rows.Next() {
		var id, debtor, email, amount, currency, due, reference string
		if err := rows.Scan(&id, &debtor, &email, &amount, &currency, &due, &reference); err != nil {
			return nil, err
		}
		recs = append(recs, model.RequestRecord{
			ID: id,
			Attributes: map[string]string{
				"id":           id,
				"debtor":       debtor,
				"debtor_email": email,
				"amount":       amount,
				"currency":     currency,
				"due_date":     due,
				"reference":    reference,
			},
			Selected: true,
		})
	}
	return recs, rows.Err()
}
