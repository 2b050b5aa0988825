package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRows struct {
	rows [][]string
	pos  int
	err  error
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos <= len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos-1]
	if len(dest) != len(row) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		*(d.(*string)) = row[i]
	}
	return nil
}

func (r *fakeRows) Err() error { return r.err }

func TestScanRecords(t *testing.T) {
	rows := &fakeRows{rows: [][]string{
		{"rfp-1", "Client 1", "c1@example.org", "120.00", "EUR", "2024-01-05", "INV-1"},
		{"rfp-2", "Client 2", "", "30.50", "EUR", "2024-01-06", ""},
	}}

	recs, err := scanRecords(rows)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "rfp-1", recs[0].ID)
	assert.True(t, recs[0].Selected)
	assert.Equal(t, "120.00", recs[0].Attributes["amount"])
	assert.Equal(t, "2024-01-06", recs[1].Attributes["due_date"])
	assert.Nil(t, recs[1].Artifact)
}

func TestScanRecordsPropagatesRowError(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := scanRecords(&fakeRows{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestFetchRequiresDateRange(t *testing.T) {
	s := &PgSource{}
	_, err := s.Fetch(context.Background(), time.Time{}, time.Now())
	assert.ErrorIs(t, err, ErrDateRangeNotSpecified)
}
