package repository

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

type scriptedRow struct {
	values []any
	err    error
}

func (r scriptedRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: want %d destinations, got %d", len(r.values), len(dest))
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

type scriptedQuerier struct {
	rows    []pgx.Row
	queries []string
	args    [][]any
}

func (q *scriptedQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.queries = append(q.queries, sql)
	q.args = append(q.args, args)
	if len(q.rows) == 0 {
		return scriptedRow{err: errors.New("unexpected query")}
	}
	row := q.rows[0]
	q.rows = q.rows[1:]
	return row
}

func (q *scriptedQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("unexpected query")
}

func (q *scriptedQuerier) updates() int {
	n := 0
	for _, sql := range q.queries {
		if strings.Contains(sql, "UPDATE tickets") {
			n++
		}
	}
	return n
}

func storedTicketRow(t *domain.Ticket) scriptedRow {
	history, _ := encodeHistory(t.ReassignmentHistory)
	return scriptedRow{values: []any{
		t.ID,
		t.CustomerID,
		t.AssignedAgentID,
		t.IssueDetails,
		t.Status,
		t.ReassignmentCount,
		history,
		t.Version,
		t.CreatedAt,
		t.UpdatedAt,
	}}
}

func storedTicket() *domain.Ticket {
	at := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	return &domain.Ticket{
		ID:              newID(),
		CustomerID:      newID(),
		AssignedAgentID: newID(),
		IssueDetails:    "printer broken",
		Status:          domain.TicketStatusOpen,
		Version:         3,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
}

func TestTicketRepositoryUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("stale version is a conflict and nothing is written", func(t *testing.T) {
		stored := storedTicket()
		q := &scriptedQuerier{rows: []pgx.Row{storedTicketRow(stored)}}
		repo := &ticketRepository{pool: q}

		called := false
		_, err := repo.Update(ctx, stored.ID, 2, func(*domain.Ticket) error {
			called = true
			return nil
		})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
		assert.False(t, called)
		assert.Zero(t, q.updates())
	})

	t.Run("mutation error aborts without a write", func(t *testing.T) {
		stored := storedTicket()
		q := &scriptedQuerier{rows: []pgx.Row{storedTicketRow(stored)}}
		repo := &ticketRepository{pool: q}

		_, err := repo.Update(ctx, stored.ID, stored.Version, func(*domain.Ticket) error {
			return apperrors.NewReassignmentLimitExceeded(stored.ID)
		})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeReassignmentLimitExceeded))
		assert.Zero(t, q.updates())
	})

	t.Run("write that matches no row is a conflict", func(t *testing.T) {
		stored := storedTicket()
		q := &scriptedQuerier{rows: []pgx.Row{
			storedTicketRow(stored),
			scriptedRow{err: pgx.ErrNoRows},
		}}
		repo := &ticketRepository{pool: q}

		_, err := repo.Update(ctx, stored.ID, stored.Version, func(t *domain.Ticket) error {
			t.Status = domain.TicketStatusResolved
			return nil
		})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
		assert.Equal(t, 1, q.updates())
	})

	t.Run("driver errors pass through", func(t *testing.T) {
		stored := storedTicket()
		boom := errors.New("connection reset")
		q := &scriptedQuerier{rows: []pgx.Row{storedTicketRow(stored), scriptedRow{err: boom}}}
		repo := &ticketRepository{pool: q}

		_, err := repo.Update(ctx, stored.ID, stored.Version, func(*domain.Ticket) error { return nil })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("successful reassignment is one guarded write", func(t *testing.T) {
		stored := storedTicket()
		written := stored.UpdatedAt.Add(time.Minute)
		q := &scriptedQuerier{rows: []pgx.Row{
			storedTicketRow(stored),
			scriptedRow{values: []any{stored.Version + 1, written}},
		}}
		repo := &ticketRepository{pool: q}

		to := newID()
		updated, err := repo.Update(ctx, stored.ID, stored.Version, func(t *domain.Ticket) error {
			t.Reassign(to, written)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, int64(4), updated.Version)
		assert.Equal(t, written, updated.UpdatedAt)
		assert.Equal(t, to, updated.AssignedAgentID)

		require.Equal(t, 1, q.updates())
		args := q.args[1]
		assert.Equal(t, to, args[0])
		assert.Equal(t, 1, args[3])
		assert.Equal(t, stored.ID, args[5])
		assert.Equal(t, stored.Version, args[6])

		history, err := decodeHistory(args[4].([]byte))
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, stored.AssignedAgentID, history[0].FromAgentID)
		assert.Equal(t, to, history[0].ToAgentID)
	})

	t.Run("malformed id is not found without a query", func(t *testing.T) {
		q := &scriptedQuerier{}
		repo := &ticketRepository{pool: q}

		_, err := repo.Update(ctx, "42", 1, func(*domain.Ticket) error { return nil })
		assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
		assert.Empty(t, q.queries)
	})
}
