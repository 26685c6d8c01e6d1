package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

func newTicket(customerID, agentID string) *domain.Ticket {
	return &domain.Ticket{
		CustomerID:      customerID,
		AssignedAgentID: agentID,
		IssueDetails:    "printer broken",
		Status:          domain.TicketStatusOpen,
	}
}

func TestMemoryTicketRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepository()

	ticket := newTicket("c1", "a1")
	require.NoError(t, repo.Create(ctx, ticket))
	assert.NotEmpty(t, ticket.ID)
	assert.Equal(t, int64(1), ticket.Version)
	assert.False(t, ticket.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "a1", got.AssignedAgentID)
	assert.Empty(t, got.ReassignmentHistory)

	_, err = repo.GetByID(ctx, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestMemoryTicketRepository_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepository()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	first := newTicket("c1", "a1")
	second := newTicket("c1", "a2")
	other := newTicket("c2", "a1")
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))
	require.NoError(t, repo.Create(ctx, other))

	byCustomer, err := repo.ListByCustomer(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, byCustomer, 2)
	assert.Equal(t, second.ID, byCustomer[0].ID)
	assert.Equal(t, first.ID, byCustomer[1].ID)

	byAgent, err := repo.ListByAgent(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, byAgent, 2)
	assert.Equal(t, other.ID, byAgent[0].ID)

	none, err := repo.ListByAgent(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryTicketRepository_UpdateCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepository()
	ticket := newTicket("c1", "a1")
	require.NoError(t, repo.Create(ctx, ticket))

	updated, err := repo.Update(ctx, ticket.ID, 1, func(t *domain.Ticket) error {
		t.Status = domain.TicketStatusInProgress
		t.CustomerID = "someone-else"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, domain.TicketStatusInProgress, updated.Status)
	assert.Equal(t, "c1", updated.CustomerID, "customer id is immutable")

	_, err = repo.Update(ctx, ticket.ID, 1, func(*domain.Ticket) error { return nil })
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	_, err = repo.Update(ctx, "missing", 1, func(*domain.Ticket) error { return nil })
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestMemoryTicketRepository_MutationErrorLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepository()
	ticket := newTicket("c1", "a1")
	require.NoError(t, repo.Create(ctx, ticket))

	boom := errors.New("rejected")
	_, err := repo.Update(ctx, ticket.ID, 1, func(t *domain.Ticket) error {
		t.Reassign("a2", time.Now())
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := repo.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "a1", got.AssignedAgentID)
	assert.Equal(t, 0, got.ReassignmentCount)
	assert.Empty(t, got.ReassignmentHistory)
	assert.Equal(t, int64(1), got.Version)
}

func TestMemoryTicketRepository_ConcurrentUpdatesSingleWinner(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepository()
	ticket := newTicket("c1", "a1")
	require.NoError(t, repo.Create(ctx, ticket))

	var wins, conflicts atomic.Int32
	var g errgroup.Group
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			_, err := repo.Update(ctx, ticket.ID, 1, func(t *domain.Ticket) error {
				t.Reassign("a2", time.Now())
				return nil
			})
			switch {
			case err == nil:
				wins.Add(1)
			case apperrors.HasCode(err, apperrors.CodeConflict):
				conflicts.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(31), conflicts.Load())

	got, err := repo.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ReassignmentCount)
	assert.Len(t, got.ReassignmentHistory, 1)
}

func TestMemoryUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	agent := domain.RoleAgent

	a1 := &domain.User{Name: "Ana", Email: "ana@example.com", Role: domain.RoleAgent}
	a2 := &domain.User{Name: "Bo", Email: "bo@example.com", Role: domain.RoleAgent}
	c1 := &domain.User{Name: "Cy", Email: "cy@example.com", Role: domain.RoleCustomer}
	for _, u := range []*domain.User{a1, a2, c1} {
		require.NoError(t, repo.Create(ctx, u))
	}

	err := repo.Create(ctx, &domain.User{Email: "ANA@example.com", Role: domain.RoleCustomer})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	agents, err := repo.List(ctx, UserFilter{Role: &agent})
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, a1.ID, agents[0].ID)

	others, err := repo.List(ctx, UserFilter{Role: &agent, ExcludeID: &a1.ID})
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.Equal(t, a2.ID, others[0].ID)

	byIDs, err := repo.GetByIDs(ctx, []string{a1.ID, c1.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, byIDs, 2)

	require.NoError(t, repo.UpdatePassword(ctx, c1.ID, "new-hash"))
	got, err := repo.GetByEmail(ctx, "cy@example.com")
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
}
