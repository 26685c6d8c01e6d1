package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	json "github.com/json-iterator/go"

	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// TicketMutation edits a ticket in place. Returning an error aborts the update with no write.
type TicketMutation func(ticket *domain.Ticket) error

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListByCustomer(ctx context.Context, customerID string) ([]domain.Ticket, error)
	ListByAgent(ctx context.Context, agentID string) ([]domain.Ticket, error)
	// Update applies mutate to the ticket stored at expectedVersion and writes the result as a
	// single compare-and-swap. A stale version yields a CONFLICT error.
	Update(ctx context.Context, id string, expectedVersion int64, mutate TicketMutation) (*domain.Ticket, error)
}

// querier is the part of *pgxpool.Pool the ticket store uses.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type ticketRepository struct {
	pool querier
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, customer_id, assigned_agent_id, issue_details, status,
               reassignment_count, reassignment_history, version, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, customer_id, assigned_agent_id, issue_details, status, reassignment_count, reassignment_history, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,1)
        RETURNING version, created_at, updated_at`

	history, err := encodeHistory(ticket.ReassignmentHistory)
	if err != nil {
		return err
	}
	if ticket.ID == "" {
		ticket.ID = newID()
	}
	err = r.pool.QueryRow(ctx, query,
		ticket.ID,
		ticket.CustomerID,
		ticket.AssignedAgentID,
		ticket.IssueDetails,
		ticket.Status,
		ticket.ReassignmentCount,
		history,
	).Scan(&ticket.Version, &ticket.CreatedAt, &ticket.UpdatedAt)
	return translate(err, "ticket", map[string]any{"ticket_id": ticket.ID})
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if !validID(id) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err, "ticket", map[string]any{"ticket_id": id})
	}
	return ticket, nil
}

func (r *ticketRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.Ticket, error) {
	return r.list(ctx, "customer_id", customerID)
}

func (r *ticketRepository) ListByAgent(ctx context.Context, agentID string) ([]domain.Ticket, error) {
	return r.list(ctx, "assigned_agent_id", agentID)
}

func (r *ticketRepository) list(ctx context.Context, column, id string) ([]domain.Ticket, error) {
	if !validID(id) {
		return []domain.Ticket{}, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s=$1 ORDER BY created_at DESC, id DESC`, ticketColumns, column)
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) Update(ctx context.Context, id string, expectedVersion int64, mutate TicketMutation) (*domain.Ticket, error) {
	ticket, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.Version != expectedVersion {
		return nil, versionConflict(id, expectedVersion, ticket.Version)
	}
	if err := mutate(ticket); err != nil {
		return nil, err
	}
	history, err := encodeHistory(ticket.ReassignmentHistory)
	if err != nil {
		return nil, err
	}

	// customer_id and created_at are never written after insert.
	const query = `
        UPDATE tickets SET assigned_agent_id=$1, issue_details=$2, status=$3,
            reassignment_count=$4, reassignment_history=$5, version=version+1, updated_at=NOW()
        WHERE id=$6 AND version=$7
        RETURNING version, updated_at`
	err = r.pool.QueryRow(ctx, query,
		ticket.AssignedAgentID,
		ticket.IssueDetails,
		ticket.Status,
		ticket.ReassignmentCount,
		history,
		id,
		expectedVersion,
	).Scan(&ticket.Version, &ticket.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, versionConflict(id, expectedVersion, -1)
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func versionConflict(id string, expected, actual int64) error {
	details := map[string]any{"ticket_id": id, "expected_version": expected}
	if actual >= 0 {
		details["actual_version"] = actual
	}
	return apperrors.NewConflict("ticket was modified concurrently", details)
}

func encodeHistory(history []domain.ReassignmentRecord) ([]byte, error) {
	if history == nil {
		history = []domain.ReassignmentRecord{}
	}
	return json.Marshal(history)
}

func decodeHistory(raw []byte) ([]domain.ReassignmentRecord, error) {
	history := []domain.ReassignmentRecord{}
	if len(raw) == 0 {
		return history, nil
	}
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("decode reassignment history: %w", err)
	}
	return history, nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket  domain.Ticket
		history []byte
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.CustomerID,
		&ticket.AssignedAgentID,
		&ticket.IssueDetails,
		&ticket.Status,
		&ticket.ReassignmentCount,
		&history,
		&ticket.Version,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	decoded, err := decodeHistory(history)
	if err != nil {
		return nil, err
	}
	ticket.ReassignmentHistory = decoded
	return &ticket, nil
}
