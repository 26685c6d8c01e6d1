package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/lock"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// TicketService is the ticket lifecycle engine: creation, status updates and the single
// permitted reassignment.
//
// Status values are validated for membership only. Any of the four statuses may follow any
// other; the only gate is that the caller is the ticket's current agent.
type TicketService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	directory  *AgentDirectory
	policy     AssignmentPolicy
	locker     lock.Locker
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	UserRepo   repository.UserRepository
	Directory  *AgentDirectory
	Policy     AssignmentPolicy
	Locker     lock.Locker
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// CreateTicketCommand is the customer's request to open a ticket.
type CreateTicketCommand struct {
	IssueDetails string
}

// UpdateStatusCommand is an agent's status change.
type UpdateStatusCommand struct {
	TicketID string
	Status   domain.TicketStatus
}

// ReassignCommand hands a ticket to another agent.
type ReassignCommand struct {
	TicketID   string
	NewAgentID string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	svc := &TicketService{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		directory:  deps.Directory,
		policy:     deps.Policy,
		locker:     deps.Locker,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		now:        time.Now,
	}
	if svc.directory == nil {
		svc.directory = NewAgentDirectory(deps.UserRepo)
	}
	if svc.policy == nil {
		svc.policy = NewRoundRobinPolicy(nil, deps.Logger)
	}
	if svc.locker == nil {
		svc.locker = lock.NewKeyedMutex()
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	return svc
}

// CreateTicket files a ticket for the calling customer and assigns it to an agent.
func (s *TicketService) CreateTicket(ctx context.Context, principal domain.Principal, cmd CreateTicketCommand) (*domain.TicketView, error) {
	if err := auth.RequireRole(principal, domain.RoleCustomer); err != nil {
		return nil, err
	}
	details := strings.TrimSpace(cmd.IssueDetails)
	if details == "" {
		return nil, apperrors.NewValidationError("issue details required", map[string]any{"field": "issue_details"})
	}

	agents, err := s.directory.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return nil, apperrors.NewNoAgentsAvailable()
	}
	agent, err := s.policy.SelectAgent(ctx, agents)
	if err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		CustomerID:          principal.ID,
		AssignedAgentID:     agent.ID,
		IssueDetails:        details,
		Status:              domain.TicketStatusOpen,
		ReassignmentHistory: []domain.ReassignmentRecord{},
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("customer_id", ticket.CustomerID),
		zap.String("agent_id", ticket.AssignedAgentID))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actorOf(principal),
		Payload: events.TicketCreatedPayload{
			CustomerID:      ticket.CustomerID,
			AssignedAgentID: ticket.AssignedAgentID,
		},
	})
	return s.resolve(ctx, ticket)
}

// UpdateStatus sets the status of a ticket assigned to the calling agent.
func (s *TicketService) UpdateStatus(ctx context.Context, principal domain.Principal, cmd UpdateStatusCommand) (*domain.TicketView, error) {
	if err := auth.RequireRole(principal, domain.RoleAgent); err != nil {
		return nil, err
	}
	release, err := s.lockTicket(ctx, cmd.TicketID)
	if err != nil {
		return nil, err
	}
	defer release()

	ticket, err := s.loadAssigned(ctx, cmd.TicketID, principal.ID)
	if err != nil {
		return nil, err
	}
	if !cmd.Status.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{
			"status":  cmd.Status,
			"allowed": []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusResolved, domain.TicketStatusClosed},
		})
	}

	oldStatus := ticket.Status
	updated, err := s.tickets.Update(ctx, ticket.ID, ticket.Version, func(t *domain.Ticket) error {
		if !sameID(t.AssignedAgentID, principal.ID) {
			return ticketNotFound(t.ID)
		}
		t.Status = cmd.Status
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.logger.Info("ticket status changed",
		zap.String("ticket_id", updated.ID),
		zap.String("old_status", string(oldStatus)),
		zap.String("new_status", string(updated.Status)))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: updated.ID,
		Actor:    actorOf(principal),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: updated.Status,
		},
	})
	return s.resolve(ctx, updated)
}

// Reassign transfers a ticket from the calling agent to another agent. A ticket can be
// reassigned at most once in its lifetime.
func (s *TicketService) Reassign(ctx context.Context, principal domain.Principal, cmd ReassignCommand) (*domain.TicketView, error) {
	if err := auth.RequireRole(principal, domain.RoleAgent); err != nil {
		return nil, err
	}
	release, err := s.lockTicket(ctx, cmd.TicketID)
	if err != nil {
		return nil, err
	}
	defer release()

	ticket, err := s.loadForReassign(ctx, cmd.TicketID, principal.ID)
	if err != nil {
		return nil, err
	}
	newAgentID := strings.TrimSpace(cmd.NewAgentID)
	if newAgentID == "" {
		return nil, apperrors.NewValidationError("new agent id required", map[string]any{"field": "new_agent_id"})
	}
	// Self is an id comparison and holds whatever the count; the limit still precedes any
	// directory lookup of the target.
	if err := reassignable(ticket, principal.ID, newAgentID); err != nil {
		return nil, err
	}
	target, err := s.directory.GetAgent(ctx, newAgentID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) || apperrors.HasCode(err, apperrors.CodeNotAnAgent) {
			return nil, apperrors.NewInvalidAgent(newAgentID)
		}
		return nil, apperrors.MapError(err)
	}

	at := s.now().UTC()
	fromAgentID := ticket.AssignedAgentID
	updated, err := s.tickets.Update(ctx, ticket.ID, ticket.Version, func(t *domain.Ticket) error {
		if err := reassignable(t, principal.ID, target.ID); err != nil {
			return err
		}
		t.Reassign(target.ID, at)
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.logger.Info("ticket reassigned",
		zap.String("ticket_id", updated.ID),
		zap.String("from_agent_id", fromAgentID),
		zap.String("to_agent_id", updated.AssignedAgentID))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketReassigned,
		TicketID: updated.ID,
		Actor:    actorOf(principal),
		Payload: events.TicketReassignedPayload{
			FromAgentID: fromAgentID,
			ToAgentID:   updated.AssignedAgentID,
		},
	})
	return s.resolve(ctx, updated)
}

// ListTickets returns the caller's tickets, newest first: a customer's own tickets or the
// tickets currently assigned to an agent.
func (s *TicketService) ListTickets(ctx context.Context, principal domain.Principal) ([]domain.TicketView, error) {
	if err := auth.RequireRole(principal, domain.RoleCustomer, domain.RoleAgent); err != nil {
		return nil, err
	}

	var (
		tickets []domain.Ticket
		err     error
	)
	switch principal.Role {
	case domain.RoleCustomer:
		tickets, err = s.tickets.ListByCustomer(ctx, canonicalID(principal.ID))
	case domain.RoleAgent:
		tickets, err = s.tickets.ListByAgent(ctx, canonicalID(principal.ID))
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return s.resolveAll(ctx, tickets)
}

// GetTicket returns one ticket visible to the caller. Tickets the caller does not own or hold
// read as not found.
func (s *TicketService) GetTicket(ctx context.Context, principal domain.Principal, ticketID string) (*domain.TicketView, error) {
	if err := auth.RequireRole(principal, domain.RoleCustomer, domain.RoleAgent); err != nil {
		return nil, err
	}
	ticket, err := s.tickets.GetByID(ctx, canonicalID(ticketID))
	if err != nil {
		return nil, scopedLookupError(err, ticketID)
	}

	visible := false
	switch principal.Role {
	case domain.RoleCustomer:
		visible = sameID(ticket.CustomerID, principal.ID)
	case domain.RoleAgent:
		visible = sameID(ticket.AssignedAgentID, principal.ID)
	}
	if !visible {
		return nil, ticketNotFound(ticketID)
	}
	return s.resolve(ctx, ticket)
}

// ListReassignmentCandidates lists the agents the caller could hand a ticket to.
func (s *TicketService) ListReassignmentCandidates(ctx context.Context, principal domain.Principal) ([]domain.UserSummary, error) {
	if err := auth.RequireRole(principal, domain.RoleAgent); err != nil {
		return nil, err
	}
	return s.directory.ListAgentsExcluding(ctx, principal.ID)
}

// loadAssigned is the assignment-scoped lookup: a ticket held by someone else is
// indistinguishable from a missing one.
func (s *TicketService) loadAssigned(ctx context.Context, ticketID, agentID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, canonicalID(ticketID))
	if err != nil {
		return nil, scopedLookupError(err, ticketID)
	}
	if !sameID(ticket.AssignedAgentID, agentID) {
		return nil, ticketNotFound(ticketID)
	}
	return ticket, nil
}

// loadForReassign differs from loadAssigned in one case: the agent who already handed the
// ticket on gets the limit error, so the loser of a concurrent reassignment learns why it lost.
func (s *TicketService) loadForReassign(ctx context.Context, ticketID, agentID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, canonicalID(ticketID))
	if err != nil {
		return nil, scopedLookupError(err, ticketID)
	}
	if !sameID(ticket.AssignedAgentID, agentID) && !formerHolder(ticket, agentID) {
		return nil, ticketNotFound(ticketID)
	}
	return ticket, nil
}

// reassignable checks the caller and target against t. It runs on the loaded ticket and again
// on the stored state inside the atomic update.
func reassignable(t *domain.Ticket, agentID, targetID string) error {
	if sameID(t.AssignedAgentID, agentID) {
		if sameID(targetID, agentID) {
			return apperrors.NewSelfReassignment()
		}
		if !t.CanReassign() {
			return apperrors.NewReassignmentLimitExceeded(t.ID)
		}
		return nil
	}
	if formerHolder(t, agentID) {
		return apperrors.NewReassignmentLimitExceeded(t.ID)
	}
	return ticketNotFound(t.ID)
}

func formerHolder(t *domain.Ticket, agentID string) bool {
	for _, rec := range t.ReassignmentHistory {
		if sameID(rec.FromAgentID, agentID) {
			return true
		}
	}
	return false
}

func (s *TicketService) lockTicket(ctx context.Context, ticketID string) (lock.Release, error) {
	release, err := s.locker.Acquire(ctx, canonicalID(ticketID))
	if err == nil {
		return release, nil
	}
	if errors.Is(err, lock.ErrLockTimeout) {
		return nil, apperrors.NewConflict("ticket is busy, retry the request", map[string]any{"ticket_id": ticketID})
	}
	return nil, apperrors.MapError(err)
}

func scopedLookupError(err error, ticketID string) error {
	if apperrors.HasCode(err, apperrors.CodeNotFound) {
		return ticketNotFound(ticketID)
	}
	return apperrors.MapError(err)
}

func ticketNotFound(ticketID string) error {
	return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

func actorOf(principal domain.Principal) events.Actor {
	return events.Actor{ID: principal.ID, Role: principal.Role}
}
