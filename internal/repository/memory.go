package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// MemoryTicketRepository keeps tickets in process memory. Used when no database is configured
// and in tests.
type MemoryTicketRepository struct {
	mu      sync.RWMutex
	seq     int64
	tickets map[string]*memoryTicket
	now     func() time.Time
}

type memoryTicket struct {
	seq    int64
	ticket *domain.Ticket
}

// NewMemoryTicketRepository builds an empty in-memory ticket store.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{tickets: make(map[string]*memoryTicket), now: time.Now}
}

func (r *MemoryTicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ticket.ID == "" {
		ticket.ID = newID()
	}
	if _, exists := r.tickets[ticket.ID]; exists {
		return apperrors.NewConflict("ticket already exists", map[string]any{"ticket_id": ticket.ID})
	}
	if ticket.ReassignmentHistory == nil {
		ticket.ReassignmentHistory = []domain.ReassignmentRecord{}
	}
	now := r.now()
	ticket.Version = 1
	ticket.CreatedAt = now
	ticket.UpdatedAt = now

	r.seq++
	r.tickets[ticket.ID] = &memoryTicket{seq: r.seq, ticket: ticket.Clone()}
	return nil
}

func (r *MemoryTicketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.tickets[id]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	return stored.ticket.Clone(), nil
}

func (r *MemoryTicketRepository) ListByCustomer(_ context.Context, customerID string) ([]domain.Ticket, error) {
	return r.list(func(t *domain.Ticket) bool { return t.CustomerID == customerID }), nil
}

func (r *MemoryTicketRepository) ListByAgent(_ context.Context, agentID string) ([]domain.Ticket, error) {
	return r.list(func(t *domain.Ticket) bool { return t.AssignedAgentID == agentID }), nil
}

func (r *MemoryTicketRepository) list(match func(*domain.Ticket) bool) []domain.Ticket {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*memoryTicket, 0)
	for _, stored := range r.tickets {
		if match(stored.ticket) {
			matched = append(matched, stored)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.ticket.CreatedAt.Equal(b.ticket.CreatedAt) {
			return a.ticket.CreatedAt.After(b.ticket.CreatedAt)
		}
		return a.seq > b.seq
	})

	result := make([]domain.Ticket, 0, len(matched))
	for _, stored := range matched {
		result = append(result, *stored.ticket.Clone())
	}
	return result
}

func (r *MemoryTicketRepository) Update(_ context.Context, id string, expectedVersion int64, mutate TicketMutation) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tickets[id]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	if stored.ticket.Version != expectedVersion {
		return nil, versionConflict(id, expectedVersion, stored.ticket.Version)
	}

	next := stored.ticket.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = stored.ticket.ID
	next.CustomerID = stored.ticket.CustomerID
	next.CreatedAt = stored.ticket.CreatedAt
	next.Version = stored.ticket.Version + 1
	next.UpdatedAt = r.now()

	stored.ticket = next
	return next.Clone(), nil
}

// MemoryUserRepository keeps users in process memory.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	seq   int64
	users map[string]*memoryUser
	now   func() time.Time
}

type memoryUser struct {
	seq  int64
	user *domain.User
}

// NewMemoryUserRepository builds an empty in-memory user store.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]*memoryUser), now: time.Now}
}

func (r *MemoryUserRepository) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if strings.EqualFold(existing.user.Email, user.Email) {
			return apperrors.NewConflict("user already exists", map[string]any{"email": user.Email})
		}
	}
	if user.ID == "" {
		user.ID = newID()
	}
	now := r.now()
	user.CreatedAt = now
	user.UpdatedAt = now

	r.seq++
	cp := *user
	r.users[user.ID] = &memoryUser{seq: r.seq, user: &cp}
	return nil
}

func (r *MemoryUserRepository) UpdatePassword(_ context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.users[id]
	if !ok {
		return apperrors.NewNotFound("user", map[string]any{"user_id": id})
	}
	stored.user.PasswordHash = passwordHash
	stored.user.UpdatedAt = r.now()
	return nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.users[id]
	if !ok {
		return nil, apperrors.NewNotFound("user", map[string]any{"user_id": id})
	}
	cp := *stored.user
	return &cp, nil
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, stored := range r.users {
		if strings.EqualFold(stored.user.Email, email) {
			cp := *stored.user
			return &cp, nil
		}
	}
	return nil, apperrors.NewNotFound("user", nil)
}

func (r *MemoryUserRepository) GetByIDs(_ context.Context, ids []string) (map[string]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*domain.User, len(ids))
	for _, id := range ids {
		if stored, ok := r.users[id]; ok {
			cp := *stored.user
			result[id] = &cp
		}
	}
	return result, nil
}

func (r *MemoryUserRepository) List(_ context.Context, filter UserFilter) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*memoryUser, 0, len(r.users))
	for _, stored := range r.users {
		if filter.Role != nil && stored.user.Role != *filter.Role {
			continue
		}
		if filter.ExcludeID != nil && stored.user.ID == *filter.ExcludeID {
			continue
		}
		matched = append(matched, stored)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })

	result := make([]domain.User, 0, len(matched))
	for _, stored := range matched {
		result = append(result, *stored.user)
	}
	return result, nil
}

var (
	_ TicketRepository = (*MemoryTicketRepository)(nil)
	_ UserRepository   = (*MemoryUserRepository)(nil)
)
