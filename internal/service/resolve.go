package service

import (
	"context"

	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// resolve expands the user references of a ticket into display form. The projection is
// computed on read; nothing denormalized is stored.
func (s *TicketService) resolve(ctx context.Context, ticket *domain.Ticket) (*domain.TicketView, error) {
	views, err := s.resolveAll(ctx, []domain.Ticket{*ticket})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *TicketService) resolveAll(ctx context.Context, tickets []domain.Ticket) ([]domain.TicketView, error) {
	views := make([]domain.TicketView, 0, len(tickets))
	if len(tickets) == 0 {
		return views, nil
	}

	seen := map[string]struct{}{}
	ids := []string{}
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for i := range tickets {
		add(tickets[i].CustomerID)
		add(tickets[i].AssignedAgentID)
		for _, rec := range tickets[i].ReassignmentHistory {
			add(rec.FromAgentID)
			add(rec.ToAgentID)
		}
	}

	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	summary := func(id string) domain.UserSummary {
		if user, ok := users[id]; ok {
			return user.Summary()
		}
		return domain.UserSummary{ID: id}
	}

	for i := range tickets {
		t := &tickets[i]
		history := make([]domain.ReassignmentView, 0, len(t.ReassignmentHistory))
		for _, rec := range t.ReassignmentHistory {
			history = append(history, domain.ReassignmentView{
				FromAgent: summary(rec.FromAgentID),
				ToAgent:   summary(rec.ToAgentID),
				Timestamp: rec.Timestamp,
			})
		}
		views = append(views, domain.TicketView{
			ID:                  t.ID,
			Customer:            summary(t.CustomerID),
			AssignedAgent:       summary(t.AssignedAgentID),
			IssueDetails:        t.IssueDetails,
			Status:              t.Status,
			ReassignmentCount:   t.ReassignmentCount,
			ReassignmentHistory: history,
			CreatedAt:           t.CreatedAt,
			UpdatedAt:           t.UpdatedAt,
		})
	}
	return views, nil
}
