package service

import (
	"context"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// AgentDirectory is the read-only view of users holding the AGENT role.
type AgentDirectory struct {
	users repository.UserRepository
}

// NewAgentDirectory constructs the directory.
func NewAgentDirectory(users repository.UserRepository) *AgentDirectory {
	return &AgentDirectory{users: users}
}

// ListAgents returns every agent, oldest account first.
func (d *AgentDirectory) ListAgents(ctx context.Context) ([]domain.UserSummary, error) {
	return d.list(ctx, nil)
}

// ListAgentsExcluding returns every agent except id.
func (d *AgentDirectory) ListAgentsExcluding(ctx context.Context, id string) ([]domain.UserSummary, error) {
	canonical := canonicalID(id)
	return d.list(ctx, &canonical)
}

// GetAgent fails NOT_FOUND for unknown ids and NOT_AN_AGENT for customers.
func (d *AgentDirectory) GetAgent(ctx context.Context, id string) (*domain.User, error) {
	user, err := d.users.GetByID(ctx, canonicalID(id))
	if err != nil {
		return nil, err
	}
	if !user.IsAgent() {
		return nil, apperrors.NewNotAnAgent(user.ID)
	}
	return user, nil
}

func (d *AgentDirectory) list(ctx context.Context, excludeID *string) ([]domain.UserSummary, error) {
	role := domain.RoleAgent
	users, err := d.users.List(ctx, repository.UserFilter{Role: &role, ExcludeID: excludeID})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	agents := make([]domain.UserSummary, 0, len(users))
	for i := range users {
		agents = append(agents, users[i].Summary())
	}
	return agents, nil
}
