package dto

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	IssueDetails string `json:"issue_details"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// ReassignRequest payload.
type ReassignRequest struct {
	NewAgentID string `json:"new_agent_id"`
}

// UserRef is a resolved user reference.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ReassignmentResponse is one entry of a ticket's reassignment history.
type ReassignmentResponse struct {
	FromAgent UserRef   `json:"from_agent"`
	ToAgent   UserRef   `json:"to_agent"`
	Timestamp time.Time `json:"timestamp"`
}

// TicketResponse is a ticket with every user reference resolved.
type TicketResponse struct {
	ID                  string                 `json:"id"`
	Customer            UserRef                `json:"customer"`
	AssignedAgent       UserRef                `json:"assigned_agent"`
	IssueDetails        string                 `json:"issue_details"`
	Status              domain.TicketStatus    `json:"status"`
	ReassignmentCount   int                    `json:"reassignment_count"`
	ReassignmentHistory []ReassignmentResponse `json:"reassignment_history"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
}
