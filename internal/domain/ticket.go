package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// MaxReassignments caps how many times a ticket may change agent after creation.
const MaxReassignments = 1

// Valid reports membership in the status set. No ordering between statuses is implied.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID                  string
	CustomerID          string
	AssignedAgentID     string
	IssueDetails        string
	Status              TicketStatus
	ReassignmentCount   int
	ReassignmentHistory []ReassignmentRecord
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CanReassign reports whether the single reassignment is still available.
func (t *Ticket) CanReassign() bool {
	return t.ReassignmentCount < MaxReassignments
}

// Reassign moves the ticket to another agent and records the transfer.
func (t *Ticket) Reassign(toAgentID string, at time.Time) {
	t.ReassignmentHistory = append(t.ReassignmentHistory, ReassignmentRecord{
		FromAgentID: t.AssignedAgentID,
		ToAgentID:   toAgentID,
		Timestamp:   at,
	})
	t.AssignedAgentID = toAgentID
	t.ReassignmentCount = len(t.ReassignmentHistory)
}

// Clone returns a deep copy so callers never share the history slice.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	cp := *t
	cp.ReassignmentHistory = append([]ReassignmentRecord(nil), t.ReassignmentHistory...)
	return &cp
}
