package domain

import "time"

// ReassignmentView is a history entry with both agents resolved.
type ReassignmentView struct {
	FromAgent UserSummary
	ToAgent   UserSummary
	Timestamp time.Time
}

// TicketView is a ticket with its user references expanded to display form.
type TicketView struct {
	ID                  string
	Customer            UserSummary
	AssignedAgent       UserSummary
	IssueDetails        string
	Status              TicketStatus
	ReassignmentCount   int
	ReassignmentHistory []ReassignmentView
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
