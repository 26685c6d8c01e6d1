package domain

import "time"

// ReassignmentRecord is an immutable entry of a ticket's transfer history.
type ReassignmentRecord struct {
	FromAgentID string    `json:"from_agent_id"`
	ToAgentID   string    `json:"to_agent_id"`
	Timestamp   time.Time `json:"timestamp"`
}
