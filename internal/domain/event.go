package domain

import "time"

type EventType string

const (
	EventIssueCreated   EventType = "issue.created"
	EventStatusChanged  EventType = "issue.status_changed"
	EventIssueAssigned  EventType = "issue.assigned"
	EventIssueResolved  EventType = "issue.resolved"
	EventIssueCommented EventType = "issue.commented"
)

// Event is the realtime notification emitted after a successful
// lifecycle transition.
type Event struct {
	Type      EventType   `json:"type"`
	IssueID   string      `json:"issueId"`
	Status    IssueStatus `json:"status,omitempty"`
	Actor     string      `json:"actor,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Prefix is the subscription key clients filter on.
func (e Event) Prefix() string {
	return "issue:" + e.IssueID
}
