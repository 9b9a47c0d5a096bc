package notification

import "time"

// Priority orders notifications for delivery surfaces.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Notification is a write-once record derived from a ledger mutation.
// Delivery is fire-and-forget; a failed notification never rolls back the
// mutation that produced it.
type Notification struct {
	ID        string
	AccountID string
	Type      string
	Title     string
	Message   string
	Data      map[string]string
	Priority  Priority
	CreatedAt time.Time
}

// AuditEntry is a write-once compliance record attached to a mutation.
type AuditEntry struct {
	ID          string
	AccountID   string
	Action      string
	EntityRef   string
	Description string
	Status      string
	CreatedAt   time.Time
}
