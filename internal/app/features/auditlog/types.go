// internal/app/features/auditlog/types.go
package auditlog

import (
	"time"

	"github.com/dalemusser/shopdesk/internal/app/store/audit"
)

// listItem is a single audit event as returned to the client.
type listItem struct {
	ID            string            `json:"id"`
	CreatedAt     time.Time         `json:"created_at"`
	Category      string            `json:"category"`
	EventType     string            `json:"event_type"`
	ActorID       string            `json:"actor_id,omitempty"` // empty for system actions
	UserID        string            `json:"user_id,omitempty"`
	Success       bool              `json:"success"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}

type listResponse struct {
	Events     []listItem `json:"events"`
	Page       int        `json:"page"`
	TotalPages int        `json:"total_pages"`
	Total      int64      `json:"total"`
}

func item(e audit.Event) listItem {
	it := listItem{
		ID:            e.ID.Hex(),
		CreatedAt:     e.CreatedAt,
		Category:      e.Category,
		EventType:     e.EventType,
		Success:       e.Success,
		FailureReason: e.FailureReason,
		Details:       e.Details,
	}
	if e.ActorID != nil {
		it.ActorID = e.ActorID.Hex()
	}
	if e.UserID != nil {
		it.UserID = e.UserID.Hex()
	}
	return it
}
