// internal/app/features/members/types.go
package members

import (
	"time"

	"github.com/dalemusser/shopdesk/internal/domain/models"
)

// memberRow is one user as listed for a shop.
type memberRow struct {
	ID         string    `json:"id"`
	FullName   string    `json:"full_name"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	IsOwner    bool      `json:"is_owner"`
	Blocked    bool      `json:"blocked"`
	AssignedAt time.Time `json:"assigned_at"`
}

type listResponse struct {
	Members []memberRow `json:"members"`
}

type assignRequest struct {
	UserID  string `json:"user_id"`
	Role    string `json:"role"`
	IsOwner bool   `json:"is_owner"`
}

type roleRequest struct {
	Role string `json:"role"`
}

func rowFor(u models.User, a models.Assignment) memberRow {
	return memberRow{
		ID:         u.ID.Hex(),
		FullName:   u.FullName,
		Email:      u.Email,
		Role:       a.Role,
		IsOwner:    a.IsOwner,
		Blocked:    u.Blocked,
		AssignedAt: a.AssignedAt,
	}
}
