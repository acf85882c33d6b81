// internal/app/features/invitations/types.go
package invitations

import "github.com/dalemusser/shopdesk/internal/domain/models"

type inviteRequest struct {
	Email   string `json:"email"`
	Role    string `json:"role"`
	Message string `json:"message"`
}

type listResponse struct {
	Invitations []models.Invitation `json:"invitations"`
}

type acceptResponse struct {
	Assignment models.Assignment `json:"assignment"`
}

// tokenView is what the public token lookup discloses. The inviter id and
// response metadata stay private.
type tokenView struct {
	ID          string                  `json:"id"`
	ShopName    string                  `json:"shop_name"`
	Role        string                  `json:"role"`
	TargetEmail string                  `json:"target_email"`
	Message     string                  `json:"message,omitempty"`
	Status      models.InvitationStatus `json:"status"`
	ExpiresAt   string                  `json:"expires_at"`
}

func list(invs []models.Invitation) listResponse {
	if invs == nil {
		invs = []models.Invitation{}
	}
	return listResponse{Invitations: invs}
}
