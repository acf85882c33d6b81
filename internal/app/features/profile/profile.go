// internal/app/features/profile/profile.go
package profile

import (
	"context"
	"net/http"
	"time"

	uierrors "github.com/dalemusser/shopdesk/internal/app/features/errors"
	"github.com/dalemusser/shopdesk/internal/app/policy/shoppolicy"
	"github.com/dalemusser/shopdesk/internal/app/system/auth"
	"github.com/dalemusser/shopdesk/internal/app/system/timeouts"
	"github.com/dalemusser/shopdesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// shopAccess is one assignment with the capabilities it resolves to.
type shopAccess struct {
	ShopID       string                  `json:"shop_id"`
	ShopName     string                  `json:"shop_name"`
	Role         string                  `json:"role"`
	IsOwner      bool                    `json:"is_owner"`
	Current      bool                    `json:"current"`
	Capabilities []shoppolicy.Capability `json:"capabilities"`
}

// meResponse is the view of the signed-in user.
type meResponse struct {
	ID          string       `json:"id"`
	FullName    string       `json:"full_name"`
	Email       string       `json:"email"`
	GlobalRole  string       `json:"global_role"`
	IsRootAdmin bool         `json:"is_root_admin"`
	CurrentShop string       `json:"current_shop,omitempty"`
	Shops       []shopAccess `json:"shops"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type currentShopRequest struct {
	ShopID string `json:"shop_id"`
}

func view(u *models.User) meResponse {
	resp := meResponse{
		ID:          u.ID.Hex(),
		FullName:    u.FullName,
		Email:       u.Email,
		GlobalRole:  u.GlobalRole,
		IsRootAdmin: u.IsRootAdmin,
		Shops:       make([]shopAccess, 0, len(u.AssignedShops)),
		UpdatedAt:   u.UpdatedAt,
	}
	if u.CurrentShop != nil {
		resp.CurrentShop = u.CurrentShop.Hex()
	}
	for _, a := range u.AssignedShops {
		sa := shopAccess{
			ShopID:       a.ShopID.Hex(),
			ShopName:     a.ShopName,
			Role:         a.Role,
			IsOwner:      a.IsOwner,
			Current:      u.CurrentShop != nil && *u.CurrentShop == a.ShopID,
			Capabilities: []shoppolicy.Capability{},
		}
		for _, c := range shoppolicy.Capabilities {
			if shoppolicy.HasPermission(u, a.ShopID, c) {
				sa.Capabilities = append(sa.Capabilities, c)
			}
		}
		resp.Shops = append(resp.Shops, sa)
	}
	return resp
}

// ServeMe handles GET /me.
func (h *Handler) ServeMe(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	uierrors.JSON(w, http.StatusOK, view(u))
}

// HandleCurrentShop handles PUT /me/current-shop.
func (h *Handler) HandleCurrentShop(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	var req currentShopRequest
	if err := uierrors.DecodeBody(w, r, &req); err != nil {
		uierrors.BadRequest(w, err.Error())
		return
	}
	shopID, err := primitive.ObjectIDFromHex(req.ShopID)
	if err != nil {
		uierrors.BadRequest(w, "invalid shop_id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	updated, err := h.Switcher.SetCurrentShop(ctx, u, shopID)
	if err != nil {
		h.Err.Write(w, r, err)
		return
	}
	uierrors.JSON(w, http.StatusOK, view(updated))
}
