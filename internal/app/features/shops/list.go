// internal/app/features/shops/list.go
package shops

import (
	"context"
	"errors"
	"net/http"

	uierrors "github.com/dalemusser/shopdesk/internal/app/features/errors"
	"github.com/dalemusser/shopdesk/internal/app/policy/scopepolicy"
	shopstore "github.com/dalemusser/shopdesk/internal/app/store/shops"
	"github.com/dalemusser/shopdesk/internal/app/system/apperr"
	"github.com/dalemusser/shopdesk/internal/app/system/auth"
	"github.com/dalemusser/shopdesk/internal/app/system/timeouts"
	"github.com/dalemusser/shopdesk/internal/domain/models"
)

// shopRow is one shop as the caller sees it, with the caller's role in it.
type shopRow struct {
	models.Shop
	Role    string `json:"role,omitempty"`
	IsOwner bool   `json:"is_owner,omitempty"`
	Current bool   `json:"current"`
}

type listResponse struct {
	Shops []shopRow `json:"shops"`
}

func (h *Handler) predicate(actor *models.User) scopepolicy.Predicate {
	p := scopepolicy.ScopeFor(actor)
	if h.MaxPredicateSize > 0 {
		p = p.WithMaxPredicateSize(h.MaxPredicateSize)
	}
	return p
}

func row(actor *models.User, shop models.Shop) shopRow {
	r := shopRow{Shop: shop}
	if a, ok := actor.Assignment(shop.ID); ok {
		r.Role = a.Role
		r.IsOwner = a.IsOwner
	}
	r.Current = actor.CurrentShop != nil && *actor.CurrentShop == shop.ID
	return r
}

// ServeList handles GET /shops: every shop the actor may see.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	shops, err := h.Shops.ListScoped(ctx, h.predicate(actor))
	if err != nil {
		h.Err.Write(w, r, apperr.Internal("shops.list", err))
		return
	}
	resp := listResponse{Shops: make([]shopRow, 0, len(shops))}
	for _, s := range shops {
		resp.Shops = append(resp.Shops, row(actor, s))
	}
	uierrors.JSON(w, http.StatusOK, resp)
}

// ServeView handles GET /shops/{shopID}. Shops outside the actor's scope
// are reported as missing.
func (h *Handler) ServeView(w http.ResponseWriter, r *http.Request) {
	const op = "shops.view"
	actor, _ := auth.CurrentUser(r)

	shopID, err := uierrors.ObjectIDParam(r, "shopID")
	if err != nil {
		uierrors.BadRequest(w, err.Error())
		return
	}
	if !h.predicate(actor).Allows(shopID) {
		h.Err.Write(w, r, apperr.NotFound(op, "shop not found"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	shop, err := h.Shops.GetByID(ctx, shopID)
	switch {
	case errors.Is(err, shopstore.ErrNotFound):
		h.Err.Write(w, r, apperr.NotFound(op, "shop not found"))
		return
	case err != nil:
		h.Err.Write(w, r, apperr.Internal(op, err))
		return
	}
	uierrors.JSON(w, http.StatusOK, row(actor, *shop))
}
