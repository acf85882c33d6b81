// internal/app/features/invitations/invitations.go
package invitations

import (
	"context"
	"net/http"
	"time"

	uierrors "github.com/dalemusser/shopdesk/internal/app/features/errors"
	"github.com/dalemusser/shopdesk/internal/app/system/auth"
	"github.com/dalemusser/shopdesk/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
)

// HandleCreate handles POST /shops/{shopID}/invitations.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)
	shopID, err := uierrors.ObjectIDParam(r, "shopID")
	if err != nil {
		uierrors.BadRequest(w, err.Error())
		return
	}
	var req inviteRequest
	if err := uierrors.DecodeBody(w, r, &req); err != nil {
		uierrors.BadRequest(w, err.Error())
		return
	}

	// Long: the notification is sent inline.
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	inv, err := h.Invitations.Invite(ctx, actor, req.Email, shopID, req.Role, req.Message)
	if err != nil {
		h.Err.Write(w, r, err)
		return
	}
	uierrors.JSON(w, http.StatusCreated, inv)
}

// ServeShopList handles GET /shops/{shopID}/invitations.
func (h *Handler) ServeShopList(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)
	shopID, err := uierrors.ObjectIDParam(r, "shopID")
	if err != nil {
		uierrors.BadRequest(w, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	invs, err := h.Invitations.ListForShop(ctx, actor, shopID)
	if err != nil {
		h.Err.Write(w, r, err)
		return
	}
	uierrors.JSON(w, http.StatusOK, list(invs))
}

// ServeMine handles GET /invitations/mine.
func (h *Handler) ServeMine(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	invs, err := h.Invitations.ListForUser(ctx, u)
	if err != nil {
		h.Err.Write(w, r, err)
		return
	}
	uierrors.JSON(w, http.StatusOK, list(invs))
}

// ServeToken handles GET /invitations/token/{token}. It needs no session:
// the token itself is the credential for reading the invitation.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	inv, err := h.Invitations.GetByToken(ctx, chi.URLParam(r, "token"))
	if err != nil {
		h.Err.Write(w, r, err)
		return
	}
	uierrors.JSON(w, http.StatusOK, tokenView{
		ID:          inv.ID.Hex(),
		ShopName:    inv.ShopName,
		Role:        inv.Role,
		TargetEmail: inv.TargetEmail,
		Message:     inv.Message,
		Status:      inv.Status,
		ExpiresAt:   inv.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// HandleAccept handles POST /invitations/{id}/accept.
func (h *Handler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	id, err := uierrors.ObjectIDParam(r, "id")
	if err != nil {
		uierrors.BadRequest(w, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	a, err := h.Invitations.Accept(ctx, id, u.ID)
	if err != nil {
		h.Err.Write(w, r, err)
		return
	}
	uierrors.JSON(w, http.StatusOK, acceptResponse{Assignment: a})
}

// HandleReject handles POST /invitations/{id}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	id, err := uierrors.ObjectIDParam(r, "id")
	if err != nil {
		uierrors.BadRequest(w, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if err := h.Invitations.Reject(ctx, id, u.ID); err != nil {
		h.Err.Write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
