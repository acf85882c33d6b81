// internal/app/features/members/members.go
package members

import (
	"context"
	"net/http"

	uierrors "github.com/dalemusser/shopdesk/internal/app/features/errors"
	"github.com/dalemusser/shopdesk/internal/app/system/auth"
	"github.com/dalemusser/shopdesk/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ServeList handles GET /shops/{shopID}/members.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)
	shopID, err := uierrors.ObjectIDParam(r, "shopID")
	if err != nil {
		uierrors.BadRequest(w, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	users, err := h.Members.Members(ctx, actor, shopID)
	if err != nil {
		h.Err.Write(w, r, err)
		return
	}
	resp := listResponse{Members: make([]memberRow, 0, len(users))}
	for _, u := range users {
		if a, ok := u.Assignment(shopID); ok {
			resp.Members = append(resp.Members, rowFor(u, a))
		}
	}
	uierrors.JSON(w, http.StatusOK, resp)
}

// HandleAssign handles POST /shops/{shopID}/members.
func (h *Handler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)
	shopID, err := uierrors.ObjectIDParam(r, "shopID")
	if err != nil {
		uierrors.BadRequest(w, err.Error())
		return
	}
	var req assignRequest
	if err := uierrors.DecodeBody(w, r, &req); err != nil {
		uierrors.BadRequest(w, err.Error())
		return
	}
	userID, err := primitive.ObjectIDFromHex(req.UserID)
	if err != nil {
		uierrors.BadRequest(w, "invalid user_id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	a, err := h.Members.AssignUserToShop(ctx, actor, userID, shopID, req.Role, req.IsOwner)
	if err != nil {
		h.Err.Write(w, r, err)
		return
	}
	uierrors.JSON(w, http.StatusCreated, a)
}

// HandleUpdateRole handles PATCH /shops/{shopID}/members/{userID}.
func (h *Handler) HandleUpdateRole(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)
	shopID, userID, ok := params(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if err := uierrors.DecodeBody(w, r, &req); err != nil {
		uierrors.BadRequest(w, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	a, err := h.Members.UpdateShopRole(ctx, actor, userID, shopID, req.Role)
	if err != nil {
		h.Err.Write(w, r, err)
		return
	}
	uierrors.JSON(w, http.StatusOK, a)
}

// HandleRemove handles DELETE /shops/{shopID}/members/{userID}.
func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)
	shopID, userID, ok := params(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if err := h.Members.RemoveAssignment(ctx, actor, userID, shopID); err != nil {
		h.Err.Write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func params(w http.ResponseWriter, r *http.Request) (shopID, userID primitive.ObjectID, ok bool) {
	shopID, err := uierrors.ObjectIDParam(r, "shopID")
	if err != nil {
		uierrors.BadRequest(w, err.Error())
		return shopID, userID, false
	}
	userID, err = uierrors.ObjectIDParam(r, "userID")
	if err != nil {
		uierrors.BadRequest(w, err.Error())
		return shopID, userID, false
	}
	return shopID, userID, true
}
