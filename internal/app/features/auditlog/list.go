// internal/app/features/auditlog/list.go
package auditlog

import (
	"net/http"
	"strings"
	"time"

	uierrors "github.com/dalemusser/shopdesk/internal/app/features/errors"
	"github.com/dalemusser/shopdesk/internal/app/membership"
	"github.com/dalemusser/shopdesk/internal/app/policy/shoppolicy"
	"github.com/dalemusser/shopdesk/internal/app/store/audit"
	"github.com/dalemusser/shopdesk/internal/app/system/apperr"
	"github.com/dalemusser/shopdesk/internal/app/system/auth"
	"github.com/dalemusser/shopdesk/internal/app/system/paging"
	"github.com/dalemusser/shopdesk/internal/app/system/timeouts"
)

// ServeList handles GET /shops/{shopID}/audit. Staff managers see the
// shop's events, newest first; filters are category, event_type, since
// (YYYY-MM-DD) and page.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	const op = "auditlog.list"
	actor, _ := auth.CurrentUser(r)

	shopID, err := uierrors.ObjectIDParam(r, "shopID")
	if err != nil {
		uierrors.BadRequest(w, err.Error())
		return
	}
	if d := shoppolicy.Evaluate(actor, shopID, shoppolicy.ManageStaff); !d.Allowed {
		h.Err.Write(w, r, membership.DecisionError(op, d))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "audit log list")
	defer cancel()

	q := r.URL.Query()
	win := paging.FromRequest(r, paging.PageSize)

	filter := audit.QueryFilter{
		ShopID:    &shopID,
		Category:  strings.TrimSpace(q.Get("category")),
		EventType: strings.TrimSpace(q.Get("event_type")),
		Limit:     win.Limit,
		Offset:    win.Offset,
	}
	if s := strings.TrimSpace(q.Get("since")); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			uierrors.BadRequest(w, "since must be YYYY-MM-DD")
			return
		}
		filter.Since = &t
	}

	events, err := h.Events.Query(ctx, filter)
	if err != nil {
		h.Err.Write(w, r, apperr.Internal(op, err))
		return
	}
	total, err := h.Events.Count(ctx, filter)
	if err != nil {
		h.Err.Write(w, r, apperr.Internal(op, err))
		return
	}

	resp := listResponse{
		Events:     make([]listItem, 0, len(events)),
		Page:       win.Page,
		TotalPages: win.TotalPages(total),
		Total:      total,
	}
	for _, e := range events {
		resp.Events = append(resp.Events, item(e))
	}
	uierrors.JSON(w, http.StatusOK, resp)
}
