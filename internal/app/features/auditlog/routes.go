// internal/app/features/auditlog/routes.go
package auditlog

import (
	"github.com/dalemusser/shopdesk/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the audit log routes for one shop, typically under
// /shops/{shopID}/audit. Access requires ManageStaff in the shop; root
// admins see every shop.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)

		pr.Get("/", h.ServeList)
	})

	return r
}
