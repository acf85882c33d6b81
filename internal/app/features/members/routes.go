// internal/app/features/members/routes.go
package members

import (
	"github.com/dalemusser/shopdesk/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the member routes for one shop. The caller mounts it under
// a path carrying {shopID}, typically /shops/{shopID}/members.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)

		pr.Get("/", h.ServeList)
		pr.Post("/", h.HandleAssign)
		pr.Patch("/{userID}", h.HandleUpdateRole)
		pr.Delete("/{userID}", h.HandleRemove)
	})

	return r
}
