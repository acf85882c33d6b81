// internal/app/features/profile/routes.go
package profile

import (
	"github.com/dalemusser/shopdesk/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the account routes, typically under /me.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)

		pr.Get("/", h.ServeMe)
		pr.Put("/current-shop", h.HandleCurrentShop)
	})

	return r
}
