// internal/app/features/invitations/routes.go
package invitations

import (
	"github.com/dalemusser/shopdesk/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// ShopRoutes mounts the per-shop invitation routes. The caller mounts it
// under a path carrying {shopID}, typically /shops/{shopID}/invitations.
func ShopRoutes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)

		pr.Get("/", h.ServeShopList)
		pr.Post("/", h.HandleCreate)
	})

	return r
}

// Routes mounts the invitee routes, typically under /invitations.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	// Public: the link in the email.
	r.Get("/token/{token}", h.ServeToken)

	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)

		pr.Get("/mine", h.ServeMine)
		pr.Post("/{id}/accept", h.HandleAccept)
		pr.Post("/{id}/reject", h.HandleReject)
	})

	return r
}
