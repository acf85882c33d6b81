// internal/app/features/shops/routes.go
package shops

import (
	"github.com/dalemusser/shopdesk/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the shop routes. Typically:
// r.Mount("/shops", shops.Routes(handler, nested)) where nested mounts the
// per-shop resources (members, invitations, audit) under /{shopID}.
func Routes(h *Handler, nested func(chi.Router)) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)

	r.Get("/", h.ServeList)
	r.Route("/{shopID}", func(sr chi.Router) {
		sr.Get("/", h.ServeView)
		if nested != nil {
			nested(sr)
		}
	})

	return r
}
