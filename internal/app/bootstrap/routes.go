// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"

	auditlogfeature "github.com/dalemusser/shopdesk/internal/app/features/auditlog"
	errorsfeature "github.com/dalemusser/shopdesk/internal/app/features/errors"
	healthfeature "github.com/dalemusser/shopdesk/internal/app/features/health"
	invitationsfeature "github.com/dalemusser/shopdesk/internal/app/features/invitations"
	membersfeature "github.com/dalemusser/shopdesk/internal/app/features/members"
	profilefeature "github.com/dalemusser/shopdesk/internal/app/features/profile"
	shopsfeature "github.com/dalemusser/shopdesk/internal/app/features/shops"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// the Startup hook have completed, so deps.Services is populated.
//
// Every request passes through LoadSessionUser, which puts the fresh
// signed-in user (or nobody) in the context. Feature routers enforce
// sign-in themselves; authorization decisions happen in the services.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	svc := deps.Services
	if svc == nil || svc.Sessions == nil {
		return nil, errors.New("build handler: services not started")
	}
	errLog := errorsfeature.NewErrorLogger(logger)

	r := chi.NewRouter()
	r.NotFound(errorsfeature.NotFound)
	r.MethodNotAllowed(errorsfeature.MethodNotAllowed)

	// Health check endpoint for load balancers and orchestrators; no session.
	healthHandler := healthfeature.NewHandler(deps.MongoClient, deps.Redis, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	r.Group(func(ar chi.Router) {
		ar.Use(svc.Sessions.LoadSessionUser)

		membersHandler := membersfeature.NewHandler(svc.Members, errLog, logger)
		invitationsHandler := invitationsfeature.NewHandler(svc.Workflow, errLog, logger)
		auditHandler := auditlogfeature.NewHandler(svc.Audit, errLog, logger)

		// Shops and the resources nested under one shop
		shopsHandler := shopsfeature.NewHandler(svc.Shops, appCfg.ScopeMaxPredicateSize, errLog, logger)
		ar.Mount("/shops", shopsfeature.Routes(shopsHandler, func(sr chi.Router) {
			sr.Mount("/members", membersfeature.Routes(membersHandler))
			sr.Mount("/invitations", invitationsfeature.ShopRoutes(invitationsHandler))
			sr.Mount("/audit", auditlogfeature.Routes(auditHandler))
		}))

		// Invitee side: token lookup, own invitations, accept/reject
		ar.Mount("/invitations", invitationsfeature.Routes(invitationsHandler))

		// The signed-in user's own account
		profileHandler := profilefeature.NewHandler(svc.Members, errLog, logger)
		ar.Mount("/me", profilefeature.Routes(profileHandler))
	})

	return r, nil
}
