// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/shopdesk/internal/app/invitation"
	"github.com/dalemusser/shopdesk/internal/app/membership"
	"github.com/dalemusser/shopdesk/internal/app/policy/shoppolicy"
	"github.com/dalemusser/shopdesk/internal/app/store/audit"
	invitationstore "github.com/dalemusser/shopdesk/internal/app/store/invitations"
	shopstore "github.com/dalemusser/shopdesk/internal/app/store/shops"
	userstore "github.com/dalemusser/shopdesk/internal/app/store/users"
	"github.com/dalemusser/shopdesk/internal/app/system/auditlog"
	"github.com/dalemusser/shopdesk/internal/app/system/auth"
	"github.com/dalemusser/shopdesk/internal/app/system/cachebus"
	"github.com/dalemusser/shopdesk/internal/app/system/mailer"
	"github.com/dalemusser/shopdesk/internal/app/system/ratelimit"
	"github.com/dalemusser/shopdesk/internal/app/system/timeouts"
	"github.com/dalemusser/shopdesk/internal/app/system/txn"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Limiter bucket upkeep.
const (
	limiterSweepEvery = 5 * time.Minute
	limiterIdleAfter  = 30 * time.Minute
)

// Services are the long-lived components built once at startup.
type Services struct {
	Users       *userstore.Store
	Shops       *shopstore.Store
	Invitations *invitationstore.Store
	Audit       *audit.Store

	Cache    *shoppolicy.Cache
	Bus      *cachebus.Bus // nil without Redis
	Members  *membership.Manager
	Workflow *invitation.Workflow
	Sessions *auth.SessionManager
	AuditLog *auditlog.Logger
	Limiter  *ratelimit.Limiter

	stop context.CancelFunc
	done chan struct{}
}

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It wires
// stores, the policy cache and the membership and invitation services, and
// starts their background loops.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.Services == nil {
		return errors.New("startup: DBDeps.Services not allocated")
	}
	svc := deps.Services
	db := deps.MongoDatabase

	timeouts.Configure(timeouts.Config{
		Short:  appCfg.TimeoutShort,
		Medium: appCfg.TimeoutMedium,
		Long:   appCfg.TimeoutLong,
	})

	svc.Users = userstore.New(db)
	svc.Shops = shopstore.New(db)
	svc.Invitations = invitationstore.New(db)
	svc.Audit = audit.New(db)
	svc.AuditLog = auditlog.New(svc.Audit, logger, auditlog.Config{Admin: appCfg.AuditLogAdmin})

	if err := ensureRootAdmin(ctx, svc.Users, svc.AuditLog, appCfg.RootAdminEmail, logger); err != nil {
		return err
	}

	svc.Cache = shoppolicy.NewCache(appCfg.PolicyCacheTTL)
	svc.Members = membership.New(svc.Users, svc.Shops, svc.AuditLog, svc.Cache, logger)
	svc.Limiter = ratelimit.New(float64(appCfg.InviteRatePerMinute), appCfg.InviteBurst)

	mail := mailer.New(mailer.Config{
		Host:     appCfg.MailSMTPHost,
		Port:     appCfg.MailSMTPPort,
		User:     appCfg.MailSMTPUser,
		Pass:     appCfg.MailSMTPPass,
		From:     appCfg.MailFrom,
		FromName: appCfg.MailFromName,
		Timeout:  timeouts.Long(),
	}, logger)

	svc.Workflow = invitation.New(invitation.Deps{
		Store:    svc.Invitations,
		Users:    svc.Users,
		Shops:    svc.Shops,
		Members:  svc.Members,
		Notifier: invitation.NewMailNotifier(mail, appCfg.MailFromName),
		Audit:    svc.AuditLog,
		Limiter:  svc.Limiter,
		Tx: func(ctx context.Context, fn func(ctx context.Context) error) error {
			return txn.Run(ctx, db, logger, fn)
		},
		Log: logger,
	}, invitation.Config{
		TTL:     appCfg.InvitationTTL,
		BaseURL: appCfg.BaseURL,
	})

	key := appCfg.SessionKey
	if key == "" {
		// Only reachable outside prod (ValidateConfig). Sessions do not
		// survive a restart.
		key = auth.GenerateKey()
		logger.Warn("session_key not set; generated an ephemeral key")
	}
	sm, err := auth.NewSessionManager(auth.Config{
		Key:    key,
		Name:   appCfg.SessionName,
		Domain: appCfg.SessionDomain,
		MaxAge: appCfg.SessionMaxAge,
		Secure: coreCfg.Env == "prod",
	}, svc.Cache, svc.Users.GetByID, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return err
	}
	svc.Sessions = sm

	// Background loops outlive the startup context; Shutdown stops them.
	bg, stop := context.WithCancel(context.Background())
	svc.stop = stop
	svc.done = make(chan struct{})

	var bus *cachebus.Bus
	if deps.Redis != nil {
		bus = cachebus.New(deps.Redis, appCfg.RedisInvalidateChannel, svc.Cache, logger)
		svc.Cache.OnInvalidate(bus.Publish)
		svc.Bus = bus
	}
	go func() {
		defer close(svc.done)
		if bus == nil {
			svc.Limiter.Run(bg, limiterSweepEvery, limiterIdleAfter)
			return
		}
		go svc.Limiter.Run(bg, limiterSweepEvery, limiterIdleAfter)
		if err := bus.Run(bg); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("cache invalidation bus stopped", zap.Error(err))
		}
	}()

	logger.Info("shopdesk services started",
		zap.Bool("invalidation_bus", bus != nil),
		zap.Duration("policy_cache_ttl", appCfg.PolicyCacheTTL),
		zap.Duration("invitation_ttl", appCfg.InvitationTTL))
	return nil
}

// ensureRootAdmin promotes (or creates) the configured root admin. A blank
// email skips the step.
func ensureRootAdmin(ctx context.Context, users *userstore.Store, auditLog *auditlog.Logger, email string, logger *zap.Logger) error {
	if email == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	u, created, err := users.EnsureRootAdmin(ctx, email, "Root Admin")
	if err != nil {
		logger.Error("root admin bootstrap failed", zap.String("email", email), zap.Error(err))
		return err
	}
	auditLog.RootAdminEnsured(ctx, u.ID, u.Email, created)
	logger.Info("root admin ensured",
		zap.String("email", u.Email),
		zap.String("user_id", u.ID.Hex()),
		zap.Bool("created", created))
	return nil
}
