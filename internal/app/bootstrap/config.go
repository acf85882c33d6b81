// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/shopdesk/internal/app/invitation"
	"github.com/dalemusser/shopdesk/internal/app/policy/scopepolicy"
	"github.com/dalemusser/shopdesk/internal/app/policy/shoppolicy"
	"github.com/dalemusser/shopdesk/internal/app/system/cachebus"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for ShopDesk.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: SHOPDESK_MONGO_URI, SHOPDESK_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "shopdesk", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: "", Desc: "Session signing key (required in production; generated in dev when blank)"},
	{Name: "session_name", Default: "shopdesk-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "720h", Desc: "Session cookie lifetime"},

	// Email/SMTP configuration
	{Name: "mail_smtp_host", Default: "localhost", Desc: "SMTP server host"},
	{Name: "mail_smtp_port", Default: 1025, Desc: "SMTP server port"},
	{Name: "mail_smtp_user", Default: "", Desc: "SMTP username"},
	{Name: "mail_smtp_pass", Default: "", Desc: "SMTP password"},
	{Name: "mail_from", Default: "noreply@shopdesk.example", Desc: "From email address"},
	{Name: "mail_from_name", Default: "ShopDesk", Desc: "From display name"},

	// Base URL for invitation links
	{Name: "base_url", Default: "http://localhost:3000", Desc: "Base URL for email links"},

	// Invitations
	{Name: "invitation_ttl", Default: "168h", Desc: "How long an invitation can be answered (e.g., 168h, 72h)"},
	{Name: "invite_rate_per_minute", Default: 10, Desc: "Invitations one user may send per minute"},
	{Name: "invite_burst", Default: 20, Desc: "Invitation burst allowance per user"},

	// Policy cache
	{Name: "policy_cache_ttl", Default: "30s", Desc: "How long a loaded user is reused for authorization"},
	{Name: "redis_addr", Default: "", Desc: "Redis address for cross-process cache invalidation (blank disables)"},
	{Name: "redis_password", Default: "", Desc: "Redis password"},
	{Name: "redis_db", Default: 0, Desc: "Redis database number"},
	{Name: "redis_invalidate_channel", Default: cachebus.DefaultChannel, Desc: "Redis pub/sub channel for invalidations"},

	// Listing queries
	{Name: "scope_max_predicate_size", Default: scopepolicy.DefaultMaxPredicateSize, Desc: "Largest shop id list sent in one query"},

	// Store call deadlines
	{Name: "timeout_short", Default: "5s", Desc: "Deadline for single-document store calls"},
	{Name: "timeout_medium", Default: "10s", Desc: "Deadline for list queries and retry loops"},
	{Name: "timeout_long", Default: "30s", Desc: "Deadline for multi-collection operations"},

	// Audit logging settings
	{Name: "audit_log_admin", Default: "all", Desc: "Membership/invitation event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	// Root admin bootstrap
	{Name: "root_admin_email", Default: "", Desc: "Email of the root admin user (promotes/creates on startup)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, SHOPDESK_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "SHOPDESK", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		SessionKey:       appValues.String("session_key"),
		SessionName:      appValues.String("session_name"),
		SessionDomain:    appValues.String("session_domain"),
		SessionMaxAge:    appValues.Duration("session_max_age", 30*24*time.Hour),

		// Email/SMTP
		MailSMTPHost: appValues.String("mail_smtp_host"),
		MailSMTPPort: appValues.Int("mail_smtp_port"),
		MailSMTPUser: appValues.String("mail_smtp_user"),
		MailSMTPPass: appValues.String("mail_smtp_pass"),
		MailFrom:     appValues.String("mail_from"),
		MailFromName: appValues.String("mail_from_name"),

		BaseURL: appValues.String("base_url"),

		// Invitations
		InvitationTTL:       appValues.Duration("invitation_ttl", invitation.DefaultTTL),
		InviteRatePerMinute: appValues.Int("invite_rate_per_minute"),
		InviteBurst:         appValues.Int("invite_burst"),

		// Policy cache
		PolicyCacheTTL:         appValues.Duration("policy_cache_ttl", shoppolicy.DefaultCacheTTL),
		RedisAddr:              appValues.String("redis_addr"),
		RedisPassword:          appValues.String("redis_password"),
		RedisDB:                appValues.Int("redis_db"),
		RedisInvalidateChannel: appValues.String("redis_invalidate_channel"),

		ScopeMaxPredicateSize: appValues.Int("scope_max_predicate_size"),

		TimeoutShort:  appValues.Duration("timeout_short", 0),
		TimeoutMedium: appValues.Duration("timeout_medium", 0),
		TimeoutLong:   appValues.Duration("timeout_long", 0),

		AuditLogAdmin: appValues.String("audit_log_admin"),

		RootAdminEmail: appValues.String("root_admin_email"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// ShopDesk validates the MongoDB URI format to catch configuration errors
// early, before attempting to connect.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	return validateApp(coreCfg.Env, appCfg)
}

// validateApp checks the settings that do not need a connection.
func validateApp(env string, appCfg AppConfig) error {
	if appCfg.MongoDatabase == "" {
		return fmt.Errorf("mongo_database must be set")
	}
	if appCfg.InvitationTTL <= 0 {
		return fmt.Errorf("invitation_ttl must be positive, got %s", appCfg.InvitationTTL)
	}
	if appCfg.InviteRatePerMinute < 0 || appCfg.InviteBurst < 0 {
		return fmt.Errorf("invite_rate_per_minute and invite_burst must not be negative")
	}
	if appCfg.ScopeMaxPredicateSize < 1 {
		return fmt.Errorf("scope_max_predicate_size must be at least 1, got %d", appCfg.ScopeMaxPredicateSize)
	}
	switch appCfg.AuditLogAdmin {
	case "all", "db", "log", "off":
	default:
		return fmt.Errorf("audit_log_admin must be one of all, db, log, off; got %q", appCfg.AuditLogAdmin)
	}
	if env == "prod" && appCfg.SessionKey == "" {
		return fmt.Errorf("session_key is required in production")
	}
	return nil
}
