// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration; ports, TLS, log level and
// CORS live in WAFFLE's CoreConfig.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session management configuration
	SessionKey    string // Secret key for signing session cookies (generated in dev when blank)
	SessionName   string // Cookie name for sessions (default: shopdesk-session)
	SessionDomain string // Cookie domain (blank means current host)
	SessionMaxAge time.Duration

	// Email/SMTP configuration
	MailSMTPHost string // SMTP server host (blank logs mail instead of sending)
	MailSMTPPort int    // SMTP server port (e.g., 1025 for Mailpit, 587 for SES)
	MailSMTPUser string
	MailSMTPPass string
	MailFrom     string // From email address (e.g., noreply@shopdesk.example)
	MailFromName string // From display name; also the site name in invitation mail

	// Base URL for invitation links
	BaseURL string // e.g., "https://shopdesk.example" or "http://localhost:3000"

	// Invitations
	InvitationTTL       time.Duration // how long a pending invitation stays answerable
	InviteRatePerMinute int           // invitations an actor may send per minute
	InviteBurst         int

	// Policy cache and its optional cross-process invalidation bus
	PolicyCacheTTL         time.Duration
	RedisAddr              string // blank disables the bus
	RedisPassword          string
	RedisDB                int
	RedisInvalidateChannel string

	// Listing queries
	ScopeMaxPredicateSize int // largest shop id list sent in one query

	// Store call deadlines; zero keeps the defaults in system/timeouts
	TimeoutShort  time.Duration
	TimeoutMedium time.Duration
	TimeoutLong   time.Duration

	// Audit logging: "all", "db", "log" or "off"
	AuditLogAdmin string

	// Root admin bootstrap
	RootAdminEmail string // promoted (or created) on startup when set
}
