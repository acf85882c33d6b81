package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dalemusser/shopdesk/internal/app/policy/shoppolicy"
	userstore "github.com/dalemusser/shopdesk/internal/app/store/users"
	"github.com/dalemusser/shopdesk/internal/domain/models"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

/*─────────────────────────────────────────────────────────────────────────────*
| Session constants                                                          |
*─────────────────────────────────────────────────────────────────────────────*/

const (
	DefaultSessionName = "shopdesk-session"

	userIDKey = "user_id"
)

// Config configures a SessionManager.
type Config struct {
	Key    string // at least 32 bytes recommended
	Name   string
	Domain string
	MaxAge time.Duration
	Secure bool
}

// SessionManager reads the signed-in user id from a cookie session and
// resolves it to a fresh user record on every request. The record comes
// through the policy cache, so a mutation that invalidates the user is seen
// by the next request.
type SessionManager struct {
	store *sessions.CookieStore
	name  string
	cache *shoppolicy.Cache
	load  shoppolicy.Loader
	log   *zap.Logger
}

// NewSessionManager creates a SessionManager. cache may be nil, in which
// case every request loads straight from load.
func NewSessionManager(cfg Config, cache *shoppolicy.Cache, load shoppolicy.Loader, logger *zap.Logger) (*SessionManager, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("session key is empty; provide ≥32 random chars")
	}
	if load == nil {
		return nil, errors.New("session manager needs a user loader")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Key) < 32 {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(cfg.Key)))
	}
	if cfg.Name == "" {
		cfg.Name = DefaultSessionName
	}

	store := sessions.NewCookieStore([]byte(cfg.Key))
	opts := &sessions.Options{
		Domain:   cfg.Domain,
		Path:     "/",
		Secure:   cfg.Secure,
		HttpOnly: true,
	}
	// Secure cookies may travel cross-site; plain http on localhost needs Lax.
	if cfg.Secure {
		opts.SameSite = http.SameSiteNoneMode
	} else {
		opts.SameSite = http.SameSiteLaxMode
	}
	store.Options = opts
	if cfg.MaxAge > 0 {
		store.MaxAge(int(cfg.MaxAge / time.Second))
	}

	logger.Info("session store initialized",
		zap.String("name", cfg.Name),
		zap.Bool("secure", cfg.Secure),
		zap.String("domain", cfg.Domain))

	return &SessionManager{store: store, name: cfg.Name, cache: cache, load: load, log: logger}, nil
}

// GenerateKey returns a random session key for development use.
func GenerateKey() string {
	return fmt.Sprintf("%x", securecookie.GenerateRandomKey(32))
}

/*─────────────────────────────────────────────────────────────────────────────*
| Current-User helper                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the signed-in user and a found flag.
func CurrentUser(r *http.Request) (*models.User, bool) {
	u, ok := r.Context().Value(currentUserKey).(*models.User)
	return u, ok && u != nil
}

// WithTestUser injects u into the request context the way LoadSessionUser
// does. Intended for handler tests.
func WithTestUser(r *http.Request, u *models.User) *http.Request {
	return withUser(r, u)
}

func withUser(r *http.Request, u *models.User) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

func (sm *SessionManager) user(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	if sm.cache == nil {
		return sm.load(ctx, id)
	}
	return sm.cache.User(ctx, id, sm.load)
}

// LoadSessionUser injects the signed-in user into the request context.
// Requests without a valid session, or whose user no longer exists, pass
// through anonymously.
func (sm *SessionManager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sm.store.Get(r, sm.name)
		if err != nil {
			sm.log.Debug("ignoring unreadable session cookie", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		hex, _ := sess.Values[userIDKey].(string)
		id, err := primitive.ObjectIDFromHex(hex)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		u, err := sm.user(r.Context(), id)
		switch {
		case err == nil:
			r = withUser(r, u)
		case errors.Is(err, userstore.ErrNotFound):
			sm.log.Info("session references a missing user", zap.String("user_id", hex))
		default:
			sm.log.Error("loading session user failed", zap.String("user_id", hex), zap.Error(err))
			writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "could not load your account; try again")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SignIn stores userID in the session cookie.
func (sm *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, userID primitive.ObjectID) error {
	sess, _ := sm.store.Get(r, sm.name)
	sess.Values[userIDKey] = userID.Hex()
	return sess.Save(r, w)
}

// SignOut clears the session cookie.
func (sm *SessionManager) SignOut(w http.ResponseWriter, r *http.Request) error {
	sess, _ := sm.store.Get(r, sm.name)
	delete(sess.Values, userIDKey)
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// RequireSignedIn rejects anonymous requests with 401.
func (sm *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return RequireSignedIn(next)
}

// RequireSignedIn rejects requests without a user in context (set by
// LoadSessionUser) with 401.
func RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); !ok {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "sign in required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": msg})
}
