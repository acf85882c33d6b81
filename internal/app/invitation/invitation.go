// Package invitation turns an email invite into a shop membership.
//
// An invitation moves pending -> accepted | rejected | expired exactly once.
// Every transition is a compare-and-set on the stored status, so when two
// responses race the first one wins and the other sees InvalidState.
// Expiry is lazy: a pending invitation past its deadline is marked expired
// the next time anything reads it.
package invitation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/shopdesk/internal/app/membership"
	"github.com/dalemusser/shopdesk/internal/app/policy/shoppolicy"
	"github.com/dalemusser/shopdesk/internal/app/store/audit"
	invitationstore "github.com/dalemusser/shopdesk/internal/app/store/invitations"
	shopstore "github.com/dalemusser/shopdesk/internal/app/store/shops"
	userstore "github.com/dalemusser/shopdesk/internal/app/store/users"
	"github.com/dalemusser/shopdesk/internal/app/system/apperr"
	"github.com/dalemusser/shopdesk/internal/app/system/auditlog"
	"github.com/dalemusser/shopdesk/internal/app/system/htmlsanitize"
	"github.com/dalemusser/shopdesk/internal/app/system/normalize"
	"github.com/dalemusser/shopdesk/internal/app/system/ratelimit"
	"github.com/dalemusser/shopdesk/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/validate"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultTTL is how long an invitation stays acceptable.
	DefaultTTL = 7 * 24 * time.Hour

	// DefaultMaxMessageRunes caps the personal message.
	DefaultMaxMessageRunes = 500

	// tokenPrefixLen is the number of hex characters of the token kept in
	// clear for lookup.
	tokenPrefixLen = 12
)

// Store persists invitations. *invitationstore.Store satisfies it.
type Store interface {
	Create(ctx context.Context, inv models.Invitation) (models.Invitation, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Invitation, error)
	FindPending(ctx context.Context, email string, shopID primitive.ObjectID) (*models.Invitation, error)
	FindByTokenPrefix(ctx context.Context, prefix string) ([]models.Invitation, error)
	Transition(ctx context.Context, id primitive.ObjectID, from, to models.InvitationStatus, at time.Time, by *primitive.ObjectID) (*models.Invitation, error)
	ListByShop(ctx context.Context, shopID primitive.ObjectID, status models.InvitationStatus) ([]models.Invitation, error)
	ListByEmail(ctx context.Context, email string, status models.InvitationStatus) ([]models.Invitation, error)
}

// UserLookup reads identities. *userstore.Store satisfies it.
type UserLookup interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// ShopDirectory resolves shops. *shopstore.Store satisfies it.
type ShopDirectory interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Shop, error)
}

// Assigner creates the membership an accepted invitation grants.
// *membership.Manager satisfies it.
type Assigner interface {
	AssignAsSystem(ctx context.Context, userID, shopID primitive.ObjectID, role string, assignedBy primitive.ObjectID) (models.Assignment, error)
}

// Notice is what the notifier needs to tell the invitee.
type Notice struct {
	To          string
	ShopName    string
	Role        string
	InviterName string
	Message     string
	Link        string
	Token       string
	ExpiresAt   time.Time
}

// Notifier delivers invitation notices. Delivery is best-effort.
type Notifier interface {
	SendInvite(ctx context.Context, n Notice) error
}

// TxRunner runs fn atomically when the deployment allows it.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// Deps groups the collaborators of a Workflow. Notifier, Audit, Limiter, Tx,
// Log and Now may be nil.
type Deps struct {
	Store    Store
	Users    UserLookup
	Shops    ShopDirectory
	Members  Assigner
	Notifier Notifier
	Audit    *auditlog.Logger
	Limiter  *ratelimit.Limiter
	Tx       TxRunner
	Log      *zap.Logger
	Now      func() time.Time
}

// Config tunes a Workflow. Zero values select defaults.
type Config struct {
	TTL             time.Duration
	BaseURL         string
	BcryptCost      int
	MaxMessageRunes int
}

// Workflow runs the invitation state machine.
type Workflow struct {
	d   Deps
	cfg Config
}

// New creates a Workflow.
func New(d Deps, cfg Config) *Workflow {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.MaxMessageRunes <= 0 {
		cfg.MaxMessageRunes = DefaultMaxMessageRunes
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Workflow{d: d, cfg: cfg}
}

// validEmail accepts a bare address only; display-name forms and lists are
// rejected.
func validEmail(email string) bool {
	return validate.SimpleEmailValid(email) &&
		strings.Count(email, "@") == 1 &&
		!strings.ContainsAny(email, " \t<>,;\"")
}

func (w *Workflow) loadShop(ctx context.Context, op string, id primitive.ObjectID) (*models.Shop, error) {
	shop, err := w.d.Shops.GetByID(ctx, id)
	if errors.Is(err, shopstore.ErrNotFound) {
		return nil, apperr.NotFound(op, "shop")
	}
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	return shop, nil
}

func (w *Workflow) loadInvitation(ctx context.Context, op string, id primitive.ObjectID) (*models.Invitation, error) {
	inv, err := w.d.Store.GetByID(ctx, id)
	if errors.Is(err, invitationstore.ErrNotFound) {
		return nil, apperr.NotFound(op, "invitation")
	}
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	return inv, nil
}

func (w *Workflow) loadUser(ctx context.Context, op string, id primitive.ObjectID) (*models.User, error) {
	u, err := w.d.Users.GetByID(ctx, id)
	if errors.Is(err, userstore.ErrNotFound) {
		return nil, apperr.NotFound(op, "user")
	}
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	return u, nil
}

// expire persists the expired state of a stale pending invitation and
// returns the stored result. If another writer moved it first, the fresh
// copy is returned instead.
func (w *Workflow) expire(ctx context.Context, inv *models.Invitation) (*models.Invitation, error) {
	updated, err := w.d.Store.Transition(ctx, inv.ID, models.InvitationPending, models.InvitationExpired, w.d.Now(), nil)
	switch {
	case err == nil:
		w.d.Audit.InvitationExpired(ctx, inv.ID, inv.ShopID, inv.TargetEmail)
		return updated, nil
	case errors.Is(err, invitationstore.ErrStateChanged):
		return w.d.Store.GetByID(ctx, inv.ID)
	default:
		return nil, err
	}
}

// refresh applies lazy expiry to each invitation in list.
func (w *Workflow) refresh(ctx context.Context, list []models.Invitation) ([]models.Invitation, error) {
	now := w.d.Now()
	for i := range list {
		if !list[i].ExpiredAt(now) {
			continue
		}
		updated, err := w.expire(ctx, &list[i])
		if err != nil {
			return nil, err
		}
		list[i] = *updated
	}
	return list, nil
}

func (w *Workflow) link(token string) string {
	return w.cfg.BaseURL + "/invitations/token/" + token
}

// Invite creates a pending invitation for email to join shopID at role.
// The actor needs InviteStaff in the shop and may not grant more than their
// own authority. A live pending invitation for the same address and shop is
// AlreadyExists; a stale one is expired first so a new one can be issued.
// The notice is sent after the invitation is stored and its failure is only
// logged.
func (w *Workflow) Invite(ctx context.Context, actor *models.User, email string, shopID primitive.ObjectID, role, message string) (models.Invitation, error) {
	const op = "invitation.invite"

	email = normalize.Email(email)
	if !validEmail(email) {
		return models.Invitation{}, apperr.Invalid(op, "invalid_email", "a valid email address is required")
	}
	r, ok := shoppolicy.ParseRole(role)
	if !ok {
		return models.Invitation{}, apperr.Invalid(op, string(shoppolicy.ReasonUnknownRole), fmt.Sprintf("unrecognized role %q", role))
	}
	if d := shoppolicy.Evaluate(actor, shopID, shoppolicy.InviteStaff); !d.Allowed {
		if actor != nil {
			w.d.Audit.PermissionDenied(ctx, actor.ID, nil, shopID, audit.EventInvitationCreated, string(d.Reason))
		}
		return models.Invitation{}, membership.DecisionError(op, d)
	}
	if d := shoppolicy.CanGrantRole(actor, shopID, r, false); !d.Allowed {
		w.d.Audit.PermissionDenied(ctx, actor.ID, nil, shopID, audit.EventInvitationCreated, string(d.Reason))
		return models.Invitation{}, membership.DecisionError(op, d)
	}
	if ok, wait := w.d.Limiter.Reserve(actor.ID.Hex()); !ok {
		return models.Invitation{}, apperr.New(apperr.KindRateLimited, op,
			fmt.Sprintf("too many invitations; try again in %s", wait.Round(time.Second)))
	}

	shop, err := w.loadShop(ctx, op, shopID)
	if err != nil {
		return models.Invitation{}, err
	}

	existing, err := w.d.Users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if _, member := existing.Assignment(shopID); member {
			return models.Invitation{}, apperr.Exists(op, "this user is already a member of the shop")
		}
	case errors.Is(err, userstore.ErrNotFound):
	default:
		return models.Invitation{}, apperr.Internal(op, err)
	}

	pending, err := w.d.Store.FindPending(ctx, email, shopID)
	switch {
	case err == nil:
		if !pending.ExpiredAt(w.d.Now()) {
			return models.Invitation{}, apperr.Exists(op, "an invitation is already pending for this email")
		}
		if _, err := w.expire(ctx, pending); err != nil {
			return models.Invitation{}, apperr.Internal(op, err)
		}
	case errors.Is(err, invitationstore.ErrNotFound):
	default:
		return models.Invitation{}, apperr.Internal(op, err)
	}

	token := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), w.cfg.BcryptCost)
	if err != nil {
		return models.Invitation{}, apperr.Internal(op, err)
	}

	now := w.d.Now()
	inv, err := w.d.Store.Create(ctx, models.Invitation{
		TargetEmail: email,
		ShopID:      shop.ID,
		ShopName:    shop.Name,
		Role:        string(r),
		InvitedBy:   actor.ID,
		Message:     htmlsanitize.PlainText(message, w.cfg.MaxMessageRunes),
		Status:      models.InvitationPending,
		TokenPrefix: tokenPrefix(token),
		TokenHash:   string(hash),
		CreatedAt:   now,
		ExpiresAt:   now.Add(w.cfg.TTL),
	})
	if errors.Is(err, invitationstore.ErrDuplicatePending) {
		return models.Invitation{}, apperr.Exists(op, "an invitation is already pending for this email")
	}
	if err != nil {
		return models.Invitation{}, apperr.Internal(op, err)
	}

	w.d.Audit.InvitationCreated(ctx, actor.ID, inv.ID, inv.ShopID, inv.TargetEmail, inv.Role)
	w.notify(ctx, inv, actor, token)
	return inv, nil
}

func (w *Workflow) notify(ctx context.Context, inv models.Invitation, actor *models.User, token string) {
	if w.d.Notifier == nil {
		return
	}
	err := w.d.Notifier.SendInvite(ctx, Notice{
		To:          inv.TargetEmail,
		ShopName:    inv.ShopName,
		Role:        inv.Role,
		InviterName: actor.FullName,
		Message:     inv.Message,
		Link:        w.link(token),
		Token:       token,
		ExpiresAt:   inv.ExpiresAt,
	})
	if err != nil {
		w.d.Log.Warn("invitation notice not delivered",
			zap.String("invitation_id", inv.ID.Hex()),
			zap.String("email", inv.TargetEmail),
			zap.Error(err))
	}
}

// respondable loads the invitation and the responding user and runs the
// checks shared by Accept and Reject. An expired invitation is persisted as
// expired before InvalidState is returned.
func (w *Workflow) respondable(ctx context.Context, op string, invitationID, userID primitive.ObjectID) (*models.Invitation, *models.User, error) {
	inv, err := w.loadInvitation(ctx, op, invitationID)
	if err != nil {
		return nil, nil, err
	}
	if inv.Status != models.InvitationPending {
		return nil, nil, apperr.State(op, fmt.Sprintf("invitation is already %s", inv.Status))
	}
	if inv.ExpiredAt(w.d.Now()) {
		if _, err := w.expire(ctx, inv); err != nil {
			return nil, nil, apperr.Internal(op, err)
		}
		return nil, nil, apperr.State(op, "invitation has expired")
	}

	u, err := w.loadUser(ctx, op, userID)
	if err != nil {
		return nil, nil, err
	}
	if u.Blocked {
		return nil, nil, apperr.Denied(op, string(shoppolicy.ReasonBlocked), "your account is blocked")
	}
	if normalize.Email(u.Email) != inv.TargetEmail {
		return nil, nil, apperr.Denied(op, "email_mismatch", "this invitation was sent to a different email address")
	}
	return inv, u, nil
}

func stateChanged(op string) error {
	return apperr.State(op, "invitation was already answered")
}

// Accept answers a pending invitation on behalf of userID and creates the
// assignment it grants. The invitation itself is the authorization. If the
// user already holds an assignment for the shop, that assignment is
// returned and no second one is made.
func (w *Workflow) Accept(ctx context.Context, invitationID, userID primitive.ObjectID) (models.Assignment, error) {
	const op = "invitation.accept"

	inv, u, err := w.respondable(ctx, op, invitationID, userID)
	if err != nil {
		return models.Assignment{}, err
	}

	var granted models.Assignment
	run := func(ctx context.Context) error {
		_, err := w.d.Store.Transition(ctx, inv.ID, models.InvitationPending, models.InvitationAccepted, w.d.Now(), &userID)
		if errors.Is(err, invitationstore.ErrStateChanged) {
			return stateChanged(op)
		}
		if err != nil {
			return apperr.Internal(op, err)
		}

		if a, ok := u.Assignment(inv.ShopID); ok {
			granted = a
			return nil
		}
		a, err := w.d.Members.AssignAsSystem(ctx, userID, inv.ShopID, inv.Role, inv.InvitedBy)
		if apperr.KindOf(err) == apperr.KindAlreadyExists {
			// Assigned between our read and the write.
			fresh, lerr := w.loadUser(ctx, op, userID)
			if lerr == nil {
				if existing, ok := fresh.Assignment(inv.ShopID); ok {
					granted = existing
					return nil
				}
			}
		}
		if err != nil {
			w.reopen(ctx, inv.ID)
			return err
		}
		granted = a
		return nil
	}

	if w.d.Tx != nil {
		err = w.d.Tx(ctx, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return models.Assignment{}, err
	}

	w.d.Audit.InvitationAccepted(ctx, userID, inv.ID, inv.ShopID, granted.Role)
	return granted, nil
}

// reopen undoes a claimed acceptance whose assignment could not be written.
func (w *Workflow) reopen(ctx context.Context, id primitive.ObjectID) {
	if _, err := w.d.Store.Transition(ctx, id, models.InvitationAccepted, models.InvitationPending, w.d.Now(), nil); err != nil {
		w.d.Log.Error("could not reopen invitation after failed assignment",
			zap.String("invitation_id", id.Hex()),
			zap.Error(err))
	}
}

// Reject answers a pending invitation with a refusal.
func (w *Workflow) Reject(ctx context.Context, invitationID, userID primitive.ObjectID) error {
	const op = "invitation.reject"

	inv, _, err := w.respondable(ctx, op, invitationID, userID)
	if err != nil {
		return err
	}
	_, err = w.d.Store.Transition(ctx, inv.ID, models.InvitationPending, models.InvitationRejected, w.d.Now(), &userID)
	if errors.Is(err, invitationstore.ErrStateChanged) {
		return stateChanged(op)
	}
	if err != nil {
		return apperr.Internal(op, err)
	}
	w.d.Audit.InvitationRejected(ctx, userID, inv.ID, inv.ShopID)
	return nil
}

// ListForShop returns every invitation issued for shopID, newest first.
// The actor needs InviteStaff in the shop.
func (w *Workflow) ListForShop(ctx context.Context, actor *models.User, shopID primitive.ObjectID) ([]models.Invitation, error) {
	const op = "invitation.list_shop"

	if d := shoppolicy.Evaluate(actor, shopID, shoppolicy.InviteStaff); !d.Allowed {
		return nil, membership.DecisionError(op, d)
	}
	list, err := w.d.Store.ListByShop(ctx, shopID, "")
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	list, err = w.refresh(ctx, list)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	return list, nil
}

// ListForUser returns the invitations addressed to user's email.
func (w *Workflow) ListForUser(ctx context.Context, user *models.User) ([]models.Invitation, error) {
	const op = "invitation.list_mine"

	if user == nil {
		return nil, membership.DecisionError(op, shoppolicy.Decision{Reason: shoppolicy.ReasonNoActor})
	}
	list, err := w.d.Store.ListByEmail(ctx, user.Email, "")
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	list, err = w.refresh(ctx, list)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	return list, nil
}

// GetByToken resolves the token carried by an invitation link.
func (w *Workflow) GetByToken(ctx context.Context, token string) (*models.Invitation, error) {
	const op = "invitation.get_by_token"

	parsed, err := uuid.Parse(strings.TrimSpace(token))
	if err != nil {
		return nil, apperr.NotFound(op, "invitation")
	}
	token = parsed.String()

	candidates, err := w.d.Store.FindByTokenPrefix(ctx, tokenPrefix(token))
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	for i := range candidates {
		inv := &candidates[i]
		if bcrypt.CompareHashAndPassword([]byte(inv.TokenHash), []byte(token)) != nil {
			continue
		}
		if inv.ExpiredAt(w.d.Now()) {
			if inv, err = w.expire(ctx, inv); err != nil {
				return nil, apperr.Internal(op, err)
			}
		}
		return inv, nil
	}
	return nil, apperr.NotFound(op, "invitation")
}

func tokenPrefix(token string) string {
	raw := strings.ReplaceAll(token, "-", "")
	if len(raw) > tokenPrefixLen {
		raw = raw[:tokenPrefixLen]
	}
	return raw
}
