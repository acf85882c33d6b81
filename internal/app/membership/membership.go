// Package membership creates, updates and removes shop assignments.
//
// Every mutation consults shoppolicy before touching the user record, and
// every write is a version compare-and-swap on the whole assignment list,
// retried a bounded number of times when another writer got there first.
package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/shopdesk/internal/app/policy/shoppolicy"
	"github.com/dalemusser/shopdesk/internal/app/store/audit"
	shopstore "github.com/dalemusser/shopdesk/internal/app/store/shops"
	userstore "github.com/dalemusser/shopdesk/internal/app/store/users"
	"github.com/dalemusser/shopdesk/internal/app/system/apperr"
	"github.com/dalemusser/shopdesk/internal/app/system/auditlog"
	"github.com/dalemusser/shopdesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// MaxAttempts bounds the compare-and-swap retry loop.
const MaxAttempts = 10

// UserStore is the identity store the manager reads and writes through.
// *userstore.Store satisfies it.
type UserStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	UpdateMemberships(ctx context.Context, id primitive.ObjectID, expectedVersion int64, assigned []models.Assignment, current *primitive.ObjectID) (*models.User, error)
	ListByShop(ctx context.Context, shopID primitive.ObjectID) ([]models.User, error)
}

// ShopDirectory resolves shop names. *shopstore.Store satisfies it.
type ShopDirectory interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Shop, error)
}

// Invalidator drops cached copies of a user. *shoppolicy.Cache satisfies it.
type Invalidator interface {
	Invalidate(id primitive.ObjectID)
}

// ErrContention is the cause reported when the retry budget is exhausted.
var ErrContention = errors.New("too many concurrent updates to user")

// Manager applies membership mutations.
type Manager struct {
	users UserStore
	shops ShopDirectory
	audit *auditlog.Logger
	cache Invalidator
	log   *zap.Logger
	now   func() time.Time
}

// New creates a Manager. audit and cache may be nil.
func New(users UserStore, shops ShopDirectory, auditLog *auditlog.Logger, cache Invalidator, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		users: users,
		shops: shops,
		audit: auditLog,
		cache: cache,
		log:   logger,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) invalidate(id primitive.ObjectID) {
	if m.cache != nil {
		m.cache.Invalidate(id)
	}
}

var reasonMessages = map[shoppolicy.Reason]string{
	shoppolicy.ReasonNoActor:          "not signed in",
	shoppolicy.ReasonBlocked:          "your account is blocked",
	shoppolicy.ReasonNoAssignment:     "you are not a member of this shop",
	shoppolicy.ReasonUnknownRole:      "unrecognized role",
	shoppolicy.ReasonNotGranted:       "your role does not allow this action",
	shoppolicy.ReasonSelfRoleChange:   "you cannot change your own role",
	shoppolicy.ReasonSelfDelete:       "you cannot delete your own account",
	shoppolicy.ReasonNotShopAdmin:     "only shop owners and admins can change roles",
	shoppolicy.ReasonTargetIsOwner:    "only a root admin can change a shop owner",
	shoppolicy.ReasonOwnerGrant:       "only a root admin can grant shop ownership",
	shoppolicy.ReasonAdminGrant:       "only a shop owner can grant the admin role",
	shoppolicy.ReasonExceedsAuthority: "you cannot grant a role above your own",
	shoppolicy.ReasonNotGlobalAdmin:   "only administrators can do this",
}

// DecisionError converts a denied Decision into the matching apperr:
// self-protection and unknown roles are validation errors, everything else
// is PermissionDenied.
func DecisionError(op string, d shoppolicy.Decision) error {
	msg := reasonMessages[d.Reason]
	if msg == "" {
		msg = "permission denied"
	}
	if d.SelfProtection() || d.InvalidRole() {
		return apperr.Invalid(op, string(d.Reason), msg)
	}
	return apperr.Denied(op, string(d.Reason), msg)
}

func actorID(actor *models.User) primitive.ObjectID {
	if actor == nil {
		return primitive.NilObjectID
	}
	return actor.ID
}

func parseRole(op, role string) (shoppolicy.Role, error) {
	r, ok := shoppolicy.ParseRole(role)
	if !ok {
		return "", apperr.Invalid(op, string(shoppolicy.ReasonUnknownRole), fmt.Sprintf("unrecognized role %q", role))
	}
	return r, nil
}

func (m *Manager) loadUser(ctx context.Context, op string, id primitive.ObjectID) (*models.User, error) {
	u, err := m.users.GetByID(ctx, id)
	if errors.Is(err, userstore.ErrNotFound) {
		return nil, apperr.NotFound(op, "user")
	}
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	return u, nil
}

func (m *Manager) loadShop(ctx context.Context, op string, id primitive.ObjectID) (*models.Shop, error) {
	s, err := m.shops.GetByID(ctx, id)
	if errors.Is(err, shopstore.ErrNotFound) {
		return nil, apperr.NotFound(op, "shop")
	}
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	return s, nil
}

// mutate runs the read-modify-write loop for one user. change receives a
// fresh copy of the user and returns the new list and current shop, or an
// error to abort. A nil list with a nil error means nothing to write.
func (m *Manager) mutate(ctx context.Context, op string, userID primitive.ObjectID,
	change func(u *models.User) ([]models.Assignment, *primitive.ObjectID, error)) (*models.User, error) {

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		u, err := m.loadUser(ctx, op, userID)
		if err != nil {
			return nil, err
		}
		list, current, err := change(u)
		if err != nil {
			return nil, err
		}
		if list == nil {
			return u, nil
		}

		updated, err := m.users.UpdateMemberships(ctx, u.ID, u.Version, list, current)
		switch {
		case err == nil:
			m.invalidate(u.ID)
			return updated, nil
		case errors.Is(err, userstore.ErrVersionConflict):
			m.log.Debug("membership write lost race; retrying",
				zap.String("op", op),
				zap.String("user_id", userID.Hex()),
				zap.Int("attempt", attempt))
			continue
		case errors.Is(err, userstore.ErrNotFound):
			return nil, apperr.NotFound(op, "user")
		default:
			return nil, apperr.Internal(op, err)
		}
	}
	m.log.Warn("membership write gave up after retries",
		zap.String("op", op),
		zap.String("user_id", userID.Hex()))
	return nil, apperr.Internal(op, ErrContention)
}

func without(list []models.Assignment, shopID primitive.ObjectID) []models.Assignment {
	out := make([]models.Assignment, 0, len(list))
	for _, a := range list {
		if a.ShopID != shopID {
			out = append(out, a)
		}
	}
	return out
}

func replaced(list []models.Assignment, a models.Assignment) []models.Assignment {
	out := make([]models.Assignment, len(list))
	for i, x := range list {
		if x.ShopID == a.ShopID {
			x = a
		}
		out[i] = x
	}
	return out
}

// AssignUserToShop gives userID a role in shopID. The actor needs
// InviteStaff in the shop (or root) and may grant no more authority than
// their own. An existing assignment is never overwritten.
func (m *Manager) AssignUserToShop(ctx context.Context, actor *models.User, userID, shopID primitive.ObjectID, role string, isOwner bool) (models.Assignment, error) {
	const op = "membership.assign"

	r, err := parseRole(op, role)
	if err != nil {
		return models.Assignment{}, err
	}
	if d := shoppolicy.Evaluate(actor, shopID, shoppolicy.InviteStaff); !d.Allowed {
		m.audit.PermissionDenied(ctx, actorID(actor), &userID, shopID, audit.EventAssignmentCreated, string(d.Reason))
		return models.Assignment{}, DecisionError(op, d)
	}
	if d := shoppolicy.CanGrantRole(actor, shopID, r, isOwner); !d.Allowed {
		m.audit.PermissionDenied(ctx, actor.ID, &userID, shopID, audit.EventAssignmentCreated, string(d.Reason))
		return models.Assignment{}, DecisionError(op, d)
	}

	by := actor.ID
	a, err := m.assign(ctx, op, userID, shopID, r, isOwner, by)
	if err != nil {
		return models.Assignment{}, err
	}
	m.audit.AssignmentCreated(ctx, &by, userID, shopID, string(a.Role), a.IsOwner, "")
	return a, nil
}

// AssignAsSystem creates an assignment without a policy check. The caller
// is the authorization (an accepted invitation). assignedBy records who
// originated the grant.
func (m *Manager) AssignAsSystem(ctx context.Context, userID, shopID primitive.ObjectID, role string, assignedBy primitive.ObjectID) (models.Assignment, error) {
	const op = "membership.assign_system"

	r, err := parseRole(op, role)
	if err != nil {
		return models.Assignment{}, err
	}
	a, err := m.assign(ctx, op, userID, shopID, r, false, assignedBy)
	if err != nil {
		return models.Assignment{}, err
	}
	m.audit.AssignmentCreated(ctx, nil, userID, shopID, string(a.Role), a.IsOwner, "invitation")
	return a, nil
}

func (m *Manager) assign(ctx context.Context, op string, userID, shopID primitive.ObjectID, role shoppolicy.Role, isOwner bool, by primitive.ObjectID) (models.Assignment, error) {
	shop, err := m.loadShop(ctx, op, shopID)
	if err != nil {
		return models.Assignment{}, err
	}

	var created models.Assignment
	_, err = m.mutate(ctx, op, userID, func(u *models.User) ([]models.Assignment, *primitive.ObjectID, error) {
		if _, exists := u.Assignment(shopID); exists {
			return nil, nil, apperr.Exists(op, "user already has an assignment for this shop")
		}
		created = models.Assignment{
			ShopID:     shopID,
			ShopName:   shop.Name,
			Role:       string(role),
			IsOwner:    isOwner || role == shoppolicy.RoleOwner,
			AssignedAt: m.now(),
			AssignedBy: by,
		}
		list := append(append([]models.Assignment{}, u.AssignedShops...), created)
		current := u.CurrentShop
		if current == nil {
			id := shopID
			current = &id
		}
		return list, current, nil
	})
	if err != nil {
		return models.Assignment{}, err
	}
	return created, nil
}

// UpdateShopRole changes the role of userID's existing assignment in
// shopID. Only the role changes; assignedAt and assignedBy are kept. The
// shop name snapshot is refreshed from the shop directory.
func (m *Manager) UpdateShopRole(ctx context.Context, actor *models.User, userID, shopID primitive.ObjectID, newRole string) (models.Assignment, error) {
	const op = "membership.update_role"

	r, err := parseRole(op, newRole)
	if err != nil {
		return models.Assignment{}, err
	}

	var (
		previous string
		result   models.Assignment
		denial   *shoppolicy.Decision
	)
	_, err = m.mutate(ctx, op, userID, func(target *models.User) ([]models.Assignment, *primitive.ObjectID, error) {
		if d := shoppolicy.CanChangeRole(actor, target, shopID); !d.Allowed {
			denial = &d
			return nil, nil, DecisionError(op, d)
		}
		a, ok := target.Assignment(shopID)
		if !ok {
			return nil, nil, apperr.NotFound(op, "assignment")
		}
		if d := shoppolicy.CanGrantRole(actor, shopID, r, a.IsOwner); !d.Allowed {
			denial = &d
			return nil, nil, DecisionError(op, d)
		}
		shop, err := m.loadShop(ctx, op, shopID)
		if err != nil {
			return nil, nil, err
		}

		previous = a.Role
		a.Role = string(r)
		a.ShopName = shop.Name
		result = a
		return replaced(target.AssignedShops, a), target.CurrentShop, nil
	})
	if err != nil {
		if denial != nil {
			m.audit.PermissionDenied(ctx, actorID(actor), &userID, shopID, audit.EventRoleChanged, string(denial.Reason))
		}
		return models.Assignment{}, err
	}
	m.audit.RoleChanged(ctx, actor.ID, userID, shopID, previous, result.Role)
	return result, nil
}

// RemoveAssignment deletes userID's assignment in shopID. The actor needs
// RemoveStaff (or root); owner assignments can only be removed by root. If
// the removed shop was current, the first remaining assignment becomes
// current, or none.
func (m *Manager) RemoveAssignment(ctx context.Context, actor *models.User, userID, shopID primitive.ObjectID) error {
	const op = "membership.remove"

	if d := shoppolicy.Evaluate(actor, shopID, shoppolicy.RemoveStaff); !d.Allowed {
		m.audit.PermissionDenied(ctx, actorID(actor), &userID, shopID, audit.EventAssignmentRemoved, string(d.Reason))
		return DecisionError(op, d)
	}

	var removed models.Assignment
	_, err := m.mutate(ctx, op, userID, func(u *models.User) ([]models.Assignment, *primitive.ObjectID, error) {
		a, ok := u.Assignment(shopID)
		if !ok {
			return nil, nil, apperr.NotFound(op, "assignment")
		}
		if a.IsOwner && !actor.IsRootAdmin {
			return nil, nil, DecisionError(op, shoppolicy.Decision{Reason: shoppolicy.ReasonTargetIsOwner})
		}
		removed = a

		list := without(u.AssignedShops, shopID)
		current := u.CurrentShop
		if current != nil && *current == shopID {
			current = nil
			if len(list) > 0 {
				id := list[0].ShopID
				current = &id
			}
		}
		return list, current, nil
	})
	if err != nil {
		return err
	}
	m.audit.AssignmentRemoved(ctx, actor.ID, userID, shopID, removed.Role)
	return nil
}

// SetCurrentShop switches the actor's current shop. The shop must be one of
// the actor's assignments.
func (m *Manager) SetCurrentShop(ctx context.Context, actor *models.User, shopID primitive.ObjectID) (*models.User, error) {
	const op = "membership.set_current_shop"

	if actor == nil {
		return nil, DecisionError(op, shoppolicy.Decision{Reason: shoppolicy.ReasonNoActor})
	}
	changed := false
	u, err := m.mutate(ctx, op, actor.ID, func(u *models.User) ([]models.Assignment, *primitive.ObjectID, error) {
		if _, ok := u.Assignment(shopID); !ok {
			return nil, nil, apperr.Invalid(op, string(shoppolicy.ReasonNoAssignment), "you are not a member of this shop")
		}
		if u.CurrentShop != nil && *u.CurrentShop == shopID {
			return nil, nil, nil
		}
		changed = true
		id := shopID
		return u.AssignedShops, &id, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		m.audit.CurrentShopChanged(ctx, actor.ID, shopID)
	}
	return u, nil
}

// Members lists the users assigned to shopID. The actor needs ManageStaff.
func (m *Manager) Members(ctx context.Context, actor *models.User, shopID primitive.ObjectID) ([]models.User, error) {
	const op = "membership.members"

	if d := shoppolicy.Evaluate(actor, shopID, shoppolicy.ManageStaff); !d.Allowed {
		return nil, DecisionError(op, d)
	}
	users, err := m.users.ListByShop(ctx, shopID)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	return users, nil
}
