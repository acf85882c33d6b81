// Package shoppolicy is the single authorization policy for shop-scoped
// actions. Every mutation entry point consults it; handlers never inspect
// roles or the root-admin flag directly.
//
// Authorization rules:
//   - Root admins are allowed everything, in every shop
//   - Everyone else needs an assignment for the shop; no assignment, no access
//   - Within a shop, the assignment's role is looked up in RolePermissions
//   - An assignment flagged IsOwner carries owner authority
//   - Unknown role strings grant nothing and are reported as such
//
// The functions here are pure: no I/O and no errors. They return a Decision
// with a reason code so callers can explain a denial.
package shoppolicy

import (
	"github.com/dalemusser/shopdesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Reason explains a Decision.
type Reason string

const (
	ReasonRootAdmin        Reason = "root_admin"
	ReasonGranted          Reason = "granted"
	ReasonNoActor          Reason = "no_actor"
	ReasonBlocked          Reason = "blocked"
	ReasonNoAssignment     Reason = "no_assignment"
	ReasonUnknownRole      Reason = "unknown_role"
	ReasonNotGranted       Reason = "capability_not_granted"
	ReasonSelfRoleChange   Reason = "self_role_change"
	ReasonSelfDelete       Reason = "self_delete"
	ReasonNotShopAdmin     Reason = "not_shop_admin"
	ReasonTargetIsOwner    Reason = "target_is_owner"
	ReasonOwnerGrant       Reason = "owner_grant_requires_root"
	ReasonAdminGrant       Reason = "admin_grant_requires_owner"
	ReasonExceedsAuthority Reason = "exceeds_own_authority"
	ReasonNotGlobalAdmin   Reason = "not_global_admin"
)

// Decision is the outcome of a policy check.
type Decision struct {
	Allowed bool
	Reason  Reason
}

func allow(r Reason) Decision { return Decision{Allowed: true, Reason: r} }
func deny(r Reason) Decision  { return Decision{Allowed: false, Reason: r} }

// SelfProtection reports whether the denial guards the actor from acting on
// their own account. These are surfaced as validation errors, not as
// authorization failures.
func (d Decision) SelfProtection() bool {
	return !d.Allowed && (d.Reason == ReasonSelfRoleChange || d.Reason == ReasonSelfDelete)
}

// InvalidRole reports whether the denial was caused by an unrecognized role.
func (d Decision) InvalidRole() bool {
	return !d.Allowed && d.Reason == ReasonUnknownRole
}

// EffectiveRole resolves the role u holds in shopID. IsOwner lifts the
// assignment to owner authority. ok is false when there is no assignment or
// the stored role is not recognized; reason says which.
func EffectiveRole(u *models.User, shopID primitive.ObjectID) (role Role, reason Reason, ok bool) {
	a, found := u.Assignment(shopID)
	if !found {
		return "", ReasonNoAssignment, false
	}
	r, valid := ParseRole(a.Role)
	if !valid {
		return "", ReasonUnknownRole, false
	}
	if a.IsOwner {
		return RoleOwner, ReasonGranted, true
	}
	return r, ReasonGranted, true
}

// IsShopOwner reports whether u owns shopID, either through the IsOwner
// flag or by holding the owner role.
func IsShopOwner(u *models.User, shopID primitive.ObjectID) bool {
	a, ok := u.Assignment(shopID)
	if !ok {
		return false
	}
	if a.IsOwner {
		return true
	}
	r, valid := ParseRole(a.Role)
	return valid && r == RoleOwner
}

// Evaluate decides whether actor holds capability c in shopID.
func Evaluate(actor *models.User, shopID primitive.ObjectID, c Capability) Decision {
	if actor == nil {
		return deny(ReasonNoActor)
	}
	if actor.IsRootAdmin {
		return allow(ReasonRootAdmin)
	}
	if actor.Blocked {
		return deny(ReasonBlocked)
	}
	role, reason, ok := EffectiveRole(actor, shopID)
	if !ok {
		return deny(reason)
	}
	if !Grants(role, c) {
		return deny(ReasonNotGranted)
	}
	return allow(ReasonGranted)
}

// HasPermission is the boolean form of Evaluate.
func HasPermission(actor *models.User, shopID primitive.ObjectID, c Capability) bool {
	return Evaluate(actor, shopID, c).Allowed
}

// CanChangeRole decides whether editor may change target's role in shopID.
//
//   - Non-root editors can never change their own role
//   - Non-root editors must be an owner or admin of the shop
//   - Owners' roles can only be changed by root
//
// The role being granted is checked separately by CanGrantRole.
func CanChangeRole(editor, target *models.User, shopID primitive.ObjectID) Decision {
	if editor == nil {
		return deny(ReasonNoActor)
	}
	if target != nil && target.ID == editor.ID && !editor.IsRootAdmin {
		return deny(ReasonSelfRoleChange)
	}
	if editor.IsRootAdmin {
		return allow(ReasonRootAdmin)
	}
	if editor.Blocked {
		return deny(ReasonBlocked)
	}
	role, reason, ok := EffectiveRole(editor, shopID)
	if !ok {
		return deny(reason)
	}
	if role != RoleOwner && role != RoleAdmin {
		return deny(ReasonNotShopAdmin)
	}
	if IsShopOwner(target, shopID) {
		return deny(ReasonTargetIsOwner)
	}
	return allow(ReasonGranted)
}

// CanGrantRole decides whether actor may hand out role (and the owner flag)
// in shopID. A grant never exceeds the actor's own authority:
//
//   - Only root grants owner or sets the owner flag
//   - Admin is granted only by an owner of the shop or root
//   - Anything else must rank at or below the actor's own role
func CanGrantRole(actor *models.User, shopID primitive.ObjectID, role Role, isOwner bool) Decision {
	if !role.Valid() {
		return deny(ReasonUnknownRole)
	}
	if actor == nil {
		return deny(ReasonNoActor)
	}
	if actor.IsRootAdmin {
		return allow(ReasonRootAdmin)
	}
	if actor.Blocked {
		return deny(ReasonBlocked)
	}
	if role == RoleOwner || isOwner {
		return deny(ReasonOwnerGrant)
	}
	own, reason, ok := EffectiveRole(actor, shopID)
	if !ok {
		return deny(reason)
	}
	if role == RoleAdmin && own != RoleOwner {
		return deny(ReasonAdminGrant)
	}
	if role.Rank() > own.Rank() {
		return deny(ReasonExceedsAuthority)
	}
	return allow(ReasonGranted)
}

// CanDeleteUser decides whether editor may delete target's account.
// Deletion itself is performed outside this core.
func CanDeleteUser(editor, target *models.User) Decision {
	if editor == nil {
		return deny(ReasonNoActor)
	}
	if target != nil && target.ID == editor.ID {
		return deny(ReasonSelfDelete)
	}
	if editor.IsRootAdmin {
		return allow(ReasonRootAdmin)
	}
	if editor.Blocked {
		return deny(ReasonBlocked)
	}
	if g, ok := ParseGlobalRole(editor.GlobalRole); ok && g == GlobalAdmin {
		return allow(ReasonGranted)
	}
	return deny(ReasonNotGlobalAdmin)
}
