// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is an account that can act inside one or more shops.
//
// NOTE:
//   - Shop memberships are embedded in AssignedShops. Order matters: the
//     first entry is the user's default scope.
//   - CurrentShop must reference an entry in AssignedShops or be nil.
//   - Version is bumped on every membership write and guards
//     read-modify-write updates of the embedded list.
type User struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	FullName      string              `bson:"full_name" json:"full_name"`
	Email         string              `bson:"email" json:"email"` // normalized (lowercase, trimmed)
	GlobalRole    string              `bson:"global_role" json:"global_role"` // viewer | staff | sales | manager | admin
	IsRootAdmin   bool                `bson:"is_root_admin" json:"is_root_admin"`
	Blocked       bool                `bson:"blocked" json:"blocked"`
	AssignedShops []Assignment        `bson:"assigned_shops" json:"assigned_shops"`
	CurrentShop   *primitive.ObjectID `bson:"current_shop,omitempty" json:"current_shop,omitempty"`
	Version       int64               `bson:"version" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Assignment binds a user to a shop with a role.
// ShopName is a snapshot taken when the assignment was written and may lag
// behind the shop's canonical name until the next role update.
type Assignment struct {
	ShopID     primitive.ObjectID `bson:"shop_id" json:"shop_id"`
	ShopName   string             `bson:"shop_name" json:"shop_name"`
	Role       string             `bson:"role" json:"role"` // owner | admin | manager | staff | sales | viewer
	IsOwner    bool               `bson:"is_owner" json:"is_owner"`
	AssignedAt time.Time          `bson:"assigned_at" json:"assigned_at"`
	AssignedBy primitive.ObjectID `bson:"assigned_by" json:"assigned_by"`
}

// Assignment returns the user's assignment for shopID, if any.
func (u *User) Assignment(shopID primitive.ObjectID) (Assignment, bool) {
	if u == nil {
		return Assignment{}, false
	}
	for _, a := range u.AssignedShops {
		if a.ShopID == shopID {
			return a, true
		}
	}
	return Assignment{}, false
}

// ShopIDs returns the ids of every shop the user is assigned to, in order.
func (u *User) ShopIDs() []primitive.ObjectID {
	if u == nil {
		return nil
	}
	out := make([]primitive.ObjectID, 0, len(u.AssignedShops))
	for _, a := range u.AssignedShops {
		out = append(out, a.ShopID)
	}
	return out
}
