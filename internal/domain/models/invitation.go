// internal/domain/models/invitation.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InvitationStatus is the lifecycle state of an invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
	InvitationExpired  InvitationStatus = "expired"
)

// Terminal reports whether no further transition is possible from s.
func (s InvitationStatus) Terminal() bool {
	return s == InvitationAccepted || s == InvitationRejected || s == InvitationExpired
}

// Invitation is an email-addressed offer of shop membership.
type Invitation struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TargetEmail string             `bson:"target_email" json:"target_email"` // normalized
	ShopID      primitive.ObjectID `bson:"shop_id" json:"shop_id"`
	ShopName    string             `bson:"shop_name" json:"shop_name"`
	Role        string             `bson:"role" json:"role"`
	InvitedBy   primitive.ObjectID `bson:"invited_by" json:"invited_by"`
	Message     string             `bson:"message,omitempty" json:"message,omitempty"`
	Status      InvitationStatus   `bson:"status" json:"status"`

	// The link token is never stored in clear. TokenPrefix narrows the
	// lookup and TokenHash is a bcrypt hash of the full token.
	TokenPrefix string `bson:"token_prefix" json:"-"`
	TokenHash   string `bson:"token_hash" json:"-"`

	CreatedAt   time.Time           `bson:"created_at" json:"created_at"`
	ExpiresAt   time.Time           `bson:"expires_at" json:"expires_at"`
	RespondedAt *time.Time          `bson:"responded_at,omitempty" json:"responded_at,omitempty"`
	RespondedBy *primitive.ObjectID `bson:"responded_by,omitempty" json:"responded_by,omitempty"`
}

// ExpiredAt reports whether a pending invitation has outlived its expiry at now.
func (inv Invitation) ExpiredAt(now time.Time) bool {
	return inv.Status == InvitationPending && now.After(inv.ExpiresAt)
}
