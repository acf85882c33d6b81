// internal/domain/models/shop.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Shop statuses.
const (
	ShopActive    = "active"
	ShopInactive  = "inactive"
	ShopSuspended = "suspended"
)

// Shop is a tenant. Shops are owned by the shop directory; the
// authorization core only reads ID and Name.
type Shop struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name     string             `bson:"name" json:"name"`
	NameCI   string             `bson:"name_ci" json:"-"`
	Status   string             `bson:"status" json:"status"`
	Settings ShopSettings       `bson:"settings" json:"settings"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// ShopSettings holds per-shop presentation settings.
type ShopSettings struct {
	Currency string `bson:"currency" json:"currency"`
	TimeZone string `bson:"time_zone" json:"time_zone"`
	Hours    string `bson:"hours,omitempty" json:"hours,omitempty"`
}
