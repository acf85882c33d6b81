package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/shopdesk/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fixtures provides helper methods for creating test data in MongoDB.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateShop inserts an active shop with the given name.
func (f *Fixtures) CreateShop(ctx context.Context, name string) models.Shop {
	f.t.Helper()
	shop := NewShop(name)
	if _, err := f.db.Collection("shops").InsertOne(ctx, shop); err != nil {
		f.t.Fatalf("failed to create test shop: %v", err)
	}
	return shop
}

// CreateUser inserts a user with no assignments.
func (f *Fixtures) CreateUser(ctx context.Context, fullName, email string) models.User {
	f.t.Helper()
	u := NewUser(fullName, email)
	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

// CreateRootAdmin inserts a root admin user.
func (f *Fixtures) CreateRootAdmin(ctx context.Context, email string) models.User {
	f.t.Helper()
	u := NewRootAdmin(email)
	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("failed to create root admin: %v", err)
	}
	return u
}

/* -------------------------------------------------------------------------- */
/* In-memory builders                                                          */
/* -------------------------------------------------------------------------- */

// NewShop builds an active shop value without storing it.
func NewShop(name string) models.Shop {
	now := time.Now().UTC()
	return models.Shop{
		ID:        primitive.NewObjectID(),
		Name:      name,
		NameCI:    text.Fold(name),
		Status:    models.ShopActive,
		Settings:  models.ShopSettings{Currency: "USD", TimeZone: "America/Chicago"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewUser builds a user value with no assignments.
func NewUser(fullName, email string) models.User {
	now := time.Now().UTC()
	return models.User{
		ID:            primitive.NewObjectID(),
		FullName:      fullName,
		Email:         email,
		GlobalRole:    "viewer",
		AssignedShops: []models.Assignment{},
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NewRootAdmin builds a root admin value.
func NewRootAdmin(email string) models.User {
	u := NewUser("Root Admin", email)
	u.IsRootAdmin = true
	u.GlobalRole = "admin"
	return u
}

// WithAssignment returns u with an assignment for shop appended. The first
// assignment also becomes the current shop.
func WithAssignment(u models.User, shop models.Shop, role string, isOwner bool) models.User {
	u.AssignedShops = append(append([]models.Assignment(nil), u.AssignedShops...), models.Assignment{
		ShopID:     shop.ID,
		ShopName:   shop.Name,
		Role:       role,
		IsOwner:    isOwner,
		AssignedAt: time.Now().UTC(),
	})
	if u.CurrentShop == nil {
		id := shop.ID
		u.CurrentShop = &id
	}
	return u
}
