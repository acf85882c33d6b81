package userstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/shopdesk/internal/app/system/normalize"
	"github.com/dalemusser/shopdesk/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrNotFound is returned when no user matches.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned when attempting to create a user with an email that already exists.
	ErrDuplicateEmail = errors.New("a user with this email already exists")
	// ErrVersionConflict is returned when a conditional membership write lost
	// a race with another writer. Callers re-read and retry.
	ErrVersionConflict = errors.New("user was modified concurrently")
	errEmailRequired   = errors.New("email is required")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

func mapErr(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

// GetByID loads a user by ObjectID. Returns ErrNotFound if absent.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

// GetByEmail looks up a user by case-insensitive email. Returns ErrNotFound if absent.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"email": normalize.Email(email)}).Decode(&u); err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

// Create inserts a new user after normalizing fields.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	u.ID = primitive.NewObjectID()
	u.FullName = normalize.Name(u.FullName)
	u.Email = normalize.Email(u.Email)
	if u.Email == "" {
		return models.User{}, errEmailRequired
	}
	if u.GlobalRole == "" {
		u.GlobalRole = "viewer"
	}
	if u.AssignedShops == nil {
		u.AssignedShops = []models.Assignment{}
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	u.Version = 1

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, err
	}
	return u, nil
}

// UpdateMemberships replaces the user's assignment list and current shop if
// the stored version still equals expectedVersion, and bumps the version.
// Returns the updated user, ErrVersionConflict when the version moved, or
// ErrNotFound when the user does not exist.
func (s *Store) UpdateMemberships(ctx context.Context, id primitive.ObjectID, expectedVersion int64, assigned []models.Assignment, current *primitive.ObjectID) (*models.User, error) {
	if assigned == nil {
		assigned = []models.Assignment{}
	}
	update := bson.M{
		"$set": bson.M{
			"assigned_shops": assigned,
			"updated_at":     time.Now().UTC(),
		},
		"$inc": bson.M{"version": 1},
	}
	if current != nil {
		update["$set"].(bson.M)["current_shop"] = *current
	} else {
		update["$unset"] = bson.M{"current_shop": ""}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var u models.User
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id, "version": expectedVersion}, update, opts).Decode(&u)
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	// Distinguish a lost race from a missing user.
	n, cerr := s.c.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if cerr != nil {
		return nil, cerr
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return nil, ErrVersionConflict
}

// EnsureRootAdmin promotes the user with the given email to root admin,
// creating the account when it does not exist. created reports whether a new
// user was inserted.
func (s *Store) EnsureRootAdmin(ctx context.Context, email, fullName string) (*models.User, bool, error) {
	email = normalize.Email(email)
	if email == "" {
		return nil, false, errEmailRequired
	}

	now := time.Now().UTC()
	filter := bson.M{"email": email}
	update := bson.M{
		"$set": bson.M{
			"is_root_admin": true,
			"global_role":   "admin",
			"blocked":       false,
			"updated_at":    now,
		},
		"$setOnInsert": bson.M{
			"_id":            primitive.NewObjectID(),
			"email":          email,
			"full_name":      normalize.Name(fullName),
			"assigned_shops": []models.Assignment{},
			"created_at":     now,
		},
		"$inc": bson.M{"version": 1},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var u models.User
	if err := s.c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&u); err != nil {
		return nil, false, err
	}
	return &u, u.Version == 1, nil
}

// ListByShop returns the users holding an assignment for shopID, by name.
func (s *Store) ListByShop(ctx context.Context, shopID primitive.ObjectID) ([]models.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "full_name", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"assigned_shops.shop_id": shopID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
