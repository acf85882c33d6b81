// internal/app/store/invitations/invitationstore.go
package invitationstore

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
	// ErrNotFound is returned when no invitation matches.
	ErrNotFound = errors.New("invitation not found")
	// ErrDuplicatePending is returned when a pending invitation already
	// exists for the same (email, shop).
	ErrDuplicatePending = errors.New("a pending invitation already exists for this email and shop")
	// ErrStateChanged is returned when a conditional transition found the
	// invitation in a different status than expected.
	ErrStateChanged = errors.New("invitation status changed concurrently")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("invitations")}
}

func decodeOne(res *mongo.SingleResult) (*models.Invitation, error) {
	var inv models.Invitation
	if err := res.Decode(&inv); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// Create inserts a pending invitation. The partial unique index on
// (target_email, shop_id) for pending rows turns a concurrent duplicate into
// ErrDuplicatePending.
func (s *Store) Create(ctx context.Context, inv models.Invitation) (models.Invitation, error) {
	if inv.ID.IsZero() {
		inv.ID = primitive.NewObjectID()
	}
	inv.TargetEmail = normalize.Email(inv.TargetEmail)
	inv.Status = models.InvitationPending
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	if _, err := s.c.InsertOne(ctx, inv); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Invitation{}, ErrDuplicatePending
		}
		return models.Invitation{}, err
	}
	return inv, nil
}

// GetByID loads an invitation. Returns ErrNotFound if absent.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Invitation, error) {
	return decodeOne(s.c.FindOne(ctx, bson.M{"_id": id}))
}

// FindPending returns the pending invitation for (email, shopID), if any.
func (s *Store) FindPending(ctx context.Context, email string, shopID primitive.ObjectID) (*models.Invitation, error) {
	return decodeOne(s.c.FindOne(ctx, bson.M{
		"target_email": normalize.Email(email),
		"shop_id":      shopID,
		"status":       models.InvitationPending,
	}))
}

// FindByTokenPrefix returns every invitation whose token starts with prefix.
// Callers confirm the match against TokenHash.
func (s *Store) FindByTokenPrefix(ctx context.Context, prefix string) ([]models.Invitation, error) {
	return s.find(ctx, bson.M{"token_prefix": prefix}, options.Find().SetLimit(10))
}

// Transition moves an invitation from status from to status to, and records
// the responder. It succeeds only if the stored status still equals from.
// Returns the updated invitation, ErrStateChanged, or ErrNotFound.
func (s *Store) Transition(ctx context.Context, id primitive.ObjectID, from, to models.InvitationStatus, at time.Time, by *primitive.ObjectID) (*models.Invitation, error) {
	set := bson.M{"status": to}
	update := bson.M{}
	if to == models.InvitationPending {
		// Compensation back to pending clears the response.
		update["$unset"] = bson.M{"responded_at": "", "responded_by": ""}
	} else {
		set["responded_at"] = at
		if by != nil {
			set["responded_by"] = *by
		}
	}
	update["$set"] = set

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	inv, err := decodeOne(s.c.FindOneAndUpdate(ctx, bson.M{"_id": id, "status": from}, update, opts))
	if !errors.Is(err, ErrNotFound) {
		return inv, err
	}

	n, cerr := s.c.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if cerr != nil {
		return nil, cerr
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return nil, ErrStateChanged
}

// ListByShop returns a shop's invitations, newest first. An empty status
// matches all.
func (s *Store) ListByShop(ctx context.Context, shopID primitive.ObjectID, status models.InvitationStatus) ([]models.Invitation, error) {
	filter := bson.M{"shop_id": shopID}
	if status != "" {
		filter["status"] = status
	}
	return s.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}))
}

// ListByEmail returns the invitations addressed to email, newest first. An
// empty status matches all.
func (s *Store) ListByEmail(ctx context.Context, email string, status models.InvitationStatus) ([]models.Invitation, error) {
	filter := bson.M{"target_email": normalize.Email(email)}
	if status != "" {
		filter["status"] = status
	}
	return s.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}))
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Invitation, error) {
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Invitation{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
