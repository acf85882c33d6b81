// internal/app/store/shops/shopstore.go
package shopstore

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/dalemusser/shopdesk/internal/app/policy/scopepolicy"
	"github.com/dalemusser/shopdesk/internal/app/system/normalize"
	"github.com/dalemusser/shopdesk/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when no shop matches.
var ErrNotFound = errors.New("shop not found")

var errBadStatus = errors.New(`status must be "active"|"inactive"|"suspended"`)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("shops")}
}

func validStatus(s string) bool {
	switch s {
	case models.ShopActive, models.ShopInactive, models.ShopSuspended:
		return true
	}
	return false
}

// Create inserts a shop. Status defaults to active.
func (s *Store) Create(ctx context.Context, shop models.Shop) (models.Shop, error) {
	now := time.Now().UTC()
	shop.ID = primitive.NewObjectID()
	shop.Name = normalize.Name(shop.Name)
	shop.NameCI = text.Fold(shop.Name)
	shop.Status = normalize.Status(shop.Status)
	if shop.Status == "" {
		shop.Status = models.ShopActive
	}
	if !validStatus(shop.Status) {
		return models.Shop{}, errBadStatus
	}
	shop.CreatedAt = now
	shop.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, shop); err != nil {
		return models.Shop{}, err
	}
	return shop, nil
}

// GetByID loads a shop. Returns ErrNotFound if absent.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Shop, error) {
	var shop models.Shop
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&shop); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &shop, nil
}

// Rename changes the canonical shop name. Assignment snapshots are not
// touched; they resync on the next role update.
func (s *Store) Rename(ctx context.Context, id primitive.ObjectID, name string) error {
	name = normalize.Name(name)
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"name":       name,
		"name_ci":    text.Fold(name),
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListScoped returns the shops visible under pred, ordered by name.
// Shop lists beyond the predicate cap are queried in chunks and merged.
func (s *Store) ListScoped(ctx context.Context, pred scopepolicy.Predicate) ([]models.Shop, error) {
	if pred.Empty() {
		return []models.Shop{}, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}, {Key: "_id", Value: 1}})

	if pred.IsUnrestricted() || !pred.Overflow() {
		filter, _ := pred.Filter("_id")
		return s.find(ctx, filter, opts)
	}

	var out []models.Shop
	for _, chunk := range pred.Chunks() {
		part, err := s.find(ctx, bson.M{"_id": bson.M{"$in": chunk}}, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, part...)
	}
	sortByName(out)
	return out, nil
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Shop, error) {
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Shop{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func sortByName(shops []models.Shop) {
	sort.Slice(shops, func(i, j int) bool {
		if shops[i].NameCI != shops[j].NameCI {
			return shops[i].NameCI < shops[j].NameCI
		}
		return shops[i].ID.Hex() < shops[j].ID.Hex()
	})
}
