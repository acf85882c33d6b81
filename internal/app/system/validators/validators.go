// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/shopdesk/internal/app/policy/shoppolicy"
	"github.com/dalemusser/shopdesk/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Collections lists every collection EnsureAll creates.
var Collections = []string{"users", "shops", "invitations", "audit_events"}

// EnsureAll creates collections (if missing) and tries to attach JSON-Schema
// validators. On servers that don't support collMod/validators (e.g. some
// DocumentDB versions), we log and skip gracefully.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	// helper: ensure collection exists (with truthful logging) and then validator (if provided)
	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			// DocumentDB or other deployments may not support collMod/validators.
			if isNoSuchCommand(err) || isNotImplemented(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	ensure("users", usersSchema())
	ensure("shops", shopsSchema())
	ensure("invitations", invitationsSchema())

	// Audit events are append-only and written by the system; no validator.
	ensure("audit_events", nil)

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

// collectionExists returns true when <name> already exists.
// Uses ListCollectionNames to avoid "created collection" log when it didn't.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		zap.L().Info("collection exists", zap.String("collection", name))
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		// NamespaceExists / already exists is fine (race or prior run).
		if isNamespaceExistsErr(err) {
			zap.L().Info("collection exists", zap.String("collection", name))
			return false, nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func isNamespaceExistsErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 48 || strings.Contains(strings.ToLower(ce.Message), "already exists")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already exists") || strings.Contains(s, "namespace exists")
}

func isNoSuchCommand(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 59 || strings.Contains(strings.ToLower(ce.Message), "no such command")) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such command")
}

func isNotImplemented(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 115 ||
		strings.Contains(strings.ToLower(ce.Message), "not implemented") ||
		strings.Contains(strings.ToLower(ce.Message), "not supported")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not implemented") || strings.Contains(s, "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

func enumOf[T ~string](vals ...T) bson.A {
	out := make(bson.A, 0, len(vals))
	for _, v := range vals {
		out = append(out, string(v))
	}
	return out
}

// Assignment roles are stored as plain strings. Unknown roles are tolerated
// in the data and grant nothing at evaluation time.
func usersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"email", "global_role", "version"},
			"properties": bson.M{
				"email":         bson.M{"bsonType": "string", "minLength": 3, "pattern": "^\\S+@\\S+$"},
				"full_name":     bson.M{"bsonType": "string"},
				"global_role":   bson.M{"enum": enumOf(shoppolicy.GlobalViewer, shoppolicy.GlobalStaff, shoppolicy.GlobalSales, shoppolicy.GlobalManager, shoppolicy.GlobalAdmin)},
				"is_root_admin": bson.M{"bsonType": "bool"},
				"blocked":       bson.M{"bsonType": "bool"},
				"version":       bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 1},
				"current_shop":  bson.M{"bsonType": "objectId"},
				"assigned_shops": bson.M{
					"bsonType": bson.A{"array", "null"},
					"items": bson.M{
						"bsonType": "object",
						"required": bson.A{"shop_id", "role"},
						"properties": bson.M{
							"shop_id":     bson.M{"bsonType": "objectId"},
							"shop_name":   bson.M{"bsonType": "string"},
							"role":        bson.M{"bsonType": "string"},
							"is_owner":    bson.M{"bsonType": "bool"},
							"assigned_at": bson.M{"bsonType": "date"},
							"assigned_by": bson.M{"bsonType": "objectId"},
						},
					},
				},
			},
		},
	}
}

func shopsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"name", "name_ci", "status"},
			"properties": bson.M{
				"name":    bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"name_ci": bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"status":  bson.M{"enum": enumOf(models.ShopActive, models.ShopInactive, models.ShopSuspended)},
			},
		},
	}
}

func invitationsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"target_email", "shop_id", "role", "invited_by", "status", "token_prefix", "token_hash", "created_at", "expires_at"},
			"properties": bson.M{
				"target_email": bson.M{"bsonType": "string", "minLength": 3},
				"shop_id":      bson.M{"bsonType": "objectId"},
				"shop_name":    bson.M{"bsonType": "string"},
				"role":         bson.M{"enum": enumOf(shoppolicy.RoleOwner, shoppolicy.RoleAdmin, shoppolicy.RoleManager, shoppolicy.RoleStaff, shoppolicy.RoleSales, shoppolicy.RoleViewer)},
				"invited_by":   bson.M{"bsonType": "objectId"},
				"message":      bson.M{"bsonType": "string", "maxLength": 500},
				"status":       bson.M{"enum": enumOf(models.InvitationPending, models.InvitationAccepted, models.InvitationRejected, models.InvitationExpired)},
				"token_prefix": bson.M{"bsonType": "string", "minLength": 1},
				"token_hash":   bson.M{"bsonType": "string", "minLength": 1},
				"created_at":   bson.M{"bsonType": "date"},
				"expires_at":   bson.M{"bsonType": "date"},
				"responded_at": bson.M{"bsonType": "date"},
				"responded_by": bson.M{"bsonType": "objectId"},
			},
		},
	}
}
