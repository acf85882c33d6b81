// Package scopepolicy derives the shop restriction that data listings
// (customers, inventory, sales) must apply for a subject.
//
// Authorization rules:
//   - Root admins are unrestricted
//   - Everyone else sees only the shops they hold an assignment for
//   - A blocked non-root subject sees nothing
//
// Some hosted databases cap the size of an "in" list. A Predicate therefore
// declares MaxPredicateSize; shop ids beyond it are returned as overflow and
// the caller filters those rows client-side with Allows.
package scopepolicy

import (
	"github.com/dalemusser/shopdesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultMaxPredicateSize is the largest "in" list a single query carries.
const DefaultMaxPredicateSize = 30

// Predicate is the shop restriction for one subject.
type Predicate struct {
	unrestricted bool
	shopIDs      []primitive.ObjectID
	max          int
}

// Unrestricted returns a predicate that allows every shop.
func Unrestricted() Predicate {
	return Predicate{unrestricted: true, max: DefaultMaxPredicateSize}
}

// ShopIn returns a predicate restricted to ids. Duplicates are dropped;
// order is preserved.
func ShopIn(ids ...primitive.ObjectID) Predicate {
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return Predicate{shopIDs: out, max: DefaultMaxPredicateSize}
}

// ScopeFor derives the predicate for actor. A nil actor sees nothing.
func ScopeFor(actor *models.User) Predicate {
	if actor == nil {
		return ShopIn()
	}
	if actor.IsRootAdmin {
		return Unrestricted()
	}
	if actor.Blocked {
		return ShopIn()
	}
	return ShopIn(actor.ShopIDs()...)
}

// WithMaxPredicateSize returns a copy of p with the given cap. Values below 1
// are ignored.
func (p Predicate) WithMaxPredicateSize(n int) Predicate {
	if n >= 1 {
		p.max = n
	}
	return p
}

// MaxPredicateSize is the largest shop list Filter will put in one query.
func (p Predicate) MaxPredicateSize() int {
	return p.max
}

// IsUnrestricted reports whether p allows every shop.
func (p Predicate) IsUnrestricted() bool {
	return p.unrestricted
}

// ShopIDs returns the allowed shop ids (nil when unrestricted).
func (p Predicate) ShopIDs() []primitive.ObjectID {
	if p.unrestricted {
		return nil
	}
	return append([]primitive.ObjectID(nil), p.shopIDs...)
}

// Empty reports whether p can never match anything.
func (p Predicate) Empty() bool {
	return !p.unrestricted && len(p.shopIDs) == 0
}

// Allows reports whether a row belonging to shopID is visible.
func (p Predicate) Allows(shopID primitive.ObjectID) bool {
	if p.unrestricted {
		return true
	}
	for _, id := range p.shopIDs {
		if id == shopID {
			return true
		}
	}
	return false
}

// Overflow reports whether the shop list exceeds MaxPredicateSize.
func (p Predicate) Overflow() bool {
	return !p.unrestricted && len(p.shopIDs) > p.max
}

// Split partitions the shop ids into those that fit in a query and the
// overflow that must be filtered client-side.
func (p Predicate) Split() (inQuery, overflow []primitive.ObjectID) {
	if p.unrestricted {
		return nil, nil
	}
	if len(p.shopIDs) <= p.max {
		return p.ShopIDs(), nil
	}
	inQuery = append([]primitive.ObjectID(nil), p.shopIDs[:p.max]...)
	overflow = append([]primitive.ObjectID(nil), p.shopIDs[p.max:]...)
	return inQuery, overflow
}

// Filter returns the Mongo filter restricting field to the allowed shops.
//
// When the list overflows, the filter is a broad one (no restriction on
// field) and clientSide is true: the caller must drop rows for which Allows
// is false. An empty predicate produces a filter matching nothing.
func (p Predicate) Filter(field string) (filter bson.M, clientSide bool) {
	if p.unrestricted {
		return bson.M{}, false
	}
	if p.Overflow() {
		return bson.M{}, true
	}
	ids := p.ShopIDs()
	if ids == nil {
		ids = []primitive.ObjectID{} // $in must be an array, never null
	}
	return bson.M{field: bson.M{"$in": ids}}, false
}

// Chunks splits the shop ids into query-sized groups, for callers that
// prefer several narrow queries to client-side filtering.
func (p Predicate) Chunks() [][]primitive.ObjectID {
	if p.unrestricted || len(p.shopIDs) == 0 {
		return nil
	}
	var out [][]primitive.ObjectID
	for i := 0; i < len(p.shopIDs); i += p.max {
		end := i + p.max
		if end > len(p.shopIDs) {
			end = len(p.shopIDs)
		}
		out = append(out, append([]primitive.ObjectID(nil), p.shopIDs[i:end]...))
	}
	return out
}
