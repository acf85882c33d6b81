package scopepolicy_test

import (
	"testing"

	"github.com/dalemusser/shopdesk/internal/app/policy/scopepolicy"
	"github.com/dalemusser/shopdesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func memberOf(ids ...primitive.ObjectID) *models.User {
	u := &models.User{ID: primitive.NewObjectID()}
	for _, id := range ids {
		u.AssignedShops = append(u.AssignedShops, models.Assignment{ShopID: id, Role: "staff"})
	}
	return u
}

func TestScopeFor_RootUnrestricted(t *testing.T) {
	p := scopepolicy.ScopeFor(&models.User{ID: primitive.NewObjectID(), IsRootAdmin: true})
	if !p.IsUnrestricted() {
		t.Fatal("expected unrestricted predicate for root")
	}
	f, clientSide := p.Filter("shop_id")
	if len(f) != 0 || clientSide {
		t.Errorf("unrestricted filter: got %v clientSide=%v", f, clientSide)
	}
	if !p.Allows(primitive.NewObjectID()) {
		t.Error("unrestricted predicate must allow any shop")
	}
}

func TestScopeFor_MemberRestricted(t *testing.T) {
	s1, s2 := primitive.NewObjectID(), primitive.NewObjectID()
	p := scopepolicy.ScopeFor(memberOf(s1, s2))

	if p.IsUnrestricted() {
		t.Fatal("member must be restricted")
	}
	if !p.Allows(s1) || !p.Allows(s2) {
		t.Error("expected assigned shops to be allowed")
	}
	if p.Allows(primitive.NewObjectID()) {
		t.Error("unassigned shop must not be allowed")
	}

	f, clientSide := p.Filter("shop_id")
	if clientSide {
		t.Error("two shops fit in one query")
	}
	in, ok := f["shop_id"].(bson.M)["$in"].([]primitive.ObjectID)
	if !ok || len(in) != 2 || in[0] != s1 || in[1] != s2 {
		t.Errorf("filter: got %v", f)
	}
}

func TestScopeFor_NoAssignmentsMatchesNothing(t *testing.T) {
	for name, u := range map[string]*models.User{
		"nil":     nil,
		"none":    memberOf(),
		"blocked": func() *models.User { u := memberOf(primitive.NewObjectID()); u.Blocked = true; return u }(),
	} {
		t.Run(name, func(t *testing.T) {
			p := scopepolicy.ScopeFor(u)
			if !p.Empty() {
				t.Fatalf("expected empty predicate, got %v", p.ShopIDs())
			}
			f, _ := p.Filter("shop_id")
			in := f["shop_id"].(bson.M)["$in"].([]primitive.ObjectID)
			if len(in) != 0 {
				t.Errorf("expected empty $in, got %v", in)
			}
		})
	}
}

func TestPredicate_Overflow(t *testing.T) {
	ids := make([]primitive.ObjectID, 7)
	for i := range ids {
		ids[i] = primitive.NewObjectID()
	}
	p := scopepolicy.ShopIn(ids...).WithMaxPredicateSize(3)

	if p.MaxPredicateSize() != 3 {
		t.Fatalf("MaxPredicateSize: got %d", p.MaxPredicateSize())
	}
	if !p.Overflow() {
		t.Fatal("expected overflow")
	}

	in, over := p.Split()
	if len(in) != 3 || len(over) != 4 {
		t.Errorf("Split: got %d/%d, want 3/4", len(in), len(over))
	}

	f, clientSide := p.Filter("shop_id")
	if !clientSide || len(f) != 0 {
		t.Errorf("overflow filter: got %v clientSide=%v", f, clientSide)
	}

	chunks := p.Chunks()
	if len(chunks) != 3 || len(chunks[2]) != 1 {
		t.Errorf("Chunks: got %d chunks", len(chunks))
	}
}

func TestShopIn_Dedupes(t *testing.T) {
	id := primitive.NewObjectID()
	p := scopepolicy.ShopIn(id, id, id)
	if got := len(p.ShopIDs()); got != 1 {
		t.Errorf("expected 1 id, got %d", got)
	}
}
