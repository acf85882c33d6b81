package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/shopdesk/internal/app/policy/scopepolicy"
	"github.com/dalemusser/shopdesk/internal/app/store/audit"
	invitationstore "github.com/dalemusser/shopdesk/internal/app/store/invitations"
	shopstore "github.com/dalemusser/shopdesk/internal/app/store/shops"
	userstore "github.com/dalemusser/shopdesk/internal/app/store/users"
	"github.com/dalemusser/shopdesk/internal/app/system/normalize"
	"github.com/dalemusser/shopdesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// The in-memory stores below mirror the Mongo stores' contracts, including
// their sentinel errors and conditional-write semantics, so service tests
// run without a database.

func cloneUser(u models.User) models.User {
	u.AssignedShops = append([]models.Assignment(nil), u.AssignedShops...)
	if u.CurrentShop != nil {
		id := *u.CurrentShop
		u.CurrentShop = &id
	}
	return u
}

// MemoryUsers is an in-memory user store.
type MemoryUsers struct {
	mu        sync.Mutex
	users     map[primitive.ObjectID]models.User
	interfere int
	updates   int
}

func NewMemoryUsers(users ...models.User) *MemoryUsers {
	s := &MemoryUsers{users: make(map[primitive.ObjectID]models.User)}
	for _, u := range users {
		s.Put(u)
	}
	return s
}

// Put stores u as-is, replacing any user with the same id.
func (s *MemoryUsers) Put(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Version == 0 {
		u.Version = 1
	}
	u.Email = normalize.Email(u.Email)
	s.users[u.ID] = cloneUser(u)
}

// Get returns the stored user, failing nothing. ok is false if absent.
func (s *MemoryUsers) Get(id primitive.ObjectID) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return cloneUser(u), ok
}

// InterfereNextUpdates makes the next n UpdateMemberships calls observe a
// concurrent writer: the stored version is bumped just before the compare.
func (s *MemoryUsers) InterfereNextUpdates(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interfere = n
}

// Updates returns how many UpdateMemberships calls were made.
func (s *MemoryUsers) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

func (s *MemoryUsers) GetByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, userstore.ErrNotFound
	}
	c := cloneUser(u)
	return &c, nil
}

func (s *MemoryUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = normalize.Email(email)
	for _, u := range s.users {
		if u.Email == email {
			c := cloneUser(u)
			return &c, nil
		}
	}
	return nil, userstore.ErrNotFound
}

func (s *MemoryUsers) UpdateMemberships(_ context.Context, id primitive.ObjectID, expectedVersion int64, assigned []models.Assignment, current *primitive.ObjectID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++

	u, ok := s.users[id]
	if !ok {
		return nil, userstore.ErrNotFound
	}
	if s.interfere > 0 {
		s.interfere--
		u.Version++
		s.users[id] = u
	}
	if u.Version != expectedVersion {
		return nil, userstore.ErrVersionConflict
	}

	u.AssignedShops = append([]models.Assignment{}, assigned...)
	if current != nil {
		c := *current
		u.CurrentShop = &c
	} else {
		u.CurrentShop = nil
	}
	u.Version++
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u

	c := cloneUser(u)
	return &c, nil
}

func (s *MemoryUsers) ListByShop(_ context.Context, shopID primitive.ObjectID) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, u := range s.users {
		if _, ok := u.Assignment(shopID); ok {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out, nil
}

// MemoryShops is an in-memory shop directory.
type MemoryShops struct {
	mu    sync.Mutex
	shops map[primitive.ObjectID]models.Shop
}

func NewMemoryShops(shops ...models.Shop) *MemoryShops {
	s := &MemoryShops{shops: make(map[primitive.ObjectID]models.Shop)}
	for _, sh := range shops {
		s.Put(sh)
	}
	return s
}

func (s *MemoryShops) Put(shop models.Shop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shops[shop.ID] = shop
}

func (s *MemoryShops) GetByID(_ context.Context, id primitive.ObjectID) (*models.Shop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shops[id]
	if !ok {
		return nil, shopstore.ErrNotFound
	}
	return &sh, nil
}

// ListScoped returns the shops pred allows, ordered by name.
func (s *MemoryShops) ListScoped(_ context.Context, pred scopepolicy.Predicate) ([]models.Shop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Shop{}
	for _, sh := range s.shops {
		if pred.Allows(sh.ID) {
			out = append(out, sh)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out, nil
}

// MemoryInvitations is an in-memory invitation store enforcing one pending
// invitation per (email, shop) and status compare-and-set.
type MemoryInvitations struct {
	mu   sync.Mutex
	invs map[primitive.ObjectID]models.Invitation
}

func NewMemoryInvitations() *MemoryInvitations {
	return &MemoryInvitations{invs: make(map[primitive.ObjectID]models.Invitation)}
}

// Put stores inv as-is, bypassing the pending uniqueness check.
func (s *MemoryInvitations) Put(inv models.Invitation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invs[inv.ID] = inv
}

// Get returns the stored invitation. ok is false if absent.
func (s *MemoryInvitations) Get(id primitive.ObjectID) (models.Invitation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invs[id]
	return inv, ok
}

func (s *MemoryInvitations) Create(_ context.Context, inv models.Invitation) (models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv.ID.IsZero() {
		inv.ID = primitive.NewObjectID()
	}
	inv.TargetEmail = normalize.Email(inv.TargetEmail)
	inv.Status = models.InvitationPending
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	for _, other := range s.invs {
		if other.Status == models.InvitationPending && other.TargetEmail == inv.TargetEmail && other.ShopID == inv.ShopID {
			return models.Invitation{}, invitationstore.ErrDuplicatePending
		}
	}
	s.invs[inv.ID] = inv
	return inv, nil
}

func (s *MemoryInvitations) GetByID(_ context.Context, id primitive.ObjectID) (*models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invs[id]
	if !ok {
		return nil, invitationstore.ErrNotFound
	}
	return &inv, nil
}

func (s *MemoryInvitations) FindPending(_ context.Context, email string, shopID primitive.ObjectID) (*models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = normalize.Email(email)
	for _, inv := range s.invs {
		if inv.Status == models.InvitationPending && inv.TargetEmail == email && inv.ShopID == shopID {
			return &inv, nil
		}
	}
	return nil, invitationstore.ErrNotFound
}

func (s *MemoryInvitations) FindByTokenPrefix(_ context.Context, prefix string) ([]models.Invitation, error) {
	return s.list(func(inv models.Invitation) bool { return inv.TokenPrefix == prefix }), nil
}

func (s *MemoryInvitations) Transition(_ context.Context, id primitive.ObjectID, from, to models.InvitationStatus, at time.Time, by *primitive.ObjectID) (*models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invs[id]
	if !ok {
		return nil, invitationstore.ErrNotFound
	}
	if inv.Status != from {
		return nil, invitationstore.ErrStateChanged
	}
	inv.Status = to
	if to == models.InvitationPending {
		inv.RespondedAt, inv.RespondedBy = nil, nil
	} else {
		t := at
		inv.RespondedAt = &t
		if by != nil {
			b := *by
			inv.RespondedBy = &b
		}
	}
	s.invs[id] = inv
	return &inv, nil
}

func (s *MemoryInvitations) ListByShop(_ context.Context, shopID primitive.ObjectID, status models.InvitationStatus) ([]models.Invitation, error) {
	return s.list(func(inv models.Invitation) bool {
		return inv.ShopID == shopID && (status == "" || inv.Status == status)
	}), nil
}

func (s *MemoryInvitations) ListByEmail(_ context.Context, email string, status models.InvitationStatus) ([]models.Invitation, error) {
	email = normalize.Email(email)
	return s.list(func(inv models.Invitation) bool {
		return inv.TargetEmail == email && (status == "" || inv.Status == status)
	}), nil
}

func (s *MemoryInvitations) list(match func(models.Invitation) bool) []models.Invitation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Invitation{}
	for _, inv := range s.invs {
		if match(inv) {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.Hex() > out[j].ID.Hex()
	})
	return out
}

// AuditSink records audit events in memory. It satisfies auditlog.Sink.
type AuditSink struct {
	mu     sync.Mutex
	events []audit.Event
	Err    error // returned from Log when set
}

func (s *AuditSink) Log(_ context.Context, e audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.events = append(s.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (s *AuditSink) Events() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Event(nil), s.events...)
}

// OfType returns the recorded events with the given event type.
func (s *AuditSink) OfType(eventType string) []audit.Event {
	var out []audit.Event
	for _, e := range s.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Invalidations records cache invalidations.
type Invalidations struct {
	mu  sync.Mutex
	ids []primitive.ObjectID
}

func (r *Invalidations) Invalidate(id primitive.ObjectID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

// Count returns how many times id was invalidated.
func (r *Invalidations) Count(id primitive.ObjectID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.ids {
		if x == id {
			n++
		}
	}
	return n
}
