package shoppolicy

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/shopdesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultCacheTTL bounds how long a cached principal is trusted without a mutation.
const DefaultCacheTTL = 30 * time.Second

// Loader fetches a fresh user record.
type Loader func(ctx context.Context, id primitive.ObjectID) (*models.User, error)

type cacheEntry struct {
	user     *models.User
	loadedAt time.Time
}

// Cache holds user records used as policy principals. It is owned by the
// process wiring and passed explicitly to whoever needs it.
//
// Invalidate must be called after any mutation of a user. A load that
// races with an invalidation is not stored, so a read that started before a
// mutation never repopulates the cache with pre-mutation data.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[primitive.ObjectID]cacheEntry
	loads   map[primitive.ObjectID]*inflight // only ids with a load in progress
	hooks   []func(primitive.ObjectID)
	now     func() time.Time
}

// inflight counts concurrent loads of one id and the evictions seen while
// any of them ran.
type inflight struct {
	n   int
	gen uint64
}

// NewCache creates a Cache. A non-positive ttl uses DefaultCacheTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[primitive.ObjectID]cacheEntry),
		loads:   make(map[primitive.ObjectID]*inflight),
		now:     time.Now,
	}
}

// User returns the cached record for id, loading it on a miss or after expiry.
// The returned value is a copy; callers may modify it freely.
func (c *Cache) User(ctx context.Context, id primitive.ObjectID, load Loader) (*models.User, error) {
	c.mu.Lock()
	if e, ok := c.entries[id]; ok && c.now().Sub(e.loadedAt) < c.ttl {
		c.mu.Unlock()
		return cloneUser(e.user), nil
	}
	fl := c.loads[id]
	if fl == nil {
		fl = &inflight{}
		c.loads[id] = fl
	}
	fl.n++
	startGen := fl.gen
	c.mu.Unlock()

	u, err := load(ctx, id)

	c.mu.Lock()
	if err == nil && fl.gen == startGen {
		c.entries[id] = cacheEntry{user: cloneUser(u), loadedAt: c.now()}
	}
	fl.n--
	if fl.n == 0 {
		delete(c.loads, id)
	}
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return cloneUser(u), nil
}

// Invalidate drops id locally and notifies registered hooks (for example a
// cross-process invalidation bus).
func (c *Cache) Invalidate(id primitive.ObjectID) {
	c.Evict(id)
	c.mu.Lock()
	hooks := append([]func(primitive.ObjectID){}, c.hooks...)
	c.mu.Unlock()
	for _, h := range hooks {
		h(id)
	}
}

// Evict drops id locally without notifying hooks.
func (c *Cache) Evict(id primitive.ObjectID) {
	c.mu.Lock()
	delete(c.entries, id)
	if fl := c.loads[id]; fl != nil {
		fl.gen++
	}
	c.mu.Unlock()
}

// OnInvalidate registers fn to run after every Invalidate.
func (c *Cache) OnInvalidate(fn func(primitive.ObjectID)) {
	c.mu.Lock()
	c.hooks = append(c.hooks, fn)
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func cloneUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	cp := *u
	if u.AssignedShops != nil {
		cp.AssignedShops = append([]models.Assignment(nil), u.AssignedShops...)
	}
	if u.CurrentShop != nil {
		cs := *u.CurrentShop
		cp.CurrentShop = &cs
	}
	return &cp
}
