package profile_test

import (
	"net/http"
	"testing"

	uierrors "github.com/dalemusser/shopdesk/internal/app/features/errors"
	"github.com/dalemusser/shopdesk/internal/app/features/profile"
	"github.com/dalemusser/shopdesk/internal/app/membership"
	"github.com/dalemusser/shopdesk/internal/app/policy/shoppolicy"
	"github.com/dalemusser/shopdesk/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type meBody struct {
	Email       string `json:"email"`
	CurrentShop string `json:"current_shop"`
	Shops       []struct {
		ShopID       string                  `json:"shop_id"`
		Role         string                  `json:"role"`
		Current      bool                    `json:"current"`
		Capabilities []shoppolicy.Capability `json:"capabilities"`
	} `json:"shops"`
}

func setup(users *testutil.MemoryUsers) http.Handler {
	mgr := membership.New(users, testutil.NewMemoryShops(), nil, nil, zap.NewNop())
	return profile.Routes(profile.NewHandler(mgr, uierrors.NewErrorLogger(zap.NewNop()), zap.NewNop()))
}

func TestServeMe_ListsCapabilities(t *testing.T) {
	a, b := testutil.NewShop("A"), testutil.NewShop("B")
	u := testutil.WithAssignment(testutil.NewUser("Vic", "vic@example.com"), a, "viewer", false)
	u = testutil.WithAssignment(u, b, "admin", false)
	users := testutil.NewMemoryUsers(u)

	rec := testutil.NewRecorder()
	setup(users).ServeHTTP(rec, testutil.NewAuthenticatedRequest("GET", "/", nil, u))
	rec.AssertStatus(t, http.StatusOK)

	var body meBody
	rec.DecodeJSON(t, &body)
	require.Len(t, body.Shops, 2)
	assert.Equal(t, a.ID.Hex(), body.CurrentShop)
	assert.ElementsMatch(t, []shoppolicy.Capability{shoppolicy.ViewSales, shoppolicy.ViewCustomers}, body.Shops[0].Capabilities)
	assert.Contains(t, body.Shops[1].Capabilities, shoppolicy.RemoveStaff)
	assert.NotContains(t, body.Shops[1].Capabilities, shoppolicy.DeleteShop)
}

func TestServeMe_BlockedHasNoCapabilities(t *testing.T) {
	a := testutil.NewShop("A")
	u := testutil.WithAssignment(testutil.NewUser("Bo", "bo@example.com"), a, "owner", true)
	u.Blocked = true

	rec := testutil.NewRecorder()
	setup(testutil.NewMemoryUsers(u)).ServeHTTP(rec, testutil.NewAuthenticatedRequest("GET", "/", nil, u))

	var body meBody
	rec.DecodeJSON(t, &body)
	require.Len(t, body.Shops, 1)
	assert.Empty(t, body.Shops[0].Capabilities)
}

func TestHandleCurrentShop(t *testing.T) {
	a, b, other := testutil.NewShop("A"), testutil.NewShop("B"), testutil.NewShop("Other")
	u := testutil.WithAssignment(testutil.NewUser("Sue", "sue@example.com"), a, "staff", false)
	u = testutil.WithAssignment(u, b, "staff", false)
	users := testutil.NewMemoryUsers(u)
	router := setup(users)

	rec := testutil.NewRecorder()
	router.ServeHTTP(rec, testutil.NewAuthenticatedRequest("PUT", "/current-shop", map[string]string{"shop_id": b.ID.Hex()}, u))
	rec.AssertStatus(t, http.StatusOK)
	var body meBody
	rec.DecodeJSON(t, &body)
	assert.Equal(t, b.ID.Hex(), body.CurrentShop)

	stored, _ := users.Get(u.ID)
	require.NotNil(t, stored.CurrentShop)
	assert.Equal(t, b.ID, *stored.CurrentShop)

	rec = testutil.NewRecorder()
	router.ServeHTTP(rec, testutil.NewAuthenticatedRequest("PUT", "/current-shop", map[string]string{"shop_id": other.ID.Hex()}, u))
	rec.AssertStatus(t, http.StatusBadRequest)
	rec.AssertContains(t, "no_assignment")

	rec = testutil.NewRecorder()
	router.ServeHTTP(rec, testutil.NewAuthenticatedRequest("PUT", "/current-shop", map[string]string{"shop_id": "nope"}, u))
	rec.AssertStatus(t, http.StatusBadRequest)
}

func TestRoutes_Anonymous401(t *testing.T) {
	rec := testutil.NewRecorder()
	setup(testutil.NewMemoryUsers()).ServeHTTP(rec, testutil.NewRequest("GET", "/", nil))
	rec.AssertStatus(t, http.StatusUnauthorized)
}
