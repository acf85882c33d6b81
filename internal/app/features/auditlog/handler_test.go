package auditlog_test

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"testing"
	"time"

	"github.com/dalemusser/shopdesk/internal/app/features/auditlog"
	uierrors "github.com/dalemusser/shopdesk/internal/app/features/errors"
	"github.com/dalemusser/shopdesk/internal/app/store/audit"
	"github.com/dalemusser/shopdesk/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// fakeEvents filters a fixed slice the same way the Mongo store does.
type fakeEvents struct {
	events []audit.Event
	err    error
}

func (f *fakeEvents) match(filter audit.QueryFilter) []audit.Event {
	var out []audit.Event
	for _, e := range f.events {
		if filter.ShopID != nil && (e.ShopID == nil || *e.ShopID != *filter.ShopID) {
			continue
		}
		if filter.EventType != "" && e.EventType != filter.EventType {
			continue
		}
		if filter.Category != "" && e.Category != filter.Category {
			continue
		}
		if filter.Since != nil && e.CreatedAt.Before(*filter.Since) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (f *fakeEvents) Query(_ context.Context, filter audit.QueryFilter) ([]audit.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := f.match(filter)
	if int(filter.Offset) >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && int(filter.Limit) < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeEvents) Count(_ context.Context, filter audit.QueryFilter) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return int64(len(f.match(filter))), nil
}

func router(events auditlog.Events) chi.Router {
	h := auditlog.NewHandler(events, uierrors.NewErrorLogger(zap.NewNop()), zap.NewNop())
	r := chi.NewRouter()
	r.Mount("/shops/{shopID}/audit", auditlog.Routes(h))
	return r
}

type listBody struct {
	Events []struct {
		EventType string `json:"event_type"`
		ActorID   string `json:"actor_id"`
	} `json:"events"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

func event(shopID primitive.ObjectID, eventType string, at time.Time) audit.Event {
	actor := primitive.NewObjectID()
	return audit.Event{
		ID:        primitive.NewObjectID(),
		CreatedAt: at,
		ShopID:    &shopID,
		Category:  audit.CategoryMembership,
		EventType: eventType,
		ActorID:   &actor,
		Success:   true,
	}
}

func TestServeList_ScopedToShop(t *testing.T) {
	shop, other := testutil.NewShop("Mine"), testutil.NewShop("Other")
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	events := &fakeEvents{events: []audit.Event{
		event(shop.ID, audit.EventAssignmentCreated, base),
		event(shop.ID, audit.EventRoleChanged, base.Add(time.Hour)),
		event(other.ID, audit.EventAssignmentCreated, base),
	}}
	mgr := testutil.WithAssignment(testutil.NewUser("Mo", "mo@example.com"), shop, "manager", false)

	rec := testutil.NewRecorder()
	router(events).ServeHTTP(rec, testutil.NewAuthenticatedRequest("GET", "/shops/"+shop.ID.Hex()+"/audit", nil, mgr))
	rec.AssertStatus(t, http.StatusOK)

	var body listBody
	rec.DecodeJSON(t, &body)
	require.Len(t, body.Events, 2)
	assert.Equal(t, audit.EventRoleChanged, body.Events[0].EventType, "newest first")
	assert.NotEmpty(t, body.Events[0].ActorID)
	assert.EqualValues(t, 2, body.Total)
	assert.Equal(t, 1, body.TotalPages)
}

func TestServeList_Filters(t *testing.T) {
	shop := testutil.NewShop("Mine")
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	events := &fakeEvents{events: []audit.Event{
		event(shop.ID, audit.EventAssignmentCreated, base),
		event(shop.ID, audit.EventRoleChanged, base.AddDate(0, 0, 3)),
	}}
	root := testutil.NewRootAdmin("root@example.com")
	path := "/shops/" + shop.ID.Hex() + "/audit"

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"by type", "?event_type=" + audit.EventAssignmentCreated, 1},
		{"since", "?since=2026-05-03", 1},
		{"past last page", "?page=2", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testutil.NewRecorder()
			router(events).ServeHTTP(rec, testutil.NewAuthenticatedRequest("GET", path+tt.query, nil, root))
			rec.AssertStatus(t, http.StatusOK)
			var body listBody
			rec.DecodeJSON(t, &body)
			assert.Len(t, body.Events, tt.want)
		})
	}

	rec := testutil.NewRecorder()
	router(events).ServeHTTP(rec, testutil.NewAuthenticatedRequest("GET", path+"?since=yesterday", nil, root))
	rec.AssertStatus(t, http.StatusBadRequest)
}

func TestServeList_Forbidden(t *testing.T) {
	shop := testutil.NewShop("Mine")
	staff := testutil.WithAssignment(testutil.NewUser("Sy", "sy@example.com"), shop, "staff", false)

	rec := testutil.NewRecorder()
	router(&fakeEvents{}).ServeHTTP(rec, testutil.NewAuthenticatedRequest("GET", "/shops/"+shop.ID.Hex()+"/audit", nil, staff))
	rec.AssertStatus(t, http.StatusForbidden)
}

func TestServeList_StoreFailureIs500(t *testing.T) {
	shop := testutil.NewShop("Mine")
	root := testutil.NewRootAdmin("root@example.com")

	rec := testutil.NewRecorder()
	router(&fakeEvents{err: errors.New("boom")}).ServeHTTP(rec, testutil.NewAuthenticatedRequest("GET", "/shops/"+shop.ID.Hex()+"/audit", nil, root))
	rec.AssertStatus(t, http.StatusInternalServerError)
	assert.NotContains(t, rec.Body.String(), "boom")
}
