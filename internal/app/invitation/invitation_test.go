package invitation_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/shopdesk/internal/app/invitation"
	"github.com/dalemusser/shopdesk/internal/app/membership"
	"github.com/dalemusser/shopdesk/internal/app/store/audit"
	"github.com/dalemusser/shopdesk/internal/app/system/apperr"
	"github.com/dalemusser/shopdesk/internal/app/system/auditlog"
	"github.com/dalemusser/shopdesk/internal/app/system/ratelimit"
	"github.com/dalemusser/shopdesk/internal/domain/models"
	"github.com/dalemusser/shopdesk/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type env struct {
	users    *testutil.MemoryUsers
	shops    *testutil.MemoryShops
	invs     *testutil.MemoryInvitations
	sink     *testutil.AuditSink
	notifier *testutil.RecordingNotifier
	clock    *clock
	mgr      *membership.Manager
	wf       *invitation.Workflow

	root models.User
	s1   models.Shop
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		users:    testutil.NewMemoryUsers(),
		shops:    testutil.NewMemoryShops(),
		invs:     testutil.NewMemoryInvitations(),
		sink:     &testutil.AuditSink{},
		notifier: &testutil.RecordingNotifier{},
		clock:    &clock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		root:     testutil.NewRootAdmin("root@example.com"),
		s1:       testutil.NewShop("Shop One"),
	}
	e.users.Put(e.root)
	e.shops.Put(e.s1)

	logger := auditlog.New(e.sink, zap.NewNop(), auditlog.Config{Admin: "db"})
	e.mgr = membership.New(e.users, e.shops, logger, nil, zap.NewNop())
	e.wf = e.workflow(e.mgr, nil)
	return e
}

func (e *env) workflow(members invitation.Assigner, limiter *ratelimit.Limiter) *invitation.Workflow {
	return invitation.New(invitation.Deps{
		Store:    e.invs,
		Users:    e.users,
		Shops:    e.shops,
		Members:  members,
		Notifier: e.notifier,
		Audit:    auditlog.New(e.sink, zap.NewNop(), auditlog.Config{Admin: "db"}),
		Limiter:  limiter,
		Log:      zap.NewNop(),
		Now:      e.clock.Now,
	}, invitation.Config{
		BaseURL:    "https://shopdesk.test/",
		BcryptCost: bcrypt.MinCost,
	})
}

func (e *env) user(name string) models.User {
	u := testutil.NewUser(name, name+"@example.com")
	e.users.Put(u)
	return u
}

func (e *env) member(name, role string) models.User {
	u := testutil.WithAssignment(testutil.NewUser(name, name+"@example.com"), e.s1, role, false)
	e.users.Put(u)
	return u
}

func (e *env) stored(t *testing.T, id primitive.ObjectID) models.Invitation {
	t.Helper()
	inv, ok := e.invs.Get(id)
	require.True(t, ok)
	return inv
}

func TestInvite_PersistsPendingAndNotifies(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	inv, err := e.wf.Invite(ctx, &e.root, "  Alice@Example.com ", e.s1.ID, "staff", "<b>Welcome</b> aboard")
	require.NoError(t, err)

	assert.Equal(t, models.InvitationPending, inv.Status)
	assert.Equal(t, "alice@example.com", inv.TargetEmail)
	assert.Equal(t, "Shop One", inv.ShopName)
	assert.Equal(t, e.root.ID, inv.InvitedBy)
	assert.Equal(t, "Welcome aboard", inv.Message)
	assert.Equal(t, e.clock.Now().Add(7*24*time.Hour), inv.ExpiresAt)
	assert.NotEmpty(t, inv.TokenHash)

	n, ok := e.notifier.Last()
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", n.To)
	assert.Equal(t, "https://shopdesk.test/invitations/token/"+n.Token, n.Link)
	assert.NotContains(t, inv.TokenHash, n.Token)
	assert.True(t, strings.HasPrefix(strings.ReplaceAll(n.Token, "-", ""), inv.TokenPrefix))

	assert.Len(t, e.sink.OfType(audit.EventInvitationCreated), 1)
}

func TestInvite_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.wf.Invite(ctx, &e.root, "not-an-email", e.s1.ID, "staff", "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	for _, bad := range []string{"Pat <pat@example.com>", "pat@localhost", "pat@@example.com", "a@b.com, c@d.com"} {
		_, err = e.wf.Invite(ctx, &e.root, bad, e.s1.ID, "staff", "")
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), bad)
	}

	_, err = e.wf.Invite(ctx, &e.root, "pat@example.com", e.s1.ID, "supervisor", "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = e.wf.Invite(ctx, &e.root, "pat@example.com", primitive.NewObjectID(), "staff", "")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestInvite_MessageCapped(t *testing.T) {
	e := newEnv(t)

	inv, err := e.wf.Invite(context.Background(), &e.root, "pat@example.com", e.s1.ID, "staff", strings.Repeat("x", 900))
	require.NoError(t, err)
	assert.Len(t, []rune(inv.Message), invitation.DefaultMaxMessageRunes)
}

func TestInvite_Authorization(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	manager := e.member("mona", "manager")
	viewer := e.member("vic", "viewer")
	outsider := e.user("olga")

	tests := []struct {
		name    string
		actor   *models.User
		role    string
		allowed bool
	}{
		{"manager invites staff", &manager, "staff", true},
		{"manager invites manager", &manager, "manager", true},
		{"manager cannot invite admin", &manager, "admin", false},
		{"manager cannot invite owner", &manager, "owner", false},
		{"viewer lacks InviteStaff", &viewer, "viewer", false},
		{"outsider has no assignment", &outsider, "viewer", false},
		{"nil actor", nil, "viewer", false},
		{"root invites owner", &e.root, "owner", true},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email := "invitee" + string(rune('a'+i)) + "@example.com"
			_, err := e.wf.Invite(ctx, tt.actor, email, e.s1.ID, tt.role, "")
			if tt.allowed {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, apperr.KindPermissionDenied, apperr.KindOf(err))
		})
	}
}

func TestInvite_DuplicatePendingLeavesFirst(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.wf.Invite(ctx, &e.root, "alice@example.com", e.s1.ID, "staff", "first")
	require.NoError(t, err)

	_, err = e.wf.Invite(ctx, &e.root, "ALICE@example.com", e.s1.ID, "manager", "second")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrAlreadyExists))

	got := e.stored(t, first.ID)
	assert.Equal(t, models.InvitationPending, got.Status)
	assert.Equal(t, "staff", got.Role)
	assert.Equal(t, "first", got.Message)
	assert.Len(t, e.notifier.Notices(), 1)
}

func TestInvite_ExistingMemberRejected(t *testing.T) {
	e := newEnv(t)
	e.member("sam", "staff")

	_, err := e.wf.Invite(context.Background(), &e.root, "sam@example.com", e.s1.ID, "manager", "")
	assert.Equal(t, apperr.KindAlreadyExists, apperr.KindOf(err))
}

func TestInvite_ReinviteAfterExpiry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.wf.Invite(ctx, &e.root, "alice@example.com", e.s1.ID, "staff", "")
	require.NoError(t, err)

	e.clock.Advance(8 * 24 * time.Hour)

	second, err := e.wf.Invite(ctx, &e.root, "alice@example.com", e.s1.ID, "staff", "")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, models.InvitationExpired, e.stored(t, first.ID).Status)
	assert.Len(t, e.sink.OfType(audit.EventInvitationExpired), 1)
}

func TestInvite_RateLimited(t *testing.T) {
	e := newEnv(t)
	wf := e.workflow(e.mgr, ratelimit.New(1, 2))
	ctx := context.Background()

	for _, email := range []string{"a@example.com", "b@example.com"} {
		_, err := wf.Invite(ctx, &e.root, email, e.s1.ID, "viewer", "")
		require.NoError(t, err)
	}
	_, err := wf.Invite(ctx, &e.root, "c@example.com", e.s1.ID, "viewer", "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindRateLimited, apperr.KindOf(err))
}

func TestInvite_NotifierFailureKeepsInvitation(t *testing.T) {
	e := newEnv(t)
	e.notifier.Err = errors.New("smtp down")

	inv, err := e.wf.Invite(context.Background(), &e.root, "alice@example.com", e.s1.ID, "staff", "")
	require.NoError(t, err)
	assert.Equal(t, models.InvitationPending, e.stored(t, inv.ID).Status)
}

func TestScenario_RootInvitesAliceAsAdmin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.user("alice")
	require.Nil(t, alice.CurrentShop)

	inv, err := e.wf.Invite(ctx, &e.root, "alice@example.com", e.s1.ID, "admin", "")
	require.NoError(t, err)
	assert.Equal(t, models.InvitationPending, inv.Status)

	a, err := e.wf.Accept(ctx, inv.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, e.s1.ID, a.ShopID)
	assert.Equal(t, "admin", a.Role)
	assert.False(t, a.IsOwner)
	assert.Equal(t, e.root.ID, a.AssignedBy)

	got, ok := e.users.Get(alice.ID)
	require.True(t, ok)
	require.NotNil(t, got.CurrentShop)
	assert.Equal(t, e.s1.ID, *got.CurrentShop)

	stored := e.stored(t, inv.ID)
	assert.Equal(t, models.InvitationAccepted, stored.Status)
	require.NotNil(t, stored.RespondedAt)
	assert.Equal(t, e.clock.Now(), *stored.RespondedAt)
	require.NotNil(t, stored.RespondedBy)
	assert.Equal(t, alice.ID, *stored.RespondedBy)

	assert.Len(t, e.sink.OfType(audit.EventInvitationAccepted), 1)
}

func TestAccept_SecondCallIsInvalidState(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.user("alice")

	inv, err := e.wf.Invite(ctx, &e.root, "alice@example.com", e.s1.ID, "staff", "")
	require.NoError(t, err)
	_, err = e.wf.Accept(ctx, inv.ID, alice.ID)
	require.NoError(t, err)

	_, err = e.wf.Accept(ctx, inv.ID, alice.ID)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	err = e.wf.Reject(ctx, inv.ID, alice.ID)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	got, _ := e.users.Get(alice.ID)
	assert.Len(t, got.AssignedShops, 1)
	assert.Equal(t, models.InvitationAccepted, e.stored(t, inv.ID).Status)
}

func TestAccept_ExpiredPersistsExpired(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.user("alice")

	inv, err := e.wf.Invite(ctx, &e.root, "alice@example.com", e.s1.ID, "staff", "")
	require.NoError(t, err)

	e.clock.Advance(7*24*time.Hour + time.Second)

	for i := 0; i < 2; i++ {
		_, err = e.wf.Accept(ctx, inv.ID, alice.ID)
		require.Error(t, err)
		assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	}

	assert.Equal(t, models.InvitationExpired, e.stored(t, inv.ID).Status)
	got, _ := e.users.Get(alice.ID)
	assert.Empty(t, got.AssignedShops)
	assert.Len(t, e.sink.OfType(audit.EventInvitationExpired), 1)
}

func TestAccept_IdentityChecks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	inv, err := e.wf.Invite(ctx, &e.root, "alice@example.com", e.s1.ID, "staff", "")
	require.NoError(t, err)

	mallory := e.user("mallory")
	_, err = e.wf.Accept(ctx, inv.ID, mallory.ID)
	assert.Equal(t, apperr.KindPermissionDenied, apperr.KindOf(err))
	assert.Equal(t, "email_mismatch", apperr.ReasonOf(err))

	alice := testutil.NewUser("Alice", "ALICE@example.com")
	alice.Blocked = true
	e.users.Put(alice)
	_, err = e.wf.Accept(ctx, inv.ID, alice.ID)
	assert.Equal(t, apperr.KindPermissionDenied, apperr.KindOf(err))

	_, err = e.wf.Accept(ctx, primitive.NewObjectID(), alice.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	assert.Equal(t, models.InvitationPending, e.stored(t, inv.ID).Status)
}

func TestAccept_ExistingAssignmentIsKept(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	inv, err := e.wf.Invite(ctx, &e.root, "sam@example.com", e.s1.ID, "manager", "")
	require.NoError(t, err)

	// Sam is added directly while the invitation is outstanding.
	sam := e.member("sam", "viewer")

	a, err := e.wf.Accept(ctx, inv.ID, sam.ID)
	require.NoError(t, err)
	assert.Equal(t, "viewer", a.Role)

	got, _ := e.users.Get(sam.ID)
	assert.Len(t, got.AssignedShops, 1)
	assert.Equal(t, models.InvitationAccepted, e.stored(t, inv.ID).Status)
}

type failingAssigner struct{ err error }

func (f failingAssigner) AssignAsSystem(context.Context, primitive.ObjectID, primitive.ObjectID, string, primitive.ObjectID) (models.Assignment, error) {
	return models.Assignment{}, f.err
}

func TestAccept_AssignmentFailureReopens(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.user("alice")

	inv, err := e.wf.Invite(ctx, &e.root, "alice@example.com", e.s1.ID, "staff", "")
	require.NoError(t, err)

	wf := e.workflow(failingAssigner{err: apperr.Internal("membership.assign_system", errors.New("boom"))}, nil)
	_, err = wf.Accept(ctx, inv.ID, alice.ID)
	require.Error(t, err)

	stored := e.stored(t, inv.ID)
	assert.Equal(t, models.InvitationPending, stored.Status)
	assert.Nil(t, stored.RespondedAt)

	// The invitation can still be accepted once the store recovers.
	_, err = e.wf.Accept(ctx, inv.ID, alice.ID)
	require.NoError(t, err)
}

func TestAccept_UsesTxRunner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.user("alice")

	calls := 0
	wf := invitation.New(invitation.Deps{
		Store:   e.invs,
		Users:   e.users,
		Shops:   e.shops,
		Members: e.mgr,
		Now:     e.clock.Now,
		Tx: func(ctx context.Context, fn func(context.Context) error) error {
			calls++
			return fn(ctx)
		},
	}, invitation.Config{BcryptCost: bcrypt.MinCost})

	inv, err := wf.Invite(ctx, &e.root, "alice@example.com", e.s1.ID, "staff", "")
	require.NoError(t, err)
	_, err = wf.Accept(ctx, inv.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestReject_MarksRejectedWithoutAssignment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.user("alice")

	inv, err := e.wf.Invite(ctx, &e.root, "alice@example.com", e.s1.ID, "staff", "")
	require.NoError(t, err)

	require.NoError(t, e.wf.Reject(ctx, inv.ID, alice.ID))
	stored := e.stored(t, inv.ID)
	assert.Equal(t, models.InvitationRejected, stored.Status)
	require.NotNil(t, stored.RespondedAt)

	got, _ := e.users.Get(alice.ID)
	assert.Empty(t, got.AssignedShops)

	err = e.wf.Reject(ctx, inv.ID, alice.ID)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	assert.Len(t, e.sink.OfType(audit.EventInvitationRejected), 1)
}

func TestReject_ExpiredIsInvalidState(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.user("alice")

	inv, err := e.wf.Invite(ctx, &e.root, "alice@example.com", e.s1.ID, "staff", "")
	require.NoError(t, err)
	e.clock.Advance(8 * 24 * time.Hour)

	err = e.wf.Reject(ctx, inv.ID, alice.ID)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	assert.Equal(t, models.InvitationExpired, e.stored(t, inv.ID).Status)
}

func TestAcceptRejectRace_ExactlyOneWins(t *testing.T) {
	for round := 0; round < 20; round++ {
		e := newEnv(t)
		ctx := context.Background()
		alice := e.user("alice")

		inv, err := e.wf.Invite(ctx, &e.root, "alice@example.com", e.s1.ID, "staff", "")
		require.NoError(t, err)

		var acceptErr, rejectErr error
		var g errgroup.Group
		g.Go(func() error {
			_, acceptErr = e.wf.Accept(ctx, inv.ID, alice.ID)
			return nil
		})
		g.Go(func() error {
			rejectErr = e.wf.Reject(ctx, inv.ID, alice.ID)
			return nil
		})
		require.NoError(t, g.Wait())

		stored := e.stored(t, inv.ID)
		got, _ := e.users.Get(alice.ID)
		switch {
		case acceptErr == nil:
			require.Error(t, rejectErr)
			assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(rejectErr))
			assert.Equal(t, models.InvitationAccepted, stored.Status)
			assert.Len(t, got.AssignedShops, 1)
		case rejectErr == nil:
			assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(acceptErr))
			assert.Equal(t, models.InvitationRejected, stored.Status)
			assert.Empty(t, got.AssignedShops)
		default:
			t.Fatalf("both responses failed: accept=%v reject=%v", acceptErr, rejectErr)
		}
	}
}

func TestConcurrentAccepts_SingleAssignment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.user("alice")

	inv, err := e.wf.Invite(ctx, &e.root, "alice@example.com", e.s1.ID, "staff", "")
	require.NoError(t, err)

	const n = 8
	errs := make([]error, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, errs[i] = e.wf.Accept(ctx, inv.ID, alice.ID)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	}
	assert.Equal(t, 1, wins)
	got, _ := e.users.Get(alice.ID)
	assert.Len(t, got.AssignedShops, 1)
}

func TestListForShop_LazyExpiry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	old, err := e.wf.Invite(ctx, &e.root, "old@example.com", e.s1.ID, "staff", "")
	require.NoError(t, err)
	e.clock.Advance(8 * 24 * time.Hour)
	fresh, err := e.wf.Invite(ctx, &e.root, "fresh@example.com", e.s1.ID, "staff", "")
	require.NoError(t, err)

	list, err := e.wf.ListForShop(ctx, &e.root, e.s1.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	status := map[primitive.ObjectID]models.InvitationStatus{}
	for _, inv := range list {
		status[inv.ID] = inv.Status
	}
	assert.Equal(t, models.InvitationExpired, status[old.ID])
	assert.Equal(t, models.InvitationPending, status[fresh.ID])
	assert.Equal(t, models.InvitationExpired, e.stored(t, old.ID).Status)
}

func TestListForShop_RequiresInviteStaff(t *testing.T) {
	e := newEnv(t)
	viewer := e.member("vic", "viewer")

	_, err := e.wf.ListForShop(context.Background(), &viewer, e.s1.ID)
	assert.Equal(t, apperr.KindPermissionDenied, apperr.KindOf(err))
}

func TestListForUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.user("alice")
	s2 := testutil.NewShop("Shop Two")
	e.shops.Put(s2)

	_, err := e.wf.Invite(ctx, &e.root, "alice@example.com", e.s1.ID, "staff", "")
	require.NoError(t, err)
	_, err = e.wf.Invite(ctx, &e.root, "alice@example.com", s2.ID, "viewer", "")
	require.NoError(t, err)
	_, err = e.wf.Invite(ctx, &e.root, "bob@example.com", e.s1.ID, "viewer", "")
	require.NoError(t, err)

	list, err := e.wf.ListForUser(ctx, &alice)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = e.wf.ListForUser(ctx, nil)
	assert.Equal(t, apperr.KindPermissionDenied, apperr.KindOf(err))
}

func TestGetByToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	inv, err := e.wf.Invite(ctx, &e.root, "alice@example.com", e.s1.ID, "staff", "")
	require.NoError(t, err)
	n, ok := e.notifier.Last()
	require.True(t, ok)

	got, err := e.wf.GetByToken(ctx, n.Token)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, got.ID)

	got, err = e.wf.GetByToken(ctx, strings.ToUpper(n.Token))
	require.NoError(t, err)
	assert.Equal(t, inv.ID, got.ID)

	_, err = e.wf.GetByToken(ctx, "garbage")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	// Same prefix, different token.
	forged := []byte(n.Token)
	for i := 14; i < len(forged); i++ {
		if forged[i] != '-' {
			forged[i] = '0'
		}
	}
	if string(forged) != n.Token {
		_, err = e.wf.GetByToken(ctx, string(forged))
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	}

	e.clock.Advance(8 * 24 * time.Hour)
	got, err = e.wf.GetByToken(ctx, n.Token)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationExpired, got.Status)
}
