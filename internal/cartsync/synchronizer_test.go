package cartsync

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/utafrali/storefront/internal/backend"
	"github.com/utafrali/storefront/internal/backend/backendtest"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/notify"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var (
	alice = domain.Principal{UserID: "alice", Username: "alice", Role: domain.RoleCustomer}
	bob   = domain.Principal{UserID: "bob", Username: "bob", Role: domain.RoleCustomer}
)

type fixture struct {
	srv   *backendtest.Server
	carts CartBackend
	inbox *notify.Inbox
	sync  *Synchronizer
	lamp  domain.Product
	desk  domain.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := backendtest.New(t)
	client, err := backend.New(srv.URL(), httpclient.New(httpclient.Config{
		Timeout:         5 * time.Second,
		MaxConnsPerHost: 20,
		UserAgent:       "cartsync-test",
	}), testLogger())
	require.NoError(t, err)

	f := &fixture{srv: srv, carts: client.Carts, inbox: notify.NewInbox(100)}
	f.lamp = srv.SeedProduct(domain.Product{Name: "Lamp", Price: decimal.RequireFromString("10.00"), Stock: 50})
	f.desk = srv.SeedProduct(domain.Product{Name: "Desk", Price: decimal.RequireFromString("120.00"), Stock: 5})
	f.sync = New(f.carts, f.inbox, testLogger())
	t.Cleanup(func() { f.sync.Close(context.Background()) })
	return f
}

// bind binds p and forgets the calls and notifications it produced.
func (f *fixture) bind(t *testing.T, p domain.Principal) {
	t.Helper()
	require.NoError(t, f.sync.Bind(context.Background(), p))
	f.srv.ResetCalls()
	f.inbox.Drain()
}

func (f *fixture) messages() []string {
	var out []string
	for _, n := range f.inbox.Drain() {
		out = append(out, n.Message)
	}
	return out
}

var ignoreFetchedAt = cmpopts.IgnoreFields(domain.CartMirror{}, "FetchedAt")

func refreshCalls(userID string) []string {
	return []string{
		"GET /carts/" + userID,
		"GET /carts/" + userID + "/size",
		"GET /carts/" + userID + "/total",
	}
}

// ============================================================================
// Refresh
// ============================================================================

func TestRefresh_WithoutPrincipalClearsAndCallsNothing(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.sync.Refresh(context.Background()))

	assert.Empty(t, f.srv.Calls())
	snap := f.sync.Snapshot()
	assert.Equal(t, Unbound, snap.Phase)
	assert.Nil(t, snap.Mirror)
}

func TestBind_MissingCartIsCreatedEmpty(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.sync.Bind(context.Background(), alice))

	assert.Equal(t, []string{"GET /carts/alice", "POST /carts/alice"}, f.srv.CallLines())
	m := f.sync.Mirror()
	require.NotNil(t, m)
	assert.NotNil(t, m.Items)
	assert.Empty(t, m.Items)
	assert.Equal(t, 0, m.Count)
	assert.Equal(t, Ready, f.sync.Snapshot().Phase)
}

func TestBind_LoadsExistingCart(t *testing.T) {
	f := newFixture(t)
	f.srv.SeedCart("alice", domain.CartLine{ProductID: f.lamp.ID, ProductName: "Lamp", Quantity: 2, UnitPrice: f.lamp.Price})

	require.NoError(t, f.sync.Bind(context.Background(), alice))

	assert.Equal(t, refreshCalls("alice"), f.srv.CallLines())
	m := f.sync.Mirror()
	require.NotNil(t, m)
	assert.Equal(t, 2, m.Count)
	assert.Equal(t, "20.00", m.Total.StringFixed(2))
}

func TestRefresh_FailureKeepsPreviousMirror(t *testing.T) {
	f := newFixture(t)
	f.srv.SeedCart("alice", domain.CartLine{ProductID: f.lamp.ID, ProductName: "Lamp", Quantity: 1, UnitPrice: f.lamp.Price})
	f.bind(t, alice)
	before := f.sync.Mirror()

	f.srv.Fail(http.MethodGet, "/carts/alice/total", http.StatusInternalServerError)
	err := f.sync.Refresh(context.Background())

	require.Error(t, err)
	var appErr *apperrors.AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Empty(t, cmp.Diff(before, f.sync.Mirror()))
	assert.Equal(t, []string{notify.MsgCartLoadFailed}, f.messages())
	assert.Equal(t, Ready, f.sync.Snapshot().Phase)
}

func TestBind_FailedInitialLoadLeavesNilMirror(t *testing.T) {
	f := newFixture(t)
	f.srv.Fail(http.MethodGet, "/carts/alice", http.StatusServiceUnavailable)

	err := f.sync.Bind(context.Background(), alice)

	require.Error(t, err)
	snap := f.sync.Snapshot()
	assert.Equal(t, Ready, snap.Phase)
	assert.Equal(t, "alice", snap.UserID)
	assert.Nil(t, snap.Mirror)
	assert.Equal(t, []string{notify.MsgCartLoadFailed}, f.messages())
}

func TestRefresh_NetworkFailureIsApplicationError(t *testing.T) {
	f := newFixture(t)
	f.bind(t, alice)
	f.srv.Close()

	err := f.sync.Refresh(context.Background())

	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.True(t, apperrors.IsRemote(err))
}

// ============================================================================
// Mutations
// ============================================================================

func TestAddItem_RefreshesMirrorFromServer(t *testing.T) {
	f := newFixture(t)
	f.bind(t, alice)

	require.NoError(t, f.sync.AddItem(context.Background(), f.lamp.ID, 3))

	want := append([]string{"POST /carts/alice/items"}, refreshCalls("alice")...)
	assert.Equal(t, want, f.srv.CallLines())

	remote, ok := f.srv.Cart("alice")
	require.True(t, ok)
	m := f.sync.Mirror()
	assert.Empty(t, cmp.Diff(remote.Items, m.Items))
	assert.Equal(t, 3, m.Count)
	assert.Equal(t, []string{notify.MsgItemAdded}, f.messages())
}

func TestUpdateItem_ScenarioFromTwoToFive(t *testing.T) {
	f := newFixture(t)
	f.srv.SeedCart("alice", domain.CartLine{ProductID: f.lamp.ID, ProductName: "Lamp", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")})
	f.bind(t, alice)

	require.NoError(t, f.sync.UpdateItem(context.Background(), f.lamp.ID, 5))

	want := &domain.CartMirror{
		UserID: "alice",
		Items: []domain.CartLine{
			{ProductID: f.lamp.ID, ProductName: "Lamp", Quantity: 5, UnitPrice: decimal.RequireFromString("10.00")},
		},
		Count: 5,
		Total: decimal.RequireFromString("50.00"),
	}
	if diff := cmp.Diff(want, f.sync.Mirror(), ignoreFetchedAt); diff != "" {
		t.Errorf("mirror mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{notify.MsgCartUpdated}, f.messages())
}

func TestUpdateItem_NonPositiveQuantityIsRemove(t *testing.T) {
	for _, qty := range []int{0, -1} {
		t.Run(fmt.Sprintf("qty=%d", qty), func(t *testing.T) {
			viaUpdate := newFixture(t)
			viaUpdate.srv.SeedCart("alice", domain.CartLine{ProductID: viaUpdate.lamp.ID, ProductName: "Lamp", Quantity: 2, UnitPrice: decimal.NewFromInt(10)})
			viaUpdate.bind(t, alice)

			viaRemove := newFixture(t)
			viaRemove.srv.SeedCart("alice", domain.CartLine{ProductID: viaRemove.lamp.ID, ProductName: "Lamp", Quantity: 2, UnitPrice: decimal.NewFromInt(10)})
			viaRemove.bind(t, alice)

			require.NoError(t, viaUpdate.sync.UpdateItem(context.Background(), viaUpdate.lamp.ID, qty))
			require.NoError(t, viaRemove.sync.RemoveItem(context.Background(), viaRemove.lamp.ID))

			assert.Equal(t, viaRemove.srv.CallLines(), viaUpdate.srv.CallLines())
			assert.Equal(t, viaRemove.messages(), viaUpdate.messages())
			assert.Empty(t, cmp.Diff(viaRemove.sync.Mirror(), viaUpdate.sync.Mirror(), ignoreFetchedAt))
		})
	}
}

func TestRemoveItem_LastLineYieldsEmptyMirror(t *testing.T) {
	f := newFixture(t)
	f.srv.SeedCart("alice", domain.CartLine{ProductID: f.lamp.ID, ProductName: "Lamp", Quantity: 1, UnitPrice: f.lamp.Price})
	f.bind(t, alice)

	require.NoError(t, f.sync.RemoveItem(context.Background(), f.lamp.ID))

	m := f.sync.Mirror()
	require.NotNil(t, m)
	assert.NotNil(t, m.Items)
	assert.Empty(t, m.Items)
	assert.Equal(t, 0, m.Count)
	assert.True(t, m.Total.IsZero())
}

func TestClear_EmptiesCart(t *testing.T) {
	f := newFixture(t)
	f.srv.SeedCart("alice",
		domain.CartLine{ProductID: f.lamp.ID, ProductName: "Lamp", Quantity: 1, UnitPrice: f.lamp.Price},
		domain.CartLine{ProductID: f.desk.ID, ProductName: "Desk", Quantity: 1, UnitPrice: f.desk.Price},
	)
	f.bind(t, alice)

	require.NoError(t, f.sync.Clear(context.Background()))

	assert.Equal(t, append([]string{"DELETE /carts/alice"}, refreshCalls("alice")...), f.srv.CallLines())
	assert.True(t, f.sync.Mirror().IsEmpty())
	assert.Equal(t, []string{notify.MsgCartCleared}, f.messages())
}

func TestAddItem_WithoutPrincipalMakesNoCalls(t *testing.T) {
	f := newFixture(t)

	err := f.sync.AddItem(context.Background(), f.lamp.ID, 1)

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Empty(t, f.srv.Calls())
	assert.Equal(t, []string{notify.MsgSignInToAdd}, f.messages())
}

func TestMutations_WithoutPrincipalAreRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for name, op := range map[string]func() error{
		"update": func() error { return f.sync.UpdateItem(ctx, f.lamp.ID, 2) },
		"remove": func() error { return f.sync.RemoveItem(ctx, f.lamp.ID) },
		"clear":  func() error { return f.sync.Clear(ctx) },
	} {
		t.Run(name, func(t *testing.T) {
			err := op()
			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, "NOT_SIGNED_IN", appErr.Code)
		})
	}
	assert.Empty(t, f.srv.Calls())
}

func TestAddItem_InvalidQuantityMakesNoCalls(t *testing.T) {
	f := newFixture(t)
	f.bind(t, alice)

	for _, qty := range []int{0, -3} {
		err := f.sync.AddItem(context.Background(), f.lamp.ID, qty)
		assert.True(t, apperrors.IsValidation(err))
	}
	assert.Empty(t, f.srv.Calls())
}

func TestMutationFailure_SkipsRefresh(t *testing.T) {
	f := newFixture(t)
	f.srv.SeedCart("alice", domain.CartLine{ProductID: f.lamp.ID, ProductName: "Lamp", Quantity: 1, UnitPrice: f.lamp.Price})
	f.bind(t, alice)
	before := f.sync.Mirror()
	f.srv.Fail(http.MethodPost, "/carts/alice/items", http.StatusInternalServerError)

	err := f.sync.AddItem(context.Background(), f.desk.ID, 1)

	require.Error(t, err)
	assert.True(t, apperrors.IsRemote(err))
	assert.Equal(t, []string{"POST /carts/alice/items"}, f.srv.CallLines())
	assert.Empty(t, cmp.Diff(before, f.sync.Mirror()))
	assert.Equal(t, []string{notify.MsgAddFailed}, f.messages())
}

// ============================================================================
// Principal switches
// ============================================================================

func TestUnbind_DiscardsMirror(t *testing.T) {
	f := newFixture(t)
	f.bind(t, alice)

	f.sync.Unbind(context.Background())

	snap := f.sync.Snapshot()
	assert.Equal(t, Unbound, snap.Phase)
	assert.Nil(t, snap.Mirror)
	assert.Empty(t, snap.UserID)
}

func TestPrincipalSwitch_DiscardsPreviousMirrorAndStaleResults(t *testing.T) {
	f := newFixture(t)
	f.srv.SeedCart("alice", domain.CartLine{ProductID: f.lamp.ID, ProductName: "Lamp", Quantity: 1, UnitPrice: f.lamp.Price})
	f.srv.SeedCart("bob", domain.CartLine{ProductID: f.desk.ID, ProductName: "Desk", Quantity: 4, UnitPrice: f.desk.Price})
	f.bind(t, alice)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.srv.OnRequest(func(c backendtest.Call) {
		if c.Method == http.MethodPost && c.Path == "/carts/alice/items" {
			close(entered)
			<-release
		}
	})

	aliceErr := make(chan error, 1)
	go func() { aliceErr <- f.sync.AddItem(context.Background(), f.desk.ID, 1) }()
	<-entered

	bobErr := make(chan error, 1)
	go func() { bobErr <- f.sync.Bind(context.Background(), bob) }()

	require.Eventually(t, func() bool { return f.sync.Snapshot().UserID == "bob" }, time.Second, 5*time.Millisecond)
	snap := f.sync.Snapshot()
	assert.Nil(t, snap.Mirror, "alice's mirror must be gone before bob's first read")
	assert.Equal(t, Loading, snap.Phase)

	close(release)
	assert.ErrorIs(t, <-aliceErr, apperrors.ErrStale)
	require.NoError(t, <-bobErr)

	m := f.sync.Mirror()
	require.NotNil(t, m)
	assert.Equal(t, "bob", m.UserID)
	assert.Equal(t, 4, m.Count)
	assert.Equal(t, 0, f.srv.CallCount(http.MethodGet, "/carts/alice"), "no refresh for the stale principal")
	assert.NotContains(t, f.messages(), notify.MsgItemAdded)
}

func TestBind_SameUserOnlyRefreshes(t *testing.T) {
	f := newFixture(t)
	f.srv.SeedCart("alice", domain.CartLine{ProductID: f.lamp.ID, ProductName: "Lamp", Quantity: 1, UnitPrice: f.lamp.Price})
	f.bind(t, alice)
	epoch := f.sync.Snapshot().Epoch

	require.NoError(t, f.sync.Bind(context.Background(), alice))

	assert.Equal(t, epoch, f.sync.Snapshot().Epoch)
	assert.Equal(t, refreshCalls("alice"), f.srv.CallLines())
}

func TestPrepare_DropsMirrorWithoutLoading(t *testing.T) {
	f := newFixture(t)
	f.srv.SeedCart("alice", domain.CartLine{ProductID: f.lamp.ID, ProductName: "Lamp", Quantity: 2, UnitPrice: f.lamp.Price})
	f.bind(t, alice)
	epoch := f.sync.Snapshot().Epoch

	p := bob
	f.sync.Prepare(context.Background(), &p)

	snap := f.sync.Snapshot()
	assert.Nil(t, snap.Mirror)
	assert.Equal(t, "bob", snap.UserID)
	assert.Equal(t, Loading, snap.Phase)
	assert.Greater(t, snap.Epoch, epoch)
	assert.Empty(t, f.srv.Calls())

	f.sync.Prepare(context.Background(), &p)
	assert.Equal(t, snap.Epoch, f.sync.Snapshot().Epoch, "preparing the bound user again is a no-op")

	require.NoError(t, f.sync.Bind(context.Background(), bob))
	assert.Equal(t, snap.Epoch, f.sync.Snapshot().Epoch)
	require.NotNil(t, f.sync.Mirror())
	assert.Equal(t, "bob", f.sync.Mirror().UserID)

	f.sync.Prepare(context.Background(), nil)
	assert.Equal(t, Unbound, f.sync.Snapshot().Phase)
	assert.Nil(t, f.sync.Mirror())
}

// ============================================================================
// Concurrency
// ============================================================================

type trackingBackend struct {
	CartBackend
	active atomic.Int32
	max    atomic.Int32
}

func (b *trackingBackend) track() func() {
	n := b.active.Add(1)
	for {
		m := b.max.Load()
		if n <= m || b.max.CompareAndSwap(m, n) {
			break
		}
	}
	return func() { b.active.Add(-1) }
}

func (b *trackingBackend) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	defer b.track()()
	return b.CartBackend.Get(ctx, userID)
}

func (b *trackingBackend) AddItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	defer b.track()()
	return b.CartBackend.AddItem(ctx, userID, productID, quantity)
}

func (b *trackingBackend) Size(ctx context.Context, userID string) (int, error) {
	defer b.track()()
	return b.CartBackend.Size(ctx, userID)
}

func (b *trackingBackend) Total(ctx context.Context, userID string) (decimal.Decimal, error) {
	defer b.track()()
	return b.CartBackend.Total(ctx, userID)
}

func TestConcurrentMutations_AreSerialized(t *testing.T) {
	f := newFixture(t)
	tracker := &trackingBackend{CartBackend: f.carts}
	s := New(tracker, f.inbox, testLogger())
	defer s.Close(context.Background())
	require.NoError(t, s.Bind(context.Background(), alice))

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(qty int) {
			defer wg.Done()
			assert.NoError(t, s.AddItem(context.Background(), f.lamp.ID, qty))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), tracker.max.Load())
	m := s.Mirror()
	require.NotNil(t, m)
	assert.Equal(t, 36, m.Count)
	remote, _ := f.srv.Cart("alice")
	assert.Empty(t, cmp.Diff(remote.Items, m.Items))
}

func TestDuplicateMutations_AreCoalesced(t *testing.T) {
	f := newFixture(t)
	f.bind(t, alice)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.srv.OnRequest(func(c backendtest.Call) {
		if c.Method == http.MethodPost && c.Path == "/carts/alice/items" {
			once.Do(func() { close(entered) })
			<-release
		}
	})

	const callers = 5
	errs := make(chan error, callers)
	go func() { errs <- f.sync.AddItem(context.Background(), f.lamp.ID, 1) }()
	<-entered
	for i := 1; i < callers; i++ {
		go func() { errs <- f.sync.AddItem(context.Background(), f.lamp.ID, 1) }()
	}
	// Give the duplicates time to join the outstanding call.
	time.Sleep(100 * time.Millisecond)
	close(release)

	for i := 0; i < callers; i++ {
		require.NoError(t, <-errs)
	}
	assert.Equal(t, 1, f.srv.CallCount(http.MethodPost, "/carts/alice/items"))
	assert.Equal(t, 1, f.srv.CallCount(http.MethodGet, "/carts/alice"))
	assert.Equal(t, []string{notify.MsgItemAdded}, f.messages())
	assert.Equal(t, 1, f.sync.Mirror().Count)
}

func TestLoading_ExposedDuringRemoteCall(t *testing.T) {
	f := newFixture(t)
	f.bind(t, alice)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.srv.OnRequest(func(c backendtest.Call) {
		if c.Path == "/carts/alice/total" {
			close(entered)
			<-release
		}
	})

	done := make(chan error, 1)
	go func() { done <- f.sync.Refresh(context.Background()) }()
	<-entered

	snap := f.sync.Snapshot()
	assert.True(t, snap.Loading)
	assert.Equal(t, Loading, snap.Phase)
	assert.True(t, f.sync.Loading())

	close(release)
	require.NoError(t, <-done)
	assert.False(t, f.sync.Loading())
	assert.Equal(t, Ready, f.sync.Snapshot().Phase)
}

func TestMutation_CallerCancellationStopsWaiting(t *testing.T) {
	f := newFixture(t)
	f.bind(t, alice)

	release := make(chan struct{})
	f.srv.OnRequest(func(c backendtest.Call) {
		if c.Method == http.MethodPost {
			<-release
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := f.sync.AddItem(ctx, f.lamp.ID, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr, "callers never see a bare context error")
	assert.Equal(t, http.StatusGatewayTimeout, appErr.Status)

	close(release)
	require.Eventually(t, func() bool {
		m := f.sync.Mirror()
		return m != nil && m.Count == 1
	}, 2*time.Second, 5*time.Millisecond, "the detached call still completes and refreshes")
}

func TestRefresh_CanceledCallerGetsAppError(t *testing.T) {
	f := newFixture(t)
	f.bind(t, alice)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.srv.OnRequest(func(c backendtest.Call) {
		if c.Path == "/carts/alice" {
			once.Do(func() { close(entered) })
			<-release
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.sync.Refresh(ctx) }()
	<-entered
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, apperrors.ErrCanceled)
	assert.Equal(t, apperrors.StatusClientClosedRequest, apperrors.HTTPStatus(err))
}

// ============================================================================
// Subscriptions
// ============================================================================

func TestSubscribe_DeliversLatestSnapshotCopies(t *testing.T) {
	f := newFixture(t)
	ch, cancel := f.sync.Subscribe()
	defer cancel()

	first := <-ch
	assert.Equal(t, Unbound, first.Phase)

	require.NoError(t, f.sync.Bind(context.Background(), alice))
	require.NoError(t, f.sync.AddItem(context.Background(), f.lamp.ID, 2))

	latest := <-ch
	assert.Equal(t, Ready, latest.Phase)
	require.NotNil(t, latest.Mirror)
	assert.Equal(t, 2, latest.Mirror.Count)

	select {
	case extra := <-ch:
		t.Fatalf("expected only the latest snapshot, got another: %+v", extra)
	default:
	}

	latest.Mirror.Items[0].Quantity = 99
	assert.Equal(t, 2, f.sync.Mirror().Items[0].Quantity)
}

func TestSubscribe_CancelClosesChannel(t *testing.T) {
	f := newFixture(t)
	ch, cancel := f.sync.Subscribe()
	<-ch

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
}

func TestClose_ClosesSubscriptions(t *testing.T) {
	f := newFixture(t)
	f.bind(t, alice)
	ch, _ := f.sync.Subscribe()
	<-ch

	f.sync.Close(context.Background())

	for range ch {
	}
	assert.Equal(t, Unbound, f.sync.Snapshot().Phase)
}

// ============================================================================
// Activity
// ============================================================================

type recordingSink struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recordingSink) CartChanged(_ context.Context, c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func TestActivity_ReportedOnSuccessOnly(t *testing.T) {
	f := newFixture(t)
	sink := &recordingSink{}
	s := New(f.carts, f.inbox, testLogger(), WithActivity(sink), WithClock(func() time.Time {
		return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}))
	defer s.Close(context.Background())
	require.NoError(t, s.Bind(context.Background(), alice))

	require.NoError(t, s.AddItem(context.Background(), f.lamp.ID, 2))
	f.srv.Fail(http.MethodDelete, "/carts/alice", http.StatusInternalServerError)
	require.Error(t, s.Clear(context.Background()))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.changes, 1)
	c := sink.changes[0]
	assert.Equal(t, OpAdd, c.Op)
	assert.Equal(t, f.lamp.ID, c.ProductID)
	assert.Equal(t, 2, c.Quantity)
	require.NotNil(t, c.Mirror)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), c.Mirror.FetchedAt)
}

// ============================================================================
// Settle
// ============================================================================

func TestSettle_OtherPrincipalIsStale(t *testing.T) {
	f := newFixture(t)
	f.srv.SeedCart("bob", domain.CartLine{ProductID: f.lamp.ID, ProductName: "Lamp", Quantity: 1, UnitPrice: f.lamp.Price})
	f.bind(t, bob)

	called := false
	err := f.sync.Settle(context.Background(), "alice", func(context.Context, *domain.CartMirror) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, apperrors.ErrStale)
	assert.False(t, called)
	assert.Empty(t, f.srv.Calls())
	assert.Equal(t, 1, f.sync.Mirror().Count)
}

func TestSettle_ClearsAfterSuccess(t *testing.T) {
	f := newFixture(t)
	f.srv.SeedCart("bob", domain.CartLine{ProductID: f.lamp.ID, ProductName: "Lamp", Quantity: 3, UnitPrice: f.lamp.Price})
	f.bind(t, bob)

	var seen *domain.CartMirror
	err := f.sync.Settle(context.Background(), "bob", func(_ context.Context, m *domain.CartMirror) error {
		seen = m
		return nil
	})

	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, 3, seen.Count)
	assert.Equal(t, []string{
		"DELETE /carts/bob",
		"GET /carts/bob",
		"GET /carts/bob/size",
		"GET /carts/bob/total",
	}, f.srv.CallLines())
	assert.True(t, f.sync.Mirror().IsEmpty())
	assert.Equal(t, notify.MsgCartCleared, f.inbox.Drain()[0].Message)
}

func TestSettle_FailureKeepsCart(t *testing.T) {
	f := newFixture(t)
	f.srv.SeedCart("bob", domain.CartLine{ProductID: f.lamp.ID, ProductName: "Lamp", Quantity: 1, UnitPrice: f.lamp.Price})
	f.bind(t, bob)
	boom := apperrors.InvalidInput("nothing to settle")

	err := f.sync.Settle(context.Background(), "bob", func(context.Context, *domain.CartMirror) error { return boom })

	assert.Same(t, boom, err)
	assert.Empty(t, f.srv.Calls())
	assert.Equal(t, 1, f.sync.Mirror().Count)
}

func TestSettle_ClearFailureKeepsResult(t *testing.T) {
	f := newFixture(t)
	f.srv.SeedCart("bob", domain.CartLine{ProductID: f.lamp.ID, ProductName: "Lamp", Quantity: 1, UnitPrice: f.lamp.Price})
	f.bind(t, bob)
	f.srv.Fail(http.MethodDelete, "/carts/bob", http.StatusInternalServerError)

	err := f.sync.Settle(context.Background(), "bob", func(context.Context, *domain.CartMirror) error { return nil })

	require.NoError(t, err)
	assert.Equal(t, 1, f.sync.Mirror().Count)
	assert.Equal(t, notify.MsgClearFailed, f.inbox.Drain()[0].Message)
}

func TestSettle_HoldsOffConcurrentMutations(t *testing.T) {
	f := newFixture(t)
	f.srv.SeedCart("bob", domain.CartLine{ProductID: f.lamp.ID, ProductName: "Lamp", Quantity: 1, UnitPrice: f.lamp.Price})
	f.bind(t, bob)

	entered := make(chan struct{})
	release := make(chan struct{})
	settled := make(chan error, 1)
	go func() {
		settled <- f.sync.Settle(context.Background(), "bob", func(context.Context, *domain.CartMirror) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	added := make(chan error, 1)
	go func() { added <- f.sync.AddItem(context.Background(), f.desk.ID, 1) }()
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, f.srv.CallCount(http.MethodPost, "/carts/bob/items"), "add must wait for settle")

	close(release)
	require.NoError(t, <-settled)
	require.NoError(t, <-added)

	lines := f.srv.CallLines()
	require.NotEmpty(t, lines)
	assert.Equal(t, "DELETE /carts/bob", lines[0])
	m := f.sync.Mirror()
	require.NotNil(t, m)
	require.Len(t, m.Items, 1)
	assert.Equal(t, f.desk.ID, m.Items[0].ProductID)
}
