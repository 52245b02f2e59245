package larder

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/larder/internal/feed"
	"github.com/mesh-intelligence/larder/pkg/types"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func testConfig(dir, store string) types.Config {
	return types.Config{Backend: types.BackendSQLite, DataDir: dir, CacheStore: store}
}

func openTest(t *testing.T, cfg types.Config, session types.Session) *Larder {
	t.Helper()
	l, err := Open(context.Background(), cfg, Options{
		Now:     func() time.Time { return fixedNow },
		Session: session,
	})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func createRestaurant(t *testing.T, l *Larder, id, owner string) types.Restaurant {
	t.Helper()
	r, err := l.Restaurants.Create(context.Background(), types.Restaurant{
		ID: id, OwnerID: owner, Name: "Restaurant " + id, IsActive: true,
	})
	require.NoError(t, err)
	return r
}

func createOrder(t *testing.T, l *Larder, id, restaurant string) types.Order {
	t.Helper()
	o, err := l.Orders.Create(context.Background(), types.Order{
		ID: id, RestaurantID: restaurant, CustomerID: "c1", Status: types.OrderPending,
		Items: []types.OrderItem{{MenuItemID: "m1", Name: "Soup", Quantity: 2, Price: 4.5}},
		Total: 9,
	})
	require.NoError(t, err)
	return o
}

func TestOpenRejectsBadConfig(t *testing.T) {
	_, err := Open(context.Background(), types.Config{}, Options{})
	assert.ErrorIs(t, err, types.ErrBackendEmpty)

	_, err = Open(context.Background(), types.Config{Backend: types.BackendSQLite, CacheStore: "redis"}, Options{})
	assert.ErrorIs(t, err, types.ErrCacheStoreUnknown)
}

func TestMyRestaurants(t *testing.T) {
	anon := openTest(t, testConfig(t.TempDir(), ""), nil)
	_, err := anon.MyRestaurants(context.Background(), types.RestaurantFilter{})
	assert.ErrorIs(t, err, types.ErrNotAuthenticated)

	l := openTest(t, testConfig(t.TempDir(), ""), types.StaticSession{ID: "owner-1"})
	createRestaurant(t, l, "r1", "owner-1")
	createRestaurant(t, l, "r2", "owner-2")
	createRestaurant(t, l, "r3", "owner-1")

	got, err := l.MyRestaurants(context.Background(), types.RestaurantFilter{OwnerID: types.Ptr("owner-2")})
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, r := range got {
		ids[i] = r.ID
	}
	assert.ElementsMatch(t, []string{"r1", "r3"}, ids)
}

func TestUpdateOrderStatus(t *testing.T) {
	ctx := context.Background()
	l := openTest(t, testConfig(t.TempDir(), ""), nil)
	createOrder(t, l, "o1", "r1")

	o, err := l.UpdateOrderStatus(ctx, "o1", types.OrderConfirmed)
	require.NoError(t, err)
	assert.Equal(t, types.OrderConfirmed, o.Status)
	assert.True(t, fixedNow.Equal(o.UpdatedAt), "stamped with the injected clock, got %s", o.UpdatedAt)

	cached, err := l.Orders.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, types.OrderConfirmed, cached.Status)

	o, err = l.UpdateOrderStatus(ctx, "o1", types.OrderConfirmed)
	require.NoError(t, err)
	assert.Equal(t, types.OrderConfirmed, o.Status)

	_, err = l.UpdateOrderStatus(ctx, "o1", types.OrderDelivered)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	_, err = l.UpdateOrderStatus(ctx, "o1", types.OrderStatus("lost"))
	assert.ErrorIs(t, err, types.ErrInvalidStatus)

	_, err = l.UpdateOrderStatus(ctx, "missing", types.OrderConfirmed)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestToggles(t *testing.T) {
	ctx := context.Background()
	l := openTest(t, testConfig(t.TempDir(), ""), nil)
	createRestaurant(t, l, "r1", "owner-1")
	_, err := l.MenuItems.Create(ctx, types.MenuItem{ID: "m1", RestaurantID: "r1", Name: "Soup", Price: 4.5, IsAvailable: true})
	require.NoError(t, err)

	m, err := l.ToggleMenuItemAvailability(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, m.IsAvailable)

	m, err = l.ToggleMenuItemFeatured(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, m.IsFeatured)

	r, err := l.ToggleRestaurantActive(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, r.IsActive)
}

func TestSetMenuItemImage(t *testing.T) {
	ctx := context.Background()
	l := openTest(t, testConfig(t.TempDir(), ""), nil)
	_, err := l.MenuItems.Create(ctx, types.MenuItem{ID: "m1", RestaurantID: "r1", Name: "Soup"})
	require.NoError(t, err)

	m, err := l.SetMenuItemImage(ctx, "m1", "soup.png", []byte("\x89PNG\r\n\x1a\nrest"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(m.ImageURL, "file://"), m.ImageURL)
	data, err := os.ReadFile(strings.TrimPrefix(m.ImageURL, "file://"))
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\nrest"), data)

	_, err = l.SetMenuItemImage(ctx, "m1", "empty.png", nil)
	assert.ErrorIs(t, err, types.ErrInvalidData)
}

func TestImportExport(t *testing.T) {
	ctx := context.Background()
	src := openTest(t, testConfig(t.TempDir(), ""), nil)
	createRestaurant(t, src, "r1", "owner-1")
	createOrder(t, src, "o1", "r1")

	dir := t.TempDir()
	counts, err := src.Export(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[types.TableOrders])

	dst := openTest(t, testConfig(t.TempDir(), ""), nil)
	_, err = dst.Restaurants.List(ctx, types.RestaurantFilter{})
	require.NoError(t, err)

	counts, err = dst.Import(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[types.TableRestaurants])

	// Import drops cached lists, so the imported row is visible at once.
	got, err := dst.Restaurants.List(ctx, types.RestaurantFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].ID)
}

func TestDurableCacheHydratesOnOpen(t *testing.T) {
	for _, store := range []string{types.CacheStoreSQLite, types.CacheStoreBadger} {
		t.Run(store, func(t *testing.T) {
			ctx := context.Background()
			cfg := testConfig(t.TempDir(), store)

			first, err := Open(ctx, cfg, Options{Now: func() time.Time { return fixedNow }})
			require.NoError(t, err)
			createRestaurant(t, first, "r1", "owner-1")
			got, err := first.Restaurants.List(ctx, types.RestaurantFilter{})
			require.NoError(t, err)
			require.Len(t, got, 1)
			require.NoError(t, first.Close())

			second := openTest(t, cfg, nil)
			_, err = second.sql.DB().ExecContext(ctx, "DELETE FROM restaurants")
			require.NoError(t, err)

			// Within the TTL the hydrated list is served without the backend.
			got, err = second.Restaurants.List(ctx, types.RestaurantFilter{})
			require.NoError(t, err)
			assert.Len(t, got, 1)
		})
	}
}

func collect() (Notifier, <-chan Notification) {
	ch := make(chan Notification, 16)
	return NotifierFunc(func(x Notification) { ch <- x }), ch
}

func waitFor(t *testing.T, ch <-chan Notification) Notification {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
		return Notification{}
	}
}

func assertQuiet(t *testing.T, ch <-chan Notification) {
	t.Helper()
	select {
	case n := <-ch:
		t.Fatalf("unexpected notification %+v", n)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatcherNotifies(t *testing.T) {
	ctx := context.Background()
	l := openTest(t, testConfig(t.TempDir(), ""), nil)
	n, ch := collect()
	w := l.WatchOrders(n)
	defer w.Close()
	require.NoError(t, w.Watch(ctx, "r1"))

	createOrder(t, l, "o2", "r2")
	createOrder(t, l, "o1", "r1")
	got := waitFor(t, ch)
	assert.Equal(t, NewOrder, got.Kind)
	assert.Equal(t, "o1", got.Order.ID)
	assert.Equal(t, types.OrderPending, got.Order.Status)

	_, err := l.UpdateOrderStatus(ctx, "o1", types.OrderConfirmed)
	require.NoError(t, err)
	got = waitFor(t, ch)
	assert.Equal(t, StatusChanged, got.Kind)
	assert.Equal(t, types.OrderPending, got.Previous)
	assert.Equal(t, types.OrderConfirmed, got.Order.Status)

	// A change that keeps the status only invalidates.
	_, err = l.Orders.Update(ctx, "o1", types.Row{"notes": "ring twice"})
	require.NoError(t, err)
	require.NoError(t, l.Orders.Delete(ctx, "o1"))
	assertQuiet(t, ch)
}

func TestWatcherReplacesSubscription(t *testing.T) {
	ctx := context.Background()
	l := openTest(t, testConfig(t.TempDir(), ""), nil)
	hub := l.Feed().(*feed.Hub)
	n, ch := collect()
	w := l.WatchOrders(n)

	require.NoError(t, w.Watch(ctx, "r1"))
	require.NoError(t, w.Watch(ctx, "r1"))
	assert.Equal(t, 1, hub.Len())

	require.NoError(t, w.Watch(ctx, "r2"))
	assert.Equal(t, 1, hub.Len())
	assert.Equal(t, "r2", w.RestaurantID())

	createOrder(t, l, "o1", "r1")
	createOrder(t, l, "o2", "r2")
	got := waitFor(t, ch)
	assert.Equal(t, "o2", got.Order.ID)
	assertQuiet(t, ch)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Equal(t, 0, hub.Len())
}

func TestWatcherResubscribesAfterCancel(t *testing.T) {
	l := openTest(t, testConfig(t.TempDir(), ""), nil)
	hub := l.Feed().(*feed.Hub)
	n, ch := collect()
	w := l.WatchOrders(n)
	t.Cleanup(func() { w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Watch(ctx, "r1"))
	cancel()
	require.Eventually(t, func() bool { return hub.Len() == 0 && w.RestaurantID() == "" },
		2*time.Second, 5*time.Millisecond)

	require.NoError(t, w.Watch(context.Background(), "r1"))
	assert.Equal(t, 1, hub.Len())
	assert.Equal(t, "r1", w.RestaurantID())

	createOrder(t, l, "o1", "r1")
	got := waitFor(t, ch)
	assert.Equal(t, NewOrder, got.Kind)
	assert.Equal(t, "o1", got.Order.ID)
}

func TestWatcherResyncInvalidates(t *testing.T) {
	ctx := context.Background()
	l := openTest(t, testConfig(t.TempDir(), ""), nil)
	createOrder(t, l, "o1", "r1")
	_, err := l.Orders.List(ctx, types.OrderFilter{})
	require.NoError(t, err)
	_, err = l.Orders.Get(ctx, "o1")
	require.NoError(t, err)

	w := l.WatchOrders(nil)
	w.handle(types.ChangeEvent{Table: types.TableOrders, Op: types.ChangeResync})

	// Both entries are gone, so the next read sees a direct write.
	_, err = l.sql.DB().ExecContext(ctx, "DELETE FROM orders")
	require.NoError(t, err)
	got, err := l.Orders.List(ctx, types.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}
