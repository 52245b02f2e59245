package resource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/larder/internal/cache"
	"github.com/mesh-intelligence/larder/pkg/types"
)

func menuRows() []types.Row {
	return []types.Row{
		{"id": "m1", "restaurant_id": "r1", "name": "Dal", "price": 7.5, "is_available": true, "is_featured": false},
		{"id": "m2", "restaurant_id": "r1", "name": "Naan", "price": 2.0, "is_available": true, "is_featured": true},
		{"id": "m3", "restaurant_id": "r1", "name": "Biryani", "price": 11.0, "is_available": false, "is_featured": false},
		{"id": "m4", "restaurant_id": "r2", "name": "Ramen", "price": 9.0, "is_available": true, "is_featured": false},
	}
}

func orderRows() []types.Row {
	return []types.Row{
		{"id": "o1", "restaurant_id": "r1", "customer_id": "c1", "status": "pending", "total": 20.0, "created_at": "2026-05-01T10:00:00.000000000Z"},
		{"id": "o2", "restaurant_id": "r1", "customer_id": "c2", "status": "preparing", "total": 35.0, "created_at": "2026-05-01T11:00:00.000000000Z"},
		{"id": "o3", "restaurant_id": "r1", "customer_id": "c1", "status": "delivered", "total": 12.5, "created_at": "2026-05-01T12:00:00.000000000Z"},
	}
}

func newMenuResource(t *testing.T, opts ...Option) (*Resource[types.MenuItem], *fakeBackend, *fakeClock) {
	t.Helper()
	b := newFakeBackend()
	b.seed(types.TableMenuItems, menuRows()...)
	clk := newFakeClock()
	opts = append([]Option{WithClock(clk)}, opts...)
	return New[types.MenuItem](types.TableMenuItems, b, opts...), b, clk
}

func newOrderResource(t *testing.T) (*Resource[types.Order], *fakeBackend) {
	t.Helper()
	b := newFakeBackend()
	b.seed(types.TableOrders, orderRows()...)
	return New[types.Order](types.TableOrders, b, WithClock(newFakeClock())), b
}

func itemIDs(items []types.MenuItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func cachedRows(t *testing.T, r *Resource[types.MenuItem], f types.Filter) []types.Row {
	t.Helper()
	e, ok := r.lists.Get(cache.KeyOf(f))
	require.True(t, ok, "list %s is cached", cache.KeyOf(f))
	return e.Data.Rows
}

func TestListCachesWithinTTL(t *testing.T) {
	r, b, clk := newMenuResource(t)
	ctx := context.Background()
	f := types.MenuItemFilter{RestaurantID: types.Ptr("r1")}

	items, err := r.List(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, []string{"m3", "m1", "m2"}, itemIDs(items), "default order is by name")
	assert.Equal(t, 1, b.count("select"))

	clk.Advance(4*time.Minute + 59*time.Second)
	_, err = r.List(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, 1, b.count("select"), "fresh entry served from cache")

	clk.Advance(2 * time.Second)
	_, err = r.List(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, 2, b.count("select"), "stale entry re-fetched")
}

func TestListZeroTTLAlwaysFetches(t *testing.T) {
	r, b, _ := newMenuResource(t, WithTTL(0))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := r.List(ctx, types.MenuItemFilter{})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, b.count("select"))
}

func TestListDistinctFiltersAreIndependent(t *testing.T) {
	r, b, _ := newMenuResource(t)
	ctx := context.Background()

	avail, err := r.List(ctx, types.MenuItemFilter{RestaurantID: types.Ptr("r1"), IsAvailable: types.Ptr(true)})
	require.NoError(t, err)
	all, err := r.List(ctx, types.MenuItemFilter{RestaurantID: types.Ptr("r1")})
	require.NoError(t, err)

	assert.Len(t, avail, 2)
	assert.Len(t, all, 3)
	assert.Equal(t, 2, b.count("select"))
	assert.Equal(t, 2, r.lists.Len())
}

func TestListRejectsBadFilters(t *testing.T) {
	r, b, _ := newMenuResource(t)
	ctx := context.Background()

	_, err := r.List(ctx, types.OrderFilter{})
	assert.ErrorIs(t, err, types.ErrUnknownResource)

	_, err = r.List(ctx, types.MenuItemFilter{SortBy: "calories"})
	assert.ErrorIs(t, err, types.ErrUnknownField)

	_, err = r.List(ctx, types.MenuItemFilter{Limit: -1})
	assert.ErrorIs(t, err, types.ErrInvalidFilter)

	assert.Zero(t, b.count("select"))
}

func TestFetchErrorIsTypedAndNotCached(t *testing.T) {
	r, b, _ := newMenuResource(t)
	boom := errors.New("connection refused")
	b.failWith(boom)

	_, err := r.List(context.Background(), types.MenuItemFilter{})

	var fe *types.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, types.TableMenuItems, fe.Resource)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, r.lists.Len())

	_, err = r.Get(context.Background(), "m1")
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "m1", fe.ID)
}

func TestGetCachesSingleRecord(t *testing.T) {
	r, b, _ := newMenuResource(t)
	ctx := context.Background()

	item, err := r.Get(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, "Naan", item.Name)

	_, err = r.Get(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, 1, b.count("select"))

	_, err = r.Get(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = r.Get(ctx, "")
	assert.ErrorIs(t, err, types.ErrInvalidID)
}

func TestFetchBypassesFreshEntry(t *testing.T) {
	r, b, _ := newMenuResource(t)
	ctx := context.Background()

	_, err := r.Get(ctx, "m1")
	require.NoError(t, err)
	b.seed(types.TableMenuItems, types.Row{"id": "m1", "restaurant_id": "r1", "name": "Tadka Dal", "price": 7.5, "is_available": true})

	item, err := r.Fetch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Tadka Dal", item.Name)
	assert.Equal(t, 2, b.count("select"))

	item, err = r.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Tadka Dal", item.Name)
	assert.Equal(t, 2, b.count("select"))
}

// Updating one field of a cached record shows up in every cached list
// without another list read.
func TestUpdateReconcilesCachedLists(t *testing.T) {
	r, b, _ := newMenuResource(t)
	ctx := context.Background()
	f := types.MenuItemFilter{RestaurantID: types.Ptr("r1")}

	_, err := r.List(ctx, f)
	require.NoError(t, err)
	_, err = r.Get(ctx, "m1")
	require.NoError(t, err)
	selects := b.count("select")

	updated, err := r.Update(ctx, "m1", types.Row{"is_featured": true})
	require.NoError(t, err)
	assert.True(t, updated.IsFeatured)

	items, err := r.List(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, selects, b.count("select"), "no re-fetch of the list")
	for _, it := range items {
		if it.ID == "m1" {
			assert.True(t, it.IsFeatured)
			assert.Equal(t, "Dal", it.Name, "unchanged fields survive the merge")
		}
	}

	single, err := r.Get(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, single.IsFeatured)
	assert.Equal(t, selects, b.count("select"))
}

func TestUpdateMovesRecordBetweenLists(t *testing.T) {
	r, _, _ := newMenuResource(t)
	ctx := context.Background()
	available := types.MenuItemFilter{RestaurantID: types.Ptr("r1"), IsAvailable: types.Ptr(true)}
	unavailable := types.MenuItemFilter{RestaurantID: types.Ptr("r1"), IsAvailable: types.Ptr(false)}
	other := types.MenuItemFilter{RestaurantID: types.Ptr("r2")}

	for _, f := range []types.Filter{available, unavailable, other} {
		_, err := r.List(ctx, f)
		require.NoError(t, err)
	}
	otherBefore, _ := r.lists.Get(cache.KeyOf(other))

	_, err := r.Update(ctx, "m1", types.Row{"is_available": false})
	require.NoError(t, err)

	assert.Equal(t, []string{"m2"}, rowIDs(cachedRows(t, r, available)), "record leaves a list it no longer matches")
	assert.Equal(t, []string{"m3", "m1"}, rowIDs(cachedRows(t, r, unavailable)), "record joins a list it now matches, in sort order")
	otherAfter, _ := r.lists.Get(cache.KeyOf(other))
	assert.Equal(t, otherBefore.Data, otherAfter.Data, "unrelated list untouched")
}

func TestUpdateResortsInPlace(t *testing.T) {
	r, _, _ := newMenuResource(t)
	ctx := context.Background()
	byPrice := types.MenuItemFilter{RestaurantID: types.Ptr("r1"), SortBy: "price", SortOrder: types.SortAsc}

	_, err := r.List(ctx, byPrice)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m1", "m3"}, rowIDs(cachedRows(t, r, byPrice)))

	_, err = r.Update(ctx, "m2", types.Row{"price": 20.0})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m3", "m2"}, rowIDs(cachedRows(t, r, byPrice)))
}

func TestCreateInsertsIntoMatchingLists(t *testing.T) {
	r, b, _ := newMenuResource(t)
	ctx := context.Background()
	r1 := types.MenuItemFilter{RestaurantID: types.Ptr("r1")}
	r2 := types.MenuItemFilter{RestaurantID: types.Ptr("r2")}
	cheapTop2 := types.MenuItemFilter{RestaurantID: types.Ptr("r1"), SortBy: "price", Limit: 2}

	for _, f := range []types.Filter{r1, r2, cheapTop2} {
		_, err := r.List(ctx, f)
		require.NoError(t, err)
	}
	selects := b.count("select")

	created, err := r.Create(ctx, types.MenuItem{RestaurantID: "r1", Name: "Chai", Price: 1.5, IsAvailable: true})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	assert.Equal(t, []string{"m3", created.ID, "m1", "m2"}, rowIDs(cachedRows(t, r, r1)))
	assert.Equal(t, []string{"m4"}, rowIDs(cachedRows(t, r, r2)))
	assert.Equal(t, []string{created.ID, "m2"}, rowIDs(cachedRows(t, r, cheapTop2)), "re-sorted and truncated to the limit")

	got, err := r.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Chai", got.Name)
	assert.Equal(t, selects, b.count("select"), "single-record entry seeded by create")
}

func TestCreateValidatesBeforeBackend(t *testing.T) {
	r, b, _ := newMenuResource(t)

	_, err := r.Create(context.Background(), types.MenuItem{Name: "Orphan", Price: 3})

	var me *types.MutationError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, types.OpCreate, me.Op)
	assert.ErrorIs(t, err, types.ErrInvalidData)
	assert.Zero(t, b.count("insert"))
}

// Deleting an order shrinks each cached list holding it by exactly one and
// removes its single-record entry.
func TestDeleteRemovesFromEveryEntry(t *testing.T) {
	r, _ := newOrderResource(t)
	ctx := context.Background()
	all := types.OrderFilter{RestaurantID: types.Ptr("r1")}
	pending := types.OrderFilter{Status: types.Ptr(types.OrderPending)}
	delivered := types.OrderFilter{Status: types.Ptr(types.OrderDelivered)}

	before, err := r.List(ctx, all)
	require.NoError(t, err)
	_, err = r.List(ctx, pending)
	require.NoError(t, err)
	_, err = r.List(ctx, delivered)
	require.NoError(t, err)
	_, err = r.Get(ctx, "o1")
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, "o1"))

	e, ok := r.lists.Get(cache.KeyOf(all))
	require.True(t, ok)
	assert.Len(t, e.Data.Rows, len(before)-1)
	assert.Equal(t, -1, indexOf(e.Data.Rows, "o1"))

	e, _ = r.lists.Get(cache.KeyOf(pending))
	assert.Empty(t, e.Data.Rows)
	e, _ = r.lists.Get(cache.KeyOf(delivered))
	assert.Len(t, e.Data.Rows, 1)

	_, ok = r.records.Get(cache.RecordKey(types.TableOrders, "o1"))
	assert.False(t, ok, "single-record entry dropped")
}

func TestFailedMutationLeavesCacheUntouched(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Resource[types.MenuItem]) error
	}{
		{
			name: "update",
			mutate: func(r *Resource[types.MenuItem]) error {
				_, err := r.Update(context.Background(), "m1", types.Row{"price": 1.0})
				return err
			},
		},
		{
			name: "create",
			mutate: func(r *Resource[types.MenuItem]) error {
				_, err := r.Create(context.Background(), types.MenuItem{RestaurantID: "r1", Name: "Chai"})
				return err
			},
		},
		{
			name:   "delete",
			mutate: func(r *Resource[types.MenuItem]) error { return r.Delete(context.Background(), "m1") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, b, _ := newMenuResource(t)
			ctx := context.Background()
			f := types.MenuItemFilter{RestaurantID: types.Ptr("r1")}
			_, err := r.List(ctx, f)
			require.NoError(t, err)
			_, err = r.Get(ctx, "m1")
			require.NoError(t, err)
			listBefore, _ := r.lists.Get(cache.KeyOf(f))
			recBefore, _ := r.records.Get(cache.RecordKey(types.TableMenuItems, "m1"))

			b.failWith(errors.New("permission denied"))
			err = tt.mutate(r)

			var me *types.MutationError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, types.TableMenuItems, me.Resource)

			listAfter, _ := r.lists.Get(cache.KeyOf(f))
			recAfter, _ := r.records.Get(cache.RecordKey(types.TableMenuItems, "m1"))
			assert.Equal(t, listBefore, listAfter)
			assert.Equal(t, recBefore, recAfter)
		})
	}
}

func TestUpdateRejectsBadPatches(t *testing.T) {
	r, b, _ := newMenuResource(t)
	ctx := context.Background()

	_, err := r.Update(ctx, "m1", types.Row{"id": "m9"})
	assert.ErrorIs(t, err, types.ErrInvalidData, "identity never changes")

	_, err = r.Update(ctx, "m1", types.Row{"calories": 300})
	assert.ErrorIs(t, err, types.ErrUnknownField)

	_, err = r.Update(ctx, "m1", types.Row{"price": "cheap"})
	assert.ErrorIs(t, err, types.ErrInvalidData)

	_, err = r.Update(ctx, "missing", types.Row{"price": 1.0})
	assert.ErrorIs(t, err, types.ErrNotFound)

	assert.Equal(t, 1, b.count("update"), "only the well-formed patch reached the backend")
}

func TestToggle(t *testing.T) {
	r, _, _ := newMenuResource(t)
	ctx := context.Background()

	item, err := r.Toggle(ctx, "m1", "is_featured")
	require.NoError(t, err)
	assert.True(t, item.IsFeatured)

	item, err = r.Toggle(ctx, "m1", "is_featured")
	require.NoError(t, err)
	assert.False(t, item.IsFeatured)

	_, err = r.Toggle(ctx, "m1", "price")
	assert.ErrorIs(t, err, types.ErrNotToggleable)

	_, err = r.Toggle(ctx, "m1", "spicy")
	assert.ErrorIs(t, err, types.ErrUnknownField)

	var me *types.MutationError
	_, err = r.Toggle(ctx, "missing", "is_featured")
	require.ErrorAs(t, err, &me)
	assert.Equal(t, types.OpToggle, me.Op)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

// A read whose caller goes away before the backend answers never writes the
// cache.
func TestCancelledReadDoesNotWriteCache(t *testing.T) {
	r, b, _ := newMenuResource(t)
	ctx, cancel := context.WithCancel(context.Background())
	b.beforeSelectReturn = func(context.Context) { cancel() }

	_, err := r.List(ctx, types.MenuItemFilter{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, r.lists.Len())

	_, err = r.Get(ctx, "m1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, r.records.Len())
}

// A read that started before a mutation must not overwrite the reconciled
// state when it completes afterwards.
func TestReadRacingMutationIsRejected(t *testing.T) {
	r, b, _ := newMenuResource(t)
	ctx := context.Background()
	f := types.MenuItemFilter{RestaurantID: types.Ptr("r1")}

	_, err := r.List(ctx, f)
	require.NoError(t, err)
	stale := types.MenuItemFilter{RestaurantID: types.Ptr("r1"), IsFeatured: types.Ptr(false)}

	b.beforeSelectReturn = func(context.Context) {
		b.beforeSelectReturn = nil
		_, err := r.Update(ctx, "m1", types.Row{"is_featured": true})
		require.NoError(t, err)
	}

	items, err := r.List(ctx, stale)
	require.NoError(t, err)
	assert.Contains(t, itemIDs(items), "m1", "the read itself returns what the backend sent")

	_, ok := r.lists.Get(cache.KeyOf(stale))
	assert.False(t, ok, "superseded read was not cached")

	rows := cachedRows(t, r, f)
	idx := indexOf(rows, "m1")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, true, rows[idx]["is_featured"], "reconciled state kept")
}

func TestInvalidate(t *testing.T) {
	r, b, _ := newMenuResource(t)
	ctx := context.Background()
	_, err := r.List(ctx, types.MenuItemFilter{})
	require.NoError(t, err)
	_, err = r.Get(ctx, "m1")
	require.NoError(t, err)

	assert.Equal(t, 1, r.InvalidateLists())
	assert.Equal(t, 1, r.records.Len())

	_, err = r.List(ctx, types.MenuItemFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, b.count("select"))

	assert.Equal(t, 2, r.Invalidate())
	assert.Zero(t, r.lists.Len()+r.records.Len())
}

func TestDurableStoreSurvivesRestart(t *testing.T) {
	store := newMemKV()
	clk := newFakeClock()
	b := newFakeBackend()
	b.seed(types.TableMenuItems, menuRows()...)
	ctx := context.Background()
	f := types.MenuItemFilter{RestaurantID: types.Ptr("r1")}

	first := New[types.MenuItem](types.TableMenuItems, b, WithClock(clk), WithStore(store))
	_, err := first.List(ctx, f)
	require.NoError(t, err)
	_, err = first.Get(ctx, "m1")
	require.NoError(t, err)
	_, err = first.Update(ctx, "m1", types.Row{"name": "Dal Makhani"})
	require.NoError(t, err)
	selects := b.count("select")

	second := New[types.MenuItem](types.TableMenuItems, b, WithClock(clk), WithStore(store))
	require.NoError(t, second.Hydrate(ctx))

	items, err := second.List(ctx, f)
	require.NoError(t, err)
	item, err := second.Get(ctx, "m1")
	require.NoError(t, err)

	assert.Equal(t, selects, b.count("select"), "served from the durable entries")
	assert.Equal(t, "Dal Makhani", item.Name, "durable single record was reconciled")
	assert.Contains(t, itemIDs(items), "m1")
	for _, it := range items {
		if it.ID == "m1" {
			assert.Equal(t, "Dal Makhani", it.Name, "durable list was reconciled")
		}
	}

	require.NoError(t, second.Delete(ctx, "m1"))
	_, err = store.Get(ctx, cache.RecordKey(types.TableMenuItems, "m1"))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSave(t *testing.T) {
	r, _, _ := newMenuResource(t)
	ctx := context.Background()

	item, err := r.Get(ctx, "m3")
	require.NoError(t, err)
	item.Price = 12
	item.IsAvailable = true

	saved, err := r.Save(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, 12.0, saved.Price)
	assert.True(t, saved.IsAvailable)

	_, err = r.Save(ctx, types.MenuItem{Name: "x", RestaurantID: "r1"})
	assert.ErrorIs(t, err, types.ErrInvalidID)
}

func rowIDs(rows []types.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID()
	}
	return out
}
