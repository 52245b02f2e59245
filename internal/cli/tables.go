package cli

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/mesh-intelligence/larder/internal/resource"
	"github.com/mesh-intelligence/larder/pkg/larder"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// table adapts one typed resource to the untyped command line.
type table interface {
	list(ctx context.Context, l *larder.Larder, filter map[string]any) ([]types.Record, error)
	get(ctx context.Context, l *larder.Larder, id string) (types.Record, error)
	create(ctx context.Context, l *larder.Larder, data []byte) (types.Record, error)
	update(ctx context.Context, l *larder.Larder, id string, patch types.Row) (types.Record, error)
	toggle(ctx context.Context, l *larder.Larder, id, field string) (types.Record, error)
	remove(ctx context.Context, l *larder.Larder, id string) error
	header() []string
	columns(r types.Record) []string
}

// binding implements table for records of type T filtered by F.
type binding[T types.Record, F types.Filter] struct {
	res  func(*larder.Larder) *resource.Resource[T]
	head []string
	cols func(T) []string
}

func (b binding[T, F]) list(ctx context.Context, l *larder.Larder, filter map[string]any) ([]types.Record, error) {
	f, err := decodeFilter[F](filter)
	if err != nil {
		return nil, err
	}
	rows, err := b.res(l).List(ctx, f)
	if err != nil {
		return nil, err
	}
	return records(rows), nil
}

func (b binding[T, F]) get(ctx context.Context, l *larder.Larder, id string) (types.Record, error) {
	return b.res(l).Get(ctx, id)
}

func (b binding[T, F]) create(ctx context.Context, l *larder.Larder, data []byte) (types.Record, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidData, err)
	}
	return b.res(l).Create(ctx, v)
}

func (b binding[T, F]) update(ctx context.Context, l *larder.Larder, id string, patch types.Row) (types.Record, error) {
	return b.res(l).Update(ctx, id, patch)
}

func (b binding[T, F]) toggle(ctx context.Context, l *larder.Larder, id, field string) (types.Record, error) {
	return b.res(l).Toggle(ctx, id, field)
}

func (b binding[T, F]) remove(ctx context.Context, l *larder.Larder, id string) error {
	return b.res(l).Delete(ctx, id)
}

func (b binding[T, F]) header() []string { return b.head }

func (b binding[T, F]) columns(r types.Record) []string {
	v, ok := r.(T)
	if !ok {
		return []string{r.RecordID()}
	}
	return b.cols(v)
}

func records[T types.Record](rows []T) []types.Record {
	out := make([]types.Record, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}

// decodeFilter converts key=value pairs into the typed filter F. Unknown keys
// are rejected so a typo cannot silently widen a query.
func decodeFilter[F types.Filter](m map[string]any) (F, error) {
	var f F
	if len(m) == 0 {
		return f, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return f, fmt.Errorf("%w: %v", types.ErrInvalidFilter, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return f, fmt.Errorf("%w: %v", types.ErrInvalidFilter, err)
	}
	return f, nil
}

var tables = map[string]table{
	types.TableRestaurants: binding[types.Restaurant, types.RestaurantFilter]{
		res:  func(l *larder.Larder) *resource.Resource[types.Restaurant] { return l.Restaurants },
		head: []string{"ID", "NAME", "CUISINE", "RATING", "ACTIVE"},
		cols: func(r types.Restaurant) []string {
			return []string{r.ID, r.Name, r.Cuisine, ftoa(r.Rating), strconv.FormatBool(r.IsActive)}
		},
	},
	types.TableMenuItems: binding[types.MenuItem, types.MenuItemFilter]{
		res:  func(l *larder.Larder) *resource.Resource[types.MenuItem] { return l.MenuItems },
		head: []string{"ID", "NAME", "PRICE", "AVAILABLE", "FEATURED"},
		cols: func(m types.MenuItem) []string {
			return []string{m.ID, m.Name, ftoa(m.Price), strconv.FormatBool(m.IsAvailable), strconv.FormatBool(m.IsFeatured)}
		},
	},
	types.TableMenuCategories: binding[types.MenuCategory, types.MenuCategoryFilter]{
		res:  func(l *larder.Larder) *resource.Resource[types.MenuCategory] { return l.MenuCategories },
		head: []string{"ID", "NAME", "RESTAURANT", "ACTIVE"},
		cols: func(c types.MenuCategory) []string {
			return []string{c.ID, c.Name, c.RestaurantID, strconv.FormatBool(c.IsActive)}
		},
	},
	types.TableLocations: binding[types.Location, types.LocationFilter]{
		res:  func(l *larder.Larder) *resource.Resource[types.Location] { return l.Locations },
		head: []string{"ID", "NAME", "CITY", "AREA", "ACTIVE"},
		cols: func(loc types.Location) []string {
			return []string{loc.ID, loc.Name, loc.City, loc.Area, strconv.FormatBool(loc.IsActive)}
		},
	},
	types.TableOrders: binding[types.Order, types.OrderFilter]{
		res:  func(l *larder.Larder) *resource.Resource[types.Order] { return l.Orders },
		head: []string{"ID", "RESTAURANT", "STATUS", "TOTAL", "CREATED"},
		cols: func(o types.Order) []string {
			return []string{o.ID, o.RestaurantID, string(o.Status), ftoa(o.Total), types.FormatTime(o.CreatedAt)}
		},
	},
	types.TableUsers: binding[types.User, types.UserFilter]{
		res:  func(l *larder.Larder) *resource.Resource[types.User] { return l.Users },
		head: []string{"ID", "EMAIL", "NAME", "ROLE", "ACTIVE"},
		cols: func(u types.User) []string {
			return []string{u.ID, u.Email, u.FullName, u.Role, strconv.FormatBool(u.IsActive)}
		},
	},
	types.TableTravelTimes: binding[types.TravelTime, types.TravelTimeFilter]{
		res:  func(l *larder.Larder) *resource.Resource[types.TravelTime] { return l.TravelTimes },
		head: []string{"ID", "FROM", "TO", "MINUTES", "KM"},
		cols: func(t types.TravelTime) []string {
			return []string{t.ID, t.FromLocationID, t.ToLocationID, strconv.Itoa(t.Minutes), ftoa(t.DistanceKM)}
		},
	},
}

// lookupTable returns the binding for name.
func lookupTable(name string) (table, error) {
	t, ok := tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (valid: %s)", types.ErrUnknownResource, name, strings.Join(types.StandardTableNames, ", "))
	}
	return t, nil
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
