package types

import (
	"strings"
	"time"
)

// SortOrder is a sort direction.
type SortOrder string

// Sort directions. The empty value means the resource default.
const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Filter is a typed filter specification for one resource. Nil pointer
// fields impose no constraint. Two filters that are structurally equal
// produce the same cache key.
type Filter interface {
	// Resource returns the table the filter applies to.
	Resource() string

	// Query translates the filter into predicates, sort and limit.
	Query() Query
}

// Ptr returns a pointer to v, for building filters inline.
func Ptr[T any](v T) *T { return &v }

type queryBuilder struct {
	q Query
}

func (b *queryBuilder) eq(field string, v any) {
	b.q.Predicates = append(b.q.Predicates, Predicate{Field: field, Op: OpEq, Value: v})
}

func (b *queryBuilder) cmp(field string, op Op, v any) {
	b.q.Predicates = append(b.q.Predicates, Predicate{Field: field, Op: op, Value: v})
}

func (b *queryBuilder) ilike(field, v string) {
	b.q.Predicates = append(b.q.Predicates, Predicate{Field: field, Op: OpILike, Value: v})
}

func (b *queryBuilder) search(term string, fields ...string) {
	term = strings.TrimSpace(term)
	if term == "" {
		return
	}
	b.q.Predicates = append(b.q.Predicates, Predicate{Op: OpSearch, Value: term, Fields: fields})
}

func (b *queryBuilder) sort(by string, order SortOrder, defBy string, defOrder SortOrder) {
	if by == "" {
		by = defBy
		if order == "" {
			order = defOrder
		}
	}
	if by == "" {
		return
	}
	b.q.Sort = &Sort{Field: by, Descending: order == SortDesc}
}

func optStr(b *queryBuilder, field string, v *string) {
	if v != nil {
		b.eq(field, *v)
	}
}

func optBool(b *queryBuilder, field string, v *bool) {
	if v != nil {
		b.eq(field, *v)
	}
}

func optNum[T int | float64](b *queryBuilder, field string, op Op, v *T) {
	if v != nil {
		b.cmp(field, op, *v)
	}
}

func optTime(b *queryBuilder, field string, op Op, v *time.Time) {
	if v != nil {
		b.cmp(field, op, FormatTime(*v))
	}
}

// RestaurantFilter selects restaurants.
type RestaurantFilter struct {
	OwnerID    *string   `json:"owner_id,omitempty"`
	LocationID *string   `json:"location_id,omitempty"`
	Cuisine    *string   `json:"cuisine,omitempty"`
	IsActive   *bool     `json:"is_active,omitempty"`
	IsFeatured *bool     `json:"is_featured,omitempty"`
	MinRating  *float64  `json:"min_rating,omitempty"`
	Name       *string   `json:"name,omitempty"`
	Search     *string   `json:"search,omitempty"`
	SortBy     string    `json:"sort_by,omitempty"`
	SortOrder  SortOrder `json:"sort_order,omitempty"`
	Limit      int       `json:"limit,omitempty"`
}

// Resource implements Filter.
func (f RestaurantFilter) Resource() string { return TableRestaurants }

// Query implements Filter. Default order is newest first.
func (f RestaurantFilter) Query() Query {
	var b queryBuilder
	optStr(&b, "owner_id", f.OwnerID)
	optStr(&b, "location_id", f.LocationID)
	optStr(&b, "cuisine", f.Cuisine)
	optBool(&b, "is_active", f.IsActive)
	optBool(&b, "is_featured", f.IsFeatured)
	optNum(&b, "rating", OpGte, f.MinRating)
	if f.Name != nil {
		b.ilike("name", *f.Name)
	}
	if f.Search != nil {
		b.search(*f.Search, "name", "description", "cuisine", "address")
	}
	b.sort(f.SortBy, f.SortOrder, "created_at", SortDesc)
	b.q.Limit = f.Limit
	return b.q
}

// MenuItemFilter selects menu items.
type MenuItemFilter struct {
	RestaurantID *string   `json:"restaurant_id,omitempty"`
	CategoryID   *string   `json:"category_id,omitempty"`
	IsAvailable  *bool     `json:"is_available,omitempty"`
	IsFeatured   *bool     `json:"is_featured,omitempty"`
	IsVegetarian *bool     `json:"is_vegetarian,omitempty"`
	MinPrice     *float64  `json:"min_price,omitempty"`
	MaxPrice     *float64  `json:"max_price,omitempty"`
	Search       *string   `json:"search,omitempty"`
	SortBy       string    `json:"sort_by,omitempty"`
	SortOrder    SortOrder `json:"sort_order,omitempty"`
	Limit        int       `json:"limit,omitempty"`
}

// Resource implements Filter.
func (f MenuItemFilter) Resource() string { return TableMenuItems }

// Query implements Filter. Default order is by name.
func (f MenuItemFilter) Query() Query {
	var b queryBuilder
	optStr(&b, "restaurant_id", f.RestaurantID)
	optStr(&b, "category_id", f.CategoryID)
	optBool(&b, "is_available", f.IsAvailable)
	optBool(&b, "is_featured", f.IsFeatured)
	optBool(&b, "is_vegetarian", f.IsVegetarian)
	optNum(&b, "price", OpGte, f.MinPrice)
	optNum(&b, "price", OpLte, f.MaxPrice)
	if f.Search != nil {
		b.search(*f.Search, "name", "description")
	}
	b.sort(f.SortBy, f.SortOrder, "name", SortAsc)
	b.q.Limit = f.Limit
	return b.q
}

// MenuCategoryFilter selects menu categories.
type MenuCategoryFilter struct {
	RestaurantID *string   `json:"restaurant_id,omitempty"`
	IsActive     *bool     `json:"is_active,omitempty"`
	Search       *string   `json:"search,omitempty"`
	SortBy       string    `json:"sort_by,omitempty"`
	SortOrder    SortOrder `json:"sort_order,omitempty"`
	Limit        int       `json:"limit,omitempty"`
}

// Resource implements Filter.
func (f MenuCategoryFilter) Resource() string { return TableMenuCategories }

// Query implements Filter. Default order is the category's sort_order.
func (f MenuCategoryFilter) Query() Query {
	var b queryBuilder
	optStr(&b, "restaurant_id", f.RestaurantID)
	optBool(&b, "is_active", f.IsActive)
	if f.Search != nil {
		b.search(*f.Search, "name", "description")
	}
	b.sort(f.SortBy, f.SortOrder, "sort_order", SortAsc)
	b.q.Limit = f.Limit
	return b.q
}

// LocationFilter selects locations.
type LocationFilter struct {
	City      *string   `json:"city,omitempty"`
	Area      *string   `json:"area,omitempty"`
	IsActive  *bool     `json:"is_active,omitempty"`
	Search    *string   `json:"search,omitempty"`
	SortBy    string    `json:"sort_by,omitempty"`
	SortOrder SortOrder `json:"sort_order,omitempty"`
	Limit     int       `json:"limit,omitempty"`
}

// Resource implements Filter.
func (f LocationFilter) Resource() string { return TableLocations }

// Query implements Filter. Default order is by name.
func (f LocationFilter) Query() Query {
	var b queryBuilder
	optStr(&b, "city", f.City)
	if f.Area != nil {
		b.ilike("area", *f.Area)
	}
	optBool(&b, "is_active", f.IsActive)
	if f.Search != nil {
		b.search(*f.Search, "name", "city", "area")
	}
	b.sort(f.SortBy, f.SortOrder, "name", SortAsc)
	b.q.Limit = f.Limit
	return b.q
}

// OrderFilter selects orders.
type OrderFilter struct {
	RestaurantID  *string      `json:"restaurant_id,omitempty"`
	CustomerID    *string      `json:"customer_id,omitempty"`
	Status        *OrderStatus `json:"status,omitempty"`
	MinTotal      *float64     `json:"min_total,omitempty"`
	MaxTotal      *float64     `json:"max_total,omitempty"`
	CreatedAfter  *time.Time   `json:"created_after,omitempty"`
	CreatedBefore *time.Time   `json:"created_before,omitempty"`
	Search        *string      `json:"search,omitempty"`
	SortBy        string       `json:"sort_by,omitempty"`
	SortOrder     SortOrder    `json:"sort_order,omitempty"`
	Limit         int          `json:"limit,omitempty"`
}

// Resource implements Filter.
func (f OrderFilter) Resource() string { return TableOrders }

// Query implements Filter. Default order is newest first.
func (f OrderFilter) Query() Query {
	var b queryBuilder
	optStr(&b, "restaurant_id", f.RestaurantID)
	optStr(&b, "customer_id", f.CustomerID)
	if f.Status != nil {
		b.eq("status", string(*f.Status))
	}
	optNum(&b, "total", OpGte, f.MinTotal)
	optNum(&b, "total", OpLte, f.MaxTotal)
	optTime(&b, "created_at", OpGte, f.CreatedAfter)
	optTime(&b, "created_at", OpLte, f.CreatedBefore)
	if f.Search != nil {
		b.search(*f.Search, "delivery_address", "notes")
	}
	b.sort(f.SortBy, f.SortOrder, "created_at", SortDesc)
	b.q.Limit = f.Limit
	return b.q
}

// UserFilter selects user accounts.
type UserFilter struct {
	Role      *string   `json:"role,omitempty"`
	IsActive  *bool     `json:"is_active,omitempty"`
	Email     *string   `json:"email,omitempty"`
	Search    *string   `json:"search,omitempty"`
	SortBy    string    `json:"sort_by,omitempty"`
	SortOrder SortOrder `json:"sort_order,omitempty"`
	Limit     int       `json:"limit,omitempty"`
}

// Resource implements Filter.
func (f UserFilter) Resource() string { return TableUsers }

// Query implements Filter. Default order is newest first.
func (f UserFilter) Query() Query {
	var b queryBuilder
	optStr(&b, "role", f.Role)
	optBool(&b, "is_active", f.IsActive)
	if f.Email != nil {
		b.ilike("email", *f.Email)
	}
	if f.Search != nil {
		b.search(*f.Search, "full_name", "email", "phone")
	}
	b.sort(f.SortBy, f.SortOrder, "created_at", SortDesc)
	b.q.Limit = f.Limit
	return b.q
}

// TravelTimeFilter selects travel times.
type TravelTimeFilter struct {
	FromLocationID *string   `json:"from_location_id,omitempty"`
	ToLocationID   *string   `json:"to_location_id,omitempty"`
	MaxMinutes     *int      `json:"max_minutes,omitempty"`
	SortBy         string    `json:"sort_by,omitempty"`
	SortOrder      SortOrder `json:"sort_order,omitempty"`
	Limit          int       `json:"limit,omitempty"`
}

// Resource implements Filter.
func (f TravelTimeFilter) Resource() string { return TableTravelTimes }

// Query implements Filter. Default order is shortest first.
func (f TravelTimeFilter) Query() Query {
	var b queryBuilder
	optStr(&b, "from_location_id", f.FromLocationID)
	optStr(&b, "to_location_id", f.ToLocationID)
	optNum(&b, "minutes", OpLte, f.MaxMinutes)
	b.sort(f.SortBy, f.SortOrder, "minutes", SortAsc)
	b.q.Limit = f.Limit
	return b.q
}
