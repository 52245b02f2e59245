package types

// Standard resource (table) names.
const (
	TableRestaurants    = "restaurants"
	TableMenuItems      = "menu_items"
	TableMenuCategories = "menu_categories"
	TableLocations      = "locations"
	TableOrders         = "orders"
	TableUsers          = "users"
	TableTravelTimes    = "travel_times"
)

// StandardTableNames lists all resource tables for enumeration.
var StandardTableNames = []string{
	TableRestaurants,
	TableMenuItems,
	TableMenuCategories,
	TableLocations,
	TableOrders,
	TableUsers,
	TableTravelTimes,
}

// IsStandardTable reports whether name is one of the resource tables.
func IsStandardTable(name string) bool {
	for _, n := range StandardTableNames {
		if n == name {
			return true
		}
	}
	return false
}
