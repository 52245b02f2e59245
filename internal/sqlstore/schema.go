package sqlstore

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// kind is how a column is stored and converted.
type kind int

const (
	kindText kind = iota
	kindInt
	kindReal
	kindBool
	kindJSON
	kindTime
)

type column struct {
	name    string
	kind    kind
	notNull bool
}

type tableSchema struct {
	name    string
	columns []column
	index   []string
}

func (s tableSchema) column(name string) (column, bool) {
	for _, c := range s.columns {
		if c.name == name {
			return c, true
		}
	}
	return column{}, false
}

func (s tableSchema) has(name string) bool {
	_, ok := s.column(name)
	return ok
}

func (s tableSchema) names() []string {
	out := make([]string, len(s.columns))
	for i, c := range s.columns {
		out[i] = c.name
	}
	return out
}

func text(name string) column      { return column{name: name, kind: kindText} }
func textReq(name string) column   { return column{name: name, kind: kindText, notNull: true} }
func integer(name string) column   { return column{name: name, kind: kindInt} }
func float(name string) column     { return column{name: name, kind: kindReal} }
func boolean(name string) column   { return column{name: name, kind: kindBool} }
func jsonCol(name string) column   { return column{name: name, kind: kindJSON} }
func timestamp(name string) column { return column{name: name, kind: kindTime} }

// schemas lists the resource tables in creation order.
var schemas = []tableSchema{
	{
		name: types.TableLocations,
		columns: []column{
			textReq("id"), textReq("name"), text("city"), text("area"),
			float("latitude"), float("longitude"), boolean("is_active"), timestamp("created_at"),
		},
		index: []string{"city"},
	},
	{
		name: types.TableUsers,
		columns: []column{
			textReq("id"), textReq("email"), text("full_name"), text("phone"),
			text("role"), boolean("is_active"), text("avatar_url"), timestamp("created_at"),
		},
		index: []string{"email"},
	},
	{
		name: types.TableRestaurants,
		columns: []column{
			textReq("id"), text("owner_id"), textReq("name"), text("description"),
			text("cuisine"), text("address"), text("phone"), text("image_url"),
			float("rating"), boolean("is_active"), boolean("is_featured"),
			float("delivery_fee"), float("min_order"), text("location_id"),
			timestamp("created_at"), timestamp("updated_at"),
		},
		index: []string{"owner_id", "location_id"},
	},
	{
		name: types.TableMenuCategories,
		columns: []column{
			textReq("id"), textReq("restaurant_id"), textReq("name"), text("description"),
			integer("sort_order"), boolean("is_active"), timestamp("created_at"),
		},
		index: []string{"restaurant_id"},
	},
	{
		name: types.TableMenuItems,
		columns: []column{
			textReq("id"), textReq("restaurant_id"), text("category_id"), textReq("name"),
			text("description"), float("price"), text("image_url"), boolean("is_available"),
			boolean("is_featured"), boolean("is_vegetarian"), integer("preparation_time"),
			timestamp("created_at"), timestamp("updated_at"),
		},
		index: []string{"restaurant_id", "category_id"},
	},
	{
		name: types.TableOrders,
		columns: []column{
			textReq("id"), textReq("restaurant_id"), textReq("customer_id"), textReq("status"),
			jsonCol("items"), float("subtotal"), float("delivery_fee"), float("total"),
			text("delivery_address"), text("notes"), timestamp("created_at"), timestamp("updated_at"),
		},
		index: []string{"restaurant_id", "status"},
	},
	{
		name: types.TableTravelTimes,
		columns: []column{
			textReq("id"), textReq("from_location_id"), textReq("to_location_id"),
			integer("minutes"), float("distance_km"), timestamp("created_at"),
		},
		index: []string{"from_location_id"},
	},
}

func schemaFor(table string) (tableSchema, error) {
	for _, s := range schemas {
		if s.name == table {
			return s, nil
		}
	}
	return tableSchema{}, fmt.Errorf("%w: %s", types.ErrUnknownResource, table)
}

// createTableDDL renders CREATE TABLE IF NOT EXISTS for s in dialect d.
func createTableDDL(d dialect, s tableSchema) string {
	defs := make([]string, 0, len(s.columns))
	for _, c := range s.columns {
		def := c.name + " " + d.columnType(c.kind)
		if c.name == "id" {
			def += " PRIMARY KEY"
		} else if c.notNull {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)", s.name, strings.Join(defs, ",\n    "))
}

func createIndexDDL(s tableSchema) []string {
	out := make([]string, 0, len(s.index))
	for _, col := range s.index {
		out = append(out, fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)", s.name, col, s.name, col))
	}
	return out
}
