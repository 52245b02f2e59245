package types

import "time"

// MenuItem is a dish offered by a restaurant.
type MenuItem struct {
	ID              string    `json:"id,omitempty"`
	RestaurantID    string    `json:"restaurant_id" validate:"required"`
	CategoryID      string    `json:"category_id"`
	Name            string    `json:"name" validate:"required,max=200"`
	Description     string    `json:"description"`
	Price           float64   `json:"price" validate:"gte=0"`
	ImageURL        string    `json:"image_url"`
	IsAvailable     bool      `json:"is_available"`
	IsFeatured      bool      `json:"is_featured"`
	IsVegetarian    bool      `json:"is_vegetarian"`
	PreparationTime int       `json:"preparation_time" validate:"gte=0"` // minutes
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RecordID implements Record.
func (m MenuItem) RecordID() string { return m.ID }

// MenuCategory groups menu items within a restaurant.
type MenuCategory struct {
	ID           string    `json:"id,omitempty"`
	RestaurantID string    `json:"restaurant_id" validate:"required"`
	Name         string    `json:"name" validate:"required,max=100"`
	Description  string    `json:"description"`
	SortOrder    int       `json:"sort_order"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// RecordID implements Record.
func (c MenuCategory) RecordID() string { return c.ID }
