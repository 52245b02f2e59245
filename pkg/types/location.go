package types

import "time"

// Location is a delivery zone.
type Location struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name" validate:"required"`
	City      string    `json:"city" validate:"required"`
	Area      string    `json:"area"`
	Latitude  float64   `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64   `json:"longitude" validate:"gte=-180,lte=180"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordID implements Record.
func (l Location) RecordID() string { return l.ID }

// TravelTime is the expected delivery time between two locations.
type TravelTime struct {
	ID             string    `json:"id,omitempty"`
	FromLocationID string    `json:"from_location_id" validate:"required"`
	ToLocationID   string    `json:"to_location_id" validate:"required"`
	Minutes        int       `json:"minutes" validate:"gte=0"`
	DistanceKM     float64   `json:"distance_km" validate:"gte=0"`
	CreatedAt      time.Time `json:"created_at"`
}

// RecordID implements Record.
func (t TravelTime) RecordID() string { return t.ID }
