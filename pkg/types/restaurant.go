package types

import "time"

// Restaurant is a venue managed by an owner account.
type Restaurant struct {
	ID          string    `json:"id,omitempty"`
	OwnerID     string    `json:"owner_id" validate:"required"`
	Name        string    `json:"name" validate:"required,max=200"`
	Description string    `json:"description"`
	Cuisine     string    `json:"cuisine"`
	Address     string    `json:"address"`
	Phone       string    `json:"phone"`
	ImageURL    string    `json:"image_url"`
	Rating      float64   `json:"rating" validate:"gte=0,lte=5"`
	IsActive    bool      `json:"is_active"`
	IsFeatured  bool      `json:"is_featured"`
	DeliveryFee float64   `json:"delivery_fee" validate:"gte=0"`
	MinOrder    float64   `json:"min_order" validate:"gte=0"`
	LocationID  string    `json:"location_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RecordID implements Record.
func (r Restaurant) RecordID() string { return r.ID }
