package models

import (
	"time"
)

// Trip status constants
const (
	TripStatusActive    = "active"
	TripStatusCompleted = "completed"
	TripStatusCancelled = "cancelled"
)

// Valid trip state transitions
var ValidTripTransitions = map[string][]string{
	TripStatusActive:    {TripStatusCompleted, TripStatusCancelled},
	TripStatusCompleted: {},
	TripStatusCancelled: {},
}

type Trip struct {
	ID              string    `db:"id" json:"id"`
	DriverID        string    `db:"driver_id" json:"driver_id"`
	VehicleID       *string   `db:"vehicle_id" json:"vehicle_id,omitempty"`
	Origin          string    `db:"origin" json:"origin"`
	Destination     string    `db:"destination" json:"destination"`
	DepartureTime   time.Time `db:"departure_time" json:"departure_time"`
	TotalSeats      int       `db:"total_seats" json:"total_seats"`
	AvailableSeats  int       `db:"available_seats" json:"available_seats"`
	PricePerSeat    float64   `db:"price_per_seat" json:"price_per_seat"`
	Status          string    `db:"status" json:"status"`
	CancelledReason *string   `db:"cancelled_reason" json:"cancelled_reason,omitempty"`
	DriverRating    *float64  `db:"driver_rating" json:"driver_rating,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// CreateTripRequest accepts both the canonical field names and the
// from_location/to_location aliases some clients still send.
type CreateTripRequest struct {
	Origin        string    `json:"origin"`
	FromLocation  string    `json:"from_location"`
	Destination   string    `json:"destination"`
	ToLocation    string    `json:"to_location"`
	DepartureTime time.Time `json:"departure_time" validate:"required"`
	TotalSeats    int       `json:"total_seats" validate:"required,gt=0"`
	PricePerSeat  float64   `json:"price_per_seat" validate:"gte=0"`
	Price         *float64  `json:"price,omitempty"`
	VehicleID     string    `json:"vehicle_id,omitempty"`
}

// Normalize folds the alias fields into the canonical ones.
func (r *CreateTripRequest) Normalize() {
	if r.Origin == "" {
		r.Origin = r.FromLocation
	}
	if r.Destination == "" {
		r.Destination = r.ToLocation
	}
	if r.PricePerSeat == 0 && r.Price != nil {
		r.PricePerSeat = *r.Price
	}
}

type UpdateTripRequest struct {
	Destination  *string  `json:"destination,omitempty"`
	ToLocation   *string  `json:"to_location,omitempty"`
	TotalSeats   *int     `json:"total_seats,omitempty" validate:"omitempty,gt=0"`
	PricePerSeat *float64 `json:"price_per_seat,omitempty" validate:"omitempty,gte=0"`
}

func (r *UpdateTripRequest) Normalize() {
	if r.Destination == nil {
		r.Destination = r.ToLocation
	}
}

// SearchFilters is the passenger's query, already parsed from the URL.
type SearchFilters struct {
	Origin      string
	Destination string
	Date        time.Time
	Time        *time.Time
	PriceMax    *float64
	SeatsMin    *int
	RatingMin   *float64
}

// TripResponse is the canonical trip shape plus the legacy aliases
// (from_location/to_location, seats_available) older clients bind to.
type TripResponse struct {
	ID             string    `json:"id"`
	DriverID       string    `json:"driver_id"`
	VehicleID      *string   `json:"vehicle_id,omitempty"`
	Origin         string    `json:"origin"`
	FromLocation   string    `json:"from_location"`
	Destination    string    `json:"destination"`
	ToLocation     string    `json:"to_location"`
	DepartureTime  time.Time `json:"departure_time"`
	TotalSeats     int       `json:"total_seats"`
	AvailableSeats int       `json:"available_seats"`
	SeatsAvailable int       `json:"seats_available"`
	PricePerSeat   float64   `json:"price_per_seat"`
	Status         string    `json:"status"`
	DriverRating   *float64  `json:"driver_rating,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (t *Trip) ToResponse() *TripResponse {
	return &TripResponse{
		ID:             t.ID,
		DriverID:       t.DriverID,
		VehicleID:      t.VehicleID,
		Origin:         t.Origin,
		FromLocation:   t.Origin,
		Destination:    t.Destination,
		ToLocation:     t.Destination,
		DepartureTime:  t.DepartureTime,
		TotalSeats:     t.TotalSeats,
		AvailableSeats: t.AvailableSeats,
		SeatsAvailable: t.AvailableSeats,
		PricePerSeat:   t.PricePerSeat,
		Status:         t.Status,
		DriverRating:   t.DriverRating,
		CreatedAt:      t.CreatedAt,
	}
}

// CanTransitionTo checks if a trip can transition to a new status
func (t *Trip) CanTransitionTo(newStatus string) bool {
	validNextStates, exists := ValidTripTransitions[t.Status]
	if !exists {
		return false
	}

	for _, state := range validNextStates {
		if state == newStatus {
			return true
		}
	}
	return false
}

// IsActive returns true if the trip still accepts bookings
func (t *Trip) IsActive() bool {
	return t.Status == TripStatusActive
}
