package models

import (
	"time"
)

// Booking status constants
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
	BookingStatusCompleted = "completed"
)

// Who triggered a cancellation
const (
	CancelledByPassenger = "passenger"
	CancelledByDriver    = "driver"
	CancelledBySystem    = "system"
)

// Valid booking state transitions
var ValidBookingTransitions = map[string][]string{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCancelled, BookingStatusCompleted},
	BookingStatusCancelled: {},
	BookingStatusCompleted: {},
}

type Booking struct {
	ID             string    `db:"id" json:"id"`
	TripID         string    `db:"trip_id" json:"trip_id"`
	PassengerID    string    `db:"passenger_id" json:"passenger_id"`
	SeatsRequested int       `db:"seats_requested" json:"seats_requested"`
	TotalPrice     float64   `db:"total_price" json:"total_price"`
	Status         string    `db:"status" json:"status"`
	RejectedReason *string   `db:"rejected_reason" json:"rejected_reason,omitempty"`
	CancelledBy    *string   `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

type CreateBookingRequest struct {
	Seats int `json:"seats" validate:"required,gte=1"`
}

type RejectBookingRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

type BookingResponse struct {
	ID             string        `json:"id"`
	TripID         string        `json:"trip_id"`
	PassengerID    string        `json:"passenger_id"`
	SeatsRequested int           `json:"seats_requested"`
	TotalPrice     float64       `json:"total_price"`
	Status         string        `json:"status"`
	RejectedReason *string       `json:"rejected_reason,omitempty"`
	CancelledBy    *string       `json:"cancelled_by,omitempty"`
	Trip           *TripResponse `json:"trip,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

func (b *Booking) ToResponse() *BookingResponse {
	return &BookingResponse{
		ID:             b.ID,
		TripID:         b.TripID,
		PassengerID:    b.PassengerID,
		SeatsRequested: b.SeatsRequested,
		TotalPrice:     b.TotalPrice,
		Status:         b.Status,
		RejectedReason: b.RejectedReason,
		CancelledBy:    b.CancelledBy,
		CreatedAt:      b.CreatedAt,
	}
}

// CanTransitionTo checks if a booking can transition to a new status
func (b *Booking) CanTransitionTo(newStatus string) bool {
	validNextStates, exists := ValidBookingTransitions[b.Status]
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

// IsTerminal returns true once a booking can no longer change state
func (b *Booking) IsTerminal() bool {
	return b.Status == BookingStatusCancelled || b.Status == BookingStatusCompleted
}

// HoldsSeats reports whether the booking still counts against the trip's
// seat pool. Cancelled bookings have released their seats; completed ones
// consumed them.
func (b *Booking) HoldsSeats() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}
