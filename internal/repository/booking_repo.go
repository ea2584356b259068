package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/aditya/go-waypool/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type BookingRepository interface {
	Create(ctx context.Context, tx *sqlx.Tx, booking *models.Booking) error
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Booking, error)
	UpdateStatus(ctx context.Context, tx *sqlx.Tx, id, status string) error
	MarkCancelled(ctx context.Context, tx *sqlx.Tx, id, cancelledBy string, reason *string) error
	ListByTripID(ctx context.Context, tripID string) ([]*models.Booking, error)
	ListByPassengerID(ctx context.Context, passengerID string) ([]*models.Booking, error)
	ListSeatHoldersForUpdate(ctx context.Context, tx *sqlx.Tx, tripID string) ([]*models.Booking, error)
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*models.Booking, error)
}

type bookingRepository struct {
	db *sqlx.DB
}

func NewBookingRepository(db *sqlx.DB) BookingRepository {
	return &bookingRepository{db: db}
}

// Create inserts a booking inside the caller's transaction. total_price is
// written once here and never updated afterwards.
func (r *bookingRepository) Create(ctx context.Context, tx *sqlx.Tx, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.New().String()
	}
	now := time.Now()
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Status = models.BookingStatusPending

	query := `
		INSERT INTO bookings (id, trip_id, passenger_id, seats_requested, total_price,
			status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := tx.ExecContext(ctx, query,
		booking.ID, booking.TripID, booking.PassengerID, booking.SeatsRequested,
		booking.TotalPrice, booking.Status, booking.CreatedAt, booking.UpdatedAt)
	return err
}

func (r *bookingRepository) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT * FROM bookings WHERE id = $1`
	err := r.db.GetContext(ctx, &booking, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &booking, err
}

// GetByIDForUpdate locks the booking row so racing retries of
// approve/cancel/reject serialize per booking.
func (r *bookingRepository) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT * FROM bookings WHERE id = $1 FOR UPDATE`
	err := tx.GetContext(ctx, &booking, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &booking, err
}

func (r *bookingRepository) UpdateStatus(ctx context.Context, tx *sqlx.Tx, id, status string) error {
	query := `UPDATE bookings SET status = $1, updated_at = $2 WHERE id = $3`
	_, err := tx.ExecContext(ctx, query, status, time.Now(), id)
	return err
}

func (r *bookingRepository) MarkCancelled(ctx context.Context, tx *sqlx.Tx, id, cancelledBy string, reason *string) error {
	query := `
		UPDATE bookings
		SET status = $1, cancelled_by = $2, rejected_reason = $3, updated_at = $4
		WHERE id = $5
	`
	_, err := tx.ExecContext(ctx, query,
		models.BookingStatusCancelled, cancelledBy, reason, time.Now(), id)
	return err
}

func (r *bookingRepository) ListByTripID(ctx context.Context, tripID string) ([]*models.Booking, error) {
	bookings := []*models.Booking{}
	query := `SELECT * FROM bookings WHERE trip_id = $1 ORDER BY created_at ASC`
	err := r.db.SelectContext(ctx, &bookings, query, tripID)
	return bookings, err
}

func (r *bookingRepository) ListByPassengerID(ctx context.Context, passengerID string) ([]*models.Booking, error) {
	bookings := []*models.Booking{}
	query := `SELECT * FROM bookings WHERE passenger_id = $1 ORDER BY created_at DESC`
	err := r.db.SelectContext(ctx, &bookings, query, passengerID)
	return bookings, err
}

// ListSeatHoldersForUpdate locks every pending and confirmed booking of a trip,
// used when closing the trip cascades onto its bookings.
func (r *bookingRepository) ListSeatHoldersForUpdate(ctx context.Context, tx *sqlx.Tx, tripID string) ([]*models.Booking, error) {
	bookings := []*models.Booking{}
	query := `
		SELECT * FROM bookings
		WHERE trip_id = $1 AND status IN ($2, $3)
		ORDER BY created_at ASC
		FOR UPDATE
	`
	err := tx.SelectContext(ctx, &bookings, query, tripID,
		models.BookingStatusPending, models.BookingStatusConfirmed)
	return bookings, err
}

func (r *bookingRepository) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*models.Booking, error) {
	bookings := []*models.Booking{}
	query := `
		SELECT * FROM bookings
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3
	`
	err := r.db.SelectContext(ctx, &bookings, query, models.BookingStatusPending, cutoff, limit)
	return bookings, err
}
