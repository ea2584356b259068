package repository

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/aditya/go-waypool/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type TripRepository interface {
	Create(ctx context.Context, trip *models.Trip) error
	GetByID(ctx context.Context, id string) (*models.Trip, error)
	GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Trip, error)
	ListByStatus(ctx context.Context, status string) ([]*models.Trip, error)
	ListByDriverID(ctx context.Context, driverID string) ([]*models.Trip, error)
	Update(ctx context.Context, tx *sqlx.Tx, trip *models.Trip) error
	ReserveSeats(ctx context.Context, tx *sqlx.Tx, id string, count int) (bool, error)
	ReleaseSeats(ctx context.Context, tx *sqlx.Tx, id string, count int) error
	Close(ctx context.Context, tx *sqlx.Tx, id, status string, reason *string) error
	SearchCandidates(ctx context.Context, filters *models.SearchFilters, limit int) ([]*models.Trip, error)
}

type tripRepository struct {
	db *sqlx.DB
}

func NewTripRepository(db *sqlx.DB) TripRepository {
	return &tripRepository{db: db}
}

func (r *tripRepository) Create(ctx context.Context, trip *models.Trip) error {
	if trip.ID == "" {
		trip.ID = uuid.New().String()
	}
	now := time.Now()
	trip.CreatedAt = now
	trip.UpdatedAt = now
	trip.Status = models.TripStatusActive
	trip.AvailableSeats = trip.TotalSeats

	query := `
		INSERT INTO trips (id, driver_id, vehicle_id, origin, destination, departure_time,
			total_seats, available_seats, price_per_seat, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		trip.ID, trip.DriverID, trip.VehicleID, trip.Origin, trip.Destination,
		trip.DepartureTime, trip.TotalSeats, trip.AvailableSeats, trip.PricePerSeat,
		trip.Status, trip.CreatedAt, trip.UpdatedAt)
	return err
}

func (r *tripRepository) GetByID(ctx context.Context, id string) (*models.Trip, error) {
	var trip models.Trip
	query := `SELECT * FROM trips WHERE id = $1`
	err := r.db.GetContext(ctx, &trip, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &trip, err
}

// GetByIDForUpdate gets a trip with a FOR UPDATE lock (for seat-count mutations)
func (r *tripRepository) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Trip, error) {
	var trip models.Trip
	query := `SELECT * FROM trips WHERE id = $1 FOR UPDATE`
	err := tx.GetContext(ctx, &trip, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &trip, err
}

func (r *tripRepository) ListByStatus(ctx context.Context, status string) ([]*models.Trip, error) {
	trips := []*models.Trip{}
	query := `SELECT * FROM trips WHERE status = $1 ORDER BY departure_time ASC`
	err := r.db.SelectContext(ctx, &trips, query, status)
	return trips, err
}

func (r *tripRepository) ListByDriverID(ctx context.Context, driverID string) ([]*models.Trip, error) {
	trips := []*models.Trip{}
	query := `SELECT * FROM trips WHERE driver_id = $1 ORDER BY departure_time DESC`
	err := r.db.SelectContext(ctx, &trips, query, driverID)
	return trips, err
}

// Update rewrites the mutable trip fields. Callers hold the row lock via
// GetByIDForUpdate so seat-count math never races a reservation.
func (r *tripRepository) Update(ctx context.Context, tx *sqlx.Tx, trip *models.Trip) error {
	trip.UpdatedAt = time.Now()
	query := `
		UPDATE trips
		SET destination = $1, total_seats = $2, available_seats = $3,
			price_per_seat = $4, updated_at = $5
		WHERE id = $6
	`
	_, err := tx.ExecContext(ctx, query,
		trip.Destination, trip.TotalSeats, trip.AvailableSeats,
		trip.PricePerSeat, trip.UpdatedAt, trip.ID)
	return err
}

// ReserveSeats is the linearization point for bookings: a single conditional
// decrement guarded by the trip's row lock. Returns false when the trip is
// missing, closed, or short of seats; the caller disambiguates.
func (r *tripRepository) ReserveSeats(ctx context.Context, tx *sqlx.Tx, id string, count int) (bool, error) {
	query := `
		UPDATE trips
		SET available_seats = available_seats - $2, updated_at = $3
		WHERE id = $1 AND status = $4 AND available_seats >= $2
	`
	res, err := tx.ExecContext(ctx, query, id, count, time.Now(), models.TripStatusActive)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ReleaseSeats returns seats to the pool, capped at total_seats.
func (r *tripRepository) ReleaseSeats(ctx context.Context, tx *sqlx.Tx, id string, count int) error {
	query := `
		UPDATE trips
		SET available_seats = LEAST(total_seats, available_seats + $2), updated_at = $3
		WHERE id = $1
	`
	_, err := tx.ExecContext(ctx, query, id, count, time.Now())
	return err
}

func (r *tripRepository) Close(ctx context.Context, tx *sqlx.Tx, id, status string, reason *string) error {
	query := `UPDATE trips SET status = $1, cancelled_reason = $2, updated_at = $3 WHERE id = $4`
	_, err := tx.ExecContext(ctx, query, status, reason, time.Now(), id)
	return err
}

// SearchCandidates applies the hard exclusion filters in SQL; ranking of the
// survivors happens in the search service.
func (r *tripRepository) SearchCandidates(ctx context.Context, filters *models.SearchFilters, limit int) ([]*models.Trip, error) {
	query := `
		SELECT t.*, u.rating AS driver_rating
		FROM trips t
		JOIN users u ON u.id = t.driver_id
		WHERE t.status = $1 AND t.available_seats > 0
	`
	args := []interface{}{models.TripStatusActive}

	if !filters.Date.IsZero() {
		dayStart := filters.Date
		if filters.Time != nil {
			dayStart = *filters.Time
		}
		dayEnd := filters.Date.AddDate(0, 0, 1)
		args = append(args, dayStart)
		query += ` AND t.departure_time >= $` + strconv.Itoa(len(args))
		args = append(args, dayEnd)
		query += ` AND t.departure_time < $` + strconv.Itoa(len(args))
	}
	if filters.PriceMax != nil {
		args = append(args, *filters.PriceMax)
		query += ` AND t.price_per_seat <= $` + strconv.Itoa(len(args))
	}
	if filters.SeatsMin != nil {
		args = append(args, *filters.SeatsMin)
		query += ` AND t.available_seats >= $` + strconv.Itoa(len(args))
	}
	if filters.RatingMin != nil {
		args = append(args, *filters.RatingMin)
		query += ` AND u.rating >= $` + strconv.Itoa(len(args))
	}

	args = append(args, limit)
	query += ` ORDER BY t.departure_time ASC, t.id ASC LIMIT $` + strconv.Itoa(len(args))

	trips := []*models.Trip{}
	err := r.db.SelectContext(ctx, &trips, query, args...)
	return trips, err
}
