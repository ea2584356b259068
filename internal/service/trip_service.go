package service

import (
	"context"
	"log"
	"strings"
	"time"

	apperrors "github.com/aditya/go-waypool/internal/errors"
	"github.com/aditya/go-waypool/internal/models"
	"github.com/aditya/go-waypool/internal/repository"
	"github.com/jmoiron/sqlx"
)

type TripService interface {
	CreateTrip(ctx context.Context, driverID string, req *models.CreateTripRequest) (*models.Trip, error)
	GetTrip(ctx context.Context, id string) (*models.Trip, error)
	ListTrips(ctx context.Context, status string) ([]*models.Trip, error)
	ListDriverTrips(ctx context.Context, driverID string) ([]*models.Trip, error)
	UpdateTrip(ctx context.Context, id, actingUserID string, req *models.UpdateTripRequest) (*models.Trip, error)
	CancelTrip(ctx context.Context, id, actingUserID, reason string) error
	CompleteTrip(ctx context.Context, id, actingUserID string) (*models.Trip, error)
}

type tripService struct {
	db          *sqlx.DB
	tripRepo    repository.TripRepository
	bookingRepo repository.BookingRepository
	userRepo    repository.UserRepository
}

func NewTripService(
	db *sqlx.DB,
	tripRepo repository.TripRepository,
	bookingRepo repository.BookingRepository,
	userRepo repository.UserRepository,
) TripService {
	return &tripService{
		db:          db,
		tripRepo:    tripRepo,
		bookingRepo: bookingRepo,
		userRepo:    userRepo,
	}
}

func (s *tripService) CreateTrip(ctx context.Context, driverID string, req *models.CreateTripRequest) (*models.Trip, error) {
	req.Normalize()

	if strings.TrimSpace(req.Origin) == "" || strings.TrimSpace(req.Destination) == "" {
		return nil, apperrors.InvalidInput("origin and destination are required")
	}
	if req.TotalSeats <= 0 {
		return nil, apperrors.InvalidInput("total_seats must be greater than zero")
	}
	if req.PricePerSeat < 0 {
		return nil, apperrors.InvalidInput("price_per_seat cannot be negative")
	}
	if !req.DepartureTime.After(time.Now()) {
		return nil, apperrors.InvalidInput("departure_time must be in the future")
	}

	driver, err := s.userRepo.GetByID(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if driver == nil {
		return nil, apperrors.NotFound("driver")
	}

	trip := &models.Trip{
		DriverID:      driverID,
		Origin:        strings.TrimSpace(req.Origin),
		Destination:   strings.TrimSpace(req.Destination),
		DepartureTime: req.DepartureTime,
		TotalSeats:    req.TotalSeats,
		PricePerSeat:  req.PricePerSeat,
	}
	if req.VehicleID != "" {
		trip.VehicleID = &req.VehicleID
	}

	if err := s.tripRepo.Create(ctx, trip); err != nil {
		return nil, err
	}

	return trip, nil
}

func (s *tripService) GetTrip(ctx context.Context, id string) (*models.Trip, error) {
	trip, err := s.tripRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, apperrors.NotFound("trip")
	}
	return trip, nil
}

func (s *tripService) ListTrips(ctx context.Context, status string) ([]*models.Trip, error) {
	if status == "" {
		status = models.TripStatusActive
	}
	if _, ok := models.ValidTripTransitions[status]; !ok {
		return nil, apperrors.InvalidInput("unknown trip status")
	}
	return s.tripRepo.ListByStatus(ctx, status)
}

func (s *tripService) ListDriverTrips(ctx context.Context, driverID string) ([]*models.Trip, error) {
	return s.tripRepo.ListByDriverID(ctx, driverID)
}

// UpdateTrip applies a partial update under the trip's row lock. total_seats
// may move in either direction but never below the seats already committed;
// available_seats shifts by the same delta. Price changes affect only future
// bookings.
func (s *tripService) UpdateTrip(ctx context.Context, id, actingUserID string, req *models.UpdateTripRequest) (*models.Trip, error) {
	req.Normalize()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	trip, err := s.tripRepo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, apperrors.NotFound("trip")
	}
	if trip.DriverID != actingUserID {
		return nil, apperrors.NotAuthorized("only the trip's driver may update it")
	}
	if !trip.IsActive() {
		return nil, apperrors.TripNotActive()
	}

	if req.Destination != nil && strings.TrimSpace(*req.Destination) != "" {
		trip.Destination = strings.TrimSpace(*req.Destination)
	}
	if req.PricePerSeat != nil {
		if *req.PricePerSeat < 0 {
			return nil, apperrors.InvalidInput("price_per_seat cannot be negative")
		}
		trip.PricePerSeat = *req.PricePerSeat
	}
	if req.TotalSeats != nil {
		committed := trip.TotalSeats - trip.AvailableSeats
		if *req.TotalSeats < committed {
			return nil, apperrors.InvalidInput("total_seats cannot go below seats already booked")
		}
		trip.AvailableSeats = *req.TotalSeats - committed
		trip.TotalSeats = *req.TotalSeats
	}

	if err := s.tripRepo.Update(ctx, tx, trip); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return trip, nil
}

// CancelTrip closes the trip and force-cancels every seat-holding booking in
// the same transaction. Seats are released booking by booking so the seat
// conservation invariant holds even on the terminal row.
func (s *tripService) CancelTrip(ctx context.Context, id, actingUserID, reason string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	trip, err := s.tripRepo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if trip == nil {
		return apperrors.NotFound("trip")
	}
	if trip.DriverID != actingUserID {
		return apperrors.NotAuthorized("only the trip's driver may cancel it")
	}
	if !trip.CanTransitionTo(models.TripStatusCancelled) {
		return apperrors.InvalidTransition(trip.Status, models.TripStatusCancelled)
	}

	holders, err := s.bookingRepo.ListSeatHoldersForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	for _, b := range holders {
		if err := s.bookingRepo.MarkCancelled(ctx, tx, b.ID, models.CancelledByDriver, &reason); err != nil {
			return err
		}
		if err := s.tripRepo.ReleaseSeats(ctx, tx, id, b.SeatsRequested); err != nil {
			return err
		}
	}

	var cancelReason *string
	if reason != "" {
		cancelReason = &reason
	}
	if err := s.tripRepo.Close(ctx, tx, id, models.TripStatusCancelled, cancelReason); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if len(holders) > 0 {
		log.Printf("trip %s cancelled, force-cancelled %d bookings", id, len(holders))
	}
	return nil
}

// CompleteTrip marks the trip done: confirmed bookings roll to completed,
// never-approved pending ones are cancelled with their seats returned.
func (s *tripService) CompleteTrip(ctx context.Context, id, actingUserID string) (*models.Trip, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	trip, err := s.tripRepo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, apperrors.NotFound("trip")
	}
	if trip.DriverID != actingUserID {
		return nil, apperrors.NotAuthorized("only the trip's driver may complete it")
	}
	if !trip.CanTransitionTo(models.TripStatusCompleted) {
		return nil, apperrors.InvalidTransition(trip.Status, models.TripStatusCompleted)
	}

	holders, err := s.bookingRepo.ListSeatHoldersForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	for _, b := range holders {
		switch b.Status {
		case models.BookingStatusConfirmed:
			if err := s.bookingRepo.UpdateStatus(ctx, tx, b.ID, models.BookingStatusCompleted); err != nil {
				return nil, err
			}
		case models.BookingStatusPending:
			if err := s.bookingRepo.MarkCancelled(ctx, tx, b.ID, models.CancelledBySystem, nil); err != nil {
				return nil, err
			}
			if err := s.tripRepo.ReleaseSeats(ctx, tx, id, b.SeatsRequested); err != nil {
				return nil, err
			}
		}
	}

	if err := s.tripRepo.Close(ctx, tx, id, models.TripStatusCompleted, nil); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	trip.Status = models.TripStatusCompleted
	return trip, nil
}
