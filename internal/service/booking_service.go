package service

import (
	"context"
	"log"
	"time"

	apperrors "github.com/aditya/go-waypool/internal/errors"
	"github.com/aditya/go-waypool/internal/models"
	"github.com/aditya/go-waypool/internal/repository"
	"github.com/jmoiron/sqlx"
)

const expiredPendingBatchSize = 100

type BookingService interface {
	CreateBooking(ctx context.Context, tripID, passengerID string, req *models.CreateBookingRequest) (*models.Booking, error)
	ApproveBooking(ctx context.Context, bookingID, actingUserID string) (*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID, actingUserID string) (*models.Booking, error)
	RejectBooking(ctx context.Context, bookingID, actingUserID string, req *models.RejectBookingRequest) (*models.Booking, error)
	ListBookingsForTrip(ctx context.Context, tripID, actingUserID string) ([]*models.BookingResponse, error)
	ListBookingsForPassenger(ctx context.Context, passengerID string) ([]*models.BookingResponse, error)
	ExpirePending(ctx context.Context) (int, error)
	RunExpirySweeper(ctx context.Context, interval time.Duration)
}

type bookingService struct {
	db            *sqlx.DB
	tripRepo      repository.TripRepository
	bookingRepo   repository.BookingRepository
	bookingExpiry time.Duration
}

func NewBookingService(
	db *sqlx.DB,
	tripRepo repository.TripRepository,
	bookingRepo repository.BookingRepository,
	bookingExpiry time.Duration,
) BookingService {
	return &bookingService{
		db:            db,
		tripRepo:      tripRepo,
		bookingRepo:   bookingRepo,
		bookingExpiry: bookingExpiry,
	}
}

// CreateBooking reserves seats and persists the booking as one transaction.
// The conditional decrement in ReserveSeats is the only admission check that
// counts; losers of a seat race get insufficient_seats here, immediately.
func (s *bookingService) CreateBooking(ctx context.Context, tripID, passengerID string, req *models.CreateBookingRequest) (*models.Booking, error) {
	if req.Seats < 1 {
		return nil, apperrors.InvalidInput("seats must be at least 1")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	reserved, err := s.tripRepo.ReserveSeats(ctx, tx, tripID, req.Seats)
	if err != nil {
		return nil, err
	}

	if !reserved {
		// Nothing was decremented; re-read to tell the caller why.
		trip, err := s.tripRepo.GetByIDForUpdate(ctx, tx, tripID)
		if err != nil {
			return nil, err
		}
		if trip == nil {
			return nil, apperrors.NotFound("trip")
		}
		if !trip.IsActive() {
			return nil, apperrors.TripNotActive()
		}
		return nil, apperrors.InsufficientSeats()
	}

	// Row is locked by our decrement; read it for the current price.
	trip, err := s.tripRepo.GetByIDForUpdate(ctx, tx, tripID)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, apperrors.NotFound("trip")
	}

	if trip.DriverID == passengerID {
		return nil, apperrors.InvalidInput("driver cannot book their own trip")
	}

	booking := &models.Booking{
		TripID:         tripID,
		PassengerID:    passengerID,
		SeatsRequested: req.Seats,
		TotalPrice:     float64(req.Seats) * trip.PricePerSeat,
	}

	if err := s.bookingRepo.Create(ctx, tx, booking); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return booking, nil
}

func (s *bookingService) ApproveBooking(ctx context.Context, bookingID, actingUserID string) (*models.Booking, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	booking, err := s.bookingRepo.GetByIDForUpdate(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, apperrors.NotFound("booking")
	}

	trip, err := s.tripRepo.GetByID(ctx, booking.TripID)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, apperrors.NotFound("trip")
	}
	if trip.DriverID != actingUserID {
		return nil, apperrors.NotAuthorized("only the trip's driver may approve bookings")
	}

	if !booking.CanTransitionTo(models.BookingStatusConfirmed) {
		return nil, apperrors.InvalidTransition(booking.Status, models.BookingStatusConfirmed)
	}

	if err := s.bookingRepo.UpdateStatus(ctx, tx, bookingID, models.BookingStatusConfirmed); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	booking.Status = models.BookingStatusConfirmed
	return booking, nil
}

// CancelBooking releases the held seats in the same transaction as the status
// change. A second cancel finds a terminal booking and fails the transition,
// so seats are never released twice.
func (s *bookingService) CancelBooking(ctx context.Context, bookingID, actingUserID string) (*models.Booking, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	booking, err := s.bookingRepo.GetByIDForUpdate(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, apperrors.NotFound("booking")
	}

	trip, err := s.tripRepo.GetByID(ctx, booking.TripID)
	if err != nil {
		return nil, err
	}

	var cancelledBy string
	switch {
	case booking.PassengerID == actingUserID:
		cancelledBy = models.CancelledByPassenger
	case trip != nil && trip.DriverID == actingUserID:
		cancelledBy = models.CancelledByDriver
	default:
		return nil, apperrors.NotAuthorized("only the booking's passenger or the trip's driver may cancel")
	}

	if !booking.CanTransitionTo(models.BookingStatusCancelled) {
		return nil, apperrors.InvalidTransition(booking.Status, models.BookingStatusCancelled)
	}

	if err := s.bookingRepo.MarkCancelled(ctx, tx, bookingID, cancelledBy, nil); err != nil {
		return nil, err
	}
	if err := s.tripRepo.ReleaseSeats(ctx, tx, booking.TripID, booking.SeatsRequested); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	booking.Status = models.BookingStatusCancelled
	booking.CancelledBy = &cancelledBy
	return booking, nil
}

func (s *bookingService) RejectBooking(ctx context.Context, bookingID, actingUserID string, req *models.RejectBookingRequest) (*models.Booking, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	booking, err := s.bookingRepo.GetByIDForUpdate(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, apperrors.NotFound("booking")
	}

	trip, err := s.tripRepo.GetByID(ctx, booking.TripID)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, apperrors.NotFound("trip")
	}
	if trip.DriverID != actingUserID {
		return nil, apperrors.NotAuthorized("only the trip's driver may reject bookings")
	}

	// Reject is narrower than cancel: pending only.
	if booking.Status != models.BookingStatusPending {
		return nil, apperrors.InvalidTransition(booking.Status, models.BookingStatusCancelled)
	}

	var reason *string
	if req != nil && req.Reason != "" {
		reason = &req.Reason
	}

	if err := s.bookingRepo.MarkCancelled(ctx, tx, bookingID, models.CancelledByDriver, reason); err != nil {
		return nil, err
	}
	if err := s.tripRepo.ReleaseSeats(ctx, tx, booking.TripID, booking.SeatsRequested); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	booking.Status = models.BookingStatusCancelled
	booking.RejectedReason = reason
	return booking, nil
}

func (s *bookingService) ListBookingsForTrip(ctx context.Context, tripID, actingUserID string) ([]*models.BookingResponse, error) {
	trip, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, apperrors.NotFound("trip")
	}
	if trip.DriverID != actingUserID {
		return nil, apperrors.NotAuthorized("only the trip's driver may list its bookings")
	}

	bookings, err := s.bookingRepo.ListByTripID(ctx, tripID)
	if err != nil {
		return nil, err
	}

	responses := make([]*models.BookingResponse, 0, len(bookings))
	for _, b := range bookings {
		responses = append(responses, b.ToResponse())
	}
	return responses, nil
}

func (s *bookingService) ListBookingsForPassenger(ctx context.Context, passengerID string) ([]*models.BookingResponse, error) {
	bookings, err := s.bookingRepo.ListByPassengerID(ctx, passengerID)
	if err != nil {
		return nil, err
	}

	responses := make([]*models.BookingResponse, 0, len(bookings))
	for _, b := range bookings {
		response := b.ToResponse()

		// Attach the trip summary for the passenger's list view
		trip, err := s.tripRepo.GetByID(ctx, b.TripID)
		if err == nil && trip != nil {
			response.Trip = trip.ToResponse()
		}

		responses = append(responses, response)
	}
	return responses, nil
}

// ExpirePending cancels pending bookings older than the configured window,
// one transaction per booking so a single bad row doesn't stall the sweep.
func (s *bookingService) ExpirePending(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.bookingExpiry)
	stale, err := s.bookingRepo.ListExpiredPending(ctx, cutoff, expiredPendingBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, b := range stale {
		if err := s.expireOne(ctx, b.ID, cutoff); err != nil {
			log.Printf("failed to expire booking %s: %v", b.ID, err)
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *bookingService) expireOne(ctx context.Context, bookingID string, cutoff time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	booking, err := s.bookingRepo.GetByIDForUpdate(ctx, tx, bookingID)
	if err != nil {
		return err
	}
	// Approved or cancelled since the scan; nothing to do.
	if booking == nil || booking.Status != models.BookingStatusPending || !booking.CreatedAt.Before(cutoff) {
		return nil
	}

	if err := s.bookingRepo.MarkCancelled(ctx, tx, bookingID, models.CancelledBySystem, nil); err != nil {
		return err
	}
	if err := s.tripRepo.ReleaseSeats(ctx, tx, booking.TripID, booking.SeatsRequested); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *bookingService) RunExpirySweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.ExpirePending(ctx)
			if err != nil {
				log.Printf("booking expiry sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("expired %d stale pending bookings", n)
			}
		}
	}
}
