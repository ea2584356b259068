package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	apperrors "github.com/aditya/go-waypool/internal/errors"
	"github.com/aditya/go-waypool/internal/models"
	"github.com/aditya/go-waypool/internal/repository"
	"github.com/jmoiron/sqlx"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	db := sqlx.NewDb(mockDB, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func newBookingService(db *sqlx.DB) BookingService {
	return NewBookingService(db, repository.NewTripRepository(db), repository.NewBookingRepository(db), 30*time.Minute)
}

func tripColumns() []string {
	return []string{
		"id", "driver_id", "vehicle_id", "origin", "destination", "departure_time",
		"total_seats", "available_seats", "price_per_seat", "status",
		"cancelled_reason", "created_at", "updated_at",
	}
}

func tripRow(id, driverID string, available int, pricePerSeat float64, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(tripColumns()).AddRow(
		id, driverID, nil, "Koramangala", "Whitefield", now.Add(24*time.Hour),
		3, available, pricePerSeat, status, nil, now, now,
	)
}

func bookingColumns() []string {
	return []string{
		"id", "trip_id", "passenger_id", "seats_requested", "total_price",
		"status", "rejected_reason", "cancelled_by", "created_at", "updated_at",
	}
}

func bookingRow(id, tripID, passengerID string, seats int, status string, createdAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(bookingColumns()).AddRow(
		id, tripID, passengerID, seats, 300.0, status, nil, nil, createdAt, createdAt,
	)
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *apperrors.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %s, want %s", apiErr.Code, code)
	}
}

var (
	reserveSeatsSQL  = regexp.QuoteMeta("SET available_seats = available_seats - $2")
	releaseSeatsSQL  = regexp.QuoteMeta("SET available_seats = LEAST(total_seats, available_seats + $2)")
	tripForUpdateSQL = regexp.QuoteMeta("SELECT * FROM trips WHERE id = $1 FOR UPDATE")
	tripByIDSQL      = regexp.QuoteMeta("SELECT * FROM trips WHERE id = $1")
	bookForUpdateSQL = regexp.QuoteMeta("SELECT * FROM bookings WHERE id = $1 FOR UPDATE")
	insertBookingSQL = regexp.QuoteMeta("INSERT INTO bookings")
	markCancelledSQL = regexp.QuoteMeta("SET status = $1, cancelled_by = $2, rejected_reason = $3")
)

func TestCreateBookingReservesAndPersists(t *testing.T) {
	db, mock := newMockDB(t)
	svc := newBookingService(db)

	mock.ExpectBegin()
	mock.ExpectExec(reserveSeatsSQL).
		WithArgs("trip-1", 2, sqlmock.AnyArg(), models.TripStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(tripForUpdateSQL).
		WithArgs("trip-1").
		WillReturnRows(tripRow("trip-1", "driver-1", 1, 1000, models.TripStatusActive))
	mock.ExpectExec(insertBookingSQL).
		WithArgs(sqlmock.AnyArg(), "trip-1", "passenger-1", 2, 2000.0,
			models.BookingStatusPending, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	booking, err := svc.CreateBooking(context.Background(), "trip-1", "passenger-1", &models.CreateBookingRequest{Seats: 2})
	if err != nil {
		t.Fatalf("CreateBooking() error = %v", err)
	}
	if booking.Status != models.BookingStatusPending {
		t.Errorf("status = %s, want pending", booking.Status)
	}
	if booking.TotalPrice != 2000 {
		t.Errorf("total_price = %v, want 2000 (2 seats at 1000)", booking.TotalPrice)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateBookingInsufficientSeats(t *testing.T) {
	db, mock := newMockDB(t)
	svc := newBookingService(db)

	mock.ExpectBegin()
	mock.ExpectExec(reserveSeatsSQL).
		WithArgs("trip-1", 3, sqlmock.AnyArg(), models.TripStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(tripForUpdateSQL).
		WithArgs("trip-1").
		WillReturnRows(tripRow("trip-1", "driver-1", 1, 1000, models.TripStatusActive))
	mock.ExpectRollback()

	_, err := svc.CreateBooking(context.Background(), "trip-1", "passenger-1", &models.CreateBookingRequest{Seats: 3})
	assertAPIErrorCode(t, err, "insufficient_seats")

	// No booking insert may happen when the reservation fails.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateBookingTripNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	svc := newBookingService(db)

	mock.ExpectBegin()
	mock.ExpectExec(reserveSeatsSQL).
		WithArgs("missing", 1, sqlmock.AnyArg(), models.TripStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(tripForUpdateSQL).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := svc.CreateBooking(context.Background(), "missing", "passenger-1", &models.CreateBookingRequest{Seats: 1})
	assertAPIErrorCode(t, err, "not_found")
}

func TestCreateBookingTripNotActive(t *testing.T) {
	db, mock := newMockDB(t)
	svc := newBookingService(db)

	mock.ExpectBegin()
	mock.ExpectExec(reserveSeatsSQL).
		WithArgs("trip-1", 1, sqlmock.AnyArg(), models.TripStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(tripForUpdateSQL).
		WithArgs("trip-1").
		WillReturnRows(tripRow("trip-1", "driver-1", 2, 1000, models.TripStatusCancelled))
	mock.ExpectRollback()

	_, err := svc.CreateBooking(context.Background(), "trip-1", "passenger-1", &models.CreateBookingRequest{Seats: 1})
	assertAPIErrorCode(t, err, "trip_not_active")
}

func TestCreateBookingRejectsZeroSeats(t *testing.T) {
	db, _ := newMockDB(t)
	svc := newBookingService(db)

	_, err := svc.CreateBooking(context.Background(), "trip-1", "passenger-1", &models.CreateBookingRequest{Seats: 0})
	assertAPIErrorCode(t, err, "invalid_input")
}

func TestCreateBookingDriverCannotBookOwnTrip(t *testing.T) {
	db, mock := newMockDB(t)
	svc := newBookingService(db)

	mock.ExpectBegin()
	mock.ExpectExec(reserveSeatsSQL).
		WithArgs("trip-1", 1, sqlmock.AnyArg(), models.TripStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(tripForUpdateSQL).
		WithArgs("trip-1").
		WillReturnRows(tripRow("trip-1", "driver-1", 2, 1000, models.TripStatusActive))
	mock.ExpectRollback()

	_, err := svc.CreateBooking(context.Background(), "trip-1", "driver-1", &models.CreateBookingRequest{Seats: 1})
	assertAPIErrorCode(t, err, "invalid_input")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCancelBookingReleasesSeats(t *testing.T) {
	db, mock := newMockDB(t)
	svc := newBookingService(db)

	mock.ExpectBegin()
	mock.ExpectQuery(bookForUpdateSQL).
		WithArgs("booking-1").
		WillReturnRows(bookingRow("booking-1", "trip-1", "passenger-1", 2, models.BookingStatusPending, time.Now()))
	mock.ExpectQuery(tripByIDSQL).
		WithArgs("trip-1").
		WillReturnRows(tripRow("trip-1", "driver-1", 1, 1000, models.TripStatusActive))
	mock.ExpectExec(markCancelledSQL).
		WithArgs(models.BookingStatusCancelled, models.CancelledByPassenger, nil, sqlmock.AnyArg(), "booking-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(releaseSeatsSQL).
		WithArgs("trip-1", 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	booking, err := svc.CancelBooking(context.Background(), "booking-1", "passenger-1")
	if err != nil {
		t.Fatalf("CancelBooking() error = %v", err)
	}
	if booking.Status != models.BookingStatusCancelled {
		t.Errorf("status = %s, want cancelled", booking.Status)
	}
	if booking.CancelledBy == nil || *booking.CancelledBy != models.CancelledByPassenger {
		t.Errorf("cancelled_by = %v, want passenger", booking.CancelledBy)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCancelBookingTwiceFailsTransition(t *testing.T) {
	db, mock := newMockDB(t)
	svc := newBookingService(db)

	mock.ExpectBegin()
	mock.ExpectQuery(bookForUpdateSQL).
		WithArgs("booking-1").
		WillReturnRows(bookingRow("booking-1", "trip-1", "passenger-1", 2, models.BookingStatusCancelled, time.Now()))
	mock.ExpectQuery(tripByIDSQL).
		WithArgs("trip-1").
		WillReturnRows(tripRow("trip-1", "driver-1", 3, 1000, models.TripStatusActive))
	mock.ExpectRollback()

	_, err := svc.CancelBooking(context.Background(), "booking-1", "passenger-1")
	assertAPIErrorCode(t, err, "invalid_transition")

	// Seats must not be released a second time.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCancelBookingStrangerNotAuthorized(t *testing.T) {
	db, mock := newMockDB(t)
	svc := newBookingService(db)

	mock.ExpectBegin()
	mock.ExpectQuery(bookForUpdateSQL).
		WithArgs("booking-1").
		WillReturnRows(bookingRow("booking-1", "trip-1", "passenger-1", 1, models.BookingStatusPending, time.Now()))
	mock.ExpectQuery(tripByIDSQL).
		WithArgs("trip-1").
		WillReturnRows(tripRow("trip-1", "driver-1", 2, 1000, models.TripStatusActive))
	mock.ExpectRollback()

	_, err := svc.CancelBooking(context.Background(), "booking-1", "someone-else")
	assertAPIErrorCode(t, err, "not_authorized")
}

func TestApproveBookingOnlyDriver(t *testing.T) {
	db, mock := newMockDB(t)
	svc := newBookingService(db)

	mock.ExpectBegin()
	mock.ExpectQuery(bookForUpdateSQL).
		WithArgs("booking-1").
		WillReturnRows(bookingRow("booking-1", "trip-1", "passenger-1", 1, models.BookingStatusPending, time.Now()))
	mock.ExpectQuery(tripByIDSQL).
		WithArgs("trip-1").
		WillReturnRows(tripRow("trip-1", "driver-1", 2, 1000, models.TripStatusActive))
	mock.ExpectRollback()

	_, err := svc.ApproveBooking(context.Background(), "booking-1", "passenger-1")
	assertAPIErrorCode(t, err, "not_authorized")
}

func TestApproveBookingConfirmsPending(t *testing.T) {
	db, mock := newMockDB(t)
	svc := newBookingService(db)

	mock.ExpectBegin()
	mock.ExpectQuery(bookForUpdateSQL).
		WithArgs("booking-1").
		WillReturnRows(bookingRow("booking-1", "trip-1", "passenger-1", 1, models.BookingStatusPending, time.Now()))
	mock.ExpectQuery(tripByIDSQL).
		WithArgs("trip-1").
		WillReturnRows(tripRow("trip-1", "driver-1", 2, 1000, models.TripStatusActive))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET status = $1")).
		WithArgs(models.BookingStatusConfirmed, sqlmock.AnyArg(), "booking-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	booking, err := svc.ApproveBooking(context.Background(), "booking-1", "driver-1")
	if err != nil {
		t.Fatalf("ApproveBooking() error = %v", err)
	}
	if booking.Status != models.BookingStatusConfirmed {
		t.Errorf("status = %s, want confirmed", booking.Status)
	}
}

func TestRejectBookingOnlyPending(t *testing.T) {
	db, mock := newMockDB(t)
	svc := newBookingService(db)

	mock.ExpectBegin()
	mock.ExpectQuery(bookForUpdateSQL).
		WithArgs("booking-1").
		WillReturnRows(bookingRow("booking-1", "trip-1", "passenger-1", 1, models.BookingStatusConfirmed, time.Now()))
	mock.ExpectQuery(tripByIDSQL).
		WithArgs("trip-1").
		WillReturnRows(tripRow("trip-1", "driver-1", 2, 1000, models.TripStatusActive))
	mock.ExpectRollback()

	_, err := svc.RejectBooking(context.Background(), "booking-1", "driver-1", nil)
	assertAPIErrorCode(t, err, "invalid_transition")
}

func TestRejectBookingReleasesSeatsWithReason(t *testing.T) {
	db, mock := newMockDB(t)
	svc := newBookingService(db)

	mock.ExpectBegin()
	mock.ExpectQuery(bookForUpdateSQL).
		WithArgs("booking-1").
		WillReturnRows(bookingRow("booking-1", "trip-1", "passenger-1", 2, models.BookingStatusPending, time.Now()))
	mock.ExpectQuery(tripByIDSQL).
		WithArgs("trip-1").
		WillReturnRows(tripRow("trip-1", "driver-1", 1, 1000, models.TripStatusActive))
	mock.ExpectExec(markCancelledSQL).
		WithArgs(models.BookingStatusCancelled, models.CancelledByDriver, "car is full", sqlmock.AnyArg(), "booking-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(releaseSeatsSQL).
		WithArgs("trip-1", 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	booking, err := svc.RejectBooking(context.Background(), "booking-1", "driver-1",
		&models.RejectBookingRequest{Reason: "car is full"})
	if err != nil {
		t.Fatalf("RejectBooking() error = %v", err)
	}
	if booking.RejectedReason == nil || *booking.RejectedReason != "car is full" {
		t.Errorf("rejected_reason = %v, want 'car is full'", booking.RejectedReason)
	}
}

// Walks a 3-seat trip at 1000 per seat through two bookings, a seat-race
// rejection, and a cancel, checking prices and seat accounting at each step.
func TestBookingLifecycleScenario(t *testing.T) {
	db, mock := newMockDB(t)
	svc := newBookingService(db)
	ctx := context.Background()

	// Passenger A books 2 of 3 seats at 1000 each.
	mock.ExpectBegin()
	mock.ExpectExec(reserveSeatsSQL).
		WithArgs("trip-1", 2, sqlmock.AnyArg(), models.TripStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(tripForUpdateSQL).
		WithArgs("trip-1").
		WillReturnRows(tripRow("trip-1", "driver-1", 1, 1000, models.TripStatusActive))
	mock.ExpectExec(insertBookingSQL).
		WithArgs(sqlmock.AnyArg(), "trip-1", "passenger-a", 2, 2000.0,
			models.BookingStatusPending, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	bookingA, err := svc.CreateBooking(ctx, "trip-1", "passenger-a", &models.CreateBookingRequest{Seats: 2})
	if err != nil {
		t.Fatalf("booking A failed: %v", err)
	}
	if bookingA.TotalPrice != 2000 {
		t.Errorf("booking A price = %v, want 2000", bookingA.TotalPrice)
	}

	// Passenger B asks for 2 seats with only 1 left: rejected, nothing persisted.
	mock.ExpectBegin()
	mock.ExpectExec(reserveSeatsSQL).
		WithArgs("trip-1", 2, sqlmock.AnyArg(), models.TripStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(tripForUpdateSQL).
		WithArgs("trip-1").
		WillReturnRows(tripRow("trip-1", "driver-1", 1, 1000, models.TripStatusActive))
	mock.ExpectRollback()

	_, err = svc.CreateBooking(ctx, "trip-1", "passenger-b", &models.CreateBookingRequest{Seats: 2})
	assertAPIErrorCode(t, err, "insufficient_seats")

	// Passenger B takes the last seat instead.
	mock.ExpectBegin()
	mock.ExpectExec(reserveSeatsSQL).
		WithArgs("trip-1", 1, sqlmock.AnyArg(), models.TripStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(tripForUpdateSQL).
		WithArgs("trip-1").
		WillReturnRows(tripRow("trip-1", "driver-1", 0, 1000, models.TripStatusActive))
	mock.ExpectExec(insertBookingSQL).
		WithArgs(sqlmock.AnyArg(), "trip-1", "passenger-b", 1, 1000.0,
			models.BookingStatusPending, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	bookingB, err := svc.CreateBooking(ctx, "trip-1", "passenger-b", &models.CreateBookingRequest{Seats: 1})
	if err != nil {
		t.Fatalf("booking B failed: %v", err)
	}
	if bookingB.TotalPrice != 1000 {
		t.Errorf("booking B price = %v, want 1000", bookingB.TotalPrice)
	}

	// A cancels: both seats go back in the same transaction.
	mock.ExpectBegin()
	mock.ExpectQuery(bookForUpdateSQL).
		WithArgs(bookingA.ID).
		WillReturnRows(bookingRow(bookingA.ID, "trip-1", "passenger-a", 2, models.BookingStatusPending, bookingA.CreatedAt))
	mock.ExpectQuery(tripByIDSQL).
		WithArgs("trip-1").
		WillReturnRows(tripRow("trip-1", "driver-1", 0, 1000, models.TripStatusActive))
	mock.ExpectExec(markCancelledSQL).
		WithArgs(models.BookingStatusCancelled, models.CancelledByPassenger, nil, sqlmock.AnyArg(), bookingA.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(releaseSeatsSQL).
		WithArgs("trip-1", 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	cancelled, err := svc.CancelBooking(ctx, bookingA.ID, "passenger-a")
	if err != nil {
		t.Fatalf("cancel of booking A failed: %v", err)
	}
	if cancelled.Status != models.BookingStatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestExpirePendingCancelsStaleBookings(t *testing.T) {
	db, mock := newMockDB(t)
	svc := newBookingService(db)

	stale := time.Now().Add(-2 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM bookings")).
		WithArgs(models.BookingStatusPending, sqlmock.AnyArg(), expiredPendingBatchSize).
		WillReturnRows(bookingRow("booking-1", "trip-1", "passenger-1", 1, models.BookingStatusPending, stale))

	mock.ExpectBegin()
	mock.ExpectQuery(bookForUpdateSQL).
		WithArgs("booking-1").
		WillReturnRows(bookingRow("booking-1", "trip-1", "passenger-1", 1, models.BookingStatusPending, stale))
	mock.ExpectExec(markCancelledSQL).
		WithArgs(models.BookingStatusCancelled, models.CancelledBySystem, nil, sqlmock.AnyArg(), "booking-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(releaseSeatsSQL).
		WithArgs("trip-1", 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := svc.ExpirePending(context.Background())
	if err != nil {
		t.Fatalf("ExpirePending() error = %v", err)
	}
	if n != 1 {
		t.Errorf("expired %d bookings, want 1", n)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestExpirePendingSkipsApprovedSinceScan(t *testing.T) {
	db, mock := newMockDB(t)
	svc := newBookingService(db)

	stale := time.Now().Add(-2 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM bookings")).
		WithArgs(models.BookingStatusPending, sqlmock.AnyArg(), expiredPendingBatchSize).
		WillReturnRows(bookingRow("booking-1", "trip-1", "passenger-1", 1, models.BookingStatusPending, stale))

	// Approved between the scan and the per-booking lock: leave it alone.
	mock.ExpectBegin()
	mock.ExpectQuery(bookForUpdateSQL).
		WithArgs("booking-1").
		WillReturnRows(bookingRow("booking-1", "trip-1", "passenger-1", 1, models.BookingStatusConfirmed, stale))
	mock.ExpectRollback()

	n, err := svc.ExpirePending(context.Background())
	if err != nil {
		t.Fatalf("ExpirePending() error = %v", err)
	}
	if n != 1 {
		t.Errorf("processed %d bookings, want 1", n)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
