package handler

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/aditya/go-waypool/internal/errors"
	"github.com/aditya/go-waypool/internal/middleware"
	"github.com/aditya/go-waypool/internal/models"
	"github.com/aditya/go-waypool/internal/service"
	"github.com/aditya/go-waypool/pkg/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type BookingHandler struct {
	bookingService service.BookingService
	validate       *validator.Validate
}

func NewBookingHandler(bookingService service.BookingService) *BookingHandler {
	return &BookingHandler{
		bookingService: bookingService,
		validate:       validator.New(),
	}
}

func (h *BookingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/rides/{id}/book", h.CreateBooking)
	r.Get("/rides/{id}/bookings", h.ListTripBookings)
	r.Get("/rides/bookings", h.ListMyBookings)
	r.Put("/rides/booking/{id}/approve", h.ApproveBooking)
	r.Put("/rides/booking/{id}/cancel", h.CancelBooking)
	r.Put("/rides/booking/{id}/reject", h.RejectBooking)
}

// POST /v1/rides/{id}/book
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorID(r.Context())
	if actor == "" {
		utils.Error(w, apperrors.Unauthorized("missing X-User-ID header"))
		return
	}

	tripID := chi.URLParam(r, "id")
	if tripID == "" {
		utils.BadRequest(w, "trip id is required")
		return
	}

	var req models.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		utils.Error(w, apperrors.InvalidInput(err.Error()))
		return
	}

	booking, err := h.bookingService.CreateBooking(r.Context(), tripID, actor, &req)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Created(w, booking.ToResponse())
}

// GET /v1/rides/{id}/bookings
func (h *BookingHandler) ListTripBookings(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorID(r.Context())
	if actor == "" {
		utils.Error(w, apperrors.Unauthorized("missing X-User-ID header"))
		return
	}

	tripID := chi.URLParam(r, "id")
	if tripID == "" {
		utils.BadRequest(w, "trip id is required")
		return
	}

	bookings, err := h.bookingService.ListBookingsForTrip(r.Context(), tripID, actor)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, bookings)
}

// GET /v1/rides/bookings
func (h *BookingHandler) ListMyBookings(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorID(r.Context())
	if actor == "" {
		utils.Error(w, apperrors.Unauthorized("missing X-User-ID header"))
		return
	}

	bookings, err := h.bookingService.ListBookingsForPassenger(r.Context(), actor)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, bookings)
}

// PUT /v1/rides/booking/{id}/approve
func (h *BookingHandler) ApproveBooking(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorID(r.Context())
	if actor == "" {
		utils.Error(w, apperrors.Unauthorized("missing X-User-ID header"))
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		utils.BadRequest(w, "booking id is required")
		return
	}

	booking, err := h.bookingService.ApproveBooking(r.Context(), id, actor)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, booking.ToResponse())
}

// PUT /v1/rides/booking/{id}/cancel
func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorID(r.Context())
	if actor == "" {
		utils.Error(w, apperrors.Unauthorized("missing X-User-ID header"))
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		utils.BadRequest(w, "booking id is required")
		return
	}

	booking, err := h.bookingService.CancelBooking(r.Context(), id, actor)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, booking.ToResponse())
}

// PUT /v1/rides/booking/{id}/reject
func (h *BookingHandler) RejectBooking(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorID(r.Context())
	if actor == "" {
		utils.Error(w, apperrors.Unauthorized("missing X-User-ID header"))
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		utils.BadRequest(w, "booking id is required")
		return
	}

	var req models.RejectBookingRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.BadRequest(w, "invalid request body")
			return
		}
	}

	if err := h.validate.Struct(req); err != nil {
		utils.Error(w, apperrors.InvalidInput(err.Error()))
		return
	}

	booking, err := h.bookingService.RejectBooking(r.Context(), id, actor, &req)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, booking.ToResponse())
}
