package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/aditya/go-waypool/internal/errors"
	"github.com/aditya/go-waypool/internal/middleware"
	"github.com/aditya/go-waypool/internal/models"
	"github.com/aditya/go-waypool/internal/service"
	"github.com/aditya/go-waypool/pkg/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type TripHandler struct {
	tripService   service.TripService
	searchService service.SearchService
	validate      *validator.Validate
}

func NewTripHandler(tripService service.TripService, searchService service.SearchService) *TripHandler {
	return &TripHandler{
		tripService:   tripService,
		searchService: searchService,
		validate:      validator.New(),
	}
}

func (h *TripHandler) RegisterRoutes(r chi.Router) {
	r.Get("/rides/search", h.SearchTrips)
	r.Get("/rides", h.ListTrips)
	r.Get("/rides/mine", h.ListMyTrips)
	r.Post("/rides", h.CreateTrip)
	r.Get("/rides/{id}", h.GetTrip)
	r.Put("/rides/{id}", h.UpdateTrip)
	r.Delete("/rides/{id}", h.CancelTrip)
	r.Post("/rides/{id}/complete", h.CompleteTrip)
}

// GET /v1/rides/search?origin=&destination=&date=&time=&price_max=&seats_min=&rating_min=
func (h *TripHandler) SearchTrips(w http.ResponseWriter, r *http.Request) {
	filters, err := parseSearchFilters(r)
	if err != nil {
		utils.Error(w, apperrors.InvalidInput(err.Error()))
		return
	}

	results, err := h.searchService.Search(r.Context(), filters)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, results)
}

// GET /v1/rides?status=active
func (h *TripHandler) ListTrips(w http.ResponseWriter, r *http.Request) {
	trips, err := h.tripService.ListTrips(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, tripResponses(trips))
}

// GET /v1/rides/mine
func (h *TripHandler) ListMyTrips(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorID(r.Context())
	if actor == "" {
		utils.Error(w, apperrors.Unauthorized("missing X-User-ID header"))
		return
	}

	trips, err := h.tripService.ListDriverTrips(r.Context(), actor)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, tripResponses(trips))
}

// POST /v1/rides
func (h *TripHandler) CreateTrip(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorID(r.Context())
	if actor == "" {
		utils.Error(w, apperrors.Unauthorized("missing X-User-ID header"))
		return
	}

	var req models.CreateTripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		utils.Error(w, apperrors.InvalidInput(err.Error()))
		return
	}

	trip, err := h.tripService.CreateTrip(r.Context(), actor, &req)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Created(w, trip.ToResponse())
}

// GET /v1/rides/{id}
func (h *TripHandler) GetTrip(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		utils.BadRequest(w, "trip id is required")
		return
	}

	trip, err := h.tripService.GetTrip(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, trip.ToResponse())
}

// PUT /v1/rides/{id}
func (h *TripHandler) UpdateTrip(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorID(r.Context())
	if actor == "" {
		utils.Error(w, apperrors.Unauthorized("missing X-User-ID header"))
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		utils.BadRequest(w, "trip id is required")
		return
	}

	var req models.UpdateTripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		utils.Error(w, apperrors.InvalidInput(err.Error()))
		return
	}

	trip, err := h.tripService.UpdateTrip(r.Context(), id, actor, &req)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, trip.ToResponse())
}

// DELETE /v1/rides/{id}
func (h *TripHandler) CancelTrip(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorID(r.Context())
	if actor == "" {
		utils.Error(w, apperrors.Unauthorized("missing X-User-ID header"))
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		utils.BadRequest(w, "trip id is required")
		return
	}

	if err := h.tripService.CancelTrip(r.Context(), id, actor, r.URL.Query().Get("reason")); err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, map[string]bool{"success": true})
}

// POST /v1/rides/{id}/complete
func (h *TripHandler) CompleteTrip(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorID(r.Context())
	if actor == "" {
		utils.Error(w, apperrors.Unauthorized("missing X-User-ID header"))
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		utils.BadRequest(w, "trip id is required")
		return
	}

	trip, err := h.tripService.CompleteTrip(r.Context(), id, actor)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, trip.ToResponse())
}

func tripResponses(trips []*models.Trip) []*models.TripResponse {
	responses := make([]*models.TripResponse, 0, len(trips))
	for _, t := range trips {
		responses = append(responses, t.ToResponse())
	}
	return responses
}

func parseSearchFilters(r *http.Request) (*models.SearchFilters, error) {
	q := r.URL.Query()

	filters := &models.SearchFilters{
		Origin:      q.Get("origin"),
		Destination: q.Get("destination"),
	}
	// Same aliases the trip payloads accept
	if filters.Origin == "" {
		filters.Origin = q.Get("from_location")
	}
	if filters.Destination == "" {
		filters.Destination = q.Get("to_location")
	}

	if date := q.Get("date"); date != "" {
		d, err := time.ParseInLocation("2006-01-02", date, time.Local)
		if err != nil {
			return nil, err
		}
		filters.Date = d

		if at := q.Get("time"); at != "" {
			t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+at, time.Local)
			if err != nil {
				return nil, err
			}
			filters.Time = &t
		}
	}

	if raw := q.Get("price_max"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, err
		}
		filters.PriceMax = &v
	}
	if raw := q.Get("seats_min"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, err
		}
		filters.SeatsMin = &v
	}
	if raw := q.Get("rating_min"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, err
		}
		filters.RatingMin = &v
	}

	return filters, nil
}

func handleError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*apperrors.APIError); ok {
		utils.Error(w, apiErr)
		return
	}

	// Check for specific errors
	switch err {
	case apperrors.ErrInsufficientSeats:
		utils.Error(w, apperrors.InsufficientSeats())
	case apperrors.ErrTripNotActive:
		utils.Error(w, apperrors.TripNotActive())
	case apperrors.ErrNotFound:
		utils.Error(w, apperrors.NotFound("resource"))
	case apperrors.ErrNotAuthorized:
		utils.Error(w, apperrors.NotAuthorized("not authorized"))
	case apperrors.ErrInvalidTransition:
		utils.Error(w, apperrors.NewAPIError("invalid_transition", err.Error(), http.StatusConflict))
	default:
		utils.InternalError(w, "internal server error")
	}
}
