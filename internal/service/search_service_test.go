package service

import (
	"testing"
	"time"

	"github.com/aditya/go-waypool/internal/models"
)

func TestMatchLocality(t *testing.T) {
	tests := []struct {
		name     string
		location string
		query    string
		want     int
	}{
		{"empty query matches exactly", "Koramangala", "", matchExact},
		{"exact match", "Koramangala", "koramangala", matchExact},
		{"exact match ignores case and space", "  Koramangala ", "koramangala", matchExact},
		{"query is substring of location", "Koramangala 5th Block", "koramangala", matchSubstring},
		{"location is substring of query", "Koramangala", "koramangala 5th block", matchSubstring},
		{"no overlap", "Whitefield", "koramangala", matchNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchLocality(tt.location, tt.query); got != tt.want {
				t.Errorf("matchLocality(%q, %q) = %d, want %d", tt.location, tt.query, got, tt.want)
			}
		})
	}
}

func searchTrip(id, origin, destination string, departure time.Time) *models.Trip {
	return &models.Trip{
		ID:             id,
		Origin:         origin,
		Destination:    destination,
		DepartureTime:  departure,
		Status:         models.TripStatusActive,
		TotalSeats:     3,
		AvailableSeats: 2,
	}
}

func TestRankTripsExcludesNonMatching(t *testing.T) {
	base := time.Date(2026, 9, 10, 8, 0, 0, 0, time.UTC)
	trips := []*models.Trip{
		searchTrip("t-1", "Koramangala", "Whitefield", base),
		searchTrip("t-2", "Hebbal", "Whitefield", base),
		searchTrip("t-3", "Koramangala", "Hebbal", base),
	}

	got := rankTrips(trips, "Koramangala", "Whitefield")

	if len(got) != 1 {
		t.Fatalf("got %d trips, want 1", len(got))
	}
	if got[0].ID != "t-1" {
		t.Errorf("got trip %s, want t-1", got[0].ID)
	}
}

func TestRankTripsExactBeforeSubstring(t *testing.T) {
	base := time.Date(2026, 9, 10, 8, 0, 0, 0, time.UTC)
	trips := []*models.Trip{
		// Substring match, departs earlier
		searchTrip("t-sub", "Koramangala 5th Block", "Whitefield", base),
		// Exact match, departs later
		searchTrip("t-exact", "Koramangala", "Whitefield", base.Add(2*time.Hour)),
	}

	got := rankTrips(trips, "Koramangala", "Whitefield")

	if len(got) != 2 {
		t.Fatalf("got %d trips, want 2", len(got))
	}
	if got[0].ID != "t-exact" || got[1].ID != "t-sub" {
		t.Errorf("order = [%s, %s], want [t-exact, t-sub]", got[0].ID, got[1].ID)
	}
}

func TestRankTripsDepartureOrderWithinBand(t *testing.T) {
	base := time.Date(2026, 9, 10, 8, 0, 0, 0, time.UTC)
	trips := []*models.Trip{
		searchTrip("t-late", "Koramangala", "Whitefield", base.Add(3*time.Hour)),
		searchTrip("t-early", "Koramangala", "Whitefield", base),
		searchTrip("t-mid", "Koramangala", "Whitefield", base.Add(time.Hour)),
	}

	got := rankTrips(trips, "Koramangala", "Whitefield")

	want := []string{"t-early", "t-mid", "t-late"}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestRankTripsIDTiebreak(t *testing.T) {
	departure := time.Date(2026, 9, 10, 8, 0, 0, 0, time.UTC)
	trips := []*models.Trip{
		searchTrip("t-b", "Koramangala", "Whitefield", departure),
		searchTrip("t-a", "Koramangala", "Whitefield", departure),
	}

	got := rankTrips(trips, "Koramangala", "Whitefield")

	if got[0].ID != "t-a" || got[1].ID != "t-b" {
		t.Errorf("order = [%s, %s], want [t-a, t-b]", got[0].ID, got[1].ID)
	}
}

func TestRankTripsEmptyQueryKeepsEverything(t *testing.T) {
	base := time.Date(2026, 9, 10, 8, 0, 0, 0, time.UTC)
	trips := []*models.Trip{
		searchTrip("t-2", "Hebbal", "Airport", base.Add(time.Hour)),
		searchTrip("t-1", "Koramangala", "Whitefield", base),
	}

	got := rankTrips(trips, "", "")

	if len(got) != 2 {
		t.Fatalf("got %d trips, want 2", len(got))
	}
	if got[0].ID != "t-1" {
		t.Errorf("first trip = %s, want t-1 (earliest departure)", got[0].ID)
	}
}
