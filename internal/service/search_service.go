package service

import (
	"context"
	"log"
	"sort"
	"strings"

	"github.com/aditya/go-waypool/internal/cache"
	"github.com/aditya/go-waypool/internal/models"
	"github.com/aditya/go-waypool/internal/repository"
)

// Match bands, best first. Trips whose origin or destination never matches
// the query are excluded outright.
const (
	matchExact     = 2
	matchSubstring = 1
	matchNone      = 0
)

type SearchService interface {
	Search(ctx context.Context, filters *models.SearchFilters) ([]*models.TripResponse, error)
}

type rankedTrip struct {
	trip *models.Trip
	band int
}

type searchService struct {
	tripRepo    repository.TripRepository
	searchCache cache.SearchCache
	maxItems    int
}

func NewSearchService(tripRepo repository.TripRepository, searchCache cache.SearchCache, maxItems int) SearchService {
	return &searchService{
		tripRepo:    tripRepo,
		searchCache: searchCache,
		maxItems:    maxItems,
	}
}

// Search never mutates trip or booking state. The hard filters (date, price,
// seats, rating, active-with-seats) run in SQL; location matching and the
// final ordering run here.
func (s *searchService) Search(ctx context.Context, filters *models.SearchFilters) ([]*models.TripResponse, error) {
	key := cache.SearchKey(filters)
	if s.searchCache != nil {
		cached, err := s.searchCache.Get(ctx, key)
		if err != nil {
			log.Printf("search cache read failed: %v", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	candidates, err := s.tripRepo.SearchCandidates(ctx, filters, s.maxItems)
	if err != nil {
		return nil, err
	}

	ranked := rankTrips(candidates, filters.Origin, filters.Destination)

	results := make([]*models.TripResponse, 0, len(ranked))
	for _, t := range ranked {
		results = append(results, t.ToResponse())
	}

	if s.searchCache != nil {
		if err := s.searchCache.Set(ctx, key, results); err != nil {
			log.Printf("search cache write failed: %v", err)
		}
	}

	return results, nil
}

// rankTrips orders candidates: exact origin+destination matches first, then
// substring matches, soonest departure within a band, trip id as the final
// deterministic tiebreak.
func rankTrips(trips []*models.Trip, origin, destination string) []*models.Trip {
	qOrigin := normalizeLocation(origin)
	qDestination := normalizeLocation(destination)

	ranked := make([]rankedTrip, 0, len(trips))
	for _, t := range trips {
		originBand := matchLocality(t.Origin, qOrigin)
		destinationBand := matchLocality(t.Destination, qDestination)
		if originBand == matchNone || destinationBand == matchNone {
			continue
		}

		band := matchSubstring
		if originBand == matchExact && destinationBand == matchExact {
			band = matchExact
		}
		ranked = append(ranked, rankedTrip{trip: t, band: band})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].band != ranked[j].band {
			return ranked[i].band > ranked[j].band
		}
		if !ranked[i].trip.DepartureTime.Equal(ranked[j].trip.DepartureTime) {
			return ranked[i].trip.DepartureTime.Before(ranked[j].trip.DepartureTime)
		}
		return ranked[i].trip.ID < ranked[j].trip.ID
	})

	result := make([]*models.Trip, 0, len(ranked))
	for _, r := range ranked {
		result = append(result, r.trip)
	}
	return result
}

// matchLocality compares a trip's location against a normalized query term.
// An empty query term matches everything exactly.
func matchLocality(location, query string) int {
	if query == "" {
		return matchExact
	}
	loc := normalizeLocation(location)
	if loc == query {
		return matchExact
	}
	if strings.Contains(loc, query) || strings.Contains(query, loc) {
		return matchSubstring
	}
	return matchNone
}

func normalizeLocation(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
