package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aditya/go-waypool/internal/models"
	"github.com/redis/go-redis/v9"
)

const searchKeyPrefix = "search:results:"

// SearchCache holds ranked search results for a few seconds. Availability
// snapshots in a hit can be slightly stale; the reservation path re-checks
// at commit time, so this only trades freshness of the listing for load.
type SearchCache interface {
	Get(ctx context.Context, key string) ([]*models.TripResponse, error)
	Set(ctx context.Context, key string, results []*models.TripResponse) error
}

type searchCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewSearchCache(redisClient *redis.Client, ttl time.Duration) SearchCache {
	return &searchCache{redis: redisClient, ttl: ttl}
}

func (c *searchCache) Get(ctx context.Context, key string) ([]*models.TripResponse, error) {
	data, err := c.redis.Get(ctx, searchKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var results []*models.TripResponse
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *searchCache) Set(ctx context.Context, key string, results []*models.TripResponse) error {
	data, err := json.Marshal(results)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, searchKeyPrefix+key, data, c.ttl).Err()
}

// SearchKey flattens the filters into a stable cache key.
func SearchKey(f *models.SearchFilters) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(f.Origin)))
	b.WriteString("|")
	b.WriteString(strings.ToLower(strings.TrimSpace(f.Destination)))
	b.WriteString("|")
	if !f.Date.IsZero() {
		b.WriteString(f.Date.Format("2006-01-02"))
	}
	if f.Time != nil {
		b.WriteString(f.Time.Format("|15:04"))
	}
	if f.PriceMax != nil {
		fmt.Fprintf(&b, "|p%.2f", *f.PriceMax)
	}
	if f.SeatsMin != nil {
		fmt.Fprintf(&b, "|s%d", *f.SeatsMin)
	}
	if f.RatingMin != nil {
		fmt.Fprintf(&b, "|r%.1f", *f.RatingMin)
	}
	return b.String()
}
