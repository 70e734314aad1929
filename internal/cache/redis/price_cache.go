package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. The last trade
// of each venue lives at "<namespace>:price:<venue>" with fields "price" and
// "ts" (Unix nanoseconds).
type PriceCache struct {
	rdb       *redis.Client
	namespace string
}

// NewPriceCache creates a PriceCache whose keys are prefixed by namespace,
// usually the symbol.
func NewPriceCache(c *Client, namespace string) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), namespace: namespace}
}

func (pc *PriceCache) key(venueID string) string {
	return pc.namespace + ":price:" + venueID
}

// SetPrice stores the latest trade price of a venue.
func (pc *PriceCache) SetPrice(ctx context.Context, venueID string, price float64, ts time.Time) error {
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, pc.key(venueID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", venueID, err)
	}
	return nil
}

// GetPrice returns the latest trade price of a venue, or domain.ErrNotFound.
func (pc *PriceCache) GetPrice(ctx context.Context, venueID string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, pc.key(venueID)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", venueID, err)
	}
	price, ts, ok := parsePrice(vals)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("redis: price %s: %w", venueID, domain.ErrNotFound)
	}
	return price, ts, nil
}

// GetPrices returns the latest price of each venue in one pipeline. Venues
// with no cached price are omitted.
func (pc *PriceCache) GetPrices(ctx context.Context, venueIDs []string) (map[string]float64, error) {
	if len(venueIDs) == 0 {
		return map[string]float64{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(venueIDs))
	for _, id := range venueIDs {
		cmds[id] = pipe.HGetAll(ctx, pc.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[string]float64, len(venueIDs))
	for id, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		if price, _, ok := parsePrice(vals); ok {
			result[id] = price
		}
	}
	return result, nil
}

func parsePrice(vals map[string]string) (float64, time.Time, bool) {
	p, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, false
	}
	price, err := strconv.ParseFloat(p, 64)
	if err != nil {
		return 0, time.Time{}, false
	}
	var ts time.Time
	if n, err := strconv.ParseInt(vals["ts"], 10, 64); err == nil {
		ts = time.Unix(0, n).UTC()
	}
	return price, ts, true
}

var _ domain.PriceCache = (*PriceCache)(nil)
