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

// BookCache implements domain.BookCache. Each venue's last raw book is kept
// under "<namespace>:book:<venue>":
//
//	...:bids      sorted set of bid prices (score = price)
//	...:asks      sorted set of ask prices (score = price)
//	...:bid:size  hash price -> size
//	...:ask:size  hash price -> size
//	...:meta      hash with "ts", "symbol", "bid", "ask"
//
// Every write replaces the whole book in one MULTI/EXEC.
type BookCache struct {
	rdb       *redis.Client
	namespace string
	ttl       time.Duration
}

// NewBookCache creates a BookCache. Books expire after ttl without updates;
// zero keeps them forever.
func NewBookCache(c *Client, namespace string, ttl time.Duration) *BookCache {
	return &BookCache{rdb: c.Underlying(), namespace: namespace, ttl: ttl}
}

type bookKeys struct {
	bids, asks, bidSize, askSize, meta string
}

func (bc *BookCache) keys(venueID string) bookKeys {
	base := bc.namespace + ":book:" + venueID
	return bookKeys{
		bids:    base + ":bids",
		asks:    base + ":asks",
		bidSize: base + ":bid:size",
		askSize: base + ":ask:size",
		meta:    base + ":meta",
	}
}

func (k bookKeys) all() []string {
	return []string{k.bids, k.asks, k.bidSize, k.askSize, k.meta}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// SetBook replaces the cached book of book.VenueID.
func (bc *BookCache) SetBook(ctx context.Context, book domain.VenueBook) error {
	k := bc.keys(book.VenueID)
	pipe := bc.rdb.TxPipeline()
	pipe.Del(ctx, k.all()...)

	writeSide := func(zKey, hKey string, levels []domain.PriceLevel) {
		for _, l := range levels {
			p := formatFloat(l.Price)
			pipe.ZAdd(ctx, zKey, redis.Z{Score: l.Price, Member: p})
			pipe.HSet(ctx, hKey, p, formatFloat(l.Size))
		}
	}
	writeSide(k.bids, k.bidSize, book.Bids)
	writeSide(k.asks, k.askSize, book.Asks)

	pipe.HSet(ctx, k.meta, map[string]interface{}{
		"ts":     strconv.FormatInt(book.Timestamp.UnixNano(), 10),
		"symbol": book.Symbol,
		"bid":    formatFloat(book.BestBid()),
		"ask":    formatFloat(book.BestAsk()),
	})
	if bc.ttl > 0 {
		for _, key := range k.all() {
			pipe.Expire(ctx, key, bc.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set book %s: %w", book.VenueID, err)
	}
	return nil
}

// GetBook reconstructs the cached book of a venue, bids descending and asks
// ascending. It returns domain.ErrNotFound when nothing is cached.
func (bc *BookCache) GetBook(ctx context.Context, venueID string) (domain.VenueBook, error) {
	k := bc.keys(venueID)
	pipe := bc.rdb.Pipeline()
	bidsCmd := pipe.ZRevRangeWithScores(ctx, k.bids, 0, -1)
	asksCmd := pipe.ZRangeWithScores(ctx, k.asks, 0, -1)
	bidSizeCmd := pipe.HGetAll(ctx, k.bidSize)
	askSizeCmd := pipe.HGetAll(ctx, k.askSize)
	metaCmd := pipe.HGetAll(ctx, k.meta)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.VenueBook{}, fmt.Errorf("redis: get book %s: %w", venueID, err)
	}

	meta, _ := metaCmd.Result()
	if len(meta) == 0 {
		return domain.VenueBook{}, fmt.Errorf("redis: book %s: %w", venueID, domain.ErrNotFound)
	}

	book := domain.VenueBook{VenueID: venueID, Symbol: meta["symbol"]}
	if n, err := strconv.ParseInt(meta["ts"], 10, 64); err == nil {
		book.Timestamp = time.Unix(0, n).UTC()
	}
	book.Bids = readSide(bidsCmd, bidSizeCmd)
	book.Asks = readSide(asksCmd, askSizeCmd)
	return book, nil
}

func readSide(zCmd *redis.ZSliceCmd, sizeCmd *redis.MapStringStringCmd) []domain.PriceLevel {
	zs, _ := zCmd.Result()
	sizes, _ := sizeCmd.Result()
	out := make([]domain.PriceLevel, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		size, _ := strconv.ParseFloat(sizes[member], 64)
		out = append(out, domain.PriceLevel{Price: z.Score, Size: size})
	}
	return out
}

// GetBBO returns the best bid and ask of the cached book.
func (bc *BookCache) GetBBO(ctx context.Context, venueID string) (bestBid, bestAsk float64, err error) {
	vals, err := bc.rdb.HMGet(ctx, bc.keys(venueID).meta, "bid", "ask").Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis: get bbo %s: %w", venueID, err)
	}
	if len(vals) != 2 || vals[0] == nil {
		return 0, 0, fmt.Errorf("redis: bbo %s: %w", venueID, domain.ErrNotFound)
	}
	if s, ok := vals[0].(string); ok {
		bestBid, _ = strconv.ParseFloat(s, 64)
	}
	if s, ok := vals[1].(string); ok {
		bestAsk, _ = strconv.ParseFloat(s, 64)
	}
	return bestBid, bestAsk, nil
}

var _ domain.BookCache = (*BookCache)(nil)
