package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sokocap/soko-backoffice/pkg/logger"
)

// Quote is a cached board price.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     string    `json:"price"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Cache holds recent quotes in Redis so the quotes endpoint does not hit
// the database on every request.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a quote cache.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func quoteKey(symbol string) string {
	return "soko:quote:" + symbol
}

// SetQuote stores a quote. Cache failures are logged, never propagated.
func (c *Cache) SetQuote(ctx context.Context, symbol string, quote Quote) {
	data, err := json.Marshal(quote)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, quoteKey(symbol), data, c.ttl).Err(); err != nil {
		logger.Warn().Err(err).Str("symbol", symbol).Msg("failed to cache quote")
	}
}

// GetQuote returns the cached quote or an error on miss.
func (c *Cache) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	data, err := c.client.Get(ctx, quoteKey(symbol)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("quote cache miss: %w", err)
	}

	var quote Quote
	if err := json.Unmarshal(data, &quote); err != nil {
		return nil, fmt.Errorf("failed to decode cached quote: %w", err)
	}
	return &quote, nil
}
