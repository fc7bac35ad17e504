package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iho/creditledger/internal/domain"
	"github.com/iho/creditledger/internal/usecase"
)

const priceKey = "price:btc_usd_cents"

// PriceStore implements usecase.PriceService over a Redis key written by an
// external price feed. The value is the price of one BTC in cents.
type PriceStore struct {
	client       *redis.Client
	ttl          time.Duration
	defaultPrice domain.PriceOfOneBTC
}

// NewPriceStore creates a new PriceStore. defaultPrice of zero means a
// missing key is an error rather than a fallback.
func NewPriceStore(client *redis.Client, ttl time.Duration, defaultPrice domain.PriceOfOneBTC) *PriceStore {
	return &PriceStore{client: client, ttl: ttl, defaultPrice: defaultPrice}
}

// BTCPrice returns the current BTC price in cents.
func (s *PriceStore) BTCPrice(ctx context.Context) (domain.PriceOfOneBTC, error) {
	val, err := s.client.Get(ctx, priceKey).Result()
	if errors.Is(err, redis.Nil) {
		if s.defaultPrice > 0 {
			return s.defaultPrice, nil
		}
		return 0, usecase.ErrPriceUnavailable
	}
	if err != nil {
		return 0, err
	}

	cents, err := strconv.ParseInt(val, 10, 64)
	if err != nil || cents <= 0 {
		return 0, usecase.ErrPriceUnavailable
	}
	return domain.PriceOfOneBTC(cents), nil
}

// SetBTCPrice stores a fresh price quote with the configured TTL, so a stale
// feed falls back to the default instead of an old price.
func (s *PriceStore) SetBTCPrice(ctx context.Context, price domain.PriceOfOneBTC) error {
	if price <= 0 {
		return usecase.ErrPriceUnavailable
	}
	return s.client.Set(ctx, priceKey, strconv.FormatInt(int64(price), 10), s.ttl).Err()
}
