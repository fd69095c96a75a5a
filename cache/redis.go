package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"example.com/libraria/services/library/config"
	"example.com/libraria/services/library/models"
)

// RedisCache caches read-model rows. When disabled it degrades to no-ops so
// callers never branch on configuration.
type RedisCache struct {
	client  *redis.Client
	enabled bool
	ttl     time.Duration
}

// NewRedisCache creates a new Redis cache client
func NewRedisCache(cfg config.Config) (*RedisCache, error) {
	if !cfg.RedisEnabled {
		return &RedisCache{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := cfg.RedisTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &RedisCache{
		client:  client,
		enabled: true,
		ttl:     ttl,
	}, nil
}

// Prefix keys to avoid collisions
func bookKey(id string) string {
	return fmt.Sprintf("book:%s", id)
}

func reservationKey(id string) string {
	return fmt.Sprintf("reservation:%s", id)
}

// Wallets are keyed by user ID because that is how the read side looks
// them up.
func walletKey(userID string) string {
	return fmt.Sprintf("wallet:user:%s", userID)
}

// GetBook retrieves a book projection from cache
func (c *RedisCache) GetBook(ctx context.Context, aggregateID string) (*models.BookProjection, error) {
	if !c.enabled {
		return nil, redis.Nil
	}

	data, err := c.client.Get(ctx, bookKey(aggregateID)).Bytes()
	if err != nil {
		return nil, err
	}

	var book models.BookProjection
	if err := json.Unmarshal(data, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

// SetBook caches a book projection
func (c *RedisCache) SetBook(ctx context.Context, book *models.BookProjection) error {
	if !c.enabled {
		return nil
	}

	data, err := json.Marshal(book)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, bookKey(book.AggregateID), data, c.ttl).Err()
}

// DeleteBook removes a book projection from cache
func (c *RedisCache) DeleteBook(ctx context.Context, aggregateID string) error {
	if !c.enabled {
		return nil
	}
	return c.client.Del(ctx, bookKey(aggregateID)).Err()
}

// GetReservation retrieves a reservation projection from cache
func (c *RedisCache) GetReservation(ctx context.Context, aggregateID string) (*models.ReservationProjection, error) {
	if !c.enabled {
		return nil, redis.Nil
	}

	data, err := c.client.Get(ctx, reservationKey(aggregateID)).Bytes()
	if err != nil {
		return nil, err
	}

	var res models.ReservationProjection
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SetReservation caches a reservation projection
func (c *RedisCache) SetReservation(ctx context.Context, res *models.ReservationProjection) error {
	if !c.enabled {
		return nil
	}

	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, reservationKey(res.AggregateID), data, c.ttl).Err()
}

// DeleteReservation removes a reservation projection from cache
func (c *RedisCache) DeleteReservation(ctx context.Context, aggregateID string) error {
	if !c.enabled {
		return nil
	}
	return c.client.Del(ctx, reservationKey(aggregateID)).Err()
}

// GetWallet retrieves a wallet projection from cache
func (c *RedisCache) GetWallet(ctx context.Context, userID string) (*models.WalletProjection, error) {
	if !c.enabled {
		return nil, redis.Nil
	}

	data, err := c.client.Get(ctx, walletKey(userID)).Bytes()
	if err != nil {
		return nil, err
	}

	var wallet models.WalletProjection
	if err := json.Unmarshal(data, &wallet); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// SetWallet caches a wallet projection
func (c *RedisCache) SetWallet(ctx context.Context, wallet *models.WalletProjection) error {
	if !c.enabled {
		return nil
	}

	data, err := json.Marshal(wallet)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, walletKey(wallet.UserID), data, c.ttl).Err()
}

// DeleteWallet removes a wallet projection from cache
func (c *RedisCache) DeleteWallet(ctx context.Context, userID string) error {
	if !c.enabled {
		return nil
	}
	return c.client.Del(ctx, walletKey(userID)).Err()
}

// Close closes the underlying connection
func (c *RedisCache) Close() error {
	if !c.enabled {
		return nil
	}
	return c.client.Close()
}
