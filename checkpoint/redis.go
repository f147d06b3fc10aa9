package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"timescrap/models"
)

const scrapedKeyPrefix = "timescrap:scraped:"

// RedisStore shares a checkpoint between scraper instances through Redis.
// It keeps no payloads; pairing it with a resumable output file is up to
// the caller.
type RedisStore struct {
	client   *redis.Client
	calendar string
	ttl      time.Duration
}

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Calendar string
	// TTL expires scraped markers so stale data gets refetched eventually.
	// Zero keeps markers forever.
	TTL time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	return &RedisStore{
		client:   client,
		calendar: opts.Calendar,
		ttl:      opts.TTL,
	}, nil
}

func (s *RedisStore) key(date string) string {
	return scrapedKeyPrefix + s.calendar + ":" + date
}

// Load is a no-op: Redis keeps markers only, not payloads.
func (s *RedisStore) Load(context.Context) ([]models.DayRecord, error) {
	return nil, nil
}

// Seen checks for the date marker.
func (s *RedisStore) Seen(ctx context.Context, date string) (bool, error) {
	count, err := s.client.Exists(ctx, s.key(date)).Result()
	if err != nil {
		return false, fmt.Errorf("check scraped marker: %w", err)
	}
	return count == 1, nil
}

// Mark sets the date marker with the configured expiry.
func (s *RedisStore) Mark(ctx context.Context, date string) error {
	if err := s.client.Set(ctx, s.key(date), "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("set scraped marker: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
