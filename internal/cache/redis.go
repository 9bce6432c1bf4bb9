package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/portfolio-cli/internal/model"
)

// RedisStore implements Store on Redis. Records live under
// company_data:{id}; the fetch lock is a separate SetNX key whose TTL is the
// grace period, so abandoned locks expire on their own.
type RedisStore struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, addr string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, eris.Wrap(err, "redis: ping")
	}
	return &RedisStore{rdb: rdb, now: time.Now}, nil
}

func recordKey(companyID string) string { return "company_data:" + companyID }
func lockKey(companyID string) string   { return "company_data:" + companyID + ":lock" }

// Migrate is a no-op for Redis beyond a connectivity check.
func (s *RedisStore) Migrate(ctx context.Context) error {
	return eris.Wrap(s.rdb.Ping(ctx).Err(), "redis: migrate")
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) Get(ctx context.Context, companyID string) (*Record, error) {
	raw, err := s.rdb.Get(ctx, recordKey(companyID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "redis: get record %s", companyID)
	}

	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, eris.Wrapf(err, "redis: unmarshal record %s", companyID)
	}

	// The lock lives in its own key; surface it on the record for observability.
	lockRaw, err := s.rdb.Get(ctx, lockKey(companyID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, eris.Wrapf(err, "redis: get lock %s", companyID)
	}
	if err == nil {
		if t, perr := time.Parse(time.RFC3339Nano, lockRaw); perr == nil {
			r.FetchLock = &t
		}
	}
	return &r, nil
}

func (s *RedisStore) Upsert(ctx context.Context, companyID string, rec *model.NormalizedRecord) (*Record, error) {
	existing, err := s.Get(ctx, companyID)
	if err != nil {
		return nil, err
	}

	merged := applyUpdate(existing, companyID, rec, s.now().UTC())

	raw, err := json.Marshal(merged)
	if err != nil {
		return nil, eris.Wrapf(err, "redis: marshal record %s", companyID)
	}
	if err := s.rdb.Set(ctx, recordKey(companyID), raw, 0).Err(); err != nil {
		return nil, eris.Wrapf(err, "redis: upsert record %s", companyID)
	}
	return merged, nil
}

func (s *RedisStore) TryLock(ctx context.Context, companyID string, grace time.Duration) (bool, error) {
	now := s.now().UTC()
	ok, err := s.rdb.SetNX(ctx, lockKey(companyID), now.Format(time.RFC3339Nano), grace).Result()
	if err != nil {
		return false, eris.Wrapf(err, "redis: lock record %s", companyID)
	}
	return ok, nil
}

func (s *RedisStore) Unlock(ctx context.Context, companyID string) error {
	return eris.Wrapf(s.rdb.Del(ctx, lockKey(companyID)).Err(), "redis: unlock record %s", companyID)
}
