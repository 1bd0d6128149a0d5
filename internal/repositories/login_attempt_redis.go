package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/clinicguard/internal/models"
	"github.com/redis/go-redis/v9"
)

const attemptMaxRetries = 8

// ErrAttemptContention is returned when optimistic retries are exhausted.
var ErrAttemptContention = errors.New("login attempt record contended")

// RedisAttemptStore keeps lockout records in Redis. Mutations use WATCH/MULTI
// so a concurrent writer forces a retry instead of a lost update.
type RedisAttemptStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewRedisAttemptStore creates a store. retention is the minimum key TTL;
// blocked records live at least until their block ends.
func NewRedisAttemptStore(client redis.UniversalClient, prefix string, retention time.Duration) *RedisAttemptStore {
	if prefix == "" {
		prefix = "lockout"
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RedisAttemptStore{redis: client, prefix: prefix, retention: retention}
}

func (s *RedisAttemptStore) key(identifier string) string {
	return s.prefix + ":" + identifier
}

func (s *RedisAttemptStore) Get(ctx context.Context, identifier string) (*models.LoginAttemptRecord, error) {
	data, err := s.redis.Get(ctx, s.key(identifier)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	var rec models.LoginAttemptRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: corrupt attempt record: %v", models.ErrStoreUnavailable, err)
	}
	return &rec, nil
}

func (s *RedisAttemptStore) Mutate(ctx context.Context, identifier string, fn AttemptMutation) (*models.LoginAttemptRecord, error) {
	key := s.key(identifier)

	for i := 0; i < attemptMaxRetries; i++ {
		var result *models.LoginAttemptRecord
		var fnErr error

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			var current *models.LoginAttemptRecord

			data, err := tx.Get(ctx, key).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				current = &models.LoginAttemptRecord{}
				if err := json.Unmarshal(data, current); err != nil {
					return err
				}
			}

			next, err := fn(current)
			if err != nil {
				fnErr = err
				return err
			}

			if next == nil {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			encoded, err := json.Marshal(next)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, s.ttl(next))
				return nil
			})
			if err == nil {
				result = next
			}
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if fnErr != nil {
			return nil, fnErr
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
		}
		return result, nil
	}

	return nil, fmt.Errorf("%w: %w", models.ErrStoreUnavailable, ErrAttemptContention)
}

func (s *RedisAttemptStore) Delete(ctx context.Context, identifier string) error {
	if err := s.redis.Del(ctx, s.key(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteIdentity removes the bare email record and every "email:ip" record
// for email.
func (s *RedisAttemptStore) DeleteIdentity(ctx context.Context, email string) error {
	keys := []string{s.key(email)}
	iter := s.redis.Scan(ctx, 0, globEscape(s.key(email))+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

func globEscape(s string) string {
	return globReplacer.Replace(s)
}

var globReplacer = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

// DeleteExpired is a no-op; Redis expires keys on its own.
func (s *RedisAttemptStore) DeleteExpired(ctx context.Context, staleBefore, now time.Time) (int64, error) {
	return 0, nil
}

func (s *RedisAttemptStore) ttl(rec *models.LoginAttemptRecord) time.Duration {
	ttl := s.retention
	if rec.BlockedUntil != nil {
		if untilBlock := time.Until(*rec.BlockedUntil); untilBlock > ttl {
			ttl = untilBlock
		}
	}
	return ttl
}
