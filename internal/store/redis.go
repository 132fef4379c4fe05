package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/ashureev/rolesim/internal/domain"
	"github.com/ashureev/rolesim/internal/learning"
)

// DefaultRedisPrefix namespaces learning keys.
const DefaultRedisPrefix = "rolesim:learning"

// RedisLearningBackend stores each learning record as a JSON string under
// "{prefix}:topic:{topic}" and tracks topics in the set "{prefix}:topics".
type RedisLearningBackend struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisLearningBackend wraps client. An empty prefix uses DefaultRedisPrefix.
func NewRedisLearningBackend(client redis.UniversalClient, prefix string) *RedisLearningBackend {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisLearningBackend{client: client, prefix: prefix}
}

func (r *RedisLearningBackend) topicKey(topic string) string {
	return fmt.Sprintf("%s:topic:%s", r.prefix, topic)
}

func (r *RedisLearningBackend) indexKey() string {
	return r.prefix + ":topics"
}

func (r *RedisLearningBackend) Load(ctx context.Context, topic string) (*domain.ObjectionLearningRecord, error) {
	raw, err := r.client.Get(ctx, r.topicKey(topic)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", topic, err)
	}
	var rec domain.ObjectionLearningRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode learning record %s: %w", topic, err)
	}
	return &rec, nil
}

// Save writes the record and its index entry in one MULTI/EXEC.
func (r *RedisLearningBackend) Save(ctx context.Context, rec domain.ObjectionLearningRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode learning record: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.topicKey(rec.Topic), raw, 0)
		pipe.SAdd(ctx, r.indexKey(), rec.Topic)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save %s: %w", rec.Topic, err)
	}
	return nil
}

func (r *RedisLearningBackend) LoadAll(ctx context.Context) ([]domain.ObjectionLearningRecord, error) {
	topics, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list topics: %w", err)
	}
	if len(topics) == 0 {
		return nil, nil
	}
	sort.Strings(topics)

	keys := make([]string, len(topics))
	for i, t := range topics {
		keys[i] = r.topicKey(t)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	out := make([]domain.ObjectionLearningRecord, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// index entry without a record
			continue
		}
		var rec domain.ObjectionLearningRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("decode learning record %s: %w", topics[i], err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *RedisLearningBackend) Clear(ctx context.Context) error {
	topics, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return fmt.Errorf("redis list topics: %w", err)
	}
	keys := make([]string, 0, len(topics)+1)
	for _, t := range topics {
		keys = append(keys, r.topicKey(t))
	}
	keys = append(keys, r.indexKey())
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis clear: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (r *RedisLearningBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

var _ learning.Backend = (*RedisLearningBackend)(nil)
