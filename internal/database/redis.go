package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

type redisService struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedis stores each record as a JSON string under <prefix>session:<name>
// and keeps the set of names under <prefix>sessions.
func NewRedis(ctx context.Context, url, keyPrefix string) (Service, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return newRedisWithClient(client, keyPrefix), nil
}

func newRedisWithClient(client *redis.Client, keyPrefix string) *redisService {
	if keyPrefix == "" {
		keyPrefix = "werewolf:"
	}
	return &redisService{client: client, keyPrefix: keyPrefix}
}

func (s *redisService) sessionKey(name string) string {
	return s.keyPrefix + "session:" + name
}

func (s *redisService) indexKey() string {
	return s.keyPrefix + "sessions"
}

func (s *redisService) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	stats := make(map[string]string)
	if err := s.client.Ping(ctx).Err(); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("redis down: %v", err)
		return stats
	}
	poolStats := s.client.PoolStats()
	stats["status"] = "up"
	stats["message"] = "It's healthy"
	stats["total_connections"] = fmt.Sprint(poolStats.TotalConns)
	stats["idle_connections"] = fmt.Sprint(poolStats.IdleConns)
	stats["stale_connections"] = fmt.Sprint(poolStats.StaleConns)
	return stats
}

func (s *redisService) SaveSession(ctx context.Context, rec SessionRecord) error {
	rec = rec.Clone()
	rec.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encode session")
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(rec.Name), data, 0)
		pipe.SAdd(ctx, s.indexKey(), rec.Name)
		return nil
	})
	return errors.Wrapf(err, "save session %q", rec.Name)
}

func (s *redisService) DeleteSession(ctx context.Context, name string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.sessionKey(name))
		pipe.SRem(ctx, s.indexKey(), name)
		return nil
	})
	return errors.Wrapf(err, "delete session %q", name)
}

func (s *redisService) LoadSessions(ctx context.Context) ([]SessionRecord, error) {
	names, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list session names")
	}
	if len(names) == 0 {
		return nil, nil
	}

	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = s.sessionKey(name)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "load sessions")
	}

	out := make([]SessionRecord, 0, len(values))
	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// index entry without a record
			stale = append(stale, names[i])
			continue
		}
		var rec SessionRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, errors.Wrapf(err, "decode session %q", names[i])
		}
		out = append(out, rec)
	}
	if len(stale) > 0 {
		if err := s.client.SRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			return nil, errors.Wrap(err, "prune session index")
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *redisService) Close() error {
	return s.client.Close()
}
