package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"agri-pipeline/internal/common/config"
	"agri-pipeline/internal/common/database"
)

const (
	defaultKeyPrefix = "results"
	defaultMaxPerKey = 50
)

type RedisStore struct {
	client    *database.RedisClient
	prefix    string
	ttl       time.Duration
	maxPerKey int
}

func NewRedisStore(client *database.RedisClient, cfg config.StorageConfig) *RedisStore {
	prefix := strings.TrimSuffix(cfg.KeyPrefix, ":")
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	maxPerKey := cfg.MaxPerKey
	if maxPerKey <= 0 {
		maxPerKey = defaultMaxPerKey
	}
	return &RedisStore{
		client:    client,
		prefix:    prefix,
		ttl:       time.Duration(cfg.TTL) * time.Second,
		maxPerKey: maxPerKey,
	}
}

func (s *RedisStore) Backend() string { return "redis" }

// Key returns results:<userID>:<kind>:<id>.
func (s *RedisStore) Key(rec *Record) string {
	return fmt.Sprintf("%s:%s:%s:%s", s.prefix, rec.UserID, rec.Kind, rec.ID)
}

func (s *RedisStore) indexKey(rec *Record) string {
	return fmt.Sprintf("%s:%s:%s:index", s.prefix, rec.UserID, rec.Kind)
}

func (s *RedisStore) Save(ctx context.Context, rec *Record) (err error) {
	defer func() { observe(s.Backend(), err) }()

	if err := rec.validate(); err != nil {
		return err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	return s.client.SetWithIndex(ctx, s.Key(rec), body, s.indexKey(rec), s.maxPerKey, s.ttl)
}
