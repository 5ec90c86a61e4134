package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/models"
)

// RedisStore keeps the full record as one JSON value under a single
// key.
type RedisStore struct {
	client *redis.Client
	key    string
	logger *logrus.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg *config.RedisConfig, logger *logrus.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	key := cfg.Key
	if key == "" {
		key = "parley:record"
	}

	return &RedisStore{
		client: client,
		key:    key,
		logger: logger,
	}, nil
}

// Load fetches the full record; a missing key yields the empty default.
func (s *RedisStore) Load(ctx context.Context) (*models.Record, error) {
	data, err := s.client.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return models.NewRecord(), nil
	}
	if err != nil {
		return nil, err
	}

	var record models.Record
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	if record.Messages == nil {
		record.Messages = make(map[string][]models.Message)
	}
	return &record, nil
}

// Save replaces the whole record.
func (s *RedisStore) Save(ctx context.Context, record *models.Record) error {
	record.LastUpdate = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return s.client.Set(ctx, s.key, data, 0).Err()
}

// Close releases the underlying connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
