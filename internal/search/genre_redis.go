package search

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"animestream/catalog/internal/domain"
)

const redisGenreKey = "catalog:genres:anime"

// RedisGenreStore keeps the genre list in Redis as JSON.
type RedisGenreStore struct {
	client *redis.Client
}

func NewRedisGenreStore(client *redis.Client) *RedisGenreStore {
	return &RedisGenreStore{client: client}
}

func (r *RedisGenreStore) LoadGenres(ctx context.Context) ([]domain.Genre, bool, error) {
	data, err := r.client.Get(ctx, redisGenreKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var genres []domain.Genre
	if err := json.Unmarshal(data, &genres); err != nil {
		return nil, false, err
	}
	return genres, true, nil
}

func (r *RedisGenreStore) SaveGenres(ctx context.Context, genres []domain.Genre, ttl time.Duration) error {
	data, err := json.Marshal(genres)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisGenreKey, data, ttl).Err()
}

func (r *RedisGenreStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
