// Package redisstore keeps the migration state document under a single Redis key.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kevin07696/subscription-migrator/internal/domain"
	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
)

// DefaultKey is where the state document lives when no key is configured
const DefaultKey = "migrator:state"

// StateRepository implements ports.StateRepository on a Redis string
type StateRepository struct {
	client *redis.Client
	key    string
}

var _ ports.StateRepository = (*StateRepository)(nil)

// NewStateRepository creates a repository storing the document at key
func NewStateRepository(client *redis.Client, key string) *StateRepository {
	if key == "" {
		key = DefaultKey
	}
	return &StateRepository{client: client, key: key}
}

func (r *StateRepository) Load(ctx context.Context) ([]byte, error) {
	doc, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load migration state: %w", err)
	}
	return doc, nil
}

func (r *StateRepository) Save(ctx context.Context, doc []byte) error {
	if err := r.client.Set(ctx, r.key, doc, 0).Err(); err != nil {
		return fmt.Errorf("save migration state: %w", err)
	}
	return nil
}

func (r *StateRepository) Delete(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("delete migration state: %w", err)
	}
	return nil
}
