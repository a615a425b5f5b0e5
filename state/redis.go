package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/evdnx/papertrader/types"
	"github.com/go-redis/redis/v8"
)

// Redis keeps the snapshot as one JSON value. A single SET replaces it
// atomically.
type Redis struct {
	client *redis.Client
	key    string
}

func NewRedis(addr, password string, db int, key string) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		key: key,
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Load(ctx context.Context) (types.Snapshot, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.Snapshot{}, ErrNoSnapshot
		}
		return types.Snapshot{}, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return decode(data)
}

func (r *Redis) Save(ctx context.Context, snap types.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

func (r *Redis) Close() error { return r.client.Close() }

func decode(data []byte) (types.Snapshot, error) {
	if len(data) == 0 {
		return types.Snapshot{}, ErrNoSnapshot
	}
	var snap types.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return types.Snapshot{}, err
	}
	return snap, nil
}
