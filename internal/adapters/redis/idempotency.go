package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

type Idempotency struct {
	client *redis.Client
}

func NewIdempotency(client *redis.Client) *Idempotency {
	return &Idempotency{client: client}
}

type IdempResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Result      []byte `json:"result"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

func (i *Idempotency) Get(ctx context.Context, key string) (*IdempResponse, error) {
	val, err := i.client.Get(ctx, "idemp:"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp IdempResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, errors.Wrapf(err, "decode idempotent response %s", key)
	}
	return &resp, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp IdempResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return i.client.Set(ctx, "idemp:"+key, data, ttl).Err()
}

// Lock claims key for an in-flight request. It reports false when another
// request already holds it.
func (i *Idempotency) Lock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return i.client.SetNX(ctx, "idemp-lock:"+key, 1, ttl).Result()
}

func (i *Idempotency) Unlock(ctx context.Context, key string) error {
	return i.client.Del(ctx, "idemp-lock:"+key).Err()
}
