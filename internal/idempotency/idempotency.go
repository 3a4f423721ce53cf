// Package idempotency remembers the response to a keyed request so that a
// retried booking replays the original confirmation instead of booking
// twice.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/cockroachdb/errors"
	redisadapter "github.com/robertarktes/event-ticketing/internal/adapters/redis"
)

var (
	// ErrInFlight is returned when a request with the same key is still running.
	ErrInFlight = errors.New("request with this idempotency key is in progress")
	// ErrKeyReused is returned when a stored key is replayed with a different body.
	ErrKeyReused = errors.New("idempotency key was already used for a different request")
)

// Backend stores responses and in-flight locks. The redis adapter
// implements it.
type Backend interface {
	Get(ctx context.Context, key string) (*redisadapter.IdempResponse, error)
	Set(ctx context.Context, key string, resp redisadapter.IdempResponse, ttl time.Duration) error
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type Idempotency struct {
	backend Backend
	ttl     time.Duration
	lockTTL time.Duration
}

// NewIdempotency keeps responses for ttl. lockTTL bounds how long a crashed
// request can hold its key.
func NewIdempotency(backend Backend, ttl, lockTTL time.Duration) *Idempotency {
	return &Idempotency{backend: backend, ttl: ttl, lockTTL: lockTTL}
}

type Response struct {
	Status      int
	ContentType string
	Result      []byte
	// Fingerprint identifies the request body that produced the response.
	Fingerprint string
}

// Matches reports whether a request with fingerprint may replay r. Responses
// stored without a fingerprint match anything.
func (r *Response) Matches(fingerprint string) bool {
	return r.Fingerprint == "" || r.Fingerprint == fingerprint
}

// Fingerprint hashes a request body.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func (i *Idempotency) Get(ctx context.Context, key string) (*Response, error) {
	stored, err := i.backend.Get(ctx, key)
	if err != nil || stored == nil {
		return nil, err
	}
	return &Response{
		Status:      stored.Status,
		ContentType: stored.ContentType,
		Result:      stored.Result,
		Fingerprint: stored.Fingerprint,
	}, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	return i.backend.Set(ctx, key, redisadapter.IdempResponse{
		Status:      resp.Status,
		ContentType: resp.ContentType,
		Result:      resp.Result,
		Fingerprint: resp.Fingerprint,
	}, i.ttl)
}

// Begin claims key until release is called or the lock TTL runs out. A
// second caller gets ErrInFlight.
func (i *Idempotency) Begin(ctx context.Context, key string) (release func(), err error) {
	ok, err := i.backend.Lock(ctx, key, i.lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInFlight
	}
	return func() { _ = i.backend.Unlock(context.Background(), key) }, nil
}
