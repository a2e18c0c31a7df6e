package contentstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"datatoken/internal/domain"
	"datatoken/internal/usecase"
)

const defaultKeyPrefix = "datatoken:content:"

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL of zero keeps documents forever.
	TTL time.Duration
}

type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(opts RedisOptions) (*Redis, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &Redis{client: client, prefix: prefix, ttl: opts.TTL}, nil
}

func (r *Redis) Put(ctx context.Context, document []byte) (string, error) {
	locator, err := Locator(document)
	if err != nil {
		return "", err
	}
	if err := r.client.Set(ctx, r.prefix+locator, document, r.ttl).Err(); err != nil {
		return "", fmt.Errorf("redis put %s: %w", locator, err)
	}
	return locator, nil
}

func (r *Redis) Get(ctx context.Context, locator string) ([]byte, error) {
	doc, err := r.client.Get(ctx, r.prefix+locator).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", locator, err)
	}
	return doc, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

var _ usecase.ContentStore = (*Redis)(nil)
