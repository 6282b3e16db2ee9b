package redis

import (
	"context"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

type Key string

func (k Key) String() string {
	return string(k)
}

// Nil is returned by Get when the key does not exist.
const Nil = redis.Nil

type Instance interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, key Key) (string, error)
	// MGet returns one entry per key; missing keys are nil.
	MGet(ctx context.Context, keys ...Key) ([]any, error)
	SetEX(ctx context.Context, key Key, value string, ttl time.Duration) error
	// SetManyEX writes every pair with the same ttl in one round trip.
	SetManyEX(ctx context.Context, values map[Key]string, ttl time.Duration) error
	Del(ctx context.Context, keys ...Key) error
	ComposeKey(parts ...string) Key
	RawClient() *redis.Client
	Close() error
}

type SetupOptions struct {
	Addr      string
	Username  string
	Password  string
	Database  int
	KeyPrefix string
}

type redisInst struct {
	cl     *redis.Client
	prefix string
}

func Setup(ctx context.Context, opt SetupOptions) (Instance, error) {
	cl := redis.NewClient(&redis.Options{
		Addr:     opt.Addr,
		Username: opt.Username,
		Password: opt.Password,
		DB:       opt.Database,
	})

	if err := cl.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	zap.S().Infow("redis, ok", "addr", opt.Addr)

	return WrapClient(cl, opt.KeyPrefix), nil
}

func WrapClient(cl *redis.Client, prefix string) Instance {
	return &redisInst{cl: cl, prefix: prefix}
}

func (i *redisInst) Ping(ctx context.Context) error {
	return i.cl.Ping(ctx).Err()
}

func (i *redisInst) Get(ctx context.Context, key Key) (string, error) {
	return i.cl.Get(ctx, key.String()).Result()
}

func (i *redisInst) MGet(ctx context.Context, keys ...Key) ([]any, error) {
	if len(keys) == 0 {
		return []any{}, nil
	}

	return i.cl.MGet(ctx, stringKeys(keys)...).Result()
}

func (i *redisInst) SetEX(ctx context.Context, key Key, value string, ttl time.Duration) error {
	return i.cl.Set(ctx, key.String(), value, ttl).Err()
}

func (i *redisInst) SetManyEX(ctx context.Context, values map[Key]string, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}

	_, err := i.cl.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, k.String(), v, ttl)
		}

		return nil
	})

	return err
}

func (i *redisInst) Del(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}

	return i.cl.Del(ctx, stringKeys(keys)...).Err()
}

func (i *redisInst) ComposeKey(parts ...string) Key {
	if i.prefix == "" {
		return Key(strings.Join(parts, ":"))
	}

	return Key(i.prefix + ":" + strings.Join(parts, ":"))
}

func (i *redisInst) RawClient() *redis.Client {
	return i.cl
}

func (i *redisInst) Close() error {
	return i.cl.Close()
}

func stringKeys(keys []Key) []string {
	out := make([]string, len(keys))
	for idx, k := range keys {
		out[idx] = k.String()
	}

	return out
}
