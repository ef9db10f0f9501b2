// Package redis is a key-value adapter for Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	rd "github.com/redis/go-redis/v9"

	"github.com/discoursio/core/server/kv"
	t "github.com/discoursio/core/server/store/types"
)

// adapter holds the Redis connection.
type adapter struct {
	client *rd.Client
}

const (
	defaultAddr = "localhost:6379"

	adapterName = "redis"
)

type configType struct {
	Addr     string `json:"addr,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	// Dial timeout in seconds.
	DialTimeout int `json:"dial_timeout,omitempty"`
}

// Open initializes the Redis connection.
func (a *adapter) Open(jsonconf json.RawMessage) error {
	if a.client != nil {
		return errors.New("redis adapter is already connected")
	}

	var config configType
	if len(jsonconf) > 0 {
		if err := json.Unmarshal(jsonconf, &config); err != nil {
			return errors.New("redis adapter failed to parse config: " + err.Error())
		}
	}

	if config.Addr == "" {
		config.Addr = defaultAddr
	}

	a.client = rd.NewClient(&rd.Options{
		Addr:        config.Addr,
		Username:    config.Username,
		Password:    config.Password,
		DB:          config.DB,
		DialTimeout: time.Duration(config.DialTimeout) * time.Second,
	})

	// NewClient does not open the network connection. Force it here.
	if err := a.client.Ping(context.Background()).Err(); err != nil {
		a.client = nil
		return err
	}

	return nil
}

// Close closes the underlying connection pool.
func (a *adapter) Close() error {
	var err error
	if a.client != nil {
		err = a.client.Close()
		a.client = nil
	}
	return err
}

// IsOpen returns true if the connection has been established. It does not
// check if the connection is actually live.
func (a *adapter) IsOpen() bool {
	return a.client != nil
}

// GetName returns the name of the adapter.
func (a *adapter) GetName() string {
	return adapterName
}

func (a *adapter) Get(ctx context.Context, key string) (string, error) {
	val, err := a.client.Get(ctx, key).Result()
	if err == rd.Nil {
		return "", t.ErrNotFound
	}
	return val, err
}

func (a *adapter) MGet(ctx context.Context, keys ...string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := a.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[i] = s
		}
	}
	return out, nil
}

func (a *adapter) Set(ctx context.Context, key, value string) error {
	return a.client.Set(ctx, key, value, 0).Err()
}

func (a *adapter) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return a.client.Del(ctx, keys...).Err()
}

func (a *adapter) SetAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return a.client.SAdd(ctx, key, toAny(members)...).Err()
}

func (a *adapter) SetRemove(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return a.client.SRem(ctx, key, toAny(members)...).Err()
}

func (a *adapter) SetMembers(ctx context.Context, key string) ([]string, error) {
	return a.client.SMembers(ctx, key).Result()
}

func (a *adapter) ListPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	return a.client.LPush(ctx, key, toAny(values)...).Err()
}

func (a *adapter) ListRemove(ctx context.Context, key, value string) error {
	return a.client.LRem(ctx, key, 0, value).Err()
}

func (a *adapter) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return a.client.LRange(ctx, key, start, stop).Result()
}

func (a *adapter) ListLen(ctx context.Context, key string) (int64, error) {
	return a.client.LLen(ctx, key).Result()
}

func (a *adapter) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return a.client.IncrBy(ctx, key, delta).Result()
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func init() {
	kv.RegisterAdapter(&adapter{})
}
