// Package kv defines the key-value store interface consumed by the
// conversation store and provides registration of its adapters.
//
// The contract is deliberately narrow: string documents, set-valued indices,
// ordered id lists and atomic counters. There are no transactions across
// keys; atomicity is per key only. Multi-key invariants are maintained by
// the callers (see the inbox package).
package kv

import (
	"context"
	"encoding/json"
	"errors"
)

// Adapter is the interface the key-value adapters must implement.
type Adapter interface {
	// Open and configure the adapter.
	Open(jsonconf json.RawMessage) error
	// Close the adapter.
	Close() error
	// IsOpen checks if the adapter is ready for use.
	IsOpen() bool
	// GetName returns the name of the adapter.
	GetName() string

	// Get reads a document by key. Returns types.ErrNotFound for a missing key.
	Get(ctx context.Context, key string) (string, error)
	// MGet reads several documents in one call. Missing keys yield empty
	// strings at their positions; the call itself does not fail on them.
	MGet(ctx context.Context, keys ...string) ([]string, error)
	// Set writes a document under the key.
	Set(ctx context.Context, key, value string) error
	// Del removes the given keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	// SetAdd adds members to a set-valued index.
	SetAdd(ctx context.Context, key string, members ...string) error
	// SetRemove removes members from a set-valued index.
	SetRemove(ctx context.Context, key string, members ...string) error
	// SetMembers returns all members of a set-valued index. A missing key is
	// an empty set.
	SetMembers(ctx context.Context, key string) ([]string, error)

	// ListPush prepends values to an ordered list, newest first.
	ListPush(ctx context.Context, key string, values ...string) error
	// ListRemove deletes all occurrences of the value from the list.
	ListRemove(ctx context.Context, key, value string) error
	// ListRange returns list elements in the [start, stop] inclusive window,
	// negative indices counting from the tail. Out-of-range windows return
	// an empty slice.
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	// ListLen returns the length of the list; 0 for a missing key.
	ListLen(ctx context.Context, key string) (int64, error)

	// IncrBy atomically increments the counter at key and returns the new
	// value. A missing key counts from zero.
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
}

var adp Adapter
var availableAdapters = make(map[string]Adapter)

type configType struct {
	// Adapter name to use.
	UseAdapter string `json:"use_adapter"`
	// Configurations for individual adapters.
	Adapters map[string]json.RawMessage `json:"adapters"`
}

// RegisterAdapter makes a key-value adapter available.
// If RegisterAdapter is called twice or if the adapter is nil, it panics.
func RegisterAdapter(a Adapter) {
	if a == nil {
		panic("kv: register adapter is nil")
	}

	name := a.GetName()
	if _, ok := availableAdapters[name]; ok {
		panic("kv: adapter '" + name + "' is already registered")
	}
	availableAdapters[name] = a
}

// Open selects and opens the configured adapter.
func Open(jsonconf json.RawMessage) (Adapter, error) {
	var config configType
	if err := json.Unmarshal(jsonconf, &config); err != nil {
		return nil, errors.New("kv: failed to parse config: " + err.Error())
	}

	if adp == nil {
		if len(config.UseAdapter) > 0 {
			if ad, ok := availableAdapters[config.UseAdapter]; ok {
				adp = ad
			} else {
				return nil, errors.New("kv: " + config.UseAdapter + " adapter is not available in this binary")
			}
		} else if len(availableAdapters) == 1 {
			for _, v := range availableAdapters {
				adp = v
			}
		} else {
			return nil, errors.New("kv: adapter is not specified. Please set `kv_config.use_adapter` in config")
		}
	}

	if adp.IsOpen() {
		return nil, errors.New("kv: connection is already opened")
	}

	var adapterConfig json.RawMessage
	if config.Adapters != nil {
		adapterConfig = config.Adapters[adp.GetName()]
	}

	if err := adp.Open(adapterConfig); err != nil {
		return nil, err
	}
	return adp, nil
}

// Close terminates the connection to the key-value store.
func Close() error {
	if adp != nil && adp.IsOpen() {
		return adp.Close()
	}
	return nil
}
