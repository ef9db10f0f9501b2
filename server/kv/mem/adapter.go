// Package mem is an in-process key-value adapter. It backs tests and
// single-node development setups where running Redis is overkill. All
// operations are atomic under one mutex, which matches the per-key
// atomicity of the networked adapters.
package mem

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/discoursio/core/server/kv"
	t "github.com/discoursio/core/server/store/types"
)

type adapter struct {
	mu       sync.Mutex
	open     bool
	docs     map[string]string
	sets     map[string]map[string]struct{}
	lists    map[string][]string
	counters map[string]int64
}

const adapterName = "mem"

// Open initializes the in-memory tables.
func (a *adapter) Open(jsonconf json.RawMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.docs = make(map[string]string)
	a.sets = make(map[string]map[string]struct{})
	a.lists = make(map[string][]string)
	a.counters = make(map[string]int64)
	a.open = true
	return nil
}

// Close drops all stored data.
func (a *adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.open = false
	a.docs = nil
	a.sets = nil
	a.lists = nil
	a.counters = nil
	return nil
}

// IsOpen checks if the adapter is ready for use.
func (a *adapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open
}

// GetName returns the name of the adapter.
func (a *adapter) GetName() string {
	return adapterName
}

func (a *adapter) Get(_ context.Context, key string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	val, ok := a.docs[key]
	if !ok {
		return "", t.ErrNotFound
	}
	return val, nil
}

func (a *adapter) MGet(_ context.Context, keys ...string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]string, len(keys))
	for i, key := range keys {
		out[i] = a.docs[key]
	}
	return out, nil
}

func (a *adapter) Set(_ context.Context, key, value string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.docs[key] = value
	return nil
}

func (a *adapter) Del(_ context.Context, keys ...string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, key := range keys {
		delete(a.docs, key)
		delete(a.sets, key)
		delete(a.lists, key)
		delete(a.counters, key)
	}
	return nil
}

func (a *adapter) SetAdd(_ context.Context, key string, members ...string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	set, ok := a.sets[key]
	if !ok {
		set = make(map[string]struct{})
		a.sets[key] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	return nil
}

func (a *adapter) SetRemove(_ context.Context, key string, members ...string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	set := a.sets[key]
	for _, m := range members {
		delete(set, m)
	}
	if len(set) == 0 {
		delete(a.sets, key)
	}
	return nil
}

func (a *adapter) SetMembers(_ context.Context, key string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	set := a.sets[key]
	if len(set) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	return out, nil
}

func (a *adapter) ListPush(_ context.Context, key string, values ...string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	list := a.lists[key]
	for _, v := range values {
		list = append([]string{v}, list...)
	}
	a.lists[key] = list
	return nil
}

func (a *adapter) ListRemove(_ context.Context, key, value string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	list := a.lists[key]
	out := list[:0]
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		delete(a.lists, key)
	} else {
		a.lists[key] = out
	}
	return nil
}

func (a *adapter) ListRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	items := a.lists[key]
	length := int64(len(items))
	if start < 0 {
		start += length
		if start < 0 {
			start = 0
		}
	}
	if stop < 0 {
		stop += length
	}
	if start >= length || stop < start {
		return nil, nil
	}
	if stop >= length {
		stop = length - 1
	}
	out := make([]string, 0, stop-start+1)
	out = append(out, items[start:stop+1]...)
	return out, nil
}

func (a *adapter) ListLen(_ context.Context, key string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int64(len(a.lists[key])), nil
}

func (a *adapter) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.counters[key] += delta
	return a.counters[key], nil
}

// New returns an opened stand-alone instance for tests. The package-level
// registered adapter is shared process-wide; tests need isolation.
func New() kv.Adapter {
	a := &adapter{}
	a.Open(nil)
	return a
}

func init() {
	kv.RegisterAdapter(&adapter{})
}
