package concurrency

import (
	"sync"
)

// KeyLock serializes operations on a string key. The conversation store uses
// one lock per chat id: the key-value store has no cross-key transactions, so
// every multi-key mutation of a chat must hold the chat's lock.
type KeyLock struct {
	guard sync.Mutex
	locks map[string]SimpleMutex
}

// NewKeyLock creates an empty lock table.
func NewKeyLock() *KeyLock {
	return &KeyLock{locks: make(map[string]SimpleMutex)}
}

// Lock acquires the lock for the given key, creating it on first use.
func (kl *KeyLock) Lock(key string) {
	kl.guard.Lock()
	m, ok := kl.locks[key]
	if !ok {
		m = NewSimpleMutex()
		kl.locks[key] = m
	}
	kl.guard.Unlock()

	m.Lock()
}

// Unlock releases the lock for the given key. Unlocking a key which was
// never locked is a programming error and panics.
func (kl *KeyLock) Unlock(key string) {
	kl.guard.Lock()
	m, ok := kl.locks[key]
	kl.guard.Unlock()

	if !ok {
		panic("concurrency: Unlock of unknown key " + key)
	}
	m.Unlock()
}

// Forget drops the lock of a deleted key so the table does not grow
// unbounded. The caller must not hold the lock.
//
// A goroutine still blocked in Lock on the forgotten key keeps the old
// mutex, while a later Lock mints a fresh one: both can then hold the key
// at once. Forget is therefore only safe for keys that can no longer be
// operated on meaningfully, such as a deleted chat id that is never reused.
func (kl *KeyLock) Forget(key string) {
	kl.guard.Lock()
	delete(kl.locks, key)
	kl.guard.Unlock()
}
