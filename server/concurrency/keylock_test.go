package concurrency

import (
	"sync"
	"testing"
)

func TestKeyLockSerializesSameKey(t *testing.T) {
	kl := NewKeyLock()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kl.Lock("chat1")
			counter++
			kl.Unlock("chat1")
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

func TestKeyLockIndependentKeys(t *testing.T) {
	kl := NewKeyLock()

	kl.Lock("a")
	// A different key must not block.
	done := make(chan struct{})
	go func() {
		kl.Lock("b")
		kl.Unlock("b")
		close(done)
	}()
	<-done
	kl.Unlock("a")
}

func TestKeyLockForget(t *testing.T) {
	kl := NewKeyLock()

	kl.Lock("gone")
	kl.Unlock("gone")
	kl.Forget("gone")

	// The key is usable again after Forget.
	kl.Lock("gone")
	kl.Unlock("gone")
}

func TestKeyLockUnlockUnknownPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Unlock of unknown key did not panic")
		}
	}()
	NewKeyLock().Unlock("never-locked")
}
