// Package cache holds the process-wide aggregation caches: derived
// statistics periodically rebuilt from the source of record and served to
// many concurrent readers with bounded staleness.
//
// Every cache follows the same discipline: the rebuild computes a new
// snapshot off to the side and swaps one reference, so readers observe
// either the pre-rebuild or the post-rebuild state, never a partially
// rebuilt one. On a failed rebuild the previous snapshot is retained and
// the loop retries after a short backoff.
package cache

import (
	"time"

	"github.com/discoursio/core/server/logs"
	"github.com/discoursio/core/server/stats"
	t "github.com/discoursio/core/server/store/types"
)

// ZineReader is the read surface of the source of record the caches rebuild
// from. Implemented by store.Zine; tests substitute fakes.
type ZineReader interface {
	ShoutRecords() ([]t.ShoutRecord, error)
	ShoutTopicLinks() ([]t.ShoutTopicLink, error)
	ShoutAuthorLinks() ([]t.ShoutAuthorLink, error)
	TopicFollowers() ([]t.TopicFollowerLink, error)
}

// ViewsWriter is the single write path the core owns in the source of
// record. Implemented by store.Views.
type ViewsWriter interface {
	Increment(slug string, amount int, source t.ViewSource) error
}

const (
	// Pause after a failed rebuild before trying again.
	retryBackoff = 10 * time.Second
)

// refreshLoop runs rebuild once immediately, then on every period tick,
// until the stop channel is closed. A failed rebuild is logged and retried
// after a short backoff; it never stops the loop, the cache keeps serving
// the last good snapshot.
func refreshLoop(name string, period time.Duration, stop <-chan struct{}, rebuild func() error) {
	stats.RegisterInt("CacheRebuilds")
	for {
		wait := period
		if err := rebuild(); err != nil {
			logs.Error.Printf("cache.%s: rebuild failed: %v", name, err)
			wait = retryBackoff
		} else {
			stats.Inc("CacheRebuilds", 1)
		}

		select {
		case <-time.After(wait):
		case <-stop:
			logs.Info.Printf("cache.%s: refresh loop stopped", name)
			return
		}
	}
}

// slicePage returns the [offset, offset+limit) window of the list. An
// out-of-range window is an empty slice, never an error.
func slicePage(list []t.ShoutRecord, offset, limit int) []t.ShoutRecord {
	if offset < 0 || limit <= 0 || offset >= len(list) {
		return nil
	}
	end := offset + limit
	if end > len(list) {
		end = len(list)
	}
	return list[offset:end]
}
