package cache

import (
	"sync"
	"time"

	"github.com/discoursio/core/server/concurrency"
	"github.com/discoursio/core/server/logs"
	"github.com/discoursio/core/server/stats"
	t "github.com/discoursio/core/server/store/types"
)

// PageViewsFeed is a best-effort external source of page view counts, keyed
// by shout slug. The production implementation polls the ackee analytics
// instance; see feed.go.
type PageViewsFeed interface {
	PageViews() (map[string]int, error)
}

// Feed failures tolerated before the feed is abandoned for good. The
// primary rebuild from the source of record is not affected.
const maxFeedFailures = 3

// Viewed mirrors the per-shout view counters for low-latency reads and owns
// the only write path to them. The counters are authoritative in the source
// of record: Increment writes through before touching the mirror, so the
// mirrored value never exceeds the persisted one for more than one rebuild
// cycle.
type Viewed struct {
	zine  ZineReader
	views ViewsWriter
	feed  PageViewsFeed

	// One writer at a time: the refresh loop or an Increment call.
	mu sync.Mutex
	// Mirrors, replaced wholesale on rebuild.
	byShout  map[string]int
	byTopic  map[string]int
	topicsOf map[string][]string
	// Ackee-source slice of the shout mirror. The external feed reports
	// cumulative ackee counts, so its deltas must be computed against this
	// counter, not the cross-source total.
	ackeeOf map[string]int

	pool *concurrency.GoRoutinePool
	stop chan struct{}
}

// NewViewed creates the view counter cache. The feed may be nil when no
// external analytics source is configured.
func NewViewed(zine ZineReader, views ViewsWriter, feed PageViewsFeed) *Viewed {
	stats.RegisterInt("ViewsIncremented")
	return &Viewed{
		zine:     zine,
		views:    views,
		feed:     feed,
		byShout:  make(map[string]int),
		byTopic:  make(map[string]int),
		topicsOf: make(map[string][]string),
		ackeeOf:  make(map[string]int),
		pool:     concurrency.NewGoRoutinePool(8),
		stop:     make(chan struct{}),
	}
}

// Start launches the refresh loop and, when a feed is configured, the feed
// poller. feedPeriod is ignored without a feed.
func (v *Viewed) Start(period, feedPeriod time.Duration) {
	go refreshLoop("viewed", period, v.stop, v.rebuild)
	if v.feed != nil {
		go v.feedLoop(feedPeriod)
	}
}

// Stop terminates the background loops.
func (v *Viewed) Stop() {
	close(v.stop)
	v.pool.Stop()
}

// GetShout returns the mirrored view count of the shout; 0 for a slug the
// rebuild has never seen.
func (v *Viewed) GetShout(slug string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.byShout[slug]
}

// GetTopic returns the view count summed over the topic's shouts.
func (v *Viewed) GetTopic(slug string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.byTopic[slug]
}

func (v *Viewed) ackeeCount(slug string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ackeeOf[slug]
}

// Increment is the only way to change a view counter. It writes through to
// the source of record first; the mirror is updated only after the write
// succeeded. Counters of different sources are independent and never
// conflated.
func (v *Viewed) Increment(slug string, amount int, source t.ViewSource) error {
	if err := v.views.Increment(slug, amount, source); err != nil {
		return err
	}

	v.mu.Lock()
	v.byShout[slug] += amount
	if source == t.ViewSourceAckee {
		v.ackeeOf[slug] += amount
	}
	for _, topic := range v.topicsOf[slug] {
		v.byTopic[topic] += amount
	}
	v.mu.Unlock()

	stats.Inc("ViewsIncremented", amount)
	return nil
}

// rebuild recomputes the mirrors from the source of record. New maps are
// built aside and swapped in under the lock.
func (v *Viewed) rebuild() error {
	records, err := v.zine.ShoutRecords()
	if err != nil {
		return err
	}
	links, err := v.zine.ShoutTopicLinks()
	if err != nil {
		return err
	}

	byShout := make(map[string]int, len(records))
	ackeeOf := make(map[string]int, len(records))
	for i := range records {
		byShout[records[i].Slug] = records[i].TotalViews()
		ackeeOf[records[i].Slug] = records[i].Views(t.ViewSourceAckee)
	}

	topicsOf := make(map[string][]string)
	byTopic := make(map[string]int)
	for _, link := range links {
		topicsOf[link.Shout] = append(topicsOf[link.Shout], link.Topic)
		byTopic[link.Topic] += byShout[link.Shout]
	}

	v.mu.Lock()
	v.byShout = byShout
	v.byTopic = byTopic
	v.topicsOf = topicsOf
	v.ackeeOf = ackeeOf
	v.mu.Unlock()

	return nil
}

// feedLoop polls the external analytics feed. The feed is best-effort:
// after maxFeedFailures consecutive failures it is abandoned while the
// primary rebuild loop keeps running.
func (v *Viewed) feedLoop(period time.Duration) {
	failed := 0
	for {
		if err := v.applyFeed(); err != nil {
			failed++
			logs.Warning.Printf("cache.viewed: feed update failed #%d: %v", failed, err)
			if failed > maxFeedFailures {
				logs.Error.Println("cache.viewed: feed abandoned, not trying to update anymore")
				return
			}
		} else {
			failed = 0
		}

		wait := period
		if failed > 0 {
			wait = retryBackoff
		}
		select {
		case <-time.After(wait):
		case <-v.stop:
			return
		}
	}
}

// applyFeed fetches cumulative page view counts and writes the positive
// deltas through. Per-shout writes go through the pool: each delta is one
// SQL update and the feed reports thousands of pages.
func (v *Viewed) applyFeed() error {
	counts, err := v.feed.PageViews()
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for slug, count := range counts {
		delta := count - v.ackeeCount(slug)
		if delta <= 0 {
			continue
		}
		wg.Add(1)
		slug := slug // per-iteration copy: the go directive predates Go 1.22 loop semantics
		v.pool.Schedule(func() {
			defer wg.Done()
			if err := v.Increment(slug, delta, t.ViewSourceAckee); err != nil && err != t.ErrNotFound {
				logs.Warning.Printf("cache.viewed: feed write-through failed for %s: %v", slug, err)
			}
		})
	}
	wg.Wait()

	logs.Info.Printf("cache.viewed: %d pages collected", len(counts))
	return nil
}
