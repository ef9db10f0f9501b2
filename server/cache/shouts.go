package cache

import (
	"sort"
	"sync/atomic"
	"time"

	t "github.com/discoursio/core/server/store/types"
)

// How far back "top of the month" reaches.
const monthWindow = 30 * 24 * time.Hour

// shoutsSnapshot holds the orderings computed once per rebuild. Read-side
// queries only slice them.
type shoutsSnapshot struct {
	topViewed       []t.ShoutRecord
	topMonth        []t.ShoutRecord
	topCommented    []t.ShoutRecord
	topOverall      []t.ShoutRecord
	recentPublished []t.ShoutRecord
	recentAll       []t.ShoutRecord
	recentReacted   []t.ShoutRecord
	recentCommented []t.ShoutRecord
}

// Shouts caches the "top N" and "recent" shout orderings. Sort order is
// computed once per rebuild; reads slice the precomputed lists with
// [offset, offset+limit).
type Shouts struct {
	zine ZineReader

	snap atomic.Pointer[shoutsSnapshot]
	stop chan struct{}
}

// NewShouts creates the shout orderings cache.
func NewShouts(zine ZineReader) *Shouts {
	sc := &Shouts{
		zine: zine,
		stop: make(chan struct{}),
	}
	sc.snap.Store(&shoutsSnapshot{})
	return sc
}

// Start launches the refresh loop.
func (sc *Shouts) Start(period time.Duration) {
	go refreshLoop("shouts", period, sc.stop, sc.rebuild)
}

// Stop terminates the refresh loop.
func (sc *Shouts) Stop() {
	close(sc.stop)
}

// TopViewed returns the [offset, offset+limit) window of shouts ordered by
// total views.
func (sc *Shouts) TopViewed(offset, limit int) []t.ShoutRecord {
	return slicePage(sc.snap.Load().topViewed, offset, limit)
}

// TopMonth returns shouts published in the last 30 days ordered by views.
func (sc *Shouts) TopMonth(offset, limit int) []t.ShoutRecord {
	return slicePage(sc.snap.Load().topMonth, offset, limit)
}

// TopCommented returns shouts ordered by comment count.
func (sc *Shouts) TopCommented(offset, limit int) []t.ShoutRecord {
	return slicePage(sc.snap.Load().topCommented, offset, limit)
}

// TopOverall returns shouts ordered by rating.
func (sc *Shouts) TopOverall(offset, limit int) []t.ShoutRecord {
	return slicePage(sc.snap.Load().topOverall, offset, limit)
}

// RecentPublished returns published shouts, newest first.
func (sc *Shouts) RecentPublished(offset, limit int) []t.ShoutRecord {
	return slicePage(sc.snap.Load().recentPublished, offset, limit)
}

// RecentAll returns all shouts by creation time, newest first.
func (sc *Shouts) RecentAll(offset, limit int) []t.ShoutRecord {
	return slicePage(sc.snap.Load().recentAll, offset, limit)
}

// RecentReacted returns published shouts that have at least one reaction,
// newest first.
func (sc *Shouts) RecentReacted(offset, limit int) []t.ShoutRecord {
	return slicePage(sc.snap.Load().recentReacted, offset, limit)
}

// RecentCommented returns published shouts that have at least one comment,
// newest first.
func (sc *Shouts) RecentCommented(offset, limit int) []t.ShoutRecord {
	return slicePage(sc.snap.Load().recentCommented, offset, limit)
}

// rebuild loads one scan of the shout table and computes every ordering.
func (sc *Shouts) rebuild() error {
	records, err := sc.zine.ShoutRecords()
	if err != nil {
		return err
	}

	snap := &shoutsSnapshot{
		topViewed:    sortedBy(records, func(a, b *t.ShoutRecord) bool { return a.TotalViews() > b.TotalViews() }),
		topCommented: sortedBy(records, func(a, b *t.ShoutRecord) bool { return a.Comments > b.Comments }),
		topOverall:   sortedBy(records, func(a, b *t.ShoutRecord) bool { return a.Rating > b.Rating }),
		recentAll:    sortedBy(records, func(a, b *t.ShoutRecord) bool { return a.CreatedAt.After(b.CreatedAt) }),
	}

	var published, monthly, reacted, commented []t.ShoutRecord
	cutoff := time.Now().Add(-monthWindow)
	for i := range records {
		if records[i].PublishedAt.IsZero() {
			continue
		}
		published = append(published, records[i])
		if records[i].PublishedAt.After(cutoff) {
			monthly = append(monthly, records[i])
		}
		if records[i].Reactions > 0 {
			reacted = append(reacted, records[i])
		}
		if records[i].Comments > 0 {
			commented = append(commented, records[i])
		}
	}
	sort.SliceStable(published, func(i, j int) bool {
		return published[i].PublishedAt.After(published[j].PublishedAt)
	})
	sort.SliceStable(monthly, func(i, j int) bool {
		return monthly[i].TotalViews() > monthly[j].TotalViews()
	})
	sortRecent := func(rs []t.ShoutRecord) {
		sort.SliceStable(rs, func(i, j int) bool {
			return rs[i].PublishedAt.After(rs[j].PublishedAt)
		})
	}
	sortRecent(reacted)
	sortRecent(commented)
	snap.recentPublished = published
	snap.topMonth = monthly
	snap.recentReacted = reacted
	snap.recentCommented = commented

	sc.snap.Store(snap)
	return nil
}

// sortedBy returns a sorted copy; the source order is kept intact for the
// other orderings.
func sortedBy(records []t.ShoutRecord, less func(a, b *t.ShoutRecord) bool) []t.ShoutRecord {
	out := make([]t.ShoutRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return less(&out[i], &out[j])
	})
	return out
}
