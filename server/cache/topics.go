package cache

import (
	"sync/atomic"
	"time"

	t "github.com/discoursio/core/server/store/types"
)

// topicSnapshot is one immutable rebuild result. Looked up by topic slug.
type topicSnapshot struct {
	shoutsByTopic    map[string][]string
	authorsByTopic   map[string]map[string]struct{}
	followersByTopic map[string][]string
	reactedByTopic   map[string]int
	ratingByTopic    map[string]int
}

// Topics caches topic membership and derived topic counters. Readers are
// lock-free: they load the current snapshot reference and index into it.
type Topics struct {
	zine   ZineReader
	viewed *Viewed

	snap atomic.Pointer[topicSnapshot]
	stop chan struct{}
}

// NewTopics creates the topic statistics cache. viewed may be nil; topic
// view counts are then reported as zero.
func NewTopics(zine ZineReader, viewed *Viewed) *Topics {
	tc := &Topics{
		zine:   zine,
		viewed: viewed,
		stop:   make(chan struct{}),
	}
	tc.snap.Store(&topicSnapshot{})
	return tc
}

// Start launches the refresh loop.
func (tc *Topics) Start(period time.Duration) {
	go refreshLoop("topics", period, tc.stop, tc.rebuild)
}

// Stop terminates the refresh loop.
func (tc *Topics) Stop() {
	close(tc.stop)
}

// GetStat returns the topic's derived counters as of the last rebuild.
// A topic the rebuild has never seen yields a zero-valued Stat, not an
// error: a topic with no shouts legitimately has all-zero counters.
func (tc *Topics) GetStat(topic string) t.Stat {
	snap := tc.snap.Load()

	stat := t.Stat{
		Shouts:    len(snap.shoutsByTopic[topic]),
		Authors:   len(snap.authorsByTopic[topic]),
		Followers: len(snap.followersByTopic[topic]),
		Reacted:   snap.reactedByTopic[topic],
		Rating:    snap.ratingByTopic[topic],
	}
	if tc.viewed != nil {
		stat.Viewed = tc.viewed.GetTopic(topic)
	}
	return stat
}

// GetShouts returns the slugs of the topic's shouts.
func (tc *Topics) GetShouts(topic string) []string {
	return tc.snap.Load().shoutsByTopic[topic]
}

// GetFollowers returns the followers of the topic.
func (tc *Topics) GetFollowers(topic string) []string {
	return tc.snap.Load().followersByTopic[topic]
}

// rebuild loads the full membership join and swaps the snapshot reference.
// The live snapshot is never mutated incrementally.
func (tc *Topics) rebuild() error {
	links, err := tc.zine.ShoutTopicLinks()
	if err != nil {
		return err
	}
	authors, err := tc.zine.ShoutAuthorLinks()
	if err != nil {
		return err
	}
	followers, err := tc.zine.TopicFollowers()
	if err != nil {
		return err
	}
	records, err := tc.zine.ShoutRecords()
	if err != nil {
		return err
	}

	authorsByShout := make(map[string][]string, len(authors))
	for _, link := range authors {
		authorsByShout[link.Shout] = append(authorsByShout[link.Shout], link.Author)
	}
	counters := make(map[string]*t.ShoutRecord, len(records))
	for i := range records {
		counters[records[i].Slug] = &records[i]
	}

	snap := &topicSnapshot{
		shoutsByTopic:    make(map[string][]string),
		authorsByTopic:   make(map[string]map[string]struct{}),
		followersByTopic: make(map[string][]string),
		reactedByTopic:   make(map[string]int),
		ratingByTopic:    make(map[string]int),
	}

	for _, link := range links {
		snap.shoutsByTopic[link.Topic] = append(snap.shoutsByTopic[link.Topic], link.Shout)

		set := snap.authorsByTopic[link.Topic]
		if set == nil {
			set = make(map[string]struct{})
			snap.authorsByTopic[link.Topic] = set
		}
		for _, author := range authorsByShout[link.Shout] {
			set[author] = struct{}{}
		}

		if sr := counters[link.Shout]; sr != nil {
			snap.reactedByTopic[link.Topic] += sr.Reactions
			snap.ratingByTopic[link.Topic] += sr.Rating
		}
	}

	for _, link := range followers {
		snap.followersByTopic[link.Topic] = append(snap.followersByTopic[link.Topic], link.Follower)
	}

	tc.snap.Store(snap)
	return nil
}
