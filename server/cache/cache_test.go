package cache

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	t "github.com/discoursio/core/server/store/types"
)

// fakeZine is an in-memory ZineReader test double.
type fakeZine struct {
	records   []t.ShoutRecord
	topics    []t.ShoutTopicLink
	authors   []t.ShoutAuthorLink
	followers []t.TopicFollowerLink
	err       error
}

func (f *fakeZine) ShoutRecords() ([]t.ShoutRecord, error) { return f.records, f.err }

func (f *fakeZine) ShoutTopicLinks() ([]t.ShoutTopicLink, error) { return f.topics, f.err }

func (f *fakeZine) ShoutAuthorLinks() ([]t.ShoutAuthorLink, error) { return f.authors, f.err }

func (f *fakeZine) TopicFollowers() ([]t.TopicFollowerLink, error) { return f.followers, f.err }

// fakeViews records Increment calls, keyed by slug and source.
type fakeViews struct {
	mu    sync.Mutex
	calls map[string]map[t.ViewSource]int
	err   error
}

func (f *fakeViews) Increment(slug string, amount int, source t.ViewSource) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]map[t.ViewSource]int)
	}
	if f.calls[slug] == nil {
		f.calls[slug] = make(map[t.ViewSource]int)
	}
	f.calls[slug][source] += amount
	return nil
}

type fakeFeed struct {
	counts map[string]int
	err    error
}

func (f *fakeFeed) PageViews() (map[string]int, error) { return f.counts, f.err }

func testRecords() []t.ShoutRecord {
	now := time.Now()
	return []t.ShoutRecord{
		{Slug: "alpha", CreatedAt: now.Add(-72 * time.Hour), PublishedAt: now.Add(-48 * time.Hour),
			ViewsAckee: 100, ViewsLegacy: 20, Comments: 3, Reactions: 5, Rating: 2},
		{Slug: "beta", CreatedAt: now.Add(-24 * time.Hour), PublishedAt: now.Add(-12 * time.Hour),
			ViewsAckee: 50, Comments: 9, Reactions: 2, Rating: 7},
		// Old and unpublished shouts stay out of the monthly and published lists.
		{Slug: "ancient", CreatedAt: now.Add(-100 * 24 * time.Hour), PublishedAt: now.Add(-90 * 24 * time.Hour),
			ViewsAckee: 500, Comments: 1, Reactions: 1, Rating: 1},
		{Slug: "draft", CreatedAt: now.Add(-1 * time.Hour),
			ViewsAckee: 1, Comments: 0, Reactions: 0, Rating: 0},
	}
}

func slugs(records []t.ShoutRecord) []string {
	out := make([]string, len(records))
	for i := range records {
		out[i] = records[i].Slug
	}
	return out
}

func TestViewedRebuildAndLookup(t_ *testing.T) {
	zine := &fakeZine{
		records: testRecords(),
		topics: []t.ShoutTopicLink{
			{Shout: "alpha", Topic: "society"},
			{Shout: "beta", Topic: "society"},
			{Shout: "beta", Topic: "art"},
		},
	}
	v := NewViewed(zine, &fakeViews{}, nil)
	if err := v.rebuild(); err != nil {
		t_.Fatal(err)
	}

	if got := v.GetShout("alpha"); got != 120 {
		t_.Errorf("GetShout(alpha) = %d, want 120", got)
	}
	if got := v.GetShout("nosuch"); got != 0 {
		t_.Errorf("GetShout(nosuch) = %d, want 0", got)
	}
	if got := v.GetTopic("society"); got != 170 {
		t_.Errorf("GetTopic(society) = %d, want 170", got)
	}
	if got := v.GetTopic("art"); got != 50 {
		t_.Errorf("GetTopic(art) = %d, want 50", got)
	}
}

func TestViewedIncrementWritesThroughFirst(t_ *testing.T) {
	zine := &fakeZine{
		records: testRecords(),
		topics:  []t.ShoutTopicLink{{Shout: "alpha", Topic: "society"}},
	}
	views := &fakeViews{}
	v := NewViewed(zine, views, nil)
	if err := v.rebuild(); err != nil {
		t_.Fatal(err)
	}

	if err := v.Increment("alpha", 5, t.ViewSourceAckee); err != nil {
		t_.Fatal(err)
	}
	if views.calls["alpha"][t.ViewSourceAckee] != 5 {
		t_.Errorf("write-through got %d, want 5", views.calls["alpha"][t.ViewSourceAckee])
	}
	if got := v.GetShout("alpha"); got != 125 {
		t_.Errorf("mirror = %d after increment, want 125", got)
	}
	// Topic counters follow the shout's topics.
	if got := v.GetTopic("society"); got != 125 {
		t_.Errorf("topic mirror = %d after increment, want 125", got)
	}

	// A failed write must leave the mirror untouched.
	views.err = errors.New("down")
	if err := v.Increment("alpha", 7, t.ViewSourceAckee); err == nil {
		t_.Fatal("increment succeeded with the store down")
	}
	if got := v.GetShout("alpha"); got != 125 {
		t_.Errorf("mirror = %d after failed increment, want 125", got)
	}
}

func TestViewedFeedAppliesDeltas(t_ *testing.T) {
	zine := &fakeZine{records: testRecords()}
	views := &fakeViews{}
	feed := &fakeFeed{counts: map[string]int{
		"alpha":  110, // ackee count grew by 10
		"beta":   40,  // behind the mirror, no write
		"nosuch": 3,   // unknown slug still gets written through
	}}
	v := NewViewed(zine, views, feed)
	if err := v.rebuild(); err != nil {
		t_.Fatal(err)
	}

	if err := v.applyFeed(); err != nil {
		t_.Fatal(err)
	}
	// Deltas are taken against the ackee counter only: alpha's legacy views
	// do not mask the feed's growth, and beta's feed count is behind its
	// ackee counter, so it produces no write.
	want := map[string]map[t.ViewSource]int{
		"alpha":  {t.ViewSourceAckee: 10},
		"nosuch": {t.ViewSourceAckee: 3},
	}
	if diff := cmp.Diff(want, views.calls); diff != "" {
		t_.Errorf("write-through calls mismatch (-want +got):\n%s", diff)
	}
}

func TestViewedPerSourceCounters(t_ *testing.T) {
	zine := &fakeZine{records: testRecords()}
	views := &fakeViews{}
	v := NewViewed(zine, views, nil)
	if err := v.rebuild(); err != nil {
		t_.Fatal(err)
	}

	if err := v.Increment("alpha", 1, t.ViewSourceAckee); err != nil {
		t_.Fatal(err)
	}
	if err := v.Increment("alpha", 1, t.ViewSourceLegacy); err != nil {
		t_.Fatal(err)
	}

	// Each source keeps its own counter in the source of record.
	want := map[string]map[t.ViewSource]int{
		"alpha": {t.ViewSourceAckee: 1, t.ViewSourceLegacy: 1},
	}
	if diff := cmp.Diff(want, views.calls); diff != "" {
		t_.Errorf("per-source write-throughs mismatch (-want +got):\n%s", diff)
	}
	// The total mirror reflects both increments.
	if got := v.GetShout("alpha"); got != 122 {
		t_.Errorf("GetShout(alpha) = %d, want 122", got)
	}
	// Only the ackee increment moves the feed baseline.
	if got := v.ackeeCount("alpha"); got != 101 {
		t_.Errorf("ackee counter = %d, want 101", got)
	}
}

func TestTopicsGetStat(t_ *testing.T) {
	zine := &fakeZine{
		records: testRecords(),
		topics: []t.ShoutTopicLink{
			{Shout: "alpha", Topic: "society"},
			{Shout: "beta", Topic: "society"},
		},
		authors: []t.ShoutAuthorLink{
			{Shout: "alpha", Author: "anna"},
			{Shout: "beta", Author: "anna"},
			{Shout: "beta", Author: "boris"},
		},
		followers: []t.TopicFollowerLink{
			{Topic: "society", Follower: "reader1"},
			{Topic: "society", Follower: "reader2"},
		},
	}
	v := NewViewed(zine, &fakeViews{}, nil)
	if err := v.rebuild(); err != nil {
		t_.Fatal(err)
	}
	tc := NewTopics(zine, v)
	if err := tc.rebuild(); err != nil {
		t_.Fatal(err)
	}

	got := tc.GetStat("society")
	want := t.Stat{Shouts: 2, Authors: 2, Followers: 2, Viewed: 170, Reacted: 7, Rating: 9}
	if diff := cmp.Diff(want, got); diff != "" {
		t_.Errorf("GetStat(society) mismatch (-want +got):\n%s", diff)
	}

	// Unknown topic: all-zero counters, not an error.
	if diff := cmp.Diff(t.Stat{}, tc.GetStat("nosuch")); diff != "" {
		t_.Errorf("GetStat(nosuch) mismatch (-want +got):\n%s", diff)
	}
}

func TestShoutsOrderings(t_ *testing.T) {
	zine := &fakeZine{records: testRecords()}
	sc := NewShouts(zine)
	if err := sc.rebuild(); err != nil {
		t_.Fatal(err)
	}

	if got := slugs(sc.TopViewed(0, 10)); got[0] != "ancient" {
		t_.Errorf("TopViewed starts with %v", got)
	}
	if got := slugs(sc.TopCommented(0, 1)); got[0] != "beta" {
		t_.Errorf("TopCommented starts with %v", got)
	}
	if got := slugs(sc.TopOverall(0, 1)); got[0] != "beta" {
		t_.Errorf("TopOverall starts with %v", got)
	}
	// Monthly window: only recent published shouts, by views.
	if diff := cmp.Diff([]string{"alpha", "beta"}, slugs(sc.TopMonth(0, 10))); diff != "" {
		t_.Errorf("TopMonth mismatch (-want +got):\n%s", diff)
	}
	// Drafts are absent from the published list.
	if diff := cmp.Diff([]string{"beta", "alpha", "ancient"}, slugs(sc.RecentPublished(0, 10))); diff != "" {
		t_.Errorf("RecentPublished mismatch (-want +got):\n%s", diff)
	}
	if got := slugs(sc.RecentAll(0, 1)); got[0] != "draft" {
		t_.Errorf("RecentAll starts with %v", got)
	}
	// All three published shouts have reactions and comments; draft has none.
	if diff := cmp.Diff([]string{"beta", "alpha", "ancient"}, slugs(sc.RecentReacted(0, 10))); diff != "" {
		t_.Errorf("RecentReacted mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"beta", "alpha", "ancient"}, slugs(sc.RecentCommented(0, 10))); diff != "" {
		t_.Errorf("RecentCommented mismatch (-want +got):\n%s", diff)
	}
}

func TestShoutsSlicing(t_ *testing.T) {
	zine := &fakeZine{records: testRecords()}
	sc := NewShouts(zine)
	if err := sc.rebuild(); err != nil {
		t_.Fatal(err)
	}

	all := sc.RecentAll(0, 100)
	if len(all) != 4 {
		t_.Fatalf("full window has %d records", len(all))
	}
	if page := sc.RecentAll(2, 2); len(page) != 2 {
		t_.Errorf("page [2,4) has %d records", len(page))
	}
	if page := sc.RecentAll(3, 10); len(page) != 1 {
		t_.Errorf("tail page has %d records", len(page))
	}
	if page := sc.RecentAll(10, 5); page != nil {
		t_.Errorf("out-of-range page = %v", page)
	}
	if page := sc.RecentAll(0, 0); page != nil {
		t_.Errorf("zero limit page = %v", page)
	}
}

func TestShoutsRebuildKeepsSnapshotOnError(t_ *testing.T) {
	zine := &fakeZine{records: testRecords()}
	sc := NewShouts(zine)
	if err := sc.rebuild(); err != nil {
		t_.Fatal(err)
	}

	zine.err = errors.New("db gone")
	if err := sc.rebuild(); err == nil {
		t_.Fatal("rebuild succeeded with the source down")
	}
	// Readers keep seeing the previous snapshot.
	if got := sc.RecentAll(0, 10); len(got) != 4 {
		t_.Errorf("snapshot lost after failed rebuild: %d records", len(got))
	}
}

func TestAuthorsCache(t_ *testing.T) {
	zine := &fakeZine{
		authors: []t.ShoutAuthorLink{
			{Shout: "alpha", Author: "anna", Caption: "words"},
			{Shout: "alpha", Author: "boris", Caption: "photo"},
		},
	}
	ac := NewAuthors(zine)
	if err := ac.rebuild(); err != nil {
		t_.Fatal(err)
	}

	authors := ac.GetAuthors("alpha")
	if len(authors) != 2 {
		t_.Errorf("GetAuthors(alpha) = %v", authors)
	}
	if caption, ok := ac.GetCaption("alpha", "boris"); !ok || caption != "photo" {
		t_.Errorf("GetCaption(alpha, boris) = %q, %v", caption, ok)
	}
	if _, ok := ac.GetCaption("alpha", "nosuch"); ok {
		t_.Error("caption reported for unknown author")
	}
	if authors := ac.GetAuthors("nosuch"); authors != nil {
		t_.Errorf("GetAuthors(nosuch) = %v", authors)
	}
}
