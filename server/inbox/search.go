package inbox

import (
	"context"
	"sort"
	"strings"

	t "github.com/discoursio/core/server/store/types"
)

// How deep into each chat a search scans, counted from the most recent
// message.
const searchScanDepth = 100

// SearchQuery selects messages by author and/or body substring. Empty
// fields match everything; body matching is case-insensitive.
type SearchQuery struct {
	Author string
	Body   string
}

func (q SearchQuery) matches(msg *t.Message) bool {
	if q.Author != "" && msg.Author != q.Author {
		return false
	}
	if q.Body != "" && !strings.Contains(strings.ToLower(msg.Body), strings.ToLower(q.Body)) {
		return false
	}
	return true
}

// SearchMessages scans the recent messages of every chat the caller is a
// member of and returns the page [offset, offset+limit) of matches, newest
// first. Only the latest searchScanDepth messages of each chat are
// considered.
func (s *Store) SearchMessages(ctx context.Context, asUser string, q SearchQuery, limit, offset int) ([]t.Message, error) {
	cids, err := s.kv.SetMembers(ctx, keyChatsByUser(asUser))
	if err != nil {
		return nil, err
	}

	var matched []t.Message
	for _, cid := range cids {
		window, err := s.loadWindow(ctx, cid, searchScanDepth, 0)
		if err != nil {
			return nil, err
		}
		for i := range window {
			if q.matches(&window[i]) {
				matched = append(matched, window[i])
			}
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt > matched[j].CreatedAt
	})

	if offset < 0 || limit <= 0 || offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}
