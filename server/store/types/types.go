// Package types provides data types shared between the live core and the
// storage adapters.
package types

import (
	"time"
)

// StoreError satisfies Error interface but allows constant values for
// direct comparison.
type StoreError string

// Error is required by error interface.
func (s StoreError) Error() string {
	return string(s)
}

const (
	// ErrInternal means DB or other internal failure.
	ErrInternal = StoreError("internal")
	// ErrMalformed means the secret or payload cannot be parsed or otherwise wrong.
	ErrMalformed = StoreError("malformed")
	// ErrFailed means general failure.
	ErrFailed = StoreError("failed")
	// ErrDuplicate means the entry already exists.
	ErrDuplicate = StoreError("duplicate value")
	// ErrPermissionDenied means the caller is not the author, admin or member
	// the operation requires.
	ErrPermissionDenied = StoreError("denied")
	// ErrNotFound means the requested object was not found.
	ErrNotFound = StoreError("not found")
	// ErrInvariant means a hand-maintained index is inconsistent, e.g. a
	// message id collision or an orphaned unread entry.
	ErrInvariant = StoreError("invariant violation")
)

// ViewSource identifies an independently tracked view counter. Counters from
// different sources are never merged: the analytics feed and the counts
// migrated from the old platform live in separate columns.
type ViewSource string

const (
	// ViewSourceAckee is the live analytics feed.
	ViewSourceAckee = ViewSource("ackee")
	// ViewSourceLegacy holds counts migrated from the old platform.
	ViewSourceLegacy = ViewSource("old-discours")
)

// ShoutRecord is one published content item with its persisted counters,
// as read from the source of record in one rebuild scan.
type ShoutRecord struct {
	Slug        string
	Title       string
	CreatedAt   time.Time
	PublishedAt time.Time
	// Per-source view counters.
	ViewsAckee  int
	ViewsLegacy int
	Comments    int
	Reactions   int
	Rating      int
}

// Views returns the shout's view count of the given source.
func (s *ShoutRecord) Views(src ViewSource) int {
	if src == ViewSourceLegacy {
		return s.ViewsLegacy
	}
	return s.ViewsAckee
}

// TotalViews returns the sum of all per-source counters.
func (s *ShoutRecord) TotalViews() int {
	return s.ViewsAckee + s.ViewsLegacy
}

// ShoutTopicLink is one row of the shout-topic many-to-many table.
type ShoutTopicLink struct {
	Shout string
	Topic string
}

// ShoutAuthorLink is one row of the shout-author many-to-many table.
// Caption is the author's byline for that particular shout.
type ShoutAuthorLink struct {
	Shout   string
	Author  string
	Caption string
}

// TopicFollowerLink is one row of the topic-follower table.
type TopicFollowerLink struct {
	Topic    string
	Follower string
}

// Stat is the derived counters of one entity (topic, shout or author) as of
// the last cache rebuild. A zero Stat is a valid value for entities the
// rebuild has never seen.
type Stat struct {
	Shouts    int `json:"shouts"`
	Authors   int `json:"authors"`
	Followers int `json:"followers"`
	Viewed    int `json:"viewed"`
	Reacted   int `json:"reacted"`
	Rating    int `json:"rating"`
}

// Chat is a conversation document as stored in the key-value store.
// Timestamps are unix seconds.
type Chat struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	CreatedBy   string   `json:"createdBy"`
	Users       []string `json:"users"`
	Admins      []string `json:"admins,omitempty"`
	CreatedAt   int64    `json:"createdAt"`
	UpdatedAt   int64    `json:"updatedAt"`
}

// HasMember checks if the given user is in the chat's member list.
func (c *Chat) HasMember(user string) bool {
	for _, u := range c.Users {
		if u == user {
			return true
		}
	}
	return false
}

// HasAdmin checks if the given user is in the chat's admin set.
func (c *Chat) HasAdmin(user string) bool {
	for _, u := range c.Admins {
		if u == user {
			return true
		}
	}
	return false
}

// Message is one chat message. The id is scoped to the chat and allocated
// from a monotonic per-chat counter; ids are never reused.
type Message struct {
	ChatID    string `json:"chatId"`
	ID        int    `json:"id"`
	Author    string `json:"author"`
	Body      string `json:"body"`
	ReplyTo   *int   `json:"replyTo,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
}
