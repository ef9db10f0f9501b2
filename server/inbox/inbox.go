/******************************************************************************
 *
 *  Description :
 *
 *    Conversation store: chats and their hand-maintained secondary indices
 *    persisted directly in the key-value store.
 *
 *****************************************************************************/

// Package inbox persists chat and message state in the key-value store.
// The store has no cross-key transactions, so this is the one place where
// consistency is maintained by the application: every multi-key mutation of
// a chat runs under that chat's lock, and the access patterns below are
// what keeps the indices mutually consistent.
//
// Keys:
//
//	chats/{id}                  chat document (JSON)
//	chats/{id}/next_message_id  message id counter
//	chats/{id}/messages/{mid}   message document (JSON)
//	chats/{id}/message_ids      ordered id list, most recent first
//	chats/{id}/unread/{user}    per-member unread id list
//	chats_by_user/{user}        set of chat ids the user is in
package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/discoursio/core/server/concurrency"
	"github.com/discoursio/core/server/fanout"
	"github.com/discoursio/core/server/kv"
	"github.com/discoursio/core/server/logs"
	"github.com/discoursio/core/server/stats"
	"github.com/discoursio/core/server/store"
	t "github.com/discoursio/core/server/store/types"
)

func keyChat(id string) string { return "chats/" + id }

func keyNextID(id string) string { return "chats/" + id + "/next_message_id" }

func keyMessage(id string, mid int) string {
	return fmt.Sprintf("chats/%s/messages/%d", id, mid)
}

func keyMessageIDs(id string) string { return "chats/" + id + "/message_ids" }

func keyUnread(id, user string) string { return "chats/" + id + "/unread/" + user }

func keyChatsByUser(user string) string { return "chats_by_user/" + user }

// Number of preview messages attached to each chat in a listing.
const chatPreviewSize = 5

// Store is the conversation store. One instance per process; constructed
// explicitly and injected into consumers.
type Store struct {
	kv     kv.Adapter
	events *fanout.Registry
	// One lock per chat id serializes multi-key mutations.
	locks *concurrency.KeyLock
	// Chat id generator, replaceable in tests.
	newChatID func() string
}

// NewStore creates a conversation store on top of the opened key-value
// adapter. events may be nil; mutations are then not published.
func NewStore(kvAdapter kv.Adapter, events *fanout.Registry) *Store {
	stats.RegisterInt("ChatsCreated")
	stats.RegisterInt("MessagesCreated")

	return &Store{
		kv:        kvAdapter,
		events:    events,
		locks:     concurrency.NewKeyLock(),
		newChatID: store.GetUidString,
	}
}

// ChatUpdate is the set of chat attributes an admin may change. Nil fields
// are left untouched.
type ChatUpdate struct {
	Title       *string
	Description *string
	Users       []string
	Admins      []string
}

// ChatListing is one entry of LoadChats: the chat document with a preview
// of its latest messages and the caller's unread count.
type ChatListing struct {
	t.Chat
	Messages []t.Message `json:"messages"`
	Unread   int         `json:"unread"`
}

func (s *Store) getChat(ctx context.Context, id string) (*t.Chat, error) {
	raw, err := s.kv.Get(ctx, keyChat(id))
	if err != nil {
		return nil, err
	}

	var chat t.Chat
	if err = json.Unmarshal([]byte(raw), &chat); err != nil {
		logs.Error.Printf("inbox: malformed chat document %s: %v", id, err)
		return nil, t.ErrMalformed
	}
	return &chat, nil
}

func (s *Store) putChat(ctx context.Context, chat *t.Chat) error {
	raw, err := json.Marshal(chat)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, keyChat(chat.ID), string(raw))
}

// CreateChat creates a new chat with the given members; the creator is
// always a member and the initial admin. An untitled two-member chat is
// reused when one already exists: the existing chat is returned together
// with types.ErrDuplicate.
func (s *Store) CreateChat(ctx context.Context, asUser, title string, members []string) (*t.Chat, error) {
	hasCreator := false
	for _, m := range members {
		if m == asUser {
			hasCreator = true
			break
		}
	}
	if !hasCreator {
		members = append(members, asUser)
	}

	if len(members) == 2 && title == "" {
		if existing, err := s.findDialog(ctx, members[0], members[1]); err != nil {
			return nil, err
		} else if existing != nil {
			return existing, t.ErrDuplicate
		}
	}

	now := time.Now().Unix()
	chat := &t.Chat{
		ID:        s.newChatID(),
		Title:     title,
		CreatedBy: asUser,
		Users:     members,
		Admins:    []string{asUser},
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Member index first, document second: a chat reachable through the
	// index but missing its document reads as not-found and is repairable,
	// the reverse is an orphan nobody can see.
	for _, m := range members {
		if err := s.kv.SetAdd(ctx, keyChatsByUser(m), chat.ID); err != nil {
			return nil, err
		}
	}
	if err := s.putChat(ctx, chat); err != nil {
		return nil, err
	}

	stats.Inc("ChatsCreated", 1)
	return chat, nil
}

// findDialog looks for an existing untitled chat with exactly the two
// given members.
func (s *Store) findDialog(ctx context.Context, user1, user2 string) (*t.Chat, error) {
	cids1, err := s.kv.SetMembers(ctx, keyChatsByUser(user1))
	if err != nil {
		return nil, err
	}
	cids2, err := s.kv.SetMembers(ctx, keyChatsByUser(user2))
	if err != nil {
		return nil, err
	}

	shared := make(map[string]bool, len(cids2))
	for _, cid := range cids2 {
		shared[cid] = true
	}

	for _, cid := range cids1 {
		if !shared[cid] {
			continue
		}
		chat, err := s.getChat(ctx, cid)
		if err == t.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if chat.Title == "" && len(chat.Users) == 2 {
			return chat, nil
		}
	}
	return nil, nil
}

// UpdateChat changes chat metadata and membership. Restricted to admins.
func (s *Store) UpdateChat(ctx context.Context, asUser, chatID string, upd ChatUpdate) (*t.Chat, error) {
	s.locks.Lock(chatID)
	defer s.locks.Unlock(chatID)

	chat, err := s.getChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasAdmin(asUser) {
		return nil, t.ErrPermissionDenied
	}

	if upd.Title != nil {
		chat.Title = *upd.Title
	}
	if upd.Description != nil {
		chat.Description = *upd.Description
	}
	if upd.Admins != nil {
		chat.Admins = upd.Admins
	}
	if upd.Users != nil {
		// Keep both sides of the membership index consistent.
		before := make(map[string]bool, len(chat.Users))
		for _, m := range chat.Users {
			before[m] = true
		}
		for _, m := range upd.Users {
			if before[m] {
				delete(before, m)
				continue
			}
			if err = s.kv.SetAdd(ctx, keyChatsByUser(m), chatID); err != nil {
				return nil, err
			}
		}
		for m := range before {
			if err = s.kv.SetRemove(ctx, keyChatsByUser(m), chatID); err != nil {
				return nil, err
			}
		}
		chat.Users = upd.Users
	}
	chat.UpdatedAt = time.Now().Unix()

	if err = s.putChat(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

// AddMember adds a user to the chat. Any member may grow the membership.
func (s *Store) AddMember(ctx context.Context, asUser, chatID, user string) (*t.Chat, error) {
	s.locks.Lock(chatID)
	defer s.locks.Unlock(chatID)

	chat, err := s.getChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasMember(asUser) {
		return nil, t.ErrPermissionDenied
	}
	if chat.HasMember(user) {
		return chat, nil
	}

	chat.Users = append(chat.Users, user)
	chat.UpdatedAt = time.Now().Unix()

	if err = s.kv.SetAdd(ctx, keyChatsByUser(user), chatID); err != nil {
		return nil, err
	}
	if err = s.putChat(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

// DeleteChat removes the chat, its messages and all of its indices.
// Restricted to admins; a chat with no admins cannot be deleted.
func (s *Store) DeleteChat(ctx context.Context, asUser, chatID string) error {
	s.locks.Lock(chatID)
	err := s.deleteChat(ctx, asUser, chatID)
	s.locks.Unlock(chatID)
	if err == nil {
		// The chat is gone and its id is never reused, so a racing
		// mutation re-minting the lock can only fail with NotFound.
		s.locks.Forget(chatID)
	}
	return err
}

func (s *Store) deleteChat(ctx context.Context, asUser, chatID string) error {
	chat, err := s.getChat(ctx, chatID)
	if err != nil {
		return err
	}
	if len(chat.Admins) == 0 || !chat.HasAdmin(asUser) {
		return t.ErrPermissionDenied
	}

	mids, err := s.kv.ListRange(ctx, keyMessageIDs(chatID), 0, -1)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(mids)+len(chat.Users)+3)
	for _, mid := range mids {
		keys = append(keys, "chats/"+chatID+"/messages/"+mid)
	}
	for _, m := range chat.Users {
		keys = append(keys, keyUnread(chatID, m))
	}
	keys = append(keys, keyMessageIDs(chatID), keyNextID(chatID), keyChat(chatID))
	if err = s.kv.Del(ctx, keys...); err != nil {
		return err
	}

	for _, m := range chat.Users {
		if err = s.kv.SetRemove(ctx, keyChatsByUser(m), chatID); err != nil {
			return err
		}
	}
	return nil
}

// LoadChats returns the caller's chats ordered by last activity, each with
// a preview of its latest messages and the caller's unread count.
func (s *Store) LoadChats(ctx context.Context, asUser string, limit, offset int) ([]ChatListing, error) {
	cids, err := s.kv.SetMembers(ctx, keyChatsByUser(asUser))
	if err != nil {
		return nil, err
	}

	chats := make([]*t.Chat, 0, len(cids))
	for _, cid := range cids {
		chat, err := s.getChat(ctx, cid)
		if err == t.ErrNotFound {
			// Index entry without a document: tolerated, the chat is mid-create
			// or mid-delete.
			continue
		}
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}

	// Most recently active first.
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].UpdatedAt > chats[j].UpdatedAt
	})

	if offset < 0 || limit <= 0 || offset >= len(chats) {
		return nil, nil
	}
	end := offset + limit
	if end > len(chats) {
		end = len(chats)
	}

	listings := make([]ChatListing, 0, end-offset)
	for _, chat := range chats[offset:end] {
		preview, err := s.loadWindow(ctx, chat.ID, chatPreviewSize, 0)
		if err != nil {
			return nil, err
		}
		unread, err := s.kv.ListLen(ctx, keyUnread(chat.ID, asUser))
		if err != nil {
			return nil, err
		}
		listings = append(listings, ChatListing{
			Chat:     *chat,
			Messages: preview,
			Unread:   int(unread),
		})
	}
	return listings, nil
}
