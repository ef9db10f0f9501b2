package inbox

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/discoursio/core/server/fanout"
	"github.com/discoursio/core/server/logs"
	"github.com/discoursio/core/server/stats"
	t "github.com/discoursio/core/server/store/types"
)

func (s *Store) getMessage(ctx context.Context, chatID string, mid int) (*t.Message, error) {
	raw, err := s.kv.Get(ctx, keyMessage(chatID, mid))
	if err != nil {
		return nil, err
	}

	var msg t.Message
	if err = json.Unmarshal([]byte(raw), &msg); err != nil {
		logs.Error.Printf("inbox: malformed message %s/%d: %v", chatID, mid, err)
		return nil, t.ErrMalformed
	}
	return &msg, nil
}

func (s *Store) putMessage(ctx context.Context, msg *t.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, keyMessage(msg.ChatID, msg.ID), string(raw))
}

func (s *Store) publish(topic string, ev fanout.Event) {
	if s.events != nil {
		s.events.Publish(topic, ev)
	}
}

// CreateMessage appends a message to the chat. The message id is reserved
// with an atomic counter increment before any write, so concurrent senders
// never share an id; a crash between reservation and commit leaves a gap
// in the sequence, never a collision.
func (s *Store) CreateMessage(ctx context.Context, asUser, chatID, body string, replyTo *int) (*t.Message, error) {
	s.locks.Lock(chatID)
	defer s.locks.Unlock(chatID)

	chat, err := s.getChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasMember(asUser) {
		return nil, t.ErrPermissionDenied
	}

	next, err := s.kv.IncrBy(ctx, keyNextID(chatID), 1)
	if err != nil {
		return nil, err
	}
	mid := int(next)
	if _, err = s.kv.Get(ctx, keyMessage(chatID, mid)); err != t.ErrNotFound {
		if err == nil {
			logs.Error.Printf("inbox: message id %d already taken in chat %s", mid, chatID)
			return nil, t.ErrInvariant
		}
		return nil, err
	}

	now := time.Now().Unix()
	msg := &t.Message{
		ChatID:    chatID,
		ID:        mid,
		Author:    asUser,
		Body:      body,
		ReplyTo:   replyTo,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err = s.putMessage(ctx, msg); err != nil {
		return nil, err
	}
	if err = s.kv.ListPush(ctx, keyMessageIDs(chatID), strconv.Itoa(mid)); err != nil {
		return nil, err
	}

	// Everyone but the sender gets the message as unread.
	for _, m := range chat.Users {
		if m == asUser {
			continue
		}
		if err = s.kv.ListPush(ctx, keyUnread(chatID, m), strconv.Itoa(mid)); err != nil {
			return nil, err
		}
	}

	chat.UpdatedAt = now
	if err = s.putChat(ctx, chat); err != nil {
		return nil, err
	}

	stats.Inc("MessagesCreated", 1)
	s.publish(chatID, fanout.Event{Action: fanout.ActionCreated, Message: msg})
	return msg, nil
}

// UpdateMessage replaces the message body. Only the author may edit.
func (s *Store) UpdateMessage(ctx context.Context, asUser, chatID string, mid int, body string) (*t.Message, error) {
	s.locks.Lock(chatID)
	defer s.locks.Unlock(chatID)

	if _, err := s.getChat(ctx, chatID); err != nil {
		return nil, err
	}
	msg, err := s.getMessage(ctx, chatID, mid)
	if err != nil {
		return nil, err
	}
	if msg.Author != asUser {
		return nil, t.ErrPermissionDenied
	}

	msg.Body = body
	msg.UpdatedAt = time.Now().Unix()
	if err = s.putMessage(ctx, msg); err != nil {
		return nil, err
	}

	s.publish(chatID, fanout.Event{Action: fanout.ActionUpdated, Message: msg})
	return msg, nil
}

// DeleteMessage removes a message from the chat, its id list, and every
// member's unread list. Only the author may delete.
func (s *Store) DeleteMessage(ctx context.Context, asUser, chatID string, mid int) error {
	s.locks.Lock(chatID)
	defer s.locks.Unlock(chatID)

	chat, err := s.getChat(ctx, chatID)
	if err != nil {
		return err
	}
	msg, err := s.getMessage(ctx, chatID, mid)
	if err != nil {
		return err
	}
	if msg.Author != asUser {
		return t.ErrPermissionDenied
	}

	id := strconv.Itoa(mid)
	if err = s.kv.Del(ctx, keyMessage(chatID, mid)); err != nil {
		return err
	}
	if err = s.kv.ListRemove(ctx, keyMessageIDs(chatID), id); err != nil {
		return err
	}
	for _, m := range chat.Users {
		if err = s.kv.ListRemove(ctx, keyUnread(chatID, m), id); err != nil {
			return err
		}
	}

	s.publish(chatID, fanout.Event{Action: fanout.ActionDeleted, Message: msg})
	return nil
}

// MarkRead drops the given message ids from the caller's unread list.
// Unknown ids are ignored.
func (s *Store) MarkRead(ctx context.Context, asUser, chatID string, mids []int) error {
	chat, err := s.getChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.HasMember(asUser) {
		return t.ErrPermissionDenied
	}

	for _, mid := range mids {
		if err = s.kv.ListRemove(ctx, keyUnread(chatID, asUser), strconv.Itoa(mid)); err != nil {
			return err
		}
	}
	return nil
}

// UnreadCount returns the number of unread messages the user has in the chat.
func (s *Store) UnreadCount(ctx context.Context, chatID, user string) (int, error) {
	n, err := s.kv.ListLen(ctx, keyUnread(chatID, user))
	return int(n), err
}

// LoadMessages returns a window of the chat's messages, most recent first.
// Restricted to members.
func (s *Store) LoadMessages(ctx context.Context, asUser, chatID string, limit, offset int) ([]t.Message, error) {
	chat, err := s.getChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasMember(asUser) {
		return nil, t.ErrPermissionDenied
	}
	return s.loadWindow(ctx, chatID, limit, offset)
}

// loadWindow fetches messages [offset, offset+limit) of the chat's id list
// in one batched read. Ids whose documents are missing or unparsable are
// skipped, not errors: the list and the documents are only eventually
// consistent with each other.
func (s *Store) loadWindow(ctx context.Context, chatID string, limit, offset int) ([]t.Message, error) {
	if limit <= 0 || offset < 0 {
		return nil, nil
	}
	mids, err := s.kv.ListRange(ctx, keyMessageIDs(chatID), int64(offset), int64(offset+limit-1))
	if err != nil {
		return nil, err
	}
	if len(mids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(mids))
	for i, mid := range mids {
		keys[i] = "chats/" + chatID + "/messages/" + mid
	}
	raws, err := s.kv.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}

	messages := make([]t.Message, 0, len(raws))
	for i, raw := range raws {
		if raw == "" {
			continue
		}
		var msg t.Message
		if err = json.Unmarshal([]byte(raw), &msg); err != nil {
			logs.Warning.Printf("inbox: skipping malformed message %s: %v", keys[i], err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
