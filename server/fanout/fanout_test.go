package fanout

import (
	"testing"

	t "github.com/discoursio/core/server/store/types"
)

func TestPublishDelivery(t_ *testing.T) {
	r := NewRegistry()

	sub1 := r.Subscribe("shout-a")
	sub2 := r.Subscribe("shout-a")
	other := r.Subscribe("shout-b")

	ev := Event{
		Action:   ActionCreated,
		Reaction: &Reaction{ID: 7, Shout: "shout-a", Author: "alice", Kind: "COMMENT"},
	}
	r.Publish("shout-a", ev)

	for i, sub := range []*Subscription{sub1, sub2} {
		select {
		case got := <-sub.Events:
			if got.Action != ActionCreated || got.Reaction == nil || got.Reaction.ID != 7 {
				t_.Errorf("subscriber %d got %+v", i, got)
			}
		default:
			t_.Errorf("subscriber %d got nothing", i)
		}
	}

	select {
	case got := <-other.Events:
		t_.Errorf("subscriber of another topic got %+v", got)
	default:
	}
}

func TestPublishOrder(t_ *testing.T) {
	r := NewRegistry()
	sub := r.Subscribe("chat1")

	for i := 1; i <= 3; i++ {
		r.Publish("chat1", Event{
			Action:  ActionCreated,
			Message: &t.Message{ChatID: "chat1", ID: i},
		})
	}

	for i := 1; i <= 3; i++ {
		ev := <-sub.Events
		if ev.Message.ID != i {
			t_.Errorf("event %d carries message id %d", i, ev.Message.ID)
		}
	}
}

func TestUnsubscribe(t_ *testing.T) {
	r := NewRegistry()
	sub := r.Subscribe("chat1")

	if n := r.SubCount("chat1"); n != 1 {
		t_.Fatalf("SubCount = %d, want 1", n)
	}
	r.Unsubscribe(sub)
	if n := r.SubCount("chat1"); n != 0 {
		t_.Fatalf("SubCount after unsubscribe = %d, want 0", n)
	}

	r.Publish("chat1", Event{Action: ActionDeleted})
	select {
	case ev := <-sub.Events:
		t_.Errorf("unsubscribed channel got %+v", ev)
	default:
	}

	// Unsubscribing again is a no-op.
	r.Unsubscribe(sub)
}

func TestPublishNeverBlocks(t_ *testing.T) {
	r := NewRegistry()
	slow := r.Subscribe("busy")

	// Overflow the subscriber's queue; extra events are dropped, the
	// publisher does not stall.
	for i := 0; i < cap(slow.Events)+10; i++ {
		r.Publish("busy", Event{Action: ActionCreated, Message: &t.Message{ChatID: "busy", ID: i}})
	}

	if got := len(slow.Events); got != cap(slow.Events) {
		t_.Errorf("queue holds %d events, want full at %d", got, cap(slow.Events))
	}
	// The retained events are the oldest ones.
	first := <-slow.Events
	if first.Message.ID != 0 {
		t_.Errorf("first retained event has id %d, want 0", first.Message.ID)
	}
}
