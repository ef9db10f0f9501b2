/******************************************************************************
 *
 *  Description :
 *
 *    Registry for routing newly created content events (reactions, chat
 *    messages) to the long-lived listeners interested in them.
 *
 *****************************************************************************/

// Package fanout decouples producers of content events from the listeners
// awaiting them, per topic key (article slug or chat id).
package fanout

import (
	"sync"

	"github.com/discoursio/core/server/logs"
	"github.com/discoursio/core/server/stats"
	t "github.com/discoursio/core/server/store/types"
)

// Action tells what happened to the event's payload.
type Action string

const (
	ActionCreated = Action("NEW")
	ActionUpdated = Action("UPDATED")
	ActionDeleted = Action("DELETED")
)

// Reaction is the payload of a reaction (comment) event.
type Reaction struct {
	ID     int    `json:"id"`
	Shout  string `json:"shout"`
	Author string `json:"author"`
	Body   string `json:"body,omitempty"`
	Kind   string `json:"kind"`
}

// Event is one published content event. It is a tagged union over the known
// producer kinds: exactly one of Reaction and Message is set.
type Event struct {
	Action   Action     `json:"action"`
	Reaction *Reaction  `json:"reaction,omitempty"`
	Message  *t.Message `json:"message,omitempty"`
}

// Size of a subscription's inbound queue. A listener this far behind starts
// losing events rather than stalling the publisher.
const subQueueSize = 32

// Subscription is one listener's registration under a topic key. The
// listener consumes Events until it is done, then must call Unsubscribe on
// every termination path; a leaked subscription keeps receiving events
// nobody reads.
type Subscription struct {
	// Topic key this subscription is registered under.
	Topic string
	// Inbound queue of delivered events, FIFO relative to publish order.
	Events chan Event
}

// Registry is the process-wide table of active subscriptions.
type Registry struct {
	// Guards subs. Register/unregister are O(1) and rare relative to
	// publish, one registry-wide lock is enough.
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

// NewRegistry creates an empty subscription registry.
func NewRegistry() *Registry {
	stats.RegisterInt("LiveSubscriptions")
	stats.RegisterInt("TotalSubscriptions")
	stats.RegisterInt("FanoutEventsTotal")
	stats.RegisterInt("FanoutEventsDropped")

	return &Registry{
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers a new listener under the topic key.
func (r *Registry) Subscribe(topic string) *Subscription {
	sub := &Subscription{
		Topic:  topic,
		Events: make(chan Event, subQueueSize),
	}

	r.mu.Lock()
	set := r.subs[topic]
	if set == nil {
		set = make(map[*Subscription]struct{})
		r.subs[topic] = set
	}
	set[sub] = struct{}{}
	r.mu.Unlock()

	stats.Inc("LiveSubscriptions", 1)
	stats.Inc("TotalSubscriptions", 1)
	return sub
}

// Unsubscribe removes the subscription from its topic's listener set.
// Safe to call more than once.
func (r *Registry) Unsubscribe(sub *Subscription) {
	r.mu.Lock()
	set := r.subs[sub.Topic]
	_, present := set[sub]
	if present {
		delete(set, sub)
		if len(set) == 0 {
			delete(r.subs, sub.Topic)
		}
	}
	r.mu.Unlock()

	if present {
		stats.Inc("LiveSubscriptions", -1)
	}
}

// Publish delivers the event to every listener currently registered under
// the topic key. Publishing never blocks: a listener with a full queue
// loses the event, everyone else still gets it. With no listeners the
// event is dropped; subscribers must register before expecting delivery,
// there is no replay.
func (r *Registry) Publish(topic string, ev Event) {
	r.mu.Lock()
	targets := make([]*Subscription, 0, len(r.subs[topic]))
	for sub := range r.subs[topic] {
		targets = append(targets, sub)
	}
	r.mu.Unlock()

	stats.Inc("FanoutEventsTotal", 1)

	for _, sub := range targets {
		select {
		case sub.Events <- ev:
		default:
			logs.Warning.Printf("fanout: queue full, event dropped for topic %s", topic)
			stats.Inc("FanoutEventsDropped", 1)
		}
	}
}

// SubCount reports the number of live subscriptions for the topic key.
func (r *Registry) SubCount(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[topic])
}
