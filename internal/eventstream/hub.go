// Package eventstream implements the per-tenant live-notification fan-out
// of spec §4.9's RecordsSubscribe and spec §5's event dispatch contract:
// bounded, drop-oldest subscriber queues with no transport dependency of
// its own. Generalized from the teacher's
// internal/stream.EventBroadcaster, which keyed one connection set per
// stream session; here the key is tenant, connections are never touched
// directly (a Hub subscriber is a plain Go channel plus a filter, not a
// *websocket.Conn), and delivery is best-effort per spec §5's "event
// dispatch happens after commit and is best-effort" rule.
package eventstream

import (
	"sync"

	"github.com/onnwee/dwnd/internal/dwnmodel"
	"github.com/onnwee/dwnd/internal/messagestore"
)

// DefaultQueueDepth is eventSubscriptionQueueDepth's default, spec §6.
const DefaultQueueDepth = 256

// Notification is published to every subscription matching a committed
// write. When Lagged > 0, this delivery also carries the count of prior
// notifications this subscription missed due to backpressure; every
// other field is then the event that finally made it through, same as
// any other delivery — Lagged is additive information, not a distinct
// notification type, so a subscriber never has to special-case an
// envelope with no record fields.
type Notification struct {
	Tenant     string
	MessageCID string
	RecordID   string
	Indexes    map[string]any
	Lagged     int
}

// Hub is the core, transport-free fan-out: Subscribe(tenant, filter)
// returns a receive-only channel and a cancel func, Publish delivers one
// committed write to every matching subscription. No websocket or other
// transport type appears in this file; internal/eventstream/ws.go adapts
// one concrete transport on top.
type Hub struct {
	mu         sync.RWMutex
	queueDepth int
	subs       map[string]map[*subscription]struct{} // tenant -> subscription set
}

// NewHub creates a Hub whose subscriber channels are buffered to
// queueDepth (DefaultQueueDepth if <= 0).
func NewHub(queueDepth int) *Hub {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	return &Hub{queueDepth: queueDepth, subs: make(map[string]map[*subscription]struct{})}
}

type subscription struct {
	ch      chan Notification
	filters []dwnmodel.FilterSet

	mu      sync.Mutex
	dropped int
}

// Subscribe installs a server-side filter for tenant and returns the
// channel notifications arrive on plus a cancel func that detaches the
// filter and closes the channel. Per spec §4.9, cancellation is the only
// way a subscription stops receiving.
func (h *Hub) Subscribe(tenant string, filters []dwnmodel.FilterSet) (<-chan Notification, func()) {
	sub := &subscription{
		ch:      make(chan Notification, h.queueDepth),
		filters: filters,
	}

	h.mu.Lock()
	if h.subs[tenant] == nil {
		h.subs[tenant] = make(map[*subscription]struct{})
	}
	h.subs[tenant][sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[tenant]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subs, tenant)
			}
		}
		close(sub.ch)
	}

	return sub.ch, cancel
}

// Publish delivers n to every subscription of tenant whose filter matches
// n.Indexes, per spec §4.9's "on every subsequent committed write
// matching the filter, publishes a notification". Called after commit;
// never blocks a writer on a slow subscriber.
func (h *Hub) Publish(tenant string, n Notification) {
	h.mu.RLock()
	subs := make([]*subscription, 0, len(h.subs[tenant]))
	for sub := range h.subs[tenant] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if !messagestore.MatchesFilters(n.Indexes, sub.filters) {
			continue
		}
		sub.deliver(n)
	}
}

// SubscriberCount reports how many live subscriptions a tenant has.
// Test/observability only.
func (h *Hub) SubscriberCount(tenant string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[tenant])
}

// deliver enqueues n, applying spec §5's drop-oldest backpressure policy:
// if the subscriber's queue is full, the oldest buffered notification is
// evicted to make room, and the drop count carries forward onto the next
// delivery that actually gets through (see Notification.Lagged).
func (s *subscription) deliver(n Notification) {
	s.mu.Lock()
	if s.dropped > 0 {
		n.Lagged = s.dropped
		s.dropped = 0
	}
	s.mu.Unlock()

	select {
	case s.ch <- n:
		return
	default:
	}

	select {
	case <-s.ch:
		n.Lagged++
	default:
	}

	select {
	case s.ch <- n:
	default:
		// Another publisher raced us and refilled the queue; count this
		// delivery as dropped too rather than block.
		s.mu.Lock()
		s.dropped += n.Lagged + 1
		s.mu.Unlock()
	}
}
