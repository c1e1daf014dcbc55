package activity

import "sync"

// subscriberBuffer is how many entries a slow subscriber may fall behind
// before new entries are dropped for it.
const subscriberBuffer = 16

// Hub fans out new entries to live subscribers of an owner's feed.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Entry]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Entry]struct{})}
}

// Subscribe returns a channel receiving the owner's new entries and a
// function that ends the subscription and closes the channel.
func (h *Hub) Subscribe(ownerID string) (<-chan Entry, func()) {
	ch := make(chan Entry, subscriberBuffer)

	h.mu.Lock()
	if h.subs[ownerID] == nil {
		h.subs[ownerID] = make(map[chan Entry]struct{})
	}
	h.subs[ownerID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[ownerID], ch)
			if len(h.subs[ownerID]) == 0 {
				delete(h.subs, ownerID)
			}
			close(ch)
		})
	}
}

// Publish delivers entry to the owner's subscribers without blocking.
// It returns the number of subscribers that missed the entry.
func (h *Hub) Publish(ownerID string, entry Entry) (dropped int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[ownerID] {
		select {
		case ch <- entry:
		default:
			dropped++
		}
	}
	return dropped
}

// Subscribers returns the number of live subscriptions for the owner.
func (h *Hub) Subscribers(ownerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[ownerID])
}
