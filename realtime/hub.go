package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"geotrigger/core"
	"geotrigger/engine"
)

// Hub is a simple pub/sub for broadcasting domain events to channels.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]chan core.DomainEvent
	next int
}

func NewHub() *Hub { return &Hub{subs: map[int]chan core.DomainEvent{}} }

func (h *Hub) Subscribe(buffer int) (int, <-chan core.DomainEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	ch := make(chan core.DomainEvent, buffer)
	h.subs[id] = ch
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *Hub) Broadcast(_ context.Context, ev core.DomainEvent) {
	h.mu.RLock()
	// copy to avoid holding lock during send
	receivers := make([]chan core.DomainEvent, 0, len(h.subs))
	for _, ch := range h.subs {
		receivers = append(receivers, ch)
	}
	h.mu.RUnlock()
	for _, ch := range receivers {
		select {
		case ch <- ev:
		default: /* drop if full */
		}
	}
}

var streamedTypes = []core.DomainEventType{
	core.EventPointsAwarded,
	core.EventTierUpgraded,
	core.EventStampAwarded,
	core.EventPassportCompleted,
	core.EventRewardTriggered,
	core.EventRewardRedeemed,
	core.EventRewardExpired,
	core.EventAchievementEarned,
}

// Attach subscribes the hub to every engine event type and returns a
// detach func.
func (h *Hub) Attach(bus *engine.EventBus) func() {
	unsubs := make([]func(), 0, len(streamedTypes))
	for _, typ := range streamedTypes {
		unsubs = append(unsubs, bus.Subscribe(typ, h.Broadcast))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// MarshalJSON is a helper to convert events to JSON bytes for WebSocket/SSE.
func MarshalJSON(ev core.DomainEvent) []byte {
	b, _ := json.Marshal(ev)
	return b
}
