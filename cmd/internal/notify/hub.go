package notify

import (
	"log/slog"
	"sync"
	"time"

	"binhacken/cmd/internal/metrics"
)

// Hub indexes connected clients by identity key.
type Hub struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu    sync.RWMutex
	byKey map[string]map[*Client]struct{}
}

// NewHub returns an empty Hub. m may be nil.
func NewHub(log *slog.Logger, m *metrics.Metrics) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		metrics: m,
		now:     time.Now,
		byKey:   make(map[string]map[*Client]struct{}),
	}
}

// Register adds c under its identity key.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set := h.byKey[c.key]
	if set == nil {
		set = make(map[*Client]struct{})
		h.byKey[c.key] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	h.metrics.NotifyClients(1)
}

// Unregister removes c and signals it to stop.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	removed := false
	if set := h.byKey[c.key]; set != nil {
		if _, ok := set[c]; ok {
			delete(set, c)
			removed = true
		}
		if len(set) == 0 {
			delete(h.byKey, c.key)
		}
	}
	h.mu.Unlock()

	// Close after removal so no publisher holds c while it tears down.
	c.Close()
	if removed {
		h.metrics.NotifyClients(-1)
	}
}

// Count returns the number of sockets for identityKey.
func (h *Hub) Count(identityKey string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byKey[identityKey])
}

// Publish fans ev out to identityKey's sockets and returns how many accepted it.
// Full queues drop the event.
func (h *Hub) Publish(identityKey string, ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for c := range h.byKey[identityKey] {
		if ev.sid != "" && c.SID != ev.sid {
			continue
		}
		if c.offer(ev) {
			n++
			continue
		}
		h.metrics.NotifyDropped()
		h.log.Info("notify.drop", "client_id", c.ID, "type", ev.Type)
	}
	return n
}

// SessionRevoked tells the sockets of one session (or every session of the
// identity when sid is empty) that they are no longer authenticated.
func (h *Hub) SessionRevoked(identityKey, sid, reason string) {
	typ := TypeRevoked
	if reason == ReasonTheft {
		typ = TypeTheft
	}
	ev := NewEvent(typ, h.now())
	ev.Reason = reason
	ev.sid = sid
	n := h.Publish(identityKey, ev)
	h.log.Debug("notify.session.revoked", "reason", reason, "delivered", n)
}

// IdentityRenamed moves sockets from oldKey to newKey and announces the new name.
// With an unchanged key (id mode) it only announces.
func (h *Hub) IdentityRenamed(oldKey, newKey, name string) {
	if oldKey != newKey {
		h.rekey(oldKey, newKey)
	}
	ev := NewEvent(TypeRenamed, h.now())
	ev.Name = name
	h.Publish(newKey, ev)
}

func (h *Hub) rekey(oldKey, newKey string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	moved := h.byKey[oldKey]
	if len(moved) == 0 {
		return
	}
	delete(h.byKey, oldKey)
	dst := h.byKey[newKey]
	if dst == nil {
		dst = make(map[*Client]struct{}, len(moved))
		h.byKey[newKey] = dst
	}
	for c := range moved {
		c.key = newKey
		dst[c] = struct{}{}
	}
}
