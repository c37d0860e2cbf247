package hub

import (
	"encoding/json"
	"sync"

	"livepaste/metrics"
	"livepaste/svc/util"
)

// Sender is one live connection's outbound half. The hub holds a
// non-owning reference: it never closes the transport, it only drops
// members whose sends fail.
type Sender interface {
	SendText(payload []byte) error
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
type countMessage struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// TextMsg encodes an init or update message for the wire.
func TextMsg(typ, text string) []byte {
	b, _ := json.Marshal(textMessage{Type: typ, Text: text})
	return b
}

func countMsg(n int) []byte {
	b, _ := json.Marshal(countMessage{Type: "userCount", Count: n})
	return b
}

// Hub maps paste ids to their live connections and fans messages out
// to them. Broadcast snapshots the member set under the lock and
// sends outside it, so slow receivers never block registration.
type Hub struct {
	mu    sync.Mutex
	conns map[string]map[Sender]struct{}
}

func New() *Hub {
	return &Hub{conns: make(map[string]map[Sender]struct{})}
}

func (h *Hub) Register(id string, s Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[id]
	if !ok {
		set = make(map[Sender]struct{})
		h.conns[id] = set
	}
	set[s] = struct{}{}
	metrics.WSConnections.Inc()
}

// Deregister is idempotent; concurrent broadcast cleanup may race
// with an explicit disconnect on the same member.
func (h *Hub) Deregister(id string, s Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[id]
	if !ok {
		return
	}
	if _, member := set[s]; !member {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.conns, id)
	}
	metrics.WSConnections.Dec()
}

func (h *Hub) Count(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[id])
}

// Broadcast delivers payload to every member for id except exclude.
// A failed send drops that member; delivery to the rest continues.
func (h *Hub) Broadcast(id string, payload []byte, exclude Sender) {
	for _, s := range h.snapshot(id) {
		if s == exclude {
			continue
		}
		if err := s.SendText(payload); err != nil {
			metrics.BroadcastFailures.Inc()
			util.Debug().Str("id", id).Err(err).Msg("dropping dead connection")
			h.Deregister(id, s)
		}
	}
}

// BroadcastUserCount announces the current member count for id to
// every member, after each registration and deregistration.
func (h *Hub) BroadcastUserCount(id string) {
	h.Broadcast(id, countMsg(h.Count(id)), nil)
}

func (h *Hub) snapshot(id string) []Sender {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.conns[id]
	members := make([]Sender, 0, len(set))
	for s := range set {
		members = append(members, s)
	}
	return members
}
