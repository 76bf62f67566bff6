package hub

import "sync"

// Writer is one subscriber of a room, usually a realtime socket.
type Writer interface {
	Write(message []byte) error
	Close() error
}

// Hub tracks which writers joined which rooms.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[Writer]struct{}
	members map[Writer]map[string]struct{}
}

func New() *Hub {
	return &Hub{
		rooms:   make(map[string]map[Writer]struct{}),
		members: make(map[Writer]map[string]struct{}),
	}
}

func (h *Hub) Join(room string, w Writer) {
	if room == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[Writer]struct{})
	}
	h.rooms[room][w] = struct{}{}
	if h.members[w] == nil {
		h.members[w] = make(map[string]struct{})
	}
	h.members[w][room] = struct{}{}
}

func (h *Hub) Leave(room string, w Writer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(room, w)
}

// LeaveAll removes w from every room it joined.
func (h *Hub) LeaveAll(w Writer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.members[w] {
		h.leave(room, w)
	}
}

func (h *Hub) leave(room string, w Writer) {
	if set := h.rooms[room]; set != nil {
		delete(set, w)
		if len(set) == 0 {
			delete(h.rooms, room)
		}
	}
	if joined := h.members[w]; joined != nil {
		delete(joined, room)
		if len(joined) == 0 {
			delete(h.members, w)
		}
	}
}

func (h *Hub) InRoom(room string, w Writer) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][w]
	return ok
}

func (h *Hub) Size(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast writes message to every member of room. Members whose write
// fails are closed and dropped from all rooms.
func (h *Hub) Broadcast(room string, message []byte) {
	h.mu.RLock()
	set := h.rooms[room]
	writers := make([]Writer, 0, len(set))
	for w := range set {
		writers = append(writers, w)
	}
	h.mu.RUnlock()

	var failed []Writer
	for _, w := range writers {
		if err := w.Write(message); err != nil {
			failed = append(failed, w)
		}
	}
	for _, w := range failed {
		_ = w.Close()
		h.LeaveAll(w)
	}
}
