// Package chat serves live activity comment rooms over websockets.
package chat

import (
	"encoding/json"
	"sync"
)

// Frame types exchanged on the channel.
const (
	FrameLoadComments   = "LoadComments"
	FrameReceiveComment = "ReceiveComment"
	FrameSendComment    = "SendComment"
	FrameError          = "Error"
)

// Frame is the JSON envelope for every websocket message.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`

	// commentID identifies ReceiveComment frames for snapshot de-duplication.
	commentID string
}

// NewFrame encodes payload into a frame of the given type.
func NewFrame(frameType string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: frameType, Payload: raw}, nil
}

// Subscriber is a live handle that can be joined to rooms.
type Subscriber interface {
	// Enqueue queues a frame without blocking. False means the subscriber
	// cannot keep up and must be dropped.
	Enqueue(Frame) bool
	// Prime delivers the join snapshot, then releases any live frames held
	// back since the join, skipping comments the snapshot already carries.
	Prime(snapshot Frame, seen map[string]struct{}) bool
}

type room struct {
	mu          sync.Mutex
	subscribers map[Subscriber]struct{}
}

// Hub tracks which subscribers are in which activity rooms. The hub lock
// guards membership; each room lock serialises broadcasts so every subscriber
// sees frames in broadcast order.
type Hub struct {
	mu          sync.Mutex
	rooms       map[string]*room
	memberships map[Subscriber]map[string]struct{}
	onDrop      func(Subscriber)
}

// NewHub constructs an empty hub. onDrop, if set, is called for subscribers
// removed because their queue was full.
func NewHub(onDrop func(Subscriber)) *Hub {
	return &Hub{
		rooms:       make(map[string]*room),
		memberships: make(map[Subscriber]map[string]struct{}),
		onDrop:      onDrop,
	}
}

// Join adds sub to the room for activityID, creating it on first use.
func (h *Hub) Join(activityID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[activityID]
	if !ok {
		r = &room{subscribers: make(map[Subscriber]struct{})}
		h.rooms[activityID] = r
		roomsGauge.Inc()
	}
	r.mu.Lock()
	r.subscribers[sub] = struct{}{}
	r.mu.Unlock()

	joined, ok := h.memberships[sub]
	if !ok {
		joined = make(map[string]struct{})
		h.memberships[sub] = joined
		subscribersGauge.Inc()
	}
	joined[activityID] = struct{}{}
}

// Leave removes sub from one room and reaps the room when it empties.
func (h *Hub) Leave(activityID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(activityID, sub)
}

// LeaveAll removes sub from every room it joined.
func (h *Hub) LeaveAll(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for activityID := range h.memberships[sub] {
		h.leaveLocked(activityID, sub)
	}
}

func (h *Hub) leaveLocked(activityID string, sub Subscriber) {
	if r, ok := h.rooms[activityID]; ok {
		r.mu.Lock()
		delete(r.subscribers, sub)
		empty := len(r.subscribers) == 0
		r.mu.Unlock()
		if empty {
			delete(h.rooms, activityID)
			roomsGauge.Dec()
		}
	}
	if joined, ok := h.memberships[sub]; ok {
		delete(joined, activityID)
		if len(joined) == 0 {
			delete(h.memberships, sub)
			subscribersGauge.Dec()
		}
	}
}

// Broadcast queues frame for every subscriber currently in the room and
// returns how many received it. Subscribers whose queue is full are dropped.
func (h *Hub) Broadcast(activityID string, frame Frame) int {
	h.mu.Lock()
	r, ok := h.rooms[activityID]
	h.mu.Unlock()
	if !ok {
		return 0
	}

	var slow []Subscriber
	delivered := 0
	r.mu.Lock()
	for sub := range r.subscribers {
		if sub.Enqueue(frame) {
			delivered++
			continue
		}
		slow = append(slow, sub)
	}
	r.mu.Unlock()

	framesDelivered.Add(float64(delivered))
	for _, sub := range slow {
		subscribersDropped.Inc()
		h.LeaveAll(sub)
		if h.onDrop != nil {
			h.onDrop(sub)
		}
	}
	return delivered
}

// RoomSize reports the subscriber count of a room.
func (h *Hub) RoomSize(activityID string) int {
	h.mu.Lock()
	r, ok := h.rooms[activityID]
	h.mu.Unlock()
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers)
}

// Rooms reports the number of live rooms.
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}
