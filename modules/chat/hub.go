package chat

import (
	"sort"
	"sync"
	"sync/atomic"

	domain "github.com/example/chat-relay/domain/chat"
	"github.com/google/uuid"
)

// Client is a live connection known to the hub.
// Its mutable fields are guarded by the owning Hub's mutex.
type Client struct {
	id       string
	username string
	room     string
	out      chan []byte
	closed   bool
}

// ID returns the connection identity.
func (c *Client) ID() string {
	return c.id
}

// Outbound returns the channel of encoded frames addressed to this client.
// It is closed when the client is unregistered.
func (c *Client) Outbound() <-chan []byte {
	return c.out
}

// Transition describes how a hub mutation moved a connection between rooms.
type Transition struct {
	ID       string
	Username string
	Left     string // room the connection left, "" if none
	Joined   string // room the connection joined, "" if none
}

// Noop reports whether the mutation changed no membership.
func (t Transition) Noop() bool {
	return t.Left == "" && t.Joined == ""
}

// Stats is a point-in-time view of hub counters.
type Stats struct {
	Clients   int
	Rooms     int
	Delivered uint64
	Skipped   uint64
}

// Hub owns the connection registry and the room directory.
//
// Every membership mutation, and every snapshot-and-enqueue performed for a
// broadcast, happens under mu. Enqueueing never blocks, so the critical
// section stays short and a connection removed from a room cannot receive
// frames enqueued after its removal.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]*Client            // clientID -> Client
	rooms      map[string]map[string]*Client // room -> clientID -> Client
	bufferSize int

	delivered atomic.Uint64
	skipped   atomic.Uint64
}

// NewHub creates a new Hub whose clients buffer up to bufferSize frames.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		bufferSize: bufferSize,
	}
}

// Register adds a new connection with no room and no display name.
func (h *Hub) Register() *Client {
	client := &Client{
		id:  uuid.New().String(),
		out: make(chan []byte, h.bufferSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.id] = client
	return client
}

// Unregister leaves the client's room, closes its outbound channel and
// forgets it. It reports false for an unknown or already removed client.
func (h *Hub) Unregister(clientID string) (Transition, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		return Transition{}, false
	}

	tr := Transition{ID: clientID, Username: client.username}
	if client.room != "" {
		tr.Left = client.room
		h.removeFromRoom(client)
	}
	delete(h.clients, clientID)
	client.closed = true
	close(client.out)
	return tr, true
}

// SetDisplayName stores the caller-supplied name verbatim.
func (h *Hub) SetDisplayName(clientID, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		return domain.ErrUnknownConnection
	}
	client.username = name
	return nil
}

// DisplayName returns the client's current display name.
func (h *Hub) DisplayName(clientID string) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[clientID]
	if !ok {
		return "", domain.ErrUnknownConnection
	}
	return client.username, nil
}

// Join moves a client to a room, leaving its previous room first.
// Joining the room the client already occupies is a no-op.
func (h *Hub) Join(clientID, room string) (Transition, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		return Transition{}, domain.ErrUnknownConnection
	}

	tr := Transition{ID: clientID, Username: client.username}
	if client.room == room {
		return tr, nil
	}

	// Leave old room if any
	if client.room != "" {
		tr.Left = client.room
		h.removeFromRoom(client)
	}

	// Join new room
	members := h.rooms[room]
	if members == nil {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[clientID] = client
	client.room = room
	tr.Joined = room
	return tr, nil
}

// Leave removes a client from its current room.
func (h *Hub) Leave(clientID string) (Transition, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		return Transition{}, domain.ErrUnknownConnection
	}
	if client.room == "" {
		return Transition{}, domain.ErrNotInRoom
	}

	tr := Transition{ID: clientID, Username: client.username, Left: client.room}
	h.removeFromRoom(client)
	return tr, nil
}

// removeFromRoom must be called with mu held for writing.
func (h *Hub) removeFromRoom(client *Client) {
	if members := h.rooms[client.room]; members != nil {
		delete(members, client.id)
		if len(members) == 0 {
			delete(h.rooms, client.room)
		}
	}
	client.room = ""
}

// RoomOf returns the room a client occupies.
func (h *Hub) RoomOf(clientID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[clientID]
	if !ok || client.room == "" {
		return "", false
	}
	return client.room, true
}

// MembersOf returns a snapshot of the room's members ordered by ID.
func (h *Hub) MembersOf(room string) []domain.Member {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := make([]domain.Member, 0, len(h.rooms[room]))
	for _, client := range h.rooms[room] {
		members = append(members, domain.Member{
			ID:       client.id,
			Username: client.username,
			Room:     client.room,
		})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members
}

// Rooms returns the names of all non-empty rooms, sorted.
func (h *Hub) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make([]string, 0, len(h.rooms))
	for room := range h.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// deliver enqueues frame for every member of room except exclude.
// Members whose buffer is full are skipped.
func (h *Hub) deliver(room string, frame []byte, exclude string) (delivered, skipped int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for clientID, client := range h.rooms[room] {
		if clientID == exclude {
			continue
		}
		if h.enqueue(client, frame) {
			delivered++
		} else {
			skipped++
		}
	}
	h.delivered.Add(uint64(delivered))
	h.skipped.Add(uint64(skipped))
	return delivered, skipped
}

// sendTo enqueues frame for a single client.
func (h *Hub) sendTo(clientID string, frame []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[clientID]
	if !ok {
		return domain.ErrUnknownConnection
	}
	if !h.enqueue(client, frame) {
		h.skipped.Add(1)
		return domain.ErrDeliveryFailure
	}
	h.delivered.Add(1)
	return nil
}

// enqueue must be called with mu held.
func (h *Hub) enqueue(client *Client, frame []byte) bool {
	if client.closed {
		return false
	}
	select {
	case client.out <- frame:
		return true
	default:
		return false
	}
}

// CloseAll disconnects every client and clears all rooms.
func (h *Hub) CloseAll() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	count := len(h.clients)
	for _, client := range h.clients {
		client.room = ""
		client.closed = true
		close(client.out)
	}
	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]map[string]*Client)
	return count
}

// Stats returns the current hub counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return Stats{
		Clients:   len(h.clients),
		Rooms:     len(h.rooms),
		Delivered: h.delivered.Load(),
		Skipped:   h.skipped.Load(),
	}
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomClientCount returns the number of clients in a room.
func (h *Hub) RoomClientCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
