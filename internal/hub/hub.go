package hub

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/weiawesome/wes-io-live/chat-relay/internal/config"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-relay/pkg/log"
)

// Hub tracks live clients and room membership and fans frames out to them.
// Membership changes are synchronous; deliveries go through the run loop in
// the order they were submitted.
type Hub struct {
	clients  map[string]*Client             // clientID -> client
	rooms    map[string]map[string]*Client  // roomID -> clientID -> client
	memberOf map[string]map[string]struct{} // clientID -> roomIDs

	register   chan *Client
	unregister chan *Client
	broadcast  chan *outbound
	quit       chan struct{}
	done       chan struct{}
	stopOnce   sync.Once

	mu     sync.RWMutex
	config config.WebSocketConfig
}

// outbound is one frame for a fixed recipient list, or for every registered
// client when All is set.
type outbound struct {
	All     bool
	Targets []*Client
	Message []byte
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		memberOf:   make(map[string]map[string]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *outbound, 256),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		config:     cfg,
	}
}

func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldConnID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.removeClient(client)

		case msg := <-h.broadcast:
			h.deliver(msg)

		case <-h.quit:
			h.mu.Lock()
			for id, client := range h.clients {
				client.close()
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop ends the run loop and closes every registered client's send queue.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
	<-h.done
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
		client.close()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// removeClient forgets the client and closes its queue. Room membership is
// left to LeaveAll, called by the client's session on disconnect.
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if current, ok := h.clients[client.ID]; ok && current == client {
		delete(h.clients, client.ID)
	}
	h.mu.Unlock()

	if client.close() {
		l := log.L()
		l.Debug().Str(log.FieldConnID, client.ID).Msg("client unregistered")
	}
}

func (h *Hub) deliver(msg *outbound) {
	targets := msg.Targets
	if msg.All {
		h.mu.RLock()
		targets = make([]*Client, 0, len(h.clients))
		for _, client := range h.clients {
			targets = append(targets, client)
		}
		h.mu.RUnlock()
	}

	for _, client := range targets {
		if client.enqueue(msg.Message) || client.isClosed() {
			continue
		}
		l := log.L()
		l.Warn().Str(log.FieldConnID, client.ID).Msg("send buffer full, dropping client")
		go h.Unregister(client)
	}
}

// Join adds client to roomID. It reports whether the client was not already
// a member.
func (h *Hub) Join(client *Client, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[roomID] = members
	}
	if _, ok := members[client.ID]; ok {
		return false
	}
	members[client.ID] = client

	joined, ok := h.memberOf[client.ID]
	if !ok {
		joined = make(map[string]struct{})
		h.memberOf[client.ID] = joined
	}
	joined[roomID] = struct{}{}

	l := log.L()
	l.Debug().Str(log.FieldConnID, client.ID).Str(log.FieldRoomID, roomID).Msg("client joined room")
	return true
}

// LeaveAll removes client from every room and returns the rooms it left.
func (h *Hub) LeaveAll(client *Client) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined := h.memberOf[client.ID]
	left := make([]string, 0, len(joined))
	for roomID := range joined {
		if members, ok := h.rooms[roomID]; ok {
			delete(members, client.ID)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
		left = append(left, roomID)
	}
	delete(h.memberOf, client.ID)
	sort.Strings(left)
	return left
}

// Multicast queues message for the members of roomID at the time of the
// call. Clients joining afterwards do not receive it.
func (h *Hub) Multicast(roomID string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.mu.RLock()
	members := h.rooms[roomID]
	targets := make([]*Client, 0, len(members))
	for _, client := range members {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return nil
	}
	h.submit(&outbound{Targets: targets, Message: data})
	return nil
}

// BroadcastAll queues msg for every registered client.
func (h *Hub) BroadcastAll(msg *domain.OutEnvelope) {
	data, err := json.Marshal(msg)
	if err != nil {
		l := log.L()
		l.Error().Err(err).Str(log.FieldEvent, msg.Type).Msg("failed to encode broadcast")
		return
	}
	h.submit(&outbound{All: true, Message: data})
}

func (h *Hub) submit(msg *outbound) {
	select {
	case h.broadcast <- msg:
	case <-h.quit:
	}
}

// Members returns the sorted client ids joined to roomID.
func (h *Hub) Members(roomID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.rooms[roomID]))
	for id := range h.rooms[roomID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RoomsOf returns the sorted room ids client is joined to.
func (h *Hub) RoomsOf(clientID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make([]string, 0, len(h.memberOf[clientID]))
	for roomID := range h.memberOf[clientID] {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)
	return rooms
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
