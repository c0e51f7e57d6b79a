package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// busChannel is the Redis pub/sub channel every server process subscribes
// to. Publishing an envelope there reaches sockets held by any process.
const busChannel = "push_events"

// ErrHubClosed is returned by RegisterConnection once Run has stopped.
var ErrHubClosed = errors.New("hub closed")

// Hub owns the websocket connections accepted by this process and routes
// push events to them. Cross-process addressing goes through the shared
// Registry and the Redis event bus.
type Hub struct {
	rdb      *redis.Client
	registry *Registry

	register   chan *Client
	unregister chan *Client
	deliver    chan envelope
	done       chan struct{}

	clients map[*Client]bool
	byUser  map[string]map[*Client]bool
	byRoom  map[string]map[*Client]bool

	closeOnce map[*Client]*sync.Once
	onceMu    sync.Mutex
}

func NewHub(rdb *redis.Client) *Hub {
	return &Hub{
		rdb:        rdb,
		registry:   NewRegistry(rdb),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan envelope, 64),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		byUser:     make(map[string]map[*Client]bool),
		byRoom:     make(map[string]map[*Client]bool),
		closeOnce:  make(map[*Client]*sync.Once),
	}
}

func (h *Hub) Registry() *Registry { return h.registry }

func (h *Hub) Run(ctx context.Context) {
	// Closing done unblocks RegisterConnection/Detach callers that would
	// otherwise send into a loop nobody reads anymore.
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = true
			addIndex(h.byUser, c.UserID, c)
			if c.RoomID != "" {
				addIndex(h.byRoom, c.RoomID, c)
			}

		case c := <-h.unregister:
			h.drop(c)

		case env := <-h.deliver:
			var targets map[*Client]bool
			switch env.Scope {
			case scopeUser:
				targets = h.byUser[env.UserID]
			case scopeRoom:
				targets = h.byRoom[env.RoomID]
			}
			for c := range targets {
				select {
				case c.send <- env.Message:
				default:
					// Slow consumer; delivery is best-effort and must not
					// block the remaining recipients.
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	removeIndex(h.byUser, c.UserID, c)
	if c.RoomID != "" {
		removeIndex(h.byRoom, c.RoomID, c)
	}
	close(c.send)
	_ = c.conn.Close()
}

func addIndex(idx map[string]map[*Client]bool, key string, c *Client) {
	set, ok := idx[key]
	if !ok {
		set = make(map[*Client]bool)
		idx[key] = set
	}
	set[c] = true
}

func removeIndex(idx map[string]map[*Client]bool, key string, c *Client) {
	set, ok := idx[key]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(idx, key)
	}
}

// RegisterConnection records the connection in the shared registry, adds it
// to this process's routing tables and starts its pumps.
func (h *Hub) RegisterConnection(ctx context.Context, c *Client) error {
	if err := h.registry.Register(ctx, c.UserID, c.RoomID, c.ID); err != nil {
		return err
	}
	h.onceMu.Lock()
	h.closeOnce[c] = &sync.Once{}
	h.onceMu.Unlock()

	select {
	case h.register <- c:
	case <-h.done:
		h.onceMu.Lock()
		delete(h.closeOnce, c)
		h.onceMu.Unlock()
		if err := h.registry.Unregister(ctx, c.UserID, c.RoomID, c.ID); err != nil {
			log.Printf("tunewave: unregister connection %s: %v", c.ID, err)
		}
		return ErrHubClosed
	}
	go c.writePump()
	go c.readPump()
	return nil
}

// Detach removes the connection from the registry and the local routing
// tables. Safe to call more than once.
func (h *Hub) Detach(c *Client) {
	h.onceMu.Lock()
	once, ok := h.closeOnce[c]
	if ok {
		delete(h.closeOnce, c)
	}
	h.onceMu.Unlock()
	if !ok {
		return
	}
	once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.registry.Unregister(ctx, c.UserID, c.RoomID, c.ID); err != nil {
			log.Printf("tunewave: unregister connection %s: %v", c.ID, err)
		}
		select {
		case h.unregister <- c:
		case <-h.done:
			_ = c.conn.Close()
		}
	})
}

// SendToUser delivers a personal message; a no-op if the user is offline.
func (h *Hub) SendToUser(ctx context.Context, userID string, ev Event) error {
	return h.publish(ctx, envelope{Scope: scopeUser, UserID: userID}, ev)
}

// BroadcastToRoom fans the event out to every connection registered for the
// room, in any process.
func (h *Hub) BroadcastToRoom(ctx context.Context, roomID string, ev Event) error {
	return h.publish(ctx, envelope{Scope: scopeRoom, RoomID: roomID}, ev)
}

func (h *Hub) publish(ctx context.Context, env envelope, ev Event) error {
	msg, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	env.Message = msg

	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := h.rdb.Publish(ctx, busChannel, string(data)).Err(); err != nil {
		log.Printf("tunewave: publish push event: %v", err)
		return err
	}
	return nil
}

// RunSubscriber consumes the Redis event bus and feeds the local delivery
// loop. Blocks until ctx is done or the subscription closes.
func (h *Hub) RunSubscriber(ctx context.Context) {
	sub := h.rdb.Subscribe(ctx, busChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("tunewave: bad push envelope: %v", err)
				continue
			}
			select {
			case h.deliver <- env:
			case <-ctx.Done():
				return
			}
		}
	}
}
