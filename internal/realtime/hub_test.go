package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn stands in for a websocket connection and records text frames.
type fakeConn struct {
	mu       sync.Mutex
	writes   [][]byte
	writeErr error

	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	if messageType == websocket.TextMessage {
		cp := make([]byte, len(data))
		copy(cp, data)
		c.writes = append(c.writes, cp)
	}
	return nil
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("connection closed")
}

func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) Messages() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, raw := range c.writes {
		var ev Event
		if json.Unmarshal(raw, &ev) == nil {
			out = append(out, ev)
		}
	}
	return out
}

func (c *fakeConn) received(eventType string) bool {
	for _, ev := range c.Messages() {
		if ev.Type == eventType {
			return true
		}
	}
	return false
}

func newTestHub(t *testing.T) (*Hub, context.Context) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	hub := NewHub(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	go hub.RunSubscriber(ctx)
	return hub, ctx
}

func connect(t *testing.T, hub *Hub, ctx context.Context, userID, roomID string) (*Client, *fakeConn) {
	t.Helper()
	fc := newFakeConn()
	c := NewClient(hub, fc, userID, roomID)
	require.NoError(t, hub.RegisterConnection(ctx, c))
	return c, fc
}

func TestBroadcastReachesRoomClients(t *testing.T) {
	hub, ctx := newTestHub(t)

	_, fc1 := connect(t, hub, ctx, "alice", "room-1")
	_, fc2 := connect(t, hub, ctx, "bob", "room-1")
	_, other := connect(t, hub, ctx, "carol", "room-2")

	require.NoError(t, hub.BroadcastToRoom(ctx, "room-1", Event{
		Type:    EventQueueAdd,
		Payload: map[string]any{"room_id": "room-1"},
	}))

	require.Eventually(t, func() bool {
		return fc1.received(EventQueueAdd) && fc2.received(EventQueueAdd)
	}, 2*time.Second, 10*time.Millisecond)

	assert.Empty(t, other.Messages(), "other rooms must not see the event")
}

func TestSendToUser(t *testing.T) {
	hub, ctx := newTestHub(t)

	_, fc := connect(t, hub, ctx, "alice", "room-1")
	_, peer := connect(t, hub, ctx, "bob", "room-1")

	require.NoError(t, hub.SendToUser(ctx, "alice", Event{
		Type:    EventPlayerState,
		Payload: map[string]any{"room_id": "room-1"},
	}))

	require.Eventually(t, func() bool {
		return fc.received(EventPlayerState)
	}, 2*time.Second, 10*time.Millisecond)

	assert.Empty(t, peer.Messages(), "personal messages stay personal")
}

func TestSendToOfflineUserIsNoop(t *testing.T) {
	hub, ctx := newTestHub(t)

	assert.NoError(t, hub.SendToUser(ctx, "ghost", Event{Type: EventPlayerState}))
}

func TestFailingConnDoesNotBlockOthers(t *testing.T) {
	hub, ctx := newTestHub(t)

	broken, brokenConn := connect(t, hub, ctx, "alice", "room-1")
	brokenConn.mu.Lock()
	brokenConn.writeErr = errors.New("broken pipe")
	brokenConn.mu.Unlock()

	_, healthy := connect(t, hub, ctx, "bob", "room-1")

	require.NoError(t, hub.BroadcastToRoom(ctx, "room-1", Event{Type: EventQueueAdd}))
	require.Eventually(t, func() bool {
		return healthy.received(EventQueueAdd)
	}, 2*time.Second, 10*time.Millisecond)

	// The failed connection detaches itself and leaves the registry.
	require.Eventually(t, func() bool {
		ids, err := hub.Registry().RoomConnections(ctx, "room-1")
		if err != nil {
			return false
		}
		for _, id := range ids {
			if id == broken.ID {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	// Subsequent broadcasts still flow.
	require.NoError(t, hub.BroadcastToRoom(ctx, "room-1", Event{Type: EventQueueRemove}))
	require.Eventually(t, func() bool {
		return healthy.received(EventQueueRemove)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDetachIsIdempotent(t *testing.T) {
	hub, ctx := newTestHub(t)

	c, _ := connect(t, hub, ctx, "alice", "room-1")

	hub.Detach(c)
	hub.Detach(c)

	require.Eventually(t, func() bool {
		online, err := hub.Registry().UserOnline(ctx, "alice")
		return err == nil && !online
	}, 2*time.Second, 10*time.Millisecond)
}

// Once Run has stopped, register and detach must not block the caller on a
// channel nobody reads anymore.
func TestHubShutdownUnblocksRegisterAndDetach(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	hub := NewHub(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	go hub.RunSubscriber(ctx)

	c, _ := connect(t, hub, ctx, "alice", "room-1")

	cancel()
	select {
	case <-hub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub loop did not stop")
	}

	detached := make(chan struct{})
	go func() {
		hub.Detach(c)
		close(detached)
	}()
	select {
	case <-detached:
	case <-time.After(2 * time.Second):
		t.Fatal("Detach blocked after shutdown")
	}

	late := NewClient(hub, newFakeConn(), "bob", "room-1")
	err := hub.RegisterConnection(context.Background(), late)
	assert.ErrorIs(t, err, ErrHubClosed)

	online, err := hub.Registry().UserOnline(context.Background(), "bob")
	require.NoError(t, err)
	assert.False(t, online, "a refused registration must not linger in the registry")
}

func TestClientSendDropsWhenBufferFull(t *testing.T) {
	// A client whose pump is not running must not block the sender.
	c := NewClient(nil, newFakeConn(), "alice", "room-1")
	for i := 0; i < cap(c.send)+10; i++ {
		c.Send([]byte("x"))
	}
	assert.Len(t, c.send, cap(c.send))
}
