package ws

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sohyunkim/geurim/backend/internal/board"
	"github.com/sohyunkim/geurim/backend/internal/protocol"
)

func setupHub(t *testing.T) (*Hub, *board.Store) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := board.NewStore()
	hub := NewHub(logger)
	router := protocol.NewRouter(store, hub, logger)
	go hub.Run(router)

	return hub, store
}

// testClient builds a Client without a real socket; the pumps never start,
// so frames pile up in the send channel where the test can read them.
func testClient(hub *Hub, id string) *Client {
	return &Client{
		hub:  hub,
		send: make(chan []byte, 64),
		id:   id,
		log:  hub.log,
	}
}

func sendFrame(t *testing.T, hub *Hub, c *Client, typ protocol.EventType, payload any) {
	t.Helper()
	frame, err := protocol.Encode(typ, payload)
	require.NoError(t, err)
	hub.inbound <- inboundFrame{client: c, data: frame}
}

func waitFrame(t *testing.T, c *Client) protocol.Envelope {
	t.Helper()
	select {
	case raw := <-c.send:
		env, err := protocol.DecodeEnvelope(raw)
		require.NoError(t, err)
		return env
	case <-time.After(time.Second):
		t.Fatalf("client %s received no frame", c.id)
		return protocol.Envelope{}
	}
}

func waitCount(t *testing.T, count func() int, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if count() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected count %d, got %d", want, count())
}

func TestHubRegisterAndJoin(t *testing.T) {
	hub, store := setupHub(t)

	x := testClient(hub, "x")
	hub.register <- x
	waitCount(t, hub.ClientCount, 1)

	sendFrame(t, hub, x, protocol.EventJoinRoom, protocol.JoinRoom{RoomID: "r1", Nickname: "행복한 판다"})

	env := waitFrame(t, x)
	assert.Equal(t, protocol.EventCanvasState, env.Type)
	assert.JSONEq(t, `[]`, string(env.Data))
	waitCount(t, store.RoomCount, 1)
}

func TestHubFullSessionLifecycle(t *testing.T) {
	hub, store := setupHub(t)

	x := testClient(hub, "x")
	y := testClient(hub, "y")
	hub.register <- x
	hub.register <- y
	waitCount(t, hub.ClientCount, 2)

	sendFrame(t, hub, x, protocol.EventJoinRoom, protocol.JoinRoom{RoomID: "r1", Nickname: "행복한 판다"})
	require.Equal(t, protocol.EventCanvasState, waitFrame(t, x).Type)

	sendFrame(t, hub, y, protocol.EventJoinRoom, protocol.JoinRoom{RoomID: "r1", Nickname: "용감한 거북이"})
	require.Equal(t, protocol.EventCanvasState, waitFrame(t, y).Type)

	joined := waitFrame(t, x)
	require.Equal(t, protocol.EventUserJoined, joined.Type)
	var uj protocol.UserJoined
	require.NoError(t, json.Unmarshal(joined.Data, &uj))
	assert.Equal(t, "용감한 거북이", uj.Nickname)

	// Y draws; X gets the fan-out, Y does not hear its own echo.
	sendFrame(t, hub, y, protocol.EventUpdateElements, protocol.UpdateElements{
		RoomID:   "r1",
		Elements: json.RawMessage(`[{"id":"e1"}]`),
	})
	updated := waitFrame(t, x)
	require.Equal(t, protocol.EventElementsUpdated, updated.Type)
	assert.JSONEq(t, `[{"id":"e1"}]`, string(store.Scene("r1")))
	assert.Empty(t, y.send)

	// Y disconnects: X is notified, the room survives with X in it.
	hub.unregister <- y
	left := waitFrame(t, x)
	require.Equal(t, protocol.EventUserLeft, left.Type)
	waitCount(t, hub.ClientCount, 1)
	assert.Equal(t, 1, store.RoomCount())

	// X disconnects: the room is reclaimed immediately.
	hub.unregister <- x
	waitCount(t, hub.ClientCount, 0)
	waitCount(t, store.RoomCount, 0)
}

func TestHubUnknownRoomUpdateIsHarmless(t *testing.T) {
	hub, store := setupHub(t)

	x := testClient(hub, "x")
	hub.register <- x
	waitCount(t, hub.ClientCount, 1)

	sendFrame(t, hub, x, protocol.EventUpdateElements, protocol.UpdateElements{
		RoomID:   "never-joined",
		Elements: json.RawMessage(`[{"id":"e1"}]`),
	})

	// Follow with a join so we know the update frame was processed.
	sendFrame(t, hub, x, protocol.EventJoinRoom, protocol.JoinRoom{RoomID: "r1", Nickname: "n"})
	require.Equal(t, protocol.EventCanvasState, waitFrame(t, x).Type)

	assert.Nil(t, store.Scene("never-joined"))
	assert.Equal(t, 1, store.RoomCount())
}

func TestHubDropsFramesFromUnregisteredClient(t *testing.T) {
	hub, store := setupHub(t)

	x := testClient(hub, "x")
	y := testClient(hub, "y")
	hub.register <- x
	hub.register <- y
	waitCount(t, hub.ClientCount, 2)

	// x disconnects, but frames it queued beforehand are still sitting
	// in the inbound channel when the unregister is processed.
	hub.unregister <- x
	waitCount(t, hub.ClientCount, 1)

	sendFrame(t, hub, x, protocol.EventJoinRoom, protocol.JoinRoom{RoomID: "stale", Nickname: "유령"})
	sendFrame(t, hub, x, protocol.EventUpdateElements, protocol.UpdateElements{
		RoomID:   "stale",
		Elements: json.RawMessage(`[{"id":"e1"}]`),
	})

	// Inbound frames are FIFO: y's canvasState proves the stale frames
	// were consumed, the loop survived them, and no reply hit x's
	// closed send channel.
	sendFrame(t, hub, y, protocol.EventJoinRoom, protocol.JoinRoom{RoomID: "r1", Nickname: "용감한 거북이"})
	require.Equal(t, protocol.EventCanvasState, waitFrame(t, y).Type)

	assert.Equal(t, 1, store.RoomCount(), "stale join must not create a room")
	assert.Nil(t, store.Scene("stale"))
	assert.Empty(t, store.RoomsOf("x"), "dead connection must leave no reverse-index entry")
}

func TestHubDoubleUnregisterIsSafe(t *testing.T) {
	hub, _ := setupHub(t)

	x := testClient(hub, "x")
	hub.register <- x
	waitCount(t, hub.ClientCount, 1)

	hub.unregister <- x
	hub.unregister <- x
	waitCount(t, hub.ClientCount, 0)
}

func TestHubSessionLookup(t *testing.T) {
	hub, _ := setupHub(t)

	x := testClient(hub, "x")
	hub.register <- x
	waitCount(t, hub.ClientCount, 1)

	sess, ok := hub.Session("x")
	require.True(t, ok)
	assert.Equal(t, "x", sess.ID())

	_, ok = hub.Session("ghost")
	assert.False(t, ok)
}
