package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/voidreach/sectors/internal/events"
)

// testServer is a minimal hand-rolled RPC/event WebSocket peer used only to
// exercise Client against real frames, not a stand-in for the game server.
type testServer struct {
	upgrader websocket.Upgrader
	connCh   chan *websocket.Conn
}

func newTestServer() (*httptest.Server, *testServer) {
	ts := &testServer{connCh: make(chan *websocket.Conn, 1)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := ts.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.connCh <- conn
	}))
	return srv, ts
}

func wsURL(httpURL string) string {
	return "ws" + httpURL[len("http"):]
}

func dialTest(t *testing.T, characterID string) (*Client, *websocket.Conn, func()) {
	t.Helper()
	srv, ts := newTestServer()
	c, err := Dial(context.Background(), wsURL(srv.URL), characterID)
	require.NoError(t, err)
	conn := <-ts.connCh
	return c, conn, func() {
		c.Close()
		srv.Close()
	}
}

func TestClient_Call_ResolvesOnMatchingReply(t *testing.T) {
	c, conn, cleanup := dialTest(t, "pilot-a")
	defer cleanup()

	go func() {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var frame rpcFrame
		require.NoError(t, json.Unmarshal(raw, &frame))
		reply := rpcReplyFrame{ID: frame.ID, OK: true, Result: json.RawMessage(`{"sector":5}`)}
		require.NoError(t, conn.WriteJSON(reply))
	}()

	var result struct {
		Sector int `json:"sector"`
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := c.Call(ctx, "move", map[string]any{"character_id": "pilot-a", "direction": "warp-3"}, &result)
	require.NoError(t, err)
	require.Equal(t, 5, result.Sector)
}

func TestClient_Call_RejectsMismatchedCharacterIDLocally(t *testing.T) {
	c, _, cleanup := dialTest(t, "pilot-a")
	defer cleanup()

	err := c.Call(context.Background(), "move", map[string]any{"character_id": "someone-else"}, nil)
	require.Error(t, err)
}

func TestClient_Call_SurfacesRPCErrorAndEmitsErrorEvent(t *testing.T) {
	c, conn, cleanup := dialTest(t, "pilot-a")
	defer cleanup()

	errEvents := c.GetEventQueue(events.Error)

	go func() {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var frame rpcFrame
		require.NoError(t, json.Unmarshal(raw, &frame))
		reply := rpcReplyFrame{ID: frame.ID, OK: false, Error: &rpcError{Status: 409, Code: "occupied", Detail: "sector full"}}
		require.NoError(t, conn.WriteJSON(reply))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := c.Call(ctx, "move", nil, nil)
	require.Error(t, err)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, 409, rpcErr.Status)

	select {
	case ev := <-errEvents:
		payload, ok := ev.Payload.(events.ErrorPayload)
		require.True(t, ok)
		require.Equal(t, 409, payload.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a synthesized error event")
	}
}

func TestClient_DispatchesTypedEventToQueue(t *testing.T) {
	c, conn, cleanup := dialTest(t, "pilot-a")
	defer cleanup()

	q := c.GetEventQueue(events.CombatRoundWaiting)
	payload, err := json.Marshal(events.CombatRoundWaitingPayload{CombatID: "c1", Round: 1})
	require.NoError(t, err)
	frame := eventFrame{FrameType: "event", Event: string(events.CombatRoundWaiting), Payload: payload}
	require.NoError(t, conn.WriteJSON(frame))

	select {
	case ev := <-q:
		p, ok := ev.Payload.(events.CombatRoundWaitingPayload)
		require.True(t, ok)
		require.Equal(t, "c1", p.CombatID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected event on queue")
	}
}

func TestClient_SuppressesSelfMovementEvents(t *testing.T) {
	c, conn, cleanup := dialTest(t, "pilot-a")
	defer cleanup()

	q := c.GetEventQueue(events.CharacterMoved)
	selfMove, _ := json.Marshal(events.CharacterMovedPayload{Player: events.PlayerRef{ID: "pilot-a"}, ToSector: 9})
	otherMove, _ := json.Marshal(events.CharacterMovedPayload{Player: events.PlayerRef{ID: "pilot-b"}, ToSector: 9})

	require.NoError(t, conn.WriteJSON(eventFrame{FrameType: "event", Event: string(events.CharacterMoved), Payload: selfMove}))
	require.NoError(t, conn.WriteJSON(eventFrame{FrameType: "event", Event: string(events.CharacterMoved), Payload: otherMove}))

	select {
	case ev := <-q:
		p := ev.Payload.(events.CharacterMovedPayload)
		require.Equal(t, "pilot-b", p.Player.ID, "self-movement must be suppressed, only the other pilot's event should arrive")
	case <-time.After(2 * time.Second):
		t.Fatal("expected the other pilot's movement event")
	}
}

func TestClient_PauseBuffersThenResumeFlushesInOrder(t *testing.T) {
	c, conn, cleanup := dialTest(t, "pilot-a")
	defer cleanup()

	q := c.GetEventQueue(events.ChatMessage)
	c.PauseEventDelivery()

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.WriteJSON(eventFrame{FrameType: "event", Event: string(events.ChatMessage), Payload: json.RawMessage(`{}`)}))
	}
	time.Sleep(50 * time.Millisecond)

	select {
	case <-q:
		t.Fatal("no events should be dispatched while paused")
	default:
	}

	c.ResumeEventDelivery()
	for i := 0; i < 3; i++ {
		select {
		case <-q:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected buffered event %d to flush on resume", i)
		}
	}
}

func TestClient_WaitForEventMatchesPredicateThenDetaches(t *testing.T) {
	c, conn, cleanup := dialTest(t, "pilot-a")
	defer cleanup()

	resultCh := make(chan events.Event, 1)
	go func() {
		ev, err := c.WaitForEvent(context.Background(), events.CombatEnded, func(ev events.Event) bool {
			p, ok := ev.Payload.(events.CombatEndedPayload)
			return ok && p.CombatID == "target"
		}, 2*time.Second)
		require.NoError(t, err)
		resultCh <- ev
	}()

	time.Sleep(20 * time.Millisecond)
	wrongPayload, _ := json.Marshal(events.CombatEndedPayload{CombatRoundResolvedPayload: events.CombatRoundResolvedPayload{CombatID: "other"}})
	rightPayload, _ := json.Marshal(events.CombatEndedPayload{CombatRoundResolvedPayload: events.CombatRoundResolvedPayload{CombatID: "target"}})
	require.NoError(t, conn.WriteJSON(eventFrame{FrameType: "event", Event: string(events.CombatEnded), Payload: wrongPayload}))
	require.NoError(t, conn.WriteJSON(eventFrame{FrameType: "event", Event: string(events.CombatEnded), Payload: rightPayload}))

	select {
	case ev := <-resultCh:
		p := ev.Payload.(events.CombatEndedPayload)
		require.Equal(t, "target", p.CombatID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected WaitForEvent to resolve")
	}
}

func TestClient_ConnectionLossFailsPendingRPCs(t *testing.T) {
	c, conn, cleanup := dialTest(t, "pilot-a")
	defer cleanup()

	errCh := make(chan error, 1)
	go func() {
		err := c.Call(context.Background(), "move", nil, nil)
		errCh <- err
	}()
	time.Sleep(50 * time.Millisecond)
	conn.Close()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("expected pending rpc to fail after connection loss")
	}
}
