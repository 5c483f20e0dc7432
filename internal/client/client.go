// Package client implements AsyncGameClient: a single long-lived WebSocket
// connection multiplexing RPC request/reply frames and server-pushed event
// frames, grounded in the WebSocket upgrade/read-pump/write-pump pattern
// used server-side by lab1702-netrek-web, mirrored here for the client role.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voidreach/sectors/internal/events"
)

// rpcFrame is the client→server envelope: {id, type:"rpc", endpoint, payload}.
type rpcFrame struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Endpoint string `json:"endpoint"`
	Payload  any    `json:"payload"`
}

// rpcReplyFrame is the server→client RPC correlation frame.
type rpcReplyFrame struct {
	ID     string          `json:"id"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Status int    `json:"status"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail"`
}

// eventFrame is the server→client push frame.
type eventFrame struct {
	FrameType string          `json:"frame_type"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"request_id,omitempty"`
}

// RPCError is returned by Call when the server rejects a request.
type RPCError struct {
	Status int
	Code   string
	Detail string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d (%s): %s", e.Status, e.Code, e.Detail)
}

type pendingRPC struct {
	resultCh chan json.RawMessage
	errCh    chan error
}

// Handler receives every dispatched event, already wrapped with its summary.
type Handler func(events.Event)

type oneShotWaiter struct {
	name      events.Name
	predicate func(events.Event) bool
	resultCh  chan events.Event
}

// Client is a single WebSocket connection to the game server, handling RPC
// correlation and event fan-out. A Client is safe for concurrent use.
type Client struct {
	conn            *websocket.Conn
	characterID     string
	summaries       *events.SummaryRegistry

	mu              sync.Mutex
	pending         map[string]*pendingRPC
	handlers        []Handler
	eventQueues     map[events.Name]chan events.Event
	oneShots        []*oneShotWaiter
	paused          bool
	bufferedEvents  []events.Event
	currentSectorID int
	closed          bool
	closeErr        error

	writeMu sync.Mutex
}

// Dial connects to url (scheme ws:// or wss://) and starts the reader
// goroutine. characterID is the bound character: every outgoing RPC's
// character_id field must equal it.
func Dial(ctx context.Context, url, characterID string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial: %w", err)
	}
	c := &Client{
		conn:        conn,
		characterID: characterID,
		summaries:   events.NewSummaryRegistry(),
		pending:     make(map[string]*pendingRPC),
		eventQueues: make(map[events.Name]chan events.Event),
	}
	go c.readLoop()
	return c, nil
}

// Summaries exposes the registry so callers can register custom formatters
// before traffic starts flowing.
func (c *Client) Summaries() *events.SummaryRegistry { return c.summaries }

// OnEvent registers a handler invoked for every dispatched event.
func (c *Client) OnEvent(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// GetEventQueue returns a buffered channel that receives every event of the
// given name, in addition to any registered Handlers.
func (c *Client) GetEventQueue(name events.Name) <-chan events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.eventQueues[name]
	if !ok {
		q = make(chan events.Event, 64)
		c.eventQueues[name] = q
	}
	return q
}

// PauseEventDelivery stops handler/queue dispatch; events continue to be
// buffered in delivery order. RPC reply correlation is unaffected.
func (c *Client) PauseEventDelivery() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

// ResumeEventDelivery flushes buffered events in FIFO order and resumes
// live dispatch.
func (c *Client) ResumeEventDelivery() {
	c.mu.Lock()
	buffered := c.bufferedEvents
	c.bufferedEvents = nil
	c.paused = false
	c.mu.Unlock()

	for _, ev := range buffered {
		c.dispatch(ev)
	}
}

// WaitForEvent blocks until an event named name satisfying predicate
// arrives, or timeout elapses. The installed watcher detaches after a
// single match (or the timeout), never firing twice.
func (c *Client) WaitForEvent(ctx context.Context, name events.Name, predicate func(events.Event) bool, timeout time.Duration) (events.Event, error) {
	waiter := &oneShotWaiter{name: name, predicate: predicate, resultCh: make(chan events.Event, 1)}
	c.mu.Lock()
	c.oneShots = append(c.oneShots, waiter)
	c.mu.Unlock()

	defer c.removeWaiter(waiter)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-waiter.resultCh:
		return ev, nil
	case <-timer.C:
		return events.Event{}, fmt.Errorf("client: timed out waiting for event %s", name)
	case <-ctx.Done():
		return events.Event{}, ctx.Err()
	}
}

func (c *Client) removeWaiter(target *oneShotWaiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.oneShots {
		if w == target {
			c.oneShots = append(c.oneShots[:i], c.oneShots[i+1:]...)
			return
		}
	}
}

// Call issues an RPC and blocks until the server replies or ctx is done.
// If payload carries a character_id field set to something other than the
// bound character, Call fails locally without transmitting anything.
func (c *Client) Call(ctx context.Context, endpoint string, payload map[string]any, result any) error {
	if cid, ok := payload["character_id"]; ok {
		if s, ok := cid.(string); ok && s != "" && s != c.characterID {
			return fmt.Errorf("client: character_id %q does not match bound character %q", s, c.characterID)
		}
	}

	id := uuid.New().String()
	pending := &pendingRPC{resultCh: make(chan json.RawMessage, 1), errCh: make(chan error, 1)}
	c.mu.Lock()
	c.pending[id] = pending
	c.mu.Unlock()

	frame := rpcFrame{ID: id, Type: "rpc", Endpoint: endpoint, Payload: payload}
	if err := c.writeJSON(frame); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("client: send rpc: %w", err)
	}

	select {
	case raw := <-pending.resultCh:
		if result != nil && len(raw) > 0 {
			return json.Unmarshal(raw, result)
		}
		return nil
	case err := <-pending.errCh:
		return err
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	}
}

func (c *Client) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// Close shuts down the connection; pending RPCs fail with "connection
// lost".
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) readLoop() {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.failAll(fmt.Errorf("client: connection lost: %w", err))
			return
		}
		c.handleFrame(raw)
	}
}

func (c *Client) handleFrame(raw []byte) {
	var probe struct {
		FrameType string `json:"frame_type"`
		ID        string `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return
	}
	if probe.FrameType == "event" {
		var frame eventFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			return
		}
		c.handleEventFrame(frame)
		return
	}
	if probe.ID != "" {
		var reply rpcReplyFrame
		if err := json.Unmarshal(raw, &reply); err != nil {
			return
		}
		c.handleRPCReply(reply)
	}
}

func (c *Client) handleRPCReply(reply rpcReplyFrame) {
	c.mu.Lock()
	pending, ok := c.pending[reply.ID]
	if ok {
		delete(c.pending, reply.ID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	if reply.OK {
		pending.resultCh <- reply.Result
		return
	}
	var status int
	var code, detail string
	if reply.Error != nil {
		status, code, detail = reply.Error.Status, reply.Error.Code, reply.Error.Detail
	}
	c.emitErrorEvent(status, code, detail, reply.ID)
	pending.errCh <- &RPCError{Status: status, Code: code, Detail: detail}
}

func (c *Client) emitErrorEvent(status int, code, detail, requestID string) {
	payload := events.ErrorPayload{Status: status, Code: code, Detail: detail, RequestID: requestID}
	ev := events.Event{Name: events.Error, Payload: payload, Summary: c.summaries.Summarize(events.Error, payload)}
	c.enqueueOrDispatch(ev)
}

func (c *Client) handleEventFrame(frame eventFrame) {
	payload, ok := decodePayload(frame.Event, frame.Payload)
	if !ok {
		payload = frame.Payload
	}

	if frame.Event == string(events.CharacterMoved) {
		if moved, ok := payload.(events.CharacterMovedPayload); ok {
			if moved.Player.ID == c.characterID || moved.Player.Name == c.characterID {
				return // self-movement is never surfaced to its own session.
			}
		}
	}
	if frame.Event == string(events.StatusUpdate) || frame.Event == string(events.CharacterMoved) {
		if moved, ok := payload.(events.CharacterMovedPayload); ok {
			c.mu.Lock()
			c.currentSectorID = moved.ToSector
			c.mu.Unlock()
		}
	}

	name := events.Name(frame.Event)
	ev := events.Event{Name: name, Payload: payload, Summary: c.summaries.Summarize(name, payload)}
	c.enqueueOrDispatch(ev)
}

func (c *Client) enqueueOrDispatch(ev events.Event) {
	c.mu.Lock()
	if c.paused {
		c.bufferedEvents = append(c.bufferedEvents, ev)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.dispatch(ev)
}

func (c *Client) dispatch(ev events.Event) {
	c.mu.Lock()
	handlers := append([]Handler(nil), c.handlers...)
	if q, ok := c.eventQueues[ev.Name]; ok {
		select {
		case q <- ev:
		default:
		}
	}
	var matched []*oneShotWaiter
	remaining := c.oneShots[:0:0]
	for _, w := range c.oneShots {
		if w.name == ev.Name && (w.predicate == nil || w.predicate(ev)) {
			matched = append(matched, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	c.oneShots = remaining
	c.mu.Unlock()

	for _, w := range matched {
		w.resultCh <- ev
	}
	for _, h := range handlers {
		h(ev)
	}
}

func (c *Client) failAll(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]*pendingRPC)
	c.closed = true
	c.closeErr = err
	c.mu.Unlock()

	for _, p := range pending {
		p.errCh <- err
	}
}

// CurrentSector returns the last sector id observed from a status/movement
// event.
func (c *Client) CurrentSector() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSectorID
}

func decodePayload(eventName string, raw json.RawMessage) (any, bool) {
	var v any
	switch events.Name(eventName) {
	case events.CombatRoundWaiting:
		v = &events.CombatRoundWaitingPayload{}
	case events.CombatRoundResolved:
		v = &events.CombatRoundResolvedPayload{}
	case events.CombatEnded:
		v = &events.CombatEndedPayload{}
	case events.CharacterMoved:
		v = &events.CharacterMovedPayload{}
	case events.Error:
		v = &events.ErrorPayload{}
	default:
		return nil, false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, false
	}
	switch p := v.(type) {
	case *events.CombatRoundWaitingPayload:
		return *p, true
	case *events.CombatRoundResolvedPayload:
		return *p, true
	case *events.CombatEndedPayload:
		return *p, true
	case *events.CharacterMovedPayload:
		return *p, true
	case *events.ErrorPayload:
		return *p, true
	}
	return nil, false
}
