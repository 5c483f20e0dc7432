// Package gameserver wires the domain's combat, garrison, salvage, and
// sector modules to connected pilots: the RPC/event glue (CombatGlue,
// CargoGlue, CombatHandler, GarrisonHandler, WarpHandler, ChatHandler,
// AdminHandler) plus the WebSocket transport (Server) that carries them.
package gameserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/voidreach/sectors/internal/config"
	"github.com/voidreach/sectors/internal/events"
	"github.com/voidreach/sectors/internal/game/garrison"
	"github.com/voidreach/sectors/internal/game/session"
)

// rpcFrame is the client->server envelope, matching internal/client.Client's
// private rpcFrame byte-for-byte: {id, type:"rpc", endpoint, payload}.
type rpcFrame struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Endpoint string          `json:"endpoint"`
	Payload  json.RawMessage `json:"payload"`
}

// rpcReplyFrame is the server->client RPC correlation frame.
type rpcReplyFrame struct {
	ID     string    `json:"id"`
	OK     bool      `json:"ok"`
	Result any       `json:"result,omitempty"`
	Error  *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Status int    `json:"status"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail"`
}

// eventFrame is the server->client push frame.
type eventFrame struct {
	FrameType string `json:"frame_type"`
	Event     string `json:"event"`
	Payload   any    `json:"payload"`
	RequestID string `json:"request_id,omitempty"`
}

// rpcHandlerFunc resolves one RPC endpoint. uid is the connection-bound
// pilot ID, never trusted from the payload itself, mirroring §6.3's
// binding invariant on the client side.
type rpcHandlerFunc func(uid string, payload map[string]any) (any, error)

// Server is the single WebSocket listener every pilot (human or Task Agent)
// connects to, grounded in lab1702-netrek-web's upgrade/read-pump/
// write-pump pattern: an Upgrader with a connection cap, and one
// goroutine pair per connection. Unlike that teacher, per-connection
// fan-out is not a central register/unregister/broadcast triple of
// channels — session.Manager's own lock already serializes pilot
// bookkeeping, and each pilot's session.BridgeEntity is its outbound
// queue, so writePump drains the entity instead of a server-owned channel.
type Server struct {
	cfg       config.WebSocketConfig
	upgrader  websocket.Upgrader
	sessions  *session.Manager
	logger    *zap.Logger
	summaries *events.SummaryRegistry
	endpoints map[string]rpcHandlerFunc

	connCount atomic.Int64
}

// NewServer builds a Server. Call RegisterEndpoint for every RPC the
// dispatch table should serve before starting to accept connections.
func NewServer(cfg config.WebSocketConfig, sessions *session.Manager, logger *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		summaries: events.NewSummaryRegistry(),
		endpoints: make(map[string]rpcHandlerFunc),
	}
}

// RegisterEndpoint installs the handler invoked for RPC frames addressed
// to endpoint, e.g. "combat.initiate".
func (s *Server) RegisterEndpoint(endpoint string, handler rpcHandlerFunc) {
	s.endpoints[endpoint] = handler
}

// BroadcastToSector implements Broadcaster by framing ev and pushing it to
// every pilot currently occupying sectorID. A pilot whose outbound buffer
// is full or already closed silently misses the event rather than
// blocking every other delivery.
func (s *Server) BroadcastToSector(sectorID int, ev events.Event) {
	raw, err := s.frameEvent(ev, "")
	if err != nil {
		s.logger.Error("framing sector broadcast", zap.Error(err), zap.String("event", string(ev.Name)))
		return
	}
	for _, uid := range s.sessions.PilotUIDsInSector(sectorID) {
		s.pushTo(uid, raw)
	}
}

// PushToPilot frames ev and delivers it to a single pilot, used for
// events that are not sector-wide (e.g. a synthetic error reply).
func (s *Server) PushToPilot(uid string, ev events.Event, requestID string) {
	raw, err := s.frameEvent(ev, requestID)
	if err != nil {
		s.logger.Error("framing pilot event", zap.Error(err), zap.String("event", string(ev.Name)))
		return
	}
	s.pushTo(uid, raw)
}

func (s *Server) pushTo(uid string, raw []byte) {
	pilot, ok := s.sessions.GetPilot(uid)
	if !ok {
		return
	}
	if err := pilot.Entity.Push(raw); err != nil {
		s.logger.Warn("dropping event, pilot buffer unavailable", zap.String("uid", uid), zap.Error(err))
	}
}

func (s *Server) frameEvent(ev events.Event, requestID string) ([]byte, error) {
	frame := eventFrame{
		FrameType: "event",
		Event:     string(ev.Name),
		Payload:   ev.Payload,
		RequestID: requestID,
	}
	return json.Marshal(frame)
}

// ServeHTTP upgrades the connection and registers the pilot named by the
// "uid" query parameter (the connecting client's bound character ID).
// Authentication/account lookup happens before the upgrade, at whatever
// layer issues the client its connection URL; ServeHTTP only establishes
// the pilot's transport-facing session.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MaxConnections > 0 && int(s.connCount.Load()) >= s.cfg.MaxConnections {
		http.Error(w, "server full", http.StatusServiceUnavailable)
		return
	}

	uid := r.URL.Query().Get("uid")
	if uid == "" {
		http.Error(w, "missing uid", http.StatusBadRequest)
		return
	}
	pilot, ok := s.sessions.GetPilot(uid)
	if !ok {
		http.Error(w, fmt.Sprintf("pilot %q is not registered", uid), http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s.connCount.Add(1)
	defer s.connCount.Add(-1)

	done := make(chan struct{})
	go s.writePump(conn, pilot, done)
	s.readPump(conn, uid)
	close(done)
}

func (s *Server) writePump(conn *websocket.Conn, pilot *session.PilotSession, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case raw, ok := <-pilot.Entity.Events():
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) readPump(conn *websocket.Conn, uid string) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Info("websocket closed", zap.String("uid", uid), zap.Error(err))
			}
			return
		}
		s.handleFrame(uid, raw)
	}
}

func (s *Server) handleFrame(uid string, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic handling rpc frame", zap.String("uid", uid), zap.Any("panic", r))
		}
	}()

	var frame rpcFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return
	}
	if frame.Type != "rpc" {
		return
	}

	handler, ok := s.endpoints[frame.Endpoint]
	if !ok {
		s.reply(uid, frame.ID, nil, fmt.Errorf("unknown endpoint %q", frame.Endpoint), "not_found", 404)
		return
	}

	var payload map[string]any
	if len(frame.Payload) > 0 {
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			s.reply(uid, frame.ID, nil, err, "bad_payload", 400)
			return
		}
	}
	if cid, ok := payload["character_id"].(string); ok && cid != "" && cid != uid {
		s.reply(uid, frame.ID, nil, fmt.Errorf("character_id %q does not match bound pilot", cid), "character_mismatch", 400)
		return
	}

	result, err := handler(uid, payload)
	if err != nil {
		s.reply(uid, frame.ID, nil, err, "rpc_error", 400)
		return
	}
	s.reply(uid, frame.ID, result, nil, "", 0)
}

func (s *Server) reply(uid, requestID string, result any, cause error, code string, status int) {
	frame := rpcReplyFrame{ID: requestID, OK: cause == nil}
	if cause != nil {
		frame.Error = &rpcError{Status: status, Code: code, Detail: cause.Error()}
		s.PushToPilot(uid, events.Event{
			Name:    events.Error,
			Payload: events.ErrorPayload{Status: status, Code: code, Detail: cause.Error(), RequestID: requestID},
			Summary: s.summaries.Summarize(events.Error, events.ErrorPayload{Status: status, Detail: cause.Error()}),
		}, requestID)
	} else {
		frame.Result = result
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error("marshaling rpc reply", zap.Error(err))
		return
	}
	s.pushTo(uid, raw)
}

// payloadString reads a string field, defaulting to "".
func payloadString(p map[string]any, key string) string {
	v, _ := p[key].(string)
	return v
}

// payloadInt reads a numeric field; JSON numbers decode as float64.
func payloadInt(p map[string]any, key string) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func payloadMode(p map[string]any, key string) garrison.Mode {
	return garrison.Mode(payloadString(p, key))
}

func payloadCargoItems(p map[string]any, key string) []CargoItem {
	raw, ok := p[key].([]any)
	if !ok {
		return nil
	}
	items := make([]CargoItem, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		items = append(items, CargoItem{
			Commodity: payloadString(m, "commodity"),
			Units:     payloadInt(m, "units"),
		})
	}
	return items
}

// contextWithRPCTimeout bounds a handler's downstream (e.g. database) work
// to one read/write deadline cycle, so a single slow RPC cannot stall the
// connection's read loop indefinitely.
func contextWithRPCTimeout(parent context.Context, cfg config.WebSocketConfig) (context.Context, context.CancelFunc) {
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(parent, timeout)
}
