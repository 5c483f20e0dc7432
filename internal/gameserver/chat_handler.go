package gameserver

import (
	"fmt"

	"github.com/voidreach/sectors/internal/events"
	"github.com/voidreach/sectors/internal/game/session"
)

// ChatHandler handles say, emote, and who commands.
type ChatHandler struct {
	sessions    *session.Manager
	broadcaster Broadcaster
	summaries   *events.SummaryRegistry
}

// NewChatHandler creates a ChatHandler with the given dependencies.
//
// Precondition: sessMgr must be non-nil.
func NewChatHandler(sessMgr *session.Manager, broadcaster Broadcaster) *ChatHandler {
	return &ChatHandler{
		sessions:    sessMgr,
		broadcaster: broadcaster,
		summaries:   events.NewSummaryRegistry(),
	}
}

// Say broadcasts a chat message to every pilot in the sender's sector.
//
// Precondition: uid must be a valid connected pilot.
func (h *ChatHandler) Say(uid string, message string) (events.ChatMessagePayload, error) {
	return h.broadcast(uid, message, events.ChatSay)
}

// Emote broadcasts an emote action to every pilot in the sender's sector.
//
// Precondition: uid must be a valid connected pilot.
func (h *ChatHandler) Emote(uid string, action string) (events.ChatMessagePayload, error) {
	return h.broadcast(uid, action, events.ChatEmote)
}

func (h *ChatHandler) broadcast(uid, content string, kind events.ChatKind) (events.ChatMessagePayload, error) {
	sess, ok := h.sessions.GetPilot(uid)
	if !ok {
		return events.ChatMessagePayload{}, fmt.Errorf("pilot %q not found", uid)
	}

	payload := events.ChatMessagePayload{
		Sender:  sess.CharName,
		Content: content,
		Kind:    kind,
		Sector:  sess.SectorID,
	}
	if h.broadcaster != nil {
		h.broadcaster.BroadcastToSector(sess.SectorID, events.Event{
			Name:    events.ChatMessage,
			Payload: payload,
			Summary: h.summaries.Summarize(events.ChatMessage, payload),
		})
	}
	return payload, nil
}

// Who returns the list of pilot names in uid's sector.
//
// Precondition: uid must be a valid connected pilot.
func (h *ChatHandler) Who(uid string) ([]string, error) {
	sess, ok := h.sessions.GetPilot(uid)
	if !ok {
		return nil, fmt.Errorf("pilot %q not found", uid)
	}
	return h.sessions.PilotsInSector(sess.SectorID), nil
}
