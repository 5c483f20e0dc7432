package gameserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidreach/sectors/internal/events"
	"github.com/voidreach/sectors/internal/game/session"
)

type fakeBroadcaster struct {
	sectorID int
	events   []events.Event
}

func (f *fakeBroadcaster) BroadcastToSector(sectorID int, ev events.Event) {
	f.sectorID = sectorID
	f.events = append(f.events, ev)
}

func TestChatHandler_Say(t *testing.T) {
	sessMgr := session.NewManager()
	bc := &fakeBroadcaster{}
	h := NewChatHandler(sessMgr, bc)

	_, err := sessMgr.AddPilot("u1", "Alice", "Alice", 0, 4, 0, "player", "scout", 20)
	require.NoError(t, err)

	payload, err := h.Say("u1", "hello world")
	require.NoError(t, err)
	assert.Equal(t, "Alice", payload.Sender)
	assert.Equal(t, "hello world", payload.Content)
	assert.Equal(t, events.ChatSay, payload.Kind)
	assert.Equal(t, 4, payload.Sector)

	require.Len(t, bc.events, 1)
	assert.Equal(t, events.ChatMessage, bc.events[0].Name)
	assert.Equal(t, 4, bc.sectorID)
}

func TestChatHandler_Say_NotFound(t *testing.T) {
	sessMgr := session.NewManager()
	h := NewChatHandler(sessMgr, nil)

	_, err := h.Say("unknown", "hello")
	assert.Error(t, err)
}

func TestChatHandler_Emote(t *testing.T) {
	sessMgr := session.NewManager()
	h := NewChatHandler(sessMgr, nil)

	_, err := sessMgr.AddPilot("u1", "Alice", "Alice", 0, 4, 0, "player", "scout", 20)
	require.NoError(t, err)

	payload, err := h.Emote("u1", "waves")
	require.NoError(t, err)
	assert.Equal(t, "Alice", payload.Sender)
	assert.Equal(t, "waves", payload.Content)
	assert.Equal(t, events.ChatEmote, payload.Kind)
}

func TestChatHandler_Who(t *testing.T) {
	sessMgr := session.NewManager()
	h := NewChatHandler(sessMgr, nil)

	_, err := sessMgr.AddPilot("u1", "Alice", "Alice", 0, 4, 0, "player", "scout", 20)
	require.NoError(t, err)
	_, err = sessMgr.AddPilot("u2", "Bob", "Bob", 0, 4, 0, "player", "scout", 20)
	require.NoError(t, err)

	pilots, err := h.Who("u1")
	require.NoError(t, err)
	assert.Len(t, pilots, 2)
	assert.Contains(t, pilots, "Alice")
	assert.Contains(t, pilots, "Bob")
}
