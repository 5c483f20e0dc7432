package gameserver

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidreach/sectors/internal/game/combat"
	"github.com/voidreach/sectors/internal/game/garrison"
	"github.com/voidreach/sectors/internal/game/salvage"
	"github.com/voidreach/sectors/internal/game/session"
)

func newTestCombatHandler(t *testing.T) (*CombatHandler, *combat.Manager, *garrison.Store, *session.Manager, *CombatGlue) {
	t.Helper()
	mgr := combat.NewManager(time.Minute)
	store, err := garrison.NewStore(filepath.Join(t.TempDir(), "garrisons.json"))
	require.NoError(t, err)
	salv := salvage.NewManager(time.Minute)
	sessMgr := session.NewManager()
	bc := newRecordingBroadcaster()
	glue := NewCombatGlue(mgr, store, salv, bc, sessMgr.CorporationOf, sessMgr.DisplayName, nil)
	h := NewCombatHandler(mgr, store, sessMgr, glue)
	return h, mgr, store, sessMgr, glue
}

func TestCombatHandler_Initiate_AgainstCharacter(t *testing.T) {
	h, _, _, sessMgr, _ := newTestCombatHandler(t)
	a, err := sessMgr.AddPilot("u1", "alice", "Alice", 1, 5, 0, "player", "scout", 20)
	require.NoError(t, err)
	a.Fighters = 20
	b, err := sessMgr.AddPilot("u2", "bob", "Bob", 2, 5, 0, "player", "scout", 20)
	require.NoError(t, err)
	b.Fighters = 15

	enc, err := h.Initiate("u1", "u2", "character")
	require.NoError(t, err)
	assert.Len(t, enc.Participants, 2)
	assert.Equal(t, 5, enc.SectorID)
}

func TestCombatHandler_Initiate_AgainstMissingTargetErrors(t *testing.T) {
	h, _, _, sessMgr, _ := newTestCombatHandler(t)
	_, err := sessMgr.AddPilot("u1", "alice", "Alice", 1, 5, 0, "player", "scout", 20)
	require.NoError(t, err)

	_, err = h.Initiate("u1", "ghost", "character")
	assert.Error(t, err)
}

func TestCombatHandler_Initiate_AgainstDifferentSectorErrors(t *testing.T) {
	h, _, _, sessMgr, _ := newTestCombatHandler(t)
	_, err := sessMgr.AddPilot("u1", "alice", "Alice", 1, 5, 0, "player", "scout", 20)
	require.NoError(t, err)
	_, err = sessMgr.AddPilot("u2", "bob", "Bob", 2, 9, 0, "player", "scout", 20)
	require.NoError(t, err)

	_, err = h.Initiate("u1", "u2", "character")
	assert.Error(t, err)
}

func TestCombatHandler_Initiate_AgainstGarrison(t *testing.T) {
	h, _, store, sessMgr, _ := newTestCombatHandler(t)
	_, err := sessMgr.AddPilot("u1", "alice", "Alice", 1, 5, 0, "player", "scout", 20)
	require.NoError(t, err)
	_, err = store.Deploy(5, "pirate-1", 40, garrison.ModeOffensive, 0)
	require.NoError(t, err)

	enc, err := h.Initiate("u1", "", "garrison")
	require.NoError(t, err)
	assert.Len(t, enc.Participants, 2)
}

func TestCombatHandler_Initiate_RejectsWhenAlreadyInEncounter(t *testing.T) {
	h, _, _, sessMgr, _ := newTestCombatHandler(t)
	a, err := sessMgr.AddPilot("u1", "alice", "Alice", 1, 5, 0, "player", "scout", 20)
	require.NoError(t, err)
	a.Fighters = 20
	b, err := sessMgr.AddPilot("u2", "bob", "Bob", 2, 5, 0, "player", "scout", 20)
	require.NoError(t, err)
	b.Fighters = 20
	_, err = sessMgr.AddPilot("u3", "carol", "Carol", 3, 7, 0, "player", "scout", 20)
	require.NoError(t, err)
	_, err = sessMgr.MovePilot("u3", 5)
	require.NoError(t, err)

	_, err = h.Initiate("u1", "u2", "character")
	require.NoError(t, err)

	_, err = h.Initiate("u1", "u3", "character")
	assert.Error(t, err)
}

func TestCombatHandler_Action_SubmitsAttack(t *testing.T) {
	h, mgr, _, sessMgr, _ := newTestCombatHandler(t)
	a, err := sessMgr.AddPilot("u1", "alice", "Alice", 1, 5, 0, "player", "scout", 20)
	require.NoError(t, err)
	a.Fighters = 20
	b, err := sessMgr.AddPilot("u2", "bob", "Bob", 2, 5, 0, "player", "scout", 20)
	require.NoError(t, err)
	b.Fighters = 15

	enc, err := h.Initiate("u1", "u2", "character")
	require.NoError(t, err)

	outcome, err := h.Action(enc.ID, "u1", "attack", 10, "u2", 0)
	require.NoError(t, err)
	assert.Nil(t, outcome, "round should not resolve until both participants submit")

	outcome, err = h.Action(enc.ID, "u2", "brace", 0, "", 0)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, 1, outcome.RoundNumber)

	_ = mgr
}

func TestCombatHandler_Action_UnrecognizedActionErrors(t *testing.T) {
	h, _, _, sessMgr, _ := newTestCombatHandler(t)
	a, err := sessMgr.AddPilot("u1", "alice", "Alice", 1, 5, 0, "player", "scout", 20)
	require.NoError(t, err)
	a.Fighters = 20
	b, err := sessMgr.AddPilot("u2", "bob", "Bob", 2, 5, 0, "player", "scout", 20)
	require.NoError(t, err)
	b.Fighters = 20

	enc, err := h.Initiate("u1", "u2", "character")
	require.NoError(t, err)

	_, err = h.Action(enc.ID, "u1", "dance", 0, "", 0)
	assert.Error(t, err)
}

func TestCombatHandler_Action_PaySuppressesTollAndBraces(t *testing.T) {
	h, _, store, sessMgr, _ := newTestCombatHandler(t)
	_, err := sessMgr.AddPilot("u1", "alice", "Alice", 1, 5, 0, "player", "scout", 30)
	require.NoError(t, err)
	_, err = store.Deploy(5, "tollkeeper", 100, garrison.ModeToll, 500)
	require.NoError(t, err)

	enc, err := h.Initiate("u1", "", "garrison")
	require.NoError(t, err)

	outcome, err := h.Action(enc.ID, "u1", "pay", 0, "", 0)
	require.NoError(t, err)
	assert.Nil(t, outcome, "paying still leaves the garrison's own action pending")
}

func TestCombatHandler_Action_UnknownEncounterErrors(t *testing.T) {
	h, _, _, _, _ := newTestCombatHandler(t)
	_, err := h.Action("ghost-combat", "u1", "brace", 0, "", 0)
	assert.Error(t, err)
}
