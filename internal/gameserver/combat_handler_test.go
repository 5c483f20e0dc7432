package gameserver

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidreach/sectors/internal/events"
	"github.com/voidreach/sectors/internal/game/combat"
	"github.com/voidreach/sectors/internal/game/garrison"
	"github.com/voidreach/sectors/internal/game/salvage"
)

type recordingBroadcaster struct {
	mu   sync.Mutex
	byID map[events.Name]int
	last map[events.Name]events.Event
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{byID: map[events.Name]int{}, last: map[events.Name]events.Event{}}
}

func (b *recordingBroadcaster) BroadcastToSector(sectorID int, ev events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byID[ev.Name]++
	b.last[ev.Name] = ev
}

func (b *recordingBroadcaster) count(name events.Name) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.byID[name]
}

func newTestGlue(t *testing.T) (*CombatGlue, *combat.Manager, *garrison.Store, *salvage.Manager, *recordingBroadcaster) {
	t.Helper()
	mgr := combat.NewManager(time.Minute)
	store, err := garrison.NewStore(filepath.Join(t.TempDir(), "garrisons.json"))
	require.NoError(t, err)
	salv := salvage.NewManager(time.Minute)
	bc := newRecordingBroadcaster()
	glue := NewCombatGlue(mgr, store, salv, bc, nil, nil, nil)
	return glue, mgr, store, salv, bc
}

func TestCombatGlue_OnSectorEntered_StartsEncounterAgainstHostileGarrison(t *testing.T) {
	glue, mgr, store, _, bc := newTestGlue(t)
	_, err := store.Deploy(5, "pirate-1", 40, garrison.ModeOffensive, 0)
	require.NoError(t, err)

	entrant := &combat.Combatant{ID: "char-1", Kind: combat.KindCharacter, Fighters: 20, OwnerCharacterID: "char-1"}
	enc, started, err := glue.OnSectorEntered(5, entrant)
	require.NoError(t, err)
	require.True(t, started)
	require.NotNil(t, enc)
	assert.Len(t, enc.Participants, 2)
	assert.Equal(t, 1, bc.count(events.CombatRoundWaiting))

	_, stillActive := mgr.FindEncounterInSector(5)
	assert.True(t, stillActive)
}

func TestCombatGlue_OnSectorEntered_SkipsSameOwnerGarrison(t *testing.T) {
	glue, _, store, _, _ := newTestGlue(t)
	_, err := store.Deploy(5, "char-1", 40, garrison.ModeDefensive, 0)
	require.NoError(t, err)

	entrant := &combat.Combatant{ID: "char-1", Kind: combat.KindCharacter, Fighters: 20, OwnerCharacterID: "char-1"}
	enc, started, err := glue.OnSectorEntered(5, entrant)
	require.NoError(t, err)
	assert.False(t, started)
	assert.Nil(t, enc)
}

func TestCombatGlue_OnSectorEntered_SkipsSameCorporationGarrison(t *testing.T) {
	mgr := combat.NewManager(time.Minute)
	store, err := garrison.NewStore(filepath.Join(t.TempDir(), "garrisons.json"))
	require.NoError(t, err)
	salv := salvage.NewManager(time.Minute)
	bc := newRecordingBroadcaster()
	corp := garrison.CorporationLookup(func(characterID string) (string, bool) {
		return "corp-alpha", true
	})
	glue := NewCombatGlue(mgr, store, salv, bc, corp, nil, nil)

	_, err = store.Deploy(5, "ally-1", 40, garrison.ModeOffensive, 0)
	require.NoError(t, err)

	entrant := &combat.Combatant{ID: "char-1", Kind: combat.KindCharacter, Fighters: 20, OwnerCharacterID: "char-1"}
	enc, started, err := glue.OnSectorEntered(5, entrant)
	require.NoError(t, err)
	assert.False(t, started)
	assert.Nil(t, enc)
}

func TestCombatGlue_PayToll_SuppressesTollAttack(t *testing.T) {
	glue, _, store, _, _ := newTestGlue(t)
	_, err := store.Deploy(5, "tollkeeper", 100, garrison.ModeToll, 500)
	require.NoError(t, err)

	entrant := &combat.Combatant{ID: "char-1", Kind: combat.KindCharacter, Fighters: 30, OwnerCharacterID: "char-1"}
	enc, started, err := glue.OnSectorEntered(5, entrant)
	require.NoError(t, err)
	require.True(t, started)

	garrisonID := "garrison:tollkeeper"
	enc.RoundNumber = 2 // past the demand round
	require.NoError(t, glue.PayToll(enc.ID, garrisonID))

	action := glue.DecideGarrisonAction(enc, garrisonID, garrison.ModeToll)
	assert.Equal(t, combat.ActionBrace, action.Kind)
}

func TestCombatGlue_DecideGarrisonAction_AttacksWhenTollUnpaid(t *testing.T) {
	glue, _, store, _, _ := newTestGlue(t)
	_, err := store.Deploy(5, "tollkeeper", 100, garrison.ModeToll, 500)
	require.NoError(t, err)

	entrant := &combat.Combatant{ID: "char-1", Kind: combat.KindCharacter, Fighters: 30, OwnerCharacterID: "char-1"}
	enc, started, err := glue.OnSectorEntered(5, entrant)
	require.NoError(t, err)
	require.True(t, started)

	enc.RoundNumber = 2
	action := glue.DecideGarrisonAction(enc, "garrison:tollkeeper", garrison.ModeToll)
	assert.Equal(t, combat.ActionAttack, action.Kind)
	assert.Equal(t, "char-1", action.TargetID)
}

func TestCombatGlue_OnCombatEnded_SyncsGarrisonAndDropsSalvage(t *testing.T) {
	glue, mgr, store, salv, bc := newTestGlue(t)
	_, err := store.Deploy(5, "pirate-1", 40, garrison.ModeOffensive, 0)
	require.NoError(t, err)

	entrant := &combat.Combatant{ID: "char-1", Kind: combat.KindCharacter, Fighters: 20, OwnerCharacterID: "char-1"}
	enc, started, err := glue.OnSectorEntered(5, entrant)
	require.NoError(t, err)
	require.True(t, started)

	// Force a defeat: the character's fighters are wiped out, the
	// garrison survives. Directly mutating participant state and
	// invoking the manager's resolution path keeps this test aligned
	// with how SubmitAction drives a round to its terminal outcome.
	entrant.Fighters = 0
	_, err = mgr.SubmitAction(enc.ID, "char-1", combat.RoundAction{Kind: combat.ActionBrace})
	require.NoError(t, err)
	_, err = mgr.SubmitAction(enc.ID, "garrison:pirate-1", combat.RoundAction{Kind: combat.ActionBrace})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return bc.count(events.CombatEnded) == 1
	}, time.Second, 5*time.Millisecond)

	containers := salv.ListSector(5)
	require.Len(t, containers, 1)
	assert.Equal(t, "char-1", containers[0].Metadata["defeated_character_id"])

	garrisons := store.ListSector(5)
	require.Len(t, garrisons, 1)
	assert.Equal(t, 40, garrisons[0].Fighters)
}
