package combat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEncounter(id string, sector int) *Encounter {
	return &Encounter{
		ID: id, SectorID: sector,
		Participants: map[string]*Combatant{
			"a": twoShip("a", 10, 0, 5),
			"b": twoShip("b", 10, 0, 5),
		},
	}
}

func TestManager_StartEncounter_RejectsDuplicateID(t *testing.T) {
	m := NewManager(time.Minute)
	_, err := m.StartEncounter(newTestEncounter("dup", 1), false)
	require.NoError(t, err)
	_, err = m.StartEncounter(newTestEncounter("dup", 1), false)
	assert.Error(t, err)
}

func TestManager_SubmitAction_ResolvesWhenAllSubmitted(t *testing.T) {
	m := NewManager(time.Minute)
	_, err := m.StartEncounter(newTestEncounter("c1", 1), false)
	require.NoError(t, err)

	out, err := m.SubmitAction("c1", "a", RoundAction{Kind: ActionBrace})
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = m.SubmitAction("c1", "b", RoundAction{Kind: ActionBrace})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "stalemate", out.EndState)
}

func TestManager_SubmitAction_RejectsUnknownCombatant(t *testing.T) {
	m := NewManager(time.Minute)
	_, err := m.StartEncounter(newTestEncounter("c1", 1), false)
	require.NoError(t, err)

	_, err = m.SubmitAction("c1", "ghost", RoundAction{Kind: ActionBrace})
	assert.Error(t, err)
}

func TestManager_CallbacksFireOutsideLock(t *testing.T) {
	m := NewManager(time.Minute)
	var waitingCount, resolvedCount int
	var endedCount int
	var mu sync.Mutex
	done := make(chan struct{}, 1)

	m.ConfigureCallbacks(
		func(e *Encounter) {
			mu.Lock()
			waitingCount++
			mu.Unlock()
		},
		func(e *Encounter, out CombatRoundOutcome) {
			mu.Lock()
			resolvedCount++
			mu.Unlock()
		},
		func(e *Encounter, out CombatRoundOutcome) {
			mu.Lock()
			endedCount++
			mu.Unlock()
			done <- struct{}{}
		},
	)

	enc := newTestEncounter("c1", 1)
	_, err := m.StartEncounter(enc, true)
	require.NoError(t, err)

	_, err = m.SubmitAction("c1", "a", RoundAction{Kind: ActionBrace})
	require.NoError(t, err)
	_, err = m.SubmitAction("c1", "b", RoundAction{Kind: ActionBrace})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("combat-ended callback never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, waitingCount)
	assert.Equal(t, 1, resolvedCount)
	assert.Equal(t, 1, endedCount)
}

func TestManager_FindEncounterForAndInSector(t *testing.T) {
	m := NewManager(time.Minute)
	enc := newTestEncounter("c1", 7)
	_, err := m.StartEncounter(enc, false)
	require.NoError(t, err)

	found, ok := m.FindEncounterFor("a")
	require.True(t, ok)
	assert.Equal(t, "c1", found.ID)

	found, ok = m.FindEncounterInSector(7)
	require.True(t, ok)
	assert.Equal(t, "c1", found.ID)

	_, ok = m.FindEncounterInSector(999)
	assert.False(t, ok)
}

func TestManager_TimerResolvesRoundOnDeadline(t *testing.T) {
	m := NewManager(20 * time.Millisecond)
	resolved := make(chan struct{}, 1)
	m.ConfigureCallbacks(nil, func(e *Encounter, out CombatRoundOutcome) {
		resolved <- struct{}{}
	}, nil)

	_, err := m.StartEncounter(newTestEncounter("c1", 1), false)
	require.NoError(t, err)

	select {
	case <-resolved:
	case <-time.After(time.Second):
		t.Fatal("round never resolved on timeout")
	}
}
