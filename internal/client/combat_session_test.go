package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidreach/sectors/internal/events"
)

func waitingPayload(combatID string, round int) events.CombatRoundWaitingPayload {
	return events.CombatRoundWaitingPayload{
		CombatID: combatID,
		Round:    round,
		Participants: []events.ParticipantView{
			{Name: "pilot-a", Ship: &events.ShipPayload{Fighters: 50, Shields: 20}},
			{Name: "pilot-b"},
		},
	}
}

func TestCombatSession_RoundWaitingTransitionsToInCombat(t *testing.T) {
	s := NewCombatSession("pilot-a")
	s.onRoundWaiting(waitingPayload("c1", 1))

	snap := s.Snapshot()
	assert.Equal(t, StateInCombat, snap.State)
	assert.Equal(t, "c1", snap.CombatID)
	assert.Equal(t, 1, snap.Round)
	assert.Equal(t, 50, snap.Participants["pilot-a"].Fighters)
}

func TestCombatSession_NewCombatIDReplacesOldState(t *testing.T) {
	s := NewCombatSession("pilot-a")
	s.onRoundWaiting(waitingPayload("c1", 3))
	s.onRoundWaiting(waitingPayload("c2", 1))

	snap := s.Snapshot()
	assert.Equal(t, "c2", snap.CombatID)
	assert.Equal(t, 1, snap.Round)
}

func TestCombatSession_RoundResolvedUpdatesFighterLoss(t *testing.T) {
	s := NewCombatSession("pilot-a")
	s.onRoundWaiting(waitingPayload("c1", 1))

	loss := 10
	s.onRoundResolved(events.CombatRoundResolvedPayload{
		CombatID: "c1", Round: 1,
		Participants: []events.ParticipantView{{Name: "pilot-a", FighterLoss: &loss}},
	})

	snap := s.Snapshot()
	assert.Equal(t, StateInCombat, snap.State)
	assert.Equal(t, 40, snap.Participants["pilot-a"].Fighters)
}

func TestCombatSession_RoundResolvedDeduplicatesByRound(t *testing.T) {
	s := NewCombatSession("pilot-a")
	s.onRoundWaiting(waitingPayload("c1", 1))

	loss := 10
	resolved := events.CombatRoundResolvedPayload{
		CombatID: "c1", Round: 1,
		Participants: []events.ParticipantView{{Name: "pilot-a", FighterLoss: &loss}},
	}
	s.onRoundResolved(resolved)
	s.onRoundResolved(resolved) // redelivered — must not apply the loss twice

	snap := s.Snapshot()
	assert.Equal(t, 40, snap.Participants["pilot-a"].Fighters)
}

func TestCombatSession_CombatEndedTransitionsToEnded(t *testing.T) {
	s := NewCombatSession("pilot-a")
	s.onRoundWaiting(waitingPayload("c1", 1))
	s.onCombatEnded(events.CombatEndedPayload{
		CombatRoundResolvedPayload: events.CombatRoundResolvedPayload{CombatID: "c1", Round: 2, Result: "victory"},
	})

	snap := s.Snapshot()
	assert.Equal(t, StateEnded, snap.State)
	assert.Equal(t, "combat.ended", snap.LastEvent)
}

func TestCombatSession_AvailableActions_DuringCombatOffersAttackBraceFlee(t *testing.T) {
	s := NewCombatSession("pilot-a")
	s.onRoundWaiting(waitingPayload("c1", 1))
	loss := 0
	s.onRoundResolved(events.CombatRoundResolvedPayload{
		CombatID: "c1", Round: 1,
		Participants: []events.ParticipantView{
			{Name: "pilot-a", Ship: &events.ShipPayload{Fighters: 50}},
			{Name: "pilot-b", FighterLoss: &loss},
		},
	})
	actions := s.AvailableActions()
	assert.Contains(t, actions, ActionAttack)
	assert.Contains(t, actions, ActionBrace)
	assert.Contains(t, actions, ActionFlee)
	assert.NotContains(t, actions, ActionPay)
}

func TestCombatSession_AvailableActions_UnpaidTollPrependsPay(t *testing.T) {
	s := NewCombatSession("pilot-a")
	p := waitingPayload("c1", 1)
	p.Garrison = &events.GarrisonView{Mode: "toll", Fighters: 100, TollAmount: 500}
	s.onRoundWaiting(p)

	actions := s.AvailableActions()
	assert.Equal(t, ActionPay, actions[0])
}

func TestCombatSession_AvailableActions_IdleReturnsNil(t *testing.T) {
	s := NewCombatSession("pilot-a")
	assert.Nil(t, s.AvailableActions())
}

func TestCombatSession_WaitForCombatStart_ResolvesOnTransition(t *testing.T) {
	s := NewCombatSession("pilot-a")
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.onRoundWaiting(waitingPayload("c1", 1))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := s.WaitForCombatStart(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateInCombat, snap.State)
}

func TestCombatSession_WaitForCombatStart_TimesOutWithoutEvent(t *testing.T) {
	s := NewCombatSession("pilot-a")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.WaitForCombatStart(ctx)
	assert.Error(t, err)
}

func TestCombatSession_WaitForCombatEnd_ResolvesOnEnded(t *testing.T) {
	s := NewCombatSession("pilot-a")
	s.onRoundWaiting(waitingPayload("c1", 1))
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.onCombatEnded(events.CombatEndedPayload{
			CombatRoundResolvedPayload: events.CombatRoundResolvedPayload{CombatID: "c1", Round: 2},
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := s.WaitForCombatEnd(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateEnded, snap.State)
}

func TestCombatSession_WaitForOccupantChange_ResolvesOnMovement(t *testing.T) {
	s := NewCombatSession("pilot-a")
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.onCharacterMoved(events.CharacterMovedPayload{Player: events.PlayerRef{ID: "pilot-b"}, ToSector: 7})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.WaitForOccupantChange(ctx)
	require.NoError(t, err)
}

func TestCombatSession_ApplyOutcomePayload_DeduplicatesAgainstEventHandler(t *testing.T) {
	s := NewCombatSession("pilot-a")
	s.onRoundWaiting(waitingPayload("c1", 1))

	loss := 15
	resolved := events.CombatRoundResolvedPayload{
		CombatID: "c1", Round: 1,
		Participants: []events.ParticipantView{{Name: "pilot-a", FighterLoss: &loss}},
	}
	s.ApplyOutcomePayload(resolved, false)
	s.onRoundResolved(resolved) // the server's own push of the same round — must be a no-op

	snap := s.Snapshot()
	assert.Equal(t, 35, snap.Participants["pilot-a"].Fighters)
}

func TestCombatSession_NextCombatEvent_DeliversInOrder(t *testing.T) {
	s := NewCombatSession("pilot-a")
	s.onRoundWaiting(waitingPayload("c1", 1))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev, err := s.NextCombatEvent(ctx)
	require.NoError(t, err)
	assert.Equal(t, events.CombatRoundWaiting, ev.Name)
}
