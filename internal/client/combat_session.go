package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/voidreach/sectors/internal/events"
)

// SessionState is the per-character combat observation state machine.
type SessionState string

const (
	StateIdle     SessionState = "idle"
	StateInCombat SessionState = "in_combat"
	StateEnded    SessionState = "ended"
)

// Action names surfaced by AvailableActions.
const (
	ActionAttack = "ATTACK"
	ActionBrace  = "BRACE"
	ActionFlee   = "FLEE"
	ActionPay    = "pay"
)

// ParticipantState is the Session's local copy of one combatant's vitals.
type ParticipantState struct {
	ID       string
	Name     string
	Fighters int
	Shields  int
}

// GarrisonState mirrors a toll/offensive/defensive garrison occupying the
// encounter's sector.
type GarrisonState struct {
	Mode       string
	Fighters   int
	TollAmount int
	Paid       bool
}

// Snapshot is an immutable copy of a Session's state at a point in time,
// safe to read without holding the Session's lock.
type Snapshot struct {
	State             SessionState
	CombatID          string
	SectorID          int
	Round             int
	Deadline          time.Time
	PlayerCombatantID string
	Participants      map[string]ParticipantState
	Garrison          *GarrisonState
	LastEvent         string
}

// CombatSession is a per-character client-side observer: it tracks the
// state of the character's current (or most recent) encounter from the
// event stream and exposes blocking awaitables for agent code. A single
// lock protects mutation; a generation channel wakes waiters on every
// state transition; a separate queue channel decouples the socket reader
// from consumers of individual combat events.
type CombatSession struct {
	characterID string

	mu sync.Mutex
	// notifyCh is closed and replaced on every state transition. Waiters
	// capture the current channel under the lock, release it, and select
	// on its closure alongside ctx.Done — a cancellable substitute for
	// sync.Cond.Wait, which has no way to honor a context deadline.
	notifyCh chan struct{}

	state             SessionState
	combatID          string
	sectorID          int
	round             int
	deadline          time.Time
	playerCombatantID string
	participants      map[string]ParticipantState
	garrison          *GarrisonState
	lastEvent         string
	tollPaid          bool

	seenOutcomes map[string]bool // dedup key: combat_id|round|kind

	lastOccupantSector int
	occupantGen        int

	queue chan events.Event
}

// NewCombatSession builds an idle session for characterID.
func NewCombatSession(characterID string) *CombatSession {
	return &CombatSession{
		characterID:  characterID,
		state:        StateIdle,
		participants: make(map[string]ParticipantState),
		seenOutcomes: make(map[string]bool),
		queue:        make(chan events.Event, 128),
		notifyCh:     make(chan struct{}),
	}
}

// notifyLocked wakes every waiter blocked in waitLocked. Must be called
// with s.mu held.
func (s *CombatSession) notifyLocked() {
	close(s.notifyCh)
	s.notifyCh = make(chan struct{})
}

// Attach registers the session's handlers on c for the fixed event set this
// module observes.
func (s *CombatSession) Attach(c *Client) {
	c.OnEvent(func(ev events.Event) {
		switch ev.Name {
		case events.CombatRoundWaiting:
			if p, ok := ev.Payload.(events.CombatRoundWaitingPayload); ok {
				s.onRoundWaiting(p)
			}
		case events.CombatRoundResolved:
			if p, ok := ev.Payload.(events.CombatRoundResolvedPayload); ok {
				s.onRoundResolved(p)
			}
		case events.CombatEnded:
			if p, ok := ev.Payload.(events.CombatEndedPayload); ok {
				s.onCombatEnded(p)
			}
		case events.CharacterMoved:
			if p, ok := ev.Payload.(events.CharacterMovedPayload); ok {
				s.onCharacterMoved(p)
			}
		case events.StatusUpdate, events.SectorUpdate:
			// observed for occupancy bookkeeping only; no state-machine effect.
		}
	})
}

func (s *CombatSession) matches(combatID, combatantID, owner string) bool {
	if combatantID == s.characterID || owner == s.characterID {
		return true
	}
	return s.combatID != "" && combatID == s.combatID
}

func (s *CombatSession) onRoundWaiting(p events.CombatRoundWaitingPayload) {
	s.mu.Lock()
	defer func() {
		s.notifyLocked()
		s.mu.Unlock()
	}()

	isNewCombat := p.CombatID != s.combatID
	if isNewCombat {
		s.resetForNewCombatLocked(p)
	}
	s.round = p.Round
	if p.Deadline != "" {
		if t, err := time.Parse(time.RFC3339, p.Deadline); err == nil {
			s.deadline = t
		}
	}
	s.applyParticipantsLocked(p.Participants)
	s.applyGarrisonLocked(p.Garrison)
	s.state = StateInCombat
	s.lastEvent = "round_waiting"
	s.enqueue(events.Event{Name: events.CombatRoundWaiting, Payload: p})
}

func (s *CombatSession) resetForNewCombatLocked(p events.CombatRoundWaitingPayload) {
	s.combatID = p.CombatID
	s.sectorID = p.Sector.ID
	s.tollPaid = false
	s.participants = make(map[string]ParticipantState)
	s.garrison = nil
	s.playerCombatantID = s.characterID
}

func (s *CombatSession) applyParticipantsLocked(views []events.ParticipantView) {
	for _, v := range views {
		existing, ok := s.participants[v.Name]
		if !ok {
			existing = ParticipantState{ID: v.Name, Name: v.Name}
		}
		if v.Ship != nil {
			existing.Fighters = v.Ship.Fighters
			existing.Shields = v.Ship.Shields
		} else if v.FighterLoss != nil {
			existing.Fighters -= *v.FighterLoss
			if existing.Fighters < 0 {
				existing.Fighters = 0
			}
		}
		s.participants[v.Name] = existing
	}
}

func (s *CombatSession) applyGarrisonLocked(g *events.GarrisonView) {
	if g == nil {
		return
	}
	gs := &GarrisonState{Mode: g.Mode, Fighters: g.Fighters, TollAmount: g.TollAmount, Paid: s.tollPaid}
	if g.FighterLoss != nil {
		gs.Fighters -= *g.FighterLoss
		if gs.Fighters < 0 {
			gs.Fighters = 0
		}
	}
	s.garrison = gs
}

func (s *CombatSession) onRoundResolved(p events.CombatRoundResolvedPayload) {
	if !s.matches(p.CombatID, "", "") {
		return
	}
	s.mu.Lock()
	defer func() {
		s.notifyLocked()
		s.mu.Unlock()
	}()

	dedupKey := fmt.Sprintf("%s|%d|round_resolved", p.CombatID, p.Round)
	if s.seenOutcomes[dedupKey] {
		return
	}
	s.seenOutcomes[dedupKey] = true

	s.round = p.Round
	s.applyParticipantsLocked(p.Participants)
	s.applyGarrisonLocked(p.Garrison)
	s.state = StateInCombat
	s.lastEvent = "round_resolved"
	s.enqueue(events.Event{Name: events.CombatRoundResolved, Payload: p})
}

func (s *CombatSession) onCombatEnded(p events.CombatEndedPayload) {
	if !s.matches(p.CombatID, "", "") {
		return
	}
	s.mu.Lock()
	defer func() {
		s.notifyLocked()
		s.mu.Unlock()
	}()

	dedupKey := fmt.Sprintf("%s|%d|ended", p.CombatID, p.Round)
	if s.seenOutcomes[dedupKey] {
		return
	}
	s.seenOutcomes[dedupKey] = true

	s.applyParticipantsLocked(p.Participants)
	s.applyGarrisonLocked(p.Garrison)
	s.state = StateEnded
	s.tollPaid = false
	s.lastEvent = "combat.ended"
	s.enqueue(events.Event{Name: events.CombatEnded, Payload: p})
}

func (s *CombatSession) onCharacterMoved(p events.CharacterMovedPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ToSector == s.lastOccupantSector && p.Movement != "depart" {
		return
	}
	s.lastOccupantSector = p.ToSector
	s.occupantGen++
	s.notifyLocked()
}

// enqueue must be called with s.mu held; it never blocks.
func (s *CombatSession) enqueue(ev events.Event) {
	select {
	case s.queue <- ev:
	default:
	}
}

// Snapshot returns a consistent copy of the session's current state.
func (s *CombatSession) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *CombatSession) snapshotLocked() Snapshot {
	participants := make(map[string]ParticipantState, len(s.participants))
	for k, v := range s.participants {
		participants[k] = v
	}
	var garrison *GarrisonState
	if s.garrison != nil {
		g := *s.garrison
		garrison = &g
	}
	return Snapshot{
		State:             s.state,
		CombatID:          s.combatID,
		SectorID:          s.sectorID,
		Round:             s.round,
		Deadline:          s.deadline,
		PlayerCombatantID: s.playerCombatantID,
		Participants:      participants,
		Garrison:          garrison,
		LastEvent:         s.lastEvent,
	}
}

// AvailableActions derives the action set offered to the character for the
// current state: ATTACK when the player has fighters and an opponent
// exists; BRACE and FLEE are always offered during combat; "pay" is
// prepended when an unpaid toll-mode garrison with fighters opposes the
// player in the sector.
func (s *CombatSession) AvailableActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInCombat {
		return nil
	}

	actions := make([]string, 0, 4)
	self, hasSelf := s.participants[s.playerCombatantID]
	hasOpponent := false
	for id := range s.participants {
		if id == s.playerCombatantID {
			continue
		}
		hasOpponent = true
	}
	if s.garrison != nil && s.garrison.Fighters > 0 {
		hasOpponent = true
	}

	if s.garrison != nil && s.garrison.Mode == "toll" && s.garrison.Fighters > 0 && !s.garrison.Paid && hasOpponent {
		actions = append(actions, ActionPay)
	}
	if hasSelf && self.Fighters > 0 && hasOpponent {
		actions = append(actions, ActionAttack)
	}
	actions = append(actions, ActionBrace, ActionFlee)
	return actions
}

// ApplyOutcomePayload lets a caller feed in a round outcome the transport
// already delivered as a direct RPC response, without re-processing the
// server's duplicate push of the same event. Deduplication matches the
// event handlers: (combat_id, round, kind).
func (s *CombatSession) ApplyOutcomePayload(payload any, ended bool) {
	switch p := payload.(type) {
	case events.CombatRoundResolvedPayload:
		if ended {
			s.onCombatEnded(events.CombatEndedPayload{CombatRoundResolvedPayload: p})
			return
		}
		s.onRoundResolved(p)
	case events.CombatEndedPayload:
		s.onCombatEnded(p)
	case events.CombatRoundWaitingPayload:
		s.onRoundWaiting(p)
	}
}

// WaitForCombatStart blocks until the session transitions to in_combat.
func (s *CombatSession) WaitForCombatStart(ctx context.Context) (Snapshot, error) {
	return s.waitForState(ctx, StateInCombat)
}

// WaitForCombatEnd blocks until the session transitions to ended.
func (s *CombatSession) WaitForCombatEnd(ctx context.Context) (Snapshot, error) {
	return s.waitForState(ctx, StateEnded)
}

func (s *CombatSession) waitForState(ctx context.Context, target SessionState) (Snapshot, error) {
	s.mu.Lock()
	for s.state != target {
		ch := s.notifyCh
		s.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
		s.mu.Lock()
	}
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

// WaitForOtherPlayer blocks until a character-movement event is observed
// for a character other than the bound one.
func (s *CombatSession) WaitForOtherPlayer(ctx context.Context) error {
	return s.waitForOccupantGenChange(ctx)
}

// WaitForOccupantChange blocks until the sector occupant set changes (an
// arrival or departure is observed).
func (s *CombatSession) WaitForOccupantChange(ctx context.Context) error {
	return s.waitForOccupantGenChange(ctx)
}

func (s *CombatSession) waitForOccupantGenChange(ctx context.Context) error {
	s.mu.Lock()
	startGen := s.occupantGen
	for s.occupantGen == startGen {
		ch := s.notifyCh
		s.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
	}
	s.mu.Unlock()
	return nil
}

// NextCombatEvent returns the next queued combat event, blocking until one
// arrives or ctx is done.
func (s *CombatSession) NextCombatEvent(ctx context.Context) (events.Event, error) {
	select {
	case ev := <-s.queue:
		return ev, nil
	case <-ctx.Done():
		return events.Event{}, ctx.Err()
	}
}
