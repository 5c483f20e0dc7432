package combat

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// RoundWaitingFunc is invoked when an encounter starts, or is resolved into
// a new round, and is now waiting on actions again.
type RoundWaitingFunc func(encounter *Encounter)

// RoundResolvedFunc is invoked every time a round finishes resolving,
// whether or not the encounter ended.
type RoundResolvedFunc func(encounter *Encounter, outcome CombatRoundOutcome)

// CombatEndedFunc is invoked once, when an encounter reaches a terminal
// end state. It is dispatched detached from the resolution path (in its own
// goroutine) so a slow listener cannot stall the next round of some other
// encounter.
type CombatEndedFunc func(encounter *Encounter, outcome CombatRoundOutcome)

var terminalStates = map[string]bool{
	"mutual_defeat": true,
	"stalemate":     true,
	"victory":       true,
}

func isTerminalState(endState string) bool {
	if endState == "" {
		return false
	}
	if terminalStates[endState] {
		return true
	}
	return hasSuffix(endState, "_defeated") || hasSuffix(endState, "_fled")
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// Manager coordinates every active encounter: round deadlines, action
// submission, and the callback fan-out a caller wires up to emit events.
// Exactly one RoundTimer runs per active encounter at a time.
type Manager struct {
	mu           sync.Mutex
	active       map[string]*Encounter
	completed    map[string]*Encounter
	timers       map[string]*RoundTimer
	roundTimeout time.Duration

	onRoundWaiting  RoundWaitingFunc
	onRoundResolved RoundResolvedFunc
	onCombatEnded   CombatEndedFunc
}

// NewManager builds a Manager with the given default round timeout.
func NewManager(roundTimeout time.Duration) *Manager {
	return &Manager{
		active:       make(map[string]*Encounter),
		completed:    make(map[string]*Encounter),
		timers:       make(map[string]*RoundTimer),
		roundTimeout: roundTimeout,
	}
}

// ConfigureCallbacks wires or rewires the manager's event hooks. A nil
// argument leaves the existing hook (if any) untouched.
func (m *Manager) ConfigureCallbacks(onWaiting RoundWaitingFunc, onResolved RoundResolvedFunc, onEnded CombatEndedFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if onWaiting != nil {
		m.onRoundWaiting = onWaiting
	}
	if onResolved != nil {
		m.onRoundResolved = onResolved
	}
	if onEnded != nil {
		m.onCombatEnded = onEnded
	}
}

// StartEncounter registers a new encounter and begins waiting for round 1
// actions. If encounter.BaseSeed is zero it is derived from the encounter
// ID so repeated runs of the same encounter ID reproduce the same rounds.
func (m *Manager) StartEncounter(encounter *Encounter, emitWaiting bool) (*Encounter, error) {
	m.mu.Lock()
	if _, exists := m.active[encounter.ID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("combat: encounter already exists: %s", encounter.ID)
	}
	delete(m.completed, encounter.ID)
	if encounter.BaseSeed == 0 {
		encounter.BaseSeed = seedFromID(encounter.ID)
	}
	encounter.RoundNumber = 1
	encounter.PendingActions = make(map[string]RoundAction)
	encounter.Ended = false
	encounter.EndState = ""
	encounter.Deadline = m.nextDeadline()
	m.active[encounter.ID] = encounter
	m.scheduleTimeoutLocked(encounter)
	m.mu.Unlock()

	if emitWaiting {
		m.emitRoundWaiting(encounter)
	}
	return encounter, nil
}

// SubmitAction records or replaces a combatant's action for the current
// round. When every participant has submitted, the round resolves
// synchronously and the outcome is returned; otherwise SubmitAction returns
// (nil, nil).
func (m *Manager) SubmitAction(combatID, combatantID string, action RoundAction) (*CombatRoundOutcome, error) {
	m.mu.Lock()
	encounter, ok := m.active[combatID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("combat: unknown encounter: %s", combatID)
	}
	if encounter.Ended {
		m.mu.Unlock()
		return nil, fmt.Errorf("combat: encounter already ended: %s", combatID)
	}
	if _, ok := encounter.Participants[combatantID]; !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("combat: combatant %s not part of encounter %s", combatantID, combatID)
	}
	if action.Kind == ActionAttack {
		if action.TargetID == "" {
			m.mu.Unlock()
			return nil, fmt.Errorf("combat: attack action requires a target")
		}
		if _, ok := encounter.Participants[action.TargetID]; !ok {
			m.mu.Unlock()
			return nil, fmt.Errorf("combat: target %s not part of encounter %s", action.TargetID, combatID)
		}
	} else {
		action.TargetID = ""
	}
	if action.Commit < 0 {
		action.Commit = 0
	}
	action.SubmittedAt = time.Now()
	encounter.PendingActions[combatantID] = action
	roundReady := len(encounter.PendingActions) == len(encounter.Participants)
	m.mu.Unlock()

	if roundReady {
		return m.resolveRound(combatID)
	}
	return nil, nil
}

// GetEncounter returns an active or completed encounter by ID.
func (m *Manager) GetEncounter(combatID string) (*Encounter, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.active[combatID]; ok {
		return e, true
	}
	e, ok := m.completed[combatID]
	return e, ok
}

// FindEncounterFor returns the active encounter a combatant is currently
// part of, if any.
func (m *Manager) FindEncounterFor(combatantID string) (*Encounter, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.active {
		if _, ok := e.Participants[combatantID]; ok {
			return e, true
		}
	}
	return nil, false
}

// FindEncounterInSector returns the active encounter occupying a sector, if
// any. At most one encounter may occupy a sector at a time.
func (m *Manager) FindEncounterInSector(sectorID int) (*Encounter, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.active {
		if e.SectorID == sectorID {
			return e, true
		}
	}
	return nil, false
}

// AddParticipant joins a new combatant into an already-running encounter
// (used when a garrison is discovered mid-round, or a second ship arrives).
func (m *Manager) AddParticipant(combatID string, c *Combatant) (*Encounter, error) {
	m.mu.Lock()
	encounter, ok := m.active[combatID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("combat: unknown encounter: %s", combatID)
	}
	if encounter.Ended {
		m.mu.Unlock()
		return nil, fmt.Errorf("combat: cannot add participant to completed encounter")
	}
	if _, exists := encounter.Participants[c.ID]; !exists {
		encounter.Participants[c.ID] = c
	}
	m.mu.Unlock()

	m.emitRoundWaiting(encounter)
	return encounter, nil
}

// CancelEncounter removes an encounter (active or completed) and stops its
// timer without emitting any callbacks.
func (m *Manager) CancelEncounter(combatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, combatID)
	delete(m.completed, combatID)
	m.cancelTimerLocked(combatID)
}

// EmitRoundWaiting re-fires the waiting callback for an already-active
// encounter, e.g. after a reconnecting client needs to be caught up.
func (m *Manager) EmitRoundWaiting(combatID string) {
	m.mu.Lock()
	encounter, ok := m.active[combatID]
	m.mu.Unlock()
	if ok {
		m.emitRoundWaiting(encounter)
	}
}

func (m *Manager) resolveRound(combatID string) (*CombatRoundOutcome, error) {
	type callback struct {
		kind     string
		encounter *Encounter
		outcome  CombatRoundOutcome
	}
	var callbacks []callback

	m.mu.Lock()
	encounter, ok := m.active[combatID]
	if !ok || encounter.Ended {
		m.mu.Unlock()
		return nil, nil
	}

	actionMap := make(map[string]RoundAction, len(encounter.Participants))
	ids := make([]string, 0, len(encounter.Participants))
	for pid := range encounter.Participants {
		ids = append(ids, pid)
	}
	sort.Strings(ids)
	for _, pid := range ids {
		if action, ok := encounter.PendingActions[pid]; ok {
			actionMap[pid] = action
		} else {
			actionMap[pid] = RoundAction{Kind: ActionBrace, TimedOut: true}
		}
	}

	m.cancelTimerLocked(combatID)

	src := NewDeterministicSource(encounter.BaseSeed, encounter.RoundNumber)
	outcome := ResolveRound(encounter, actionMap, src)

	log := RoundLog{
		RoundNumber:     encounter.RoundNumber,
		Actions:         outcome.EffectiveActions,
		Hits:            outcome.Hits,
		OffensiveLosses: outcome.OffensiveLosses,
		DefensiveLosses: outcome.DefensiveLosses,
		ShieldLoss:      outcome.ShieldLoss,
		Result:          outcome.EndState,
		Timestamp:       time.Now(),
	}
	encounter.Logs = append(encounter.Logs, log)

	deltas := make(map[string]Delta, len(ids))
	for _, pid := range ids {
		before := encounter.Participants[pid]
		deltas[pid] = Delta{
			Fighters: outcome.FightersRemaining[pid] - before.Fighters,
			Shields:  outcome.ShieldsRemaining[pid] - before.Shields,
		}
		before.Fighters = outcome.FightersRemaining[pid]
		before.Shields = outcome.ShieldsRemaining[pid]
	}
	outcome.ParticipantDeltas = deltas

	for pid, fled := range outcome.FleeResults {
		if !fled {
			continue
		}
		delete(encounter.Participants, pid)
		delete(encounter.PendingActions, pid)
	}
	encounter.PendingActions = make(map[string]RoundAction)

	roundResult := outcome.EndState
	if isTerminalState(roundResult) {
		encounter.Ended = true
		encounter.EndState = roundResult
		callbacks = append(callbacks, callback{"resolved", encounter, outcome})
		callbacks = append(callbacks, callback{"ended", encounter, outcome})
		delete(m.active, combatID)
		m.completed[combatID] = encounter
	} else {
		outcome.EndState = ""
		encounter.RoundNumber++
		encounter.Deadline = m.nextDeadline()
		m.scheduleTimeoutLocked(encounter)
		callbacks = append(callbacks, callback{"resolved", encounter, outcome})
		callbacks = append(callbacks, callback{"waiting", encounter, outcome})
	}
	m.mu.Unlock()

	for _, cb := range callbacks {
		switch cb.kind {
		case "resolved":
			if m.onRoundResolved != nil {
				m.onRoundResolved(cb.encounter, cb.outcome)
			}
		case "waiting":
			m.emitRoundWaiting(cb.encounter)
		case "ended":
			if m.onCombatEnded != nil {
				go m.onCombatEnded(cb.encounter, cb.outcome)
			}
		}
	}
	return &outcome, nil
}

func (m *Manager) emitRoundWaiting(encounter *Encounter) {
	if m.onRoundWaiting != nil {
		m.onRoundWaiting(encounter)
	}
}

func (m *Manager) scheduleTimeoutLocked(encounter *Encounter) {
	m.cancelTimerLocked(encounter.ID)
	delay := time.Until(encounter.Deadline)
	if delay < 0 {
		delay = 0
	}
	combatID := encounter.ID
	roundNumber := encounter.RoundNumber
	m.timers[combatID] = NewRoundTimer(delay, func() {
		m.mu.Lock()
		encounter, ok := m.active[combatID]
		if !ok || encounter.Ended || encounter.RoundNumber != roundNumber {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
		_, _ = m.resolveRound(combatID)
	})
}

func (m *Manager) cancelTimerLocked(combatID string) {
	if t, ok := m.timers[combatID]; ok {
		t.Stop()
		delete(m.timers, combatID)
	}
}

func (m *Manager) nextDeadline() time.Time {
	return time.Now().Add(m.roundTimeout)
}

func seedFromID(id string) int64 {
	var h int64 = 1469598103934665603
	for i := 0; i < len(id); i++ {
		h ^= int64(id[i])
		h *= 1099511628211
	}
	if h == 0 {
		h = 1
	}
	return h
}
