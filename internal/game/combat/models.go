// Package combat implements the deterministic sector-combat engine: fighters
// and shields clash between ships and stationed garrisons over a sequence of
// simultaneous-action rounds.
package combat

import "time"

// ActionKind identifies what a combatant committed to for a round.
type ActionKind int

const (
	// ActionBrace is the default action: raises shield mitigation and
	// commits no fighters to an attack.
	ActionBrace ActionKind = iota
	// ActionAttack commits a number of fighters against a target.
	ActionAttack
	// ActionFlee attempts to break off the encounter.
	ActionFlee
)

func (k ActionKind) String() string {
	switch k {
	case ActionAttack:
		return "attack"
	case ActionFlee:
		return "flee"
	default:
		return "brace"
	}
}

// CombatantKind distinguishes a player-controlled ship from a stationed
// garrison fighting on behalf of its owner.
type CombatantKind int

const (
	KindCharacter CombatantKind = iota
	KindGarrison
)

func (k CombatantKind) String() string {
	if k == KindGarrison {
		return "garrison"
	}
	return "character"
}

// Combatant is the mutable state tracked for one participant in an
// encounter. Garrisons are synthesized with zero shields and zero
// TurnsPerWarp so they can never out-maneuver a fleeing ship.
type Combatant struct {
	ID               string
	Kind             CombatantKind
	Name             string
	Fighters         int
	Shields          int
	MaxFighters      int
	MaxShields       int
	TurnsPerWarp     int
	IsEscapePod      bool
	OwnerCharacterID string
	ShipType         string
}

// Mitigation returns the combatant's shield-mitigation fraction, clamped to
// [0, 0.5].
func (c *Combatant) Mitigation() float64 {
	return clamp(0.0005*float64(max(0, c.Shields)), 0.0, 0.5)
}

// RoundAction is a submitted (or defaulted) action for a single combatant in
// a single round.
type RoundAction struct {
	Kind              ActionKind
	Commit            int
	TargetID          string
	DestinationSector int
	TimedOut          bool
	SubmittedAt       time.Time
}

// Delta captures the fighters/shields change a participant experienced
// across a round, for event payloads that show deltas to a viewer.
type Delta struct {
	Fighters int
	Shields  int
}

// RoundLog is the retained record of one resolved round.
type RoundLog struct {
	RoundNumber     int
	Actions         map[string]RoundAction
	Hits            map[string]int
	OffensiveLosses map[string]int
	DefensiveLosses map[string]int
	ShieldLoss      map[string]int
	Result          string
	Timestamp       time.Time
}

// Encounter represents an active (or just-completed) combat between two or
// more combatants in a sector.
type Encounter struct {
	ID             string
	SectorID       int
	Participants   map[string]*Combatant
	RoundNumber    int
	Deadline       time.Time
	BaseSeed       int64
	Logs           []RoundLog
	PendingActions map[string]RoundAction
	Ended          bool
	EndState       string
	// Context carries provenance the garrison-combat glue needs but the
	// pure engine does not interpret: garrison_owner and garrison_mode for
	// an encounter against a garrison. Toll payment state is not kept here.
	Context map[string]any
}

// OtherCombatant returns a participant other than id, used by two-party
// encounters to find "the opponent". With more than two participants the
// first match in map-iteration order is returned; callers that need a
// stable choice should use the TargetID of the actions in
// CombatRoundOutcome.EffectiveActions instead.
func (e *Encounter) OtherCombatant(id string) *Combatant {
	for cid, c := range e.Participants {
		if cid != id {
			return c
		}
	}
	return nil
}

// CombatRoundOutcome is the result of resolving one round, returned by
// ResolveRound and applied to the Encounter's participants by the Manager.
type CombatRoundOutcome struct {
	RoundNumber       int
	Hits              map[string]int
	OffensiveLosses   map[string]int
	DefensiveLosses   map[string]int
	ShieldLoss        map[string]int
	FightersRemaining map[string]int
	ShieldsRemaining  map[string]int
	FleeResults       map[string]bool
	EndState          string
	EffectiveActions  map[string]RoundAction
	ParticipantDeltas map[string]Delta
}
