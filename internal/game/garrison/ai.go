package garrison

import (
	"sort"

	"github.com/voidreach/sectors/internal/game/combat"
)

// CorporationLookup resolves a character id to its corporation id. When nil
// is supplied to Decide, every other combatant is treated as an enemy.
type CorporationLookup func(characterID string) (corpID string, ok bool)

// TollRegistry tracks, per garrison combatant, whether the current round is
// the demand round and whether the non-paying target has since paid.
type TollRegistry interface {
	// DemandRound returns the round number on which this garrison issued
	// its toll demand (the first round it acted, unless recorded
	// otherwise).
	DemandRound(garrisonID string) int
	// Paid reports whether the garrison's toll has been paid this
	// encounter.
	Paid(garrisonID string) bool
}

// Hook lets sector content override the built-in decision for a single
// garrison, mirroring the teacher's Lua attack/damage-roll hook pattern
// applied to a new extension point. Returning ok=false falls back to the
// built-in Decide logic unmodified.
type Hook interface {
	Decide(garrisonID string, enc *combat.Encounter) (combat.RoundAction, bool)
}

// Decide computes a garrison's RoundAction for the current round of enc. It
// never mutates enc; callers submit the result via combat.Manager.
// Decide is a pure function of its inputs.
func Decide(garrisonID string, mode Mode, enc *combat.Encounter, lookup CorporationLookup, tolls TollRegistry, hook Hook) combat.RoundAction {
	if hook != nil {
		if action, ok := hook.Decide(garrisonID, enc); ok {
			return action
		}
	}

	self, ok := enc.Participants[garrisonID]
	if !ok {
		return combat.RoundAction{Kind: combat.ActionBrace}
	}

	if mode == ModeToll {
		return decideToll(garrisonID, self, enc, tolls)
	}

	target := selectTarget(garrisonID, self, enc, lookup)
	if target == "" {
		return combat.RoundAction{Kind: combat.ActionBrace}
	}
	commit := commitSize(mode, self.Fighters)
	if commit <= 0 {
		return combat.RoundAction{Kind: combat.ActionBrace}
	}
	return combat.RoundAction{Kind: combat.ActionAttack, Commit: commit, TargetID: target}
}

func commitSize(mode Mode, fighters int) int {
	if fighters <= 0 {
		return 0
	}
	var floor int
	var divisor int
	switch mode {
	case ModeOffensive:
		floor, divisor = 50, 2
	case ModeToll:
		floor, divisor = 50, 3
	default: // ModeDefensive
		floor, divisor = 25, 4
	}
	want := fighters / divisor
	if want < floor {
		want = floor
	}
	if want > fighters {
		want = fighters
	}
	if want < 1 {
		want = 1
	}
	return want
}

func selectTarget(garrisonID string, self *combat.Combatant, enc *combat.Encounter, lookup CorporationLookup) string {
	var selfCorp string
	var haveSelfCorp bool
	if lookup != nil {
		selfCorp, haveSelfCorp = lookup(self.OwnerCharacterID)
	}

	ids := make([]string, 0, len(enc.Participants))
	for id := range enc.Participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	best := ""
	bestFighters := -1
	for _, id := range ids {
		if id == garrisonID {
			continue
		}
		c := enc.Participants[id]
		if c.OwnerCharacterID == self.OwnerCharacterID {
			continue
		}
		if lookup != nil && haveSelfCorp {
			if corp, ok := lookup(c.OwnerCharacterID); ok && corp == selfCorp {
				continue
			}
		}
		if c.Fighters > bestFighters {
			best = id
			bestFighters = c.Fighters
		}
	}
	return best
}

func decideToll(garrisonID string, self *combat.Combatant, enc *combat.Encounter, tolls TollRegistry) combat.RoundAction {
	if tolls == nil {
		return combat.RoundAction{Kind: combat.ActionBrace}
	}
	demandRound := tolls.DemandRound(garrisonID)
	if demandRound == 0 || enc.RoundNumber == demandRound {
		return combat.RoundAction{Kind: combat.ActionBrace}
	}
	if tolls.Paid(garrisonID) {
		return combat.RoundAction{Kind: combat.ActionBrace}
	}
	target := selectTarget(garrisonID, self, enc, nil)
	if target == "" || self.Fighters <= 0 {
		return combat.RoundAction{Kind: combat.ActionBrace}
	}
	return combat.RoundAction{Kind: combat.ActionAttack, Commit: self.Fighters, TargetID: target}
}
