package combat

import (
	"math/rand"
	"sort"
)

// Tuned constants for round resolution. Carried over verbatim from the
// reference implementation rather than re-derived, since only the shape of
// the formula (not every constant) is otherwise specified.
const (
	baseHit            = 0.5
	minHit             = 0.15
	maxHit             = 0.85
	mitigateHitFactor  = 0.6
	attackBonusFactor  = 0.1
	shieldAblationFrac = 0.5
	fleeMin            = 0.2
	fleeMax            = 0.9
)

func clamp(value, minimum, maximum float64) float64 {
	if value < minimum {
		return minimum
	}
	if value > maximum {
		return maximum
	}
	return value
}

// Source is an injectable PRNG. Production code seeds it deterministically
// from (base_seed, round_number) via NewDeterministicSource; tests can
// substitute a scripted or property-testing source to make round resolution
// fully reproducible.
type Source interface {
	Float64() float64
}

type mathRandSource struct {
	r *rand.Rand
}

func (s mathRandSource) Float64() float64 { return s.r.Float64() }

// NewDeterministicSource builds a Source seeded from baseSeed and round, so
// that resolving the same round of the same encounter twice with the same
// seed always produces the same outcome. A fresh generator is constructed
// per call rather than reusing mutable state across rounds, matching the
// reference engine's per-round reseed.
func NewDeterministicSource(baseSeed int64, round int) Source {
	seed := baseSeed*1000003 + int64(round)
	return mathRandSource{r: rand.New(rand.NewSource(seed))}
}

func shieldMitigation(c *Combatant, action ActionKind) float64 {
	mitigation := c.Mitigation()
	if action == ActionBrace {
		mitigation = clamp(mitigation*1.2, 0.0, 0.5)
	}
	return mitigation
}

func fleeSuccessChance(attacker, defender *Combatant) float64 {
	base := 0.5 + 0.1*float64(defender.TurnsPerWarp-attacker.TurnsPerWarp)
	return clamp(base, fleeMin, fleeMax)
}

func ceilDiv(losses int, frac float64) int {
	v := float64(losses) * frac
	i := int(v)
	if float64(i) < v {
		i++
	}
	return i
}

// ResolveRound resolves one round of an encounter given the submitted
// actions, returning the outcome without mutating encounter or the
// Combatant values inside it. The caller (the Manager) applies the outcome
// to persistent state. ResolveRound never touches the wall clock, never
// performs I/O, and draws randomness only from src, so (encounter, actions,
// src) fully determines the result.
func ResolveRound(encounter *Encounter, actions map[string]RoundAction, src Source) CombatRoundOutcome {
	ids := make([]string, 0, len(encounter.Participants))
	for id := range encounter.Participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	commits := make(map[string]int, len(ids))
	effective := make(map[string]RoundAction, len(ids))
	mitigations := make(map[string]float64, len(ids))

	for _, pid := range ids {
		state := encounter.Participants[pid]
		submitted, ok := actions[pid]
		if !ok {
			submitted = RoundAction{Kind: ActionBrace, TimedOut: true}
		}
		kind := submitted.Kind
		target := submitted.TargetID
		commit := 0
		if kind == ActionAttack {
			commit = submitted.Commit
			if commit > state.Fighters {
				commit = state.Fighters
			}
			if commit < 0 {
				commit = 0
			}
			if commit <= 0 || target == "" || target == pid {
				kind = ActionBrace
				commit = 0
				target = ""
			} else if _, exists := encounter.Participants[target]; !exists {
				kind = ActionBrace
				commit = 0
				target = ""
			}
		}
		dest := 0
		if kind == ActionFlee {
			dest = submitted.DestinationSector
		}
		eff := submitted
		eff.Kind = kind
		eff.TargetID = target
		eff.DestinationSector = dest
		if kind == ActionAttack {
			eff.Commit = commit
		} else {
			eff.Commit = 0
		}
		effective[pid] = eff
		commits[pid] = eff.Commit
		mitigations[pid] = shieldMitigation(state, kind)
	}

	fightersStart := make(map[string]int, len(ids))
	shieldsStart := make(map[string]int, len(ids))
	for _, pid := range ids {
		fightersStart[pid] = encounter.Participants[pid].Fighters
		shieldsStart[pid] = encounter.Participants[pid].Shields
	}

	fleeResults := make(map[string]bool, len(ids))
	for _, pid := range ids {
		fleeResults[pid] = false
	}

	active := make(map[string]bool, len(ids))
	for _, pid := range ids {
		active[pid] = true
	}

	pickFleeOpponent := func(fleerID string) *Combatant {
		var candidates []*Combatant
		var candidateIDs []string
		for _, oid := range ids {
			if oid == fleerID || !active[oid] {
				continue
			}
			candidates = append(candidates, encounter.Participants[oid])
			candidateIDs = append(candidateIDs, oid)
		}
		if len(candidates) == 0 {
			return nil
		}
		best := 0
		for i := 1; i < len(candidates); i++ {
			if candidates[i].Fighters > candidates[best].Fighters {
				best = i
			} else if candidates[i].Fighters == candidates[best].Fighters && candidateIDs[i] < candidateIDs[best] {
				best = i
			}
		}
		return candidates[best]
	}

	var successfulFleers []string
	for _, pid := range ids {
		if !active[pid] {
			continue
		}
		if effective[pid].Kind != ActionFlee {
			continue
		}
		opponent := pickFleeOpponent(pid)
		if opponent == nil {
			fleeResults[pid] = true
			delete(active, pid)
			continue
		}
		chance := fleeSuccessChance(encounter.Participants[pid], opponent)
		if src.Float64() < chance {
			fleeResults[pid] = true
			delete(active, pid)
			successfulFleers = append(successfulFleers, pid)
		}
	}

	var remainingAttackers []string
	for pid := range active {
		if effective[pid].Kind == ActionAttack && commits[pid] > 0 {
			remainingAttackers = append(remainingAttackers, pid)
		}
	}

	if len(successfulFleers) > 0 && len(remainingAttackers) == 0 {
		zero := zeroMap(ids)
		return CombatRoundOutcome{
			RoundNumber:       encounter.RoundNumber,
			Hits:              cloneIntMap(zero),
			OffensiveLosses:   cloneIntMap(zero),
			DefensiveLosses:   cloneIntMap(zero),
			ShieldLoss:        cloneIntMap(zero),
			FightersRemaining: fightersStart,
			ShieldsRemaining:  shieldsStart,
			FleeResults:       fleeResults,
			EndState:          successfulFleers[0] + "_fled",
			EffectiveActions:  effective,
		}
	}

	hits := zeroMap(ids)
	offensiveLosses := zeroMap(ids)
	defensiveLosses := zeroMap(ids)

	if len(remainingAttackers) == 0 {
		allBracing := true
		for pid := range active {
			if effective[pid].Kind == ActionAttack {
				allBracing = false
				break
			}
		}
		if allBracing {
			zero := zeroMap(ids)
			return CombatRoundOutcome{
				RoundNumber:       encounter.RoundNumber,
				Hits:              cloneIntMap(zero),
				OffensiveLosses:   cloneIntMap(zero),
				DefensiveLosses:   cloneIntMap(zero),
				ShieldLoss:        cloneIntMap(zero),
				FightersRemaining: fightersStart,
				ShieldsRemaining:  shieldsStart,
				FleeResults:       fleeResults,
				EndState:          "stalemate",
				EffectiveActions:  effective,
			}
		}
	}

	currentFighters := make(map[string]int, len(ids))
	for k, v := range fightersStart {
		currentFighters[k] = v
	}

	sort.Slice(remainingAttackers, func(i, j int) bool {
		a, b := remainingAttackers[i], remainingAttackers[j]
		sa, sb := encounter.Participants[a], encounter.Participants[b]
		if sa.Fighters != sb.Fighters {
			return sa.Fighters < sb.Fighters
		}
		if sa.TurnsPerWarp != sb.TurnsPerWarp {
			return sa.TurnsPerWarp < sb.TurnsPerWarp
		}
		return a < b
	})

	remainingCommits := make(map[string]int, len(remainingAttackers))
	for _, pid := range remainingAttackers {
		remainingCommits[pid] = commits[pid]
	}

	for anyPositive(remainingCommits) {
		progressed := false
		for _, pid := range remainingAttackers {
			if remainingCommits[pid] <= 0 {
				continue
			}
			if !active[pid] || currentFighters[pid] <= 0 {
				remainingCommits[pid] = 0
				continue
			}
			target := effective[pid].TargetID
			if target == "" || !active[target] {
				remainingCommits[pid] = 0
				continue
			}
			if currentFighters[target] <= 0 {
				remainingCommits[pid] = 0
				continue
			}

			remainingCommits[pid]--
			progressed = true

			pHit := clamp(baseHit-mitigations[target]*mitigateHitFactor+mitigations[pid]*attackBonusFactor, minHit, maxHit)
			if src.Float64() < pHit {
				hits[pid]++
				defensiveLosses[target]++
				currentFighters[target] = maxInt(0, currentFighters[target]-1)
			} else {
				offensiveLosses[pid]++
				currentFighters[pid] = maxInt(0, currentFighters[pid]-1)
			}
		}
		if !progressed {
			break
		}
	}

	shieldLoss := make(map[string]int, len(ids))
	fightersRemaining := make(map[string]int, len(ids))
	shieldsRemaining := make(map[string]int, len(ids))

	for _, pid := range ids {
		action := effective[pid].Kind
		state := encounter.Participants[pid]
		totalLosses := offensiveLosses[pid] + defensiveLosses[pid]
		fightersRemaining[pid] = maxInt(0, state.Fighters-totalLosses)
		loss := ceilDiv(defensiveLosses[pid], shieldAblationFrac)
		if action == ActionBrace {
			loss = ceilDiv(loss, 0.8)
		}
		shieldLoss[pid] = loss
		shieldsRemaining[pid] = maxInt(0, state.Shields-loss)
	}

	var endState string
	var livingNotFled []string
	for _, pid := range ids {
		if fightersRemaining[pid] > 0 && !fleeResults[pid] {
			livingNotFled = append(livingNotFled, pid)
		}
	}

	switch {
	case len(livingNotFled) == 0:
		anyFled := false
		anySurvivorFighters := false
		for _, pid := range ids {
			if fleeResults[pid] {
				anyFled = true
			}
			if fightersRemaining[pid] > 0 {
				anySurvivorFighters = true
			}
		}
		if anyFled && anySurvivorFighters {
			endState = "stalemate"
		} else {
			endState = "mutual_defeat"
		}
	case len(livingNotFled) == 1:
		survivor := livingNotFled[0]
		var losers []string
		for _, pid := range ids {
			if pid != survivor && !fleeResults[pid] && fightersRemaining[pid] <= 0 {
				losers = append(losers, pid)
			}
		}
		switch {
		case len(losers) == 1:
			endState = losers[0] + "_defeated"
		case len(losers) > 1:
			endState = "victory"
		default:
			allOthersFled := true
			for _, pid := range ids {
				if pid != survivor && !fleeResults[pid] {
					allOthersFled = false
					break
				}
			}
			if allOthersFled {
				endState = "stalemate"
			}
		}
	}

	return CombatRoundOutcome{
		RoundNumber:       encounter.RoundNumber,
		Hits:              hits,
		OffensiveLosses:   offensiveLosses,
		DefensiveLosses:   defensiveLosses,
		ShieldLoss:        shieldLoss,
		FightersRemaining: fightersRemaining,
		ShieldsRemaining:  shieldsRemaining,
		FleeResults:       fleeResults,
		EndState:          endState,
		EffectiveActions:  effective,
	}
}

func zeroMap(ids []string) map[string]int {
	m := make(map[string]int, len(ids))
	for _, id := range ids {
		m[id] = 0
	}
	return m
}

func cloneIntMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func anyPositive(m map[string]int) bool {
	for _, v := range m {
		if v > 0 {
			return true
		}
	}
	return false
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
