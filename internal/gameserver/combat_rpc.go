package gameserver

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/voidreach/sectors/internal/game/combat"
	"github.com/voidreach/sectors/internal/game/garrison"
	"github.com/voidreach/sectors/internal/game/session"
)

// CombatHandler exposes the player-facing combat RPC surface
// (combat.initiate, combat.action) over the domain's combat.Manager,
// garrison.Store, and session.Manager. CombatGlue remains responsible for
// garrison encounters started automatically on sector entry; CombatHandler
// only starts encounters a player explicitly picks a fight for, and routes
// every subsequent action submission for any encounter back through the
// same combat.Manager.
type CombatHandler struct {
	manager   *combat.Manager
	garrisons *garrison.Store
	sessions  *session.Manager
	glue      *CombatGlue
}

// NewCombatHandler builds a CombatHandler.
func NewCombatHandler(manager *combat.Manager, garrisons *garrison.Store, sessions *session.Manager, glue *CombatGlue) *CombatHandler {
	return &CombatHandler{manager: manager, garrisons: garrisons, sessions: sessions, glue: glue}
}

// Initiate starts an encounter between the calling pilot and a target, which
// is either another pilot (targetType "character", the default) or the
// garrison stationed in the pilot's own sector (targetType "garrison"). It
// fails if the pilot is already in an encounter or the sector already has
// one running.
//
// Precondition: uid must resolve to a connected pilot via sessions.
func (h *CombatHandler) Initiate(uid, targetID, targetType string) (*combat.Encounter, error) {
	pilot, ok := h.sessions.GetPilot(uid)
	if !ok {
		return nil, fmt.Errorf("combat: pilot %q not found", uid)
	}
	if _, inCombat := h.manager.FindEncounterFor(uid); inCombat {
		return nil, fmt.Errorf("combat: pilot %q is already in an encounter", uid)
	}
	if _, active := h.manager.FindEncounterInSector(pilot.SectorID); active {
		return nil, fmt.Errorf("combat: sector %d already has an active encounter", pilot.SectorID)
	}

	entrant := pilotCombatant(pilot)

	if targetType == "garrison" {
		return h.initiateAgainstGarrison(pilot, entrant)
	}
	return h.initiateAgainstCharacter(pilot, entrant, targetID)
}

func (h *CombatHandler) initiateAgainstGarrison(pilot *session.PilotSession, entrant *combat.Combatant) (*combat.Encounter, error) {
	states := h.garrisons.ListSector(pilot.SectorID)
	var target *garrison.State
	for i := range states {
		if states[i].OwnerID != pilot.UID {
			target = &states[i]
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("combat: no garrison to fight in sector %d", pilot.SectorID)
	}

	garrisonCombatant := &combat.Combatant{
		ID:               "garrison:" + target.OwnerID,
		Kind:             combat.KindGarrison,
		Name:             h.sessions.DisplayName(target.OwnerID) + "'s garrison",
		Fighters:         target.Fighters,
		OwnerCharacterID: target.OwnerID,
	}

	enc := &combat.Encounter{
		ID:       uuid.New().String(),
		SectorID: pilot.SectorID,
		Participants: map[string]*combat.Combatant{
			entrant.ID:           entrant,
			garrisonCombatant.ID: garrisonCombatant,
		},
		Context: map[string]any{
			"garrison_owner": target.OwnerID,
			"garrison_mode":  string(target.Mode),
		},
	}
	if h.glue != nil {
		ledger := NewTollLedger()
		if target.Mode == garrison.ModeToll {
			ledger.SetDemand(garrisonCombatant.ID, 1)
		}
		h.glue.mu.Lock()
		h.glue.ledgers[enc.ID] = ledger
		h.glue.mu.Unlock()
	}
	return h.manager.StartEncounter(enc, true)
}

func (h *CombatHandler) initiateAgainstCharacter(pilot *session.PilotSession, entrant *combat.Combatant, targetID string) (*combat.Encounter, error) {
	if targetID == "" {
		return nil, fmt.Errorf("combat: target_id required when target_type is character")
	}
	target, ok := h.sessions.GetPilot(targetID)
	if !ok {
		return nil, fmt.Errorf("combat: target %q not found", targetID)
	}
	if target.SectorID != pilot.SectorID {
		return nil, fmt.Errorf("combat: target %q is not in sector %d", targetID, pilot.SectorID)
	}

	enc := &combat.Encounter{
		ID:       uuid.New().String(),
		SectorID: pilot.SectorID,
		Participants: map[string]*combat.Combatant{
			entrant.ID: entrant,
			target.UID: pilotCombatant(target),
		},
	}
	return h.manager.StartEncounter(enc, true)
}

func pilotCombatant(pilot *session.PilotSession) *combat.Combatant {
	return &combat.Combatant{
		ID:               pilot.UID,
		Kind:             combat.KindCharacter,
		Name:             pilot.CharName,
		Fighters:         pilot.Fighters,
		Shields:          pilot.Shields,
		MaxFighters:      pilot.MaxFighters,
		MaxShields:       pilot.MaxShields,
		OwnerCharacterID: pilot.UID,
		ShipType:         pilot.ShipType,
	}
}

// Action submits uid's action for the current round of combatID. An
// action of "pay" is not an engine action: it marks the encounter's toll
// garrison as paid via CombatGlue and otherwise submits BRACE for the
// round, matching a pilot who spends the round handing over credits rather
// than fighting.
func (h *CombatHandler) Action(combatID, uid, action string, commit int, targetID string, toSector int) (*combat.CombatRoundOutcome, error) {
	enc, ok := h.manager.GetEncounter(combatID)
	if !ok {
		return nil, fmt.Errorf("combat: unknown encounter %s", combatID)
	}

	if action == "pay" {
		garrisonID := tollGarrisonID(enc)
		if garrisonID == "" {
			return nil, fmt.Errorf("combat: encounter %s has no toll garrison to pay", combatID)
		}
		if h.glue != nil {
			if err := h.glue.PayToll(combatID, garrisonID); err != nil {
				return nil, err
			}
		}
		return h.manager.SubmitAction(combatID, uid, combat.RoundAction{Kind: combat.ActionBrace})
	}

	kind, err := parseActionKind(action)
	if err != nil {
		return nil, err
	}
	return h.manager.SubmitAction(combatID, uid, combat.RoundAction{
		Kind:              kind,
		Commit:            commit,
		TargetID:          targetID,
		DestinationSector: toSector,
	})
}

func tollGarrisonID(enc *combat.Encounter) string {
	for id, c := range enc.Participants {
		if c.Kind == combat.KindGarrison {
			if mode, _ := enc.Context["garrison_mode"].(string); mode == string(garrison.ModeToll) {
				return id
			}
		}
	}
	return ""
}

func parseActionKind(action string) (combat.ActionKind, error) {
	switch action {
	case "attack":
		return combat.ActionAttack, nil
	case "brace":
		return combat.ActionBrace, nil
	case "flee":
		return combat.ActionFlee, nil
	default:
		return combat.ActionBrace, fmt.Errorf("combat: unrecognized action %q", action)
	}
}
