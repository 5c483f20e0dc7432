package gameserver

import (
	"fmt"

	"github.com/voidreach/sectors/internal/events"
	"github.com/voidreach/sectors/internal/game/combat"
	"github.com/voidreach/sectors/internal/game/garrison"
	"github.com/voidreach/sectors/internal/game/sector"
	"github.com/voidreach/sectors/internal/game/session"
)

// WarpHandler moves a pilot between sectors along the loaded warp graph,
// broadcasting the departure and arrival to each sector's occupants and
// checking the arrival sector for a hostile garrison.
//
// Precondition: sectors, sessions, garrisons, and broadcaster are non-nil.
type WarpHandler struct {
	sectors     *sector.Manager
	sessions    *session.Manager
	garrisons   *garrison.Store
	combat      *CombatGlue
	broadcaster Broadcaster
	summaries   *events.SummaryRegistry
}

// NewWarpHandler builds a WarpHandler.
func NewWarpHandler(sectors *sector.Manager, sessions *session.Manager, garrisons *garrison.Store, combatGlue *CombatGlue, broadcaster Broadcaster) *WarpHandler {
	return &WarpHandler{
		sectors:     sectors,
		sessions:    sessions,
		garrisons:   garrisons,
		combat:      combatGlue,
		broadcaster: broadcaster,
		summaries:   events.NewSummaryRegistry(),
	}
}

// Warp moves uid from its current sector to toSectorID, rejecting the jump
// if no direct warp connects the two sectors or the pilot is presently
// locked in a combat encounter. On success it returns the arrival sector's
// snapshot and, if a hostile garrison occupies the destination, the
// encounter it starts.
func (h *WarpHandler) Warp(uid string, toSectorID int) (events.SectorUpdatePayload, *combat.Encounter, error) {
	pilot, ok := h.sessions.GetPilot(uid)
	if !ok {
		return events.SectorUpdatePayload{}, nil, fmt.Errorf("warp: pilot %q not found", uid)
	}
	if h.combat != nil {
		if _, inCombat := h.combat.manager.FindEncounterFor(uid); inCombat {
			return events.SectorUpdatePayload{}, nil, fmt.Errorf("warp: pilot %q is in an active encounter", uid)
		}
	}

	dest, err := h.sectors.Warp(pilot.SectorID, toSectorID)
	if err != nil {
		h.broadcastError(uid, err)
		return events.SectorUpdatePayload{}, nil, err
	}

	fromSectorID, err := h.sessions.MovePilot(uid, toSectorID)
	if err != nil {
		return events.SectorUpdatePayload{}, nil, err
	}

	h.broadcastMovement(pilot, fromSectorID, toSectorID, "depart")
	h.broadcastMovement(pilot, fromSectorID, toSectorID, "arrive")

	var enc *combat.Encounter
	if h.combat != nil {
		entrant := pilotCombatant(pilot)
		started, startedNow, cerr := h.combat.OnSectorEntered(toSectorID, entrant)
		if cerr == nil && startedNow {
			enc = started
		}
	}

	return h.snapshot(dest, toSectorID), enc, nil
}

func (h *WarpHandler) broadcastMovement(pilot *session.PilotSession, fromSectorID, toSectorID int, movement string) {
	if h.broadcaster == nil {
		return
	}
	payload := events.CharacterMovedPayload{
		Player:     events.PlayerRef{ID: pilot.UID, Name: pilot.CharName},
		Ship:       events.ShipRef{ShipName: pilot.ShipType},
		Movement:   movement,
		FromSector: fromSectorID,
		ToSector:   toSectorID,
	}
	sectorID := fromSectorID
	if movement == "arrive" {
		sectorID = toSectorID
	}
	h.broadcaster.BroadcastToSector(sectorID, events.Event{
		Name:    events.CharacterMoved,
		Payload: payload,
		Summary: h.summaries.Summarize(events.CharacterMoved, payload),
	})
}

func (h *WarpHandler) broadcastError(uid string, cause error) {
	if h.broadcaster == nil {
		return
	}
	pilot, ok := h.sessions.GetPilot(uid)
	if !ok {
		return
	}
	payload := events.ErrorPayload{Status: 400, Code: "warp_failed", Detail: cause.Error()}
	h.broadcaster.BroadcastToSector(pilot.SectorID, events.Event{
		Name:    events.WarpFailed,
		Payload: payload,
		Summary: fmt.Sprintf("warp failed: %s", cause.Error()),
	})
}

func (h *WarpHandler) snapshot(s *sector.Sector, sectorID int) events.SectorUpdatePayload {
	payload := events.SectorUpdatePayload{
		Sector: events.SectorRef{ID: s.ID},
		Name:   s.Name,
		Warps:  s.Warps,
		Pilots: h.sessions.PilotsInSector(sectorID),
	}
	for _, st := range h.garrisons.ListSector(sectorID) {
		payload.Garrison = &events.GarrisonView{
			OwnerName:  h.sessions.DisplayName(st.OwnerID),
			Fighters:   st.Fighters,
			Mode:       string(st.Mode),
			TollAmount: st.TollAmount,
			DeployedAt: st.DeployedAt,
		}
		break
	}
	return payload
}
