package gameserver

import (
	"fmt"

	"github.com/voidreach/sectors/internal/game/garrison"
	"github.com/voidreach/sectors/internal/game/session"
)

// GarrisonHandler exposes the player-facing garrison RPCs: stationing
// fighters from a ship into a sector garrison, recalling them, and changing
// an existing garrison's behavior mode.
type GarrisonHandler struct {
	garrisons *garrison.Store
	sessions  *session.Manager
}

// NewGarrisonHandler builds a GarrisonHandler.
func NewGarrisonHandler(garrisons *garrison.Store, sessions *session.Manager) *GarrisonHandler {
	return &GarrisonHandler{garrisons: garrisons, sessions: sessions}
}

// LeaveFighters moves quantity fighters off uid's ship and into a garrison
// stationed in sectorID under uid's ownership, creating the garrison if one
// does not already exist there, or topping up if it does.
//
// Precondition: quantity must not exceed the pilot's current fighter count.
func (h *GarrisonHandler) LeaveFighters(uid string, sectorID, quantity int, mode garrison.Mode, tollAmount int) (garrison.State, error) {
	pilot, ok := h.sessions.GetPilot(uid)
	if !ok {
		return garrison.State{}, fmt.Errorf("garrison: pilot %q not found", uid)
	}
	if quantity <= 0 {
		return garrison.State{}, fmt.Errorf("garrison: quantity must be positive, got %d", quantity)
	}
	if quantity > pilot.Fighters {
		return garrison.State{}, fmt.Errorf("garrison: cannot leave %d fighters, ship carries %d", quantity, pilot.Fighters)
	}

	existing := h.garrisons.ListSector(sectorID)
	total := quantity
	for _, st := range existing {
		if st.OwnerID == uid {
			total += st.Fighters
			break
		}
	}

	state, err := h.garrisons.Deploy(sectorID, uid, total, mode, tollAmount)
	if err != nil {
		return garrison.State{}, err
	}
	pilot.Fighters -= quantity
	return state, nil
}

// CollectFighters recalls up to quantity fighters from uid's garrison in
// sectorID back onto uid's ship, capped at the ship's fighter capacity and
// at whatever the garrison actually holds.
func (h *GarrisonHandler) CollectFighters(uid string, sectorID, quantity int) (int, error) {
	pilot, ok := h.sessions.GetPilot(uid)
	if !ok {
		return 0, fmt.Errorf("garrison: pilot %q not found", uid)
	}
	if quantity <= 0 {
		return 0, fmt.Errorf("garrison: quantity must be positive, got %d", quantity)
	}

	room := pilot.MaxFighters - pilot.Fighters
	if room <= 0 {
		return 0, fmt.Errorf("garrison: ship is at fighter capacity")
	}

	stationed := 0
	for _, st := range h.garrisons.ListSector(sectorID) {
		if st.OwnerID == uid {
			stationed = st.Fighters
			break
		}
	}
	if stationed == 0 {
		return 0, fmt.Errorf("garrison: no garrison owned by %q in sector %d", uid, sectorID)
	}

	take := min(quantity, room, stationed)
	if _, _, err := h.garrisons.AdjustFighters(sectorID, uid, -take); err != nil {
		return 0, err
	}
	pilot.Fighters += take
	return take, nil
}

// SetGarrisonMode updates the mode and toll amount of uid's existing
// garrison in sectorID. It does not create a garrison.
func (h *GarrisonHandler) SetGarrisonMode(uid string, sectorID int, mode garrison.Mode, tollAmount int) (garrison.State, error) {
	state, ok, err := h.garrisons.SetMode(sectorID, uid, mode, tollAmount)
	if err != nil {
		return garrison.State{}, err
	}
	if !ok {
		return garrison.State{}, fmt.Errorf("garrison: no garrison owned by %q in sector %d", uid, sectorID)
	}
	return *state, nil
}
