package gameserver

import (
	"fmt"

	"github.com/voidreach/sectors/internal/events"
	"github.com/voidreach/sectors/internal/game/cargo"
	"github.com/voidreach/sectors/internal/game/salvage"
)

// CargoItem names a commodity quantity, the wire shape of dump_cargo's
// items argument.
type CargoItem struct {
	Commodity string
	Units     int
}

// CargoGlue handles the player-initiated cargo operations that sit between
// a ship's hold and the sector: jettisoning cargo into a salvage container,
// and collecting one already on the sector floor.
//
// Precondition: salv, broadcaster, and holdOf are non-nil.
type CargoGlue struct {
	salvage     *salvage.Manager
	broadcaster Broadcaster
	summaries   *events.SummaryRegistry
	holdOf      func(characterID string) *cargo.Hold
}

// NewCargoGlue builds a CargoGlue.
func NewCargoGlue(salv *salvage.Manager, broadcaster Broadcaster, holdOf func(characterID string) *cargo.Hold) *CargoGlue {
	return &CargoGlue{
		salvage:     salv,
		broadcaster: broadcaster,
		summaries:   events.NewSummaryRegistry(),
		holdOf:      holdOf,
	}
}

// DumpCargo removes items from characterID's cargo hold and drops them as a
// new, unclaimed salvage container in sectorID. The removal is atomic
// across the whole request: if any item's quantity exceeds what the hold
// currently carries, nothing is removed and no container is created.
//
// Precondition: characterID must resolve to a cargo hold via holdOf.
func (g *CargoGlue) DumpCargo(characterID string, sectorID int, items []CargoItem) (*salvage.Container, error) {
	hold := g.holdOf(characterID)
	if hold == nil {
		return nil, fmt.Errorf("cargo: no hold found for character %q", characterID)
	}

	for _, item := range items {
		if item.Units <= 0 {
			return nil, fmt.Errorf("cargo: item %q has non-positive units %d", item.Commodity, item.Units)
		}
		if hold.Quantity(item.Commodity) < item.Units {
			return nil, fmt.Errorf("cargo: cannot dump %d units of %q (have %d)", item.Units, item.Commodity, hold.Quantity(item.Commodity))
		}
	}

	dumped := make(map[string]int, len(items))
	for _, item := range items {
		if err := hold.Remove(item.Commodity, item.Units); err != nil {
			// Unreachable given the precheck above, but undo what was
			// already removed rather than leave the hold inconsistent.
			for commodity, units := range dumped {
				_ = hold.Add(commodity, units)
			}
			return nil, err
		}
		dumped[item.Commodity] += item.Units
	}

	container := g.salvage.Create(sectorID, salvage.CreateParams{
		Cargo:    dumped,
		Metadata: map[string]any{"dumped_by": characterID},
	})
	g.broadcast(sectorID, events.SalvageCreated, salvagePayload(container))
	return container, nil
}

// CollectSalvage claims salvageID on behalf of characterID and merges its
// cargo into characterID's hold. The container is removed once collected.
// Claiming fails outright if characterID's hold lacks the capacity to
// receive the container's cargo, so a container is never partially
// claimed.
func (g *CargoGlue) CollectSalvage(characterID, salvageID string) (*salvage.Container, error) {
	hold := g.holdOf(characterID)
	if hold == nil {
		return nil, fmt.Errorf("cargo: no hold found for character %q", characterID)
	}

	pending := g.salvage.Find(salvageID)
	if pending == nil {
		return nil, fmt.Errorf("salvage: %q not found, expired, or already claimed", salvageID)
	}
	if hold.TotalUnits()+pending.Cargo.TotalUnits() > hold.Capacity {
		return nil, fmt.Errorf("cargo: hold lacks capacity for %d incoming units", pending.Cargo.TotalUnits())
	}

	claimed := g.salvage.Claim(salvageID, characterID)
	if claimed == nil {
		return nil, fmt.Errorf("salvage: %q not found, expired, or already claimed", salvageID)
	}

	for commodity, units := range claimed.Cargo.Units() {
		if units <= 0 {
			continue
		}
		if err := hold.Add(commodity, units); err != nil {
			return nil, err
		}
	}

	g.salvage.Remove(salvageID)
	g.broadcast(claimed.SectorID, events.SalvageCollected, salvagePayload(claimed))
	return claimed, nil
}

func (g *CargoGlue) broadcast(sectorID int, name events.Name, payload any) {
	if g.broadcaster == nil {
		return
	}
	g.broadcaster.BroadcastToSector(sectorID, events.Event{
		Name:    name,
		Payload: payload,
		Summary: g.summaries.Summarize(name, payload),
	})
}
