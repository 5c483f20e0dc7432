// Package cargo tracks a ship or salvage container's commodity inventory:
// a capacity-limited commodity-to-units map, replacing the teacher's
// item-slot inventory.Backpack with the flatter shape a trading game's
// cargo bay needs.
package cargo

import (
	"fmt"
	"sync"
)

// Hold is a capacity-limited commodity inventory, safe for concurrent use.
type Hold struct {
	mu       sync.Mutex
	Capacity int
	units    map[string]int
}

// NewHold creates a Hold with the given capacity.
//
// Precondition: capacity >= 0.
func NewHold(capacity int) *Hold {
	return &Hold{Capacity: capacity, units: make(map[string]int)}
}

// Add places units of commodity into the hold. It is atomic: if the
// capacity would be exceeded, no state is modified, mirroring
// inventory.Backpack.Add's "no partial mutation on error" contract.
//
// Precondition: units > 0.
func (h *Hold) Add(commodity string, units int) error {
	if units <= 0 {
		return fmt.Errorf("cargo: units must be > 0")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	total := h.totalLocked()
	if total+units > h.Capacity {
		return fmt.Errorf("cargo: adding %d units of %q would exceed capacity (%d + %d > %d)",
			units, commodity, total, units, h.Capacity)
	}
	h.units[commodity] += units
	return nil
}

// Remove takes units of commodity out of the hold.
//
// Precondition: units > 0 and <= the hold's current quantity of commodity.
func (h *Hold) Remove(commodity string, units int) error {
	if units <= 0 {
		return fmt.Errorf("cargo: units must be > 0")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.units[commodity]
	if !ok || units > current {
		return fmt.Errorf("cargo: cannot remove %d units of %q (have %d)", units, commodity, current)
	}
	if units == current {
		delete(h.units, commodity)
	} else {
		h.units[commodity] -= units
	}
	return nil
}

// Units returns a snapshot copy of the hold's contents.
//
// Postcondition: returned map is a copy; mutations do not affect the hold.
func (h *Hold) Units() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]int, len(h.units))
	for k, v := range h.units {
		out[k] = v
	}
	return out
}

// TotalUnits returns the sum of units across every commodity in the hold.
//
// Postcondition: result >= 0 and <= Capacity.
func (h *Hold) TotalUnits() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.totalLocked()
}

func (h *Hold) totalLocked() int {
	total := 0
	for _, v := range h.units {
		total += v
	}
	return total
}

// Quantity returns the units currently held of a single commodity.
func (h *Hold) Quantity(commodity string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.units[commodity]
}
