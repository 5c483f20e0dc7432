package sector

import (
	"fmt"
	"sync"
)

// Manager provides thread-safe access to the loaded sector map.
type Manager struct {
	mu      sync.RWMutex
	sectors map[int]*Sector
	startID int
}

// NewManager builds a Manager from m, which must already pass Validate.
func NewManager(m *Map) (*Manager, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	sectors := make(map[int]*Sector, len(m.Sectors))
	for id, s := range m.Sectors {
		sectors[id] = s
	}
	return &Manager{sectors: sectors, startID: m.StartID}, nil
}

// GetSector returns the sector with the given ID.
//
// Postcondition: returns (sector, true) if found, or (nil, false) otherwise.
func (mgr *Manager) GetSector(id int) (*Sector, bool) {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	s, ok := mgr.sectors[id]
	return s, ok
}

// Warp resolves a jump from one sector to another.
//
// Precondition: fromID must exist in the map.
// Postcondition: returns the destination sector, or an error if no direct
// warp connects fromID to toID.
func (mgr *Manager) Warp(fromID, toID int) (*Sector, error) {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	from, ok := mgr.sectors[fromID]
	if !ok {
		return nil, fmt.Errorf("sector %d not found", fromID)
	}
	if !from.HasWarpTo(toID) {
		return nil, fmt.Errorf("no warp from sector %d to sector %d", fromID, toID)
	}
	dest, ok := mgr.sectors[toID]
	if !ok {
		return nil, fmt.Errorf("warp from %d targets unknown sector %d", fromID, toID)
	}
	return dest, nil
}

// StartSector returns the map's designated starting sector.
func (mgr *Manager) StartSector() *Sector {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	return mgr.sectors[mgr.startID]
}

// SectorCount returns the total number of loaded sectors.
func (mgr *Manager) SectorCount() int {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	return len(mgr.sectors)
}

// AllSectors returns every loaded sector.
//
// Postcondition: returns a non-nil slice; may be empty.
func (mgr *Manager) AllSectors() []*Sector {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	out := make([]*Sector, 0, len(mgr.sectors))
	for _, s := range mgr.sectors {
		out = append(out, s)
	}
	return out
}
