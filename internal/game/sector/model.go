// Package sector provides the game world model: a flat, warp-connected
// graph of sectors, replacing the teacher's zone/room/exit MUD topology
// with the shape a space-trading map needs.
package sector

import "fmt"

// Sector is a single node in the warp map.
type Sector struct {
	// ID uniquely identifies this sector.
	ID int
	// Name is the display name shown to a player occupying the sector.
	Name string
	// Warps lists the sector IDs directly reachable from this sector in
	// one jump.
	Warps []int
	// Properties holds content tags (nebula, asteroid field, stadat,
	// etc.), mirroring the teacher's Room.Properties.
	Properties map[string]string
}

// HasWarpTo reports whether dest is directly reachable from this sector.
func (s *Sector) HasWarpTo(dest int) bool {
	for _, w := range s.Warps {
		if w == dest {
			return true
		}
	}
	return false
}

// Map is the full set of sectors a server has loaded, keyed by ID.
type Map struct {
	Sectors   map[int]*Sector
	StartID   int
}

// Validate checks map invariants: every warp target must resolve to a
// known sector (no dangling warp), and the warp graph, treated as
// undirected for reachability, must be fully connected from StartID (no
// isolated sector) — the sector-map equivalents of world.Zone.Validate's
// checks.
func (m *Map) Validate() error {
	if len(m.Sectors) == 0 {
		return fmt.Errorf("sector: map must contain at least one sector")
	}
	if _, ok := m.Sectors[m.StartID]; !ok {
		return fmt.Errorf("sector: start sector %d not found in map", m.StartID)
	}
	for id, s := range m.Sectors {
		if s.ID != id {
			return fmt.Errorf("sector: map key %d does not match sector ID %d", id, s.ID)
		}
		for _, w := range s.Warps {
			if _, ok := m.Sectors[w]; !ok {
				return fmt.Errorf("sector %d: warp targets unknown sector %d", id, w)
			}
		}
	}
	return m.checkConnected()
}

func (m *Map) checkConnected() error {
	adjacency := make(map[int]map[int]bool, len(m.Sectors))
	for id := range m.Sectors {
		adjacency[id] = make(map[int]bool)
	}
	for id, s := range m.Sectors {
		for _, w := range s.Warps {
			adjacency[id][w] = true
			adjacency[w][id] = true
		}
	}

	visited := map[int]bool{m.StartID: true}
	queue := []int{m.StartID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for next := range adjacency[current] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	for id := range m.Sectors {
		if !visited[id] {
			return fmt.Errorf("sector %d: unreachable from start sector %d", id, m.StartID)
		}
	}
	return nil
}
