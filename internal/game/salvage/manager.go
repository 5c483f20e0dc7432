// Package salvage tracks wreckage containers left behind after combat,
// expiring them on a TTL and supporting a single atomic claim each.
package salvage

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voidreach/sectors/internal/game/cargo"
)

// DefaultTTL is the lifetime a container gets when none is specified.
const DefaultTTL = 15 * time.Minute

// Container is cargo, scrap, and credits left behind by a defeated
// combatant, claimable once by a single victor.
type Container struct {
	SalvageID string
	SectorID  int
	VictorID  string // empty for a contested/mutual-defeat outcome
	CreatedAt time.Time
	ExpiresAt time.Time
	Cargo     *cargo.Hold
	Scrap     int
	Credits   int
	Claimed   bool
	ClaimedBy string
	Metadata  map[string]any
}

// Manager is an in-process, per-sector store of salvage containers. Expired
// containers are pruned lazily on every read rather than via a background
// sweep.
type Manager struct {
	mu         sync.Mutex
	defaultTTL time.Duration
	bySector   map[int]map[string]*Container
}

// NewManager builds a Manager using defaultTTL when Create is called
// without an explicit ttl. A zero defaultTTL falls back to DefaultTTL.
func NewManager(defaultTTL time.Duration) *Manager {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Manager{
		defaultTTL: defaultTTL,
		bySector:   make(map[int]map[string]*Container),
	}
}

// CreateParams bundles Create's optional fields so the positional-argument
// list doesn't grow unbounded as salvage gains metadata over time.
type CreateParams struct {
	VictorID string
	Cargo    map[string]int
	Scrap    int
	Credits  int
	Metadata map[string]any
	TTL      time.Duration // zero uses the Manager's default
}

// Create deposits a new salvage container in a sector.
func (m *Manager) Create(sectorID int, params CreateParams) *Container {
	m.mu.Lock()
	defer m.mu.Unlock()

	ttl := params.TTL
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	now := time.Now()
	total := 0
	for _, v := range params.Cargo {
		total += v
	}
	hold := cargo.NewHold(total)
	for commodity, units := range params.Cargo {
		if units <= 0 {
			continue
		}
		_ = hold.Add(commodity, units) // capacity sized to fit exactly; cannot fail
	}
	metadata := params.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	c := &Container{
		SalvageID: uuid.New().String(),
		SectorID:  sectorID,
		VictorID:  params.VictorID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Cargo:     hold,
		Scrap:     params.Scrap,
		Credits:   params.Credits,
		Metadata:  metadata,
	}

	sector := m.bySector[sectorID]
	if sector == nil {
		sector = make(map[string]*Container)
		m.bySector[sectorID] = sector
	}
	sector[c.SalvageID] = c
	return c
}

// Find looks up a container by ID without claiming it, after pruning
// anything expired. Useful for a caller that must validate a claim (e.g.
// that the claimer has room for the cargo) before committing to it.
func (m *Manager) Find(salvageID string) *Container {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneExpiredLocked()
	return m.findByIDLocked(salvageID)
}

// Claim marks a container as claimed, returning nil if it does not exist,
// has already expired, or was already claimed. A container can be claimed
// exactly once.
func (m *Manager) Claim(salvageID, claimerID string) *Container {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneExpiredLocked()

	c := m.findByIDLocked(salvageID)
	if c == nil || c.Claimed {
		return nil
	}
	c.Claimed = true
	c.ClaimedBy = claimerID
	return c
}

// ListSector returns the unclaimed-or-claimed containers currently present
// in a sector, after pruning anything expired.
func (m *Manager) ListSector(sectorID int) []*Container {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneExpiredLocked()

	sector := m.bySector[sectorID]
	out := make([]*Container, 0, len(sector))
	for _, c := range sector {
		out = append(out, c)
	}
	return out
}

// Remove deletes a container outright, e.g. once it has been fully looted.
func (m *Manager) Remove(salvageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sectorID, sector := range m.bySector {
		if _, ok := sector[salvageID]; ok {
			delete(sector, salvageID)
			if len(sector) == 0 {
				delete(m.bySector, sectorID)
			}
			return
		}
	}
}

// PruneExpired removes every container whose TTL has elapsed. Called
// implicitly by every read; exposed so callers can run it on a schedule
// too.
func (m *Manager) PruneExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneExpiredLocked()
}

func (m *Manager) pruneExpiredLocked() {
	now := time.Now()
	for sectorID, sector := range m.bySector {
		for id, c := range sector {
			if !c.ExpiresAt.After(now) {
				delete(sector, id)
			}
		}
		if len(sector) == 0 {
			delete(m.bySector, sectorID)
		}
	}
}

func (m *Manager) findByIDLocked(salvageID string) *Container {
	for _, sector := range m.bySector {
		if c, ok := sector[salvageID]; ok {
			return c
		}
	}
	return nil
}
