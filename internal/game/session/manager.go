package session

import (
	"fmt"
	"sync"

	"github.com/voidreach/sectors/internal/game/cargo"
)

// PilotSession tracks a connected pilot's runtime state.
type PilotSession struct {
	// UID is the unique pilot identifier (character ID as string).
	UID string
	// Username is the account username (for logging).
	Username string
	// CharName is the pilot's display name shown in-game.
	CharName string
	// CharacterID is the database ID of the pilot for persistence.
	CharacterID int64
	// SectorID is the sector the pilot currently occupies.
	SectorID int
	// CorporationID groups pilots for garrison/combat hostility checks; empty means unaffiliated.
	CorporationID string
	// CargoHold is the pilot's ship cargo container.
	CargoHold *cargo.Hold
	// Credits is the pilot's liquid currency balance.
	Credits int
	// Role is the account privilege level (player, editor, admin).
	Role string
	// ShipType names the pilot's current hull (e.g. "scout", "freighter").
	ShipType string
	// Fighters is the ship's current fighter complement.
	Fighters int
	// MaxFighters is the ship's fighter capacity.
	MaxFighters int
	// Shields is the ship's current shield integrity.
	Shields int
	// MaxShields is the ship's shield capacity.
	MaxShields int
	// Entity is the bridge entity for pushing events to the pilot.
	Entity *BridgeEntity
}

// Manager tracks all active pilot sessions and sector occupancy.
// All methods are safe for concurrent use.
type Manager struct {
	mu         sync.RWMutex
	pilots     map[string]*PilotSession // uid → session
	sectorSets map[int]map[string]bool  // sectorID → set of UIDs
}

// NewManager creates an empty session Manager.
func NewManager() *Manager {
	return &Manager{
		pilots:     make(map[string]*PilotSession),
		sectorSets: make(map[int]map[string]bool),
	}
}

// AddPilot registers a new pilot session in the given sector.
//
// Precondition: uid, username, and charName must be non-empty; characterID must be >= 0; credits must be >= 0; role must be non-empty.
// Postcondition: Returns the created PilotSession, or an error if the UID is already registered.
func (m *Manager) AddPilot(uid, username, charName string, characterID int64, sectorID int, credits int, role string, shipType string, cargoCapacity int) (*PilotSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.pilots[uid]; exists {
		return nil, fmt.Errorf("pilot %q already connected", uid)
	}

	entity := NewBridgeEntity(uid, 64)
	sess := &PilotSession{
		UID:         uid,
		Username:    username,
		CharName:    charName,
		CharacterID: characterID,
		SectorID:    sectorID,
		Credits:     credits,
		Role:        role,
		ShipType:    shipType,
		CargoHold:   cargo.NewHold(cargoCapacity),
		Entity:      entity,
	}

	m.pilots[uid] = sess
	if m.sectorSets[sectorID] == nil {
		m.sectorSets[sectorID] = make(map[string]bool)
	}
	m.sectorSets[sectorID][uid] = true

	return sess, nil
}

// RemovePilot removes a pilot session and cleans up sector occupancy.
//
// Precondition: uid must be non-empty.
// Postcondition: The pilot is removed from all tracking. Returns an error if not found.
func (m *Manager) RemovePilot(uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, exists := m.pilots[uid]
	if !exists {
		return fmt.Errorf("pilot %q not found", uid)
	}

	if set, ok := m.sectorSets[sess.SectorID]; ok {
		delete(set, uid)
		if len(set) == 0 {
			delete(m.sectorSets, sess.SectorID)
		}
	}

	_ = sess.Entity.Close()

	delete(m.pilots, uid)
	return nil
}

// MovePilot moves a pilot from their current sector to a new sector.
//
// Precondition: uid must be non-empty.
// Postcondition: Returns the old sector ID, or an error if the pilot is not found.
func (m *Manager) MovePilot(uid string, newSectorID int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, exists := m.pilots[uid]
	if !exists {
		return 0, fmt.Errorf("pilot %q not found", uid)
	}

	oldSectorID := sess.SectorID

	if set, ok := m.sectorSets[oldSectorID]; ok {
		delete(set, uid)
		if len(set) == 0 {
			delete(m.sectorSets, oldSectorID)
		}
	}

	sess.SectorID = newSectorID
	if m.sectorSets[newSectorID] == nil {
		m.sectorSets[newSectorID] = make(map[string]bool)
	}
	m.sectorSets[newSectorID][uid] = true

	return oldSectorID, nil
}

// PilotsInSector returns the display names of all pilots in the given sector.
//
// Postcondition: Returns a slice of pilot names (may be empty).
func (m *Manager) PilotsInSector(sectorID int) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uids, ok := m.sectorSets[sectorID]
	if !ok {
		return nil
	}

	names := make([]string, 0, len(uids))
	for uid := range uids {
		if sess, ok := m.pilots[uid]; ok {
			names = append(names, sess.CharName)
		}
	}
	return names
}

// PilotUIDsInSector returns the UIDs of all pilots in the given sector.
//
// Postcondition: Returns a slice of UIDs (may be empty).
func (m *Manager) PilotUIDsInSector(sectorID int) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uids, ok := m.sectorSets[sectorID]
	if !ok {
		return nil
	}

	result := make([]string, 0, len(uids))
	for uid := range uids {
		result = append(result, uid)
	}
	return result
}

// GetPilot returns the session for the given UID.
//
// Postcondition: Returns (session, true) if found, or (nil, false) otherwise.
func (m *Manager) GetPilot(uid string) (*PilotSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.pilots[uid]
	return sess, ok
}

// GetPilotByCharName returns the session for the pilot with the given character name.
//
// Postcondition: Returns (session, true) if found, or (nil, false) otherwise.
func (m *Manager) GetPilotByCharName(charName string) (*PilotSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sess := range m.pilots {
		if sess.CharName == charName {
			return sess, true
		}
	}
	return nil, false
}

// PilotCount returns the total number of connected pilots.
func (m *Manager) PilotCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pilots)
}

// CorporationOf looks up a pilot's corporation ID, implementing the shape
// garrison.CorporationLookup expects.
//
// Postcondition: Returns (corpID, true) if the pilot is connected and affiliated, (_, false) otherwise.
func (m *Manager) CorporationOf(characterID string) (string, bool) {
	sess, ok := m.GetPilot(characterID)
	if !ok || sess.CorporationID == "" {
		return "", false
	}
	return sess.CorporationID, true
}

// CargoOf looks up a connected pilot's cargo hold, implementing the shape
// CargoGlue and CombatGlue expect for holdOf/cargoOf.
func (m *Manager) CargoOf(characterID string) *cargo.Hold {
	sess, ok := m.GetPilot(characterID)
	if !ok {
		return nil
	}
	return sess.CargoHold
}

// DisplayName looks up a connected pilot's character name, falling back to
// the raw ID when the pilot is not (or no longer) connected.
func (m *Manager) DisplayName(characterID string) string {
	sess, ok := m.GetPilot(characterID)
	if !ok {
		return characterID
	}
	return sess.CharName
}
