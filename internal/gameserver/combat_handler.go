package gameserver

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voidreach/sectors/internal/events"
	"github.com/voidreach/sectors/internal/game/combat"
	"github.com/voidreach/sectors/internal/game/garrison"
	"github.com/voidreach/sectors/internal/game/salvage"
)

// Broadcaster delivers a rendered event to every session occupying a
// sector. Implemented by the transport layer; CombatGlue never talks to a
// session table directly.
type Broadcaster interface {
	BroadcastToSector(sectorID int, ev events.Event)
}

// TollLedger is a combat.Manager-lifetime record of one encounter's toll
// demands and payments, implementing garrison.TollRegistry. A fresh ledger
// is created per encounter and discarded when the encounter ends.
type TollLedger struct {
	mu     sync.Mutex
	demand map[string]int
	paid   map[string]bool
}

// NewTollLedger builds an empty ledger.
func NewTollLedger() *TollLedger {
	return &TollLedger{demand: make(map[string]int), paid: make(map[string]bool)}
}

// DemandRound implements garrison.TollRegistry.
func (l *TollLedger) DemandRound(garrisonID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.demand[garrisonID]
}

// Paid implements garrison.TollRegistry.
func (l *TollLedger) Paid(garrisonID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paid[garrisonID]
}

// SetDemand records the round on which garrisonID issued its toll demand.
func (l *TollLedger) SetDemand(garrisonID string, round int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.demand[garrisonID] = round
}

// MarkPaid records that garrisonID's toll has been settled for the
// encounter, suppressing further attacks from garrison.Decide's toll mode.
func (l *TollLedger) MarkPaid(garrisonID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paid[garrisonID] = true
}

// CombatGlue wires combat.Manager's round callbacks to the event transport,
// starts encounters when a ship enters a sector a hostile garrison
// occupies, and reconciles the garrison store and salvage manager once an
// encounter ends. It holds no combat rules of its own; those live in
// combat and garrison.
//
// Precondition: all constructor arguments are non-nil.
type CombatGlue struct {
	mu sync.Mutex

	manager     *combat.Manager
	garrisons   *garrison.Store
	salvage     *salvage.Manager
	broadcaster Broadcaster
	summaries   *events.SummaryRegistry

	corpLookup  garrison.CorporationLookup
	displayName func(ownerID string) string
	cargoOf     func(characterID string) map[string]int

	ledgers map[string]*TollLedger
}

// NewCombatGlue builds a CombatGlue and registers its callbacks with
// manager. displayName and cargoOf may be nil; cargoOf's absence means
// defeated characters drop empty-cargo salvage containers (credits and
// scrap only).
func NewCombatGlue(
	manager *combat.Manager,
	garrisons *garrison.Store,
	salv *salvage.Manager,
	broadcaster Broadcaster,
	corpLookup garrison.CorporationLookup,
	displayName func(ownerID string) string,
	cargoOf func(characterID string) map[string]int,
) *CombatGlue {
	g := &CombatGlue{
		manager:     manager,
		garrisons:   garrisons,
		salvage:     salv,
		broadcaster: broadcaster,
		summaries:   events.NewSummaryRegistry(),
		corpLookup:  corpLookup,
		displayName: displayName,
		cargoOf:     cargoOf,
		ledgers:     make(map[string]*TollLedger),
	}
	manager.ConfigureCallbacks(g.onRoundWaiting, g.onRoundResolved, g.onCombatEnded)
	return g
}

// OnSectorEntered checks whether a hostile garrison occupies sectorID and,
// if so, starts a combat encounter between entrant and the garrison's
// fighters. A garrison owned by entrant's own character, or by a
// character in the same corporation (per corpLookup), never starts a
// fight. If an encounter is already active in the sector, it is returned
// unchanged and started is false.
//
// Postcondition: a non-nil encounter with started=true has already had its
// first combat.round_waiting broadcast.
func (g *CombatGlue) OnSectorEntered(sectorID int, entrant *combat.Combatant) (*combat.Encounter, bool, error) {
	if existing, ok := g.manager.FindEncounterInSector(sectorID); ok {
		return existing, false, nil
	}

	target := g.findHostileGarrison(sectorID, entrant.OwnerCharacterID)
	if target == nil {
		return nil, false, nil
	}

	garrisonCombatant := &combat.Combatant{
		ID:               "garrison:" + target.OwnerID,
		Kind:             combat.KindGarrison,
		Name:             g.name(target.OwnerID) + "'s garrison",
		Fighters:         target.Fighters,
		OwnerCharacterID: target.OwnerID,
	}

	enc := &combat.Encounter{
		ID:       uuid.New().String(),
		SectorID: sectorID,
		Participants: map[string]*combat.Combatant{
			entrant.ID:           entrant,
			garrisonCombatant.ID: garrisonCombatant,
		},
		Context: map[string]any{
			"garrison_owner": target.OwnerID,
			"garrison_mode":  string(target.Mode),
		},
	}

	ledger := NewTollLedger()
	if target.Mode == garrison.ModeToll {
		ledger.SetDemand(garrisonCombatant.ID, 1)
	}
	g.mu.Lock()
	g.ledgers[enc.ID] = ledger
	g.mu.Unlock()

	started, err := g.manager.StartEncounter(enc, true)
	if err != nil {
		g.mu.Lock()
		delete(g.ledgers, enc.ID)
		g.mu.Unlock()
		return nil, false, err
	}
	return started, true, nil
}

func (g *CombatGlue) findHostileGarrison(sectorID int, entrantOwnerID string) *garrison.State {
	stationed := g.garrisons.ListSector(sectorID)
	sort.Slice(stationed, func(i, j int) bool { return stationed[i].OwnerID < stationed[j].OwnerID })
	for i := range stationed {
		st := &stationed[i]
		if st.OwnerID == entrantOwnerID {
			continue
		}
		if g.sameCorp(entrantOwnerID, st.OwnerID) {
			continue
		}
		return st
	}
	return nil
}

func (g *CombatGlue) sameCorp(a, b string) bool {
	if g.corpLookup == nil {
		return false
	}
	corpA, okA := g.corpLookup(a)
	corpB, okB := g.corpLookup(b)
	return okA && okB && corpA == corpB
}

func (g *CombatGlue) name(ownerID string) string {
	if g.displayName != nil {
		return g.displayName(ownerID)
	}
	return ownerID
}

// PayToll records that the garrison identified by garrisonID has had its
// toll paid for combatID, suppressing further toll-mode attacks.
func (g *CombatGlue) PayToll(combatID, garrisonID string) error {
	g.mu.Lock()
	ledger, ok := g.ledgers[combatID]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("gameserver: no toll ledger for combat %s", combatID)
	}
	ledger.MarkPaid(garrisonID)
	return nil
}

// DecideGarrisonAction computes garrisonID's action for the current round
// of enc, consulting enc's toll ledger when mode is garrison.ModeToll.
func (g *CombatGlue) DecideGarrisonAction(enc *combat.Encounter, garrisonID string, mode garrison.Mode) combat.RoundAction {
	g.mu.Lock()
	ledger := g.ledgers[enc.ID]
	g.mu.Unlock()
	return garrison.Decide(garrisonID, mode, enc, g.corpLookup, ledger, nil)
}

func (g *CombatGlue) onRoundWaiting(enc *combat.Encounter) {
	payload := events.CombatRoundWaitingPayload{
		CombatID:     enc.ID,
		Sector:       events.SectorRef{ID: enc.SectorID},
		Round:        enc.RoundNumber,
		CurrentTime:  time.Now().UTC().Format(time.RFC3339),
		Deadline:     enc.Deadline.UTC().Format(time.RFC3339),
		Participants: g.participantViews(enc),
		Garrison:     g.garrisonView(enc),
	}
	g.broadcast(enc.SectorID, events.CombatRoundWaiting, payload)
}

func (g *CombatGlue) onRoundResolved(enc *combat.Encounter, outcome combat.CombatRoundOutcome) {
	g.syncGarrisonStore(enc)

	payload := events.CombatRoundResolvedPayload{
		CombatID:        enc.ID,
		Sector:          events.SectorRef{ID: enc.SectorID},
		Round:           outcome.RoundNumber,
		Hits:            outcome.Hits,
		OffensiveLosses: outcome.OffensiveLosses,
		DefensiveLosses: outcome.DefensiveLosses,
		ShieldLoss:      outcome.ShieldLoss,
		FleeResults:     outcome.FleeResults,
		End:             outcome.EndState,
		Result:          outcome.EndState,
		Participants:    g.participantViews(enc),
		Garrison:        g.garrisonView(enc),
	}
	if !enc.Ended {
		payload.Deadline = enc.Deadline.UTC().Format(time.RFC3339)
	}
	g.broadcast(enc.SectorID, events.CombatRoundResolved, payload)
}

// onCombatEnded reconciles persisted state once an encounter is over: the
// garrison store is synced to the post-combat fighter counts (removing any
// garrison reduced to zero), and a salvage container is dropped for every
// defeated character participant. It is invoked by combat.Manager in its
// own goroutine, so it never blocks round resolution for other encounters.
func (g *CombatGlue) onCombatEnded(enc *combat.Encounter, outcome combat.CombatRoundOutcome) {
	g.syncGarrisonStore(enc)

	var salvageContainers []*salvage.Container
	victorID := g.solePlayerSurvivor(enc)
	for id, c := range enc.Participants {
		if c.Kind != combat.KindCharacter || c.Fighters > 0 {
			continue
		}
		container := g.salvage.Create(enc.SectorID, salvage.CreateParams{
			VictorID: victorID,
			Cargo:    g.cargoFor(id),
			Metadata: map[string]any{"combat_id": enc.ID, "defeated_character_id": id},
		})
		salvageContainers = append(salvageContainers, container)
		g.broadcast(enc.SectorID, events.SalvageCreated, salvagePayload(container))
	}

	g.mu.Lock()
	delete(g.ledgers, enc.ID)
	g.mu.Unlock()

	payload := events.CombatEndedPayload{
		CombatRoundResolvedPayload: events.CombatRoundResolvedPayload{
			CombatID:        enc.ID,
			Sector:          events.SectorRef{ID: enc.SectorID},
			Round:           outcome.RoundNumber,
			Hits:            outcome.Hits,
			OffensiveLosses: outcome.OffensiveLosses,
			DefensiveLosses: outcome.DefensiveLosses,
			ShieldLoss:      outcome.ShieldLoss,
			FleeResults:     outcome.FleeResults,
			End:             outcome.EndState,
			Result:          outcome.EndState,
			Participants:    g.participantViews(enc),
			Garrison:        g.garrisonView(enc),
		},
		Salvage: make([]events.SalvagePayload, 0, len(salvageContainers)),
	}
	for _, c := range salvageContainers {
		payload.Salvage = append(payload.Salvage, salvagePayload(c))
	}
	for _, log := range enc.Logs {
		payload.Logs = append(payload.Logs, fmt.Sprintf("round %d: %s", log.RoundNumber, log.Result))
	}
	g.broadcast(enc.SectorID, events.CombatEnded, payload)
}

// solePlayerSurvivor returns the ID of the single surviving character
// participant, or "" if there is none or more than one (a mutual
// defeat/stalemate leaves no sole victor to credit salvage to).
func (g *CombatGlue) solePlayerSurvivor(enc *combat.Encounter) string {
	survivor := ""
	count := 0
	for id, c := range enc.Participants {
		if c.Kind == combat.KindCharacter && c.Fighters > 0 {
			survivor = id
			count++
		}
	}
	if count != 1 {
		return ""
	}
	return survivor
}

// syncGarrisonStore writes every garrison participant's current fighter
// count back to the garrison store, removing it if it was reduced to zero.
func (g *CombatGlue) syncGarrisonStore(enc *combat.Encounter) {
	for _, c := range enc.Participants {
		if c.Kind != combat.KindGarrison {
			continue
		}
		if _, _, err := g.garrisons.SetFighters(enc.SectorID, c.OwnerCharacterID, c.Fighters); err != nil {
			continue
		}
	}
}

// cargoFor looks up a defeated character's cargo via the configured
// cargoOf callback, falling back to an empty hold when the cargo model is
// not wired in (cargoOf is nil) or the callback reports none.
func (g *CombatGlue) cargoFor(characterID string) map[string]int {
	if g.cargoOf == nil {
		return nil
	}
	return g.cargoOf(characterID)
}

func (g *CombatGlue) participantViews(enc *combat.Encounter) []events.ParticipantView {
	ids := make([]string, 0, len(enc.Participants))
	for id := range enc.Participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	views := make([]events.ParticipantView, 0, len(ids))
	for _, id := range ids {
		c := enc.Participants[id]
		if c.Kind == combat.KindGarrison {
			continue
		}
		views = append(views, events.ParticipantView{
			Name:            c.Name,
			PlayerType:      c.Kind.String(),
			ShieldIntegrity: c.Mitigation(),
		})
	}
	return views
}

func (g *CombatGlue) garrisonView(enc *combat.Encounter) *events.GarrisonView {
	for _, c := range enc.Participants {
		if c.Kind != combat.KindGarrison {
			continue
		}
		states := g.garrisons.ListSector(enc.SectorID)
		mode := garrison.ModeOffensive
		tollAmount := 0
		deployedAt := ""
		for _, st := range states {
			if st.OwnerID == c.OwnerCharacterID {
				mode = st.Mode
				tollAmount = st.TollAmount
				deployedAt = st.DeployedAt
				break
			}
		}
		return &events.GarrisonView{
			OwnerName:  g.name(c.OwnerCharacterID),
			Fighters:   c.Fighters,
			Mode:       string(mode),
			TollAmount: tollAmount,
			DeployedAt: deployedAt,
		}
	}
	return nil
}

func (g *CombatGlue) broadcast(sectorID int, name events.Name, payload any) {
	if g.broadcaster == nil {
		return
	}
	g.broadcaster.BroadcastToSector(sectorID, events.Event{
		Name:    name,
		Payload: payload,
		Summary: g.summaries.Summarize(name, payload),
	})
}

func salvagePayload(c *salvage.Container) events.SalvagePayload {
	return events.SalvagePayload{
		SalvageID: c.SalvageID,
		Sector:    c.SectorID,
		VictorID:  c.VictorID,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt: c.ExpiresAt.UTC().Format(time.RFC3339),
		Cargo:     c.Cargo.Units(),
		Scrap:     c.Scrap,
		Credits:   c.Credits,
		Claimed:   c.Claimed,
		ClaimedBy: c.ClaimedBy,
	}
}
