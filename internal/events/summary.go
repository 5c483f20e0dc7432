package events

import "fmt"

// SummaryFunc renders a short human-readable line for one payload type.
type SummaryFunc func(payload any) string

// SummaryRegistry maps event names to a SummaryFunc, replacing the
// monkeypatched set_summary_formatter of the reference implementation with
// an explicit registration table built once at client construction.
type SummaryRegistry struct {
	formatters map[Name]SummaryFunc
}

// NewSummaryRegistry builds a registry pre-populated with the default
// formatters for the combat, movement, error, chat and sector-update
// events; other event names fall back to the bare name in Summarize.
// Callers may override or add formatters with Register.
func NewSummaryRegistry() *SummaryRegistry {
	r := &SummaryRegistry{formatters: make(map[Name]SummaryFunc)}
	r.Register(CombatRoundWaiting, summarizeRoundWaiting)
	r.Register(CombatRoundResolved, summarizeRoundResolved)
	r.Register(CombatEnded, summarizeCombatEnded)
	r.Register(CombatActionAccepted, summarizeCombatActionAccepted)
	r.Register(CharacterMoved, summarizeCharacterMoved)
	r.Register(Error, summarizeError)
	r.Register(ChatMessage, summarizeChatMessage)
	r.Register(SectorUpdate, summarizeSectorUpdate)
	return r
}

// Register installs (or replaces) the formatter for name.
func (r *SummaryRegistry) Register(name Name, fn SummaryFunc) {
	r.formatters[name] = fn
}

// Summarize renders payload using the formatter registered for name, or a
// generic fallback when none is registered.
func (r *SummaryRegistry) Summarize(name Name, payload any) string {
	if fn, ok := r.formatters[name]; ok {
		return fn(payload)
	}
	return string(name)
}

func summarizeRoundWaiting(payload any) string {
	p, ok := payload.(CombatRoundWaitingPayload)
	if !ok {
		return string(CombatRoundWaiting)
	}
	return fmt.Sprintf("combat %s round %d awaiting actions (%d participants)", p.CombatID, p.Round, len(p.Participants))
}

func summarizeRoundResolved(payload any) string {
	p, ok := payload.(CombatRoundResolvedPayload)
	if !ok {
		return string(CombatRoundResolved)
	}
	if p.Result != "" {
		return fmt.Sprintf("combat %s round %d resolved: %s", p.CombatID, p.Round, p.Result)
	}
	return fmt.Sprintf("combat %s round %d resolved", p.CombatID, p.Round)
}

func summarizeCombatEnded(payload any) string {
	p, ok := payload.(CombatEndedPayload)
	if !ok {
		return string(CombatEnded)
	}
	return fmt.Sprintf("combat %s ended: %s (%d salvage containers)", p.CombatID, p.Result, len(p.Salvage))
}

func summarizeCombatActionAccepted(payload any) string {
	p, ok := payload.(CombatActionAcceptedPayload)
	if !ok {
		return string(CombatActionAccepted)
	}
	return fmt.Sprintf("combat %s round %d: %s accepted %s", p.CombatID, p.Round, p.CharacterID, p.Action)
}

func summarizeCharacterMoved(payload any) string {
	p, ok := payload.(CharacterMovedPayload)
	if !ok {
		return string(CharacterMoved)
	}
	verb := "arrived in"
	if p.Movement == "depart" {
		verb = "departed"
	}
	return fmt.Sprintf("%s %s sector %d", p.Player.Name, verb, p.ToSector)
}

func summarizeError(payload any) string {
	p, ok := payload.(ErrorPayload)
	if !ok {
		return string(Error)
	}
	return fmt.Sprintf("error %d: %s", p.Status, p.Detail)
}

func summarizeSectorUpdate(payload any) string {
	p, ok := payload.(SectorUpdatePayload)
	if !ok {
		return string(SectorUpdate)
	}
	return fmt.Sprintf("sector %d (%s): %d pilot(s) present", p.Sector.ID, p.Name, len(p.Pilots))
}

func summarizeChatMessage(payload any) string {
	p, ok := payload.(ChatMessagePayload)
	if !ok {
		return string(ChatMessage)
	}
	if p.Kind == ChatEmote {
		return fmt.Sprintf("%s %s", p.Sender, p.Content)
	}
	return fmt.Sprintf("%s says: %s", p.Sender, p.Content)
}
