package gameserver

import (
	"context"
	"fmt"

	"github.com/voidreach/sectors/internal/events"
)

// combatAckResponse is the minimal reply to combat.initiate/combat.action:
// combat.Encounter and combat.CombatRoundOutcome carry no JSON tags, since
// their primary consumers are combat.Manager's own round callbacks, not the
// wire. The full picture reaches the client moments later as a
// combat.round_waiting/round_resolved broadcast instead.
type combatAckResponse struct {
	CombatID string `json:"combat_id"`
	Round    int    `json:"round"`
}

// RegisterGameEndpoints installs the RPC dispatch table §6.2 describes
// onto s, closing over the handlers that implement each domain operation.
func RegisterGameEndpoints(
	s *Server,
	combatHandler *CombatHandler,
	garrisonHandler *GarrisonHandler,
	warpHandler *WarpHandler,
	cargoGlue *CargoGlue,
	chatHandler *ChatHandler,
	adminHandler *AdminHandler,
) {
	s.RegisterEndpoint("combat.initiate", func(uid string, p map[string]any) (any, error) {
		enc, err := combatHandler.Initiate(uid, payloadString(p, "target_id"), payloadString(p, "target_type"))
		if err != nil {
			return nil, err
		}
		return combatAckResponse{CombatID: enc.ID, Round: enc.RoundNumber}, nil
	})

	s.RegisterEndpoint("combat.action", func(uid string, p map[string]any) (any, error) {
		combatID := payloadString(p, "combat_id")
		action := payloadString(p, "action")
		round := payloadInt(p, "round")

		s.PushToPilot(uid, events.Event{
			Name: events.CombatActionAccepted,
			Payload: events.CombatActionAcceptedPayload{
				CombatID:    combatID,
				CharacterID: uid,
				Round:       round,
				Action:      action,
			},
			Summary: s.summaries.Summarize(events.CombatActionAccepted, events.CombatActionAcceptedPayload{
				CombatID: combatID, CharacterID: uid, Round: round, Action: action,
			}),
		}, "")

		outcome, err := combatHandler.Action(
			combatID, uid, action,
			payloadInt(p, "commit"),
			payloadString(p, "target_id"),
			payloadInt(p, "to_sector"),
		)
		if err != nil {
			return nil, err
		}
		ack := combatAckResponse{CombatID: combatID, Round: round}
		if outcome != nil {
			ack.Round = outcome.RoundNumber
		}
		return ack, nil
	})

	s.RegisterEndpoint("combat.leave_fighters", func(uid string, p map[string]any) (any, error) {
		return garrisonHandler.LeaveFighters(
			uid,
			payloadInt(p, "sector"),
			payloadInt(p, "quantity"),
			payloadMode(p, "mode"),
			payloadInt(p, "toll_amount"),
		)
	})

	s.RegisterEndpoint("combat.collect_fighters", func(uid string, p map[string]any) (any, error) {
		taken, err := garrisonHandler.CollectFighters(uid, payloadInt(p, "sector"), payloadInt(p, "quantity"))
		if err != nil {
			return nil, err
		}
		return map[string]int{"collected": taken}, nil
	})

	s.RegisterEndpoint("combat.set_garrison_mode", func(uid string, p map[string]any) (any, error) {
		return garrisonHandler.SetGarrisonMode(
			uid,
			payloadInt(p, "sector"),
			payloadMode(p, "mode"),
			payloadInt(p, "toll_amount"),
		)
	})

	s.RegisterEndpoint("salvage.collect", func(uid string, p map[string]any) (any, error) {
		container, err := cargoGlue.CollectSalvage(uid, payloadString(p, "salvage_id"))
		if err != nil {
			return nil, err
		}
		return salvagePayload(container), nil
	})

	s.RegisterEndpoint("dump_cargo", func(uid string, p map[string]any) (any, error) {
		pilot, ok := s.sessions.GetPilot(uid)
		if !ok {
			return nil, fmt.Errorf("gameserver: pilot %q not found", uid)
		}
		container, err := cargoGlue.DumpCargo(uid, pilot.SectorID, payloadCargoItems(p, "items"))
		if err != nil {
			return nil, err
		}
		return salvagePayload(container), nil
	})

	s.RegisterEndpoint("warp", func(uid string, p map[string]any) (any, error) {
		snapshot, _, err := warpHandler.Warp(uid, payloadInt(p, "to_sector"))
		if err != nil {
			return nil, err
		}
		return snapshot, nil
	})

	s.RegisterEndpoint("chat.say", func(uid string, p map[string]any) (any, error) {
		return chatHandler.Say(uid, payloadString(p, "message"))
	})

	s.RegisterEndpoint("chat.emote", func(uid string, p map[string]any) (any, error) {
		return chatHandler.Emote(uid, payloadString(p, "action"))
	})

	s.RegisterEndpoint("chat.who", func(uid string, _ map[string]any) (any, error) {
		names, err := chatHandler.Who(uid)
		if err != nil {
			return nil, err
		}
		return map[string][]string{"pilots": names}, nil
	})

	s.RegisterEndpoint("admin.set_role", func(uid string, p map[string]any) (any, error) {
		ctx, cancel := contextWithRPCTimeout(context.Background(), s.cfg)
		defer cancel()
		return adminHandler.SetRole(ctx, uid, payloadString(p, "username"), payloadString(p, "role"))
	})
}
