package gameserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/voidreach/sectors/internal/config"
	"github.com/voidreach/sectors/internal/game/session"
	"github.com/voidreach/sectors/internal/storage/postgres"
)

// AccountAuthenticator verifies an account's credentials, implemented by
// postgres.AccountRepository.
type AccountAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) (postgres.Account, error)
}

// PilotRegistry loads or creates the pilot record backing an account's
// presence in the sector map, implemented by postgres.PilotRepository.
type PilotRegistry interface {
	GetByName(ctx context.Context, name string) (*postgres.Pilot, error)
	Create(ctx context.Context, p *postgres.Pilot) (*postgres.Pilot, error)
}

// LoginHandler authenticates an account over HTTP and registers its pilot
// with the session table, handing back the uid the client embeds in its
// WebSocket URL to open the game connection proper. This replaces the
// teacher's gRPC Connect RPC with a plain request/response step ahead of
// the upgrade, since the WebSocket frame protocol itself carries no
// authentication envelope of its own.
type LoginHandler struct {
	accounts AccountAuthenticator
	pilots   PilotRegistry
	sessions *session.Manager
	cfg      config.GameServerConfig
}

// NewLoginHandler builds a LoginHandler.
func NewLoginHandler(accounts AccountAuthenticator, pilots PilotRegistry, sessions *session.Manager, cfg config.GameServerConfig) *LoginHandler {
	return &LoginHandler{accounts: accounts, pilots: pilots, sessions: sessions, cfg: cfg}
}

type loginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	PilotName string `json:"pilot_name"`
}

type loginResponse struct {
	UID      string `json:"uid"`
	SectorID int    `json:"sector_id"`
	Credits  int    `json:"credits"`
	ShipType string `json:"ship_type"`
}

// ServeHTTP handles POST /login: {username, password, pilot_name}. A pilot
// name never seen before for this account is created fresh with the
// server's default starting loadout; an existing one is resumed from its
// last saved sector/credits/hull state.
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	account, err := h.accounts.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	pilot, err := h.pilots.GetByName(ctx, req.PilotName)
	if err != nil {
		pilot, err = h.pilots.Create(ctx, &postgres.Pilot{
			AccountID:     account.ID,
			Name:          req.PilotName,
			SectorID:      1,
			Credits:       h.cfg.StartingCredits,
			ShipType:      "scout",
			Fighters:      20,
			MaxFighters:   20,
			Shields:       100,
			MaxShields:    100,
			CargoCapacity: h.cfg.DefaultCargoCapacity,
		})
		if err != nil {
			http.Error(w, fmt.Sprintf("creating pilot: %v", err), http.StatusInternalServerError)
			return
		}
	}
	if pilot.AccountID != account.ID {
		http.Error(w, "pilot belongs to another account", http.StatusForbidden)
		return
	}

	uid := fmt.Sprintf("%d", pilot.ID)
	if _, ok := h.sessions.GetPilot(uid); !ok {
		if _, err := h.sessions.AddPilot(
			uid, account.Username, pilot.Name, pilot.ID, pilot.SectorID,
			pilot.Credits, account.Role, pilot.ShipType, pilot.CargoCapacity,
		); err != nil {
			http.Error(w, fmt.Sprintf("registering session: %v", err), http.StatusInternalServerError)
			return
		}
		if sess, ok := h.sessions.GetPilot(uid); ok {
			sess.Fighters = pilot.Fighters
			sess.MaxFighters = pilot.MaxFighters
			sess.Shields = pilot.Shields
			sess.MaxShields = pilot.MaxShields
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loginResponse{
		UID:      uid,
		SectorID: pilot.SectorID,
		Credits:  pilot.Credits,
		ShipType: pilot.ShipType,
	})
}
