package gameserver

import (
	"context"
	"fmt"

	"github.com/voidreach/sectors/internal/game/session"
	"github.com/voidreach/sectors/internal/storage/postgres"
)

// AccountInfo is the account-admin view of a player account: enough to
// show and change a role without leaking the password hash.
type AccountInfo struct {
	ID       int64
	Username string
	Role     string
}

// AccountAdmin is the account-management surface AdminHandler needs.
// AccountRepoAdapter implements it over postgres.AccountRepository.
type AccountAdmin interface {
	GetAccountByUsername(ctx context.Context, username string) (AccountInfo, error)
	SetAccountRole(ctx context.Context, accountID int64, role string) error
}

// AdminHandler exposes the admin.* RPC surface: looking up and changing an
// account's privilege role. Every call is gated on the caller's own role,
// not the target account's, so a demoted admin loses access immediately.
type AdminHandler struct {
	accounts AccountAdmin
	sessions *session.Manager
}

// NewAdminHandler builds an AdminHandler.
func NewAdminHandler(accounts AccountAdmin, sessions *session.Manager) *AdminHandler {
	return &AdminHandler{accounts: accounts, sessions: sessions}
}

// SetRole changes username's account role, provided the calling pilot uid
// currently holds the admin role.
//
// Precondition: role must be one of postgres.RolePlayer/RoleEditor/RoleAdmin.
func (h *AdminHandler) SetRole(ctx context.Context, uid, username, role string) (AccountInfo, error) {
	caller, ok := h.sessions.GetPilot(uid)
	if !ok {
		return AccountInfo{}, fmt.Errorf("admin: pilot %q not found", uid)
	}
	if caller.Role != postgres.RoleAdmin {
		return AccountInfo{}, fmt.Errorf("admin: pilot %q lacks the admin role", uid)
	}
	if !postgres.ValidRole(role) {
		return AccountInfo{}, postgres.ErrInvalidRole
	}

	info, err := h.accounts.GetAccountByUsername(ctx, username)
	if err != nil {
		return AccountInfo{}, err
	}
	if err := h.accounts.SetAccountRole(ctx, info.ID, role); err != nil {
		return AccountInfo{}, err
	}
	info.Role = role
	return info, nil
}
