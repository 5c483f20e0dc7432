package gameserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidreach/sectors/internal/game/session"
	"github.com/voidreach/sectors/internal/storage/postgres"
)

type fakeAccountAdmin struct {
	byUsername map[string]AccountInfo
}

func newFakeAccountAdmin() *fakeAccountAdmin {
	return &fakeAccountAdmin{byUsername: make(map[string]AccountInfo)}
}

func (f *fakeAccountAdmin) GetAccountByUsername(_ context.Context, username string) (AccountInfo, error) {
	info, ok := f.byUsername[username]
	if !ok {
		return AccountInfo{}, postgres.ErrAccountNotFound
	}
	return info, nil
}

func (f *fakeAccountAdmin) SetAccountRole(_ context.Context, accountID int64, role string) error {
	for username, info := range f.byUsername {
		if info.ID == accountID {
			info.Role = role
			f.byUsername[username] = info
			return nil
		}
	}
	return postgres.ErrAccountNotFound
}

func newTestAdminHandler(t *testing.T) (*AdminHandler, *session.Manager, *fakeAccountAdmin) {
	t.Helper()
	sessMgr := session.NewManager()
	accounts := newFakeAccountAdmin()
	accounts.byUsername["trader1"] = AccountInfo{ID: 1, Username: "trader1", Role: postgres.RolePlayer}
	return NewAdminHandler(accounts, sessMgr), sessMgr, accounts
}

func TestAdminHandler_SetRole_PromotesAccount(t *testing.T) {
	h, sessMgr, _ := newTestAdminHandler(t)
	_, err := sessMgr.AddPilot("admin1", "root", "Root", 1, 1, 0, postgres.RoleAdmin, "scout", 20)
	require.NoError(t, err)

	info, err := h.SetRole(context.Background(), "admin1", "trader1", postgres.RoleEditor)
	require.NoError(t, err)
	assert.Equal(t, postgres.RoleEditor, info.Role)
}

func TestAdminHandler_SetRole_RejectsNonAdminCaller(t *testing.T) {
	h, sessMgr, _ := newTestAdminHandler(t)
	_, err := sessMgr.AddPilot("p1", "trader1", "Trader", 1, 1, 0, postgres.RolePlayer, "scout", 20)
	require.NoError(t, err)

	_, err = h.SetRole(context.Background(), "p1", "trader1", postgres.RoleAdmin)
	assert.Error(t, err)
}

func TestAdminHandler_SetRole_RejectsInvalidRole(t *testing.T) {
	h, sessMgr, _ := newTestAdminHandler(t)
	_, err := sessMgr.AddPilot("admin1", "root", "Root", 1, 1, 0, postgres.RoleAdmin, "scout", 20)
	require.NoError(t, err)

	_, err = h.SetRole(context.Background(), "admin1", "trader1", "superadmin")
	assert.ErrorIs(t, err, postgres.ErrInvalidRole)
}

func TestAdminHandler_SetRole_UnknownUsernameErrors(t *testing.T) {
	h, sessMgr, _ := newTestAdminHandler(t)
	_, err := sessMgr.AddPilot("admin1", "root", "Root", 1, 1, 0, postgres.RoleAdmin, "scout", 20)
	require.NoError(t, err)

	_, err = h.SetRole(context.Background(), "admin1", "ghost", postgres.RoleEditor)
	assert.ErrorIs(t, err, postgres.ErrAccountNotFound)
}
