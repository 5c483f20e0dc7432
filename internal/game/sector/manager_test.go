package sector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager(t *testing.T) {
	mgr, err := NewManager(threeSectorMap())
	require.NoError(t, err)
	assert.Equal(t, 3, mgr.SectorCount())
}

func TestNewManager_RejectsInvalidMap(t *testing.T) {
	m := threeSectorMap()
	m.Sectors[4] = &Sector{ID: 4}
	_, err := NewManager(m)
	assert.Error(t, err)
}

func TestManager_GetSector(t *testing.T) {
	mgr, err := NewManager(threeSectorMap())
	require.NoError(t, err)

	s, ok := mgr.GetSector(2)
	require.True(t, ok)
	assert.Equal(t, "Alpha Centauri", s.Name)

	_, ok = mgr.GetSector(99)
	assert.False(t, ok)
}

func TestManager_Warp_FollowsDirectLink(t *testing.T) {
	mgr, err := NewManager(threeSectorMap())
	require.NoError(t, err)

	dest, err := mgr.Warp(1, 2)
	require.NoError(t, err)
	assert.Equal(t, "Alpha Centauri", dest.Name)
}

func TestManager_Warp_RejectsNonAdjacentSector(t *testing.T) {
	mgr, err := NewManager(threeSectorMap())
	require.NoError(t, err)

	_, err = mgr.Warp(1, 3)
	assert.Error(t, err)
}

func TestManager_Warp_RejectsUnknownOrigin(t *testing.T) {
	mgr, err := NewManager(threeSectorMap())
	require.NoError(t, err)

	_, err = mgr.Warp(404, 2)
	assert.Error(t, err)
}

func TestManager_StartSector(t *testing.T) {
	mgr, err := NewManager(threeSectorMap())
	require.NoError(t, err)
	assert.Equal(t, 1, mgr.StartSector().ID)
}

func TestManager_AllSectors(t *testing.T) {
	mgr, err := NewManager(threeSectorMap())
	require.NoError(t, err)
	assert.Len(t, mgr.AllSectors(), 3)
}
