package sector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeSectorMap() *Map {
	return &Map{
		StartID: 1,
		Sectors: map[int]*Sector{
			1: {ID: 1, Name: "Sol", Warps: []int{2}},
			2: {ID: 2, Name: "Alpha Centauri", Warps: []int{1, 3}},
			3: {ID: 3, Name: "Proxima", Warps: []int{2}},
		},
	}
}

func TestMap_Validate_Valid(t *testing.T) {
	m := threeSectorMap()
	require.NoError(t, m.Validate())
}

func TestMap_Validate_DanglingWarp(t *testing.T) {
	m := threeSectorMap()
	m.Sectors[3].Warps = append(m.Sectors[3].Warps, 99)
	err := m.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sector 99")
}

func TestMap_Validate_IsolatedSector(t *testing.T) {
	m := threeSectorMap()
	m.Sectors[4] = &Sector{ID: 4, Name: "Isolated"}
	err := m.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestMap_Validate_MissingStartSector(t *testing.T) {
	m := threeSectorMap()
	m.StartID = 404
	err := m.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "start sector")
}

func TestMap_Validate_EmptyMap(t *testing.T) {
	m := &Map{Sectors: map[int]*Sector{}}
	assert.Error(t, m.Validate())
}

func TestSector_HasWarpTo(t *testing.T) {
	s := &Sector{ID: 1, Warps: []int{2, 3}}
	assert.True(t, s.HasWarpTo(2))
	assert.False(t, s.HasWarpTo(99))
}
