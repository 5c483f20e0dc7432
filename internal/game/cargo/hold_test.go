package cargo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHold_Add_WithinCapacity(t *testing.T) {
	h := NewHold(100)
	require.NoError(t, h.Add("ore", 40))
	assert.Equal(t, 40, h.Quantity("ore"))
	assert.Equal(t, 40, h.TotalUnits())
}

func TestHold_Add_RejectsOverCapacity_NoPartialMutation(t *testing.T) {
	h := NewHold(50)
	require.NoError(t, h.Add("ore", 40))

	err := h.Add("ore", 20)
	assert.Error(t, err)
	assert.Equal(t, 40, h.Quantity("ore"), "a rejected Add must not partially apply")
}

func TestHold_Add_RejectsNonPositiveUnits(t *testing.T) {
	h := NewHold(100)
	assert.Error(t, h.Add("ore", 0))
	assert.Error(t, h.Add("ore", -5))
}

func TestHold_Remove_PartialAndFull(t *testing.T) {
	h := NewHold(100)
	require.NoError(t, h.Add("ore", 40))

	require.NoError(t, h.Remove("ore", 10))
	assert.Equal(t, 30, h.Quantity("ore"))

	require.NoError(t, h.Remove("ore", 30))
	assert.Equal(t, 0, h.Quantity("ore"))
	assert.NotContains(t, h.Units(), "ore")
}

func TestHold_Remove_RejectsMoreThanHeld(t *testing.T) {
	h := NewHold(100)
	require.NoError(t, h.Add("ore", 10))
	assert.Error(t, h.Remove("ore", 11))
}

func TestHold_Units_ReturnsSnapshotCopy(t *testing.T) {
	h := NewHold(100)
	require.NoError(t, h.Add("ore", 10))

	snapshot := h.Units()
	snapshot["ore"] = 999
	assert.Equal(t, 10, h.Quantity("ore"), "mutating the returned snapshot must not affect the hold")
}

func TestHold_TotalUnits_SumsAcrossCommodities(t *testing.T) {
	h := NewHold(100)
	require.NoError(t, h.Add("ore", 10))
	require.NoError(t, h.Add("fuel", 20))
	assert.Equal(t, 30, h.TotalUnits())
}
