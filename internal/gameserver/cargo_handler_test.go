package gameserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidreach/sectors/internal/events"
	"github.com/voidreach/sectors/internal/game/cargo"
	"github.com/voidreach/sectors/internal/game/salvage"
)

func newTestCargoGlue(t *testing.T, holds map[string]*cargo.Hold) (*CargoGlue, *salvage.Manager, *recordingBroadcaster) {
	t.Helper()
	salv := salvage.NewManager(time.Minute)
	bc := newRecordingBroadcaster()
	holdOf := func(characterID string) *cargo.Hold { return holds[characterID] }
	return NewCargoGlue(salv, bc, holdOf), salv, bc
}

func TestCargoGlue_DumpCargo_CreatesContainerAndEmptiesHold(t *testing.T) {
	hold := cargo.NewHold(100)
	require.NoError(t, hold.Add("ore", 30))
	glue, salv, bc := newTestCargoGlue(t, map[string]*cargo.Hold{"char-1": hold})

	container, err := glue.DumpCargo("char-1", 5, []CargoItem{{Commodity: "ore", Units: 20}})
	require.NoError(t, err)
	assert.Equal(t, 20, container.Cargo.Quantity("ore"))
	assert.Equal(t, 10, hold.Quantity("ore"))
	assert.Equal(t, 1, bc.count(events.SalvageCreated))
	assert.Len(t, salv.ListSector(5), 1)
}

func TestCargoGlue_DumpCargo_RejectsInsufficientCargo_NoMutation(t *testing.T) {
	hold := cargo.NewHold(100)
	require.NoError(t, hold.Add("ore", 5))
	glue, salv, _ := newTestCargoGlue(t, map[string]*cargo.Hold{"char-1": hold})

	_, err := glue.DumpCargo("char-1", 5, []CargoItem{{Commodity: "ore", Units: 10}})
	assert.Error(t, err)
	assert.Equal(t, 5, hold.Quantity("ore"))
	assert.Empty(t, salv.ListSector(5))
}

func TestCargoGlue_DumpCargo_UnknownCharacterErrors(t *testing.T) {
	glue, _, _ := newTestCargoGlue(t, map[string]*cargo.Hold{})
	_, err := glue.DumpCargo("nobody", 5, []CargoItem{{Commodity: "ore", Units: 1}})
	assert.Error(t, err)
}

func TestCargoGlue_CollectSalvage_MergesIntoHoldAndRemovesContainer(t *testing.T) {
	hold := cargo.NewHold(100)
	require.NoError(t, hold.Add("fuel", 10))
	glue, salv, bc := newTestCargoGlue(t, map[string]*cargo.Hold{"char-2": hold})

	container := salv.Create(5, salvage.CreateParams{Cargo: map[string]int{"ore": 20}})

	collected, err := glue.CollectSalvage("char-2", container.SalvageID)
	require.NoError(t, err)
	assert.Equal(t, container.SalvageID, collected.SalvageID)
	assert.Equal(t, 20, hold.Quantity("ore"))
	assert.Equal(t, 10, hold.Quantity("fuel"))
	assert.Equal(t, 1, bc.count(events.SalvageCollected))
	assert.Empty(t, salv.ListSector(5))
}

func TestCargoGlue_CollectSalvage_RejectsWhenHoldLacksCapacity(t *testing.T) {
	hold := cargo.NewHold(10)
	glue, salv, _ := newTestCargoGlue(t, map[string]*cargo.Hold{"char-3": hold})

	container := salv.Create(5, salvage.CreateParams{Cargo: map[string]int{"ore": 20}})

	_, err := glue.CollectSalvage("char-3", container.SalvageID)
	assert.Error(t, err)
	assert.Equal(t, 0, hold.TotalUnits())
	assert.Len(t, salv.ListSector(5), 1, "a rejected collection must leave the container unclaimed for retry")
}

func TestCargoGlue_CollectSalvage_UnknownIDErrors(t *testing.T) {
	hold := cargo.NewHold(100)
	glue, _, _ := newTestCargoGlue(t, map[string]*cargo.Hold{"char-1": hold})

	_, err := glue.CollectSalvage("char-1", "does-not-exist")
	assert.Error(t, err)
}
