package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xbacnet/xbacnet/internal/store"
)

func testSnapshot() *store.Snapshot {
	return &store.Snapshot{
		AnalogInputs:  []store.AnalogInputRow{analogInputRow()},
		AnalogOutputs: []store.AnalogOutputRow{analogOutputRow()},
		BinaryInputs: []store.BinaryInputRow{{
			ObjectIdentifier: 3001,
			ObjectName:       "DI1",
			PresentValue:     "inactive",
			StatusFlags:      "0000",
			EventState:       "normal",
			Polarity:         "normal",
		}},
		MultiStateOutputs: []store.MultiStateOutputRow{multiStateOutputRow()},
	}
}

func TestBuildRegistry(t *testing.T) {
	reg, err := BuildRegistry(testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, 4, reg.Len())

	o, ok := reg.Get(ID{Type: TypeAnalogInput, Instance: 1001})
	require.True(t, ok)
	assert.Equal(t, "T1", o.ObjectName())

	_, ok = reg.Get(ID{Type: TypeAnalogInput, Instance: 9999})
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	snap := testSnapshot()
	snap.AnalogInputs = append(snap.AnalogInputs, snap.AnalogInputs[0])
	_, err := BuildRegistry(snap)
	assert.ErrorIs(t, err, ErrDuplicateObject)
}

func TestRegistryAllowsSameInstanceAcrossTypes(t *testing.T) {
	reg := NewRegistry()

	ai, err := NewAnalogInput(analogInputRow())
	require.NoError(t, err)
	require.NoError(t, reg.Add(ai))

	row := analogOutputRow()
	row.ObjectIdentifier = 1001 // same instance, different type
	ao, err := NewAnalogOutput(row)
	require.NoError(t, err)
	assert.NoError(t, reg.Add(ao))

	// Same (type, instance) is rejected.
	ai2, err := NewAnalogInput(analogInputRow())
	require.NoError(t, err)
	assert.ErrorIs(t, reg.Add(ai2), ErrDuplicateObject)
}

func TestApplyRefreshUpdatesInputs(t *testing.T) {
	reg, err := BuildRegistry(testSnapshot())
	require.NoError(t, err)

	snap := testSnapshot()
	snap.AnalogInputs[0].PresentValue = 25.8

	changed, errs := reg.ApplyRefresh(snap)
	assert.Empty(t, errs)
	assert.Contains(t, changed, ID{Type: TypeAnalogInput, Instance: 1001})

	o, _ := reg.Get(ID{Type: TypeAnalogInput, Instance: 1001})
	v, err := o.ReadProperty(PropPresentValue)
	require.NoError(t, err)
	assert.Equal(t, 25.8, v)
}

func TestApplyRefreshSuppressesOutputPresentValue(t *testing.T) {
	reg, err := BuildRegistry(testSnapshot())
	require.NoError(t, err)

	aoID := ID{Type: TypeAnalogOutput, Instance: 2001}
	o, _ := reg.Get(aoID)
	_, err = o.WriteProperty(PropPresentValue, 42.0)
	require.NoError(t, err)

	// The database still carries the stale value.
	snap := testSnapshot()
	snap.AnalogOutputs[0].PresentValue = 0.0

	changed, errs := reg.ApplyRefresh(snap)
	assert.Empty(t, errs)
	assert.NotContains(t, changed, aoID)

	v, err := o.ReadProperty(PropPresentValue)
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)
}

func TestApplyRefreshSkipsMalformedRows(t *testing.T) {
	reg, err := BuildRegistry(testSnapshot())
	require.NoError(t, err)

	snap := testSnapshot()
	snap.AnalogInputs[0].StatusFlags = "012"
	snap.BinaryInputs[0].PresentValue = "active"

	changed, errs := reg.ApplyRefresh(snap)

	// The malformed analog row is reported and its object untouched.
	require.Len(t, errs, 1)
	var rowErr RowError
	require.ErrorAs(t, errs[0], &rowErr)
	assert.Equal(t, ID{Type: TypeAnalogInput, Instance: 1001}, rowErr.ID)

	o, _ := reg.Get(ID{Type: TypeAnalogInput, Instance: 1001})
	v, _ := o.ReadProperty(PropPresentValue)
	assert.Equal(t, 25.5, v)

	// The healthy binary row still refreshed.
	assert.Contains(t, changed, ID{Type: TypeBinaryInput, Instance: 3001})
}

func TestApplyRefreshLeavesAbsentObjectsUntouched(t *testing.T) {
	reg, err := BuildRegistry(testSnapshot())
	require.NoError(t, err)

	empty := &store.Snapshot{}
	changed, errs := reg.ApplyRefresh(empty)
	assert.Empty(t, changed)
	assert.Empty(t, errs)

	o, _ := reg.Get(ID{Type: TypeAnalogInput, Instance: 1001})
	v, _ := o.ReadProperty(PropPresentValue)
	assert.Equal(t, 25.5, v)
}

func TestSnapshotCommanded(t *testing.T) {
	reg, err := BuildRegistry(testSnapshot())
	require.NoError(t, err)

	ao, _ := reg.Get(ID{Type: TypeAnalogOutput, Instance: 2001})
	_, err = ao.WriteProperty(PropPresentValue, 42.0)
	require.NoError(t, err)

	mo, _ := reg.Get(ID{Type: TypeMultiStateOutput, Instance: 5001})
	_, err = mo.WriteProperty(PropPresentValue, uint32(2))
	require.NoError(t, err)

	snap := reg.SnapshotCommanded()
	assert.Equal(t, map[uint32]float64{2001: 42.0}, snap.AnalogOutputs)
	assert.Equal(t, map[uint32]uint32{5001: 2}, snap.MultiStateOutputs)
	assert.Empty(t, snap.BinaryOutputs)
}
