package object

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xbacnet/xbacnet/internal/store"
)

func multiStateOutputRow() store.MultiStateOutputRow {
	return store.MultiStateOutputRow{
		MultiStateInputRow: store.MultiStateInputRow{
			ObjectIdentifier: 5001,
			ObjectName:       "FanMode",
			PresentValue:     1,
			StatusFlags:      "0000",
			EventState:       "normal",
			NumberOfStates:   3,
			StateText:        sql.NullString{String: "off;low;high", Valid: true},
		},
		RelinquishDefault: 1,
	}
}

func TestNewMultiStateOutput(t *testing.T) {
	o, err := NewMultiStateOutput(multiStateOutputRow())
	require.NoError(t, err)

	assert.Equal(t, uint32(1), o.PresentValue())
	assert.Equal(t, uint32(3), o.NumberOfStates())

	text, err := o.ReadProperty(PropStateText)
	require.NoError(t, err)
	assert.Equal(t, []string{"off", "low", "high"}, text)
}

func TestMultiStateValidation(t *testing.T) {
	// present_value above number_of_states
	r := multiStateOutputRow()
	r.PresentValue = 4
	_, err := NewMultiStateOutput(r)
	assert.ErrorIs(t, err, ErrInvalid)

	// present_value below 1
	r = multiStateOutputRow()
	r.PresentValue = 0
	_, err = NewMultiStateOutput(r)
	assert.ErrorIs(t, err, ErrInvalid)

	// state_text length mismatch
	r = multiStateOutputRow()
	r.StateText = sql.NullString{String: "off;on", Valid: true}
	_, err = NewMultiStateOutput(r)
	assert.ErrorIs(t, err, ErrInvalid)

	// missing state_text is allowed
	r = multiStateOutputRow()
	r.StateText = sql.NullString{}
	_, err = NewMultiStateOutput(r)
	assert.NoError(t, err)

	// number_of_states out of range
	r = multiStateOutputRow()
	r.NumberOfStates = 0
	_, err = NewMultiStateOutput(r)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestMultiStateWriteBounds(t *testing.T) {
	o, err := NewMultiStateOutput(multiStateOutputRow())
	require.NoError(t, err)

	changed, err := o.WriteProperty(PropPresentValue, uint32(3))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, uint32(3), o.Commanded())

	// Out-of-range writes are rejected and state is unchanged.
	_, err = o.WriteProperty(PropPresentValue, uint32(0))
	assert.ErrorIs(t, err, ErrValueOutOfRange)
	assert.Equal(t, uint32(3), o.Commanded())

	_, err = o.WriteProperty(PropPresentValue, uint32(4))
	assert.ErrorIs(t, err, ErrValueOutOfRange)
	assert.Equal(t, uint32(3), o.Commanded())
}

func TestMultiStateOutputRefreshKeepsCommandedValue(t *testing.T) {
	o, err := NewMultiStateOutput(multiStateOutputRow())
	require.NoError(t, err)

	_, err = o.WriteProperty(PropPresentValue, uint32(2))
	require.NoError(t, err)

	r := multiStateOutputRow()
	r.PresentValue = 1
	_, err = o.ApplyRow(r)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), o.PresentValue())
}

func TestMultiStateInputRefreshTracksDatabase(t *testing.T) {
	in, err := NewMultiStateInput(store.MultiStateInputRow{
		ObjectIdentifier: 6001,
		ObjectName:       "Mode",
		PresentValue:     1,
		StatusFlags:      "0000",
		EventState:       "normal",
		NumberOfStates:   2,
	})
	require.NoError(t, err)

	changed, err := in.ApplyRow(store.MultiStateInputRow{
		ObjectIdentifier: 6001,
		ObjectName:       "Mode",
		PresentValue:     2,
		StatusFlags:      "0000",
		EventState:       "normal",
		NumberOfStates:   2,
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, uint32(2), in.PresentValue())
}

func TestStateTextRoundTrip(t *testing.T) {
	labels := []string{"off", "low", "high"}
	assert.Equal(t, "off;low;high", JoinStateText(labels))
	assert.Equal(t, labels, SplitStateText("off;low;high"))
	assert.Nil(t, SplitStateText(""))
}
