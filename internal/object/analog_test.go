package object

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xbacnet/xbacnet/internal/store"
)

func analogInputRow() store.AnalogInputRow {
	return store.AnalogInputRow{
		ID:               1,
		ObjectIdentifier: 1001,
		ObjectName:       "T1",
		PresentValue:     25.5,
		Description:      "supply air temperature",
		StatusFlags:      "0000",
		EventState:       "normal",
		Units:            "degreesCelsius",
		CovIncrement:     0.1,
	}
}

func analogOutputRow() store.AnalogOutputRow {
	r := store.AnalogOutputRow{AnalogInputRow: analogInputRow()}
	r.ObjectIdentifier = 2001
	r.ObjectName = "SP1"
	r.RelinquishDefault = 0
	r.CurrentCommandPriority = sql.NullInt64{Int64: 8, Valid: true}
	return r
}

func TestNewAnalogInput(t *testing.T) {
	o, err := NewAnalogInput(analogInputRow())
	require.NoError(t, err)

	assert.Equal(t, ID{Type: TypeAnalogInput, Instance: 1001}, o.ID())
	assert.Equal(t, "T1", o.ObjectName())
	assert.Equal(t, 25.5, o.PresentValue())
	assert.Equal(t, 0.1, o.CovIncrement())
	assert.False(t, o.OutOfService())

	v, err := o.ReadProperty(PropUnits)
	require.NoError(t, err)
	assert.Equal(t, "degreesCelsius", v)
}

func TestNewAnalogInputRejectsBadRows(t *testing.T) {
	r := analogInputRow()
	r.StatusFlags = "012"
	_, err := NewAnalogInput(r)
	assert.ErrorIs(t, err, ErrInvalid)

	r = analogInputRow()
	r.ObjectName = ""
	_, err = NewAnalogInput(r)
	assert.ErrorIs(t, err, ErrInvalid)

	r = analogInputRow()
	r.EventState = "weird"
	_, err = NewAnalogInput(r)
	assert.ErrorIs(t, err, ErrInvalid)

	r = analogInputRow()
	r.CovIncrement = -1
	_, err = NewAnalogInput(r)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestAnalogOutputWriteAuthority(t *testing.T) {
	o, err := NewAnalogOutput(analogOutputRow())
	require.NoError(t, err)

	// A client write takes effect immediately.
	changed, err := o.WriteProperty(PropPresentValue, 42.0)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 42.0, o.PresentValue())
	assert.Equal(t, 42.0, o.Commanded())

	// A refresh from the database must not overwrite the commanded value.
	r := analogOutputRow()
	r.PresentValue = 0.0
	r.Description = "updated description"
	_, err = o.ApplyRow(r)
	require.NoError(t, err)
	assert.Equal(t, 42.0, o.PresentValue())

	d, err := o.ReadProperty(PropDescription)
	require.NoError(t, err)
	assert.Equal(t, "updated description", d)
}

func TestAnalogOutputRelinquish(t *testing.T) {
	r := analogOutputRow()
	r.RelinquishDefault = 10.5
	o, err := NewAnalogOutput(r)
	require.NoError(t, err)

	_, err = o.WriteProperty(PropPresentValue, 42.0)
	require.NoError(t, err)

	// Null write falls back to relinquish_default.
	changed, err := o.WriteProperty(PropPresentValue, nil)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 10.5, o.PresentValue())
}

func TestAnalogInputWriteRequiresOutOfService(t *testing.T) {
	o, err := NewAnalogInput(analogInputRow())
	require.NoError(t, err)

	_, err = o.WriteProperty(PropPresentValue, 30.0)
	assert.ErrorIs(t, err, ErrWriteAccessDenied)
	assert.Equal(t, 25.5, o.PresentValue())

	// With out_of_service set, the write is allowed.
	changed, err := o.WriteProperty(PropOutOfService, true)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = o.WriteProperty(PropPresentValue, 30.0)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 30.0, o.PresentValue())
}

func TestAnalogInputRefreshSkipsPVWhileOutOfService(t *testing.T) {
	o, err := NewAnalogInput(analogInputRow())
	require.NoError(t, err)

	_, err = o.WriteProperty(PropOutOfService, true)
	require.NoError(t, err)
	_, err = o.WriteProperty(PropPresentValue, 99.0)
	require.NoError(t, err)

	// Refresh must not overwrite the client-asserted value.
	r := analogInputRow()
	r.PresentValue = 25.6
	_, err = o.ApplyRow(r)
	require.NoError(t, err)
	assert.Equal(t, 99.0, o.PresentValue())
	// The row cleared out_of_service, so the next cycle resumes tracking.
	assert.False(t, o.OutOfService())

	_, err = o.ApplyRow(r)
	require.NoError(t, err)
	assert.Equal(t, 25.6, o.PresentValue())
}

func TestAnalogWriteRejectsBadValues(t *testing.T) {
	o, err := NewAnalogOutput(analogOutputRow())
	require.NoError(t, err)

	_, err = o.WriteProperty(PropPresentValue, "not a number")
	assert.ErrorIs(t, err, ErrValueOutOfRange)

	_, err = o.WriteProperty(PropObjectName, "rename")
	assert.ErrorIs(t, err, ErrWriteAccessDenied)

	_, err = o.WriteProperty(Property(99), 1.0)
	assert.ErrorIs(t, err, ErrUnknownProperty)

	// Prior state intact.
	assert.Equal(t, 25.5, o.PresentValue())
}

func TestAnalogOutputRejectsBadPriority(t *testing.T) {
	r := analogOutputRow()
	r.CurrentCommandPriority = sql.NullInt64{Int64: 17, Valid: true}
	_, err := NewAnalogOutput(r)
	assert.ErrorIs(t, err, ErrInvalid)

	r.CurrentCommandPriority = sql.NullInt64{}
	_, err = NewAnalogOutput(r)
	assert.NoError(t, err)
}

func TestBinaryObjects(t *testing.T) {
	bi, err := NewBinaryInput(store.BinaryInputRow{
		ObjectIdentifier: 3001,
		ObjectName:       "DI1",
		PresentValue:     "inactive",
		StatusFlags:      "0000",
		EventState:       "normal",
		Polarity:         "normal",
	})
	require.NoError(t, err)
	assert.Equal(t, BinaryInactive, bi.PresentValue())

	// Binary event states reject the analog-only extended set.
	_, err = NewBinaryInput(store.BinaryInputRow{
		ObjectIdentifier: 3002,
		ObjectName:       "DI2",
		PresentValue:     "active",
		StatusFlags:      "0000",
		EventState:       "highLimit",
		Polarity:         "normal",
	})
	assert.ErrorIs(t, err, ErrInvalid)

	bo, err := NewBinaryOutput(store.BinaryOutputRow{
		BinaryInputRow: store.BinaryInputRow{
			ObjectIdentifier: 4001,
			ObjectName:       "DO1",
			PresentValue:     "inactive",
			StatusFlags:      "0000",
			EventState:       "normal",
			Polarity:         "normal",
		},
		RelinquishDefault: "inactive",
	})
	require.NoError(t, err)

	// Enumerated write: 1 = active.
	changed, err := bo.WriteProperty(PropPresentValue, uint32(1))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, BinaryActive, bo.Commanded())

	_, err = bo.WriteProperty(PropPresentValue, uint32(2))
	assert.ErrorIs(t, err, ErrValueOutOfRange)
	assert.Equal(t, BinaryActive, bo.Commanded())
}
