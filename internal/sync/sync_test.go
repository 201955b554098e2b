package sync

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xbacnet/xbacnet/internal/object"
	"github.com/xbacnet/xbacnet/internal/store"
)

var analogInputColumns = []string{
	"id", "object_identifier", "object_name", "present_value", "description",
	"status_flags", "event_state", "out_of_service", "units", "cov_increment",
}

func mockGateway(t *testing.T) (*store.Gateway, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	g := store.New(store.Config{Host: "localhost", Database: "xbacnet"}, zap.NewNop())
	g.SetDB(db)
	return g, mock
}

// expectEmptyTables queues empty result sets for the tables after the
// analog input read, in the fixed type order.
func expectEmptyTables(mock sqlmock.Sqlmock, tables ...string) {
	for _, table := range tables {
		mock.ExpectQuery("SELECT (.+) FROM " + table).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
	}
}

func testRegistry(t *testing.T) *object.Registry {
	t.Helper()
	reg, err := object.BuildRegistry(&store.Snapshot{
		AnalogInputs: []store.AnalogInputRow{{
			ID: 1, ObjectIdentifier: 1001, ObjectName: "T1", PresentValue: 25.5,
			StatusFlags: "0000", EventState: "normal", Units: "degreesCelsius", CovIncrement: 0.1,
		}},
		AnalogOutputs: []store.AnalogOutputRow{{
			AnalogInputRow: store.AnalogInputRow{
				ID: 1, ObjectIdentifier: 2001, ObjectName: "SP1", PresentValue: 0,
				StatusFlags: "0000", EventState: "normal", Units: "degreesCelsius",
			},
		}},
		BinaryOutputs: []store.BinaryOutputRow{{
			BinaryInputRow: store.BinaryInputRow{
				ID: 1, ObjectIdentifier: 4001, ObjectName: "DO1", PresentValue: "inactive",
				StatusFlags: "0000", EventState: "normal", Polarity: "normal",
			},
			RelinquishDefault: "inactive",
		}},
		MultiStateOutputs: []store.MultiStateOutputRow{{
			MultiStateInputRow: store.MultiStateInputRow{
				ID: 1, ObjectIdentifier: 5001, ObjectName: "FanMode", PresentValue: 1,
				StatusFlags: "0000", EventState: "normal", NumberOfStates: 3,
				StateText: sql.NullString{String: "off;low;high", Valid: true},
			},
			RelinquishDefault: 1,
		}},
	})
	require.NoError(t, err)
	return reg
}

type recordingNotifier struct {
	ids []object.ID
}

func (n *recordingNotifier) ObjectsChanged(ids []object.ID) {
	n.ids = append(n.ids, ids...)
}

func TestRefreshAppliesDatabaseValues(t *testing.T) {
	gw, mock := mockGateway(t)
	reg := testRegistry(t)
	notifier := &recordingNotifier{}

	mock.ExpectQuery("SELECT (.+) FROM tbl_analog_input_objects").
		WillReturnRows(sqlmock.NewRows(analogInputColumns).
			AddRow(1, 1001, "T1", 25.8, "", "0000", "normal", 0, "degreesCelsius", 0.1))
	expectEmptyTables(mock,
		"tbl_analog_output_objects",
		"tbl_analog_value_objects",
		"tbl_binary_input_objects",
		"tbl_binary_output_objects",
		"tbl_binary_value_objects",
		"tbl_multi_state_input_objects",
		"tbl_multi_state_output_objects",
		"tbl_multi_state_value_objects",
	)

	r := NewRefresher(gw, reg, notifier, zap.NewNop())
	r.Run(context.Background())

	o, _ := reg.Get(object.ID{Type: object.TypeAnalogInput, Instance: 1001})
	v, err := o.ReadProperty(object.PropPresentValue)
	require.NoError(t, err)
	assert.Equal(t, 25.8, v)
	assert.Contains(t, notifier.ids, object.ID{Type: object.TypeAnalogInput, Instance: 1001})
}

func TestRefreshFailStaticOnQueryError(t *testing.T) {
	gw, mock := mockGateway(t)
	reg := testRegistry(t)

	mock.ExpectQuery("SELECT (.+) FROM tbl_analog_input_objects").
		WillReturnError(fmt.Errorf("server has gone away"))

	r := NewRefresher(gw, reg, nil, zap.NewNop())
	r.Run(context.Background())

	// Objects keep their previous values and the connection is dropped
	// so the next cycle reconnects.
	o, _ := reg.Get(object.ID{Type: object.TypeAnalogInput, Instance: 1001})
	v, _ := o.ReadProperty(object.PropPresentValue)
	assert.Equal(t, 25.5, v)
	assert.Nil(t, gw.DB())
}

func TestRefreshUnavailableDatabaseKeepsValues(t *testing.T) {
	// A gateway that was never connected and cannot reconnect.
	gw := store.New(store.Config{Host: "127.0.0.1", Port: 1, User: "u", Database: "d"}, zap.NewNop())
	reg := testRegistry(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // fail Ensure fast

	r := NewRefresher(gw, reg, nil, zap.NewNop())
	r.Run(ctx)

	o, _ := reg.Get(object.ID{Type: object.TypeAnalogInput, Instance: 1001})
	v, _ := o.ReadProperty(object.PropPresentValue)
	assert.Equal(t, 25.5, v)
}

func TestPersistWritesCommandedOutputs(t *testing.T) {
	gw, mock := mockGateway(t)
	reg := testRegistry(t)

	ao, _ := reg.Get(object.ID{Type: object.TypeAnalogOutput, Instance: 2001})
	_, err := ao.WriteProperty(object.PropPresentValue, 42.0)
	require.NoError(t, err)
	bo, _ := reg.Get(object.ID{Type: object.TypeBinaryOutput, Instance: 4001})
	_, err = bo.WriteProperty(object.PropPresentValue, uint32(1))
	require.NoError(t, err)
	mo, _ := reg.Get(object.ID{Type: object.TypeMultiStateOutput, Instance: 5001})
	_, err = mo.WriteProperty(object.PropPresentValue, uint32(2))
	require.NoError(t, err)

	mock.ExpectExec("UPDATE tbl_analog_output_objects").
		WithArgs(42.0, 2001).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE tbl_binary_output_objects").
		WithArgs("active", 4001).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE tbl_multi_state_output_objects").
		WithArgs(2, 5001).
		WillReturnResult(sqlmock.NewResult(0, 1))

	p := NewPersister(gw, reg, zap.NewNop())
	p.Run(context.Background())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistDropsConnectionOnError(t *testing.T) {
	gw, mock := mockGateway(t)
	reg := testRegistry(t)

	mock.ExpectExec("UPDATE tbl_analog_output_objects").
		WillReturnError(fmt.Errorf("deadlock"))

	p := NewPersister(gw, reg, zap.NewNop())
	p.Run(context.Background())

	// Connection dropped; commanded values stay in memory for the next
	// cycle.
	assert.Nil(t, gw.DB())
	ao, _ := reg.Get(object.ID{Type: object.TypeAnalogOutput, Instance: 2001})
	v, _ := ao.ReadProperty(object.PropPresentValue)
	assert.Equal(t, 0.0, v)
}
