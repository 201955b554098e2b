package api

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectTablesCoverAllNineTypes(t *testing.T) {
	require.Len(t, objectTables, 9)

	seen := make(map[string]bool)
	for _, spec := range objectTables {
		assert.NotEmpty(t, spec.Resource)
		assert.Contains(t, spec.Table, "tbl_")
		assert.Contains(t, spec.Columns, "object_identifier")
		assert.Contains(t, spec.Columns, "present_value")
		assert.Contains(t, spec.Columns, "status_flags")
		seen[spec.Table] = true
	}
	assert.Len(t, seen, 9)

	// Output tables carry the commandable columns.
	for _, table := range []string{"tbl_analog_output_objects", "tbl_binary_output_objects", "tbl_multi_state_output_objects"} {
		for _, spec := range objectTables {
			if spec.Table == table {
				assert.Contains(t, spec.Columns, "relinquish_default", table)
				assert.Contains(t, spec.Columns, "current_command_priority", table)
			}
		}
	}
}

func TestListRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	spec := objectTables[0] // analog-inputs

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM tbl_analog_input_objects").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT id, (.+) FROM tbl_analog_input_objects ORDER BY id LIMIT \\? OFFSET \\?").
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "object_identifier", "object_name"}).
			AddRow(1, 1001, []byte("T1")).
			AddRow(2, 1002, []byte("T2")))

	rows, total, err := listRows(context.Background(), db, spec, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, rows, 2)
	// []byte columns come back as strings.
	assert.Equal(t, "T1", rows[0]["object_name"])
}

func TestInsertRowRejectsUnknownColumns(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = insertRow(context.Background(), db, objectTables[0], map[string]interface{}{
		"object_name": "T1",
		"evil_column": "x",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evil_column")
}

func TestUpdateRowNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE tbl_analog_input_objects SET object_name = \\? WHERE id = \\?").
		WithArgs("T9", int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = updateRow(context.Background(), db, objectTables[0], 42, map[string]interface{}{
		"object_name": "T9",
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestDeleteRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM tbl_analog_value_objects WHERE id = \\?").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, deleteRow(context.Background(), db, objectTables[2], 7))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}
