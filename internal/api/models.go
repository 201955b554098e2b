package api

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// tableSpec describes one managed table: its REST resource name and the
// columns the API accepts and returns.
type tableSpec struct {
	Resource string
	Table    string
	Columns  []string
}

var analogColumns = []string{
	"object_identifier", "object_name", "present_value", "description",
	"status_flags", "event_state", "out_of_service", "units", "cov_increment",
}

var objectTables = []tableSpec{
	{
		Resource: "analog-inputs",
		Table:    "tbl_analog_input_objects",
		Columns:  analogColumns,
	},
	{
		Resource: "analog-outputs",
		Table:    "tbl_analog_output_objects",
		Columns: append(append([]string{}, analogColumns...),
			"relinquish_default", "current_command_priority"),
	},
	{
		Resource: "analog-values",
		Table:    "tbl_analog_value_objects",
		Columns:  analogColumns,
	},
	{
		Resource: "binary-inputs",
		Table:    "tbl_binary_input_objects",
		Columns: []string{
			"object_identifier", "object_name", "present_value", "description",
			"status_flags", "event_state", "out_of_service", "polarity",
		},
	},
	{
		Resource: "binary-outputs",
		Table:    "tbl_binary_output_objects",
		Columns: []string{
			"object_identifier", "object_name", "present_value", "description",
			"status_flags", "event_state", "out_of_service", "polarity",
			"relinquish_default", "current_command_priority",
		},
	},
	{
		Resource: "binary-values",
		Table:    "tbl_binary_value_objects",
		Columns: []string{
			"object_identifier", "object_name", "present_value", "description",
			"status_flags", "event_state", "out_of_service",
		},
	},
	{
		Resource: "multi-state-inputs",
		Table:    "tbl_multi_state_input_objects",
		Columns: []string{
			"object_identifier", "object_name", "present_value", "description",
			"status_flags", "event_state", "out_of_service", "number_of_states", "state_text",
		},
	},
	{
		Resource: "multi-state-outputs",
		Table:    "tbl_multi_state_output_objects",
		Columns: []string{
			"object_identifier", "object_name", "present_value", "description",
			"status_flags", "event_state", "out_of_service", "number_of_states", "state_text",
			"relinquish_default", "current_command_priority",
		},
	},
	{
		Resource: "multi-state-values",
		Table:    "tbl_multi_state_value_objects",
		Columns: []string{
			"object_identifier", "object_name", "present_value", "description",
			"status_flags", "event_state", "out_of_service", "number_of_states", "state_text",
		},
	},
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// scanRows converts a result set to JSON-friendly maps, with []byte
// columns rendered as strings.
func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

func listRows(ctx context.Context, db *sql.DB, spec tableSpec, page, pageSize int) ([]map[string]interface{}, int, error) {
	var total int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+spec.Table).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT id, %s FROM %s ORDER BY id LIMIT ? OFFSET ?",
		strings.Join(spec.Columns, ", "), spec.Table)
	rows, err := db.QueryContext(ctx, query, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	results, err := scanRows(rows)
	return results, total, err
}

func getRow(ctx context.Context, db *sql.DB, spec tableSpec, id int64) (map[string]interface{}, error) {
	query := fmt.Sprintf("SELECT id, %s FROM %s WHERE id = ?",
		strings.Join(spec.Columns, ", "), spec.Table)
	rows, err := db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, sql.ErrNoRows
	}
	return results[0], nil
}

// insertRow accepts only known columns; unknown keys are rejected.
func insertRow(ctx context.Context, db *sql.DB, spec tableSpec, data map[string]interface{}) (int64, error) {
	cols := make([]string, 0, len(data))
	vals := make([]interface{}, 0, len(data))
	for _, col := range spec.Columns {
		if v, ok := data[col]; ok {
			cols = append(cols, col)
			vals = append(vals, v)
		}
	}
	for key := range data {
		if !contains(spec.Columns, key) {
			return 0, fmt.Errorf("unknown column %q", key)
		}
	}
	if len(cols) == 0 {
		return 0, fmt.Errorf("no valid columns in request body")
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		spec.Table, strings.Join(cols, ", "), placeholders(len(cols)))
	res, err := db.ExecContext(ctx, query, vals...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func updateRow(ctx context.Context, db *sql.DB, spec tableSpec, id int64, data map[string]interface{}) error {
	sets := make([]string, 0, len(data))
	vals := make([]interface{}, 0, len(data)+1)
	for _, col := range spec.Columns {
		if v, ok := data[col]; ok {
			sets = append(sets, col+" = ?")
			vals = append(vals, v)
		}
	}
	for key := range data {
		if !contains(spec.Columns, key) {
			return fmt.Errorf("unknown column %q", key)
		}
	}
	if len(sets) == 0 {
		return fmt.Errorf("no valid columns in request body")
	}
	vals = append(vals, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", spec.Table, strings.Join(sets, ", "))
	res, err := db.ExecContext(ctx, query, vals...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func deleteRow(ctx context.Context, db *sql.DB, spec tableSpec, id int64) error {
	res, err := db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", spec.Table), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
