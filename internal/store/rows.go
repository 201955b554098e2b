package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Row types mirror the nine object tables column for column. String-packed
// columns (status_flags CHAR(4), state_text ';'-joined) stay strings at
// this boundary; the object model converts them on load.

type AnalogInputRow struct {
	ID               int64
	ObjectIdentifier uint32
	ObjectName       string
	PresentValue     float64
	Description      string
	StatusFlags      string
	EventState       string
	OutOfService     bool
	Units            string
	CovIncrement     float64
}

type AnalogOutputRow struct {
	AnalogInputRow
	RelinquishDefault      float64
	CurrentCommandPriority sql.NullInt64
}

type AnalogValueRow = AnalogInputRow

type BinaryInputRow struct {
	ID               int64
	ObjectIdentifier uint32
	ObjectName       string
	PresentValue     string
	Description      string
	StatusFlags      string
	EventState       string
	OutOfService     bool
	Polarity         string
}

type BinaryOutputRow struct {
	BinaryInputRow
	RelinquishDefault      string
	CurrentCommandPriority sql.NullInt64
}

type BinaryValueRow struct {
	ID               int64
	ObjectIdentifier uint32
	ObjectName       string
	PresentValue     string
	Description      string
	StatusFlags      string
	EventState       string
	OutOfService     bool
}

type MultiStateInputRow struct {
	ID               int64
	ObjectIdentifier uint32
	ObjectName       string
	PresentValue     uint32
	Description      string
	StatusFlags      string
	EventState       string
	OutOfService     bool
	NumberOfStates   uint32
	StateText        sql.NullString
}

type MultiStateOutputRow struct {
	MultiStateInputRow
	RelinquishDefault      uint32
	CurrentCommandPriority sql.NullInt64
}

type MultiStateValueRow = MultiStateInputRow

const (
	selectAnalogInputs = ` SELECT id, object_identifier, object_name, present_value, description, status_flags, event_state, ` +
		`        out_of_service, units, cov_increment ` +
		` FROM tbl_analog_input_objects `
	selectAnalogOutputs = ` SELECT id, object_identifier, object_name, present_value, description, status_flags, event_state, ` +
		`        out_of_service, units, relinquish_default, current_command_priority, cov_increment ` +
		` FROM tbl_analog_output_objects `
	selectAnalogValues = ` SELECT id, object_identifier, object_name, present_value, description, status_flags, event_state, ` +
		`        out_of_service, units, cov_increment ` +
		` FROM tbl_analog_value_objects `
	selectBinaryInputs = ` SELECT id, object_identifier, object_name, present_value, description, status_flags, event_state, ` +
		`        out_of_service, polarity ` +
		` FROM tbl_binary_input_objects `
	selectBinaryOutputs = ` SELECT id, object_identifier, object_name, present_value, description, status_flags, event_state, ` +
		`        out_of_service, polarity, relinquish_default, current_command_priority ` +
		` FROM tbl_binary_output_objects `
	selectBinaryValues = ` SELECT id, object_identifier, object_name, present_value, description, status_flags, event_state, ` +
		`        out_of_service ` +
		` FROM tbl_binary_value_objects `
	selectMultiStateInputs = ` SELECT id, object_identifier, object_name, present_value, description, status_flags, event_state, ` +
		`        out_of_service, number_of_states, state_text ` +
		` FROM tbl_multi_state_input_objects `
	selectMultiStateOutputs = ` SELECT id, object_identifier, object_name, present_value, description, status_flags, event_state, ` +
		`        out_of_service, number_of_states, state_text, relinquish_default, current_command_priority ` +
		` FROM tbl_multi_state_output_objects `
	selectMultiStateValues = ` SELECT id, object_identifier, object_name, present_value, description, status_flags, event_state, ` +
		`        out_of_service, number_of_states, state_text ` +
		` FROM tbl_multi_state_value_objects `

	updateAnalogOutputPV     = ` UPDATE tbl_analog_output_objects SET present_value = ? WHERE object_identifier = ? `
	updateBinaryOutputPV     = ` UPDATE tbl_binary_output_objects SET present_value = ? WHERE object_identifier = ? `
	updateMultiStateOutputPV = ` UPDATE tbl_multi_state_output_objects SET present_value = ? WHERE object_identifier = ? `
)

func (g *Gateway) SelectAnalogInputObjects(ctx context.Context) ([]AnalogInputRow, error) {
	return selectAnalogRows(ctx, g, selectAnalogInputs, "tbl_analog_input_objects")
}

func (g *Gateway) SelectAnalogValueObjects(ctx context.Context) ([]AnalogValueRow, error) {
	return selectAnalogRows(ctx, g, selectAnalogValues, "tbl_analog_value_objects")
}

func selectAnalogRows(ctx context.Context, g *Gateway, query, table string) ([]AnalogInputRow, error) {
	db, err := g.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []AnalogInputRow
	for rows.Next() {
		var r AnalogInputRow
		var oos int
		if err := rows.Scan(&r.ID, &r.ObjectIdentifier, &r.ObjectName, &r.PresentValue, &r.Description,
			&r.StatusFlags, &r.EventState, &oos, &r.Units, &r.CovIncrement); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		r.OutOfService = oos != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (g *Gateway) SelectAnalogOutputObjects(ctx context.Context) ([]AnalogOutputRow, error) {
	db, err := g.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, selectAnalogOutputs)
	if err != nil {
		return nil, fmt.Errorf("query tbl_analog_output_objects: %w", err)
	}
	defer rows.Close()

	var out []AnalogOutputRow
	for rows.Next() {
		var r AnalogOutputRow
		var oos int
		if err := rows.Scan(&r.ID, &r.ObjectIdentifier, &r.ObjectName, &r.PresentValue, &r.Description,
			&r.StatusFlags, &r.EventState, &oos, &r.Units, &r.RelinquishDefault,
			&r.CurrentCommandPriority, &r.CovIncrement); err != nil {
			return nil, fmt.Errorf("scan tbl_analog_output_objects: %w", err)
		}
		r.OutOfService = oos != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (g *Gateway) SelectBinaryInputObjects(ctx context.Context) ([]BinaryInputRow, error) {
	db, err := g.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, selectBinaryInputs)
	if err != nil {
		return nil, fmt.Errorf("query tbl_binary_input_objects: %w", err)
	}
	defer rows.Close()

	var out []BinaryInputRow
	for rows.Next() {
		var r BinaryInputRow
		var oos int
		if err := rows.Scan(&r.ID, &r.ObjectIdentifier, &r.ObjectName, &r.PresentValue, &r.Description,
			&r.StatusFlags, &r.EventState, &oos, &r.Polarity); err != nil {
			return nil, fmt.Errorf("scan tbl_binary_input_objects: %w", err)
		}
		r.OutOfService = oos != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (g *Gateway) SelectBinaryOutputObjects(ctx context.Context) ([]BinaryOutputRow, error) {
	db, err := g.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, selectBinaryOutputs)
	if err != nil {
		return nil, fmt.Errorf("query tbl_binary_output_objects: %w", err)
	}
	defer rows.Close()

	var out []BinaryOutputRow
	for rows.Next() {
		var r BinaryOutputRow
		var oos int
		if err := rows.Scan(&r.ID, &r.ObjectIdentifier, &r.ObjectName, &r.PresentValue, &r.Description,
			&r.StatusFlags, &r.EventState, &oos, &r.Polarity, &r.RelinquishDefault,
			&r.CurrentCommandPriority); err != nil {
			return nil, fmt.Errorf("scan tbl_binary_output_objects: %w", err)
		}
		r.OutOfService = oos != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (g *Gateway) SelectBinaryValueObjects(ctx context.Context) ([]BinaryValueRow, error) {
	db, err := g.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, selectBinaryValues)
	if err != nil {
		return nil, fmt.Errorf("query tbl_binary_value_objects: %w", err)
	}
	defer rows.Close()

	var out []BinaryValueRow
	for rows.Next() {
		var r BinaryValueRow
		var oos int
		if err := rows.Scan(&r.ID, &r.ObjectIdentifier, &r.ObjectName, &r.PresentValue, &r.Description,
			&r.StatusFlags, &r.EventState, &oos); err != nil {
			return nil, fmt.Errorf("scan tbl_binary_value_objects: %w", err)
		}
		r.OutOfService = oos != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (g *Gateway) SelectMultiStateInputObjects(ctx context.Context) ([]MultiStateInputRow, error) {
	return selectMultiStateRows(ctx, g, selectMultiStateInputs, "tbl_multi_state_input_objects")
}

func (g *Gateway) SelectMultiStateValueObjects(ctx context.Context) ([]MultiStateValueRow, error) {
	return selectMultiStateRows(ctx, g, selectMultiStateValues, "tbl_multi_state_value_objects")
}

func selectMultiStateRows(ctx context.Context, g *Gateway, query, table string) ([]MultiStateInputRow, error) {
	db, err := g.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []MultiStateInputRow
	for rows.Next() {
		var r MultiStateInputRow
		var oos int
		if err := rows.Scan(&r.ID, &r.ObjectIdentifier, &r.ObjectName, &r.PresentValue, &r.Description,
			&r.StatusFlags, &r.EventState, &oos, &r.NumberOfStates, &r.StateText); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		r.OutOfService = oos != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (g *Gateway) SelectMultiStateOutputObjects(ctx context.Context) ([]MultiStateOutputRow, error) {
	db, err := g.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, selectMultiStateOutputs)
	if err != nil {
		return nil, fmt.Errorf("query tbl_multi_state_output_objects: %w", err)
	}
	defer rows.Close()

	var out []MultiStateOutputRow
	for rows.Next() {
		var r MultiStateOutputRow
		var oos int
		if err := rows.Scan(&r.ID, &r.ObjectIdentifier, &r.ObjectName, &r.PresentValue, &r.Description,
			&r.StatusFlags, &r.EventState, &oos, &r.NumberOfStates, &r.StateText,
			&r.RelinquishDefault, &r.CurrentCommandPriority); err != nil {
			return nil, fmt.Errorf("scan tbl_multi_state_output_objects: %w", err)
		}
		r.OutOfService = oos != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateAnalogOutputPresentValue persists a commanded analog output value.
// Autocommit, one statement per object.
func (g *Gateway) UpdateAnalogOutputPresentValue(ctx context.Context, instance uint32, value float64) error {
	db, err := g.handle()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, updateAnalogOutputPV, value, instance); err != nil {
		return fmt.Errorf("update tbl_analog_output_objects %d: %w", instance, err)
	}
	return nil
}

// UpdateBinaryOutputPresentValue persists a commanded binary output value
// ("active" or "inactive").
func (g *Gateway) UpdateBinaryOutputPresentValue(ctx context.Context, instance uint32, value string) error {
	db, err := g.handle()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, updateBinaryOutputPV, value, instance); err != nil {
		return fmt.Errorf("update tbl_binary_output_objects %d: %w", instance, err)
	}
	return nil
}

// UpdateMultiStateOutputPresentValue persists a commanded multi-state output state.
func (g *Gateway) UpdateMultiStateOutputPresentValue(ctx context.Context, instance uint32, value uint32) error {
	db, err := g.handle()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, updateMultiStateOutputPV, value, instance); err != nil {
		return fmt.Errorf("update tbl_multi_state_output_objects %d: %w", instance, err)
	}
	return nil
}

// Snapshot is one full read of the nine object tables.
type Snapshot struct {
	AnalogInputs      []AnalogInputRow
	AnalogOutputs     []AnalogOutputRow
	AnalogValues      []AnalogValueRow
	BinaryInputs      []BinaryInputRow
	BinaryOutputs     []BinaryOutputRow
	BinaryValues      []BinaryValueRow
	MultiStateInputs  []MultiStateInputRow
	MultiStateOutputs []MultiStateOutputRow
	MultiStateValues  []MultiStateValueRow
}

// LoadSnapshot runs the nine reads in the fixed type order.
func (g *Gateway) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	var (
		s   Snapshot
		err error
	)
	if s.AnalogInputs, err = g.SelectAnalogInputObjects(ctx); err != nil {
		return nil, err
	}
	if s.AnalogOutputs, err = g.SelectAnalogOutputObjects(ctx); err != nil {
		return nil, err
	}
	if s.AnalogValues, err = g.SelectAnalogValueObjects(ctx); err != nil {
		return nil, err
	}
	if s.BinaryInputs, err = g.SelectBinaryInputObjects(ctx); err != nil {
		return nil, err
	}
	if s.BinaryOutputs, err = g.SelectBinaryOutputObjects(ctx); err != nil {
		return nil, err
	}
	if s.BinaryValues, err = g.SelectBinaryValueObjects(ctx); err != nil {
		return nil, err
	}
	if s.MultiStateInputs, err = g.SelectMultiStateInputObjects(ctx); err != nil {
		return nil, err
	}
	if s.MultiStateOutputs, err = g.SelectMultiStateOutputObjects(ctx); err != nil {
		return nil, err
	}
	if s.MultiStateValues, err = g.SelectMultiStateValueObjects(ctx); err != nil {
		return nil, err
	}
	return &s, nil
}
