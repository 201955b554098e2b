package object

import (
	"fmt"
	"math"

	"github.com/xbacnet/xbacnet/internal/store"
)

// AnalogInput serves a sensor reading. The database is the authority for
// every property; the live object is a cache refreshed each cycle.
type AnalogInput struct {
	common
	presentValue float64
	units        string
	covIncrement float64
}

// AnalogValue behaves like an analog input; it holds a derived value
// rather than a physical reading.
type AnalogValue struct {
	AnalogInput
}

// AnalogOutput is commandable: present-value authority lives here between
// persist cycles, the database copy is a lagging reflection.
type AnalogOutput struct {
	AnalogInput
	relinquishDefault float64
}

func validateAnalogRow(r store.AnalogInputRow) (StatusFlags, error) {
	if err := validateName(r.ObjectName); err != nil {
		return StatusFlags{}, err
	}
	if err := validateDescription(r.Description); err != nil {
		return StatusFlags{}, err
	}
	flags, err := ParseStatusFlags(r.StatusFlags)
	if err != nil {
		return StatusFlags{}, err
	}
	if err := validateEventState(r.EventState, true); err != nil {
		return StatusFlags{}, err
	}
	if err := validateAnalogPV(r.PresentValue); err != nil {
		return StatusFlags{}, err
	}
	if r.CovIncrement < 0 || math.IsNaN(r.CovIncrement) {
		return StatusFlags{}, fmt.Errorf("%w: cov_increment %v must be >= 0", ErrInvalid, r.CovIncrement)
	}
	return flags, nil
}

func validateAnalogPV(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: present_value %v is not a finite number", ErrInvalid, v)
	}
	return nil
}

// init fills the object from a validated row.
func (o *AnalogInput) init(r store.AnalogInputRow, typ Type) error {
	flags, err := validateAnalogRow(r)
	if err != nil {
		return err
	}
	o.id = ID{Type: typ, Instance: r.ObjectIdentifier}
	o.name = r.ObjectName
	o.description = r.Description
	o.flags = flags
	o.eventState = r.EventState
	o.outOfService = r.OutOfService
	o.presentValue = r.PresentValue
	o.units = r.Units
	o.covIncrement = r.CovIncrement
	return nil
}

// NewAnalogInput constructs the object from a database row.
func NewAnalogInput(r store.AnalogInputRow) (*AnalogInput, error) {
	o := &AnalogInput{}
	if err := o.init(r, TypeAnalogInput); err != nil {
		return nil, err
	}
	return o, nil
}

func NewAnalogValue(r store.AnalogValueRow) (*AnalogValue, error) {
	o := &AnalogValue{}
	if err := o.AnalogInput.init(r, TypeAnalogValue); err != nil {
		return nil, err
	}
	return o, nil
}

func NewAnalogOutput(r store.AnalogOutputRow) (*AnalogOutput, error) {
	if err := validateAnalogPV(r.RelinquishDefault); err != nil {
		return nil, err
	}
	if r.CurrentCommandPriority.Valid {
		if p := r.CurrentCommandPriority.Int64; p < 1 || p > 16 {
			return nil, fmt.Errorf("%w: current_command_priority %d", ErrInvalid, p)
		}
	}
	o := &AnalogOutput{relinquishDefault: r.RelinquishDefault}
	if err := o.AnalogInput.init(r.AnalogInputRow, TypeAnalogOutput); err != nil {
		return nil, err
	}
	return o, nil
}

// PresentValue returns the current value.
func (o *AnalogInput) PresentValue() float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.presentValue
}

// CovIncrement returns the notification threshold.
func (o *AnalogInput) CovIncrement() float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.covIncrement
}

func (o *AnalogInput) ReadProperty(prop Property) (Value, error) {
	if v, ok, err := o.readCommon(prop); ok {
		return v, err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	switch prop {
	case PropPresentValue:
		return o.presentValue, nil
	case PropUnits:
		return o.units, nil
	case PropCovIncrement:
		return o.covIncrement, nil
	}
	return nil, ErrUnknownProperty
}

func (o *AnalogOutput) ReadProperty(prop Property) (Value, error) {
	if prop == PropRelinquishDefault {
		o.mu.RLock()
		defer o.mu.RUnlock()
		return o.relinquishDefault, nil
	}
	return o.AnalogInput.ReadProperty(prop)
}

// applyRow refreshes every mapped property from the database row.
// includePV is false for outputs (in-memory authority) and while the
// object is out of service (a client may have asserted the value).
func (o *AnalogInput) applyRow(r store.AnalogInputRow, includePV bool) (bool, error) {
	flags, err := validateAnalogRow(r)
	if err != nil {
		return false, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	changed := o.flags != flags
	o.name = r.ObjectName
	o.description = r.Description
	o.flags = flags
	o.eventState = r.EventState
	o.outOfService = r.OutOfService
	o.units = r.Units
	o.covIncrement = r.CovIncrement
	if includePV && o.presentValue != r.PresentValue {
		o.presentValue = r.PresentValue
		changed = true
	}
	return changed, nil
}

// ApplyRow refreshes an analog input; present-value is skipped while the
// object is out of service.
func (o *AnalogInput) ApplyRow(r store.AnalogInputRow) (bool, error) {
	return o.applyRow(r, !o.OutOfService())
}

func (o *AnalogValue) ApplyRow(r store.AnalogValueRow) (bool, error) {
	return o.applyRow(r, !o.OutOfService())
}

// ApplyRow refreshes an analog output. Present-value and
// current_command_priority are never refreshed from the database.
func (o *AnalogOutput) ApplyRow(r store.AnalogOutputRow) (bool, error) {
	if err := validateAnalogPV(r.RelinquishDefault); err != nil {
		return false, err
	}
	changed, err := o.applyRow(r.AnalogInputRow, false)
	if err != nil {
		return false, err
	}
	o.mu.Lock()
	o.relinquishDefault = r.RelinquishDefault
	o.mu.Unlock()
	return changed, nil
}

func (o *AnalogInput) WriteProperty(prop Property, v Value) (bool, error) {
	if handled, changed, err := o.writeOutOfService(prop, v); handled {
		return changed, err
	}
	if prop != PropPresentValue {
		if _, err := o.ReadProperty(prop); err != nil {
			return false, err
		}
		return false, ErrWriteAccessDenied
	}
	// Inputs and values accept present-value writes only while out of
	// service, per the standard.
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.outOfService {
		return false, ErrWriteAccessDenied
	}
	return o.setPresentValueLocked(v)
}

func (o *AnalogOutput) WriteProperty(prop Property, v Value) (bool, error) {
	if handled, changed, err := o.writeOutOfService(prop, v); handled {
		return changed, err
	}
	if prop != PropPresentValue {
		if _, err := o.ReadProperty(prop); err != nil {
			return false, err
		}
		return false, ErrWriteAccessDenied
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if v == nil {
		// A Null write relinquishes; with no priority array in play the
		// value falls back to relinquish_default.
		v = o.relinquishDefault
	}
	return o.setPresentValueLocked(v)
}

func (o *AnalogInput) setPresentValueLocked(v Value) (bool, error) {
	f, ok := toFloat(v)
	if !ok {
		return false, fmt.Errorf("%w: present_value expects REAL", ErrValueOutOfRange)
	}
	if err := validateAnalogPV(f); err != nil {
		return false, fmt.Errorf("%w: present_value %v", ErrValueOutOfRange, f)
	}
	if o.presentValue == f {
		return false, nil
	}
	o.presentValue = f
	return true, nil
}

// Commanded snapshots the commanded value for the persistence task.
func (o *AnalogOutput) Commanded() float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.presentValue
}

func toFloat(v Value) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	return 0, false
}
