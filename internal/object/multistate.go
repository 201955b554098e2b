package object

import (
	"fmt"
	"strings"

	"github.com/xbacnet/xbacnet/internal/store"
)

// MultiStateInput serves a discrete state in 1..number_of_states.
type MultiStateInput struct {
	common
	presentValue   uint32
	numberOfStates uint32
	stateText      []string
}

type MultiStateValue struct {
	MultiStateInput
}

// MultiStateOutput is commandable.
type MultiStateOutput struct {
	MultiStateInput
	relinquishDefault uint32
}

// SplitStateText converts the ';'-joined database form. An empty or NULL
// column means no state text.
func SplitStateText(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ";")
}

// JoinStateText renders the database form.
func JoinStateText(labels []string) string {
	return strings.Join(labels, ";")
}

func validateMultiStateRow(r store.MultiStateInputRow) (StatusFlags, []string, error) {
	flags, err := validateBinaryCommon(r.ObjectName, r.Description, r.StatusFlags, r.EventState)
	if err != nil {
		return StatusFlags{}, nil, err
	}
	if r.NumberOfStates < 1 || r.NumberOfStates > 255 {
		return StatusFlags{}, nil, fmt.Errorf("%w: number_of_states %d", ErrInvalid, r.NumberOfStates)
	}
	if r.PresentValue < 1 || r.PresentValue > r.NumberOfStates {
		return StatusFlags{}, nil, fmt.Errorf("%w: present_value %d not in 1..%d", ErrInvalid, r.PresentValue, r.NumberOfStates)
	}
	var text []string
	if r.StateText.Valid && r.StateText.String != "" {
		text = SplitStateText(r.StateText.String)
		if uint32(len(text)) != r.NumberOfStates {
			return StatusFlags{}, nil, fmt.Errorf("%w: state_text has %d labels for %d states",
				ErrInvalid, len(text), r.NumberOfStates)
		}
	}
	return flags, text, nil
}

// init fills the object from a validated row.
func (o *MultiStateInput) init(r store.MultiStateInputRow, typ Type) error {
	flags, text, err := validateMultiStateRow(r)
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
	o.numberOfStates = r.NumberOfStates
	o.stateText = text
	return nil
}

func NewMultiStateInput(r store.MultiStateInputRow) (*MultiStateInput, error) {
	o := &MultiStateInput{}
	if err := o.init(r, TypeMultiStateInput); err != nil {
		return nil, err
	}
	return o, nil
}

func NewMultiStateValue(r store.MultiStateValueRow) (*MultiStateValue, error) {
	o := &MultiStateValue{}
	if err := o.MultiStateInput.init(r, TypeMultiStateValue); err != nil {
		return nil, err
	}
	return o, nil
}

func NewMultiStateOutput(r store.MultiStateOutputRow) (*MultiStateOutput, error) {
	if r.RelinquishDefault < 1 || r.RelinquishDefault > r.NumberOfStates {
		return nil, fmt.Errorf("%w: relinquish_default %d not in 1..%d",
			ErrInvalid, r.RelinquishDefault, r.NumberOfStates)
	}
	if r.CurrentCommandPriority.Valid {
		if p := r.CurrentCommandPriority.Int64; p < 1 || p > 16 {
			return nil, fmt.Errorf("%w: current_command_priority %d", ErrInvalid, p)
		}
	}
	o := &MultiStateOutput{relinquishDefault: r.RelinquishDefault}
	if err := o.MultiStateInput.init(r.MultiStateInputRow, TypeMultiStateOutput); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *MultiStateInput) PresentValue() uint32 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.presentValue
}

func (o *MultiStateInput) NumberOfStates() uint32 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.numberOfStates
}

func (o *MultiStateInput) ReadProperty(prop Property) (Value, error) {
	if v, ok, err := o.readCommon(prop); ok {
		return v, err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	switch prop {
	case PropPresentValue:
		return o.presentValue, nil
	case PropNumberOfStates:
		return o.numberOfStates, nil
	case PropStateText:
		if o.stateText == nil {
			return nil, ErrUnknownProperty
		}
		text := make([]string, len(o.stateText))
		copy(text, o.stateText)
		return text, nil
	}
	return nil, ErrUnknownProperty
}

func (o *MultiStateOutput) ReadProperty(prop Property) (Value, error) {
	if prop == PropRelinquishDefault {
		o.mu.RLock()
		defer o.mu.RUnlock()
		return o.relinquishDefault, nil
	}
	return o.MultiStateInput.ReadProperty(prop)
}

func (o *MultiStateInput) applyRow(r store.MultiStateInputRow, includePV bool) (bool, error) {
	flags, text, err := validateMultiStateRow(r)
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
	o.numberOfStates = r.NumberOfStates
	o.stateText = text
	if includePV && o.presentValue != r.PresentValue {
		o.presentValue = r.PresentValue
		changed = true
	}
	// A shrunk state set can strand the commanded value; clamp rather
	// than serve an out-of-range state.
	if o.presentValue > o.numberOfStates {
		o.presentValue = o.numberOfStates
		changed = true
	}
	return changed, nil
}

func (o *MultiStateInput) ApplyRow(r store.MultiStateInputRow) (bool, error) {
	return o.applyRow(r, !o.OutOfService())
}

func (o *MultiStateValue) ApplyRow(r store.MultiStateValueRow) (bool, error) {
	return o.applyRow(r, !o.OutOfService())
}

// ApplyRow refreshes a multi-state output; present-value and
// current_command_priority keep their in-memory values.
func (o *MultiStateOutput) ApplyRow(r store.MultiStateOutputRow) (bool, error) {
	if r.RelinquishDefault < 1 || r.RelinquishDefault > r.NumberOfStates {
		return false, fmt.Errorf("%w: relinquish_default %d not in 1..%d",
			ErrInvalid, r.RelinquishDefault, r.NumberOfStates)
	}
	changed, err := o.applyRow(r.MultiStateInputRow, false)
	if err != nil {
		return false, err
	}
	o.mu.Lock()
	o.relinquishDefault = r.RelinquishDefault
	o.mu.Unlock()
	return changed, nil
}

func (o *MultiStateInput) WriteProperty(prop Property, v Value) (bool, error) {
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
	if !o.outOfService {
		return false, ErrWriteAccessDenied
	}
	return o.setPresentValueLocked(v)
}

func (o *MultiStateOutput) WriteProperty(prop Property, v Value) (bool, error) {
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
		v = o.relinquishDefault
	}
	return o.setPresentValueLocked(v)
}

func (o *MultiStateInput) setPresentValueLocked(v Value) (bool, error) {
	var pv uint32
	switch x := v.(type) {
	case uint32:
		pv = x
	case int:
		if x < 0 {
			return false, fmt.Errorf("%w: present_value %d", ErrValueOutOfRange, x)
		}
		pv = uint32(x)
	default:
		return false, fmt.Errorf("%w: present_value expects UNSIGNED", ErrValueOutOfRange)
	}
	if pv < 1 || pv > o.numberOfStates {
		return false, fmt.Errorf("%w: present_value %d not in 1..%d", ErrValueOutOfRange, pv, o.numberOfStates)
	}
	if o.presentValue == pv {
		return false, nil
	}
	o.presentValue = pv
	return true, nil
}

// Commanded snapshots the commanded value for the persistence task.
func (o *MultiStateOutput) Commanded() uint32 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.presentValue
}
