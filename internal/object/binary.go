package object

import (
	"fmt"

	"github.com/xbacnet/xbacnet/internal/store"
)

// BinaryInput serves a two-state reading with a polarity.
type BinaryInput struct {
	common
	presentValue BinaryPV
	polarity     Polarity
}

// BinaryValue is a two-state logical point; it carries no polarity.
type BinaryValue struct {
	common
	presentValue BinaryPV
}

// BinaryOutput is commandable.
type BinaryOutput struct {
	BinaryInput
	relinquishDefault BinaryPV
}

func validateBinaryCommon(name, description, statusFlags, eventState string) (StatusFlags, error) {
	if err := validateName(name); err != nil {
		return StatusFlags{}, err
	}
	if err := validateDescription(description); err != nil {
		return StatusFlags{}, err
	}
	flags, err := ParseStatusFlags(statusFlags)
	if err != nil {
		return StatusFlags{}, err
	}
	if err := validateEventState(eventState, false); err != nil {
		return StatusFlags{}, err
	}
	return flags, nil
}

// init fills the object from a validated row.
func (o *BinaryInput) init(r store.BinaryInputRow, typ Type) error {
	flags, err := validateBinaryCommon(r.ObjectName, r.Description, r.StatusFlags, r.EventState)
	if err != nil {
		return err
	}
	pv, err := parseBinaryPV(r.PresentValue)
	if err != nil {
		return err
	}
	pol, err := parsePolarity(r.Polarity)
	if err != nil {
		return err
	}
	o.id = ID{Type: typ, Instance: r.ObjectIdentifier}
	o.name = r.ObjectName
	o.description = r.Description
	o.flags = flags
	o.eventState = r.EventState
	o.outOfService = r.OutOfService
	o.presentValue = pv
	o.polarity = pol
	return nil
}

func NewBinaryInput(r store.BinaryInputRow) (*BinaryInput, error) {
	o := &BinaryInput{}
	if err := o.init(r, TypeBinaryInput); err != nil {
		return nil, err
	}
	return o, nil
}

func NewBinaryOutput(r store.BinaryOutputRow) (*BinaryOutput, error) {
	rd, err := parseBinaryPV(r.RelinquishDefault)
	if err != nil {
		return nil, err
	}
	if r.CurrentCommandPriority.Valid {
		if p := r.CurrentCommandPriority.Int64; p < 1 || p > 16 {
			return nil, fmt.Errorf("%w: current_command_priority %d", ErrInvalid, p)
		}
	}
	o := &BinaryOutput{relinquishDefault: rd}
	if err := o.BinaryInput.init(r.BinaryInputRow, TypeBinaryOutput); err != nil {
		return nil, err
	}
	return o, nil
}

func NewBinaryValue(r store.BinaryValueRow) (*BinaryValue, error) {
	flags, err := validateBinaryCommon(r.ObjectName, r.Description, r.StatusFlags, r.EventState)
	if err != nil {
		return nil, err
	}
	pv, err := parseBinaryPV(r.PresentValue)
	if err != nil {
		return nil, err
	}
	o := &BinaryValue{presentValue: pv}
	o.id = ID{Type: TypeBinaryValue, Instance: r.ObjectIdentifier}
	o.name = r.ObjectName
	o.description = r.Description
	o.flags = flags
	o.eventState = r.EventState
	o.outOfService = r.OutOfService
	return o, nil
}

func (o *BinaryInput) PresentValue() BinaryPV {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.presentValue
}

func (o *BinaryValue) PresentValue() BinaryPV {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.presentValue
}

func (o *BinaryInput) ReadProperty(prop Property) (Value, error) {
	if v, ok, err := o.readCommon(prop); ok {
		return v, err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	switch prop {
	case PropPresentValue:
		return o.presentValue, nil
	case PropPolarity:
		return o.polarity, nil
	}
	return nil, ErrUnknownProperty
}

func (o *BinaryOutput) ReadProperty(prop Property) (Value, error) {
	if prop == PropRelinquishDefault {
		o.mu.RLock()
		defer o.mu.RUnlock()
		return o.relinquishDefault, nil
	}
	return o.BinaryInput.ReadProperty(prop)
}

func (o *BinaryValue) ReadProperty(prop Property) (Value, error) {
	if v, ok, err := o.readCommon(prop); ok {
		return v, err
	}
	if prop == PropPresentValue {
		o.mu.RLock()
		defer o.mu.RUnlock()
		return o.presentValue, nil
	}
	return nil, ErrUnknownProperty
}

func (o *BinaryInput) applyRow(r store.BinaryInputRow, includePV bool) (bool, error) {
	flags, err := validateBinaryCommon(r.ObjectName, r.Description, r.StatusFlags, r.EventState)
	if err != nil {
		return false, err
	}
	pv, err := parseBinaryPV(r.PresentValue)
	if err != nil {
		return false, err
	}
	pol, err := parsePolarity(r.Polarity)
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
	o.polarity = pol
	if includePV && o.presentValue != pv {
		o.presentValue = pv
		changed = true
	}
	return changed, nil
}

func (o *BinaryInput) ApplyRow(r store.BinaryInputRow) (bool, error) {
	return o.applyRow(r, !o.OutOfService())
}

// ApplyRow refreshes a binary output; present-value and
// current_command_priority keep their in-memory values.
func (o *BinaryOutput) ApplyRow(r store.BinaryOutputRow) (bool, error) {
	rd, err := parseBinaryPV(r.RelinquishDefault)
	if err != nil {
		return false, err
	}
	changed, err := o.applyRow(r.BinaryInputRow, false)
	if err != nil {
		return false, err
	}
	o.mu.Lock()
	o.relinquishDefault = rd
	o.mu.Unlock()
	return changed, nil
}

func (o *BinaryValue) ApplyRow(r store.BinaryValueRow) (bool, error) {
	flags, err := validateBinaryCommon(r.ObjectName, r.Description, r.StatusFlags, r.EventState)
	if err != nil {
		return false, err
	}
	pv, err := parseBinaryPV(r.PresentValue)
	if err != nil {
		return false, err
	}
	includePV := !o.OutOfService()
	o.mu.Lock()
	defer o.mu.Unlock()
	changed := o.flags != flags
	o.name = r.ObjectName
	o.description = r.Description
	o.flags = flags
	o.eventState = r.EventState
	o.outOfService = r.OutOfService
	if includePV && o.presentValue != pv {
		o.presentValue = pv
		changed = true
	}
	return changed, nil
}

func (o *BinaryInput) WriteProperty(prop Property, v Value) (bool, error) {
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
	return setBinaryPVLocked(&o.presentValue, v)
}

func (o *BinaryOutput) WriteProperty(prop Property, v Value) (bool, error) {
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
	return setBinaryPVLocked(&o.presentValue, v)
}

func (o *BinaryValue) WriteProperty(prop Property, v Value) (bool, error) {
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
	return setBinaryPVLocked(&o.presentValue, v)
}

func setBinaryPVLocked(dst *BinaryPV, v Value) (bool, error) {
	var pv BinaryPV
	switch x := v.(type) {
	case BinaryPV:
		pv = x
	case uint32:
		// BACnet encodes BinaryPV as enumerated: 0=inactive, 1=active.
		switch x {
		case 0:
			pv = BinaryInactive
		case 1:
			pv = BinaryActive
		default:
			return false, fmt.Errorf("%w: binary present_value %d", ErrValueOutOfRange, x)
		}
	case string:
		p, err := parseBinaryPV(x)
		if err != nil {
			return false, fmt.Errorf("%w: binary present_value %q", ErrValueOutOfRange, x)
		}
		pv = p
	default:
		return false, fmt.Errorf("%w: binary present_value expects ENUMERATED", ErrValueOutOfRange)
	}
	if *dst == pv {
		return false, nil
	}
	*dst = pv
	return true, nil
}

// Commanded snapshots the commanded value for the persistence task.
func (o *BinaryOutput) Commanded() BinaryPV {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.presentValue
}
