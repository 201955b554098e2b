// Package object implements the typed BACnet object table: the nine
// standard object shapes served by the device, their property sets and
// validation, and the registry keyed by (type, instance).
package object

import (
	"errors"
	"fmt"
	"sync"
)

// Type is the BACnet object type tag.
type Type uint16

const (
	TypeAnalogInput      Type = 0
	TypeAnalogOutput     Type = 1
	TypeAnalogValue      Type = 2
	TypeBinaryInput      Type = 3
	TypeBinaryOutput     Type = 4
	TypeBinaryValue      Type = 5
	TypeMultiStateInput  Type = 13
	TypeMultiStateOutput Type = 14
	TypeMultiStateValue  Type = 19
	TypeDevice           Type = 8
)

var typeNames = map[Type]string{
	TypeAnalogInput:      "analog-input",
	TypeAnalogOutput:     "analog-output",
	TypeAnalogValue:      "analog-value",
	TypeBinaryInput:      "binary-input",
	TypeBinaryOutput:     "binary-output",
	TypeBinaryValue:      "binary-value",
	TypeMultiStateInput:  "multi-state-input",
	TypeMultiStateOutput: "multi-state-output",
	TypeMultiStateValue:  "multi-state-value",
	TypeDevice:           "device",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("object-type-%d", uint16(t))
}

// IsOutput reports whether the type is commandable, i.e. its present-value
// authority lives in the live object rather than the database.
func (t Type) IsOutput() bool {
	return t == TypeAnalogOutput || t == TypeBinaryOutput || t == TypeMultiStateOutput
}

// ID identifies an object by (type, instance). Instance numbers are unique
// within a type and immutable for the object's lifetime.
type ID struct {
	Type     Type
	Instance uint32
}

func (id ID) String() string {
	return fmt.Sprintf("%s:%d", id.Type, id.Instance)
}

// Property identifies a property of an object in the model's own terms.
// The BACnet numeric property identifiers live in the protocol layer.
type Property int

const (
	PropObjectName Property = iota
	PropDescription
	PropPresentValue
	PropStatusFlags
	PropEventState
	PropOutOfService
	PropUnits
	PropCovIncrement
	PropRelinquishDefault
	PropPolarity
	PropNumberOfStates
	PropStateText
)

// Error kinds. Validation failures reject the write or row without
// touching prior state; the protocol layer maps these onto BACnet
// error class/code pairs.
var (
	ErrInvalid           = errors.New("invalid value")
	ErrUnknownProperty   = errors.New("unknown property")
	ErrWriteAccessDenied = errors.New("write access denied")
	ErrValueOutOfRange   = errors.New("value out of range")
	ErrDuplicateObject   = errors.New("duplicate object identifier")
)

// StatusFlags is the 4-bit Status_Flags vector.
type StatusFlags struct {
	InAlarm      bool
	Fault        bool
	Overridden   bool
	OutOfService bool
}

// ParseStatusFlags converts the CHAR(4) database form, e.g. "0010".
func ParseStatusFlags(s string) (StatusFlags, error) {
	if len(s) != 4 {
		return StatusFlags{}, fmt.Errorf("%w: status_flags %q must be exactly 4 characters", ErrInvalid, s)
	}
	var bits [4]bool
	for i := 0; i < 4; i++ {
		switch s[i] {
		case '0':
		case '1':
			bits[i] = true
		default:
			return StatusFlags{}, fmt.Errorf("%w: status_flags %q must contain only 0 and 1", ErrInvalid, s)
		}
	}
	return StatusFlags{InAlarm: bits[0], Fault: bits[1], Overridden: bits[2], OutOfService: bits[3]}, nil
}

// String renders the database form.
func (f StatusFlags) String() string {
	b := []byte{'0', '0', '0', '0'}
	if f.InAlarm {
		b[0] = '1'
	}
	if f.Fault {
		b[1] = '1'
	}
	if f.Overridden {
		b[2] = '1'
	}
	if f.OutOfService {
		b[3] = '1'
	}
	return string(b)
}

// Event states. Analog objects allow the extended set; binary and
// multi-state objects are restricted to normal|fault|offnormal.
var (
	analogEventStates = map[string]struct{}{
		"normal": {}, "fault": {}, "offnormal": {},
		"highLimit": {}, "lowLimit": {}, "lifeSafetyAlarm": {},
	}
	basicEventStates = map[string]struct{}{
		"normal": {}, "fault": {}, "offnormal": {},
	}
)

func validateEventState(s string, analog bool) error {
	set := basicEventStates
	if analog {
		set = analogEventStates
	}
	if _, ok := set[s]; !ok {
		return fmt.Errorf("%w: event_state %q", ErrInvalid, s)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: object_name must not be empty", ErrInvalid)
	}
	if len(name) > 255 {
		return fmt.Errorf("%w: object_name exceeds 255 characters", ErrInvalid)
	}
	return nil
}

func validateDescription(desc string) error {
	if len(desc) > 255 {
		return fmt.Errorf("%w: description exceeds 255 characters", ErrInvalid)
	}
	return nil
}

// BinaryPV is the present-value of binary objects.
type BinaryPV string

const (
	BinaryActive   BinaryPV = "active"
	BinaryInactive BinaryPV = "inactive"
)

func parseBinaryPV(s string) (BinaryPV, error) {
	switch BinaryPV(s) {
	case BinaryActive, BinaryInactive:
		return BinaryPV(s), nil
	}
	return "", fmt.Errorf("%w: binary present_value %q", ErrInvalid, s)
}

// Polarity of binary inputs and outputs.
type Polarity string

const (
	PolarityNormal  Polarity = "normal"
	PolarityReverse Polarity = "reverse"
)

func parsePolarity(s string) (Polarity, error) {
	switch Polarity(s) {
	case PolarityNormal, PolarityReverse:
		return Polarity(s), nil
	}
	return "", fmt.Errorf("%w: polarity %q", ErrInvalid, s)
}

// Value is a property value in its model form: float64, bool, uint32,
// string, BinaryPV, Polarity, StatusFlags or []string. A nil Value on a
// write is BACnet Null (relinquish, outputs only).
type Value interface{}

// Object is one live BACnet object. All methods are safe for concurrent
// use; each object guards its property block with a single lock so
// clients never observe a half-updated object.
type Object interface {
	ID() ID
	ObjectName() string
	OutOfService() bool
	StatusFlags() StatusFlags

	// ReadProperty returns the value of a property.
	ReadProperty(prop Property) (Value, error)
	// WriteProperty applies a client write. changed reports whether the
	// present-value or status flags moved (input to COV evaluation).
	WriteProperty(prop Property, v Value) (changed bool, err error)
}

// common is the property block every object shares.
type common struct {
	mu           sync.RWMutex
	id           ID
	name         string
	description  string
	flags        StatusFlags
	eventState   string
	outOfService bool
}

func (c *common) ID() ID { return c.id }

func (c *common) ObjectName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

func (c *common) OutOfService() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.outOfService
}

func (c *common) StatusFlags() StatusFlags {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f := c.flags
	f.OutOfService = f.OutOfService || c.outOfService
	return f
}

// readCommon serves the properties shared by all nine types. Callers hold
// no lock. ok=false means the property is type-specific.
func (c *common) readCommon(prop Property) (Value, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch prop {
	case PropObjectName:
		return c.name, true, nil
	case PropDescription:
		return c.description, true, nil
	case PropStatusFlags:
		f := c.flags
		f.OutOfService = f.OutOfService || c.outOfService
		return f, true, nil
	case PropEventState:
		return c.eventState, true, nil
	case PropOutOfService:
		return c.outOfService, true, nil
	}
	return nil, false, nil
}

// writeOutOfService handles the one common writable property. Returns
// handled=true when prop was out-of-service.
func (c *common) writeOutOfService(prop Property, v Value) (handled, changed bool, err error) {
	if prop != PropOutOfService {
		return false, false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return true, false, fmt.Errorf("%w: out_of_service expects a boolean", ErrValueOutOfRange)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outOfService == b {
		return true, false, nil
	}
	c.outOfService = b
	return true, true, nil
}
