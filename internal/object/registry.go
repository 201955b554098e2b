package object

import (
	"fmt"
	"sync"

	"github.com/xbacnet/xbacnet/internal/store"
)

// Registry is the live object table: an ordered sequence plus an index by
// (type, instance). Objects are created exclusively at bootstrap; the set
// never grows or shrinks while the server runs.
type Registry struct {
	mu    sync.RWMutex
	order []Object
	index map[ID]Object
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[ID]Object)}
}

// Add registers an object. A second object with the same (type, instance)
// is rejected.
func (r *Registry) Add(o Object) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := o.ID()
	if _, exists := r.index[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateObject, id)
	}
	r.index[id] = o
	r.order = append(r.order, o)
	return nil
}

// Get looks up an object by identifier.
func (r *Registry) Get(id ID) (Object, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.index[id]
	return o, ok
}

// Objects returns the objects in load order.
func (r *Registry) Objects() []Object {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Object, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// BuildRegistry constructs the live object table from a database snapshot,
// in the fixed type order. Any invalid row or duplicate identifier fails
// the whole build: object construction errors are fatal at startup.
func BuildRegistry(snap *store.Snapshot) (*Registry, error) {
	r := NewRegistry()

	for _, row := range snap.AnalogInputs {
		o, err := NewAnalogInput(row)
		if err != nil {
			return nil, fmt.Errorf("analog-input %d: %w", row.ObjectIdentifier, err)
		}
		if err := r.Add(o); err != nil {
			return nil, err
		}
	}
	for _, row := range snap.AnalogOutputs {
		o, err := NewAnalogOutput(row)
		if err != nil {
			return nil, fmt.Errorf("analog-output %d: %w", row.ObjectIdentifier, err)
		}
		if err := r.Add(o); err != nil {
			return nil, err
		}
	}
	for _, row := range snap.AnalogValues {
		o, err := NewAnalogValue(row)
		if err != nil {
			return nil, fmt.Errorf("analog-value %d: %w", row.ObjectIdentifier, err)
		}
		if err := r.Add(o); err != nil {
			return nil, err
		}
	}
	for _, row := range snap.BinaryInputs {
		o, err := NewBinaryInput(row)
		if err != nil {
			return nil, fmt.Errorf("binary-input %d: %w", row.ObjectIdentifier, err)
		}
		if err := r.Add(o); err != nil {
			return nil, err
		}
	}
	for _, row := range snap.BinaryOutputs {
		o, err := NewBinaryOutput(row)
		if err != nil {
			return nil, fmt.Errorf("binary-output %d: %w", row.ObjectIdentifier, err)
		}
		if err := r.Add(o); err != nil {
			return nil, err
		}
	}
	for _, row := range snap.BinaryValues {
		o, err := NewBinaryValue(row)
		if err != nil {
			return nil, fmt.Errorf("binary-value %d: %w", row.ObjectIdentifier, err)
		}
		if err := r.Add(o); err != nil {
			return nil, err
		}
	}
	for _, row := range snap.MultiStateInputs {
		o, err := NewMultiStateInput(row)
		if err != nil {
			return nil, fmt.Errorf("multi-state-input %d: %w", row.ObjectIdentifier, err)
		}
		if err := r.Add(o); err != nil {
			return nil, err
		}
	}
	for _, row := range snap.MultiStateOutputs {
		o, err := NewMultiStateOutput(row)
		if err != nil {
			return nil, fmt.Errorf("multi-state-output %d: %w", row.ObjectIdentifier, err)
		}
		if err := r.Add(o); err != nil {
			return nil, err
		}
	}
	for _, row := range snap.MultiStateValues {
		o, err := NewMultiStateValue(row)
		if err != nil {
			return nil, fmt.Errorf("multi-state-value %d: %w", row.ObjectIdentifier, err)
		}
		if err := r.Add(o); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// RowError is a per-object refresh failure. The object keeps its previous
// values for the cycle; other objects are unaffected.
type RowError struct {
	ID  ID
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("refresh %s: %v", e.ID, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// ApplyRefresh overwrites the mapped properties of every registered object
// from a fresh snapshot, in type order. Commanded output present-values
// and current_command_priority are never touched. Objects whose row is
// absent keep their values (removal happens only on restart). Returns the
// identifiers whose present-value or status flags changed, for COV
// evaluation.
func (r *Registry) ApplyRefresh(snap *store.Snapshot) (changed []ID, errs []error) {
	aiRows := make(map[uint32]store.AnalogInputRow, len(snap.AnalogInputs))
	for _, row := range snap.AnalogInputs {
		aiRows[row.ObjectIdentifier] = row
	}
	aoRows := make(map[uint32]store.AnalogOutputRow, len(snap.AnalogOutputs))
	for _, row := range snap.AnalogOutputs {
		aoRows[row.ObjectIdentifier] = row
	}
	avRows := make(map[uint32]store.AnalogValueRow, len(snap.AnalogValues))
	for _, row := range snap.AnalogValues {
		avRows[row.ObjectIdentifier] = row
	}
	biRows := make(map[uint32]store.BinaryInputRow, len(snap.BinaryInputs))
	for _, row := range snap.BinaryInputs {
		biRows[row.ObjectIdentifier] = row
	}
	boRows := make(map[uint32]store.BinaryOutputRow, len(snap.BinaryOutputs))
	for _, row := range snap.BinaryOutputs {
		boRows[row.ObjectIdentifier] = row
	}
	bvRows := make(map[uint32]store.BinaryValueRow, len(snap.BinaryValues))
	for _, row := range snap.BinaryValues {
		bvRows[row.ObjectIdentifier] = row
	}
	miRows := make(map[uint32]store.MultiStateInputRow, len(snap.MultiStateInputs))
	for _, row := range snap.MultiStateInputs {
		miRows[row.ObjectIdentifier] = row
	}
	moRows := make(map[uint32]store.MultiStateOutputRow, len(snap.MultiStateOutputs))
	for _, row := range snap.MultiStateOutputs {
		moRows[row.ObjectIdentifier] = row
	}
	mvRows := make(map[uint32]store.MultiStateValueRow, len(snap.MultiStateValues))
	for _, row := range snap.MultiStateValues {
		mvRows[row.ObjectIdentifier] = row
	}

	apply := func(id ID, ok bool, fn func() (bool, error)) {
		if !ok {
			return
		}
		moved, err := fn()
		if err != nil {
			errs = append(errs, RowError{ID: id, Err: err})
			return
		}
		if moved {
			changed = append(changed, id)
		}
	}

	for _, o := range r.Objects() {
		id := o.ID()
		switch obj := o.(type) {
		case *AnalogOutput:
			row, ok := aoRows[id.Instance]
			apply(id, ok, func() (bool, error) { return obj.ApplyRow(row) })
		case *AnalogValue:
			row, ok := avRows[id.Instance]
			apply(id, ok, func() (bool, error) { return obj.ApplyRow(row) })
		case *AnalogInput:
			row, ok := aiRows[id.Instance]
			apply(id, ok, func() (bool, error) { return obj.ApplyRow(row) })
		case *BinaryOutput:
			row, ok := boRows[id.Instance]
			apply(id, ok, func() (bool, error) { return obj.ApplyRow(row) })
		case *BinaryValue:
			row, ok := bvRows[id.Instance]
			apply(id, ok, func() (bool, error) { return obj.ApplyRow(row) })
		case *BinaryInput:
			row, ok := biRows[id.Instance]
			apply(id, ok, func() (bool, error) { return obj.ApplyRow(row) })
		case *MultiStateOutput:
			row, ok := moRows[id.Instance]
			apply(id, ok, func() (bool, error) { return obj.ApplyRow(row) })
		case *MultiStateValue:
			row, ok := mvRows[id.Instance]
			apply(id, ok, func() (bool, error) { return obj.ApplyRow(row) })
		case *MultiStateInput:
			row, ok := miRows[id.Instance]
			apply(id, ok, func() (bool, error) { return obj.ApplyRow(row) })
		}
	}

	return changed, errs
}

// CommandSnapshot holds the commanded present-values of the output
// objects, captured under their locks for the persistence task.
type CommandSnapshot struct {
	AnalogOutputs     map[uint32]float64
	BinaryOutputs     map[uint32]BinaryPV
	MultiStateOutputs map[uint32]uint32
}

// SnapshotCommanded captures the commanded value of every output object.
func (r *Registry) SnapshotCommanded() CommandSnapshot {
	snap := CommandSnapshot{
		AnalogOutputs:     make(map[uint32]float64),
		BinaryOutputs:     make(map[uint32]BinaryPV),
		MultiStateOutputs: make(map[uint32]uint32),
	}
	for _, o := range r.Objects() {
		switch obj := o.(type) {
		case *AnalogOutput:
			snap.AnalogOutputs[obj.ID().Instance] = obj.Commanded()
		case *BinaryOutput:
			snap.BinaryOutputs[obj.ID().Instance] = obj.Commanded()
		case *MultiStateOutput:
			snap.MultiStateOutputs[obj.ID().Instance] = obj.Commanded()
		}
	}
	return snap
}
