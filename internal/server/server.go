// Package server binds the live object registry to the BACnet/IP
// application: it answers ReadProperty / ReadPropertyMultiple /
// WriteProperty against the registry, serves the device object, and
// drives COV notifications to subscribers.
package server

import (
	"errors"
	"net"

	"go.uber.org/zap"

	"github.com/xbacnet/xbacnet/internal/bacnet"
	"github.com/xbacnet/xbacnet/internal/object"
)

// Server implements bacnet.Handler over the object registry.
type Server struct {
	dev bacnet.DeviceInfo
	reg *object.Registry
	app *bacnet.Application
	cov *covManager
	log *zap.Logger
}

// New creates the binding. Attach the application with SetApplication
// once it is constructed (the application needs the handler first).
func New(dev bacnet.DeviceInfo, reg *object.Registry, log *zap.Logger) *Server {
	return &Server{
		dev: dev,
		reg: reg,
		cov: newCOVManager(),
		log: log,
	}
}

// SetApplication wires the protocol engine used to send notifications.
func (s *Server) SetApplication(app *bacnet.Application) {
	s.app = app
}

// Registry exposes the object table (used by the stats endpoint).
func (s *Server) Registry() *object.Registry {
	return s.reg
}

// propertyMap translates wire property identifiers to model properties.
var propertyMap = map[uint32]object.Property{
	bacnet.PropObjectName:        object.PropObjectName,
	bacnet.PropDescription:       object.PropDescription,
	bacnet.PropPresentValue:      object.PropPresentValue,
	bacnet.PropStatusFlags:       object.PropStatusFlags,
	bacnet.PropEventState:        object.PropEventState,
	bacnet.PropOutOfService:      object.PropOutOfService,
	bacnet.PropUnits:             object.PropUnits,
	bacnet.PropCovIncrement:      object.PropCovIncrement,
	bacnet.PropRelinquishDefault: object.PropRelinquishDefault,
	bacnet.PropPolarity:          object.PropPolarity,
	bacnet.PropNumberOfStates:    object.PropNumberOfStates,
	bacnet.PropStateText:         object.PropStateText,
}

// eventStateCodes is the BACnetEventState enumeration.
var eventStateCodes = map[string]uint32{
	"normal":          0,
	"fault":           1,
	"offnormal":       2,
	"highLimit":       3,
	"lowLimit":        4,
	"lifeSafetyAlarm": 5,
}

func wireID(id object.ID) bacnet.ObjectID {
	return bacnet.ObjectID{Type: uint16(id.Type), Instance: id.Instance}
}

func modelID(oid bacnet.ObjectID) object.ID {
	return object.ID{Type: object.Type(oid.Type), Instance: oid.Instance}
}

var (
	errUnknownObject = &bacnet.ServiceError{Class: bacnet.ErrorClassObject, Code: bacnet.ErrorCodeUnknownObject}
	errUnknownProp   = &bacnet.ServiceError{Class: bacnet.ErrorClassProperty, Code: bacnet.ErrorCodeUnknownProperty}
	errOutOfRange    = &bacnet.ServiceError{Class: bacnet.ErrorClassProperty, Code: bacnet.ErrorCodeValueOutOfRange}
	errWriteDenied   = &bacnet.ServiceError{Class: bacnet.ErrorClassProperty, Code: bacnet.ErrorCodeWriteAccessDenied}
	errInternal      = &bacnet.ServiceError{Class: bacnet.ErrorClassDevice, Code: bacnet.ErrorCodeOperationalProblem}
)

// encodeValue converts a model value to its application encoding,
// applying the enumerations the wire expects.
func encodeValue(prop object.Property, v object.Value) ([]byte, *bacnet.ServiceError) {
	switch prop {
	case object.PropEventState:
		s, _ := v.(string)
		code, ok := eventStateCodes[s]
		if !ok {
			return nil, errInternal
		}
		v = bacnet.Enumerated(code)
	case object.PropUnits:
		s, _ := v.(string)
		code, _ := object.UnitsCode(s)
		v = bacnet.Enumerated(code)
	case object.PropPolarity:
		if p, ok := v.(object.Polarity); ok {
			if p == object.PolarityReverse {
				v = bacnet.Enumerated(1)
			} else {
				v = bacnet.Enumerated(0)
			}
		}
	case object.PropStatusFlags:
		if f, ok := v.(object.StatusFlags); ok {
			v = bacnet.StatusFlags{
				InAlarm:      f.InAlarm,
				Fault:        f.Fault,
				Overridden:   f.Overridden,
				OutOfService: f.OutOfService,
			}
		}
	}
	// Binary present-value and relinquish-default are enumerated.
	if pv, ok := v.(object.BinaryPV); ok {
		if pv == object.BinaryActive {
			v = bacnet.Enumerated(1)
		} else {
			v = bacnet.Enumerated(0)
		}
	}

	data, err := bacnet.EncodeAppData(v)
	if err != nil {
		return nil, errInternal
	}
	return data, nil
}

// ReadProperty serves one property of one object.
func (s *Server) ReadProperty(oid bacnet.ObjectID, ref bacnet.PropertyRef) ([]byte, *bacnet.ServiceError) {
	if oid.Type == uint16(object.TypeDevice) {
		return s.readDeviceProperty(oid, ref)
	}

	obj, ok := s.reg.Get(modelID(oid))
	if !ok {
		return nil, errUnknownObject
	}

	switch ref.Property {
	case bacnet.PropObjectIdentifier:
		return mustEncode(wireID(obj.ID()))
	case bacnet.PropObjectType:
		return mustEncode(bacnet.Enumerated(obj.ID().Type))
	}

	prop, ok := propertyMap[ref.Property]
	if !ok {
		return nil, errUnknownProp
	}
	v, err := obj.ReadProperty(prop)
	if err != nil {
		return nil, errUnknownProp
	}
	return encodeValue(prop, v)
}

// WriteProperty applies a client write and evaluates COV afterwards.
func (s *Server) WriteProperty(oid bacnet.ObjectID, ref bacnet.PropertyRef, value interface{}, priority *uint8) *bacnet.ServiceError {
	obj, ok := s.reg.Get(modelID(oid))
	if !ok {
		return errUnknownObject
	}
	prop, ok := propertyMap[ref.Property]
	if !ok {
		return errUnknownProp
	}

	changed, err := obj.WriteProperty(prop, convertWriteValue(value))
	if err != nil {
		s.log.Debug("write rejected",
			zap.String("object", obj.ID().String()),
			zap.Uint32("property", ref.Property),
			zap.Error(err))
		return mapObjectError(err)
	}

	s.log.Info("property written",
		zap.String("object", obj.ID().String()),
		zap.Uint32("property", ref.Property))

	if changed {
		s.notifyObject(obj)
	}
	return nil
}

// convertWriteValue normalizes decoded wire primitives to model values.
func convertWriteValue(v interface{}) object.Value {
	switch x := v.(type) {
	case nil:
		return nil
	case float32:
		return float64(x)
	case bacnet.Enumerated:
		return uint32(x)
	default:
		return x
	}
}

func mapObjectError(err error) *bacnet.ServiceError {
	switch {
	case errors.Is(err, object.ErrValueOutOfRange):
		return errOutOfRange
	case errors.Is(err, object.ErrWriteAccessDenied):
		return errWriteDenied
	case errors.Is(err, object.ErrUnknownProperty):
		return errUnknownProp
	default:
		return errOutOfRange
	}
}

// SubscribeCOV registers, renews or cancels a subscription.
func (s *Server) SubscribeCOV(req bacnet.SubscribeCOVRequest, from *net.UDPAddr) *bacnet.ServiceError {
	id := modelID(req.Monitored)
	obj, ok := s.reg.Get(id)
	if !ok {
		return errUnknownObject
	}

	if req.Confirmed == nil && req.Lifetime == nil {
		s.cov.Cancel(req.ProcessID, id, from)
		s.log.Info("cov subscription cancelled",
			zap.String("object", id.String()),
			zap.Uint32("process_id", req.ProcessID))
		return nil
	}

	confirmed := req.Confirmed != nil && *req.Confirmed
	var lifetime uint32
	if req.Lifetime != nil {
		lifetime = *req.Lifetime
	}
	s.cov.Subscribe(req.ProcessID, id, from, confirmed, lifetime)
	s.cov.prime(obj)
	s.log.Info("cov subscription added",
		zap.String("object", id.String()),
		zap.Uint32("process_id", req.ProcessID),
		zap.Uint32("lifetime", lifetime),
		zap.Bool("confirmed", confirmed))
	return nil
}

// PropertyList enumerates readable properties for RPM ALL expansion.
func (s *Server) PropertyList(oid bacnet.ObjectID) ([]uint32, *bacnet.ServiceError) {
	if oid.Type == uint16(object.TypeDevice) {
		return []uint32{
			bacnet.PropObjectIdentifier, bacnet.PropObjectName, bacnet.PropObjectType,
			bacnet.PropSystemStatus, bacnet.PropVendorIdentifier, bacnet.PropObjectList,
		}, nil
	}
	obj, ok := s.reg.Get(modelID(oid))
	if !ok {
		return nil, errUnknownObject
	}

	props := []uint32{
		bacnet.PropObjectIdentifier, bacnet.PropObjectName, bacnet.PropObjectType,
		bacnet.PropDescription, bacnet.PropPresentValue, bacnet.PropStatusFlags,
		bacnet.PropEventState, bacnet.PropOutOfService,
	}
	switch obj.ID().Type {
	case object.TypeAnalogInput, object.TypeAnalogValue:
		props = append(props, bacnet.PropUnits, bacnet.PropCovIncrement)
	case object.TypeAnalogOutput:
		props = append(props, bacnet.PropUnits, bacnet.PropCovIncrement, bacnet.PropRelinquishDefault)
	case object.TypeBinaryInput:
		props = append(props, bacnet.PropPolarity)
	case object.TypeBinaryOutput:
		props = append(props, bacnet.PropPolarity, bacnet.PropRelinquishDefault)
	case object.TypeMultiStateInput, object.TypeMultiStateValue:
		props = append(props, bacnet.PropNumberOfStates, bacnet.PropStateText)
	case object.TypeMultiStateOutput:
		props = append(props, bacnet.PropNumberOfStates, bacnet.PropStateText, bacnet.PropRelinquishDefault)
	}
	return props, nil
}

// readDeviceProperty serves the device object.
func (s *Server) readDeviceProperty(oid bacnet.ObjectID, ref bacnet.PropertyRef) ([]byte, *bacnet.ServiceError) {
	if oid.Instance != s.dev.Instance && oid.Instance != 0x3FFFFF {
		return nil, errUnknownObject
	}

	deviceOID := bacnet.ObjectID{Type: uint16(object.TypeDevice), Instance: s.dev.Instance}

	switch ref.Property {
	case bacnet.PropObjectIdentifier:
		return mustEncode(deviceOID)
	case bacnet.PropObjectName:
		return mustEncode(s.dev.ObjectName)
	case bacnet.PropObjectType:
		return mustEncode(bacnet.Enumerated(object.TypeDevice))
	case bacnet.PropSystemStatus:
		return mustEncode(bacnet.Enumerated(0)) // operational
	case bacnet.PropVendorIdentifier:
		return mustEncode(uint32(s.dev.VendorIdentifier))
	case bacnet.PropObjectList:
		ids := []bacnet.ObjectID{deviceOID}
		for _, o := range s.reg.Objects() {
			ids = append(ids, wireID(o.ID()))
		}
		if ref.ArrayIndex != nil {
			idx := *ref.ArrayIndex
			if idx == 0 {
				return mustEncode(uint32(len(ids)))
			}
			if int(idx) > len(ids) {
				return nil, errOutOfRange
			}
			return mustEncode(ids[idx-1])
		}
		return mustEncode(ids)
	}
	return nil, errUnknownProp
}

func mustEncode(v interface{}) ([]byte, *bacnet.ServiceError) {
	data, err := bacnet.EncodeAppData(v)
	if err != nil {
		return nil, errInternal
	}
	return data, nil
}

// ObjectsChanged is called by the refresh task with the identifiers whose
// monitored properties moved during the cycle.
func (s *Server) ObjectsChanged(ids []object.ID) {
	for _, id := range ids {
		if obj, ok := s.reg.Get(id); ok {
			s.notifyObject(obj)
		}
	}
}
