// Package bacnet implements the BACnet/IP application layer the device
// serves: BVLC/NPDU framing, ASHRAE-135 tagged data encoding, and the
// confirmed/unconfirmed services needed by a device-side server
// (ReadProperty, ReadPropertyMultiple, WriteProperty, SubscribeCOV,
// COV notifications, WhoIs/IAm).
package bacnet

// BACnet/IP constants
const (
	// BVLC (BACnet/IP Virtual Link Control)
	bvlcTypeBACnetIP byte = 0x81

	// BVLC functions
	bvlcResult            byte = 0x00
	bvlcForwardedNPDU     byte = 0x04
	bvlcOriginalUnicast   byte = 0x0a
	bvlcOriginalBroadcast byte = 0x0b

	// NPDU
	npduVersion byte = 0x01

	// NPDU control bits
	npduControlNetworkMessage byte = 0x80
	npduControlDestPresent    byte = 0x20
	npduControlSourcePresent  byte = 0x08
	npduControlExpectingReply byte = 0x04

	// APDU types (high nibble of the first APDU octet)
	apduConfirmedRequest   byte = 0x00
	apduUnconfirmedRequest byte = 0x10
	apduSimpleAck          byte = 0x20
	apduComplexAck         byte = 0x30
	apduSegmentAck         byte = 0x40
	apduError              byte = 0x50
	apduReject             byte = 0x60
	apduAbort              byte = 0x70

	// Confirmed request PDU flags
	apduFlagSegmented byte = 0x08

	// Unconfirmed service choices
	serviceUnconfirmedIAm             byte = 0x00
	serviceUnconfirmedCOVNotification byte = 0x02
	serviceUnconfirmedWhoIs           byte = 0x08

	// Confirmed service choices
	serviceConfirmedCOVNotification      byte = 0x01
	serviceConfirmedSubscribeCOV         byte = 0x05
	serviceConfirmedReadProperty         byte = 0x0c
	serviceConfirmedReadPropertyMultiple byte = 0x0e
	serviceConfirmedWriteProperty        byte = 0x0f

	// DefaultPort is the standard BACnet/IP UDP port.
	DefaultPort = 47808

	// objectTypeDevice is the device object type tag.
	objectTypeDevice uint16 = 8
)

// Property identifiers served by the device.
const (
	PropDescription            uint32 = 28
	PropEventState             uint32 = 36
	PropNumberOfStates         uint32 = 74
	PropObjectIdentifier       uint32 = 75
	PropObjectList             uint32 = 76
	PropObjectName             uint32 = 77
	PropObjectType             uint32 = 79
	PropOptional               uint32 = 80
	PropOutOfService           uint32 = 81
	PropPolarity               uint32 = 84
	PropPresentValue           uint32 = 85
	PropPriorityArray          uint32 = 87
	PropRelinquishDefault      uint32 = 104
	PropRequired               uint32 = 105
	PropSegmentationSupported  uint32 = 107
	PropStateText              uint32 = 110
	PropStatusFlags            uint32 = 111
	PropSystemStatus           uint32 = 112
	PropUnits                  uint32 = 117
	PropVendorIdentifier       uint32 = 120
	PropCovIncrement           uint32 = 22
	PropAll                    uint32 = 8
	PropCurrentCommandPriority uint32 = 425
)

// Error classes (BACnetErrorClass)
const (
	ErrorClassDevice   uint32 = 0
	ErrorClassObject   uint32 = 1
	ErrorClassProperty uint32 = 2
	ErrorClassServices uint32 = 5
)

// Error codes (BACnetErrorCode)
const (
	ErrorCodeOther                   uint32 = 0
	ErrorCodeInvalidDataType         uint32 = 9
	ErrorCodeUnknownObject           uint32 = 31
	ErrorCodeUnknownProperty         uint32 = 32
	ErrorCodeValueOutOfRange         uint32 = 37
	ErrorCodeWriteAccessDenied       uint32 = 40
	ErrorCodeServiceRequestDenied    uint32 = 29
	ErrorCodeOperationalProblem      uint32 = 25
	ErrorCodeCOVSubscriptionFailed   uint32 = 43
	ErrorCodeDatatypeNotSupported    uint32 = 47
	abortReasonSegmentationNotSupp   byte   = 4
	rejectReasonUnrecognizedService  byte   = 9
	rejectReasonMissingRequiredParam byte   = 5
	rejectReasonInvalidTag           byte   = 4
)

// Segmentation support values for the I-Am device announcement.
const (
	segmentationNone uint32 = 3
)

// ObjectID identifies a BACnet object on the wire.
type ObjectID struct {
	Type     uint16
	Instance uint32
}

const maxInstance = 0x3FFFFF

// pack packs the 10-bit type and 22-bit instance.
func (o ObjectID) pack() uint32 {
	return uint32(o.Type)<<22 | (o.Instance & maxInstance)
}

func unpackObjectID(v uint32) ObjectID {
	return ObjectID{Type: uint16(v >> 22), Instance: v & maxInstance}
}
