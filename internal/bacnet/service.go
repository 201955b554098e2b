package bacnet

import (
	"bytes"
	"net"

	"go.uber.org/zap"
)

func (a *Application) handleConfirmed(apdu []byte, from *net.UDPAddr) {
	if len(apdu) < 4 {
		return
	}
	if apdu[0]&apduFlagSegmented != 0 {
		a.reply(from, abortPDU(apdu[2], abortReasonSegmentationNotSupp))
		return
	}
	invokeID := apdu[2]
	service := apdu[3]
	body := bytes.NewReader(apdu[4:])

	switch service {
	case serviceConfirmedReadProperty:
		a.serviceReadProperty(invokeID, body, from)
	case serviceConfirmedReadPropertyMultiple:
		a.serviceReadPropertyMultiple(invokeID, body, from)
	case serviceConfirmedWriteProperty:
		a.serviceWriteProperty(invokeID, body, from)
	case serviceConfirmedSubscribeCOV:
		a.serviceSubscribeCOV(invokeID, body, from)
	default:
		a.reply(from, rejectPDU(invokeID, rejectReasonUnrecognizedService))
	}
}

func (a *Application) handleUnconfirmed(apdu []byte, from *net.UDPAddr) {
	if len(apdu) < 2 {
		return
	}
	switch apdu[1] {
	case serviceUnconfirmedWhoIs:
		a.serviceWhoIs(bytes.NewReader(apdu[2:]), from)
	}
}

// --- ReadProperty ---

func (a *Application) serviceReadProperty(invokeID byte, body *bytes.Reader, from *net.UDPAddr) {
	oid, err := decodeContextObjectID(body, 0)
	if err != nil {
		a.reply(from, rejectPDU(invokeID, rejectReasonMissingRequiredParam))
		return
	}
	prop, err := decodeContextUnsigned(body, 1)
	if err != nil {
		a.reply(from, rejectPDU(invokeID, rejectReasonMissingRequiredParam))
		return
	}
	ref := PropertyRef{Property: prop}
	if body.Len() > 0 {
		idx, err := decodeContextUnsigned(body, 2)
		if err == nil {
			ref.ArrayIndex = &idx
		}
	}

	data, se := a.handler.ReadProperty(oid, ref)
	if se != nil {
		a.reply(from, errorPDU(invokeID, serviceConfirmedReadProperty, se))
		return
	}

	var buf bytes.Buffer
	encodeContextObjectID(&buf, 0, oid)
	encodeContextUnsigned(&buf, 1, ref.Property)
	if ref.ArrayIndex != nil {
		encodeContextUnsigned(&buf, 2, *ref.ArrayIndex)
	}
	writeOpeningTag(&buf, 3)
	buf.Write(data)
	writeClosingTag(&buf, 3)

	a.reply(from, complexAck(invokeID, serviceConfirmedReadProperty, buf.Bytes()))
}

// --- ReadPropertyMultiple ---

func (a *Application) serviceReadPropertyMultiple(invokeID byte, body *bytes.Reader, from *net.UDPAddr) {
	var out bytes.Buffer

	for body.Len() > 0 {
		oid, err := decodeContextObjectID(body, 0)
		if err != nil {
			a.reply(from, rejectPDU(invokeID, rejectReasonInvalidTag))
			return
		}
		h, err := readTagHeader(body)
		if err != nil || !h.Opening || h.Number != 1 {
			a.reply(from, rejectPDU(invokeID, rejectReasonInvalidTag))
			return
		}

		var refs []PropertyRef
		for {
			h, err := peekTag(body)
			if err != nil {
				a.reply(from, rejectPDU(invokeID, rejectReasonInvalidTag))
				return
			}
			if h.Closing && h.Number == 1 {
				readTagHeader(body)
				break
			}
			prop, err := decodeContextUnsigned(body, 0)
			if err != nil {
				a.reply(from, rejectPDU(invokeID, rejectReasonInvalidTag))
				return
			}
			ref := PropertyRef{Property: prop}
			if next, err := peekTag(body); err == nil && next.Context && next.Number == 1 && !next.Closing {
				idx, err := decodeContextUnsigned(body, 1)
				if err == nil {
					ref.ArrayIndex = &idx
				}
			}
			refs = append(refs, ref)
		}

		// Expand the special ALL selector against the object's actual
		// property list.
		expanded := make([]PropertyRef, 0, len(refs))
		for _, ref := range refs {
			if ref.Property == PropAll || ref.Property == PropRequired || ref.Property == PropOptional {
				props, se := a.handler.PropertyList(oid)
				if se != nil {
					expanded = append(expanded, ref)
					continue
				}
				for _, p := range props {
					expanded = append(expanded, PropertyRef{Property: p})
				}
				continue
			}
			expanded = append(expanded, ref)
		}

		encodeContextObjectID(&out, 0, oid)
		writeOpeningTag(&out, 1)
		for _, ref := range expanded {
			encodeContextUnsigned(&out, 2, ref.Property)
			if ref.ArrayIndex != nil {
				encodeContextUnsigned(&out, 3, *ref.ArrayIndex)
			}
			data, se := a.handler.ReadProperty(oid, ref)
			if se != nil {
				writeOpeningTag(&out, 5)
				EncodeEnumerated(&out, se.Class)
				EncodeEnumerated(&out, se.Code)
				writeClosingTag(&out, 5)
				continue
			}
			writeOpeningTag(&out, 4)
			out.Write(data)
			writeClosingTag(&out, 4)
		}
		writeClosingTag(&out, 1)
	}

	a.reply(from, complexAck(invokeID, serviceConfirmedReadPropertyMultiple, out.Bytes()))
}

// --- WriteProperty ---

func (a *Application) serviceWriteProperty(invokeID byte, body *bytes.Reader, from *net.UDPAddr) {
	oid, err := decodeContextObjectID(body, 0)
	if err != nil {
		a.reply(from, rejectPDU(invokeID, rejectReasonMissingRequiredParam))
		return
	}
	prop, err := decodeContextUnsigned(body, 1)
	if err != nil {
		a.reply(from, rejectPDU(invokeID, rejectReasonMissingRequiredParam))
		return
	}
	ref := PropertyRef{Property: prop}
	if next, err := peekTag(body); err == nil && next.Context && next.Number == 2 && !next.Opening {
		idx, err := decodeContextUnsigned(body, 2)
		if err == nil {
			ref.ArrayIndex = &idx
		}
	}

	h, err := readTagHeader(body)
	if err != nil || !h.Opening || h.Number != 3 {
		a.reply(from, rejectPDU(invokeID, rejectReasonInvalidTag))
		return
	}
	value, err := decodeApplicationValue(body)
	if err != nil {
		a.reply(from, rejectPDU(invokeID, rejectReasonInvalidTag))
		return
	}
	if h, err := readTagHeader(body); err != nil || !h.Closing || h.Number != 3 {
		a.reply(from, rejectPDU(invokeID, rejectReasonInvalidTag))
		return
	}

	var priority *uint8
	if body.Len() > 0 {
		p, err := decodeContextUnsigned(body, 4)
		if err == nil && p >= 1 && p <= 16 {
			pv := uint8(p)
			priority = &pv
		}
	}

	if se := a.handler.WriteProperty(oid, ref, value, priority); se != nil {
		a.reply(from, errorPDU(invokeID, serviceConfirmedWriteProperty, se))
		return
	}
	a.reply(from, simpleAck(invokeID, serviceConfirmedWriteProperty))
}

// --- SubscribeCOV ---

func (a *Application) serviceSubscribeCOV(invokeID byte, body *bytes.Reader, from *net.UDPAddr) {
	pid, err := decodeContextUnsigned(body, 0)
	if err != nil {
		a.reply(from, rejectPDU(invokeID, rejectReasonMissingRequiredParam))
		return
	}
	oid, err := decodeContextObjectID(body, 1)
	if err != nil {
		a.reply(from, rejectPDU(invokeID, rejectReasonMissingRequiredParam))
		return
	}

	req := SubscribeCOVRequest{ProcessID: pid, Monitored: oid}
	if body.Len() > 0 {
		conf, err := decodeContextUnsigned(body, 2)
		if err == nil {
			b := conf == 1
			req.Confirmed = &b
		}
		life, err := decodeContextUnsigned(body, 3)
		if err == nil {
			req.Lifetime = &life
		}
	}

	if se := a.handler.SubscribeCOV(req, from); se != nil {
		a.reply(from, errorPDU(invokeID, serviceConfirmedSubscribeCOV, se))
		return
	}
	a.reply(from, simpleAck(invokeID, serviceConfirmedSubscribeCOV))
}

// --- WhoIs / IAm ---

func (a *Application) serviceWhoIs(body *bytes.Reader, from *net.UDPAddr) {
	if body.Len() > 0 {
		low, err1 := decodeContextUnsigned(body, 0)
		high, err2 := decodeContextUnsigned(body, 1)
		if err1 == nil && err2 == nil {
			if a.Device.Instance < low || a.Device.Instance > high {
				return
			}
		}
	}

	var buf bytes.Buffer
	buf.WriteByte(apduUnconfirmedRequest)
	buf.WriteByte(serviceUnconfirmedIAm)
	EncodeObjectID(&buf, ObjectID{Type: objectTypeDevice, Instance: a.Device.Instance})
	EncodeUnsigned(&buf, uint32(a.Device.MaxAPDU))
	EncodeEnumerated(&buf, segmentationNone)
	EncodeUnsigned(&buf, uint32(a.Device.VendorIdentifier))

	dst := a.bcast
	if dst == nil {
		dst = from
	}
	if err := a.send(dst, bvlcOriginalBroadcast, buf.Bytes()); err != nil {
		a.log.Warn("failed to send I-Am", zap.Error(err))
	}
}

// --- COV notifications ---

// PropertyValue is one entry in a notification's list of values.
// Data is application-encoded.
type PropertyValue struct {
	Property uint32
	Data     []byte
}

// COVNotification carries the parameters of a Confirmed/Unconfirmed
// COVNotification request.
type COVNotification struct {
	ProcessID     uint32
	Monitored     ObjectID
	TimeRemaining uint32
	Values        []PropertyValue
}

func (a *Application) encodeCOVBody(n COVNotification) []byte {
	var buf bytes.Buffer
	encodeContextUnsigned(&buf, 0, n.ProcessID)
	encodeContextObjectID(&buf, 1, ObjectID{Type: objectTypeDevice, Instance: a.Device.Instance})
	encodeContextObjectID(&buf, 2, n.Monitored)
	encodeContextUnsigned(&buf, 3, n.TimeRemaining)
	writeOpeningTag(&buf, 4)
	for _, pv := range n.Values {
		encodeContextUnsigned(&buf, 0, pv.Property)
		writeOpeningTag(&buf, 2)
		buf.Write(pv.Data)
		writeClosingTag(&buf, 2)
	}
	writeClosingTag(&buf, 4)
	return buf.Bytes()
}

// SendUnconfirmedCOV delivers an UnconfirmedCOVNotification to one
// subscriber.
func (a *Application) SendUnconfirmedCOV(dst *net.UDPAddr, n COVNotification) error {
	var buf bytes.Buffer
	buf.WriteByte(apduUnconfirmedRequest)
	buf.WriteByte(serviceUnconfirmedCOVNotification)
	buf.Write(a.encodeCOVBody(n))
	return a.send(dst, bvlcOriginalUnicast, buf.Bytes())
}

// SendConfirmedCOV delivers a ConfirmedCOVNotification. The subscriber's
// SimpleAck is not correlated; delivery is best-effort like the
// unconfirmed path.
func (a *Application) SendConfirmedCOV(dst *net.UDPAddr, n COVNotification) error {
	var buf bytes.Buffer
	buf.WriteByte(apduConfirmedRequest)
	buf.WriteByte(0x05) // max APDU 1476
	buf.WriteByte(a.invoke.Next())
	buf.WriteByte(serviceConfirmedCOVNotification)
	buf.Write(a.encodeCOVBody(n))
	return a.send(dst, bvlcOriginalUnicast, buf.Bytes())
}
