package bacnet

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
)

// DeviceInfo is the served device object identity.
type DeviceInfo struct {
	ObjectName       string
	Instance         uint32
	VendorIdentifier uint16
	MaxAPDU          uint16
}

// ServiceError is a BACnet error class/code pair returned to the client
// as an Error PDU.
type ServiceError struct {
	Class uint32
	Code  uint32
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("bacnet error class=%d code=%d", e.Class, e.Code)
}

// PropertyRef is a property identifier with an optional array index.
type PropertyRef struct {
	Property   uint32
	ArrayIndex *uint32
}

// SubscribeCOVRequest carries the decoded SubscribeCOV parameters.
// Confirmed and Lifetime are nil on a cancellation.
type SubscribeCOVRequest struct {
	ProcessID uint32
	Monitored ObjectID
	Confirmed *bool
	Lifetime  *uint32
}

// Handler binds the protocol engine to the object runtime. Values
// returned from ReadProperty are application-encoded bytes; values passed
// to WriteProperty are decoded primitives (nil = Null).
type Handler interface {
	ReadProperty(oid ObjectID, ref PropertyRef) ([]byte, *ServiceError)
	WriteProperty(oid ObjectID, ref PropertyRef, value interface{}, priority *uint8) *ServiceError
	SubscribeCOV(req SubscribeCOVRequest, from *net.UDPAddr) *ServiceError
	// PropertyList enumerates the readable properties of an object, for
	// ReadPropertyMultiple ALL expansion.
	PropertyList(oid ObjectID) ([]uint32, *ServiceError)
}

// invokeIDManager hands out invoke ids for confirmed notifications.
type invokeIDManager struct {
	mu     sync.Mutex
	lastID byte
}

func (m *invokeIDManager) Next() byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastID++
	return m.lastID
}

// Application is the BACnet/IP application: one UDP socket, one read
// loop, and the service dispatch against a Handler. All PDU handling runs
// on the single read-loop goroutine.
type Application struct {
	Device DeviceInfo

	conn    *net.UDPConn
	bcast   *net.UDPAddr
	handler Handler
	log     *zap.Logger
	invoke  invokeIDManager

	mu      sync.Mutex
	running bool
}

// NewApplication binds the UDP socket. A bind failure is fatal at startup.
func NewApplication(dev DeviceInfo, bind, bcast *net.UDPAddr, h Handler, log *zap.Logger) (*Application, error) {
	if dev.MaxAPDU == 0 {
		dev.MaxAPDU = 1476
	}
	conn, err := net.ListenUDP("udp4", bind)
	if err != nil {
		return nil, fmt.Errorf("bacnet: failed to bind %s: %w", bind, err)
	}
	return &Application{
		Device:  dev,
		conn:    conn,
		bcast:   bcast,
		handler: h,
		log:     log,
	}, nil
}

// Run reads and dispatches PDUs until the context is cancelled.
func (a *Application) Run(ctx context.Context) error {
	a.mu.Lock()
	a.running = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	go func() {
		<-ctx.Done()
		a.conn.Close()
	}()

	buf := make([]byte, 1500)
	for {
		n, from, err := a.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("bacnet: read: %w", err)
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		a.handlePacket(pkt, from)
	}
}

// Running reports whether the read loop is active.
func (a *Application) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// LocalAddr returns the bound address.
func (a *Application) LocalAddr() net.Addr {
	return a.conn.LocalAddr()
}

func (a *Application) handlePacket(data []byte, from *net.UDPAddr) {
	apdu, err := stripTransport(data)
	if err != nil {
		a.log.Debug("dropping malformed frame", zap.Error(err), zap.String("from", from.String()))
		return
	}
	if apdu == nil {
		return // network-layer message or BVLC housekeeping
	}

	switch apdu[0] & 0xF0 {
	case apduConfirmedRequest:
		a.handleConfirmed(apdu, from)
	case apduUnconfirmedRequest:
		a.handleUnconfirmed(apdu, from)
	case apduSimpleAck, apduComplexAck, apduError, apduReject, apduAbort, apduSegmentAck:
		// Replies to our confirmed notifications; nothing to correlate.
		a.log.Debug("ignoring peer reply PDU", zap.Uint8("pdu_type", apdu[0]>>4))
	}
}

// stripTransport validates the BVLC header and skips the NPDU, returning
// the APDU octets. Returns nil for frames with no application payload.
func stripTransport(data []byte) ([]byte, error) {
	if len(data) < 4 || data[0] != bvlcTypeBACnetIP {
		return nil, fmt.Errorf("not a BACnet/IP frame")
	}
	length := binary.BigEndian.Uint16(data[2:4])
	if int(length) != len(data) {
		return nil, fmt.Errorf("BVLC length %d != frame length %d", length, len(data))
	}

	offset := 4
	switch data[1] {
	case bvlcOriginalUnicast, bvlcOriginalBroadcast:
	case bvlcForwardedNPDU:
		offset += 6 // originating B/IP address
	case bvlcResult:
		return nil, nil
	default:
		return nil, nil
	}

	if len(data) < offset+2 {
		return nil, fmt.Errorf("truncated NPDU")
	}
	if data[offset] != npduVersion {
		return nil, fmt.Errorf("NPDU version %d", data[offset])
	}
	control := data[offset+1]
	offset += 2

	if control&npduControlNetworkMessage != 0 {
		return nil, nil
	}
	if control&npduControlDestPresent != 0 {
		if len(data) < offset+3 {
			return nil, fmt.Errorf("truncated NPDU destination")
		}
		dlen := int(data[offset+2])
		offset += 3 + dlen
	}
	if control&npduControlSourcePresent != 0 {
		if len(data) < offset+3 {
			return nil, fmt.Errorf("truncated NPDU source")
		}
		slen := int(data[offset+2])
		offset += 3 + slen
	}
	if control&npduControlDestPresent != 0 {
		offset++ // hop count
	}

	if len(data) <= offset {
		return nil, fmt.Errorf("missing APDU")
	}
	return data[offset:], nil
}

// send wraps an APDU in NPDU+BVLC and writes it out.
func (a *Application) send(dst *net.UDPAddr, bvlcFunction byte, apdu []byte) error {
	var buf bytes.Buffer
	buf.WriteByte(bvlcTypeBACnetIP)
	buf.WriteByte(bvlcFunction)
	binary.Write(&buf, binary.BigEndian, uint16(4+2+len(apdu)))
	buf.WriteByte(npduVersion)
	buf.WriteByte(0x00)
	buf.Write(apdu)

	_, err := a.conn.WriteToUDP(buf.Bytes(), dst)
	return err
}

func (a *Application) reply(dst *net.UDPAddr, apdu []byte) {
	if err := a.send(dst, bvlcOriginalUnicast, apdu); err != nil {
		a.log.Warn("failed to send reply", zap.Error(err), zap.String("to", dst.String()))
	}
}

// --- reply PDU builders ---

func simpleAck(invokeID, service byte) []byte {
	return []byte{apduSimpleAck, invokeID, service}
}

func complexAck(invokeID, service byte, payload []byte) []byte {
	out := make([]byte, 0, 3+len(payload))
	out = append(out, apduComplexAck, invokeID, service)
	return append(out, payload...)
}

func errorPDU(invokeID, service byte, se *ServiceError) []byte {
	var buf bytes.Buffer
	buf.WriteByte(apduError)
	buf.WriteByte(invokeID)
	buf.WriteByte(service)
	EncodeEnumerated(&buf, se.Class)
	EncodeEnumerated(&buf, se.Code)
	return buf.Bytes()
}

func rejectPDU(invokeID, reason byte) []byte {
	return []byte{apduReject, invokeID, reason}
}

func abortPDU(invokeID, reason byte) []byte {
	// Server-generated abort: SRV bit set.
	return []byte{apduAbort | 0x01, invokeID, reason}
}
