package bacnet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Application tag numbers (ASHRAE 135 clause 20.2.1.4)
const (
	tagNull            byte = 0
	tagBoolean         byte = 1
	tagUnsigned        byte = 2
	tagSignedInt       byte = 3
	tagReal            byte = 4
	tagDouble          byte = 5
	tagOctetString     byte = 6
	tagCharacterString byte = 7
	tagBitString       byte = 8
	tagEnumerated      byte = 9
	tagObjectID        byte = 12
)

// StatusFlags mirrors the model's 4-bit Status_Flags for wire encoding.
type StatusFlags struct {
	InAlarm      bool
	Fault        bool
	Overridden   bool
	OutOfService bool
}

// writeTag emits a tag octet (plus extended length octet when needed).
// context selects a context-specific tag, length is the data length.
func writeTag(buf *bytes.Buffer, tagNumber byte, context bool, length int) {
	tag := tagNumber << 4
	if context {
		tag |= 0x08
	}
	if length < 5 {
		buf.WriteByte(tag | byte(length))
		return
	}
	// Extended lengths beyond one octet never occur for the property
	// values this device serves.
	buf.WriteByte(tag | 0x05)
	buf.WriteByte(byte(length))
}

func writeOpeningTag(buf *bytes.Buffer, tagNumber byte) {
	buf.WriteByte(tagNumber<<4 | 0x0E)
}

func writeClosingTag(buf *bytes.Buffer, tagNumber byte) {
	buf.WriteByte(tagNumber<<4 | 0x0F)
}

func unsignedBytes(v uint32) []byte {
	switch {
	case v < 0x100:
		return []byte{byte(v)}
	case v < 0x10000:
		return []byte{byte(v >> 8), byte(v)}
	case v < 0x1000000:
		return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	}
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// --- application-tagged encodings ---

func EncodeNull(buf *bytes.Buffer) {
	writeTag(buf, tagNull, false, 0)
}

func EncodeBoolean(buf *bytes.Buffer, v bool) {
	// For application booleans the length field carries the value.
	val := 0
	if v {
		val = 1
	}
	writeTag(buf, tagBoolean, false, val)
}

func EncodeUnsigned(buf *bytes.Buffer, v uint32) {
	b := unsignedBytes(v)
	writeTag(buf, tagUnsigned, false, len(b))
	buf.Write(b)
}

func EncodeReal(buf *bytes.Buffer, v float64) {
	writeTag(buf, tagReal, false, 4)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], math.Float32bits(float32(v)))
	buf.Write(b[:])
}

func EncodeCharacterString(buf *bytes.Buffer, s string) {
	writeTag(buf, tagCharacterString, false, len(s)+1)
	buf.WriteByte(0x00) // UTF-8
	buf.WriteString(s)
}

func EncodeEnumerated(buf *bytes.Buffer, v uint32) {
	b := unsignedBytes(v)
	writeTag(buf, tagEnumerated, false, len(b))
	buf.Write(b)
}

// EncodeStatusFlags emits the 4-bit Status_Flags bit string.
func EncodeStatusFlags(buf *bytes.Buffer, f StatusFlags) {
	writeTag(buf, tagBitString, false, 2)
	buf.WriteByte(4) // unused bits in the final octet
	var bits byte
	if f.InAlarm {
		bits |= 0x80
	}
	if f.Fault {
		bits |= 0x40
	}
	if f.Overridden {
		bits |= 0x20
	}
	if f.OutOfService {
		bits |= 0x10
	}
	buf.WriteByte(bits)
}

func EncodeObjectID(buf *bytes.Buffer, oid ObjectID) {
	writeTag(buf, tagObjectID, false, 4)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], oid.pack())
	buf.Write(b[:])
}

// --- context-tagged encodings ---

func encodeContextUnsigned(buf *bytes.Buffer, tagNumber byte, v uint32) {
	b := unsignedBytes(v)
	writeTag(buf, tagNumber, true, len(b))
	buf.Write(b)
}

func encodeContextObjectID(buf *bytes.Buffer, tagNumber byte, oid ObjectID) {
	writeTag(buf, tagNumber, true, 4)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], oid.pack())
	buf.Write(b[:])
}

// AppEncode encodes a Go value with its natural application tag. This is
// the single conversion point the service handlers use; the supported set
// matches the property types of the nine object shapes.
func AppEncode(buf *bytes.Buffer, v interface{}) error {
	switch x := v.(type) {
	case nil:
		EncodeNull(buf)
	case bool:
		EncodeBoolean(buf, x)
	case uint32:
		EncodeUnsigned(buf, x)
	case uint16:
		EncodeUnsigned(buf, uint32(x))
	case int:
		if x < 0 {
			return fmt.Errorf("bacnet: cannot encode negative %d as unsigned", x)
		}
		EncodeUnsigned(buf, uint32(x))
	case float64:
		EncodeReal(buf, x)
	case float32:
		EncodeReal(buf, float64(x))
	case string:
		EncodeCharacterString(buf, x)
	case StatusFlags:
		EncodeStatusFlags(buf, x)
	case ObjectID:
		EncodeObjectID(buf, x)
	case []string:
		for _, s := range x {
			EncodeCharacterString(buf, s)
		}
	case []ObjectID:
		for _, oid := range x {
			EncodeObjectID(buf, oid)
		}
	default:
		return fmt.Errorf("bacnet: unsupported application type %T", v)
	}
	return nil
}

// Enumerated wraps a value that must encode as ENUMERATED rather than
// UNSIGNED (event-state, polarity, binary present-value, units).
type Enumerated uint32

func EncodeAppData(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if e, ok := v.(Enumerated); ok {
		EncodeEnumerated(&buf, uint32(e))
		return buf.Bytes(), nil
	}
	if err := AppEncode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
