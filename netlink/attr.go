package netlink

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindBytes Kind = iota
	KindU8
	KindU16
	KindU32
	KindU64
	KindString
	KindFlag
	KindMsecs
	KindNested
)

var (
	kindName = map[Kind]string{
		KindBytes:  "bytes",
		KindU8:     "u8",
		KindU16:    "u16",
		KindU32:    "u32",
		KindU64:    "u64",
		KindString: "string",
		KindFlag:   "flag",
		KindMsecs:  "msecs",
		KindNested: "nested",
	}

	kindMap = map[string]Kind{
		"bytes":  KindBytes,
		"binary": KindBytes,
		"u8":     KindU8,
		"u16":    KindU16,
		"u32":    KindU32,
		"u64":    KindU64,
		"string": KindString,
		"flag":   KindFlag,
		"msecs":  KindMsecs,
		"nested": KindNested,
	}
)

func (k Kind) String() string {
	name, ok := kindName[k]
	if !ok {
		return fmt.Sprintf("UNKNOWN_KIND_%d", k)
	}
	return name
}

func ParseKind(kind string) (Kind, bool) {
	k, ok := kindMap[strings.ToLower(kind)]
	return k, ok
}

// Value is the payload of an attribute. The set of implementations is closed:
// Bytes, U8, U16, U32, U64, String, Flag, Msecs and Nested.
type Value interface {
	Kind() Kind
	isValue()
}

type (
	// Bytes is an opaque binary payload.
	Bytes []byte

	U8  uint8
	U16 uint16
	U32 uint32
	U64 uint64

	// String is encoded with its trailing NUL.
	String string

	// Flag carries no payload: its presence means true. A false Flag cannot
	// be encoded.
	Flag bool

	// Msecs travels as a 64-bit count of milliseconds.
	Msecs time.Duration

	// Nested is a list of attributes encoded as the payload of another one.
	Nested []Attr
)

// Attr pairs a type tag with its value.
type Attr struct {
	Type  uint16
	Value Value
}

func (Bytes) Kind() Kind  { return KindBytes }
func (U8) Kind() Kind     { return KindU8 }
func (U16) Kind() Kind    { return KindU16 }
func (U32) Kind() Kind    { return KindU32 }
func (U64) Kind() Kind    { return KindU64 }
func (String) Kind() Kind { return KindString }
func (Flag) Kind() Kind   { return KindFlag }
func (Msecs) Kind() Kind  { return KindMsecs }
func (Nested) Kind() Kind { return KindNested }

func (Bytes) isValue()  {}
func (U8) isValue()     {}
func (U16) isValue()    {}
func (U32) isValue()    {}
func (U64) isValue()    {}
func (String) isValue() {}
func (Flag) isValue()   {}
func (Msecs) isValue()  {}
func (Nested) isValue() {}

// Encode returns the wire representation of a single attribute, padding
// included.
func Encode(typ uint16, v Value) ([]byte, error) {
	return AppendAttr(nil, typ, v)
}

// AppendAttr appends the encoding of the attribute to b:
//
//	[nla_len:u16][nla_type:u16][payload][padding to a 4-byte boundary]
//
// On error b is returned with its original length.
func AppendAttr(b []byte, typ uint16, v Value) ([]byte, error) {
	if typ&^nlaTypeMask != 0 {
		return b, fmt.Errorf("%w: %#x", ErrInvalidType, typ)
	}

	start := len(b)
	b = append(b, 0, 0, 0, 0)

	var err error
	switch v := v.(type) {
	case Bytes:
		b = append(b, v...)
	case U8:
		b = append(b, byte(v))
	case U16:
		b = appendUint16(b, uint16(v))
	case U32:
		b = appendUint32(b, uint32(v))
	case U64:
		b = appendUint64(b, uint64(v))
	case String:
		if strings.IndexByte(string(v), 0) >= 0 {
			return b[:start], fmt.Errorf("%w: %q", ErrEmbeddedNUL, string(v))
		}
		b = append(b, v...)
		b = append(b, 0)
	case Flag:
		if !v {
			return b[:start], ErrFalseFlag
		}
	case Msecs:
		b = appendUint64(b, uint64(time.Duration(v).Milliseconds()))
	case Nested:
		typ |= nlaFNested
		for _, c := range v {
			if b, err = AppendAttr(b, c.Type, c.Value); err != nil {
				return b[:start], fmt.Errorf("nested attribute %d: %w", c.Type, err)
			}
		}
	default:
		return b[:start], fmt.Errorf("%w: %T", ErrUnknownValue, v)
	}

	l := len(b) - start
	if l > maxAttrLen {
		return b[:start], fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, l)
	}
	putUint16(b[start:], uint16(l))
	putUint16(b[start+2:], typ)

	return append(b, make([]byte, Align(l)-l)...), nil
}

// DecodeHeader reads the attribute header starting at b[off]. It returns the
// type tag (sans NLA_F_* bits), the payload length and the offset of the
// payload within b.
func DecodeHeader(b []byte, off int) (typ uint16, payloadLen int, payloadOff int, err error) {
	if off < 0 || len(b)-off < AttrHeaderLen {
		return 0, 0, 0, ErrTruncatedHeader
	}

	l := int(getUint16(b[off:]))
	if l < AttrHeaderLen {
		return 0, 0, 0, fmt.Errorf("%w: nla_len %d", ErrInvalidLength, l)
	}

	return getUint16(b[off+2:]) & nlaTypeMask, l - AttrHeaderLen, off + AttrHeaderLen, nil
}

// DecodeValue interprets the first payloadLen bytes of payload as a value of
// the given kind. Scalars must match their width exactly. Nested payloads are
// split into their children, each one kept as Bytes: use Parse with a Policy
// to decode them further.
func DecodeValue(payload []byte, payloadLen int, kind Kind) (Value, error) {
	if payloadLen < 0 || payloadLen > len(payload) {
		return nil, fmt.Errorf("%w: want %d, have %d", ErrPayloadTooShort, payloadLen, len(payload))
	}
	p := payload[:payloadLen]

	switch kind {
	case KindBytes:
		return Bytes(bytes.Clone(p)), nil
	case KindU8:
		if err := checkWidth(kind, p, 1); err != nil {
			return nil, err
		}
		return U8(p[0]), nil
	case KindU16:
		if err := checkWidth(kind, p, 2); err != nil {
			return nil, err
		}
		return U16(getUint16(p)), nil
	case KindU32:
		if err := checkWidth(kind, p, 4); err != nil {
			return nil, err
		}
		return U32(getUint32(p)), nil
	case KindU64:
		if err := checkWidth(kind, p, 8); err != nil {
			return nil, err
		}
		return U64(getUint64(p)), nil
	case KindString:
		i := bytes.IndexByte(p, 0)
		if i < 0 {
			return nil, ErrUnterminatedString
		}
		return String(p[:i]), nil
	case KindFlag:
		if err := checkWidth(kind, p, 0); err != nil {
			return nil, err
		}
		return Flag(true), nil
	case KindMsecs:
		if err := checkWidth(kind, p, 8); err != nil {
			return nil, err
		}
		return Msecs(time.Duration(int64(getUint64(p))) * time.Millisecond), nil
	case KindNested:
		children := Nested{}
		it := NewIterator(p)
		for a, ok := it.Next(); ok; a, ok = it.Next() {
			children = append(children, Attr{Type: a.Type(), Value: Bytes(bytes.Clone(a.data))})
		}
		return children, nil
	}

	return nil, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
}

// Decode reads a whole attribute starting at b[off] and returns it together
// with the offset of the next one.
func Decode(b []byte, off int, kind Kind) (Attr, int, error) {
	typ, l, po, err := DecodeHeader(b, off)
	if err != nil {
		return Attr{}, off, err
	}

	v, err := DecodeValue(b[po:], l, kind)
	if err != nil {
		return Attr{}, off, fmt.Errorf("attribute %d: %w", typ, err)
	}

	return Attr{Type: typ, Value: v}, min(po+Align(l), len(b)), nil
}

func checkWidth(kind Kind, p []byte, want int) error {
	if len(p) != want {
		return fmt.Errorf("%w: %s wants %d bytes, payload has %d", ErrWidthMismatch, kind, want, len(p))
	}
	return nil
}
