package netlink

import (
	"iter"
	"time"
)

// Iterator walks an attribute stream. It's a cursor over a borrowed byte
// slice plus the count of bytes still to be consumed, mirroring the
// nla_ok()/nla_next() pair from libnl. Every step is bounds checked against
// the slice so declared lengths are never trusted over the actual data.
//
// An Iterator is either active or exhausted. Exhaustion is terminal: build a
// new Iterator to walk the same bytes again.
type Iterator struct {
	b   []byte
	off int
	rem int

	exhausted bool
}

// NewIterator returns an Iterator over a raw attribute stream such as the
// payload of a nested attribute.
func NewIterator(b []byte) *Iterator {
	return &Iterator{b: b, rem: len(b)}
}

// Next returns the attribute under the cursor and advances past it and its
// padding. It returns false once the stream is exhausted or the remaining
// bytes cannot hold a well formed attribute.
func (it *Iterator) Next() (Attribute, bool) {
	if it.exhausted {
		return Attribute{}, false
	}

	if it.rem <= 0 || !it.ok() {
		it.exhausted = true
		return Attribute{}, false
	}

	l := int(getUint16(it.b[it.off:]))
	a := Attribute{
		typ:  getUint16(it.b[it.off+2:]),
		data: it.b[it.off+AttrHeaderLen : it.off+l : it.off+l],
	}

	// The padding of the very last attribute may have been cut off.
	step := min(Align(l), it.rem)
	it.off += step
	it.rem -= step

	return a, true
}

// nla_ok()
func (it *Iterator) ok() bool {
	if it.rem < AttrHeaderLen {
		return false
	}
	l := int(getUint16(it.b[it.off:]))
	return l >= AttrHeaderLen && l <= it.rem
}

// Remaining returns the number of bytes not consumed yet. Once the Iterator
// is exhausted this is the count of trailing bytes that couldn't be parsed.
func (it *Iterator) Remaining() int {
	return it.rem
}

// Exhausted reports whether Next has already returned false.
func (it *Iterator) Exhausted() bool {
	return it.exhausted
}

// All adapts the Iterator to a range-over-func sequence.
func (it *Iterator) All() iter.Seq[Attribute] {
	return func(yield func(Attribute) bool) {
		for a, ok := it.Next(); ok; a, ok = it.Next() {
			if !yield(a) {
				return
			}
		}
	}
}

// Attribute is a read-only view of an attribute within a buffer. It's only
// valid for as long as the underlying buffer is left untouched.
type Attribute struct {
	typ  uint16
	data []byte
}

// Type returns the type tag without the NLA_F_NESTED and
// NLA_F_NET_BYTEORDER bits.
func (a Attribute) Type() uint16 { return a.typ & nlaTypeMask }

// Nested reports whether the sender flagged the payload as nested attributes.
func (a Attribute) Nested() bool { return a.typ&nlaFNested != 0 }

// NetByteorder reports whether the payload is in network byte order.
func (a Attribute) NetByteorder() bool { return a.typ&nlaFNetByteorder != 0 }

// Len is the payload length, padding excluded.
func (a Attribute) Len() int { return len(a.data) }

// Bytes returns the payload without copying it.
func (a Attribute) Bytes() []byte { return a.data }

// Value decodes the payload as the given kind.
func (a Attribute) Value(kind Kind) (Value, error) {
	return DecodeValue(a.data, len(a.data), kind)
}

// Attr decodes the attribute as the given kind.
func (a Attribute) Attr(kind Kind) (Attr, error) {
	v, err := a.Value(kind)
	if err != nil {
		return Attr{}, err
	}
	return Attr{Type: a.Type(), Value: v}, nil
}

// Attributes walks the payload as a nested attribute stream.
func (a Attribute) Attributes() *Iterator {
	return NewIterator(a.data)
}

func (a Attribute) Uint8() (uint8, error) {
	v, err := a.Value(KindU8)
	if err != nil {
		return 0, err
	}
	return uint8(v.(U8)), nil
}

func (a Attribute) Uint16() (uint16, error) {
	v, err := a.Value(KindU16)
	if err != nil {
		return 0, err
	}
	return uint16(v.(U16)), nil
}

func (a Attribute) Uint32() (uint32, error) {
	v, err := a.Value(KindU32)
	if err != nil {
		return 0, err
	}
	return uint32(v.(U32)), nil
}

func (a Attribute) Uint64() (uint64, error) {
	v, err := a.Value(KindU64)
	if err != nil {
		return 0, err
	}
	return uint64(v.(U64)), nil
}

// Text returns a string payload without its trailing NUL.
func (a Attribute) Text() (string, error) {
	v, err := a.Value(KindString)
	if err != nil {
		return "", err
	}
	return string(v.(String)), nil
}

// Flag returns true for a well formed flag. Absent flags are never seen
// by an Iterator, so there is no way to get false without an error.
func (a Attribute) Flag() (bool, error) {
	if _, err := a.Value(KindFlag); err != nil {
		return false, err
	}
	return true, nil
}

func (a Attribute) Msecs() (time.Duration, error) {
	v, err := a.Value(KindMsecs)
	if err != nil {
		return 0, err
	}
	return time.Duration(v.(Msecs)), nil
}
