package netlink

import (
	"fmt"
	"iter"
	"os"

	"github.com/mdlayher/netlink"
)

// Message owns the bytes of a single netlink message: the 16-byte
// struct nlmsghdr followed by whatever has been appended to it. The length
// field in the header always matches the number of bytes appended so far.
//
// Messages only grow. There's no way of removing an attribute once it's in.
type Message struct {
	b []byte
}

// NewMessage returns an empty message: a zeroed header whose length is
// HeaderLen.
func NewMessage() *Message {
	b := make([]byte, HeaderLen, os.Getpagesize())
	putUint32(b, HeaderLen)
	return &Message{b: b}
}

// NewMessageWith returns an empty message with its type and flags already set.
func NewMessageWith(typ netlink.HeaderType, flags netlink.HeaderFlags) *Message {
	m := NewMessage()
	m.SetType(typ)
	m.SetFlags(flags)
	return m
}

// FromBytes wraps b, as read from a socket, without copying it. Appending to
// the returned Message never writes into b's spare capacity.
func FromBytes(b []byte) (*Message, error) {
	if len(b) < HeaderLen {
		return nil, fmt.Errorf("%w: got %d bytes", ErrHeaderTooShort, len(b))
	}
	return &Message{b: b[:len(b):len(b)]}, nil
}

// ParseMessages splits a datagram into the messages it carries. Each message
// aliases b. A header claiming more bytes than there are left is an error;
// trailing bytes too short to hold a header are ignored.
func ParseMessages(b []byte) ([]*Message, error) {
	msgs := []*Message{}
	for len(b) >= HeaderLen {
		l := int(getUint32(b))
		if l < HeaderLen || l > len(b) {
			return nil, fmt.Errorf("%w: message %d claims %d bytes, %d left", ErrTruncatedMessage, len(msgs), l, len(b))
		}
		msgs = append(msgs, &Message{b: b[:l:l]})
		b = b[min(Align(l), len(b)):]
	}
	return msgs, nil
}

// FromNetlink builds a Message out of one parsed by github.com/mdlayher/netlink.
func FromNetlink(nm netlink.Message) *Message {
	b := make([]byte, HeaderLen+len(nm.Data))
	copy(b[HeaderLen:], nm.Data)

	m := &Message{b: b}
	length := nm.Header.Length
	if length == 0 {
		length = uint32(len(b))
	}
	putUint32(m.b, length)
	m.SetType(nm.Header.Type)
	m.SetFlags(nm.Header.Flags)
	m.SetSequence(nm.Header.Sequence)
	m.SetPortID(nm.Header.PID)

	return m
}

// Netlink returns the message as understood by github.com/mdlayher/netlink.
// Data aliases the Message's buffer.
func (m *Message) Netlink() netlink.Message {
	return netlink.Message{
		Header: m.Header(),
		Data:   m.b[HeaderLen:m.end()],
	}
}

// Put encodes the attribute and appends it, padding included. Attributes are
// kept in the order they're put in, even if their types repeat. Nothing is
// appended on error.
func (m *Message) Put(typ uint16, v Value) error {
	b, err := AppendAttr(m.b, typ, v)
	if err != nil {
		return err
	}
	m.b = b
	m.fixLength()
	return nil
}

// Append copies data (usually a family specific header such as struct rtmsg)
// at the end of the message, padded to a 4-byte boundary.
func (m *Message) Append(data []byte) error {
	if uint64(len(m.b)+Align(len(data))) > uint64(^uint32(0)) {
		return fmt.Errorf("%w: message would overflow its length field", ErrPayloadTooLarge)
	}
	m.b = append(m.b, data...)
	m.b = append(m.b, make([]byte, Align(len(data))-len(data))...)
	m.fixLength()
	return nil
}

// Nest marks the start of a nested attribute opened with NestStart.
type Nest struct {
	off int
	typ uint16
}

// NestStart opens a nested attribute: everything Put until the matching
// NestEnd ends up in its payload.
func (m *Message) NestStart(typ uint16) (Nest, error) {
	if typ&^nlaTypeMask != 0 {
		return Nest{}, fmt.Errorf("%w: %#x", ErrInvalidType, typ)
	}

	n := Nest{off: len(m.b), typ: typ | nlaFNested}
	m.b = append(m.b, 0, 0, 0, 0)
	putUint16(m.b[n.off+2:], n.typ)
	putUint16(m.b[n.off:], AttrHeaderLen)
	m.fixLength()

	return n, nil
}

// NestEnd closes a nested attribute. If its payload grew past what a 16-bit
// length can describe, the whole nest is dropped and an error is returned.
func (m *Message) NestEnd(n Nest) error {
	if n.off < HeaderLen || n.off+AttrHeaderLen > len(m.b) || getUint16(m.b[n.off+2:]) != n.typ {
		return ErrBadNest
	}

	l := len(m.b) - n.off
	if l > maxAttrLen {
		m.b = m.b[:n.off]
		m.fixLength()
		return fmt.Errorf("%w: nest %d is %d bytes long", ErrPayloadTooLarge, n.typ&nlaTypeMask, l)
	}
	putUint16(m.b[n.off:], uint16(l))

	return nil
}

// Header decodes the struct nlmsghdr at the start of the message.
func (m *Message) Header() netlink.Header {
	return parseHeader(m.b)
}

func parseHeader(b []byte) netlink.Header {
	return netlink.Header{
		Length:   getUint32(b[0:4]),
		Type:     netlink.HeaderType(getUint16(b[4:6])),
		Flags:    netlink.HeaderFlags(getUint16(b[6:8])),
		Sequence: getUint32(b[8:12]),
		PID:      getUint32(b[12:16]),
	}
}

func (m *Message) SetType(typ netlink.HeaderType)     { putUint16(m.b[4:6], uint16(typ)) }
func (m *Message) SetFlags(flags netlink.HeaderFlags) { putUint16(m.b[6:8], uint16(flags)) }
func (m *Message) SetSequence(seq uint32)             { putUint32(m.b[8:12], seq) }
func (m *Message) SetPortID(pid uint32)               { putUint32(m.b[12:16], pid) }

// Bytes returns the wire representation of the message.
func (m *Message) Bytes() []byte {
	return m.b
}

// Len returns the number of bytes in the message.
func (m *Message) Len() int {
	return len(m.b)
}

// Attributes returns an Iterator over the attribute stream. A non-zero
// hdrlen skips a family specific header sitting between the netlink header
// and the attributes.
func (m *Message) Attributes(hdrlen int) *Iterator {
	start := HeaderLen + Align(max(hdrlen, 0))
	end := m.end()
	if start > end {
		return NewIterator(nil)
	}
	return NewIterator(m.b[start:end])
}

// All walks the attribute stream as a range-over-func sequence.
func (m *Message) All(hdrlen int) iter.Seq[Attribute] {
	return m.Attributes(hdrlen).All()
}

// end is the end of the message as declared by its header, clamped to the
// bytes actually available.
func (m *Message) end() int {
	l := int(getUint32(m.b[0:4]))
	if l < HeaderLen || l > len(m.b) {
		if l < HeaderLen {
			return HeaderLen
		}
		return len(m.b)
	}
	return l
}

func (m *Message) fixLength() {
	putUint32(m.b[0:4], uint32(len(m.b)))
}
