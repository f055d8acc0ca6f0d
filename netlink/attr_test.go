package netlink

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/mdlayher/netlink"
)

func TestRoundTrip(t *testing.T) {
	tests := map[string]struct {
		v    Value
		kind Kind
		want Value
	}{
		"bytes":       {v: Bytes{0xde, 0xad, 0xbe, 0xef, 0x01}, kind: KindBytes},
		"empty bytes": {v: Bytes{}, kind: KindBytes},
		"u8":          {v: U8(0xfe), kind: KindU8},
		"u16":         {v: U16(0xbeef), kind: KindU16},
		"u32":         {v: U32(0xdeadbeef), kind: KindU32},
		"u64":         {v: U64(0xdeadbeefcafebabe), kind: KindU64},
		"string":      {v: String("eth0"), kind: KindString},
		"empty str":   {v: String(""), kind: KindString},
		"flag":        {v: Flag(true), kind: KindFlag},
		"msecs":       {v: Msecs(1500 * time.Millisecond), kind: KindMsecs},
		"msecs trunc": {v: Msecs(1500*time.Millisecond + 999*time.Microsecond), kind: KindMsecs, want: Msecs(1500 * time.Millisecond)},
		"nested": {
			v:    Nested{{Type: 1, Value: U32(7)}, {Type: 2, Value: String("lo")}},
			kind: KindNested,
			want: Nested{{Type: 1, Value: Bytes(appendUint32(nil, 7))}, {Type: 2, Value: Bytes("lo\x00")}},
		},
		"empty nested": {v: Nested{}, kind: KindNested},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			b, err := Encode(42, tc.v)
			if err != nil {
				t.Fatalf("error encoding: %v", err)
			}

			if len(b)%AlignTo != 0 {
				t.Errorf("encoding is %d bytes long, not a multiple of %d", len(b), AlignTo)
			}

			a, next, err := Decode(b, 0, tc.kind)
			if err != nil {
				t.Fatalf("error decoding: %v", err)
			}

			if next != len(b) {
				t.Errorf("next attribute at %d, want %d", next, len(b))
			}

			want := tc.want
			if want == nil {
				want = tc.v
			}

			if diff := cmp.Diff(Attr{Type: 42, Value: want}, a, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeLayout(t *testing.T) {
	b, err := Encode(3, U8(5))
	if err != nil {
		t.Fatalf("error encoding: %v", err)
	}

	want := make([]byte, 0, 8)
	want = appendUint16(want, 5)
	want = appendUint16(want, 3)
	want = append(want, 5, 0, 0, 0)

	if !bytes.Equal(b, want) {
		t.Errorf("got % x, want % x", b, want)
	}

	b, err = Encode(7, Nested{{Type: 1, Value: Flag(true)}})
	if err != nil {
		t.Fatalf("error encoding nested: %v", err)
	}
	if got := getUint16(b[2:]); got != 7|nlaFNested {
		t.Errorf("nested type is %#x, want NLA_F_NESTED set", got)
	}
}

func TestEncodeErrors(t *testing.T) {
	tests := map[string]struct {
		typ  uint16
		v    Value
		want error
	}{
		"false flag":     {typ: 1, v: Flag(false), want: ErrFalseFlag},
		"type too big":   {typ: 0x4001, v: U8(1), want: ErrInvalidType},
		"nested flag":    {typ: nlaFNested | 1, v: U8(1), want: ErrInvalidType},
		"embedded nul":   {typ: 1, v: String("a\x00b"), want: ErrEmbeddedNUL},
		"too large":      {typ: 1, v: Bytes(make([]byte, maxAttrLen)), want: ErrPayloadTooLarge},
		"nil value":      {typ: 1, v: nil, want: ErrUnknownValue},
		"nested false":   {typ: 1, v: Nested{{Type: 2, Value: Flag(false)}}, want: ErrFalseFlag},
		"nested too big": {typ: 1, v: Nested{{Type: 2, Value: Bytes(make([]byte, 40000))}, {Type: 3, Value: Bytes(make([]byte, 40000))}}, want: ErrPayloadTooLarge},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			prefix := []byte{1, 2, 3, 4}
			b, err := AppendAttr(prefix, tc.typ, tc.v)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got error %v, want %v", err, tc.want)
			}
			if !bytes.Equal(b, prefix) {
				t.Errorf("buffer modified on error: % x", b)
			}
		})
	}
}

func TestLargestAttribute(t *testing.T) {
	b, err := Encode(1, Bytes(make([]byte, maxAttrLen-AttrHeaderLen)))
	if err != nil {
		t.Fatalf("error encoding the largest payload: %v", err)
	}
	if got := getUint16(b); got != maxAttrLen {
		t.Errorf("nla_len is %d, want %d", got, maxAttrLen)
	}
}

func TestDecodeHeader(t *testing.T) {
	b, err := Encode(0x1234, String("hello"))
	if err != nil {
		t.Fatalf("error encoding: %v", err)
	}

	typ, l, off, err := DecodeHeader(b, 0)
	if err != nil {
		t.Fatalf("error decoding the header: %v", err)
	}
	if typ != 0x1234 || l != 6 || off != AttrHeaderLen {
		t.Errorf("got (%#x, %d, %d), want (0x1234, 6, 4)", typ, l, off)
	}

	if _, _, _, err := DecodeHeader(b[:3], 0); !errors.Is(err, ErrTruncatedHeader) {
		t.Errorf("got %v decoding 3 bytes, want ErrTruncatedHeader", err)
	}
	if _, _, _, err := DecodeHeader(b, len(b)-2); !errors.Is(err, ErrTruncatedHeader) {
		t.Errorf("got %v decoding past the end, want ErrTruncatedHeader", err)
	}
	if _, _, _, err := DecodeHeader(b, -1); !errors.Is(err, ErrTruncatedHeader) {
		t.Errorf("got %v decoding a negative offset, want ErrTruncatedHeader", err)
	}

	bogus := appendUint16(nil, 2)
	bogus = appendUint16(bogus, 1)
	if _, _, _, err := DecodeHeader(bogus, 0); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("got %v for nla_len 2, want ErrInvalidLength", err)
	}

	// The type tag may carry NLA_F_NET_BYTEORDER.
	flagged := appendUint16(nil, 8)
	flagged = appendUint16(flagged, 9|nlaFNetByteorder)
	flagged = append(flagged, 0, 0, 0, 1)
	if typ, _, _, _ := DecodeHeader(flagged, 0); typ != 9 {
		t.Errorf("type not masked: got %#x", typ)
	}
}

func TestDecodeValueErrors(t *testing.T) {
	tests := map[string]struct {
		payload []byte
		l       int
		kind    Kind
		want    error
	}{
		"short payload":     {payload: []byte{1, 2}, l: 4, kind: KindU32, want: ErrPayloadTooShort},
		"negative length":   {payload: []byte{1, 2}, l: -1, kind: KindBytes, want: ErrPayloadTooShort},
		"u32 from u8":       {payload: []byte{1}, l: 1, kind: KindU32, want: ErrWidthMismatch},
		"u8 from u32":       {payload: []byte{1, 0, 0, 0}, l: 4, kind: KindU8, want: ErrWidthMismatch},
		"u16 from 3 bytes":  {payload: []byte{1, 0, 0}, l: 3, kind: KindU16, want: ErrWidthMismatch},
		"u64 from u32":      {payload: []byte{1, 0, 0, 0}, l: 4, kind: KindU64, want: ErrWidthMismatch},
		"msecs from u32":    {payload: []byte{1, 0, 0, 0}, l: 4, kind: KindMsecs, want: ErrWidthMismatch},
		"flag with payload": {payload: []byte{1}, l: 1, kind: KindFlag, want: ErrWidthMismatch},
		"unterminated":      {payload: []byte("abc"), l: 3, kind: KindString, want: ErrUnterminatedString},
		"empty string":      {payload: []byte{}, l: 0, kind: KindString, want: ErrUnterminatedString},
		"unknown kind":      {payload: []byte{}, l: 0, kind: Kind(200), want: ErrUnknownKind},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			v, err := DecodeValue(tc.payload, tc.l, tc.kind)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got (%v, %v), want error %v", v, err, tc.want)
			}
		})
	}
}

func TestDecodeStringStopsAtNUL(t *testing.T) {
	v, err := DecodeValue([]byte("abc\x00def\x00"), 8, KindString)
	if err != nil {
		t.Fatalf("error decoding: %v", err)
	}
	if v != String("abc") {
		t.Errorf("got %q, want \"abc\"", v)
	}
}

func TestDecodeBytesCopies(t *testing.T) {
	payload := []byte{1, 2, 3}
	v, err := DecodeValue(payload, 3, KindBytes)
	if err != nil {
		t.Fatalf("error decoding: %v", err)
	}
	payload[0] = 0xff
	if v.(Bytes)[0] != 1 {
		t.Errorf("decoded value aliases its input")
	}
}

func TestKinds(t *testing.T) {
	for k := KindBytes; k <= KindNested; k++ {
		got, ok := ParseKind(strings.ToUpper(k.String()))
		if !ok || got != k {
			t.Errorf("ParseKind(%q) = %v, %t", k.String(), got, ok)
		}
	}

	if _, ok := ParseKind("u128"); ok {
		t.Errorf("u128 parsed as a kind")
	}

	if s := Kind(99).String(); s != "UNKNOWN_KIND_99" {
		t.Errorf("got %q for an unknown kind", s)
	}
}

// Both ends must agree with github.com/mdlayher/netlink, which follows the
// kernel's notion of nla_len.
func TestInteropWithAttributeEncoder(t *testing.T) {
	ae := netlink.NewAttributeEncoder()
	ae.Uint8(1, 8)
	ae.Uint16(2, 0xbeef)
	ae.Uint32(3, 0xdeadbeef)
	ae.Uint64(4, 1<<40)
	ae.String(5, "wlan0")
	ae.Flag(6, true)
	ae.Bytes(7, []byte{1, 2, 3})
	ae.Nested(8, func(nae *netlink.AttributeEncoder) error {
		nae.Uint32(1, 10)
		return nil
	})
	theirs, err := ae.Encode()
	if err != nil {
		t.Fatalf("error encoding with mdlayher/netlink: %v", err)
	}

	m := mustMessage(t,
		Attr{Type: 1, Value: U8(8)},
		Attr{Type: 2, Value: U16(0xbeef)},
		Attr{Type: 3, Value: U32(0xdeadbeef)},
		Attr{Type: 4, Value: U64(1 << 40)},
		Attr{Type: 5, Value: String("wlan0")},
		Attr{Type: 6, Value: Flag(true)},
		Attr{Type: 7, Value: Bytes{1, 2, 3}},
		Attr{Type: 8, Value: Nested{{Type: 1, Value: U32(10)}}},
	)
	ours := m.Bytes()[HeaderLen:]

	if diff := cmp.Diff(theirs, ours); diff != "" {
		t.Fatalf("encodings differ (-mdlayher +ours):\n%s", diff)
	}

	ad, err := netlink.NewAttributeDecoder(ours)
	if err != nil {
		t.Fatalf("error creating decoder: %v", err)
	}
	var got []uint16
	for ad.Next() {
		got = append(got, ad.Type())
		switch ad.Type() {
		case 5:
			if s := ad.String(); s != "wlan0" {
				t.Errorf("mdlayher decoded %q", s)
			}
		case 8:
			if ad.TypeFlags()&netlink.Nested == 0 {
				t.Errorf("nested flag not set")
			}
		}
	}
	if err := ad.Err(); err != nil {
		t.Fatalf("mdlayher failed decoding our attributes: %v", err)
	}
	if diff := cmp.Diff([]uint16{1, 2, 3, 4, 5, 6, 7, 8}, got); diff != "" {
		t.Errorf("type mismatch (-want +got):\n%s", diff)
	}
}
