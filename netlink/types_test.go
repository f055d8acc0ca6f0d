package netlink

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mdlayher/netlink"
)

func TestSockDiagReqLayout(t *testing.T) {
	req := SockDiagReq{
		Family:   afInet,
		Protocol: ipprotoTCP,
		Ext:      ExtFlag(INET_DIAG_INFO) | ExtFlag(INET_DIAG_CONG),
		States:   1 << TCP_ESTABLISHED,
		ID: InetDiagSockID{
			SPort: 0x1234,
			DPort: 443,
			Src:   netip.MustParseAddr("10.0.0.1"),
			If:    3,
		},
	}

	b, err := req.MarshalBinary()
	if err != nil {
		t.Fatalf("error marshalling: %v", err)
	}
	if len(b) != SizeOfSockDiagReq {
		t.Fatalf("request is %d bytes, want %d", len(b), SizeOfSockDiagReq)
	}

	if b[0] != afInet || b[1] != ipprotoTCP || b[2] != 0b1010 || b[3] != 0 {
		t.Errorf("bad leading bytes: % x", b[:4])
	}
	if s := getUint32(b[4:]); s != 2 {
		t.Errorf("states is %#x", s)
	}
	// Ports travel in network byte order.
	if diff := cmp.Diff([]byte{0x12, 0x34, 0x01, 0xbb}, b[8:12]); diff != "" {
		t.Errorf("ports mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]byte{10, 0, 0, 1}, b[12:16]); diff != "" {
		t.Errorf("source mismatch (-want +got):\n%s", diff)
	}
	if i := getUint32(b[44:]); i != 3 {
		t.Errorf("interface is %d", i)
	}

	if err := new(SockDiagReq).UnmarshalBinary(b[:10]); !errors.Is(err, ErrPayloadTooShort) {
		t.Errorf("got %v, want ErrPayloadTooShort", err)
	}
}

func TestInetDiagMsg(t *testing.T) {
	b := make([]byte, SizeOfInetDiagMsg)
	b[0] = afInet
	b[1] = byte(TCP_ESTABLISHED)
	b[4], b[5] = 0x00, 0x16
	b[6], b[7] = 0xc3, 0x50
	copy(b[8:], []byte{127, 0, 0, 1})
	copy(b[24:], []byte{127, 0, 0, 2})
	putUint32(b[40:], 1)
	putUint32(b[64:], 1000)
	putUint32(b[68:], 4242)

	var m InetDiagMsg
	if err := m.UnmarshalBinary(b); err != nil {
		t.Fatalf("error unmarshalling: %v", err)
	}

	want := InetDiagMsg{
		Family: afInet,
		State:  TCP_ESTABLISHED,
		ID: InetDiagSockID{
			SPort: 22,
			DPort: 50000,
			Src:   netip.MustParseAddr("127.0.0.1"),
			Dst:   netip.MustParseAddr("127.0.0.2"),
			If:    1,
		},
		UID:   1000,
		INode: 4242,
	}
	if diff := cmp.Diff(want, m, cmp.Comparer(func(a, b netip.Addr) bool { return a == b })); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	if err := m.UnmarshalBinary(b[:SizeOfInetDiagMsg-1]); !errors.Is(err, ErrPayloadTooShort) {
		t.Errorf("got %v, want ErrPayloadTooShort", err)
	}
}

func TestParseSockDiagReply(t *testing.T) {
	hdr := make([]byte, SizeOfInetDiagMsg)
	hdr[0] = afInet6
	hdr[1] = byte(TCP_LISTEN)

	mi := make([]byte, 0, sizeofMemInfo)
	for _, v := range []uint32{1, 2, 3, 4} {
		mi = appendUint32(mi, v)
	}

	m := NewMessageWith(SOCK_DIAG_BY_FAMILY, netlink.Multi)
	if err := m.Append(hdr); err != nil {
		t.Fatalf("error appending: %v", err)
	}
	for _, a := range []Attr{
		{Type: INET_DIAG_MEMINFO, Value: Bytes(mi)},
		{Type: INET_DIAG_CONG, Value: String("cubic")},
		{Type: INET_DIAG_SHUTDOWN, Value: U8(0)},
		{Type: INET_DIAG_INFO, Value: Bytes{1, 2, 3}},
	} {
		if err := m.Put(a.Type, a.Value); err != nil {
			t.Fatalf("error putting %s: %v", InetDiagName(a.Type), err)
		}
	}

	r, err := ParseSockDiagReply(m)
	if err != nil {
		t.Fatalf("error parsing: %v", err)
	}

	if r.Msg.Family != afInet6 || r.Msg.State != TCP_LISTEN {
		t.Errorf("got header %+v", r.Msg)
	}
	if !r.Msg.ID.Src.Is6() || !r.Msg.ID.Src.IsUnspecified() {
		t.Errorf("source is %s, want ::", r.Msg.ID.Src)
	}

	got, err := r.MemInfo()
	if err != nil {
		t.Fatalf("error reading meminfo: %v", err)
	}
	if diff := cmp.Diff(&MemInfo{RMem: 1, WMem: 2, FMem: 3, TMem: 4}, got); diff != "" {
		t.Errorf("meminfo mismatch (-want +got):\n%s", diff)
	}

	wantAttrs := []Attr{
		{Type: INET_DIAG_MEMINFO, Value: Bytes(mi)},
		{Type: INET_DIAG_CONG, Value: String("cubic")},
		{Type: INET_DIAG_SHUTDOWN, Value: U8(0)},
		{Type: INET_DIAG_INFO, Value: Bytes{1, 2, 3}},
	}
	if diff := cmp.Diff(wantAttrs, r.Attrs); diff != "" {
		t.Errorf("attributes mismatch (-want +got):\n%s", diff)
	}

	short, _ := FromBytes(m.Bytes()[:HeaderLen+8])
	if _, err := ParseSockDiagReply(short); !errors.Is(err, ErrPayloadTooShort) {
		t.Errorf("got %v, want ErrPayloadTooShort", err)
	}
}

func TestStateNames(t *testing.T) {
	if s := TCP_TIME_WAIT.String(); s != "TIME_WAIT" {
		t.Errorf("got %q", s)
	}
	if s := State(99).String(); s != "UNKNOWN_STATE_99" {
		t.Errorf("got %q", s)
	}
	if s := InetDiagName(INET_DIAG_CONG); s != "INET_DIAG_CONG" {
		t.Errorf("got %q", s)
	}
	if f := ExtFlag(INET_DIAG_NONE) | ExtFlag(INET_DIAG_DCTCPINFO); f != 0 {
		t.Errorf("got ext flags %#x for attributes that can't be requested", f)
	}
}
