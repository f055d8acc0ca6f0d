package netlink

import (
	"fmt"
	"net/netip"

	"github.com/mdlayher/netlink"
)

// SOCK_DIAG_BY_FAMILY is the message type of sock_diag requests and replies.
const SOCK_DIAG_BY_FAMILY netlink.HeaderType = 20

// State is the enumeration of TCP states.
// https://datatracker.ietf.org/doc/draft-ietf-tcpm-rfc793bis/
// and uapi/linux/tcp.h
type State uint8

// All of these constants' names make the linter complain, but we inherited
// these names from external C code, so we will keep them.
const (
	TCP_INVALID     State = 0
	TCP_ESTABLISHED State = 1
	TCP_SYN_SENT    State = 2
	TCP_SYN_RECV    State = 3
	TCP_FIN_WAIT1   State = 4
	TCP_FIN_WAIT2   State = 5
	TCP_TIME_WAIT   State = 6
	TCP_CLOSE       State = 7
	TCP_CLOSE_WAIT  State = 8
	TCP_LAST_ACK    State = 9
	TCP_LISTEN      State = 10
	TCP_CLOSING     State = 11

	// TCP_ALL_FLAGS includes flag bits for all TCP connection states. It corresponds to TCPF_ALL in some linux code.
	TCP_ALL_FLAGS = 0xFFF
)

var stateName = map[State]string{
	0:  "INVALID",
	1:  "ESTABLISHED",
	2:  "SYN_SENT",
	3:  "SYN_RECV",
	4:  "FIN_WAIT1",
	5:  "FIN_WAIT2",
	6:  "TIME_WAIT",
	7:  "CLOSE",
	8:  "CLOSE_WAIT",
	9:  "LAST_ACK",
	10: "LISTEN",
	11: "CLOSING",
}

func (x State) String() string {
	s, ok := stateName[x]
	if !ok {
		return fmt.Sprintf("UNKNOWN_STATE_%d", x)
	}
	return s
}

// Attribute types found in sock_diag replies, as in uapi/linux/inet_diag.h.
const (
	INET_DIAG_NONE uint16 = iota
	INET_DIAG_MEMINFO
	INET_DIAG_INFO
	INET_DIAG_VEGASINFO
	INET_DIAG_CONG
	INET_DIAG_TOS
	INET_DIAG_TCLASS
	INET_DIAG_SKMEMINFO
	INET_DIAG_SHUTDOWN
	INET_DIAG_DCTCPINFO
	INET_DIAG_PROTOCOL
	INET_DIAG_SKV6ONLY
	INET_DIAG_LOCALS
	INET_DIAG_PEERS
	INET_DIAG_PAD
	INET_DIAG_MARK
	INET_DIAG_BBRINFO
	INET_DIAG_CLASS_ID
	INET_DIAG_MD5SIG
	INET_DIAG_ULP_INFO
	INET_DIAG_SK_BPF_STORAGES
	INET_DIAG_CGROUP_ID
	INET_DIAG_SOCKOPT
)

var inetDiagName = map[uint16]string{
	INET_DIAG_NONE:            "INET_DIAG_NONE",
	INET_DIAG_MEMINFO:         "INET_DIAG_MEMINFO",
	INET_DIAG_INFO:            "INET_DIAG_INFO",
	INET_DIAG_VEGASINFO:       "INET_DIAG_VEGASINFO",
	INET_DIAG_CONG:            "INET_DIAG_CONG",
	INET_DIAG_TOS:             "INET_DIAG_TOS",
	INET_DIAG_TCLASS:          "INET_DIAG_TCLASS",
	INET_DIAG_SKMEMINFO:       "INET_DIAG_SKMEMINFO",
	INET_DIAG_SHUTDOWN:        "INET_DIAG_SHUTDOWN",
	INET_DIAG_DCTCPINFO:       "INET_DIAG_DCTCPINFO",
	INET_DIAG_PROTOCOL:        "INET_DIAG_PROTOCOL",
	INET_DIAG_SKV6ONLY:        "INET_DIAG_SKV6ONLY",
	INET_DIAG_LOCALS:          "INET_DIAG_LOCALS",
	INET_DIAG_PEERS:           "INET_DIAG_PEERS",
	INET_DIAG_PAD:             "INET_DIAG_PAD",
	INET_DIAG_MARK:            "INET_DIAG_MARK",
	INET_DIAG_BBRINFO:         "INET_DIAG_BBRINFO",
	INET_DIAG_CLASS_ID:        "INET_DIAG_CLASS_ID",
	INET_DIAG_MD5SIG:          "INET_DIAG_MD5SIG",
	INET_DIAG_ULP_INFO:        "INET_DIAG_ULP_INFO",
	INET_DIAG_SK_BPF_STORAGES: "INET_DIAG_SK_BPF_STORAGES",
	INET_DIAG_CGROUP_ID:       "INET_DIAG_CGROUP_ID",
	INET_DIAG_SOCKOPT:         "INET_DIAG_SOCKOPT",
}

// InetDiagName returns the name of a sock_diag reply attribute type.
func InetDiagName(typ uint16) string {
	n, ok := inetDiagName[typ]
	if !ok {
		return fmt.Sprintf("INET_DIAG_%d", typ)
	}
	return n
}

// InetDiagPolicy decodes the attributes of a sock_diag reply. Anything
// carrying a C struct (tcp_info, tcp_bbr_info...) is left as Bytes.
var InetDiagPolicy = Policy{
	INET_DIAG_MEMINFO:   {Kind: KindBytes},
	INET_DIAG_CONG:      {Kind: KindString},
	INET_DIAG_TOS:       {Kind: KindU8},
	INET_DIAG_TCLASS:    {Kind: KindU8},
	INET_DIAG_SHUTDOWN:  {Kind: KindU8},
	INET_DIAG_PROTOCOL:  {Kind: KindU8},
	INET_DIAG_SKV6ONLY:  {Kind: KindU8},
	INET_DIAG_MARK:      {Kind: KindU32},
	INET_DIAG_CLASS_ID:  {Kind: KindU32},
	INET_DIAG_CGROUP_ID: {Kind: KindU64},
}

// ExtFlag returns the bit requesting the given attribute in SockDiagReq.Ext.
// Note the 1-offset induced by INET_DIAG_NONE being 0.
func ExtFlag(typ uint16) uint8 {
	if typ == INET_DIAG_NONE || typ > 8 {
		return 0
	}
	return 1 << (typ - 1)
}

const (
	sizeofSockID      = 0x30
	SizeOfSockDiagReq = sizeofSockID + 0x8  // struct inet_diag_req_v2
	SizeOfInetDiagMsg = sizeofSockID + 0x18 // struct inet_diag_msg
	sizeofMemInfo     = 16

	afInet     = 2
	afInet6    = 10
	ipprotoTCP = 6
)

// SockDiagReq is the Netlink request struct, as in linux/inet_diag.h. Note
// that netlink messages use host byte ordering but ports and addresses within
// the socket ID travel in network order. Check sock_diag(7) for more
// information.
type SockDiagReq struct {
	Family   uint8
	Protocol uint8
	Ext      uint8
	States   uint32
	ID       InetDiagSockID
}

// InetDiagSockID is the Go counterpart of 'struct inet_diag_sockid'. Ports
// are kept in host order here and swapped on the wire.
type InetDiagSockID struct {
	SPort  uint16
	DPort  uint16
	Src    netip.Addr
	Dst    netip.Addr
	If     uint32
	Cookie [2]uint32
}

// MarshalBinary returns the 56 bytes of a struct inet_diag_req_v2, ready to
// be appended to a Message as its family header.
func (req SockDiagReq) MarshalBinary() ([]byte, error) {
	b := make([]byte, SizeOfSockDiagReq)
	b[0] = req.Family
	b[1] = req.Protocol
	b[2] = req.Ext
	putUint32(b[4:], req.States)
	req.ID.put(b[8:])
	return b, nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (req *SockDiagReq) UnmarshalBinary(b []byte) error {
	if len(b) < SizeOfSockDiagReq {
		return fmt.Errorf("%w: sock_diag request is %d bytes, want %d", ErrPayloadTooShort, len(b), SizeOfSockDiagReq)
	}

	rb := readBuffer{Bytes: b}
	req.Family = rb.Read()
	req.Protocol = rb.Read()
	req.Ext = rb.Read()
	rb.Read()
	req.States = getUint32(rb.Next(4))
	req.ID.read(&rb, req.Family)
	return nil
}

func (id InetDiagSockID) put(b []byte) {
	b[0], b[1] = byte(id.SPort>>8), byte(id.SPort)
	b[2], b[3] = byte(id.DPort>>8), byte(id.DPort)
	if id.Src.IsValid() {
		copy(b[4:20], id.Src.AsSlice())
	}
	if id.Dst.IsValid() {
		copy(b[20:36], id.Dst.AsSlice())
	}
	putUint32(b[36:], id.If)
	putUint32(b[40:], id.Cookie[0])
	putUint32(b[44:], id.Cookie[1])
}

func (id *InetDiagSockID) read(rb *readBuffer, family uint8) {
	p := rb.Next(4)
	id.SPort = uint16(p[0])<<8 | uint16(p[1])
	id.DPort = uint16(p[2])<<8 | uint16(p[3])
	if family == afInet6 {
		id.Src = netip.AddrFrom16([16]byte(rb.Next(16)))
		id.Dst = netip.AddrFrom16([16]byte(rb.Next(16)))
	} else {
		id.Src = netip.AddrFrom4([4]byte(rb.Next(4)))
		rb.Next(12)
		id.Dst = netip.AddrFrom4([4]byte(rb.Next(4)))
		rb.Next(12)
	}
	id.If = getUint32(rb.Next(4))
	id.Cookie[0] = getUint32(rb.Next(4))
	id.Cookie[1] = getUint32(rb.Next(4))
}

// InetDiagMsg is the family header of every sock_diag reply, as in
// 'struct inet_diag_msg'. The reply's attributes start right after it.
type InetDiagMsg struct {
	Family  uint8
	State   State
	Timer   uint8
	Retrans uint8
	ID      InetDiagSockID
	Expires uint32
	RQueue  uint32
	WQueue  uint32
	UID     uint32
	INode   uint32
}

func (s *InetDiagMsg) UnmarshalBinary(b []byte) error {
	if len(b) < SizeOfInetDiagMsg {
		return fmt.Errorf("%w: socket data short read (%d); want %d", ErrPayloadTooShort, len(b), SizeOfInetDiagMsg)
	}

	rb := readBuffer{Bytes: b}
	s.Family = rb.Read()
	s.State = State(rb.Read())
	s.Timer = rb.Read()
	s.Retrans = rb.Read()
	s.ID.read(&rb, s.Family)
	s.Expires = getUint32(rb.Next(4))
	s.RQueue = getUint32(rb.Next(4))
	s.WQueue = getUint32(rb.Next(4))
	s.UID = getUint32(rb.Next(4))
	s.INode = getUint32(rb.Next(4))

	return nil
}

// MemInfo implements the struct associated with INET_DIAG_MEMINFO, corresponding with
// linux struct inet_diag_meminfo in uapi/linux/inet_diag.h.
type MemInfo struct {
	RMem uint32 `yaml:"rMem"`
	WMem uint32 `yaml:"wMem"`
	FMem uint32 `yaml:"fMem"`
	TMem uint32 `yaml:"tMem"`
}

func (m *MemInfo) UnmarshalBinary(b []byte) error {
	if len(b) != sizeofMemInfo {
		return fmt.Errorf("%w: meminfo is %d bytes", ErrWidthMismatch, len(b))
	}

	rb := readBuffer{Bytes: b}
	m.RMem = getUint32(rb.Next(4))
	m.WMem = getUint32(rb.Next(4))
	m.FMem = getUint32(rb.Next(4))
	m.TMem = getUint32(rb.Next(4))

	return nil
}

// NewSockDiagRequest builds a SOCK_DIAG_BY_FAMILY dump request. Port numbers
// set to 0 will not be applied as a filter.
func NewSockDiagRequest(req SockDiagReq) (*Message, error) {
	m := NewMessageWith(SOCK_DIAG_BY_FAMILY, netlink.Request|netlink.Dump)

	b, err := req.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := m.Append(b); err != nil {
		return nil, err
	}

	return m, nil
}

// readBuffer is a forward-only cursor. Callers check the total length up
// front so Next never runs past the end.
type readBuffer struct {
	Bytes []byte
	pos   int
}

func (b *readBuffer) Read() byte {
	c := b.Bytes[b.pos]
	b.pos++
	return c
}

func (b *readBuffer) Next(n int) []byte {
	s := b.Bytes[b.pos : b.pos+n]
	b.pos += n
	return s
}
