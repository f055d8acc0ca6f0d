package netlink

import (
	"fmt"
	"strings"
)

// Protocol identifies the kernel subsystem a netlink socket talks to. Values
// are the ones in include/uapi/linux/netlink.h and must never be derived from
// their position in the list: the numbering has holes.
type Protocol int

// All of these constants mirror NETLINK_* from the kernel headers.
const (
	Route         Protocol = 0
	Unused        Protocol = 1
	UserSock      Protocol = 2
	Firewall      Protocol = 3
	SockDiag      Protocol = 4
	NFLog         Protocol = 5
	XFRM          Protocol = 6
	SELinux       Protocol = 7
	ISCSI         Protocol = 8
	Audit         Protocol = 9
	FIBLookup     Protocol = 10
	Connector     Protocol = 11
	Netfilter     Protocol = 12
	IP6FW         Protocol = 13
	DNRTMsg       Protocol = 14
	KobjectUevent Protocol = 15
	Generic       Protocol = 16
	DMEvents      Protocol = 17
	SCSITransport Protocol = 18
	ECryptfs      Protocol = 19
	RDMA          Protocol = 20
	Crypto        Protocol = 21

	// CatchAll is the last usable family below MAX_LINKS. It's not claimed by
	// any subsystem, which makes it handy for tests and userspace-only buses.
	CatchAll Protocol = 30
)

var (
	protocolName = map[Protocol]string{
		Route:         "route",
		Unused:        "unused",
		UserSock:      "usersock",
		Firewall:      "firewall",
		SockDiag:      "sock_diag",
		NFLog:         "nflog",
		XFRM:          "xfrm",
		SELinux:       "selinux",
		ISCSI:         "iscsi",
		Audit:         "audit",
		FIBLookup:     "fib_lookup",
		Connector:     "connector",
		Netfilter:     "netfilter",
		IP6FW:         "ip6_fw",
		DNRTMsg:       "dnrtmsg",
		KobjectUevent: "kobject_uevent",
		Generic:       "generic",
		DMEvents:      "dm_events",
		SCSITransport: "scsitransport",
		ECryptfs:      "ecryptfs",
		RDMA:          "rdma",
		Crypto:        "crypto",
		CatchAll:      "catch_all",
	}

	protocolMap = func() map[string]Protocol {
		m := make(map[string]Protocol, len(protocolName))
		for p, name := range protocolName {
			m[name] = p
		}
		// inet_diag is the historical name of sock_diag
		m["inet_diag"] = SockDiag
		return m
	}()
)

func (p Protocol) String() string {
	name, ok := protocolName[p]
	if !ok {
		return fmt.Sprintf("UNKNOWN_PROTOCOL_%d", int(p))
	}
	return name
}

// Valid reports whether p falls within the range the kernel accepts (MAX_LINKS).
func (p Protocol) Valid() bool {
	return p >= 0 && p < maxLinks
}

// ParseProtocol maps a family name such as "route" or "NETLINK_AUDIT" onto
// its Protocol.
func ParseProtocol(name string) (Protocol, bool) {
	name = strings.TrimPrefix(strings.ToLower(name), "netlink_")
	p, ok := protocolMap[name]
	return p, ok
}

// Protocols returns every known family in ascending numeric order.
func Protocols() []Protocol {
	ps := make([]Protocol, 0, len(protocolName))
	for p := Route; p <= CatchAll; p++ {
		if _, ok := protocolName[p]; ok {
			ps = append(ps, p)
		}
	}
	return ps
}

// Framing constants as defined in include/uapi/linux/netlink.h.
const (
	// HeaderLen is NLMSG_HDRLEN: the size of struct nlmsghdr.
	HeaderLen = 16

	// AttrHeaderLen is NLA_HDRLEN: the size of struct nlattr.
	AttrHeaderLen = 4

	// AlignTo is both NLMSG_ALIGNTO and NLA_ALIGNTO.
	AlignTo = 4

	nlaFNested       uint16 = 1 << 15
	nlaFNetByteorder uint16 = 1 << 14
	nlaTypeMask             = ^(nlaFNested | nlaFNetByteorder)

	maxAttrLen = 1<<16 - 1
	maxLinks   = 32

	// DefaultBufferSize is the receive and transmit buffer size libnl hands
	// the kernel when nothing else is asked for.
	DefaultBufferSize = 32768
)

// Align rounds n up to the next multiple of AlignTo (NLA_ALIGN).
func Align(n int) int {
	return (n + AlignTo - 1) &^ (AlignTo - 1)
}
