package netlink

import (
	"fmt"
	"log/slog"

	"github.com/mdlayher/netlink"
)

// SockDiagReply is a single socket as reported by a sock_diag dump.
type SockDiagReply struct {
	Msg   InetDiagMsg
	Attrs []Attr
}

// ParseSockDiagReply decodes the inet_diag_msg header of m and the attributes
// following it according to InetDiagPolicy.
func ParseSockDiagReply(m *Message) (SockDiagReply, error) {
	var r SockDiagReply

	data := m.Netlink().Data
	if err := r.Msg.UnmarshalBinary(data); err != nil {
		return r, fmt.Errorf("error parsing inet_diag_msg: %w", err)
	}

	attrs, err := Parse(data[Align(SizeOfInetDiagMsg):], InetDiagPolicy)
	if err != nil {
		return r, fmt.Errorf("error parsing sock_diag attributes: %w", err)
	}
	r.Attrs = attrs

	return r, nil
}

// MemInfo returns the INET_DIAG_MEMINFO attribute, if the reply carries it.
func (r SockDiagReply) MemInfo() (*MemInfo, error) {
	for _, a := range r.Attrs {
		if a.Type != INET_DIAG_MEMINFO {
			continue
		}
		b, ok := a.Value.(Bytes)
		if !ok {
			return nil, fmt.Errorf("%w: INET_DIAG_MEMINFO holds %s", ErrUnknownValue, a.Value.Kind())
		}
		mi := &MemInfo{}
		if err := mi.UnmarshalBinary(b); err != nil {
			return nil, err
		}
		return mi, nil
	}
	return nil, nil
}

// DumpSockets asks the kernel for every socket matching req over s, which
// must be connected to SockDiag.
func DumpSockets(s *Socket, req SockDiagReq) ([]SockDiagReply, error) {
	m, err := NewSockDiagRequest(req)
	if err != nil {
		return nil, err
	}

	slog.Debug("crafted request", "family", req.Family, "protocol", req.Protocol, "ext", req.Ext, "states", req.States)

	msgs, err := s.Execute(m, SOCK_DIAG_BY_FAMILY, netlink.Request|netlink.Dump)
	if err != nil {
		return nil, fmt.Errorf("error executing the request: %w", err)
	}

	replies := make([]SockDiagReply, 0, len(msgs))
	for i, msg := range msgs {
		if msg.Header().Type != SOCK_DIAG_BY_FAMILY {
			slog.Debug("skipping unexpected message", "i", i, "type", msg.Header().Type)
			continue
		}

		r, err := ParseSockDiagReply(msg)
		if err != nil {
			return nil, err
		}
		replies = append(replies, r)
	}

	slog.Debug("parsed sock_diag replies", "nParsed", len(replies))

	return replies, nil
}
