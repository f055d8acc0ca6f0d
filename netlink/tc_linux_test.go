//go:build linux

package netlink

import (
	"fmt"
	"testing"

	"github.com/florianl/go-tc"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/mdlayher/netlink"
)

const (
	rtmNewQdisc netlink.HeaderType = 36
	rtmGetQdisc netlink.HeaderType = 38

	sizeofTcMsg = 20
	tcaKind     = 1
)

// Dumping qdiscs by hand must agree with florianl/go-tc, which relies on
// mdlayher/netlink's attribute decoder.
func TestQdiscDumpInterop(t *testing.T) {
	s := connect(t, Route)

	m := NewMessage()
	if err := m.Append(make([]byte, sizeofTcMsg)); err != nil {
		t.Fatalf("error appending tcmsg: %v", err)
	}

	replies, err := s.Execute(m, rtmGetQdisc, netlink.Request|netlink.Dump)
	if err != nil {
		t.Fatalf("error dumping qdiscs: %v", err)
	}

	var ours []string
	for _, r := range replies {
		if r.Header().Type != rtmNewQdisc {
			continue
		}
		data := r.Netlink().Data
		if len(data) < sizeofTcMsg {
			t.Fatalf("short tcmsg: % x", data)
		}
		ifindex := int32(getUint32(data[4:]))

		for a := range r.All(sizeofTcMsg) {
			if a.Type() != tcaKind {
				continue
			}
			kind, err := a.Text()
			if err != nil {
				t.Fatalf("error reading TCA_KIND: %v", err)
			}
			ours = append(ours, fmt.Sprintf("%d/%s", ifindex, kind))
		}
	}
	if len(ours) == 0 {
		t.Fatalf("no qdisc found, not even on lo")
	}

	rtnl, err := tc.Open(&tc.Config{})
	if err != nil {
		t.Skipf("error opening go-tc connection: %v", err)
	}
	defer rtnl.Close()

	qdiscs, err := rtnl.Qdisc().Get()
	if err != nil {
		t.Fatalf("error dumping qdiscs with go-tc: %v", err)
	}

	var theirs []string
	for _, q := range qdiscs {
		theirs = append(theirs, fmt.Sprintf("%d/%s", int32(q.Msg.Ifindex), q.Attribute.Kind))
	}

	if diff := cmp.Diff(theirs, ours, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Errorf("qdisc dumps disagree (-go-tc +ours):\n%s", diff)
	}
}
