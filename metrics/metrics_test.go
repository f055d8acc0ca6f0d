package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/scitags/nlmsg/netlink"
)

func TestReflection(t *testing.T) {
	x := newMetrics()

	v := reflect.ValueOf(*x)

	for i := 0; i < v.NumField(); i++ {
		vv := v.Field(i).Interface()
		_, ok := vv.(prometheus.Collector)
		if !ok {
			t.Errorf("error casting the interface for %d", i)
		}
	}
}

func TestObserver(t *testing.T) {
	e, err := New(&Config{})
	if err != nil {
		t.Fatalf("error creating the exporter: %v", err)
	}

	e.MessageSent(netlink.Route, 20)
	e.MessageSent(netlink.Route, 36)
	e.MessagesReceived(netlink.SockDiag, 3, 300)
	e.OpFailed(netlink.Generic, "bind")

	tests := map[string]struct {
		c    prometheus.Collector
		want float64
	}{
		"sent":           {e.m.MessagesSent.WithLabelValues("route"), 2},
		"bytes sent":     {e.m.BytesSent.WithLabelValues("route"), 56},
		"received":       {e.m.MessagesRecvd.WithLabelValues("sock_diag"), 3},
		"bytes received": {e.m.BytesRecvd.WithLabelValues("sock_diag"), 300},
		"failures":       {e.m.OpsFailed.WithLabelValues("generic", "bind"), 1},
	}
	for name, tc := range tests {
		if got := testutil.ToFloat64(tc.c); got != tc.want {
			t.Errorf("%s: got %v, want %v", name, got, tc.want)
		}
	}

	if got := testutil.ToFloat64(e.m.PortsInUse); got != float64(netlink.PortsInUse()) {
		t.Errorf("ports in use gauge says %v", got)
	}
}

func TestHandlers(t *testing.T) {
	e, err := New(&Config{})
	if err != nil {
		t.Fatalf("error creating the exporter: %v", err)
	}
	e.MessageSent(netlink.Route, 16)

	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, `nlmsg_messages_sent_total{protocol="route"} 1`) {
		t.Errorf("counter missing from the exposition:\n%s", body)
	}

	rec = httptest.NewRecorder()
	e.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sockets", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	var views []socketView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("error decoding the socket listing: %v", err)
	}
	if len(views) != 0 {
		t.Errorf("got %d sockets, tracked none", len(views))
	}
}
