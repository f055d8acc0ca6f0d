package metrics

import (
	"fmt"
	"reflect"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/scitags/nlmsg/netlink"
)

// Metric labels (note these are **always** strings):
//
//	protocol: netlink family name as in netlink.Protocol.String()
//	op: failed system call (socket, bind, send...)
var (
	baseLabels = []string{"protocol"}
	opLabels   = []string{"protocol", "op"}
)

type metrics struct {
	MessagesSent  *prometheus.CounterVec
	BytesSent     *prometheus.CounterVec
	MessagesRecvd *prometheus.CounterVec
	BytesRecvd    *prometheus.CounterVec

	OpsFailed *prometheus.CounterVec

	PortsInUse prometheus.GaugeFunc
}

func newMetrics() *metrics {
	return &metrics{
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nlmsg_messages_sent_total",
			Help: "Netlink messages sent",
		}, baseLabels),
		BytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nlmsg_bytes_sent_total",
			Help: "Netlink bytes sent, headers included [B]",
		}, baseLabels),
		MessagesRecvd: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nlmsg_messages_received_total",
			Help: "Netlink messages received, NLMSG_DONE excluded",
		}, baseLabels),
		BytesRecvd: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nlmsg_bytes_received_total",
			Help: "Netlink bytes received, headers included [B]",
		}, baseLabels),

		OpsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nlmsg_op_failures_total",
			Help: "Socket operations rejected by the kernel",
		}, opLabels),

		PortsInUse: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "nlmsg_local_ports_in_use",
			Help: "Local port ids currently reserved from the process-wide pool",
		}, func() float64 { return float64(netlink.PortsInUse()) }),
	}
}

// (Nastily) use reflection to avoid having to manually register everything.
func (m *metrics) register(reg prometheus.Registerer) error {
	v := reflect.ValueOf(*m)

	i := 0
	for i = 0; i < v.NumField(); i++ {
		vv, ok := v.Field(i).Interface().(prometheus.Collector)
		if !ok {
			return fmt.Errorf("error casting the interface for index %d", i)
		}
		if err := reg.Register(vv); err != nil {
			return fmt.Errorf("error registering index %d: %w", i, err)
		}
	}
	logger.Debug("registered collectors", "i", i)

	return nil
}
