package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/scitags/nlmsg/netlink"
)

const jsonIndent = "    "

var logger = slog.New(slog.DiscardHandler)

// Exporter counts the traffic of the sockets it tracks and serves it over
// HTTP on /metrics, alongside a listing of the sockets on /sockets.
type Exporter struct {
	Config

	m   *metrics
	reg *prometheus.Registry

	server *echo.Echo

	mu      sync.Mutex
	sockets []*netlink.Socket
}

var _ netlink.Observer = &Exporter{}

func (e *Exporter) String() string {
	return "prometheus"
}

func New(c *Config) (*Exporter, error) {
	if c == nil {
		c = &DefaultConfig
	}

	if c.Log {
		logger = slog.Default().With("t", "metrics")
	} else {
		logger = slog.New(slog.DiscardHandler)
	}

	logger.Debug("initialising the metrics exporter")

	e := Exporter{Config: *c, m: newMetrics()}

	// Create a non-global registry.
	e.reg = prometheus.NewRegistry()
	if err := e.m.register(e.reg); err != nil {
		return nil, fmt.Errorf("error registering the metrics: %w", err)
	}

	e.server = echo.New()
	e.server.GET("/", e.handleRoot)
	e.server.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(e.reg, promhttp.HandlerOpts{Registry: e.reg})))
	e.server.GET("/sockets", e.handleSockets)

	// Prevent the banner from showing up in the log
	e.server.HideBanner = true
	e.server.HidePort = true

	return &e, nil
}

// Track installs the Exporter as the observer of s.
func (e *Exporter) Track(s *netlink.Socket) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s.SetObserver(e)
	e.sockets = append(e.sockets, s)
}

// Untrack undoes Track. The counters s contributed to are kept.
func (e *Exporter) Untrack(s *netlink.Socket) {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := slices.Index(e.sockets, s)
	if i < 0 {
		return
	}
	s.SetObserver(nil)
	e.sockets = slices.Delete(e.sockets, i, i+1)
}

func (e *Exporter) MessageSent(p netlink.Protocol, bytes int) {
	labels := prometheus.Labels{"protocol": p.String()}
	e.m.MessagesSent.With(labels).Inc()
	e.m.BytesSent.With(labels).Add(float64(bytes))
}

func (e *Exporter) MessagesReceived(p netlink.Protocol, n int, bytes int) {
	labels := prometheus.Labels{"protocol": p.String()}
	e.m.MessagesRecvd.With(labels).Add(float64(n))
	e.m.BytesRecvd.With(labels).Add(float64(bytes))
}

func (e *Exporter) OpFailed(p netlink.Protocol, op string) {
	e.m.OpsFailed.With(prometheus.Labels{"protocol": p.String(), "op": op}).Inc()
}

// Start begins serving on the configured address. It doesn't block.
func (e *Exporter) Start() {
	addr := fmt.Sprintf("%s:%d", e.BindAddress, e.Port)
	logger.Debug("starting the metrics server", "addr", addr)

	go func() {
		if err := e.server.Start(addr); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("couldn't start the metrics server", "err", err)
		}
	}()
}

func (e *Exporter) Cleanup() error {
	logger.Debug("cleaning up the metrics exporter")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down the metrics server: %w", err)
	}
	return nil
}

type rootResponse struct {
	Routes []*echo.Route `json:"routes"`
}

func (e *Exporter) handleRoot(c echo.Context) error {
	return c.JSONPretty(http.StatusOK, &rootResponse{Routes: e.server.Routes()}, jsonIndent)
}

type socketView struct {
	Protocol string         `json:"protocol"`
	Port     uint32         `json:"port"`
	Fd       int            `json:"fd"`
	Stats    *netlink.Stats `json:"stats,omitempty"`
	Err      string         `json:"err,omitempty"`
}

func (e *Exporter) handleSockets(c echo.Context) error {
	e.mu.Lock()
	sockets := slices.Clone(e.sockets)
	e.mu.Unlock()

	views := make([]socketView, 0, len(sockets))
	for _, s := range sockets {
		v := socketView{
			Protocol: s.Protocol().String(),
			Port:     s.LocalPort(),
			Fd:       s.Fd(),
		}
		st, err := s.Stats()
		if err != nil {
			v.Err = err.Error()
		} else {
			v.Stats = st
		}
		views = append(views, v)
	}

	return c.JSONPretty(http.StatusOK, views, jsonIndent)
}
