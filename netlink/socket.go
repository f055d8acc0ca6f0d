//go:build linux

package netlink

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

// Socket owns a single netlink socket through its whole life: it's created
// with a local port id reserved, configured, connected to a Protocol, used to
// exchange messages and finally closed. Once closed every method fails with
// ErrHandleClosed.
//
// The file descriptor and the port id are released exactly once, either by
// Close or, should the Socket be dropped without it, by a runtime cleanup.
type Socket struct {
	mu sync.Mutex

	h       *handle
	cleanup runtime.Cleanup
	conn    *netlink.Conn

	proto     Protocol
	rx, tx    int
	connected bool
	closed    bool

	obs Observer
}

// handle holds what must be given back to the system. It never points back
// to its Socket so the runtime cleanup can run.
type handle struct {
	once sync.Once
	err  error

	fd      int
	port    uint32
	ownPort bool
}

func (h *handle) release() error {
	h.once.Do(func() {
		if h.fd >= 0 {
			h.err = unix.Close(h.fd)
			h.fd = -1
		}
		if h.ownPort {
			ports.release(h.port)
		}
	})
	return h.err
}

// NewSocket allocates a disconnected Socket with a local port id from the
// process-wide pool and the default buffer sizes.
func NewSocket() (*Socket, error) {
	port, ok := ports.acquire()
	if !ok {
		return nil, fmt.Errorf("%w: all %d local port ids are in use", ErrAllocationFailed, portSlots)
	}

	h := &handle{fd: -1, port: port, ownPort: true}
	s := &Socket{
		h:   h,
		rx:  DefaultBufferSize,
		tx:  DefaultBufferSize,
		obs: nopObserver{},
	}
	s.cleanup = runtime.AddCleanup(s, func(h *handle) {
		if h.fd >= 0 {
			slog.Warn("releasing a netlink socket that was never closed", "port", h.port)
		}
		h.release()
	}, h)

	return s, nil
}

// Dial returns a Socket configured and connected as dictated by c. A nil
// Config means DefaultConfig.
func Dial(c *Config) (*Socket, error) {
	if c == nil {
		c = &DefaultConfig
	}

	s, err := NewSocket()
	if err != nil {
		return nil, err
	}

	if c.LocalPort != 0 {
		if err := s.SetLocalPort(c.LocalPort); err != nil {
			s.Close()
			return nil, err
		}
	}

	if err := s.SetBufferSize(c.RxBuffer, c.TxBuffer); err != nil {
		s.Close()
		return nil, err
	}

	if err := s.Connect(c.Protocol); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// SetObserver installs o to be told about the Socket's traffic. A nil o
// removes the current one.
func (s *Socket) SetObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o == nil {
		o = nopObserver{}
	}
	s.obs = o
}

// SetBufferSize sets SO_RCVBUF and SO_SNDBUF. Non-positive sizes select
// DefaultBufferSize. Sizes are remembered and applied on Connect; on a
// connected Socket they're applied right away.
func (s *Socket) SetBufferSize(rx, tx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrHandleClosed
	}

	if rx <= 0 {
		rx = DefaultBufferSize
	}
	if tx <= 0 {
		tx = DefaultBufferSize
	}
	s.rx, s.tx = rx, tx

	if !s.connected {
		return nil
	}

	if err := s.conn.SetReadBuffer(rx); err != nil {
		s.obs.OpFailed(s.proto, "setsockopt")
		return opError("setsockopt", ErrConfigurationRejected, err)
	}
	if err := s.conn.SetWriteBuffer(tx); err != nil {
		s.obs.OpFailed(s.proto, "setsockopt")
		return opError("setsockopt", ErrConfigurationRejected, err)
	}

	return nil
}

// Connect opens the socket for protocol p and binds it to the local port id.
// When the port id is 0 the kernel picks one, which LocalPort reports
// afterwards.
func (s *Socket) Connect(p Protocol) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrHandleClosed
	}
	if s.connected {
		return ErrAlreadyConnected
	}

	if !p.Valid() {
		return opError("socket", ErrConnectFailed, unix.EPROTONOSUPPORT)
	}

	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, int(p))
	if err != nil {
		s.obs.OpFailed(p, "socket")
		return opError("socket", ErrConnectFailed, os.NewSyscallError("socket", err))
	}

	if err := s.bind(fd, p); err != nil {
		unix.Close(fd)
		return err
	}

	s.h.fd = fd
	s.conn = netlink.NewConn(&sysSocket{h: s.h}, s.h.port)
	s.proto = p
	s.connected = true

	slog.Debug("connected netlink socket", "protocol", p, "port", s.h.port, "fd", fd)

	return nil
}

// bind applies the buffer sizes and binds fd to the local port id. Port ids
// from the pool clashing with a socket from another process (which might
// share our pid modulo 2^22 if it lives in another pid namespace) are
// swapped for the next free one.
func (s *Socket) bind(fd int, p Protocol) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, s.rx); err != nil {
		s.obs.OpFailed(p, "setsockopt")
		return opError("setsockopt", ErrConfigurationRejected, os.NewSyscallError("setsockopt", err))
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, s.tx); err != nil {
		s.obs.OpFailed(p, "setsockopt")
		return opError("setsockopt", ErrConfigurationRejected, os.NewSyscallError("setsockopt", err))
	}

	var clashed []uint32
	defer func() {
		for _, port := range clashed {
			ports.release(port)
		}
	}()

	for {
		err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Pid: s.h.port})
		if err == nil {
			break
		}

		if !errors.Is(err, unix.EADDRINUSE) || !s.h.ownPort {
			s.obs.OpFailed(p, "bind")
			return opError("bind", ErrConnectFailed, os.NewSyscallError("bind", err))
		}

		next, ok := ports.acquire()
		if !ok {
			s.obs.OpFailed(p, "bind")
			return opError("bind", ErrConnectFailed, os.NewSyscallError("bind", err))
		}
		slog.Debug("local port id already taken, trying the next one", "port", s.h.port, "next", next)
		clashed = append(clashed, s.h.port)
		s.h.port = next
	}

	sa, err := unix.Getsockname(fd)
	if err != nil {
		s.obs.OpFailed(p, "getsockname")
		return opError("getsockname", ErrConnectFailed, os.NewSyscallError("getsockname", err))
	}
	nsa, ok := sa.(*unix.SockaddrNetlink)
	if !ok {
		return opError("getsockname", ErrConnectFailed, unix.EAFNOSUPPORT)
	}
	if nsa.Pid != s.h.port {
		if s.h.ownPort {
			ports.release(s.h.port)
			s.h.ownPort = false
		}
		s.h.port = nsa.Pid
	}

	return nil
}

// Send stamps m with the given type and flags and sends it. Sequence number
// and port id are filled in when left at 0 and written back into m, so a
// Message can be sent again as is. It returns the number of bytes sent.
func (s *Socket) Send(m *Message, typ netlink.HeaderType, flags netlink.HeaderFlags) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.send(m, typ, flags)
}

func (s *Socket) send(m *Message, typ netlink.HeaderType, flags netlink.HeaderFlags) (int, error) {
	if err := s.usable(); err != nil {
		return 0, err
	}

	m.SetType(typ)
	m.SetFlags(flags)

	sent, err := s.conn.Send(m.Netlink())
	if err != nil {
		s.obs.OpFailed(s.proto, "send")
		return 0, opError("send", ErrSendFailed, err)
	}
	m.SetSequence(sent.Header.Sequence)
	m.SetPortID(sent.Header.PID)

	s.obs.MessageSent(s.proto, m.Len())

	return m.Len(), nil
}

// Receive reads the next batch of messages. Multi-part dumps are drained
// until NLMSG_DONE, which is not returned. Kernel error replies are turned
// into errors carrying their errno.
func (s *Socket) Receive() ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.receive()
}

func (s *Socket) receive() ([]*Message, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}

	nms, err := s.conn.Receive()
	if err != nil {
		s.obs.OpFailed(s.proto, "receive")
		return nil, opError("receive", ErrReceiveFailed, err)
	}

	return s.wrap(nms), nil
}

// Execute sends m and waits for the replies, checking they answer it. Flags
// should include netlink.Request and either netlink.Acknowledge or
// netlink.Dump, otherwise the kernel might never reply.
func (s *Socket) Execute(m *Message, typ netlink.HeaderType, flags netlink.HeaderFlags) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.send(m, typ, flags); err != nil {
		return nil, err
	}

	nms, err := s.conn.Receive()
	if err != nil {
		s.obs.OpFailed(s.proto, "receive")
		return nil, opError("receive", ErrReceiveFailed, err)
	}

	if err := netlink.Validate(m.Netlink(), nms); err != nil {
		s.obs.OpFailed(s.proto, "validate")
		return nil, opError("validate", ErrReceiveFailed, err)
	}

	return s.wrap(nms), nil
}

func (s *Socket) wrap(nms []netlink.Message) []*Message {
	msgs := make([]*Message, 0, len(nms))
	total := 0
	for _, nm := range nms {
		m := FromNetlink(nm)
		total += m.Len()
		msgs = append(msgs, m)
	}
	s.obs.MessagesReceived(s.proto, len(msgs), total)
	return msgs
}

func (s *Socket) usable() error {
	if s.closed {
		return ErrHandleClosed
	}
	if !s.connected {
		return ErrNotConnected
	}
	return nil
}

// Fd returns the file descriptor, or -1 if the Socket isn't connected or
// has been closed.
func (s *Socket) Fd() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.connected {
		return -1
	}
	return s.h.fd
}

// LocalPort returns the port id the Socket is, or will be, bound to. After
// Close it keeps reporting the last port id, which is no longer reserved and
// may be handed to another Socket.
func (s *Socket) LocalPort() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.h.port
}

// SetLocalPort overrides the port id the Socket binds to on Connect. The one
// reserved from the pool is given back. 0 lets the kernel choose.
func (s *Socket) SetLocalPort(port uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrHandleClosed
	}
	if s.connected {
		return ErrAlreadyConnected
	}

	if s.h.ownPort {
		ports.release(s.h.port)
		s.h.ownPort = false
	}
	s.h.port = port

	return nil
}

// Protocol returns the family the Socket is connected to.
func (s *Socket) Protocol() Protocol {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.proto
}

// Close releases the file descriptor and the local port id. Calling it
// more than once is harmless.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.connected = false
	s.cleanup.Stop()

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			return fmt.Errorf("error closing the netlink socket: %w", err)
		}
		return nil
	}

	return s.h.release()
}

// sysSocket plugs a raw file descriptor into netlink.Conn, which takes care
// of sequence numbers, multi-part replies and error messages.
type sysSocket struct {
	h *handle
}

var _ netlink.Socket = &sysSocket{}

func (s *sysSocket) Close() error { return s.h.release() }

func (s *sysSocket) Send(m netlink.Message) error {
	return s.write(FromNetlink(m).Bytes())
}

func (s *sysSocket) SendMessages(ms []netlink.Message) error {
	var b []byte
	for _, m := range ms {
		b = append(b, FromNetlink(m).Bytes()...)
	}
	return s.write(b)
}

func (s *sysSocket) write(b []byte) error {
	for {
		err := unix.Sendto(s.h.fd, b, 0, &unix.SockaddrNetlink{Family: unix.AF_NETLINK})
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return os.NewSyscallError("sendto", err)
		}
		return nil
	}
}

func (s *sysSocket) Receive() ([]netlink.Message, error) {
	b := make([]byte, os.Getpagesize())
	for {
		// Peek to see how large the datagram is.
		n, _, err := unix.Recvfrom(s.h.fd, b, unix.MSG_PEEK|unix.MSG_TRUNC)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, os.NewSyscallError("recvfrom", err)
		}

		if n <= len(b) {
			break
		}
		b = make([]byte, Align(n))
	}

	var (
		n   int
		err error
	)
	for {
		n, _, err = unix.Recvfrom(s.h.fd, b, 0)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return nil, os.NewSyscallError("recvfrom", err)
	}

	msgs, err := ParseMessages(b[:n])
	if err != nil {
		return nil, err
	}

	nms := make([]netlink.Message, 0, len(msgs))
	for _, m := range msgs {
		nms = append(nms, m.Netlink())
	}
	return nms, nil
}

// netlink.Conn only resizes buffers of sockets that can also report them.
var _ interface {
	SetReadBuffer(int) error
	SetWriteBuffer(int) error
	ReadBuffer() (int, error)
	WriteBuffer() (int, error)
} = &sysSocket{}

func (s *sysSocket) ReadBuffer() (int, error) {
	n, err := unix.GetsockoptInt(s.h.fd, unix.SOL_SOCKET, unix.SO_RCVBUF)
	return n, os.NewSyscallError("getsockopt", err)
}

func (s *sysSocket) WriteBuffer() (int, error) {
	n, err := unix.GetsockoptInt(s.h.fd, unix.SOL_SOCKET, unix.SO_SNDBUF)
	return n, os.NewSyscallError("getsockopt", err)
}

func (s *sysSocket) SetReadBuffer(bytes int) error {
	return os.NewSyscallError("setsockopt", unix.SetsockoptInt(s.h.fd, unix.SOL_SOCKET, unix.SO_RCVBUF, bytes))
}

func (s *sysSocket) SetWriteBuffer(bytes int) error {
	return os.NewSyscallError("setsockopt", unix.SetsockoptInt(s.h.fd, unix.SOL_SOCKET, unix.SO_SNDBUF, bytes))
}
