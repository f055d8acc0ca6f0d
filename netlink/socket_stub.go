//go:build !linux

package netlink

import "github.com/mdlayher/netlink"

// Socket is only functional on Linux. Elsewhere every operation fails with
// ErrNotSupported.
type Socket struct{}

func NewSocket() (*Socket, error)   { return nil, ErrNotSupported }
func Dial(*Config) (*Socket, error) { return nil, ErrNotSupported }

func (s *Socket) SetObserver(Observer)           {}
func (s *Socket) SetBufferSize(rx, tx int) error { return ErrNotSupported }
func (s *Socket) Connect(p Protocol) error       { return ErrNotSupported }
func (s *Socket) Fd() int                        { return -1 }
func (s *Socket) LocalPort() uint32              { return 0 }
func (s *Socket) SetLocalPort(uint32) error      { return ErrNotSupported }
func (s *Socket) Protocol() Protocol             { return Route }
func (s *Socket) Close() error                   { return nil }

func (s *Socket) Send(*Message, netlink.HeaderType, netlink.HeaderFlags) (int, error) {
	return 0, ErrNotSupported
}

func (s *Socket) Receive() ([]*Message, error) { return nil, ErrNotSupported }

func (s *Socket) Execute(*Message, netlink.HeaderType, netlink.HeaderFlags) ([]*Message, error) {
	return nil, ErrNotSupported
}

func (s *Socket) Stats() (*Stats, error) { return nil, ErrNotSupported }
