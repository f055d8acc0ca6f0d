package netlink

// Observer is told about the traffic going through a Socket. Calls are made
// synchronously while the Socket's lock is held, so implementations must not
// call back into the Socket.
type Observer interface {
	MessageSent(p Protocol, bytes int)
	MessagesReceived(p Protocol, n int, bytes int)
	OpFailed(p Protocol, op string)
}

type nopObserver struct{}

func (nopObserver) MessageSent(Protocol, int)           {}
func (nopObserver) MessagesReceived(Protocol, int, int) {}
func (nopObserver) OpFailed(Protocol, string)           {}
