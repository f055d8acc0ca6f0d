package netlink

import (
	"os"
	"sync"
)

const (
	portPIDMask  = 0x3FFFFF
	portIdxShift = 22
	portSlots    = 1024
)

// portPool hands out local port ids the way libnl does: the low 22 bits hold
// the process id and the upper 10 bits tell apart the sockets of the process.
// This lets a process hold up to portSlots sockets without asking the kernel
// to pick port ids for it.
type portPool struct {
	mu   sync.Mutex
	used [portSlots / 32]uint32
	pid  uint32
}

var ports = newPortPool(uint32(os.Getpid()))

func newPortPool(pid uint32) *portPool {
	return &portPool{pid: pid & portPIDMask}
}

// acquire reserves the lowest free slot. It returns false once every slot is
// taken.
func (pp *portPool) acquire() (uint32, bool) {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	for i, word := range pp.used {
		if word == ^uint32(0) {
			continue
		}
		for bit := range 32 {
			if word&(1<<bit) != 0 {
				continue
			}
			pp.used[i] |= 1 << bit
			n := uint32(i*32 + bit)
			return pp.pid + n<<portIdxShift, true
		}
	}

	return 0, false
}

func (pp *portPool) release(port uint32) {
	if !pp.owns(port) {
		return
	}

	n := port >> portIdxShift

	pp.mu.Lock()
	pp.used[n/32] &^= 1 << (n % 32)
	pp.mu.Unlock()
}

// owns reports whether port could have come out of this pool.
func (pp *portPool) owns(port uint32) bool {
	return port&portPIDMask == pp.pid
}

func (pp *portPool) inUse() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	n := 0
	for _, word := range pp.used {
		for ; word != 0; word &= word - 1 {
			n++
		}
	}
	return n
}

// PortsInUse returns the number of local port ids currently reserved by the
// sockets of this process.
func PortsInUse() int {
	return ports.inUse()
}
