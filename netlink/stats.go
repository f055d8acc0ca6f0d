package netlink

// Stats is the kernel's view of a Socket as found in /proc/net/netlink.
type Stats struct {
	Inode  uint64 `json:"inode"`
	Groups uint32 `json:"groups"`
	Rmem   uint64 `json:"rmem"`
	Wmem   uint64 `json:"wmem"`
	Dumps  uint64 `json:"dumps"`
	Drops  uint64 `json:"drops"`
}
