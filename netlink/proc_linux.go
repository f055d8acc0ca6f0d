//go:build linux

package netlink

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"
)

// procRoot is where procfs is mounted. Tests point it elsewhere.
var procRoot = procfs.DefaultMountPoint

// Stats looks the Socket up in /proc/net/netlink by protocol and port id.
func (s *Socket) Stats() (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return nil, err
	}

	return lookupStats(s.proto, s.h.port)
}

func lookupStats(p Protocol, port uint32) (*Stats, error) {
	f, err := os.Open(filepath.Join(procRoot, "net", "netlink"))
	if err != nil {
		return nil, fmt.Errorf("error opening /proc/net/netlink: %w", err)
	}
	defer f.Close()

	lines, err := parseNetNetlink(f)
	if err != nil {
		return nil, fmt.Errorf("error reading /proc/net/netlink: %w", err)
	}

	for _, l := range lines {
		if l.proto == p && l.port == port {
			return &l.Stats, nil
		}
	}

	return nil, fmt.Errorf("no %s socket bound to port %d in /proc/net/netlink", p, port)
}

type netNetlinkLine struct {
	proto Protocol
	port  uint32
	Stats
}

// parseNetNetlink reads the table the kernel prints in
// net/netlink/af_netlink.c:netlink_seq_show. The columns are
// sk Eth Pid Groups Rmem Wmem Dump Locks Drops Inode, Groups being hex.
func parseNetNetlink(r io.Reader) ([]netNetlinkLine, error) {
	var (
		lines []netNetlinkLine
		sc    = bufio.NewScanner(r)
		n     int
	)

	for sc.Scan() {
		n++
		if n == 1 {
			continue
		}

		f := strings.Fields(sc.Text())
		if len(f) == 0 {
			continue
		}
		if len(f) != 10 {
			return nil, fmt.Errorf("line %d: got %d fields, want 10", n, len(f))
		}

		var (
			l    netNetlinkLine
			errs [9]error
			v    uint64
		)
		v, errs[0] = strconv.ParseUint(f[1], 10, 32)
		l.proto = Protocol(v)
		v, errs[1] = strconv.ParseUint(f[2], 10, 32)
		l.port = uint32(v)
		v, errs[2] = strconv.ParseUint(f[3], 16, 32)
		l.Groups = uint32(v)
		l.Rmem, errs[3] = strconv.ParseUint(f[4], 10, 64)
		l.Wmem, errs[4] = strconv.ParseUint(f[5], 10, 64)
		l.Dumps, errs[5] = strconv.ParseUint(f[6], 10, 64)
		_, errs[6] = strconv.ParseUint(f[7], 10, 64)
		l.Drops, errs[7] = strconv.ParseUint(f[8], 10, 64)
		l.Inode, errs[8] = strconv.ParseUint(f[9], 10, 64)

		for _, err := range errs {
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", n, err)
			}
		}
		lines = append(lines, l)
	}

	return lines, sc.Err()
}
