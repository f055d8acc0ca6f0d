package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/scitags/nlmsg/netlink"
)

const (
	ProtocolKey string = "protocol"
	PortKey     string = "port"

	LevelTrace = slog.LevelDebug - 1
)

var logLevelMap = map[string]slog.Level{
	"trace": LevelTrace,
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func logReplacements(groups []string, a slog.Attr) slog.Attr {
	// Remove time.
	if a.Key == slog.TimeKey && len(groups) == 0 && !logTimeFlag {
		return slog.Attr{}
	}

	// Remove the directory from the source's filename.
	if a.Key == slog.SourceKey {
		source := a.Value.Any().(*slog.Source)
		source.File = filepath.Base(source.File)
	}

	// Print the protocol's number alongside its name
	if a.Key == ProtocolKey {
		p, ok := a.Value.Any().(netlink.Protocol)
		if ok {
			return slog.Attr{Key: a.Key, Value: slog.StringValue(fmt.Sprintf("%s(%d)", p, int(p)))}
		}
	}

	// Split port ids into the pid and the slot of the pool they come from
	if a.Key == PortKey {
		// When slog gobbles the port it becomes a uint64 instead of a uint32
		port, ok := a.Value.Any().(uint64)
		if ok {
			return slog.Attr{Key: a.Key, Value: slog.StringValue(fmt.Sprintf("%d(pid=%d;slot=%d)", port, port&0x3FFFFF, port>>22))}
		}
	}

	// Name the trace level
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
			return slog.Attr{Key: a.Key, Value: slog.StringValue("TRACE")}
		}
	}

	return a
}
