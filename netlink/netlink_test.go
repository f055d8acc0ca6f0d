package netlink

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func init() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: true,
		Level:     slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Remove time.
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			// Remove the directory from the source's filename.
			if a.Key == slog.SourceKey {
				source := a.Value.Any().(*slog.Source)
				source.File = filepath.Base(source.File)
			}
			return a
		},
	}))
	slog.SetDefault(logger)
}

// mustMessage builds a message out of attrs or stops the test.
func mustMessage(t testing.TB, attrs ...Attr) *Message {
	t.Helper()

	m := NewMessage()
	for _, a := range attrs {
		if err := m.Put(a.Type, a.Value); err != nil {
			t.Fatalf("error putting attribute %d: %v", a.Type, err)
		}
	}
	return m
}
