package main

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTraceLevel(t *testing.T) {
	tests := map[string]struct {
		level string
		want  string
	}{
		"trace": {level: "trace", want: "level=TRACE msg=walking\n"},
		"debug": {level: "debug", want: ""},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{
				Level:       logLevelMap[tc.level],
				ReplaceAttr: logReplacements,
			}))

			// Right below debug, so it's only shown when asked for.
			logger.Log(context.Background(), slog.LevelDebug-1, "walking")

			if diff := cmp.Diff(tc.want, out.String()); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
