package slog

import (
	"bytes"
	stdslog "log/slog"
	"strings"
	"testing"

	"github.com/unkn0wn-root/optimist"
)

func TestSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	h := stdslog.NewTextHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelDebug})
	l := Logger{L: stdslog.New(h)}

	l.Debug("entry torn down", optimist.Fields{"key": "cart:3f"})
	l.Error("snapshot delete failed", nil)

	out := buf.String()
	for _, want := range []string{"level=DEBUG", "key=cart:3f", "level=ERROR", `msg="snapshot delete failed"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}
