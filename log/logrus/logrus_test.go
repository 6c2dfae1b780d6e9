package logrus

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/unkn0wn-root/optimist"
)

func TestLogrusLogger(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := LogrusLogger{E: logrus.NewEntry(base).WithField("component", "cart")}

	l.Debug("fetch deduped", nil)
	l.Warn("mutation rolled back", optimist.Fields{"op": "remove", "target": "p1"})

	if len(hook.AllEntries()) != 2 {
		t.Fatalf("entries = %d", len(hook.AllEntries()))
	}
	last := hook.LastEntry()
	if last.Level != logrus.WarnLevel || last.Message != "mutation rolled back" {
		t.Fatalf("last = %s %q", last.Level, last.Message)
	}
	if last.Data["target"] != "p1" || last.Data["component"] != "cart" {
		t.Fatalf("fields = %v", last.Data)
	}
}
