package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/optimist"
)

func TestZapLoggerLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := ZapLogger{L: zap.New(core)}

	l.Debug("d", nil)
	l.Info("i", optimist.Fields{"key": "cart:ab12"})
	l.Warn("w", optimist.Fields{"err": errors.New("boom")})
	l.Error("e", optimist.Fields{"n": 3})

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("entries = %d, want 4", len(entries))
	}
	wantLevels := []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, e := range entries {
		if e.Level != wantLevels[i] {
			t.Fatalf("entry %d level = %s, want %s", i, e.Level, wantLevels[i])
		}
	}
	if got := entries[1].ContextMap()["key"]; got != "cart:ab12" {
		t.Fatalf("key field = %v", got)
	}
	if got := entries[2].ContextMap()["err"]; got != "boom" {
		t.Fatalf("err field = %v", got)
	}
}
