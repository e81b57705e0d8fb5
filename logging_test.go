package httpwasm

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wasmhttp/host-go/api"
)

func TestZapLogger_mapsLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logFn := ZapLogger(zap.New(core))

	cases := []struct {
		level api.LogLevel
		want  zapcore.Level
	}{
		{api.LogLevelDebug, zapcore.DebugLevel},
		{api.LogLevelInfo, zapcore.InfoLevel},
		{api.LogLevelWarn, zapcore.WarnLevel},
		{api.LogLevelError, zapcore.ErrorLevel},
		{api.LogLevelNone, zapcore.InfoLevel},
	}
	for _, c := range cases {
		logFn(context.Background(), c.level, "guest message")
	}

	entries := logs.All()
	if len(entries) != len(cases) {
		t.Fatalf("got %d log entries, want %d", len(entries), len(cases))
	}
	for i, c := range cases {
		if entries[i].Level != c.want {
			t.Errorf("entry %d: level = %v, want %v", i, entries[i].Level, c.want)
		}
		if entries[i].Message != "guest message" {
			t.Errorf("entry %d: message = %q", i, entries[i].Message)
		}
	}
}
