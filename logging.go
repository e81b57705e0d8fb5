package httpwasm

import (
	"context"

	"go.uber.org/zap"

	"github.com/wasmhttp/host-go/api"
)

// ZapLogger adapts logger to the Logger option, mapping every level the
// guest's "log" ABI function can report to the matching zap method. Guest
// log messages carry no structured fields; callers who want request
// correlation in their own log lines should derive it independently, e.g.
// from their framework's request context.
func ZapLogger(logger *zap.Logger) api.LogFunc {
	return func(_ context.Context, level api.LogLevel, message string) {
		switch level {
		case api.LogLevelDebug:
			logger.Debug(message)
		case api.LogLevelInfo:
			logger.Info(message)
		case api.LogLevelWarn:
			logger.Warn(message)
		case api.LogLevelError:
			logger.Error(message)
		default:
			logger.Info(message)
		}
	}
}
