package optimist

// Fields carries structured context for a log line. Keys are redacted by the
// cache before they get here.
type Fields map[string]any

// Logger is the leveled sink the cache writes to. Adapters for zap, logrus
// and slog live under log/. A nil Options.Logger means NopLogger.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}
