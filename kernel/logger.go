package kernel

// Logger is the single level-tagged, line-oriented logging sink the kernel
// writes to. It mirrors a structured, key-value Logger contract so any
// slog/zap/logrus adapter already written against that shape works
// unchanged here.
//
// Only some kernel failures are logged: Attach on a composed-immutable
// module or a disallowed second attach, AttachManager's rank check, and a
// failing OnLink/OnCompose hook each emit a Warn line carrying the module's
// debug name and a short cause, but no TypeID name. Every other failure is
// returned to the caller without a log line.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger discards everything. Useful as a default when a caller has not
// wired a real sink, and in tests that don't assert on log output.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
