// Package log provides structured logging with session context.
//
// Two logger variants are available:
//   - Logger: Non-sugared zap.Logger for protocol paths (structured fields)
//   - SugaredLogger: Printf-style logging for CLI surfaces
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
package log

import (
	"io"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Session identifies the process emitting log entries.
type Session struct {
	// ID is unique per process run.
	ID string
	// Role is "client", "controller", "relay" or a CLI command name.
	Role string
	// Peer is the remote endpoint, when there is one.
	Peer string
}

// NewSession creates a session with a fresh id.
func NewSession(role string) *Session {
	return &Session{ID: "sess-" + uuid.NewString(), Role: role}
}

// Logger provides structured logging with session context.
// All log entries include the session fields.
type Logger struct {
	zap     *zap.Logger
	session *Session
	level   zapcore.Level
	extra   []zap.Field
}

// SugaredLogger provides printf-style logging for CLI surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger creates a new logger with session context.
// Output defaults to os.Stderr.
func NewLogger(session *Session) *Logger {
	return newLoggerWithWriter(session, os.Stderr, zapcore.DebugLevel)
}

// NewLoggerLevel creates a logger that drops entries below level.
func NewLoggerLevel(session *Session, level zapcore.Level) *Logger {
	return newLoggerWithWriter(session, os.Stderr, level)
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
}

// WithOutput returns a new logger with a different output writer.
// Session and With fields carry over.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	out := newLoggerWithWriter(l.session, w, l.level)
	out.extra = l.extra
	out.zap = out.zap.With(l.extra...)
	return out
}

func newLoggerWithWriter(session *Session, w io.Writer, level zapcore.Level) *Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(w),
		level,
	)

	var contextFields []zap.Field
	if session != nil {
		contextFields = append(contextFields,
			zap.String("session_id", session.ID),
			zap.String("role", session.Role),
		)
		if session.Peer != "" {
			contextFields = append(contextFields, zap.String("peer", session.Peer))
		}
	}

	return &Logger{zap: zap.New(core).With(contextFields...), session: session, level: level}
}

// With returns a logger carrying additional fields on every entry.
func (l *Logger) With(fields map[string]any) *Logger {
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	extra := append(append([]zap.Field(nil), l.extra...), zf...)
	return &Logger{zap: l.zap.With(zf...), session: l.session, level: l.level, extra: extra}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Debugf(template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}
