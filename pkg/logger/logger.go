// Package logger is the process-wide logging facade. Packages log through
// the package level functions; main decides which backends receive them.
package logger

import "sync/atomic"

// LoggerInstance defines the interface for logging backends.
type LoggerInstance interface {
	Log(message string, keyvals ...any)
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

// Logger holds multiple logging backends and dispatches log calls to all of them.
type Logger struct {
	instances []LoggerInstance
	fields    []any
}

var singleton atomic.Pointer[Logger]

// Init installs the global logger with one or more logging backends.
// Until Init is called all logging functions are no-ops.
func Init(instances ...LoggerInstance) {
	singleton.Store(&Logger{instances: instances})
}

// With returns a logger that adds keyvals to every message. It writes to
// the backends installed at the time of the call.
func With(keyvals ...any) *Logger {
	l := singleton.Load()
	if l == nil {
		return &Logger{}
	}
	return l.With(keyvals...)
}

// With returns a copy of l that adds keyvals to every message.
func (l *Logger) With(keyvals ...any) *Logger {
	fields := make([]any, 0, len(l.fields)+len(keyvals))
	fields = append(fields, l.fields...)
	fields = append(fields, keyvals...)
	return &Logger{instances: l.instances, fields: fields}
}

func (l *Logger) merge(keyvals []any) []any {
	if len(l.fields) == 0 {
		return keyvals
	}
	out := make([]any, 0, len(l.fields)+len(keyvals))
	out = append(out, l.fields...)
	return append(out, keyvals...)
}

func (l *Logger) Log(message string, keyvals ...any) {
	kv := l.merge(keyvals)
	for _, instance := range l.instances {
		instance.Log(message, kv...)
	}
}

func (l *Logger) Debug(message string, keyvals ...any) {
	kv := l.merge(keyvals)
	for _, instance := range l.instances {
		instance.Debug(message, kv...)
	}
}

func (l *Logger) Info(message string, keyvals ...any) {
	kv := l.merge(keyvals)
	for _, instance := range l.instances {
		instance.Info(message, kv...)
	}
}

func (l *Logger) Warn(message string, keyvals ...any) {
	kv := l.merge(keyvals)
	for _, instance := range l.instances {
		instance.Warn(message, kv...)
	}
}

func (l *Logger) Error(message string, keyvals ...any) {
	kv := l.merge(keyvals)
	for _, instance := range l.instances {
		instance.Error(message, kv...)
	}
}

func (l *Logger) Fatal(message string, keyvals ...any) {
	kv := l.merge(keyvals)
	for _, instance := range l.instances {
		instance.Fatal(message, kv...)
	}
}

// Log writes a message at the default log level to all configured backends.
func Log(message string, keyvals ...any) {
	if l := singleton.Load(); l != nil {
		l.Log(message, keyvals...)
	}
}

// Info writes a message at INFO level to all configured backends.
func Info(message string, keyvals ...any) {
	if l := singleton.Load(); l != nil {
		l.Info(message, keyvals...)
	}
}

// Warn writes a message at WARN level to all configured backends.
func Warn(message string, keyvals ...any) {
	if l := singleton.Load(); l != nil {
		l.Warn(message, keyvals...)
	}
}

// Error writes a message at ERROR level to all configured backends.
func Error(message string, keyvals ...any) {
	if l := singleton.Load(); l != nil {
		l.Error(message, keyvals...)
	}
}

// Debug writes a message at DEBUG level to all configured backends.
func Debug(message string, keyvals ...any) {
	if l := singleton.Load(); l != nil {
		l.Debug(message, keyvals...)
	}
}

// Fatal writes a message at FATAL level and terminates the program.
func Fatal(message string, keyvals ...any) {
	if l := singleton.Load(); l != nil {
		l.Fatal(message, keyvals...)
	}
}
