package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a zerolog wrapper with typed fields. Error entries are also
// handed to the attached LogCollector, shared by every child logger.
type Logger struct {
	zl   zerolog.Logger
	slot *collectorSlot
	base []Field
}

type collectorSlot struct {
	mu sync.RWMutex
	c  *LogCollector
}

func (s *collectorSlot) get() *LogCollector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.c
}

type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr, or file path
	TimeFormat string
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer
	switch cfg.Output {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("could not open log file: %w", err)
		}
		output = file
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = timeFormat

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: timeFormat}
	}

	zl := zerolog.New(output).
		With().
		Timestamp().
		CallerWithSkipFrameCount(3).
		Logger()
	return &Logger{zl: zl, slot: &collectorSlot{}}, nil
}

// NewNop returns a logger that discards everything. Used by tests and the CLI.
func NewNop() *Logger {
	return &Logger{zl: zerolog.Nop(), slot: &collectorSlot{}}
}

// With returns a child logger carrying the fields on every entry.
func (l *Logger) With(fields ...Field) *Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.value())
	}
	base := make([]Field, 0, len(l.base)+len(fields))
	base = append(base, l.base...)
	base = append(base, fields...)
	return &Logger{zl: ctx.Logger(), slot: l.slot, base: base}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.emit(l.zl.Debug(), msg, fields) }

func (l *Logger) Info(msg string, fields ...Field) { l.emit(l.zl.Info(), msg, fields) }

func (l *Logger) Warn(msg string, fields ...Field) { l.emit(l.zl.Warn(), msg, fields) }

func (l *Logger) Error(msg string, fields ...Field) {
	l.emit(l.zl.Error(), msg, fields)
	l.collect("error", msg, fields)
}

// Fatal logs and exits the process with status 1.
func (l *Logger) Fatal(msg string, fields ...Field) {
	l.emit(l.zl.WithLevel(zerolog.FatalLevel), msg, fields)
	os.Exit(1)
}

func (l *Logger) emit(event *zerolog.Event, msg string, fields []Field) {
	if event == nil {
		return
	}
	for _, f := range fields {
		f.add(event)
	}
	event.Msg(msg)
}

func (l *Logger) collect(level, msg string, fields []Field) {
	c := l.slot.get()
	if c == nil {
		return
	}

	// this function -> Error -> caller
	caller := "unknown"
	if _, file, line, ok := runtime.Caller(2); ok {
		parts := strings.Split(file, "VolGuard")
		caller = fmt.Sprintf("%s:%d", parts[len(parts)-1], line)
	}

	m := make(map[string]interface{}, len(l.base)+len(fields))
	for _, f := range l.base {
		m[f.Key] = f.value()
	}
	for _, f := range fields {
		m[f.Key] = f.value()
	}
	c.AddLog(level, msg, m, caller)
}

// AddCollector attaches a collector to this logger and every logger derived
// from it, replacing any previous one.
func (l *Logger) AddCollector(config *CollectionConfig) {
	next := NewLogCollector(config)
	l.slot.mu.Lock()
	prev := l.slot.c
	l.slot.c = next
	l.slot.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

// RemoveCollector detaches and flushes the current collector.
func (l *Logger) RemoveCollector() {
	l.slot.mu.Lock()
	prev := l.slot.c
	l.slot.c = nil
	l.slot.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

// Field is one structured key/value pair.
type Field struct {
	Key string
	val interface{}
	add func(e *zerolog.Event)
}

func (f Field) value() interface{} {
	if err, ok := f.val.(error); ok {
		return err.Error()
	}
	return f.val
}

func String(key, value string) Field {
	return Field{Key: key, val: value, add: func(e *zerolog.Event) { e.Str(key, value) }}
}

func Strings(key string, value []string) Field {
	return Field{Key: key, val: value, add: func(e *zerolog.Event) { e.Strs(key, value) }}
}

func Int(key string, value int) Field {
	return Field{Key: key, val: value, add: func(e *zerolog.Event) { e.Int(key, value) }}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, val: value, add: func(e *zerolog.Event) { e.Int64(key, value) }}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, val: value, add: func(e *zerolog.Event) { e.Float64(key, value) }}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, val: value, add: func(e *zerolog.Event) { e.Bool(key, value) }}
}

// Duration is logged in milliseconds.
func Duration(key string, value time.Duration) Field {
	ms := value.Milliseconds()
	return Field{Key: key, val: ms, add: func(e *zerolog.Event) { e.Int64(key, ms) }}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", add: func(*zerolog.Event) {}}
	}
	return Field{Key: "error", val: err, add: func(e *zerolog.Event) { e.Err(err) }}
}

func Any(key string, value interface{}) Field {
	return Field{Key: key, val: value, add: func(e *zerolog.Event) { e.Interface(key, value) }}
}
