package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const moduleDirName = "VPropTrader-sub001"

// Logger wraps zerolog behind the Field API the rest of the codebase
// logs through. An optional collector aggregates warn and error lines
// and ships them to the bus.
type Logger struct {
	zl        zerolog.Logger
	collector *LogCollector
}

type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr, or a file path
	TimeFormat string // zerolog time field format
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
	}

	tf := cfg.TimeFormat
	if tf == "" {
		tf = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = tf

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: tf}
	}

	// skip: zerolog event, l.log, the level method
	zl := zerolog.New(out).With().Timestamp().CallerWithSkipFrameCount(4).Logger()
	return &Logger{zl: zl}, nil
}

func (l *Logger) Debug(msg string, fields ...Field) {
	l.log(l.zl.Debug(), msg, fields)
}

func (l *Logger) Info(msg string, fields ...Field) {
	l.log(l.zl.Info(), msg, fields)
}

func (l *Logger) Warn(msg string, fields ...Field) {
	l.log(l.zl.Warn(), msg, fields)
	l.collect("warn", msg, fields)
}

func (l *Logger) Error(msg string, fields ...Field) {
	l.log(l.zl.Error(), msg, fields)
	l.collect("error", msg, fields)
}

func (l *Logger) log(ev *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		f.emit(ev)
	}
	ev.Msg(msg)
}

func (l *Logger) collect(level, msg string, fields []Field) {
	if l.collector == nil {
		return
	}

	caller := "unknown"
	if _, file, line, ok := runtime.Caller(2); ok {
		if i := strings.LastIndex(file, moduleDirName); i >= 0 {
			file = file[i+len(moduleDirName):]
		}
		caller = fmt.Sprintf("%s:%d", file, line)
	}

	kv := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		kv[f.key] = f.value
	}
	l.collector.Add(level, msg, kv, caller)
}

// AddCollector starts shipping aggregated warn/error logs through cfg.
// An existing collector is flushed and replaced.
func (l *Logger) AddCollector(cfg *CollectionConfig) {
	if l.collector != nil {
		l.collector.Close()
	}
	l.collector = NewLogCollector(cfg)
}

// RemoveCollector flushes and detaches the collector.
func (l *Logger) RemoveCollector() {
	if l.collector != nil {
		l.collector.Close()
		l.collector = nil
	}
}

// Field is one structured key/value pair. The emit closure writes the
// value with its native zerolog type; key and value feed the collector.
type Field struct {
	key   string
	value interface{}
	emit  func(*zerolog.Event)
}

func String(key, value string) Field {
	return Field{key: key, value: value, emit: func(e *zerolog.Event) { e.Str(key, value) }}
}

func Int(key string, value int) Field {
	return Field{key: key, value: value, emit: func(e *zerolog.Event) { e.Int(key, value) }}
}

func Int32(key string, value int32) Field {
	return Int(key, int(value))
}

func Int64(key string, value int64) Field {
	return Field{key: key, value: value, emit: func(e *zerolog.Event) { e.Int64(key, value) }}
}

func Uint(key string, value uint) Field {
	return Int64(key, int64(value))
}

func Uint64(key string, value uint64) Field {
	return Int64(key, int64(value))
}

func Float64(key string, value float64) Field {
	return Field{key: key, value: value, emit: func(e *zerolog.Event) { e.Float64(key, value) }}
}

func Bool(key string, value bool) Field {
	return Field{key: key, value: value, emit: func(e *zerolog.Event) { e.Bool(key, value) }}
}

func Any(key string, value interface{}) Field {
	return Field{key: key, value: value, emit: func(e *zerolog.Event) { e.Interface(key, value) }}
}

func Error(err error) Field {
	var value interface{}
	if err != nil {
		value = err.Error()
	}
	return Field{key: "error", value: value, emit: func(e *zerolog.Event) { e.Err(err) }}
}

// Duration logs in whole milliseconds.
func Duration(key string, value time.Duration) Field {
	return Int64(key, value.Milliseconds())
}

// Strings joins values into one comma separated field.
func Strings(key string, values []string) Field {
	return String(key, strings.Join(values, ", "))
}
