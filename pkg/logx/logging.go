package logx

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Events  EventsConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// EventsConfig controls the sink that copies log records at or above
// MinLevel into the event log.
type EventsConfig struct {
	Enabled    bool
	MinLevel   string
	RatePerSec int
}

type Level = zerolog.Level

const (
	LevelTrace = zerolog.TraceLevel
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// Logger is a small structured logger.
//
// Loggers handed out by a Service stay live across Apply calls. The zero
// value is a safe no-op, and With derives a child with fixed fields.
type Logger struct {
	svc     *Service
	base    zerolog.Logger
	hasBase bool
	fields  []Field
}

// Nop returns a logger that writes nothing.
func Nop() Logger {
	return Logger{base: zerolog.Nop(), hasBase: true}
}

// NewConsole builds a standalone console logger, for the window before
// the log service exists.
func NewConsole(level string) Logger {
	applyGlobals()
	zl := zerolog.New(consoleWriter(os.Stdout)).
		Level(levelOf(level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	return Logger{base: zl, hasBase: true}
}

func (l Logger) IsZero() bool { return l.svc == nil && !l.hasBase && len(l.fields) == 0 }

func (l Logger) root() zerolog.Logger {
	switch {
	case l.svc != nil:
		return l.svc.current()
	case l.hasBase:
		return l.base
	}
	return zerolog.Nop()
}

// Enabled reports whether level would be written.
func (l Logger) Enabled(level Level) bool {
	return level >= l.root().GetLevel()
}

func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	child := l
	child.fields = append(append([]Field(nil), l.fields...), fields...)
	return child
}

func (l Logger) Trace(msg string, fields ...Field) { l.emit(zerolog.TraceLevel, msg, fields) }
func (l Logger) Debug(msg string, fields ...Field) { l.emit(zerolog.DebugLevel, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.emit(zerolog.InfoLevel, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.emit(zerolog.WarnLevel, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.emit(zerolog.ErrorLevel, msg, fields) }

func (l Logger) emit(level zerolog.Level, msg string, fields []Field) {
	rl := l.root()
	e := rl.WithLevel(level)
	if e == nil {
		return
	}
	if at := callSite(3); at != "" {
		e.Str(zerolog.CallerFieldName, at)
	}
	for _, f := range l.fields {
		if f != nil {
			f(e)
		}
	}
	for _, f := range fields {
		if f != nil {
			f(e)
		}
	}
	e.Msg(msg)
}

// callSite returns "file.go:123" for the logging caller; full paths and
// function names are noise at this log volume.
func callSite(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok || file == "" {
		return ""
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

func levelOf(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return def
}

// Sink receives log records that pass the events filter. Implementations
// must not block; a slow consumer queues internally or drops.
type Sink interface {
	Consume(level Level, msg string, fields map[string]any)
}

// Service owns the writers and hot-swaps the root logger on Apply.
type Service struct {
	mu  sync.Mutex
	cfg Config

	root atomic.Value // zerolog.Logger

	file *os.File

	sink     Sink
	limiter  *rate.Limiter
	minLevel zerolog.Level
}

// New creates the logging service with cfg applied, returning the
// Service and a live root Logger.
func New(cfg Config) (*Service, Logger) {
	applyGlobals()
	s := &Service{cfg: cfg}
	// Console bootstrap so records emitted mid-Apply are not lost.
	s.root.Store(zerolog.New(consoleWriter(os.Stdout)).
		Level(levelOf(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger())
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func applyGlobals() {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = timeFormat
}

func (s *Service) current() zerolog.Logger {
	if zl, ok := s.root.Load().(zerolog.Logger); ok {
		return zl
	}
	return zerolog.Nop()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// SetSink installs (nil clears) the event sink. Records reach it only
// while cfg.Events.Enabled is set.
func (s *Service) SetSink(sink Sink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f != nil {
		_ = f.Close()
	}
	return nil
}

// Apply rebuilds the writer stack and swaps the root logger. Safe to
// call concurrently with logging.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg

	s.minLevel = levelOf(cfg.Events.MinLevel, zerolog.WarnLevel)
	rps := cfg.Events.RatePerSec
	if rps < 1 {
		rps = 1
	}
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, consoleWriter(os.Stdout))
	}
	if cfg.File.Enabled {
		if f := s.openLogFile(cfg.File.Path); f != nil {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if cfg.Events.Enabled {
		writers = append(writers, &sinkWriter{svc: s})
	}
	if len(writers) == 0 {
		writers = append(writers, consoleWriter(os.Stdout))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(levelOf(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(zl)
}

func (s *Service) openLogFile(path string) *os.File {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "./watchdogd.log"
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logx: cannot open log file %q: %v\n", path, err)
		return nil
	}
	return f
}

func consoleWriter(w io.Writer) io.Writer {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat}
	cw.FormatCaller = func(v interface{}) string {
		s, _ := v.(string)
		return s
	}
	return cw
}

// sinkWriter feeds filtered records to the installed Sink. Implementing
// zerolog.LevelWriter lets the level filter run before any JSON parsing.
type sinkWriter struct {
	svc *Service
}

func (w *sinkWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *sinkWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	w.svc.mu.Lock()
	sink, lim, min := w.svc.sink, w.svc.limiter, w.svc.minLevel
	w.svc.mu.Unlock()

	if sink == nil || level < min {
		return len(p), nil
	}
	// Drop instead of blocking when the sink is too chatty.
	if lim != nil && !lim.Allow() {
		return len(p), nil
	}

	var rec map[string]any
	if json.Unmarshal(p, &rec) != nil {
		return len(p), nil
	}
	msg, _ := rec[zerolog.MessageFieldName].(string)
	delete(rec, zerolog.MessageFieldName)
	delete(rec, zerolog.LevelFieldName)
	delete(rec, zerolog.TimestampFieldName)

	sink.Consume(level, msg, rec)
	return len(p), nil
}
