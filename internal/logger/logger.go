package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a LOG_LEVEL value to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type Logger struct {
	level Level
	debug *log.Logger
	info  *log.Logger
	warn  *log.Logger
	error *log.Logger
}

const flags = log.Ldate | log.Ltime | log.Lshortfile

func New() *Logger {
	return &Logger{
		level: LevelInfo,
		debug: log.New(os.Stdout, "DEBUG: ", flags),
		info:  log.New(os.Stdout, "INFO: ", flags),
		warn:  log.New(os.Stderr, "WARN: ", flags),
		error: log.New(os.Stderr, "ERROR: ", flags),
	}
}

func NewWithWriter(writer io.Writer) *Logger {
	return &Logger{
		level: LevelDebug,
		debug: log.New(writer, "DEBUG: ", flags),
		info:  log.New(writer, "INFO: ", flags),
		warn:  log.New(writer, "WARN: ", flags),
		error: log.New(writer, "ERROR: ", flags),
	}
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *Logger {
	return NewWithWriter(io.Discard)
}

// SetLevel drops entries below level.
func (l *Logger) SetLevel(level Level) *Logger {
	l.level = level
	return l
}

func (l *Logger) Enabled(level Level) bool {
	return level >= l.level
}

// calldepth 3 attributes Lshortfile to the caller of Info/Infof etc.
func (l *Logger) println(level Level, target *log.Logger, v []interface{}) {
	if !l.Enabled(level) {
		return
	}
	target.Output(3, fmt.Sprintln(v...))
}

func (l *Logger) printf(level Level, target *log.Logger, format string, v []interface{}) {
	if !l.Enabled(level) {
		return
	}
	target.Output(3, fmt.Sprintf(format, v...))
}

func (l *Logger) Debug(v ...interface{}) {
	l.println(LevelDebug, l.debug, v)
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	l.printf(LevelDebug, l.debug, format, v)
}

func (l *Logger) Info(v ...interface{}) {
	l.println(LevelInfo, l.info, v)
}

func (l *Logger) Infof(format string, v ...interface{}) {
	l.printf(LevelInfo, l.info, format, v)
}

func (l *Logger) Warn(v ...interface{}) {
	l.println(LevelWarn, l.warn, v)
}

func (l *Logger) Warnf(format string, v ...interface{}) {
	l.printf(LevelWarn, l.warn, format, v)
}

func (l *Logger) Error(v ...interface{}) {
	l.println(LevelError, l.error, v)
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	l.printf(LevelError, l.error, format, v)
}
