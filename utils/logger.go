package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Logger provides structured, leveled logging throughout the application.
type Logger struct {
	info  *log.Logger
	warn  *log.Logger
	err   *log.Logger
	debug *log.Logger

	color   bool
	debugOn bool
}

// NewLogger creates a new Logger writing to stdout/stderr. Level tags are
// colored only when stdout is a terminal.
func NewLogger() *Logger {
	fd := os.Stdout.Fd()
	color := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	return newLogger(os.Stdout, os.Stderr, color)
}

// NewWriterLogger creates an uncolored Logger writing every level to w.
func NewWriterLogger(w io.Writer) *Logger {
	return newLogger(w, w, false)
}

func newLogger(out, errOut io.Writer, color bool) *Logger {
	flags := 0
	return &Logger{
		info:  log.New(out, "", flags),
		warn:  log.New(out, "", flags),
		err:   log.New(errOut, "", flags),
		debug: log.New(out, "", flags),
		color: color,
	}
}

// SetLevel enables DEBUG output when level is "debug".
func (l *Logger) SetLevel(level string) *Logger {
	l.debugOn = level == "debug"
	return l
}

// DebugEnabled reports whether Debug lines are emitted.
func (l *Logger) DebugEnabled() bool {
	return l.debugOn
}

func (l *Logger) timestamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

func (l *Logger) tag(code, name string) string {
	if !l.color {
		return name
	}
	return "\033[" + code + "m" + name + "\033[0m"
}

func (l *Logger) Info(format string, args ...any) {
	l.info.Printf(fmt.Sprintf("[%s] %s  %s\n", l.timestamp(), l.tag("32", "INFO"), format), args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.warn.Printf(fmt.Sprintf("[%s] %s  %s\n", l.timestamp(), l.tag("33", "WARN"), format), args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.err.Printf(fmt.Sprintf("[%s] %s %s\n", l.timestamp(), l.tag("31", "ERROR"), format), args...)
}

func (l *Logger) Debug(format string, args ...any) {
	if !l.debugOn {
		return
	}
	l.debug.Printf(fmt.Sprintf("[%s] %s %s\n", l.timestamp(), l.tag("36", "DEBUG"), format), args...)
}
