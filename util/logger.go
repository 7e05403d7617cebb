// Package util holds the logger and the small network helpers every
// other package leans on.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LogLevel is a verbosity threshold; -v flags raise it one step each.
type LogLevel int

const (
	LogQuiet LogLevel = iota
	LogNormal
	LogVerbose
	LogDebug
)

var levelTags = [...]string{LogQuiet: "ERR", LogNormal: "INF", LogVerbose: "VRB", LogDebug: "DBG"}

// output is shared by a root Logger and all of its scoped children so
// that lines from concurrent sessions never interleave.
type output struct {
	mu    sync.Mutex
	w     io.Writer
	stamp bool
}

// Logger prints levelled, optionally scoped lines to stderr.
type Logger struct {
	level LogLevel
	scope string
	out   *output
}

// NewLogger returns a root Logger at the given verbosity.  Debug
// verbosity also turns on wall-clock timestamps.
func NewLogger(verbosity int) *Logger {
	return &Logger{
		level: LogLevel(verbosity),
		out:   &output{w: os.Stderr, stamp: verbosity >= int(LogDebug)},
	}
}

// With returns a child Logger whose lines carry scope after any scope
// l already has.
func (l *Logger) With(scope string) *Logger {
	if l.scope != "" {
		scope = l.scope + " " + scope
	}
	return &Logger{level: l.level, scope: scope, out: l.out}
}

// SetOutput redirects l and every Logger sharing its output.
func (l *Logger) SetOutput(w io.Writer) {
	l.out.mu.Lock()
	l.out.w = w
	l.out.mu.Unlock()
}

// SetTimestamps toggles the HH:MM:SS.mmm line prefix.
func (l *Logger) SetTimestamps(on bool) {
	l.out.mu.Lock()
	l.out.stamp = on
	l.out.mu.Unlock()
}

func (l *Logger) Info(format string, args ...any)    { l.logf(LogNormal, "", format, args) }
func (l *Logger) Warn(format string, args ...any)    { l.logf(LogNormal, "WRN", format, args) }
func (l *Logger) Verbose(format string, args ...any) { l.logf(LogVerbose, "", format, args) }
func (l *Logger) Debug(format string, args ...any)   { l.logf(LogDebug, "", format, args) }

// Error prints even at LogQuiet.
func (l *Logger) Error(format string, args ...any) { l.logf(LogQuiet, "", format, args) }

func (l *Logger) logf(min LogLevel, tag, format string, args []any) {
	if l.level < min {
		return
	}
	if tag == "" {
		tag = levelTags[min]
	}
	msg := fmt.Sprintf(format, args...)
	if l.scope != "" {
		msg = l.scope + ": " + msg
	}

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	if l.out.stamp {
		fmt.Fprintf(l.out.w, "%s [%s] %s\n", time.Now().Format("15:04:05.000"), tag, msg)
		return
	}
	fmt.Fprintf(l.out.w, "[%s] %s\n", tag, msg)
}
