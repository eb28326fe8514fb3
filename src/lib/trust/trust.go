package trust

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

type MaskLevel int

const (
	Nothing   MaskLevel = 0x0
	ErrorMask MaskLevel = 0x1
	WarnMask  MaskLevel = 0x2
	InfoMask  MaskLevel = 0x4
	DebugMask MaskLevel = 0x8
	StatsMask MaskLevel = 0x10
	fatalMask MaskLevel = 0x80
)

// AllMask turns on every maskable level.
const AllMask = ErrorMask | WarnMask | InfoMask | DebugMask | StatsMask

// ExitFunc is called by Fatalf after the message is written.  On the core it
// halts the processor, on a host it is usually os.Exit.
type ExitFunc func(code int)

// Logger writes leveled, newline terminated lines to an output.  The zero
// value is not usable, use NewLogger.
type Logger struct {
	mu    sync.Mutex
	out   io.Writer
	level MaskLevel
	exit  ExitFunc
}

// NewLogger returns a logger that writes to out with the given mask.  If
// exit is nil, Fatalf calls os.Exit.
func NewLogger(out io.Writer, mask MaskLevel, exit ExitFunc) *Logger {
	if exit == nil {
		exit = os.Exit
	}
	l := &Logger{out: out, exit: exit}
	l.level = normalize(mask)
	return l
}

var std = NewLogger(os.Stdout, AllMask, nil)

// Default returns the package level logger used by the package level
// functions.
func Default() *Logger {
	return std
}

// SetDefault replaces the package level logger.  It returns the previous one.
func SetDefault(l *Logger) *Logger {
	prev := std
	std = l
	return prev
}

// normalize turns on every level more severe than the least severe one
// asked for.  Stats are separate and only on when asked for.
func normalize(mask MaskLevel) MaskLevel {
	result := mask & StatsMask
	switch {
	case mask&DebugMask > 0:
		result |= DebugMask
		fallthrough
	case mask&InfoMask > 0:
		result |= InfoMask
		fallthrough
	case mask&WarnMask > 0:
		result |= WarnMask
		fallthrough
	case mask&ErrorMask > 0:
		result |= ErrorMask
	}
	return result | fatalMask
}

// SetLevel lets you set an error mask directly. You can pass in something like
// ErrorMask | DebugMask to control exactly what gets printed.  It returns the
// previous mask.
func (l *Logger) SetLevel(mask MaskLevel) MaskLevel {
	if mask&0x1f == 0 {
		l.write(" WARN: trust.SetLevel is turning off log messages\n")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	r := l.level & 0x1f
	l.level = normalize(mask)
	return r
}

func (l *Logger) Level() MaskLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// LevelToString names every level that is currently on.
func (l *Logger) LevelToString() string {
	level := l.Level()
	names := []string{}
	for _, n := range []struct {
		m    MaskLevel
		name string
	}{{ErrorMask, "error"}, {WarnMask, "warn"}, {InfoMask, "info"}, {DebugMask, "debug"}, {StatsMask, "stats"}} {
		if level&n.m > 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, " ")
}

func (l *Logger) write(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	io.WriteString(l.out, s)
}

func (l *Logger) logf(m MaskLevel, format string, params ...interface{}) {
	if l.Level()&m == 0 {
		return
	}
	prefix := ""
	start := 0
	switch {
	case m&fatalMask > 0:
		prefix = "FATAL:"
	case m&ErrorMask > 0:
		prefix = "ERROR:"
	case m&WarnMask > 0:
		prefix = " WARN:"
	case m&InfoMask > 0:
		prefix = " INFO:"
	case m&DebugMask > 0:
		prefix = "DEBUG:"
	case m&StatsMask > 0:
		s, ok := params[0].(string)
		if !ok {
			s = "unknown"
		}
		prefix = fmt.Sprintf("STATS[%s]:", s)
		start = 1
	}
	if len(format) == 0 {
		format = "\n"
	} else if format[len(format)-1] != '\n' {
		format += "\n"
	}
	l.write(prefix + fmt.Sprintf(format, params[start:]...))
}

//Fatalf prints the given log message (format + params) and then
//exits with the exitCode provided.  Fatalf is not maskable.
func (l *Logger) Fatalf(exitCode int, format string, params ...interface{}) {
	l.logf(fatalMask, format, params...)
	l.exit(exitCode)
}

//Errorf prints the given log message (format + params) using the ErrorMask level.
func (l *Logger) Errorf(format string, params ...interface{}) {
	l.logf(ErrorMask, format, params...)
}

//Warnf prints the given log message (format + params) using the WarnMask level.
func (l *Logger) Warnf(format string, params ...interface{}) {
	l.logf(WarnMask, format, params...)
}

//Infof prints the given log message (format + params) using the InfoMask level.
func (l *Logger) Infof(format string, params ...interface{}) {
	l.logf(InfoMask, format, params...)
}

//Debugf prints the given log message (format + params) using the DebugMask level.
func (l *Logger) Debugf(format string, params ...interface{}) {
	l.logf(DebugMask, format, params...)
}

//Statsf prints the given log message (format + params) using the StatsMask level and
//takes an extra parameter that will be visible in the log message as the category
//of stats that is reported.
func (l *Logger) Statsf(category string, format string, params ...interface{}) {
	l.logf(StatsMask, format, append([]interface{}{category}, params...)...)
}

func SetLevel(mask MaskLevel) MaskLevel { return std.SetLevel(mask) }
func Level() MaskLevel                  { return std.Level() }
func LevelToString() string             { return std.LevelToString() }

func Fatalf(exitCode int, format string, params ...interface{}) {
	std.Fatalf(exitCode, format, params...)
}

func Errorf(format string, params ...interface{}) { std.Errorf(format, params...) }
func Warnf(format string, params ...interface{})  { std.Warnf(format, params...) }
func Infof(format string, params ...interface{})  { std.Infof(format, params...) }
func Debugf(format string, params ...interface{}) { std.Debugf(format, params...) }

func Statsf(category string, format string, params ...interface{}) {
	std.Statsf(category, format, params...)
}
