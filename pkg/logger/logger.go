package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[LogLevel]string{
	DEBUG: "debug",
	INFO:  "info",
	WARN:  "warn",
	ERROR: "error",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

var (
	mu           sync.RWMutex
	currentLevel = INFO
	base         = newConsole(os.Stderr)
)

func newConsole(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}).With().Timestamp().Logger()
}

// SetLevel drops every entry below l.
func SetLevel(l LogLevel) {
	mu.Lock()
	currentLevel = l
	mu.Unlock()
}

func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// ParseLevel accepts the names printed by LogLevel.String, case-insensitively.
func ParseLevel(s string) (LogLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for l, name := range levelNames {
		if name == s {
			return l, nil
		}
	}
	if s == "warning" {
		return WARN, nil
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

// SetOutput redirects logging to w. With jsonOut the entries are written as
// one JSON object per line, otherwise through the human-readable console writer.
func SetOutput(w io.Writer, jsonOut bool) {
	var l zerolog.Logger
	if jsonOut {
		l = zerolog.New(w).With().Timestamp().Logger()
	} else {
		l = newConsole(w)
	}
	mu.Lock()
	base = l
	mu.Unlock()
}

func toZerolog(l LogLevel) zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func logMessage(level LogLevel, component, message string, fields map[string]any) {
	mu.RLock()
	l := base
	threshold := currentLevel
	mu.RUnlock()

	if level < threshold {
		return
	}

	ev := l.WithLevel(toZerolog(level))
	if component != "" {
		ev = ev.Str("component", component)
	}
	if len(fields) > 0 {
		ev = ev.Fields(fields)
	}
	ev.Msg(message)
}

func Debug(message string) { logMessage(DEBUG, "", message, nil) }
func Info(message string)  { logMessage(INFO, "", message, nil) }
func Warn(message string)  { logMessage(WARN, "", message, nil) }
func Error(message string) { logMessage(ERROR, "", message, nil) }

func DebugC(component, message string) { logMessage(DEBUG, component, message, nil) }
func InfoC(component, message string)  { logMessage(INFO, component, message, nil) }
func WarnC(component, message string)  { logMessage(WARN, component, message, nil) }
func ErrorC(component, message string) { logMessage(ERROR, component, message, nil) }

func DebugCF(component, message string, fields map[string]any) {
	logMessage(DEBUG, component, message, fields)
}

func InfoCF(component, message string, fields map[string]any) {
	logMessage(INFO, component, message, fields)
}

func WarnCF(component, message string, fields map[string]any) {
	logMessage(WARN, component, message, fields)
}

func ErrorCF(component, message string, fields map[string]any) {
	logMessage(ERROR, component, message, fields)
}
