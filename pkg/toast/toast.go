// Package toast delivers short user-facing notices: transient toasts fanned
// out to sinks, and the inline flash line under the composer.
package toast

import (
	"context"
	"errors"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/tinyland-inc/chatline/pkg/logger"
)

type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

type Toast struct {
	Level Level
	Text  string
}

func Info(text string) Toast    { return Toast{Level: LevelInfo, Text: text} }
func Success(text string) Toast { return Toast{Level: LevelSuccess, Text: text} }
func Warning(text string) Toast { return Toast{Level: LevelWarning, Text: text} }
func Error(text string) Toast   { return Toast{Level: LevelError, Text: text} }

// Sink displays or forwards a toast.
type Sink interface {
	Notify(ctx context.Context, t Toast) error
}

var policy = bluemonday.StrictPolicy()

// Clean strips markup from server-provided text such as room names.
func Clean(text string) string {
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(text)))
}

// LogSink writes toasts to the component logger.
type LogSink struct{}

func (LogSink) Notify(_ context.Context, t Toast) error {
	fields := map[string]any{"level": t.Level.String()}
	switch t.Level {
	case LevelError:
		logger.ErrorCF("toast", t.Text, fields)
	case LevelWarning:
		logger.WarnCF("toast", t.Text, fields)
	default:
		logger.InfoCF("toast", t.Text, fields)
	}
	return nil
}

// FuncSink adapts a function, typically a terminal printer.
type FuncSink func(t Toast)

func (f FuncSink) Notify(_ context.Context, t Toast) error {
	f(t)
	return nil
}

// MultiSink delivers to every sink and joins their errors. A failing sink
// does not stop delivery to the others.
type MultiSink []Sink

func (m MultiSink) Notify(ctx context.Context, t Toast) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
