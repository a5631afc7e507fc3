// Package logger provides the structured logger shared by every ledgerfeed component.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus logger bound to a component name.
type Logger struct {
	*logrus.Logger
	component string
}

// Config configures a Logger.
type Config struct {
	Level     string // debug, info, warn, error
	Format    string // json or text
	Component string
	Output    io.Writer
}

// New creates a logger from the given configuration.
func New(cfg Config) *Logger {
	l := logrus.New()

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	l.SetOutput(out)

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &Logger{Logger: l, component: cfg.Component}
}

// NewDefault creates an info-level text logger for a component.
func NewDefault(component string) *Logger {
	return New(Config{Component: component})
}

// Named returns a logger sharing the same output and level under another component name.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Logger: l.Logger, component: component}
}

// Component returns the component name.
func (l *Logger) Component() string {
	return l.component
}

// WithField returns an entry tagged with the component and the given field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.entry().WithField(key, value)
}

// WithFields returns an entry tagged with the component and the given fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.entry().WithFields(fields)
}

// WithError returns an entry tagged with the component and the error.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.entry().WithError(err)
}

func (l *Logger) entry() *logrus.Entry {
	if l.component == "" {
		return logrus.NewEntry(l.Logger)
	}
	return l.Logger.WithField("component", l.component)
}
