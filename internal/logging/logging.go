// Package logging configures the process-wide logrus logger and hands out
// per-component entries.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var base = logrus.New()

func init() {
	base.SetOutput(os.Stdout)
	base.SetFormatter(&logrus.JSONFormatter{})
}

// Configure sets the level ("debug", "info", "warn", "error") and format
// ("json" or "text").  Unknown levels fall back to info.
func Configure(level, format string) {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)
	if strings.EqualFold(format, "text") {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{})
	}
}

// SetOutput redirects all component loggers, mostly for tests.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

// NewLogger returns an entry tagged with the component name.
func NewLogger(component string) *logrus.Entry {
	return base.WithField("component", component)
}
