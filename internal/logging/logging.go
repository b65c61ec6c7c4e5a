// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Setup sets the level and formatter of the standard logrus logger. Format is
// "text" or "json"; both stamp entries with RFC3339 times.
func Setup(out io.Writer, level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	var formatter log.Formatter
	switch strings.ToLower(format) {
	case "", "text":
		formatter = &log.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339}
	case "json":
		formatter = &log.JSONFormatter{TimestampFormat: time.RFC3339}
	default:
		return fmt.Errorf("log format %q: want text or json", format)
	}

	if out != nil {
		log.SetOutput(out)
	}
	log.SetLevel(lvl)
	log.SetFormatter(formatter)
	return nil
}

// Component returns an entry tagged with the component field.
func Component(name string) *log.Entry {
	return log.WithField("component", name)
}
