// Package logging builds the operator log stream: one line per event with an
// ISO-8601 UTC timestamp, written to stdout and optionally mirrored to a file.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/pvwatch/internal/config"
)

// TimestampFormat is ISO-8601 with milliseconds.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// utcFormatter renders entry times in UTC regardless of the host zone.
type utcFormatter struct {
	logrus.Formatter
}

func (f utcFormatter) Format(e *logrus.Entry) ([]byte, error) {
	e.Time = e.Time.UTC()
	return f.Formatter.Format(e)
}

// New returns a logger configured from cfg and a closer for the mirror file.
func New(cfg config.LoggingConfig, stdout io.Writer) (*logrus.Logger, func() error, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(utcFormatter{&logrus.JSONFormatter{TimestampFormat: TimestampFormat}})
	default:
		logger.SetFormatter(utcFormatter{&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: TimestampFormat,
			DisableColors:   true,
		}})
	}

	closer := func() error { return nil }
	out := stdout
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = io.MultiWriter(stdout, f)
		closer = f.Close
	}
	logger.SetOutput(out)

	return logger, closer, nil
}
