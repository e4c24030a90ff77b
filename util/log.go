package util

import (
	"context"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type contextKey string

// ProcessIDKey carries the update process ID in a context passed to log.WithContext
const ProcessIDKey contextKey = "processID"

// WithProcessID returns a context that makes CustomFormatter tag entries with the process ID
func WithProcessID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ProcessIDKey, id)
}

// InitLog parses and sets log-level input
func InitLog(logLevel string, logPath string) error {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.Errorf("Failed parsing log-level %s: %s", logLevel, err)
		return err
	}

	switch logPath {
	case "", "console":
		log.SetOutput(os.Stderr)
	default:
		lumberjackLogger := &lumberjack.Logger{
			// Log file absolute path, os agnostic
			Filename:   filepath.ToSlash(logPath),
			MaxSize:    5, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
			Compress:   true,
		}
		log.SetOutput(io.Writer(lumberjackLogger))
	}

	log.SetFormatter(&CustomFormatter{})
	log.SetLevel(level)
	return nil
}

// CustomFormatter formats the log message as required
type CustomFormatter struct {
	log.TextFormatter
}

func (f *CustomFormatter) Format(entry *log.Entry) ([]byte, error) {
	if entry.Context == nil {
		return f.TextFormatter.Format(entry)
	}

	if id, ok := entry.Context.Value(ProcessIDKey).(string); ok {
		entry.Data["process"] = id
	}

	return f.TextFormatter.Format(entry)
}
