package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the logging level
type LogLevel string

const (
	// LogLevelQuiet suppresses all output except errors
	LogLevelQuiet LogLevel = "quiet"
	// LogLevelNormal shows standard operational messages
	LogLevelNormal LogLevel = "normal"
	// LogLevelVerbose shows detailed operational information
	LogLevelVerbose LogLevel = "verbose"
	// LogLevelDebug shows all debug information
	LogLevelDebug LogLevel = "debug"
)

// Logger provides structured logging capabilities
type Logger struct {
	logger *logrus.Logger
	level  LogLevel
}

// Config holds logger configuration
type Config struct {
	Level   LogLevel
	Output  io.Writer
	Format  string // "text" or "json"
	LogFile string
}

// NewLogger creates a new logger with the specified configuration
func NewLogger(config Config) (*Logger, error) {
	logger := logrus.New()

	if config.Output != nil {
		logger.SetOutput(config.Output)
	} else {
		logger.SetOutput(os.Stdout)
	}

	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	switch config.Level {
	case LogLevelQuiet:
		logger.SetLevel(logrus.ErrorLevel)
	case LogLevelVerbose:
		logger.SetLevel(logrus.DebugLevel)
	case LogLevelDebug:
		logger.SetLevel(logrus.TraceLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if config.LogFile != "" {
		file, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", config.LogFile, err)
		}
		if config.Output == nil {
			logger.SetOutput(io.MultiWriter(os.Stdout, file))
		} else {
			logger.SetOutput(io.MultiWriter(config.Output, file))
		}
	}

	return &Logger{
		logger: logger,
		level:  config.Level,
	}, nil
}

// NewDefaultLogger creates a logger with default configuration
func NewDefaultLogger() *Logger {
	logger, _ := NewLogger(Config{
		Level:  LogLevelNormal,
		Output: os.Stdout,
		Format: "text",
	})
	return logger
}

// WithFields returns a logger entry with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.logger.WithFields(fields)
}

// WithField returns a logger entry with a single additional field
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.logger.WithField(key, value)
}

// Backup operation logging methods

// LogRunStart logs the beginning of an orchestration run
func (l *Logger) LogRunStart(runID string, force bool, targetFilter int64) {
	fields := logrus.Fields{
		"operation": "run_start",
		"run_id":    runID,
		"force":     force,
	}
	if targetFilter != 0 {
		fields["target_filter"] = targetFilter
	}
	l.logger.WithFields(fields).Info("Backup run started")
}

// LogPipeline logs the outcome of one target's dump/compress pipeline
func (l *Logger) LogPipeline(target string, artifact string, bytes int64, duration time.Duration, err error) {
	fields := logrus.Fields{
		"operation": "pipeline",
		"target":    target,
		"artifact":  artifact,
		"duration":  duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		l.logger.WithFields(fields).Error("Pipeline failed")
	} else {
		fields["bytes"] = bytes
		l.logger.WithFields(fields).Info("Artifact created")
	}
}

// LogUpload logs the outcome of an artifact upload
func (l *Logger) LogUpload(target string, descriptor string, duration time.Duration, err error) {
	fields := logrus.Fields{
		"operation": "upload",
		"target":    target,
		"duration":  duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		l.logger.WithFields(fields).Error("Upload failed")
	} else {
		fields["remote"] = descriptor
		l.logger.WithFields(fields).Info("Artifact uploaded")
	}
}

// LogNotifyAttempt logs a single healthcheck delivery attempt
func (l *Logger) LogNotifyAttempt(url string, attempt int, err error) {
	fields := logrus.Fields{
		"operation": "notify",
		"url":       url,
		"attempt":   attempt,
	}
	if err != nil {
		fields["error"] = err.Error()
		l.logger.WithFields(fields).Warn("Healthcheck delivery failed")
	} else {
		l.logger.WithFields(fields).Debug("Healthcheck delivered")
	}
}

// LogNotifyGiveUp logs a healthcheck that exhausted its retries
func (l *Logger) LogNotifyGiveUp(url string, attempts int, err error) {
	l.logger.WithFields(logrus.Fields{
		"operation": "notify",
		"url":       url,
		"attempts":  attempts,
		"error":     fmt.Sprint(err),
	}).Error("Healthcheck delivery abandoned")
}

// Standard logging methods

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.logger.Info(msg)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger.Infof(format, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	l.logger.Debug(msg)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.logger.Warn(msg)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string) {
	l.logger.Error(msg)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	return l.level
}
