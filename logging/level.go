package logging

import (
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
)

// Level is an enum of log levels. Its value can be compared to other Levels; the
// zero value is DEBUG.
type Level int

const (
	// DEBUG logs verbose diagnostics intended for developers.
	DEBUG Level = iota
	// INFO logs normal operational messages. This is the default level.
	INFO
	// WARN logs conditions that are unexpected but tolerable.
	WARN
	// ERROR logs failures.
	ERROR
)

func (level Level) String() string {
	switch level {
	case DEBUG:
		return "Debug"
	case INFO:
		return "Info"
	case WARN:
		return "Warn"
	case ERROR:
		return "Error"
	}
	return "unknown"
}

// AsZap converts the Level to the equivalent zapcore.Level.
func (level Level) AsZap() zapcore.Level {
	switch level {
	case DEBUG:
		return zapcore.DebugLevel
	case INFO:
		return zapcore.InfoLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

// LevelFromString parses an input string to a log level. The string must be one of
// debug, info, warn or error, ignoring case.
func LevelFromString(level string) (Level, error) {
	switch level {
	case "debug", "Debug", "DEBUG":
		return DEBUG, nil
	case "info", "Info", "INFO":
		return INFO, nil
	case "warn", "Warn", "WARN":
		return WARN, nil
	case "error", "Error", "ERROR":
		return ERROR, nil
	}
	return DEBUG, errors.Errorf("unknown log level: %q", level)
}
