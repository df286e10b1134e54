// Package logging configures the process-wide slog logger: JSON or
// text output, level from the environment, and an optional rotating
// file sink for long-running daemons that don't sit behind a
// container log collector.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Init configures a global slog logger. JSON if DATABRIDGE_JSON_LOG is
// truthy, else text. When DATABRIDGE_LOG_FILE names a path, output is
// written through a size/age-rotated file instead of stdout.
func Init(service string) *slog.Logger {
	mode := strings.ToLower(os.Getenv("DATABRIDGE_JSON_LOG"))
	json := mode == "1" || mode == "true" || mode == "json"

	var out io.Writer = os.Stdout
	if path := os.Getenv("DATABRIDGE_LOG_FILE"); path != "" {
		out = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{AddSource: false, Level: levelFromEnv()}
	if json {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)
	logger.Info("logging initialized", "json", json)
	return logger
}

func levelFromEnv() slog.Leveler {
	switch strings.ToLower(os.Getenv("DATABRIDGE_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
